package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/susu3304/whereami/internal/game"
	"github.com/susu3304/whereami/internal/geoscore"
)

const resultWait = 5 * time.Second

// console plays one session on a line-oriented terminal.
type console struct {
	session    *game.Session
	saver      *game.AutoSaver
	store      game.SessionStore
	stats      func(context.Context) (game.Statistics, error)
	results    <-chan game.FinalizeResult
	settings   game.Settings
	pathPoints int
	parse      func(context.Context, string) (geoscore.Coordinate, error)

	in  io.Reader
	out io.Writer

	lines <-chan string
}

func (c *console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// Run returns nil when the player quits or input ends, and ctx.Err() when
// interrupted.
func (c *console) Run(ctx context.Context) error {
	c.lines = readLines(c.in)

	resumed, err := c.offerResume(ctx)
	if err != nil {
		return err
	}
	if !resumed {
		if err := c.start(ctx, nil); err != nil {
			return err
		}
	}

	for {
		c.prompt()
		line, ok, err := c.readLine(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		switch strings.ToLower(line) {
		case "quit", "q", "exit":
			return nil
		case "save":
			c.save(ctx)
			continue
		case "restart":
			if err := c.start(ctx, &c.settings); err != nil {
				return err
			}
			continue
		}

		switch c.session.Status() {
		case game.StatusComplete:
			c.printf("Type restart to play again or quit to leave.\n")
		case game.StatusInProgress:
			if err := c.step(ctx, line); err != nil {
				return err
			}
		}
	}
}

func (c *console) offerResume(ctx context.Context) (bool, error) {
	snap, err := c.store.Load(ctx)
	if errors.Is(err, game.ErrNoSavedSession) {
		return false, nil
	}
	if err != nil {
		c.printf("Could not read the saved game: %v\n", err)
		return false, nil
	}
	if snap.Complete {
		return false, nil
	}

	c.printf("Saved game found: round %d of %d, %d points. Resume? [Y/n] ",
		snap.CurrentRound+1, len(snap.Rounds), snap.TotalScore)
	answer, ok, err := c.readLine(ctx)
	if err != nil || !ok {
		return false, err
	}
	if a := strings.ToLower(answer); a != "" && a != "y" && a != "yes" {
		return false, nil
	}
	if err := c.session.Restore(snap); err != nil {
		c.printf("The saved game is unusable (%v); starting a new one.\n", err)
		return false, nil
	}
	c.settings = snap.Settings
	return true, nil
}

func (c *console) start(ctx context.Context, settings *game.Settings) error {
	c.printf("Loading a new game...\n")
	var err error
	if settings == nil {
		err = c.session.Initialize(ctx, c.settings)
	} else {
		err = c.session.Reset(ctx, settings)
	}
	if errors.Is(err, game.ErrSuperseded) {
		return nil
	}
	if err != nil {
		var short *game.InsufficientContentError
		if errors.As(err, &short) {
			c.printf("Not enough photos: wanted %d, found %d.\n", short.Requested, short.Available)
		}
		return fmt.Errorf("start game: %w", err)
	}
	return nil
}

func (c *console) prompt() {
	snap := c.session.Snapshot()
	if snap.Status != game.StatusInProgress {
		return
	}
	r := snap.Rounds[snap.CurrentRound]
	if r.Scored() {
		if snap.CurrentRound == len(snap.Rounds)-1 {
			c.printf("Press enter to see your results. ")
		} else {
			c.printf("Press enter for the next round. ")
		}
		return
	}
	c.printf("\nRound %d of %d: %s\nWhere was this taken? (lat,lng or a Google Maps link) ",
		r.ID, len(snap.Rounds), r.Target.ImageRef)
}

func (c *console) step(ctx context.Context, line string) error {
	round, ok := c.session.CurrentRound()
	if !ok {
		return nil
	}

	if round.Scored() {
		if err := c.session.Advance(); err != nil && !errors.Is(err, game.ErrInvalidStateTransition) {
			return err
		}
		if c.session.Status() == game.StatusComplete {
			c.finish(ctx)
		}
		return nil
	}

	if line == "" {
		return nil
	}
	guess, err := c.parse(ctx, line)
	if err != nil {
		c.printf("Could not read that location: %v\n", err)
		return nil
	}
	res, err := c.session.SubmitGuess(guess)
	if err != nil {
		c.printf("Guess rejected: %v\n", err)
		return nil
	}

	c.printf("%d points! You were %s away (target %.4f, %.4f).\n",
		res.Score, geoscore.FormatDistance(res.DistanceKm), res.OptimalTarget.Lat, res.OptimalTarget.Lng)
	if mid, ok := c.midpoint(res.RoundID); ok {
		c.printf("The great circle between you crosses %.2f, %.2f.\n", mid.Lat, mid.Lng)
	}
	return nil
}

func (c *console) midpoint(roundID int) (geoscore.Coordinate, bool) {
	path, err := c.session.RoundPath(roundID, c.pathPoints)
	if err != nil {
		return geoscore.Coordinate{}, false
	}
	var points []geoscore.Coordinate
	for p := range path {
		points = append(points, p)
	}
	if len(points) == 0 {
		return geoscore.Coordinate{}, false
	}
	return points[len(points)/2], true
}

func (c *console) finish(ctx context.Context) {
	sum := c.session.Summary()
	c.printf("\nGame over! %d / %d points. %s\n", sum.TotalScore, sum.MaxPossible,
		geoscore.PerformanceRating(sum.TotalScore, sum.MaxPossible))
	for _, r := range sum.Rounds {
		dist := "-"
		if r.DistanceKm != nil {
			dist = geoscore.FormatDistance(*r.DistanceKm)
		}
		c.printf("  round %d: %5d points, %s\n", r.ID, r.Score, dist)
	}

	if c.results != nil {
		select {
		case res := <-c.results:
			if res.Receipt != nil && res.Receipt.IsNewBest {
				c.printf("New personal best for this game!\n")
			}
		case <-time.After(resultWait):
		case <-ctx.Done():
			return
		}
	}

	if c.stats != nil {
		st, err := c.stats(ctx)
		if err == nil && st.TotalGames > 0 {
			c.printf("%d games played, average %d, best %d, accuracy %.2f%%\n",
				st.TotalGames, st.AverageScore, st.BestScore, st.AverageAccuracy)
		}
	}
	c.printf("Type restart to play again or quit to leave.\n")
}

func (c *console) save(ctx context.Context) {
	saved, err := c.saver.SaveNow(ctx, c.session.Snapshot())
	switch {
	case err != nil:
		c.printf("Save failed: %v\n", err)
	case !saved:
		c.printf("Nothing to save.\n")
	default:
		c.printf("Game saved.\n")
	}
}

func (c *console) readLine(ctx context.Context) (string, bool, error) {
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case line, ok := <-c.lines:
		return strings.TrimSpace(line), ok, nil
	}
}

// readLines scans r on its own goroutine so a pending read never blocks
// shutdown.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}
