package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/susu3304/whereami/internal/catalog"
	"github.com/susu3304/whereami/internal/config"
	"github.com/susu3304/whereami/internal/db"
	"github.com/susu3304/whereami/internal/game"
	"github.com/susu3304/whereami/internal/geourl"
	"github.com/susu3304/whereami/internal/kafkasink"
	"github.com/susu3304/whereami/internal/localstore"
	"github.com/susu3304/whereami/internal/metrics"
	"github.com/susu3304/whereami/internal/observability"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Logs go to stderr; stdout belongs to the game.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("whereami exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing(), logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	reg := prometheus.NewRegistry()
	collector, err := metrics.NewGameCollector(reg)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	bus := game.NewBus()
	session := game.NewSession(b.targets,
		game.WithLogger(logger),
		game.WithBus(bus),
		game.WithCurve(cfg.Curve()),
		game.WithGameTargets(b.gameTargets),
	)

	saver := game.NewAutoSaver(b.store,
		game.WithSaveDelay(cfg.AutoSaveDelay),
		game.WithSaveLogger(logger),
		game.WithSaveFailureHook(collector.SideEffectFailed),
	)

	results := make(chan game.FinalizeResult, 1)
	finalizerOpts := []game.FinalizerOption{
		game.WithFinalizerLogger(logger),
		game.WithFinalizerFailureHook(collector.SideEffectFailed),
		game.WithResultHook(func(res game.FinalizeResult) {
			select {
			case results <- res:
			default:
			}
		}),
	}
	if b.scores != nil {
		finalizerOpts = append(finalizerOpts, game.WithScoreSubmitter(b.scores, cfg.PlayerID))
	}
	finalizer := game.NewFinalizer(b.history, finalizerOpts...)

	bus.Subscribe(saver.Handle)
	bus.Subscribe(finalizer.Handle)
	bus.Subscribe(collector.Handle)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	c := &console{
		session:    session,
		saver:      saver,
		store:      b.store,
		stats:      b.stats,
		results:    results,
		settings:   cfg.GameSettings(),
		pathPoints: cfg.PathPoints,
		parse:      geourl.ParseGuess,
		in:         os.Stdin,
		out:        os.Stdout,
	}
	g.Go(func() error {
		defer cancel()
		return c.Run(gctx)
	})

	err = g.Wait()

	// Drain handlers before writing the last pending save.
	bus.Close()
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if ferr := saver.Flush(flushCtx); ferr != nil {
		logger.Warn("final save failed", "error", ferr)
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// backends holds the collaborators selected by configuration.
type backends struct {
	targets     game.TargetSource
	gameTargets game.GameTargetSource
	store       game.SessionStore
	history     game.HistorySink
	scores      game.ScoreSubmitter
	stats       func(context.Context) (game.Statistics, error)
	closers     []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *backends, err error) {
	b := &backends{}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	var database *db.DB
	if cfg.Store == config.StorePostgres || cfg.Targets == config.TargetsPostgres {
		// Connect to database
		database, err = db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		b.closers = append(b.closers, database.Close)

		// Run migrations
		if err := database.RunMigrations(ctx); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	var history game.HistorySink
	switch cfg.Store {
	case config.StorePostgres:
		b.store = database.SessionStore(cfg.PlayerID)
		h := database.History(cfg.PlayerID)
		history = h
		b.stats = statsFrom(h)
	default:
		local, err := localstore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open local store: %w", err)
		}
		b.closers = append(b.closers, func() { local.Close() })
		b.store = local
		history = local
		b.stats = local.Statistics
	}

	switch cfg.Targets {
	case config.TargetsMinio:
		objects, err := catalog.NewMinioStore(cfg.MinioStore())
		if err != nil {
			return nil, err
		}
		if err := objects.EnsureBucket(ctx, cfg.Minio.Region); err != nil {
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
		cat := catalog.New(objects, cfg.Minio.Prefix, logger)
		b.targets, b.gameTargets = cat, cat
	default:
		b.targets, b.gameTargets = database, database
		// Leaderboard rows reference custom_games, so scores are only kept
		// when games come from the same database.
		b.scores = database
	}

	if len(cfg.KafkaBrokers) > 0 {
		sink, err := kafkasink.New(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() {
			if err := sink.Close(); err != nil {
				logger.Warn("closing kafka writer", "error", err)
			}
		})
		history = fanOut{history, sink}
	}
	b.history = history
	return b, nil
}

func statsFrom(r game.HistoryReader) func(context.Context) (game.Statistics, error) {
	return func(ctx context.Context) (game.Statistics, error) {
		history, err := r.RecentSummaries(ctx, localstore.MaxHistory)
		if err != nil {
			return game.Statistics{}, err
		}
		return game.ComputeStatistics(history), nil
	}
}

// fanOut records a summary to every sink, attempting all of them.
type fanOut []game.HistorySink

func (f fanOut) Record(ctx context.Context, sum game.Summary) error {
	var errs []error
	for _, s := range f {
		if err := s.Record(ctx, sum); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
