package geourl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/susu3304/whereami/internal/geoscore"
)

var (
	reAt   = regexp.MustCompile(`@(-?\d+(?:\.\d+)?),(-?\d+(?:\.\d+)?)`)
	re3d4d = regexp.MustCompile(`!3d(-?\d+(?:\.\d+)?)!4d(-?\d+(?:\.\d+)?)`)
	reQ    = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*,\s*\+?(-?\d+(?:\.\d+)?)\s*$`)
	rePath = regexp.MustCompile(`/maps/search/(-?\d+(?:\.\d+)?),\s*\+?(-?\d+(?:\.\d+)?)`)
)

var (
	ErrNoCoordinates   = errors.New("coordinates not found")
	ErrLatitudeRange   = errors.New("latitude must be between -90 and 90")
	ErrUnsupportedText = errors.New("expected \"lat,lng\" or a map URL")
)

// ParseGuess turns player input into a coordinate. Plain "lat,lng" text and
// map URLs that already carry coordinates are parsed offline; other http(s)
// URLs (short links) are expanded first.
func ParseGuess(ctx context.Context, input string) (geoscore.Coordinate, error) {
	input = strings.TrimSpace(input)

	if m := reQ.FindStringSubmatch(input); len(m) == 3 {
		return toCoordinate(parse2(m[1], m[2]))
	}

	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return geoscore.Coordinate{}, ErrUnsupportedText
	}

	if lat, lng, ok := extractFromURL(input); ok {
		return toCoordinate(lat, lng, true)
	}

	lat, lng, _, err := ExpandAndExtractCoords(ctx, input)
	if err != nil {
		return geoscore.Coordinate{}, err
	}
	return toCoordinate(lat, lng, true)
}

func toCoordinate(lat, lng float64, ok bool) (geoscore.Coordinate, error) {
	if !ok {
		return geoscore.Coordinate{}, ErrNoCoordinates
	}
	c := geoscore.Coordinate{Lat: lat, Lng: lng}
	if !c.Valid() {
		return geoscore.Coordinate{}, ErrLatitudeRange
	}
	return c, nil
}

// ExpandAndExtractCoords expands a Google Maps short URL and extracts coordinates from the final URL.
func ExpandAndExtractCoords(ctx context.Context, input string) (lat float64, lng float64, finalURL string, err error) {
	client := &http.Client{
		Timeout: 15 * time.Second,
		// Follow redirects (default is fine); keep a safety cap.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("too many redirects")
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, input, nil)
	if err != nil {
		return 0, 0, "", err
	}
	// Some endpoints behave better with a UA.
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; whereami/1.0)")
	req.Header.Set("Accept-Language", "en;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, "", err
	}
	defer resp.Body.Close()

	// After redirects, this is the final URL.
	if resp.Request == nil || resp.Request.URL == nil {
		return 0, 0, "", errors.New("failed to determine final URL")
	}
	finalURL = resp.Request.URL.String()

	lat, lng, ok := extractFromURL(finalURL)
	if !ok {
		return 0, 0, finalURL, fmt.Errorf("%w in final URL: %s", ErrNoCoordinates, finalURL)
	}
	return lat, lng, finalURL, nil
}

func extractFromURL(s string) (lat, lng float64, ok bool) {
	// Pattern A: .../@lat,lng,zoom...
	if m := reAt.FindStringSubmatch(s); len(m) == 3 {
		return parse2(m[1], m[2])
	}
	// Pattern B: ...!3dlat!4dlng...
	if m := re3d4d.FindStringSubmatch(s); len(m) == 3 {
		return parse2(m[1], m[2])
	}
	// Pattern C: /maps/search/lat,lng (optionally "+" or space separated)
	if m := rePath.FindStringSubmatch(s); len(m) == 3 {
		return parse2(m[1], m[2])
	}

	// Pattern D: query params like ?q=lat,lng or ?query=lat,lng
	u, err := url.Parse(s)
	if err == nil {
		for _, key := range []string{"q", "query"} {
			if v := u.Query().Get(key); v != "" {
				if mm := reQ.FindStringSubmatch(v); len(mm) == 3 {
					return parse2(mm[1], mm[2])
				}
			}
		}
	}

	return 0, 0, false
}

func parse2(a, b string) (lat, lng float64, ok bool) {
	la, err1 := strconv.ParseFloat(a, 64)
	lo, err2 := strconv.ParseFloat(b, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return la, lo, true
}
