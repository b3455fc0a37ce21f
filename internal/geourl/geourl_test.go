package geourl

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/susu3304/whereami/internal/geoscore"
)

func TestExtractFromURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantLat float64
		wantLng float64
		wantOk  bool
	}{
		{
			name:    "Pattern A: @lat,lng format",
			url:     "https://www.google.com/maps/@35.696677,138.430228,15z",
			wantLat: 35.696677,
			wantLng: 138.430228,
			wantOk:  true,
		},
		{
			name:    "Pattern B: !3dlat!4dlng format",
			url:     "https://www.google.com/maps/place/Tokyo!3d35.6762!4d139.6503",
			wantLat: 35.6762,
			wantLng: 139.6503,
			wantOk:  true,
		},
		{
			name:    "Pattern C: /maps/search/lat,lng format with plus",
			url:     "https://www.google.com/maps/search/35.696677,+138.430228?coh=277533&entry=tts",
			wantLat: 35.696677,
			wantLng: 138.430228,
			wantOk:  true,
		},
		{
			name:    "Pattern C: /maps/search/lat,lng format without plus",
			url:     "https://www.google.com/maps/search/35.696677,138.430228",
			wantLat: 35.696677,
			wantLng: 138.430228,
			wantOk:  true,
		},
		{
			name:    "Pattern C: /maps/search/lat,lng with space separator",
			url:     "https://www.google.com/maps/search/35.696677, 138.430228",
			wantLat: 35.696677,
			wantLng: 138.430228,
			wantOk:  true,
		},
		{
			name:    "Pattern C: /maps/search/lat,lng with negative longitude",
			url:     "https://www.google.com/maps/search/35.696677,-138.430228",
			wantLat: 35.696677,
			wantLng: -138.430228,
			wantOk:  true,
		},
		{
			name:    "Pattern D: query param ?q=lat,lng",
			url:     "https://www.google.com/maps?q=35.696677,138.430228",
			wantLat: 35.696677,
			wantLng: 138.430228,
			wantOk:  true,
		},
		{
			name:    "Pattern D: query param ?query=lat,lng",
			url:     "https://www.google.com/maps?query=35.696677, 138.430228",
			wantLat: 35.696677,
			wantLng: 138.430228,
			wantOk:  true,
		},
		{
			name:    "Negative coordinates",
			url:     "https://www.google.com/maps/search/-33.8688,+151.2093",
			wantLat: -33.8688,
			wantLng: 151.2093,
			wantOk:  true,
		},
		{
			name:    "No coordinates",
			url:     "https://www.google.com/maps/place/Tokyo",
			wantLat: 0,
			wantLng: 0,
			wantOk:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotLat, gotLng, gotOk := extractFromURL(tt.url)
			if gotOk != tt.wantOk {
				t.Errorf("extractFromURL() gotOk = %v, want %v", gotOk, tt.wantOk)
				return
			}
			if !tt.wantOk {
				return
			}
			if gotLat != tt.wantLat {
				t.Errorf("extractFromURL() gotLat = %v, want %v", gotLat, tt.wantLat)
			}
			if gotLng != tt.wantLng {
				t.Errorf("extractFromURL() gotLng = %v, want %v", gotLng, tt.wantLng)
			}
		})
	}
}

func TestParseGuess(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    geoscore.Coordinate
		wantErr error
	}{
		{
			name:  "plain pair",
			input: "35.6762,139.6503",
			want:  geoscore.Coordinate{Lat: 35.6762, Lng: 139.6503},
		},
		{
			name:  "plain pair with spaces",
			input: "  -33.8688 , 151.2093 ",
			want:  geoscore.Coordinate{Lat: -33.8688, Lng: 151.2093},
		},
		{
			name:  "longitude past the seam is accepted",
			input: "0,190",
			want:  geoscore.Coordinate{Lat: 0, Lng: 190},
		},
		{
			name:  "map URL parsed offline",
			input: "https://www.google.com/maps/@48.8584,2.2945,17z",
			want:  geoscore.Coordinate{Lat: 48.8584, Lng: 2.2945},
		},
		{
			name:    "latitude out of range",
			input:   "91,0",
			wantErr: ErrLatitudeRange,
		},
		{
			name:    "free text",
			input:   "somewhere in Paris",
			wantErr: ErrUnsupportedText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseGuess(context.Background(), tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseGuess() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseGuess() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseGuess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseGuessExpandsShortURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/short", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/maps/search/21.3099,+-157.8583", http.StatusFound)
	})
	mux.HandleFunc("/maps/search/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	got, err := ParseGuess(context.Background(), srv.URL+"/short")
	if err != nil {
		t.Fatalf("ParseGuess() unexpected error: %v", err)
	}
	want := geoscore.Coordinate{Lat: 21.3099, Lng: -157.8583}
	if got != want {
		t.Errorf("ParseGuess() = %v, want %v", got, want)
	}
}

func TestParseGuessShortURLWithoutCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	_, err := ParseGuess(context.Background(), srv.URL+"/place/Tokyo")
	if !errors.Is(err, ErrNoCoordinates) {
		t.Fatalf("ParseGuess() error = %v, want ErrNoCoordinates", err)
	}
}
