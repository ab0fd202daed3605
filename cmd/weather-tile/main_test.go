package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-tile-refresh/internal/config"
	"github.com/i474232898/weather-tile-refresh/internal/geocode"
	"github.com/i474232898/weather-tile-refresh/internal/weather"
)

func TestStartingCoordinate(t *testing.T) {
	fallback := weather.Coordinate{Latitude: 39.9042, Longitude: 116.4074}

	tests := []struct {
		name       string
		location   string
		search     http.HandlerFunc
		mapPage    http.HandlerFunc
		want       weather.Coordinate
		wantLevel  string
		wantLookup bool
	}{
		{
			name:     "no location configured",
			location: "",
			want:     fallback,
		},
		{
			name:     "resolved name",
			location: "上海",
			search: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"value":[{"geo":{"latitude":31.2304,"longitude":121.4737}}]}`))
			},
			want:       weather.Coordinate{Latitude: 31.2304, Longitude: 121.4737},
			wantLevel:  "INFO",
			wantLookup: true,
		},
		{
			name:     "not found",
			location: "Atlantis",
			search: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"value":[]}`))
			},
			mapPage: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`<html><body>No results</body></html>`))
			},
			want:       fallback,
			wantLevel:  "WARN",
			wantLookup: true,
		},
		{
			name:     "network error",
			location: "上海",
			search: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			mapPage: func(w http.ResponseWriter, r *http.Request) {
				panic(http.ErrAbortHandler)
			},
			want:       fallback,
			wantLevel:  "ERROR",
			wantLookup: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var lookups atomic.Int32
			mux := http.NewServeMux()
			mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
				lookups.Add(1)
				tt.search(w, r)
			})
			mux.HandleFunc("/maps", func(w http.ResponseWriter, r *http.Request) {
				tt.mapPage(w, r)
			})
			srv := httptest.NewServer(mux)
			defer srv.Close()

			cfg := &config.AppConfig{
				Latitude:        fallback.Latitude,
				Longitude:       fallback.Longitude,
				WeatherLocation: tt.location,
				HTTPTimeout:     2 * time.Second,
			}

			var buf bytes.Buffer
			logg := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			resolver := geocode.NewResolver(geocode.Config{
				SearchURL:  srv.URL + "/search",
				MapURL:     srv.URL + "/maps",
				NoDelay:    true,
				HTTPClient: srv.Client(),
			}, logg)

			got := startingCoordinate(cfg, resolver, logg)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.wantLookup, lookups.Load() > 0)

			if tt.wantLevel == "" {
				return
			}
			require.Equal(t, tt.wantLevel, lastLevel(t, &buf))
		})
	}
}

// lastLevel returns the level of the last record written by startingCoordinate.
func lastLevel(t *testing.T, buf *bytes.Buffer) string {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)

	var entry struct {
		Level string `json:"level"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry.Level
}
