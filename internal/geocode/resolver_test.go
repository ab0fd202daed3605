package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-tile-refresh/internal/weather"
)

// upstream fakes both the place-search API and the map page.
type upstream struct {
	searchStatus int
	searchBody   string
	mapBody      string

	searchHits atomic.Int32
	mapHits    atomic.Int32
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/search":
		u.searchHits.Add(1)
		if r.URL.Query().Get("q") == "" {
			http.Error(w, "missing q", http.StatusBadRequest)
			return
		}
		if u.searchStatus != 0 {
			w.WriteHeader(u.searchStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(u.searchBody))
	case "/maps":
		u.mapHits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(u.mapBody))
	default:
		http.NotFound(w, r)
	}
}

func newTestResolver(t *testing.T, u *upstream) *Resolver {
	t.Helper()
	srv := httptest.NewServer(u)
	t.Cleanup(srv.Close)

	return NewResolver(Config{
		SearchURL:  srv.URL + "/search",
		MapURL:     srv.URL + "/maps",
		NoDelay:    true,
		HTTPClient: srv.Client(),
	}, nil)
}

func TestResolve_PrimaryResult(t *testing.T) {
	u := &upstream{
		searchBody: `{"value":[{"name":"北京","geo":{"latitude":39.9,"longitude":116.4}},{"geo":{"latitude":1,"longitude":2}}]}`,
	}
	r := newTestResolver(t, u)

	coord, err := r.Resolve(context.Background(), "北京")
	require.NoError(t, err)
	require.Equal(t, weather.Coordinate{Latitude: 39.9, Longitude: 116.4}, coord)
	require.Zero(t, u.mapHits.Load(), "fallback must not run")
}

func TestResolve_FallbackNamedPattern(t *testing.T) {
	u := &upstream{
		searchBody: `{"value":[]}`,
		mapBody:    `<script>var cfg = {zoom: 10, bbox: "1.5, 2.5", "centerLatitude: 31.2", "centerLongitude: 121.5"};</script>`,
	}
	r := newTestResolver(t, u)

	coord, err := r.Resolve(context.Background(), "上海")
	require.NoError(t, err)
	require.Equal(t, weather.Coordinate{Latitude: 31.2, Longitude: 121.5}, coord)
}

func TestResolve_FallbackAfterPrimaryError(t *testing.T) {
	u := &upstream{
		searchStatus: http.StatusServiceUnavailable,
		mapBody:      `<a href="/maps?cp=23.1291,113.2644&lvl=11">map</a>`,
	}
	r := newTestResolver(t, u)

	coord, err := r.Resolve(context.Background(), "广州")
	require.NoError(t, err)
	require.Equal(t, weather.Coordinate{Latitude: 23.1291, Longitude: 113.2644}, coord)
	require.Equal(t, int32(1), u.searchHits.Load())
	require.Equal(t, int32(1), u.mapHits.Load())
}

func TestResolve_NotFound(t *testing.T) {
	u := &upstream{
		searchBody: `{"value":[]}`,
		mapBody:    `<html><body>No results</body></html>`,
	}
	r := newTestResolver(t, u)

	_, err := r.Resolve(context.Background(), "Atlantis")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, int32(2), u.searchHits.Load()+u.mapHits.Load(), "exactly two requests")
}

func TestResolve_PrimaryWithoutGeo(t *testing.T) {
	u := &upstream{
		searchBody: `{"value":[{"name":"somewhere"}]}`,
		mapBody:    `centerLatitude='22.54'; centerLongitude='114.05';`,
	}
	r := newTestResolver(t, u)

	coord, err := r.Resolve(context.Background(), "深圳")
	require.NoError(t, err)
	require.Equal(t, weather.Coordinate{Latitude: 22.54, Longitude: 114.05}, coord)
}

func TestResolve_EmptyQuery(t *testing.T) {
	u := &upstream{}
	r := newTestResolver(t, u)

	_, err := r.Resolve(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptyQuery)
	require.Zero(t, u.searchHits.Load(), "empty query must not reach the network")
}

func TestResolve_SendsBrowserHeaders(t *testing.T) {
	var ua, referer atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
		referer.Store(r.Header.Get("Referer"))
		w.Write([]byte(`{"value":[{"geo":{"latitude":10,"longitude":20}}]}`))
	}))
	defer srv.Close()

	r := NewResolver(Config{SearchURL: srv.URL, MapURL: srv.URL + "/maps", NoDelay: true, HTTPClient: srv.Client()}, nil)
	_, err := r.Resolve(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, userAgent, ua.Load())
	require.Equal(t, srv.URL+"/maps", referer.Load())
}

func TestResolve_CourtesyDelayHonoursContext(t *testing.T) {
	u := &upstream{}
	srv := httptest.NewServer(u)
	defer srv.Close()

	r := NewResolver(Config{
		SearchURL:  srv.URL + "/search",
		MapURL:     srv.URL + "/maps",
		HTTPClient: srv.Client(),
		DelayMin:   time.Hour,
		DelayMax:   time.Hour,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Resolve(ctx, "北京")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, u.searchHits.Load(), "request issued before the courtesy delay elapsed")
}

func TestResolve_DefaultCourtesyDelay(t *testing.T) {
	u := &upstream{searchBody: `{"value":[{"geo":{"latitude":39.9,"longitude":116.4}}]}`}
	srv := httptest.NewServer(u)
	defer srv.Close()

	r := NewResolver(Config{
		SearchURL:  srv.URL + "/search",
		MapURL:     srv.URL + "/maps",
		HTTPClient: srv.Client(),
	}, nil)
	require.Equal(t, DefaultDelayMin, r.delayMin)
	require.Equal(t, DefaultDelayMax, r.delayMax)

	start := time.Now()
	_, err := r.Resolve(context.Background(), "北京")
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), DefaultDelayMin)
}

func TestNewResolver_NoDelay(t *testing.T) {
	r := NewResolver(Config{DelayMin: time.Second, DelayMax: 2 * time.Second, NoDelay: true}, nil)
	require.Zero(t, r.delayMin)
	require.Zero(t, r.delayMax)
}

func TestNewResolver_LeavesSharedClientTimeout(t *testing.T) {
	shared := &http.Client{Timeout: 7 * time.Second}

	NewResolver(Config{Timeout: time.Second, NoDelay: true, HTTPClient: shared}, nil)

	require.Equal(t, 7*time.Second, shared.Timeout)
}
