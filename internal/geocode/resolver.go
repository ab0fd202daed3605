package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/i474232898/weather-tile-refresh/internal/weather"
)

const (
	DefaultSearchURL = "https://cn.bing.com/api/v6/Places/AutoSuggest"
	DefaultMapURL    = "https://cn.bing.com/maps"
	DefaultAppID     = "D41D8CD98F00B204E9800998ECF8427E1FBE79C2"

	DefaultDelayMin = 500 * time.Millisecond
	DefaultDelayMax = 1500 * time.Millisecond

	defaultTimeout = 10 * time.Second
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var (
	// ErrNotFound is returned when neither strategy yields a usable coordinate.
	ErrNotFound = errors.New("location not found")

	ErrEmptyQuery = errors.New("place name is empty")

	errNoResults = errors.New("place search returned no results")
)

// Config configures a Resolver. Zero values fall back to the defaults above.
type Config struct {
	SearchURL string
	MapURL    string
	AppID     string
	Timeout   time.Duration

	// DelayMin and DelayMax bound the randomized pause taken before each
	// resolution. Both zero selects DefaultDelayMin and DefaultDelayMax.
	DelayMin time.Duration
	DelayMax time.Duration

	// NoDelay skips the pause entirely.
	NoDelay bool

	// HTTPClient overrides the transport, mostly for tests. It is copied, so
	// Timeout never leaks back into the caller's client.
	HTTPClient *http.Client
}

// Resolver turns a free-text place name into a Coordinate. It is safe for
// concurrent use.
type Resolver struct {
	client    *resty.Client
	searchURL string
	mapURL    string
	appID     string
	delayMin  time.Duration
	delayMax  time.Duration
	logger    *slog.Logger
}

// NewResolver creates a Resolver with browser-like headers and a fixed timeout.
func NewResolver(cfg Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SearchURL == "" {
		cfg.SearchURL = DefaultSearchURL
	}
	if cfg.MapURL == "" {
		cfg.MapURL = DefaultMapURL
	}
	if cfg.AppID == "" {
		cfg.AppID = DefaultAppID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	switch {
	case cfg.NoDelay:
		cfg.DelayMin, cfg.DelayMax = 0, 0
	case cfg.DelayMin == 0 && cfg.DelayMax == 0:
		cfg.DelayMin, cfg.DelayMax = DefaultDelayMin, DefaultDelayMax
	}

	client := resty.New()
	if cfg.HTTPClient != nil {
		hc := *cfg.HTTPClient
		client = resty.NewWithClient(&hc)
	}
	client.
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeaders(map[string]string{
			"User-Agent":      userAgent,
			"Accept":          "application/json, text/plain, */*",
			"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8",
			"Referer":         cfg.MapURL,
			"Origin":          originOf(cfg.MapURL),
		})

	return &Resolver{
		client:    client,
		searchURL: cfg.SearchURL,
		mapURL:    cfg.MapURL,
		appID:     cfg.AppID,
		delayMin:  cfg.DelayMin,
		delayMax:  cfg.DelayMax,
		logger:    logger.With("component", "geocode"),
	}
}

// Resolve looks name up with the structured place search and, when that yields
// nothing or fails, scans the map page for coordinates. It issues at most two
// requests and never retries; a miss is reported as ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, name string) (weather.Coordinate, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return weather.Coordinate{}, ErrEmptyQuery
	}

	if err := r.pause(ctx); err != nil {
		return weather.Coordinate{}, err
	}

	coord, err := r.searchPlaces(ctx, name)
	if err == nil {
		r.logger.Debug("resolved via place search", "query", name, "lat", coord.Latitude, "lon", coord.Longitude)
		return coord, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return weather.Coordinate{}, ctxErr
	}
	if !errors.Is(err, errNoResults) {
		r.logger.Warn("place search failed, trying map page", "query", name, "error", err)
	}

	coord, err = r.searchMapPage(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.logger.Info("location not found", "query", name)
		}
		return weather.Coordinate{}, err
	}
	r.logger.Debug("resolved via map page", "query", name, "lat", coord.Latitude, "lon", coord.Longitude)
	return coord, nil
}

type placesResponse struct {
	Value []struct {
		Geo *struct {
			Latitude  *float64 `json:"latitude"`
			Longitude *float64 `json:"longitude"`
		} `json:"geo"`
	} `json:"value"`
}

func (r *Resolver) searchPlaces(ctx context.Context, name string) (weather.Coordinate, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":                 name,
			"appid":             r.appID,
			"count":             "5",
			"structuredaddress": "true",
			"abbrtext":          "1",
		}).
		Get(r.searchURL)
	if err != nil {
		return weather.Coordinate{}, fmt.Errorf("%w: %v", weather.ErrNetwork, err)
	}
	if resp.IsError() {
		return weather.Coordinate{}, fmt.Errorf("%w: place search status %d", weather.ErrNetwork, resp.StatusCode())
	}

	var payload placesResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return weather.Coordinate{}, fmt.Errorf("%w: %v", weather.ErrMalformedResponse, err)
	}
	if len(payload.Value) == 0 {
		return weather.Coordinate{}, errNoResults
	}

	// The first-ranked result is authoritative.
	geo := payload.Value[0].Geo
	if geo == nil || geo.Latitude == nil || geo.Longitude == nil {
		return weather.Coordinate{}, errNoResults
	}
	coord, err := weather.NewCoordinate(*geo.Latitude, *geo.Longitude)
	if err != nil {
		return weather.Coordinate{}, errNoResults
	}
	return coord, nil
}

func (r *Resolver) searchMapPage(ctx context.Context, name string) (weather.Coordinate, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":    name,
			"FORM": "HDRSC4",
		}).
		Get(r.mapURL)
	if err != nil {
		return weather.Coordinate{}, fmt.Errorf("%w: %v", weather.ErrNetwork, err)
	}
	if resp.IsError() {
		r.logger.Debug("map page returned error status, scanning anyway", "status", resp.StatusCode())
	}

	coord, ok := ExtractCoordinate(resp.String())
	if !ok {
		return weather.Coordinate{}, ErrNotFound
	}
	return coord, nil
}

// pause sleeps a random duration in [delayMin, delayMax] as a courtesy to the
// upstream service.
func (r *Resolver) pause(ctx context.Context) error {
	d := r.delayMin
	if span := r.delayMax - r.delayMin; span > 0 {
		d += time.Duration(rand.Int63n(int64(span)))
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
