package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-tile-refresh/internal/weather"
)

const (
	DefaultLiveTileURL = "http://api.msn.com/weather/LiveTile/front"
	DefaultLocale      = "zh-CN"
)

// LiveTileConfig configures the LiveTile provider.
type LiveTileConfig struct {
	BaseURL    string
	Locale     string
	APIKey     string
	MaxRetries int
}

// LiveTileProvider implements weather.Provider for the MSN LiveTile endpoint.
type LiveTileProvider struct {
	name    string
	baseURL string
	locale  string
	apiKey  string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewLiveTileProvider(client *http.Client, cfg LiveTileConfig) *LiveTileProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultLiveTileURL
	}
	locale := cfg.Locale
	if locale == "" {
		locale = DefaultLocale
	}

	return &LiveTileProvider{
		name:    "livetile",
		baseURL: baseURL,
		locale:  locale,
		apiKey:  cfg.APIKey,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      cfg.MaxRetries,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: newCircuitBreaker("livetile"),
	}
}

func (p *LiveTileProvider) Name() string {
	return p.name
}

// FetchDocument downloads and decodes the tile for coord.
func (p *LiveTileProvider) FetchDocument(ctx context.Context, coord weather.Coordinate) (*weather.TileDocument, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("livetile api key is not configured")
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("locale", p.locale)
		values.Set("lat", strconv.FormatFloat(coord.Latitude, 'f', -1, 64))
		values.Set("lon", strconv.FormatFloat(coord.Longitude, 'f', -1, 64))
		values.Set("apiKey", p.apiKey)

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", weather.ErrNetwork, p.name, err)
	}
	defer resp.Body.Close()

	return weather.DecodeTile(resp.Body)
}
