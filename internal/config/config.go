package config

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

type AppConfig struct {
	AppEnv   string     `validate:"oneof=dev prod"`
	LogLevel slog.Level `validate:"-"`
	Port     string     `validate:"required,numeric"`

	// HTTPTimeout bounds every outbound request.
	HTTPTimeout time.Duration `validate:"min=1s"`

	// Default coordinate; WeatherLocation, when set, is resolved at startup
	// and takes precedence.
	Latitude        float64 `validate:"gte=-90,lte=90"`
	Longitude       float64 `validate:"gte=-180,lte=180"`
	WeatherLocation string

	RefreshInterval time.Duration `validate:"min=1s"`
	CycleTimeout    time.Duration `validate:"min=1s"`

	TileBaseURL    string `validate:"required,url"`
	TileLocale     string `validate:"required"`
	TileAPIKey     string
	TileMaxRetries int `validate:"gte=0,lte=10"`

	GeocodeSearchURL string        `validate:"required,url"`
	GeocodeMapURL    string        `validate:"required,url"`
	GeocodeAppID     string        `validate:"required"`
	GeocodeDelayMin  time.Duration `validate:"gte=0"`
	GeocodeDelayMax  time.Duration `validate:"gtefield=GeocodeDelayMin"`

	// Outcome history.
	StoreDriver        string        `validate:"oneof=memory sqlite"`
	SQLitePath         string        `validate:"required_if=StoreDriver sqlite"`
	StoreMaxHistory    int           `validate:"gte=0"` // 0 = unlimited
	StoreMaxAge        time.Duration `validate:"gte=0"` // 0 = unlimited
	StorePruneInterval time.Duration `validate:"gte=0"` // 0 disables the background pruner

	// MQTT publishing is disabled when MQTTBroker is empty.
	MQTTBroker   string
	MQTTPort     int    `validate:"min=1,max=65535"`
	MQTTClientID string `validate:"required_with=MQTTBroker"`
	MQTTTopic    string `validate:"required_with=MQTTBroker"`
}

// MQTTEnabled reports whether outcomes should be published to a broker.
func (c *AppConfig) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	cfg.AppEnv = getenvDefault("APP_ENV", "dev")
	if cfg.LogLevel, err = parseLogLevel(getenvDefault("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}
	cfg.Port = getenvDefault("PORT", "8080")
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}

	if cfg.Latitude, err = getenvFloat("WEATHER_LAT", 39.9042); err != nil {
		return nil, err
	}
	if cfg.Longitude, err = getenvFloat("WEATHER_LON", 116.4074); err != nil {
		return nil, err
	}
	cfg.WeatherLocation = os.Getenv("WEATHER_LOCATION")

	// Refresh cadence in whole seconds: default 10 minutes.
	cfg.RefreshInterval = time.Duration(getenvInt("REFRESH_INTERVAL_SECONDS", 600)) * time.Second
	if cfg.CycleTimeout, err = getenvDuration("CYCLE_TIMEOUT", "30s"); err != nil {
		return nil, err
	}

	cfg.TileBaseURL = getenvDefault("TILE_BASE_URL", "http://api.msn.com/weather/LiveTile/front")
	cfg.TileLocale = getenvDefault("TILE_LOCALE", "zh-CN")
	cfg.TileAPIKey = os.Getenv("TILE_API_KEY")
	cfg.TileMaxRetries = getenvInt("TILE_MAX_RETRIES", 2)

	cfg.GeocodeSearchURL = getenvDefault("GEOCODE_SEARCH_URL", "https://cn.bing.com/api/v6/Places/AutoSuggest")
	cfg.GeocodeMapURL = getenvDefault("GEOCODE_MAP_URL", "https://cn.bing.com/maps")
	cfg.GeocodeAppID = getenvDefault("GEOCODE_APP_ID", "D41D8CD98F00B204E9800998ECF8427E1FBE79C2")
	if cfg.GeocodeDelayMin, err = getenvDuration("GEOCODE_DELAY_MIN", "500ms"); err != nil {
		return nil, err
	}
	if cfg.GeocodeDelayMax, err = getenvDuration("GEOCODE_DELAY_MAX", "1500ms"); err != nil {
		return nil, err
	}

	cfg.StoreDriver = strings.ToLower(getenvDefault("STORE_DRIVER", "memory"))
	cfg.SQLitePath = os.Getenv("SQLITE_PATH")
	// Roughly 24h at the default 10-minute cadence.
	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 144)
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", "24h"); err != nil {
		return nil, err
	}
	if cfg.StorePruneInterval, err = getenvDuration("STORE_PRUNE_INTERVAL", "10m"); err != nil {
		return nil, err
	}

	cfg.MQTTBroker = os.Getenv("MQTT_BROKER")
	cfg.MQTTPort = getenvInt("MQTT_PORT", 1883)
	cfg.MQTTClientID = getenvDefault("MQTT_CLIENT_ID", "weather-tile")
	cfg.MQTTTopic = getenvDefault("MQTT_TOPIC", "weather/tile")

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
