package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"APP_ENV", "LOG_LEVEL", "PORT", "HTTP_TIMEOUT",
	"WEATHER_LAT", "WEATHER_LON", "WEATHER_LOCATION",
	"REFRESH_INTERVAL_SECONDS", "CYCLE_TIMEOUT",
	"TILE_BASE_URL", "TILE_LOCALE", "TILE_API_KEY", "TILE_MAX_RETRIES",
	"GEOCODE_SEARCH_URL", "GEOCODE_MAP_URL", "GEOCODE_APP_ID", "GEOCODE_DELAY_MIN", "GEOCODE_DELAY_MAX",
	"STORE_DRIVER", "SQLITE_PATH", "STORE_MAX_HISTORY", "STORE_MAX_AGE", "STORE_PRUNE_INTERVAL",
	"MQTT_BROKER", "MQTT_PORT", "MQTT_CLIENT_ID", "MQTT_TOPIC",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	require.Equal(t, "dev", cfg.AppEnv)
	require.Equal(t, slog.LevelInfo, cfg.LogLevel)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	require.Equal(t, 39.9042, cfg.Latitude)
	require.Equal(t, 116.4074, cfg.Longitude)
	require.Equal(t, 600*time.Second, cfg.RefreshInterval)
	require.Equal(t, 30*time.Second, cfg.CycleTimeout)
	require.Equal(t, "zh-CN", cfg.TileLocale)
	require.Equal(t, 2, cfg.TileMaxRetries)
	require.Equal(t, 500*time.Millisecond, cfg.GeocodeDelayMin)
	require.Equal(t, 1500*time.Millisecond, cfg.GeocodeDelayMax)
	require.Equal(t, "memory", cfg.StoreDriver)
	require.Equal(t, 144, cfg.StoreMaxHistory)
	require.Equal(t, 24*time.Hour, cfg.StoreMaxAge)
	require.Equal(t, 10*time.Minute, cfg.StorePruneInterval)
	require.False(t, cfg.MQTTEnabled())
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("LOG_LEVEL", "WARN")
	t.Setenv("WEATHER_LAT", "31.2304")
	t.Setenv("WEATHER_LON", "121.4737")
	t.Setenv("WEATHER_LOCATION", "上海")
	t.Setenv("REFRESH_INTERVAL_SECONDS", "120")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/weather.db")
	t.Setenv("MQTT_BROKER", "localhost")

	cfg, err := FromEnv()
	require.NoError(t, err)

	require.Equal(t, slog.LevelWarn, cfg.LogLevel)
	require.Equal(t, 31.2304, cfg.Latitude)
	require.Equal(t, 121.4737, cfg.Longitude)
	require.Equal(t, "上海", cfg.WeatherLocation)
	require.Equal(t, 2*time.Minute, cfg.RefreshInterval)
	require.Equal(t, "sqlite", cfg.StoreDriver)
	require.True(t, cfg.MQTTEnabled())
	require.Equal(t, "weather/tile", cfg.MQTTTopic)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown app env", env: map[string]string{"APP_ENV": "staging"}},
		{name: "unknown log level", env: map[string]string{"LOG_LEVEL": "verbose"}},
		{name: "latitude out of range", env: map[string]string{"WEATHER_LAT": "91"}},
		{name: "longitude not a number", env: map[string]string{"WEATHER_LON": "east"}},
		{name: "interval below one second", env: map[string]string{"REFRESH_INTERVAL_SECONDS": "0"}},
		{name: "bad duration", env: map[string]string{"STORE_MAX_AGE": "forever"}},
		{name: "delay window inverted", env: map[string]string{"GEOCODE_DELAY_MIN": "2s", "GEOCODE_DELAY_MAX": "1s"}},
		{name: "sqlite without path", env: map[string]string{"STORE_DRIVER": "sqlite"}},
		{name: "unknown store driver", env: map[string]string{"STORE_DRIVER": "redis"}},
		{name: "mqtt port out of range", env: map[string]string{"MQTT_PORT": "70000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			require.Error(t, err)
		})
	}
}
