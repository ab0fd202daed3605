package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/weather-tile-refresh/internal/api/http"
	"github.com/i474232898/weather-tile-refresh/internal/config"
	"github.com/i474232898/weather-tile-refresh/internal/geocode"
	"github.com/i474232898/weather-tile-refresh/internal/logging"
	"github.com/i474232898/weather-tile-refresh/internal/publish"
	"github.com/i474232898/weather-tile-refresh/internal/scheduler"
	"github.com/i474232898/weather-tile-refresh/internal/store"
	"github.com/i474232898/weather-tile-refresh/internal/weather"
	"github.com/i474232898/weather-tile-refresh/internal/weather/providers"
)

const appName = "weather-tile"

var version = "dev"

// outcomeStore is what the composite observer and the API need from a store.
type outcomeStore interface {
	weather.Store
	store.Prunable
}

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logg := logging.New(cfg, version, appName)
	slog.SetDefault(logg)

	if cfg.TileAPIKey == "" {
		logg.Warn("TILE_API_KEY is not set; every refresh cycle will fail")
	}

	// Shared HTTP client for outbound calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Outcome history with configured retention.
	history, closeStore, err := openStore(cfg)
	if err != nil {
		logg.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	pruner := store.NewPruner(history, cfg.StorePruneInterval, logg)
	if err := pruner.Start(); err != nil {
		logg.Error("failed to start store pruner", "error", err)
		os.Exit(1)
	}
	defer pruner.Stop()

	// Optional MQTT sink.
	var sink outcomePublisher
	if cfg.MQTTEnabled() {
		publisher := publish.NewMQTTPublisher(publish.Config{
			Broker:   cfg.MQTTBroker,
			Port:     cfg.MQTTPort,
			ClientID: cfg.MQTTClientID,
			Topic:    cfg.MQTTTopic,
		}, logg)

		connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := publisher.Connect(connectCtx); err != nil {
			// Auto-reconnect keeps trying in the background.
			logg.Warn("mqtt broker not reachable yet", "broker", cfg.MQTTBroker, "error", err)
		}
		cancel()
		defer publisher.Disconnect()
		sink = publisher
	}

	// Tile provider with resilience (backoff + circuit breaker).
	provider := providers.NewLiveTileProvider(httpClient, providers.LiveTileConfig{
		BaseURL:    cfg.TileBaseURL,
		Locale:     cfg.TileLocale,
		APIKey:     cfg.TileAPIKey,
		MaxRetries: cfg.TileMaxRetries,
	})
	service := weather.NewService(provider, logg)

	resolver := geocode.NewResolver(geocode.Config{
		SearchURL:  cfg.GeocodeSearchURL,
		MapURL:     cfg.GeocodeMapURL,
		AppID:      cfg.GeocodeAppID,
		Timeout:    cfg.HTTPTimeout,
		DelayMin:   cfg.GeocodeDelayMin,
		DelayMax:   cfg.GeocodeDelayMax,
		NoDelay:    cfg.GeocodeDelayMax == 0,
		HTTPClient: httpClient,
	}, logg)

	start := startingCoordinate(cfg, resolver, logg)

	sched := scheduler.New(service, newObserver(history, sink, logg),
		scheduler.WithLogger(logg),
		scheduler.WithCycleTimeout(cfg.CycleTimeout),
	)
	if err := sched.Start(start, cfg.RefreshInterval); err != nil {
		logg.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": appName,
			"running": sched.State().Running,
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, httpapi.Deps{
		Scheduler:      sched,
		Geocoder:       resolver,
		Fetcher:        service,
		Store:          history,
		RequestTimeout: cfg.CycleTimeout,
	})

	// Start server with graceful shutdown
	go func() {
		logg.Info("http server listening", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			logg.Error("fiber server stopped", "error", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Error("error during shutdown", "error", err)
	}
}

func openStore(cfg *config.AppConfig) (outcomeStore, func(), error) {
	retention := store.Retention{
		MaxHistory: cfg.StoreMaxHistory,
		MaxAge:     cfg.StoreMaxAge,
	}

	if cfg.StoreDriver == "sqlite" {
		s, err := store.OpenSQLite(cfg.SQLitePath, retention)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				slog.Error("close sqlite store", "error", err)
			}
		}, nil
	}
	return store.NewMemoryStore(retention), func() {}, nil
}

// startingCoordinate resolves WEATHER_LOCATION when set, falling back to the
// configured latitude/longitude.
func startingCoordinate(cfg *config.AppConfig, resolver *geocode.Resolver, logg *slog.Logger) weather.Coordinate {
	fallback := weather.Coordinate{Latitude: cfg.Latitude, Longitude: cfg.Longitude}
	if cfg.WeatherLocation == "" {
		return fallback
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.HTTPTimeout+cfg.GeocodeDelayMax)
	defer cancel()

	coord, err := resolver.Resolve(ctx, cfg.WeatherLocation)
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, geocode.ErrNotFound) {
			level = slog.LevelWarn
		}
		logg.Log(ctx, level, "could not resolve WEATHER_LOCATION, using configured coordinate",
			"location", cfg.WeatherLocation,
			"lat", fallback.Latitude,
			"lon", fallback.Longitude,
			"error", err,
		)
		return fallback
	}

	logg.Info("resolved starting location", "location", cfg.WeatherLocation, "lat", coord.Latitude, "lon", coord.Longitude)
	return coord
}
