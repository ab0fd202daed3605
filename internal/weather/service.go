package weather

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Service performs one fetch-and-parse pass against a tile provider.
type Service struct {
	provider Provider
	logger   *slog.Logger
}

// NewService creates a new Service.
func NewService(provider Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider: provider,
		logger:   logger,
	}
}

// Fetch retrieves the tile document for coord and parses it into a Snapshot.
// Errors are ErrNetwork or ErrMalformedResponse; a sparse document is not an error.
func (s *Service) Fetch(ctx context.Context, coord Coordinate) (Snapshot, error) {
	if s.provider == nil {
		return Snapshot{}, fmt.Errorf("no tile provider configured")
	}

	start := time.Now()
	doc, err := s.provider.FetchDocument(ctx, coord)
	if err != nil {
		s.logger.Warn("tile fetch failed",
			"provider", s.provider.Name(),
			"lat", coord.Latitude,
			"lon", coord.Longitude,
			"error", err,
		)
		return Snapshot{}, err
	}

	snap := ParseDocument(doc)
	s.logger.Debug("tile parsed",
		"provider", s.provider.Name(),
		"location", snap.LocationName,
		"temperature", snap.TemperatureText,
		"elapsed", time.Since(start),
	)
	return snap, nil
}
