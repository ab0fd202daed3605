package weather

import (
	"context"
	"time"
)

// Provider abstracts a tile document source (e.g. the MSN LiveTile endpoint).
type Provider interface {
	Name() string
	FetchDocument(ctx context.Context, coord Coordinate) (*TileDocument, error)
}

// Store is the contract the in-memory store (and the SQLite store) must satisfy.
type Store interface {
	SaveOutcome(outcome Outcome) error
	GetLatest() (Outcome, error)
	GetRange(from, to time.Time) ([]Outcome, error)
}
