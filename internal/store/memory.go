package store

import (
	"errors"
	"sync"
	"time"

	"github.com/i474232898/weather-tile-refresh/internal/weather"
)

var (
	// ErrNotFound is returned when no outcome matches the request.
	ErrNotFound = errors.New("no refresh outcomes recorded")
)

// Retention bounds how much history a store keeps. Zero values mean unlimited.
type Retention struct {
	MaxHistory int           // max number of outcomes kept
	MaxAge     time.Duration // max age of an outcome
}

// MemoryStore is a concurrency-safe in-memory history of refresh outcomes,
// ordered by cycle completion.
type MemoryStore struct {
	mu sync.RWMutex

	outcomes []weather.Outcome

	retention Retention
	now       func() time.Time
}

// NewMemoryStore creates a new MemoryStore with the given retention.
func NewMemoryStore(retention Retention) *MemoryStore {
	return &MemoryStore{
		retention: retention,
		now:       time.Now,
	}
}

// SaveOutcome appends an outcome and enforces retention.
func (s *MemoryStore) SaveOutcome(outcome weather.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcomes = append(s.outcomes, outcome)
	s.pruneLocked(s.now())
	return nil
}

// GetLatest returns the most recent outcome.
func (s *MemoryStore) GetLatest() (weather.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.outcomes) == 0 {
		return weather.Outcome{}, ErrNotFound
	}
	return s.outcomes[len(s.outcomes)-1], nil
}

// GetRange returns all outcomes between from and to (inclusive).
func (s *MemoryStore) GetRange(from, to time.Time) ([]weather.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []weather.Outcome
	for _, o := range s.outcomes {
		if !o.Timestamp.Before(from) && !o.Timestamp.After(to) {
			result = append(result, o)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}

// Prune drops outcomes outside the retention window and reports how many
// were removed.
func (s *MemoryStore) Prune(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pruneLocked(now), nil
}

// Len returns the number of stored outcomes.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.outcomes)
}

func (s *MemoryStore) pruneLocked(now time.Time) int {
	before := len(s.outcomes)

	// Enforce retention by count.
	if s.retention.MaxHistory > 0 && len(s.outcomes) > s.retention.MaxHistory {
		over := len(s.outcomes) - s.retention.MaxHistory
		s.outcomes = append(s.outcomes[:0:0], s.outcomes[over:]...)
	}

	// Enforce retention by age.
	if s.retention.MaxAge > 0 {
		cutoff := now.Add(-s.retention.MaxAge)
		i := 0
		for ; i < len(s.outcomes); i++ {
			if !s.outcomes[i].Timestamp.Before(cutoff) {
				break
			}
		}
		if i > 0 {
			s.outcomes = append(s.outcomes[:0:0], s.outcomes[i:]...)
		}
	}

	return before - len(s.outcomes)
}
