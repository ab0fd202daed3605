package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-tile-refresh/internal/weather"
)

var (
	// ErrStopped is returned by Start once the scheduler has been stopped.
	ErrStopped = errors.New("scheduler stopped")

	ErrInvalidInterval = errors.New("refresh interval must be positive")

	ErrInvalidCoordinate = errors.New("coordinate out of range")
)

const defaultCycleTimeout = 30 * time.Second

// Fetcher performs the network part of a cycle. *weather.Service implements it.
type Fetcher interface {
	Fetch(ctx context.Context, coord weather.Coordinate) (weather.Snapshot, error)
}

// Observer receives exactly one Outcome per cycle, on the worker goroutine,
// strictly in cycle order. It must not call Stop.
type Observer func(weather.Outcome)

// State is a point-in-time copy of the scheduler's refresh state.
type State struct {
	Coordinate      weather.Coordinate `json:"coordinate"`
	Interval        time.Duration      `json:"interval"`
	Running         bool               `json:"running"`
	CycleInProgress bool               `json:"cycleInProgress"`
	Cycles          int64              `json:"cycles"`
}

// Scheduler periodically fetches the tile for a coordinate on a single
// background worker. Control methods are safe for concurrent use.
type Scheduler struct {
	fetcher      Fetcher
	observer     Observer
	logger       *slog.Logger
	cycleTimeout time.Duration

	mu              sync.Mutex
	coord           weather.Coordinate
	interval        time.Duration
	cycleInProgress bool
	started         bool
	stopped         bool

	running atomic.Bool
	cycles  atomic.Int64

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used for cycle diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCycleTimeout bounds a single fetch. Stop waits at most this long for an
// in-flight cycle.
func WithCycleTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.cycleTimeout = d
		}
	}
}

// New creates a stopped Scheduler.
func New(fetcher Fetcher, observer Observer, opts ...Option) *Scheduler {
	s := &Scheduler{
		fetcher:      fetcher,
		observer:     observer,
		logger:       slog.Default(),
		cycleTimeout: defaultCycleTimeout,
		wake:         make(chan struct{}, 1),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scheduler")
	return s
}

// Start begins refreshing coord every interval, running the first cycle
// immediately. Calling Start while running is a no-op.
func (s *Scheduler) Start(coord weather.Coordinate, interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	if !coord.Valid() {
		return ErrInvalidCoordinate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}

	s.started = true
	s.coord = coord
	s.interval = interval
	s.running.Store(true)
	// The first cycle is claimed here so a Stop racing the worker's
	// startup still waits for it.
	s.cycleInProgress = true

	s.logger.Info("scheduler started", "lat", coord.Latitude, "lon", coord.Longitude, "interval", interval)
	go s.loop(coord)
	return nil
}

// Stop ends the refresh loop and waits for an in-flight cycle to finish. No
// outcome is emitted after Stop returns. Safe to call repeatedly.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.stopped = true
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.running.Store(false)
	close(s.quit)
	s.mu.Unlock()

	<-s.done
	s.logger.Info("scheduler stopped", "cycles", s.cycles.Load())
}

// RequestImmediate abandons the current wait and runs a cycle as soon as the
// worker is free. Requests made before that cycle starts coalesce into it.
// No effect when stopped.
func (s *Scheduler) RequestImmediate() {
	if !s.running.Load() {
		return
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// SetCoordinate changes the coordinate used by the next cycle. It does not
// trigger a fetch on its own. Out-of-range coordinates are rejected.
func (s *Scheduler) SetCoordinate(coord weather.Coordinate) error {
	if !coord.Valid() {
		return ErrInvalidCoordinate
	}
	s.mu.Lock()
	s.coord = coord
	s.mu.Unlock()
	return nil
}

// SetInterval changes the wait used after the next completed cycle. A wait
// already in progress keeps the deadline latched when its cycle ended.
func (s *Scheduler) SetInterval(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidInterval
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
	return nil
}

// State returns a snapshot of the refresh state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Coordinate:      s.coord,
		Interval:        s.interval,
		Running:         s.running.Load(),
		CycleInProgress: s.cycleInProgress,
		Cycles:          s.cycles.Load(),
	}
}

func (s *Scheduler) loop(first weather.Coordinate) {
	defer close(s.done)

	interval := s.runCycle(first)
	for {
		timer := time.NewTimer(interval)
		select {
		case <-s.quit:
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
			s.logger.Debug("immediate refresh requested")
		case <-timer.C:
		}

		coord, ok := s.beginCycle()
		if !ok {
			return
		}
		interval = s.runCycle(coord)
	}
}

// beginCycle marks a cycle in progress and absorbs any immediate request
// that arrived before it. It reports false once the scheduler is stopping.
func (s *Scheduler) beginCycle() (weather.Coordinate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return weather.Coordinate{}, false
	}
	select {
	case <-s.wake:
	default:
	}
	s.cycleInProgress = true
	return s.coord, true
}

// runCycle fetches, emits one outcome and returns the interval to wait
// next, read in the same critical section that ends the cycle.
func (s *Scheduler) runCycle(coord weather.Coordinate) time.Duration {
	cycleID := uuid.NewString()
	n := s.cycles.Add(1)

	ctx, cancel := context.WithTimeout(context.Background(), s.cycleTimeout)
	defer cancel()

	var outcome weather.Outcome
	snap, err := s.fetcher.Fetch(ctx, coord)
	if err != nil {
		s.logger.Warn("refresh cycle failed", "cycleId", cycleID, "cycle", n, "error", err)
		outcome = weather.Failure(cycleID, coord, time.Now(), err)
	} else {
		s.logger.Info("refresh cycle completed",
			"cycleId", cycleID,
			"cycle", n,
			"location", snap.LocationName,
			"temperature", snap.TemperatureText,
		)
		outcome = weather.Success(cycleID, coord, time.Now(), snap)
	}

	if s.observer != nil {
		s.observer(outcome)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycleInProgress = false
	return s.interval
}
