package store

import (
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Prunable is a store that can drop outcomes outside its retention window.
type Prunable interface {
	Prune(now time.Time) (int, error)
}

// Pruner periodically applies retention to a store in the background.
type Pruner struct {
	scheduler *gocron.Scheduler
	store     Prunable
	interval  time.Duration
	logger    *slog.Logger
}

// NewPruner creates a Pruner that runs every interval.
func NewPruner(store Prunable, interval time.Duration, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		scheduler: gocron.NewScheduler(time.UTC),
		store:     store,
		interval:  interval,
		logger:    logger.With("component", "pruner"),
	}
}

// Start schedules the prune job and starts the underlying scheduler. A
// non-positive interval disables pruning.
func (p *Pruner) Start() error {
	if p.interval <= 0 {
		p.logger.Info("store pruning disabled")
		return nil
	}

	_, err := p.scheduler.Every(p.interval).SingletonMode().WaitForSchedule().Do(p.RunOnce)
	if err != nil {
		return err
	}

	p.scheduler.StartAsync()
	return nil
}

// RunOnce prunes the store immediately.
func (p *Pruner) RunOnce() {
	removed, err := p.store.Prune(time.Now())
	if err != nil {
		p.logger.Error("store prune failed", "error", err)
		return
	}
	if removed > 0 {
		p.logger.Info("store pruned", "removed", removed)
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (p *Pruner) Stop() {
	if p.scheduler != nil {
		p.scheduler.Stop()
	}
}
