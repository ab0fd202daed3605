package main

import (
	"log/slog"

	"github.com/i474232898/weather-tile-refresh/internal/scheduler"
	"github.com/i474232898/weather-tile-refresh/internal/weather"
)

// outcomePublisher is satisfied by *publish.MQTTPublisher.
type outcomePublisher interface {
	Publish(o weather.Outcome) error
}

// newObserver fans each outcome out to the log, the store and, when
// configured, the broker. It runs on the scheduler's worker, in that order.
func newObserver(history weather.Store, pub outcomePublisher, logg *slog.Logger) scheduler.Observer {
	return func(o weather.Outcome) {
		if o.OK() {
			logg.Info("weather updated",
				"cycleId", o.CycleID,
				"location", o.Snapshot.LocationName,
				"temperature", o.Snapshot.TemperatureText,
				"description", o.Snapshot.Description,
			)
		} else {
			logg.Warn("weather refresh failed", "cycleId", o.CycleID, "reason", o.Reason)
		}

		if err := history.SaveOutcome(o); err != nil {
			logg.Error("failed to store outcome", "cycleId", o.CycleID, "error", err)
		}

		if pub == nil {
			return
		}
		if err := pub.Publish(o); err != nil {
			logg.Warn("failed to publish outcome", "cycleId", o.CycleID, "error", err)
		}
	}
}
