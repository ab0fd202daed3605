package weather

import (
	"fmt"
	"time"
)

// Sentinel values used when the tile document does not carry a field.
const (
	UnknownLocation    = "未知位置"
	UnknownTemperature = "--℃"
	UnknownDescription = "--"
)

// Coordinate is a point on the globe in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewCoordinate returns a Coordinate after checking both axes are in range.
func NewCoordinate(lat, lon float64) (Coordinate, error) {
	c := Coordinate{Latitude: lat, Longitude: lon}
	if !c.Valid() {
		return Coordinate{}, fmt.Errorf("coordinate out of range: %f,%f", lat, lon)
	}
	return c, nil
}

// Valid reports whether latitude is in [-90,90] and longitude in [-180,180].
func (c Coordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// Key returns a canonical string key for indexing this coordinate in stores.
func (c Coordinate) Key() string {
	return fmt.Sprintf("%.4f,%.4f", c.Latitude, c.Longitude)
}

func (c Coordinate) String() string {
	return c.Key()
}

// Snapshot is the normalized weather view extracted from one tile document.
// TemperatureText and Description may hold the Unknown* sentinels.
type Snapshot struct {
	LocationName    string `json:"locationName"`
	TemperatureText string `json:"temperature"`
	Description     string `json:"description"`
	IconURL         string `json:"iconUrl,omitempty"`
}

// Outcome is the result of one refresh cycle: either a snapshot or a failure reason.
type Outcome struct {
	CycleID    string     `json:"cycleId"`
	Coordinate Coordinate `json:"coordinate"`
	Timestamp  time.Time  `json:"timestamp"` // always UTC
	Snapshot   *Snapshot  `json:"snapshot,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

// Success builds a successful Outcome.
func Success(cycleID string, coord Coordinate, at time.Time, snap Snapshot) Outcome {
	return Outcome{
		CycleID:    cycleID,
		Coordinate: coord,
		Timestamp:  at.UTC(),
		Snapshot:   &snap,
	}
}

// Failure builds a failed Outcome carrying the error text as its reason.
func Failure(cycleID string, coord Coordinate, at time.Time, err error) Outcome {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	return Outcome{
		CycleID:    cycleID,
		Coordinate: coord,
		Timestamp:  at.UTC(),
		Reason:     reason,
	}
}

// OK reports whether the outcome carries a snapshot.
func (o Outcome) OK() bool {
	return o.Snapshot != nil
}
