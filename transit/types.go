package transit

import (
	"context"
	"time"
)

// Prediction is one upcoming arrival at a stop, normalized from whatever
// source produced it. Instances are created fresh on every fetch and never
// mutated afterwards.
type Prediction struct {
	StopID      string
	TripID      string
	RouteID     string
	Headsign    string
	DirectionID *int
	Arrival     time.Time
	ETASeconds  int64
}

// Source supplies upcoming arrivals for a stop, soonest first, at most
// limit entries. Every returned prediction carries a strictly positive ETA;
// a vehicle already at or past the stop is not reported. A transport or
// decode failure fails the whole fetch; callers treat that as "no
// predictions this cycle", not as fatal.
type Source interface {
	Predictions(ctx context.Context, stopID string, limit int) ([]Prediction, error)
}

// Stop is a transit stop as returned by the stop lookup endpoints.
type Stop struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Municipality string  `json:"municipality,omitempty"`
}
