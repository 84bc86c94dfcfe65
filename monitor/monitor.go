package monitor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/stem-connect/keyroute/alert"
	"github.com/stem-connect/keyroute/device"
	"github.com/stem-connect/keyroute/eventlog"
	"github.com/stem-connect/keyroute/metrics"
	"github.com/stem-connect/keyroute/transit"
	"github.com/stem-connect/keyroute/utils"
)

// Status is the cached outcome of the most recent poll cycle, served by
// the status endpoint. ETA fields are nil while the side has no usable
// prediction.
type Status struct {
	OriginStop  string `json:"origin_stop"`
	DestStop    string `json:"dest_stop"`
	OriginSecs  *int64 `json:"origin_secs"`
	DestSecs    *int64 `json:"dest_secs"`
	TripID      string `json:"trip_id,omitempty"`
	OriginAlert string `json:"origin_alert"`
	DestAlert   string `json:"dest_alert"`
	LastUpdated string `json:"last_updated,omitempty"`
}

// Options configures a Monitor. Zero values fall back to a 30s poll
// interval and a prediction limit of 5.
type Options struct {
	OriginStop       string
	DestStop         string
	OriginThresholds alert.Thresholds
	DestThresholds   alert.Thresholds
	PollInterval     time.Duration
	PredictionLimit  int
	Heartbeat        bool
}

// Monitor owns the poll loop that keeps the device aligned with upstream
// predictions.
type Monitor struct {
	source     transit.Source
	dispatcher *alert.Dispatcher
	elog       *eventlog.Log

	originTh  alert.Thresholds
	destTh    alert.Thresholds
	interval  time.Duration
	limit     int
	heartbeat bool
	now       func() time.Time

	mu     sync.RWMutex
	origin string
	dest   string
	status Status
}

func NewMonitor(source transit.Source, dispatcher *alert.Dispatcher, elog *eventlog.Log, opts Options) *Monitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.PredictionLimit <= 0 {
		opts.PredictionLimit = 5
	}
	if elog == nil {
		elog = eventlog.New(1)
	}
	return &Monitor{
		source:     source,
		dispatcher: dispatcher,
		elog:       elog,
		originTh:   opts.OriginThresholds,
		destTh:     opts.DestThresholds,
		interval:   opts.PollInterval,
		limit:      opts.PredictionLimit,
		heartbeat:  opts.Heartbeat,
		now:        time.Now,
		origin:     opts.OriginStop,
		dest:       opts.DestStop,
		status: Status{
			OriginStop:  opts.OriginStop,
			DestStop:    opts.DestStop,
			OriginAlert: alert.LevelIdle.String(),
			DestAlert:   alert.LevelIdle.String(),
		},
	}
}

// Run polls at the configured interval until ctx is cancelled. The first
// cycle fires immediately.
func (m *Monitor) Run(ctx context.Context) {
	origin, dest := m.Stops()
	log.Printf("monitor started: origin=%s dest=%s interval=%s", origin, dest, m.interval)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("monitor stopped")
			return
		case <-ticker.C:
			m.Cycle(ctx)
		}
	}
}

// Cycle performs one fetch-classify-dispatch pass. A fetch failure on one
// side leaves that side without a prediction but never blocks the other.
func (m *Monitor) Cycle(ctx context.Context) {
	started := m.now()
	origin, dest := m.Stops()

	originPreds := m.fetch(ctx, device.SideOrigin, origin)
	destPreds := m.fetch(ctx, device.SideDest, dest)

	match := transit.Correlate(originPreds, destPreds)
	originLevel := m.originTh.Classify(match.OriginETA)
	destLevel := m.destTh.Classify(match.DestETA)

	m.dispatcher.Dispatch(device.SideOrigin, originLevel)
	m.dispatcher.Dispatch(device.SideDest, destLevel)
	m.dispatcher.Orient(match.OriginETA, match.DestETA)
	if m.heartbeat && (match.OriginETA != nil || match.DestETA != nil) {
		m.dispatcher.Heartbeat()
	}

	m.mu.Lock()
	m.status = Status{
		OriginStop:  origin,
		DestStop:    dest,
		OriginSecs:  match.OriginETA,
		DestSecs:    match.DestETA,
		TripID:      match.TripID,
		OriginAlert: originLevel.String(),
		DestAlert:   destLevel.String(),
		LastUpdated: utils.Iso8601FromTime(m.now()),
	}
	m.mu.Unlock()

	metrics.ObservePollCycle(m.now().Sub(started))
}

func (m *Monitor) fetch(ctx context.Context, side device.Side, stopID string) []transit.Prediction {
	started := m.now()
	preds, err := m.source.Predictions(ctx, stopID, m.limit)
	if err != nil {
		metrics.ObserveFetch(side.String(), metrics.ResultError, m.now().Sub(started))
		log.Printf("prediction fetch for %s stop %s failed: %v", side, stopID, err)
		m.elog.Append(eventlog.KindPollError, fmt.Sprintf("%s %s: %v", side, stopID, err))
		return nil
	}
	metrics.ObserveFetch(side.String(), metrics.ResultOK, m.now().Sub(started))
	return preds
}

// Stops returns the currently watched origin and destination stop ids.
func (m *Monitor) Stops() (origin, dest string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.origin, m.dest
}

// SetStops re-points the watcher at a new stop pair. Alert tracking resets
// so the next cycle announces levels for the new stops from scratch.
func (m *Monitor) SetStops(origin, dest string) {
	m.mu.Lock()
	m.origin = origin
	m.dest = dest
	m.mu.Unlock()

	m.dispatcher.Reset()
	m.elog.Append(eventlog.KindConfig, fmt.Sprintf("stops changed: origin=%s dest=%s", origin, dest))
}

// Status returns the snapshot produced by the most recent cycle.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}
