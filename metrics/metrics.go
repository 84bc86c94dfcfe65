// Package metrics registers and records Prometheus instrumentation for the
// keyroute engine: prediction fetches, poll cycles, device command delivery
// and alert transitions.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "keyroute_"

	// ResultOK and ResultError label fetch outcomes.
	ResultOK    = "ok"
	ResultError = "error"

	// ModeHardware and ModeSimulated label how a command was delivered.
	ModeHardware  = "hardware"
	ModeSimulated = "simulated"
)

var (
	registerOnce sync.Once

	fetchTotal   *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec

	pollCycles       prometheus.Counter
	pollCycleLatency prometheus.Histogram

	deviceCommands  *prometheus.CounterVec
	deviceConnected prometheus.Gauge

	alertTransitions *prometheus.CounterVec

	streamClients prometheus.Gauge
)

// Init registers all engine metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		fetchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "prediction_fetch_total",
				Help: "Total prediction fetches by stop role and result",
			},
			[]string{"role", "result"},
		)
		fetchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "prediction_fetch_latency_seconds",
				Help:    "Prediction fetch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"role", "result"},
		)

		pollCycles = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "poll_cycles_total",
				Help: "Total completed poll cycles",
			},
		)
		pollCycleLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "poll_cycle_latency_seconds",
				Help:    "Poll cycle duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)

		deviceCommands = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "device_commands_total",
				Help: "Total device commands by delivery mode",
			},
			[]string{"mode"},
		)
		deviceConnected = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "device_connected",
				Help: "1 when a hardware serial link is open, 0 otherwise",
			},
		)

		alertTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_transitions_total",
				Help: "Total dispatched alert level changes by side and level",
			},
			[]string{"side", "level"},
		)

		streamClients = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "stream_clients",
				Help: "Connected websocket event stream clients",
			},
		)

		prometheus.MustRegister(
			fetchTotal,
			fetchLatency,
			pollCycles,
			pollCycleLatency,
			deviceCommands,
			deviceConnected,
			alertTransitions,
			streamClients,
		)
	})
}

// ObserveFetch records one prediction fetch for a stop role.
func ObserveFetch(role, result string, duration time.Duration) {
	if result == "" {
		result = ResultOK
	}
	if fetchTotal != nil {
		fetchTotal.WithLabelValues(role, result).Inc()
	}
	if fetchLatency != nil {
		fetchLatency.WithLabelValues(role, result).Observe(duration.Seconds())
	}
}

// ObservePollCycle records one completed poll cycle.
func ObservePollCycle(duration time.Duration) {
	if pollCycles != nil {
		pollCycles.Inc()
	}
	if pollCycleLatency != nil {
		pollCycleLatency.Observe(duration.Seconds())
	}
}

// IncDeviceCommand counts a delivered command by mode.
func IncDeviceCommand(mode string) {
	if deviceCommands != nil {
		deviceCommands.WithLabelValues(mode).Inc()
	}
}

// SetDeviceConnected reflects whether a hardware link is currently open.
func SetDeviceConnected(connected bool) {
	if deviceConnected == nil {
		return
	}
	if connected {
		deviceConnected.Set(1)
	} else {
		deviceConnected.Set(0)
	}
}

// IncAlertTransition counts a dispatched level change.
func IncAlertTransition(side, level string) {
	if alertTransitions != nil {
		alertTransitions.WithLabelValues(side, level).Inc()
	}
}

// AddStreamClients adjusts the connected websocket client gauge.
func AddStreamClients(delta int) {
	if streamClients != nil {
		streamClients.Add(float64(delta))
	}
}
