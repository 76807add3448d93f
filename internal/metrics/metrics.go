package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	daemonStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sttray",
			Subsystem: "daemon",
			Name:      "starts_total",
			Help:      "Number of successful daemon starts.",
		},
	)
	daemonStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sttray",
			Subsystem: "daemon",
			Name:      "stops_total",
			Help:      "Number of forced terminations, by operation (stop or shutdown).",
		}, []string{"op"},
	)
	daemonFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sttray",
			Subsystem: "daemon",
			Name:      "failures_total",
			Help:      "Number of failed operations, by operation.",
		}, []string{"op"},
	)
	daemonRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sttray",
			Subsystem: "daemon",
			Name:      "running",
			Help:      "1 while a daemon handle is held, 0 otherwise.",
		},
	)
	daemonRSS = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sttray",
			Subsystem: "daemon",
			Name:      "memory_rss_bytes",
			Help:      "Resident memory of the daemon at the last info probe.",
		},
	)
	eventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sttray",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Broadcast events dropped for slow subscribers.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{daemonStarts, daemonStops, daemonFailures, daemonRunning, daemonRSS, eventsDropped}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves metrics from g, or from the default gatherer when g is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart() {
	if regOK.Load() {
		daemonStarts.Inc()
		daemonRunning.Set(1)
	}
}

func IncStop(op string) {
	if regOK.Load() {
		daemonStops.WithLabelValues(op).Inc()
		daemonRunning.Set(0)
		daemonRSS.Set(0)
	}
}

func IncFailure(op string) {
	if regOK.Load() {
		daemonFailures.WithLabelValues(op).Inc()
	}
}

// SetRunning forces the running gauge, used when a failed stop still clears the handle.
func SetRunning(running bool) {
	if regOK.Load() {
		v := 0.0
		if running {
			v = 1
		}
		daemonRunning.Set(v)
	}
}

func SetMemoryRSS(bytes uint64) {
	if regOK.Load() {
		daemonRSS.Set(float64(bytes))
	}
}

func IncEventDropped() {
	if regOK.Load() {
		eventsDropped.Inc()
	}
}
