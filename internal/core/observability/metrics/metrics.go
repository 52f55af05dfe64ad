// Package metrics exposes the engine's Prometheus instruments.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zeusync/skygraph/internal/core/events/bus"
)

const namespace = "skygraph"

// Metrics groups every instrument. Each instance owns its registry so tests
// and embedded engines do not collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	frames        prometheus.Counter
	frameDuration prometheus.Histogram
	skippedNodes  prometheus.Counter
	nodes         prometheus.Gauge
	simTime       prometheus.Gauge

	feedClients prometheus.Gauge
	feedFrames  *prometheus.CounterVec
	feedDropped prometheus.Counter

	busEvents *prometheus.CounterVec
	busErrors prometheus.Counter
}

// New registers the instruments on reg, or on a fresh registry when reg is nil.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		frames: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Number of scene graph traversals.",
		}),
		frameDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_duration_seconds",
			Help:      "Duration of one traversal including snapshot and publish.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
		}),
		skippedNodes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_nodes_total",
			Help:      "Nodes whose local transform could not be computed and kept the previous one.",
		}),
		nodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes",
			Help:      "Attached nodes visited by the last traversal.",
		}),
		simTime: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "simulation_time_seconds",
			Help:      "Simulation instant of the last traversal as unix seconds.",
		}),
		feedClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "clients",
			Help:      "Connected renderer feed clients.",
		}),
		feedFrames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "frames_total",
			Help:      "Frames queued to feed clients by type.",
		}, []string{"type"}),
		feedDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "dropped_frames_total",
			Help:      "Frames dropped because a client queue was full.",
		}),
		busEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "events_total",
			Help:      "Events published on the bus by type.",
		}, []string{"type"}),
		busErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "handler_errors_total",
			Help:      "Publishes where at least one handler failed.",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveFrame records one traversal.
func (m *Metrics) ObserveFrame(d time.Duration, instant time.Time, visited, skipped int) {
	m.frames.Inc()
	m.frameDuration.Observe(d.Seconds())
	m.nodes.Set(float64(visited))
	m.skippedNodes.Add(float64(skipped))
	m.simTime.Set(float64(instant.UnixNano()) / 1e9)
}

func (m *Metrics) ClientConnected()    { m.feedClients.Inc() }
func (m *Metrics) ClientDisconnected() { m.feedClients.Dec() }

// FrameSent counts a queued feed frame; kind is "full" or "delta".
func (m *Metrics) FrameSent(kind string) { m.feedFrames.WithLabelValues(kind).Inc() }

func (m *Metrics) FrameDropped() { m.feedDropped.Inc() }

// BusObserver returns an observer feeding the bus counters.
func (m *Metrics) BusObserver() bus.EventBusObserver { return busObserver{m} }

type busObserver struct{ m *Metrics }

func (o busObserver) OnPublish(_, eventType string, _ bus.Event) {
	o.m.busEvents.WithLabelValues(eventType).Inc()
}

func (o busObserver) OnDelivered(_, _ string, _ int, err error, _ time.Duration) {
	if err != nil {
		o.m.busErrors.Inc()
	}
}
