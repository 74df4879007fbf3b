// Package metrics exposes Prometheus collectors for the protocol engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"

	"github.com/AtDexters-Lab/sim-protocol/internal/protocol"
	"github.com/AtDexters-Lab/sim-protocol/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sim"

type Metrics struct {
	sessionsActive  prometheus.Gauge
	sessionsClosed  *prometheus.CounterVec
	commandsTotal   *prometheus.CounterVec
	commandsDropped *prometheus.CounterVec
	eventsTotal     *prometheus.CounterVec
	eventsDiscarded prometheus.Counter
	applyDuration   prometheus.Histogram
}

// New registers the collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of sessions currently open",
		}),
		sessionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "closed_total",
			Help:      "Sessions closed, by closing cause class",
		}, []string{"cause"}),
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_applied_total",
			Help:      "Commands applied to the simulation model",
		}, []string{"type"}),
		commandsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_dropped_total",
			Help:      "Commands dropped because their payload failed validation",
		}, []string{"type"}),
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_written_total",
			Help:      "Events written to the stream",
		}, []string{"type"}),
		eventsDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_discarded_total",
			Help:      "Queued events discarded when a session closed",
		}),
		applyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_apply_seconds",
			Help:      "Time spent handing one Command to the simulation model",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),
	}
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionClosed(cause error) {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
	m.sessionsClosed.WithLabelValues(CauseLabel(cause)).Inc()
}

func (m *Metrics) CommandApplied(typ protocol.CommandType, seconds float64) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(string(typ)).Inc()
	m.applyDuration.Observe(seconds)
}

func (m *Metrics) CommandDropped(typ protocol.CommandType) {
	if m == nil {
		return
	}
	m.commandsDropped.WithLabelValues(string(typ)).Inc()
}

func (m *Metrics) EventWritten(typ protocol.EventType) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(string(typ)).Inc()
}

func (m *Metrics) EventsDiscarded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsDiscarded.Add(float64(n))
}

// CauseLabel maps a closing cause onto a bounded label value.
func CauseLabel(cause error) string {
	switch {
	case cause == nil:
		return "none"
	case errors.Is(cause, session.ErrStreamClosed):
		return "eof"
	case errors.Is(cause, session.ErrTerminated):
		return "terminated"
	case errors.Is(cause, session.ErrLocalClose):
		return "local"
	case errors.Is(cause, protocol.ErrFraming):
		return "framing"
	case errors.Is(cause, protocol.ErrSchema):
		return "schema"
	case errors.Is(cause, protocol.ErrEncoding):
		return "encoding"
	case errors.Is(cause, protocol.ErrTransport):
		return "transport"
	default:
		return "other"
	}
}
