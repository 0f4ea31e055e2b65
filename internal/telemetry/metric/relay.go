package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Frame directions.
const (
	DirectionToAgent  = "to_agent"
	DirectionToCaller = "to_caller"
)

// Relay holds the relay metrics. A nil *Relay records nothing.
type Relay struct {
	pairsActive     *prometheus.GaugeVec
	pairsTotal      *prometheus.CounterVec
	framesForwarded *prometheus.CounterVec
	framesDropped   *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	dialDuration    prometheus.Histogram
}

// NewRelay creates the relay metrics and registers them with reg.
func NewRelay(reg prometheus.Registerer) *Relay {
	m := &Relay{
		pairsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "relay",
			Name:      "pairs_active",
			Help:      "Relay pairs currently open",
		}, []string{"mode"}),
		pairsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "relay",
			Name:      "pairs_total",
			Help:      "Relay pairs started",
		}, []string{"mode"}),
		framesForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "relay",
			Name:      "frames_forwarded_total",
			Help:      "Frames forwarded between caller and agent",
		}, []string{"mode", "direction"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "relay",
			Name:      "frames_dropped_total",
			Help:      "Frames discarded by the relay",
		}, []string{"mode", "reason"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "relay",
			Name:      "rejections_total",
			Help:      "Relay connections refused before streaming",
		}, []string{"reason"}),
		dialDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "relay",
			Name:      "agent_dial_seconds",
			Help:      "Time to open and handshake an agent connection",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.pairsActive, m.pairsTotal, m.framesForwarded,
			m.framesDropped, m.rejections, m.dialDuration)
	}
	return m
}

// PairOpened records a new pair.
func (m *Relay) PairOpened(mode string) {
	if m == nil {
		return
	}
	m.pairsTotal.WithLabelValues(mode).Inc()
	m.pairsActive.WithLabelValues(mode).Inc()
}

// PairClosed records a closed pair.
func (m *Relay) PairClosed(mode string) {
	if m == nil {
		return
	}
	m.pairsActive.WithLabelValues(mode).Dec()
}

// Forwarded records one forwarded frame.
func (m *Relay) Forwarded(mode, direction string) {
	if m == nil {
		return
	}
	m.framesForwarded.WithLabelValues(mode, direction).Inc()
}

// Dropped records one discarded frame.
func (m *Relay) Dropped(mode, reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(mode, reason).Inc()
}

// Rejected records a refused connection. An empty reason is reported as
// "agent".
func (m *Relay) Rejected(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "agent"
	}
	m.rejections.WithLabelValues(reason).Inc()
}

// ObserveDial records the duration of an agent dial.
func (m *Relay) ObserveDial(d time.Duration) {
	if m == nil {
		return
	}
	m.dialDuration.Observe(d.Seconds())
}
