package metrics

import "github.com/prometheus/client_golang/prometheus"

// DialogMetrics exposes counters/histograms for dialogue turns, bookings and
// calls to external collaborators.
type DialogMetrics struct {
	turnsTotal     *prometheus.CounterVec
	bookingsTotal  *prometheus.CounterVec
	fallbacksTotal *prometheus.CounterVec
	externalCall   *prometheus.HistogramVec
}

func NewDialogMetrics(reg prometheus.Registerer) *DialogMetrics {
	m := &DialogMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cliniccall",
			Subsystem: "dialog",
			Name:      "turns_total",
			Help:      "Dialogue turns by the branch that produced the reply",
		}, []string{"branch"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cliniccall",
			Subsystem: "booking",
			Name:      "outcomes_total",
			Help:      "Booking attempts by operation and outcome",
		}, []string{"operation", "outcome"}),
		fallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cliniccall",
			Subsystem: "external",
			Name:      "fallbacks_total",
			Help:      "External collaborator calls replaced by local fallback logic",
		}, []string{"collaborator", "reason"}),
		externalCall: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cliniccall",
			Subsystem: "external",
			Name:      "call_seconds",
			Help:      "Latency of external collaborator calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collaborator"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.bookingsTotal, m.fallbacksTotal, m.externalCall)
	return m
}

func (m *DialogMetrics) ObserveTurn(branch string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(branch).Inc()
}

func (m *DialogMetrics) ObserveBooking(operation, outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *DialogMetrics) ObserveFallback(collaborator, reason string) {
	if m == nil {
		return
	}
	m.fallbacksTotal.WithLabelValues(collaborator, reason).Inc()
}

func (m *DialogMetrics) ObserveExternalCall(collaborator string, seconds float64) {
	if m == nil {
		return
	}
	m.externalCall.WithLabelValues(collaborator).Observe(seconds)
}
