package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for booking, approval, joins and sweeps.
type SchedulingMetrics struct {
	bookingsTotal      *prometheus.CounterVec
	transitionsTotal   *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	joinDecisions      *prometheus.CounterVec
	sweepDeleted       prometheus.Counter
	sweepFailures      prometheus.Counter
	sweepDuration      prometheus.Histogram
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemed",
			Subsystem: "booking",
			Name:      "requests_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemed",
			Subsystem: "appointment",
			Name:      "transitions_total",
			Help:      "Appointment status transitions by target status and outcome",
		}, []string{"to", "outcome"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemed",
			Subsystem: "notify",
			Name:      "session_invites_total",
			Help:      "Session invite dispatch attempts",
		}, []string{"status"}),
		joinDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemed",
			Subsystem: "session",
			Name:      "join_decisions_total",
			Help:      "Session gate decisions",
		}, []string{"allowed"}),
		sweepDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telemed",
			Subsystem: "retention",
			Name:      "deleted_total",
			Help:      "Appointments purged by the retention sweeper",
		}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telemed",
			Subsystem: "retention",
			Name:      "delete_failures_total",
			Help:      "Appointments the retention sweeper failed to purge",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "telemed",
			Subsystem: "retention",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of retention sweeps",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.bookingsTotal,
		m.transitionsTotal,
		m.notificationsTotal,
		m.joinDecisions,
		m.sweepDeleted,
		m.sweepFailures,
		m.sweepDuration,
	)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveTransition(to, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(to, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveNotification(delivered bool) {
	if m == nil {
		return
	}
	status := "delivered"
	if !delivered {
		status = "failed"
	}
	m.notificationsTotal.WithLabelValues(status).Inc()
}

func (m *SchedulingMetrics) ObserveJoin(allowed bool) {
	if m == nil {
		return
	}
	label := "false"
	if allowed {
		label = "true"
	}
	m.joinDecisions.WithLabelValues(label).Inc()
}

func (m *SchedulingMetrics) ObserveSweep(deleted, failed int, seconds float64) {
	if m == nil {
		return
	}
	m.sweepDeleted.Add(float64(deleted))
	m.sweepFailures.Add(float64(failed))
	m.sweepDuration.Observe(seconds)
}
