package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for booking and availability
// flows.
type SchedulingMetrics struct {
	appointmentsTotal   *prometheus.CounterVec
	conflictRechecks    prometheus.Counter
	availabilityLatency prometheus.Histogram
	availabilitySlots   prometheus.Histogram
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		appointmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduler",
			Subsystem: "appointments",
			Name:      "operations_total",
			Help:      "Total appointment lifecycle operations",
		}, []string{"action", "outcome"}),
		conflictRechecks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scheduler",
			Subsystem: "appointments",
			Name:      "conflict_rechecks_total",
			Help:      "Conflict re-checks triggered by storage exclusion violations",
		}),
		availabilityLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scheduler",
			Subsystem: "availability",
			Name:      "search_seconds",
			Help:      "Latency of availability slot searches",
			Buckets:   prometheus.DefBuckets,
		}),
		availabilitySlots: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scheduler",
			Subsystem: "availability",
			Name:      "slots_returned",
			Help:      "Number of slots returned per availability search",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.appointmentsTotal, m.conflictRechecks, m.availabilityLatency, m.availabilitySlots)
	return m
}

// ObserveBooking records one lifecycle operation outcome, e.g. ("create",
// "conflict").
func (m *SchedulingMetrics) ObserveBooking(action, outcome string) {
	if m == nil {
		return
	}
	m.appointmentsTotal.WithLabelValues(action, outcome).Inc()
}

// ObserveConflictRecheck counts a post-violation re-check.
func (m *SchedulingMetrics) ObserveConflictRecheck() {
	if m == nil {
		return
	}
	m.conflictRechecks.Inc()
}

// ObserveAvailabilitySearch records one slot search.
func (m *SchedulingMetrics) ObserveAvailabilitySearch(seconds float64, slots int) {
	if m == nil {
		return
	}
	m.availabilityLatency.Observe(seconds)
	m.availabilitySlots.Observe(float64(slots))
}
