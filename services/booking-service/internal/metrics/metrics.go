// Package metrics holds the booking-service Prometheus collectors. A nil *Metrics is valid
// and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "booking"

type Metrics struct {
	// ReservationsTotal counts commit attempts by outcome.
	ReservationsTotal *prometheus.CounterVec

	// SlotConflictsTotal is the conflict rate health signal, split by entry point.
	SlotConflictsTotal *prometheus.CounterVec

	CommitDuration prometheus.Histogram

	AvailabilityQueriesTotal *prometheus.CounterVec

	AvailabilityDuration prometheus.Histogram

	TransitionsTotal *prometheus.CounterVec

	OutboxPublishedTotal prometheus.Counter

	OutboxFailuresTotal prometheus.Counter

	ConsumedEventsTotal *prometheus.CounterVec
}

// New registers the collectors on reg. Tests pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ReservationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Reservation commit attempts by outcome",
		}, []string{"kind", "outcome"}),

		SlotConflictsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_conflicts_total",
			Help:      "Commits rejected because the slot was taken since it was quoted",
		}, []string{"kind"}),

		CommitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_duration_seconds",
			Help:      "Time spent inside the per-staff commit transaction",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2},
		}),

		AvailabilityQueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_queries_total",
			Help:      "Availability queries by outcome",
		}, []string{"outcome"}),

		AvailabilityDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "availability_query_duration_seconds",
			Help:      "Availability query latency",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		}),

		TransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Appointment status transitions by target status and outcome",
		}, []string{"to", "outcome"}),

		OutboxPublishedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Outbox events delivered to Kafka",
		}),

		OutboxFailuresTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_publish_failures_total",
			Help:      "Outbox publish batches that failed",
		}),

		ConsumedEventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumed_events_total",
			Help:      "Kafka events handled by topic and outcome",
		}, []string{"topic", "outcome"}),
	}
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveReservation(kind, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.ReservationsTotal.WithLabelValues(kind, outcome).Inc()
	if outcome == OutcomeConflict {
		m.SlotConflictsTotal.WithLabelValues(kind).Inc()
	}
	m.CommitDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveAvailability(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.AvailabilityQueriesTotal.WithLabelValues(outcome).Inc()
	m.AvailabilityDuration.Observe(took.Seconds())
}

func (m *Metrics) ObserveTransition(to, outcome string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(to, outcome).Inc()
}

func (m *Metrics) ObserveOutbox(published int, failed bool) {
	if m == nil {
		return
	}
	m.OutboxPublishedTotal.Add(float64(published))
	if failed {
		m.OutboxFailuresTotal.Inc()
	}
}

func (m *Metrics) ObserveConsumed(topic, outcome string) {
	if m == nil {
		return
	}
	m.ConsumedEventsTotal.WithLabelValues(topic, outcome).Inc()
}

// Outcome labels shared by the counters.
const (
	OutcomeOK          = "ok"
	OutcomeReplayed    = "replayed"
	OutcomeConflict    = "conflict"
	OutcomeInvalid     = "invalid"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
	OutcomeDuplicate   = "duplicate"
)
