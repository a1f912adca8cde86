// Package metrics exposes Prometheus collectors for the reservation engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "class_reservation"
	subsystem = "engine"
)

// Metrics holds the collectors the reservation service and the event
// publisher report to.  A nil *Metrics is valid and records nothing.
type Metrics struct {
	operations    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	promotions    prometheus.Counter
	publishFailed *prometheus.CounterVec
}

// MustNewMetrics constructs Metrics and registers them with reg.  Tests
// pass a fresh registry; the server passes prometheus.DefaultRegisterer so
// that promhttp serves them.  Registration errors panic, except that
// collectors already registered under the same name are reused.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	operations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operations_total",
			Help:      "Reservation operations by outcome code.",
		},
		[]string{"operation", "outcome"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operation_duration_seconds",
			Help:      "Time spent in each reservation operation, transaction included.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	promotions := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "promotions_total",
			Help:      "Waitlisted reservations promoted to confirmed.",
		},
	)
	publishFailed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "event_publish_failures_total",
			Help:      "Reservation events that could not be handed to the sink.",
		},
		[]string{"event"},
	)

	collectors := []prometheus.Collector{operations, duration, promotions, publishFailed}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			already, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				panic(err)
			}
			switch collector {
			case operations:
				operations = already.ExistingCollector.(*prometheus.CounterVec)
			case duration:
				duration = already.ExistingCollector.(*prometheus.HistogramVec)
			case promotions:
				promotions = already.ExistingCollector.(prometheus.Counter)
			case publishFailed:
				publishFailed = already.ExistingCollector.(*prometheus.CounterVec)
			}
		}
	}

	return &Metrics{
		operations:    operations,
		duration:      duration,
		promotions:    promotions,
		publishFailed: publishFailed,
	}
}

// ObserveOperation records one finished operation with its outcome code
// (OK or an error code such as WAITLIST_FULL) and how long it took.
func (m *Metrics) ObserveOperation(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncPromotion counts a waitlist promotion.
func (m *Metrics) IncPromotion() {
	if m == nil {
		return
	}
	m.promotions.Inc()
}

// IncPublishFailure counts an event the sink rejected.
func (m *Metrics) IncPublishFailure(event string) {
	if m == nil {
		return
	}
	m.publishFailed.WithLabelValues(event).Inc()
}
