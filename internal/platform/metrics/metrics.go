// Package metrics registers the engine's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the registration and
// notification engine.
type Metrics struct {
	RegistrationsCreated     prometheus.Counter
	RegistrationsReactivated prometheus.Counter
	RegistrationsDenied      *prometheus.CounterVec
	CancellationsStarted     prometheus.Counter
	CancellationsUndone      prometheus.Counter
	CancellationsFinalized   prometheus.Counter
	CapacityClosed           prometheus.Counter
	ObligationsUpserted      *prometheus.CounterVec
	ObligationsDeduped       *prometheus.CounterVec
	RequestLatency           *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		RegistrationsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "volunteerhub_registrations_created_total",
			Help: "Registrations that entered ACTIVE for the first time.",
		}),
		RegistrationsReactivated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "volunteerhub_registrations_reactivated_total",
			Help: "CANCELED registrations reactivated in place after cooldown.",
		}),
		RegistrationsDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "volunteerhub_registrations_denied_total",
			Help: "Registration lifecycle operations denied, by precondition.",
		}, []string{"reason"}),
		CancellationsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "volunteerhub_cancellations_started_total",
			Help: "Registrations moved to CANCEL_PENDING.",
		}),
		CancellationsUndone: promauto.NewCounter(prometheus.CounterOpts{
			Name: "volunteerhub_cancellations_undone_total",
			Help: "CANCEL_PENDING registrations reverted to ACTIVE within the undo window.",
		}),
		CancellationsFinalized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "volunteerhub_cancellations_finalized_total",
			Help: "CANCEL_PENDING registrations finalized to CANCELED.",
		}),
		CapacityClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "volunteerhub_capacity_closed_total",
			Help: "Activities auto-closed to registration on reaching capacity.",
		}),
		ObligationsUpserted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "volunteerhub_obligations_upserted_total",
			Help: "Notification obligations created, by kind.",
		}, []string{"kind"}),
		ObligationsDeduped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "volunteerhub_obligations_deduped_total",
			Help: "Obligation upserts absorbed by the dedup key, by kind.",
		}, []string{"kind"}),
		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "volunteerhub_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}
