// Package metrics exposes Prometheus collectors for the registration and payment workflow.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the portal's collectors.
	Registry = prometheus.NewRegistry()

	registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "camp_portal",
			Subsystem: "registration",
			Name:      "submissions_total",
			Help:      "Registration submissions by outcome.",
		},
		[]string{"outcome"},
	)

	reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "camp_portal",
			Subsystem: "payment",
			Name:      "reconciliations_total",
			Help:      "Checkout returns by path and terminal state.",
		},
		[]string{"path", "state"},
	)

	checkouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "camp_portal",
			Subsystem: "payment",
			Name:      "checkout_sessions_total",
			Help:      "Checkout session requests by outcome.",
		},
		[]string{"outcome"},
	)

	participantTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "camp_portal",
			Subsystem: "participants",
			Name:      "count_tasks_total",
			Help:      "Participant-count increment tasks by stage and outcome.",
		},
		[]string{"stage", "outcome"},
	)
)

func init() {
	Registry.MustRegister(registrations, reconciliations, checkouts, participantTasks)
}

// ObserveRegistration counts a registration submission outcome.
func ObserveRegistration(outcome string) {
	registrations.WithLabelValues(outcome).Inc()
}

// ObserveReconciliation counts a checkout return that reached a terminal state.
func ObserveReconciliation(path, state string) {
	reconciliations.WithLabelValues(path, state).Inc()
}

// ObserveCheckout counts a checkout session request.
func ObserveCheckout(outcome string) {
	checkouts.WithLabelValues(outcome).Inc()
}

// ObserveParticipantTask counts an increment task at the given stage (enqueue, dispatch, apply).
func ObserveParticipantTask(stage, outcome string) {
	participantTasks.WithLabelValues(stage, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
