// Package observability holds the Prometheus metrics of the settlement
// core. Everything money-related is counted: ledger mutations, request
// transitions, gateway calls, webhook reconciliation, withdrawals.
// Exposed on /metrics by the API server.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

// LedgerOps counts ledger operations by op (reserve/release/withdraw)
// and outcome (ok/insufficient/invariant/error).
var LedgerOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "illustra",
	Subsystem: "ledger",
	Name:      "ops_total",
	Help:      "Total ledger operations by op and outcome.",
}, []string{"op", "outcome"})

// AmountMoved tracks minor units moved by operation.
var AmountMoved = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "illustra",
	Subsystem: "ledger",
	Name:      "amount_moved_total",
	Help:      "Total minor units moved through the ledger by op.",
}, []string{"op"})

// InvariantViolations counts aborted operations that would have driven
// a reserved balance negative. Any increment needs operator attention.
var InvariantViolations = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "illustra",
	Subsystem: "ledger",
	Name:      "invariant_violations_total",
	Help:      "Total ledger operations aborted on an invariant violation.",
})

// ─── Request Metrics ────────────────────────────────────────────────────────

// RequestTransitions counts state machine transitions by target state.
var RequestTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "illustra",
	Subsystem: "requests",
	Name:      "transitions_total",
	Help:      "Total service request transitions by target status.",
}, []string{"to"})

// InvalidTransitions counts rejected transition attempts.
var InvalidTransitions = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "illustra",
	Subsystem: "requests",
	Name:      "invalid_transitions_total",
	Help:      "Total rejected service request transitions.",
})

// ─── Gateway Metrics ────────────────────────────────────────────────────────

// GatewayCalls observes outbound gateway call latency by endpoint.
var GatewayCalls = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "illustra",
	Subsystem: "gateway",
	Name:      "call_seconds",
	Help:      "Outbound payment gateway call latency by endpoint.",
	Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
}, []string{"endpoint"})

// GatewayFailures counts failed gateway calls by endpoint.
var GatewayFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "illustra",
	Subsystem: "gateway",
	Name:      "failures_total",
	Help:      "Total failed payment gateway calls by endpoint.",
}, []string{"endpoint"})

// TokenRefreshes counts OAuth token refreshes by outcome.
var TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "illustra",
	Subsystem: "gateway",
	Name:      "token_refreshes_total",
	Help:      "Total OAuth access token refreshes by outcome.",
}, []string{"outcome"})

// ─── Webhook Metrics ────────────────────────────────────────────────────────

// WebhookEvents counts inbox events by final outcome
// (processed/duplicate/rejected/retry).
var WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "illustra",
	Subsystem: "webhook",
	Name:      "events_total",
	Help:      "Total webhook inbox events by outcome.",
}, []string{"outcome"})

// WebhookBacklog tracks the current pending inbox depth.
var WebhookBacklog = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "illustra",
	Subsystem: "webhook",
	Name:      "backlog",
	Help:      "Current number of unprocessed webhook events.",
})

// ─── Withdrawal Metrics ─────────────────────────────────────────────────────

// WithdrawalOutcomes counts withdrawal workflow results.
var WithdrawalOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "illustra",
	Subsystem: "withdrawals",
	Name:      "outcomes_total",
	Help:      "Total withdrawal requests by outcome (requested/approved/denied/gateway_failed).",
}, []string{"outcome"})

// ─── Notification Metrics ───────────────────────────────────────────────────

// NotificationsDispatched counts sink deliveries by outcome.
var NotificationsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "illustra",
	Subsystem: "notify",
	Name:      "dispatched_total",
	Help:      "Total notifications dispatched by outcome.",
}, []string{"outcome"})
