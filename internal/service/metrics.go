package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	txAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seva_ledger_transactions_total",
		Help: "Ledger rows appended, by type.",
	}, []string{"type"})

	settlementOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seva_settlements_total",
		Help: "Checkout settlements, by outcome.",
	}, []string{"outcome"})

	tokensExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seva_tokens_expired_total",
		Help: "Tokens expired via reconcile and the scheduled sweep.",
	})

	sweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seva_expiry_sweep_failures_total",
		Help: "Per-user reconcile failures during the scheduled sweep.",
	})
)
