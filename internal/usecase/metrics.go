package usecase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledgerEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_entries_total",
			Help: "Ledger entries posted, by transaction type and outcome",
		},
		[]string{"type", "outcome"}, // outcome: posted, replayed, rejected, error
	)

	ledgerPostDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_post_duration_seconds",
			Help:    "Time spent posting one ledger entry, lock wait included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"direction"},
	)

	settlementOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_settlement_outcomes_total",
			Help: "Settlement sagas by kind and resulting state",
		},
		[]string{"kind", "state"},
	)

	withdrawalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_withdrawals_total",
			Help: "Withdrawals by rail and outcome",
		},
		[]string{"rail", "outcome"},
	)

	fundsClearedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_funds_cleared_total",
			Help: "Held credits moved from pending to available balance",
		},
	)
)
