package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Distributions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_commission_distributions_total",
			Help: "Commission distribution calls by outcome",
		},
		[]string{"outcome"},
	)

	Credits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_commission_credits_total",
			Help: "Wallet credits issued by upline level",
		},
		[]string{"level"},
	)

	CommissionPaid = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_commission_paid_total",
			Help: "Sum of commission credited to wallets",
		},
	)

	Failures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_commission_failures_total",
			Help: "Distributions aborted and rolled back",
		},
		[]string{"reason"},
	)

	NotificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_notification_failures_total",
			Help: "Reward notifications that could not be delivered",
		},
	)

	ReconcileMismatches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "referral_wallet_reconcile_mismatches",
			Help: "Wallets whose balance disagreed with the ledger in the last pass",
		},
	)

	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_events_processed_total",
			Help: "Commerce events handled by the processor",
		},
		[]string{"type", "result"},
	)
)
