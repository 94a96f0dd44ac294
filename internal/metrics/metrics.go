// Package metrics exposes the process-wide prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksCollected counts quotes persisted per venue.
	TicksCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbiscan_ticks_collected_total",
		Help: "Quotes persisted to the store, by venue.",
	}, []string{"venue"})

	// TicksDropped counts quotes rejected before persistence.
	TicksDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbiscan_ticks_dropped_total",
		Help: "Quotes dropped before persistence, by venue and reason.",
	}, []string{"venue", "reason"})

	// FetchDuration observes venue REST latency.
	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arbiscan_fetch_duration_seconds",
		Help:    "Venue REST call latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"venue", "endpoint"})

	// CollectCycles counts collection job runs by outcome.
	CollectCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbiscan_collect_cycles_total",
		Help: "Collection job executions, by job and outcome.",
	}, []string{"job", "outcome"})

	// DetectCycles counts detection engine runs.
	DetectCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arbiscan_detect_cycles_total",
		Help: "Detection engine cycles.",
	})

	// Opportunities counts persisted opportunities by strategy kind.
	Opportunities = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbiscan_opportunities_total",
		Help: "Arbitrage opportunities persisted, by strategy kind.",
	}, []string{"kind"})

	// NotificationsSent counts successful webhook deliveries.
	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbiscan_notifications_sent_total",
		Help: "Webhook notifications delivered, by kind.",
	}, []string{"kind"})

	// NotificationsDropped counts gate drops by short-circuit reason.
	NotificationsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbiscan_notifications_dropped_total",
		Help: "Notifications suppressed by the gate, by reason.",
	}, []string{"reason"})

	// FXRefreshes counts FX source refresh attempts by source and outcome.
	FXRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbiscan_fx_refreshes_total",
		Help: "FX rate refresh attempts, by source and outcome.",
	}, []string{"source", "outcome"})
)
