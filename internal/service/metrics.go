package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenario_batches_total",
			Help: "Total number of batch asset generation runs by outcome.",
		},
		[]string{"outcome"},
	)
	slotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenario_slots_total",
			Help: "Total number of generation slots by result (success, failure, skipped).",
		},
		[]string{"result"},
	)
	creditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenario_credits_total",
			Help: "Credits moved through the ledger by operation (debit, refund, topup).",
		},
		[]string{"op"},
	)
	selectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenario_path_selections_total",
			Help: "Total number of path selections by outcome.",
		},
		[]string{"outcome"},
	)
	generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scenario_slot_generation_duration_seconds",
			Help:    "Duration of a single slot generation attempt (provider + download + store).",
			Buckets: []float64{5, 15, 30, 60, 120, 240, 480, 900},
		},
		[]string{"slot_type"},
	)
)

func slotType(slotKey string) string {
	if slotKey == idleSlot {
		return "idle"
	}
	return "node"
}
