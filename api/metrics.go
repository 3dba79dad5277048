/*
metrics.go - Prometheus instrumentation

PURPOSE:
  Counters for the operational questions the finance team actually
  asks: how many settlements each run produced, how many creators were
  skipped and why, and how often admins override the state machine.

METRICS:
  settlements_generated_total          Settlements written by Generate
  settlements_skipped_total{reason}    Creators excluded per run
                                       (no_rate, completed, failed)
  settlement_transitions_total{action} Lifecycle actions applied

SEE ALSO:
  - server.go: Mounts promhttp on /metrics
  - handlers.go: Increments these counters
*/
package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	settlementsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlements_generated_total",
		Help: "Number of settlements written by generation runs.",
	})

	settlementsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlements_skipped_total",
		Help: "Number of creators excluded from generation runs, by reason.",
	}, []string{"reason"})

	settlementTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_transitions_total",
		Help: "Number of settlement lifecycle actions applied, by action.",
	}, []string{"action"})
)
