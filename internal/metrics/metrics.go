// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modelmanager",
		Name:      "validations_total",
		Help:      "Validation runs by kind and outcome.",
	}, []string{"kind", "result"})

	RuleSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modelmanager",
		Name:      "rule_sync_total",
		Help:      "Rewrite rule writes by operation.",
	}, []string{"op"})

	OutboxDispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modelmanager",
		Name:      "outbox_dispatch_total",
		Help:      "Outbox deliveries by outcome.",
	}, []string{"result"})
)

func Outcome(valid bool) string {
	if valid {
		return "valid"
	}
	return "invalid"
}
