// Package metrics exposes the daemon's Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes used as the "result" label.
const (
	ResultOK      = "ok"
	ResultSkipped = "skipped"
	ResultError   = "error"
)

var (
	importsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alpenhorn_imports_total",
		Help: "Files considered for import, by node and outcome",
	}, []string{"node", "result"}) // result=ok|skipped|error

	pullsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alpenhorn_pulls_total",
		Help: "Copy requests handled, by destination node and outcome",
	}, []string{"node", "result"})

	pullBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alpenhorn_pull_bytes_total",
		Help: "Bytes copied onto a node by pulls",
	}, []string{"node"})

	deletionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alpenhorn_deletions_total",
		Help: "File copies deleted or kept, by node and outcome",
	}, []string{"node", "result"})

	nodeAvailBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "alpenhorn_node_avail_bytes",
		Help: "Free space last measured on a node",
	}, []string{"node"})

	updateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "alpenhorn_node_update_seconds",
		Help:    "Duration of one node update pass",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"node"})
)

// RecordImport counts one import attempt.
func RecordImport(node, result string) {
	importsTotal.WithLabelValues(node, result).Inc()
}

// RecordPull counts one copy request; bytes is added for successful pulls.
func RecordPull(node, result string, bytes int64) {
	pullsTotal.WithLabelValues(node, result).Inc()
	if result == ResultOK && bytes > 0 {
		pullBytes.WithLabelValues(node).Add(float64(bytes))
	}
}

// RecordDeletion counts one deletion decision.
func RecordDeletion(node, result string) {
	deletionsTotal.WithLabelValues(node, result).Inc()
}

// SetNodeAvail records the free space of a node.
func SetNodeAvail(node string, bytes float64) {
	nodeAvailBytes.WithLabelValues(node).Set(bytes)
}

// ObserveUpdate records how long a node update took, in seconds.
func ObserveUpdate(node string, seconds float64) {
	updateDuration.WithLabelValues(node).Observe(seconds)
}
