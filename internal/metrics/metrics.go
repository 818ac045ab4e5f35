package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemMutations counts catalog writes by zone and operation (create, update, delete, move, rename, repair).
	ItemMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbconn_item_mutations_total",
			Help: "Total number of catalog item writes",
		},
		[]string{"zone", "op"},
	)

	// DecodeFailures counts stored items skipped while listing (unknown_version|malformed).
	DecodeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbconn_decode_failures_total",
			Help: "Total number of stored items that could not be decoded",
		},
		[]string{"zone", "reason"},
	)

	// MaintenanceRepairs counts items rewritten or removed by consistency maintenance.
	MaintenanceRepairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbconn_maintenance_repairs_total",
			Help: "Total number of items repaired or removed by consistency maintenance",
		},
		[]string{"zone", "pass"},
	)

	// Conflicts counts blocked delete/move verifications by kind (task|naming).
	Conflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbconn_conflicts_total",
			Help: "Total number of delete/move verifications that found conflicts",
		},
		[]string{"op", "kind"},
	)

	// ActiveTasks tracks tasks currently registered as using connections.
	ActiveTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dbconn_active_tasks",
			Help: "Number of running tasks holding connection resources",
		},
	)

	// ToolCalls counts MCP tool invocations by tool and result (ok|error).
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbconn_mcp_tool_calls_total",
			Help: "Total number of MCP tool calls",
		},
		[]string{"tool", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbconn_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
