// Package metrics exposes runtime counters on the daemon's /metrics
// endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal counts completed agent turns by outcome.
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "valet",
		Name:      "turns_total",
		Help:      "Completed agent turns by outcome.",
	}, []string{"outcome"})

	// ToolCallsTotal counts tool dispatches by tool and outcome.
	ToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "valet",
		Name:      "tool_calls_total",
		Help:      "Tool dispatches by tool name and outcome.",
	}, []string{"tool", "outcome"})

	// GenerationSeconds observes provider latency per backend.
	GenerationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "valet",
		Name:      "generation_seconds",
		Help:      "Model generation latency by provider.",
		Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"provider"})

	// MCPServersConnected gauges live MCP server connections.
	MCPServersConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "valet",
		Name:      "mcp_servers_connected",
		Help:      "Currently connected MCP servers.",
	})

	// MemorySnapshotsTotal counts core memory commits.
	MemorySnapshotsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "valet",
		Name:      "memory_snapshots_total",
		Help:      "Core memory snapshots committed.",
	})
)
