// Package metrics provides Prometheus metrics for evqlite
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for evqlite
type Metrics struct {
	// Arena / page manager metrics
	ArenaCommitsTotal    *prometheus.CounterVec
	ArenaCommitDuration  *prometheus.HistogramVec
	ArenaNumRows         *prometheus.GaugeVec
	PageAllocationsTotal *prometheus.CounterVec
	PageBytesWritten     *prometheus.CounterVec

	// Connection pool metrics
	PoolOpenConnsTotal   *prometheus.GaugeVec
	PoolAcquireWaitTotal prometheus.Counter

	// Async RPC client metrics
	TasksStartedTotal    prometheus.Counter
	TasksCompletedTotal  *prometheus.CounterVec
	TasksFailedOverTotal prometheus.Counter
	TaskLatency          prometheus.Histogram

	// Query operation metrics
	QueryRowsServedTotal   prometheus.Counter
	QueryFramesTotal       *prometheus.CounterVec
	QueryProgressFrames    prometheus.Counter
	QueryStatementsTotal   prometheus.Counter

	// Server metrics
	ServerUptimeSeconds prometheus.Gauge
	ServerStartTime     time.Time
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		ServerStartTime: time.Now(),
	}

	// Arena / page manager metrics
	m.ArenaCommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evqlite_arena_commits_total",
			Help: "Total number of CST arena commits",
		},
		[]string{"status"},
	)

	m.ArenaCommitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evqlite_arena_commit_duration_seconds",
			Help:    "Duration of CST arena commits in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	m.ArenaNumRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "evqlite_arena_num_rows",
			Help: "Row count of the most recent arena commit",
		},
		[]string{"table"},
	)

	m.PageAllocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evqlite_page_allocations_total",
			Help: "Total number of pages allocated by the page manager",
		},
		[]string{"backing"},
	)

	m.PageBytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evqlite_page_bytes_written_total",
			Help: "Total bytes written to pages, after compression",
		},
		[]string{"backing"},
	)

	// Connection pool metrics
	m.PoolOpenConnsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "evqlite_pool_open_conns",
			Help: "Currently open connections per host",
		},
		[]string{"host"},
	)

	m.PoolAcquireWaitTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evqlite_pool_acquire_wait_total",
			Help: "Total number of times acquire() had to wait for a free slot",
		},
	)

	// Async RPC client metrics
	m.TasksStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evqlite_client_tasks_started_total",
			Help: "Total number of RPC tasks started by the async client",
		},
	)

	m.TasksCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evqlite_client_tasks_completed_total",
			Help: "Total number of RPC tasks completed, by outcome",
		},
		[]string{"outcome"},
	)

	m.TasksFailedOverTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evqlite_client_tasks_failed_over_total",
			Help: "Total number of RPC tasks that failed over to another candidate host",
		},
	)

	m.TaskLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evqlite_client_task_latency_seconds",
			Help:    "End-to-end latency of RPC tasks",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// Query operation metrics
	m.QueryRowsServedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evqlite_query_rows_served_total",
			Help: "Total number of result rows served over QUERY_RESULT frames",
		},
	)

	m.QueryFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evqlite_query_frames_total",
			Help: "Total number of frames sent by the query operation handler, by opcode",
		},
		[]string{"opcode"},
	)

	m.QueryProgressFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evqlite_query_progress_frames_total",
			Help: "Total number of QUERY_PROGRESS frames emitted",
		},
	)

	m.QueryStatementsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "evqlite_query_statements_total",
			Help: "Total number of statements executed across all MULTISTMT queries",
		},
	)

	// Server metrics
	m.ServerUptimeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "evqlite_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
	)

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime periodically updates the server uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.ServerUptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
	}
}

// RecordCommit records an arena commit outcome and duration.
func (m *Metrics) RecordCommit(status string, duration time.Duration) {
	m.ArenaCommitsTotal.WithLabelValues(status).Inc()
	m.ArenaCommitDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordPageAllocation records a page allocation on the given backing.
func (m *Metrics) RecordPageAllocation(backing string, bytesWritten int) {
	m.PageAllocationsTotal.WithLabelValues(backing).Inc()
	m.PageBytesWritten.WithLabelValues(backing).Add(float64(bytesWritten))
}

// RecordTaskCompletion records a completed async RPC task.
func (m *Metrics) RecordTaskCompletion(outcome string, latency time.Duration) {
	m.TasksCompletedTotal.WithLabelValues(outcome).Inc()
	m.TaskLatency.Observe(latency.Seconds())
}

// RecordQueryFrame records one frame sent by the query operation handler.
func (m *Metrics) RecordQueryFrame(opcode string, rows int) {
	m.QueryFramesTotal.WithLabelValues(opcode).Inc()
	if rows > 0 {
		m.QueryRowsServedTotal.Add(float64(rows))
	}
}
