// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	TransfersProcessed prometheus.Counter
	TransfersSkipped   *prometheus.CounterVec
	InfectionsRecorded prometheus.Counter
	HoldersUpserted    prometheus.Counter
	LastProcessedBlock prometheus.Gauge

	// Proxy detection metrics
	ProxiesDetected  *prometheus.CounterVec
	DetectionErrors  prometheus.Counter
	HoldersScanned   prometheus.Counter
	HoldersLocked    prometheus.Counter
	ProxyWritesTotal *prometheus.CounterVec

	// Distribution metrics
	SnapshotsCreated     prometheus.Counter
	SnapshotsDistributed prometheus.Counter
	DistributionsWritten prometheus.Counter
	PoolBalance          prometheus.Gauge

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec
	ScanDuration   prometheus.Histogram

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	TickErrors           *prometheus.CounterVec
	ReconnectAttempts    prometheus.Counter
	LastSuccessfulIngest prometheus.Gauge
	LastSuccessfulScan   prometheus.Gauge
	UptimeSeconds        prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "contagion_monitor"
	}

	return &Metrics{
		TransfersProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "transfers_processed_total",
			Help:      "Total number of Transfer events processed",
		}),
		TransfersSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "transfers_skipped_total",
			Help:      "Total number of Transfer events skipped by reason",
		}, []string{"reason"}),
		InfectionsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "infections_recorded_total",
			Help:      "Total number of infection records written",
		}),
		HoldersUpserted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "holders_upserted_total",
			Help:      "Total number of holder upserts",
		}),
		LastProcessedBlock: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "last_processed_block",
			Help:      "Highest fully processed block number",
		}),

		ProxiesDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "proxies_detected_total",
			Help:      "Total number of proxy wallets detected by type",
		}, []string{"type"}),
		DetectionErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "errors_total",
			Help:      "Total number of proxy detection failures",
		}),
		HoldersScanned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "holders_scanned_total",
			Help:      "Total number of holders scanned",
		}),
		HoldersLocked: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "holders_locked_total",
			Help:      "Total number of holders locked",
		}),
		ProxyWritesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "proxy_writes_total",
			Help:      "Total number of on-chain proxy wallet writes by status",
		}, []string{"status"}),

		SnapshotsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "distribution",
			Name:      "snapshots_created_total",
			Help:      "Total number of reward pool snapshots created",
		}),
		SnapshotsDistributed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "distribution",
			Name:      "snapshots_distributed_total",
			Help:      "Total number of snapshots fully distributed",
		}),
		DistributionsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "distribution",
			Name:      "distributions_written_total",
			Help:      "Total number of per-proxy distribution records written",
		}),
		PoolBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "distribution",
			Name:      "pool_balance_tokens",
			Help:      "Last observed reflection pool balance in base units",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_latency_seconds",
			Help:      "RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		ScanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Full holder scan duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		TickErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "tick_errors_total",
			Help:      "Total number of failed loop ticks by loop",
		}, []string{"loop"}),
		ReconnectAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "reconnect_attempts_total",
			Help:      "Total number of RPC reconnect attempts",
		}),
		LastSuccessfulIngest: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingest_timestamp",
			Help:      "Unix timestamp of last successful ingest tick",
		}),
		LastSuccessfulScan: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_scan_timestamp",
			Help:      "Unix timestamp of last successful holder scan",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTransferProcessed increments the transfers processed counter.
func RecordTransferProcessed() {
	DefaultMetrics.TransfersProcessed.Inc()
}

// RecordTransferSkipped records a skipped transfer by reason.
func RecordTransferSkipped(reason string) {
	DefaultMetrics.TransfersSkipped.WithLabelValues(reason).Inc()
}

// RecordInfection increments the infections recorded counter.
func RecordInfection() {
	DefaultMetrics.InfectionsRecorded.Inc()
}

// RecordHolderUpsert increments the holders upserted counter.
func RecordHolderUpsert() {
	DefaultMetrics.HoldersUpserted.Inc()
}

// UpdateLastProcessedBlock updates the cursor gauge.
func UpdateLastProcessedBlock(block uint64) {
	DefaultMetrics.LastProcessedBlock.Set(float64(block))
}

// RecordProxyDetected increments the proxies detected counter by type.
func RecordProxyDetected(proxyType string) {
	DefaultMetrics.ProxiesDetected.WithLabelValues(proxyType).Inc()
}

// RecordDetectionError increments the proxy detection failure counter.
func RecordDetectionError() {
	DefaultMetrics.DetectionErrors.Inc()
}

// RecordHolderScanned increments the holders scanned counter.
func RecordHolderScanned(locked bool) {
	DefaultMetrics.HoldersScanned.Inc()
	if locked {
		DefaultMetrics.HoldersLocked.Inc()
	}
}

// RecordProxyWrite records an on-chain proxy write outcome.
func RecordProxyWrite(status string) {
	DefaultMetrics.ProxyWritesTotal.WithLabelValues(status).Inc()
}

// RecordSnapshotCreated increments the snapshots created counter.
func RecordSnapshotCreated() {
	DefaultMetrics.SnapshotsCreated.Inc()
}

// RecordSnapshotDistributed records a completed distribution run.
func RecordSnapshotDistributed(distributions int) {
	DefaultMetrics.SnapshotsDistributed.Inc()
	DefaultMetrics.DistributionsWritten.Add(float64(distributions))
}

// UpdatePoolBalance updates the pool balance gauge.
func UpdatePoolBalance(balance float64) {
	DefaultMetrics.PoolBalance.Set(balance)
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordTickError records a failed loop tick.
func RecordTickError(loop string) {
	DefaultMetrics.TickErrors.WithLabelValues(loop).Inc()
}
