// Package metrics wires the validator's components to a single Prometheus
// registry held behind one struct, so every subsystem registers its
// counters and histograms against the same Registerer.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the shared handle components register collectors against.
type Metrics struct {
	Registry *prometheus.Registry

	BatchesSubmitted   prometheus.Counter
	BatchesCommitted   prometheus.Counter
	BatchesInvalidated *prometheus.CounterVec
	BlocksCommitted    prometheus.Counter
	BlocksRejected     prometheus.Counter

	SchedulerLatency prometheus.Histogram
	ExecutorLatency  prometheus.Histogram

	PeerCount     prometheus.Gauge
	MempoolSize   prometheus.Gauge
	PendingTxns   prometheus.Gauge
}

// New creates and registers the validator's standard collector set.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		BatchesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sawtooth_batches_submitted_total",
			Help: "Batches accepted into the pending batch pool.",
		}),
		BatchesCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sawtooth_batches_committed_total",
			Help: "Batches included in a committed block.",
		}),
		BatchesInvalidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sawtooth_batches_invalidated_total",
			Help: "Batches rejected, labeled by reason.",
		}, []string{"reason"}),
		BlocksCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sawtooth_blocks_committed_total",
			Help: "Blocks committed as chain head.",
		}),
		BlocksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sawtooth_blocks_rejected_total",
			Help: "Candidate blocks that failed validation.",
		}),
		SchedulerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sawtooth_scheduler_batch_seconds",
			Help:    "Time to schedule and execute one batch slate.",
			Buckets: prometheus.DefBuckets,
		}),
		ExecutorLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sawtooth_executor_txn_seconds",
			Help:    "Time for a processor to answer one ProcessRequest.",
			Buckets: prometheus.DefBuckets,
		}),
		PeerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sawtooth_peer_count",
			Help: "Currently authorized peer connections.",
		}),
		MempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sawtooth_mempool_batches",
			Help: "Batches currently in the pending batch pool.",
		}),
		PendingTxns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sawtooth_pending_transactions",
			Help: "Transactions awaiting a COMMITTED or INVALID status.",
		}),
	}
	reg.MustRegister(
		m.BatchesSubmitted, m.BatchesCommitted, m.BatchesInvalidated,
		m.BlocksCommitted, m.BlocksRejected,
		m.SchedulerLatency, m.ExecutorLatency,
		m.PeerCount, m.MempoolSize, m.PendingTxns,
	)
	return m
}
