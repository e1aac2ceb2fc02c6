// Package metrics holds the Prometheus instruments of the ledger engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Batch outcome label values.
const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
)

// Metrics provides observability for batch processing. A nil *Metrics
// records nothing.
type Metrics struct {
	Batches        *prometheus.CounterVec
	Instructions   *prometheus.CounterVec
	TriggerFirings prometheus.Counter
	BatchDuration  prometheus.Histogram
	QueueDepth     prometheus.Gauge
	Height         prometheus.Gauge
}

// New registers the ledger metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Batches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_batches_total",
			Help: "Total batches processed by outcome",
		}, []string{"outcome"}),

		Instructions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_instructions_total",
			Help: "Total instructions executed by kind, trigger actions excluded",
		}, []string{"kind"}),

		TriggerFirings: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_trigger_firings_total",
			Help: "Total trigger firings",
		}),

		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_batch_duration_seconds",
			Help:    "Duration of batch execution including triggers and persistence",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}),

		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_queue_depth",
			Help: "Batches waiting for the writer",
		}),

		Height: f.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_block_height",
			Help: "Height of the last committed block",
		}),
	}
}

// ObserveBatch records one processed batch.
func (m *Metrics) ObserveBatch(outcome string, d time.Duration) {
	if m != nil {
		m.Batches.WithLabelValues(outcome).Inc()
		m.BatchDuration.Observe(d.Seconds())
	}
}

// IncrementInstruction records one executed instruction.
func (m *Metrics) IncrementInstruction(kind string) {
	if m != nil {
		m.Instructions.WithLabelValues(kind).Inc()
	}
}

// IncrementTriggerFiring records one trigger firing.
func (m *Metrics) IncrementTriggerFiring() {
	if m != nil {
		m.TriggerFirings.Inc()
	}
}

// SetQueueDepth records the writer backlog.
func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}

// SetHeight records the committed height.
func (m *Metrics) SetHeight(h uint64) {
	if m != nil {
		m.Height.Set(float64(h))
	}
}
