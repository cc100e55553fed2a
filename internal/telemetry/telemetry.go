// Package telemetry provides Prometheus instrumentation for the ambient
// stack: registry handle exhaustion, NVTable growth/clone traffic, and
// LogScheduler batch depth and flush latency.
//
// Grounded on the per-subsystem metrics structs in
// _examples/marmos91-dittofs/internal/protocol/nfs/v4/state (sequence_metrics.go,
// session_metrics.go, delegation_metrics.go): a struct of prometheus
// collectors built with a namespace/subsystem prefix, constructed by a
// New*Metrics(reg) that registers everything at once, with every method
// nil-safe so a caller that never wired telemetry pays nothing.
package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "logflowd"

// RegistryMetrics instruments internal/registry's handle allocator.
type RegistryMetrics struct {
	HandlesAllocated prometheus.Gauge
	ExhaustedTotal   prometheus.Counter
}

// NewRegistryMetrics builds and, if reg is non-nil, registers registry
// metrics. Passing a nil Registerer is useful for tests that want the
// collectors without exporting them anywhere.
func NewRegistryMetrics(reg prometheus.Registerer) *RegistryMetrics {
	m := &RegistryMetrics{
		HandlesAllocated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "handles_allocated",
			Help:      "Number of name-to-handle mappings currently allocated.",
		}),
		ExhaustedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "exhausted_total",
			Help:      "Number of AllocHandle calls refused because the handle ceiling was reached.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.HandlesAllocated, m.ExhaustedTotal)
	}
	return m
}

// Allocated records a newly minted handle.
func (m *RegistryMetrics) Allocated() {
	if m == nil {
		return
	}
	m.HandlesAllocated.Inc()
}

// Exhausted records a refused allocation.
func (m *RegistryMetrics) Exhausted() {
	if m == nil {
		return
	}
	m.ExhaustedTotal.Inc()
}

// NVTableMetrics instruments internal/nvtable's growth and copy-on-write
// traffic.
type NVTableMetrics struct {
	ReallocTotal prometheus.Counter
	CloneTotal   prometheus.Counter
	PayloadBytes prometheus.Histogram
}

// NewNVTableMetrics builds and, if reg is non-nil, registers NVTable
// metrics.
func NewNVTableMetrics(reg prometheus.Registerer) *NVTableMetrics {
	m := &NVTableMetrics{
		ReallocTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nvtable",
			Name:      "realloc_total",
			Help:      "Number of times a table's payload arena was grown in place.",
		}),
		CloneTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nvtable",
			Name:      "clone_total",
			Help:      "Number of times a shared table was copy-on-write cloned instead of grown in place.",
		}),
		PayloadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "nvtable",
			Name:      "payload_bytes",
			Help:      "Resulting payload arena capacity after a realloc or clone.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ReallocTotal, m.CloneTotal, m.PayloadBytes)
	}
	return m
}

// Realloc records an in-place growth to newSize bytes.
func (m *NVTableMetrics) Realloc(newSize int) {
	if m == nil {
		return
	}
	m.ReallocTotal.Inc()
	m.PayloadBytes.Observe(float64(newSize))
}

// Clone records a copy-on-write clone to newSize bytes.
func (m *NVTableMetrics) Clone(newSize int) {
	if m == nil {
		return
	}
	m.CloneTotal.Inc()
	m.PayloadBytes.Observe(float64(newSize))
}

// SchedulerMetrics instruments internal/scheduler's per-partition batching.
type SchedulerMetrics struct {
	BatchDepth        *prometheus.GaugeVec
	FlushDuration     prometheus.Histogram
	MessagesScheduled prometheus.Counter
}

// NewSchedulerMetrics builds and, if reg is non-nil, registers scheduler
// metrics.
func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	m := &SchedulerMetrics{
		BatchDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "batch_depth",
			Help:      "Number of messages drained by the most recent partition flush.",
		}, []string{"partition"}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "flush_duration_seconds",
			Help:      "Time a partition's worker job spent re-injecting a drained batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		MessagesScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "messages_scheduled_total",
			Help:      "Total number of messages pushed through the scheduler.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.BatchDepth, m.FlushDuration, m.MessagesScheduled)
	}
	return m
}

// Pushed records one message entering the scheduler.
func (m *SchedulerMetrics) Pushed() {
	if m == nil {
		return
	}
	m.MessagesScheduled.Inc()
}

// Flushed records a partition flush of depth messages taking d seconds.
func (m *SchedulerMetrics) Flushed(partition int, depth int, seconds float64) {
	if m == nil {
		return
	}
	m.BatchDepth.WithLabelValues(strconv.Itoa(partition)).Set(float64(depth))
	m.FlushDuration.Observe(seconds)
}
