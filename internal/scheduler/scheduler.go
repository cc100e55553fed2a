// Package scheduler implements LogScheduler (spec.md §3, §4.4): a
// thread-affine batcher that partitions messages by round-robin or by
// hashing a template-evaluated key, and drains each partition's queue on a
// dedicated, cooperatively-rescheduled worker job.
//
// Grounded on original_source/lib/logscheduler.c in full (LogSchedulerBatch,
// LogSchedulerPartition, LogSchedulerThreadState, log_scheduler_push,
// _flush_batch, _work, _complete, _partition_add_batch).
package scheduler

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/logflowd/logflowd/internal/message"
	"github.com/logflowd/logflowd/internal/telemetry"
	"github.com/logflowd/logflowd/internal/template"
	"github.com/logflowd/logflowd/log"
)

// MaxPartitions is the hard cap spec.md §6's configuration table names
// ("LOGSCHEDULER_MAX_PARTITIONS"); values above it are clamped with a log
// line in Options.clamp.
const MaxPartitions = 64

// Options are the recognized LogScheduler configuration knobs (spec.md §6).
type Options struct {
	NumPartitions int
	PartitionKey  *template.Template
}

func (o *Options) clamp() {
	if o.NumPartitions > MaxPartitions {
		log.Warnf("scheduler: num_partitions=%d exceeds the hard cap, clamping to %d", o.NumPartitions, MaxPartitions)
		o.NumPartitions = MaxPartitions
	}
	if o.NumPartitions < 0 {
		o.NumPartitions = 0
	}
}

// Scheduler is LogScheduler: it stabilizes per-partition ordering, batches
// small units of work, and cooperates with a WorkerRuntime that supports
// submit-continuation and batch callbacks.
type Scheduler struct {
	options   Options
	frontPipe Pipe
	runtime   WorkerRuntime

	numThreads   int
	threadStates []*threadState
	partitions   []*partition

	warnOnce sync.Once
	metrics  *telemetry.SchedulerMetrics
}

// SetMetrics wires m into every partition's flush path. Call before Push:
// it assigns each partition's metrics field without taking the partition lock.
func (s *Scheduler) SetMetrics(m *telemetry.SchedulerMetrics) {
	s.metrics = m
	for _, p := range s.partitions {
		p.metrics = m
	}
}

// New creates a scheduler. maxThreads is the number of ingest-thread slots
// to preallocate state for; runtime must support MaxThreads() >= maxThreads
// whenever its own worker count matters (the two are decoupled here since
// Go's goroutines, unlike OS threads pinned by the original runtime, don't
// require a 1:1 ingest/worker mapping).
func New(options Options, frontPipe Pipe, runtime WorkerRuntime, maxThreads int) *Scheduler {
	options.clamp()

	s := &Scheduler{
		options:    options,
		frontPipe:  frontPipe,
		runtime:    runtime,
		numThreads: maxThreads,
	}

	s.threadStates = make([]*threadState, maxThreads)
	for i := range s.threadStates {
		s.threadStates[i] = newThreadState(options.NumPartitions)
	}

	s.partitions = make([]*partition, options.NumPartitions)
	for i := range s.partitions {
		s.partitions[i] = newPartition(i, frontPipe, runtime)
	}

	if options.NumPartitions > 0 && runtime == nil {
		s.warnOnce.Do(func() {
			log.Warnf("scheduler: num_partitions=%d configured but no worker runtime was supplied; degrading to passthrough", options.NumPartitions)
		})
		s.options.NumPartitions = 0
	}
	if _, inline := runtime.(SynchronousRuntime); inline {
		s.options.NumPartitions = 0
	}

	return s
}

// Push is log_scheduler_push (spec.md §4.4). threadIndex identifies the
// calling ingest thread explicitly — the idiomatic-Go stand-in for the
// original's implicit thread-local lookup (main_loop_worker_get_thread_index);
// see DESIGN.md. Passing an out-of-range threadIndex, like calling from an
// unregistered thread in the original, degrades to synchronous reinjection.
func (s *Scheduler) Push(threadIndex int, msg *message.LogMessage, opts message.PathOptions) {
	if s.options.NumPartitions == 0 || threadIndex < 0 || threadIndex >= s.numThreads {
		reinject(s.frontPipe, msg, opts)
		return
	}

	ts := s.threadStates[threadIndex]
	if ts.numMessages == 0 {
		s.runtime.RegisterBatchCallback(threadIndex, func() { ts.flush(s.partitions) })
	}

	partitionIndex := s.partitionFor(ts, msg)
	ts.enqueue(partitionIndex, message.QueueNode{Msg: msg, Options: opts})
	s.metrics.Pushed()
}

func (s *Scheduler) partitionFor(ts *threadState, msg *message.LogMessage) int {
	if s.options.PartitionKey == nil {
		idx := ts.lastPartition
		ts.lastPartition = (ts.lastPartition + 1) % s.options.NumPartitions
		return idx
	}
	h := template.Hash(s.options.PartitionKey, msg, template.EvalOptions{})
	return int(h % uint64(s.options.NumPartitions))
}

// HashKey returns the partition index that hash partitioning assigns to an
// already rendered key: the same xxhash-mod-N step the scheduler applies to
// template.Hash's result (template.Hash is the log_template_hash entry point).
func HashKey(key string, numPartitions int) int {
	if numPartitions <= 0 {
		return 0
	}
	return int(xxhash.Sum64String(key) % uint64(numPartitions))
}

// Drained reports whether every partition has finished its queued work,
// used by the shutdown sequence (spec.md §5, "wait for flush_running to
// become false for every partition").
func (s *Scheduler) Drained() bool {
	for _, p := range s.partitions {
		if !p.drained() {
			return false
		}
	}
	return true
}

// Drain flushes every thread state immediately and submits each partition's
// job one last time, per spec.md §5's shutdown sequence. Callers should
// poll Drained() afterward (or loop: flush does not block).
func (s *Scheduler) Drain() {
	for _, ts := range s.threadStates {
		if ts.numMessages > 0 {
			ts.flush(s.partitions)
		}
	}
	for _, p := range s.partitions {
		p.mu.Lock()
		needsKick := len(p.batches) > 0 && !p.flushRunning
		if needsKick {
			p.flushRunning = true
		}
		p.mu.Unlock()
		if needsKick {
			s.runtime.SubmitContinuation(p.work)
		}
	}
}
