package scheduler

import (
	"sync"
	"time"

	"github.com/logflowd/logflowd/internal/message"
	"github.com/logflowd/logflowd/internal/telemetry"
	"github.com/logflowd/logflowd/log"
)

// Pipe is the downstream sink every re-injected message is handed to
// (spec.md §6, "Pipe.queue(message, path_options)"). The caller contract is
// that Queue takes ownership of the message reference it is given.
type Pipe interface {
	Queue(msg *message.LogMessage, opts message.PathOptions)
}

// batch is an ordered list of queue-nodes, the transfer unit between an
// ingest thread's flush and a partition's worker (spec.md §3,
// "LogSchedulerBatch").
type batch struct {
	nodes []message.QueueNode
}

// partition owns one ordered stream of messages. It is mutated only under
// mu; flushRunning enforces "at most one worker job active at a time"
// (spec.md §4.4 invariant 1).
//
// Grounded on LogSchedulerPartition / _work / _complete / _partition_add_batch
// in original_source/lib/logscheduler.c.
type partition struct {
	index int

	mu           sync.Mutex
	batches      []*batch
	flushRunning bool

	frontPipe Pipe
	runtime   WorkerRuntime
	metrics   *telemetry.SchedulerMetrics
}

func newPartition(index int, frontPipe Pipe, runtime WorkerRuntime) *partition {
	return &partition{index: index, frontPipe: frontPipe, runtime: runtime}
}

// addBatch appends b to the partition's queue. If no worker job is active
// and the queue was empty, it triggers one via submit-continuation.
func (p *partition) addBatch(b *batch) {
	p.mu.Lock()
	triggerFlush := false
	if !p.flushRunning && len(p.batches) == 0 {
		triggerFlush = true
		p.flushRunning = true
	}
	p.batches = append(p.batches, b)
	p.mu.Unlock()

	if triggerFlush {
		p.runtime.SubmitContinuation(p.work)
	}
}

// work drains every batch queued so far, re-injecting each message into the
// front pipe, then runs the completion step to decide whether to restart
// (spec.md §4.4, "Partition worker entry" and "Completion callback").
func (p *partition) work() {
	start := time.Now()

	p.mu.Lock()
	drained := p.batches
	p.batches = nil
	p.mu.Unlock()

	depth := 0
	for _, b := range drained {
		depth += len(b.nodes)
		for _, node := range b.nodes {
			reinject(p.frontPipe, node.Msg, node.Options)
		}
	}
	p.metrics.Flushed(p.index, depth, time.Since(start).Seconds())

	p.complete()
}

func (p *partition) complete() {
	p.mu.Lock()
	needsRestart := len(p.batches) > 0
	if !needsRestart {
		p.flushRunning = false
	}
	p.mu.Unlock()

	if needsRestart {
		p.runtime.SubmitContinuation(p.work)
	}
}

// drained reports whether the partition currently has no active worker job
// and no queued batches, used by Scheduler.Drain during shutdown.
func (p *partition) drained() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.flushRunning && len(p.batches) == 0
}

func reinject(frontPipe Pipe, msg *message.LogMessage, opts message.PathOptions) {
	if frontPipe == nil {
		log.Tracef("scheduler: dropping message, no front pipe (AT_PROCESSED)")
		msg.Unref()
		return
	}
	frontPipe.Queue(msg, opts)
}
