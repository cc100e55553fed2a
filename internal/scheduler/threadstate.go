package scheduler

import "github.com/logflowd/logflowd/internal/message"

// threadState is per-ingest-thread scratch: owned by exactly one ingest
// thread, so it needs no lock (spec.md §5, "LogSchedulerThreadState: owned
// by exactly one ingest thread"). lastPartition drives round-robin
// assignment when no partition key template is set.
//
// Grounded on LogSchedulerThreadState / _queue_thread / _flush_batch in
// original_source/lib/logscheduler.c.
type threadState struct {
	numMessages   int
	lastPartition int

	batchByPartition [][]message.QueueNode
}

func newThreadState(numPartitions int) *threadState {
	return &threadState{batchByPartition: make([][]message.QueueNode, numPartitions)}
}

func (ts *threadState) enqueue(partitionIndex int, node message.QueueNode) {
	ts.batchByPartition[partitionIndex] = append(ts.batchByPartition[partitionIndex], node)
	ts.numMessages++
}

// flush hands every non-empty per-partition sub-list off to its partition as
// a new batch, then resets (spec.md §4.4, "flush_batch").
func (ts *threadState) flush(partitions []*partition) {
	for i, nodes := range ts.batchByPartition {
		if len(nodes) == 0 {
			continue
		}
		ts.batchByPartition[i] = nil
		partitions[i].addBatch(&batch{nodes: nodes})
	}
	ts.numMessages = 0
}
