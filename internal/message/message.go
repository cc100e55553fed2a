// Package message defines LogMessage, the unit of work carried through the
// scheduler: an NVTable plus the path-options flags that must survive every
// hop unchanged (spec.md §3, "LogSchedulerBatch"; §4.4 invariant 3).
package message

import (
	"sync/atomic"

	"github.com/logflowd/logflowd/internal/nvtable"
	"github.com/logflowd/logflowd/internal/registry"
)

// PathOptions carries the flags a queue-node must preserve across the
// scheduler hop (spec.md §4.4 step 4).
type PathOptions struct {
	AckNeeded            bool
	FlowControlRequested bool
}

// AckDisposition mirrors the handful of outcomes a dropped message can be
// acked with; AT_PROCESSED is the only one this core ever assigns itself
// (spec.md §4.4 invariant 5).
type AckDisposition uint8

const (
	AckProcessed AckDisposition = iota
	AckSuspended
	AckAbandoned
)

// LogMessage is a reference-counted, NVTable-backed log record.
type LogMessage struct {
	refCount int32
	Table    *nvtable.Table
}

// New wraps table in a fresh, singly-referenced message.
func New(table *nvtable.Table) *LogMessage {
	return &LogMessage{refCount: 1, Table: table}
}

// Ref increments the message's reference count, mirroring log_msg_ref.
func (m *LogMessage) Ref() *LogMessage {
	atomic.AddInt32(&m.refCount, 1)
	return m
}

// Unref decrements the reference count. The caller must not touch the
// message again if this was the last reference.
func (m *LogMessage) Unref() {
	if atomic.AddInt32(&m.refCount, -1) == 0 {
		m.Table.Unref()
	}
}

// RefCount returns the current reference count.
func (m *LogMessage) RefCount() int32 { return atomic.LoadInt32(&m.refCount) }

// Get resolves handle against the message's NVTable.
func (m *LogMessage) Get(h registry.Handle) ([]byte, nvtable.ValueType) {
	return m.Table.Get(h)
}

// EnsureWritable clones the underlying table if it is shared, so in-place
// mutation (set_direct/set_indirect/unset) never perturbs another owner's
// view (spec.md §5, "NVTable: not shared while mutable").
func (m *LogMessage) EnsureWritable() {
	if m.Table.RefCount() > 1 {
		clone := m.Table.Clone(0)
		m.Table.Unref()
		m.Table = clone
	}
}

// QueueNode is the unit spliced into a LogSchedulerBatch: one message plus
// the path-options flags it was pushed with (spec.md §3, "LogSchedulerBatch").
type QueueNode struct {
	Msg     *LogMessage
	Options PathOptions
}
