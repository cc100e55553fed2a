// Package nvtable implements the compact, ref-counted, clone-on-write
// binary container that backs every in-flight log message (spec.md §3, §4.2).
//
// Grounded on the nv_table_* contract exercised by
// original_source/lib/logmsg/tests/test_nvtable.c: static slots hold a
// fixed offset table, dynamic slots are kept sorted for binary lookup,
// direct slots own their bytes and support in-place overwrite while the
// existing allocation is large enough, and indirect slots reference a
// byte range of another slot by handle.
package nvtable

import (
	"sort"
	"sync/atomic"

	"github.com/logflowd/logflowd/internal/telemetry"
	"github.com/logflowd/logflowd/log"
)

// metrics is process-wide: every Table shares the same instrumentation,
// mirroring spec.md §4.2's "shared process-wide" treatment of the
// registry. A nil metrics (the default) costs nothing. Set it once at
// startup with SetMetrics before any Table is created under load.
var metrics *telemetry.NVTableMetrics

// SetMetrics wires m into every Table's growth and clone path.
func SetMetrics(m *telemetry.NVTableMetrics) {
	metrics = m
}

// NVTableMaxBytes is the hard ceiling on a table's payload arena size
// (spec.md §3 invariant 1, "≈1 GiB cap").
const NVTableMaxBytes = 1 << 30

// Table is the name-value store backing one in-flight log message.
// It is not internally synchronized: callers must not mutate a Table that
// may be concurrently observed by another reference holder without first
// cloning it (see Ref/ReallocIfNeeded/Clone).
type Table struct {
	refCount int32
	borrowed bool

	size int // payload arena capacity, in bookkeeping bytes
	used int // payload arena bytes consumed

	numStatic Handle
	static    []*slot // index by handle-1; nil entry == unset
	dynamic   []*slot // sorted by handle, ascending
}

// New allocates a fresh table. numStatic static handles are reserved
// up-front (always unset); dynCapacityHint sizes the initial dynamic slot
// slice (a hint only, it grows as needed); payloadBytes is the initial
// payload arena capacity.
func New(numStatic int, dynCapacityHint int, payloadBytes int) *Table {
	return &Table{
		refCount:  1,
		size:      payloadBytes,
		numStatic: Handle(numStatic),
		static:    make([]*slot, numStatic),
		dynamic:   make([]*slot, 0, dynCapacityHint),
	}
}

// Size returns the payload arena's current capacity.
func (t *Table) Size() int { return t.size }

// Used returns the payload arena's current consumption.
func (t *Table) Used() int { return t.used }

// RefCount returns the current reference count.
func (t *Table) RefCount() int32 { return atomic.LoadInt32(&t.refCount) }

// Ref increments the reference count and returns the same table, so that
// fan-out across parallel pipeline branches is a cheap pointer copy
// (spec.md §4.2 rationale).
func (t *Table) Ref() *Table {
	atomic.AddInt32(&t.refCount, 1)
	return t
}

// Unref decrements the reference count. The caller must not touch the
// table again if this was the last reference.
func (t *Table) Unref() {
	atomic.AddInt32(&t.refCount, -1)
}

// Borrowed reports whether the table is on loan (e.g. embedded in a
// larger message without owning its own lifetime).
func (t *Table) Borrowed() bool { return t.borrowed }

func (t *Table) SetBorrowed(b bool) { t.borrowed = b }

func (t *Table) findSlot(h Handle) *slot {
	if h == NoHandle {
		return nil
	}
	if h <= t.numStatic {
		return t.static[h-1]
	}
	i := sort.Search(len(t.dynamic), func(i int) bool { return t.dynamic[i].handle >= h })
	if i < len(t.dynamic) && t.dynamic[i].handle == h {
		return t.dynamic[i]
	}
	return nil
}

func (t *Table) allSlots(yield func(*slot)) {
	for _, s := range t.static {
		if s != nil {
			yield(s)
		}
	}
	for _, s := range t.dynamic {
		yield(s)
	}
}

// putSlot installs s, replacing whatever was previously stored under its
// handle (if anything). It does not perform any capacity accounting.
func (t *Table) putSlot(s *slot) {
	if s.handle <= t.numStatic {
		t.static[s.handle-1] = s
		return
	}
	i := sort.Search(len(t.dynamic), func(i int) bool { return t.dynamic[i].handle >= s.handle })
	if i < len(t.dynamic) && t.dynamic[i].handle == s.handle {
		t.dynamic[i] = s
		return
	}
	t.dynamic = append(t.dynamic, nil)
	copy(t.dynamic[i+1:], t.dynamic[i:])
	t.dynamic[i] = s
}

func (t *Table) removeSlot(h Handle) {
	if h <= t.numStatic {
		if h >= 1 {
			t.static[h-1] = nil
		}
		return
	}
	i := sort.Search(len(t.dynamic), func(i int) bool { return t.dynamic[i].handle >= h })
	if i < len(t.dynamic) && t.dynamic[i].handle == h {
		t.dynamic = append(t.dynamic[:i], t.dynamic[i+1:]...)
	}
}

// Get returns the stored value for handle, following indirect chains.
// An unset handle yields an empty string value, per spec.md §4.2.
func (t *Table) Get(h Handle) ([]byte, ValueType) {
	v, vt, ok := t.GetIfSet(h)
	if !ok {
		return nil, TypeString
	}
	return v, vt
}

// GetIfSet is like Get but distinguishes "not present" from an empty value.
func (t *Table) GetIfSet(h Handle) ([]byte, ValueType, bool) {
	s := t.findSlot(h)
	if s == nil {
		return nil, TypeString, false
	}
	return t.resolve(s)
}

func (t *Table) resolve(s *slot) ([]byte, ValueType, bool) {
	if s.kind == slotDirect {
		return s.value, s.valType, true
	}

	ref := t.findSlot(s.refHandle)
	if ref == nil {
		// The referenced slot is unset: the indirect slot still exists,
		// but resolves to an empty value (spec.md §4.2 set_indirect).
		return nil, s.valType, true
	}

	refVal, _, ok := t.resolve(ref)
	if !ok {
		return nil, s.valType, true
	}

	lo, hi := s.sliceOffset, s.sliceOffset+s.sliceLength
	if lo < 0 || hi > len(refVal) || lo > hi {
		log.Tracef("nvtable: clamping out-of-bounds indirect slice handle=%d ref=%d off=%d len=%d reflen=%d",
			s.handle, s.refHandle, s.sliceOffset, s.sliceLength, len(refVal))
		if lo < 0 {
			lo = 0
		}
		if hi > len(refVal) {
			hi = len(refVal)
		}
		if lo > hi {
			lo = hi
		}
	}
	return refVal[lo:hi], s.valType, true
}

// SetDirect stores value under handle, owning its own bytes. If the slot
// is absent it is allocated; if present and its current allocation is
// large enough the value is overwritten in place; otherwise the slot is
// grown within the arena if there is room. Returns false ("out of space")
// if the table cannot accommodate the write; the caller should call
// ReallocIfNeeded and retry.
func (t *Table) SetDirect(h Handle, name string, value []byte, valType ValueType) bool {
	existing := t.findSlot(h)

	if existing != nil && existing.kind == slotDirect && existing.allocLen >= len(value) {
		existing.value = append(existing.value[:0], value...)
		existing.valType = valType
		return true
	}

	newAlloc := align4(len(value))
	newSize := directRecordSize(name, newAlloc)
	oldSize := 0
	if existing != nil {
		oldSize = existing.recordSize()
	}
	delta := newSize - oldSize
	if t.used+delta > t.size {
		return false
	}

	t.used += delta
	t.putSlot(&slot{
		handle:   h,
		name:     name,
		kind:     slotDirect,
		valType:  valType,
		value:    append([]byte(nil), value...),
		allocLen: newAlloc,
	})
	return true
}

// SetIndirect records a reference slot naming [offset, offset+length) of
// the bytes stored under refHandle. Static handles cannot be indirect
// (spec.md §4.3's "indirect static values are not possible").
func (t *Table) SetIndirect(h Handle, name string, refHandle Handle, offset, length int, valType ValueType) bool {
	if h <= t.numStatic {
		return false
	}

	existing := t.findSlot(h)
	newSize := indirectRecordSize(name)
	oldSize := 0
	if existing != nil {
		oldSize = existing.recordSize()
	}
	delta := newSize - oldSize
	if t.used+delta > t.size {
		return false
	}

	t.used += delta
	t.putSlot(&slot{
		handle:      h,
		name:        name,
		kind:        slotIndirect,
		valType:     valType,
		refHandle:   refHandle,
		sliceOffset: offset,
		sliceLength: length,
	})
	return true
}

// Unset removes handle's slot. Any other slot holding an indirect
// reference to it is first materialized into a direct copy of the bytes
// it named, breaking the reference before it can dangle (spec.md §4.2
// invariant 3).
func (t *Table) Unset(h Handle) {
	s := t.findSlot(h)
	if s == nil {
		return
	}

	val, vt, _ := t.resolve(s)
	var referrers []*slot
	t.allSlots(func(cand *slot) {
		if cand.kind == slotIndirect && cand.refHandle == h {
			referrers = append(referrers, cand)
		}
	})
	for _, ref := range referrers {
		lo, hi := ref.sliceOffset, ref.sliceOffset+ref.sliceLength
		if lo < 0 {
			lo = 0
		}
		if hi > len(val) {
			hi = len(val)
		}
		if lo > hi {
			lo = hi
		}
		t.SetDirect(ref.handle, ref.name, val[lo:hi], vt)
	}

	t.removeSlot(h)
}

// ForEach calls fn once per set slot, in handle order, with the slot's
// resolved value (indirect slots are followed the same way Get follows
// them). Used by message.String() for debug/trace formatting.
func (t *Table) ForEach(fn func(h Handle, name string, value []byte, vt ValueType)) {
	t.allSlots(func(s *slot) {
		val, vt, ok := t.resolve(s)
		if !ok {
			return
		}
		fn(s.handle, s.name, val, vt)
	})
}

// ReallocIfNeeded ensures the table can absorb additionalBytes more of
// payload. If the table is shared (RefCount() > 1) growth produces and
// returns a clone, leaving the original untouched; otherwise it grows in
// place and returns the same pointer. Returns nil if the ceiling
// (NVTableMaxBytes) has already been reached and no further growth is
// possible.
func (t *Table) ReallocIfNeeded(additionalBytes int) *Table {
	if t.used+additionalBytes <= t.size {
		return t
	}

	newSize := t.size * 2
	if want := t.used + additionalBytes; want > newSize {
		newSize = want
	}
	if newSize > NVTableMaxBytes {
		newSize = NVTableMaxBytes
	}
	if newSize == t.size {
		return nil
	}

	if t.RefCount() > 1 {
		clone := t.cloneTo(newSize)
		metrics.Clone(newSize)
		return clone
	}
	t.size = newSize
	metrics.Realloc(newSize)
	return t
}

// Clone produces an independent table with all slots preserved, sized to
// the original plus extraPayload (capped at NVTableMaxBytes).
func (t *Table) Clone(extraPayload int) *Table {
	newSize := t.size + extraPayload
	if newSize > NVTableMaxBytes {
		newSize = NVTableMaxBytes
	}
	clone := t.cloneTo(newSize)
	metrics.Clone(newSize)
	return clone
}

func (t *Table) cloneTo(size int) *Table {
	clone := &Table{
		refCount:  1,
		size:      size,
		used:      t.used,
		numStatic: t.numStatic,
		static:    make([]*slot, len(t.static)),
		dynamic:   make([]*slot, len(t.dynamic)),
	}
	for i, s := range t.static {
		if s != nil {
			clone.static[i] = s.clone()
		}
	}
	for i, s := range t.dynamic {
		clone.dynamic[i] = s.clone()
	}
	return clone
}
