package message

import (
	"github.com/logflowd/logflowd/internal/nvtable"
	"github.com/logflowd/logflowd/internal/registry"
)

// SetField is a tiny field rewriter: it overwrites handle's value with a
// literal, cloning the underlying table first if it is shared.
//
// Grounded on rewrite-set-facility in
// original_source/lib/rewrite/rewrite-set-facility.c, which does exactly
// this for the syslog facility field: ensure the message is writable, then
// call nv_table_set_direct(table, handle, value, len). This is the
// narrowest possible instance of "rewriters mutate the NVTable en-route
// (via clone-on-write if shared)" (spec.md §2).
func (m *LogMessage) SetField(h registry.Handle, name string, value []byte, vt nvtable.ValueType) bool {
	m.EnsureWritable()
	if m.Table.SetDirect(h, name, value, vt) {
		return true
	}
	clone := m.Table.ReallocIfNeeded(len(value) + len(name) + 16)
	if clone == nil {
		return false
	}
	m.Table = clone
	return m.Table.SetDirect(h, name, value, vt)
}
