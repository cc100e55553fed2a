package message

import (
	"strings"

	"github.com/logflowd/logflowd/internal/nvtable"
)

// String renders a message's NVTable as a sequence of key="value" pairs,
// every value quoted and escaped.
//
// Grounded on the event-log formatter in
// original_source/lib/eventlog/src/evtstr.c / evtfmt.c: each field is
// written name="value" with '"', '\\', '\n', '\r' and '\t' escaped (other
// control bytes are written unchanged),
// fields separated by a single space. Used for Trace-level logging of a
// message's contents, not for the wire format (that's NVTable's binary
// layout, see internal/nvtable/codec.go).
func (m *LogMessage) String() string {
	var b strings.Builder
	first := true
	m.Table.ForEach(func(h nvtable.Handle, name string, value []byte, vt nvtable.ValueType) {
		if !first {
			b.WriteByte(' ')
		}
		first = false
		b.WriteString(name)
		b.WriteByte('=')
		writeQuoted(&b, value)
	})
	return b.String()
}

func writeQuoted(b *strings.Builder, value []byte) {
	b.WriteByte('"')
	for _, c := range value {
		switch c {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
}
