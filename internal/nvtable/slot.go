package nvtable

import "github.com/logflowd/logflowd/internal/registry"

// Handle names a field inside an NVTable; shared type with the registry
// that allocates it.
type Handle = registry.Handle

// NoHandle is the reserved zero handle meaning "none".
const NoHandle = registry.NoHandle

// ValueType tags the kind of a stored or evaluated value. It travels with
// the value itself and with template evaluation results (spec.md §3).
type ValueType uint8

const (
	TypeString ValueType = iota
	TypeNull
	TypeBytes
	TypeProtobuf
	TypeInt32
	TypeInt64
	TypeDouble
	TypeBoolean
	TypeDatetime
	TypeList
	TypeJSON
	TypeNone
)

func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeNull:
		return "null"
	case TypeBytes:
		return "bytes"
	case TypeProtobuf:
		return "protobuf"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeDouble:
		return "double"
	case TypeBoolean:
		return "boolean"
	case TypeDatetime:
		return "datetime"
	case TypeList:
		return "list"
	case TypeJSON:
		return "json"
	default:
		return "none"
	}
}

type slotKind uint8

const (
	slotDirect slotKind = iota
	slotIndirect
)

// slot is either a direct value owning its bytes, or an indirect slice
// naming another slot's bytes by handle (spec.md §3, "NV slot").
type slot struct {
	handle  Handle
	name    string
	kind    slotKind
	valType ValueType

	// direct
	value    []byte
	allocLen int

	// indirect
	refHandle   Handle
	sliceOffset int
	sliceLength int
}

func (s *slot) clone() *slot {
	cp := *s
	if s.kind == slotDirect {
		cp.value = append([]byte(nil), s.value...)
	}
	return &cp
}

func align4(n int) int {
	return (n + 3) &^ 3
}

const (
	directOverhead   = 12 // kind(1) + type(1) + nameLen(2) + valueLen(4) + allocLen(4)
	indirectOverhead = 16 // kind(1) + type(1) + nameLen(2) + refHandle(4) + sliceOffset(4) + sliceLength(4)
)

func directRecordSize(name string, allocLen int) int {
	return align4(directOverhead + len(name) + allocLen)
}

func indirectRecordSize(name string) int {
	return align4(indirectOverhead + len(name))
}

func (s *slot) recordSize() int {
	if s.kind == slotDirect {
		return directRecordSize(s.name, s.allocLen)
	}
	return indirectRecordSize(s.name)
}
