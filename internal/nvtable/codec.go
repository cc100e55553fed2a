package nvtable

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// header mirrors the wire layout in spec.md §6 ("Persisted binary layout").
type header struct {
	Size      uint16
	Used      uint16
	NumStatic uint8
	NumDyn    uint16
	RefCount  uint16
	Flags     uint8
}

const flagBorrowed = 1 << 0

// Marshal serializes t into the disk-queue persistence layout described in
// spec.md §6: a fixed header, a static offset array, a sorted dynamic
// {handle, offset} table, and a payload arena. Offset 0 always means
// "unset", so the payload body is padded with 4 reserved bytes before the
// first real record.
func Marshal(t *Table) ([]byte, error) {
	if t.numStatic > 0xFF {
		return nil, fmt.Errorf("nvtable: too many static handles to serialize (%d)", t.numStatic)
	}

	type dynEntry struct {
		handle Handle
		offset uint32
	}

	var payload bytes.Buffer
	payload.Write(make([]byte, 4)) // reserve offset 0 for "unset"

	staticOffsets := make([]uint32, t.numStatic)
	var dynEntries []dynEntry

	writeRecord := func(s *slot) (uint32, error) {
		off := uint32(payload.Len())
		if s.kind == slotDirect {
			if len(s.name) > 0xFFFF {
				return 0, fmt.Errorf("nvtable: name too long to serialize")
			}
			payload.WriteByte(byte(slotDirect))
			payload.WriteByte(byte(s.valType))
			binary.Write(&payload, binary.LittleEndian, uint16(len(s.name)))
			binary.Write(&payload, binary.LittleEndian, uint32(len(s.value)))
			binary.Write(&payload, binary.LittleEndian, uint32(s.allocLen))
			payload.WriteString(s.name)
			payload.Write(s.value)
			if pad := s.allocLen - len(s.value); pad > 0 {
				payload.Write(make([]byte, pad))
			}
		} else {
			payload.WriteByte(byte(slotIndirect))
			payload.WriteByte(byte(s.valType))
			binary.Write(&payload, binary.LittleEndian, uint16(len(s.name)))
			binary.Write(&payload, binary.LittleEndian, uint32(s.refHandle))
			binary.Write(&payload, binary.LittleEndian, uint32(s.sliceOffset))
			binary.Write(&payload, binary.LittleEndian, uint32(s.sliceLength))
			payload.WriteString(s.name)
		}
		if pad := align4(payload.Len()) - payload.Len(); pad > 0 {
			payload.Write(make([]byte, pad))
		}
		return off, nil
	}

	for i, s := range t.static {
		if s == nil {
			continue
		}
		off, err := writeRecord(s)
		if err != nil {
			return nil, err
		}
		staticOffsets[i] = off
	}
	for _, s := range t.dynamic {
		off, err := writeRecord(s)
		if err != nil {
			return nil, err
		}
		dynEntries = append(dynEntries, dynEntry{handle: s.handle, offset: off})
	}

	if payload.Len() > 0xFFFF {
		return nil, fmt.Errorf("nvtable: payload too large to serialize in this wire format (%d bytes)", payload.Len())
	}
	if t.size > 0xFFFF || t.used > 0xFFFF {
		return nil, fmt.Errorf("nvtable: table size %d (used %d) too large to serialize in this wire format", t.size, t.used)
	}

	h := header{
		Size:      uint16(t.size),
		Used:      uint16(t.used),
		NumStatic: uint8(t.numStatic),
		NumDyn:    uint16(len(dynEntries)),
		RefCount:  uint16(t.RefCount()),
	}
	if t.borrowed {
		h.Flags |= flagBorrowed
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, h)
	for _, off := range staticOffsets {
		binary.Write(&buf, binary.LittleEndian, off)
	}
	for _, e := range dynEntries {
		binary.Write(&buf, binary.LittleEndian, uint32(e.handle))
		binary.Write(&buf, binary.LittleEndian, e.offset)
	}
	buf.Write(payload.Bytes())
	return buf.Bytes(), nil
}

// Unmarshal reverses Marshal.
func Unmarshal(data []byte) (*Table, error) {
	r := bytes.NewReader(data)

	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("nvtable: reading header: %w", err)
	}

	staticOffsets := make([]uint32, h.NumStatic)
	for i := range staticOffsets {
		if err := binary.Read(r, binary.LittleEndian, &staticOffsets[i]); err != nil {
			return nil, fmt.Errorf("nvtable: reading static offset %d: %w", i, err)
		}
	}

	type dynEntry struct {
		Handle uint32
		Offset uint32
	}
	dynEntries := make([]dynEntry, h.NumDyn)
	for i := range dynEntries {
		if err := binary.Read(r, binary.LittleEndian, &dynEntries[i]); err != nil {
			return nil, fmt.Errorf("nvtable: reading dyn entry %d: %w", i, err)
		}
	}

	payloadStart := len(data) - r.Len()
	payload := data[payloadStart:]

	readRecord := func(offset uint32) (*slot, error) {
		p := bytes.NewReader(payload[offset:])
		kindByte, err := p.ReadByte()
		if err != nil {
			return nil, err
		}
		valTypeByte, err := p.ReadByte()
		if err != nil {
			return nil, err
		}
		var nameLen uint16
		if err := binary.Read(p, binary.LittleEndian, &nameLen); err != nil {
			return nil, err
		}

		s := &slot{kind: slotKind(kindByte), valType: ValueType(valTypeByte)}
		if s.kind == slotDirect {
			var valueLen, allocLen uint32
			if err := binary.Read(p, binary.LittleEndian, &valueLen); err != nil {
				return nil, err
			}
			if err := binary.Read(p, binary.LittleEndian, &allocLen); err != nil {
				return nil, err
			}
			name := make([]byte, nameLen)
			if _, err := p.Read(name); err != nil {
				return nil, err
			}
			value := make([]byte, allocLen)
			if _, err := p.Read(value); err != nil {
				return nil, err
			}
			s.name = string(name)
			s.value = value[:valueLen]
			s.allocLen = int(allocLen)
		} else {
			var refHandle, sliceOffset, sliceLength uint32
			if err := binary.Read(p, binary.LittleEndian, &refHandle); err != nil {
				return nil, err
			}
			if err := binary.Read(p, binary.LittleEndian, &sliceOffset); err != nil {
				return nil, err
			}
			if err := binary.Read(p, binary.LittleEndian, &sliceLength); err != nil {
				return nil, err
			}
			name := make([]byte, nameLen)
			if _, err := p.Read(name); err != nil {
				return nil, err
			}
			s.name = string(name)
			s.refHandle = Handle(refHandle)
			s.sliceOffset = int(sliceOffset)
			s.sliceLength = int(sliceLength)
		}
		return s, nil
	}

	t := &Table{
		refCount:  1,
		size:      int(h.Size),
		used:      int(h.Used),
		borrowed:  h.Flags&flagBorrowed != 0,
		numStatic: Handle(h.NumStatic),
		static:    make([]*slot, h.NumStatic),
		dynamic:   make([]*slot, 0, h.NumDyn),
	}

	for i, off := range staticOffsets {
		if off == 0 {
			continue
		}
		s, err := readRecord(off)
		if err != nil {
			return nil, fmt.Errorf("nvtable: reading static record %d: %w", i, err)
		}
		s.handle = Handle(i + 1)
		t.static[i] = s
	}
	for _, e := range dynEntries {
		if e.Offset == 0 {
			continue
		}
		s, err := readRecord(e.Offset)
		if err != nil {
			return nil, fmt.Errorf("nvtable: reading dyn record handle=%d: %w", e.Handle, err)
		}
		s.handle = Handle(e.Handle)
		t.dynamic = append(t.dynamic, s)
	}

	return t, nil
}
