package nvtable

import (
	"bytes"
	"testing"
)

func repeatAZ(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte('A' + i%26)
	}
	return out
}

// TestIndirectSlice reproduces scenario S2 from spec.md §8.
func TestIndirectSlice(t *testing.T) {
	tab := New(16, 16, 256)
	value := repeatAZ(128)

	if ok := tab.SetDirect(1, "VAL1", value, TypeString); !ok {
		t.Fatal("SetDirect(1) failed")
	}
	if ok := tab.SetIndirect(17, "VAL17", 1, 1, 126, TypeString); !ok {
		t.Fatal("SetIndirect(17) failed")
	}

	got, vt := tab.Get(17)
	if vt != TypeString {
		t.Fatalf("type = %v, want string", vt)
	}
	if !bytes.Equal(got, value[1:127]) {
		t.Fatalf("indirect value mismatch: got %q want %q", got, value[1:127])
	}
}

func TestRoundTripDirect(t *testing.T) {
	tab := New(4, 4, 256)
	value := []byte("hello world")

	if ok := tab.SetDirect(1, "MSG", value, TypeString); !ok {
		t.Fatal("SetDirect failed")
	}
	got, vt := tab.Get(1)
	if vt != TypeString || !bytes.Equal(got, value) {
		t.Fatalf("Get = %q/%v, want %q/string", got, vt, value)
	}
}

func TestOverwriteInPlaceWhenItFits(t *testing.T) {
	tab := New(4, 4, 256)
	tab.SetDirect(1, "V", repeatAZ(64), TypeString)
	used := tab.Used()

	if ok := tab.SetDirect(1, "V", repeatAZ(32), TypeString); !ok {
		t.Fatal("overwrite failed")
	}
	if tab.Used() != used {
		t.Fatalf("used changed on in-place overwrite: %d -> %d", used, tab.Used())
	}
	got, _ := tab.Get(1)
	if !bytes.Equal(got, repeatAZ(32)) {
		t.Fatalf("value mismatch after overwrite")
	}
}

func TestOverwriteGrowsWhenTableHasRoom(t *testing.T) {
	tab := New(4, 4, 256)
	tab.SetDirect(1, "V", repeatAZ(16), TypeString)
	used := tab.Used()

	if ok := tab.SetDirect(1, "V", repeatAZ(64), TypeString); !ok {
		t.Fatal("overwrite failed")
	}
	if tab.Used() <= used {
		t.Fatalf("expected used to grow, stayed at %d", tab.Used())
	}
}

func TestSetDirectOutOfSpace(t *testing.T) {
	tab := New(4, 4, 32)
	if ok := tab.SetDirect(1, "V", repeatAZ(64), TypeString); ok {
		t.Fatal("expected out-of-space failure")
	}
	if _, _, ok := tab.GetIfSet(1); ok {
		t.Fatal("slot must not exist after a failed allocation")
	}
}

// TestUnsetBreaksIndirectCycle reproduces invariant 3 / testable property 3
// from spec.md §8.
func TestUnsetBreaksIndirectCycle(t *testing.T) {
	tab := New(4, 4, 256)
	valueA := []byte("the quick brown fox")

	tab.SetDirect(1, "A", valueA, TypeString)
	tab.SetIndirect(5, "B", 1, 0, len(valueA), TypeString)

	tab.Unset(1)

	got, _ := tab.Get(5)
	if !bytes.Equal(got, valueA) {
		t.Fatalf("B lost A's bytes after unset: got %q want %q", got, valueA)
	}
	if _, _, ok := tab.GetIfSet(1); ok {
		t.Fatal("A should be unset")
	}
}

func TestGetUnsetReturnsEmptyString(t *testing.T) {
	tab := New(4, 4, 64)
	v, vt := tab.Get(3)
	if len(v) != 0 || vt != TypeString {
		t.Fatalf("Get(unset) = %q/%v, want empty/string", v, vt)
	}
	if _, _, ok := tab.GetIfSet(3); ok {
		t.Fatal("GetIfSet(unset) should report not-present")
	}
}

func TestIndirectToUnsetReferentIsEmptyButPresent(t *testing.T) {
	tab := New(4, 4, 64)
	tab.SetIndirect(5, "B", 2, 0, 10, TypeString)

	v, _, ok := tab.GetIfSet(5)
	if !ok {
		t.Fatal("indirect slot referencing an unset handle must still exist")
	}
	if len(v) != 0 {
		t.Fatalf("expected empty value, got %q", v)
	}
}

func TestReallocGrowsWithinCeiling(t *testing.T) {
	tab := New(4, 4, 64)
	grown := tab.ReallocIfNeeded(128)
	if grown == nil {
		t.Fatal("realloc unexpectedly failed")
	}
	if grown.Size() < tab.Size() {
		t.Fatal("realloc must never shrink the table")
	}
	if grown.Size() > NVTableMaxBytes {
		t.Fatal("realloc must never exceed NVTableMaxBytes")
	}
}

func TestReallocAtCeilingFails(t *testing.T) {
	tab := New(4, 4, NVTableMaxBytes)
	tab.used = tab.size // simulate a table that has filled its capacity
	if got := tab.ReallocIfNeeded(1); got != nil {
		t.Fatal("realloc at the ceiling must fail")
	}
}

// TestCloneOnWriteLeavesOriginalIntact reproduces testable property 5.
func TestCloneOnWriteLeavesOriginalIntact(t *testing.T) {
	tab := New(4, 4, 64)
	tab.SetDirect(1, "V", []byte("original"), TypeString)
	tab.Ref() // refcount now 2: simulates a second owner sharing the table

	grown := tab.ReallocIfNeeded(1024)
	if grown == tab {
		t.Fatal("shared table must clone on realloc, not mutate in place")
	}

	origVal, _ := tab.Get(1)
	if !bytes.Equal(origVal, []byte("original")) {
		t.Fatal("original table mutated by a realloc under shared ownership")
	}
	clonedVal, _ := grown.Get(1)
	if !bytes.Equal(clonedVal, []byte("original")) {
		t.Fatal("clone lost the original's value")
	}

	grown.SetDirect(1, "V", []byte("new"), TypeString)
	origVal2, _ := tab.Get(1)
	if !bytes.Equal(origVal2, []byte("original")) {
		t.Fatal("mutating the clone affected the original (aliased bytes)")
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	tab := New(4, 4, 256)
	tab.SetDirect(1, "HOST", []byte("myhost"), TypeString)
	tab.SetDirect(2, "MSG", []byte("hello there"), TypeString)
	tab.SetIndirect(6, "SLICE", 2, 0, 5, TypeString)
	tab.Unset(3) // no-op, handle never set

	data, err := Marshal(tab)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	back, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	for _, h := range []Handle{1, 2, 6} {
		want, wantType := tab.Get(h)
		got, gotType := back.Get(h)
		if !bytes.Equal(want, got) || wantType != gotType {
			t.Fatalf("round trip mismatch for handle %d: got %q/%v want %q/%v", h, got, gotType, want, wantType)
		}
	}
}
