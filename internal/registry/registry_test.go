package registry

import (
	"fmt"
	"testing"
)

// TestHandleAllocation reproduces scenario S1 from spec.md §8.
func TestHandleAllocation(t *testing.T) {
	reg := New([]string{"BUILTIN1", "BUILTIN2", "BUILTIN3"}, 10)

	if h := reg.AllocHandle("BUILTIN1"); h != 1 {
		t.Fatalf("BUILTIN1 = %d, want 1", h)
	}
	if h := reg.AllocHandle("BUILTIN2"); h != 2 {
		t.Fatalf("BUILTIN2 = %d, want 2", h)
	}
	if h := reg.AllocHandle("BUILTIN3"); h != 3 {
		t.Fatalf("BUILTIN3 = %d, want 3", h)
	}

	h := reg.AllocHandle("DYN00004")
	if h != 4 {
		t.Fatalf("DYN00004 = %d, want 4", h)
	}
	if again := reg.AllocHandle("DYN00004"); again != h {
		t.Fatalf("repeat alloc = %d, want %d", again, h)
	}

	if !reg.AddAlias(h, "ALIAS00004") {
		t.Fatal("AddAlias failed")
	}
	if aliased := reg.AllocHandle("ALIAS00004"); aliased != h {
		t.Fatalf("alias resolved to %d, want %d", aliased, h)
	}

	name, ok := reg.GetName(h)
	if !ok || name != "DYN00004" {
		t.Fatalf("GetName = %q, %v; want DYN00004, true (aliases must not shadow original name)", name, ok)
	}

	for i := 5; i <= 10; i++ {
		if got := reg.AllocHandle(dynName(i)); got != Handle(i) {
			t.Fatalf("AllocHandle(%s) = %d, want %d", dynName(i), got, i)
		}
	}

	if got := reg.AllocHandle("too-many-values"); got != NoHandle {
		t.Fatalf("over-ceiling alloc = %d, want NoHandle", got)
	}
}

func TestAddAliasCollision(t *testing.T) {
	reg := New([]string{"A", "B"}, 10)
	if reg.AddAlias(1, "B") {
		t.Fatal("aliasing a name that already names another handle must be rejected")
	}
}

func dynName(i int) string {
	return fmt.Sprintf("DYN%05d", i)
}
