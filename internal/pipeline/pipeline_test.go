package pipeline

import (
	"testing"

	"github.com/logflowd/logflowd/internal/message"
	"github.com/logflowd/logflowd/internal/nvtable"
	"github.com/logflowd/logflowd/internal/radix"
	"github.com/logflowd/logflowd/internal/registry"
)

func TestClassifyMatchesAndTagsCaptures(t *testing.T) {
	reg := registry.New([]string{"MSG", "CLASS"}, 64)
	msgHandle := reg.AllocHandle("MSG")
	classHandle := reg.AllocHandle("CLASS")

	root := radix.New()
	if err := radix.Insert(root, "connect from @IPv4:src_ip@", Rule{Class: "connect"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	c := New(reg, root, msgHandle, classHandle)

	tab := nvtable.New(2, 0, 64)
	tab.SetDirect(msgHandle, "MSG", []byte("connect from 10.0.0.5 extra"), nvtable.TypeString)
	msg := message.New(tab)

	if !c.Classify(msg) {
		t.Fatal("expected a match")
	}

	class, _ := msg.Get(classHandle)
	if string(class) != "connect" {
		t.Fatalf("CLASS = %q, want %q", class, "connect")
	}

	srcIPHandle := reg.AllocHandle("src_ip")
	srcIP, _ := msg.Get(srcIPHandle)
	if string(srcIP) != "10.0.0.5" {
		t.Fatalf("src_ip = %q, want %q", srcIP, "10.0.0.5")
	}
}

func TestClassifyNoMatchLeavesMessageUnchanged(t *testing.T) {
	reg := registry.New([]string{"MSG", "CLASS"}, 64)
	msgHandle := reg.AllocHandle("MSG")
	classHandle := reg.AllocHandle("CLASS")

	root := radix.New()
	if err := radix.Insert(root, "connect from @IPv4:src_ip@", Rule{Class: "connect"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	c := New(reg, root, msgHandle, classHandle)

	tab := nvtable.New(2, 0, 64)
	tab.SetDirect(msgHandle, "MSG", []byte("unrelated line"), nvtable.TypeString)
	msg := message.New(tab)

	if c.Classify(msg) {
		t.Fatal("expected no match")
	}
	if _, _, ok := msg.Table.GetIfSet(classHandle); ok {
		t.Fatal("CLASS should remain unset")
	}
}
