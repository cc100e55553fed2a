package scheduler

import (
	"sync"
	"testing"

	"github.com/logflowd/logflowd/internal/message"
	"github.com/logflowd/logflowd/internal/nvtable"
	"github.com/logflowd/logflowd/internal/template"
)

const (
	tagHandle  = nvtable.Handle(1)
	hostHandle = nvtable.Handle(2)
)

func newTaggedMessage(t *testing.T, tag, host string) *message.LogMessage {
	t.Helper()
	tab := nvtable.New(2, 0, 64)
	tab.SetDirect(tagHandle, "TAG", []byte(tag), nvtable.TypeString)
	if host != "" {
		tab.SetDirect(hostHandle, "HOST", []byte(host), nvtable.TypeString)
	}
	return message.New(tab)
}

type recordingPipe struct {
	mu    sync.Mutex
	order []string
}

func (p *recordingPipe) Queue(msg *message.LogMessage, _ message.PathOptions) {
	v, _ := msg.Get(tagHandle)
	p.mu.Lock()
	p.order = append(p.order, string(v))
	p.mu.Unlock()
	msg.Unref()
}

func (p *recordingPipe) indexOf(tag string) int {
	for i, v := range p.order {
		if v == tag {
			return i
		}
	}
	return -1
}

// TestRoundRobinPartitioning reproduces scenario S5 from spec.md §8.
func TestRoundRobinPartitioning(t *testing.T) {
	pipe := &recordingPipe{}
	rt := NewManualRuntime(1)
	sched := New(Options{NumPartitions: 2}, pipe, rt, 1)

	sched.Push(0, newTaggedMessage(t, "M1", ""), message.PathOptions{})
	sched.Push(0, newTaggedMessage(t, "M2", ""), message.PathOptions{})
	sched.Push(0, newTaggedMessage(t, "M3", ""), message.PathOptions{})
	sched.Push(0, newTaggedMessage(t, "M4", ""), message.PathOptions{})

	rt.FireBatchCallbacks()

	if len(pipe.order) != 4 {
		t.Fatalf("downstream saw %d messages, want 4: %v", len(pipe.order), pipe.order)
	}
	if pipe.indexOf("M1") >= pipe.indexOf("M3") {
		t.Fatalf("partition-0 order violated: %v", pipe.order)
	}
	if pipe.indexOf("M2") >= pipe.indexOf("M4") {
		t.Fatalf("partition-1 order violated: %v", pipe.order)
	}
}

// TestHashPartitioning reproduces scenario S6 from spec.md §8.
func TestHashPartitioning(t *testing.T) {
	pipe := &recordingPipe{}
	rt := NewManualRuntime(1)

	key := template.New().WithMacro(template.NewHostMacro(hostHandle))
	sched := New(Options{NumPartitions: 2, PartitionKey: key}, pipe, rt, 1)

	sched.Push(0, newTaggedMessage(t, "Ma", "a"), message.PathOptions{})
	sched.Push(0, newTaggedMessage(t, "Mb", "b"), message.PathOptions{})
	sched.Push(0, newTaggedMessage(t, "Ma2", "a"), message.PathOptions{})

	rt.FireBatchCallbacks()

	if len(pipe.order) != 3 {
		t.Fatalf("downstream saw %d messages, want 3: %v", len(pipe.order), pipe.order)
	}
	if pipe.indexOf("Ma") >= pipe.indexOf("Ma2") {
		t.Fatalf("same-host messages must preserve relative order: %v", pipe.order)
	}
}

// TestFIFOInPartition reproduces testable property 9.
func TestFIFOInPartition(t *testing.T) {
	pipe := &recordingPipe{}
	rt := NewManualRuntime(1)
	sched := New(Options{NumPartitions: 1}, pipe, rt, 1)

	want := []string{"A", "B", "C", "D", "E"}
	for _, tag := range want {
		sched.Push(0, newTaggedMessage(t, tag, ""), message.PathOptions{})
	}
	rt.FireBatchCallbacks()

	if len(pipe.order) != len(want) {
		t.Fatalf("got %v, want %v", pipe.order, want)
	}
	for i, tag := range want {
		if pipe.order[i] != tag {
			t.Fatalf("order[%d] = %q, want %q (full: %v)", i, pipe.order[i], tag, pipe.order)
		}
	}
}

// TestNoLoss reproduces testable property 10.
func TestNoLoss(t *testing.T) {
	pipe := &recordingPipe{}
	rt := NewManualRuntime(1)
	sched := New(Options{NumPartitions: 4}, pipe, rt, 1)

	const n = 50
	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		tag := tagFor(i)
		seen[tag] = false
		sched.Push(0, newTaggedMessage(t, tag, ""), message.PathOptions{})
	}
	rt.FireBatchCallbacks()

	if len(pipe.order) != n {
		t.Fatalf("downstream saw %d messages, want %d", len(pipe.order), n)
	}
	for _, tag := range pipe.order {
		if seen[tag] {
			t.Fatalf("message %q delivered more than once", tag)
		}
		seen[tag] = true
	}
	for tag, ok := range seen {
		if !ok {
			t.Fatalf("message %q never reached the downstream pipe", tag)
		}
	}
}

func tagFor(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return "msg-" + string(letters[i%len(letters)]) + string(letters[(i/len(letters))%len(letters)])
}

// TestPassthroughDegradation reproduces testable property 11.
func TestPassthroughDegradation(t *testing.T) {
	pipe := &recordingPipe{}
	rt := NewManualRuntime(1)
	sched := New(Options{NumPartitions: 0}, pipe, rt, 1)

	sched.Push(0, newTaggedMessage(t, "X", ""), message.PathOptions{})
	sched.Push(0, newTaggedMessage(t, "Y", ""), message.PathOptions{})

	if len(pipe.order) != 2 || pipe.order[0] != "X" || pipe.order[1] != "Y" {
		t.Fatalf("expected synchronous in-order passthrough, got %v", pipe.order)
	}
}

func TestOutOfRangeThreadIndexDegradesToPassthrough(t *testing.T) {
	pipe := &recordingPipe{}
	rt := NewManualRuntime(2)
	sched := New(Options{NumPartitions: 2}, pipe, rt, 2)

	sched.Push(99, newTaggedMessage(t, "Z", ""), message.PathOptions{})
	if len(pipe.order) != 1 || pipe.order[0] != "Z" {
		t.Fatalf("expected immediate passthrough for an unregistered thread index, got %v", pipe.order)
	}
}
