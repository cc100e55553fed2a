package radix

import "testing"

// TestIPv4Match reproduces scenario S3 from spec.md §8.
func TestIPv4Match(t *testing.T) {
	root := New()
	if err := Insert(root, "@IPv4:ip@", "rule-ip"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	val, caps, ok := Match(root, "192.168.1.1 huhuhu")
	if !ok || val != "rule-ip" {
		t.Fatalf("Match = %v/%v, want rule-ip/true", val, ok)
	}
	if len(caps) != 1 || caps[0].Name != "ip" || caps[0].Text("192.168.1.1 huhuhu") != "192.168.1.1" {
		t.Fatalf("captures = %+v, want ip=192.168.1.1", caps)
	}

	if _, _, ok := Match(root, "192.168.1 huhuhu"); ok {
		t.Fatal("truncated IPv4 must not match")
	}
}

// TestQStringMatch reproduces scenario S4 from spec.md §8.
func TestQStringMatch(t *testing.T) {
	root := New()
	if err := Insert(root, "@QSTRING:qstring:'@", "rule-q"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	val, caps, ok := Match(root, "'quoted string' hehehe")
	if !ok || val != "rule-q" {
		t.Fatalf("Match = %v/%v, want rule-q/true", val, ok)
	}
	if len(caps) != 1 || caps[0].Name != "qstring" || caps[0].Text("'quoted string' hehehe") != "quoted string" {
		t.Fatalf("captures = %+v, want qstring=\"quoted string\"", caps)
	}
}

// TestRadixCompleteness reproduces invariant/testable property 6.
func TestRadixCompleteness(t *testing.T) {
	root := New()
	patterns := []string{"foo", "foobar", "foo/bar", "baz@@qux", "@STRING:tag@-done"}
	for _, p := range patterns {
		if err := Insert(root, p, p); err != nil {
			t.Fatalf("Insert(%q): %v", p, err)
		}
	}

	for _, p := range []string{"foo", "foobar", "foo/bar", "baz@qux"} {
		val, _, ok := Find(root, p)
		if !ok || val != patternFor(p) {
			t.Fatalf("Find(%q) = %v/%v, want exact-match hit", p, val, ok)
		}
	}

	val, caps, ok := Find(root, "hello-done")
	if !ok || val != "@STRING:tag@-done" {
		t.Fatalf("Find(tagged) = %v/%v", val, ok)
	}
	if len(caps) != 1 || caps[0].Text("hello-done") != "hello" {
		t.Fatalf("captures = %+v, want tag=hello", caps)
	}
}

func patternFor(matched string) string {
	if matched == "baz@qux" {
		return "baz@@qux"
	}
	return matched
}

// TestLiteralBeatsParser reproduces invariant/testable property 7.
func TestLiteralBeatsParser(t *testing.T) {
	root := New()
	if err := Insert(root, "1", "literal-one"); err != nil {
		t.Fatal(err)
	}
	if err := Insert(root, "@NUMBER:n@-tail", "parser-number"); err != nil {
		t.Fatal(err)
	}

	val, _, ok := Find(root, "1")
	if !ok || val != "literal-one" {
		t.Fatalf("Find(1) = %v/%v, want literal-one (literal child must win over the parser child)", val, ok)
	}

	val, caps, ok := Find(root, "123-tail")
	if !ok || val != "parser-number" {
		t.Fatalf("Find(123-tail) = %v/%v, want parser-number", val, ok)
	}
	if len(caps) != 1 || caps[0].Text("123-tail") != "123" {
		t.Fatalf("captures = %+v, want n=123", caps)
	}
}

// TestCRLFEquivalence reproduces invariant/testable property 8.
func TestCRLFEquivalence(t *testing.T) {
	root := New()
	if err := Insert(root, "line\none\n", "payload"); err != nil {
		t.Fatal(err)
	}

	if _, _, ok := Find(root, "line\none\n"); !ok {
		t.Fatal("exact LF input must match")
	}
	if _, _, ok := Find(root, "line\r\none\r\n"); !ok {
		t.Fatal("CRLF input must match the same pattern as LF")
	}
}

func TestLiteralSplitOnCommonPrefix(t *testing.T) {
	root := New()
	if err := Insert(root, "application/json", "json"); err != nil {
		t.Fatal(err)
	}
	if err := Insert(root, "application/xml", "xml"); err != nil {
		t.Fatal(err)
	}

	if val, _, ok := Find(root, "application/json"); !ok || val != "json" {
		t.Fatalf("Find(json) = %v/%v", val, ok)
	}
	if val, _, ok := Find(root, "application/xml"); !ok || val != "xml" {
		t.Fatalf("Find(xml) = %v/%v", val, ok)
	}
	if _, _, ok := Find(root, "application/"); ok {
		t.Fatal("the shared prefix alone must not carry a value")
	}
}

func TestDuplicateInsertFirstWins(t *testing.T) {
	root := New()
	if err := Insert(root, "dup", "first"); err != nil {
		t.Fatal(err)
	}
	if err := Insert(root, "dup", "second"); err != nil {
		t.Fatal(err)
	}
	if val, _, ok := Find(root, "dup"); !ok || val != "first" {
		t.Fatalf("Find(dup) = %v/%v, want first (first insertion wins)", val, ok)
	}
}

func TestMalformedPatternRejected(t *testing.T) {
	root := New()
	if err := Insert(root, "@BOGUSKIND:x@", "nope"); err == nil {
		t.Fatal("unknown parser kind must be rejected")
	}
	if err := Insert(root, "@STRING:x", "nope"); err == nil {
		t.Fatal("unterminated parser spec must be rejected")
	}
}
