package radix

import "sort"

// findState accumulates captures during a single DFS and remembers the
// longest partial match seen (a node with a payload reached after consuming
// a strict prefix of the input), so a caller that opts into partial matches
// never needs a second traversal. Grounded on the two-pass require_complete_match
// dance in original_source/syslog-ng/modules/dbparser/radix.c's
// _find_node_recursively, collapsed into one pass since capture rollback on
// backtrack already leaves st.captures scoped to the currently active path.
type findState struct {
	original string

	captures []Capture

	partialFound    bool
	partialLen      int
	partialValue    any
	partialCaptures []Capture
}

// matchLabel compares label against the start of input, tolerating CRLF
// equivalence: an input "\r\n" satisfies a label "\n" alone, with the CR
// consumed transparently (spec.md §4.3, "CRLF equivalence").
func matchLabel(label []byte, input string) (inConsumed, labConsumed int) {
	i, j := 0, 0
	for i < len(label) && j < len(input) {
		if label[i] == input[j] {
			i++
			j++
			continue
		}
		if input[j] == '\r' && label[i] == '\n' {
			j++
			continue
		}
		break
	}
	return j, i
}

// selectByte returns the byte used to pick a literal child, collapsing a
// leading "\r\n" to '\n' so CRLF-tolerant label matching stays consistent
// with first-byte child selection.
func selectByte(input string) byte {
	if len(input) >= 2 && input[0] == '\r' && input[1] == '\n' {
		return input[1]
	}
	if len(input) > 0 {
		return input[0]
	}
	return 0
}

// Find looks up input against the tree, requiring the full input to be
// consumed along a matching path (spec.md §4.3 step 1-4, complete match).
func Find(root *Node, input string) (value any, captures []Capture, ok bool) {
	return find(root, input, false)
}

// Match behaves like Find, but if no rule consumes the input completely, it
// falls back to the longest partial match that still terminates at a node
// with a payload (spec.md §4.3, opt-in partial match). This is the entry
// point pattern databases use in practice: a rule for "@IPv4:ip@" is meant
// to classify any line starting with an address, trailing text and all.
func Match(root *Node, input string) (value any, captures []Capture, ok bool) {
	return find(root, input, true)
}

func find(root *Node, input string, allowPartial bool) (any, []Capture, bool) {
	st := &findState{original: input}
	if val, ok := findRec(st, root, input); ok {
		return val, st.captures, true
	}
	if allowPartial && st.partialFound {
		return st.partialValue, st.partialCaptures, true
	}
	return nil, nil, false
}

func findRec(st *findState, node *Node, input string) (any, bool) {
	consumed, labConsumed := matchLabel(node.label, input)
	if labConsumed != len(node.label) {
		return nil, false
	}
	remaining := input[consumed:]

	if remaining == "" {
		if node.hasValue {
			return node.value, true
		}
		return nil, false
	}

	selByte := selectByte(remaining)
	if i := sort.Search(len(node.literal), func(i int) bool { return node.literal[i].label[0] >= selByte }); i < len(node.literal) && node.literal[i].label[0] == selByte {
		if val, ok := findRec(st, node.literal[i], remaining); ok {
			return val, true
		}
	}

	for _, pc := range node.parsers {
		b := remaining[0]
		if b < pc.parser.First || b > pc.parser.Last {
			continue
		}
		consumedBytes, capOffset, capLength, matched := pc.parser.try([]byte(remaining))
		if !matched || consumedBytes == 0 {
			continue
		}

		capIndex := -1
		if pc.parser.CaptureName != "" {
			capIndex = len(st.captures)
			st.captures = append(st.captures, Capture{
				Name:   pc.parser.CaptureName,
				Kind:   pc.parser.Kind,
				Offset: len(st.original) - len(remaining) + capOffset,
				Length: capLength,
			})
		}

		if val, ok := findRec(st, pc.next, remaining[consumedBytes:]); ok {
			return val, true
		}

		if capIndex >= 0 {
			st.captures = st.captures[:capIndex]
		}
	}

	if node.hasValue {
		total := len(st.original) - len(remaining)
		if total > st.partialLen {
			st.partialFound = true
			st.partialLen = total
			st.partialValue = node.value
			st.partialCaptures = append([]Capture(nil), st.captures...)
		}
	}
	return nil, false
}
