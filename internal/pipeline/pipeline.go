// Package pipeline wires RNode pattern matching into the en-route NVTable
// mutation spec.md §2 describes: "Parsers and rewriters — driven by RNode
// lookups — mutate the NVTable en-route (via clone-on-write if shared)."
//
// Grounded on the pattern-database usage implied by
// original_source/syslog-ng/modules/dbparser/radix.c (a rule's payload
// classifies a line and its captures become named fields) combined with
// rewrite-set-facility's ensure-writable-then-set_direct shape already
// used by internal/message/rewrite.go.
package pipeline

import (
	"github.com/logflowd/logflowd/internal/message"
	"github.com/logflowd/logflowd/internal/nvtable"
	"github.com/logflowd/logflowd/internal/radix"
	"github.com/logflowd/logflowd/internal/registry"
)

// Rule is the payload stored at a radix node: a class name assigned to any
// message whose MSG field matches the pattern the rule was inserted under.
type Rule struct {
	Class string
}

// Classifier matches an inbound message's MSG field against a compiled
// RNode tree and, on a match, rewrites the message with a CLASS field plus
// one field per named capture.
type Classifier struct {
	reg         *registry.Registry
	rules       *radix.Node
	msgHandle   registry.Handle
	classHandle registry.Handle
}

// New builds a classifier. msgHandle is the static handle the MSG field is
// stored under; classHandle is the (typically dynamic) handle CLASS
// matches are recorded under.
func New(reg *registry.Registry, rules *radix.Node, msgHandle, classHandle registry.Handle) *Classifier {
	return &Classifier{reg: reg, rules: rules, msgHandle: msgHandle, classHandle: classHandle}
}

// Classify matches msg's MSG field against the rule tree. On a match it
// ensures the message is writable, then records the rule's class and each
// named capture as a direct field, allocating a registry handle per
// capture name on first sight.
func (c *Classifier) Classify(msg *message.LogMessage) bool {
	raw, _ := msg.Get(c.msgHandle)
	if len(raw) == 0 {
		return false
	}
	text := string(raw)

	value, captures, ok := radix.Match(c.rules, text)
	if !ok {
		return false
	}

	if rule, ok := value.(Rule); ok && rule.Class != "" {
		msg.SetField(c.classHandle, "CLASS", []byte(rule.Class), nvtable.TypeString)
	}

	for _, cap := range captures {
		if cap.Name == "" {
			continue
		}
		h := c.reg.AllocHandle(cap.Name)
		if h == registry.NoHandle {
			continue
		}
		msg.SetField(h, cap.Name, []byte(cap.Text(text)), nvtable.TypeString)
	}
	return true
}
