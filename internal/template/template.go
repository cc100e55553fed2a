// Package template implements the interface-level LogTemplate collaborator
// (spec.md §4.5): an immutable, reference-counted ordered list of compiled
// elements evaluated against a message to produce a string and a value-type
// tag, used chiefly to compute the scheduler's partition key.
//
// Grounded on the teacher's metric/tag formatting helpers
// (_examples/ClusterCockpit-cc-backend/internal/metricstore/api.go) for the
// "compiled element list, evaluated left to right into a builder" shape, and
// on original_source's log_template_hash contract (spec.md §6) for Hash.
package template

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/logflowd/logflowd/internal/listscanner"
	"github.com/logflowd/logflowd/internal/message"
	"github.com/logflowd/logflowd/internal/nvtable"
	"github.com/logflowd/logflowd/internal/registry"
)

// EvalOptions carries the evaluation-time context spec.md §4.5 names:
// timezone, sequence number, correlation-context id, and an optional escape
// callback applied to every resolved value before it is appended.
type EvalOptions struct {
	TimeZone  *time.Location
	SeqNum    uint64
	ContextID string
	Escape    func(string) string
}

// Macro is a computed field: a named function from a message (plus eval
// options) to a string and propagated value type.
type Macro struct {
	Name string
	Fn   func(msg *message.LogMessage, opts EvalOptions) (string, nvtable.ValueType)
}

type elementKind uint8

const (
	elemLiteral elementKind = iota
	elemValueRef
	elemMacro
	elemFunctionCall
)

type element struct {
	kind elementKind

	literal string
	handle  registry.Handle
	macro   *Macro

	fnName string
	fnArgs []*Template
}

// Template is an immutable, reference-counted compiled template.
type Template struct {
	refCount int32
	elements []element
}

// New compiles an empty template; use the With* builders to append elements.
// Templates are built once (typically at config-load time) and then shared
// read-only, matching spec.md §4.5's "reference-counted and cheap to clone".
func New() *Template {
	return &Template{refCount: 1}
}

func (t *Template) Ref() *Template {
	atomic.AddInt32(&t.refCount, 1)
	return t
}

func (t *Template) Unref() {
	atomic.AddInt32(&t.refCount, -1)
}

func (t *Template) WithLiteral(text string) *Template {
	t.elements = append(t.elements, element{kind: elemLiteral, literal: text})
	return t
}

func (t *Template) WithValueRef(h registry.Handle) *Template {
	t.elements = append(t.elements, element{kind: elemValueRef, handle: h})
	return t
}

func (t *Template) WithMacro(m *Macro) *Template {
	t.elements = append(t.elements, element{kind: elemMacro, macro: m})
	return t
}

func (t *Template) WithFunctionCall(name string, args ...*Template) *Template {
	t.elements = append(t.elements, element{kind: elemFunctionCall, fnName: name, fnArgs: args})
	return t
}

// Trivial reports whether the template is a single value-reference or a
// bare $MSG/$HOST-style macro with no other elements, letting callers
// fast-path straight to an NVTable lookup (spec.md §4.5).
func (t *Template) Trivial() bool {
	if len(t.elements) != 1 {
		return false
	}
	switch t.elements[0].kind {
	case elemValueRef:
		return true
	case elemMacro:
		name := t.elements[0].macro.Name
		return name == "MSG" || name == "HOST"
	default:
		return false
	}
}

// functions is the variadic function-call registry; correlation-aware
// functions would extend this with a multi-message context, which is out of
// scope here (spec.md's non-goal list excludes correlation blocks).
//
// upper/lower/len/substr/strip/num+/ipv4-to-int are grounded on
// modules/basicfuncs/str-funcs.c, numeric-funcs.c, and ip-funcs.c: the
// minimal function-call surface named in SPEC_FULL's supplemented
// features, enough to exercise elemFunctionCall beyond the bare shape
// the distilled spec leaves unspecified.
var functions = map[string]func(args []string) string{
	"upper": func(args []string) string {
		if len(args) == 0 {
			return ""
		}
		return strings.ToUpper(args[0])
	},
	"lower": func(args []string) string {
		if len(args) == 0 {
			return ""
		}
		return strings.ToLower(args[0])
	},
	"len": func(args []string) string {
		if len(args) == 0 {
			return "0"
		}
		return strconv.Itoa(len(args[0]))
	},
	"substr": func(args []string) string {
		if len(args) < 2 {
			return ""
		}
		s := args[0]
		start, err := strconv.Atoi(args[1])
		if err != nil || start < 0 || start > len(s) {
			return ""
		}
		length := len(s) - start
		if len(args) >= 3 {
			if n, err := strconv.Atoi(args[2]); err == nil && n >= 0 {
				length = n
			}
		}
		end := start + length
		if end > len(s) {
			end = len(s)
		}
		return s[start:end]
	},
	"strip": func(args []string) string {
		if len(args) == 0 {
			return ""
		}
		return strings.TrimSpace(args[0])
	},
	"num+": func(args []string) string {
		var sum float64
		allInt := true
		for _, a := range args {
			v, isInt, ok := listscanner.ParseNumber(a)
			if !ok {
				continue
			}
			sum += v
			allInt = allInt && isInt
		}
		if allInt {
			return strconv.FormatInt(int64(sum), 10)
		}
		return strconv.FormatFloat(sum, 'f', -1, 64)
	},
	"ipv4-to-int": func(args []string) string {
		if len(args) == 0 {
			return "0"
		}
		var octets [4]uint64
		parts := strings.Split(args[0], ".")
		if len(parts) != 4 {
			return "0"
		}
		var n uint64
		for i, p := range parts {
			v, err := strconv.ParseUint(p, 10, 8)
			if err != nil {
				return "0"
			}
			octets[i] = v
		}
		n = octets[0]<<24 | octets[1]<<16 | octets[2]<<8 | octets[3]
		return strconv.FormatUint(n, 10)
	},
}

// Evaluate expands the template against msg, returning the rendered string
// and a propagated value type: string unless the template is a single
// element that resolves to something else, in which case that type wins
// (spec.md §4.5).
func Evaluate(t *Template, msg *message.LogMessage, opts EvalOptions) (string, nvtable.ValueType) {
	if len(t.elements) == 1 {
		if s, vt, ok := evalSingle(t.elements[0], msg, opts); ok {
			return applyEscape(s, opts), vt
		}
	}

	var b strings.Builder
	for _, el := range t.elements {
		s, _, _ := evalSingle(el, msg, opts)
		b.WriteString(s)
	}
	return applyEscape(b.String(), opts), nvtable.TypeString
}

func applyEscape(s string, opts EvalOptions) string {
	if opts.Escape != nil {
		return opts.Escape(s)
	}
	return s
}

func evalSingle(el element, msg *message.LogMessage, opts EvalOptions) (string, nvtable.ValueType, bool) {
	switch el.kind {
	case elemLiteral:
		return el.literal, nvtable.TypeString, true
	case elemValueRef:
		v, vt := msg.Get(el.handle)
		return string(v), vt, true
	case elemMacro:
		s, vt := el.macro.Fn(msg, opts)
		return s, vt, true
	case elemFunctionCall:
		args := make([]string, len(el.fnArgs))
		for i, sub := range el.fnArgs {
			args[i], _ = Evaluate(sub, msg, opts)
		}
		fn, ok := functions[el.fnName]
		if !ok {
			return "", nvtable.TypeString, true
		}
		return fn(args), nvtable.TypeString, true
	default:
		return "", nvtable.TypeString, true
	}
}

// Hash implements the external log_template_hash entry point (spec.md §6):
// it evaluates the template against msg and hashes the resulting bytes.
func Hash(t *Template, msg *message.LogMessage, opts EvalOptions) uint64 {
	s, _ := Evaluate(t, msg, opts)
	return xxhash.Sum64String(s)
}

// NewHostMacro/NewMsgMacro build the two well-known macros referenced by
// spec.md §4.5 ("the $MSG/$HOST macro"); hostHandle/msgHandle are the
// registry handles the static NVRegistry reserves for them.
func NewHostMacro(hostHandle registry.Handle) *Macro {
	return &Macro{
		Name: "HOST",
		Fn: func(msg *message.LogMessage, _ EvalOptions) (string, nvtable.ValueType) {
			v, vt := msg.Get(hostHandle)
			return string(v), vt
		},
	}
}

func NewMsgMacro(msgHandle registry.Handle) *Macro {
	return &Macro{
		Name: "MSG",
		Fn: func(msg *message.LogMessage, _ EvalOptions) (string, nvtable.ValueType) {
			v, vt := msg.Get(msgHandle)
			return string(v), vt
		},
	}
}

// NewSeqNumMacro exposes the evaluation context's sequence number, one of
// the "timestamp components, etc." computed macros spec.md §4.5 mentions.
func NewSeqNumMacro() *Macro {
	return &Macro{
		Name: "SEQNUM",
		Fn: func(_ *message.LogMessage, opts EvalOptions) (string, nvtable.ValueType) {
			return fmt.Sprintf("%d", opts.SeqNum), nvtable.TypeInt64
		},
	}
}
