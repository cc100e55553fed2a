package listscanner

import "strconv"

// ParseNumber implements the parse-number helper spec.md §2 lists among the
// small collaborators: best-effort parsing that never errors, mirroring the
// "decoding always produces a value" contract used elsewhere in this
// package. It tries int64, then float64, and falls back to 0 with ok=false.
func ParseNumber(s string) (value float64, isInt bool, ok bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return float64(i), true, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, false, true
	}
	return 0, false, false
}
