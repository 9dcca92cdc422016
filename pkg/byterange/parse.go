// Package byterange parses HTTP Range headers and resolves them into byte
// windows that an object backend can serve.
//
// Only a single byte-range-spec is supported. Resolution follows one of two
// policies: Eager resolves against a size probed before the fetch, Deferred
// caps the window at a maximum length and reconciles it with the size the
// backend reports once the bytes arrive.
package byterange

import (
	"errors"
	"strconv"
	"strings"
)

var (
	// ErrNoRange means no range processing applies and the full object is served.
	ErrNoRange = errors.New("byterange: no range requested")
	// ErrInvalid marks a header that does not match the grammar or an impossible window.
	ErrInvalid = errors.New("byterange: invalid range")
	// ErrUnsatisfiable marks a window outside the object.
	ErrUnsatisfiable = errors.New("byterange: range not satisfiable")
	// ErrTooLarge marks a deferred window longer than the configured maximum.
	ErrTooLarge = errors.New("byterange: range too large")
	// ErrWindowMismatch marks a backend reply that starts at another offset than requested.
	ErrWindowMismatch = errors.New("byterange: backend returned a different window")
)

// Spec is a parsed, unvalidated byte-range-spec.
//
//	bytes=N-M  HasStart, HasEnd
//	bytes=N-   HasStart
//	bytes=-K   HasEnd (suffix of length End)
type Spec struct {
	Start    int64
	End      int64
	HasStart bool
	HasEnd   bool
}

// IsSuffix reports whether s asks for the last End bytes.
func (s Spec) IsSuffix() bool {
	return !s.HasStart && s.HasEnd
}

// Parse reads a Range header value. An empty header, or one with neither
// bound, yields ErrNoRange. Other units, multiple ranges and malformed
// numbers yield ErrInvalid.
func Parse(header string) (Spec, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Spec{}, ErrNoRange
	}

	unit, set, ok := strings.Cut(header, "=")
	if !ok || !strings.EqualFold(strings.TrimSpace(unit), "bytes") {
		return Spec{}, ErrInvalid
	}
	if strings.Contains(set, ",") {
		return Spec{}, ErrInvalid
	}

	first, last, ok := strings.Cut(set, "-")
	if !ok {
		return Spec{}, ErrInvalid
	}
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)
	if first == "" && last == "" {
		return Spec{}, ErrNoRange
	}

	var s Spec
	if first != "" {
		n, err := parseDecimal(first)
		if err != nil {
			return Spec{}, ErrInvalid
		}
		s.Start, s.HasStart = n, true
	}
	if last != "" {
		n, err := parseDecimal(last)
		if err != nil {
			return Spec{}, ErrInvalid
		}
		s.End, s.HasEnd = n, true
	}
	return s, nil
}

// parseDecimal accepts only ASCII digits; signs and overflow are rejected.
func parseDecimal(v string) (int64, error) {
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return 0, ErrInvalid
		}
	}
	return strconv.ParseInt(v, 10, 64)
}
