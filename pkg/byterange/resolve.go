package byterange

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"objserve/pkg/object"
)

// DefaultMaxLength caps deferred windows when no valid maximum is configured.
const DefaultMaxLength int64 = 8 << 20

// Policy selects how a range is resolved against the object size.
type Policy int

const (
	// Eager resolves against a size probed with a metadata lookup.
	Eager Policy = iota
	// Deferred fetches a capped window and reconciles afterwards.
	Deferred
)

func (p Policy) String() string {
	switch p {
	case Eager:
		return "eager"
	case Deferred:
		return "deferred"
	default:
		return "policy(" + strconv.Itoa(int(p)) + ")"
	}
}

// ParsePolicy maps "eager" or "deferred" to a Policy.
func ParsePolicy(v string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "eager":
		return Eager, nil
	case "deferred":
		return Deferred, nil
	default:
		return Eager, fmt.Errorf("byterange: unknown policy %q", v)
	}
}

// Window is an inclusive byte window [Start, End].
type Window struct {
	Start int64
	End   int64
}

// Length returns the number of bytes in the window.
func (w Window) Length() int64 {
	return w.End - w.Start + 1
}

// Object converts the window into a backend range.
func (w Window) Object() object.Range {
	return object.Range{Offset: w.Start, Length: w.Length()}
}

// ContentRange formats the Content-Range value of a 206 response.
// A negative total is rendered as "*".
func (w Window) ContentRange(total int64) string {
	t := "*"
	if total >= 0 {
		t = strconv.FormatInt(total, 10)
	}
	return fmt.Sprintf("bytes %d-%d/%s", w.Start, w.End, t)
}

// Unsatisfied formats the Content-Range value of a 416 response.
func Unsatisfied(total int64) string {
	return "bytes */" + strconv.FormatInt(total, 10)
}

// Resolver turns a Spec into a Window under one policy.
type Resolver struct {
	policy    Policy
	maxLength int64
}

// NewResolver builds a resolver. A non-positive maxLength falls back to DefaultMaxLength.
func NewResolver(policy Policy, maxLength int64) Resolver {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return Resolver{policy: policy, maxLength: maxLength}
}

// Policy returns the resolution policy.
func (r Resolver) Policy() Policy { return r.policy }

// MaxLength returns the deferred window cap.
func (r Resolver) MaxLength() int64 {
	if r.maxLength <= 0 {
		return DefaultMaxLength
	}
	return r.maxLength
}

// NeedsSize reports whether the object size must be known before Resolve.
func (r Resolver) NeedsSize() bool {
	return r.policy == Eager
}

// Resolve computes the window to fetch. size is the total object size; it is
// ignored by the deferred policy. An eager resolver handed an unknown size
// (negative) resolves with the deferred rules.
func (r Resolver) Resolve(s Spec, size int64) (Window, error) {
	if !s.HasStart && !s.HasEnd {
		return Window{}, ErrNoRange
	}
	if r.policy == Eager && size >= 0 {
		return resolveKnown(s, size)
	}
	return resolveCapped(s, r.MaxLength())
}

func resolveKnown(s Spec, size int64) (Window, error) {
	if s.IsSuffix() {
		if s.End <= 0 {
			return Window{}, ErrInvalid
		}
		if size == 0 {
			return Window{}, ErrUnsatisfiable
		}
		length := min(s.End, size)
		return Window{Start: size - length, End: size - 1}, nil
	}

	if s.HasEnd && s.End < s.Start {
		return Window{}, ErrInvalid
	}
	if s.Start >= size {
		return Window{}, ErrUnsatisfiable
	}
	end := size - 1
	if s.HasEnd {
		end = min(s.End, size-1)
	}
	return Window{Start: s.Start, End: end}, nil
}

func resolveCapped(s Spec, maxLength int64) (Window, error) {
	if s.IsSuffix() {
		return Window{}, ErrInvalid
	}
	if !s.HasEnd {
		end := int64(math.MaxInt64)
		if s.Start <= math.MaxInt64-maxLength+1 {
			end = s.Start + maxLength - 1
		}
		return Window{Start: s.Start, End: end}, nil
	}
	if s.End < s.Start {
		return Window{}, ErrInvalid
	}
	if s.End-s.Start >= maxLength {
		return Window{}, ErrTooLarge
	}
	return Window{Start: s.Start, End: s.End}, nil
}

// Reconcile narrows w to what the backend actually returned. obj.Size is the
// total size reported with the fetch (negative when unknown) and obj.Range the
// window that was read. A start at or beyond a known total is unsatisfiable.
func Reconcile(w Window, obj object.Object) (Window, error) {
	total := obj.Size
	if total >= 0 && w.Start >= total {
		return Window{}, ErrUnsatisfiable
	}

	end := w.End
	if total >= 0 && end > total-1 {
		end = total - 1
	}
	if got := obj.Range; got != nil && got.Offset != w.Start {
		return Window{}, fmt.Errorf("%w: requested offset %d, got %d", ErrWindowMismatch, w.Start, got.Offset)
	}
	if got := obj.Range; got != nil && got.Length >= 0 {
		if got.Length == 0 {
			return Window{}, ErrUnsatisfiable
		}
		if returned := w.Start + got.Length - 1; returned < end {
			end = returned
		}
	}
	return Window{Start: w.Start, End: end}, nil
}
