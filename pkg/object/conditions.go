package object

import (
	"net/http"
	"strings"
	"time"
)

// Conditions carries the caller's validators through to the backend.
type Conditions struct {
	IfMatch           string
	IfNoneMatch       string
	IfModifiedSince   time.Time
	IfUnmodifiedSince time.Time
}

// ConditionsFromHeader extracts validators from request headers.
// Unparsable dates are dropped.
func ConditionsFromHeader(h http.Header) Conditions {
	c := Conditions{
		IfMatch:     strings.TrimSpace(h.Get("If-Match")),
		IfNoneMatch: strings.TrimSpace(h.Get("If-None-Match")),
	}
	if t, err := http.ParseTime(h.Get("If-Modified-Since")); err == nil {
		c.IfModifiedSince = t
	}
	if t, err := http.ParseTime(h.Get("If-Unmodified-Since")); err == nil {
		c.IfUnmodifiedSince = t
	}
	return c
}

// IsZero reports whether no validator is set.
func (c Conditions) IsZero() bool {
	return c.IfMatch == "" && c.IfNoneMatch == "" && c.IfModifiedSince.IsZero() && c.IfUnmodifiedSince.IsZero()
}

// Evaluate checks the validators against obj in the order RFC 9110 section 13.2.2
// prescribes for GET/HEAD. It returns nil, ErrPreconditionFailed or ErrNotModified.
func (c Conditions) Evaluate(obj Object) error {
	lastModified := obj.LastModified.UTC().Truncate(time.Second)

	if c.IfMatch != "" {
		if c.IfMatch != "*" && !etagListContains(c.IfMatch, obj.ETag) {
			return ErrPreconditionFailed
		}
	} else if !c.IfUnmodifiedSince.IsZero() && lastModified.After(c.IfUnmodifiedSince) {
		return ErrPreconditionFailed
	}

	if c.IfNoneMatch != "" {
		if c.IfNoneMatch == "*" || etagListContains(c.IfNoneMatch, obj.ETag) {
			return ErrNotModified
		}
	} else if !c.IfModifiedSince.IsZero() && !lastModified.After(c.IfModifiedSince) {
		return ErrNotModified
	}
	return nil
}

func etagListContains(list, etag string) bool {
	want := strings.Trim(etag, `"`)
	for _, token := range strings.Split(list, ",") {
		candidate := strings.TrimSpace(token)
		candidate = strings.TrimPrefix(candidate, "W/")
		candidate = strings.Trim(candidate, `"`)
		if candidate == want {
			return true
		}
	}
	return false
}
