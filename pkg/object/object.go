// Package object contains the object storage interface
// Implementation including Cloudflare R2 or SQLite
package object

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Object holds metadata about a stored item.
type Object struct {
	Key string
	// Size is the total size of the object, -1 when the backend did not report it.
	Size         int64
	ETag         string
	ContentType  string
	CacheControl string
	LastModified time.Time
	CustomMeta   map[string]string
	// Range is the window returned by Get, nil when the whole object was read.
	Range *Range
}

// Range is a byte window starting at Offset.
// If Length < 0 the range is open-ended.
type Range struct {
	Offset int64
	Length int64
}

// End returns the inclusive last byte of the range, -1 if open-ended.
func (r Range) End() int64 {
	if r.Length < 0 {
		return -1
	}
	return r.Offset + r.Length - 1
}

// Header formats the range as an HTTP Range header value.
func (r Range) Header() string {
	if r.Length < 0 {
		return fmt.Sprintf("bytes=%d-", r.Offset)
	}
	return fmt.Sprintf("bytes=%d-%d", r.Offset, r.End())
}

// HTTPMetadata is stored alongside an object and replayed on every response.
type HTTPMetadata struct {
	ContentType  string
	CacheControl string
}

// GetOptions tunes a Get call.
type GetOptions struct {
	Conditions Conditions
	Range      *Range
}

// Common errors returned by implementations.
//
// ErrNotModified, ErrPreconditionFailed and ErrRangeNotSatisfiable are returned
// from Get together with the current metadata of the object.
var (
	ErrNotFound            = errors.New("object not found")
	ErrConflict            = errors.New("object already exists")
	ErrNotModified         = errors.New("object not modified")
	ErrPreconditionFailed  = errors.New("object precondition failed")
	ErrRangeNotSatisfiable = errors.New("object range not satisfiable")
)

// Lifecycle defines init/teardown behavior.
type Lifecycle interface {
	Init(ctx context.Context, param any) error
	Close(ctx context.Context) error
}

// Reader exposes read-related operations.
type Reader interface {
	// Get returns object metadata and a body the caller must close.
	// The body is nil whenever err is non-nil.
	Get(ctx context.Context, key string, opts GetOptions) (Object, *Body, error)
	// List returns a list of objects matching the prefix.
	List(ctx context.Context, prefix string) ([]Object, error)
}

// Writer exposes write-related operations.
type Writer interface {
	// Put uploads content and returns stored metadata.
	Put(ctx context.Context, key string, r io.Reader, sizeHint int64, hm HTTPMetadata, meta map[string]string) (Object, error)
	// MultipartPut streams large content in parts; implementations may tune part handling internally.
	MultipartPut(ctx context.Context, key string, r io.Reader, partSize int64, hm HTTPMetadata, meta map[string]string) (Object, error)
}

// Deleter exposes delete behavior.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// ObjectStorage aggregates the full contract for object backends.
type ObjectStorage interface {
	Lifecycle
	Reader
	Writer
	Deleter
	// Stat returns metadata without streaming the body.
	Stat(ctx context.Context, key string) (Object, error)
}
