package object

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// ErrBodyConsumed is returned when a Body is read a second time.
var ErrBodyConsumed = errors.New("object body already consumed")

// Body is the single-use stream returned by Reader.Get. It can be copied out
// once with WriteTo; Close is idempotent and safe on a nil Body.
type Body struct {
	rc       io.ReadCloser
	consumed atomic.Bool
	once     sync.Once
	closeErr error
}

// NewBody takes ownership of rc.
func NewBody(rc io.ReadCloser) *Body {
	return &Body{rc: rc}
}

// WriteTo streams the body into w and releases it.
func (b *Body) WriteTo(w io.Writer) (int64, error) {
	if !b.consumed.CompareAndSwap(false, true) {
		return 0, ErrBodyConsumed
	}
	defer b.Close()
	return io.Copy(w, b.rc)
}

// Close releases the underlying stream without reading it.
func (b *Body) Close() error {
	if b == nil {
		return nil
	}
	b.once.Do(func() {
		b.consumed.Store(true)
		b.closeErr = b.rc.Close()
	})
	return b.closeErr
}
