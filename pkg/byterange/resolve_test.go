package byterange

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objserve/pkg/object"
)

func mustParse(t *testing.T, header string) Spec {
	t.Helper()
	s, err := Parse(header)
	require.NoError(t, err)
	return s
}

func TestResolveEager(t *testing.T) {
	r := NewResolver(Eager, 0)

	tests := []struct {
		name   string
		header string
		size   int64
		want   Window
		err    error
	}{
		{name: "closed inside", header: "bytes=500-999", size: 1000, want: Window{500, 999}},
		{name: "closed clamps end", header: "bytes=10-5000", size: 1000, want: Window{10, 999}},
		{name: "closed single byte", header: "bytes=0-0", size: 1, want: Window{0, 0}},
		{name: "closed reversed", header: "bytes=9-3", size: 1000, err: ErrInvalid},
		{name: "closed start past end", header: "bytes=1000-1001", size: 1000, err: ErrUnsatisfiable},
		{name: "open", header: "bytes=100-", size: 1000, want: Window{100, 999}},
		{name: "open past end", header: "bytes=1500-", size: 1000, err: ErrUnsatisfiable},
		{name: "open at size", header: "bytes=1000-", size: 1000, err: ErrUnsatisfiable},
		{name: "suffix", header: "bytes=-100", size: 1000, want: Window{900, 999}},
		{name: "suffix longer than object", header: "bytes=-100", size: 50, want: Window{0, 49}},
		{name: "suffix zero", header: "bytes=-0", size: 50, err: ErrInvalid},
		{name: "suffix on empty object", header: "bytes=-10", size: 0, err: ErrUnsatisfiable},
		{name: "open on empty object", header: "bytes=0-", size: 0, err: ErrUnsatisfiable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(mustParse(t, tt.header), tt.size)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got.Length(), int64(1))
		})
	}
}

func TestResolveEagerProperties(t *testing.T) {
	r := NewResolver(Eager, 0)
	for _, size := range []int64{1, 2, 7, 1000} {
		for n := int64(0); n < size; n++ {
			for _, m := range []int64{n, n + 1, size - 1, size, size * 3} {
				if m < n {
					continue
				}
				w, err := r.Resolve(Spec{Start: n, End: m, HasStart: true, HasEnd: true}, size)
				require.NoError(t, err)
				assert.Equal(t, n, w.Start)
				assert.Equal(t, min(m, size-1), w.End)
				assert.Equal(t, w.End-w.Start+1, w.Length())
			}

			w, err := r.Resolve(Spec{Start: n, HasStart: true}, size)
			require.NoError(t, err)
			assert.Equal(t, size-1, w.End)
		}

		for k := int64(1); k <= size+2; k++ {
			w, err := r.Resolve(Spec{End: k, HasEnd: true}, size)
			require.NoError(t, err)
			length := min(k, size)
			assert.Equal(t, length, w.Length())
			assert.Equal(t, size-length, w.Start)
			assert.Equal(t, size-1, w.End)
		}
	}
}

func TestResolveDeferred(t *testing.T) {
	r := NewResolver(Deferred, 1000)

	tests := []struct {
		name   string
		header string
		want   Window
		err    error
	}{
		{name: "open is capped", header: "bytes=0-", want: Window{0, 999}},
		{name: "open from offset", header: "bytes=5000-", want: Window{5000, 5999}},
		{name: "closed within cap", header: "bytes=0-999", want: Window{0, 999}},
		{name: "closed over cap", header: "bytes=0-1000", err: ErrTooLarge},
		{name: "closed reversed", header: "bytes=10-9", err: ErrInvalid},
		{name: "suffix unsupported", header: "bytes=-10", err: ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(mustParse(t, tt.header), -1)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveDeferredOpenNearMaxInt(t *testing.T) {
	r := NewResolver(Deferred, 1000)
	w, err := r.Resolve(Spec{Start: math.MaxInt64 - 10, HasStart: true}, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), w.End)
	assert.Equal(t, int64(11), w.Length())
}

func TestNewResolverDefaults(t *testing.T) {
	assert.Equal(t, DefaultMaxLength, NewResolver(Deferred, 0).MaxLength())
	assert.Equal(t, DefaultMaxLength, NewResolver(Deferred, -5).MaxLength())
	assert.Equal(t, int64(42), NewResolver(Deferred, 42).MaxLength())
	assert.True(t, NewResolver(Eager, 0).NeedsSize())
	assert.False(t, NewResolver(Deferred, 0).NeedsSize())
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("Deferred")
	require.NoError(t, err)
	assert.Equal(t, Deferred, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, Eager, p)

	_, err = ParsePolicy("lazy")
	assert.Error(t, err)
}

func TestReconcile(t *testing.T) {
	requested := Window{Start: 0, End: 999}

	t.Run("known total shrinks end", func(t *testing.T) {
		w, err := Reconcile(requested, object.Object{Size: 300, Range: &object.Range{Offset: 0, Length: 300}})
		require.NoError(t, err)
		assert.Equal(t, Window{0, 299}, w)
		assert.Equal(t, "bytes 0-299/300", w.ContentRange(300))
	})

	t.Run("larger object keeps requested window", func(t *testing.T) {
		w, err := Reconcile(requested, object.Object{Size: 5000, Range: &object.Range{Offset: 0, Length: 1000}})
		require.NoError(t, err)
		assert.Equal(t, requested, w)
		assert.Equal(t, "bytes 0-999/5000", w.ContentRange(5000))
	})

	t.Run("unknown total uses returned length", func(t *testing.T) {
		w, err := Reconcile(requested, object.Object{Size: -1, Range: &object.Range{Offset: 0, Length: 640}})
		require.NoError(t, err)
		assert.Equal(t, int64(640), w.Length())
		assert.Equal(t, "bytes 0-639/*", w.ContentRange(-1))
	})

	t.Run("start beyond total", func(t *testing.T) {
		_, err := Reconcile(Window{Start: 2000, End: 2999}, object.Object{Size: 1500})
		assert.ErrorIs(t, err, ErrUnsatisfiable)
	})

	t.Run("shifted window", func(t *testing.T) {
		_, err := Reconcile(Window{Start: 100, End: 199}, object.Object{Size: 1000, Range: &object.Range{Offset: 0, Length: 100}})
		assert.ErrorIs(t, err, ErrWindowMismatch)
	})

	t.Run("nothing returned", func(t *testing.T) {
		_, err := Reconcile(requested, object.Object{Size: -1, Range: &object.Range{Offset: 0, Length: 0}})
		assert.ErrorIs(t, err, ErrUnsatisfiable)
	})
}

func TestUnsatisfied(t *testing.T) {
	assert.Equal(t, "bytes */1000", Unsatisfied(1000))
}
