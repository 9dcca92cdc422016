// Package assets serves stored objects over HTTP with byte-range and
// conditional request support.
package assets

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"objserve/internal/metrics"
	"objserve/pkg/byterange"
	"objserve/pkg/object"
)

// Store is the part of object.ObjectStorage the handler reads from.
type Store interface {
	Stat(ctx context.Context, key string) (object.Object, error)
	Get(ctx context.Context, key string, opts object.GetOptions) (object.Object, *object.Body, error)
}

// Config wires optional collaborators into a Handler.
type Config struct {
	Resolver byterange.Resolver
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Handler answers GET and HEAD for any path with the object stored under the
// normalized key.
type Handler struct {
	store    Store
	resolver byterange.Resolver
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewHandler builds a Handler reading from store.
func NewHandler(store Store, cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:    store,
		resolver: cfg.Resolver,
		metrics:  cfg.Metrics,
		logger:   logger,
	}
}

// response is the decision made for one request, emitted by ServeHTTP.
type response struct {
	status  int
	header  http.Header
	body    *object.Body
	outcome string
}

func newResponse(status int, outcome string) *response {
	return &response{status: status, header: http.Header{}, outcome: outcome}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var resp *response
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		resp = newResponse(http.StatusMethodNotAllowed, metrics.OutcomeMethodNotAllowed)
		resp.header.Set("Allow", "GET, HEAD")
	} else if key, err := NormalizeKey(r.URL.EscapedPath()); err != nil {
		resp = newResponse(http.StatusBadRequest, metrics.OutcomeBadKey)
	} else if resp, err = h.assemble(r.Context(), key, r.Header); err != nil {
		if !errors.Is(err, context.Canceled) {
			h.logger.Error("failed to serve object", "key", key, "error", err)
		}
		resp = newResponse(http.StatusInternalServerError, metrics.OutcomeError)
	}

	h.metrics.IncOutcome(resp.outcome)
	h.emit(w, r, resp)
}

// assemble runs key → [probe] → range resolution → fetch → headers.
func (h *Handler) assemble(ctx context.Context, key string, reqHeader http.Header) (*response, error) {
	spec, rangeErr := byterange.Parse(reqHeader.Get("Range"))
	rangeRequested := !errors.Is(rangeErr, byterange.ErrNoRange)

	size := int64(-1)
	if rangeRequested && h.resolver.NeedsSize() {
		probe, err := h.stat(ctx, key)
		if errors.Is(err, object.ErrNotFound) {
			return notFound(), nil
		}
		if err != nil {
			return nil, err
		}
		size = probe.Size
	}

	var window *byterange.Window
	if rangeRequested {
		if rangeErr != nil {
			return unsatisfiable(size), nil
		}
		w, err := h.resolver.Resolve(spec, size)
		if err != nil {
			return unsatisfiable(size), nil
		}
		window = &w
	}

	opts := object.GetOptions{Conditions: object.ConditionsFromHeader(reqHeader)}
	if window != nil {
		rng := window.Object()
		opts.Range = &rng
	}

	obj, body, err := h.get(ctx, key, opts)
	switch {
	case errors.Is(err, object.ErrNotFound):
		return notFound(), nil
	case errors.Is(err, object.ErrNotModified):
		resp := newResponse(http.StatusNotModified, metrics.OutcomeNotModified)
		writeNotModifiedHeaders(resp.header, obj)
		return resp, nil
	case errors.Is(err, object.ErrPreconditionFailed):
		resp := newResponse(http.StatusPreconditionFailed, metrics.OutcomePreconditionFailed)
		writeNotModifiedHeaders(resp.header, obj)
		return resp, nil
	case errors.Is(err, object.ErrRangeNotSatisfiable):
		return unsatisfiable(obj.Size), nil
	case err != nil:
		return nil, err
	}

	// A backend that ignored the range sent the whole object; serve it as such.
	if window == nil || obj.Range == nil {
		resp := newResponse(http.StatusOK, metrics.OutcomeFull)
		writeObjectHeaders(resp.header, obj)
		if obj.Size >= 0 {
			resp.header.Set("Content-Length", strconv.FormatInt(obj.Size, 10))
		}
		resp.body = body
		return resp, nil
	}

	served, err := byterange.Reconcile(*window, obj)
	if err != nil {
		body.Close()
		if errors.Is(err, byterange.ErrWindowMismatch) {
			return nil, err
		}
		return unsatisfiable(obj.Size), nil
	}

	resp := newResponse(http.StatusPartialContent, metrics.OutcomePartial)
	writeObjectHeaders(resp.header, obj)
	resp.header.Set("Content-Range", served.ContentRange(obj.Size))
	resp.header.Set("Content-Length", strconv.FormatInt(served.Length(), 10))
	resp.body = body
	return resp, nil
}

func (h *Handler) stat(ctx context.Context, key string) (object.Object, error) {
	start := time.Now()
	obj, err := h.store.Stat(ctx, key)
	h.metrics.ObserveBackend("stat", backendResult(err), time.Since(start))
	return obj, err
}

func (h *Handler) get(ctx context.Context, key string, opts object.GetOptions) (object.Object, *object.Body, error) {
	start := time.Now()
	obj, body, err := h.store.Get(ctx, key, opts)
	h.metrics.ObserveBackend("get", backendResult(err), time.Since(start))
	return obj, body, err
}

func backendResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, object.ErrNotFound):
		return "not_found"
	case errors.Is(err, object.ErrNotModified), errors.Is(err, object.ErrPreconditionFailed):
		return "conditional"
	case errors.Is(err, object.ErrRangeNotSatisfiable):
		return "unsatisfiable"
	default:
		return "error"
	}
}

func notFound() *response {
	return newResponse(http.StatusNotFound, metrics.OutcomeNotFound)
}

// unsatisfiable builds a 416; Content-Range is only set for a known size.
func unsatisfiable(size int64) *response {
	resp := newResponse(http.StatusRequestedRangeNotSatisfiable, metrics.OutcomeUnsatisfiable)
	if size >= 0 {
		resp.header.Set("Content-Range", byterange.Unsatisfied(size))
	}
	return resp
}

// emit writes resp. Bodies are never sent for HEAD, and the object stream is
// released on every path.
func (h *Handler) emit(w http.ResponseWriter, r *http.Request, resp *response) {
	defer resp.body.Close()

	header := w.Header()
	for k, v := range resp.header {
		header[k] = v
	}

	var text []byte
	if resp.body == nil && resp.status >= http.StatusBadRequest {
		text = []byte(http.StatusText(resp.status) + "\n")
		header.Set("Content-Type", "text/plain; charset=utf-8")
		header.Set("X-Content-Type-Options", "nosniff")
		header.Set("Content-Length", strconv.Itoa(len(text)))
	}
	w.WriteHeader(resp.status)

	if r.Method == http.MethodHead {
		return
	}
	if text != nil {
		_, _ = w.Write(text)
		return
	}
	if resp.body != nil {
		if _, err := resp.body.WriteTo(w); err != nil && r.Context().Err() == nil {
			h.logger.Warn("object stream interrupted", "path", r.URL.Path, "error", err)
		}
	}
}
