package assets

import (
	"net/http"
	"strings"

	"objserve/pkg/object"
)

// DefaultCacheControl applies to objects stored without their own policy.
const DefaultCacheControl = "public, max-age=3600"

// writeObjectHeaders sets the caching and metadata headers shared by 200 and 206.
func writeObjectHeaders(h http.Header, obj object.Object) {
	writeValidators(h, obj)
	cacheControl := obj.CacheControl
	if cacheControl == "" {
		cacheControl = DefaultCacheControl
	}
	h.Set("Cache-Control", cacheControl)
	h.Set("Accept-Ranges", "bytes")
	if obj.ContentType != "" {
		h.Set("Content-Type", obj.ContentType)
	}
}

// writeNotModifiedHeaders sets the reduced header set of a 304 or 412.
func writeNotModifiedHeaders(h http.Header, obj object.Object) {
	writeValidators(h, obj)
	if obj.CacheControl != "" {
		h.Set("Cache-Control", obj.CacheControl)
	}
}

func writeValidators(h http.Header, obj object.Object) {
	if obj.ETag != "" {
		h.Set("ETag", quoteETag(obj.ETag))
	}
	if !obj.LastModified.IsZero() {
		h.Set("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	}
}

func quoteETag(etag string) string {
	etag = strings.TrimSpace(etag)
	if strings.HasPrefix(etag, "W/") {
		return etag
	}
	return `"` + strings.Trim(etag, `"`) + `"`
}
