package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"objserve/pkg/object"

	"github.com/dustin/go-humanize"
)

// Stater reads object metadata without the body.
type Stater interface {
	Stat(ctx context.Context, key string) (object.Object, error)
}

// Stat prints the metadata stored for key.
func Stat(ctx context.Context, store Stater, w io.Writer, key string) error {
	obj, err := store.Stat(ctx, key)
	if errors.Is(err, object.ErrNotFound) {
		return fmt.Errorf("stat %s: no such object", key)
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", key, err)
	}

	fmt.Fprintf(w, "Key:           %s\n", obj.Key)
	if obj.Size >= 0 {
		fmt.Fprintf(w, "Size:          %s (%d bytes)\n", humanize.IBytes(uint64(obj.Size)), obj.Size)
	}
	fmt.Fprintf(w, "ETag:          %s\n", obj.ETag)
	if obj.ContentType != "" {
		fmt.Fprintf(w, "Content-Type:  %s\n", obj.ContentType)
	}
	if obj.CacheControl != "" {
		fmt.Fprintf(w, "Cache-Control: %s\n", obj.CacheControl)
	}
	if !obj.LastModified.IsZero() {
		fmt.Fprintf(w, "Last-Modified: %s\n", obj.LastModified.UTC().Format(http.TimeFormat))
	}

	keys := make([]string, 0, len(obj.CustomMeta))
	for k := range obj.CustomMeta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "Meta %s: %s\n", k, obj.CustomMeta[k])
	}
	return nil
}
