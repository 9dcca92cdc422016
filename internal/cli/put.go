// Package cli implements the object management commands of objserve.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"objserve/pkg/object"

	"github.com/dustin/go-humanize"
)

const (
	multipartThreshold = 100 << 20 // 100 MiB
	partSize           = 8 << 20
)

// PutFlags sets the HTTP metadata stored with an uploaded object.
type PutFlags struct {
	ContentType  string
	CacheControl string
}

// Put uploads the file at path under key. Files above the multipart
// threshold are streamed in parts.
func Put(ctx context.Context, store object.Writer, logger *slog.Logger, flags PutFlags, key, path string) (object.Object, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return object.Object{}, fmt.Errorf("put: empty key")
	}

	f, err := os.Open(path)
	if err != nil {
		return object.Object{}, fmt.Errorf("put: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return object.Object{}, fmt.Errorf("put: %w", err)
	}

	hm := object.HTTPMetadata{
		ContentType:  flags.ContentType,
		CacheControl: flags.CacheControl,
	}
	if hm.ContentType == "" {
		hm.ContentType = mime.TypeByExtension(filepath.Ext(path))
	}

	var obj object.Object
	if info.Size() > multipartThreshold {
		logger.Info("stream via multipart", "key", key, "size", humanize.IBytes(uint64(info.Size())))
		obj, err = store.MultipartPut(ctx, key, f, partSize, hm, nil)
	} else {
		logger.Debug("single put", "key", key, "size", humanize.IBytes(uint64(info.Size())))
		obj, err = store.Put(ctx, key, f, info.Size(), hm, nil)
	}
	if err != nil {
		return object.Object{}, fmt.Errorf("put %s: %w", key, err)
	}
	return obj, nil
}

// PrintObject writes a one-line summary of obj.
func PrintObject(w io.Writer, obj object.Object) {
	size := "?"
	if obj.Size >= 0 {
		size = humanize.IBytes(uint64(obj.Size))
	}
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "-"
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
		obj.Key, size, contentType, obj.ETag, humanize.Time(obj.LastModified))
}
