package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"objserve/pkg/object"
)

// Remove deletes every key, reporting one line per key. It keeps going after
// a failure and returns the joined errors.
func Remove(ctx context.Context, store object.Deleter, w io.Writer, keys []string) error {
	var errs []error
	for _, key := range keys {
		status := "removed"
		if err := store.Delete(ctx, key); err != nil {
			status = "failed: " + err.Error()
			errs = append(errs, fmt.Errorf("remove %s: %w", key, err))
		}
		fmt.Fprintf(w, "[%s] %s\n", key, status)
	}
	return errors.Join(errs...)
}
