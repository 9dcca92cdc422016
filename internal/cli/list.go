package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"objserve/pkg/object"

	"github.com/dustin/go-humanize"
)

// List prints every object whose key starts with prefix.
func List(ctx context.Context, store object.Reader, w io.Writer, prefix string) error {
	objs, err := store.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	var total uint64
	for _, obj := range objs {
		PrintObject(tw, obj)
		if obj.Size > 0 {
			total += uint64(obj.Size)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d object(s), %s\n", len(objs), humanize.IBytes(total))
	return nil
}
