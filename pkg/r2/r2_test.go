package r2_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"objserve/pkg/object"
	"objserve/pkg/r2"

	"github.com/gnitoahc/go-dotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestR2(t *testing.T) {
	ctx := context.Background()
	dotenv.Load("../../.env")

	accountID := os.Getenv("CF_ACCOUNT_ID")
	accessKey := os.Getenv("CF_ACCESS_KEY")
	secretKey := os.Getenv("CF_SECRET_ACCESS_KEY")
	bucket := os.Getenv("CF_BUCKET")

	if accountID == "" || accessKey == "" || secretKey == "" || bucket == "" {
		t.Skip("CF_* environment variables not set; skipping R2 integration test")
	}

	storage := r2.Storage{}
	if err := storage.Init(ctx, r2.Config{
		AccountID:       accountID,
		AccessKey:       accessKey,
		SecretAccessKey: secretKey,
		Bucket:          bucket,
	}); err != nil {
		t.Fatalf("init storage: %v", err)
	}

	ObjectImplements(t, ctx, &storage)
}

func ObjectImplements(t *testing.T, ctx context.Context, obj object.ObjectStorage) {
	t.Helper()
	t.Cleanup(func() { _ = obj.Close(ctx) })

	key := fmt.Sprintf("objserve-test-%d.txt", time.Now().UnixNano())
	content := []byte("Hello, R2! This is a test payload.")
	meta := map[string]string{"owner": "objserve-tests", "purpose": "integration"}
	hm := object.HTTPMetadata{ContentType: "text/plain", CacheControl: "public, max-age=30"}

	putObj, err := obj.Put(ctx, key, bytes.NewReader(content), int64(len(content)), hm, meta)
	require.NoError(t, err, "Put")
	assert.Equal(t, key, putObj.Key)
	assert.Equal(t, int64(len(content)), putObj.Size)

	statObj, err := obj.Stat(ctx, key)
	require.NoError(t, err, "Stat")
	assert.Equal(t, int64(len(content)), statObj.Size)
	assert.Equal(t, hm.CacheControl, statObj.CacheControl)
	for k, v := range meta {
		assert.Equal(t, v, statObj.CustomMeta[k])
	}

	rangeObj, body, err := obj.Get(ctx, key, object.GetOptions{Range: &object.Range{Offset: 7, Length: 2}})
	require.NoError(t, err, "Get range")
	var buf bytes.Buffer
	_, err = body.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, "R2", buf.String())
	assert.Equal(t, int64(len(content)), rangeObj.Size)

	_, _, err = obj.Get(ctx, key, object.GetOptions{Conditions: object.Conditions{IfNoneMatch: statObj.ETag}})
	assert.ErrorIs(t, err, object.ErrNotModified)

	require.NoError(t, obj.Delete(ctx, key), "Delete")
	_, err = obj.Stat(ctx, key)
	assert.True(t, errors.Is(err, object.ErrNotFound), "Stat after delete: %v", err)
}

// fakeR2 answers GetObject requests for a single object the way R2 does.
func fakeR2(t *testing.T, content string, etag string, modified time.Time) *r2.Storage {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bucket/present.txt" {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Last-Modified", modified.Format(http.TimeFormat))
		w.Header().Set("Cache-Control", "max-age=10")
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		if rng := r.Header.Get("Range"); rng != "" {
			var start, end int
			if _, err := fmt.Sscanf(rng, "bytes=%d-%d", &start, &end); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if start >= len(content) {
				w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", len(content)))
				w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
				return
			}
			end = min(end, len(content)-1)
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(content)))
			w.Header().Set("Content-Length", fmt.Sprint(end-start+1))
			w.WriteHeader(http.StatusPartialContent)
			fmt.Fprint(w, content[start:end+1])
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(content)))
		fmt.Fprint(w, content)
	}))
	t.Cleanup(srv.Close)

	st := &r2.Storage{}
	require.NoError(t, st.Init(context.Background(), r2.Config{
		AccessKey:        "test",
		SecretAccessKey:  "test",
		Bucket:           "bucket",
		EndpointOverride: srv.URL,
		UsePathStyle:     true,
	}))
	return st
}

func TestGetAgainstFakeEndpoint(t *testing.T) {
	ctx := context.Background()
	modified := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	content := strings.Repeat("0123456789", 10)
	st := fakeR2(t, content, `"v1"`, modified)

	t.Run("ranged read reports total size", func(t *testing.T) {
		obj, body, err := st.Get(ctx, "present.txt", object.GetOptions{Range: &object.Range{Offset: 90, Length: 50}})
		require.NoError(t, err)
		defer body.Close()
		var buf bytes.Buffer
		_, err = body.WriteTo(&buf)
		require.NoError(t, err)

		assert.Equal(t, "0123456789", buf.String())
		assert.Equal(t, int64(100), obj.Size)
		require.NotNil(t, obj.Range)
		assert.Equal(t, object.Range{Offset: 90, Length: 10}, *obj.Range)
		assert.Equal(t, "max-age=10", obj.CacheControl)
	})

	t.Run("not modified keeps validators", func(t *testing.T) {
		obj, body, err := st.Get(ctx, "present.txt", object.GetOptions{Conditions: object.Conditions{IfNoneMatch: `"v1"`}})
		assert.ErrorIs(t, err, object.ErrNotModified)
		assert.Nil(t, body)
		assert.Equal(t, `"v1"`, obj.ETag)
		assert.True(t, modified.Equal(obj.LastModified))
	})

	t.Run("range past end", func(t *testing.T) {
		obj, _, err := st.Get(ctx, "present.txt", object.GetOptions{Range: &object.Range{Offset: 500, Length: 10}})
		assert.ErrorIs(t, err, object.ErrRangeNotSatisfiable)
		assert.Equal(t, int64(100), obj.Size)
	})

	t.Run("missing key", func(t *testing.T) {
		_, _, err := st.Get(ctx, "absent.txt", object.GetOptions{})
		assert.ErrorIs(t, err, object.ErrNotFound)
	})
}

func TestInitValidation(t *testing.T) {
	st := &r2.Storage{}
	assert.Error(t, st.Init(context.Background(), r2.Config{Bucket: "b"}))
	assert.Error(t, st.Init(context.Background(), "not a config"))
}
