// Package r2 implements Object interface for Cloudflare R2.
package r2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strconv"
	"strings"
	"time"

	"objserve/pkg/object"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// Config holds R2 connection details.
type Config struct {
	AccountID        string
	AccessKey        string
	SecretAccessKey  string
	Bucket           string
	Region           string
	EndpointOverride string
	// UsePathStyle addresses the bucket in the path, needed by most S3 emulators.
	UsePathStyle bool
}

// Storage implements object.ObjectStorage for Cloudflare R2.
type Storage struct {
	client *s3.Client
	bucket string
}

// Init bootstraps the R2 client using static credentials.
func (s *Storage) Init(ctx context.Context, param any) error {
	cfg, ok := param.(Config)
	if !ok {
		if p, ok := param.(*Config); ok && p != nil {
			cfg = *p
		} else {
			return fmt.Errorf("r2: unexpected config type %T", param)
		}
	}

	if cfg.AccountID == "" && cfg.EndpointOverride == "" {
		return errors.New("r2: AccountID or EndpointOverride required")
	}
	if cfg.AccessKey == "" || cfg.SecretAccessKey == "" || cfg.Bucket == "" {
		return errors.New("r2: AccessKey, SecretAccessKey, and Bucket are required")
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return fmt.Errorf("r2: load config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		base := cfg.EndpointOverride
		if base == "" {
			base = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
		}
		o.BaseEndpoint = aws.String(base)
		o.UsePathStyle = cfg.UsePathStyle
	})

	s.client = client
	s.bucket = cfg.Bucket
	return nil
}

// Close cleans up resources; no-op for R2.
func (s *Storage) Close(_ context.Context) error {
	return nil
}

// Put uploads the full object body.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, sizeHint int64, hm object.HTTPMetadata, meta map[string]string) (object.Object, error) {
	if err := s.ensureClient(); err != nil {
		return object.Object{}, err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
		Metadata: func() map[string]string {
			if meta == nil {
				return nil
			}
			c := make(map[string]string, len(meta))
			maps.Copy(c, meta)
			return c
		}(),
	}
	if hm.ContentType != "" {
		input.ContentType = aws.String(hm.ContentType)
	}
	if hm.CacheControl != "" {
		input.CacheControl = aws.String(hm.CacheControl)
	}
	if sizeHint >= 0 {
		input.ContentLength = aws.Int64(sizeHint)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return object.Object{}, mapError(err)
	}

	metaObj, err := s.Stat(ctx, key)
	if err != nil {
		return object.Object{}, err
	}
	return metaObj, nil
}

// MultipartPut streams large uploads in parts.
func (s *Storage) MultipartPut(ctx context.Context, key string, r io.Reader, partSize int64, hm object.HTTPMetadata, meta map[string]string) (object.Object, error) {
	if err := s.ensureClient(); err != nil {
		return object.Object{}, err
	}

	createInput := &s3.CreateMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Metadata: meta,
	}
	if hm.ContentType != "" {
		createInput.ContentType = aws.String(hm.ContentType)
	}
	if hm.CacheControl != "" {
		createInput.CacheControl = aws.String(hm.CacheControl)
	}
	createResp, err := s.client.CreateMultipartUpload(ctx, createInput)
	if err != nil {
		return object.Object{}, mapError(err)
	}

	uploadID := aws.ToString(createResp.UploadId)
	var completedParts []types.CompletedPart
	buf := make([]byte, partSize)
	partNum := int32(1)

	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			partResp, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
				Bucket:     aws.String(s.bucket),
				Key:        aws.String(key),
				UploadId:   aws.String(uploadID),
				PartNumber: aws.Int32(partNum),
				Body:       bytes.NewReader(buf[:n]),
			})
			if err != nil {
				s.abortMultipart(key, uploadID)
				return object.Object{}, mapError(err)
			}

			completedParts = append(completedParts, types.CompletedPart{
				ETag:       partResp.ETag,
				PartNumber: aws.Int32(partNum),
			})
			partNum++
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			s.abortMultipart(key, uploadID)
			return object.Object{}, fmt.Errorf("r2: read multipart chunk: %w", readErr)
		}
	}

	if _, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completedParts,
		},
	}); err != nil {
		return object.Object{}, mapError(err)
	}

	return s.Stat(ctx, key)
}

// Get fetches metadata plus a streaming body. Conditions and the range are
// forwarded to R2, which evaluates them server side.
func (s *Storage) Get(ctx context.Context, key string, opts object.GetOptions) (object.Object, *object.Body, error) {
	if err := s.ensureClient(); err != nil {
		return object.Object{}, nil, err
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if opts.Range != nil {
		input.Range = aws.String(opts.Range.Header())
	}
	applyConditions(input, opts.Conditions)

	resp, err := s.client.GetObject(ctx, input)
	if err != nil {
		return errorToObject(key, err), nil, mapError(err)
	}

	return responseToObject(key, resp), object.NewBody(resp.Body), nil
}

// List returns all objects with the given prefix.
func (s *Storage) List(ctx context.Context, prefix string) ([]object.Object, error) {
	if err := s.ensureClient(); err != nil {
		return nil, err
	}

	var objects []object.Object
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapError(err)
		}
		for _, item := range page.Contents {
			objects = append(objects, object.Object{
				Key:          aws.ToString(item.Key),
				Size:         aws.ToInt64(item.Size),
				ETag:         aws.ToString(item.ETag),
				LastModified: aws.ToTime(item.LastModified),
			})
		}
	}
	return objects, nil
}

// Stat returns metadata only.
func (s *Storage) Stat(ctx context.Context, key string) (object.Object, error) {
	if err := s.ensureClient(); err != nil {
		return object.Object{}, err
	}

	resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return object.Object{}, mapError(err)
	}

	return headToObject(key, resp), nil
}

// Delete removes an object.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := s.ensureClient(); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return mapError(err)
}

func (s *Storage) abortMultipart(key, uploadID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, _ = s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
}

func (s *Storage) ensureClient() error {
	if s.client == nil {
		return errors.New("r2: client not initialized")
	}
	return nil
}

func applyConditions(input *s3.GetObjectInput, c object.Conditions) {
	if c.IfMatch != "" {
		input.IfMatch = aws.String(c.IfMatch)
	}
	if c.IfNoneMatch != "" {
		input.IfNoneMatch = aws.String(c.IfNoneMatch)
	}
	if !c.IfModifiedSince.IsZero() {
		input.IfModifiedSince = aws.Time(c.IfModifiedSince)
	}
	if !c.IfUnmodifiedSince.IsZero() {
		input.IfUnmodifiedSince = aws.Time(c.IfUnmodifiedSince)
	}
}

func responseToObject(key string, resp *s3.GetObjectOutput) object.Object {
	obj := object.Object{
		Key:          key,
		Size:         aws.ToInt64(resp.ContentLength),
		ETag:         aws.ToString(resp.ETag),
		ContentType:  aws.ToString(resp.ContentType),
		CacheControl: aws.ToString(resp.CacheControl),
		LastModified: aws.ToTime(resp.LastModified),
		CustomMeta:   cloneMeta(resp.Metadata),
	}
	if cr := aws.ToString(resp.ContentRange); cr != "" {
		offset, total, ok := parseContentRange(cr)
		if ok {
			obj.Size = total
			obj.Range = &object.Range{Offset: offset, Length: aws.ToInt64(resp.ContentLength)}
		}
	}
	return obj
}

func headToObject(key string, resp *s3.HeadObjectOutput) object.Object {
	return object.Object{
		Key:          key,
		Size:         aws.ToInt64(resp.ContentLength),
		ETag:         aws.ToString(resp.ETag),
		ContentType:  aws.ToString(resp.ContentType),
		CacheControl: aws.ToString(resp.CacheControl),
		LastModified: aws.ToTime(resp.LastModified),
		CustomMeta:   cloneMeta(resp.Metadata),
	}
}

// errorToObject recovers validators from a failed GetObject. R2 answers 304,
// 412 and 416 without a body but still sends the object's headers.
func errorToObject(key string, err error) object.Object {
	obj := object.Object{Key: key, Size: -1}

	var respErr *smithyhttp.ResponseError
	if !errors.As(err, &respErr) || respErr.Response == nil || respErr.Response.Response == nil {
		return obj
	}
	h := respErr.Response.Header
	obj.ETag = h.Get("ETag")
	obj.CacheControl = h.Get("Cache-Control")
	obj.ContentType = h.Get("Content-Type")
	if t, err := http.ParseTime(h.Get("Last-Modified")); err == nil {
		obj.LastModified = t
	}
	if cr := h.Get("Content-Range"); cr != "" {
		if _, total, ok := parseContentRange(cr); ok {
			obj.Size = total
		}
	}
	return obj
}

// parseContentRange reads "bytes a-b/total" and "bytes */total".
// A total of "*" is reported as -1.
func parseContentRange(v string) (offset, total int64, ok bool) {
	spec, found := strings.CutPrefix(strings.TrimSpace(v), "bytes ")
	if !found {
		return 0, 0, false
	}
	window, size, found := strings.Cut(spec, "/")
	if !found {
		return 0, 0, false
	}

	total = -1
	if size != "*" {
		n, err := strconv.ParseInt(size, 10, 64)
		if err != nil {
			return 0, 0, false
		}
		total = n
	}
	if window == "*" {
		return 0, total, true
	}
	first, _, found := strings.Cut(window, "-")
	if !found {
		return 0, 0, false
	}
	offset, err := strconv.ParseInt(first, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return offset, total, true
}

func cloneMeta(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	maps.Copy(out, in)
	return out
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return object.ErrNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch strings.ToLower(apiErr.ErrorCode()) {
		case "nosuchkey", "notfound", "404":
			return object.ErrNotFound
		case "notmodified", "304":
			return object.ErrNotModified
		case "preconditionfailed", "412":
			return object.ErrPreconditionFailed
		case "invalidrange", "416":
			return object.ErrRangeNotSatisfiable
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusNotFound:
			return object.ErrNotFound
		case http.StatusNotModified:
			return object.ErrNotModified
		case http.StatusPreconditionFailed:
			return object.ErrPreconditionFailed
		case http.StatusRequestedRangeNotSatisfiable:
			return object.ErrRangeNotSatisfiable
		}
	}

	return fmt.Errorf("r2: %w", err)
}

// Ensure Storage implements ObjectStorage interface.
var _ object.ObjectStorage = (*Storage)(nil)
