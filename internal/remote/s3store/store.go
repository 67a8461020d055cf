// Package s3store implements the object store on AWS S3 (and S3-API
// compatible services) via the AWS SDK.
package s3store

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/meridian-labs/transit/internal/conditional"
	transithttp "github.com/meridian-labs/transit/internal/http"
	"github.com/meridian-labs/transit/internal/logging"
	"github.com/meridian-labs/transit/internal/paging"
	"github.com/meridian-labs/transit/internal/remote"
	"github.com/meridian-labs/transit/internal/transfer"
)

// Options configures a Store.
type Options struct {
	Bucket string
	Region string
	// Endpoint overrides the S3 endpoint, for S3-compatible services.
	// Path-style addressing is forced when set.
	Endpoint string
	// AccessKey and SecretKey select static credentials. Empty means the
	// SDK's default credential chain.
	AccessKey    string
	SecretKey    string
	SessionToken string
	Proxy        transithttp.ProxyOptions
}

// Store talks to one S3 bucket.
type Store struct {
	client *s3.Client
	bucket string
	log    *logging.Logger
}

// New builds the S3 client on top of the shared tuned HTTP transport, so S3
// traffic gets the same connection pooling and proxy handling as everything
// else.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Bucket == "" {
		return nil, transfer.NewError(transfer.KindConfiguration, "store",
			errors.New("bucket is required"))
	}

	httpClient, err := transithttp.NewClient(opts.Proxy)
	if err != nil {
		return nil, err
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
		config.WithHTTPClient(httpClient),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, opts.SessionToken)))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, transfer.NewError(transfer.KindConfiguration, "store",
			fmt.Errorf("loading AWS config: %w", err))
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Store{
		client: client,
		bucket: opts.Bucket,
		log:    logging.NewDefault().WithField("backend", "s3"),
	}, nil
}

// classify translates SDK failures into transfer error kinds. The API error
// code is checked first; anything else with an HTTP response falls back to
// status classification.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return transfer.NewError(transfer.KindTimeout, op, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "NotModified", "ConditionalRequestConflict":
			return transfer.NewError(transfer.KindConditionNotMet, op, err)
		case "RequestTimeout":
			return transfer.NewError(transfer.KindTimeout, op, err)
		case "InvalidRange", "InvalidArgument":
			return transfer.NewError(transfer.KindConfiguration, op, err)
		case "BadDigest", "InvalidDigest":
			return transfer.NewError(transfer.KindIntegrity, op, err)
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return transfer.NewError(conditional.ClassifyStatus(respErr.HTTPStatusCode()), op, err)
	}
	return transfer.NewError(transfer.KindTransport, op, err)
}

// Props fetches object metadata with HeadObject.
func (s *Store) Props(ctx context.Context, key string) (remote.ObjectInfo, error) {
	resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return remote.ObjectInfo{}, classify("props", err)
	}

	info := remote.ObjectInfo{
		Key:  key,
		ETag: aws.ToString(resp.ETag),
	}
	if resp.ContentLength != nil {
		info.Size = *resp.ContentLength
	}
	if resp.LastModified != nil {
		info.LastModified = *resp.LastModified
	}
	if resp.ContentType != nil {
		info.ContentType = *resp.ContentType
	}
	return info, nil
}

// ReadRange downloads one inclusive byte range with a GetObject Range
// header. S3 does not return a per-range MD5, so the payload carries no
// digest and content validation for this backend relies on length checks.
func (s *Store) ReadRange(ctx context.Context, key string, start, end int64, pre conditional.Preconditions) (*transfer.ChunkPayload, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if end >= start {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", start, end))
	}
	if pre.IfMatch != "" {
		input.IfMatch = aws.String(pre.IfMatch)
	}
	if pre.IfNoneMatch != "" {
		input.IfNoneMatch = aws.String(pre.IfNoneMatch)
	}
	if !pre.IfModifiedSince.IsZero() {
		input.IfModifiedSince = aws.Time(pre.IfModifiedSince)
	}
	if !pre.IfUnmodifiedSince.IsZero() {
		input.IfUnmodifiedSince = aws.Time(pre.IfUnmodifiedSince)
	}

	resp, err := s.client.GetObject(ctx, input)
	if err != nil {
		return nil, classify("download", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transfer.NewError(transfer.KindTransport, "download",
			fmt.Errorf("reading object body: %w", err))
	}
	payload := &transfer.ChunkPayload{Data: body}
	payload.Meta.ETag = aws.ToString(resp.ETag)
	if resp.LastModified != nil {
		payload.Meta.LastModified = *resp.LastModified
	}
	return payload, nil
}

// Put writes the whole object with one PutObject call. S3 verifies the
// Content-MD5 server-side and rejects corrupted payloads with BadDigest.
func (s *Store) Put(ctx context.Context, key string, data []byte, sum []byte, pre conditional.Preconditions) (transfer.ChunkMeta, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if sum != nil {
		input.ContentMD5 = aws.String(base64.StdEncoding.EncodeToString(sum))
	}
	if pre.IfMatch != "" {
		input.IfMatch = aws.String(pre.IfMatch)
	}
	if pre.IfNoneMatch != "" {
		input.IfNoneMatch = aws.String(pre.IfNoneMatch)
	}

	resp, err := s.client.PutObject(ctx, input)
	if err != nil {
		return transfer.ChunkMeta{}, classify("upload", err)
	}
	return transfer.ChunkMeta{ETag: aws.ToString(resp.ETag)}, nil
}

type uploadSession struct {
	store    *Store
	key      string
	uploadID string

	mu    sync.Mutex
	parts []types.CompletedPart
}

// BeginUpload starts a multipart upload.
func (s *Store) BeginUpload(ctx context.Context, key string) (remote.UploadSession, error) {
	resp, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify("upload", err)
	}
	s.log.Debugf("created multipart upload %s for %s", aws.ToString(resp.UploadId), key)
	return &uploadSession{store: s, key: key, uploadID: aws.ToString(resp.UploadId)}, nil
}

func (u *uploadSession) UploadChunk(ctx context.Context, d transfer.ChunkDescriptor, data []byte, sum []byte) (transfer.ChunkMeta, error) {
	partNumber := int32(d.Index + 1)
	input := &s3.UploadPartInput{
		Bucket:        aws.String(u.store.bucket),
		Key:           aws.String(u.key),
		UploadId:      aws.String(u.uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if sum != nil {
		input.ContentMD5 = aws.String(base64.StdEncoding.EncodeToString(sum))
	}

	resp, err := u.store.client.UploadPart(ctx, input)
	if err != nil {
		return transfer.ChunkMeta{}, classify("upload", err)
	}

	u.mu.Lock()
	u.parts = append(u.parts, types.CompletedPart{
		PartNumber: aws.Int32(partNumber),
		ETag:       resp.ETag,
	})
	u.mu.Unlock()
	return transfer.ChunkMeta{ETag: aws.ToString(resp.ETag)}, nil
}

func (u *uploadSession) Commit(ctx context.Context) error {
	u.mu.Lock()
	parts := make([]types.CompletedPart, len(u.parts))
	copy(parts, u.parts)
	u.mu.Unlock()

	// S3 requires the completion list in ascending part order.
	sort.Slice(parts, func(i, j int) bool {
		return aws.ToInt32(parts[i].PartNumber) < aws.ToInt32(parts[j].PartNumber)
	})

	_, err := u.store.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(u.store.bucket),
		Key:             aws.String(u.key),
		UploadId:        aws.String(u.uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		return classify("upload", err)
	}
	return nil
}

func (u *uploadSession) Abort(ctx context.Context) error {
	_, err := u.store.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(u.store.bucket),
		Key:      aws.String(u.key),
		UploadId: aws.String(u.uploadID),
	})
	if err != nil {
		var noSuchUpload *types.NoSuchUpload
		if errors.As(err, &noSuchUpload) {
			return nil
		}
		return classify("upload", err)
	}
	return nil
}

// ListPage fetches one ListObjectsV2 page.
func (s *Store) ListPage(ctx context.Context, prefix, token string, pageSize int) (paging.Page[remote.ObjectItem], error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	if token != "" {
		input.ContinuationToken = aws.String(token)
	}
	if pageSize > 0 {
		input.MaxKeys = aws.Int32(int32(pageSize))
	}

	resp, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return paging.Page[remote.ObjectItem]{}, classify("list", err)
	}

	var page paging.Page[remote.ObjectItem]
	for _, obj := range resp.Contents {
		item := remote.ObjectItem{
			Key:  aws.ToString(obj.Key),
			ETag: aws.ToString(obj.ETag),
		}
		if obj.Size != nil {
			item.Size = *obj.Size
		}
		if obj.LastModified != nil {
			item.LastModified = *obj.LastModified
		}
		page.Items = append(page.Items, item)
	}
	if aws.ToBool(resp.IsTruncated) {
		page.Token = aws.ToString(resp.NextContinuationToken)
	}
	return page, nil
}

// Delete removes an object. S3 DeleteObject is idempotent, so a missing key
// is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classify("delete", err)
	}
	return nil
}
