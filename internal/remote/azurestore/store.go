// Package azurestore implements the object store on Azure Blob Storage,
// authenticated by SAS URL.
package azurestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/meridian-labs/transit/internal/conditional"
	transithttp "github.com/meridian-labs/transit/internal/http"
	"github.com/meridian-labs/transit/internal/logging"
	"github.com/meridian-labs/transit/internal/paging"
	"github.com/meridian-labs/transit/internal/remote"
	"github.com/meridian-labs/transit/internal/transfer"
)

// Options configures a Store.
type Options struct {
	// SASURL is the account URL carrying a SAS token, e.g.
	// "https://acct.blob.core.windows.net/?sv=...".
	SASURL    string
	Container string
	Proxy     transithttp.ProxyOptions
}

// Store talks to one blob container.
type Store struct {
	container *container.Client
	log       *logging.Logger
}

// New builds the Azure client over the shared tuned HTTP transport so the
// connection pool is preserved across operations.
func New(opts Options) (*Store, error) {
	if opts.SASURL == "" {
		return nil, transfer.NewError(transfer.KindConfiguration, "store",
			errors.New("SAS URL is required"))
	}
	if opts.Container == "" {
		return nil, transfer.NewError(transfer.KindConfiguration, "store",
			errors.New("container is required"))
	}

	httpClient, err := transithttp.NewClient(opts.Proxy)
	if err != nil {
		return nil, err
	}

	client, err := azblob.NewClientWithNoCredential(opts.SASURL, &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Transport: httpClient,
		},
	})
	if err != nil {
		return nil, transfer.NewError(transfer.KindConfiguration, "store",
			fmt.Errorf("creating Azure client: %w", err))
	}

	return &Store{
		container: client.ServiceClient().NewContainerClient(opts.Container),
		log:       logging.NewDefault().WithField("backend", "azure"),
	}, nil
}

// classify translates Azure SDK failures into transfer error kinds.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return transfer.NewError(transfer.KindTimeout, op, err)
	}
	if bloberror.HasCode(err, bloberror.ConditionNotMet, bloberror.SourceConditionNotMet) {
		return transfer.NewError(transfer.KindConditionNotMet, op, err)
	}
	if bloberror.HasCode(err, bloberror.MD5Mismatch) {
		return transfer.NewError(transfer.KindIntegrity, op, err)
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return transfer.NewError(conditional.ClassifyStatus(respErr.StatusCode), op, err)
	}
	return transfer.NewError(transfer.KindTransport, op, err)
}

// accessConditions maps validator preconditions onto the SDK's option type.
func accessConditions(pre conditional.Preconditions) *blob.AccessConditions {
	if pre.Empty() {
		return nil
	}
	mod := &blob.ModifiedAccessConditions{}
	if pre.IfMatch != "" {
		etag := azcore.ETag(pre.IfMatch)
		mod.IfMatch = &etag
	}
	if pre.IfNoneMatch != "" {
		etag := azcore.ETag(pre.IfNoneMatch)
		mod.IfNoneMatch = &etag
	}
	if !pre.IfModifiedSince.IsZero() {
		t := pre.IfModifiedSince
		mod.IfModifiedSince = &t
	}
	if !pre.IfUnmodifiedSince.IsZero() {
		t := pre.IfUnmodifiedSince
		mod.IfUnmodifiedSince = &t
	}
	return &blob.AccessConditions{ModifiedAccessConditions: mod}
}

// Props fetches blob properties without the body.
func (s *Store) Props(ctx context.Context, key string) (remote.ObjectInfo, error) {
	resp, err := s.container.NewBlobClient(key).GetProperties(ctx, nil)
	if err != nil {
		return remote.ObjectInfo{}, classify("props", err)
	}

	info := remote.ObjectInfo{Key: key}
	if resp.ContentLength != nil {
		info.Size = *resp.ContentLength
	}
	if resp.ETag != nil {
		info.ETag = string(*resp.ETag)
	}
	if resp.LastModified != nil {
		info.LastModified = *resp.LastModified
	}
	if resp.ContentType != nil {
		info.ContentType = *resp.ContentType
	}
	return info, nil
}

// ReadRange downloads one inclusive byte range. The service returns a
// transactional MD5 for the range when it has one; small ranges get it,
// larger ranges may not.
func (s *Store) ReadRange(ctx context.Context, key string, start, end int64, pre conditional.Preconditions) (*transfer.ChunkPayload, error) {
	opts := &azblob.DownloadStreamOptions{
		AccessConditions: accessConditions(pre),
	}
	if end >= start {
		opts.Range = azblob.HTTPRange{Offset: start, Count: end - start + 1}
	}

	resp, err := s.container.NewBlobClient(key).DownloadStream(ctx, opts)
	if err != nil {
		return nil, classify("download", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transfer.NewError(transfer.KindTransport, "download",
			fmt.Errorf("reading blob body: %w", err))
	}
	payload := &transfer.ChunkPayload{Data: body, MD5: resp.ContentMD5}
	if resp.ETag != nil {
		payload.Meta.ETag = string(*resp.ETag)
	}
	if resp.LastModified != nil {
		payload.Meta.LastModified = *resp.LastModified
	}
	return payload, nil
}

// Put uploads the whole blob in one request. The transactional MD5 is
// verified server-side when provided.
func (s *Store) Put(ctx context.Context, key string, data []byte, sum []byte, pre conditional.Preconditions) (transfer.ChunkMeta, error) {
	opts := &blockblob.UploadOptions{
		AccessConditions: accessConditions(pre),
	}
	if sum != nil {
		opts.TransactionalContentMD5 = sum
	}

	resp, err := s.container.NewBlockBlobClient(key).Upload(ctx,
		streaming.NopCloser(bytes.NewReader(data)), opts)
	if err != nil {
		return transfer.ChunkMeta{}, classify("upload", err)
	}
	var meta transfer.ChunkMeta
	if resp.ETag != nil {
		meta.ETag = string(*resp.ETag)
	}
	if resp.LastModified != nil {
		meta.LastModified = *resp.LastModified
	}
	return meta, nil
}

// uploadSession stages blocks and commits them as one block list. Azure has
// no explicit abort; uncommitted blocks are garbage-collected by the service
// after a week.
type uploadSession struct {
	client *blockblob.Client
	log    *logging.Logger

	mu     sync.Mutex
	blocks map[int64]string
}

// BeginUpload opens a staged block upload for key. No request is issued
// until the first block is staged.
func (s *Store) BeginUpload(ctx context.Context, key string) (remote.UploadSession, error) {
	return &uploadSession{
		client: s.container.NewBlockBlobClient(key),
		log:    s.log,
		blocks: map[int64]string{},
	}, nil
}

// blockID derives the deterministic base64 block ID for a chunk index.
// Block IDs within one blob must all have equal length.
func blockID(index int64) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("block-%010d", index)))
}

// UploadChunk stages one block. Staged blocks carry no etag or timestamp;
// the commit produces the blob's metadata.
func (u *uploadSession) UploadChunk(ctx context.Context, d transfer.ChunkDescriptor, data []byte, sum []byte) (transfer.ChunkMeta, error) {
	id := blockID(d.Index)
	opts := &blockblob.StageBlockOptions{}
	if sum != nil {
		opts.TransactionalValidation = blob.TransferValidationTypeMD5(sum)
	}

	_, err := u.client.StageBlock(ctx, id, streaming.NopCloser(bytes.NewReader(data)), opts)
	if err != nil {
		return transfer.ChunkMeta{}, classify("upload", err)
	}

	u.mu.Lock()
	u.blocks[d.Index] = id
	u.mu.Unlock()
	return transfer.ChunkMeta{}, nil
}

func (u *uploadSession) Commit(ctx context.Context) error {
	u.mu.Lock()
	indexes := make([]int64, 0, len(u.blocks))
	for i := range u.blocks {
		indexes = append(indexes, i)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
	ids := make([]string, 0, len(indexes))
	for _, i := range indexes {
		ids = append(ids, u.blocks[i])
	}
	u.mu.Unlock()

	if _, err := u.client.CommitBlockList(ctx, ids, nil); err != nil {
		return classify("upload", err)
	}
	return nil
}

func (u *uploadSession) Abort(ctx context.Context) error {
	u.log.Debugf("leaving %d staged blocks for service-side expiry", len(u.blocks))
	return nil
}

// ListPage fetches one flat-listing page.
func (s *Store) ListPage(ctx context.Context, prefix, token string, pageSize int) (paging.Page[remote.ObjectItem], error) {
	opts := &container.ListBlobsFlatOptions{}
	if prefix != "" {
		opts.Prefix = &prefix
	}
	if token != "" {
		opts.Marker = &token
	}
	if pageSize > 0 {
		n := int32(pageSize)
		opts.MaxResults = &n
	}

	pager := s.container.NewListBlobsFlatPager(opts)
	if !pager.More() {
		return paging.Page[remote.ObjectItem]{}, nil
	}
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return paging.Page[remote.ObjectItem]{}, classify("list", err)
	}

	var page paging.Page[remote.ObjectItem]
	for _, item := range resp.Segment.BlobItems {
		if item.Name == nil {
			continue
		}
		entry := remote.ObjectItem{Key: *item.Name}
		if p := item.Properties; p != nil {
			if p.ContentLength != nil {
				entry.Size = *p.ContentLength
			}
			if p.ETag != nil {
				entry.ETag = string(*p.ETag)
			}
			if p.LastModified != nil {
				entry.LastModified = *p.LastModified
			}
		}
		page.Items = append(page.Items, entry)
	}
	if resp.NextMarker != nil && *resp.NextMarker != "" {
		page.Token = *resp.NextMarker
	}
	return page, nil
}

// Delete removes a blob; a missing blob is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.container.NewBlobClient(key).Delete(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil
		}
		return classify("delete", err)
	}
	return nil
}
