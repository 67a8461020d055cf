// Package remote defines the object store abstraction the transfer engine
// moves bytes through, with backends for S3-compatible HTTP endpoints, AWS
// S3, and Azure Blob Storage.
package remote

import (
	"context"
	"time"

	"github.com/meridian-labs/transit/internal/conditional"
	"github.com/meridian-labs/transit/internal/paging"
	"github.com/meridian-labs/transit/internal/transfer"
)

// ObjectInfo describes a stored object, as returned by a properties probe.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	ContentType  string
}

// ObjectItem is one listing entry.
type ObjectItem struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// UploadSession is a multi-chunk upload in progress. Chunks may arrive in
// any order; Commit assembles them by index. A session that is neither
// committed nor aborted leaves garbage on the backend, so callers abort on
// any failure path.
type UploadSession interface {
	// UploadChunk stores one chunk and reports whatever metadata the
	// backend returned for it. sum is the chunk's MD5, nil when content
	// validation is off.
	UploadChunk(ctx context.Context, d transfer.ChunkDescriptor, data []byte, sum []byte) (transfer.ChunkMeta, error)
	// Commit finalizes the object from the uploaded chunks.
	Commit(ctx context.Context) error
	// Abort discards the session and any uploaded chunks.
	Abort(ctx context.Context) error
}

// ObjectStore is one storage backend. Implementations translate their
// backend's failures into *transfer.Error values so callers can classify
// without knowing which backend is underneath.
type ObjectStore interface {
	// Props probes an object's metadata without fetching its body.
	Props(ctx context.Context, key string) (ObjectInfo, error)

	// ReadRange fetches the inclusive byte range [start, end] of an object,
	// subject to pre. end == -1 with start == 0 requests an empty object's
	// zero-length body probe. A violated precondition yields a
	// condition-not-met error.
	ReadRange(ctx context.Context, key string, start, end int64, pre conditional.Preconditions) (*transfer.ChunkPayload, error)

	// Put writes an object in a single request, replacing any existing
	// content. Used for payloads at or below the single-shot threshold,
	// including zero-length objects.
	Put(ctx context.Context, key string, data []byte, sum []byte, pre conditional.Preconditions) (transfer.ChunkMeta, error)

	// BeginUpload opens a multi-chunk upload session for key.
	BeginUpload(ctx context.Context, key string) (UploadSession, error)

	// ListPage fetches one listing page of keys under prefix, starting at
	// the continuation token (empty for the first page).
	ListPage(ctx context.Context, prefix, token string, pageSize int) (paging.Page[ObjectItem], error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
}
