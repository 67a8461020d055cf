// Package client ties the pieces together: it resolves object metadata,
// plans and runs chunked transfers against an object store backend, and
// exposes listing and deletion.
package client

import (
	"context"
	"crypto/md5"
	"fmt"
	"os"

	"github.com/meridian-labs/transit/internal/conditional"
	"github.com/meridian-labs/transit/internal/logging"
	"github.com/meridian-labs/transit/internal/paging"
	"github.com/meridian-labs/transit/internal/remote"
	"github.com/meridian-labs/transit/internal/transfer"
)

// Client runs transfers against one object store.
type Client struct {
	store remote.ObjectStore
	cfg   transfer.Config
	log   *logging.Logger
}

// New wraps a store with the given transfer settings.
func New(store remote.ObjectStore, cfg transfer.Config) *Client {
	return &Client{
		store: store,
		cfg:   cfg,
		log:   logging.NewDefault().WithField("component", "client"),
	}
}

// DownloadOptions carries the optional per-call download settings.
type DownloadOptions struct {
	// Preconditions are sent on every ranged read. They apply to the first
	// request and, combined with version pinning, to all subsequent chunks.
	Preconditions conditional.Preconditions
	// Progress receives cumulative byte counts as chunks complete.
	Progress transfer.ProgressFunc
}

// UploadOptions carries the optional per-call upload settings.
type UploadOptions struct {
	// Preconditions apply to single-shot uploads; multipart initiation APIs
	// do not accept validators.
	Preconditions conditional.Preconditions
	Progress      transfer.ProgressFunc
}

// rangeReader serves a fixed object's ranges with fixed preconditions.
type rangeReader struct {
	store remote.ObjectStore
	key   string
	pre   conditional.Preconditions
}

func (r *rangeReader) ReadRange(ctx context.Context, start, end int64) (*transfer.ChunkPayload, error) {
	return r.store.ReadRange(ctx, r.key, start, end, r.pre)
}

// pin locks ranged reads to the version observed at planning time. If the
// object is replaced mid-download, later chunks fail with a
// condition-not-met error instead of silently mixing versions.
func pin(pre conditional.Preconditions, etag string) conditional.Preconditions {
	if pre.IfMatch == "" && etag != "" {
		pre.IfMatch = etag
	}
	return pre
}

// Download fetches the object into sink. The object's size and version come
// from a metadata probe; every chunk read is then pinned to that version.
func (c *Client) Download(ctx context.Context, key string, sink *transfer.Sink, opts DownloadOptions) (remote.ObjectInfo, error) {
	info, err := c.store.Props(ctx, key)
	if err != nil {
		return remote.ObjectInfo{}, err
	}

	reader := &rangeReader{store: c.store, key: key, pre: pin(opts.Preconditions, info.ETag)}
	if _, err := transfer.Download(ctx, c.cfg, reader, info.Size, sink, opts.Progress); err != nil {
		return info, err
	}
	return info, nil
}

// DownloadBytes fetches the whole object into memory.
func (c *Client) DownloadBytes(ctx context.Context, key string, opts DownloadOptions) ([]byte, remote.ObjectInfo, error) {
	info, err := c.store.Props(ctx, key)
	if err != nil {
		return nil, remote.ObjectInfo{}, err
	}

	buf := newMemWriterAt(info.Size)
	reader := &rangeReader{store: c.store, key: key, pre: pin(opts.Preconditions, info.ETag)}
	if _, err := transfer.Download(ctx, c.cfg, reader, info.Size, transfer.NewWriterAtSink(buf), opts.Progress); err != nil {
		return nil, info, err
	}
	return buf.buf, info, nil
}

// DownloadFile fetches the object into a local file, resuming a previous
// partial download of the same object version when a valid resume sidecar is
// present. The sidecar is updated after every chunk and removed on success.
func (c *Client) DownloadFile(ctx context.Context, key, path string, opts DownloadOptions) (remote.ObjectInfo, error) {
	info, err := c.store.Props(ctx, key)
	if err != nil {
		return remote.ObjectInfo{}, err
	}

	state, completed := loadResumeState(path, info, c.cfg.ChunkSize)
	if len(completed) > 0 {
		c.log.Infof("resuming %s: %d chunks already present", path, len(completed))
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return info, transfer.NewError(transfer.KindConfiguration, "download",
			fmt.Errorf("opening %s: %w", path, err))
	}
	defer f.Close()
	if err := f.Truncate(info.Size); err != nil {
		return info, transfer.NewError(transfer.KindConfiguration, "download",
			fmt.Errorf("sizing %s: %w", path, err))
	}

	onChunk := func(d transfer.ChunkDescriptor) {
		state.markDone(d.Index)
		if err := state.save(path); err != nil {
			c.log.Warnf("saving resume state: %v", err)
		}
	}

	reader := &rangeReader{store: c.store, key: key, pre: pin(opts.Preconditions, info.ETag)}
	_, err = transfer.DownloadResumable(ctx, c.cfg, reader, info.Size,
		transfer.NewWriterAtSink(f), opts.Progress, completed, onChunk)
	if err != nil {
		return info, err
	}

	if err := f.Sync(); err != nil {
		return info, transfer.NewError(transfer.KindTransport, "download",
			fmt.Errorf("syncing %s: %w", path, err))
	}
	state.remove(path)
	return info, nil
}

// sessionWriter adapts an upload session to the transfer engine.
type sessionWriter struct {
	sess remote.UploadSession
}

func (w *sessionWriter) WriteRange(ctx context.Context, d transfer.ChunkDescriptor, data []byte, sum []byte) (transfer.ChunkMeta, error) {
	return w.sess.UploadChunk(ctx, d, data, sum)
}

// Upload stores the source's bytes under key. Payloads of known size at or
// below the single-shot threshold go as one request; everything else runs
// as a chunked session that is committed on success and aborted on any
// failure. The returned metadata is the single-shot response's, or for
// chunked uploads the last-write-wins pick across chunk responses.
func (c *Client) Upload(ctx context.Context, key string, src *transfer.Source, opts UploadOptions) (transfer.ChunkMeta, error) {
	if !src.Seekable() && c.cfg.Concurrency > 1 {
		return transfer.ChunkMeta{}, transfer.NewError(transfer.KindConfiguration, "upload",
			fmt.Errorf("forward-only source requires concurrency 1, got %d", c.cfg.Concurrency))
	}

	if size, sized := src.Size(); sized && size <= c.cfg.SingleShotThreshold {
		return c.uploadSingleShot(ctx, key, src, size, opts)
	}

	sess, err := c.store.BeginUpload(ctx, key)
	if err != nil {
		return transfer.ChunkMeta{}, err
	}

	results, err := transfer.Upload(ctx, c.cfg, &sessionWriter{sess: sess}, src, opts.Progress)
	if err != nil {
		if abortErr := sess.Abort(ctx); abortErr != nil {
			c.log.Warnf("aborting upload of %s: %v", key, abortErr)
		}
		return transfer.ChunkMeta{}, err
	}
	if err := sess.Commit(ctx); err != nil {
		return transfer.ChunkMeta{}, err
	}
	return transfer.MetadataWinner(results), nil
}

func (c *Client) uploadSingleShot(ctx context.Context, key string, src *transfer.Source, size int64, opts UploadOptions) (transfer.ChunkMeta, error) {
	d := transfer.ChunkDescriptor{Index: 0, Start: 0, End: size - 1, Final: true}
	buf := make([]byte, size)
	if err := src.ReadChunk(d, buf); err != nil {
		return transfer.ChunkMeta{}, err
	}

	var sum []byte
	if c.cfg.ValidateContent {
		s := md5.Sum(buf)
		sum = s[:]
	}
	meta, err := c.store.Put(ctx, key, buf, sum, opts.Preconditions)
	if err != nil {
		return transfer.ChunkMeta{}, err
	}
	if opts.Progress != nil {
		opts.Progress(size, size)
	}
	return meta, nil
}

// UploadFile stores a local file under key.
func (c *Client) UploadFile(ctx context.Context, key, path string, opts UploadOptions) (transfer.ChunkMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return transfer.ChunkMeta{}, transfer.NewError(transfer.KindConfiguration, "upload",
			fmt.Errorf("opening %s: %w", path, err))
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return transfer.ChunkMeta{}, transfer.NewError(transfer.KindConfiguration, "upload",
			fmt.Errorf("stating %s: %w", path, err))
	}
	return c.Upload(ctx, key, transfer.NewReaderAtSource(f, st.Size()), opts)
}

// List returns a cursor over the keys under prefix.
func (c *Client) List(prefix string, pageSize int) *paging.Cursor[remote.ObjectItem] {
	return paging.NewCursor(c.fetcher(prefix), pageSize)
}

// ListFrom returns a cursor continuing a previous listing from token.
func (c *Client) ListFrom(prefix, token string, pageSize int) *paging.Cursor[remote.ObjectItem] {
	return paging.ResumeCursor(c.fetcher(prefix), token, pageSize)
}

func (c *Client) fetcher(prefix string) paging.Fetcher[remote.ObjectItem] {
	return func(ctx context.Context, token string, pageSize int) (paging.Page[remote.ObjectItem], error) {
		return c.store.ListPage(ctx, prefix, token, pageSize)
	}
}

// Stat probes an object's metadata.
func (c *Client) Stat(ctx context.Context, key string) (remote.ObjectInfo, error) {
	return c.store.Props(ctx, key)
}

// Delete removes an object.
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

// memWriterAt collects chunk writes into a preallocated buffer. Chunks cover
// disjoint ranges, so concurrent writes need no locking.
type memWriterAt struct {
	buf []byte
}

func newMemWriterAt(size int64) *memWriterAt {
	return &memWriterAt{buf: make([]byte, size)}
}

func (m *memWriterAt) WriteAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > int64(len(m.buf)) {
		return 0, fmt.Errorf("write at %d overruns %d-byte buffer", off, len(m.buf))
	}
	copy(m.buf[off:], p)
	return len(p), nil
}
