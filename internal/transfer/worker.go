package transfer

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/meridian-labs/transit/internal/buffers"
)

// ChunkMeta is the object metadata a backend reports on one chunk request.
// Fields are zero when the backend does not report them.
type ChunkMeta struct {
	ETag         string
	LastModified time.Time
}

// ChunkPayload is the outcome of one ranged read. MD5 is the backend's
// digest of Data, nil when the backend does not provide one.
type ChunkPayload struct {
	Data []byte
	MD5  []byte
	Meta ChunkMeta
}

// RangeReader serves one ranged read per call. Implementations translate
// backend failures into *Error values; anything else is treated as a
// transport failure.
type RangeReader interface {
	ReadRange(ctx context.Context, start, end int64) (*ChunkPayload, error)
}

// RangeWriter accepts one chunk payload per call. sum is the MD5 of data,
// nil when content validation is off.
type RangeWriter interface {
	WriteRange(ctx context.Context, d ChunkDescriptor, data []byte, sum []byte) (ChunkMeta, error)
}

// ChunkResult is the per-chunk outcome the coordinator aggregates and
// returns, always sorted by ascending index.
type ChunkResult struct {
	Index            int64
	BytesTransferred int64
	ETag             string
	LastModified     time.Time
}

// MetadataWinner picks the etag and last-modified of the result with the
// greatest last-modified timestamp, matching the service convention that the
// last write wins. Results without a timestamp lose to any that have one.
func MetadataWinner(results []ChunkResult) ChunkMeta {
	var winner ChunkMeta
	for _, r := range results {
		if winner.ETag == "" && winner.LastModified.IsZero() {
			winner = ChunkMeta{ETag: r.ETag, LastModified: r.LastModified}
			continue
		}
		if r.LastModified.After(winner.LastModified) {
			winner = ChunkMeta{ETag: r.ETag, LastModified: r.LastModified}
		}
	}
	return winner
}

type chunkJob struct {
	desc ChunkDescriptor
}

type chunkResult struct {
	desc ChunkDescriptor
	data []byte
	meta ChunkMeta
	err  error
}

// downloadChunk issues exactly one ranged read for d. Retries live below
// this layer, in the HTTP client; a failure here is final for the chunk.
func downloadChunk(ctx context.Context, r RangeReader, d ChunkDescriptor, validate bool) ([]byte, ChunkMeta, error) {
	payload, err := r.ReadRange(ctx, d.Start, d.End)
	if err != nil {
		return nil, ChunkMeta{}, tagChunk(err, d.Index, "download")
	}
	if want := d.Length(); int64(len(payload.Data)) != want {
		return nil, ChunkMeta{}, NewChunkError(KindIntegrity, d.Index, "download",
			fmt.Errorf("expected %d bytes for range %d-%d, got %d", want, d.Start, d.End, len(payload.Data)))
	}
	if validate && payload.MD5 != nil {
		got := md5.Sum(payload.Data)
		if !bytes.Equal(got[:], payload.MD5) {
			return nil, ChunkMeta{}, NewChunkError(KindIntegrity, d.Index, "download",
				fmt.Errorf("md5 mismatch: computed %s, server reported %s",
					hex.EncodeToString(got[:]), hex.EncodeToString(payload.MD5)))
		}
	}
	return payload.Data, payload.Meta, nil
}

// uploadChunk reads d's bytes from the source and hands them to the writer
// in one call. The chunk buffer comes from the shared pool and is returned
// once the write completes.
func uploadChunk(ctx context.Context, w RangeWriter, src *Source, d ChunkDescriptor, validate bool) (ChunkMeta, error) {
	bufp := buffers.GetChunk(d.Length())
	defer buffers.PutChunk(bufp)
	buf := (*bufp)[:d.Length()]

	if err := src.ReadChunk(d, buf); err != nil {
		return ChunkMeta{}, err
	}
	var sum []byte
	if validate {
		s := md5.Sum(buf)
		sum = s[:]
	}
	meta, err := w.WriteRange(ctx, d, buf, sum)
	if err != nil {
		return ChunkMeta{}, tagChunk(err, d.Index, "upload")
	}
	return meta, nil
}

// tagChunk ensures an error surfacing from a chunk operation carries the
// chunk index and an operation name.
func tagChunk(err error, index int64, op string) error {
	var te *Error
	if errors.As(err, &te) {
		if te.Chunk < 0 {
			return &Error{Kind: te.Kind, Chunk: index, Op: op, Err: te.Err}
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewChunkError(KindTimeout, index, op, err)
	}
	return NewChunkError(KindTransport, index, op, err)
}
