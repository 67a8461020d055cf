// Package buffers provides reusable byte buffers to reduce heap allocations
// during chunked upload/download operations.
package buffers

import (
	"sync"

	"github.com/meridian-labs/transit/internal/constants"
)

// chunkPool provides default-sized buffers for chunk transfers.
// Transfers configured with a non-default chunk size allocate directly;
// only default-sized buffers are pooled.
var chunkPool = &sync.Pool{
	New: func() interface{} {
		buf := make([]byte, constants.ChunkSize)
		return &buf
	},
}

// GetChunk retrieves a buffer of at least n bytes. Buffers of the default
// chunk size come from the pool; other sizes are allocated fresh.
//
// Usage:
//
//	buf := buffers.GetChunk(n)
//	defer buffers.PutChunk(buf)
//	m, err := io.ReadFull(r, (*buf)[:n])
func GetChunk(n int64) *[]byte {
	if n == constants.ChunkSize {
		return chunkPool.Get().(*[]byte)
	}
	buf := make([]byte, n)
	return &buf
}

// PutChunk returns a buffer to the pool for reuse. The buffer must not be
// used after this call. Only default-sized buffers are pooled.
func PutChunk(buf *[]byte) {
	if buf != nil && len(*buf) == constants.ChunkSize {
		chunkPool.Put(buf)
	}
}
