package buffers

import (
	"testing"

	"github.com/meridian-labs/transit/internal/constants"
)

func TestGetChunkDefaultSize(t *testing.T) {
	buf := GetChunk(constants.ChunkSize)
	if buf == nil {
		t.Fatal("GetChunk() returned nil")
	}
	if len(*buf) != constants.ChunkSize {
		t.Errorf("buffer size = %d, want %d", len(*buf), constants.ChunkSize)
	}
	PutChunk(buf)
}

func TestGetChunkCustomSize(t *testing.T) {
	const size = 1024
	buf := GetChunk(size)
	if len(*buf) != size {
		t.Errorf("buffer size = %d, want %d", len(*buf), size)
	}
	// Returning a non-default-size buffer must be a no-op, not a panic.
	PutChunk(buf)
}

func TestPutChunkNil(t *testing.T) {
	// Must not panic
	PutChunk(nil)
}

func TestPoolReuse(t *testing.T) {
	buf := GetChunk(constants.ChunkSize)
	(*buf)[0] = 0xFF
	PutChunk(buf)

	// A subsequent Get may or may not return the same buffer (sync.Pool gives
	// no guarantee), but it must always be full-sized and usable.
	buf2 := GetChunk(constants.ChunkSize)
	if len(*buf2) != constants.ChunkSize {
		t.Errorf("reused buffer size = %d, want %d", len(*buf2), constants.ChunkSize)
	}
	PutChunk(buf2)
}
