// Package transfer implements chunked, concurrent range transfers: planning
// a resource into byte ranges, moving each range through an object store
// backend, and aggregating per-chunk results in order.
package transfer

import (
	"fmt"
	"time"

	"github.com/meridian-labs/transit/internal/constants"
)

// Config carries the per-call transfer settings. It is immutable once a
// transfer starts; there are no process-wide mutable defaults.
type Config struct {
	// ChunkSize is the size of each transferred range. Must be > 0.
	ChunkSize int64
	// SingleShotThreshold - transfers at or below this size go as one
	// request instead of being chunked.
	SingleShotThreshold int64
	// Concurrency is the maximum number of chunks in flight. 1 forces
	// strictly sequential execution.
	Concurrency int
	// ValidateContent enables per-chunk MD5 digests: sent on uploads,
	// verified on downloads.
	ValidateContent bool
	// Budget is an optional wall-clock limit for the whole transfer,
	// checked before each new chunk dispatch. Zero means no limit.
	Budget time.Duration
}

// DefaultConfig returns the standard transfer settings.
func DefaultConfig() Config {
	return Config{
		ChunkSize:           constants.ChunkSize,
		SingleShotThreshold: constants.SingleShotThreshold,
		Concurrency:         constants.DefaultConcurrency,
	}
}

// validate rejects unusable settings before any network call is made.
func (c Config) validate() error {
	if c.ChunkSize <= 0 {
		return NewError(KindConfiguration, "plan",
			fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize))
	}
	if c.SingleShotThreshold < 0 {
		return NewError(KindConfiguration, "plan",
			fmt.Errorf("single-shot threshold must be non-negative, got %d", c.SingleShotThreshold))
	}
	if c.Concurrency < 1 {
		return NewError(KindConfiguration, "plan",
			fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.Concurrency > constants.MaxConcurrency {
		return NewError(KindConfiguration, "plan",
			fmt.Errorf("concurrency %d exceeds maximum %d", c.Concurrency, constants.MaxConcurrency))
	}
	return nil
}

// ChunkDescriptor identifies one bounded byte range of a transfer.
// Ranges are inclusive: a descriptor covering bytes 0..1023 has Start 0 and
// End 1023. A zero-length transfer is represented as Start 0, End -1.
// Descriptors are never mutated after creation and each is consumed by
// exactly one worker.
type ChunkDescriptor struct {
	Index int64
	Start int64
	End   int64
	Final bool
}

// Length returns the number of bytes covered by the descriptor.
func (d ChunkDescriptor) Length() int64 {
	if d.End < d.Start {
		return 0
	}
	return d.End - d.Start + 1
}

// Plan is the chunking decision for one transfer call. It is created once,
// owned by the coordinator for the call's lifetime, and never mutated.
type Plan struct {
	// TotalSize is the resource size in bytes; valid only when SizeKnown.
	TotalSize int64
	SizeKnown bool
	ChunkSize int64
	Chunks    []ChunkDescriptor
}

// BuildPlan splits a resource of known size into chunk descriptors.
//
// A size at or below the single-shot threshold yields exactly one descriptor
// spanning the whole resource. A zero-byte resource yields a single
// zero-length descriptor: one request is still issued, e.g. to create an
// empty object. Larger sizes yield ceil(totalSize/chunkSize) contiguous,
// non-overlapping descriptors whose union is [0, totalSize-1], the last one
// truncated to the remainder and flagged final.
//
// Re-running with identical inputs yields an identical descriptor sequence.
func BuildPlan(totalSize int64, cfg Config) (*Plan, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if totalSize < 0 {
		return nil, NewError(KindConfiguration, "plan",
			fmt.Errorf("total size must be non-negative, got %d", totalSize))
	}

	plan := &Plan{
		TotalSize: totalSize,
		SizeKnown: true,
		ChunkSize: cfg.ChunkSize,
	}

	if totalSize == 0 {
		plan.Chunks = []ChunkDescriptor{{Index: 0, Start: 0, End: -1, Final: true}}
		return plan, nil
	}

	if totalSize <= cfg.SingleShotThreshold {
		plan.Chunks = []ChunkDescriptor{{Index: 0, Start: 0, End: totalSize - 1, Final: true}}
		return plan, nil
	}

	count := (totalSize + cfg.ChunkSize - 1) / cfg.ChunkSize
	if count > constants.MaxChunkCount {
		return nil, NewError(KindConfiguration, "plan",
			fmt.Errorf("%d bytes at chunk size %d needs %d chunks, exceeding the %d-chunk limit",
				totalSize, cfg.ChunkSize, count, constants.MaxChunkCount))
	}

	chunks := make([]ChunkDescriptor, 0, count)
	for i := int64(0); i < count; i++ {
		start := i * cfg.ChunkSize
		end := start + cfg.ChunkSize - 1
		if end > totalSize-1 {
			end = totalSize - 1
		}
		chunks = append(chunks, ChunkDescriptor{
			Index: i,
			Start: start,
			End:   end,
			Final: i == count-1,
		})
	}
	plan.Chunks = chunks
	return plan, nil
}

// IncrementalPlanner generates descriptors one at a time for a source of
// unknown length. Each descriptor covers exactly ChunkSize bytes except a
// final short read, which is detected only after attempting to fill the full
// chunk and observing fewer bytes; that descriptor is flagged final.
type IncrementalPlanner struct {
	chunkSize int64
	index     int64
	offset    int64
	done      bool
}

// NewIncrementalPlanner returns a planner emitting ChunkSize-sized
// descriptors until the source runs short.
func NewIncrementalPlanner(cfg Config) (*IncrementalPlanner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &IncrementalPlanner{chunkSize: cfg.ChunkSize}, nil
}

// Next records that the caller read n bytes while attempting to fill one
// full chunk, and returns the descriptor covering them. A short read
// (n < ChunkSize) marks the descriptor final; after that the planner is
// exhausted. n == 0 on the very first call produces the zero-length
// descriptor for an empty source.
func (p *IncrementalPlanner) Next(n int64) (ChunkDescriptor, error) {
	if p.done {
		return ChunkDescriptor{}, NewError(KindConfiguration, "plan",
			fmt.Errorf("planner exhausted: final chunk already emitted"))
	}
	if n < 0 || n > p.chunkSize {
		return ChunkDescriptor{}, NewError(KindConfiguration, "plan",
			fmt.Errorf("read size %d outside [0, %d]", n, p.chunkSize))
	}

	d := ChunkDescriptor{
		Index: p.index,
		Start: p.offset,
		End:   p.offset + n - 1,
		Final: n < p.chunkSize,
	}
	if d.Final {
		p.done = true
	}
	p.index++
	p.offset += n
	return d, nil
}

// Exhausted reports whether the final descriptor has been emitted.
func (p *IncrementalPlanner) Exhausted() bool {
	return p.done
}
