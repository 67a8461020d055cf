package transfer

import (
	"context"
	"crypto/md5"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meridian-labs/transit/internal/buffers"
	"github.com/meridian-labs/transit/internal/logging"
)

// Download fans the plan's chunks across cfg.Concurrency workers, each
// issuing one ranged read, and delivers the bytes to sink. The returned
// results are sorted by ascending chunk index regardless of completion
// order.
//
// A forward-only sink requires in-order writes, so it is only compatible
// with cfg.Concurrency == 1; anything higher is rejected before a single
// network call. On the first chunk failure no new chunks are dispatched;
// chunks already in flight run to completion but their results are
// discarded, and only that first error is returned. If cfg.Budget is set it
// is checked before each dispatch, and exceeding it fails the call with a
// timeout error.
func Download(ctx context.Context, cfg Config, r RangeReader, totalSize int64, sink *Sink, progress ProgressFunc) ([]ChunkResult, error) {
	return DownloadResumable(ctx, cfg, r, totalSize, sink, progress, nil, nil)
}

// DownloadResumable is Download with restart support: chunks whose index is
// in completed are not fetched again but still count toward progress, and
// onChunk fires after each newly completed chunk lands in the sink, giving
// the caller a point to persist resume state. Resuming requires a seekable
// sink.
func DownloadResumable(ctx context.Context, cfg Config, r RangeReader, totalSize int64, sink *Sink, progress ProgressFunc, completed map[int64]bool, onChunk func(ChunkDescriptor)) ([]ChunkResult, error) {
	plan, err := BuildPlan(totalSize, cfg)
	if err != nil {
		return nil, err
	}
	if !sink.Seekable() && cfg.Concurrency > 1 {
		return nil, NewError(KindConfiguration, "download",
			fmt.Errorf("forward-only sink requires concurrency 1, got %d", cfg.Concurrency))
	}
	if len(completed) > 0 && !sink.Seekable() {
		return nil, NewError(KindConfiguration, "download",
			fmt.Errorf("resuming requires a seekable sink"))
	}

	log := logging.NewDefault().WithField("op", "download")
	log.Debugf("planned %d chunks of %d bytes for %d total, %d already done",
		len(plan.Chunks), plan.ChunkSize, totalSize, len(completed))

	var errOnce sync.Once
	var firstErr error
	var failed atomic.Bool
	setError := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			failed.Store(true)
		})
	}

	concurrency := cfg.Concurrency
	if concurrency > len(plan.Chunks) {
		concurrency = len(plan.Chunks)
	}

	jobChan := make(chan chunkJob, concurrency*2)
	resultChan := make(chan chunkResult, len(plan.Chunks))

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobChan {
				// Fail-fast stops new work; chunks already reading finish
				// on their own.
				if failed.Load() || ctx.Err() != nil {
					continue
				}
				data, meta, err := downloadChunk(ctx, r, job.desc, cfg.ValidateContent)
				resultChan <- chunkResult{desc: job.desc, data: data, meta: meta, err: err}
			}
		}()
	}

	start := time.Now()
	go func() {
		defer close(jobChan)
		for _, d := range plan.Chunks {
			if completed[d.Index] {
				continue
			}
			if failed.Load() {
				return
			}
			if cfg.Budget > 0 && time.Since(start) > cfg.Budget {
				setError(NewError(KindTimeout, "download",
					fmt.Errorf("budget %s exhausted after %d of %d chunks dispatched",
						cfg.Budget, d.Index, len(plan.Chunks))))
				return
			}
			select {
			case jobChan <- chunkJob{desc: d}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	// Single collector: progress callbacks are serialized here, and a
	// forward-only sink (necessarily sequential) receives chunks in index
	// order as a consequence.
	counter := newProgressCounter(totalSize, true)
	for _, d := range plan.Chunks {
		if completed[d.Index] {
			counter.add(d.Length())
		}
	}

	var results []ChunkResult
	for res := range resultChan {
		if res.err != nil {
			setError(res.err)
			continue
		}
		if failed.Load() {
			continue
		}
		if err := sink.WriteChunk(res.desc, res.data); err != nil {
			setError(err)
			continue
		}
		results = append(results, ChunkResult{
			Index:            res.desc.Index,
			BytesTransferred: res.desc.Length(),
			ETag:             res.meta.ETag,
			LastModified:     res.meta.LastModified,
		})
		if onChunk != nil {
			onChunk(res.desc)
		}
		transferred := counter.add(res.desc.Length())
		if progress != nil {
			progress(transferred, counter.total)
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, tagChunk(err, -1, "download")
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results, nil
}

// Upload moves the source's bytes through w and returns the per-chunk
// results sorted by ascending index. Seekable sources of known size are
// planned up front and fanned across cfg.Concurrency workers; forward-only
// streams are consumed sequentially with descriptors generated as each chunk
// is carved off, and requesting concurrency above 1 for them is a
// configuration error, rejected before any network call.
func Upload(ctx context.Context, cfg Config, w RangeWriter, src *Source, progress ProgressFunc) ([]ChunkResult, error) {
	if !src.Seekable() {
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		if cfg.Concurrency > 1 {
			return nil, NewError(KindConfiguration, "upload",
				fmt.Errorf("forward-only source requires concurrency 1, got %d", cfg.Concurrency))
		}
		return uploadStream(ctx, cfg, w, src, progress)
	}

	size, _ := src.Size()
	plan, err := BuildPlan(size, cfg)
	if err != nil {
		return nil, err
	}

	log := logging.NewDefault().WithField("op", "upload")
	log.Debugf("planned %d chunks of %d bytes for %d total", len(plan.Chunks), plan.ChunkSize, size)

	var errOnce sync.Once
	var firstErr error
	var failed atomic.Bool
	setError := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			failed.Store(true)
		})
	}

	concurrency := cfg.Concurrency
	if concurrency > len(plan.Chunks) {
		concurrency = len(plan.Chunks)
	}

	jobChan := make(chan chunkJob, concurrency*2)
	resultChan := make(chan chunkResult, len(plan.Chunks))

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobChan {
				if failed.Load() || ctx.Err() != nil {
					continue
				}
				meta, err := uploadChunk(ctx, w, src, job.desc, cfg.ValidateContent)
				resultChan <- chunkResult{desc: job.desc, meta: meta, err: err}
			}
		}()
	}

	start := time.Now()
	go func() {
		defer close(jobChan)
		for _, d := range plan.Chunks {
			if failed.Load() {
				return
			}
			if cfg.Budget > 0 && time.Since(start) > cfg.Budget {
				setError(NewError(KindTimeout, "upload",
					fmt.Errorf("budget %s exhausted after %d of %d chunks dispatched",
						cfg.Budget, d.Index, len(plan.Chunks))))
				return
			}
			select {
			case jobChan <- chunkJob{desc: d}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	counter := newProgressCounter(size, true)
	var results []ChunkResult
	for res := range resultChan {
		if res.err != nil {
			setError(res.err)
			continue
		}
		if failed.Load() {
			continue
		}
		results = append(results, ChunkResult{
			Index:            res.desc.Index,
			BytesTransferred: res.desc.Length(),
			ETag:             res.meta.ETag,
			LastModified:     res.meta.LastModified,
		})
		transferred := counter.add(res.desc.Length())
		if progress != nil {
			progress(transferred, counter.total)
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, tagChunk(err, -1, "upload")
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results, nil
}

// uploadStream consumes a forward-only source one chunk at a time. The final
// chunk is only recognized after a short read, so every descriptor before it
// covers a full chunk.
func uploadStream(ctx context.Context, cfg Config, w RangeWriter, src *Source, progress ProgressFunc) ([]ChunkResult, error) {
	planner, err := NewIncrementalPlanner(cfg)
	if err != nil {
		return nil, err
	}

	counter := newProgressCounter(0, false)
	start := time.Now()

	bufp := buffers.GetChunk(cfg.ChunkSize)
	defer buffers.PutChunk(bufp)
	buf := (*bufp)[:cfg.ChunkSize]

	var results []ChunkResult
	for !planner.Exhausted() {
		if cfg.Budget > 0 && time.Since(start) > cfg.Budget {
			return nil, NewError(KindTimeout, "upload",
				fmt.Errorf("budget %s exhausted mid-stream", cfg.Budget))
		}
		if err := ctx.Err(); err != nil {
			return nil, tagChunk(err, -1, "upload")
		}

		n, err := src.ReadNext(buf)
		if err != nil {
			return nil, err
		}
		// A zero-byte read after at least one chunk means the stream ended on
		// an exact chunk boundary; there is nothing left to send. Only an
		// entirely empty source gets a zero-length request.
		if n == 0 && len(results) > 0 {
			break
		}
		d, err := planner.Next(n)
		if err != nil {
			return nil, err
		}

		var sum []byte
		if cfg.ValidateContent {
			s := md5.Sum(buf[:n])
			sum = s[:]
		}
		meta, err := w.WriteRange(ctx, d, buf[:n], sum)
		if err != nil {
			return nil, tagChunk(err, d.Index, "upload")
		}
		results = append(results, ChunkResult{
			Index:            d.Index,
			BytesTransferred: n,
			ETag:             meta.ETag,
			LastModified:     meta.LastModified,
		})

		transferred := counter.add(n)
		if progress != nil {
			progress(transferred, counter.total)
		}
	}
	return results, nil
}
