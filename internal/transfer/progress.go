package transfer

import "sync/atomic"

// ProgressFunc is invoked after each chunk completes with the cumulative
// bytes transferred and the total size, or -1 when the total is unknown.
// Callbacks fire in completion order, not range order, and are never
// invoked concurrently with each other.
type ProgressFunc func(transferred, total int64)

// progressCounter accumulates transferred bytes across workers.
type progressCounter struct {
	transferred atomic.Int64
	total       int64
}

func newProgressCounter(total int64, known bool) *progressCounter {
	p := &progressCounter{total: -1}
	if known {
		p.total = total
	}
	return p
}

// add records n more transferred bytes and returns the new cumulative count.
func (p *progressCounter) add(n int64) int64 {
	return p.transferred.Add(n)
}
