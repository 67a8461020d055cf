package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/meridian-labs/transit/internal/constants"
)

// BatchUI renders one bar per object for concurrent batch transfers.
type BatchUI struct {
	progress   *mpb.Progress
	mu         sync.Mutex
	isTerminal bool
	total      int
	completed  atomic.Int32
}

// ObjectBar tracks one object's transfer within a BatchUI.
type ObjectBar struct {
	bar        *mpb.Bar
	ui         *BatchUI
	index      int
	key        string
	size       int64
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64
}

// NewBatchUI creates a UI for a batch of totalObjects transfers. Without a
// terminal it degrades to line-per-object text output.
func NewBatchUI(totalObjects int) *BatchUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))

	var p *mpb.Progress
	if isTerminal {
		p = mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithRefreshRate(constants.ProgressTickInterval),
			mpb.WithWidth(100),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &BatchUI{
		progress:   p,
		isTerminal: isTerminal,
		total:      totalObjects,
	}
}

// AddBar registers a bar for the transfer of key. Size -1 means unknown.
func (u *BatchUI) AddBar(index int, key string, size int64) *ObjectBar {
	ob := &ObjectBar{
		ui:         u,
		index:      index,
		key:        key,
		size:       size,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
	}

	if u.isTerminal {
		ob.bar = u.progress.New(size,
			mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
			mpb.PrependDecorators(
				decor.Any(func(s decor.Statistics) string {
					return fmt.Sprintf("[%d/%d] %s", ob.index, u.total, ob.key)
				}, decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 60, decor.WCSyncSpace),
				decor.Name("  ETA "),
				decor.EwmaETA(decor.ET_STYLE_GO, 60),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		fmt.Fprintf(os.Stderr, "transferring [%d/%d]: %s (%.1f MiB)\n",
			index, u.total, key, float64(size)/(1024*1024))
	}
	return ob
}

// Update advances the bar to transferred bytes. Updates are throttled; the
// elapsed time is always fed to mpb so speed and ETA stay accurate even when
// no bytes moved.
func (b *ObjectBar) Update(transferred int64) {
	if b.bar == nil {
		return
	}

	now := time.Now()
	elapsed := now.Sub(b.lastUpdate)
	if elapsed < constants.ProgressTickInterval {
		return
	}
	b.bar.EwmaIncrBy(int(transferred-b.lastBytes), elapsed)
	b.lastBytes = transferred
	b.lastUpdate = now
}

// Start implements Reporter; the bar is created by AddBar, so there is
// nothing to set up here.
func (b *ObjectBar) Start(total int64, description string) {}

// Finish marks the object done and prints a summary line above the bars.
func (b *ObjectBar) Finish() {
	elapsed := time.Since(b.startTime)
	speed := float64(b.size) / elapsed.Seconds() / (1024 * 1024)

	if b.bar != nil {
		b.bar.SetCurrent(b.size)
		b.bar.SetTotal(b.size, true)
	}

	msg := fmt.Sprintf("✓ %s (%.1f MiB, %s, %.1f MiB/s)\n",
		b.key, float64(b.size)/(1024*1024), elapsed.Round(time.Second), speed)
	b.ui.write(msg)
	b.ui.completed.Add(1)
}

// Error keeps the bar visible and prints the failure.
func (b *ObjectBar) Error(err error) {
	if err == nil {
		return
	}
	if b.bar != nil {
		b.bar.Abort(false)
	}
	b.ui.write(fmt.Sprintf("✗ %s: %v\n", b.key, err))
	b.ui.completed.Add(1)
}

// write prints through mpb's writer so the text lands above live bars.
func (u *BatchUI) write(msg string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.isTerminal && u.progress != nil {
		u.progress.Write([]byte(msg))
	} else {
		fmt.Fprint(os.Stderr, msg)
	}
}

// Wait blocks until every bar has completed or aborted.
func (u *BatchUI) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// Completed returns how many objects have finished, successfully or not.
func (u *BatchUI) Completed() int {
	return int(u.completed.Load())
}

// LogWriter returns a writer that prints safely above the bars.
func (u *BatchUI) LogWriter() io.Writer {
	if u.progress != nil && u.isTerminal {
		return u.progress
	}
	return os.Stderr
}
