// Package progress renders transfer progress on the terminal. A single
// transfer gets a progressbar spinner; batch transfers get one mpb bar per
// object. Non-TTY output falls back to plain text.
package progress

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/meridian-labs/transit/internal/transfer"
)

// Reporter receives transfer progress.
type Reporter interface {
	Start(total int64, description string)
	Update(current int64)
	Finish()
	Error(err error)
}

// Func adapts a Reporter to the transfer engine's callback. The returned
// function is invoked from a single goroutine, so the Reporter needs no
// locking of its own.
func Func(r Reporter) transfer.ProgressFunc {
	return func(transferred, total int64) {
		r.Update(transferred)
	}
}

// Bar reports a single transfer with a progressbar spinner on stderr.
type Bar struct {
	bar *progressbar.ProgressBar
}

// NewBar creates an unstarted single-transfer reporter.
func NewBar() *Bar {
	return &Bar{}
}

// Start initializes the bar. A total of -1 renders a spinner with a byte
// counter but no percentage, for transfers of unknown size.
func (p *Bar) Start(total int64, description string) {
	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Update moves the bar to the current byte position.
func (p *Bar) Update(current int64) {
	if p.bar != nil {
		_ = p.bar.Set64(current)
	}
}

// Finish completes the bar.
func (p *Bar) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// Error prints the failure below the bar.
func (p *Bar) Error(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
	}
}

// NoOp is a Reporter that discards everything, for silent operation.
type NoOp struct{}

func (NoOp) Start(total int64, description string) {}
func (NoOp) Update(current int64)                  {}
func (NoOp) Finish()                               {}
func (NoOp) Error(err error)                       {}
