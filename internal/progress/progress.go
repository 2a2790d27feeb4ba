// Package progress renders progress bars on stderr while files are processed.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// Tracker wraps a progress bar for file processing. A disabled tracker
// counts ticks but draws nothing.
type Tracker struct {
	bar   *progressbar.ProgressBar
	label string
	out   io.Writer
	done  atomic.Int64
}

// Options configures a tracker.
type Options struct {
	// Writer receives the bar and finish messages; nil means os.Stderr.
	Writer io.Writer
	// Quiet disables drawing.
	Quiet bool
}

// Interactive reports whether f is a terminal.
func Interactive(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (o Options) writer() io.Writer {
	if o.Writer != nil {
		return o.Writer
	}
	return os.Stderr
}

// enabled draws only when not quiet and writing to a terminal. A custom
// writer is always drawn to.
func (o Options) enabled() bool {
	if o.Quiet {
		return false
	}
	return o.Writer != nil || Interactive(os.Stderr)
}

// NewSpinner creates a spinner for operations with unknown total count.
func NewSpinner(label string, opts Options) *Tracker {
	t := &Tracker{label: label, out: opts.writer()}
	if opts.enabled() {
		t.bar = progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(t.out),
			progressbar.OptionSetWidth(20),
			progressbar.OptionSetDescription(label),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionClearOnFinish(),
		)
	}
	return t
}

// NewTracker creates a progress bar with the given label and total count.
func NewTracker(label string, total int, opts Options) *Tracker {
	t := &Tracker{label: label, out: opts.writer()}
	if opts.enabled() {
		t.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(t.out),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionSetDescription(label),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionSetElapsedTime(false),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}
	return t
}

// Tick increments the progress by 1. Safe for concurrent use.
func (t *Tracker) Tick() {
	t.done.Add(1)
	if t.bar != nil {
		_ = t.bar.Add(1)
	}
}

// TickFile increments the progress for a finished file. Its signature
// matches the per-file progress callback of fileproc.
func (t *Tracker) TickFile(string) {
	t.Tick()
}

// Done returns the number of ticks so far.
func (t *Tracker) Done() int {
	return int(t.done.Load())
}

func (t *Tracker) clear() {
	if t.bar != nil {
		_ = t.bar.Finish()
		_ = t.bar.Clear()
	}
}

// FinishSuccess clears the bar completely (no output).
func (t *Tracker) FinishSuccess() {
	t.clear()
}

// FinishSkipped clears the bar and prints a skip message.
func (t *Tracker) FinishSkipped(reason string) {
	t.clear()
	fmt.Fprintf(t.out, "  %s skipped (%s)\n", t.label, reason)
}

// FinishError clears the bar and prints an error message.
func (t *Tracker) FinishError(err error) {
	t.clear()
	fmt.Fprintf(t.out, "  %s error: %v\n", t.label, err)
}
