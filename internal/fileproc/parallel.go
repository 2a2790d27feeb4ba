// Package fileproc provides concurrent file processing utilities.
package fileproc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/panbanda/luafix/pkg/analyzer"
)

// ErrWorkerCrashed marks a file whose processing panicked.
var ErrWorkerCrashed = errors.New("worker crashed")

// DefaultTimeout bounds the processing of a single file.
const DefaultTimeout = 10 * time.Second

// MaxDefaultWorkers caps the default worker count.
const MaxDefaultWorkers = 8

// DefaultWorkers returns min(NumCPU, MaxDefaultWorkers).
func DefaultWorkers() int {
	return min(runtime.NumCPU(), MaxDefaultWorkers)
}

// ProcessingError represents an error that occurred while processing a file.
type ProcessingError struct {
	Path string
	Err  error
}

func (e ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e ProcessingError) Unwrap() error { return e.Err }

// ProcessingErrors collects multiple file processing errors.
type ProcessingErrors struct {
	Errors []ProcessingError
	mu     sync.Mutex
}

// Add appends an error to the collection (thread-safe).
func (e *ProcessingErrors) Add(path string, err error) {
	e.mu.Lock()
	e.Errors = append(e.Errors, ProcessingError{Path: path, Err: err})
	e.mu.Unlock()
}

// HasErrors returns true if any errors were collected.
func (e *ProcessingErrors) HasErrors() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Errors) > 0
}

// Count returns the number of collected errors matching target, or all of
// them when target is nil.
func (e *ProcessingErrors) Count(target error) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, pe := range e.Errors {
		if target == nil || errors.Is(pe.Err, target) {
			n++
		}
	}
	return n
}

// Error implements the error interface.
func (e *ProcessingErrors) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d files failed to process (first: %v)", len(e.Errors), e.Errors[0])
}

// ProgressFunc is called after each file is processed.
type ProgressFunc func(path string)

// Options configures a run.
type Options struct {
	// Workers is the number of files processed concurrently; <= 0 means
	// DefaultWorkers.
	Workers int
	// Timeout bounds each file; 0 disables the bound.
	Timeout time.Duration
	// OnProgress is called once per finished file.
	OnProgress ProgressFunc
	Logger     *slog.Logger
}

// Outcome is the result of one file. Err is nil on success.
type Outcome[T any] struct {
	Path  string
	Value T
	Err   error
}

// TimedOut reports whether the file was abandoned after its timeout.
func (o Outcome[T]) TimedOut() bool {
	return errors.Is(o.Err, analyzer.ErrTimeout)
}

// Stats summarizes a run.
type Stats struct {
	Completed int
	Failed    int
	TimedOut  int
	// Crashed is set when the pool crashed and the remaining files were
	// processed sequentially.
	Crashed bool
}

// Run processes files with fn on a bounded worker pool. Outcomes are returned
// in the order of files, and every file yields exactly one outcome.
//
// Each file waits at most opts.Timeout; a file that exceeds it is abandoned
// with an error wrapping analyzer.ErrTimeout and is not retried. A panic in fn
// stops the pool from picking up new files; files not yet completed are then
// processed sequentially, and a file that panics again fails with
// ErrWorkerCrashed.
func Run[T any](ctx context.Context, files []string, opts Options, fn func(context.Context, string) (T, error)) ([]Outcome[T], Stats) {
	out := make([]Outcome[T], len(files))
	if len(files) == 0 {
		return out, Stats{}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	done := make([]bool, len(files))
	var crashed atomic.Bool
	finish := func(i int, value T, err error) {
		out[i] = Outcome[T]{Path: files[i], Value: value, Err: err}
		done[i] = true
		if opts.OnProgress != nil {
			opts.OnProgress(files[i])
		}
	}

	p := pool.New().WithMaxGoroutines(workers)
	for i, path := range files {
		p.Go(func() {
			if crashed.Load() {
				return
			}
			a := runOne(ctx, path, opts.Timeout, fn)
			if a.recovered != nil {
				crashed.Store(true)
				logger.Warn("worker crashed, falling back to sequential processing",
					"path", path, "panic", a.recovered.Value)
				return
			}
			finish(i, a.value, a.err)
		})
	}
	p.Wait()

	stats := Stats{Crashed: crashed.Load()}
	if stats.Crashed {
		for i, path := range files {
			if done[i] {
				continue
			}
			a := runOne(ctx, path, opts.Timeout, fn)
			if a.recovered != nil {
				logger.Error("file crashed in sequential mode", "path", path, "panic", a.recovered.Value)
				a.err = fmt.Errorf("%w: %v", ErrWorkerCrashed, a.recovered.Value)
			}
			finish(i, a.value, a.err)
		}
	}

	for _, o := range out {
		switch {
		case o.Err == nil:
			stats.Completed++
		case o.TimedOut():
			stats.TimedOut++
		default:
			stats.Failed++
		}
	}
	return out, stats
}

type attempt[T any] struct {
	value     T
	err       error
	recovered *panics.Recovered
}

// runOne runs fn for one file, waiting at most timeout. A panic inside fn is
// caught and returned in the attempt instead of an error.
func runOne[T any](ctx context.Context, path string, timeout time.Duration, fn func(context.Context, string) (T, error)) attempt[T] {
	if err := ctx.Err(); err != nil {
		return attempt[T]{err: err}
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ch := make(chan attempt[T], 1)
	go func() {
		var a attempt[T]
		var pc panics.Catcher
		pc.Try(func() {
			a.value, a.err = fn(ctx, path)
		})
		a.recovered = pc.Recovered()
		ch <- a
	}()

	select {
	case a := <-ch:
		return a
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return attempt[T]{err: fmt.Errorf("%s: %w after %s", path, analyzer.ErrTimeout, timeout)}
		}
		return attempt[T]{err: ctx.Err()}
	}
}

// Errors collects the failed outcomes, or returns nil when every file
// succeeded.
func Errors[T any](outcomes []Outcome[T]) *ProcessingErrors {
	errs := &ProcessingErrors{}
	for _, o := range outcomes {
		if o.Err != nil {
			errs.Add(o.Path, o.Err)
		}
	}
	if !errs.HasErrors() {
		return nil
	}
	return errs
}
