package fileproc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/luafix/pkg/analyzer"
)

func paths(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("file%02d.lua", i)
	}
	return out
}

func TestRunPreservesOrder(t *testing.T) {
	files := paths(20)
	var seen sync.Map
	out, stats := Run(context.Background(), files, Options{
		Workers:    4,
		OnProgress: func(path string) { seen.Store(path, true) },
	}, func(_ context.Context, path string) (string, error) {
		return "done:" + path, nil
	})

	require.Len(t, out, len(files))
	for i, o := range out {
		assert.Equal(t, files[i], o.Path)
		assert.Equal(t, "done:"+files[i], o.Value)
		assert.NoError(t, o.Err)
		_, ok := seen.Load(files[i])
		assert.True(t, ok)
	}
	assert.Equal(t, Stats{Completed: 20}, stats)
	assert.Nil(t, Errors(out))
}

func TestRunEmpty(t *testing.T) {
	out, stats := Run(context.Background(), nil, Options{}, func(context.Context, string) (int, error) {
		t.Fatal("fn must not be called")
		return 0, nil
	})
	assert.Empty(t, out)
	assert.Zero(t, stats)
}

func TestRunCollectsErrors(t *testing.T) {
	boom := errors.New("boom")
	out, stats := Run(context.Background(), paths(3), Options{Workers: 2}, func(_ context.Context, path string) (int, error) {
		if path == "file01.lua" {
			return 0, boom
		}
		return 1, nil
	})
	assert.Equal(t, 2, stats.Completed)
	assert.Equal(t, 1, stats.Failed)

	errs := Errors(out)
	require.NotNil(t, errs)
	assert.Equal(t, 1, errs.Count(nil))
	assert.Equal(t, 1, errs.Count(boom))
	assert.Equal(t, "file01.lua: boom", errs.Error())
	assert.ErrorIs(t, errs.Errors[0], boom)
}

func TestRunTimeout(t *testing.T) {
	out, stats := Run(context.Background(), paths(2), Options{Workers: 2, Timeout: 20 * time.Millisecond},
		func(ctx context.Context, path string) (int, error) {
			if path == "file00.lua" {
				<-ctx.Done()
				time.Sleep(10 * time.Millisecond)
				return 0, nil
			}
			return 1, nil
		})
	assert.True(t, out[0].TimedOut())
	assert.ErrorIs(t, out[0].Err, analyzer.ErrTimeout)
	assert.NoError(t, out[1].Err)
	assert.Equal(t, Stats{Completed: 1, TimedOut: 1}, stats)
}

func TestRunCrashFallsBackToSequential(t *testing.T) {
	files := paths(10)
	var calls [10]atomic.Int32
	var crashedOnce atomic.Bool

	out, stats := Run(context.Background(), files, Options{Workers: 3}, func(_ context.Context, path string) (string, error) {
		var i int
		fmt.Sscanf(path, "file%02d.lua", &i)
		calls[i].Add(1)
		if i == 3 && crashedOnce.CompareAndSwap(false, true) {
			panic("grammar exploded")
		}
		return path, nil
	})

	assert.True(t, stats.Crashed)
	assert.Equal(t, Stats{Completed: 10, Crashed: true}, stats)
	for i, o := range out {
		assert.Equal(t, files[i], o.Path)
		assert.NoError(t, o.Err)
		assert.Equal(t, files[i], o.Value)
		if i == 3 {
			assert.Equal(t, int32(2), calls[i].Load())
			continue
		}
		assert.Equal(t, int32(1), calls[i].Load(), "completed files are not processed again: %s", files[i])
	}
}

func TestRunPersistentCrash(t *testing.T) {
	out, stats := Run(context.Background(), paths(3), Options{Workers: 1}, func(_ context.Context, path string) (string, error) {
		if path == "file01.lua" {
			panic("always broken")
		}
		return path, nil
	})
	assert.True(t, stats.Crashed)
	assert.NoError(t, out[0].Err)
	assert.ErrorIs(t, out[1].Err, ErrWorkerCrashed)
	assert.Contains(t, out[1].Err.Error(), "always broken")
	assert.NoError(t, out[2].Err)
	assert.Equal(t, 2, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, stats := Run(ctx, paths(2), Options{}, func(context.Context, string) (int, error) {
		return 1, nil
	})
	assert.ErrorIs(t, out[0].Err, context.Canceled)
	assert.Equal(t, 2, stats.Failed)
}

func TestDefaultWorkers(t *testing.T) {
	n := DefaultWorkers()
	assert.GreaterOrEqual(t, n, 1)
	assert.LessOrEqual(t, n, MaxDefaultWorkers)
}
