package watch

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/panbanda/luafix/pkg/config"
)

func newTestWatcher(t *testing.T, dir string, cfg *config.Config, debounce time.Duration) *Watcher {
	t.Helper()
	w, err := NewWatcher(dir, cfg, debounce, WithOutput(io.Discard))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	t.Cleanup(func() { w.Stop() })
	return w
}

func TestNewWatcher(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()

	tests := []struct {
		name     string
		debounce time.Duration
		want     time.Duration
	}{
		{"default debounce", 0, DefaultDebounce},
		{"custom debounce", time.Second, time.Second},
		{"negative debounce defaults", -time.Second, DefaultDebounce},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWatcher(t, tmpDir, cfg, tt.debounce)
			if w.fsWatcher == nil {
				t.Error("fsWatcher should not be nil")
			}
			if w.config != cfg {
				t.Error("config should match")
			}
			if w.pending == nil {
				t.Error("pending map should be initialized")
			}
			if w.debounce != tt.want {
				t.Errorf("debounce = %v, want %v", w.debounce, tt.want)
			}
		})
	}
}

func TestNewWatcherNilConfig(t *testing.T) {
	w := newTestWatcher(t, t.TempDir(), nil, 0)
	if w.config == nil {
		t.Error("nil config should fall back to defaults")
	}
}

func TestWatcher_handleEvent(t *testing.T) {
	tmpDir := t.TempDir()
	w := newTestWatcher(t, tmpDir, config.DefaultConfig(), time.Second)

	tests := []struct {
		name        string
		event       fsnotify.Event
		wantPending bool
	}{
		{"write event for lua file", fsnotify.Event{Name: filepath.Join(tmpDir, "client.lua"), Op: fsnotify.Write}, true},
		{"create event for lua file", fsnotify.Event{Name: filepath.Join(tmpDir, "server.lua"), Op: fsnotify.Create}, true},
		{"upper-case extension", fsnotify.Event{Name: filepath.Join(tmpDir, "SHARED.LUA"), Op: fsnotify.Write}, true},
		{"remove event ignored", fsnotify.Event{Name: filepath.Join(tmpDir, "removed.lua"), Op: fsnotify.Remove}, false},
		{"chmod event ignored", fsnotify.Event{Name: filepath.Join(tmpDir, "changed.lua"), Op: fsnotify.Chmod}, false},
		{"backup ignored", fsnotify.Event{Name: filepath.Join(tmpDir, "client.lua.bak"), Op: fsnotify.Write}, false},
		{"javascript ignored", fsnotify.Event{Name: filepath.Join(tmpDir, "html", "app.js"), Op: fsnotify.Write}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w.mu.Lock()
			w.pending = make(map[string]time.Time)
			w.mu.Unlock()

			w.handleEvent(tt.event)

			w.mu.Lock()
			_, found := w.pending[tt.event.Name]
			w.mu.Unlock()

			if found != tt.wantPending {
				t.Errorf("pending[%v] = %v, want %v", tt.event.Name, found, tt.wantPending)
			}
		})
	}
}

func TestWatcher_handleEvent_Excluded(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Exclude.Patterns = []string{"*_test.lua"}
	w := newTestWatcher(t, tmpDir, cfg, time.Second)

	tests := []struct {
		name        string
		path        string
		wantPending bool
	}{
		{"pattern excluded", filepath.Join(tmpDir, "client_test.lua"), false},
		{"node_modules excluded", filepath.Join(tmpDir, "node_modules", "lib.lua"), false},
		{"normal file", filepath.Join(tmpDir, "client.lua"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w.mu.Lock()
			w.pending = make(map[string]time.Time)
			w.mu.Unlock()

			w.handleEvent(fsnotify.Event{Name: tt.path, Op: fsnotify.Write})

			w.mu.Lock()
			_, found := w.pending[tt.path]
			w.mu.Unlock()

			if found != tt.wantPending {
				t.Errorf("pending[%v] = %v, want %v", tt.path, found, tt.wantPending)
			}
		})
	}
}

func TestWatcher_handleEvent_NewDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	w := newTestWatcher(t, tmpDir, config.DefaultConfig(), time.Second)

	sub := filepath.Join(tmpDir, "garage")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	w.handleEvent(fsnotify.Event{Name: sub, Op: fsnotify.Create})

	found := false
	for _, d := range w.WatchedDirs() {
		if d == sub {
			found = true
		}
	}
	if !found {
		t.Errorf("WatchedDirs() = %v, want %s included", w.WatchedDirs(), sub)
	}
}

func TestWatcher_addTreeSkipsExcluded(t *testing.T) {
	tmpDir := t.TempDir()
	for _, dir := range []string{"hud/client", "node_modules/pkg", ".git/hooks"} {
		if err := os.MkdirAll(filepath.Join(tmpDir, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	w := newTestWatcher(t, tmpDir, config.DefaultConfig(), time.Second)
	if err := w.addTree(tmpDir); err != nil {
		t.Fatalf("addTree() error = %v", err)
	}

	watched := map[string]bool{}
	for _, d := range w.WatchedDirs() {
		watched[d] = true
	}
	if !watched[filepath.Join(tmpDir, "hud", "client")] {
		t.Error("hud/client should be watched")
	}
	if watched[filepath.Join(tmpDir, "node_modules")] || watched[filepath.Join(tmpDir, ".git")] {
		t.Errorf("excluded directories watched: %v", w.WatchedDirs())
	}
}

func TestWatcher_processPending(t *testing.T) {
	tmpDir := t.TempDir()
	var out bytes.Buffer
	w, err := NewWatcher(tmpDir, config.DefaultConfig(), 50*time.Millisecond, WithOutput(&out))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	var mu sync.Mutex
	var got string
	w.SetCallback(func(ctx context.Context, path string) {
		mu.Lock()
		got = path
		mu.Unlock()
	})

	testFile := filepath.Join(tmpDir, "client.lua")
	w.mu.Lock()
	w.pending[testFile] = time.Now().Add(-100 * time.Millisecond)
	w.mu.Unlock()

	w.processPending(context.Background())
	w.running.Wait()

	mu.Lock()
	defer mu.Unlock()
	if got != testFile {
		t.Errorf("callback path = %v, want %v", got, testFile)
	}
	if !bytes.Contains(out.Bytes(), []byte("File changed: client.lua")) {
		t.Errorf("banner missing from output: %q", out.String())
	}

	w.mu.Lock()
	_, stillPending := w.pending[testFile]
	w.mu.Unlock()
	if stillPending {
		t.Error("file should be removed from pending after processing")
	}
}

func TestWatcher_processPending_NotReady(t *testing.T) {
	tmpDir := t.TempDir()
	w := newTestWatcher(t, tmpDir, config.DefaultConfig(), time.Hour)

	called := false
	w.SetCallback(func(ctx context.Context, path string) { called = true })

	testFile := filepath.Join(tmpDir, "client.lua")
	w.mu.Lock()
	w.pending[testFile] = time.Now()
	w.mu.Unlock()

	w.processPending(context.Background())
	w.running.Wait()

	if called {
		t.Error("callback should not be called before the debounce period")
	}
	w.mu.Lock()
	_, stillPending := w.pending[testFile]
	w.mu.Unlock()
	if !stillPending {
		t.Error("file should still be pending")
	}
}

func TestWatcher_Start(t *testing.T) {
	tmpDir := t.TempDir()
	w := newTestWatcher(t, tmpDir, config.DefaultConfig(), 20*time.Millisecond)

	changed := make(chan string, 4)
	w.SetCallback(func(ctx context.Context, path string) { changed <- path })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	target := filepath.Join(tmpDir, "client.lua")
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
loop:
	for {
		select {
		case path := <-changed:
			if path != target {
				t.Errorf("changed path = %s, want %s", path, target)
			}
			break loop
		case <-tick.C:
			// The watch may not be registered yet; keep touching the file.
			if err := os.WriteFile(target, []byte("print(1)\n"), 0o644); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("no change reported")
		}
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Start() = %v, want context.Canceled", err)
	}
}
