package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/panbanda/luafix/pkg/models"
)

func newCache(t *testing.T, ttlHours int) *Cache {
	t.Helper()
	c, err := New(filepath.Join(t.TempDir(), "nested", "cache"), ttlHours, true)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c
}

func entryFiles(t *testing.T, c *Cache) []string {
	t.Helper()
	var files []string
	filepath.WalkDir(c.dir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	return files
}

func TestNew(t *testing.T) {
	c := newCache(t, 24)
	if !c.Enabled() {
		t.Error("cache should be enabled")
	}
	if _, err := os.Stat(c.dir); err != nil {
		t.Errorf("New() should create the cache dir: %v", err)
	}

	disabled, err := New("", 0, false)
	if err != nil {
		t.Fatalf("New() error for disabled cache: %v", err)
	}
	if disabled.Enabled() {
		t.Error("cache should be disabled")
	}

	var nilCache *Cache
	if nilCache.Enabled() {
		t.Error("nil cache should report disabled")
	}
}

func TestNewUnwritableDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(filepath.Join(file, "cache"), 0, true); err == nil {
		t.Error("New() should fail when the dir cannot be created")
	}
}

func TestFindingsRoundTrip(t *testing.T) {
	c := newCache(t, 24)

	src := []byte("table.insert(t, v)\n")
	fp := Fingerprint("threshold=4", "experimental=false")
	findings := []models.Finding{{
		Pattern:  models.PatternTableInsert,
		Severity: models.SeverityGreen,
		Line:     1,
		Message:  "table.insert(t, v) can be t[#t+1] = v",
		File:     "client.lua",
		Details:  map[string]any{"count": 3},
	}}
	if err := c.SetFindings("client.lua", fp, src, findings); err != nil {
		t.Fatalf("SetFindings() error: %v", err)
	}

	got, ok := c.GetFindings("client.lua", fp, src)
	if !ok {
		t.Fatal("GetFindings() missed a stored entry")
	}
	if len(got) != 1 || got[0].Pattern != models.PatternTableInsert || got[0].DetailInt("count") != 3 {
		t.Errorf("GetFindings() = %+v", got)
	}

	if _, ok := c.GetFindings("client.lua", fp, []byte("changed\n")); ok {
		t.Error("GetFindings() should miss after the source changed")
	}
	if _, ok := c.GetFindings("client.lua", Fingerprint("threshold=3"), src); ok {
		t.Error("GetFindings() should miss under other settings")
	}
	if _, ok := c.GetFindings("server.lua", fp, src); ok {
		t.Error("GetFindings() should miss for another path")
	}
}

func TestEntriesAreSharded(t *testing.T) {
	c := newCache(t, 0)
	if err := c.SetFindings("a.lua", "fp", []byte("x"), nil); err != nil {
		t.Fatal(err)
	}
	files := entryFiles(t, c)
	if len(files) != 1 {
		t.Fatalf("entries = %v, want 1", files)
	}
	rel, _ := filepath.Rel(c.dir, files[0])
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 || len(parts[0]) != 2 || !strings.HasSuffix(parts[1], entryExt) {
		t.Errorf("entry path = %s", rel)
	}
}

func TestSetReplacesEntry(t *testing.T) {
	c := newCache(t, 0)
	src := []byte("print(1)\n")
	first := []models.Finding{{Pattern: models.PatternDebugStatement, Line: 1}}
	if err := c.SetFindings("a.lua", "fp", src, first); err != nil {
		t.Fatal(err)
	}
	if err := c.SetFindings("a.lua", "fp", src, nil); err != nil {
		t.Fatal(err)
	}
	got, ok := c.GetFindings("a.lua", "fp", src)
	if !ok || len(got) != 0 {
		t.Errorf("GetFindings() = %v, %v; want the replaced empty entry", got, ok)
	}
	if n := len(entryFiles(t, c)); n != 1 {
		t.Errorf("entries = %d, want 1", n)
	}
}

func TestDisabledCache(t *testing.T) {
	c, _ := New("", 0, false)
	if err := c.SetFindings("a.lua", "fp", []byte("x"), nil); err != nil {
		t.Errorf("SetFindings() on disabled cache error: %v", err)
	}
	if _, ok := c.GetFindings("a.lua", "fp", []byte("x")); ok {
		t.Error("disabled cache should never hit")
	}
	if n, err := c.Prune(); n != 0 || err != nil {
		t.Errorf("Prune() = %d, %v", n, err)
	}
}

func TestTTLExpiration(t *testing.T) {
	c := newCache(t, 1)
	now := time.Now()
	c.now = func() time.Time { return now }

	src := []byte("x")
	if err := c.SetFindings("a.lua", "fp", src, nil); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.GetFindings("a.lua", "fp", src); !ok {
		t.Fatal("fresh entry should hit")
	}

	c.now = func() time.Time { return now.Add(2 * time.Hour) }
	if _, ok := c.GetFindings("a.lua", "fp", src); ok {
		t.Error("expired entry should miss")
	}
	if n := len(entryFiles(t, c)); n != 0 {
		t.Errorf("expired entry should be removed on read, %d left", n)
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c := newCache(t, 0)
	now := time.Now()
	c.now = func() time.Time { return now }
	src := []byte("x")
	if err := c.SetFindings("a.lua", "fp", src, nil); err != nil {
		t.Fatal(err)
	}
	c.now = func() time.Time { return now.Add(10000 * time.Hour) }
	if _, ok := c.GetFindings("a.lua", "fp", src); !ok {
		t.Error("entry without TTL should not expire")
	}
}

func TestPrune(t *testing.T) {
	c := newCache(t, 1)
	now := time.Now()
	c.now = func() time.Time { return now.Add(-3 * time.Hour) }
	if err := c.SetFindings("old.lua", "fp", []byte("x"), nil); err != nil {
		t.Fatal(err)
	}
	c.now = func() time.Time { return now }
	if err := c.SetFindings("new.lua", "fp", []byte("y"), nil); err != nil {
		t.Fatal(err)
	}
	garbage := filepath.Join(c.dir, "ff", "broken"+entryExt)
	if err := os.MkdirAll(filepath.Dir(garbage), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(garbage, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := c.Prune()
	if err != nil {
		t.Fatalf("Prune() error: %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() removed %d, want 2", n)
	}
	if _, ok := c.GetFindings("new.lua", "fp", []byte("y")); !ok {
		t.Error("Prune() should keep live entries")
	}
}

func TestContentHash(t *testing.T) {
	a := ContentHash([]byte("local x = 1"))
	if len(a) != 64 {
		t.Errorf("ContentHash() length = %d, want 64", len(a))
	}
	if a != ContentHash([]byte("local x = 1")) {
		t.Error("ContentHash() should be deterministic")
	}
	if a == ContentHash([]byte("local x = 2")) {
		t.Error("ContentHash() should differ for different content")
	}
}

func TestFingerprint(t *testing.T) {
	if Fingerprint("a", "b") != Fingerprint("a", "b") {
		t.Error("Fingerprint() should be stable")
	}
	if Fingerprint("a", "b") == Fingerprint("ab") {
		t.Error("Fingerprint() should separate its parts")
	}
}
