// Package cache keeps per-script findings on disk so unchanged scripts are
// not re-analyzed. An entry is addressed by script path and settings
// fingerprint and is only served while the script content hash matches.
package cache

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"

	"github.com/panbanda/luafix/pkg/models"
)

const entryExt = ".json"

// Cache is a findings store rooted at a directory. The zero value and any
// cache created disabled never store or return anything.
type Cache struct {
	dir     string
	ttl     time.Duration
	enabled bool
	now     func() time.Time
}

// entry is the on-disk record for one script under one fingerprint.
type entry struct {
	Path        string           `json:"path"`
	Fingerprint string           `json:"fingerprint"`
	Content     string           `json:"content"`
	Stored      time.Time        `json:"stored"`
	Findings    []models.Finding `json:"findings"`
}

// New opens the cache under dir, creating it when enabled. With ttlHours of
// 0 or less entries live until their script changes.
func New(dir string, ttlHours int, enabled bool) (*Cache, error) {
	if !enabled {
		return &Cache{}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{
		dir:     dir,
		ttl:     time.Duration(ttlHours) * time.Hour,
		enabled: true,
		now:     time.Now,
	}, nil
}

// Enabled reports whether the cache stores anything.
func (c *Cache) Enabled() bool {
	return c != nil && c.enabled
}

// ContentHash returns the hex BLAKE3 digest of a script.
func ContentHash(src []byte) string {
	sum := blake3.Sum256(src)
	return hex.EncodeToString(sum[:])
}

// Fingerprint condenses the analyzer settings that influence findings into a
// short key component.
func Fingerprint(settings ...string) string {
	return strconv.FormatUint(xxhash.Sum64String(strings.Join(settings, "\x00")), 16)
}

// entryPath shards entries by the first byte of the key digest.
func (c *Cache) entryPath(path, fingerprint string) string {
	sum := blake3.Sum256([]byte(path + "\x00" + fingerprint))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(c.dir, name[:2], name[2:]+entryExt)
}

func (c *Cache) stale(e *entry) bool {
	return c.ttl > 0 && c.now().Sub(e.Stored) > c.ttl
}

func readEntry(file string) (*entry, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// GetFindings returns the findings stored for path under fingerprint when
// src still hashes to the stored content. Expired entries are removed.
func (c *Cache) GetFindings(path, fingerprint string, src []byte) ([]models.Finding, bool) {
	if !c.Enabled() {
		return nil, false
	}
	file := c.entryPath(path, fingerprint)
	e, err := readEntry(file)
	if err != nil {
		return nil, false
	}
	if c.stale(e) {
		os.Remove(file)
		return nil, false
	}
	if e.Path != path || e.Fingerprint != fingerprint || e.Content != ContentHash(src) {
		return nil, false
	}
	return e.Findings, true
}

// SetFindings stores the findings for path and src under fingerprint,
// replacing any previous entry atomically.
func (c *Cache) SetFindings(path, fingerprint string, src []byte, findings []models.Finding) error {
	if !c.Enabled() {
		return nil
	}
	data, err := json.Marshal(&entry{
		Path:        path,
		Fingerprint: fingerprint,
		Content:     ContentHash(src),
		Stored:      c.now(),
		Findings:    findings,
	})
	if err != nil {
		return fmt.Errorf("encode findings for %s: %w", path, err)
	}

	file := c.entryPath(path, fingerprint)
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(file), "entry-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), file)
}

// Prune deletes expired and unreadable entries and returns how many were
// removed.
func (c *Cache) Prune() (int, error) {
	if !c.Enabled() {
		return 0, nil
	}
	removed := 0
	err := filepath.WalkDir(c.dir, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || filepath.Ext(file) != entryExt {
			return nil
		}
		if e, err := readEntry(file); err == nil && !c.stale(e) {
			return nil
		}
		if err := os.Remove(file); err != nil {
			return err
		}
		removed++
		return nil
	})
	return removed, err
}
