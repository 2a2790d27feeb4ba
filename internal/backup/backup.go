// Package backup finds, restores and removes the .bak files written by fix
// runs.
package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"

	"github.com/panbanda/luafix/internal/discover"
	"github.com/panbanda/luafix/pkg/transform"
)

// Entry is a script with an existing backup.
type Entry struct {
	Resource string `json:"resource"`
	Script   string `json:"script"`
	Backup   string `json:"backup"`
	Size     int64  `json:"size"`
}

// Find returns the backups of the discovered scripts, ordered by resource
// and script path.
func Find(res *discover.Result) []Entry {
	var out []Entry
	for _, r := range res.Resources {
		for _, script := range r.Scripts {
			info, err := os.Stat(transform.BackupPath(script))
			if err != nil || info.IsDir() {
				continue
			}
			out = append(out, Entry{
				Resource: r.Name,
				Script:   script,
				Backup:   transform.BackupPath(script),
				Size:     info.Size(),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Resource != out[j].Resource {
			return out[i].Resource < out[j].Resource
		}
		return out[i].Script < out[j].Script
	})
	return out
}

// ByResource groups entries by resource name.
func ByResource(entries []Entry) map[string][]Entry {
	out := make(map[string][]Entry)
	for _, e := range entries {
		out[e.Resource] = append(out[e.Resource], e)
	}
	return out
}

// Outcome counts the entries an operation handled.
type Outcome struct {
	Done   int
	Failed map[string]error
}

// Err joins the per-file failures, or returns nil.
func (o Outcome) Err() error {
	if len(o.Failed) == 0 {
		return nil
	}
	paths := make([]string, 0, len(o.Failed))
	for p := range o.Failed {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	errs := make([]error, len(paths))
	for i, p := range paths {
		errs[i] = o.Failed[p]
	}
	return errors.Join(errs...)
}

// Manager runs backup operations.
type Manager struct {
	logger *slog.Logger
}

// New creates a manager. A nil logger discards log output.
func New(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{logger: logger}
}

// Revert copies every backup over its script and removes the backup.
func (m *Manager) Revert(entries []Entry) Outcome {
	return m.each(entries, "restored", func(e Entry) error {
		return transform.Restore(e.Script)
	})
}

// Clean deletes every backup, keeping the current scripts.
func (m *Manager) Clean(entries []Entry) Outcome {
	return m.each(entries, "deleted", func(e Entry) error {
		err := os.Remove(e.Backup)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("remove backup %s: %w", e.Backup, err)
		}
		return nil
	})
}

func (m *Manager) each(entries []Entry, verb string, fn func(Entry) error) Outcome {
	out := Outcome{Failed: make(map[string]error)}
	for _, e := range entries {
		if err := fn(e); err != nil {
			m.logger.Warn("backup operation failed", "script", e.Script, "error", err)
			out.Failed[e.Script] = err
			continue
		}
		m.logger.Debug("backup "+verb, "script", e.Script)
		out.Done++
	}
	return out
}
