package program

import (
	"fmt"
	"sort"
	"sync"

	"github.com/panbanda/luafix/pkg/models"
)

// Index merges the facts of many files. It is safe for concurrent use.
type Index struct {
	mu          sync.Mutex
	definitions map[string][]Definition
	used        map[string]bool
	registered  map[string]bool
	exported    map[string]bool
	files       int
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		definitions: make(map[string][]Definition),
		used:        make(map[string]bool),
		registered:  make(map[string]bool),
		exported:    make(map[string]bool),
	}
}

// Add merges the facts of one file.
func (ix *Index) Add(f Facts) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.files++
	for _, d := range f.Definitions {
		ix.definitions[d.Name] = append(ix.definitions[d.Name], d)
	}
	for _, name := range f.Uses {
		ix.used[name] = true
	}
	for _, name := range f.Registered {
		ix.registered[name] = true
	}
	for _, name := range f.Exported {
		ix.exported[name] = true
	}
}

// Files returns the number of files merged.
func (ix *Index) Files() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.files
}

// Definitions returns every definition of name.
func (ix *Index) Definitions(name string) []Definition {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return append([]Definition(nil), ix.definitions[name]...)
}

// IsUsed reports whether name is read, called, registered or exported by
// any merged file.
func (ix *Index) IsUsed(name string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.isUsed(name)
}

func (ix *Index) isUsed(name string) bool {
	return ix.used[name] || ix.registered[name] || ix.exported[name]
}

// Unused returns the global definitions whose names are never used, sorted
// by file and line.
func (ix *Index) Unused() []Definition {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	var out []Definition
	for name, defs := range ix.definitions {
		if ix.isUsed(name) {
			continue
		}
		for _, d := range defs {
			if d.Kind.Global() {
				out = append(out, d)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Findings converts the unused global definitions to informational
// findings.
func (ix *Index) Findings() []models.Finding {
	unused := ix.Unused()
	out := make([]models.Finding, 0, len(unused))
	for _, d := range unused {
		pattern := models.PatternUnusedGlobalVar
		what := "Global variable"
		if d.Kind == KindGlobalFunction {
			pattern = models.PatternUnusedGlobalFunc
			what = "Global function"
		}
		out = append(out, models.Finding{
			Pattern:    pattern,
			Severity:   models.SeverityRed,
			Line:       d.Line,
			File:       d.File,
			Message:    fmt.Sprintf("%s '%s' is never used in any scanned file", what, d.Name),
			SourceLine: d.SourceLine,
			Details: map[string]any{
				"name":        d.Name,
				"symbol_type": string(d.Kind),
				"definitions": len(ix.Definitions(d.Name)),
			},
		})
	}
	return out
}
