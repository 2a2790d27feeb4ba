package program

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/panbanda/luafix/pkg/analyzer/catalog"
	"github.com/panbanda/luafix/pkg/models"
	"github.com/panbanda/luafix/pkg/parser"
	"github.com/panbanda/luafix/pkg/source"
)

// Analyzer collects facts from many files in parallel.
type Analyzer struct {
	workers int
	catalog *catalog.Catalog
	source  source.ContentSource
	logger  *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithWorkers sets the number of files parsed concurrently.
func WithWorkers(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithCatalog sets the catalog providing the registration functions.
func WithCatalog(c *catalog.Catalog) Option {
	return func(a *Analyzer) {
		if c != nil {
			a.catalog = c
		}
	}
}

// WithSource sets where file contents are read from.
func WithSource(s source.ContentSource) Option {
	return func(a *Analyzer) {
		if s != nil {
			a.source = s
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates a whole-program analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		workers: min(runtime.NumCPU(), 8),
		catalog: catalog.Default(),
		source:  source.NewFilesystem(),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FileError is a file that could not be read or parsed.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

func (e FileError) Unwrap() error { return e.Err }

// Result is the outcome of a whole-program run.
type Result struct {
	Index    *Index
	Findings []models.Finding
	// Errors lists the files left out of the index, sorted by path.
	Errors []FileError
}

// Analyze collects the facts of files and reports unused globals. Files that
// fail to parse are left out; a global only they use may then be reported.
func (a *Analyzer) Analyze(ctx context.Context, files []string) (*Result, error) {
	ix := NewIndex()
	res := &Result{Index: ix}
	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(a.workers).WithContext(ctx)
	for _, path := range files {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			facts, err := a.collectFile(ctx, path)
			if err != nil {
				a.logger.Debug("whole-program parse failed", "path", path, "error", err)
				mu.Lock()
				res.Errors = append(res.Errors, FileError{Path: path, Err: err})
				mu.Unlock()
				return nil
			}
			ix.Add(facts)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("whole-program analysis: %w", err)
	}

	sort.Slice(res.Errors, func(i, j int) bool { return res.Errors[i].Path < res.Errors[j].Path })
	res.Findings = ix.Findings()
	a.logger.Debug("whole-program analysis complete",
		"files", ix.Files(), "errors", len(res.Errors), "unused", len(res.Findings))
	return res, nil
}

func (a *Analyzer) collectFile(ctx context.Context, path string) (Facts, error) {
	src, err := a.source.Read(path)
	if err != nil {
		return Facts{}, err
	}
	psr := parser.New()
	defer psr.Close()
	parsed, err := psr.Parse(ctx, src, path)
	if err != nil {
		return Facts{}, err
	}
	defer parsed.Close()
	return Collect(path, parsed.Chunk, source.NewLines(src), a.catalog.RegistrationFuncs), nil
}
