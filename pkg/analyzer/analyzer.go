// Package analyzer detects FiveM Lua performance patterns, debug leftovers
// and nil-access risks.
//
// Analysis is a single depth-first walk over the syntax tree that drives a
// scope.Tracker and records call, assignment and concatenation facts. A set
// of independent detectors then turns those facts into findings. The dead
// code detector in the deadcode subpackage runs its own walks over the same
// tree and appends to the same list.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/panbanda/luafix/pkg/analyzer/catalog"
	"github.com/panbanda/luafix/pkg/analyzer/deadcode"
	"github.com/panbanda/luafix/pkg/luaast"
	"github.com/panbanda/luafix/pkg/models"
	"github.com/panbanda/luafix/pkg/parser"
	"github.com/panbanda/luafix/pkg/source"
)

// DefaultCacheThreshold is the minimum number of calls that makes caching
// worthwhile outside hot callbacks.
const DefaultCacheThreshold = 4

// DefaultMaxFileSize is the largest file analyzed by default (0 disables).
const DefaultMaxFileSize = 2 << 20

var (
	// ErrTimeout is returned when analysis of a file exceeds its deadline.
	ErrTimeout = errors.New("analysis timed out")
	// ErrTooLarge is returned for files above the configured size limit.
	ErrTooLarge = errors.New("file too large")
)

// Analyzer runs the pattern analysis. It holds configuration only and is
// safe for concurrent use; each call parses with its own parser.
type Analyzer struct {
	cacheThreshold int
	experimental   bool
	catalog        *catalog.Catalog
	maxFileSize    int64
	timeout        time.Duration
	logger         *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithCacheThreshold sets the minimum call count that triggers caching
// suggestions. Hot callbacks use one less.
func WithCacheThreshold(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.cacheThreshold = n
		}
	}
}

// WithExperimental enables branch-aware call counting.
func WithExperimental(on bool) Option {
	return func(a *Analyzer) {
		a.experimental = on
	}
}

// WithCatalog replaces the built-in catalog.
func WithCatalog(c *catalog.Catalog) Option {
	return func(a *Analyzer) {
		if c != nil {
			a.catalog = c
		}
	}
}

// WithMaxFileSize sets the maximum file size in bytes. Zero disables the
// limit.
func WithMaxFileSize(size int64) Option {
	return func(a *Analyzer) {
		a.maxFileSize = size
	}
}

// WithTimeout bounds the analysis of a single file. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(a *Analyzer) {
		a.timeout = d
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

// New creates an analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		cacheThreshold: DefaultCacheThreshold,
		catalog:        catalog.Default(),
		maxFileSize:    DefaultMaxFileSize,
		logger:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Catalog returns the catalog in use.
func (a *Analyzer) Catalog() *catalog.Catalog { return a.catalog }

// Experimental reports whether branch-aware counting is enabled.
func (a *Analyzer) Experimental() bool { return a.experimental }

// CacheThreshold returns the configured threshold.
func (a *Analyzer) CacheThreshold() int { return a.cacheThreshold }

// Close releases resources held by the analyzer.
func (a *Analyzer) Close() {}

// Result is the analysis of one file. Chunk and Lines stay valid for the
// lifetime of the result and are shared with the findings' back-references.
type Result struct {
	Path     string
	Source   []byte
	Chunk    *luaast.Chunk
	Lines    *source.Lines
	Findings []models.Finding
	// DeadLines counts the lines inside unreachable code.
	DeadLines uint64
}

// Analyze reads and analyzes the file at path.
func (a *Analyzer) Analyze(ctx context.Context, path string) (*Result, error) {
	if a.maxFileSize > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat file: %w", err)
		}
		if info.Size() > a.maxFileSize {
			return nil, fmt.Errorf("%s: %d bytes: %w", path, info.Size(), ErrTooLarge)
		}
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return a.AnalyzeSource(ctx, path, src)
}

// AnalyzeSource analyzes src as the contents of path. Parse failures wrap
// parser.ErrParse; an expired deadline wraps ErrTimeout.
func (a *Analyzer) AnalyzeSource(ctx context.Context, path string, src []byte) (*Result, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	p := parser.New()
	defer p.Close()

	parsed, err := p.Parse(ctx, src, path)
	if err != nil {
		if ctxErr := timeoutErr(ctx, path); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	// The luaast tree owns everything the findings reference.
	chunk := parsed.Chunk
	parsed.Close()

	if err := timeoutErr(ctx, path); err != nil {
		return nil, err
	}

	lines := source.NewLines(src)
	fc := newFileContext(a, path, src, lines)
	fc.visit(chunk)

	findings := fc.detect()
	if err := timeoutErr(ctx, path); err != nil {
		return nil, err
	}

	dead := deadcode.New(a.catalog).Detect(chunk, lines)
	findings = append(findings, dead.Findings...)
	for i := range findings {
		findings[i].File = path
	}

	a.logger.Debug("analyzed file",
		slog.String("path", path),
		slog.Int("findings", len(findings)),
		slog.Duration("elapsed", time.Since(start)))

	return &Result{
		Path:      path,
		Source:    src,
		Chunk:     chunk,
		Lines:     lines,
		Findings:  findings,
		DeadLines: dead.DeadLines.GetCardinality(),
	}, nil
}

func timeoutErr(ctx context.Context, path string) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", path, ErrTimeout)
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return nil
}
