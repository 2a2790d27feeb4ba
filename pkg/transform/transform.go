// Package transform turns analyzer findings into byte-exact source edits and
// applies them.
//
// Every edit refers to offsets in the original source. Generators validate
// the text they touch and produce no edits when a rewrite could change the
// meaning of the program; conflicts between the remaining edits are settled
// by Resolve.
package transform

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/panbanda/luafix/pkg/analyzer"
	"github.com/panbanda/luafix/pkg/models"
)

// Options selects which findings are fixed.
type Options struct {
	// Safe fixes GREEN findings.
	Safe bool `json:"safe" koanf:"safe"`
	// Review fixes YELLOW findings that have a fixer.
	Review bool `json:"review" koanf:"review"`
	// Debug comments out debug statements.
	Debug bool `json:"debug" koanf:"debug"`
	// NilGuards wraps unguarded nil accesses that are marked safe to fix.
	NilGuards bool `json:"nil_guards" koanf:"nil_guards"`
	// DeadCode removes unreachable code that is marked safe to remove.
	DeadCode bool `json:"dead_code" koanf:"dead_code"`
	// Experimental enables the loop accumulator rewrite.
	Experimental bool `json:"experimental" koanf:"experimental"`
	// Backup copies the original file to a .bak sibling before writing.
	Backup bool `json:"backup" koanf:"backup"`
	// DryRun computes the new text without writing anything.
	DryRun bool `json:"dry_run" koanf:"-"`
}

// DefaultOptions fixes the safe tier and keeps backups.
func DefaultOptions() Options {
	return Options{Safe: true, Backup: true}
}

// Selects reports whether f is fixed under o.
func (o Options) Selects(f models.Finding) bool {
	switch {
	case f.Pattern == models.PatternConcatInLoop:
		return o.Review || o.Experimental
	case models.IsDeadCode(f.Pattern):
		return o.DeadCode && f.DetailBool("is_safe_to_remove")
	case f.Pattern == models.PatternNilAccess:
		return o.NilGuards && f.DetailBool("is_safe_to_fix")
	case models.IsUnusedLocal(f.Pattern),
		f.Pattern == models.PatternGlobalWrite,
		f.Pattern == models.PatternDistanceNative:
		return false
	}
	switch f.Severity {
	case models.SeverityGreen:
		return o.Safe
	case models.SeverityYellow:
		return o.Review
	case models.SeverityDebug:
		return o.Debug
	}
	return false
}

// Any reports whether o selects at least one category.
func (o Options) Any() bool {
	return o.Safe || o.Review || o.Debug || o.NilGuards || o.DeadCode || o.Experimental
}

// Result is the outcome of transforming one file.
type Result struct {
	Path     string
	Modified bool
	// Original is the source as read; Output is the transformed text, equal
	// to Original when nothing changed.
	Original []byte
	Output   []byte
	// Edits are the edits that were applied.
	Edits    []Edit
	Findings []models.Finding
	// BackupPath is set when a backup was written by this run.
	BackupPath string
}

// EditCount returns the number of applied edits.
func (r *Result) EditCount() int {
	if r == nil {
		return 0
	}
	return len(r.Edits)
}

// Transformer analyzes files and applies fixes.
// It holds no per-file state and is safe for concurrent use.
type Transformer struct {
	analyzer *analyzer.Analyzer
	logger   *slog.Logger
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithLogger sets the diagnostics logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transformer) {
		if l != nil {
			t.logger = l
		}
	}
}

// New creates a Transformer around a. A nil analyzer gets the defaults.
func New(a *analyzer.Analyzer, opts ...Option) *Transformer {
	if a == nil {
		a = analyzer.New()
	}
	t := &Transformer{
		analyzer: a,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Analyzer returns the analyzer findings come from.
func (t *Transformer) Analyzer() *analyzer.Analyzer { return t.analyzer }

// Transform analyzes path, applies the selected fixes and, unless
// opts.DryRun is set, writes the result back. The file is written once, after
// the whole new text has been computed.
func (t *Transformer) Transform(ctx context.Context, path string, opts Options) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	res, err := t.TransformSource(ctx, path, src, opts)
	if err != nil {
		return nil, err
	}
	if !res.Modified || opts.DryRun {
		return res, nil
	}

	if opts.Backup {
		written, err := WriteBackup(path, src, info.Mode().Perm())
		if err != nil {
			return nil, err
		}
		if written {
			res.BackupPath = BackupPath(path)
		}
	}
	if err := writeAtomic(path, res.Output, info.Mode().Perm()); err != nil {
		return nil, err
	}
	t.logger.Debug("file transformed", "path", path, "edits", len(res.Edits), "backup", res.BackupPath)
	return res, nil
}

// TransformSource computes the fixes for src without touching the
// filesystem.
func (t *Transformer) TransformSource(ctx context.Context, path string, src []byte, opts Options) (*Result, error) {
	analysis, err := t.analyzer.AnalyzeSource(ctx, path, src)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Path:     path,
		Original: src,
		Output:   src,
		Findings: analysis.Findings,
	}
	if !opts.Any() {
		return res, nil
	}

	edits := Plan(analysis, opts)
	if len(edits) == 0 {
		return res, nil
	}
	out, applied := Apply(src, edits)
	if bytes.Equal(out, src) {
		return res, nil
	}
	res.Output = out
	res.Edits = applied
	res.Modified = true
	t.logger.Debug("edits planned", "path", path, "generated", len(edits), "applied", len(applied))
	return res, nil
}

// Plan generates the edits for every finding of analysis selected by opts.
// A finding whose edits fail validation contributes nothing.
func Plan(analysis *analyzer.Result, opts Options) []Edit {
	p := &planner{
		src:   analysis.Source,
		lines: analysis.Lines,
		chunk: analysis.Chunk,
		opts:  opts,
	}
	var edits []Edit
	for _, f := range analysis.Findings {
		if !opts.Selects(f) || f.Refs == nil {
			continue
		}
		edits = append(edits, p.generate(f)...)
	}
	return edits
}

func (p *planner) generate(f models.Finding) []Edit {
	switch {
	case f.Pattern == models.PatternTableInsert:
		return p.tableInsert(f)
	case f.Pattern == models.PatternTableGetn, f.Pattern == models.PatternStringLen:
		return p.length(f)
	case f.Pattern == models.PatternMathPow:
		return p.mathPow(f)
	case f.Pattern == models.PatternDebugStatement:
		return p.commentOut(f)
	case f.Pattern == models.PatternUncachedGlobals:
		return p.cacheGlobals(f)
	case f.Pattern == models.PatternConcatInLoop:
		if !p.opts.Experimental {
			return nil
		}
		return p.concatBuffer(f)
	case f.Pattern == models.PatternNilAccess:
		return p.nilGuard(f)
	case models.IsDeadCode(f.Pattern):
		return p.removeDead(f)
	case models.IsRepeated(f.Pattern):
		return p.hoistRepeated(f)
	}
	return nil
}
