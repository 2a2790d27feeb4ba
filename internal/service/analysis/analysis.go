// Package analysis orchestrates analyze and fix runs: discovery, the worker
// pool, the findings cache, whole-program analysis and run metrics.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/panbanda/luafix/internal/cache"
	"github.com/panbanda/luafix/internal/discover"
	"github.com/panbanda/luafix/internal/fileproc"
	"github.com/panbanda/luafix/internal/metrics"
	"github.com/panbanda/luafix/internal/output"
	"github.com/panbanda/luafix/pkg/analyzer"
	"github.com/panbanda/luafix/pkg/analyzer/catalog"
	"github.com/panbanda/luafix/pkg/analyzer/program"
	"github.com/panbanda/luafix/pkg/config"
	"github.com/panbanda/luafix/pkg/models"
	"github.com/panbanda/luafix/pkg/parser"
	"github.com/panbanda/luafix/pkg/source"
	"github.com/panbanda/luafix/pkg/transform"
)

// ErrAlreadyFixed marks a file skipped by fix because a backup exists.
var ErrAlreadyFixed = errors.New("backup exists, file was already fixed")

// Service orchestrates analysis operations.
type Service struct {
	config      *config.Config
	logger      *slog.Logger
	cache       *cache.Cache
	metrics     *metrics.Recorder
	catalog     *catalog.Catalog
	analyzer    *analyzer.Analyzer
	transformer *transform.Transformer
}

// Option configures a Service.
type Option func(*Service)

// WithConfig sets the configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.config = cfg
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCache enables the findings cache for analyze runs.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithMetrics records run metrics into r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Service) {
		s.metrics = r
	}
}

// New creates a new analysis service.
func New(opts ...Option) *Service {
	s := &Service{
		config: config.DefaultConfig(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}

	cfg := s.config
	s.catalog = catalog.Default().Extend(catalog.Extension{
		HotCallbacks:     cfg.Catalog.ExtraHotCallbacks,
		DebugFunctions:   cfg.Catalog.ExtraDebugFunctions,
		NilReturning:     cfg.Catalog.ExtraNilReturning,
		CacheableMethods: cfg.Catalog.CacheableMethods,
	})
	s.analyzer = analyzer.New(
		analyzer.WithCatalog(s.catalog),
		analyzer.WithCacheThreshold(cfg.Analysis.CacheThreshold),
		analyzer.WithExperimental(cfg.Analysis.Experimental),
		analyzer.WithMaxFileSize(cfg.Analysis.MaxFileSize),
		analyzer.WithLogger(s.logger),
	)
	s.transformer = transform.New(s.analyzer, transform.WithLogger(s.logger))
	return s
}

// Config returns the configuration in use.
func (s *Service) Config() *config.Config { return s.config }

// Logger returns the service logger.
func (s *Service) Logger() *slog.Logger { return s.logger }

// Analyzer returns the configured pattern analyzer.
func (s *Service) Analyzer() *analyzer.Analyzer { return s.analyzer }

// Transformer returns the configured transformer.
func (s *Service) Transformer() *transform.Transformer { return s.transformer }

// TransformOptions converts the fix section of the config.
func (s *Service) TransformOptions() transform.Options {
	f := s.config.Fix
	return transform.Options{
		Safe:         f.Safe,
		Review:       f.Review,
		Debug:        f.Debug,
		NilGuards:    f.NilGuards,
		DeadCode:     f.DeadCode,
		Experimental: f.Experimental,
		Backup:       f.Backup,
	}
}

// Discover finds the scripts under path using the exclude settings.
func (s *Service) Discover(path string, direct bool) (*discover.Result, error) {
	ex := s.config.Exclude
	return discover.Discover(path, direct, discover.Options{
		ExcludeResources: ex.Resources,
		ExcludePatterns:  ex.Patterns,
		ExcludeDirs:      ex.Dirs,
		Gitignore:        ex.Gitignore,
		IgnoreFile:       ex.IgnoreFile,
		Logger:           s.logger,
	})
}

// RunOptions configures Run.
type RunOptions struct {
	// Fix applies Transform to every file; otherwise files are only
	// analyzed.
	Fix       bool
	Transform transform.Options
	// WholeProgram adds the cross-file unused-global pass.
	WholeProgram bool
	OnProgress   fileproc.ProgressFunc
}

// Run is the outcome of analyzing or fixing a discovered tree.
type Run struct {
	Root    string              `json:"root"`
	Files   []models.FileResult `json:"files"`
	Program []models.Finding    `json:"program,omitempty"`
	// ProgramErrors counts files left out of whole-program analysis.
	ProgramErrors int             `json:"program_errors,omitempty"`
	Stats         models.RunStats `json:"stats"`
	Pool          fileproc.Stats  `json:"-"`
	Elapsed       time.Duration   `json:"elapsed_ns"`
}

// Errors collects the per-file failures of the run, or nil.
func (r *Run) Errors() *fileproc.ProcessingErrors {
	errs := &fileproc.ProcessingErrors{}
	for _, f := range r.Files {
		if f.Status != models.StatusOK && f.Error != "" {
			errs.Add(f.Path, errors.New(f.Error))
		}
	}
	if !errs.HasErrors() {
		return nil
	}
	return errs
}

// Run processes every discovered script. Per-file failures are recorded in
// the file results and never abort the run.
func (s *Service) Run(ctx context.Context, res *discover.Result, opts RunOptions) (*Run, error) {
	start := time.Now()
	files := res.Files()
	resources := res.ResourceOf()
	base := displayBase(res.Root)

	outcomes, poolStats := fileproc.Run(ctx, files, fileproc.Options{
		Workers:    s.config.WorkerCount(),
		Timeout:    s.config.Analysis.TimeoutDuration(),
		OnProgress: opts.OnProgress,
		Logger:     s.logger,
	}, func(ctx context.Context, path string) (models.FileResult, error) {
		if opts.Fix {
			return s.FixFile(ctx, path, opts.Transform)
		}
		return s.AnalyzeFile(ctx, path)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	run := &Run{Root: res.Root, Stats: models.NewRunStats(), Pool: poolStats}
	for _, o := range outcomes {
		fr := o.Value
		if o.Err != nil {
			fr = models.FileResult{Status: statusOf(o.Err), Error: o.Err.Error()}
		}
		fr.Path = display(base, o.Path)
		fr.Resource = resources[o.Path]
		for i := range fr.Findings {
			fr.Findings[i].File = fr.Path
		}
		run.Files = append(run.Files, fr)
		run.Stats.Add(fr)
		if s.metrics != nil {
			s.metrics.ObserveFile(fr)
		}
	}

	if s.metrics != nil {
		s.metrics.ObservePool(poolStats.Crashed)
	}

	if opts.WholeProgram && len(files) > 0 {
		prog, err := program.New(
			program.WithWorkers(s.config.WorkerCount()),
			program.WithCatalog(s.catalog),
			program.WithLogger(s.logger),
		).Analyze(ctx, files)
		if err != nil {
			return nil, err
		}
		for _, f := range prog.Findings {
			f.File = display(base, f.File)
			run.Program = append(run.Program, f)
		}
		run.ProgramErrors = len(prog.Errors)
		if s.metrics != nil {
			s.metrics.ObserveProgram(run.Program)
		}
	}

	run.Elapsed = time.Since(start)
	if s.metrics != nil {
		s.metrics.Finish(run.Elapsed, time.Now())
	}
	s.logger.Debug("run complete",
		"files", len(files), "findings", run.Stats.TotalFindings,
		"crashed", poolStats.Crashed, "elapsed", run.Elapsed)
	return run, nil
}

// fingerprint identifies the settings that change analysis output.
func (s *Service) fingerprint() string {
	cfg := s.config
	return cache.Fingerprint(
		"findings/v1",
		strconv.Itoa(cfg.Analysis.CacheThreshold),
		strconv.FormatBool(cfg.Analysis.Experimental),
		strings.Join(cfg.Catalog.ExtraHotCallbacks, ","),
		strings.Join(cfg.Catalog.ExtraDebugFunctions, ","),
		fmt.Sprint(cfg.Catalog.ExtraNilReturning),
		strings.Join(cfg.Catalog.CacheableMethods, ","),
	)
}

func (s *Service) readSource(path string) ([]byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if limit := s.config.Analysis.MaxFileSize; limit > 0 && int64(len(src)) > limit {
		return nil, fmt.Errorf("%s: %d bytes: %w", path, len(src), analyzer.ErrTooLarge)
	}
	return src, nil
}

// AnalyzeFile analyzes one file, serving the findings from the cache when
// the content and settings are unchanged.
func (s *Service) AnalyzeFile(ctx context.Context, path string) (models.FileResult, error) {
	start := time.Now()
	src, err := s.readSource(path)
	if err != nil {
		return models.FileResult{}, err
	}
	fr := models.FileResult{Path: path, Status: models.StatusOK, Lines: source.NewLines(src).Count()}

	fp := s.fingerprint()
	if s.cache != nil {
		if findings, ok := s.cache.GetFindings(path, fp, src); ok {
			fr.Findings = findings
			fr.Cached = true
			fr.Duration = time.Since(start)
			return fr, nil
		}
	}

	res, err := s.analyzer.AnalyzeSource(ctx, path, src)
	if err != nil {
		return models.FileResult{}, err
	}
	fr.Findings = res.Findings
	fr.Duration = time.Since(start)
	if s.cache != nil {
		if err := s.cache.SetFindings(path, fp, src, res.Findings); err != nil {
			s.logger.Debug("cache write failed", "path", path, "error", err)
		}
	}
	return fr, nil
}

// FixFile transforms one file. A file that already has a backup is skipped
// unless opts.DryRun is set, so fixes are never applied twice.
func (s *Service) FixFile(ctx context.Context, path string, opts transform.Options) (models.FileResult, error) {
	start := time.Now()
	if !opts.DryRun && transform.HasBackup(path) {
		return models.FileResult{}, fmt.Errorf("%s: %w", path, ErrAlreadyFixed)
	}
	if _, err := s.readSource(path); err != nil {
		return models.FileResult{}, err
	}
	res, err := s.transformer.Transform(ctx, path, opts)
	if err != nil {
		return models.FileResult{}, err
	}
	fr := models.FileResult{
		Path:     path,
		Status:   models.StatusOK,
		Findings: res.Findings,
		Lines:    source.NewLines(res.Original).Count(),
		Modified: res.Modified,
		Edits:    res.EditCount(),
		Duration: time.Since(start),
	}
	if opts.DryRun && res.Modified {
		fr.Diff = output.UnifiedDiff(filepath.ToSlash(path), res.Original, res.Output)
	}
	return fr, nil
}

// statusOf classifies a per-file error.
func statusOf(err error) models.FileStatus {
	switch {
	case errors.Is(err, parser.ErrParse):
		return models.StatusParseError
	case errors.Is(err, analyzer.ErrTimeout):
		return models.StatusTimeout
	case errors.Is(err, analyzer.ErrTooLarge), errors.Is(err, ErrAlreadyFixed):
		return models.StatusSkipped
	}
	return models.StatusError
}

// displayBase is the directory result paths are shown relative to.
func displayBase(root string) string {
	if info, err := os.Stat(root); err == nil && !info.IsDir() {
		return filepath.Dir(root)
	}
	return root
}

func display(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// AnalyzeSource analyzes in-memory source; name labels the findings.
func (s *Service) AnalyzeSource(ctx context.Context, name string, src []byte) (models.FileResult, error) {
	start := time.Now()
	res, err := s.analyzer.AnalyzeSource(ctx, name, src)
	if err != nil {
		return models.FileResult{}, err
	}
	return models.FileResult{
		Path:     name,
		Status:   models.StatusOK,
		Findings: res.Findings,
		Lines:    res.Lines.Count(),
		Duration: time.Since(start),
	}, nil
}

// FixSource computes the fixed text of in-memory source without touching
// the filesystem. The result carries the new text and its diff.
func (s *Service) FixSource(ctx context.Context, name string, src []byte, opts transform.Options) (*transform.Result, string, error) {
	res, err := s.transformer.TransformSource(ctx, name, src, opts)
	if err != nil {
		return nil, "", err
	}
	return res, output.UnifiedDiff(name, res.Original, res.Output), nil
}
