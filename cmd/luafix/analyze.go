package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/luafix/internal/discover"
	"github.com/panbanda/luafix/internal/metrics"
	"github.com/panbanda/luafix/internal/output"
	"github.com/panbanda/luafix/internal/progress"
	"github.com/panbanda/luafix/internal/report"
	"github.com/panbanda/luafix/internal/service/analysis"
	"github.com/panbanda/luafix/pkg/config"
	"github.com/panbanda/luafix/pkg/models"
	"github.com/panbanda/luafix/pkg/transform"
)

// scanFlags are shared by analyze and fix.
func scanFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "direct",
			Usage: "Scan the path as plain Lua files instead of FiveM resources",
		},
		&cli.IntFlag{
			Name:    "workers",
			Aliases: []string{"j"},
			Usage:   "Files processed in parallel (default min(NumCPU, 8))",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Per-file analysis timeout (default 10s)",
		},
		&cli.StringSliceFlag{
			Name:  "exclude",
			Usage: "Resource names to skip",
		},
		&cli.StringFlag{
			Name:  "exclude-file",
			Usage: "File listing resource names to skip, one per line",
		},
		&cli.StringSliceFlag{
			Name:  "exclude-pattern",
			Usage: "Gitignore-style patterns to skip",
		},
		&cli.BoolFlag{
			Name:  "whole-program",
			Usage: "Also report global functions and variables no scanned file uses",
		},
		&cli.BoolFlag{
			Name:  "experimental",
			Usage: "Enable experimental detectors",
		},
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write a report to file; .txt, .json or .html selects the format",
		},
		&cli.StringFlag{
			Name:  "metrics-file",
			Usage: "Write Prometheus metrics in textfile format",
		},
		&cli.StringSliceFlag{
			Name:  "only",
			Usage: "List only findings of these tiers: green, yellow, red, debug",
		},
	}
}

func analyzeCmd() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Aliases:   []string{"a"},
		Usage:     "Report performance findings without changing files",
		ArgsUsage: "[path...]",
		Flags:     scanFlags(),
		Action: func(c *cli.Context) error {
			return runScan(c, false)
		},
	}
}

func fixCmd() *cli.Command {
	flags := append(scanFlags(),
		&cli.BoolFlag{
			Name:  "safe",
			Value: true,
			Usage: "Apply GREEN fixes",
		},
		&cli.BoolFlag{
			Name:  "review",
			Usage: "Also apply YELLOW fixes that need review",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Comment out debug statements",
		},
		&cli.BoolFlag{
			Name:  "nil-guards",
			Usage: "Add nil checks after natives that may return nil",
		},
		&cli.BoolFlag{
			Name:  "dead-code",
			Usage: "Remove unreachable code",
		},
		&cli.BoolFlag{
			Name:  "experimental-fixes",
			Usage: "Rewrite string concatenation in loops",
		},
		&cli.BoolFlag{
			Name:  "no-backup",
			Usage: "Do not keep a .bak copy of changed files",
		},
		&cli.BoolFlag{
			Name:    "dry-run",
			Aliases: []string{"diff"},
			Usage:   "Print unified diffs instead of writing files",
		},
	)
	return &cli.Command{
		Name:      "fix",
		Usage:     "Apply automatic fixes",
		ArgsUsage: "[path...]",
		Flags:     flags,
		Action: func(c *cli.Context) error {
			return runScan(c, true)
		},
	}
}

// applyScanFlags folds command flags into cfg.
func applyScanFlags(c *cli.Context, cfg *config.Config) error {
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("timeout") {
		cfg.Analysis.Timeout = int(c.Duration("timeout").Round(time.Second) / time.Second)
	}
	if c.IsSet("experimental") {
		cfg.Analysis.Experimental = c.Bool("experimental")
	}
	cfg.Exclude.Resources = append(cfg.Exclude.Resources, c.StringSlice("exclude")...)
	cfg.Exclude.Patterns = append(cfg.Exclude.Patterns, c.StringSlice("exclude-pattern")...)
	if path := c.String("exclude-file"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open exclude file: %w", err)
		}
		defer f.Close()
		names, err := discover.ReadExcludeFile(f)
		if err != nil {
			return err
		}
		cfg.Exclude.Resources = append(cfg.Exclude.Resources, names...)
	}
	return nil
}

// transformOptions combines the fix section of cfg with the fix flags.
func transformOptions(c *cli.Context, svc *analysis.Service) transform.Options {
	opts := svc.TransformOptions()
	set := func(name string, dst *bool) {
		if c.IsSet(name) {
			*dst = c.Bool(name)
		}
	}
	set("safe", &opts.Safe)
	set("review", &opts.Review)
	set("debug", &opts.Debug)
	set("nil-guards", &opts.NilGuards)
	set("dead-code", &opts.DeadCode)
	set("experimental-fixes", &opts.Experimental)
	if c.Bool("no-backup") {
		opts.Backup = false
	}
	opts.DryRun = c.Bool("dry-run")
	return opts
}

func parseSeverities(values []string) ([]models.Severity, error) {
	var out []models.Severity
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			sev := models.Severity(strings.ToUpper(strings.TrimSpace(part)))
			if !slices.Contains(models.Severities, sev) {
				return nil, fmt.Errorf("unknown tier %q", part)
			}
			out = append(out, sev)
		}
	}
	return out, nil
}

func runScan(c *cli.Context, fix bool) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := applyScanFlags(c, cfg); err != nil {
		return err
	}
	only, err := parseSeverities(c.StringSlice("only"))
	if err != nil {
		return err
	}
	logger := newLogger(c, cfg)

	var recorder *metrics.Recorder
	var extra []analysis.Option
	if c.String("metrics-file") != "" {
		recorder = metrics.New()
		extra = append(extra, analysis.WithMetrics(recorder))
	}
	svc := newService(cfg, logger, extra...)

	runOpts := analysis.RunOptions{Fix: fix, WholeProgram: c.Bool("whole-program")}
	if fix {
		runOpts.Transform = transformOptions(c, svc)
		if !runOpts.Transform.Any() {
			color.Yellow("No fix categories selected")
			return nil
		}
	}

	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	var (
		files    []models.FileResult
		program  []models.Finding
		stats    = models.NewRunStats()
		roots    []string
		start    = time.Now()
		skipped  int
		failures int
	)
	paths := getPaths(c)
	for _, path := range paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("invalid path %s: %w", path, err)
		}
		res, err := svc.Discover(absPath, c.Bool("direct"))
		if err != nil {
			return err
		}
		if len(res.Excluded) > 0 {
			logger.Info("resources excluded", "names", res.Excluded)
		}
		if len(res.Files()) == 0 {
			color.Yellow("No Lua scripts found in %s", path)
			continue
		}
		roots = append(roots, path)
		prefix := path
		if info, err := os.Stat(absPath); err == nil && !info.IsDir() {
			prefix = filepath.Dir(path)
		}

		label := "Analyzing scripts..."
		if fix {
			label = "Fixing scripts..."
		}
		tracker := progress.NewTracker(label, len(res.Files()), progressOptions(c))
		runOpts.OnProgress = tracker.TickFile
		run, err := svc.Run(c.Context, res, runOpts)
		if err != nil {
			tracker.FinishError(err)
			return err
		}
		tracker.FinishSuccess()
		if run.Pool.Crashed {
			color.Yellow("Worker pool crashed; remaining files were processed sequentially")
		}
		if run.ProgramErrors > 0 {
			logger.Warn("files left out of whole-program analysis", "count", run.ProgramErrors)
		}

		for _, f := range run.Files {
			if len(paths) > 1 {
				f.Path = filepath.ToSlash(filepath.Join(prefix, f.Path))
				for i := range f.Findings {
					f.Findings[i].File = f.Path
				}
			}
			if f.Status == models.StatusSkipped {
				skipped++
			}
			if f.Status == models.StatusError {
				failures++
			}
			files = append(files, f)
			stats.Add(f)
		}
		program = append(program, run.Program...)
	}
	stats.Duration = time.Since(start)

	if len(roots) == 0 {
		return nil
	}

	view := &output.AnalysisView{
		Root:      strings.Join(roots, ", "),
		Files:     files,
		Program:   program,
		Stats:     stats,
		ShowDiffs: runOpts.Transform.DryRun,
		Only:      only,
	}
	if err := formatter.Output(view); err != nil {
		return err
	}

	if path := c.String("report"); path != "" {
		rep := report.Build(view.Root, files, program)
		if err := report.Save(rep, path); err != nil {
			return err
		}
		color.Green("Report written to %s", path)
	}
	if path := c.String("metrics-file"); path != "" {
		if err := recorder.WriteTextfile(path); err != nil {
			return err
		}
	}

	if !formatter.Format().Structured() && c.String("output") == "" {
		printTips(c, fix, runOpts.Transform, stats, skipped)
	}
	if failures > 0 {
		return fmt.Errorf("%d files failed to process", failures)
	}
	return nil
}

// printTips suggests the next command, on stderr.
func printTips(c *cli.Context, fix bool, opts transform.Options, stats models.RunStats, skipped int) {
	w := c.App.ErrWriter
	if w == nil {
		w = os.Stderr
	}
	tip := func(format string, args ...any) {
		fmt.Fprintf(w, "Tip: "+format+"\n", args...)
	}

	if fix && skipped > 0 && !opts.DryRun {
		tip("%d files were skipped; run \"luafix backups revert\" to re-process fixed files or \"luafix backups clean\" to drop old backups", skipped)
	}
	if stats.BySeverity[models.SeverityGreen] > 0 && !(fix && opts.Safe) {
		tip("run \"luafix fix\" to apply GREEN fixes")
	}
	if stats.BySeverity[models.SeverityYellow] > 0 && !(fix && opts.Review) {
		tip("run \"luafix fix --review\" to also apply YELLOW fixes")
	}
	if stats.BySeverity[models.SeverityDebug] > 0 && !(fix && opts.Debug) {
		tip("run \"luafix fix --debug\" to comment out DEBUG statements")
	}
	if fix && !opts.DryRun && stats.FilesModified > 0 {
		tip("run \"luafix backups revert\" to undo changes using .bak files")
	}
}
