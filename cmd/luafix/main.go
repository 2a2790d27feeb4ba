package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/luafix/internal/cache"
	"github.com/panbanda/luafix/internal/output"
	"github.com/panbanda/luafix/internal/progress"
	"github.com/panbanda/luafix/internal/service/analysis"
	"github.com/panbanda/luafix/pkg/config"
)

var (
	version = "dev"
	commit  = "none"    //nolint:unused // set via ldflags at build time
	date    = "unknown" //nolint:unused // set via ldflags at build time
)

// getPaths returns paths from positional args, defaulting to ["."]
func getPaths(c *cli.Context) []string {
	if c.Args().Len() > 0 {
		return c.Args().Slice()
	}
	return []string{"."}
}

func newApp() *cli.App {
	return &cli.App{
		Name:     "luafix",
		Usage:    "Performance linter and fixer for FiveM Lua resources",
		Version:  version,
		Metadata: make(map[string]interface{}),
		Description: `luafix scans FiveM resources for Lua patterns that cost frame time,
such as uncached natives in thread loops, deprecated table helpers and
string building in loops, and rewrites the safe ones automatically.

Findings are grouped in four tiers: GREEN (safe fix), YELLOW (review),
RED (informational) and DEBUG (debug output).`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (TOML, YAML, or JSON)",
				EnvVars: []string{"LUAFIX_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json, markdown, toon, yaml",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write output to file",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Disable the findings cache",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Hide progress bars",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging on stderr",
			},
			&cli.StringFlag{
				Name:  "pprof",
				Usage: "Enable pprof profiling and write to specified prefix (creates <prefix>.cpu.pprof and <prefix>.mem.pprof)",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("no-color") {
				color.NoColor = true
			}
			if pprofPrefix := c.String("pprof"); pprofPrefix != "" {
				cpuFile, err := os.Create(pprofPrefix + ".cpu.pprof")
				if err != nil {
					return fmt.Errorf("failed to create CPU profile: %w", err)
				}
				if err := pprof.StartCPUProfile(cpuFile); err != nil {
					cpuFile.Close()
					return fmt.Errorf("failed to start CPU profile: %w", err)
				}
				c.App.Metadata["pprofCPU"] = cpuFile
			}
			return nil
		},
		After: func(c *cli.Context) error {
			if pprofPrefix := c.String("pprof"); pprofPrefix != "" {
				pprof.StopCPUProfile()
				if cpuFile, ok := c.App.Metadata["pprofCPU"].(*os.File); ok {
					cpuFile.Close()
					color.Green("CPU profile written to %s.cpu.pprof", pprofPrefix)
				}

				memFile, err := os.Create(pprofPrefix + ".mem.pprof")
				if err != nil {
					return fmt.Errorf("failed to create memory profile: %w", err)
				}
				defer memFile.Close()

				runtime.GC()
				if err := pprof.WriteHeapProfile(memFile); err != nil {
					return fmt.Errorf("failed to write memory profile: %w", err)
				}
				color.Green("Memory profile written to %s.mem.pprof", pprofPrefix)
			}
			return nil
		},
		Commands: []*cli.Command{
			analyzeCmd(),
			fixCmd(),
			backupsCmd(),
			patternsCmd(),
			watchCmd(),
			configCmd(),
			initCmd(),
			mcpCmd(),
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

// newLogger builds the diagnostic logger: debug level with --verbose,
// warnings otherwise.
func newLogger(c *cli.Context, cfg *config.Config) *slog.Logger {
	return newLoggerTo(c.App.ErrWriter, c.Bool("verbose") || cfg.Output.Verbose)
}

func newLoggerTo(w io.Writer, verbose bool) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig loads the config named by --config, or searches the current
// directory, and applies the global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var opts []config.LoadOption
	if path := c.String("config"); path != "" {
		opts = append(opts, config.WithPath(path))
	}
	result, err := config.LoadConfig(opts...)
	if err != nil {
		return nil, err
	}
	cfg := result.Config
	if c.Bool("no-cache") {
		cfg.Cache.Enabled = false
	}
	if f := c.String("format"); f != "" {
		cfg.Output.Format = f
	}
	if c.Bool("no-color") {
		cfg.Output.Color = false
	}
	return cfg, nil
}

// newService wires the analysis service for a command.
func newService(cfg *config.Config, logger *slog.Logger, extra ...analysis.Option) *analysis.Service {
	opts := []analysis.Option{analysis.WithConfig(cfg), analysis.WithLogger(logger)}
	if cfg.Cache.Enabled {
		fc, err := cache.New(cfg.Cache.Dir, cfg.Cache.TTL, true)
		if err != nil {
			logger.Warn("cache disabled", "dir", cfg.Cache.Dir, "error", err)
		} else {
			if n, err := fc.Prune(); err != nil {
				logger.Debug("cache prune failed", "error", err)
			} else if n > 0 {
				logger.Debug("pruned cache entries", "removed", n)
			}
			opts = append(opts, analysis.WithCache(fc))
		}
	}
	return analysis.New(append(opts, extra...)...)
}

// newFormatter creates the output formatter from --format and --output.
func newFormatter(c *cli.Context, cfg *config.Config) (*output.Formatter, error) {
	colored := cfg.Output.Color && !color.NoColor
	if c.String("output") == "" {
		return output.NewWriterFormatter(output.ParseFormat(cfg.Output.Format), c.App.Writer, colored), nil
	}
	return output.NewFormatter(output.ParseFormat(cfg.Output.Format), c.String("output"), colored)
}

func progressOptions(c *cli.Context) progress.Options {
	return progress.Options{Quiet: c.Bool("quiet")}
}
