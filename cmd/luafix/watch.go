package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/luafix/internal/output"
	"github.com/panbanda/luafix/pkg/models"
	"github.com/panbanda/luafix/pkg/watch"
)

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Watch for script changes and re-analyze",
		ArgsUsage: "[path]",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "debounce",
				Value: watch.DefaultDebounce,
				Usage: "Quiet period before a changed file is analyzed",
			},
		},
		Action: runWatchCmd,
	}
}

func runWatchCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger(c, cfg)
	svc := newService(cfg, logger)

	absPath, err := filepath.Abs(getPaths(c)[0])
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	watcher, err := watch.NewWatcher(absPath, cfg, c.Duration("debounce"),
		watch.WithOutput(c.App.Writer), watch.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Stop()

	colored := cfg.Output.Color && !color.NoColor
	watcher.SetCallback(func(ctx context.Context, changedPath string) {
		fr, err := svc.AnalyzeFile(ctx, changedPath)
		if err != nil {
			color.Red("Analysis error: %v", err)
			return
		}
		rel, err := filepath.Rel(absPath, changedPath)
		if err != nil {
			rel = changedPath
		}
		fr.Path = filepath.ToSlash(rel)
		if len(fr.Findings) == 0 {
			color.Green("No findings")
			return
		}
		stats := models.NewRunStats()
		stats.Add(fr)
		view := &output.AnalysisView{Root: fr.Path, Files: []models.FileResult{fr}, Stats: stats}
		if err := view.RenderText(c.App.Writer, colored); err != nil {
			logger.Warn("render failed", "error", err)
		}
	})

	if err := watcher.Start(c.Context); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
