package main

import (
	"github.com/urfave/cli/v2"

	"github.com/panbanda/luafix/internal/output"
	"github.com/panbanda/luafix/pkg/models"
)

func patternsCmd() *cli.Command {
	return &cli.Command{
		Name:  "patterns",
		Usage: "List the detected patterns with tier, impact and fix option",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			formatter, err := newFormatter(c, cfg)
			if err != nil {
				return err
			}
			defer formatter.Close()
			return formatter.Output(&output.PatternsView{Patterns: models.KnownPatterns})
		},
	}
}
