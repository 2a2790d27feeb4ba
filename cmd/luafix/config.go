package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/pelletier/go-toml"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/panbanda/luafix/pkg/config"
)

func configCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Subcommands: []*cli.Command{
			{
				Name:  "validate",
				Usage: "Validate a configuration file",
				Description: `Validates a luafix configuration file for syntax errors and invalid values.

Examples:
  luafix config validate                   # Validates default config locations
  luafix -c luafix.toml config validate    # Validates specific file`,
				Action: runConfigValidate,
			},
			{
				Name:  "show",
				Usage: "Show the effective configuration",
				Description: `Shows the merged configuration from defaults, config file and
LUAFIX_* environment variables.`,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yaml",
						Usage: "Print YAML instead of TOML",
					},
				},
				Action: runConfigShow,
			},
		},
	}
}

func runConfigValidate(c *cli.Context) error {
	var opts []config.LoadOption
	if path := c.String("config"); path != "" {
		opts = append(opts, config.WithPath(path))
	}

	result, err := config.LoadConfig(opts...)
	if err != nil {
		color.Red("Configuration validation failed:")
		fmt.Fprintf(c.App.Writer, "  - %s\n", err)
		return err
	}

	if result.Source != "" {
		color.Green("Configuration valid: %s", result.Source)
	} else {
		color.Yellow("No config file found. Default configuration is valid.")
	}
	return nil
}

func runConfigShow(c *cli.Context) error {
	var opts []config.LoadOption
	if path := c.String("config"); path != "" {
		opts = append(opts, config.WithPath(path))
	}

	result, err := config.LoadConfig(opts...)
	if err != nil {
		return err
	}

	w := c.App.Writer
	if result.Source != "" {
		fmt.Fprintf(w, "# Configuration from: %s\n\n", result.Source)
	} else {
		fmt.Fprintln(w, "# Default configuration (no config file found)")
	}
	return writeConfig(w, result.Config, c.Bool("yaml"))
}

func writeConfig(w io.Writer, cfg *config.Config, asYAML bool) error {
	var content []byte
	var err error
	if asYAML {
		content, err = yaml.Marshal(cfg)
	} else {
		content, err = toml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = w.Write(content)
	return err
}

func initCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize a new luafix configuration file",
		Description: `Creates a new luafix.toml configuration file in the current directory
with the default settings. Use --output to specify a different location.

Examples:
  luafix init                        # Creates luafix.toml in current directory
  luafix init -o .luafix/luafix.toml # Creates config in .luafix directory
  luafix init --force                # Overwrite existing config file`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   "luafix.toml",
				Usage:   "Output file path",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite existing config file",
			},
		},
		Action: runInit,
	}
}

func runInit(c *cli.Context) error {
	outputPath := c.String("output")

	if _, err := os.Stat(outputPath); err == nil && !c.Bool("force") {
		return fmt.Errorf("config file %q already exists (use --force to overwrite)", outputPath)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %q: %w", dir, err)
		}
	}

	content, err := generateDefaultConfig()
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	color.Green("Created %s", outputPath)
	fmt.Fprintln(c.App.Writer, "Edit this file to customize analysis settings.")
	return nil
}

func generateDefaultConfig() (string, error) {
	var buf strings.Builder
	buf.WriteString("# luafix configuration\n")
	buf.WriteString("# Environment overrides: LUAFIX_<SECTION>__<KEY>, e.g. LUAFIX_FIX__REVIEW=true\n\n")
	if err := writeConfig(&buf, config.DefaultConfig(), false); err != nil {
		return "", err
	}
	return buf.String(), nil
}
