package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/luafix/internal/backup"
	"github.com/panbanda/luafix/internal/output"
	"github.com/panbanda/luafix/pkg/config"
)

func backupsCmd() *cli.Command {
	pathFlags := []cli.Flag{
		&cli.BoolFlag{
			Name:  "direct",
			Usage: "Scan the path as plain Lua files instead of FiveM resources",
		},
	}
	confirmFlags := append(pathFlags, &cli.BoolFlag{
		Name:    "yes",
		Aliases: []string{"y"},
		Usage:   "Do not ask for confirmation",
	})
	return &cli.Command{
		Name:  "backups",
		Usage: "Manage the .bak files written by fix",
		Subcommands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List backups by resource",
				ArgsUsage: "[path]",
				Flags:     pathFlags,
				Action:    runBackupsList,
			},
			{
				Name:      "revert",
				Usage:     "Restore every script from its backup and remove the backup",
				ArgsUsage: "[path]",
				Flags:     confirmFlags,
				Action: func(c *cli.Context) error {
					return runBackupsChange(c, "Restore", (*backup.Manager).Revert)
				},
			},
			{
				Name:      "clean",
				Usage:     "Delete every backup and keep the current scripts",
				ArgsUsage: "[path]",
				Flags:     confirmFlags,
				Action: func(c *cli.Context) error {
					return runBackupsChange(c, "Delete", (*backup.Manager).Clean)
				},
			},
		},
	}
}

func findBackups(c *cli.Context) (*config.Config, []backup.Entry, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	absPath, err := filepath.Abs(getPaths(c)[0])
	if err != nil {
		return nil, nil, fmt.Errorf("invalid path: %w", err)
	}
	svc := newService(cfg, newLogger(c, cfg))
	res, err := svc.Discover(absPath, c.Bool("direct"))
	if err != nil {
		return nil, nil, err
	}
	return cfg, backup.Find(res), nil
}

func runBackupsList(c *cli.Context) error {
	cfg, entries, err := findBackups(c)
	if err != nil {
		return err
	}
	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if formatter.Format().Structured() {
		return formatter.Output(entries)
	}
	if len(entries) == 0 {
		color.Yellow("No backups found")
		return nil
	}

	groups := backup.ByResource(entries)
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(entries))
	for _, name := range names {
		for _, e := range groups[name] {
			rows = append(rows, []string{name, e.Script, fmt.Sprintf("%d", e.Size)})
		}
	}
	table := output.NewTable(
		fmt.Sprintf("%d backups", len(entries)),
		[]string{"Resource", "Script", "Bytes"},
		rows, nil, entries,
	)
	return formatter.Output(table)
}

// confirm asks a yes/no question on out and reads the answer from in.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func runBackupsChange(c *cli.Context, verb string, op func(*backup.Manager, []backup.Entry) backup.Outcome) error {
	cfg, entries, err := findBackups(c)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		color.Yellow("No backups found")
		return nil
	}

	if !c.Bool("yes") {
		in := c.App.Reader
		if in == nil {
			in = os.Stdin
		}
		out := c.App.Writer
		if out == nil {
			out = os.Stdout
		}
		if !confirm(in, out, fmt.Sprintf("%s %d backup files?", verb, len(entries))) {
			color.Yellow("Cancelled")
			return nil
		}
	}

	outcome := op(backup.New(newLogger(c, cfg)), entries)
	color.Green("%d of %d backups processed", outcome.Done, len(entries))
	if err := outcome.Err(); err != nil {
		return fmt.Errorf("%d backups failed: %w", len(outcome.Failed), err)
	}
	return nil
}
