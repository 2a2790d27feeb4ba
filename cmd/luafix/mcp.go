package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/luafix/internal/mcpserver"
)

func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Start MCP (Model Context Protocol) server for LLM tool integration",
		Description: `Starts an MCP server over stdio transport that exposes the luafix analyzer
and fixer as tools that LLMs can invoke.

To use with Claude Desktop, add to your config:
  {
    "mcpServers": {
      "luafix": {
        "command": "luafix",
        "args": ["mcp"]
      }
    }
  }

Available tools:
  - analyze_lua     Findings for files, resources or a source snippet
  - fix_lua         Fixed text and unified diff, never written to disk
  - list_patterns   Pattern vocabulary with tier and impact`,
		Subcommands: []*cli.Command{
			{
				Name:  "manifest",
				Usage: "Print the MCP registry manifest (server.json)",
				Action: func(c *cli.Context) error {
					data, err := mcpserver.GenerateManifest(version)
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, string(data))
					return nil
				},
			},
		},
		Action: runMCPCmd,
	}
}

func runMCPCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	// stdout carries the protocol, so diagnostics stay on stderr.
	svc := newService(cfg, newLogger(c, cfg))
	return mcpserver.NewServer(version, svc).Run(c.Context)
}
