package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	toon "github.com/toon-format/toon-go"

	"github.com/panbanda/luafix/internal/output"
	"github.com/panbanda/luafix/internal/service/analysis"
	"github.com/panbanda/luafix/pkg/models"
	"github.com/panbanda/luafix/pkg/transform"
)

// AnalyzeInput is the input of analyze_lua. Source takes precedence over
// Paths.
type AnalyzeInput struct {
	Paths        []string `json:"paths,omitempty" jsonschema:"Files or resource directories to analyze. Defaults to current directory if empty."`
	Source       string   `json:"source,omitempty" jsonschema:"Lua source to analyze instead of files."`
	Name         string   `json:"name,omitempty" jsonschema:"Label for source in findings. Default snippet.lua."`
	WholeProgram bool     `json:"whole_program,omitempty" jsonschema:"Also report globals that no scanned file uses."`
	Format       string   `json:"format,omitempty" jsonschema:"Output format: toon (default), json, or markdown."`
}

// FixInput is the input of fix_lua. Exactly one of Path and Source is used;
// Source takes precedence.
type FixInput struct {
	Path         string `json:"path,omitempty" jsonschema:"Lua file to fix. The file is read, never written."`
	Source       string `json:"source,omitempty" jsonschema:"Lua source to fix instead of a file."`
	Name         string `json:"name,omitempty" jsonschema:"Label for source in the diff. Default snippet.lua."`
	Safe         *bool  `json:"safe,omitempty" jsonschema:"Apply GREEN rewrites. Default true."`
	Review       bool   `json:"review,omitempty" jsonschema:"Also apply YELLOW rewrites that have a fixer."`
	Debug        bool   `json:"debug,omitempty" jsonschema:"Comment out debug statements."`
	NilGuards    bool   `json:"nil_guards,omitempty" jsonschema:"Add nil checks after natives that may return nil."`
	DeadCode     bool   `json:"dead_code,omitempty" jsonschema:"Remove unreachable code."`
	Experimental bool   `json:"experimental,omitempty" jsonschema:"Rewrite string concatenation in loops."`
	Format       string `json:"format,omitempty" jsonschema:"Output format: toon (default), json, or markdown."`
}

// PatternsInput is the input of list_patterns.
type PatternsInput struct {
	Format string `json:"format,omitempty" jsonschema:"Output format: toon (default), json, or markdown."`
}

// FixOutput is the result of fix_lua.
type FixOutput struct {
	Path     string           `json:"path" toon:"path"`
	Modified bool             `json:"modified" toon:"modified"`
	Edits    int              `json:"edits" toon:"edits"`
	Findings []models.Finding `json:"findings" toon:"findings"`
	Output   string           `json:"output" toon:"output"`
	Diff     string           `json:"diff,omitempty" toon:"diff"`
}

const defaultSnippetName = "snippet.lua"

func getPaths(input AnalyzeInput) []string {
	if len(input.Paths) == 0 {
		return []string{"."}
	}
	return input.Paths
}

func getFormat(format string) output.Format {
	switch format {
	case "json":
		return output.FormatJSON
	case "markdown", "md":
		return output.FormatMarkdown
	default:
		return output.FormatTOON
	}
}

func snippetName(name string) string {
	if name == "" {
		return defaultSnippetName
	}
	return name
}

func formatOutput(data any, format output.Format) (string, error) {
	switch format {
	case output.FormatJSON:
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", err
		}
		return string(out), nil
	case output.FormatMarkdown:
		out, err := toon.Marshal(data, toon.WithIndent(2))
		if err != nil {
			return "", err
		}
		return "```\n" + string(out) + "\n```", nil
	default:
		out, err := toon.Marshal(data, toon.WithIndent(2))
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
}

func toolResult(data any, format output.Format) (*mcp.CallToolResult, any, error) {
	text, err := formatOutput(data, format)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}, nil, nil
}

func toolError(msg string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "Error: " + msg},
		},
		IsError: true,
	}, nil, nil
}

func (s *Server) handleAnalyze(ctx context.Context, req *mcp.CallToolRequest, input AnalyzeInput) (*mcp.CallToolResult, any, error) {
	format := getFormat(input.Format)

	if input.Source != "" {
		fr, err := s.svc.AnalyzeSource(ctx, snippetName(input.Name), []byte(input.Source))
		if err != nil {
			return toolError(err.Error())
		}
		stats := models.NewRunStats()
		stats.Add(fr)
		return toolResult(&output.AnalysisView{
			Root:  fr.Path,
			Files: []models.FileResult{fr},
			Stats: stats,
		}, format)
	}

	var views []*output.AnalysisView
	for _, path := range getPaths(input) {
		res, err := s.svc.Discover(path, false)
		if err != nil {
			return toolError(err.Error())
		}
		if len(res.Files()) == 0 {
			return toolError(fmt.Sprintf("no Lua scripts found in %s", path))
		}
		run, err := s.svc.Run(ctx, res, analysis.RunOptions{WholeProgram: input.WholeProgram})
		if err != nil {
			return toolError(err.Error())
		}
		views = append(views, &output.AnalysisView{
			Root:    run.Root,
			Files:   run.Files,
			Program: run.Program,
			Stats:   run.Stats,
		})
	}
	if len(views) == 1 {
		return toolResult(views[0], format)
	}
	return toolResult(views, format)
}

func (s *Server) fixOptions(input FixInput) transform.Options {
	opts := transform.Options{
		Safe:         true,
		Review:       input.Review,
		Debug:        input.Debug,
		NilGuards:    input.NilGuards,
		DeadCode:     input.DeadCode,
		Experimental: input.Experimental,
		DryRun:       true,
	}
	if input.Safe != nil {
		opts.Safe = *input.Safe
	}
	return opts
}

func (s *Server) handleFix(ctx context.Context, req *mcp.CallToolRequest, input FixInput) (*mcp.CallToolResult, any, error) {
	format := getFormat(input.Format)

	name := snippetName(input.Name)
	src := []byte(input.Source)
	switch {
	case input.Source != "":
	case input.Path != "":
		data, err := os.ReadFile(input.Path)
		if err != nil {
			return toolError(err.Error())
		}
		src = data
		name = filepath.ToSlash(input.Path)
	default:
		return toolError("either path or source is required")
	}

	res, diff, err := s.svc.FixSource(ctx, name, src, s.fixOptions(input))
	if err != nil {
		return toolError(err.Error())
	}
	return toolResult(FixOutput{
		Path:     name,
		Modified: res.Modified,
		Edits:    res.EditCount(),
		Findings: res.Findings,
		Output:   string(res.Output),
		Diff:     diff,
	}, format)
}

func (s *Server) handleListPatterns(ctx context.Context, req *mcp.CallToolRequest, input PatternsInput) (*mcp.CallToolResult, any, error) {
	return toolResult(&output.PatternsView{Patterns: models.KnownPatterns}, getFormat(input.Format))
}
