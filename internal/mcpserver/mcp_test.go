package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/panbanda/luafix/internal/output"
	"github.com/panbanda/luafix/internal/testutil"
	"github.com/panbanda/luafix/pkg/models"
)

const getnSource = "local t = {1, 2}\nlocal n = table.getn(t)\nreturn n\n"

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("nil result")
	}
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return text.Text
}

// TestServerCreation verifies the MCP server can be created without panicking.
func TestServerCreation(t *testing.T) {
	server := NewServer("1.0.0-test", nil)
	if server == nil {
		t.Fatal("NewServer() returned nil")
	}
	if server.server == nil || server.svc == nil {
		t.Fatal("NewServer() left fields unset")
	}
}

func TestToolDescriptions(t *testing.T) {
	descriptions := map[string]func() string{
		"analyze":  describeAnalyze,
		"fix":      describeFix,
		"patterns": describePatterns,
	}
	for name, fn := range descriptions {
		t.Run(name, func(t *testing.T) {
			desc := fn()
			for _, section := range []string{"USE WHEN:", "INTERPRETING RESULTS:", "METRICS RETURNED:"} {
				if !strings.Contains(desc, section) {
					t.Errorf("%s description missing %s section", name, section)
				}
			}
		})
	}
}

func TestGetPaths(t *testing.T) {
	if got := getPaths(AnalyzeInput{}); len(got) != 1 || got[0] != "." {
		t.Errorf("getPaths() = %v, want [.]", got)
	}
	if got := getPaths(AnalyzeInput{Paths: []string{"a", "b"}}); len(got) != 2 {
		t.Errorf("getPaths() = %v", got)
	}
}

func TestGetFormat(t *testing.T) {
	tests := map[string]output.Format{
		"":         output.FormatTOON,
		"toon":     output.FormatTOON,
		"json":     output.FormatJSON,
		"markdown": output.FormatMarkdown,
		"md":       output.FormatMarkdown,
		"bogus":    output.FormatTOON,
	}
	for in, want := range tests {
		if got := getFormat(in); got != want {
			t.Errorf("getFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestToolError(t *testing.T) {
	result, _, err := toolError("boom")
	if err != nil {
		t.Fatalf("toolError returned error: %v", err)
	}
	if !result.IsError {
		t.Error("IsError should be true")
	}
	if got := textOf(t, result); got != "Error: boom" {
		t.Errorf("text = %q", got)
	}
}

func TestFormatOutput(t *testing.T) {
	data := map[string]any{"pattern": "table_getn", "count": 2}
	for _, format := range []string{"", "json", "markdown"} {
		t.Run(format, func(t *testing.T) {
			out, err := formatOutput(data, getFormat(format))
			if err != nil {
				t.Fatalf("formatOutput(%q) error: %v", format, err)
			}
			if !strings.Contains(out, "table_getn") {
				t.Errorf("formatOutput(%q) = %q", format, out)
			}
		})
	}
	out, _ := formatOutput(data, output.FormatJSON)
	var back map[string]any
	if err := json.Unmarshal([]byte(out), &back); err != nil {
		t.Errorf("json output does not parse: %v", err)
	}
}

func TestHandleAnalyzeSource(t *testing.T) {
	s := NewServer("test", nil)
	result, _, err := s.handleAnalyze(context.Background(), nil, AnalyzeInput{Source: getnSource, Format: "json"})
	if err != nil {
		t.Fatalf("handleAnalyze returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("handleAnalyze failed: %s", textOf(t, result))
	}

	var view struct {
		Root  string `json:"root"`
		Files []struct {
			Findings []models.Finding `json:"findings"`
		} `json:"files"`
	}
	if err := json.Unmarshal([]byte(textOf(t, result)), &view); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if view.Root != defaultSnippetName {
		t.Errorf("root = %q, want %q", view.Root, defaultSnippetName)
	}
	if len(view.Files) != 1 || len(view.Files[0].Findings) == 0 {
		t.Fatalf("expected findings, got %+v", view.Files)
	}
}

func TestHandleAnalyzePaths(t *testing.T) {
	dir := t.TempDir()
	testutil.Resource(t, dir, "hud", map[string]string{"client.lua": getnSource})

	s := NewServer("test", nil)
	result, _, err := s.handleAnalyze(context.Background(), nil, AnalyzeInput{Paths: []string{dir}})
	if err != nil {
		t.Fatalf("handleAnalyze returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("handleAnalyze failed: %s", textOf(t, result))
	}
	if !strings.Contains(textOf(t, result), models.PatternTableGetn) {
		t.Errorf("output missing %s:\n%s", models.PatternTableGetn, textOf(t, result))
	}
}

func TestHandleAnalyzeEmptyDir(t *testing.T) {
	s := NewServer("test", nil)
	result, _, err := s.handleAnalyze(context.Background(), nil, AnalyzeInput{Paths: []string{t.TempDir()}})
	if err != nil {
		t.Fatalf("handleAnalyze returned error: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError for a directory without scripts")
	}
}

func TestHandleFixSource(t *testing.T) {
	s := NewServer("test", nil)
	result, _, err := s.handleFix(context.Background(), nil, FixInput{Source: getnSource, Name: "hud/client.lua", Format: "json"})
	if err != nil {
		t.Fatalf("handleFix returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("handleFix failed: %s", textOf(t, result))
	}

	var out FixOutput
	if err := json.Unmarshal([]byte(textOf(t, result)), &out); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if !out.Modified || out.Edits != 1 {
		t.Errorf("modified = %v, edits = %d", out.Modified, out.Edits)
	}
	if !strings.Contains(out.Output, "local n = #t") {
		t.Errorf("output = %q", out.Output)
	}
	if !strings.Contains(out.Diff, "+++ b/hud/client.lua") {
		t.Errorf("diff = %q", out.Diff)
	}
}

func TestHandleFixPathDoesNotWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.lua")
	if err := os.WriteFile(path, []byte(getnSource), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewServer("test", nil)
	result, _, err := s.handleFix(context.Background(), nil, FixInput{Path: path, Format: "json"})
	if err != nil {
		t.Fatalf("handleFix returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("handleFix failed: %s", textOf(t, result))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != getnSource {
		t.Error("fix_lua must not modify the file")
	}
	if _, err := os.Stat(path + ".bak"); !os.IsNotExist(err) {
		t.Error("fix_lua must not write a backup")
	}
}

func TestHandleFixSafeDisabled(t *testing.T) {
	off := false
	s := NewServer("test", nil)
	result, _, err := s.handleFix(context.Background(), nil, FixInput{Source: getnSource, Safe: &off, Format: "json"})
	if err != nil {
		t.Fatalf("handleFix returned error: %v", err)
	}
	var out FixOutput
	if err := json.Unmarshal([]byte(textOf(t, result)), &out); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if out.Modified {
		t.Error("no fixes should apply with safe disabled")
	}
}

func TestHandleFixRequiresInput(t *testing.T) {
	s := NewServer("test", nil)
	result, _, err := s.handleFix(context.Background(), nil, FixInput{})
	if err != nil {
		t.Fatalf("handleFix returned error: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError without path or source")
	}
}

func TestHandleListPatterns(t *testing.T) {
	s := NewServer("test", nil)
	result, _, err := s.handleListPatterns(context.Background(), nil, PatternsInput{Format: "json"})
	if err != nil {
		t.Fatalf("handleListPatterns returned error: %v", err)
	}
	var out struct {
		Patterns []models.PatternInfo `json:"patterns"`
	}
	if err := json.Unmarshal([]byte(textOf(t, result)), &out); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(out.Patterns) != len(models.KnownPatterns) {
		t.Errorf("got %d patterns, want %d", len(out.Patterns), len(models.KnownPatterns))
	}
}

// TestSession drives the server through an in-memory client session.
func TestSession(t *testing.T) {
	ctx := context.Background()
	s := NewServer("test", nil)
	serverT, clientT := mcp.NewInMemoryTransports()
	ss, err := s.server.Connect(ctx, serverT, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	defer ss.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer cs.Close()

	tools, err := cs.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"analyze_lua", "fix_lua", "list_patterns"} {
		if !names[want] {
			t.Errorf("tool %s not registered", want)
		}
	}

	result, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "analyze_lua",
		Arguments: map[string]any{"source": getnSource, "format": "json"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if result.IsError || !strings.Contains(textOf(t, result), models.PatternTableGetn) {
		t.Errorf("analyze_lua = %s", textOf(t, result))
	}

	prompts, err := cs.ListPrompts(ctx, nil)
	if err != nil {
		t.Fatalf("ListPrompts: %v", err)
	}
	if len(prompts.Prompts) == 0 {
		t.Error("no prompts registered")
	}
}

func TestLoadPrompts(t *testing.T) {
	prompts, err := loadPrompts()
	if err != nil {
		t.Fatalf("loadPrompts: %v", err)
	}
	if len(prompts) != 3 {
		t.Fatalf("prompts = %d, want 3", len(prompts))
	}
	for _, p := range prompts {
		t.Run(p.Name, func(t *testing.T) {
			if p.Description == "" {
				t.Error("prompt description is empty")
			}
			if strings.HasPrefix(p.Body, "---") || p.Body == "" {
				t.Errorf("body not split from frontmatter: %q", p.Body)
			}
			for _, a := range p.Arguments {
				if !strings.Contains(p.Body, "{{"+a.Name+"}}") {
					t.Errorf("argument %s is not used in the body", a.Name)
				}
			}
		})
	}
}

func TestParsePromptWithoutFrontmatter(t *testing.T) {
	p, err := parsePrompt("plain", []byte("plain"))
	if err != nil {
		t.Fatal(err)
	}
	if p.Description != "" || p.Body != "plain" {
		t.Errorf("parsePrompt = %+v", p)
	}

	unterminated, err := parsePrompt("open", []byte("---\ndescription: x\n"))
	if err != nil {
		t.Fatal(err)
	}
	if unterminated.Description != "" {
		t.Errorf("unterminated frontmatter should stay in the body: %+v", unterminated)
	}
}

func TestParsePromptBadYAML(t *testing.T) {
	if _, err := parsePrompt("bad", []byte("---\ndescription: [\n---\nbody\n")); err == nil {
		t.Error("expected a YAML error")
	}
}

func TestPromptRender(t *testing.T) {
	p, err := parsePrompt("review", []byte(`---
description: review
arguments:
  - name: path
    required: true
  - name: focus
    default: loops
---
Review {{path}} for {{focus}}.
`))
	if err != nil {
		t.Fatal(err)
	}

	result, err := p.handle(context.Background(), &mcp.GetPromptRequest{Params: &mcp.GetPromptParams{
		Name:      "review",
		Arguments: map[string]string{"path": "resources/hud"},
	}})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.Description != "review" || len(result.Messages) != 1 || result.Messages[0].Role != "user" {
		t.Fatalf("result = %+v", result)
	}
	text := result.Messages[0].Content.(*mcp.TextContent).Text
	if text != "Review resources/hud for loops.\n" {
		t.Errorf("text = %q", text)
	}

	if _, err := p.handle(context.Background(), &mcp.GetPromptRequest{Params: &mcp.GetPromptParams{Name: "review"}}); err == nil {
		t.Error("missing required argument should fail")
	}

	def := p.definition()
	if len(def.Arguments) != 2 || !def.Arguments[0].Required || def.Arguments[1].Required {
		t.Errorf("definition = %+v", def.Arguments)
	}
}

func TestGenerateManifest(t *testing.T) {
	data, err := GenerateManifest("1.2.3")
	if err != nil {
		t.Fatalf("GenerateManifest: %v", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("manifest is not JSON: %v", err)
	}
	if m.Name != "io.github.panbanda/luafix" || m.Version != "1.2.3" {
		t.Errorf("manifest = %+v", m)
	}
	if len(m.Packages) != 1 || m.Packages[0].Identifier != "ghcr.io/panbanda/luafix:1.2.3" {
		t.Fatalf("packages = %+v", m.Packages)
	}
	if m.Packages[0].EnvironmentVariables[0].Name != "LUAFIX_CONFIG" {
		t.Errorf("env = %+v", m.Packages[0].EnvironmentVariables)
	}

	data, err = GenerateManifest("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"version": "0.0.0"`) {
		t.Errorf("default version missing: %s", data)
	}
}
