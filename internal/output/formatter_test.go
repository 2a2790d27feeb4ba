package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input string
		want  Format
	}{
		{"text", FormatText},
		{"TEXT", FormatText},
		{"json", FormatJSON},
		{"markdown", FormatMarkdown},
		{"md", FormatMarkdown},
		{"toon", FormatTOON},
		{"yaml", FormatYAML},
		{"YML", FormatYAML},
		{"", FormatText},
		{"invalid", FormatText},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseFormat(tt.input); got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatStructured(t *testing.T) {
	for _, f := range Formats {
		want := f == FormatJSON || f == FormatTOON || f == FormatYAML
		if f.Structured() != want {
			t.Errorf("%s.Structured() = %v, want %v", f, f.Structured(), want)
		}
	}
}

func TestNewFormatterWithFile(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "output.json")

	f, err := NewFormatter(FormatJSON, outputPath, true)
	if err != nil {
		t.Fatalf("NewFormatter() error: %v", err)
	}
	if f.Colored() {
		t.Error("colored should be false when writing to file")
	}
	if err := f.Output(map[string]int{"files": 3}); err != nil {
		t.Fatalf("Output() error: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}

	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	var got map[string]int
	if err := json.Unmarshal(content, &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if got["files"] != 3 {
		t.Errorf("files = %d, want 3", got["files"])
	}
}

func TestNewFormatterInvalidPath(t *testing.T) {
	if _, err := NewFormatter(FormatText, "/nonexistent/directory/file.txt", false); err == nil {
		t.Error("NewFormatter() should error for invalid path")
	}
}

func TestTableRenderText(t *testing.T) {
	table := NewTable(
		"Summary",
		[]string{"Metric", "Value"},
		[][]string{{"Files analyzed", "10"}, {"Parse errors", "1"}},
		[]string{"Total findings", "42"},
		nil,
	)
	var buf bytes.Buffer
	if err := table.RenderText(&buf, false); err != nil {
		t.Fatalf("RenderText() error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Summary", "METRIC", "VALUE", "Files analyzed", "10", "42"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderText() missing %q in output:\n%s", want, out)
		}
	}
}

func TestTableRenderMarkdown(t *testing.T) {
	table := NewTable("Patterns", []string{"Pattern", "Count"}, [][]string{{"table_getn", "2"}}, nil, nil)
	var buf bytes.Buffer
	if err := table.RenderMarkdown(&buf); err != nil {
		t.Fatalf("RenderMarkdown() error: %v", err)
	}
	want := "## Patterns\n\n| Pattern | Count |\n| --- | --- |\n| table_getn | 2 |\n\n"
	if buf.String() != want {
		t.Errorf("RenderMarkdown() = %q, want %q", buf.String(), want)
	}
}

func TestTableRenderData(t *testing.T) {
	table := NewTable("", []string{"Pattern", "Count"}, [][]string{{"table_getn", "2"}}, nil, nil)
	rows, ok := table.RenderData().([]map[string]string)
	if !ok || len(rows) != 1 || rows[0]["Pattern"] != "table_getn" || rows[0]["Count"] != "2" {
		t.Errorf("RenderData() = %#v", table.RenderData())
	}

	wrapped := NewTable("", nil, nil, nil, map[string]int{"n": 1})
	if _, ok := wrapped.RenderData().(map[string]int); !ok {
		t.Error("RenderData() should return the wrapped data")
	}
}

func TestOutputRenderable(t *testing.T) {
	table := NewTable("Patterns", []string{"Pattern", "Count"}, [][]string{{"table_getn", "2"}}, nil, nil)

	var text bytes.Buffer
	if err := NewWriterFormatter(FormatText, &text, false).Output(table); err != nil {
		t.Fatalf("text Output() error: %v", err)
	}
	if !strings.Contains(text.String(), "PATTERN") {
		t.Errorf("text output = %q", text.String())
	}

	var md bytes.Buffer
	if err := NewWriterFormatter(FormatMarkdown, &md, false).Output(table); err != nil {
		t.Fatalf("markdown Output() error: %v", err)
	}
	if !strings.HasPrefix(md.String(), "## Patterns") {
		t.Errorf("markdown output = %q", md.String())
	}

	var js bytes.Buffer
	if err := NewWriterFormatter(FormatJSON, &js, false).Output(table); err != nil {
		t.Fatalf("JSON Output() error: %v", err)
	}
	var rows []map[string]string
	if err := json.Unmarshal(js.Bytes(), &rows); err != nil || rows[0]["Count"] != "2" {
		t.Errorf("JSON output = %q (%v)", js.String(), err)
	}
}

func TestCloseWithoutFile(t *testing.T) {
	if err := NewWriterFormatter(FormatText, &bytes.Buffer{}, true).Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestFormatterStructuredOutputs(t *testing.T) {
	data := struct {
		Pattern string `json:"pattern" yaml:"pattern"`
		Count   int    `json:"count" yaml:"count"`
	}{"table_getn", 2}

	var jsonBuf bytes.Buffer
	if err := NewWriterFormatter(FormatJSON, &jsonBuf, false).Output(data); err != nil {
		t.Fatalf("JSON Output() error: %v", err)
	}
	if !strings.Contains(jsonBuf.String(), `"pattern": "table_getn"`) {
		t.Errorf("JSON output = %q", jsonBuf.String())
	}

	var yamlBuf bytes.Buffer
	if err := NewWriterFormatter(FormatYAML, &yamlBuf, false).Output(data); err != nil {
		t.Fatalf("YAML Output() error: %v", err)
	}
	var back map[string]any
	if err := yaml.Unmarshal(yamlBuf.Bytes(), &back); err != nil {
		t.Fatalf("YAML output does not parse: %v", err)
	}
	if back["pattern"] != "table_getn" || back["count"] != 2 {
		t.Errorf("YAML output = %q", yamlBuf.String())
	}

	var toonBuf bytes.Buffer
	if err := NewWriterFormatter(FormatTOON, &toonBuf, false).Output(data); err != nil {
		t.Fatalf("TOON Output() error: %v", err)
	}
	if !strings.Contains(toonBuf.String(), "table_getn") {
		t.Errorf("TOON output = %q", toonBuf.String())
	}

	var mdBuf bytes.Buffer
	if err := NewWriterFormatter(FormatMarkdown, &mdBuf, false).Output(data); err != nil {
		t.Fatalf("Markdown Output() error: %v", err)
	}
	if !strings.HasPrefix(mdBuf.String(), "```json\n") || !strings.HasSuffix(mdBuf.String(), "```\n") {
		t.Errorf("Markdown output = %q", mdBuf.String())
	}
}
