// Package output renders analysis results for terminals, files and tools.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	toon "github.com/toon-format/toon-go"
	"gopkg.in/yaml.v3"

	"github.com/panbanda/luafix/pkg/models"
)

// Format represents an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatTOON     Format = "toon"
	FormatYAML     Format = "yaml"
)

// Formats lists the accepted format names.
var Formats = []Format{FormatText, FormatJSON, FormatMarkdown, FormatTOON, FormatYAML}

// ParseFormat converts a string to Format, defaulting to text.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "markdown", "md":
		return FormatMarkdown
	case "toon":
		return FormatTOON
	case "yaml", "yml":
		return FormatYAML
	default:
		return FormatText
	}
}

// Structured reports whether the format is meant for machines.
func (f Format) Structured() bool {
	return f == FormatJSON || f == FormatTOON || f == FormatYAML
}

// Renderable defines data that can render itself in multiple formats.
type Renderable interface {
	RenderText(w io.Writer, colored bool) error
	RenderMarkdown(w io.Writer) error
	// RenderData returns the underlying data for JSON serialization.
	RenderData() any
}

// Formatter writes results in one format to stdout, a file or a writer.
type Formatter struct {
	format  Format
	w       io.Writer
	closer  io.Closer
	colored bool
}

// NewFormatter writes to stdout, or to the file at path when path is set.
// Files never receive color codes.
func NewFormatter(format Format, path string, colored bool) (*Formatter, error) {
	if path == "" {
		return NewWriterFormatter(format, os.Stdout, colored), nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Formatter{format: format, w: file, closer: file}, nil
}

// NewWriterFormatter creates a formatter writing to w.
func NewWriterFormatter(format Format, w io.Writer, colored bool) *Formatter {
	return &Formatter{format: format, w: w, colored: colored}
}

// Close closes the output file, if any.
func (f *Formatter) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// Format returns the configured format.
func (f *Formatter) Format() Format { return f.format }

// Colored reports whether text output is colored.
func (f *Formatter) Colored() bool { return f.colored }

// Output writes data in the configured format. Text and Markdown use the
// data's own rendering when it is Renderable; anything else is encoded.
func (f *Formatter) Output(data any) error {
	r, renderable := data.(Renderable)
	if renderable {
		switch f.format {
		case FormatText:
			return r.RenderText(f.w, f.colored)
		case FormatMarkdown:
			return r.RenderMarkdown(f.w)
		}
		data = r.RenderData()
	}

	switch f.format {
	case FormatTOON:
		out, err := toon.Marshal(data, toon.WithIndent(2))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(f.w, string(out))
		return err
	case FormatYAML:
		enc := yaml.NewEncoder(f.w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	case FormatMarkdown:
		fmt.Fprintln(f.w, "```json")
		if err := f.writeJSON(data); err != nil {
			return err
		}
		_, err := fmt.Fprintln(f.w, "```")
		return err
	default:
		return f.writeJSON(data)
	}
}

func (f *Formatter) writeJSON(data any) error {
	enc := json.NewEncoder(f.w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// Table is a Renderable table with headers, rows, and optional footer.
type Table struct {
	Title   string     `json:"-"`
	Headers []string   `json:"-"`
	Rows    [][]string `json:"-"`
	Footer  []string   `json:"-"`
	Data    any        `json:"data,omitempty"`
}

// NewTable creates a table that wraps structured data for serialization.
func NewTable(title string, headers []string, rows [][]string, footer []string, data any) *Table {
	return &Table{
		Title:   title,
		Headers: headers,
		Rows:    rows,
		Footer:  footer,
		Data:    data,
	}
}

func (t *Table) RenderData() any {
	if t.Data != nil {
		return t.Data
	}
	result := make([]map[string]string, len(t.Rows))
	for i, row := range t.Rows {
		m := make(map[string]string)
		for j, h := range t.Headers {
			if j < len(row) {
				m[h] = row[j]
			}
		}
		result[i] = m
	}
	return result
}

func (t *Table) RenderText(w io.Writer, colored bool) error {
	if t.Title != "" {
		if colored {
			color.New(color.Bold).Fprintln(w, t.Title)
		} else {
			fmt.Fprintln(w, t.Title)
		}
		fmt.Fprintln(w, strings.Repeat("=", len(t.Title)))
		fmt.Fprintln(w)
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
				Formatting: tw.CellFormatting{
					AutoFormat: tw.On,
				},
			},
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
			Footer: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.Border{
				Left:   tw.Off,
				Right:  tw.Off,
				Top:    tw.Off,
				Bottom: tw.Off,
			},
			Settings: tw.Settings{
				Separators: tw.Separators{
					BetweenColumns: tw.Off,
				},
			},
		}),
	)

	table.Header(t.Headers)
	for _, row := range t.Rows {
		table.Append(row)
	}
	if len(t.Footer) > 0 {
		footerArgs := make([]any, len(t.Footer))
		for i, f := range t.Footer {
			footerArgs[i] = f
		}
		table.Footer(footerArgs...)
	}
	table.Render()
	fmt.Fprintln(w)
	return nil
}

func (t *Table) RenderMarkdown(w io.Writer) error {
	if t.Title != "" {
		fmt.Fprintf(w, "## %s\n\n", t.Title)
	}

	fmt.Fprintf(w, "| %s |\n", strings.Join(t.Headers, " | "))

	seps := make([]string, len(t.Headers))
	for i := range seps {
		seps[i] = "---"
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(seps, " | "))

	for _, row := range t.Rows {
		fmt.Fprintf(w, "| %s |\n", strings.Join(row, " | "))
	}

	if len(t.Footer) > 0 {
		fmt.Fprintf(w, "| %s |\n", strings.Join(t.Footer, " | "))
	}

	fmt.Fprintln(w)
	return nil
}

// SeverityColor colors text by finding severity.
func SeverityColor(severity models.Severity, text string) string {
	switch severity {
	case models.SeverityRed:
		return color.RedString(text)
	case models.SeverityYellow:
		return color.YellowString(text)
	case models.SeverityGreen:
		return color.GreenString(text)
	case models.SeverityDebug:
		return color.CyanString(text)
	default:
		return text
	}
}
