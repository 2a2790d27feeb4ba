package report

import (
	"embed"
	"encoding/json"
	"fmt"
	"html"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/panbanda/luafix/pkg/models"
)

//go:embed template.html
var templateFS embed.FS

// highlightKeys are the finding details, in order of preference, whose text
// is marked in the source line.
var highlightKeys = []string{"full_match", "variable", "function"}

// Renderer executes the embedded HTML template.
type Renderer struct {
	tmpl *template.Template
}

func templateFuncs() template.FuncMap {
	printer := message.NewPrinter(language.English)
	return template.FuncMap{
		"lower": strings.ToLower,
		"title": cases.Title(language.English).String,
		"num":   func(n int) string { return printer.Sprintf("%d", n) },
		"decimal": func(v float64) string {
			return printer.Sprintf("%.2f", v)
		},
		"percent": func(part, whole int) float64 {
			if whole == 0 {
				return 0
			}
			return 100 * float64(part) / float64(whole)
		},
		"severities": func() []models.Severity { return models.Severities },
		"label":      models.Severity.Label,
		"count":      Summary.Count,
		"highlight":  Highlight,
		"details":    FormatDetails,
		"json": func(v any) (template.JS, error) {
			b, err := json.Marshal(v)
			return template.JS(b), err
		},
	}
}

// NewRenderer parses the embedded template.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("template.html").Funcs(templateFuncs()).ParseFS(templateFS, "template.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render writes the HTML report.
func (r *Renderer) Render(w io.Writer, rep *Report) error {
	return r.tmpl.Execute(w, rep)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Save writes the report to path. The format follows the file extension:
// .json and .html (or .htm) select those formats, anything else is text.
func Save(rep *Report, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		r, err := NewRenderer()
		if err != nil {
			return fmt.Errorf("loading report template: %w", err)
		}
		return writeFile(path, func(w io.Writer) error { return r.Render(w, rep) })
	case ".json":
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(path, append(data, '\n'), 0o644)
	default:
		return writeFile(path, func(w io.Writer) error { return WriteText(w, rep) })
	}
}

// Highlight returns the HTML-escaped source line of an entry with the
// matched text wrapped in a highlight span.
func Highlight(e Entry) template.HTML {
	line := strings.TrimSpace(e.SourceLine)
	for _, key := range highlightKeys {
		needle, _ := e.Details[key].(string)
		if needle == "" {
			continue
		}
		i := strings.Index(line, needle)
		if i < 0 {
			continue
		}
		return template.HTML(html.EscapeString(line[:i]) +
			`<span class="highlight">` + html.EscapeString(needle) + `</span>` +
			html.EscapeString(line[i+len(needle):]))
	}
	return template.HTML(html.EscapeString(line))
}

// FormatDetails renders finding details as sorted key=value pairs. The raw
// matched text is omitted because it is shown with the source line.
func FormatDetails(details map[string]any) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		if k == "full_match" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, details[k]))
	}
	return strings.Join(parts, ", ")
}
