package output

import (
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/panbanda/luafix/pkg/models"
)

// AnalysisView renders the results of an analyze or fix run.
type AnalysisView struct {
	Root  string              `json:"root"`
	Files []models.FileResult `json:"files"`
	// Program holds the whole-program findings, when that pass ran.
	Program []models.Finding `json:"program,omitempty"`
	Stats   models.RunStats  `json:"stats"`
	// ShowDiffs prints the dry-run diff of each modified file.
	ShowDiffs bool `json:"-"`
	// Only limits the listed findings to these tiers; empty lists all.
	Only []models.Severity `json:"-"`
}

func (v *AnalysisView) RenderData() any {
	return v
}

func (v *AnalysisView) visible(f models.Finding) bool {
	return len(v.Only) == 0 || slices.Contains(v.Only, f.Severity)
}

// sortedFindings orders findings by line, then by severity rank.
func sortedFindings(findings []models.Finding) []models.Finding {
	out := append([]models.Finding(nil), findings...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].Severity.Rank() < out[j].Severity.Rank()
	})
	return out
}

func (v *AnalysisView) RenderText(w io.Writer, colored bool) error {
	bold := color.New(color.Bold)
	for _, file := range v.Files {
		findings := v.filter(file.Findings)
		if len(findings) == 0 && file.Status == models.StatusOK && file.Diff == "" {
			continue
		}
		header := file.Path
		if file.Resource != "" {
			header = fmt.Sprintf("%s [%s]", file.Path, file.Resource)
		}
		if colored {
			bold.Fprintln(w, header)
		} else {
			fmt.Fprintln(w, header)
		}
		if file.Status != models.StatusOK {
			fmt.Fprintf(w, "  %s: %s\n", file.Status, file.Error)
		}
		for _, f := range sortedFindings(findings) {
			writeFinding(w, f, colored)
		}
		if file.Modified {
			fmt.Fprintf(w, "  %d edit(s) applied\n", file.Edits)
		}
		if v.ShowDiffs && file.Diff != "" {
			WriteDiff(w, file.Diff, colored)
		}
		fmt.Fprintln(w)
	}

	if program := v.filter(v.Program); len(program) > 0 {
		title := "Whole-program analysis"
		if colored {
			bold.Fprintln(w, title)
		} else {
			fmt.Fprintln(w, title)
		}
		for _, f := range program {
			fmt.Fprintf(w, "  %s:%d\n", f.File, f.Line)
			writeFinding(w, f, colored)
		}
		fmt.Fprintln(w)
	}

	return v.summaryTable().RenderText(w, colored)
}

func (v *AnalysisView) filter(findings []models.Finding) []models.Finding {
	var out []models.Finding
	for _, f := range findings {
		if v.visible(f) {
			out = append(out, f)
		}
	}
	return out
}

func writeFinding(w io.Writer, f models.Finding, colored bool) {
	label := fmt.Sprintf("%-6s", f.Severity)
	if colored {
		label = SeverityColor(f.Severity, label)
	}
	fmt.Fprintf(w, "  L%-5d %s %s: %s\n", f.Line, label, f.Pattern, f.Message)
	if src := strings.TrimSpace(f.SourceLine); src != "" {
		if colored {
			color.New(color.Faint).Fprintf(w, "         %s\n", src)
		} else {
			fmt.Fprintf(w, "         %s\n", src)
		}
	}
}

func (v *AnalysisView) summaryTable() *Table {
	s := v.Stats
	rows := [][]string{
		{"Files analyzed", strconv.Itoa(s.FilesAnalyzed)},
		{"Files with issues", strconv.Itoa(s.FilesWithIssues)},
		{"Files skipped", strconv.Itoa(s.FilesSkipped)},
		{"Parse errors", strconv.Itoa(s.ParseErrors)},
		{"Timeouts", strconv.Itoa(s.Timeouts)},
	}
	for _, sev := range models.Severities {
		rows = append(rows, []string{"Findings " + sev.Label(), strconv.Itoa(s.BySeverity[sev])})
	}
	if s.FilesModified > 0 || s.TotalEdits > 0 {
		rows = append(rows,
			[]string{"Files modified", strconv.Itoa(s.FilesModified)},
			[]string{"Edits applied", strconv.Itoa(s.TotalEdits)},
		)
	}
	if len(v.Program) > 0 {
		rows = append(rows, []string{"Unused globals", strconv.Itoa(len(v.Program))})
	}
	return NewTable("Summary", []string{"Metric", "Value"}, rows,
		[]string{"Total findings", strconv.Itoa(s.TotalFindings)}, nil)
}

func (v *AnalysisView) RenderMarkdown(w io.Writer) error {
	fmt.Fprintf(w, "# Lua analysis: %s\n\n", v.Root)
	for _, file := range v.Files {
		findings := v.filter(file.Findings)
		if len(findings) == 0 && file.Status == models.StatusOK {
			continue
		}
		fmt.Fprintf(w, "## %s\n\n", file.Path)
		if file.Status != models.StatusOK {
			fmt.Fprintf(w, "**%s**: %s\n\n", file.Status, file.Error)
		}
		if len(findings) > 0 {
			fmt.Fprintln(w, "| Line | Severity | Pattern | Message |")
			fmt.Fprintln(w, "| --- | --- | --- | --- |")
			for _, f := range sortedFindings(findings) {
				fmt.Fprintf(w, "| %d | %s | `%s` | %s |\n", f.Line, f.Severity, f.Pattern, escapeCell(f.Message))
			}
			fmt.Fprintln(w)
		}
		if v.ShowDiffs && file.Diff != "" {
			fmt.Fprintf(w, "```diff\n%s```\n\n", file.Diff)
		}
	}
	if program := v.filter(v.Program); len(program) > 0 {
		fmt.Fprintln(w, "## Whole-program analysis")
		fmt.Fprintln(w)
		for _, f := range program {
			fmt.Fprintf(w, "- `%s:%d` %s\n", f.File, f.Line, f.Message)
		}
		fmt.Fprintln(w)
	}
	return v.summaryTable().RenderMarkdown(w)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// PatternsView lists the known patterns.
type PatternsView struct {
	Patterns []models.PatternInfo `json:"patterns"`
}

func (p *PatternsView) table() *Table {
	rows := make([][]string, len(p.Patterns))
	for i, info := range p.Patterns {
		rows[i] = []string{info.Pattern, string(info.Severity), string(info.Impact), info.FixGate, info.Description}
	}
	return NewTable("Patterns", []string{"Pattern", "Severity", "Impact", "Fixed by", "Description"}, rows, nil, p)
}

func (p *PatternsView) RenderData() any { return p }

func (p *PatternsView) RenderText(w io.Writer, colored bool) error {
	return p.table().RenderText(w, colored)
}

func (p *PatternsView) RenderMarkdown(w io.Writer) error {
	return p.table().RenderMarkdown(w)
}
