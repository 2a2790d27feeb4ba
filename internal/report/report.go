// Package report aggregates analysis results by resource and file and renders
// them as text, JSON or HTML reports.
package report

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/panbanda/luafix/pkg/models"
)

// TopIssueLimit is the number of patterns listed as top issues.
const TopIssueLimit = 10

// Report is the aggregated view of one run.
type Report struct {
	ID        string           `json:"id"`
	Generated time.Time        `json:"generated"`
	Root      string           `json:"root"`
	Summary   Summary          `json:"summary"`
	Impact    []ImpactCount    `json:"impact"`
	TopIssues []Issue          `json:"top_issues"`
	Patterns  []Issue          `json:"patterns"`
	Resources []ResourceReport `json:"resources"`
	Density   Density          `json:"density"`
}

// Summary counts findings by tier and files by outcome.
type Summary struct {
	Total           int `json:"total"`
	Green           int `json:"green"`
	Yellow          int `json:"yellow"`
	Red             int `json:"red"`
	Debug           int `json:"debug"`
	Files           int `json:"files"`
	FilesWithIssues int `json:"files_with_issues"`
	ParseErrors     int `json:"parse_errors"`
	Timeouts        int `json:"timeouts"`
	Errors          int `json:"errors"`
}

// Count returns the number of findings in a tier.
func (s Summary) Count(sev models.Severity) int {
	switch sev {
	case models.SeverityGreen:
		return s.Green
	case models.SeverityYellow:
		return s.Yellow
	case models.SeverityRed:
		return s.Red
	case models.SeverityDebug:
		return s.Debug
	}
	return 0
}

func (s *Summary) add(sev models.Severity) {
	s.Total++
	switch sev {
	case models.SeverityGreen:
		s.Green++
	case models.SeverityYellow:
		s.Yellow++
	case models.SeverityRed:
		s.Red++
	case models.SeverityDebug:
		s.Debug++
	}
}

// ImpactCount is the number of findings at one performance impact level.
type ImpactCount struct {
	Impact models.Impact `json:"impact"`
	Count  int           `json:"count"`
}

// Issue is a pattern with its occurrence count.
type Issue struct {
	Pattern  string          `json:"pattern"`
	Count    int             `json:"count"`
	Severity models.Severity `json:"severity"`
	Impact   models.Impact   `json:"impact"`
}

// ResourceReport holds the findings of one resource.
type ResourceReport struct {
	Name    string       `json:"name"`
	Summary Summary      `json:"summary"`
	Files   []FileReport `json:"files"`
}

// FileReport holds the findings of one file.
type FileReport struct {
	Path    string            `json:"path"`
	Lines   int               `json:"lines,omitempty"`
	Status  models.FileStatus `json:"status"`
	Error   string            `json:"error,omitempty"`
	Entries []Entry           `json:"findings"`
}

// Entry is one finding as it appears in a report.
type Entry struct {
	Line        int             `json:"line"`
	Pattern     string          `json:"pattern"`
	Severity    models.Severity `json:"severity"`
	Impact      models.Impact   `json:"impact"`
	Description string          `json:"description"`
	SourceLine  string          `json:"source_line,omitempty"`
	Details     map[string]any  `json:"details,omitempty"`
}

// Density describes how findings are spread across analyzed files.
type Density struct {
	MeanPerFile   float64 `json:"mean_per_file"`
	StdDevPerFile float64 `json:"stddev_per_file"`
	P90PerFile    float64 `json:"p90_per_file"`
	// PerHundredLines is the number of findings per 100 source lines.
	PerHundredLines float64 `json:"per_hundred_lines"`
	// SizeCorrelation is the Pearson correlation of file length and
	// finding count.
	SizeCorrelation float64 `json:"size_correlation"`
}

// Option configures Build.
type Option func(*Report)

// WithID sets the report identifier instead of a random one.
func WithID(id string) Option {
	return func(r *Report) { r.ID = id }
}

// WithTime sets the generation time.
func WithTime(t time.Time) Option {
	return func(r *Report) { r.Generated = t }
}

// Build aggregates file results and whole-program findings into a report.
// Program findings are attached to the file named by their File field.
func Build(root string, files []models.FileResult, program []models.Finding, opts ...Option) *Report {
	r := &Report{
		ID:        uuid.NewString(),
		Generated: time.Now(),
		Root:      root,
	}
	for _, opt := range opts {
		opt(r)
	}

	extra := make(map[string][]models.Finding)
	for _, f := range program {
		extra[f.File] = append(extra[f.File], f)
	}

	byResource := make(map[string]*ResourceReport)
	patterns := make(map[string]*Issue)
	impacts := make(map[models.Impact]int)
	var counts, lines []float64

	record := func(res *ResourceReport, fr *FileReport, f models.Finding) {
		fr.Entries = append(fr.Entries, entryOf(f))
		r.Summary.add(f.Severity)
		res.Summary.add(f.Severity)
		impacts[models.ImpactOf(f.Pattern)]++
		issue, ok := patterns[f.Pattern]
		if !ok {
			issue = &Issue{Pattern: f.Pattern, Severity: f.Severity, Impact: models.ImpactOf(f.Pattern)}
			patterns[f.Pattern] = issue
		}
		issue.Count++
	}

	for _, file := range files {
		r.Summary.Files++
		switch file.Status {
		case models.StatusParseError:
			r.Summary.ParseErrors++
		case models.StatusTimeout:
			r.Summary.Timeouts++
		case models.StatusError:
			r.Summary.Errors++
		}

		findings := append(append([]models.Finding(nil), file.Findings...), extra[file.Path]...)
		delete(extra, file.Path)

		name := file.Resource
		if name == "" {
			name = "(direct)"
		}
		res, ok := byResource[name]
		if !ok {
			res = &ResourceReport{Name: name}
			byResource[name] = res
		}
		res.Summary.Files++

		fr := FileReport{Path: file.Path, Lines: file.Lines, Status: file.Status, Error: file.Error}
		for _, f := range findings {
			record(res, &fr, f)
		}
		sortEntries(fr.Entries)
		if len(fr.Entries) > 0 {
			r.Summary.FilesWithIssues++
			res.Summary.FilesWithIssues++
		}
		if len(fr.Entries) > 0 || file.Status != models.StatusOK {
			res.Files = append(res.Files, fr)
		}
		if file.Status == models.StatusOK {
			counts = append(counts, float64(len(fr.Entries)))
			lines = append(lines, float64(file.Lines))
		}
	}

	// Program findings for files that were not part of the run.
	for path, findings := range extra {
		res, ok := byResource["(program)"]
		if !ok {
			res = &ResourceReport{Name: "(program)"}
			byResource["(program)"] = res
		}
		fr := FileReport{Path: path, Status: models.StatusOK}
		for _, f := range findings {
			record(res, &fr, f)
		}
		sortEntries(fr.Entries)
		res.Files = append(res.Files, fr)
	}

	for _, impact := range models.Impacts {
		r.Impact = append(r.Impact, ImpactCount{Impact: impact, Count: impacts[impact]})
	}

	for _, issue := range patterns {
		r.Patterns = append(r.Patterns, *issue)
	}
	sort.Slice(r.Patterns, func(i, j int) bool { return r.Patterns[i].Pattern < r.Patterns[j].Pattern })
	r.TopIssues = append([]Issue(nil), r.Patterns...)
	sort.SliceStable(r.TopIssues, func(i, j int) bool { return r.TopIssues[i].Count > r.TopIssues[j].Count })
	if len(r.TopIssues) > TopIssueLimit {
		r.TopIssues = r.TopIssues[:TopIssueLimit]
	}

	for _, res := range byResource {
		if len(res.Files) == 0 {
			continue
		}
		sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].Path < res.Files[j].Path })
		r.Resources = append(r.Resources, *res)
	}
	// Resources with the most issues first.
	sort.Slice(r.Resources, func(i, j int) bool {
		a, b := r.Resources[i], r.Resources[j]
		if a.Summary.Total != b.Summary.Total {
			return a.Summary.Total > b.Summary.Total
		}
		return a.Name < b.Name
	})

	r.Density = density(counts, lines)
	return r
}

func entryOf(f models.Finding) Entry {
	return Entry{
		Line:        f.Line,
		Pattern:     f.Pattern,
		Severity:    f.Severity,
		Impact:      models.ImpactOf(f.Pattern),
		Description: f.Message,
		SourceLine:  f.SourceLine,
		Details:     f.Details,
	}
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Line != entries[j].Line {
			return entries[i].Line < entries[j].Line
		}
		return entries[i].Pattern < entries[j].Pattern
	})
}

// density computes per-file statistics from finding counts and file lengths.
func density(counts, lines []float64) Density {
	var d Density
	if len(counts) == 0 {
		return d
	}
	d.MeanPerFile = stat.Mean(counts, nil)
	if len(counts) > 1 {
		d.StdDevPerFile = stat.StdDev(counts, nil)
	}
	sorted := append([]float64(nil), counts...)
	sort.Float64s(sorted)
	d.P90PerFile = stat.Quantile(0.9, stat.Empirical, sorted, nil)

	var total, totalLines float64
	for i := range counts {
		total += counts[i]
		totalLines += lines[i]
	}
	if totalLines > 0 {
		d.PerHundredLines = total / totalLines * 100
	}
	if len(counts) > 1 {
		if c := stat.Correlation(lines, counts, nil); !math.IsNaN(c) {
			d.SizeCorrelation = c
		}
	}
	return d
}
