package models

import "time"

// FileStatus is the processing outcome of one file.
type FileStatus string

const (
	StatusOK         FileStatus = "ok"
	StatusParseError FileStatus = "parse_error"
	StatusTimeout    FileStatus = "timeout"
	StatusError      FileStatus = "error"
	StatusSkipped    FileStatus = "skipped"
)

// FileResult is the analysis (and optional fix) result for one file.
type FileResult struct {
	Resource string     `json:"resource"`
	Path     string     `json:"path"`
	Status   FileStatus `json:"status"`
	Error    string     `json:"error,omitempty"`
	Findings []Finding  `json:"findings"`
	Lines    int        `json:"lines,omitempty"`
	Modified bool       `json:"modified,omitempty"`
	Edits    int        `json:"edits,omitempty"`
	// Diff holds a unified diff when fixes ran in dry-run mode.
	Diff     string        `json:"diff,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Cached   bool          `json:"cached,omitempty"`
}

// RunStats summarizes a run over many files.
type RunStats struct {
	FilesAnalyzed   int              `json:"files_analyzed"`
	FilesWithIssues int              `json:"files_with_issues"`
	FilesSkipped    int              `json:"files_skipped"`
	ParseErrors     int              `json:"parse_errors"`
	Timeouts        int              `json:"timeouts"`
	FilesModified   int              `json:"files_modified"`
	TotalEdits      int              `json:"total_edits"`
	TotalFindings   int              `json:"total_findings"`
	BySeverity      map[Severity]int `json:"by_severity"`
	ByPattern       map[string]int   `json:"by_pattern"`
	Duration        time.Duration    `json:"duration_ns"`
}

// NewRunStats creates initialized stats.
func NewRunStats() RunStats {
	return RunStats{
		BySeverity: make(map[Severity]int),
		ByPattern:  make(map[string]int),
	}
}

// Add folds one file result into the stats.
func (s *RunStats) Add(r FileResult) {
	switch r.Status {
	case StatusParseError:
		s.ParseErrors++
		return
	case StatusTimeout:
		s.Timeouts++
		s.FilesSkipped++
		return
	case StatusSkipped, StatusError:
		s.FilesSkipped++
		return
	}
	s.FilesAnalyzed++
	if len(r.Findings) > 0 {
		s.FilesWithIssues++
	}
	if r.Modified {
		s.FilesModified++
	}
	s.TotalEdits += r.Edits
	for _, f := range r.Findings {
		s.TotalFindings++
		s.BySeverity[f.Severity]++
		s.ByPattern[f.Pattern]++
	}
}

// String methods for toon serialization, which uses fmt.Stringer.

func (s Severity) String() string   { return string(s) }
func (i Impact) String() string     { return string(i) }
func (s FileStatus) String() string { return string(s) }
