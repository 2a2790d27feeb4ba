package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/panbanda/luafix/pkg/models"
)

// WriteText writes the plain text form of the report.
func WriteText(w io.Writer, rep *Report) error {
	bw := bufio.NewWriter(w)
	rule := strings.Repeat("=", 72)

	fmt.Fprintln(bw, "FiveM Lua analysis report")
	fmt.Fprintln(bw, rule)
	fmt.Fprintf(bw, "Root:      %s\n", rep.Root)
	fmt.Fprintf(bw, "Generated: %s\n", rep.Generated.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(bw, "Report ID: %s\n\n", rep.ID)

	fmt.Fprintln(bw, "SUMMARY")
	fmt.Fprintf(bw, "  Files analyzed:    %d\n", rep.Summary.Files)
	fmt.Fprintf(bw, "  Files with issues: %d\n", rep.Summary.FilesWithIssues)
	if rep.Summary.ParseErrors > 0 || rep.Summary.Timeouts > 0 || rep.Summary.Errors > 0 {
		fmt.Fprintf(bw, "  Parse errors: %d  Timeouts: %d  Errors: %d\n",
			rep.Summary.ParseErrors, rep.Summary.Timeouts, rep.Summary.Errors)
	}
	fmt.Fprintf(bw, "  Total issues:      %d\n", rep.Summary.Total)
	for _, sev := range models.Severities {
		fmt.Fprintf(bw, "  %-6s (%s): %d\n", sev, sev.Label(), rep.Summary.Count(sev))
	}
	fmt.Fprintln(bw)

	fmt.Fprintln(bw, "PERFORMANCE IMPACT")
	for _, ic := range rep.Impact {
		fmt.Fprintf(bw, "  %-9s %d\n", ic.Impact, ic.Count)
	}
	fmt.Fprintln(bw)

	if len(rep.TopIssues) > 0 {
		fmt.Fprintln(bw, "TOP ISSUES")
		for _, issue := range rep.TopIssues {
			fmt.Fprintf(bw, "  %5d  %-36s %-6s %s\n", issue.Count, issue.Pattern, issue.Severity, issue.Impact)
		}
		fmt.Fprintln(bw)
	}

	d := rep.Density
	fmt.Fprintln(bw, "DENSITY")
	fmt.Fprintf(bw, "  Findings per file: mean %.2f, stddev %.2f, p90 %.0f\n", d.MeanPerFile, d.StdDevPerFile, d.P90PerFile)
	fmt.Fprintf(bw, "  Findings per 100 lines: %.2f\n", d.PerHundredLines)
	fmt.Fprintf(bw, "  Size correlation: %.2f\n\n", d.SizeCorrelation)

	for _, res := range rep.Resources {
		fmt.Fprintln(bw, rule)
		fmt.Fprintf(bw, "RESOURCE: %s (%d issues)\n", res.Name, res.Summary.Total)
		fmt.Fprintln(bw, rule)
		for _, file := range res.Files {
			fmt.Fprintf(bw, "\n  %s\n", file.Path)
			if file.Status != models.StatusOK {
				fmt.Fprintf(bw, "    %s: %s\n", file.Status, file.Error)
			}
			for _, e := range file.Entries {
				fmt.Fprintf(bw, "    [%s] L%d: %s\n", e.Severity, e.Line, e.Pattern)
				fmt.Fprintf(bw, "        %s\n", e.Description)
				if details := FormatDetails(e.Details); details != "" {
					fmt.Fprintf(bw, "        %s\n", details)
				}
			}
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}
