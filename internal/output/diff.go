package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffContext is the number of unchanged lines shown around each change.
const DiffContext = 3

type diffLine struct {
	op   diffmatchpatch.Operation
	text string
}

// lineDiff returns the line-level edit script from before to after.
func lineDiff(before, after string) []diffLine {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out []diffLine
	for _, d := range diffs {
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line != "" {
				out = append(out, diffLine{op: d.Type, text: line})
			}
		}
	}
	return out
}

// UnifiedDiff returns a unified diff from before to after, or "" when they
// are equal. Both sides are labeled with path.
func UnifiedDiff(path string, before, after []byte) string {
	if string(before) == string(after) {
		return ""
	}
	ops := lineDiff(string(before), string(after))

	// oldNo and newNo hold the number of lines consumed before each op.
	oldNo := make([]int, len(ops)+1)
	newNo := make([]int, len(ops)+1)
	keep := make([]bool, len(ops))
	for i, op := range ops {
		oldNo[i+1], newNo[i+1] = oldNo[i], newNo[i]
		if op.op != diffmatchpatch.DiffInsert {
			oldNo[i+1]++
		}
		if op.op != diffmatchpatch.DiffDelete {
			newNo[i+1]++
		}
		if op.op == diffmatchpatch.DiffEqual {
			continue
		}
		for j := max(0, i-DiffContext); j <= min(len(ops)-1, i+DiffContext); j++ {
			keep[j] = true
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n+++ b/%s\n", path, path)
	for i := 0; i < len(ops); {
		if !keep[i] {
			i++
			continue
		}
		end := i
		for end < len(ops) && keep[end] {
			end++
		}
		oldCount := oldNo[end] - oldNo[i]
		newCount := newNo[end] - newNo[i]
		fmt.Fprintf(&b, "@@ -%s +%s @@\n", hunkRange(oldNo[i], oldCount), hunkRange(newNo[i], newCount))
		for _, op := range ops[i:end] {
			prefix := " "
			switch op.op {
			case diffmatchpatch.DiffDelete:
				prefix = "-"
			case diffmatchpatch.DiffInsert:
				prefix = "+"
			}
			b.WriteString(prefix)
			b.WriteString(op.text)
			if !strings.HasSuffix(op.text, "\n") {
				b.WriteString("\n\\ No newline at end of file\n")
			}
		}
		i = end
	}
	return b.String()
}

// hunkRange formats a hunk range; consumed is the number of lines before it.
func hunkRange(consumed, count int) string {
	start := consumed + 1
	if count == 0 {
		start = consumed
	}
	if count == 1 {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d,%d", start, count)
}

// WriteDiff writes a unified diff, coloring added and removed lines.
func WriteDiff(w io.Writer, diff string, colored bool) {
	for _, line := range strings.SplitAfter(diff, "\n") {
		if line == "" {
			continue
		}
		if !colored {
			io.WriteString(w, line)
			continue
		}
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			color.New(color.Bold).Fprint(w, line)
		case strings.HasPrefix(line, "@@"):
			color.New(color.FgCyan).Fprint(w, line)
		case strings.HasPrefix(line, "+"):
			color.New(color.FgGreen).Fprint(w, line)
		case strings.HasPrefix(line, "-"):
			color.New(color.FgRed).Fprint(w, line)
		default:
			io.WriteString(w, line)
		}
	}
}
