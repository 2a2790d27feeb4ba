package source

import (
	"sort"
	"strings"
)

// Lines indexes the lines of a source buffer. Line numbers are 1-based and
// lines are separated by '\n'.
type Lines struct {
	src    []byte
	starts []int
}

// NewLines builds a line index over src. The buffer is not copied.
func NewLines(src []byte) *Lines {
	starts := []int{0}
	for i, c := range src {
		if c == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &Lines{src: src, starts: starts}
}

// Source returns the indexed buffer.
func (l *Lines) Source() []byte { return l.src }

// Count returns the number of lines. A trailing newline does not start an
// extra line.
func (l *Lines) Count() int {
	n := len(l.starts)
	if n > 1 && l.starts[n-1] == len(l.src) {
		n--
	}
	return n
}

// Valid reports whether n addresses a line of the buffer.
func (l *Lines) Valid(n int) bool {
	return n >= 1 && n <= len(l.starts)
}

// Span returns the byte range of line n including its newline, if any.
func (l *Lines) Span(n int) (start, end int, ok bool) {
	if !l.Valid(n) {
		return 0, 0, false
	}
	start = l.starts[n-1]
	if n < len(l.starts) {
		end = l.starts[n]
	} else {
		end = len(l.src)
	}
	return start, end, true
}

// Start returns the offset of the first byte of line n.
func (l *Lines) Start(n int) (int, bool) {
	start, _, ok := l.Span(n)
	return start, ok
}

// End returns the offset just before the newline of line n.
func (l *Lines) End(n int) (int, bool) {
	_, end, ok := l.Span(n)
	if !ok {
		return 0, false
	}
	if end > 0 && end <= len(l.src) && n < len(l.starts) && l.src[end-1] == '\n' {
		end--
	}
	return end, true
}

// Raw returns line n with its line terminator.
func (l *Lines) Raw(n int) string {
	start, end, ok := l.Span(n)
	if !ok {
		return ""
	}
	return string(l.src[start:end])
}

// Text returns line n without its line terminator ("\n" or "\r\n").
func (l *Lines) Text(n int) string {
	return strings.TrimRight(l.Raw(n), "\r\n")
}

// Indent returns the leading whitespace of line n.
func (l *Lines) Indent(n int) string {
	return LeadingSpace(l.Text(n))
}

// LineOf returns the line containing offset.
func (l *Lines) LineOf(offset int) int {
	return sort.Search(len(l.starts), func(i int) bool { return l.starts[i] > offset })
}

// LeadingSpace returns the run of spaces and tabs at the start of s.
func LeadingSpace(s string) string {
	return s[:len(s)-len(strings.TrimLeft(s, " \t"))]
}
