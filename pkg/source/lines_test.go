package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLines(t *testing.T) {
	l := NewLines([]byte("a\r\n  b\n\nc"))

	assert.Equal(t, 4, l.Count())
	assert.True(t, l.Valid(4))
	assert.False(t, l.Valid(0))
	assert.False(t, l.Valid(5))

	assert.Equal(t, "a", l.Text(1))
	assert.Equal(t, "a\r\n", l.Raw(1))
	assert.Equal(t, "  b", l.Text(2))
	assert.Equal(t, "  ", l.Indent(2))
	assert.Empty(t, l.Text(3))
	assert.Equal(t, "c", l.Text(4))

	start, end, ok := l.Span(2)
	assert.True(t, ok)
	assert.Equal(t, 3, start)
	assert.Equal(t, 7, end)
	lineEnd, _ := l.End(2)
	assert.Equal(t, 6, lineEnd)
	lastEnd, _ := l.End(4)
	assert.Equal(t, 9, lastEnd)

	assert.Equal(t, 1, l.LineOf(0))
	assert.Equal(t, 1, l.LineOf(2))
	assert.Equal(t, 2, l.LineOf(3))
	assert.Equal(t, 4, l.LineOf(8))
}

func TestLinesTrailingNewline(t *testing.T) {
	l := NewLines([]byte("x\ny\n"))
	assert.Equal(t, 2, l.Count())
	assert.True(t, l.Valid(3), "the empty tail still addresses a position")
	assert.Empty(t, l.Raw(3))
}

func TestLeadingSpace(t *testing.T) {
	assert.Equal(t, "\t  ", LeadingSpace("\t  x = 1"))
	assert.Empty(t, LeadingSpace("x"))
	assert.Equal(t, "  ", LeadingSpace("  "))
}
