// Package deadcode finds unreachable statements, never-executing branches and
// unused locals in a Lua syntax tree.
package deadcode

import (
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/panbanda/luafix/pkg/analyzer/catalog"
	"github.com/panbanda/luafix/pkg/luaast"
	"github.com/panbanda/luafix/pkg/models"
	"github.com/panbanda/luafix/pkg/source"
)

// Dead code kinds, also used as the dead_type detail.
const (
	KindAfterReturn = "after_return"
	KindAfterBreak  = "after_break"
	KindIfFalse     = "if_false"
	KindWhileFalse  = "while_false"
)

const (
	globalScopeName  = "<global>"
	unknownScopeName = "<unknown>"
	previewLines     = 3
)

// Detector runs the dead code walks. It is stateless and safe for
// concurrent use.
type Detector struct {
	catalog *catalog.Catalog
}

// New creates a detector. A nil catalog selects the built-in one.
func New(c *catalog.Catalog) *Detector {
	if c == nil {
		c = catalog.Default()
	}
	return &Detector{catalog: c}
}

// Result holds the findings and the set of lines inside removable dead code.
type Result struct {
	Findings  []models.Finding
	DeadLines *roaring.Bitmap
}

type run struct {
	d      *Detector
	lines  *source.Lines
	result Result
}

// Detect walks chunk and returns dead code findings in a fixed order: code
// after return, code after break, if false, while false, unused locals and
// unused local functions.
func (d *Detector) Detect(chunk *luaast.Chunk, lines *source.Lines) Result {
	r := &run{d: d, lines: lines, result: Result{DeadLines: roaring.New()}}
	if chunk == nil || chunk.Body == nil {
		return r.result
	}
	r.terminators(chunk.Body, KindAfterReturn)
	r.terminators(chunk.Body, KindAfterBreak)
	r.falseConditions(chunk, KindIfFalse)
	r.falseConditions(chunk, KindWhileFalse)
	r.unusedLocals(chunk)
	r.unusedFunctions(chunk)
	return r.result
}

func (r *run) sourceLine(line int) string {
	if !r.lines.Valid(line) {
		return ""
	}
	return strings.TrimRight(r.lines.Text(line), " \t")
}

func (r *run) preview(start, end int) string {
	var parts []string
	for ln := start; ln < start+previewLines && ln <= end; ln++ {
		if r.lines.Valid(ln) {
			parts = append(parts, r.sourceLine(ln))
		}
	}
	out := strings.Join(parts, "\n")
	if end > start+previewLines-1 {
		out += "\n..."
	}
	return out
}

func (r *run) markDead(start, end int) {
	if start > 0 && end >= start {
		r.result.DeadLines.AddRange(uint64(start), uint64(end)+1)
	}
}

// terminators reports statements following a return, or a break inside a
// loop, in the same statement sequence.
func (r *run) terminators(root *luaast.Block, kind string) {
	var check func(b *luaast.Block, scopeName string, inLoop bool)
	check = func(b *luaast.Block, scopeName string, inLoop bool) {
		stmts := luaast.Statements(b)
		for i, stmt := range stmts {
			if r.isTerminator(stmt, kind, inLoop) && i < len(stmts)-1 {
				if dead := reachableCut(stmts[i+1:]); len(dead) > 0 {
					r.reportTerminated(kind, scopeName, dead)
				}
			}
			r.nested(stmt, scopeName, inLoop, check)
		}
	}
	check(root, globalScopeName, false)
}

func (r *run) isTerminator(stmt luaast.Node, kind string, inLoop bool) bool {
	switch stmt.(type) {
	case *luaast.Return:
		return kind == KindAfterReturn
	case *luaast.Break:
		return kind == KindAfterBreak && inLoop
	}
	return false
}

// reachableCut drops empty statements and stops at the first label, which a
// goto can still reach.
func reachableCut(stmts []luaast.Node) []luaast.Node {
	var out []luaast.Node
	for _, s := range stmts {
		switch s.(type) {
		case *luaast.Semicolon:
			continue
		case *luaast.Label:
			return out
		}
		out = append(out, s)
	}
	return out
}

// nested recurses into every block directly owned by stmt, including the
// bodies of function expressions used inside it.
func (r *run) nested(stmt luaast.Node, scopeName string, inLoop bool, check func(*luaast.Block, string, bool)) {
	switch s := stmt.(type) {
	case *luaast.Function:
		check(s.Body, luaast.Render(s.Name), false)
	case *luaast.LocalFunction:
		check(s.Body, s.Name.ID, false)
	case *luaast.Method:
		check(s.Body, luaast.Render(s.Source)+":"+s.Name.ID, false)
	case *luaast.If:
		check(s.Body, scopeName, inLoop)
		for _, e := range s.ElseIfs {
			check(e.Body, scopeName, inLoop)
		}
		check(s.Else, scopeName, inLoop)
	case *luaast.While:
		check(s.Body, scopeName, true)
	case *luaast.Repeat:
		check(s.Body, scopeName, true)
	case *luaast.ForNum:
		check(s.Body, scopeName, true)
	case *luaast.ForIn:
		check(s.Body, scopeName, true)
	case *luaast.Do:
		check(s.Body, scopeName, inLoop)
	}
	for _, child := range luaast.Children(stmt) {
		luaast.Inspect(child, func(n luaast.Node) bool {
			switch v := n.(type) {
			case *luaast.Block:
				return false
			case *luaast.AnonFunction:
				check(v.Body, "<anonymous>", false)
				return false
			}
			return true
		})
	}
}

func (r *run) reportTerminated(kind, scopeName string, dead []luaast.Node) {
	first, last := dead[0].Pos(), dead[len(dead)-1].Pos()
	start, end := first.Line, last.EndLine
	if end < start {
		end = start
	}
	terminator := strings.TrimPrefix(kind, "after_")
	pattern := models.PatternDeadAfterReturn
	if kind == KindAfterBreak {
		pattern = models.PatternDeadAfterBreak
	}
	r.markDead(start, end)
	r.result.Findings = append(r.result.Findings, models.Finding{
		Pattern:    pattern,
		Severity:   models.SeverityGreen,
		Line:       start,
		Message:    fmt.Sprintf("Unreachable code after %s statement (lines %d-%d)", terminator, start, end),
		SourceLine: r.sourceLine(start),
		Details: map[string]any{
			"dead_type":         kind,
			"start_line":        start,
			"end_line":          end,
			"scope_name":        scopeName,
			"is_safe_to_remove": true,
			"dead_stmt_count":   len(dead),
			"code_preview":      r.preview(start, end),
		},
		Refs: &models.Refs{Node: dead[0], Nodes: dead},
	})
}

func isLiteralFalse(n luaast.Node) bool {
	switch n.(type) {
	case *luaast.False, *luaast.Nil:
		return true
	}
	return false
}

// falseConditions reports if and while statements whose condition is the
// literal false or nil. An if with elseif or else arms is reported but not
// marked removable, since the other arms may run.
func (r *run) falseConditions(chunk *luaast.Chunk, kind string) {
	luaast.Inspect(chunk, func(n luaast.Node) bool {
		var test luaast.Node
		safe := true
		typeName := "while"
		pattern := models.PatternDeadWhileFalse
		switch v := n.(type) {
		case *luaast.If:
			if kind != KindIfFalse {
				return true
			}
			test, typeName, pattern = v.Test, "if", models.PatternDeadIfFalse
			safe = len(v.ElseIfs) == 0 && v.Else == nil
		case *luaast.While:
			if kind != KindWhileFalse {
				return true
			}
			test = v.Test
		default:
			return true
		}
		if !isLiteralFalse(test) {
			return true
		}
		pos := n.Pos()
		start, end := pos.Line, pos.EndLine
		if end < start {
			end = start
		}
		if safe {
			r.markDead(start, end)
		}
		r.result.Findings = append(r.result.Findings, models.Finding{
			Pattern:    pattern,
			Severity:   models.SeverityGreen,
			Line:       start,
			Message:    fmt.Sprintf("Dead code: %s false (lines %d-%d)", typeName, start, end),
			SourceLine: r.sourceLine(start),
			Details: map[string]any{
				"dead_type":         kind,
				"start_line":        start,
				"end_line":          end,
				"scope_name":        unknownScopeName,
				"is_safe_to_remove": safe,
				"code_preview":      r.preview(start, end),
			},
			Refs: &models.Refs{Node: n, Nodes: []luaast.Node{n}},
		})
		return true
	})
}
