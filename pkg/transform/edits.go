package transform

import (
	"strings"

	"github.com/panbanda/luafix/pkg/luaast"
	"github.com/panbanda/luafix/pkg/models"
	"github.com/panbanda/luafix/pkg/source"
)

// planner generates the edits for the findings of one file.
type planner struct {
	src   []byte
	lines *source.Lines
	chunk *luaast.Chunk
	opts  Options
}

func (p *planner) text(n luaast.Node) string {
	return n.Pos().Text(p.src)
}

// singleCall returns the only call captured by a per-call finding.
func singleCall(f models.Finding) (models.CallRef, bool) {
	for _, refs := range f.Refs.Calls {
		if len(refs) == 1 && refs[0].Node != nil {
			return refs[0], true
		}
	}
	return models.CallRef{}, false
}

func replace(n luaast.Node, text string, f models.Finding) Edit {
	span := n.Pos()
	return Edit{Start: span.Start, End: span.End, Text: text, Priority: PriorityReplace, Pattern: f.Pattern}
}

// tableInsert rewrites the statement table.insert(t, v) into t[#t+1] = v.
// The table must be a name or a dotted name so that it is evaluated the same
// way twice.
func (p *planner) tableInsert(f models.Finding) []Edit {
	ref, ok := singleCall(f)
	if !ok || !ref.Statement {
		return nil
	}
	call, ok := ref.Node.(*luaast.Call)
	if !ok || len(call.Args) != 2 || luaast.DottedName(call.Args[0]) == "" {
		return nil
	}
	args := splitArgs(p.text(call))
	if len(args) != 2 || args[0] == "" || args[1] == "" {
		return nil
	}
	table := args[0]
	return []Edit{replace(call, table+"[#"+table+"+1] = "+args[1], f)}
}

// length rewrites table.getn(x) and string.len(x) into #x.
func (p *planner) length(f models.Finding) []Edit {
	ref, ok := singleCall(f)
	if !ok || ref.Prefix {
		return nil
	}
	call, ok := ref.Node.(*luaast.Call)
	if !ok || len(call.Args) != 1 {
		return nil
	}
	arg := p.text(call.Args[0])
	if arg == "" {
		return nil
	}
	switch call.Args[0].(type) {
	case *luaast.String, *luaast.Table:
	default:
		if !isPrefixExpr(call.Args[0]) {
			arg = "(" + arg + ")"
		}
	}
	text := "#" + arg
	if ref.Operator == "^" {
		text = "(" + text + ")"
	}
	return []Edit{replace(call, text, f)}
}

// isPrefixExpr reports whether n binds at least as tightly as any operator.
func isPrefixExpr(n luaast.Node) bool {
	switch n.(type) {
	case *luaast.Name, *luaast.Index, *luaast.Call, *luaast.Invoke, *luaast.Paren:
		return true
	}
	return false
}

var tightOperators = map[string]bool{"^": true, "*": true, "/": true, "//": true, "%": true, "not": true, "#": true, "~": true}

// mathPow rewrites math.pow(x, n) into repeated multiplication for small
// integer exponents and into x^0.5 for square roots.
func (p *planner) mathPow(f models.Finding) []Edit {
	ref, ok := singleCall(f)
	if !ok || ref.Prefix {
		return nil
	}
	call, ok := ref.Node.(*luaast.Call)
	if !ok || len(call.Args) != 2 {
		return nil
	}
	base := p.text(call.Args[0])
	if base == "" {
		return nil
	}

	var text string
	switch f.DetailString("type") {
	case "power":
		n := f.DetailInt("exponent")
		if n < 2 {
			return nil
		}
		text = strings.TrimSuffix(strings.Repeat(base+"*", n), "*")
		if tightOperators[ref.Operator] {
			text = "(" + text + ")"
		}
	case "sqrt":
		switch call.Args[0].(type) {
		case *luaast.Name, *luaast.Number:
		default:
			if !isPrefixExpr(call.Args[0]) {
				base = "(" + base + ")"
			}
		}
		text = base + "^0.5"
		if ref.Operator == "^" {
			text = "(" + text + ")"
		}
	default:
		return nil
	}
	return []Edit{replace(call, text, f)}
}

// commentOut turns a debug call statement into comments, one "-- " per
// spanned line. The call must own its lines and no spanned line may hold
// control flow.
func (p *planner) commentOut(f models.Finding) []Edit {
	ref, ok := singleCall(f)
	if !ok || !ref.Statement {
		return nil
	}
	span := ref.Node.Pos()
	first, last := span.Line, span.EndLine
	if !p.lines.Valid(first) || !p.lines.Valid(last) {
		return nil
	}
	if !p.ownsLines(span) || p.continuesPrevious(first) {
		return nil
	}

	var b strings.Builder
	for n := first; n <= last; n++ {
		raw := p.lines.Raw(n)
		line := strings.TrimRight(raw, "\r\n")
		if hasControlFlow(line) {
			return nil
		}
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "--") || trimmed == "" {
			b.WriteString(raw)
			continue
		}
		b.WriteString(source.LeadingSpace(line) + "-- " + trimmed + raw[len(line):])
	}
	start, _, _ := p.lines.Span(first)
	_, end, _ := p.lines.Span(last)
	return []Edit{{Start: start, End: end, Text: b.String(), Priority: PriorityDebug, Pattern: f.Pattern}}
}

// ownsLines reports whether span has only whitespace before it on its first
// line and only whitespace, a semicolon or a comment after it on its last.
func (p *planner) ownsLines(span luaast.Span) bool {
	lineStart, _ := p.lines.Start(span.Line)
	if strings.TrimSpace(string(p.src[lineStart:span.Start])) != "" {
		return false
	}
	lineEnd, _ := p.lines.End(span.EndLine)
	if span.End > lineEnd {
		return false
	}
	rest := strings.TrimSpace(string(p.src[span.End:lineEnd]))
	rest = strings.TrimSpace(strings.TrimPrefix(rest, ";"))
	return rest == "" || strings.HasPrefix(rest, "--")
}

// continuesPrevious reports whether the nearest non-blank line above line
// leaves an expression open.
func (p *planner) continuesPrevious(line int) bool {
	for n := line - 1; n >= 1; n-- {
		text := strings.TrimSpace(p.lines.Text(n))
		if text == "" {
			continue
		}
		return continuesExpression(text)
	}
	return false
}

// removeDead deletes the statements of a dead-code finding. Whole lines are
// removed when the statements own them; otherwise only their bytes are.
func (p *planner) removeDead(f models.Finding) []Edit {
	nodes := f.Refs.Nodes
	if len(nodes) == 0 && f.Refs.Node != nil {
		nodes = []luaast.Node{f.Refs.Node}
	}
	if len(nodes) == 0 {
		return nil
	}
	span := luaast.Span{
		Start:   nodes[0].Pos().Start,
		End:     nodes[len(nodes)-1].Pos().End,
		Line:    nodes[0].Pos().Line,
		EndLine: nodes[len(nodes)-1].Pos().EndLine,
	}
	if span.Start >= span.End || span.End > len(p.src) {
		return nil
	}
	if !p.lines.Valid(span.Line) || !p.lines.Valid(span.EndLine) {
		return nil
	}

	start, end := span.Start, span.End
	lineStart, _ := p.lines.Start(span.Line)
	lineEnd, _ := p.lines.End(span.EndLine)
	if strings.TrimSpace(string(p.src[lineStart:span.Start])) == "" &&
		strings.TrimSpace(string(p.src[span.End:lineEnd])) == "" {
		_, spanEnd, _ := p.lines.Span(span.EndLine)
		start, end = lineStart, spanEnd
	}
	return []Edit{{Start: start, End: end, Priority: PriorityDeadCode, Pattern: f.Pattern}}
}

// nilGuard wraps the access line of a nil access in `if var then ... end`.
func (p *planner) nilGuard(f models.Finding) []Edit {
	name := f.DetailString("var_name")
	line := f.Line
	if name == "" || !p.lines.Valid(line) {
		return nil
	}
	if n := f.Refs.Node; n != nil && n.Pos().Line != n.Pos().EndLine {
		return nil
	}
	text := p.lines.Text(line)
	code, comment := splitComment(text)
	stmt := strings.TrimSpace(code)
	if stmt == "" || !balanced(stmt) || hasControlFlow(stmt) {
		return nil
	}
	if strings.HasPrefix(stmt, "local ") || strings.HasPrefix(stmt, "local\t") {
		return nil
	}
	if continuesExpression(stmt) || p.continuesPrevious(line) {
		return nil
	}
	if p.lines.Valid(line+1) && usesDirectly(strings.TrimSpace(p.lines.Text(line+1)), name) {
		return nil
	}

	wrapped := source.LeadingSpace(text) + "if " + name + " then " + stmt + " end"
	if comment != "" {
		wrapped += " " + comment
	}
	start, _ := p.lines.Start(line)
	end := start + len(text)
	return []Edit{{Start: start, End: end, Text: wrapped, Priority: PriorityNilGuard, Pattern: f.Pattern}}
}

// usesDirectly reports whether stmt starts with an access on name such as
// name:m(), name.f, name[k] or name(...).
func usesDirectly(stmt, name string) bool {
	if !strings.HasPrefix(stmt, name) {
		return false
	}
	rest := strings.TrimLeft(stmt[len(name):], " \t")
	return rest != "" && strings.ContainsRune(":.[(", rune(rest[0]))
}
