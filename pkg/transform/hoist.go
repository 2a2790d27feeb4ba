package transform

import (
	"sort"
	"strings"

	"github.com/panbanda/luafix/pkg/luaast"
	"github.com/panbanda/luafix/pkg/models"
)

// globalCacheName returns the local a cached global is bound to:
// g_name for bare globals and module_func for module functions.
func globalCacheName(name string) string {
	if module, fn, ok := strings.Cut(name, "."); ok {
		return module + "_" + strings.ReplaceAll(fn, ".", "_")
	}
	return "g_" + name
}

// usesName reports whether any Name node under root is called name.
func usesName(root luaast.Node, name string) bool {
	found := false
	luaast.Inspect(root, func(n luaast.Node) bool {
		if v, ok := n.(*luaast.Name); ok && v.ID == name {
			found = true
		}
		return !found
	})
	return found
}

// headerLine returns the last line of a function header, the line the
// parameter list closes on.
func headerLine(scope *models.ScopeRef) int {
	line := scope.StartLine
	for _, prm := range functionParams(scope.Node) {
		if l := prm.Pos().EndLine; l > line {
			line = l
		}
	}
	return line
}

// bodyIndent returns the indentation of the first body line of a function
// whose header ends on header, or the header indentation plus one tab.
func (p *planner) bodyIndent(header, endLine int) string {
	base := p.lines.Indent(header)
	for n := header + 1; n < endLine && p.lines.Valid(n); n++ {
		if strings.TrimSpace(p.lines.Text(n)) == "" {
			continue
		}
		if indent := p.lines.Indent(n); len(indent) > len(base) {
			return indent
		}
		break
	}
	return base + "\t"
}

// cacheGlobals declares a local alias for each uncached global at the top of
// the function and calls the alias instead. A global is skipped when its
// alias name is already used in the function.
func (p *planner) cacheGlobals(f models.Finding) []Edit {
	scope := f.Refs.Scope
	if scope.IsGlobal() || luaast.FunctionBody(scope.Node) == nil {
		return nil
	}
	header := headerLine(scope)
	if header >= scope.EndLine || !p.lines.Valid(header) {
		return nil
	}
	code, _ := splitComment(p.lines.Text(header))
	if !strings.HasSuffix(strings.TrimSpace(code), ")") {
		return nil
	}

	names := make([]string, 0, len(f.Refs.Calls))
	for name := range f.Refs.Calls {
		names = append(names, name)
	}
	sort.Strings(names)

	var edits []Edit
	var decls []string
	for _, name := range names {
		alias := globalCacheName(name)
		if usesName(scope.Node, alias) {
			continue
		}
		var repl []Edit
		for _, ref := range f.Refs.Calls[name] {
			call, ok := ref.Node.(*luaast.Call)
			if !ok || luaast.DottedName(call.Func) != name || ref.Line <= header {
				repl = nil
				break
			}
			repl = append(repl, Edit{
				Start:    call.Func.Pos().Start,
				End:      call.Func.Pos().End,
				Text:     alias,
				Priority: PriorityReplace,
				Pattern:  f.Pattern,
			})
		}
		if len(repl) == 0 {
			continue
		}
		decls = append(decls, "local "+alias+" = "+name)
		edits = append(edits, repl...)
	}
	if len(decls) == 0 {
		return nil
	}

	at, _ := p.lines.End(header)
	indent := p.bodyIndent(header, scope.EndLine)
	var b strings.Builder
	for _, d := range decls {
		b.WriteString("\n" + indent + d)
	}
	return append(edits, Edit{Start: at, End: at, Text: b.String(), Priority: PriorityInsert, Pattern: f.Pattern})
}

// hoistRepeated caches a repeated expensive call in a local declared before
// the statement holding its first occurrence, then replaces the occurrences
// with the local. When the first occurrence already is `local name = call()`
// that declaration is reused.
//
// The declaration goes into the innermost block containing every occurrence.
// When the first occurrence itself sits in a loop or branch inside that
// block, the declaration moves to the top of the function instead, which is
// refused for method calls. Otherwise hoisting is refused when a later
// occurrence sits in a loop inside that block or when a method call or a
// call with arguments would move out of a conditional. It is also refused
// when an argument may change, or the thread may yield, between the
// declaration and the last occurrence.
func (p *planner) hoistRepeated(f models.Finding) []Edit {
	scope := f.Refs.Scope
	if scope.IsGlobal() {
		return nil
	}
	body := luaast.FunctionBody(scope.Node)
	if body == nil {
		return nil
	}
	var refs []models.CallRef
	for _, r := range f.Refs.Calls {
		refs = append(refs, r...)
	}
	if len(refs) < 2 {
		return nil
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Node.Pos().Start < refs[j].Node.Pos().Start })

	callText := p.text(refs[0].Node)
	for _, r := range refs[1:] {
		if p.text(r.Node) != callText {
			return nil
		}
	}

	name := f.DetailString("cache_name")
	invoke, isInvoke := refs[0].Node.(*luaast.Invoke)
	if name == "" && isInvoke {
		src := strings.ReplaceAll(luaast.DottedName(invoke.Source), ".", "_")
		if src == "" {
			return nil
		}
		name = src + "_" + invoke.Method.ID
	}
	if name == "" {
		return nil
	}

	paths := make([][]luaast.Node, len(refs))
	for i, r := range refs {
		paths[i] = luaast.Path(body, r.Node)
		if paths[i] == nil {
			return nil
		}
	}
	blockAt := commonBlock(paths)
	if blockAt < 0 {
		return nil
	}
	block := paths[0][blockAt].(*luaast.Block)
	if loop, conditional := crossings(paths[0][blockAt:]); loop || conditional {
		if isInvoke {
			return nil
		}
		return p.hoistToTop(f, body, refs, name, callText)
	}
	hasArgs := len(callArgs(refs[0].Node)) > 0
	for _, path := range paths[1:] {
		loop, conditional := crossings(path[blockAt:])
		if loop || (conditional && (isInvoke || hasArgs)) {
			return nil
		}
	}

	first := paths[0][blockAt+1]
	from := first.Pos().Start
	to := refs[len(refs)-1].Node.Pos().End
	if rebound(block, callArgs(refs[0].Node), from, to) || yields(block, from, to) {
		return nil
	}

	var edits []Edit
	replaceFrom := 0
	if decl := reusableDecl(first, refs[0].Node, name); decl != nil {
		if reboundName(scope.Node, name, decl) {
			return nil
		}
		replaceFrom = 1
	} else {
		if usesName(scope.Node, name) || !p.ownsLineStart(first) {
			return nil
		}
		at, _ := p.lines.Start(first.Pos().Line)
		indent := p.lines.Indent(first.Pos().Line)
		edits = append(edits, Edit{
			Start:    at,
			End:      at,
			Text:     indent + "local " + name + " = " + callText + "\n",
			Priority: PriorityInsert,
			Pattern:  f.Pattern,
		})
	}
	for _, r := range refs[replaceFrom:] {
		edits = append(edits, replace(r.Node, name, f))
	}
	return edits
}

// hoistToTop declares the cache right after the function header and
// replaces every occurrence.
func (p *planner) hoistToTop(f models.Finding, body *luaast.Block, refs []models.CallRef, name, callText string) []Edit {
	scope := f.Refs.Scope
	header := headerLine(scope)
	if header >= scope.EndLine || !p.lines.Valid(header) || usesName(scope.Node, name) {
		return nil
	}
	code, _ := splitComment(p.lines.Text(header))
	if !strings.HasSuffix(strings.TrimSpace(code), ")") {
		return nil
	}
	from := body.Pos().Start
	to := refs[len(refs)-1].Node.Pos().End
	if rebound(body, callArgs(refs[0].Node), from, to) || yields(body, from, to) {
		return nil
	}

	at, _ := p.lines.End(header)
	edits := []Edit{{
		Start:    at,
		End:      at,
		Text:     "\n" + p.bodyIndent(header, scope.EndLine) + "local " + name + " = " + callText,
		Priority: PriorityInsert,
		Pattern:  f.Pattern,
	}}
	for _, r := range refs {
		edits = append(edits, replace(r.Node, name, f))
	}
	return edits
}

func callArgs(n luaast.Node) []luaast.Node {
	switch v := n.(type) {
	case *luaast.Call:
		return v.Args
	case *luaast.Invoke:
		return v.Args
	}
	return nil
}

// commonBlock returns the index of the deepest Block shared by every path
// that still has a statement below it on each path, or -1.
func commonBlock(paths [][]luaast.Node) int {
	shortest := len(paths[0])
	for _, p := range paths[1:] {
		if len(p) < shortest {
			shortest = len(p)
		}
	}
	found := -1
	for i := 0; i < shortest-1; i++ {
		n := paths[0][i]
		for _, p := range paths[1:] {
			if p[i] != n {
				return found
			}
		}
		if _, ok := n.(*luaast.Block); ok {
			found = i
		}
	}
	return found
}

// crossings reports whether the path below a block enters a loop, and whether
// it enters code that only runs conditionally: an if branch, an elseif, or
// the right operand of and/or.
func crossings(path []luaast.Node) (loop, conditional bool) {
	for i := 0; i < len(path)-1; i++ {
		next := path[i+1]
		switch v := path[i].(type) {
		case *luaast.While, *luaast.Repeat, *luaast.ForNum, *luaast.ForIn:
			loop = true
		case *luaast.If:
			if next != v.Test {
				conditional = true
			}
		case *luaast.BinOp:
			if (v.Op == "and" || v.Op == "or") && next == v.Right {
				conditional = true
			}
		}
	}
	return loop, conditional
}

// rebound reports whether a name read by args is declared or assigned within
// block between the offsets from and to.
func rebound(block *luaast.Block, args []luaast.Node, from, to int) bool {
	names := make(map[string]bool)
	for _, a := range args {
		luaast.Inspect(a, func(n luaast.Node) bool {
			if v, ok := n.(*luaast.Name); ok {
				names[v.ID] = true
			}
			return true
		})
	}
	if len(names) == 0 {
		return false
	}
	hit := false
	luaast.Inspect(block, func(n luaast.Node) bool {
		if hit {
			return false
		}
		pos := n.Pos()
		if pos.End < from || pos.Start > to {
			return true
		}
		for _, t := range boundNames(n) {
			if names[t.ID] && t.Pos().Start >= from && t.Pos().Start <= to {
				hit = true
			}
		}
		return true
	})
	return hit
}

// boundNames returns the names a statement declares or assigns.
func boundNames(n luaast.Node) []*luaast.Name {
	switch v := n.(type) {
	case *luaast.LocalAssign:
		return v.Targets
	case *luaast.LocalFunction:
		return []*luaast.Name{v.Name}
	case *luaast.ForNum:
		return []*luaast.Name{v.Var}
	case *luaast.ForIn:
		return v.Targets
	case *luaast.Assign:
		var out []*luaast.Name
		for _, t := range v.Targets {
			if name, ok := t.(*luaast.Name); ok {
				out = append(out, name)
			}
		}
		return out
	}
	return nil
}

// reusableDecl returns stmt when it is `local name = call`.
func reusableDecl(stmt, call luaast.Node, name string) *luaast.LocalAssign {
	decl, ok := stmt.(*luaast.LocalAssign)
	if !ok || len(decl.Targets) != 1 || len(decl.Values) != 1 {
		return nil
	}
	if decl.Targets[0].ID != name || decl.Values[0] != call {
		return nil
	}
	return decl
}

// reboundName reports whether name is bound anywhere in fn other than by
// decl, including as a parameter.
func reboundName(fn luaast.Node, name string, decl *luaast.LocalAssign) bool {
	hit := false
	luaast.Inspect(fn, func(n luaast.Node) bool {
		if hit {
			return false
		}
		if n == decl {
			return true
		}
		for _, t := range boundNames(n) {
			if t.ID == name {
				hit = true
			}
		}
		return true
	})
	if hit {
		return true
	}
	for _, prm := range functionParams(fn) {
		if prm.ID == name {
			return true
		}
	}
	return false
}

func functionParams(n luaast.Node) []*luaast.Name {
	switch fn := n.(type) {
	case *luaast.Function:
		return fn.Params
	case *luaast.LocalFunction:
		return fn.Params
	case *luaast.Method:
		return fn.Params
	case *luaast.AnonFunction:
		return fn.Params
	}
	return nil
}

// ownsLineStart reports whether only whitespace precedes n on its line.
func (p *planner) ownsLineStart(n luaast.Node) bool {
	start, ok := p.lines.Start(n.Pos().Line)
	if !ok || n.Pos().Start < start {
		return false
	}
	return strings.TrimSpace(string(p.src[start:n.Pos().Start])) == ""
}

// yieldingCalls suspend the running thread; values read before them may be
// stale afterwards.
var yieldingCalls = map[string]bool{"Wait": true, "Citizen.Wait": true, "Citizen.Await": true, "coroutine.yield": true}

// yields reports whether block calls a yielding function between the
// offsets from and to.
func yields(block *luaast.Block, from, to int) bool {
	hit := false
	luaast.Inspect(block, func(n luaast.Node) bool {
		if hit {
			return false
		}
		if call, ok := n.(*luaast.Call); ok && yieldingCalls[luaast.DottedName(call.Func)] {
			pos := call.Pos()
			hit = pos.Start >= from && pos.End <= to
		}
		return true
	})
	return hit
}
