package deadcode

import (
	"fmt"
	"strings"

	"github.com/panbanda/luafix/pkg/luaast"
	"github.com/panbanda/luafix/pkg/models"
)

type localDecl struct {
	name     string
	line     int
	function bool
	loopVar  bool
	node     luaast.Node
}

// declNames collects every Name node that declares or names something
// rather than reading a variable: local targets, loop variables,
// parameters, assignment targets, field keys and method names.
func declNames(root luaast.Node) map[*luaast.Name]bool {
	out := make(map[*luaast.Name]bool)
	add := func(names ...*luaast.Name) {
		for _, n := range names {
			if n != nil {
				out[n] = true
			}
		}
	}
	luaast.Inspect(root, func(n luaast.Node) bool {
		switch v := n.(type) {
		case *luaast.LocalAssign:
			add(v.Targets...)
		case *luaast.LocalFunction:
			add(v.Name)
			add(v.Params...)
		case *luaast.Function:
			add(v.Params...)
		case *luaast.Method:
			add(v.Name)
			add(v.Params...)
		case *luaast.AnonFunction:
			add(v.Params...)
		case *luaast.ForNum:
			add(v.Var)
		case *luaast.ForIn:
			add(v.Targets...)
		case *luaast.Assign:
			for _, t := range v.Targets {
				if name, ok := t.(*luaast.Name); ok {
					add(name)
				}
			}
		case *luaast.Index:
			if key, ok := v.Key.(*luaast.Name); ok && !v.Bracket {
				add(key)
			}
		case *luaast.Invoke:
			add(v.Method)
		case *luaast.Field:
			if key, ok := v.Key.(*luaast.Name); ok && !v.Bracket {
				add(key)
			}
		}
		return true
	})
	return out
}

// reads returns the names read anywhere in the tree.
func reads(root luaast.Node, decls map[*luaast.Name]bool) map[string]bool {
	out := make(map[string]bool)
	luaast.Inspect(root, func(n luaast.Node) bool {
		if name, ok := n.(*luaast.Name); ok && !decls[name] {
			out[name.ID] = true
		}
		return true
	})
	return out
}

// callbackRegistrations returns the rendered callback argument of every
// registration call, such as AddEventHandler("x", handler).
func (r *run) callbackRegistrations(root luaast.Node) map[string]bool {
	out := make(map[string]bool)
	luaast.Inspect(root, func(n luaast.Node) bool {
		call, ok := n.(*luaast.Call)
		if !ok || len(call.Args) < 2 {
			return true
		}
		if r.d.catalog.RegistrationFuncs[luaast.Render(call.Func)] {
			if cb := luaast.Render(call.Args[1]); cb != "" {
				out[cb] = true
			}
		}
		return true
	})
	return out
}

// unusedLocals reports local variables that are never read. Names starting
// with an underscore are intentionally unused; loop variables and local
// functions are exempt. Lookups are by name across the file.
func (r *run) unusedLocals(chunk *luaast.Chunk) {
	var order []string
	decls := make(map[string]localDecl)
	record := func(d localDecl) {
		if strings.HasPrefix(d.name, "_") {
			return
		}
		if _, seen := decls[d.name]; !seen {
			order = append(order, d.name)
		}
		decls[d.name] = d
	}
	luaast.Inspect(chunk, func(n luaast.Node) bool {
		switch v := n.(type) {
		case *luaast.LocalAssign:
			for _, t := range v.Targets {
				record(localDecl{name: t.ID, line: v.Pos().Line, node: v})
			}
		case *luaast.LocalFunction:
			record(localDecl{name: v.Name.ID, line: v.Pos().Line, function: true, node: v})
		case *luaast.ForNum:
			record(localDecl{name: v.Var.ID, line: v.Pos().Line, loopVar: true, node: v})
		case *luaast.ForIn:
			for _, t := range v.Targets {
				record(localDecl{name: t.ID, line: v.Pos().Line, loopVar: true, node: v})
			}
		}
		return true
	})

	read := reads(chunk, declNames(chunk))
	callbacks := r.callbackRegistrations(chunk)
	for _, name := range order {
		d := decls[name]
		if read[name] || d.function || d.loopVar || callbacks[name] {
			continue
		}
		r.result.Findings = append(r.result.Findings, models.Finding{
			Pattern:    models.PatternUnusedLocalVar,
			Severity:   models.SeverityYellow,
			Line:       d.line,
			Message:    fmt.Sprintf("Local variable '%s' is assigned but never used", name),
			SourceLine: r.sourceLine(d.line),
			Details: map[string]any{
				"var_name":          name,
				"assign_line":       d.line,
				"is_safe_to_remove": false,
			},
			Refs: &models.Refs{Node: d.node},
		})
	}
}

// unusedFunctions reports local functions that are never called or
// referenced. Known callback names are exempt.
func (r *run) unusedFunctions(chunk *luaast.Chunk) {
	var order []string
	funcs := make(map[string]localDecl)
	called := make(map[string]bool)
	luaast.Inspect(chunk, func(n luaast.Node) bool {
		switch v := n.(type) {
		case *luaast.LocalFunction:
			if !strings.HasPrefix(v.Name.ID, "_") {
				if _, seen := funcs[v.Name.ID]; !seen {
					order = append(order, v.Name.ID)
				}
				funcs[v.Name.ID] = localDecl{name: v.Name.ID, line: v.Pos().Line, function: true, node: v}
			}
		case *luaast.Call:
			if name := luaast.Render(v.Func); name != "" {
				called[name] = true
			}
		}
		return true
	})
	for name := range reads(chunk, declNames(chunk)) {
		called[name] = true
	}
	callbacks := r.callbackRegistrations(chunk)

	for _, name := range order {
		if called[name] || callbacks[name] {
			continue
		}
		if r.d.catalog.HotCallbacks[name] {
			continue
		}
		if _, ok := r.d.catalog.SafeCallbackParams[name]; ok {
			continue
		}
		d := funcs[name]
		r.result.Findings = append(r.result.Findings, models.Finding{
			Pattern:    models.PatternUnusedLocalFunc,
			Severity:   models.SeverityYellow,
			Line:       d.line,
			Message:    fmt.Sprintf("Local function '%s' appears to be unused", name),
			SourceLine: r.sourceLine(d.line),
			Details: map[string]any{
				"func_name":         name,
				"assign_line":       d.line,
				"is_safe_to_remove": false,
			},
			Refs: &models.Refs{Node: d.node},
		})
	}
}
