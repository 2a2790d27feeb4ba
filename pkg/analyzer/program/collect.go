// Package program finds global definitions that no scanned file uses.
//
// Analysis runs in two steps. Collect extracts the definitions, uses and
// registrations of one file; an Index merges the facts of every file and
// reports the global functions and variables whose names are never read,
// called, registered or exported anywhere.
package program

import (
	"strings"

	"github.com/panbanda/luafix/pkg/luaast"
	"github.com/panbanda/luafix/pkg/source"
)

// Kind classifies a definition.
type Kind string

const (
	KindGlobalFunction Kind = "global_function"
	KindGlobalVariable Kind = "global_variable"
	KindModuleFunction Kind = "module_function"
	KindModuleVariable Kind = "module_variable"
	KindMethod         Kind = "method"
)

// Global reports whether definitions of this kind live in the global table.
func (k Kind) Global() bool {
	return k == KindGlobalFunction || k == KindGlobalVariable
}

// Definition is one place a symbol is defined.
type Definition struct {
	Name       string `json:"name"`
	File       string `json:"file"`
	Line       int    `json:"line"`
	Kind       Kind   `json:"kind"`
	SourceLine string `json:"source_line,omitempty"`
}

// Facts are the symbols one file defines and uses.
type Facts struct {
	File        string
	Definitions []Definition
	// Uses lists names and dotted names read or called by the file.
	Uses []string
	// Registered lists names handed to callback registration functions.
	Registered []string
	// Exported lists names published through exports, _G or rawset.
	Exported []string
}

type collector struct {
	facts        Facts
	lines        *source.Lines
	registration map[string]bool
	locals       []map[string]bool
}

// Collect extracts the facts of a parsed file. registration names the
// functions whose arguments register callbacks, such as AddEventHandler.
func Collect(file string, chunk *luaast.Chunk, lines *source.Lines, registration map[string]bool) Facts {
	c := &collector{
		facts:        Facts{File: file},
		lines:        lines,
		registration: registration,
	}
	if chunk != nil {
		c.block(chunk.Body, nil)
	}
	return c.facts
}

func (c *collector) push(names ...string) {
	scope := make(map[string]bool, len(names))
	for _, n := range names {
		scope[n] = true
	}
	c.locals = append(c.locals, scope)
}

func (c *collector) pop() { c.locals = c.locals[:len(c.locals)-1] }

func (c *collector) declare(name string) {
	if len(c.locals) > 0 {
		c.locals[len(c.locals)-1][name] = true
	}
}

func (c *collector) isLocal(name string) bool {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i][name] {
			return true
		}
	}
	return false
}

func (c *collector) define(name string, kind Kind, at luaast.Node) {
	line := at.Pos().Line
	d := Definition{Name: name, File: c.facts.File, Line: line, Kind: kind}
	if c.lines != nil && c.lines.Valid(line) {
		d.SourceLine = strings.TrimSpace(c.lines.Text(line))
	}
	c.facts.Definitions = append(c.facts.Definitions, d)
}

func (c *collector) use(name string) {
	if name != "" {
		c.facts.Uses = append(c.facts.Uses, name)
	}
}

func paramNames(params []*luaast.Name) []string {
	out := make([]string, 0, len(params))
	for _, p := range params {
		if p != nil {
			out = append(out, p.ID)
		}
	}
	return out
}

// block visits b in a new local scope seeded with names.
func (c *collector) block(b *luaast.Block, names []string) {
	c.push(names...)
	defer c.pop()
	for _, stmt := range luaast.Statements(b) {
		c.stmt(stmt)
	}
}

func (c *collector) stmt(n luaast.Node) {
	switch v := n.(type) {
	case *luaast.LocalAssign:
		c.exprs(v.Values)
		for _, t := range v.Targets {
			c.declare(t.ID)
		}
	case *luaast.LocalFunction:
		c.declare(v.Name.ID)
		c.block(v.Body, paramNames(v.Params))
	case *luaast.Function:
		c.function(v)
	case *luaast.Method:
		c.expr(v.Source)
		if src := luaast.DottedName(v.Source); src != "" && v.Name != nil {
			c.define(src+":"+v.Name.ID, KindMethod, v)
		}
		c.block(v.Body, append([]string{"self"}, paramNames(v.Params)...))
	case *luaast.Assign:
		c.exprs(v.Values)
		for i, t := range v.Targets {
			var value luaast.Node
			if i < len(v.Values) {
				value = v.Values[i]
			}
			c.assignTarget(t, value, v)
		}
	case *luaast.If:
		c.expr(v.Test)
		c.block(v.Body, nil)
		for _, e := range v.ElseIfs {
			c.expr(e.Test)
			c.block(e.Body, nil)
		}
		c.block(v.Else, nil)
	case *luaast.While:
		c.expr(v.Test)
		c.block(v.Body, nil)
	case *luaast.Repeat:
		// The until condition sees the body's locals.
		c.push()
		for _, s := range luaast.Statements(v.Body) {
			c.stmt(s)
		}
		c.expr(v.Test)
		c.pop()
	case *luaast.ForNum:
		c.exprs([]luaast.Node{v.Start, v.Stop, v.Step})
		c.block(v.Body, []string{v.Var.ID})
	case *luaast.ForIn:
		c.exprs(v.Iter)
		c.block(v.Body, paramNames(v.Targets))
	case *luaast.Do:
		c.block(v.Body, nil)
	case *luaast.Return:
		c.exprs(v.Values)
	default:
		c.expr(n)
	}
}

func (c *collector) function(v *luaast.Function) {
	switch name := v.Name.(type) {
	case *luaast.Name:
		if !c.isLocal(name.ID) {
			c.define(name.ID, KindGlobalFunction, v)
		}
	case *luaast.Index:
		c.expr(name.Value)
		if full := luaast.DottedName(name); full != "" {
			c.define(full, KindModuleFunction, v)
			c.facts.Exported = append(c.facts.Exported, full)
		}
	}
	c.block(v.Body, paramNames(v.Params))
}

func (c *collector) assignTarget(t, value luaast.Node, stmt luaast.Node) {
	switch target := t.(type) {
	case *luaast.Name:
		if c.isLocal(target.ID) {
			return
		}
		kind := KindGlobalVariable
		if _, ok := value.(*luaast.AnonFunction); ok {
			kind = KindGlobalFunction
		}
		c.define(target.ID, kind, stmt)
	case *luaast.Index:
		c.expr(target.Value)
		if target.Bracket {
			c.expr(target.Key)
		}
		if name := globalTableKey(target); name != "" {
			c.facts.Exported = append(c.facts.Exported, name)
			return
		}
		full := luaast.DottedName(target)
		if full == "" {
			return
		}
		kind := KindModuleVariable
		if _, ok := value.(*luaast.AnonFunction); ok {
			kind = KindModuleFunction
		}
		c.define(full, kind, stmt)
		c.facts.Exported = append(c.facts.Exported, full)
	default:
		c.expr(t)
	}
}

// globalTableKey returns x for _G.x and _G["x"], or "".
func globalTableKey(ix *luaast.Index) string {
	base, ok := ix.Value.(*luaast.Name)
	if !ok || base.ID != "_G" {
		return ""
	}
	switch key := ix.Key.(type) {
	case *luaast.Name:
		if !ix.Bracket {
			return key.ID
		}
	case *luaast.String:
		return key.Value
	}
	return ""
}

func (c *collector) exprs(nodes []luaast.Node) {
	for _, n := range nodes {
		c.expr(n)
	}
}

func (c *collector) expr(n luaast.Node) {
	switch v := n.(type) {
	case nil:
	case *luaast.Name:
		if v != nil {
			c.use(v.ID)
		}
	case *luaast.Index:
		if name := globalTableKey(v); name != "" {
			c.use(name)
		}
		if full := luaast.DottedName(v); full != "" {
			c.use(full)
		}
		c.expr(v.Value)
		if v.Bracket {
			c.expr(v.Key)
		}
	case *luaast.Call:
		c.expr(v.Func)
		c.exprs(v.Args)
		c.call(luaast.DottedName(v.Func), v.Args)
	case *luaast.Invoke:
		c.expr(v.Source)
		if src := luaast.DottedName(v.Source); src != "" && v.Method != nil {
			c.use(src + ":" + v.Method.ID)
		}
		c.exprs(v.Args)
	case *luaast.AnonFunction:
		c.block(v.Body, paramNames(v.Params))
	case *luaast.Table:
		for _, f := range v.Fields {
			if f.Bracket {
				c.expr(f.Key)
			}
			c.expr(f.Value)
		}
	case *luaast.BinOp:
		c.expr(v.Left)
		c.expr(v.Right)
	case *luaast.UnOp:
		c.expr(v.Operand)
	case *luaast.Paren:
		c.expr(v.Expr)
	default:
		for _, child := range luaast.Children(n) {
			c.expr(child)
		}
	}
}

// call records registrations and exports made by a call to name.
func (c *collector) call(name string, args []luaast.Node) {
	switch {
	case c.registration[name]:
		for _, a := range args {
			if s, ok := a.(*luaast.String); ok {
				c.facts.Registered = append(c.facts.Registered, s.Value)
			} else if full := luaast.DottedName(a); full != "" {
				c.facts.Registered = append(c.facts.Registered, full)
			}
		}
	case name == "exports" && len(args) > 0:
		if s, ok := args[0].(*luaast.String); ok {
			c.facts.Exported = append(c.facts.Exported, s.Value)
		}
	case name == "rawset" && len(args) >= 2:
		if g, ok := args[0].(*luaast.Name); ok && g.ID == "_G" {
			if s, ok := args[1].(*luaast.String); ok {
				c.facts.Exported = append(c.facts.Exported, s.Value)
			}
		}
	}
}
