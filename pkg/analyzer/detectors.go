package analyzer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/panbanda/luafix/pkg/analyzer/scope"
	"github.com/panbanda/luafix/pkg/luaast"
	"github.com/panbanda/luafix/pkg/models"
)

// detect runs every fact-table detector in a fixed order.
func (c *fileContext) detect() []models.Finding {
	var out []models.Finding
	for _, d := range []func() []models.Finding{
		c.detectTableInsert,
		c.detectDeprecated,
		c.detectMathPow,
		c.detectUncachedGlobals,
		c.detectRepeatedCalls,
		c.detectConcatInLoop,
		c.detectDebugStatements,
		c.detectGlobalWrites,
		c.detectNilAccess,
		c.detectDistanceNative,
	} {
		out = append(out, d()...)
	}
	return out
}

func (c *fileContext) sourceLine(line int) string {
	if !c.lines.Valid(line) {
		return ""
	}
	return strings.TrimRight(c.lines.Text(line), " \t")
}

func callRef(cf callFact) models.CallRef {
	return models.CallRef{
		Name:      cf.name,
		Line:      cf.line,
		Node:      cf.node,
		Statement: cf.statement,
		Operator:  cf.operator,
		Prefix:    cf.prefix,
	}
}

func callRefs(calls []callFact) []models.CallRef {
	out := make([]models.CallRef, len(calls))
	for i, cf := range calls {
		out[i] = callRef(cf)
	}
	return out
}

func (c *fileContext) callFinding(cf callFact, pattern string, sev models.Severity, msg string, details map[string]any) models.Finding {
	return models.Finding{
		Pattern:    pattern,
		Severity:   sev,
		Line:       cf.line,
		Message:    msg,
		SourceLine: c.sourceLine(cf.line),
		Details:    details,
		Refs: &models.Refs{
			Node:  cf.node,
			Calls: map[string][]models.CallRef{cf.name: {callRef(cf)}},
		},
	}
}

func (c *fileContext) scopeRef(id scope.ID) *models.ScopeRef {
	s := c.tracker.Get(id)
	ref := &models.ScopeRef{
		Name:      s.Name,
		Kind:      s.Kind.String(),
		StartLine: s.StartLine,
		EndLine:   s.EndLine,
		Hot:       s.Hot,
		Node:      s.Node,
	}
	var params []*luaast.Name
	switch fn := s.Node.(type) {
	case *luaast.Function:
		params = fn.Params
	case *luaast.LocalFunction:
		params = fn.Params
	case *luaast.Method:
		ref.Params = append(ref.Params, "self")
		params = fn.Params
	case *luaast.AnonFunction:
		params = fn.Params
	}
	for _, p := range params {
		ref.Params = append(ref.Params, p.ID)
	}
	return ref
}

func (c *fileContext) detectTableInsert() []models.Finding {
	var out []models.Finding
	for _, cf := range c.calls {
		if cf.name != "table.insert" || len(cf.args) != 2 {
			continue
		}
		table := luaast.Render(cf.args[0])
		value := luaast.Render(cf.args[1])
		out = append(out, c.callFinding(cf, models.PatternTableInsert, models.SeverityGreen,
			fmt.Sprintf("table.insert(%s, v) -> %s[#%s+1] = v", table, table, table),
			map[string]any{
				"table":      table,
				"value":      value,
				"full_match": fmt.Sprintf("table.insert(%s, %s)", table, value),
			}))
	}
	return out
}

func (c *fileContext) detectDeprecated() []models.Finding {
	var out []models.Finding
	for _, cf := range c.calls {
		if len(cf.args) != 1 {
			continue
		}
		arg := luaast.Render(cf.args[0])
		switch cf.name {
		case "table.getn":
			out = append(out, c.callFinding(cf, models.PatternTableGetn, models.SeverityGreen,
				fmt.Sprintf("table.getn(%s) -> #%s", arg, arg),
				map[string]any{"table": arg, "full_match": "table.getn(" + arg + ")"}))
		case "string.len":
			out = append(out, c.callFinding(cf, models.PatternStringLen, models.SeverityGreen,
				fmt.Sprintf("string.len(%s) -> #%s", arg, arg),
				map[string]any{"string": arg, "full_match": "string.len(" + arg + ")"}))
		}
	}
	return out
}

func isSimpleExpr(n luaast.Node) bool {
	switch n.(type) {
	case *luaast.Name, *luaast.Number:
		return true
	}
	return false
}

func (c *fileContext) detectMathPow() []models.Finding {
	var out []models.Finding
	for _, cf := range c.calls {
		if cf.name != "math.pow" || len(cf.args) != 2 {
			continue
		}
		num, ok := cf.args[1].(*luaast.Number)
		if !ok {
			continue
		}
		exp, err := strconv.ParseFloat(num.Raw, 64)
		if err != nil {
			continue
		}
		base := luaast.Render(cf.args[0])
		fullMatch := fmt.Sprintf("math.pow(%s, %s)", base, num.Raw)
		switch {
		case exp == 0.5:
			out = append(out, c.callFinding(cf, models.PatternMathPow, models.SeverityGreen,
				fmt.Sprintf("%s -> math.sqrt(%s)", fullMatch, base),
				map[string]any{
					"base":       base,
					"exponent":   exp,
					"type":       "sqrt",
					"is_simple":  true,
					"full_match": fullMatch,
				}))
		case (exp == 2 || exp == 3 || exp == 4) && isSimpleExpr(cf.args[0]):
			n := int(exp)
			replacement := strings.TrimSuffix(strings.Repeat(base+"*", n), "*")
			out = append(out, c.callFinding(cf, models.PatternMathPow, models.SeverityGreen,
				fmt.Sprintf("%s -> %s", fullMatch, replacement),
				map[string]any{
					"base":       base,
					"exponent":   n,
					"type":       "power",
					"is_simple":  true,
					"full_match": fullMatch,
				}))
		}
	}
	return out
}

// countCalls returns the number of calls, or with branch-aware counting the
// calls outside any conditional plus the largest single branch of each
// if/elseif/else chain.
func (c *fileContext) countCalls(calls []callFact) int {
	if !c.experimental {
		return len(calls)
	}
	type chainBranch struct {
		chain  luaast.Node
		branch int
	}
	perBranch := make(map[chainBranch]int)
	maxPerChain := make(map[luaast.Node]int)
	total := 0
	for _, cf := range calls {
		if cf.chain == nil {
			total++
			continue
		}
		key := chainBranch{cf.chain, cf.branch}
		perBranch[key]++
		if perBranch[key] > maxPerChain[cf.chain] {
			maxPerChain[cf.chain] = perBranch[key]
		}
	}
	for _, n := range maxPerChain {
		total += n
	}
	return total
}

func (c *fileContext) threshold(fs *scope.Scope) int {
	if fs.Hot {
		return c.cacheThreshold - 1
	}
	return c.cacheThreshold
}

// callGroups groups calls by enclosing function scope and then by name, both
// in order of first occurrence.
type callGroups struct {
	scopes []scope.ID
	names  map[scope.ID][]string
	calls  map[scope.ID]map[string][]callFact
}

func (g *callGroups) add(fs scope.ID, name string, cf callFact) {
	if g.calls == nil {
		g.names = make(map[scope.ID][]string)
		g.calls = make(map[scope.ID]map[string][]callFact)
	}
	byName, ok := g.calls[fs]
	if !ok {
		byName = make(map[string][]callFact)
		g.calls[fs] = byName
		g.scopes = append(g.scopes, fs)
	}
	if _, ok := byName[name]; !ok {
		g.names[fs] = append(g.names[fs], name)
	}
	byName[name] = append(byName[name], cf)
}

func (c *fileContext) isCacheable(name string) bool {
	if c.cat.CacheableGlobals[name] {
		return true
	}
	module, fn := splitModuleFunc(name)
	return module != "" && c.cat.IsCacheableModuleFunc(module, fn)
}

func (c *fileContext) detectUncachedGlobals() []models.Finding {
	var groups callGroups
	for _, cf := range c.calls {
		if cf.shadowed {
			continue
		}
		groups.add(c.tracker.Function(cf.scope), cf.name, cf)
	}

	var out []models.Finding
	for _, fsID := range groups.scopes {
		fs := c.tracker.Get(fsID)
		if fs.Kind == scope.KindGlobal {
			continue
		}
		var names []string
		counts := make(map[string]any)
		info := make(map[string]any)
		refs := make(map[string][]models.CallRef)
		for _, name := range groups.names[fsID] {
			if c.cat.DirectReplacements[name] || fs.HasCached(name) || !c.isCacheable(name) {
				continue
			}
			calls := groups.calls[fsID][name]
			if c.countCalls(calls) < c.threshold(fs) {
				continue
			}
			names = append(names, name)
			counts[name] = len(calls)
			lines := make([]int, len(calls))
			for i, cf := range calls {
				lines[i] = cf.line
			}
			info[name] = lines
			refs[name] = callRefs(calls)
		}
		if len(names) == 0 {
			continue
		}

		var examples []string
		for i, name := range names {
			if i == 5 {
				break
			}
			calls := groups.calls[fsID][name]
			for j := 0; j < len(calls) && j < 2; j++ {
				examples = append(examples, fmt.Sprintf("L%d: %s", calls[j].line, name))
			}
		}

		out = append(out, models.Finding{
			Pattern:    models.PatternUncachedGlobals,
			Severity:   models.SeverityGreen,
			Line:       fs.StartLine,
			Message:    fmt.Sprintf("Cache %d globals in %s", len(names), fs.Name),
			SourceLine: strings.Join(examples, "\n"),
			Details: map[string]any{
				"globals":      counts,
				"globals_info": info,
				"order":        names,
				"function":     fs.Name,
				"is_hot":       fs.Hot,
			},
			Refs: &models.Refs{
				Node:  fs.Node,
				Calls: refs,
				Scope: c.scopeRef(fsID),
			},
		})
	}
	return out
}

func (c *fileContext) detectRepeatedCalls() []models.Finding {
	var groups callGroups
	for _, cf := range c.calls {
		if _, ok := c.cat.ExpensiveCalls[cf.name]; ok {
			groups.add(c.tracker.Function(cf.scope), cf.name, cf)
			continue
		}
		if _, isInvoke := cf.node.(*luaast.Invoke); isInvoke && c.cat.CacheableMethods[cf.fn] {
			groups.add(c.tracker.Function(cf.scope), cf.name, cf)
		}
	}

	var out []models.Finding
	for _, fsID := range groups.scopes {
		fs := c.tracker.Get(fsID)
		for _, name := range groups.names[fsID] {
			calls := groups.calls[fsID][name]
			if c.countCalls(calls) < c.threshold(fs) {
				continue
			}
			sev := models.SeverityGreen
			suggestion := fmt.Sprintf("Cache %s result", name)
			cacheName := ""
			if exp, ok := c.cat.ExpensiveCalls[name]; ok {
				if exp.Severity != "" {
					sev = models.Severity(exp.Severity)
				}
				if exp.Suggestion != "" {
					suggestion = exp.Suggestion
				}
				cacheName = exp.CacheName
			}
			lines := make([]int, len(calls))
			for i, cf := range calls {
				lines[i] = cf.line
			}
			out = append(out, models.Finding{
				Pattern:    models.RepeatedPattern(name),
				Severity:   sev,
				Line:       calls[0].line,
				Message:    fmt.Sprintf("%s called %dx in %s", name, len(calls), fs.Name),
				SourceLine: suggestion,
				Details: map[string]any{
					"count":         len(calls),
					"function":      fs.Name,
					"is_hot":        fs.Hot,
					"suggestion":    suggestion,
					"lines":         lines,
					"original_call": name,
					"cache_name":    cacheName,
				},
				Refs: &models.Refs{
					Node:  calls[0].node,
					Calls: map[string][]models.CallRef{name: callRefs(calls)},
					Scope: c.scopeRef(fsID),
				},
			})
		}
	}
	return out
}

// emptyStringInitWindow is how many lines before a loop an accumulator's
// empty-string initialization may appear.
const emptyStringInitWindow = 3

func (c *fileContext) detectConcatInLoop() []models.Finding {
	type key struct {
		scope scope.ID
		name  string
	}
	var order []key
	groups := make(map[key][]concatFact)
	for _, cf := range c.concats {
		if cf.loopDepth == 0 || cf.target == "" || cf.left != cf.target {
			continue
		}
		k := key{cf.scope, cf.target}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], cf)
	}

	var out []models.Finding
	for _, k := range order {
		concats := groups[k]
		first := concats[0]
		details := map[string]any{
			"variable":     k.name,
			"count":        len(concats),
			"loop_depth":   first.loopDepth,
			"suggestion":   "Use table.insert() + table.concat()",
			"right_expr":   first.right,
			"is_safe":      false,
			"concat_lines": concatLines(concats),
		}
		var loopRef *models.ScopeRef
		if first.loop != scope.None {
			loop := c.tracker.Get(first.loop)
			details["loop_start"] = loop.StartLine
			details["loop_end"] = loop.EndLine
			loopRef = c.scopeRef(first.loop)
			if first.loopDepth == 1 {
				if init, ok := c.findEmptyInit(k.name, loop.StartLine); ok {
					details["init_line"] = init
					details["is_safe"] = true
				}
			}
		}
		out = append(out, models.Finding{
			Pattern:    models.PatternConcatInLoop,
			Severity:   models.SeverityYellow,
			Line:       first.line,
			Message:    fmt.Sprintf("String concat in loop: %s = %s .. x", k.name, k.name),
			SourceLine: c.sourceLine(first.line),
			Details:    details,
			Refs:       &models.Refs{Scope: loopRef},
		})
	}
	return out
}

func concatLines(concats []concatFact) []int {
	out := make([]int, len(concats))
	for i, cf := range concats {
		out[i] = cf.line
	}
	return out
}

// findEmptyInit finds a local empty-string initialization of name within a
// few lines before loopStart and outside any loop.
func (c *fileContext) findEmptyInit(name string, loopStart int) (int, bool) {
	for _, a := range c.assigns {
		if a.target != name || a.kind != valueLiteral || a.repr != `""` {
			continue
		}
		if a.line >= loopStart || a.line < loopStart-emptyStringInitWindow {
			continue
		}
		if a.loopDepth > 0 || !a.isLocal {
			continue
		}
		return a.line, true
	}
	return 0, false
}

func (c *fileContext) detectDebugStatements() []models.Finding {
	var out []models.Finding
	for _, cf := range c.calls {
		if strings.HasPrefix(cf.name, "math.") || !c.cat.DebugFunctions[cf.fn] {
			continue
		}
		out = append(out, c.callFinding(cf, models.PatternDebugStatement, models.SeverityDebug,
			fmt.Sprintf("Debug call: %s()", cf.fn),
			map[string]any{"function": cf.fn}))
	}
	return out
}

// isConstantName reports whether name has at least one cased letter and no
// lower-case letters, the usual spelling of configuration constants.
func isConstantName(name string) bool {
	cased := false
	for _, r := range name {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}

func (c *fileContext) detectGlobalWrites() []models.Finding {
	var out []models.Finding
	for _, w := range c.globalWrites {
		if strings.HasPrefix(w.name, "_") || isConstantName(w.name) {
			continue
		}
		out = append(out, models.Finding{
			Pattern:    models.PatternGlobalWrite,
			Severity:   models.SeverityRed,
			Line:       w.line,
			Message:    "Global write: " + w.name,
			SourceLine: c.sourceLine(w.line),
			Details:    map[string]any{"variable": w.name},
		})
	}
	return out
}

func (c *fileContext) detectNilAccess() []models.Finding {
	var out []models.Finding
	for _, acc := range c.nilAccesses {
		src := acc.source
		reason, ok := c.cat.NilReason(src.fn)
		if !ok {
			reason = "may return nil"
		}
		msg := fmt.Sprintf("Potential nil access: '%s' from %s() used without nil check", acc.name, src.fn)
		if acc.safe {
			msg += " (auto-fixable)"
		}
		out = append(out, models.Finding{
			Pattern:    models.PatternNilAccess,
			Severity:   models.SeverityYellow,
			Line:       acc.line,
			Message:    msg,
			SourceLine: c.sourceLine(acc.line),
			Details: map[string]any{
				"var_name":       acc.name,
				"source_func":    src.fn,
				"source_call":    src.call,
				"assign_line":    src.line,
				"access_call":    acc.call,
				"access_type":    acc.access,
				"is_safe_to_fix": acc.safe,
				"is_local":       src.isLocal,
				"reason":         reason,
			},
			Refs: &models.Refs{Node: acc.node, Scope: c.scopeRef(c.tracker.Function(acc.scopeID))},
		})
	}
	return out
}

func (c *fileContext) detectDistanceNative() []models.Finding {
	var out []models.Finding
	for _, cf := range c.calls {
		if cf.name != "GetDistanceBetweenCoords" {
			continue
		}
		out = append(out, c.callFinding(cf, models.PatternDistanceNative, models.SeverityYellow,
			"GetDistanceBetweenCoords() -> #(coords1 - coords2)",
			map[string]any{
				"suggestion": "Use #(coords1 - coords2) for ~40% faster distance calculation",
				"example":    "local dist = #(GetEntityCoords(ped1) - GetEntityCoords(ped2))",
				"full_match": luaast.Render(cf.node),
				"in_loop":    cf.inLoop(),
			}))
	}
	return out
}
