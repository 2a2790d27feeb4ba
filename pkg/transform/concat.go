package transform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/panbanda/luafix/pkg/models"
)

// concatBuffer rewrites a string accumulated with `s = s .. x` inside a loop
// into a table buffer joined once after the loop:
//
//	local s = ""                  local _s_parts = {}
//	for ... do                    for ... do
//	  s = s .. x          ->        _s_parts[#_s_parts+1] = x
//	end                           end
//	                              local s = table.concat(_s_parts)
//
// Every accumulating line must have exactly that shape, and the accumulator
// may not be read anywhere else between its initialization and the end of
// the loop. Otherwise the finding produces no edits.
func (p *planner) concatBuffer(f models.Finding) []Edit {
	if !f.DetailBool("is_safe") {
		return nil
	}
	name := f.DetailString("variable")
	initLine := f.DetailInt("init_line")
	loopStart := f.DetailInt("loop_start")
	loopEnd := f.DetailInt("loop_end")
	concatLines, ok := f.Detail("concat_lines").([]int)
	if name == "" || !ok || len(concatLines) == 0 {
		return nil
	}
	if loopEnd <= loopStart || initLine <= 0 || initLine >= loopStart {
		return nil
	}
	for _, n := range []int{initLine, loopStart, loopEnd} {
		if !p.lines.Valid(n) {
			return nil
		}
	}

	initRe := regexp.MustCompile(`^(\s*)local\s+` + regexp.QuoteMeta(name) + `\s*=\s*(""|'')\s*;?\s*$`)
	m := initRe.FindStringSubmatch(p.lines.Text(initLine))
	if m == nil {
		return nil
	}
	indent := m[1]
	if !loopCloses(p.lines.Text(loopEnd)) {
		return nil
	}

	buf := "_" + name + "_parts"
	if usesWordInRange(p, buf, initLine, loopEnd) {
		return nil
	}
	lineRe := regexp.MustCompile(`^(\s*)` + regexp.QuoteMeta(name) + `\s*=\s*` + regexp.QuoteMeta(name) + `\s*\.\.\s*(.+)$`)
	concat := make(map[int]bool, len(concatLines))
	var edits []Edit
	for _, n := range concatLines {
		if n <= loopStart || n >= loopEnd || concat[n] {
			return nil
		}
		concat[n] = true
		text := p.lines.Text(n)
		lm := lineRe.FindStringSubmatch(text)
		if lm == nil {
			return nil
		}
		expr, comment := splitComment(lm[2])
		expr = strings.TrimSuffix(strings.TrimSpace(expr), ";")
		if expr == "" || !balanced(expr) || containsWord(stripCode(expr), name) {
			return nil
		}
		line := fmt.Sprintf("%s%s[#%s+1] = %s", lm[1], buf, buf, strings.TrimSpace(expr))
		if comment != "" {
			line += " " + comment
		}
		start, _ := p.lines.Start(n)
		edits = append(edits, Edit{Start: start, End: start + len(text), Text: line, Priority: PriorityConcat, Pattern: f.Pattern})
	}

	// The accumulator may only appear on the accumulating lines.
	for n := initLine + 1; n <= loopEnd; n++ {
		if concat[n] {
			continue
		}
		if containsWord(stripCode(p.lines.Text(n)), name) {
			return nil
		}
	}

	initStart, _ := p.lines.Start(initLine)
	initText := p.lines.Text(initLine)
	edits = append(edits, Edit{
		Start:    initStart,
		End:      initStart + len(initText),
		Text:     indent + "local " + buf + " = {}",
		Priority: PriorityConcat,
		Pattern:  f.Pattern,
	})
	at, _ := p.lines.End(loopEnd)
	if strings.HasSuffix(p.lines.Raw(loopEnd), "\r\n") {
		at--
	}
	edits = append(edits, Edit{
		Start:    at,
		End:      at,
		Text:     "\n" + indent + "local " + name + " = table.concat(" + buf + ")",
		Priority: PriorityConcat,
		Pattern:  f.Pattern,
	})
	return edits
}

// loopCloses reports whether line is the closing line of a loop: `end` or
// `until cond`, optionally followed by a comment.
func loopCloses(line string) bool {
	code := strings.TrimSpace(stripCode(line))
	return code == "end" || code == "end;" || strings.HasPrefix(code, "until ") || strings.HasPrefix(code, "until(")
}

func usesWordInRange(p *planner, word string, from, to int) bool {
	for n := from; n <= to; n++ {
		if containsWord(p.lines.Text(n), word) {
			return true
		}
	}
	return false
}
