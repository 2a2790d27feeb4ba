package transform

import (
	"sort"
)

// Edit priorities. Higher priorities win overlap conflicts.
const (
	PriorityReplace  = 0
	PriorityConcat   = 50
	PriorityInsert   = 100
	PriorityNilGuard = 150
	PriorityDebug    = 200
	PriorityDeadCode = 250
)

// Edit replaces src[Start:End] with Text. Start == End is a pure insertion.
// Offsets always refer to the original source.
type Edit struct {
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Text     string `json:"text"`
	Priority int    `json:"priority"`
	Pattern  string `json:"pattern,omitempty"`
}

// IsInsertion reports whether the edit inserts without removing text.
func (e Edit) IsInsertion() bool { return e.Start == e.End }

func (e Edit) overlaps(o Edit) bool {
	return e.Start < o.End && e.End > o.Start
}

// Resolve drops conflicting edits. Edits are considered by descending
// priority, then descending start; an edit is kept only when it does not
// overlap a kept edit. An insertion overlaps only replacements that strictly
// contain its offset, and identical insertions are kept once. The result is
// sorted for application.
func Resolve(edits []Edit) []Edit {
	ordered := make([]Edit, len(edits))
	copy(ordered, edits)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].Start > ordered[j].Start
	})

	type insertion struct {
		at   int
		text string
	}
	var kept []Edit
	seen := make(map[insertion]bool)
	for _, e := range ordered {
		if e.Start < 0 || e.End < e.Start {
			continue
		}
		conflict := false
		for _, k := range kept {
			if e.overlaps(k) {
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}
		if e.IsInsertion() {
			key := insertion{e.Start, e.Text}
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		kept = append(kept, e)
	}
	sortForApply(kept)
	return kept
}

// sortForApply orders edits by descending start. At an equal start the
// replacement comes first, so an insertion at the same offset ends up in
// front of the replaced text.
func sortForApply(edits []Edit) {
	sort.SliceStable(edits, func(i, j int) bool {
		if edits[i].Start != edits[j].Start {
			return edits[i].Start > edits[j].Start
		}
		return !edits[i].IsInsertion() && edits[j].IsInsertion()
	})
}

// Apply resolves edits and applies them to src right to left. It returns
// the new text and the edits that were applied.
func Apply(src []byte, edits []Edit) ([]byte, []Edit) {
	kept := Resolve(edits)
	applied := make([]Edit, 0, len(kept))
	out := append([]byte(nil), src...)
	for _, e := range kept {
		if e.End > len(out) {
			continue
		}
		next := make([]byte, 0, len(out)-(e.End-e.Start)+len(e.Text))
		next = append(next, out[:e.Start]...)
		next = append(next, e.Text...)
		next = append(next, out[e.End:]...)
		out = next
		applied = append(applied, e)
	}
	return out, applied
}
