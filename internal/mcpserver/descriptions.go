package mcpserver

// Tool descriptions with interpretation guidance for LLMs.

func describeAnalyze() string {
	return `Scans FiveM Lua scripts for performance anti-patterns and debug leftovers.

USE WHEN:
- Reviewing a resource before deploying it to a live server
- Looking for work done every frame inside Citizen.CreateThread loops
- Checking a snippet of Lua pasted into the conversation (pass source)
- Finding global functions no script ever calls (set whole_program)

INTERPRETING RESULTS:
- GREEN: mechanical rewrite with identical behavior, always safe to apply
- YELLOW: likely improvement that needs review (nil access, unused locals, concat in loops)
- RED: informational, never fixed automatically (global writes, unused globals)
- DEBUG: print and debug calls that should not ship
- impact high means the pattern runs in a hot path and costs frame time
- Parse errors are reported per file and never abort the scan

METRICS RETURNED:
- files: path, resource, status, findings (line, pattern, severity, message, source_line)
- program: unused global functions and variables, when whole_program is set
- stats: files analyzed, parse errors, timeouts, findings by severity and pattern`
}

func describeFix() string {
	return `Computes automatic fixes for a Lua file or snippet and returns the new text and a unified diff. Never writes to disk.

USE WHEN:
- Preparing a patch for deprecated calls (table.getn, table.insert append, math.pow)
- Caching repeated native calls such as PlayerPedId() in one function
- Commenting out debug prints before a release (set debug)
- Previewing what "luafix fix" would change in a file

INTERPRETING RESULTS:
- safe applies the GREEN rewrites; review adds YELLOW ones that have a fixer
- nil_guards adds checks after natives that may return nil
- dead_code removes unreachable code; experimental rewrites concat in loops
- modified is false when nothing selected applies
- The diff uses the path or name given as its label

METRICS RETURNED:
- modified, edits (count of applied edits), findings of the original text
- output: the complete rewritten source
- diff: unified diff from the original to the output`
}

func describePatterns() string {
	return `Lists every pattern the analyzer detects with its tier, impact and the fix option that handles it.

USE WHEN:
- Explaining a finding returned by analyze_lua
- Choosing which fix_lua options to enable

INTERPRETING RESULTS:
- fix_gate names the fix option that rewrites the pattern; "never" means no automatic fix
- impact is high, medium or low runtime cost

METRICS RETURNED:
- patterns: pattern, severity, impact, fix_gate, description`
}
