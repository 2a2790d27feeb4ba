package models

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/panbanda/luafix/pkg/luaast"
)

// Severity is the fix tier of a finding.
type Severity string

const (
	// SeverityGreen findings are safe to fix automatically.
	SeverityGreen Severity = "GREEN"
	// SeverityYellow findings need review before fixing.
	SeverityYellow Severity = "YELLOW"
	// SeverityRed findings are informational only.
	SeverityRed Severity = "RED"
	// SeverityDebug marks debug statements.
	SeverityDebug Severity = "DEBUG"
)

// Severities lists the tiers in order.
var Severities = []Severity{SeverityGreen, SeverityYellow, SeverityRed, SeverityDebug}

// Rank orders severities; lower ranks are safer to fix.
func (s Severity) Rank() int {
	switch s {
	case SeverityGreen:
		return 0
	case SeverityYellow:
		return 1
	case SeverityRed:
		return 2
	case SeverityDebug:
		return 3
	}
	return 4
}

// Label is the human readable name of the tier.
func (s Severity) Label() string {
	switch s {
	case SeverityGreen:
		return "auto-fixable"
	case SeverityYellow:
		return "needs review"
	case SeverityRed:
		return "informational"
	case SeverityDebug:
		return "debug statement"
	}
	return "unknown"
}

// ParseSeverity converts a string to a Severity.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Severities {
		if sev == known {
			return sev, nil
		}
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// Finding is one detected pattern occurrence.
type Finding struct {
	Pattern    string         `json:"pattern" yaml:"pattern"`
	Severity   Severity       `json:"severity" yaml:"severity"`
	Line       int            `json:"line" yaml:"line"`
	Message    string         `json:"message" yaml:"message"`
	SourceLine string         `json:"source_line" yaml:"source_line"`
	File       string         `json:"file,omitempty" yaml:"file,omitempty"`
	Details    map[string]any `json:"details,omitempty" yaml:"details,omitempty"`

	// Refs points back into the syntax tree the finding was produced from.
	// It is not serialized and is nil for findings loaded from a cache.
	Refs *Refs `json:"-" yaml:"-" toon:"-"`
}

// ID returns a stable identifier for the finding.
func (f Finding) ID() string {
	key := fmt.Sprintf("%s:%d:%s:%s", f.File, f.Line, f.Pattern, f.Message)
	return fmt.Sprintf("%016x", xxhash.Sum64String(key))
}

// Detail returns a detail value, or nil when absent.
func (f Finding) Detail(key string) any {
	if f.Details == nil {
		return nil
	}
	return f.Details[key]
}

// DetailString returns a string detail, or "".
func (f Finding) DetailString(key string) string {
	s, _ := f.Detail(key).(string)
	return s
}

// DetailInt returns an integer detail, or 0.
func (f Finding) DetailInt(key string) int {
	switch v := f.Detail(key).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// DetailBool returns a boolean detail, or false.
func (f Finding) DetailBool(key string) bool {
	b, _ := f.Detail(key).(bool)
	return b
}

// Refs are the syntax tree back-references a transformer needs.
type Refs struct {
	// Node is the primary node of the finding (a call, statement, ...).
	Node luaast.Node
	// Nodes lists a node range, such as the unreachable statements.
	Nodes []luaast.Node
	// Calls groups captured call sites by callee name.
	Calls map[string][]CallRef
	// Scope is the function scope the finding belongs to.
	Scope *ScopeRef
}

// CallRef is a captured call site.
type CallRef struct {
	Name string
	Line int
	Node luaast.Node
	// Statement is set when the call stands alone as a statement.
	Statement bool
	// Operator is the unary or binary operator the call is a direct operand
	// of, or "" when it is not an operand.
	Operator string
	// Prefix is set when the call result is indexed, invoked or called.
	Prefix bool
}

// ScopeRef describes a function scope.
type ScopeRef struct {
	Name      string
	Kind      string
	StartLine int
	EndLine   int
	Hot       bool
	// Node is the function node; nil for the file scope.
	Node luaast.Node
	// Params are the function parameter names.
	Params []string
}

// IsGlobal reports whether the scope is the file-level scope.
func (s *ScopeRef) IsGlobal() bool {
	return s == nil || s.Node == nil
}
