package models

import "strings"

// Pattern identifiers. The vocabulary is open: repeated expensive calls use
// PatternRepeatedPrefix followed by the callee name.
const (
	PatternTableInsert       = "table_insert_append"
	PatternTableGetn         = "table_getn"
	PatternStringLen         = "string_len"
	PatternMathPow           = "math_pow_simple"
	PatternUncachedGlobals   = "uncached_globals_summary"
	PatternRepeatedPrefix    = "repeated_"
	PatternConcatInLoop      = "string_concat_in_loop"
	PatternDebugStatement    = "debug_statement"
	PatternGlobalWrite       = "global_write"
	PatternNilAccess         = "potential_nil_access"
	PatternDeadAfterReturn   = "dead_code_after_return"
	PatternDeadAfterBreak    = "dead_code_after_break"
	PatternDeadIfFalse       = "dead_code_if_false"
	PatternDeadWhileFalse    = "dead_code_while_false"
	PatternUnusedLocalVar    = "unused_local_variable"
	PatternUnusedLocalFunc   = "unused_local_function"
	PatternDistanceNative    = "distance_native"
	PatternUnusedGlobalFunc  = "unused_global_function"
	PatternUnusedGlobalVar   = "unused_global_variable"
	patternDeadCodePrefix    = "dead_code_"
	patternUnusedLocalPrefix = "unused_local_"
)

// RepeatedPattern returns the pattern identifier for a repeated call name.
func RepeatedPattern(name string) string {
	r := strings.NewReplacer(".", "_", ":", "_")
	return PatternRepeatedPrefix + r.Replace(name)
}

// IsRepeated reports whether pattern is a repeated expensive call pattern.
func IsRepeated(pattern string) bool {
	return strings.HasPrefix(pattern, PatternRepeatedPrefix)
}

// IsDeadCode reports whether pattern is one of the removable dead code
// patterns.
func IsDeadCode(pattern string) bool {
	return strings.HasPrefix(pattern, patternDeadCodePrefix)
}

// IsUnusedLocal reports whether pattern is an unused-local warning.
func IsUnusedLocal(pattern string) bool {
	return strings.HasPrefix(pattern, patternUnusedLocalPrefix)
}

// Impact is the estimated performance impact of a pattern.
type Impact string

const (
	ImpactCritical Impact = "critical"
	ImpactHigh     Impact = "high"
	ImpactMedium   Impact = "medium"
	ImpactLow      Impact = "low"
)

// Impacts lists impact levels from most to least severe.
var Impacts = []Impact{ImpactCritical, ImpactHigh, ImpactMedium, ImpactLow}

var performanceImpact = map[string]Impact{
	PatternConcatInLoop:    ImpactCritical,
	PatternTableInsert:     ImpactHigh,
	PatternMathPow:         ImpactHigh,
	PatternUncachedGlobals: ImpactMedium,
	PatternDebugStatement:  ImpactMedium,
}

// ImpactOf returns the performance impact for a pattern.
func ImpactOf(pattern string) Impact {
	if impact, ok := performanceImpact[pattern]; ok {
		return impact
	}
	return ImpactLow
}

// PatternInfo describes a pattern for listings.
type PatternInfo struct {
	Pattern     string   `json:"pattern"`
	Severity    Severity `json:"severity"`
	Impact      Impact   `json:"impact"`
	FixGate     string   `json:"fix_gate"`
	Description string   `json:"description"`
}

// KnownPatterns is the fixed part of the pattern vocabulary.
var KnownPatterns = []PatternInfo{
	{PatternTableInsert, SeverityGreen, ImpactOf(PatternTableInsert), "safe", "table.insert(t, v) can be t[#t+1] = v"},
	{PatternTableGetn, SeverityGreen, ImpactOf(PatternTableGetn), "safe", "deprecated table.getn(t) can be #t"},
	{PatternStringLen, SeverityGreen, ImpactOf(PatternStringLen), "safe", "string.len(s) can be #s"},
	{PatternMathPow, SeverityGreen, ImpactOf(PatternMathPow), "safe", "math.pow with a small constant exponent"},
	{PatternUncachedGlobals, SeverityGreen, ImpactOf(PatternUncachedGlobals), "safe", "frequently used globals not cached in locals"},
	{PatternRepeatedPrefix + "<Name>", SeverityGreen, ImpactLow, "safe", "expensive native called repeatedly in one function"},
	{PatternConcatInLoop, SeverityYellow, ImpactOf(PatternConcatInLoop), "experimental", "string built with .. inside a loop"},
	{PatternDebugStatement, SeverityDebug, ImpactOf(PatternDebugStatement), "debug", "debug or logging call"},
	{PatternGlobalWrite, SeverityRed, ImpactOf(PatternGlobalWrite), "never", "assignment to an undeclared global"},
	{PatternNilAccess, SeverityYellow, ImpactOf(PatternNilAccess), "nil_guards", "access on a value from a nil-returning native without a check"},
	{PatternDeadAfterReturn, SeverityGreen, ImpactOf(PatternDeadAfterReturn), "dead_code", "statements after return"},
	{PatternDeadAfterBreak, SeverityGreen, ImpactOf(PatternDeadAfterBreak), "dead_code", "statements after break"},
	{PatternDeadIfFalse, SeverityGreen, ImpactOf(PatternDeadIfFalse), "dead_code", "if with a literal false or nil condition"},
	{PatternDeadWhileFalse, SeverityGreen, ImpactOf(PatternDeadWhileFalse), "dead_code", "while with a literal false or nil condition"},
	{PatternUnusedLocalVar, SeverityYellow, ImpactOf(PatternUnusedLocalVar), "never", "local variable assigned but never read"},
	{PatternUnusedLocalFunc, SeverityYellow, ImpactOf(PatternUnusedLocalFunc), "never", "local function never referenced"},
	{PatternDistanceNative, SeverityYellow, ImpactOf(PatternDistanceNative), "never", "GetDistanceBetweenCoords can be vector math"},
	{PatternUnusedGlobalFunc, SeverityRed, ImpactOf(PatternUnusedGlobalFunc), "never", "global function never used in any scanned file"},
	{PatternUnusedGlobalVar, SeverityRed, ImpactOf(PatternUnusedGlobalVar), "never", "global variable never used in any scanned file"},
}
