package kpi

import "strings"

// OtherOperator labels suffixes that match no mapping rule. Unmapped
// suffixes are flagged, never dropped.
const OtherOperator = "Other"

// sentinelSuffix marks non-data rows emitted by the equipment; rows carrying
// it are excluded from aggregation.
const sentinelSuffix = "M"

// OperatorRule maps a substring of a counter suffix to an operator label.
// Rule order is the declared tie-break for overlapping substrings: the first
// case-insensitive containment wins.
type OperatorRule struct {
	Substring string
	Operator  string
}

// DefaultOperatorRules is the production suffix -> operator table.
func DefaultOperatorRules() []OperatorRule {
	return []OperatorRule{
		{"nw", "Inwi"},
		{"mt", "Maroc Telecom"},
		{"ie", "International"},
		{"is", "International"},
		{"bs", "BSC 2G"},
		{"be", "BSC 2G"},
		{"ne", "RNC 3G"},
		{"ns", "RNC 3G"},
	}
}

// ResolveOperator maps a suffix to its operator label. The second return
// reports whether a rule matched; unmatched suffixes resolve to Other.
func ResolveOperator(rules []OperatorRule, suffix string) (string, bool) {
	lower := strings.ToLower(suffix)
	for _, rule := range rules {
		if rule.Substring != "" && strings.Contains(lower, strings.ToLower(rule.Substring)) {
			return rule.Operator, true
		}
	}
	return OtherOperator, false
}

// SplitIndicator decomposes an indicator name into its counter family prefix
// and node-specific suffix. A name without a '.' separator has no derivable
// suffix and is excluded from aggregation.
func SplitIndicator(name string) (prefix, suffix string, ok bool) {
	idx := strings.Index(name, ".")
	if idx < 0 {
		return name, "", false
	}
	return name[:idx], name[idx+1:], true
}
