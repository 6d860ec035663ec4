package kpi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveOperator(t *testing.T) {
	rules := DefaultOperatorRules()

	tests := []struct {
		suffix   string
		operator string
		mapped   bool
	}{
		{"xyz-nw", "Inwi", true},
		{"NW-01", "Inwi", true},
		{"mt-casa", "Maroc Telecom", true},
		{"ie2", "International", true},
		{"is7", "International", true},
		{"bs-1", "BSC 2G", true},
		{"ne-3", "RNC 3G", true},
		{"zzz", "Other", false},
		{"", "Other", false},
	}
	for _, tt := range tests {
		t.Run(tt.suffix, func(t *testing.T) {
			op, mapped := ResolveOperator(rules, tt.suffix)
			assert.Equal(t, tt.operator, op)
			assert.Equal(t, tt.mapped, mapped)
		})
	}
}

func TestResolveOperatorOrderIsTieBreak(t *testing.T) {
	rules := []OperatorRule{
		{"ab", "First"},
		{"abc", "Second"},
	}
	op, mapped := ResolveOperator(rules, "xxabcxx")
	assert.True(t, mapped)
	assert.Equal(t, "First", op, "the first declared matching rule must win")
}

func TestSplitIndicator(t *testing.T) {
	prefix, suffix, ok := SplitIndicator("VoiproITRALAC.nw-01")
	assert.True(t, ok)
	assert.Equal(t, "VoiproITRALAC", prefix)
	assert.Equal(t, "nw-01", suffix)

	// Only the first separator splits; the suffix keeps the rest intact.
	prefix, suffix, ok = SplitIndicator("pmRtpLostPkts.ne.3")
	assert.True(t, ok)
	assert.Equal(t, "pmRtpLostPkts", prefix)
	assert.Equal(t, "ne.3", suffix)

	_, _, ok = SplitIndicator("noseparator")
	assert.False(t, ok)
}
