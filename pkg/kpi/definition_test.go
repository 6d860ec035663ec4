package kpi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findKPI(t *testing.T, groups []Group, table, name string) Definition {
	t.Helper()
	for _, g := range groups {
		if g.Table != table {
			continue
		}
		for _, def := range g.KPIs {
			if def.Name == name {
				return def
			}
		}
	}
	t.Fatalf("KPI %s not found in %s", name, table)
	return Definition{}
}

func TestEvaluateZeroDenominatorYieldsNull(t *testing.T) {
	def := Definition{
		Name:        "ratio",
		Numerator:   []string{"a"},
		Denominator: []string{"b"},
		Eval:        percentOf,
	}
	result := Evaluate(def, map[string]float64{"a": 10, "b": 0})
	assert.Nil(t, result, "division by an all-zero denominator must yield null, not zero")
}

func TestEvaluateMissingCountersDefaultToZero(t *testing.T) {
	def := findKPI(t, FiveMinuteGroups(), "traffic_entree", "traffic")
	result := Evaluate(def, map[string]float64{})
	require.NotNil(t, result)
	assert.Zero(t, *result)
}

func TestEvaluateSumKPI(t *testing.T) {
	def := findKPI(t, FiveMinuteGroups(), "traffic_sortie", "traffic")
	result := Evaluate(def, map[string]float64{"VoiproOTRALAC": 42.5})
	require.NotNil(t, result)
	assert.Equal(t, 42.5, *result)
}

func TestHiLoReconstruction(t *testing.T) {
	def := findKPI(t, GatewayGroups(), "mgw_kpis", "pmRtpReceivedPkts")
	result := Evaluate(def, map[string]float64{
		"pmRtpReceivedPktsHi": 1,
		"pmRtpReceivedPktsLo": 5,
	})
	require.NotNil(t, result)
	assert.Equal(t, float64(1*2147483648+5), *result)
}

func TestPktLossDenominatorUsesHiLo(t *testing.T) {
	def := findKPI(t, GatewayGroups(), "mgw_kpis", "PktLoss")

	result := Evaluate(def, map[string]float64{
		"pmRtpDiscardedPkts":  1,
		"pmRtpLostPkts":       1,
		"pmRtpReceivedPktsHi": 0,
		"pmRtpReceivedPktsLo": 98,
	})
	require.NotNil(t, result)
	// (1 + 1) / (0*2^31 + 98 + 1) * 100
	assert.InDelta(t, 2.0/99.0*100, *result, 1e-9)

	// All-zero received stream yields null.
	result = Evaluate(def, map[string]float64{"pmRtpDiscardedPkts": 1})
	assert.Nil(t, result)
}

func TestIPQoSAlwaysNull(t *testing.T) {
	def := findKPI(t, GatewayGroups(), "mgw_kpis", "IPQoS")
	assert.Nil(t, Evaluate(def, map[string]float64{"anything": 1}))
}

func TestRateOfLowJitterStream(t *testing.T) {
	def := findKPI(t, GatewayGroups(), "mgw_kpis", "RateOfLowJitterStream")
	result := Evaluate(def, map[string]float64{
		"pmVoIpConnMeasuredJitter0": 60,
		"pmVoIpConnMeasuredJitter4": 40,
	})
	require.NotNil(t, result)
	// num = 40, denom = 100 -> (1 - 0.4) * 100
	assert.InDelta(t, 60.0, *result, 1e-9)
}

func TestNbIPTermination(t *testing.T) {
	def := findKPI(t, GatewayGroups(), "mgw_kpis", "NbIPTermination")
	result := Evaluate(def, map[string]float64{
		"pmNrOfIpTermsReq": 10,
		"pmNrOfIpTermsRej": 3,
	})
	require.NotNil(t, result)
	assert.Equal(t, 7.0, *result)
}

func TestAllCountersDeduplicated(t *testing.T) {
	counters := AllCounters(GatewayGroups())
	seen := map[string]int{}
	for _, c := range counters {
		seen[c]++
	}
	for name, count := range seen {
		assert.Equal(t, 1, count, "counter %s duplicated", name)
	}
	// pmLatePktsVoIp appears as both numerator and denominator but once here.
	assert.Contains(t, counters, "pmLatePktsVoIp")
	assert.Contains(t, counters, "maxNrOfLicMediaStreamChannelsVoip")
}

func TestGroupSchema(t *testing.T) {
	schema := FiveMinuteGroups()[0].Schema()
	assert.Equal(t, "traffic_entree", schema.Table)
	assert.Equal(t, []string{"traffic", "tentative_appel", "appel_repondu", "appel_non_repondu"}, schema.Columns)
}
