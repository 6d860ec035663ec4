package kpi

import (
	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/db"
)

// hiLoBase reconstructs 64-bit counters split across two 32-bit hi/lo
// fields: value = hi * 2^31 + lo. The constant is part of the counter
// contract and must not change.
const hiLoBase = 2147483648

// Definition is one declarative KPI: named input counter lists and a pure
// reducer over their resolved values. Eval may legitimately return nil
// (e.g. an all-zero denominator); nil is preserved as NULL downstream.
type Definition struct {
	Name        string
	Numerator   []string
	Denominator []string
	Eval        func(num, denom []float64) *float64
}

// Group is one KPI destination table and its KPI definitions.
type Group struct {
	Table string
	KPIs  []Definition
}

// Schema returns the destination table schema for this group.
func (g Group) Schema() db.GroupSchema {
	cols := make([]string, len(g.KPIs))
	for i, def := range g.KPIs {
		cols[i] = def.Name
	}
	return db.GroupSchema{Table: g.Table, Columns: cols}
}

// Evaluate resolves the definition's counter lists against the aggregated
// counter values (missing counters read as zero) and applies the reducer.
// A panicking formula degrades to nil rather than failing the run.
func Evaluate(def Definition, counters map[string]float64) (result *float64) {
	defer func() {
		if recover() != nil {
			result = nil
		}
	}()

	num := make([]float64, len(def.Numerator))
	for i, name := range def.Numerator {
		num[i] = counters[name]
	}
	denom := make([]float64, len(def.Denominator))
	for i, name := range def.Denominator {
		denom[i] = counters[name]
	}
	return def.Eval(num, denom)
}

// AllCounters returns the deduplicated counter universe of the given groups,
// in declaration order.
func AllCounters(groups []Group) []string {
	seen := map[string]bool{}
	var out []string
	add := func(names []string) {
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	for _, g := range groups {
		for _, def := range g.KPIs {
			add(def.Numerator)
			add(def.Denominator)
		}
	}
	return out
}

func float(v float64) *float64 { return &v }

func sum(vals []float64) float64 {
	total := 0.0
	for _, v := range vals {
		total += v
	}
	return total
}

func sumOf(num, _ []float64) *float64 { return float(sum(num)) }

// ratio returns num/denom scaled, nil when the denominator sums to zero.
func percentOf(num, denom []float64) *float64 {
	d := sum(denom)
	if d == 0 {
		return nil
	}
	return float(sum(num) / d * 100)
}

// complementPercentOf returns (1 - num/denom) * 100, nil when the
// denominator sums to zero.
func complementPercentOf(num, denom []float64) *float64 {
	d := sum(denom)
	if d == 0 {
		return nil
	}
	return float((1 - sum(num)/d) * 100)
}

func ratioOf(num, denom []float64) *float64 {
	d := sum(denom)
	if d == 0 {
		return nil
	}
	return float(sum(num) / d)
}

// FiveMinuteGroups returns the KPI groups derived from the short-interval
// switch counters: inbound and outbound traffic tables.
func FiveMinuteGroups() []Group {
	return []Group{
		{
			Table: "traffic_entree",
			KPIs: []Definition{
				{Name: "traffic", Numerator: []string{"VoiproITRALAC"}, Eval: sumOf},
				{Name: "tentative_appel", Numerator: []string{"VoiproNCALLSI"}, Eval: sumOf},
				{Name: "appel_repondu", Numerator: []string{"VoiproIANSWER"}, Eval: sumOf},
				{Name: "appel_non_repondu", Numerator: []string{"VoiproIOVERFL"}, Eval: sumOf},
			},
		},
		{
			Table: "traffic_sortie",
			KPIs: []Definition{
				{Name: "traffic", Numerator: []string{"VoiproOTRALAC"}, Eval: sumOf},
				{Name: "tentative_appel", Numerator: []string{"VoiproNCALLSO"}, Eval: sumOf},
				{Name: "appel_repondu", Numerator: []string{"VoiproOANSWER"}, Eval: sumOf},
				{Name: "appel_non_repondu", Numerator: []string{"VoiproOOVERFL"}, Eval: sumOf},
			},
		},
	}
}

// GatewayGroups returns the KPI group derived from the media gateway
// counters.
func GatewayGroups() []Group {
	return []Group{
		{
			Table: "mgw_kpis",
			KPIs: []Definition{
				{
					Name: "RateOfLowJitterStream",
					Numerator: []string{
						"pmVoIpConnMeasuredJitter4",
						"pmVoIpConnMeasuredJitter5",
						"pmVoIpConnMeasuredJitter6",
						"pmVoIpConnMeasuredJitter7",
						"pmVoIpConnMeasuredJitter8",
					},
					Denominator: []string{
						"pmVoIpConnMeasuredJitter0",
						"pmVoIpConnMeasuredJitter1",
						"pmVoIpConnMeasuredJitter2",
						"pmVoIpConnMeasuredJitter3",
						"pmVoIpConnMeasuredJitter4",
						"pmVoIpConnMeasuredJitter5",
						"pmVoIpConnMeasuredJitter6",
						"pmVoIpConnMeasuredJitter7",
						"pmVoIpConnMeasuredJitter8",
					},
					Eval: complementPercentOf,
				},
				{
					Name:        "UseOfLicence",
					Numerator:   []string{"pmNrOfMeStChUsedVoip"},
					Denominator: []string{"maxNrOfLicMediaStreamChannelsVoip"},
					Eval:        percentOf,
				},
				{
					Name: "LatePktsRatio",
					Numerator: []string{
						"pmVoIpConnLatePktsRatio4",
						"pmVoIpConnLatePktsRatio5",
						"pmVoIpConnLatePktsRatio6",
					},
					Denominator: []string{
						"pmVoIpConnLatePktsRatio0",
						"pmVoIpConnLatePktsRatio1",
						"pmVoIpConnLatePktsRatio2",
						"pmVoIpConnLatePktsRatio3",
						"pmVoIpConnLatePktsRatio4",
						"pmVoIpConnLatePktsRatio5",
						"pmVoIpConnLatePktsRatio6",
					},
					Eval: complementPercentOf,
				},
				{
					Name:        "LatePktsVoIp",
					Numerator:   []string{"pmLatePktsVoIp"},
					Denominator: []string{"pmLatePktsVoIp", "pmSuccTransmittedPktsVoIp"},
					Eval:        ratioOf,
				},
				{
					Name:        "MediaStreamChannelUtilisationRate",
					Numerator:   []string{"pmNrOfMediaStreamChannelsBusy"},
					Denominator: []string{"maxNrOfLicMediaStreamChannels"},
					Eval:        percentOf,
				},
				{
					Name:      "IPQoS",
					Numerator: []string{},
					Eval:      func(_, _ []float64) *float64 { return nil },
				},
				{
					Name:        "PktLoss",
					Numerator:   []string{"pmRtpDiscardedPkts", "pmRtpLostPkts"},
					Denominator: []string{"pmRtpReceivedPktsHi", "pmRtpReceivedPktsLo", "pmRtpLostPkts"},
					Eval: func(num, denom []float64) *float64 {
						received := denom[0]*hiLoBase + denom[1] + denom[2]
						if received == 0 {
							return nil
						}
						return float(sum(num) / received * 100)
					},
				},
				{
					Name:      "pmRtpReceivedPkts",
					Numerator: []string{"pmRtpReceivedPktsHi", "pmRtpReceivedPktsLo"},
					Eval: func(num, _ []float64) *float64 {
						return float(num[0]*hiLoBase + num[1])
					},
				},
				{
					Name:      "TotalBwForSig",
					Numerator: []string{"pmSctpStatSentChunks", "pmSctpStatRetransChunks"},
					Eval: func(num, _ []float64) *float64 {
						return float(sum(num) / (1000000 * 900) * 8 * 100 * 1.2)
					},
				},
				{
					Name:      "NbIPTermination",
					Numerator: []string{"pmNrOfIpTermsReq", "pmNrOfIpTermsRej"},
					Eval: func(num, _ []float64) *float64 {
						return float(num[0] - num[1])
					},
				},
				{Name: "traffic_load", Numerator: []string{"traffic_load"}, Eval: sumOf},
			},
		},
	}
}
