package kpi

import (
	"regexp"

	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/tables"
)

var (
	switchNodeRe  = regexp.MustCompile(`(?i)^(CALIS|MEIND|RAIND)`)
	gatewayNodeRe = regexp.MustCompile(`(?i)^(MGW)`)
)

// Catalog returns the configured categories. Each category owns its own
// connections, KPI groups and manifest; a category declared without groups
// is skipped by the runner with a warning.
func Catalog(dataDir string) []Category {
	return []Category{
		{
			Name:         tables.CategoryFiveMin,
			NodePattern:  switchNodeRe,
			Groups:       FiveMinuteGroups(),
			Rules:        DefaultOperatorRules(),
			ManifestPath: tables.ManifestPath(dataDir, tables.CategoryFiveMin),
			KPIURLEnv:    "KPI_POSTGRES_URL_5MIN",
		},
		{
			Name:         tables.CategoryFifteenMin,
			NodePattern:  switchNodeRe,
			Groups:       nil, // no KPI groups defined yet for the 15-minute cadence
			Rules:        DefaultOperatorRules(),
			ManifestPath: tables.ManifestPath(dataDir, tables.CategoryFifteenMin),
			KPIURLEnv:    "KPI_POSTGRES_URL_15MIN",
		},
		{
			Name:         tables.CategoryGateway,
			NodePattern:  gatewayNodeRe,
			Groups:       GatewayGroups(),
			Rules:        DefaultOperatorRules(),
			ManifestPath: tables.ManifestPath(dataDir, tables.CategoryGateway),
			KPIURLEnv:    "KPI_POSTGRES_URL_MGW",
		},
	}
}
