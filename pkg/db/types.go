package db

import "time"

// CounterRow is a raw counter sample as stored in the operational source:
// a timestamp, an indicator id and a value. Value is nil for SQL NULL.
type CounterRow struct {
	Date        time.Time
	IndicatorID int64
	Value       *float64
}

// RawRow is a counter sample annotated with its resolved indicator name,
// the shape written to and read back from the analytics destination.
type RawRow struct {
	Date      time.Time
	Indicator string
	Value     *float64
}

// DetailRow is one buffered KPI detail row destined for a KPI group table.
// Values maps KPI name to computed value; nil entries are preserved as NULL.
type DetailRow struct {
	KpiID    int64
	Operator string
	Suffix   string
	Values   map[string]*float64
}

// GroupSchema describes one KPI group destination table: its name and the
// ordered KPI column names.
type GroupSchema struct {
	Table   string
	Columns []string
}
