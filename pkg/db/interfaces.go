package db

import (
	"context"
	"time"
)

// SourceStore exposes the operational source database operations used by the
// selector and the batch copier.
type SourceStore interface {
	ListTables(ctx context.Context) ([]string, error)
	CountRows(ctx context.Context, table string) (int64, error)
	FetchBatch(ctx context.Context, table string, offset, limit int64) ([]CounterRow, error)
	Close()
}

// RawStore exposes the analytics destination holding copied raw counter
// tables, written by the copier and read by the aggregator.
type RawStore interface {
	EnsureTable(ctx context.Context, table string) error
	HasTable(ctx context.Context, table string) (bool, error)
	InsertRows(ctx context.Context, table string, rows []RawRow) error
	DistinctDates(ctx context.Context, table string) ([]time.Time, error)
	FetchCounters(ctx context.Context, table string, dates []time.Time, prefixes []string) ([]RawRow, error)
	Close() error
}

// KPIStore exposes the normalized KPI destination: the summary anchor table
// and one detail table per KPI group.
type KPIStore interface {
	InitTables(ctx context.Context, groups []GroupSchema) error
	ResolveSummary(ctx context.Context, date time.Time, node string) (int64, error)
	UpsertDetails(ctx context.Context, group GroupSchema, rows []DetailRow) error
	Close()
}
