package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/db/clickhouse"
	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/utils"
	"go.uber.org/zap"
)

// RawDB stores copied raw counter tables in ClickHouse, one table per source
// table, fixed three-column schema.
type RawDB struct {
	*clickhouse.Client
}

var _ RawStore = (*RawDB)(nil)

// NewRawDB connects to the analytics ClickHouse instance and ensures the
// raw-counter database exists.
func NewRawDB(ctx context.Context, logger *zap.Logger) (*RawDB, error) {
	dbName := utils.Env("CLICKHOUSE_DB", "raw_counters")
	client, err := clickhouse.New(ctx, logger, dbName)
	if err != nil {
		return nil, err
	}
	return &RawDB{Client: client}, nil
}

func (db *RawDB) qualified(table string) string {
	return fmt.Sprintf("%q.%q", db.Database, table)
}

// EnsureTable creates the destination raw table if it does not exist.
// Values are Nullable because NaN source values are rewritten to NULL.
func (db *RawDB) EnsureTable(ctx context.Context, table string) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			date DateTime,
			indicateur String,
			valeur Nullable(Float64)
		) ENGINE = MergeTree
		ORDER BY date
	`, db.qualified(table))
	if err := db.Exec(ctx, query); err != nil {
		return fmt.Errorf("create raw table %s: %w", table, err)
	}
	return nil
}

// HasTable reports whether a raw table has been created, i.e. whether the
// copier has ever reached it. Manifests may list tables from categories that
// are not extracted yet.
func (db *RawDB) HasTable(ctx context.Context, table string) (bool, error) {
	return db.TableExists(ctx, table)
}

// InsertRows appends a batch of annotated counter rows to table.
func (db *RawDB) InsertRows(ctx context.Context, table string, rows []RawRow) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := db.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s (date, indicateur, valeur)", db.qualified(table)))
	if err != nil {
		return fmt.Errorf("prepare batch for %s: %w", table, err)
	}
	for _, row := range rows {
		if err := batch.Append(row.Date, row.Indicator, row.Value); err != nil {
			return fmt.Errorf("append row to %s batch: %w", table, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch to %s: %w", table, err)
	}
	db.Logger.Debug("Inserted raw rows", zap.String("table", table), zap.Int("rows", len(rows)))
	return nil
}

// DistinctDates returns the ordered set of distinct timestamps present in
// table.
func (db *RawDB) DistinctDates(ctx context.Context, table string) ([]time.Time, error) {
	rows, err := db.Query(ctx, fmt.Sprintf("SELECT DISTINCT date FROM %s ORDER BY date", db.qualified(table)))
	if err != nil {
		return nil, fmt.Errorf("distinct dates from %s: %w", table, err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan date from %s: %w", table, err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dates from %s: %w", table, err)
	}
	return dates, nil
}

// FetchCounters reads the rows of table whose timestamp is in dates and
// whose indicator name begins with one of the given counter prefixes.
func (db *RawDB) FetchCounters(ctx context.Context, table string, dates []time.Time, prefixes []string) ([]RawRow, error) {
	if len(dates) == 0 || len(prefixes) == 0 {
		return nil, nil
	}

	args := make([]interface{}, 0, len(dates)+len(prefixes))
	datePlaceholders := make([]string, len(dates))
	for i, d := range dates {
		datePlaceholders[i] = "?"
		args = append(args, d)
	}
	likeClauses := make([]string, len(prefixes))
	for i, p := range prefixes {
		likeClauses[i] = "indicateur LIKE ?"
		args = append(args, p+"%")
	}

	query := fmt.Sprintf(`
		SELECT date, indicateur, valeur
		FROM %s
		WHERE date IN (%s) AND (%s)
	`, db.qualified(table), strings.Join(datePlaceholders, ","), strings.Join(likeClauses, " OR "))

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch counters from %s: %w", table, err)
	}
	defer rows.Close()

	var out []RawRow
	for rows.Next() {
		var row RawRow
		if err := rows.Scan(&row.Date, &row.Indicator, &row.Value); err != nil {
			return nil, fmt.Errorf("scan counter from %s: %w", table, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counters from %s: %w", table, err)
	}
	return out, nil
}
