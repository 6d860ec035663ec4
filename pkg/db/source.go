package db

import (
	"context"
	"fmt"

	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/db/postgres"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// SourceDB reads counter tables from the operational PostgreSQL source.
type SourceDB struct {
	*postgres.Client
}

var _ SourceStore = (*SourceDB)(nil)

// NewSourceDB connects to the source database configured via
// SOURCE_POSTGRES_URL.
func NewSourceDB(ctx context.Context, logger *zap.Logger) (*SourceDB, error) {
	client, err := postgres.New(ctx, logger, "SOURCE_POSTGRES_URL", "source")
	if err != nil {
		return nil, err
	}
	return &SourceDB{Client: client}, nil
}

// ListTables returns every table name in the source schema. Category
// filtering happens in the selector, not here.
func (db *SourceDB) ListTables(ctx context.Context) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list source tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table names: %w", err)
	}
	db.Logger.Info("Listed source tables", zap.Int("count", len(tables)))
	return tables, nil
}

// CountRows returns the total row count of table, captured once at the start
// of a table's copy run.
func (db *SourceDB) CountRows(ctx context.Context, table string) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", pgx.Identifier{table}.Sanitize())
	if err := db.Pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows in %s: %w", table, err)
	}
	return count, nil
}

// FetchBatch reads up to limit rows from table starting at offset, ordered
// by the primary timestamp column. The deterministic ordering is what makes
// offset-based resume safe.
func (db *SourceDB) FetchBatch(ctx context.Context, table string, offset, limit int64) ([]CounterRow, error) {
	query := fmt.Sprintf(`
		SELECT date_heure, id_indicateur, valeur
		FROM %s
		ORDER BY date_heure
		LIMIT $1 OFFSET $2
	`, pgx.Identifier{table}.Sanitize())

	rows, err := db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("fetch batch from %s at offset %d: %w", table, offset, err)
	}
	defer rows.Close()

	batch := make([]CounterRow, 0, limit)
	for rows.Next() {
		var row CounterRow
		if err := rows.Scan(&row.Date, &row.IndicatorID, &row.Value); err != nil {
			return nil, fmt.Errorf("scan counter row from %s: %w", table, err)
		}
		batch = append(batch, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch from %s: %w", table, err)
	}
	return batch, nil
}
