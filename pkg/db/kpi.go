package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/db/postgres"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// KPIDB stores normalized KPI output in PostgreSQL: the kpi_summary anchor
// table plus one detail table per KPI group.
type KPIDB struct {
	*postgres.Client
}

var _ KPIStore = (*KPIDB)(nil)

// NewKPIDB connects to the KPI destination database configured via the
// given environment variable (one database per category).
func NewKPIDB(ctx context.Context, logger *zap.Logger, urlEnv, component string) (*KPIDB, error) {
	client, err := postgres.New(ctx, logger, urlEnv, component)
	if err != nil {
		return nil, err
	}
	return &KPIDB{Client: client}, nil
}

// InitTables creates kpi_summary and the per-group detail tables if absent.
// Detail tables carry a uniqueness constraint on (kpi_id, suffix) so that
// re-running a category upserts instead of appending duplicates.
func (db *KPIDB) InitTables(ctx context.Context, groups []GroupSchema) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS kpi_summary (
			id SERIAL PRIMARY KEY,
			date TIMESTAMP NOT NULL,
			node VARCHAR(50) NOT NULL,
			UNIQUE (date, node)
		)
	`)
	if err != nil {
		return fmt.Errorf("create kpi_summary: %w", err)
	}

	for _, group := range groups {
		cols := []string{
			"id SERIAL PRIMARY KEY",
			"kpi_id INT NOT NULL REFERENCES kpi_summary(id)",
			"operator VARCHAR(50)",
			"suffix VARCHAR(255)",
		}
		for _, kpiCol := range group.Columns {
			cols = append(cols, fmt.Sprintf("%s DOUBLE PRECISION", pgx.Identifier{kpiCol}.Sanitize()))
		}
		cols = append(cols, "UNIQUE (kpi_id, suffix)")

		query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
			pgx.Identifier{group.Table}.Sanitize(), strings.Join(cols, ", "))
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("create group table %s: %w", group.Table, err)
		}
		db.Logger.Debug("Ensured KPI group table",
			zap.String("table", group.Table), zap.Int("kpis", len(group.Columns)))
	}
	return nil
}

// ResolveSummary returns the kpi_summary id for (date, node), creating the
// row lazily on first use. Repeated runs over the same data are idempotent
// at the summary level.
func (db *KPIDB) ResolveSummary(ctx context.Context, date time.Time, node string) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx,
		"SELECT id FROM kpi_summary WHERE date = $1 AND node = $2", date, node).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("look up kpi_summary (%s, %s): %w", date, node, err)
	}

	// ON CONFLICT covers the re-run race on the (date, node) unique key.
	err = db.Pool.QueryRow(ctx, `
		INSERT INTO kpi_summary (date, node) VALUES ($1, $2)
		ON CONFLICT (date, node) DO UPDATE SET node = EXCLUDED.node
		RETURNING id
	`, date, node).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert kpi_summary (%s, %s): %w", date, node, err)
	}
	db.Logger.Debug("Created kpi_summary row",
		zap.Time("date", date), zap.String("node", node), zap.Int64("id", id))
	return id, nil
}

// UpsertDetails writes a buffered batch of detail rows to a group table in
// one transaction, upserting on (kpi_id, suffix). A failed batch is rolled
// back and surfaced to the caller.
func (db *KPIDB) UpsertDetails(ctx context.Context, group GroupSchema, rows []DetailRow) error {
	if len(rows) == 0 {
		return nil
	}

	columns := []string{"kpi_id", "operator", "suffix"}
	for _, kpiCol := range group.Columns {
		columns = append(columns, pgx.Identifier{kpiCol}.Sanitize())
	}
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	updates := []string{"operator = EXCLUDED.operator"}
	for _, kpiCol := range group.Columns {
		quoted := pgx.Identifier{kpiCol}.Sanitize()
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quoted, quoted))
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (kpi_id, suffix) DO UPDATE SET %s",
		pgx.Identifier{group.Table}.Sanitize(),
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)

	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx for %s: %w", group.Table, err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, row := range rows {
		args := make([]any, 0, len(columns))
		args = append(args, row.KpiID, row.Operator, row.Suffix)
		for _, kpiName := range group.Columns {
			args = append(args, row.Values[kpiName])
		}
		batch.Queue(query, args...)
	}

	results := tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("upsert detail rows into %s: %w", group.Table, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch for %s: %w", group.Table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch for %s: %w", group.Table, err)
	}

	db.Logger.Info("Upserted KPI detail rows",
		zap.String("table", group.Table), zap.Int("rows", len(rows)))
	return nil
}
