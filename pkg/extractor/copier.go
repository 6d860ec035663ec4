package extractor

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/checkpoint"
	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/db"
	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/indicators"
	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/retry"
	"go.uber.org/zap"
)

// IndicatorSource resolves the per-table indicator id -> name mapping.
type IndicatorSource interface {
	Load(table string) (map[int64]string, error)
}

// ErrNoIndicatorMapping reports a table whose indicator resource is missing
// or empty. The table cannot be interpreted and is skipped, not failed.
var ErrNoIndicatorMapping = errors.New("no indicator mapping")

// Copier moves source counter tables to the analytics destination in
// fixed-size batches, persisting a checkpoint after every batch so an
// interrupted run resumes at the last durable offset. It runs one table and
// one batch at a time to bound source load and keep checkpoint writes
// strictly ordered.
type Copier struct {
	Logger      *zap.Logger
	Source      db.SourceStore
	Raw         db.RawStore
	Checkpoints *checkpoint.Store
	Indicators  IndicatorSource
	BatchSize   int64
	FetchRetry  retry.Config
}

// CopyAll processes the working set sequentially. Tables already marked
// completed are skipped without touching the databases, and a table with no
// usable indicator mapping is skipped with a warning. A table whose copy
// fails is abandoned at its last durable offset; the remaining tables still
// run and the combined error is returned at the end.
func (c *Copier) CopyAll(ctx context.Context, tables []string) error {
	var errs []error
	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if c.Checkpoints.IsCompleted(table) {
			c.Logger.Info("Skipping fully copied table", zap.String("table", table))
			continue
		}

		err := c.CopyTable(ctx, table)
		switch {
		case err == nil:
		case errors.Is(err, ErrNoIndicatorMapping):
			c.Logger.Warn("Table cannot be interpreted, skipping",
				zap.String("table", table), zap.Error(err))
		default:
			c.Logger.Error("Table copy failed, continuing with remaining tables",
				zap.String("table", table), zap.Error(err))
			errs = append(errs, fmt.Errorf("copy table %s: %w", table, err))
		}
	}
	return errors.Join(errs...)
}

// CopyTable copies one table to completion, resuming from any existing
// checkpoint. Terminates when a fetch comes back empty or the cumulative
// extracted count reaches the row total captured at start.
func (c *Copier) CopyTable(ctx context.Context, table string) error {
	offset := int64(0)
	totalExtracted := int64(0)
	if rec, ok := c.Checkpoints.Get(table); ok {
		offset = rec.Offset
		totalExtracted = rec.Offset
		c.Logger.Info("Resuming extraction",
			zap.String("table", table), zap.Int64("offset", offset))
	}

	totalRows, err := c.Source.CountRows(ctx, table)
	if err != nil {
		return fmt.Errorf("count rows: %w", err)
	}

	for {
		batch, err := c.fetchWithRetry(ctx, table, offset)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			c.Logger.Info("No more rows to copy",
				zap.String("table", table), zap.Int64("offset", offset))
			break
		}

		rows, err := c.annotate(table, batch)
		if err != nil {
			return err
		}

		if err := c.Raw.EnsureTable(ctx, table); err != nil {
			return err
		}
		if err := c.Raw.InsertRows(ctx, table, rows); err != nil {
			return err
		}

		offset += int64(len(batch))
		totalExtracted += int64(len(batch))
		if err := c.Checkpoints.Advance(table, offset, totalExtracted, totalRows); err != nil {
			return fmt.Errorf("persist checkpoint: %w", err)
		}
		c.Logger.Info("Copied batch",
			zap.String("table", table),
			zap.Int64("extracted", totalExtracted),
			zap.Int64("total_rows", totalRows))

		if totalExtracted >= totalRows {
			c.Logger.Info("Table fully extracted",
				zap.String("table", table), zap.Int64("rows", totalExtracted))
			break
		}
	}

	if err := c.Checkpoints.MarkCompleted(table); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// fetchWithRetry reads one batch, retrying transient failures with a bounded
// exponential backoff before treating the error as fatal for this table.
func (c *Copier) fetchWithRetry(ctx context.Context, table string, offset int64) ([]db.CounterRow, error) {
	var batch []db.CounterRow
	err := retry.WithBackoff(ctx, c.FetchRetry, c.Logger, "fetch_batch", func() error {
		var fetchErr error
		batch, fetchErr = c.Source.FetchBatch(ctx, table, offset, c.BatchSize)
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("fetch batch at offset %d: %w", offset, err)
	}
	return batch, nil
}

// annotate joins each row against the table's indicator map and rewrites
// NaN values to NULL, since NaN is not portable across storage engines.
// An empty indicator map rejects the whole batch: the table cannot be
// interpreted without it.
func (c *Copier) annotate(table string, batch []db.CounterRow) ([]db.RawRow, error) {
	indicatorMap, err := c.Indicators.Load(table)
	if err != nil {
		return nil, fmt.Errorf("load indicator map: %w", err)
	}
	if len(indicatorMap) == 0 {
		return nil, fmt.Errorf("%w for table %s", ErrNoIndicatorMapping, table)
	}

	rows := make([]db.RawRow, 0, len(batch))
	for _, in := range batch {
		name, ok := indicatorMap[in.IndicatorID]
		if !ok {
			name = indicators.Unknown
		}
		value := in.Value
		if value != nil && math.IsNaN(*value) {
			value = nil
		}
		rows = append(rows, db.RawRow{Date: in.Date, Indicator: name, Value: value})
	}
	return rows, nil
}
