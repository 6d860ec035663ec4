package transformer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/checkpoint"
	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/db"
	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/kpi"
	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/logging"
	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/retry"
	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/utils"
	"go.uber.org/zap"
)

// App runs the KPI aggregation phase: gate on the copy checkpoint, then fan
// out one aggregator per category.
type App struct {
	Logger         *zap.Logger
	Runner         *kpi.Runner
	CheckpointPath string
}

// New builds the app from the environment. Database connections are opened
// lazily per category by the aggregator factory, so construction cannot fail.
func New(logger *zap.Logger) *App {
	dataDir := utils.Env("DATA_DIR", "./data")
	return &App{
		Logger:         logger,
		Runner:         kpi.NewRunner(logger, kpi.Catalog(dataDir), Factory(logger)),
		CheckpointPath: utils.Env("CHECKPOINT_PATH", filepath.Join(dataDir, "checkpoint.json")),
	}
}

// Initialize initializes the application.
func Initialize(_ context.Context) *App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}
	return New(logger)
}

// Factory returns an aggregator factory opening each category's private
// ClickHouse and Postgres connections. The teardown closes both.
func Factory(logger *zap.Logger) kpi.AggregatorFactory {
	return func(ctx context.Context, cat kpi.Category) (*kpi.Aggregator, func(), error) {
		raw, err := db.NewRawDB(ctx, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect analytics store: %w", err)
		}
		dest, err := db.NewKPIDB(ctx, logger, cat.KPIURLEnv, cat.Name)
		if err != nil {
			_ = raw.Close()
			return nil, nil, fmt.Errorf("connect KPI store: %w", err)
		}

		agg := &kpi.Aggregator{
			Logger:          logger.With(zap.String("category", cat.Name)),
			Raw:             raw,
			Dest:            dest,
			Category:        cat,
			DateBatchSize:   utils.EnvInt("DATE_BATCH_SIZE", 500),
			InsertBatchSize: utils.EnvInt("INSERT_BATCH_SIZE", 98000),
			FetchRetry:      retry.FixedConfig(),
		}
		teardown := func() {
			dest.Close()
			if err := raw.Close(); err != nil {
				logger.Warn("Closing analytics connection", zap.Error(err))
			}
		}
		return agg, teardown, nil
	}
}

// Run gates on the copy checkpoint and processes every category.
func (a *App) Run(ctx context.Context) error {
	if err := checkpoint.Gate(a.Logger, a.CheckpointPath); err != nil {
		return err
	}
	if err := a.Runner.Run(ctx); err != nil {
		return err
	}

	a.Runner.Stats.Range(func(category string, s kpi.Stats) bool {
		a.Logger.Info("Category complete",
			zap.String("category", category),
			zap.Int("tables", s.Tables),
			zap.Int("skipped_tables", s.SkippedTables),
			zap.Int("rows", s.Rows))
		return true
	})
	return nil
}

// Start runs a single aggregation pass and exits.
func (a *App) Start(ctx context.Context) {
	if err := a.Run(ctx); err != nil {
		a.Logger.Fatal("Aggregation pass failed", zap.Error(err))
	}
	a.Logger.Info("Transformer finished")
}
