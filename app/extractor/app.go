package extractor

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/checkpoint"
	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/db"
	extract "github.com/Achraf-CHAHBOUNE/Orange-system/pkg/extractor"
	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/indicators"
	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/logging"
	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/retry"
	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/tables"
	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/utils"
	"go.uber.org/zap"
)

// App drives one extraction pass: select the working set from the source
// schema, then copy each table to the analytics store with checkpointed
// resume.
type App struct {
	Logger      *zap.Logger
	Source      *db.SourceDB
	Raw         *db.RawDB
	Checkpoints *checkpoint.Store
	Selector    *tables.Selector
	Copier      *extract.Copier
}

// New builds the app from the environment and opens its connections.
func New(ctx context.Context, logger *zap.Logger) (*App, error) {
	dataDir := utils.Env("DATA_DIR", "./data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}

	source, err := db.NewSourceDB(ctx, logger)
	if err != nil {
		return nil, err
	}

	raw, err := db.NewRawDB(ctx, logger)
	if err != nil {
		source.Close()
		return nil, err
	}

	checkpoints := checkpoint.Open(logger, utils.Env("CHECKPOINT_PATH", filepath.Join(dataDir, "checkpoint.json")))

	selector := &tables.Selector{
		Logger:    logger,
		StartDate: utils.EnvDate("START_DATE", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		DataDir:   dataDir,
	}

	copier := &extract.Copier{
		Logger:      logger,
		Source:      source,
		Raw:         raw,
		Checkpoints: checkpoints,
		Indicators: &indicators.Loader{
			Logger: logger,
			Dir:    utils.Env("INDICATOR_DIR", filepath.Join(dataDir, "indicators")),
		},
		BatchSize:  int64(utils.EnvInt("EXTRACT_BATCH_SIZE", 5000)),
		FetchRetry: retry.FetchConfig(),
	}

	return &App{
		Logger:      logger,
		Source:      source,
		Raw:         raw,
		Checkpoints: checkpoints,
		Selector:    selector,
		Copier:      copier,
	}, nil
}

// Initialize initializes the application.
func Initialize(ctx context.Context) *App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	app, err := New(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to initialize extractor", zap.Error(err))
	}
	return app
}

// Run performs one selection + copy pass over the working set.
func (a *App) Run(ctx context.Context) error {
	names, err := a.Source.ListTables(ctx)
	if err != nil {
		return err
	}

	_, workingSet, err := a.Selector.Select(names)
	if err != nil {
		return err
	}
	if len(workingSet) == 0 {
		a.Logger.Warn("Empty working set, nothing to extract")
		return nil
	}

	return a.Copier.CopyAll(ctx, workingSet)
}

// Start runs a single extraction pass and shuts down.
func (a *App) Start(ctx context.Context) {
	err := a.Run(ctx)
	a.Stop()
	if err != nil {
		a.Logger.Fatal("Extraction pass failed", zap.Error(err))
	}
}

// Stop releases the database connections.
func (a *App) Stop() {
	a.Source.Close()
	if err := a.Raw.Close(); err != nil {
		a.Logger.Warn("Closing analytics connection", zap.Error(err))
	}
	a.Logger.Info("Extractor stopped", zap.Int("checkpointed_tables", a.Checkpoints.Tables()))
}
