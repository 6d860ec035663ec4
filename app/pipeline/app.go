package pipeline

import (
	"context"
	"fmt"

	"github.com/Achraf-CHAHBOUNE/Orange-system/app/extractor"
	"github.com/Achraf-CHAHBOUNE/Orange-system/app/transformer"
	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/logging"
	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/utils"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// App schedules the full pipeline: every Cron tick runs extraction, then the
// checkpoint gate, then aggregation. A failed tick is logged and retried on
// the next schedule; ticks never overlap.
type App struct {
	Logger   *zap.Logger
	Cron     *cron.Cron
	CronSpec string
}

// Initialize initializes the application.
func Initialize(ctx context.Context) *App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	app := &App{
		Logger:   logger,
		CronSpec: utils.Env("PIPELINE_CRON", "0 */5 * * * *"),
	}
	if err := app.SetupScheduler(ctx, cron.DefaultLogger, app.CronSpec); err != nil {
		logger.Fatal("Unable to schedule pipeline", zap.Error(err))
	}
	return app
}

// SetupScheduler sets up the cron scheduler.
func (a *App) SetupScheduler(ctx context.Context, logger cron.Logger, cronSpec string) error {
	// Seconds field; a tick still running when the next fires is skipped.
	a.Cron = cron.New(cron.WithSeconds(), cron.WithChain(
		cron.SkipIfStillRunning(logger),
		cron.Recover(logger),
	))

	_, err := a.Cron.AddFunc(cronSpec, func() {
		if err := a.RunOnce(ctx); err != nil {
			a.Logger.Error("Pipeline run failed", zap.Error(err))
		}
	})
	return err
}

// RunOnce performs one extract, gate, transform cycle. Connections are
// opened per run and released before the next tick.
func (a *App) RunOnce(ctx context.Context) error {
	ext, err := extractor.New(ctx, a.Logger)
	if err != nil {
		return fmt.Errorf("initialize extractor: %w", err)
	}
	runErr := ext.Run(ctx)
	ext.Stop()
	if runErr != nil {
		return fmt.Errorf("extract: %w", runErr)
	}

	if err := transformer.New(a.Logger).Run(ctx); err != nil {
		return fmt.Errorf("transform: %w", err)
	}
	return nil
}

// Start starts the scheduler and blocks until the context is canceled.
func (a *App) Start(ctx context.Context) {
	a.Cron.Start()
	a.Logger.Info("Pipeline scheduler started", zap.String("cron_spec", a.CronSpec))

	<-ctx.Done()
	stopped := a.Cron.Stop()
	<-stopped.Done()
	a.Logger.Info("Pipeline scheduler stopped")
}
