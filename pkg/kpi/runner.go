package kpi

import (
	"context"
	"errors"
	"fmt"

	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// AggregatorFactory builds an aggregator for a category, acquiring the
// category's private connections. The returned teardown releases them.
type AggregatorFactory func(ctx context.Context, category Category) (*Aggregator, func(), error)

// Runner fans out one aggregator per category on a worker pool. Each
// category owns its own database connections; workers share nothing but the
// read-only catalog and the stats map. Errors propagate only after every
// category has finished or failed; one category never cancels a sibling.
type Runner struct {
	Logger     *zap.Logger
	Categories []Category
	Factory    AggregatorFactory
	Stats      *xsync.Map[string, Stats]
}

// NewRunner wires a runner over the given categories.
func NewRunner(logger *zap.Logger, categories []Category, factory AggregatorFactory) *Runner {
	return &Runner{
		Logger:     logger,
		Categories: categories,
		Factory:    factory,
		Stats:      xsync.NewMap[string, Stats](),
	}
}

// Run processes every category concurrently and blocks until all are done.
// The combined error of the failed categories is returned.
func (r *Runner) Run(ctx context.Context) error {
	pool := pond.NewPool(len(r.Categories))
	defer pool.StopAndWait()
	group := pool.NewGroup()

	failures := xsync.NewMap[string, error]()

	for _, category := range r.Categories {
		cat := category
		group.Submit(func() {
			if err := r.runCategory(ctx, cat); err != nil {
				r.Logger.Error("Category run failed",
					zap.String("category", cat.Name), zap.Error(err))
				failures.Store(cat.Name, err)
			}
		})
	}
	_ = group.Wait()

	var errs []error
	for _, cat := range r.Categories {
		if err, ok := failures.Load(cat.Name); ok {
			errs = append(errs, fmt.Errorf("category %s: %w", cat.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) runCategory(ctx context.Context, cat Category) error {
	if len(cat.Groups) == 0 {
		r.Logger.Warn("Skipping category with no KPI groups configured",
			zap.String("category", cat.Name))
		return nil
	}

	agg, teardown, err := r.Factory(ctx, cat)
	if err != nil {
		return fmt.Errorf("initialize aggregator: %w", err)
	}
	defer teardown()

	r.Logger.Info("Starting category processing", zap.String("category", cat.Name))
	stats, err := agg.Process(ctx)
	r.Stats.Store(cat.Name, stats)
	return err
}
