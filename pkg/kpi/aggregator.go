package kpi

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/db"
	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/retry"
	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/tables"
	"go.uber.org/zap"
)

// Category is one logical class of counter tables processed by its own
// aggregator instance with its own connections.
type Category struct {
	Name         string
	NodePattern  *regexp.Regexp
	Groups       []Group
	Rules        []OperatorRule
	ManifestPath string
	// KPIURLEnv names the environment variable holding this category's KPI
	// destination database URL.
	KPIURLEnv string
}

// Stats summarizes one category run.
type Stats struct {
	Tables        int
	SkippedTables int
	Rows          int
}

// Aggregator turns raw counter tables of one category into normalized KPI
// rows: it regroups rows by entity and time, maps counter-name suffixes to
// operator identities and evaluates the category's KPI formula table.
type Aggregator struct {
	Logger          *zap.Logger
	Raw             db.RawStore
	Dest            db.KPIStore
	Category        Category
	DateBatchSize   int
	InsertBatchSize int
	FetchRetry      retry.Config

	buffers map[string][]db.DetailRow
	stats   Stats
}

// suffixAgg accumulates counter values for one suffix at one timestamp.
type suffixAgg struct {
	operator string
	counters map[string]float64
}

// Process runs the category to completion: every manifest table, every
// date-batch, with buffered flushes to the KPI destination. An extraction
// failure that survives retries is fatal to the whole category run, since
// downstream KPI rows depend on complete per-date data.
func (a *Aggregator) Process(ctx context.Context) (Stats, error) {
	schemas := make([]db.GroupSchema, len(a.Category.Groups))
	for i, g := range a.Category.Groups {
		schemas[i] = g.Schema()
	}
	if err := a.Dest.InitTables(ctx, schemas); err != nil {
		return a.stats, fmt.Errorf("init KPI tables: %w", err)
	}

	workSet, err := tables.ReadManifest(a.Category.ManifestPath)
	if err != nil {
		return a.stats, fmt.Errorf("load working set: %w", err)
	}
	if len(workSet) == 0 {
		a.Logger.Warn("No tables in selection manifest",
			zap.String("category", a.Category.Name),
			zap.String("path", a.Category.ManifestPath))
	}

	a.buffers = make(map[string][]db.DetailRow, len(a.Category.Groups))
	counterUniverse := AllCounters(a.Category.Groups)

	for _, table := range workSet {
		if err := a.processTable(ctx, table, counterUniverse); err != nil {
			return a.stats, err
		}
	}

	// Final flush of whatever is still buffered.
	for _, group := range a.Category.Groups {
		if err := a.flush(ctx, group); err != nil {
			return a.stats, err
		}
	}
	a.Logger.Info("Category processing complete",
		zap.String("category", a.Category.Name),
		zap.Int("tables", a.stats.Tables),
		zap.Int("skipped_tables", a.stats.SkippedTables),
		zap.Int("rows", a.stats.Rows))
	return a.stats, nil
}

func (a *Aggregator) processTable(ctx context.Context, table string, counterUniverse []string) error {
	node, ok := a.extractNode(table)
	if !ok {
		a.Logger.Warn("No node extractable from table name, skipping",
			zap.String("category", a.Category.Name), zap.String("table", table))
		a.stats.SkippedTables++
		return nil
	}

	exists, err := a.Raw.HasTable(ctx, table)
	if err != nil {
		return fmt.Errorf("check raw table %s: %w", table, err)
	}
	if !exists {
		a.Logger.Warn("Raw table not extracted yet, skipping",
			zap.String("category", a.Category.Name), zap.String("table", table))
		a.stats.SkippedTables++
		return nil
	}

	dates, err := a.Raw.DistinctDates(ctx, table)
	if err != nil {
		return fmt.Errorf("distinct dates for %s: %w", table, err)
	}
	a.Logger.Info("Processing table",
		zap.String("table", table), zap.String("node", node), zap.Int("dates", len(dates)))

	for start := 0; start < len(dates); start += a.DateBatchSize {
		end := start + a.DateBatchSize
		if end > len(dates) {
			end = len(dates)
		}
		if err := a.processDateBatch(ctx, table, node, dates[start:end], counterUniverse); err != nil {
			return err
		}
	}

	a.stats.Tables++
	return nil
}

func (a *Aggregator) processDateBatch(ctx context.Context, table, node string, dates []time.Time, counterUniverse []string) error {
	var rows []db.RawRow
	err := retry.WithBackoff(ctx, a.FetchRetry, a.Logger, "fetch_date_batch", func() error {
		var fetchErr error
		rows, fetchErr = a.Raw.FetchCounters(ctx, table, dates, counterUniverse)
		return fetchErr
	})
	if err != nil {
		return fmt.Errorf("extract date batch from %s: %w", table, err)
	}
	if len(rows) == 0 {
		a.Logger.Debug("No counter rows for date batch",
			zap.String("table", table), zap.Int("dates", len(dates)))
		return nil
	}

	// Key by instant: wall-clock equality is what matters here, not the
	// location or monotonic reading attached by the driver.
	byDate := make(map[int64][]db.RawRow)
	for _, row := range rows {
		byDate[row.Date.Unix()] = append(byDate[row.Date.Unix()], row)
	}

	for _, date := range dates {
		dateRows, ok := byDate[date.Unix()]
		if !ok {
			continue
		}
		if err := a.processDate(ctx, table, node, date, dateRows); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) processDate(ctx context.Context, table, node string, date time.Time, rows []db.RawRow) error {
	kpiID, err := a.Dest.ResolveSummary(ctx, date, node)
	if err != nil {
		return fmt.Errorf("resolve summary for %s at %s: %w", table, date, err)
	}

	grouped := a.aggregateBySuffix(rows)
	suffixes := make([]string, 0, len(grouped))
	for suffix := range grouped {
		suffixes = append(suffixes, suffix)
	}
	sort.Strings(suffixes)

	for _, group := range a.Category.Groups {
		for _, suffix := range suffixes {
			agg := grouped[suffix]
			values := make(map[string]*float64, len(group.KPIs))
			anyValue := false
			for _, def := range group.KPIs {
				v := Evaluate(def, agg.counters)
				values[def.Name] = v
				if v != nil {
					anyValue = true
				}
			}
			if !anyValue {
				a.Logger.Warn("Dropping detail row with no computed KPI values",
					zap.String("table", group.Table),
					zap.Int64("kpi_id", kpiID),
					zap.String("operator", agg.operator),
					zap.String("suffix", suffix))
				continue
			}
			a.buffers[group.Table] = append(a.buffers[group.Table], db.DetailRow{
				KpiID:    kpiID,
				Operator: agg.operator,
				Suffix:   suffix,
				Values:   values,
			})
		}
		if len(a.buffers[group.Table]) >= a.InsertBatchSize {
			if err := a.flush(ctx, group); err != nil {
				return err
			}
		}
	}
	return nil
}

// aggregateBySuffix decomposes indicator names, drops rows with no suffix or
// the non-data sentinel, resolves operators and sums values per
// (suffix, prefix). NULL values contribute zero.
func (a *Aggregator) aggregateBySuffix(rows []db.RawRow) map[string]*suffixAgg {
	grouped := make(map[string]*suffixAgg)
	unmapped := make(map[string]bool)

	for _, row := range rows {
		prefix, suffix, ok := SplitIndicator(row.Indicator)
		if !ok || suffix == sentinelSuffix {
			continue
		}
		agg := grouped[suffix]
		if agg == nil {
			operator, mapped := ResolveOperator(a.Category.Rules, suffix)
			if !mapped {
				unmapped[suffix] = true
			}
			agg = &suffixAgg{operator: operator, counters: map[string]float64{}}
			grouped[suffix] = agg
		}
		v := 0.0
		if row.Value != nil {
			v = *row.Value
		}
		agg.counters[prefix] += v
	}

	if len(unmapped) > 0 {
		names := make([]string, 0, len(unmapped))
		for s := range unmapped {
			names = append(names, s)
		}
		sort.Strings(names)
		a.Logger.Warn("Unmapped suffixes resolved to Other",
			zap.String("category", a.Category.Name),
			zap.String("suffixes", strings.Join(names, ",")))
	}
	return grouped
}

func (a *Aggregator) flush(ctx context.Context, group Group) error {
	rows := a.buffers[group.Table]
	if len(rows) == 0 {
		return nil
	}
	if err := a.Dest.UpsertDetails(ctx, group.Schema(), rows); err != nil {
		return fmt.Errorf("flush %d rows to %s: %w", len(rows), group.Table, err)
	}
	a.stats.Rows += len(rows)
	a.buffers[group.Table] = nil
	return nil
}

func (a *Aggregator) extractNode(table string) (string, bool) {
	m := a.Category.NodePattern.FindStringSubmatch(table)
	if m == nil || len(m) < 2 {
		return "", false
	}
	return strings.ToUpper(m[1]), true
}
