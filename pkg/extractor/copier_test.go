package extractor

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/checkpoint"
	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/db"
	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	rows       map[string][]db.CounterRow
	fetches    int
	minOffset  int64
	failUntil  int // fetch attempts that fail before succeeding
	failAlways bool
	failTables map[string]bool
}

func (f *fakeSource) ListTables(ctx context.Context) ([]string, error) {
	var out []string
	for t := range f.rows {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeSource) CountRows(ctx context.Context, table string) (int64, error) {
	return int64(len(f.rows[table])), nil
}

func (f *fakeSource) FetchBatch(ctx context.Context, table string, offset, limit int64) ([]db.CounterRow, error) {
	f.fetches++
	if f.failAlways || f.failTables[table] || f.fetches <= f.failUntil {
		return nil, errors.New("transient source error")
	}
	if f.fetches == 1 || offset < f.minOffset {
		f.minOffset = offset
	}
	all := f.rows[table]
	if offset >= int64(len(all)) {
		return nil, nil
	}
	end := offset + limit
	if end > int64(len(all)) {
		end = int64(len(all))
	}
	return all[offset:end], nil
}

func (f *fakeSource) Close() {}

type fakeRaw struct {
	ensured  map[string]int
	inserted map[string][]db.RawRow
}

func newFakeRaw() *fakeRaw {
	return &fakeRaw{ensured: map[string]int{}, inserted: map[string][]db.RawRow{}}
}

func (f *fakeRaw) EnsureTable(ctx context.Context, table string) error {
	f.ensured[table]++
	return nil
}

func (f *fakeRaw) InsertRows(ctx context.Context, table string, rows []db.RawRow) error {
	f.inserted[table] = append(f.inserted[table], rows...)
	return nil
}

func (f *fakeRaw) HasTable(ctx context.Context, table string) (bool, error) {
	return f.ensured[table] > 0, nil
}

func (f *fakeRaw) DistinctDates(ctx context.Context, table string) ([]time.Time, error) {
	return nil, nil
}

func (f *fakeRaw) FetchCounters(ctx context.Context, table string, dates []time.Time, prefixes []string) ([]db.RawRow, error) {
	return nil, nil
}

func (f *fakeRaw) Close() error { return nil }

type staticIndicators map[int64]string

func (s staticIndicators) Load(table string) (map[int64]string, error) { return s, nil }

type tableIndicators map[string]map[int64]string

func (t tableIndicators) Load(table string) (map[int64]string, error) { return t[table], nil }

func fastRetry() retry.Config {
	return retry.Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func makeRows(n int) []db.CounterRow {
	base := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	rows := make([]db.CounterRow, n)
	for i := range rows {
		v := float64(i)
		rows[i] = db.CounterRow{
			Date:        base.Add(time.Duration(i) * 5 * time.Minute),
			IndicatorID: 1,
			Value:       &v,
		}
	}
	return rows
}

func newCopier(t *testing.T, source *fakeSource, raw *fakeRaw, batchSize int64) (*Copier, *checkpoint.Store) {
	t.Helper()
	cp := checkpoint.Open(zap.NewNop(), filepath.Join(t.TempDir(), "last_extracted.json"))
	return &Copier{
		Logger:      zap.NewNop(),
		Source:      source,
		Raw:         raw,
		Checkpoints: cp,
		Indicators:  staticIndicators{1: "VoiproITRALAC.nw-01"},
		BatchSize:   batchSize,
		FetchRetry:  fastRetry(),
	}, cp
}

func TestCopyTableFull(t *testing.T) {
	const table = "CALIS_APG43_5_S10_A2024"
	source := &fakeSource{rows: map[string][]db.CounterRow{table: makeRows(10)}}
	raw := newFakeRaw()
	copier, cp := newCopier(t, source, raw, 4)

	require.NoError(t, copier.CopyTable(context.Background(), table))

	rec, ok := cp.Get(table)
	require.True(t, ok)
	assert.Equal(t, int64(10), rec.Offset)
	assert.Equal(t, int64(10), rec.TotalExtracted)
	assert.Equal(t, int64(10), rec.TotalRows)
	assert.Equal(t, 100.0, rec.Percentage)
	assert.True(t, rec.Completed)

	assert.Len(t, raw.inserted[table], 10)
	// Batches of 4, 4, 2; the copier stops once extracted == total.
	assert.Equal(t, 3, source.fetches)
}

func TestCopyAllSkipsCompleted(t *testing.T) {
	const table = "CALIS_APG43_5_S10_A2024"
	source := &fakeSource{rows: map[string][]db.CounterRow{table: makeRows(5)}}
	raw := newFakeRaw()
	copier, cp := newCopier(t, source, raw, 5)

	require.NoError(t, cp.Advance(table, 5, 5, 5))
	require.NoError(t, cp.MarkCompleted(table))

	require.NoError(t, copier.CopyAll(context.Background(), []string{table}))
	assert.Zero(t, source.fetches, "completed table must cause zero fetches")
	assert.Empty(t, raw.inserted[table])
}

func TestCopyTableResumesFromCheckpoint(t *testing.T) {
	const table = "CALIS_APG43_5_S10_A2024"
	source := &fakeSource{rows: map[string][]db.CounterRow{table: makeRows(10)}}
	raw := newFakeRaw()
	copier, cp := newCopier(t, source, raw, 4)

	require.NoError(t, cp.Advance(table, 4, 4, 10))

	require.NoError(t, copier.CopyTable(context.Background(), table))

	assert.Equal(t, int64(4), source.minOffset,
		"resume must never re-fetch rows below the persisted offset")
	assert.Len(t, raw.inserted[table], 6)

	rec, _ := cp.Get(table)
	assert.True(t, rec.Completed)
	assert.Equal(t, int64(10), rec.Offset)
}

func TestCopyTableSanitizesNaN(t *testing.T) {
	const table = "CALIS_APG43_5_S10_A2024"
	rows := makeRows(2)
	nan := math.NaN()
	rows[1].Value = &nan
	source := &fakeSource{rows: map[string][]db.CounterRow{table: rows}}
	raw := newFakeRaw()
	copier, _ := newCopier(t, source, raw, 10)

	require.NoError(t, copier.CopyTable(context.Background(), table))

	require.Len(t, raw.inserted[table], 2)
	assert.NotNil(t, raw.inserted[table][0].Value)
	assert.Nil(t, raw.inserted[table][1].Value, "NaN must be rewritten to NULL")
}

func TestCopyTableUnknownIndicator(t *testing.T) {
	const table = "CALIS_APG43_5_S10_A2024"
	rows := makeRows(1)
	rows[0].IndicatorID = 99
	source := &fakeSource{rows: map[string][]db.CounterRow{table: rows}}
	raw := newFakeRaw()
	copier, _ := newCopier(t, source, raw, 10)

	require.NoError(t, copier.CopyTable(context.Background(), table))
	require.Len(t, raw.inserted[table], 1)
	assert.Equal(t, "Unknown", raw.inserted[table][0].Indicator)
}

func TestCopyTableRejectsEmptyIndicatorMap(t *testing.T) {
	const table = "CALIS_APG43_5_S10_A2024"
	source := &fakeSource{rows: map[string][]db.CounterRow{table: makeRows(3)}}
	raw := newFakeRaw()
	copier, cp := newCopier(t, source, raw, 10)
	copier.Indicators = staticIndicators{}

	err := copier.CopyTable(context.Background(), table)
	require.ErrorIs(t, err, ErrNoIndicatorMapping)
	assert.Empty(t, raw.inserted[table])

	rec, ok := cp.Get(table)
	if ok {
		assert.False(t, rec.Completed)
	}
}

func TestCopyAllSkipsUninterpretableTable(t *testing.T) {
	const bad = "CALIS_APG43_5_S10_A2024"
	const good = "MEIND_APG43_5_S10_A2024"
	source := &fakeSource{rows: map[string][]db.CounterRow{
		bad:  makeRows(3),
		good: makeRows(4),
	}}
	raw := newFakeRaw()
	copier, cp := newCopier(t, source, raw, 10)
	copier.Indicators = tableIndicators{good: {1: "VoiproITRALAC.nw-01"}}

	require.NoError(t, copier.CopyAll(context.Background(), []string{bad, good}),
		"a table with no indicator mapping is skipped, not failed")

	assert.Empty(t, raw.inserted[bad])
	assert.False(t, cp.IsCompleted(bad))
	assert.Len(t, raw.inserted[good], 4)
	assert.True(t, cp.IsCompleted(good))
}

func TestCopyAllContinuesPastFailedTable(t *testing.T) {
	const broken = "CALIS_APG43_5_S10_A2024"
	const good = "MEIND_APG43_5_S10_A2024"
	source := &fakeSource{
		rows: map[string][]db.CounterRow{
			broken: makeRows(3),
			good:   makeRows(4),
		},
		failTables: map[string]bool{broken: true},
	}
	raw := newFakeRaw()
	copier, cp := newCopier(t, source, raw, 10)

	err := copier.CopyAll(context.Background(), []string{broken, good})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy table "+broken)
	assert.NotContains(t, err.Error(), good)

	assert.False(t, cp.IsCompleted(broken),
		"the failed table must stay resumable at its last durable offset")
	assert.Len(t, raw.inserted[good], 4,
		"a failed table must not stop the rest of the working set")
	assert.True(t, cp.IsCompleted(good))
}

func TestCopyTableRetriesTransientFetch(t *testing.T) {
	const table = "CALIS_APG43_5_S10_A2024"
	source := &fakeSource{rows: map[string][]db.CounterRow{table: makeRows(3)}, failUntil: 2}
	raw := newFakeRaw()
	copier, cp := newCopier(t, source, raw, 10)

	require.NoError(t, copier.CopyTable(context.Background(), table))
	assert.Len(t, raw.inserted[table], 3)
	assert.True(t, cp.IsCompleted(table))
}

func TestCopyTableFatalAfterRetries(t *testing.T) {
	const table = "CALIS_APG43_5_S10_A2024"
	source := &fakeSource{rows: map[string][]db.CounterRow{table: makeRows(3)}, failAlways: true}
	raw := newFakeRaw()
	copier, cp := newCopier(t, source, raw, 10)

	err := copier.CopyTable(context.Background(), table)
	require.Error(t, err)
	assert.False(t, cp.IsCompleted(table),
		"a table abandoned after retries must stay resumable")
	assert.Empty(t, raw.inserted[table])
}
