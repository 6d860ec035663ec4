package checkpoint

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

// Record tracks extraction progress for a single source table. Offset and
// TotalExtracted stay equal outside of an in-flight batch; Completed is set
// only once the table is exhausted.
type Record struct {
	Offset         int64   `json:"offset"`
	TotalExtracted int64   `json:"total_extracted"`
	TotalRows      int64   `json:"total_rows"`
	Percentage     float64 `json:"percentage"`
	Completed      bool    `json:"completed"`
}

// Store persists per-table extraction progress as a single JSON file keyed
// by table name. The file is rewritten in full after every successful batch
// so a crashed run can always resume from the last durable offset.
type Store struct {
	Logger *zap.Logger
	Path   string

	records map[string]Record
}

// Open loads the checkpoint file at path. A missing, empty or corrupt file
// is treated as "no progress yet" rather than an error.
func Open(logger *zap.Logger, path string) *Store {
	s := &Store{Logger: logger, Path: path, records: map[string]Record{}}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Unable to read checkpoint file, starting fresh",
				zap.String("path", path), zap.Error(err))
		}
		return s
	}
	if len(raw) == 0 {
		logger.Warn("Checkpoint file is empty, starting fresh", zap.String("path", path))
		return s
	}
	if err := json.Unmarshal(raw, &s.records); err != nil {
		logger.Warn("Checkpoint file is not valid JSON, starting fresh",
			zap.String("path", path), zap.Error(err))
		s.records = map[string]Record{}
	}
	return s
}

// Get returns the record for table and whether one exists.
func (s *Store) Get(table string) (Record, bool) {
	rec, ok := s.records[table]
	return rec, ok
}

// IsCompleted reports whether table has been fully extracted.
func (s *Store) IsCompleted(table string) bool {
	rec, ok := s.records[table]
	return ok && rec.Completed
}

// Advance records a successful batch for table and flushes the store.
// Percentage is derived from totalRows captured at the start of the table's
// run, rounded to two decimals.
func (s *Store) Advance(table string, offset, totalExtracted, totalRows int64) error {
	pct := 0.0
	if totalRows > 0 {
		pct = math.Round(float64(totalExtracted)/float64(totalRows)*10000) / 100
	}
	rec := s.records[table]
	rec.Offset = offset
	rec.TotalExtracted = totalExtracted
	rec.TotalRows = totalRows
	rec.Percentage = pct
	s.records[table] = rec
	return s.flush()
}

// MarkCompleted flags table as fully extracted and flushes the store.
func (s *Store) MarkCompleted(table string) error {
	rec := s.records[table]
	rec.Completed = true
	s.records[table] = rec
	return s.flush()
}

// Incomplete returns the names of known tables that are not completed,
// sorted for stable logging. An empty store yields an empty slice, which the
// trigger boundary treats as "nothing pending".
func (s *Store) Incomplete() []string {
	var out []string
	for table, rec := range s.records {
		if !rec.Completed {
			out = append(out, table)
		}
	}
	sort.Strings(out)
	return out
}

// Tables returns the number of known tables.
func (s *Store) Tables() int {
	return len(s.records)
}

func (s *Store) flush() error {
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}
	raw, err := json.MarshalIndent(s.records, "", "    ")
	if err != nil {
		return fmt.Errorf("encode checkpoints: %w", err)
	}
	if err := os.WriteFile(s.Path, raw, 0o644); err != nil {
		return fmt.Errorf("write checkpoint file %s: %w", s.Path, err)
	}
	return nil
}

// Gate validates the trigger boundary between extraction and aggregation:
// every known table must be completed before aggregation may run. A missing
// or empty checkpoint file gates open.
func Gate(logger *zap.Logger, path string) error {
	store := Open(logger, path)
	if store.Tables() == 0 {
		logger.Info("No extraction progress recorded, nothing pending", zap.String("path", path))
		return nil
	}
	if pending := store.Incomplete(); len(pending) > 0 {
		return fmt.Errorf("extraction incomplete for %d table(s): %v", len(pending), pending)
	}
	logger.Info("All tables fully extracted", zap.Int("tables", store.Tables()))
	return nil
}
