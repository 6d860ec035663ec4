package indicators

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Achraf-CHAHBOUNE/Orange-system/pkg/tables"
	"go.uber.org/zap"
)

// Unknown is substituted when a source row references an indicator id that
// is absent from the table's lookup resource.
const Unknown = "Unknown"

// Loader resolves indicator id -> indicator name mappings from per-table CSV
// resources named indicateur_<base>.csv, where <base> is the table name with
// its week/year suffix stripped.
type Loader struct {
	Logger *zap.Logger
	Dir    string
}

// Load returns the indicator map for table. A missing resource yields an
// empty map, which callers must treat as "table cannot be interpreted".
func (l *Loader) Load(table string) (map[int64]string, error) {
	base := strings.ToLower(tables.StripWeekYear(table))
	path := filepath.Join(l.Dir, fmt.Sprintf("indicateur_%s.csv", base))

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			l.Logger.Warn("Indicator resource not found",
				zap.String("table", table), zap.String("path", path))
			return map[int64]string{}, nil
		}
		return nil, fmt.Errorf("open indicator resource %s: %w", path, err)
	}
	defer f.Close()

	return l.parse(f, path)
}

func (l *Loader) parse(r io.Reader, path string) (map[int64]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return map[int64]string{}, nil
		}
		return nil, fmt.Errorf("read indicator header %s: %w", path, err)
	}

	idCol, nameCol := -1, -1
	for i, col := range header {
		switch strings.TrimSpace(col) {
		case "ID_indicateur":
			idCol = i
		case "indicateur":
			nameCol = i
		}
	}
	if idCol < 0 || nameCol < 0 {
		return nil, fmt.Errorf("indicator resource %s missing ID_indicateur/indicateur columns", path)
	}

	out := map[int64]string{}
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read indicator row %s: %w", path, err)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(rec[idCol]), 10, 64)
		if err != nil {
			l.Logger.Warn("Skipping indicator row with non-numeric id",
				zap.String("path", path), zap.String("id", rec[idCol]))
			continue
		}
		out[id] = rec[nameCol]
	}

	l.Logger.Debug("Loaded indicator map",
		zap.String("path", path), zap.Int("entries", len(out)))
	return out, nil
}
