package tables

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Category names. Each source table belongs to exactly one category or is
// excluded from the pipeline.
const (
	CategoryFiveMin    = "5min"
	CategoryFifteenMin = "15min"
	CategoryGateway    = "mgw"
)

var (
	categoryPatterns = map[string]*regexp.Regexp{
		CategoryFiveMin:    regexp.MustCompile(`(?i)^(CALIS|MEIND|RAIND)[-_]APG43[_-]5_S\d+_A\d{4}$`),
		CategoryFifteenMin: regexp.MustCompile(`(?i)^(CALIS|MEIND|RAIND)[-_]APG43[_-]15_S\d+_A\d{4}$`),
		CategoryGateway:    regexp.MustCompile(`(?i)^([A-Za-z0-9]+)MGW_S\d+_A\d{4}$`),
	}

	weekYearRe = regexp.MustCompile(`(?i)_S(\d+)_A(\d{4})$`)
)

// Patterns returns the category matching patterns keyed by category name.
func Patterns() map[string]*regexp.Regexp {
	return categoryPatterns
}

// Categories returns the category names in processing order.
func Categories() []string {
	return []string{CategoryFiveMin, CategoryFifteenMin, CategoryGateway}
}

// ManifestPath returns the selection manifest file for a category under dir.
func ManifestPath(dir, category string) string {
	return filepath.Join(dir, fmt.Sprintf("result_%s.txt", category))
}

// WeekYear extracts the week index and 4-digit year encoded in a table name
// suffix of the form _S<week>_A<year>.
func WeekYear(table string) (week, year int, ok bool) {
	m := weekYearRe.FindStringSubmatch(table)
	if m == nil {
		return 0, 0, false
	}
	week, _ = strconv.Atoi(m[1])
	year, _ = strconv.Atoi(m[2])
	return week, year, true
}

// WeekDate resolves (week, year) to the Monday of the Monday-based week of
// that year. Week 0 collapses to January 1st; weeks beyond 53 are rejected.
func WeekDate(week, year int) (time.Time, error) {
	if week > 53 {
		return time.Time{}, fmt.Errorf("week %d out of range for year %d", week, year)
	}
	jan1 := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	if week == 0 {
		return jan1, nil
	}
	// Days until the first Monday of the year.
	delta := (int(time.Monday) - int(jan1.Weekday()) + 7) % 7
	firstMonday := jan1.AddDate(0, 0, delta)
	return firstMonday.AddDate(0, 0, (week-1)*7), nil
}

// StripWeekYear removes the _S<week>_A<year> suffix from a table name,
// yielding the category base name used to key external lookups.
func StripWeekYear(table string) string {
	return weekYearRe.ReplaceAllString(table, "")
}

// Selector filters raw source table names into per-category, date-bounded,
// chronologically sorted work lists and persists them as manifest files.
type Selector struct {
	Logger    *zap.Logger
	StartDate time.Time
	DataDir   string
}

// Filter returns the table names matching the given category pattern.
func (s *Selector) Filter(names []string, pattern *regexp.Regexp) []string {
	var out []string
	for _, name := range names {
		if pattern.MatchString(name) {
			out = append(out, name)
		}
	}
	return out
}

// FilterByStartDate keeps tables whose encoded week/year resolves to a date
// on or after StartDate. Tables with no resolvable week/year are dropped
// with a warning, never an error.
func (s *Selector) FilterByStartDate(names []string) []string {
	var out []string
	for _, name := range names {
		week, year, ok := WeekYear(name)
		if !ok {
			s.Logger.Warn("Skipping table with no week/year suffix", zap.String("table", name))
			continue
		}
		date, err := WeekDate(week, year)
		if err != nil {
			s.Logger.Warn("Skipping table with unresolvable week/year",
				zap.String("table", name), zap.Error(err))
			continue
		}
		if date.Before(s.StartDate) {
			s.Logger.Debug("Skipping table before start date",
				zap.String("table", name), zap.Time("table_date", date))
			continue
		}
		out = append(out, name)
	}
	return out
}

// SortByYearWeek sorts table names ascending by (year, week).
func (s *Selector) SortByYearWeek(names []string) []string {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.SliceStable(sorted, func(i, j int) bool {
		wi, yi, _ := WeekYear(sorted[i])
		wj, yj, _ := WeekYear(sorted[j])
		if yi != yj {
			return yi < yj
		}
		return wi < wj
	})
	return sorted
}

// Select produces the per-category work lists from the full set of source
// table names and writes one manifest file per category. The returned
// working set for extraction is the shortest-cadence category.
func (s *Selector) Select(names []string) (map[string][]string, []string, error) {
	selected := make(map[string][]string, len(categoryPatterns))
	for _, category := range Categories() {
		matched := s.Filter(names, categoryPatterns[category])
		inRange := s.FilterByStartDate(matched)
		ordered := s.SortByYearWeek(inRange)
		selected[category] = ordered
		s.Logger.Info("Selected tables for category",
			zap.String("category", category),
			zap.Int("matched", len(matched)),
			zap.Int("selected", len(ordered)))

		if err := s.writeManifest(category, ordered); err != nil {
			return nil, nil, err
		}
	}
	return selected, selected[CategoryFiveMin], nil
}

func (s *Selector) writeManifest(category string, tables []string) error {
	path := ManifestPath(s.DataDir, category)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(tables, "\n")), 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}
	s.Logger.Info("Wrote selection manifest",
		zap.String("category", category),
		zap.String("path", path),
		zap.Int("tables", len(tables)))
	return nil
}

// ReadManifest loads a category manifest written by Select. It is the
// aggregator's source of truth for its working set.
func ReadManifest(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var tables []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			tables = append(tables, line)
		}
	}
	return tables, nil
}
