// Command validate checks a protest dataset CSV before it is served. It loads
// the file exactly as the dashboard does, then verifies the table invariants,
// cross-checks the indexed filter against a linear scan for every week and
// category, and prints per-category counts.
//
// Usage:
//
//	go run ./cmd/validate --data data/selected_data.csv
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/couchcryptid/farm-protest-map/internal/dataset"
	"github.com/couchcryptid/farm-protest-map/internal/domain"
	"github.com/spf13/pflag"
)

// europe is a loose bounding box around the mapped area.
var europe = struct{ minLat, maxLat, minLon, maxLon float64 }{27, 72, -32, 45}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	path := pflag.String("data", "data/selected_data.csv", "path to the protest dataset CSV")
	allowDrops := pflag.Bool("allow-drops", false, "do not fail when rows lack usable coordinates")
	pflag.Parse()

	if code := run(*path, *allowDrops, os.Stdout); code != 0 {
		os.Exit(code)
	}
}

func run(path string, allowDrops bool, out io.Writer) int {
	fmt.Fprintln(out, "=== Protest Dataset Validation ===")
	fmt.Fprintln(out)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	table, report, err := dataset.Load(context.Background(), path, dataset.Options{Logger: logger})
	if err != nil {
		fmt.Fprintf(out, "FATAL: load dataset: %v\n", err)
		return 1
	}
	labels, err := rawWeekLabels(path)
	if err != nil {
		fmt.Fprintf(out, "FATAL: read week labels: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateLoad(report, allowDrops),
		validateWeeks(table, labels),
		validateRecords(table),
		validateFilter(table),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Rows: %d, records: %d, weeks: %d, dropped: %d\n",
		report.Rows, report.Records, report.Weeks, report.Dropped)
	printCategoryCounts(out, table)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// rawWeekLabels returns the week_year column in file order, blanks included.
func rawWeekLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, err
	}
	col := -1
	for i, h := range header {
		if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == dataset.ColWeek {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("no %s column", dataset.ColWeek)
	}

	var labels []string
	for {
		row, err := r.Read()
		if err == io.EOF {
			return labels, nil
		}
		if err != nil {
			return nil, err
		}
		if col < len(row) {
			labels = append(labels, strings.TrimSpace(row[col]))
		}
	}
}

// ── Phase 1: Load ──

func validateLoad(report dataset.Report, allowDrops bool) *phase {
	p := &phase{name: "Phase 1: Load (columns and rows)"}
	for _, c := range report.MissingColumns {
		p.errorf("category column %q missing; every record reads as not flagged", c)
	}
	if report.Dropped > 0 && !allowDrops {
		p.errorf("%d of %d rows dropped for unusable coordinates", report.Dropped, report.Rows)
	}
	if report.Records == 0 {
		p.errorf("no usable records")
	}
	return p
}

// ── Phase 2: Weeks ──
// Time indexes must follow the first-seen order of week labels.

func validateWeeks(table *domain.Table, labels []string) *phase {
	p := &phase{name: "Phase 2: Weeks (first-seen ordering)"}

	var want []string
	for _, l := range labels {
		if l != "" && !slices.Contains(want, l) {
			want = append(want, l)
		}
	}

	weeks := table.Weeks()
	if len(weeks) != len(want) {
		p.errorf("table has %d weeks, file has %d distinct labels", len(weeks), len(want))
	}
	for i, w := range weeks {
		if w.Index != i+1 {
			p.errorf("week %q has index %d, want %d", w.Label, w.Index, i+1)
		}
		if i < len(want) && w.Label != want[i] {
			p.errorf("index %d is %q, first-seen order gives %q", w.Index, w.Label, want[i])
		}
		if w.Year() == "" || w.Number() == "" {
			p.errorf("week label %q is not Year-Week", w.Label)
		}
	}
	return p
}

// ── Phase 3: Records ──

func validateRecords(table *domain.Table) *phase {
	p := &phase{name: "Phase 3: Records (flags and coordinates)"}
	for i, r := range table.Records() {
		if !r.Flagged(domain.AllProtests) {
			p.errorf("record %d: missing %s flag", i, domain.AllProtests)
		}
		if r.Geo.Lat < europe.minLat || r.Geo.Lat > europe.maxLat || r.Geo.Lon < europe.minLon || r.Geo.Lon > europe.maxLon {
			p.errorf("record %d (%s): coordinate %.4f,%.4f outside Europe", i, r.WeekLabel, r.Geo.Lat, r.Geo.Lon)
		}
		if strings.TrimSpace(r.Note) == "" {
			p.errorf("record %d (%s): empty hover note", i, r.WeekLabel)
		}
	}
	return p
}

// ── Phase 4: Filter ──
// The per-week index must agree with a linear scan for every combination.

func validateFilter(table *domain.Table) *phase {
	p := &phase{name: "Phase 4: Filter (index vs scan)"}
	records := table.Records()

	total := 0
	for t := 1; t <= table.Steps(); t++ {
		for _, c := range domain.Categories() {
			indexed, err := table.Filter(t, c.Key)
			if err != nil {
				p.errorf("week %d %s: %v", t, c.Key, err)
				continue
			}
			scanned, _ := domain.Filter(records, t, c.Key)
			if len(indexed) != len(scanned) {
				p.errorf("week %d %s: index returned %d records, scan %d", t, c.Key, len(indexed), len(scanned))
				continue
			}
			for i := range indexed {
				if indexed[i].Note != scanned[i].Note || indexed[i].Geo != scanned[i].Geo {
					p.errorf("week %d %s: record %d differs between index and scan", t, c.Key, i)
					break
				}
			}
			if c.Key == domain.AllProtests {
				total += len(indexed)
			}
		}
	}
	if total != table.Len() {
		p.errorf("all_protests across weeks covers %d records, table has %d", total, table.Len())
	}
	return p
}

func printCategoryCounts(out io.Writer, table *domain.Table) {
	counts := table.CategoryCounts()
	fmt.Fprintln(out, "\nRecords per category:")
	for _, c := range domain.Categories() {
		fmt.Fprintf(out, "  %-56s %d\n", c.Label, counts[c.Key])
	}
}
