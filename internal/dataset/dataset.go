// Package dataset loads the protest CSV into an immutable domain.Table.
//
// The file is read once at startup. Week labels (week_year) are numbered in
// first-seen order across every row, including rows that are later dropped,
// so the slider covers every week present in the file. Rows whose lat/lon
// cannot be parsed are forward-geocoded from their location and country
// columns when a geocoder is configured, and dropped otherwise.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/farm-protest-map/internal/domain"
)

// Column names in the source CSV.
const (
	ColWeek         = "week_year"
	ColLat          = "lat"
	ColLon          = "lon"
	ColNotesWrapped = "notes_wrapped"
	ColNotes        = "notes"
	ColLocation     = "location"
	ColCountry      = "country"
)

// ErrMissingColumn is returned when a required column is absent from the header.
var ErrMissingColumn = errors.New("missing required column")

// Options configures a load.
type Options struct {
	// Geocoder resolves rows without usable coordinates. Nil disables geocoding.
	Geocoder domain.Geocoder
	Logger   *slog.Logger
}

// Report summarises a load.
type Report struct {
	Rows           int      `json:"rows"`
	Records        int      `json:"records"`
	Weeks          int      `json:"weeks"`
	Geocoded       int      `json:"geocoded"`
	Dropped        int      `json:"dropped"`
	MissingColumns []string `json:"missing_columns,omitempty"`
}

// Load opens path and reads it with Read.
func Load(ctx context.Context, path string, opts Options) (*domain.Table, Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Report{}, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	return Read(ctx, f, opts)
}

// Read parses CSV from r into a Table.
func Read(ctx context.Context, r io.Reader, opts Options) (*domain.Table, Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, Report{}, errors.New("read header: empty file")
		}
		return nil, Report{}, fmt.Errorf("read header: %w", err)
	}
	cols, err := newColumns(header)
	if err != nil {
		return nil, Report{}, err
	}

	var report Report
	for _, key := range domain.ReasonKeys() {
		if _, ok := cols.index[key]; !ok {
			report.MissingColumns = append(report.MissingColumns, key)
		}
	}
	if len(report.MissingColumns) > 0 {
		logger.Warn("category columns missing, flags default to 0", "columns", report.MissingColumns)
	}

	l := loader{
		cols:     cols,
		geocoder: opts.Geocoder,
		logger:   logger,
		weekIdx:  make(map[string]int),
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, Report{}, err
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, Report{}, fmt.Errorf("read row %d: %w", report.Rows+1, err)
		}
		report.Rows++
		l.add(ctx, row, report.Rows, &report)
	}

	table, err := domain.NewTable(l.records, l.weeks)
	if err != nil {
		return nil, Report{}, err
	}
	report.Records = table.Len()
	report.Weeks = table.Steps()
	return table, report, nil
}

type columns struct {
	index map[string]int
	note  int // -1 when neither notes column exists
}

func newColumns(header []string) (columns, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	for _, required := range []string{ColWeek, ColLat, ColLon} {
		if _, ok := idx[required]; !ok {
			return columns{}, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}

	note := -1
	if i, ok := idx[ColNotesWrapped]; ok {
		note = i
	} else if i, ok := idx[ColNotes]; ok {
		note = i
	}
	return columns{index: idx, note: note}, nil
}

func (c columns) get(row []string, name string) string {
	i, ok := c.index[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

type loader struct {
	cols     columns
	geocoder domain.Geocoder
	logger   *slog.Logger

	weeks   []domain.Week
	weekIdx map[string]int
	records []domain.Record
}

func (l *loader) add(ctx context.Context, row []string, line int, report *Report) {
	label := l.cols.get(row, ColWeek)
	if label == "" {
		l.logger.Warn("dropping row without week label", "row", line)
		report.Dropped++
		return
	}
	timeIndex := l.timeIndex(label)

	geo, ok := parseGeo(l.cols.get(row, ColLat), l.cols.get(row, ColLon))
	if !ok {
		geo, ok = l.geocode(ctx, row, line)
		if !ok {
			report.Dropped++
			return
		}
		report.Geocoded++
	}

	flags := map[string]bool{domain.AllProtests: true}
	for _, key := range domain.ReasonKeys() {
		if parseFlag(l.cols.get(row, key)) {
			flags[key] = true
		}
	}

	var note string
	if l.cols.note >= 0 && l.cols.note < len(row) {
		note = strings.TrimSpace(row[l.cols.note])
	}

	l.records = append(l.records, domain.Record{
		TimeIndex: timeIndex,
		WeekLabel: label,
		Flags:     flags,
		Geo:       geo,
		Note:      note,
	})
}

// timeIndex returns the 1-based index of label, assigning the next one on
// first sight.
func (l *loader) timeIndex(label string) int {
	if i, ok := l.weekIdx[label]; ok {
		return i
	}
	i := len(l.weeks) + 1
	l.weekIdx[label] = i
	l.weeks = append(l.weeks, domain.Week{Index: i, Label: label})
	return i
}

func (l *loader) geocode(ctx context.Context, row []string, line int) (domain.Geo, bool) {
	location := l.cols.get(row, ColLocation)
	if l.geocoder == nil || location == "" {
		l.logger.Warn("dropping row without usable coordinates", "row", line)
		return domain.Geo{}, false
	}
	country := l.cols.get(row, ColCountry)

	result, err := l.geocoder.ForwardGeocode(ctx, location, country)
	if err != nil {
		l.logger.Warn("forward geocoding failed, dropping row",
			"row", line,
			"location", location,
			"country", country,
			"error", err,
		)
		return domain.Geo{}, false
	}
	if result.Lat == 0 && result.Lon == 0 {
		l.logger.Warn("no geocoding match, dropping row", "row", line, "location", location, "country", country)
		return domain.Geo{}, false
	}
	l.logger.Debug("geocoded row", "row", line, "location", location, "place", result.FormattedAddress)
	return domain.Geo{Lat: result.Lat, Lon: result.Lon}, true
}

func parseGeo(latStr, lonStr string) (domain.Geo, bool) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || !(lat >= -90 && lat <= 90) {
		return domain.Geo{}, false
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil || !(lon >= -180 && lon <= 180) {
		return domain.Geo{}, false
	}
	return domain.Geo{Lat: lat, Lon: lon}, true
}

// parseFlag accepts the encodings pandas writes for a set indicator column.
func parseFlag(s string) bool {
	switch strings.ToLower(s) {
	case "1", "1.0", "true", "yes":
		return true
	default:
		return false
	}
}
