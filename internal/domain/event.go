package domain

import (
	"maps"
	"strings"
)

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Record is one protest occurrence as loaded from the dataset.
type Record struct {
	TimeIndex int             `json:"time_index"`
	WeekLabel string          `json:"week_label"`
	Flags     map[string]bool `json:"flags"`
	Geo       Geo             `json:"geo"`
	Note      string          `json:"note"`
}

// Flagged reports whether the record carries the given category flag.
func (r Record) Flagged(category string) bool {
	return r.Flags[category]
}

// clone returns r with its own copy of the flag map.
func (r Record) clone() Record {
	r.Flags = maps.Clone(r.Flags)
	return r
}

// Week pairs a time index with its "Year-Week" label.
type Week struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

// Year returns the part of the label before the first dash ("2024-05" -> "2024").
func (w Week) Year() string {
	year, _, _ := strings.Cut(w.Label, "-")
	return year
}

// Number returns the part of the label after the first dash ("2024-05" -> "05").
// Labels without a dash yield an empty string.
func (w Week) Number() string {
	_, week, _ := strings.Cut(w.Label, "-")
	return week
}
