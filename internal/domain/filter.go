package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidCategory is returned when a filter names a category outside the
// known catalog.
var ErrInvalidCategory = errors.New("invalid category")

// Filter returns the records at timeIndex whose category flag is set, in
// source order. A time index outside [1, T] yields an empty result. The
// returned records do not share flag maps with the table.
func (t *Table) Filter(timeIndex int, category string) ([]Record, error) {
	if err := checkCategory(category); err != nil {
		return nil, err
	}
	out := make([]Record, 0)
	if timeIndex < 1 || timeIndex > len(t.byWeek) {
		return out, nil
	}
	for _, pos := range t.byWeek[timeIndex-1] {
		if r := t.records[pos]; r.Flagged(category) {
			out = append(out, r.clone())
		}
	}
	return out, nil
}

// Filter applies the same predicates as Table.Filter to an arbitrary record
// slice with a linear scan.
func Filter(records []Record, timeIndex int, category string) ([]Record, error) {
	if err := checkCategory(category); err != nil {
		return nil, err
	}
	out := make([]Record, 0)
	for _, r := range records {
		if r.TimeIndex == timeIndex && r.Flagged(category) {
			out = append(out, r)
		}
	}
	return out, nil
}

func checkCategory(category string) error {
	if !IsCategory(category) {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	return nil
}
