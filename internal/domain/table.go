package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidTable is returned by NewTable when records and weeks violate the
// table invariants.
var ErrInvalidTable = errors.New("invalid table")

// Table is the immutable in-memory dataset. It is built once at startup and
// shared read-only by every session, so it needs no locking.
type Table struct {
	records []Record
	weeks   []Week
	byWeek  [][]int // record positions per time index, in source order
}

// NewTable validates records against weeks and builds a Table. Weeks must be
// numbered 1..T in order with distinct labels; every record must reference
// one of them by both index and label and carry the AllProtests flag.
func NewTable(records []Record, weeks []Week) (*Table, error) {
	seen := make(map[string]struct{}, len(weeks))
	for i, w := range weeks {
		if w.Index != i+1 {
			return nil, fmt.Errorf("%w: week %q has index %d, want %d", ErrInvalidTable, w.Label, w.Index, i+1)
		}
		if _, dup := seen[w.Label]; dup {
			return nil, fmt.Errorf("%w: duplicate week label %q", ErrInvalidTable, w.Label)
		}
		seen[w.Label] = struct{}{}
	}

	t := &Table{
		records: make([]Record, len(records)),
		weeks:   make([]Week, len(weeks)),
		byWeek:  make([][]int, len(weeks)),
	}
	copy(t.weeks, weeks)

	for i, r := range records {
		if r.TimeIndex < 1 || r.TimeIndex > len(weeks) {
			return nil, fmt.Errorf("%w: record %d has time index %d outside [1, %d]", ErrInvalidTable, i, r.TimeIndex, len(weeks))
		}
		if want := weeks[r.TimeIndex-1].Label; r.WeekLabel != want {
			return nil, fmt.Errorf("%w: record %d has week label %q, want %q", ErrInvalidTable, i, r.WeekLabel, want)
		}
		if !r.Flagged(AllProtests) {
			return nil, fmt.Errorf("%w: record %d is missing the %s flag", ErrInvalidTable, i, AllProtests)
		}
		t.records[i] = r.clone()
		t.byWeek[r.TimeIndex-1] = append(t.byWeek[r.TimeIndex-1], i)
	}
	return t, nil
}

// Steps returns T, the number of distinct weeks.
func (t *Table) Steps() int { return len(t.weeks) }

// Len returns the number of records.
func (t *Table) Len() int { return len(t.records) }

// Records returns a deep copy of all records in source order.
func (t *Table) Records() []Record {
	out := make([]Record, len(t.records))
	for i, r := range t.records {
		out[i] = r.clone()
	}
	return out
}

// Weeks returns a copy of the week list ordered by time index.
func (t *Table) Weeks() []Week {
	out := make([]Week, len(t.weeks))
	copy(out, t.weeks)
	return out
}

// Week returns the week for a time index, or false if it is outside [1, T].
func (t *Table) Week(timeIndex int) (Week, bool) {
	if timeIndex < 1 || timeIndex > len(t.weeks) {
		return Week{}, false
	}
	return t.weeks[timeIndex-1], true
}

// CategoryCounts returns how many records carry each known category flag.
func (t *Table) CategoryCounts() map[string]int {
	counts := make(map[string]int, len(catalog))
	for _, c := range catalog {
		counts[c.Key] = 0
	}
	for _, r := range t.records {
		for key, set := range r.Flags {
			if set && IsCategory(key) {
				counts[key]++
			}
		}
	}
	return counts
}
