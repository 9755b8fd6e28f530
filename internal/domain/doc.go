// Package domain models the farm protest dataset and the dashboard's core
// behaviour: filtering, scene rendering, and the play/pause animation.
//
// # Dataset
//
// Each row of the source CSV is one protest occurrence. Rows carry a
// "Year-Week" label (week_year column, e.g. "2024-05"), a coordinate, a
// wrapped note used as hover text, and one 0/1 flag column per protest
// reason. The loader assigns every distinct week label a 1-based time index
// in first-seen order, so indexes form the contiguous range [1, T] where T
// is the number of distinct labels.
//
// The synthetic category "all_protests" is set on every record so the
// default dropdown value shows everything for the selected week.
//
// # Filtering and rendering
//
// [Table.Filter] keeps the records whose time index equals the selected
// week and whose flag for the selected category is set, in source order.
// Unknown categories fail with [ErrInvalidCategory]; time indexes outside
// [1, T] produce an empty result. [Render] turns a subset into a [Scene]:
// a fixed carto-positron basemap centred on Europe plus one marker per
// record.
//
// # Animation
//
// [Animation] is a small reducer over three events. A press increments a
// counter and the mode is derived from its parity (odd plays, even pauses).
// A tick advances the time index and wraps from T back to 1. A scrub sets
// the index directly without touching the mode. With an empty dataset
// (T = 0) ticks are no-ops and the index stays at 1.
package domain
