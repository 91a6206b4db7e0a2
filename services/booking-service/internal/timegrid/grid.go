// Package timegrid turns recurring weekly schedules and time off into the concrete
// open intervals of one calendar day.
package timegrid

import (
	"slices"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// Build returns the disjoint, ordered open intervals for day in loc.
// Inactive or malformed schedule rows are ignored; rows on the same weekday are unioned.
func Build(day Date, loc *time.Location, schedules []model.WorkingSchedule, timeOff []model.TimeOff) []model.Interval {
	weekday := day.Weekday()
	var open []model.Interval
	for _, s := range schedules {
		if !s.Active || !s.Valid() || s.Weekday != weekday {
			continue
		}
		open = append(open, model.Interval{Start: day.At(s.OpenMinute, loc), End: day.At(s.CloseMinute, loc)})
	}
	if len(open) == 0 {
		return nil
	}

	span := day.Span(loc)
	blocks := make([]model.Interval, 0, len(timeOff))
	for _, off := range timeOff {
		iv := model.Interval{Start: off.Start, End: off.End}
		if !iv.Empty() && iv.Overlaps(span) {
			blocks = append(blocks, iv)
		}
	}
	return Subtract(Merge(open), Merge(blocks))
}

// Merge sorts intervals and coalesces those that overlap or touch. Empty intervals are dropped.
func Merge(in []model.Interval) []model.Interval {
	out := make([]model.Interval, 0, len(in))
	for _, iv := range in {
		if !iv.Empty() {
			out = append(out, iv)
		}
	}
	slices.SortFunc(out, func(a, b model.Interval) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return a.End.Compare(b.End)
	})

	merged := out[:0]
	for _, cur := range out {
		if n := len(merged); n > 0 && !cur.Start.After(merged[n-1].End) {
			if cur.End.After(merged[n-1].End) {
				merged[n-1].End = cur.End
			}
			continue
		}
		merged = append(merged, cur)
	}
	return merged
}

// Subtract removes blocks from base. Both inputs must be merged (sorted, disjoint).
func Subtract(base, blocks []model.Interval) []model.Interval {
	var out []model.Interval
	j := 0
	for _, b := range base {
		cur := b.Start
		for j < len(blocks) && !blocks[j].End.After(b.Start) {
			j++
		}
		for k := j; k < len(blocks) && blocks[k].Start.Before(b.End); k++ {
			if blocks[k].Start.After(cur) {
				out = append(out, model.Interval{Start: cur, End: blocks[k].Start})
			}
			if blocks[k].End.After(cur) {
				cur = blocks[k].End
			}
		}
		if cur.Before(b.End) {
			out = append(out, model.Interval{Start: cur, End: b.End})
		}
	}
	return out
}
