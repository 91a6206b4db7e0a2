package availability

import (
	"iter"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/occupancy"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/timegrid"
)

// Generator subtracts occupied time from the open intervals and walks each remaining gap
// at a fixed step, yielding the starts where a service of Duration fits. A gap is walked on two
// grids merged in order: one anchored at the gap start (first start right after a booking) and
// one anchored at the start of the shift it belongs to (the regular clock times).
type Generator struct {
	Step     time.Duration
	Duration time.Duration
	// NotBefore rejects earlier starts; it is "now" plus the business's minimum lead time.
	NotBefore time.Time
}

// Starts is lazy and can be ranged over any number of times.
func (g Generator) Starts(open []model.Interval, occ occupancy.Index) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if g.Duration <= 0 || g.Step <= 0 {
			return
		}
		busy := occ.Intervals()
		for _, shift := range open {
			for _, gap := range timegrid.Subtract([]model.Interval{shift}, busy) {
				if !g.walk(shift.Start, gap, yield) {
					return
				}
			}
		}
	}
}

// walk yields the starts of gap in order; false means the consumer stopped.
func (g Generator) walk(anchor time.Time, gap model.Interval, yield func(time.Time) bool) bool {
	last := gap.End.Add(-g.Duration)
	fromGap := gap.Start
	fromShift := gap.Start
	if off := gap.Start.Sub(anchor) % g.Step; off > 0 {
		fromShift = gap.Start.Add(g.Step - off)
	}

	for !fromGap.After(last) || !fromShift.After(last) {
		var t time.Time
		switch {
		case fromShift.After(last) || fromGap.Before(fromShift):
			t, fromGap = fromGap, fromGap.Add(g.Step)
		case fromGap.After(last) || fromShift.Before(fromGap):
			t, fromShift = fromShift, fromShift.Add(g.Step)
		default:
			t = fromGap
			fromGap, fromShift = fromGap.Add(g.Step), fromShift.Add(g.Step)
		}
		if t.Before(g.NotBefore) {
			continue
		}
		if !yield(t) {
			return false
		}
	}
	return true
}

// Slots collects Starts into slots tagged with staffID.
func (g Generator) Slots(open []model.Interval, occ occupancy.Index, staffID string) []model.Slot {
	var out []model.Slot
	for t := range g.Starts(open, occ) {
		out = append(out, model.Slot{Start: t, End: t.Add(g.Duration), StaffID: staffID, Available: true})
	}
	return out
}

// Fits reports whether [start, start+Duration) lies inside one open interval.
func (g Generator) Fits(open []model.Interval, start time.Time) bool {
	want := model.Interval{Start: start, End: start.Add(g.Duration)}
	for _, iv := range open {
		if iv.Contains(want) {
			return true
		}
	}
	return false
}
