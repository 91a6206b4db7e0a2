// Package occupancy indexes the time a staff member is already committed to.
package occupancy

import (
	"sort"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/timegrid"
)

// Index is a sorted list of disjoint occupied intervals.
type Index struct {
	busy []model.Interval
}

// Build indexes the occupied intervals [start, end+buffer) of every appointment that still
// holds its time. excludeID, when set, is left out so a rescheduled appointment does not block itself.
func Build(appts []model.Appointment, excludeID string) Index {
	ivs := make([]model.Interval, 0, len(appts))
	for _, a := range appts {
		if !a.Status.Occupies() {
			continue
		}
		if excludeID != "" && a.ID == excludeID {
			continue
		}
		ivs = append(ivs, a.Occupied())
	}
	return Index{busy: timegrid.Merge(ivs)}
}

// Overlaps reports whether iv intersects any occupied interval.
func (x Index) Overlaps(iv model.Interval) bool {
	// First busy interval ending after iv starts; only it can overlap since the list is disjoint and sorted.
	i := sort.Search(len(x.busy), func(i int) bool { return x.busy[i].End.After(iv.Start) })
	return i < len(x.busy) && x.busy[i].Start.Before(iv.End)
}

func (x Index) Intervals() []model.Interval {
	return append([]model.Interval(nil), x.busy...)
}

func (x Index) Len() int { return len(x.busy) }
