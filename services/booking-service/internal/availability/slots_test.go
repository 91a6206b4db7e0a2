package availability

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/occupancy"
	"github.com/stretchr/testify/require"
)

func at(h, m int) time.Time {
	return time.Date(2025, 3, 11, h, m, 0, 0, time.UTC)
}

func clock(ts []time.Time) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Format("15:04"))
	}
	return out
}

func collect(g Generator, open []model.Interval, occ occupancy.Index) []time.Time {
	var out []time.Time
	for t := range g.Starts(open, occ) {
		out = append(out, t)
	}
	return out
}

func TestStartsTuesdayScenario(t *testing.T) {
	open := []model.Interval{{Start: at(10, 0), End: at(18, 0)}}
	occ := occupancy.Build([]model.Appointment{{
		ID: "x", StartTime: at(12, 0), EndTime: at(13, 0), BufferMinutes: 15, Status: model.StatusConfirmed,
	}}, "")
	g := Generator{Step: 30 * time.Minute, Duration: time.Hour}

	got := clock(collect(g, open, occ))
	require.Equal(t, []string{
		"10:00", "10:30", "11:00",
		"13:15", "13:30", "13:45", "14:00", "14:15", "14:30", "14:45", "15:00",
		"15:15", "15:30", "15:45", "16:00", "16:15", "16:30", "16:45", "17:00",
	}, got)
	require.NotContains(t, got, "11:30")
	require.Equal(t, "17:00", got[len(got)-1])
	for _, s := range collect(g, open, occ) {
		require.False(t, s.After(at(17, 0)), "start after 17:00: %s", s)
	}
}

func TestStartsMergesGapAndShiftGrids(t *testing.T) {
	// Shift starts 09:00, a 20-minute booking leaves a gap from 09:20; step 30.
	open := []model.Interval{{Start: at(9, 0), End: at(11, 0)}}
	occ := occupancy.Build([]model.Appointment{{ID: "x", StartTime: at(9, 0), EndTime: at(9, 20), Status: model.StatusPending}}, "")
	g := Generator{Step: 30 * time.Minute, Duration: 30 * time.Minute}
	require.Equal(t, []string{"09:20", "09:30", "09:50", "10:00", "10:20", "10:30"}, clock(collect(g, open, occ)))

	// Stopping inside the merge still stops the sequence.
	n := 0
	for range g.Starts(open, occ) {
		n++
		if n == 3 {
			break
		}
	}
	require.Equal(t, 3, n)
}

func TestStartsLastStartFitsExactly(t *testing.T) {
	open := []model.Interval{{Start: at(10, 0), End: at(18, 0)}}
	got := collect(Generator{Step: 30 * time.Minute, Duration: time.Hour}, open, occupancy.Index{})
	require.Equal(t, at(17, 0), got[len(got)-1])
	require.Len(t, got, 15)
}

func TestStartsBackToBackAndOneMinuteOverlap(t *testing.T) {
	open := []model.Interval{{Start: at(10, 0), End: at(12, 0)}}
	g := Generator{Step: time.Hour, Duration: time.Hour}

	backToBack := occupancy.Build([]model.Appointment{{ID: "a", StartTime: at(11, 0), EndTime: at(12, 0), Status: model.StatusPending}}, "")
	require.Equal(t, []time.Time{at(10, 0)}, collect(g, open, backToBack))

	oneMinute := occupancy.Build([]model.Appointment{{ID: "a", StartTime: at(10, 59), EndTime: at(12, 0), Status: model.StatusPending}}, "")
	require.Empty(t, collect(g, open, oneMinute))
}

func TestStartsRespectNotBefore(t *testing.T) {
	open := []model.Interval{{Start: at(10, 0), End: at(13, 0)}}
	g := Generator{Step: 30 * time.Minute, Duration: time.Hour, NotBefore: at(10, 40)}
	require.Equal(t, []string{"11:00", "11:30", "12:00"}, clock(collect(g, open, occupancy.Index{})))
}

func TestStartsIsRestartableAndStoppable(t *testing.T) {
	open := []model.Interval{{Start: at(10, 0), End: at(12, 0)}}
	g := Generator{Step: 15 * time.Minute, Duration: 30 * time.Minute}
	seq := g.Starts(open, occupancy.Index{})

	var first, second []time.Time
	for s := range seq {
		first = append(first, s)
	}
	for s := range seq {
		second = append(second, s)
	}
	require.Equal(t, first, second)

	n := 0
	for range seq {
		n++
		if n == 2 {
			break
		}
	}
	require.Equal(t, 2, n)
}

func TestStartsDegenerateInputs(t *testing.T) {
	open := []model.Interval{{Start: at(10, 0), End: at(12, 0)}}
	require.Empty(t, collect(Generator{Step: 0, Duration: time.Hour}, open, occupancy.Index{}))
	require.Empty(t, collect(Generator{Step: time.Minute, Duration: 0}, open, occupancy.Index{}))
	require.Empty(t, collect(Generator{Step: time.Minute, Duration: 3 * time.Hour}, open, occupancy.Index{}))
}

func TestFits(t *testing.T) {
	open := []model.Interval{{Start: at(10, 0), End: at(12, 0)}, {Start: at(13, 0), End: at(18, 0)}}
	g := Generator{Duration: time.Hour}
	require.True(t, g.Fits(open, at(11, 0)))
	require.False(t, g.Fits(open, at(11, 30)))
	require.False(t, g.Fits(open, at(9, 30)))
	require.True(t, g.Fits(open, at(17, 0)))
}

func TestCollapse(t *testing.T) {
	slots := Union(
		[]model.Slot{{Start: at(10, 0), End: at(11, 0), StaffID: "B", Available: true}},
		[]model.Slot{
			{Start: at(10, 0), End: at(11, 0), StaffID: "A", Available: true},
			{Start: at(10, 30), End: at(11, 30), StaffID: "A", Available: true},
		},
	)
	require.Equal(t, "A", slots[0].StaffID)
	require.Equal(t, "B", slots[1].StaffID)

	times := Collapse(slots)
	require.Len(t, times, 2)
	require.Equal(t, []string{"A", "B"}, times[0].StaffIDs)
	require.True(t, times[0].Available)
	require.Equal(t, []string{"A"}, times[1].StaffIDs)
}
