package timegrid

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

const dateLayout = "2006-01-02"

// Date is a calendar day with no timezone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseDate(raw string) (Date, error) {
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return Date{}, fmt.Errorf("%w: date must be YYYY-MM-DD", model.ErrInvalidRequest)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar day t falls on in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

// At returns the wall-clock instant minute minutes after midnight in loc.
// 1440 yields the following midnight.
func (d Date) At(minute int, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, minute/60, minute%60, 0, 0, loc)
}

// Span is the whole day in loc. On DST days it is 23 or 25 hours long.
func (d Date) Span(loc *time.Location) model.Interval {
	return model.Interval{Start: d.At(0, loc), End: d.At(24*60, loc)}
}
