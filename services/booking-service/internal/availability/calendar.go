package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/occupancy"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/timegrid"
)

// DayRequest is what every calendar needs to answer for one day.
type DayRequest struct {
	Day                  timegrid.Date
	Location             *time.Location
	Generator            Generator
	ExcludeAppointmentID string
}

// StaffCalendar is one staff member's availability. The aggregator composes any number of them.
type StaffCalendar interface {
	StaffID() string
	Slots(ctx context.Context, req DayRequest) ([]model.Slot, error)
}

// StoreCalendar answers from storage.Reader: time grid, occupancy, then the generator.
type StoreCalendar struct {
	store      storage.Reader
	businessID string
	staffID    string
}

func NewStoreCalendar(store storage.Reader, businessID, staffID string) *StoreCalendar {
	return &StoreCalendar{store: store, businessID: businessID, staffID: staffID}
}

func (c *StoreCalendar) StaffID() string { return c.staffID }

func (c *StoreCalendar) Slots(ctx context.Context, req DayRequest) ([]model.Slot, error) {
	open, err := OpenIntervals(ctx, c.store, c.businessID, c.staffID, req.Day, req.Location)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}
	span := req.Day.Span(req.Location)
	appts, err := c.store.ListStaffAppointments(ctx, c.businessID, c.staffID, span.Start, span.End)
	if err != nil {
		return nil, fmt.Errorf("list appointments for %s: %w", c.staffID, err)
	}
	occ := occupancy.Build(appts, req.ExcludeAppointmentID)
	return req.Generator.Slots(open, occ, c.staffID), nil
}

// OpenIntervals loads a staff member's schedule and time off and builds the day's grid.
func OpenIntervals(ctx context.Context, store storage.ScheduleReader, businessID, staffID string, day timegrid.Date, loc *time.Location) ([]model.Interval, error) {
	schedules, err := store.ListSchedules(ctx, businessID, staffID)
	if err != nil {
		return nil, fmt.Errorf("list schedules for %s: %w", staffID, err)
	}
	span := day.Span(loc)
	timeOff, err := store.ListTimeOff(ctx, businessID, staffID, span.Start, span.End)
	if err != nil {
		return nil, fmt.Errorf("list time off for %s: %w", staffID, err)
	}
	return timegrid.Build(day, loc, schedules, timeOff), nil
}
