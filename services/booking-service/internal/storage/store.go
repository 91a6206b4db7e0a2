// Package storage declares the persistence the booking engine needs. Implementations live in
// storage/postgres and storage/memstore; every method is scoped by business id.
package storage

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
)

// ScheduleReader serves staff, services and their recurring schedules.
type ScheduleReader interface {
	GetService(ctx context.Context, businessID, serviceID string) (model.ServiceDefinition, error)
	GetStaff(ctx context.Context, businessID, staffID string) (model.Staff, error)
	// ListQualifiedStaff returns the active staff who may perform serviceID, ordered by id:
	// the assigned ones, or every active staff member when the service has no assignments.
	ListQualifiedStaff(ctx context.Context, businessID, serviceID string) ([]string, error)
	// ListActiveStaff returns every active staff member of the business, ordered by id.
	ListActiveStaff(ctx context.Context, businessID string) ([]string, error)
	ListSchedules(ctx context.Context, businessID, staffID string) ([]model.WorkingSchedule, error)
	ListTimeOff(ctx context.Context, businessID, staffID string, from, to time.Time) ([]model.TimeOff, error)
	// GetBusinessProfile returns ok=false when the business has no stored profile.
	GetBusinessProfile(ctx context.Context, businessID string) (model.BusinessProfile, bool, error)
}

// AppointmentReader serves lock-free reads.
type AppointmentReader interface {
	// ListStaffAppointments returns the live appointments whose occupied interval
	// [start, end+buffer) intersects [from, to).
	ListStaffAppointments(ctx context.Context, businessID, staffID string, from, to time.Time) ([]model.Appointment, error)
	GetAppointment(ctx context.Context, businessID, appointmentID string) (model.Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]model.Appointment, error)
}

type ListFilter struct {
	BusinessID string
	StaffID    string
	Status     model.Status
	From       time.Time
	To         time.Time
	Limit      int
}

// Reader is everything the availability side reads.
type Reader interface {
	ScheduleReader
	AppointmentReader
}

// Tx is one atomic unit of work. Writes become visible only if the callback returns nil.
type Tx interface {
	ListStaffAppointments(ctx context.Context, businessID, staffID string, from, to time.Time) ([]model.Appointment, error)
	// GetAppointmentForUpdate locks the row until the transaction ends.
	GetAppointmentForUpdate(ctx context.Context, businessID, appointmentID string) (model.Appointment, error)
	// FindByIdempotencyKey returns ok=false when no appointment carries the key.
	FindByIdempotencyKey(ctx context.Context, businessID, key string) (model.Appointment, bool, error)
	// InsertAppointment assigns ID, CreatedAt and UpdatedAt.
	InsertAppointment(ctx context.Context, a *model.Appointment) error
	UpdateStatus(ctx context.Context, u StatusUpdate) (model.Appointment, error)
	EnqueueEvent(ctx context.Context, ev outbox.Event) error
}

type StatusUpdate struct {
	BusinessID    string
	AppointmentID string
	Status        model.Status
	Reason        string
	At            time.Time
}

// TxRunner opens units of work. InStaffTx serialises callers that name the same
// (business, staff) timeline; callers on different timelines never wait on each other.
// A lock that cannot be taken in time surfaces as model.ErrUpstreamUnavailable.
type TxRunner interface {
	InStaffTx(ctx context.Context, businessID, staffID string, fn func(Tx) error) error
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Store is the full persistence surface wired into the service.
type Store interface {
	Reader
	TxRunner
	Ping(ctx context.Context) error
}

// ErrDuplicateIdempotencyKey is returned on commit when another transaction stored the same
// (business, idempotency key) first.
var ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

// IsQualified reports whether staffID may take bookings for serviceID. Availability and
// commit both go through it so a quoted slot is always bookable by the same staff member.
func IsQualified(ctx context.Context, r ScheduleReader, businessID, serviceID, staffID string) (bool, error) {
	ids, err := r.ListQualifiedStaff(ctx, businessID, serviceID)
	if err != nil {
		return false, err
	}
	return slices.Contains(ids, staffID), nil
}
