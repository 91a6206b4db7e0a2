package model

import "errors"

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrNotFound            = errors.New("not found")
	ErrSlotConflict        = errors.New("slot conflict")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrOutsideWorkingHours = errors.New("outside working hours")
	ErrStaffNotQualified   = errors.New("staff not qualified for service")
	ErrRescheduleLost      = errors.New("reschedule lost")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// RescheduleLostError reports that the old slot was released but the new one was taken
// before it could be reserved. It matches ErrRescheduleLost and unwraps to the conflict.
type RescheduleLostError struct {
	Cancelled Appointment
	Err       error
}

func (e *RescheduleLostError) Error() string {
	return "reschedule lost: " + e.Err.Error()
}

func (e *RescheduleLostError) Unwrap() error { return e.Err }

func (e *RescheduleLostError) Is(target error) bool { return target == ErrRescheduleLost }
