package model

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// transitions lists the legal next states. Terminal states have no entry.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusInProgress, StatusCancelled, StatusNoShow},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted, StatusCancelled, StatusNoShow},
}

func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return s, true
	}
	return "", false
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// Occupies reports whether an appointment in this state blocks its staff member's time.
func (s Status) Occupies() bool {
	return s != StatusCancelled && s != StatusNoShow
}

type Appointment struct {
	ID             string
	BusinessID     string
	ServiceID      string
	StaffID        string
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	StartTime      time.Time
	EndTime        time.Time
	BufferMinutes  int
	Status         Status
	WalkIn         bool
	IdempotencyKey string
	CancelledAt    *time.Time
	CancelReason   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Occupied is the span the staff member is unavailable: service time plus trailing buffer.
func (a Appointment) Occupied() Interval {
	return Interval{
		Start: a.StartTime,
		End:   a.EndTime.Add(time.Duration(a.BufferMinutes) * time.Minute),
	}
}

func (a Appointment) ServiceTime() Interval {
	return Interval{Start: a.StartTime, End: a.EndTime}
}
