package model

import "time"

// WorkingSchedule is one recurring shift. Minutes are counted from local midnight in the
// business timezone; Weekday follows time.Weekday (0 = Sunday).
type WorkingSchedule struct {
	StaffID     string
	Weekday     time.Weekday
	OpenMinute  int
	CloseMinute int
	Active      bool
}

func (s WorkingSchedule) Valid() bool {
	return s.OpenMinute >= 0 && s.CloseMinute <= 24*60 && s.OpenMinute < s.CloseMinute
}

type TimeOff struct {
	StaffID string
	Start   time.Time
	End     time.Time
	Reason  string
}

type ServiceDefinition struct {
	ID              string
	BusinessID      string
	Name            string
	DurationMinutes int
	BufferMinutes   int
	DepositRequired bool
}

func (s ServiceDefinition) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

type Staff struct {
	ID         string
	BusinessID string
	Name       string
	Active     bool
}

// BusinessProfile holds the per-business scheduling knobs.
type BusinessProfile struct {
	BusinessID string
	Timezone   string
	SlotStep   time.Duration
	MinLead    time.Duration
	// MinLeadSet marks a stored lead time, so an explicit zero is not replaced by the default.
	MinLeadSet bool
}

func (p BusinessProfile) Location() (*time.Location, error) {
	if p.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(p.Timezone)
}
