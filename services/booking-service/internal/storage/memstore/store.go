// Package memstore is an in-process storage.Store used by tests and by local runs without Postgres.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

type key struct {
	business string
	id       string
}

type Store struct {
	mu          sync.RWMutex
	staff       map[key]model.Staff
	services    map[key]model.ServiceDefinition
	assignments map[key]map[string]struct{}
	schedules   map[key][]model.WorkingSchedule
	timeOff     map[key][]model.TimeOff
	profiles    map[string]model.BusinessProfile
	appts       map[string]model.Appointment
	idem        map[key]string
	events      []outbox.Event
	published   int
	claimMu     sync.Mutex

	locks *lockSet
	now   func() time.Time
}

type Option func(*Store)

// WithLockTimeout bounds how long a transaction waits for a staff or row lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.locks.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		staff:       map[key]model.Staff{},
		services:    map[key]model.ServiceDefinition{},
		assignments: map[key]map[string]struct{}{},
		schedules:   map[key][]model.WorkingSchedule{},
		timeOff:     map[key][]model.TimeOff{},
		profiles:    map[string]model.BusinessProfile{},
		appts:       map[string]model.Appointment{},
		idem:        map[key]string{},
		locks:       newLockSet(2 * time.Second),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ storage.Store = (*Store)(nil)

// Seeding.

func (s *Store) PutStaff(st model.Staff) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staff[key{st.BusinessID, st.ID}] = st
}

func (s *Store) PutService(svc model.ServiceDefinition, staffIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{svc.BusinessID, svc.ID}
	s.services[k] = svc
	if len(staffIDs) == 0 {
		return
	}
	set := s.assignments[k]
	if set == nil {
		set = map[string]struct{}{}
		s.assignments[k] = set
	}
	for _, id := range staffIDs {
		set[id] = struct{}{}
	}
}

func (s *Store) PutSchedule(businessID string, rows ...model.WorkingSchedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		k := key{businessID, r.StaffID}
		s.schedules[k] = append(s.schedules[k], r)
	}
}

func (s *Store) PutTimeOff(businessID string, rows ...model.TimeOff) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		k := key{businessID, r.StaffID}
		s.timeOff[k] = append(s.timeOff[k], r)
	}
}

func (s *Store) PutProfile(p model.BusinessProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.BusinessID] = p
}

// PutAppointment stores a as-is, bypassing conflict checks. An empty ID gets a fresh one.
func (s *Store) PutAppointment(a model.Appointment) model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
		a.UpdatedAt = a.CreatedAt
	}
	s.appts[a.ID] = a
	if a.IdempotencyKey != "" {
		s.idem[key{a.BusinessID, a.IdempotencyKey}] = a.ID
	}
	return a
}

// Events returns a copy of every committed outbox event in commit order.
func (s *Store) Events() []outbox.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}

func (s *Store) Ping(context.Context) error { return nil }

// ScheduleReader.

func (s *Store) GetService(_ context.Context, businessID, serviceID string) (model.ServiceDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[key{businessID, serviceID}]
	if !ok {
		return model.ServiceDefinition{}, fmt.Errorf("service %s: %w", serviceID, model.ErrNotFound)
	}
	return svc, nil
}

func (s *Store) GetStaff(_ context.Context, businessID, staffID string) (model.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.staff[key{businessID, staffID}]
	if !ok {
		return model.Staff{}, fmt.Errorf("staff %s: %w", staffID, model.ErrNotFound)
	}
	return st, nil
}

func (s *Store) ListQualifiedStaff(_ context.Context, businessID, serviceID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	assigned := s.assignments[key{businessID, serviceID}]
	var out []string
	for k, st := range s.staff {
		if k.business != businessID || !st.Active {
			continue
		}
		if _, ok := assigned[st.ID]; ok || len(assigned) == 0 {
			out = append(out, st.ID)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (s *Store) ListActiveStaff(_ context.Context, businessID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k, st := range s.staff {
		if k.business == businessID && st.Active {
			out = append(out, st.ID)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (s *Store) ListSchedules(_ context.Context, businessID, staffID string) ([]model.WorkingSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.schedules[key{businessID, staffID}]), nil
}

func (s *Store) ListTimeOff(_ context.Context, businessID, staffID string, from, to time.Time) ([]model.TimeOff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	window := model.Interval{Start: from, End: to}
	var out []model.TimeOff
	for _, off := range s.timeOff[key{businessID, staffID}] {
		if (model.Interval{Start: off.Start, End: off.End}).Overlaps(window) {
			out = append(out, off)
		}
	}
	return out, nil
}

func (s *Store) GetBusinessProfile(_ context.Context, businessID string) (model.BusinessProfile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[businessID]
	return p, ok, nil
}

// AppointmentReader.

func (s *Store) ListStaffAppointments(_ context.Context, businessID, staffID string, from, to time.Time) ([]model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.staffAppointmentsLocked(businessID, staffID, from, to, nil), nil
}

func (s *Store) GetAppointment(_ context.Context, businessID, appointmentID string) (model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appts[appointmentID]
	if !ok || a.BusinessID != businessID {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", appointmentID, model.ErrNotFound)
	}
	return a, nil
}

func (s *Store) ListAppointments(_ context.Context, f storage.ListFilter) ([]model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Appointment
	for _, a := range s.appts {
		if a.BusinessID != f.BusinessID {
			continue
		}
		if f.StaffID != "" && a.StaffID != f.StaffID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && a.StartTime.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !a.StartTime.Before(f.To) {
			continue
		}
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b model.Appointment) int {
		if c := b.StartTime.Compare(a.StartTime); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// staffAppointmentsLocked merges committed rows with a transaction's staged ones.
func (s *Store) staffAppointmentsLocked(businessID, staffID string, from, to time.Time, staged map[string]model.Appointment) []model.Appointment {
	window := model.Interval{Start: from, End: to}
	match := func(a model.Appointment) bool {
		return a.BusinessID == businessID && a.StaffID == staffID && a.Status.Occupies() && a.Occupied().Overlaps(window)
	}
	var out []model.Appointment
	for id, a := range s.appts {
		if st, ok := staged[id]; ok {
			a = st
		}
		if match(a) {
			out = append(out, a)
		}
	}
	for id, a := range staged {
		if _, committed := s.appts[id]; !committed && match(a) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b model.Appointment) int { return a.StartTime.Compare(b.StartTime) })
	return out
}
