package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

// tx stages writes and applies them on commit, so a failed callback leaves no trace.
type tx struct {
	s       *Store
	staged  map[string]model.Appointment
	order   []string
	events  []outbox.Event
	release []func()
}

func (s *Store) InStaffTx(ctx context.Context, businessID, staffID string, fn func(storage.Tx) error) error {
	return s.run(ctx, "staff:"+businessID+"/"+staffID, fn)
}

func (s *Store) InTx(ctx context.Context, fn func(storage.Tx) error) error {
	return s.run(ctx, "", fn)
}

func (s *Store) run(ctx context.Context, lockKey string, fn func(storage.Tx) error) error {
	t := &tx{s: s, staged: map[string]model.Appointment{}}
	defer func() {
		for i := len(t.release) - 1; i >= 0; i-- {
			t.release[i]()
		}
	}()
	if lockKey != "" {
		unlock, err := s.locks.acquire(ctx, lockKey)
		if err != nil {
			return err
		}
		t.release = append(t.release, unlock)
	}
	if err := fn(t); err != nil {
		return err
	}
	return t.commit()
}

func (t *tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range t.order {
		a := t.staged[id]
		if _, exists := s.appts[id]; exists {
			continue
		}
		if a.IdempotencyKey != "" {
			if _, dup := s.idem[key{a.BusinessID, a.IdempotencyKey}]; dup {
				return storage.ErrDuplicateIdempotencyKey
			}
		}
		// Same guard as the Postgres exclusion constraint: live service times never overlap.
		if a.Status.Occupies() {
			for _, other := range s.appts {
				if other.BusinessID == a.BusinessID && other.StaffID == a.StaffID && other.Status.Occupies() &&
					other.ServiceTime().Overlaps(a.ServiceTime()) {
					return fmt.Errorf("appointment overlaps %s: %w", other.ID, model.ErrSlotConflict)
				}
			}
		}
	}

	for id, a := range t.staged {
		s.appts[id] = a
		if a.IdempotencyKey != "" {
			s.idem[key{a.BusinessID, a.IdempotencyKey}] = id
		}
	}
	s.events = append(s.events, t.events...)
	return nil
}

func (t *tx) ListStaffAppointments(_ context.Context, businessID, staffID string, from, to time.Time) ([]model.Appointment, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.staffAppointmentsLocked(businessID, staffID, from, to, t.staged), nil
}

func (t *tx) GetAppointmentForUpdate(ctx context.Context, businessID, appointmentID string) (model.Appointment, error) {
	if _, staged := t.staged[appointmentID]; !staged {
		unlock, err := t.s.locks.acquire(ctx, "appt:"+appointmentID)
		if err != nil {
			return model.Appointment{}, err
		}
		t.release = append(t.release, unlock)
	}
	return t.get(businessID, appointmentID)
}

func (t *tx) get(businessID, appointmentID string) (model.Appointment, error) {
	if a, ok := t.staged[appointmentID]; ok {
		return a, nil
	}
	t.s.mu.RLock()
	a, ok := t.s.appts[appointmentID]
	t.s.mu.RUnlock()
	if !ok || a.BusinessID != businessID {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", appointmentID, model.ErrNotFound)
	}
	return a, nil
}

func (t *tx) FindByIdempotencyKey(_ context.Context, businessID, k string) (model.Appointment, bool, error) {
	for _, a := range t.staged {
		if a.BusinessID == businessID && a.IdempotencyKey == k {
			return a, true, nil
		}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	id, ok := t.s.idem[key{businessID, k}]
	if !ok {
		return model.Appointment{}, false, nil
	}
	return t.s.appts[id], true, nil
}

func (t *tx) InsertAppointment(_ context.Context, a *model.Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := t.s.now()
	a.CreatedAt = now
	a.UpdatedAt = now
	t.staged[a.ID] = *a
	t.order = append(t.order, a.ID)
	return nil
}

func (t *tx) UpdateStatus(_ context.Context, u storage.StatusUpdate) (model.Appointment, error) {
	a, err := t.get(u.BusinessID, u.AppointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = u.Status
	a.UpdatedAt = u.At
	if u.Status == model.StatusCancelled {
		at := u.At
		a.CancelledAt = &at
		a.CancelReason = u.Reason
	}
	t.staged[a.ID] = a
	return a, nil
}

func (t *tx) EnqueueEvent(_ context.Context, ev outbox.Event) error {
	t.events = append(t.events, ev)
	return nil
}
