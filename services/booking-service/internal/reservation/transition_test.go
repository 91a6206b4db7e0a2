package reservation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage/memstore"
	"github.com/stretchr/testify/require"
)

func TestTransitionLifecycle(t *testing.T) {
	s := seed(t)
	c := newCommitter(s, monday)
	ctx := context.Background()

	res, err := c.Reserve(ctx, booking("A", at(10, 0)))
	require.NoError(t, err)
	id := res.Appointment.ID

	steps := []struct {
		to    model.Status
		topic string
	}{
		{model.StatusConfirmed, outbox.TopicConfirmed},
		{model.StatusInProgress, outbox.TopicStarted},
		{model.StatusCompleted, outbox.TopicCompleted},
	}
	for i, step := range steps {
		a, err := c.Transition(ctx, TransitionInput{BusinessID: "b1", AppointmentID: id, To: step.to})
		require.NoError(t, err)
		require.Equal(t, step.to, a.Status)
		events := s.Events()
		require.Len(t, events, i+2)
		require.Equal(t, step.topic, events[i+1].EventType)
	}

	_, err = c.Transition(ctx, TransitionInput{BusinessID: "b1", AppointmentID: id, To: model.StatusCancelled})
	require.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestTransitionToCurrentStatusIsNoop(t *testing.T) {
	s := seed(t)
	c := newCommitter(s, monday)
	ctx := context.Background()

	res, err := c.Reserve(ctx, booking("A", at(10, 0)))
	require.NoError(t, err)
	in := TransitionInput{BusinessID: "b1", AppointmentID: res.Appointment.ID, To: model.StatusConfirmed}

	_, err = c.Transition(ctx, in)
	require.NoError(t, err)
	a, err := c.Transition(ctx, in)
	require.NoError(t, err)
	require.Equal(t, model.StatusConfirmed, a.Status)
	require.Len(t, s.Events(), 2)
}

func TestTransitionRejectsBadInput(t *testing.T) {
	s := seed(t)
	c := newCommitter(s, monday)
	ctx := context.Background()

	_, err := c.Transition(ctx, TransitionInput{BusinessID: "b1", AppointmentID: "x", To: "archived"})
	require.ErrorIs(t, err, model.ErrInvalidRequest)

	_, err = c.Transition(ctx, TransitionInput{BusinessID: "b1", AppointmentID: "x", To: model.StatusPending})
	require.ErrorIs(t, err, model.ErrInvalidRequest)

	_, err = c.Transition(ctx, TransitionInput{BusinessID: "b1", AppointmentID: "missing", To: model.StatusConfirmed})
	require.ErrorIs(t, err, model.ErrNotFound)

	res, err := c.Reserve(ctx, booking("A", at(10, 0)))
	require.NoError(t, err)
	_, err = c.Transition(ctx, TransitionInput{BusinessID: "other", AppointmentID: res.Appointment.ID, To: model.StatusConfirmed})
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestCancelFreesTheSlot(t *testing.T) {
	s := seed(t)
	c := newCommitter(s, monday)
	ctx := context.Background()

	res, err := c.Reserve(ctx, booking("A", at(10, 0)))
	require.NoError(t, err)

	cancelled, err := c.Cancel(ctx, "b1", res.Appointment.ID, "customer request")
	require.NoError(t, err)
	require.Equal(t, model.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	require.Equal(t, "customer request", cancelled.CancelReason)

	_, err = c.Reserve(ctx, booking("A", at(10, 0)))
	require.NoError(t, err)
}

func TestRescheduleMovesAppointment(t *testing.T) {
	s := seed(t)
	c := newCommitter(s, monday)
	ctx := context.Background()

	res, err := c.Reserve(ctx, booking("A", at(10, 0)))
	require.NoError(t, err)

	// Overlapping the old slot is fine: it is released first.
	moved, err := c.Reschedule(ctx, RescheduleInput{BusinessID: "b1", AppointmentID: res.Appointment.ID, NewStart: at(10, 30)})
	require.NoError(t, err)
	require.NotEqual(t, res.Appointment.ID, moved.ID)
	require.Equal(t, at(10, 30), moved.StartTime)
	require.Equal(t, "Ada", moved.CustomerName)

	old, err := s.GetAppointment(ctx, "b1", res.Appointment.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusCancelled, old.Status)
	require.Equal(t, rescheduleReason, old.CancelReason)
}

func TestRescheduleRejectsBeforeCancelling(t *testing.T) {
	s := seed(t)
	c := newCommitter(s, monday)
	ctx := context.Background()

	res, err := c.Reserve(ctx, booking("A", at(10, 0)))
	require.NoError(t, err)

	_, err = c.Reschedule(ctx, RescheduleInput{BusinessID: "b1", AppointmentID: res.Appointment.ID, NewStart: at(20, 0)})
	require.ErrorIs(t, err, model.ErrOutsideWorkingHours)

	cur, err := s.GetAppointment(ctx, "b1", res.Appointment.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, cur.Status)
}

// racingStore books the target slot right after the cancellation commits.
type racingStore struct {
	*memstore.Store
	race func()
}

func (r *racingStore) InTx(ctx context.Context, fn func(storage.Tx) error) error {
	err := r.Store.InTx(ctx, fn)
	if err == nil && r.race != nil {
		r.race()
		r.race = nil
	}
	return err
}

func TestRescheduleLostRace(t *testing.T) {
	mem := seed(t)
	s := &racingStore{Store: mem}
	c := newCommitter(s, monday)
	ctx := context.Background()

	res, err := c.Reserve(ctx, booking("A", at(10, 0)))
	require.NoError(t, err)

	s.race = func() {
		mem.PutAppointment(model.Appointment{
			BusinessID: "b1", StaffID: "A", ServiceID: "cut",
			StartTime: at(14, 0), EndTime: at(15, 0), Status: model.StatusPending,
		})
	}
	_, err = c.Reschedule(ctx, RescheduleInput{BusinessID: "b1", AppointmentID: res.Appointment.ID, NewStart: at(14, 0)})
	require.ErrorIs(t, err, model.ErrRescheduleLost)
	require.ErrorIs(t, err, model.ErrSlotConflict)

	var lost *model.RescheduleLostError
	require.True(t, errors.As(err, &lost))
	require.Equal(t, res.Appointment.ID, lost.Cancelled.ID)
	require.Equal(t, model.StatusCancelled, lost.Cancelled.Status)
}

func TestRescheduleFromTerminalStatus(t *testing.T) {
	s := seed(t)
	c := newCommitter(s, monday)
	ctx := context.Background()

	res, err := c.Reserve(ctx, booking("A", at(10, 0)))
	require.NoError(t, err)
	_, err = c.Cancel(ctx, "b1", res.Appointment.ID, "")
	require.NoError(t, err)

	_, err = c.Reschedule(ctx, RescheduleInput{BusinessID: "b1", AppointmentID: res.Appointment.ID, NewStart: at(14, 0).Add(time.Hour)})
	require.ErrorIs(t, err, model.ErrInvalidTransition)
}
