package reservation

import (
	"context"
	"fmt"
	"strings"
	"time"

	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

type TransitionInput struct {
	BusinessID    string
	AppointmentID string
	To            model.Status
	Reason        string
}

// Transition moves an appointment along the status machine under its row lock. Asking for the
// status the appointment already has is a no-op, so redelivered events are harmless.
func (c *Committer) Transition(ctx context.Context, in TransitionInput) (appt model.Appointment, err error) {
	ctx, span := otelx.Start(ctx, "reservation.transition",
		attribute.String("business_id", in.BusinessID),
		attribute.String("appointment_id", in.AppointmentID),
		attribute.String("to", string(in.To)),
	)
	defer func() {
		otelx.Finish(span, err)
		c.metrics.ObserveTransition(string(in.To), outcomeOf(err))
	}()

	if in.BusinessID == "" || in.AppointmentID == "" {
		return model.Appointment{}, fmt.Errorf("%w: business_id and appointment_id required", model.ErrInvalidRequest)
	}
	if _, ok := model.ParseStatus(string(in.To)); !ok || in.To == model.StatusPending {
		return model.Appointment{}, fmt.Errorf("%w: unknown target status %q", model.ErrInvalidRequest, in.To)
	}

	now := c.now()
	changed := false
	err = c.store.InTx(ctx, func(tx storage.Tx) error {
		cur, err := tx.GetAppointmentForUpdate(ctx, in.BusinessID, in.AppointmentID)
		if err != nil {
			return err
		}
		if cur.Status == in.To {
			appt = cur
			return nil
		}
		if !cur.Status.CanTransitionTo(in.To) {
			return fmt.Errorf("%s -> %s: %w", cur.Status, in.To, model.ErrInvalidTransition)
		}
		updated, err := tx.UpdateStatus(ctx, storage.StatusUpdate{
			BusinessID:    in.BusinessID,
			AppointmentID: in.AppointmentID,
			Status:        in.To,
			Reason:        strings.TrimSpace(in.Reason),
			At:            now,
		})
		if err != nil {
			return err
		}
		ev, err := outbox.NewAppointmentEvent(ctx, outbox.TopicForStatus(in.To), updated, now)
		if err != nil {
			return err
		}
		if err := tx.EnqueueEvent(ctx, ev); err != nil {
			return err
		}
		appt = updated
		changed = true
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if changed {
		c.logger.Info("appointment status changed",
			"appointment_id", appt.ID,
			"business_id", appt.BusinessID,
			"status", appt.Status,
		)
	}
	return appt, nil
}

func (c *Committer) Cancel(ctx context.Context, businessID, appointmentID, reason string) (model.Appointment, error) {
	return c.Transition(ctx, TransitionInput{
		BusinessID:    businessID,
		AppointmentID: appointmentID,
		To:            model.StatusCancelled,
		Reason:        reason,
	})
}

type RescheduleInput struct {
	BusinessID    string
	AppointmentID string
	NewStart      time.Time
	// NewStaffID moves the appointment to another staff member; empty keeps the current one.
	NewStaffID     string
	IdempotencyKey string
}

const rescheduleReason = "rescheduled"

// Reschedule cancels the appointment and reserves the new start in a second transaction.
// If the new start is taken in between, the cancellation stands and the returned error is a
// *model.RescheduleLostError carrying the cancelled appointment.
func (c *Committer) Reschedule(ctx context.Context, in RescheduleInput) (model.Appointment, error) {
	if in.BusinessID == "" || in.AppointmentID == "" || in.NewStart.IsZero() {
		return model.Appointment{}, fmt.Errorf("%w: business_id, appointment_id and start_time required", model.ErrInvalidRequest)
	}
	orig, err := c.store.GetAppointment(ctx, in.BusinessID, in.AppointmentID)
	if err != nil {
		return model.Appointment{}, err
	}
	if orig.Status != model.StatusPending && orig.Status != model.StatusConfirmed {
		return model.Appointment{}, fmt.Errorf("reschedule from %s: %w", orig.Status, model.ErrInvalidTransition)
	}

	next := ReserveInput{
		BusinessID:     orig.BusinessID,
		StaffID:        orig.StaffID,
		ServiceID:      orig.ServiceID,
		Start:          in.NewStart,
		CustomerName:   orig.CustomerName,
		CustomerEmail:  orig.CustomerEmail,
		CustomerPhone:  orig.CustomerPhone,
		IdempotencyKey: in.IdempotencyKey,
	}
	if in.NewStaffID != "" {
		next.StaffID = in.NewStaffID
	}
	// Reject requests that could never succeed before giving up the current slot.
	if _, err := c.prepare(ctx, next, c.now()); err != nil {
		return model.Appointment{}, err
	}

	cancelled, err := c.Cancel(ctx, in.BusinessID, in.AppointmentID, rescheduleReason)
	if err != nil {
		return model.Appointment{}, err
	}
	res, err := c.reserve(ctx, next, kindReschedule)
	if err != nil {
		c.logger.Warn("reschedule lost new slot",
			"appointment_id", cancelled.ID,
			"business_id", in.BusinessID,
			"staff_id", next.StaffID,
			"start", in.NewStart,
			"err", err,
		)
		return model.Appointment{}, &model.RescheduleLostError{Cancelled: cancelled, Err: err}
	}
	return res.Appointment, nil
}
