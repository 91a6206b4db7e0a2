package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/reservation"
	"github.com/segmentio/kafka-go"
)

// TopicDepositPaid is published by the payments side once a deposit settles.
const TopicDepositPaid = "payments.deposit.paid.v1"

type depositPaid struct {
	BusinessID    string `json:"business_id"`
	AppointmentID string `json:"appointment_id"`
	PaymentID     string `json:"payment_id"`
}

type Transitioner interface {
	Transition(ctx context.Context, in reservation.TransitionInput) (model.Appointment, error)
}

// DepositPaidHandler confirms the pending appointment a paid deposit belongs to.
func DepositPaidHandler(c Transitioner, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var ev depositPaid
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		if ev.BusinessID == "" || ev.AppointmentID == "" {
			return fmt.Errorf("%w: business_id and appointment_id required", ErrInvalidMessage)
		}

		appt, err := c.Transition(ctx, reservation.TransitionInput{
			BusinessID:    ev.BusinessID,
			AppointmentID: ev.AppointmentID,
			To:            model.StatusConfirmed,
		})
		switch {
		case err == nil:
			logger.Info("deposit confirmed appointment", "appointment_id", appt.ID, "payment_id", ev.PaymentID)
			return nil
		case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrInvalidTransition):
			// Cancelled, already started, or unknown here: the deposit has nothing left to confirm.
			logger.Warn("deposit not applied", "err", err, "appointment_id", ev.AppointmentID, "payment_id", ev.PaymentID)
			return nil
		default:
			return err
		}
	}
}
