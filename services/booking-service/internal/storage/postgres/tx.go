package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) ListStaffAppointments(ctx context.Context, businessID, staffID string, from, to time.Time) ([]model.Appointment, error) {
	return listStaffAppointments(ctx, t.tx, businessID, staffID, from, to)
}

func (t *pgTx) GetAppointmentForUpdate(ctx context.Context, businessID, appointmentID string) (model.Appointment, error) {
	return getAppointment(ctx, t.tx, businessID, appointmentID, " FOR UPDATE")
}

func (t *pgTx) FindByIdempotencyKey(ctx context.Context, businessID, key string) (model.Appointment, bool, error) {
	a, err := scanAppointment(t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1 AND idempotency_key = $2
	`, businessID, key))
	if db.IsNotFound(err) {
		return model.Appointment{}, false, nil
	}
	if err != nil {
		return model.Appointment{}, false, err
	}
	return a, true, nil
}

func (t *pgTx) InsertAppointment(ctx context.Context, a *model.Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	var key *string
	if a.IdempotencyKey != "" {
		key = &a.IdempotencyKey
	}
	return t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, business_id, service_id, staff_id, customer_name, customer_email, customer_phone,
			 start_time, end_time, buffer_minutes, status, walk_in, idempotency_key)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`, a.ID, a.BusinessID, a.ServiceID, a.StaffID, a.CustomerName, a.CustomerEmail, a.CustomerPhone,
		a.StartTime, a.EndTime, a.BufferMinutes, string(a.Status), a.WalkIn, key,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (t *pgTx) UpdateStatus(ctx context.Context, u storage.StatusUpdate) (model.Appointment, error) {
	a, err := scanAppointment(t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
			updated_at = $4,
			cancelled_at = CASE WHEN $3 = 'cancelled' THEN $4 ELSE cancelled_at END,
			cancellation_reason = CASE WHEN $3 = 'cancelled' THEN $5 ELSE cancellation_reason END
		WHERE business_id = $1 AND id = $2
		RETURNING `+appointmentColumns,
		u.BusinessID, u.AppointmentID, string(u.Status), u.At, u.Reason))
	if db.IsNotFound(err) {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", u.AppointmentID, model.ErrNotFound)
	}
	return a, err
}

func (t *pgTx) EnqueueEvent(ctx context.Context, ev outbox.Event) error {
	return outbox.Insert(ctx, t.tx, ev)
}
