package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// Catalogue writes. The business service owns this data in production; these keep local
// databases and integration tests self-contained.

// UpsertProfile stores a NULL lead time unless p carries one, leaving the env default in charge.
func (s *Store) UpsertProfile(ctx context.Context, p model.BusinessProfile) error {
	var minLead *int
	if p.MinLeadSet || p.MinLead > 0 {
		v := int(p.MinLead / time.Minute)
		minLead = &v
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO business_profiles (business_id, timezone, slot_step_minutes, min_lead_minutes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (business_id) DO UPDATE
		SET timezone = EXCLUDED.timezone,
			slot_step_minutes = EXCLUDED.slot_step_minutes,
			min_lead_minutes = EXCLUDED.min_lead_minutes,
			updated_at = now()
	`, p.BusinessID, p.Timezone, int(p.SlotStep.Minutes()), minLead)
	return mapError(err)
}

func (s *Store) UpsertStaff(ctx context.Context, st model.Staff) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO staff (business_id, id, name, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (business_id, id) DO UPDATE SET name = EXCLUDED.name, active = EXCLUDED.active
	`, st.BusinessID, st.ID, st.Name, st.Active)
	return mapError(err)
}

// UpsertService stores svc and replaces its staff assignments with staffIDs.
func (s *Store) UpsertService(ctx context.Context, svc model.ServiceDefinition, staffIDs ...string) error {
	return s.run(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO services (business_id, id, name, duration_minutes, buffer_minutes, deposit_required)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (business_id, id) DO UPDATE
			SET name = EXCLUDED.name,
				duration_minutes = EXCLUDED.duration_minutes,
				buffer_minutes = EXCLUDED.buffer_minutes,
				deposit_required = EXCLUDED.deposit_required
		`, svc.BusinessID, svc.ID, svc.Name, svc.DurationMinutes, svc.BufferMinutes, svc.DepositRequired); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM service_staff WHERE business_id = $1 AND service_id = $2`, svc.BusinessID, svc.ID); err != nil {
			return err
		}
		for _, id := range staffIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO service_staff (business_id, service_id, staff_id) VALUES ($1, $2, $3)
			`, svc.BusinessID, svc.ID, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceSchedules swaps a staff member's weekly schedule for rows.
func (s *Store) ReplaceSchedules(ctx context.Context, businessID, staffID string, rows ...model.WorkingSchedule) error {
	return s.run(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM working_schedules WHERE business_id = $1 AND staff_id = $2`, businessID, staffID); err != nil {
			return err
		}
		for _, r := range rows {
			if _, err := tx.Exec(ctx, `
				INSERT INTO working_schedules (business_id, staff_id, weekday, open_minute, close_minute, active)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, businessID, staffID, int16(r.Weekday), r.OpenMinute, r.CloseMinute, r.Active); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) AddTimeOff(ctx context.Context, businessID string, off model.TimeOff) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO staff_time_off (business_id, staff_id, start_time, end_time, reason)
		VALUES ($1, $2, $3, $4, $5)
	`, businessID, off.StaffID, off.Start, off.End, off.Reason)
	return mapError(err)
}
