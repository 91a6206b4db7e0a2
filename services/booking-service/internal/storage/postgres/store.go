// Package postgres is the storage.Store backed by PostgreSQL. Commits on one staff timeline are
// serialised by the staff_timelines row lock, and the appointments_no_overlap exclusion
// constraint rejects overlapping service times even if that lock were bypassed.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

const idempotencyIndex = "appointments_idempotency_key"

type Store struct {
	pool        *db.Pool
	lockTimeout time.Duration
}

// New returns a store whose transactions wait at most lockTimeout for a row lock.
func New(pool *db.Pool, lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = 2 * time.Second
	}
	return &Store{pool: pool, lockTimeout: lockTimeout}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) InStaffTx(ctx context.Context, businessID, staffID string, fn func(storage.Tx) error) error {
	return s.run(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO staff_timelines (business_id, staff_id, version)
			VALUES ($1, $2, 1)
			ON CONFLICT (business_id, staff_id)
			DO UPDATE SET version = staff_timelines.version + 1, updated_at = now()
		`, businessID, staffID); err != nil {
			return err
		}
		return fn(&pgTx{tx: tx})
	})
}

func (s *Store) InTx(ctx context.Context, fn func(storage.Tx) error) error {
	return s.run(ctx, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

func (s *Store) run(ctx context.Context, fn func(pgx.Tx) error) error {
	return mapError(s.pool.InTx(ctx, s.lockTimeout, fn))
}

// mapError turns driver failures into the sentinels callers branch on. Errors that already
// carry a sentinel pass through unchanged.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsExclusionViolation(err):
		return fmt.Errorf("%w: %v", model.ErrSlotConflict, err)
	case db.IsUniqueViolation(err) && db.ConstraintName(err) == idempotencyIndex:
		return storage.ErrDuplicateIdempotencyKey
	case db.IsTransient(err):
		return fmt.Errorf("%w: %v", model.ErrUpstreamUnavailable, err)
	}
	return err
}

// Schedule reads.

func (s *Store) GetService(ctx context.Context, businessID, serviceID string) (model.ServiceDefinition, error) {
	var svc model.ServiceDefinition
	err := s.pool.QueryRow(ctx, `
		SELECT id, business_id, name, duration_minutes, buffer_minutes, deposit_required
		FROM services
		WHERE business_id = $1 AND id = $2
	`, businessID, serviceID).Scan(&svc.ID, &svc.BusinessID, &svc.Name, &svc.DurationMinutes, &svc.BufferMinutes, &svc.DepositRequired)
	if db.IsNotFound(err) {
		return model.ServiceDefinition{}, fmt.Errorf("service %s: %w", serviceID, model.ErrNotFound)
	}
	return svc, mapError(err)
}

func (s *Store) GetStaff(ctx context.Context, businessID, staffID string) (model.Staff, error) {
	var st model.Staff
	err := s.pool.QueryRow(ctx, `
		SELECT id, business_id, name, active
		FROM staff
		WHERE business_id = $1 AND id = $2
	`, businessID, staffID).Scan(&st.ID, &st.BusinessID, &st.Name, &st.Active)
	if db.IsNotFound(err) {
		return model.Staff{}, fmt.Errorf("staff %s: %w", staffID, model.ErrNotFound)
	}
	return st, mapError(err)
}

func (s *Store) ListQualifiedStaff(ctx context.Context, businessID, serviceID string) ([]string, error) {
	return s.listIDs(ctx, `
		SELECT st.id
		FROM staff st
		WHERE st.business_id = $1 AND st.active
		  AND (
		    EXISTS (SELECT 1 FROM service_staff ss
		            WHERE ss.business_id = st.business_id AND ss.service_id = $2 AND ss.staff_id = st.id)
		    OR NOT EXISTS (SELECT 1 FROM service_staff ss
		                   WHERE ss.business_id = $1 AND ss.service_id = $2)
		  )
		ORDER BY st.id
	`, businessID, serviceID)
}

func (s *Store) ListActiveStaff(ctx context.Context, businessID string) ([]string, error) {
	return s.listIDs(ctx, `
		SELECT id FROM staff
		WHERE business_id = $1 AND active
		ORDER BY id
	`, businessID)
}

func (s *Store) listIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return ids, mapError(err)
}

func (s *Store) ListSchedules(ctx context.Context, businessID, staffID string) ([]model.WorkingSchedule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT staff_id, weekday, open_minute, close_minute, active
		FROM working_schedules
		WHERE business_id = $1 AND staff_id = $2
		ORDER BY weekday, open_minute
	`, businessID, staffID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []model.WorkingSchedule
	for rows.Next() {
		var (
			ws      model.WorkingSchedule
			weekday int16
		)
		if err := rows.Scan(&ws.StaffID, &weekday, &ws.OpenMinute, &ws.CloseMinute, &ws.Active); err != nil {
			return nil, err
		}
		ws.Weekday = time.Weekday(weekday)
		out = append(out, ws)
	}
	return out, mapError(rows.Err())
}

func (s *Store) ListTimeOff(ctx context.Context, businessID, staffID string, from, to time.Time) ([]model.TimeOff, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT staff_id, start_time, end_time, reason
		FROM staff_time_off
		WHERE business_id = $1 AND staff_id = $2 AND start_time < $4 AND end_time > $3
		ORDER BY start_time
	`, businessID, staffID, from, to)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []model.TimeOff
	for rows.Next() {
		var off model.TimeOff
		if err := rows.Scan(&off.StaffID, &off.Start, &off.End, &off.Reason); err != nil {
			return nil, err
		}
		out = append(out, off)
	}
	return out, mapError(rows.Err())
}

func (s *Store) GetBusinessProfile(ctx context.Context, businessID string) (model.BusinessProfile, bool, error) {
	var (
		p       = model.BusinessProfile{BusinessID: businessID}
		step    int
		minLead *int
	)
	err := s.pool.QueryRow(ctx, `
		SELECT timezone, slot_step_minutes, min_lead_minutes
		FROM business_profiles
		WHERE business_id = $1
	`, businessID).Scan(&p.Timezone, &step, &minLead)
	if db.IsNotFound(err) {
		return model.BusinessProfile{}, false, nil
	}
	if err != nil {
		return model.BusinessProfile{}, false, mapError(err)
	}
	p.SlotStep = time.Duration(step) * time.Minute
	if minLead != nil {
		p.MinLead = time.Duration(*minLead) * time.Minute
		p.MinLeadSet = true
	}
	return p, true, nil
}

// Appointment reads.

const appointmentColumns = `id, business_id, COALESCE(service_id, ''), COALESCE(staff_id, ''), customer_name, customer_email, customer_phone,
	start_time, end_time, buffer_minutes, status, walk_in, COALESCE(idempotency_key, ''),
	cancelled_at, COALESCE(cancellation_reason, ''), created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID,
		&a.BusinessID,
		&a.ServiceID,
		&a.StaffID,
		&a.CustomerName,
		&a.CustomerEmail,
		&a.CustomerPhone,
		&a.StartTime,
		&a.EndTime,
		&a.BufferMinutes,
		&a.Status,
		&a.WalkIn,
		&a.IdempotencyKey,
		&a.CancelledAt,
		&a.CancelReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

func collectAppointments(rows pgx.Rows, err error) ([]model.Appointment, error) {
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, mapError(rows.Err())
}

// queryer is the part of pgxpool.Pool and pgx.Tx the shared queries need.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func listStaffAppointments(ctx context.Context, q queryer, businessID, staffID string, from, to time.Time) ([]model.Appointment, error) {
	return collectAppointments(q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1
			AND staff_id = $2
			AND status NOT IN ('cancelled', 'no_show')
			AND start_time < $4
			AND end_time + make_interval(mins => buffer_minutes) > $3
		ORDER BY start_time
	`, businessID, staffID, from, to))
}

func getAppointment(ctx context.Context, q queryer, businessID, appointmentID, suffix string) (model.Appointment, error) {
	a, err := scanAppointment(q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1 AND id = $2
	`+suffix, businessID, appointmentID))
	if db.IsNotFound(err) {
		return model.Appointment{}, fmt.Errorf("appointment %s: %w", appointmentID, model.ErrNotFound)
	}
	return a, err
}

func (s *Store) ListStaffAppointments(ctx context.Context, businessID, staffID string, from, to time.Time) ([]model.Appointment, error) {
	return listStaffAppointments(ctx, s.pool, businessID, staffID, from, to)
}

func (s *Store) GetAppointment(ctx context.Context, businessID, appointmentID string) (model.Appointment, error) {
	a, err := getAppointment(ctx, s.pool, businessID, appointmentID, "")
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return model.Appointment{}, mapError(err)
	}
	return a, err
}

func (s *Store) ListAppointments(ctx context.Context, f storage.ListFilter) ([]model.Appointment, error) {
	where := []string{"business_id = $1"}
	args := []any{f.BusinessID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.StaffID != "" {
		add("staff_id = $%d", f.StaffID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if !f.From.IsZero() {
		add("start_time >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("start_time < $%d", f.To)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s
		FROM appointments
		WHERE %s
		ORDER BY start_time DESC
		LIMIT $%d
	`, appointmentColumns, strings.Join(where, " AND "), len(args))
	return collectAppointments(s.pool.Query(ctx, query, args...))
}
