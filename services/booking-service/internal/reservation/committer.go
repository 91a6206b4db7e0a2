// Package reservation commits appointments. Every commit re-checks the staff member's
// occupancy inside a per-staff unit of work, so two overlapping requests cannot both win.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/occupancy"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/timegrid"
	"go.opentelemetry.io/otel/attribute"
)

type Committer struct {
	store    storage.Store
	profiles policy.Provider
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Committer)

func WithClock(now func() time.Time) Option {
	return func(c *Committer) { c.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Committer) { c.metrics = m }
}

func NewCommitter(store storage.Store, profiles policy.Provider, logger *slog.Logger, opts ...Option) *Committer {
	c := &Committer{store: store, profiles: profiles, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type ReserveInput struct {
	BusinessID     string
	StaffID        string
	ServiceID      string
	Start          time.Time
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	WalkIn         bool
	IdempotencyKey string
}

type ReserveResult struct {
	Appointment model.Appointment
	// Replayed is true when the idempotency key matched an earlier commit.
	Replayed bool
}

const (
	kindScheduled  = "scheduled"
	kindWalkIn     = "walk_in"
	kindReschedule = "reschedule"
)

// Reserve validates the request, then inside the staff member's unit of work re-reads the
// occupancy over the candidate range and inserts the appointment only if nothing overlaps.
func (c *Committer) Reserve(ctx context.Context, in ReserveInput) (ReserveResult, error) {
	kind := kindScheduled
	if in.WalkIn {
		kind = kindWalkIn
	}
	return c.reserve(ctx, in, kind)
}

func (c *Committer) reserve(ctx context.Context, in ReserveInput, kind string) (res ReserveResult, err error) {
	started := time.Now()
	ctx, span := otelx.Start(ctx, "reservation.reserve",
		attribute.String("business_id", in.BusinessID),
		attribute.String("staff_id", in.StaffID),
		attribute.String("kind", kind),
	)
	defer func() {
		otelx.Finish(span, err)
		outcome := outcomeOf(err)
		if err == nil && res.Replayed {
			outcome = metrics.OutcomeReplayed
		}
		c.metrics.ObserveReservation(kind, outcome, time.Since(started))
		if errors.Is(err, model.ErrSlotConflict) {
			c.logger.Warn("slot conflict",
				"business_id", in.BusinessID,
				"staff_id", in.StaffID,
				"start", in.Start,
				"kind", kind,
			)
		}
	}()

	now := c.now()
	if in.WalkIn && in.Start.IsZero() {
		in.Start = now.Truncate(time.Minute)
	}
	p, err := c.prepare(ctx, in, now)
	if err != nil {
		return ReserveResult{}, err
	}

	status := model.StatusPending
	if in.WalkIn {
		status = model.StatusInProgress
	}
	appt := model.Appointment{
		BusinessID:     in.BusinessID,
		ServiceID:      in.ServiceID,
		StaffID:        in.StaffID,
		CustomerName:   strings.TrimSpace(in.CustomerName),
		CustomerEmail:  strings.TrimSpace(in.CustomerEmail),
		CustomerPhone:  strings.TrimSpace(in.CustomerPhone),
		StartTime:      in.Start,
		EndTime:        in.Start.Add(p.service.Duration()),
		BufferMinutes:  p.service.BufferMinutes,
		Status:         status,
		WalkIn:         in.WalkIn,
		IdempotencyKey: in.IdempotencyKey,
	}
	candidate := appt.ServiceTime()

	err = c.store.InStaffTx(ctx, in.BusinessID, in.StaffID, func(tx storage.Tx) error {
		if in.IdempotencyKey != "" {
			prev, ok, err := tx.FindByIdempotencyKey(ctx, in.BusinessID, in.IdempotencyKey)
			if err != nil {
				return err
			}
			if ok {
				res = ReserveResult{Appointment: prev, Replayed: true}
				return nil
			}
		}

		live, err := tx.ListStaffAppointments(ctx, in.BusinessID, in.StaffID, candidate.Start, candidate.End)
		if err != nil {
			return err
		}
		if occupancy.Build(live, "").Overlaps(candidate) {
			return fmt.Errorf("staff %s at %s: %w", in.StaffID, in.Start.Format(time.RFC3339), model.ErrSlotConflict)
		}

		if err := tx.InsertAppointment(ctx, &appt); err != nil {
			return err
		}
		ev, err := outbox.NewAppointmentEvent(ctx, outbox.TopicBooked, appt, now)
		if err != nil {
			return err
		}
		if err := tx.EnqueueEvent(ctx, ev); err != nil {
			return err
		}
		res = ReserveResult{Appointment: appt}
		return nil
	})
	if errors.Is(err, storage.ErrDuplicateIdempotencyKey) {
		return c.replay(ctx, in)
	}
	if err != nil {
		return ReserveResult{}, err
	}
	if !res.Replayed {
		c.logger.Info("appointment reserved",
			"appointment_id", res.Appointment.ID,
			"business_id", in.BusinessID,
			"staff_id", in.StaffID,
			"status", res.Appointment.Status,
		)
	}
	return res, nil
}

// replay answers a request whose idempotency key was committed by a concurrent twin.
func (c *Committer) replay(ctx context.Context, in ReserveInput) (ReserveResult, error) {
	var res ReserveResult
	err := c.store.InTx(ctx, func(tx storage.Tx) error {
		prev, ok, err := tx.FindByIdempotencyKey(ctx, in.BusinessID, in.IdempotencyKey)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("idempotency key %q vanished: %w", in.IdempotencyKey, model.ErrUpstreamUnavailable)
		}
		res = ReserveResult{Appointment: prev, Replayed: true}
		return nil
	})
	return res, err
}

type prepared struct {
	service model.ServiceDefinition
	profile model.BusinessProfile
	loc     *time.Location
}

// prepare runs every check that does not need the staff lock.
func (c *Committer) prepare(ctx context.Context, in ReserveInput, now time.Time) (prepared, error) {
	if err := validateReserve(in); err != nil {
		return prepared{}, err
	}
	svc, err := c.store.GetService(ctx, in.BusinessID, in.ServiceID)
	if err != nil {
		return prepared{}, err
	}
	if svc.DurationMinutes <= 0 {
		return prepared{}, fmt.Errorf("service %s has no duration: %w", svc.ID, model.ErrInvalidRequest)
	}
	staff, err := c.store.GetStaff(ctx, in.BusinessID, in.StaffID)
	if err != nil {
		return prepared{}, err
	}
	if !staff.Active {
		return prepared{}, fmt.Errorf("staff %s is inactive: %w", staff.ID, model.ErrStaffNotQualified)
	}
	qualified, err := storage.IsQualified(ctx, c.store, in.BusinessID, in.ServiceID, in.StaffID)
	if err != nil {
		return prepared{}, err
	}
	if !qualified {
		return prepared{}, fmt.Errorf("staff %s for service %s: %w", in.StaffID, in.ServiceID, model.ErrStaffNotQualified)
	}

	prof, err := c.profiles.Profile(ctx, in.BusinessID)
	if err != nil {
		return prepared{}, err
	}
	loc, err := prof.Location()
	if err != nil {
		return prepared{}, fmt.Errorf("business timezone %q: %w", prof.Timezone, model.ErrInvalidRequest)
	}
	p := prepared{service: svc, profile: prof, loc: loc}
	if in.WalkIn {
		return p, nil
	}

	if earliest := now.Add(prof.MinLead); in.Start.Before(earliest) {
		return prepared{}, fmt.Errorf("%w: start_time must not be before %s", model.ErrInvalidRequest, earliest.In(loc).Format(time.RFC3339))
	}
	local := in.Start.In(loc)
	open, err := availability.OpenIntervals(ctx, c.store, in.BusinessID, in.StaffID, timegrid.DateOf(local), loc)
	if err != nil {
		return prepared{}, err
	}
	if !(availability.Generator{Duration: svc.Duration()}).Fits(open, in.Start) {
		return prepared{}, fmt.Errorf("staff %s at %s: %w", in.StaffID, local.Format(time.RFC3339), model.ErrOutsideWorkingHours)
	}
	return p, nil
}

func validateReserve(in ReserveInput) error {
	var missing []string
	if in.BusinessID == "" {
		missing = append(missing, "business_id")
	}
	if in.StaffID == "" {
		missing = append(missing, "staff_id")
	}
	if in.ServiceID == "" {
		missing = append(missing, "service_id")
	}
	if in.Start.IsZero() {
		missing = append(missing, "start_time")
	}
	if !in.WalkIn && strings.TrimSpace(in.CustomerName) == "" {
		missing = append(missing, "customer_name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", model.ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, model.ErrSlotConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, model.ErrUpstreamUnavailable):
		return metrics.OutcomeUnavailable
	case errors.Is(err, model.ErrInvalidRequest), errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrOutsideWorkingHours), errors.Is(err, model.ErrStaffNotQualified),
		errors.Is(err, model.ErrInvalidTransition):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}
