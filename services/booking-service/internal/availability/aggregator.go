// Package availability computes bookable slots: per staff member through a StaffCalendar,
// and across staff through the Aggregator.
package availability

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/timegrid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

type Query struct {
	BusinessID           string
	ServiceID            string
	DurationMinutes      int
	StaffID              string
	Date                 string
	ExcludeAppointmentID string
}

type Result struct {
	BusinessID      string           `json:"business_id"`
	Date            string           `json:"date"`
	Timezone        string           `json:"timezone"`
	ServiceID       string           `json:"service_id,omitempty"`
	DurationMinutes int              `json:"duration_minutes"`
	StepMinutes     int              `json:"step_minutes"`
	StaffIDs        []string         `json:"staff_ids"`
	Slots           []model.Slot     `json:"slots"`
	Times           []model.SlotTime `json:"times"`
}

// CalendarFactory builds the calendar for one staff member of a business.
type CalendarFactory func(businessID, staffID string) StaffCalendar

type Aggregator struct {
	store       storage.ScheduleReader
	profiles    policy.Provider
	calendars   CalendarFactory
	metrics     *metrics.Metrics
	now         func() time.Time
	parallelism int
}

type Option func(*Aggregator)

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

func WithCalendars(f CalendarFactory) Option {
	return func(a *Aggregator) { a.calendars = f }
}

// WithParallelism caps how many staff calendars are evaluated at once.
func WithParallelism(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.parallelism = n
		}
	}
}

func NewAggregator(store storage.Reader, profiles policy.Provider, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:    store,
		profiles: profiles,
		calendars: func(businessID, staffID string) StaffCalendar {
			return NewStoreCalendar(store, businessID, staffID)
		},
		now:         time.Now,
		parallelism: 8,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Aggregator) Query(ctx context.Context, q Query) (res Result, err error) {
	start := time.Now()
	ctx, span := otelx.Start(ctx, "availability.query",
		attribute.String("business_id", q.BusinessID),
		attribute.String("date", q.Date),
	)
	defer func() {
		otelx.Finish(span, err)
		a.metrics.ObserveAvailability(outcomeOf(err), time.Since(start))
	}()

	if err := validateQuery(q); err != nil {
		return Result{}, err
	}
	day, err := timegrid.ParseDate(q.Date)
	if err != nil {
		return Result{}, err
	}
	prof, err := a.profiles.Profile(ctx, q.BusinessID)
	if err != nil {
		return Result{}, err
	}
	loc, err := prof.Location()
	if err != nil {
		return Result{}, fmt.Errorf("business timezone %q: %w", prof.Timezone, model.ErrInvalidRequest)
	}

	duration := time.Duration(q.DurationMinutes) * time.Minute
	if q.ServiceID != "" {
		svc, err := a.store.GetService(ctx, q.BusinessID, q.ServiceID)
		if err != nil {
			return Result{}, err
		}
		if svc.DurationMinutes <= 0 {
			return Result{}, fmt.Errorf("service %s has no duration: %w", svc.ID, model.ErrInvalidRequest)
		}
		duration = svc.Duration()
	}

	staffIDs, err := a.resolveStaff(ctx, q)
	if err != nil {
		return Result{}, err
	}

	res = Result{
		BusinessID:      q.BusinessID,
		Date:            day.String(),
		Timezone:        loc.String(),
		ServiceID:       q.ServiceID,
		DurationMinutes: int(duration / time.Minute),
		StepMinutes:     int(prof.SlotStep / time.Minute),
		StaffIDs:        staffIDs,
		Slots:           []model.Slot{},
		Times:           []model.SlotTime{},
	}
	if len(staffIDs) == 0 {
		return res, nil
	}

	req := DayRequest{
		Day:      day,
		Location: loc,
		Generator: Generator{
			Step:      prof.SlotStep,
			Duration:  duration,
			NotBefore: a.now().In(loc).Add(prof.MinLead),
		},
		ExcludeAppointmentID: q.ExcludeAppointmentID,
	}

	perStaff := make([][]model.Slot, len(staffIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallelism)
	for i, id := range staffIDs {
		cal := a.calendars(q.BusinessID, id)
		g.Go(func() error {
			slots, err := cal.Slots(gctx, req)
			if err != nil {
				return err
			}
			perStaff[i] = slots
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res.Slots = Union(perStaff...)
	res.Times = Collapse(res.Slots)
	return res, nil
}

func (a *Aggregator) resolveStaff(ctx context.Context, q Query) ([]string, error) {
	switch {
	case q.StaffID != "":
		st, err := a.store.GetStaff(ctx, q.BusinessID, q.StaffID)
		if err != nil {
			return nil, err
		}
		if !st.Active {
			return nil, nil
		}
		if q.ServiceID != "" {
			ok, err := storage.IsQualified(ctx, a.store, q.BusinessID, q.ServiceID, st.ID)
			if err != nil || !ok {
				return nil, err
			}
		}
		return []string{st.ID}, nil
	case q.ServiceID != "":
		return a.store.ListQualifiedStaff(ctx, q.BusinessID, q.ServiceID)
	default:
		return a.store.ListActiveStaff(ctx, q.BusinessID)
	}
}

func validateQuery(q Query) error {
	var missing []string
	if q.BusinessID == "" {
		missing = append(missing, "business_id")
	}
	if q.Date == "" {
		missing = append(missing, "date")
	}
	if q.ServiceID == "" && q.DurationMinutes == 0 {
		missing = append(missing, "service_id or duration_minutes")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", model.ErrInvalidRequest, strings.Join(missing, ", "))
	}
	if q.ServiceID == "" && q.DurationMinutes < 0 {
		return fmt.Errorf("%w: duration_minutes must be positive", model.ErrInvalidRequest)
	}
	return nil
}

// Union merges per-staff slot lists ordered by (start, staff id).
func Union(lists ...[]model.Slot) []model.Slot {
	var n int
	for _, l := range lists {
		n += len(l)
	}
	out := make([]model.Slot, 0, n)
	for _, l := range lists {
		out = append(out, l...)
	}
	slices.SortFunc(out, func(a, b model.Slot) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return strings.Compare(a.StaffID, b.StaffID)
	})
	return out
}

// Collapse turns an ordered slot list into one entry per clock time with every free staff member.
// Which of them takes the booking is the caller's choice.
func Collapse(slots []model.Slot) []model.SlotTime {
	out := []model.SlotTime{}
	for _, s := range slots {
		if n := len(out); n > 0 && out[n-1].Start.Equal(s.Start) {
			if s.Available {
				out[n-1].Available = true
				out[n-1].StaffIDs = append(out[n-1].StaffIDs, s.StaffID)
			}
			continue
		}
		st := model.SlotTime{Start: s.Start, End: s.End, Available: s.Available, StaffIDs: []string{}}
		if s.Available {
			st.StaffIDs = append(st.StaffIDs, s.StaffID)
		}
		out = append(out, st)
	}
	return out
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, model.ErrInvalidRequest), errors.Is(err, model.ErrNotFound):
		return metrics.OutcomeInvalid
	case errors.Is(err, model.ErrUpstreamUnavailable):
		return metrics.OutcomeUnavailable
	default:
		return metrics.OutcomeError
	}
}
