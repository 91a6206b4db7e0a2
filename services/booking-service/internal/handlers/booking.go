// Package handlers exposes the availability and reservation engine over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/reservation"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

// IdempotencyKeyHeader makes POST /book and /walk-in safe to retry.
const IdempotencyKeyHeader = "Idempotency-Key"

const maxIdempotencyKeyLen = 200

type Availability interface {
	Query(ctx context.Context, q availability.Query) (availability.Result, error)
}

type Committer interface {
	Reserve(ctx context.Context, in reservation.ReserveInput) (reservation.ReserveResult, error)
	Transition(ctx context.Context, in reservation.TransitionInput) (model.Appointment, error)
	Reschedule(ctx context.Context, in reservation.RescheduleInput) (model.Appointment, error)
}

type BookingHandler struct {
	availability Availability
	committer    Committer
	appointments storage.AppointmentReader
	logger       *slog.Logger
}

func NewBookingHandler(avail Availability, committer Committer, appointments storage.AppointmentReader, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		availability: avail,
		committer:    committer,
		appointments: appointments,
		logger:       logger,
	}
}

type bookRequest struct {
	BusinessID    string `json:"business_id"`
	ServiceID     string `json:"service_id"`
	StaffID       string `json:"staff_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	StartTime     string `json:"start_time"`
}

type appointmentView struct {
	AppointmentID string `json:"appointment_id"`
	BusinessID    string `json:"business_id"`
	StaffID       string `json:"staff_id"`
	ServiceID     string `json:"service_id"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	BufferMinutes int    `json:"buffer_minutes"`
	Status        string `json:"status"`
	WalkIn        bool   `json:"walk_in"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CancelReason  string `json:"cancel_reason,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func viewOf(a model.Appointment) appointmentView {
	v := appointmentView{
		AppointmentID: a.ID,
		BusinessID:    a.BusinessID,
		StaffID:       a.StaffID,
		ServiceID:     a.ServiceID,
		CustomerName:  a.CustomerName,
		CustomerEmail: a.CustomerEmail,
		CustomerPhone: a.CustomerPhone,
		StartTime:     a.StartTime.UTC().Format(time.RFC3339),
		EndTime:       a.EndTime.UTC().Format(time.RFC3339),
		BufferMinutes: a.BufferMinutes,
		Status:        string(a.Status),
		WalkIn:        a.WalkIn,
		CancelReason:  a.CancelReason,
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.CancelledAt != nil {
		v.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	return v
}

type slotsResponse struct {
	BusinessID      string           `json:"business_id"`
	Date            string           `json:"date"`
	Timezone        string           `json:"timezone"`
	ServiceID       string           `json:"service_id,omitempty"`
	DurationMinutes int              `json:"duration_minutes"`
	StepMinutes     int              `json:"step_minutes"`
	StaffIDs        []string         `json:"staff_ids"`
	Slots           []model.Slot     `json:"slots,omitempty"`
	Times           []model.SlotTime `json:"times,omitempty"`
}

// Slots answers GET /api/v1/public/slots. view=any returns one entry per clock time instead
// of one per staff member.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	businessID, err := auth.ResolveBusinessID(r.Context(), q.Get("business_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	duration := 0
	if raw := strings.TrimSpace(q.Get("duration_minutes")); raw != "" {
		duration, err = strconv.Atoi(raw)
		if err != nil || duration <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, codeInvalidRequest, "duration_minutes must be a positive integer")
			return
		}
	}

	res, err := h.availability.Query(r.Context(), availability.Query{
		BusinessID:           businessID,
		ServiceID:            strings.TrimSpace(q.Get("service_id")),
		DurationMinutes:      duration,
		StaffID:              strings.TrimSpace(q.Get("staff_id")),
		Date:                 strings.TrimSpace(q.Get("date")),
		ExcludeAppointmentID: strings.TrimSpace(q.Get("exclude_appointment_id")),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := slotsResponse{
		BusinessID:      res.BusinessID,
		Date:            res.Date,
		Timezone:        res.Timezone,
		ServiceID:       res.ServiceID,
		DurationMinutes: res.DurationMinutes,
		StepMinutes:     res.StepMinutes,
		StaffIDs:        nonNil(res.StaffIDs),
	}
	if q.Get("view") == "any" {
		resp.Times = nonNil(res.Times)
	} else {
		resp.Slots = nonNil(res.Slots)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// Create answers POST /api/v1/public/book.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.reserve(w, r, false)
}

// WalkIn answers POST /api/v1/appointments/walk-in. start_time defaults to now.
func (h *BookingHandler) WalkIn(w http.ResponseWriter, r *http.Request) {
	h.reserve(w, r, true)
}

func (h *BookingHandler) reserve(w http.ResponseWriter, r *http.Request, walkIn bool) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req bookRequest
	if !decode(w, r, &req) {
		return
	}
	businessID, err := auth.ResolveBusinessID(r.Context(), req.BusinessID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var start time.Time
	if raw := strings.TrimSpace(req.StartTime); raw != "" || !walkIn {
		start, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, codeInvalidRequest, "start_time must be RFC3339")
			return
		}
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if len(key) > maxIdempotencyKeyLen {
		httpx.WriteError(w, http.StatusBadRequest, codeInvalidRequest, "Idempotency-Key too long")
		return
	}

	res, err := h.committer.Reserve(r.Context(), reservation.ReserveInput{
		BusinessID:     businessID,
		StaffID:        strings.TrimSpace(req.StaffID),
		ServiceID:      strings.TrimSpace(req.ServiceID),
		Start:          start,
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		CustomerPhone:  req.CustomerPhone,
		WalkIn:         walkIn,
		IdempotencyKey: key,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
		status = http.StatusOK
	}
	httpx.WriteJSON(w, status, viewOf(res.Appointment))
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, codeInvalidRequest, "invalid json body")
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter) {
	httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
