package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/reservation"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

const maxListLimit = 200

type transitionRequest struct {
	BusinessID    string `json:"business_id"`
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

// Transition returns the handler for POST /api/v1/appointments/{confirm,start,...}.
func (h *BookingHandler) Transition(to model.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		var req transitionRequest
		if !decode(w, r, &req) {
			return
		}
		businessID, err := auth.ResolveBusinessID(r.Context(), req.BusinessID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		appt, err := h.committer.Transition(r.Context(), reservation.TransitionInput{
			BusinessID:    businessID,
			AppointmentID: strings.TrimSpace(req.AppointmentID),
			To:            to,
			Reason:        req.Reason,
		})
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, viewOf(appt))
	}
}

type rescheduleRequest struct {
	BusinessID    string `json:"business_id"`
	AppointmentID string `json:"appointment_id"`
	StaffID       string `json:"staff_id"`
	StartTime     string `json:"start_time"`
}

type rescheduleLostBody struct {
	httpx.ErrorBody
	Cancelled appointmentView `json:"cancelled"`
}

// Reschedule answers POST /api/v1/appointments/reschedule.
func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req rescheduleRequest
	if !decode(w, r, &req) {
		return
	}
	businessID, err := auth.ResolveBusinessID(r.Context(), req.BusinessID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, codeInvalidRequest, "start_time must be RFC3339")
		return
	}

	appt, err := h.committer.Reschedule(r.Context(), reservation.RescheduleInput{
		BusinessID:     businessID,
		AppointmentID:  strings.TrimSpace(req.AppointmentID),
		NewStart:       start,
		NewStaffID:     strings.TrimSpace(req.StaffID),
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader)),
	})
	var lost *model.RescheduleLostError
	if errors.As(err, &lost) {
		httpx.WriteJSON(w, http.StatusConflict, rescheduleLostBody{
			ErrorBody: httpx.ErrorBody{Error: codeRescheduleLost, Message: lost.Error()},
			Cancelled: viewOf(lost.Cancelled),
		})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, viewOf(appt))
}

// List answers GET /api/v1/appointments, newest first.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
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

	f := storage.ListFilter{BusinessID: businessID, StaffID: strings.TrimSpace(q.Get("staff_id")), Limit: 50}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= maxListLimit {
			f.Limit = n
		}
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		st, ok := model.ParseStatus(raw)
		if !ok {
			httpx.WriteError(w, http.StatusBadRequest, codeInvalidRequest, "unknown status")
			return
		}
		f.Status = st
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := strings.TrimSpace(q.Get(p.name))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, codeInvalidRequest, p.name+" must be RFC3339")
			return
		}
		*p.dst = t
	}

	appts, err := h.appointments.ListAppointments(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]appointmentView, 0, len(appts))
	for _, a := range appts {
		items = append(items, viewOf(a))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

// Get answers GET /api/v1/appointments/get?appointment_id=.
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	id := strings.TrimSpace(q.Get("appointment_id"))
	if id == "" {
		httpx.WriteError(w, http.StatusBadRequest, codeInvalidRequest, "appointment_id required")
		return
	}
	appt, err := h.appointments.GetAppointment(r.Context(), businessID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, viewOf(appt))
}
