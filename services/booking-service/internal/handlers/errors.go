package handlers

import (
	"errors"
	"net/http"

	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

const (
	codeInvalidRequest      = "invalid_request"
	codeForbidden           = "forbidden"
	codeNotFound            = "not_found"
	codeSlotConflict        = "slot_conflict"
	codeInvalidTransition   = "invalid_transition"
	codeOutsideWorkingHours = "outside_working_hours"
	codeStaffNotQualified   = "staff_not_qualified"
	codeRescheduleLost      = "reschedule_lost"
	codeUnavailable         = "upstream_unavailable"
	codeInternal            = "internal"
)

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{auth.ErrMissingTenant, http.StatusBadRequest, codeInvalidRequest},
	{auth.ErrTenantMismatch, http.StatusForbidden, codeForbidden},
	// Before ErrSlotConflict: a lost reschedule wraps the conflict.
	{model.ErrRescheduleLost, http.StatusConflict, codeRescheduleLost},
	{model.ErrInvalidRequest, http.StatusBadRequest, codeInvalidRequest},
	{model.ErrNotFound, http.StatusNotFound, codeNotFound},
	{model.ErrSlotConflict, http.StatusConflict, codeSlotConflict},
	{model.ErrInvalidTransition, http.StatusConflict, codeInvalidTransition},
	{model.ErrOutsideWorkingHours, http.StatusUnprocessableEntity, codeOutsideWorkingHours},
	{model.ErrStaffNotQualified, http.StatusUnprocessableEntity, codeStaffNotQualified},
	{model.ErrUpstreamUnavailable, http.StatusServiceUnavailable, codeUnavailable},
}

func (h *BookingHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorStatus {
		if !errors.Is(err, e.err) {
			continue
		}
		if e.status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "1")
			h.logger.Warn("upstream unavailable", "err", err, "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()))
			httpx.WriteError(w, e.status, e.code, "temporarily unavailable, retry")
			return
		}
		httpx.WriteError(w, e.status, e.code, err.Error())
		return
	}
	h.logger.Error("request failed", "err", err, "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()))
	httpx.WriteError(w, http.StatusInternalServerError, codeInternal, "internal error")
}
