package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// Register mounts the public routes as-is and wraps the back-office routes in staffOnly.
func (h *BookingHandler) Register(mux *http.ServeMux, staffOnly httpx.Middleware) {
	if staffOnly == nil {
		staffOnly = func(next http.Handler) http.Handler { return next }
	}
	mux.HandleFunc("/api/v1/public/slots", h.Slots)
	mux.HandleFunc("/api/v1/public/book", h.Create)

	back := map[string]http.Handler{
		"/api/v1/appointments":            http.HandlerFunc(h.List),
		"/api/v1/appointments/get":        http.HandlerFunc(h.Get),
		"/api/v1/appointments/walk-in":    http.HandlerFunc(h.WalkIn),
		"/api/v1/appointments/reschedule": http.HandlerFunc(h.Reschedule),
		"/api/v1/appointments/confirm":    h.Transition(model.StatusConfirmed),
		"/api/v1/appointments/start":      h.Transition(model.StatusInProgress),
		"/api/v1/appointments/complete":   h.Transition(model.StatusCompleted),
		"/api/v1/appointments/no-show":    h.Transition(model.StatusNoShow),
		"/api/v1/appointments/cancel":     h.Transition(model.StatusCancelled),
	}
	for path, handler := range back {
		mux.Handle(path, staffOnly(handler))
	}
}
