package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/policy"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/reservation"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage/memstore"
	"github.com/stretchr/testify/require"
)

var monday = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newServer(t *testing.T) (*httptest.Server, *memstore.Store) {
	t.Helper()
	s := memstore.New(memstore.WithClock(func() time.Time { return monday }))
	s.PutStaff(model.Staff{ID: "A", BusinessID: "b1", Active: true})
	s.PutSchedule("b1", model.WorkingSchedule{StaffID: "A", Weekday: time.Tuesday, OpenMinute: 600, CloseMinute: 1080, Active: true})
	s.PutService(model.ServiceDefinition{ID: "cut", BusinessID: "b1", DurationMinutes: 60, BufferMinutes: 15}, "A")

	clock := func() time.Time { return monday }
	profiles := policy.NewLayered(discard(), policy.Defaults{Timezone: "UTC", SlotStep: 30 * time.Minute}, s)
	agg := availability.NewAggregator(s, profiles, availability.WithClock(clock))
	committer := reservation.NewCommitter(s, profiles, discard(), reservation.WithClock(clock))

	mux := http.NewServeMux()
	NewBookingHandler(agg, committer, s, discard()).Register(mux, nil)
	srv := httptest.NewServer(httpx.Chain(mux, auth.Middleware(auth.NewVerifier("", nil), false)))
	t.Cleanup(srv.Close)
	return srv, s
}

func do(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func book(start string) map[string]string {
	return map[string]string{
		"business_id":   "b1",
		"staff_id":      "A",
		"service_id":    "cut",
		"customer_name": "Ada",
		"start_time":    start,
	}
}

func TestSlotsEndpoint(t *testing.T) {
	srv, _ := newServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/v1/public/slots?business_id=b1&service_id=cut&staff_id=A&date=2025-03-11", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	slots := body["slots"].([]any)
	require.NotEmpty(t, slots)
	require.Equal(t, "2025-03-11T10:00:00Z", slots[0].(map[string]any)["start"])
	require.NotContains(t, body, "times")

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v1/public/slots?business_id=b1&service_id=cut&date=2025-03-11&view=any", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, body["times"])

	resp, body = do(t, http.MethodGet, srv.URL+"/api/v1/public/slots?business_id=b1&service_id=cut&date=11-03-2025", nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, codeInvalidRequest, body["error"])

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/public/slots?service_id=cut&date=2025-03-11", nil, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBookEndpoint(t *testing.T) {
	srv, _ := newServer(t)
	url := srv.URL + "/api/v1/public/book"

	resp, body := do(t, http.MethodPost, url, book("2025-03-11T10:00:00Z"), map[string]string{IdempotencyKeyHeader: "k1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "pending", body["status"])
	id := body["appointment_id"]

	resp, body = do(t, http.MethodPost, url, book("2025-03-11T10:00:00Z"), map[string]string{IdempotencyKeyHeader: "k1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "true", resp.Header.Get("Idempotent-Replayed"))
	require.Equal(t, id, body["appointment_id"])

	resp, body = do(t, http.MethodPost, url, book("2025-03-11T10:30:00Z"), nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, codeSlotConflict, body["error"])

	resp, body = do(t, http.MethodPost, url, book("2025-03-11T08:00:00Z"), nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, codeOutsideWorkingHours, body["error"])

	resp, _ = do(t, http.MethodPost, url, book("tomorrow"), nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, url, nil, nil)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestTenantMismatchIsForbidden(t *testing.T) {
	srv, _ := newServer(t)
	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/public/book", book("2025-03-11T10:00:00Z"), map[string]string{auth.BusinessHeader: "b2"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, codeForbidden, body["error"])
}

func TestAppointmentLifecycleEndpoints(t *testing.T) {
	srv, _ := newServer(t)

	_, body := do(t, http.MethodPost, srv.URL+"/api/v1/public/book", book("2025-03-11T10:00:00Z"), nil)
	id := body["appointment_id"].(string)
	ref := map[string]string{"business_id": "b1", "appointment_id": id}

	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/appointments/confirm", ref, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "confirmed", body["status"])

	resp, body = do(t, http.MethodPost, srv.URL+"/api/v1/appointments/reschedule",
		map[string]string{"business_id": "b1", "appointment_id": id, "start_time": "2025-03-11T14:00:00Z"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	movedID := body["appointment_id"].(string)

	resp, body = do(t, http.MethodGet, fmt.Sprintf("%s/api/v1/appointments/get?business_id=b1&appointment_id=%s", srv.URL, id), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "cancelled", body["status"])

	resp, body = do(t, http.MethodPost, srv.URL+"/api/v1/appointments/complete", ref, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, codeInvalidTransition, body["error"])

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/v1/appointments/get?business_id=b1&appointment_id=nope", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/appointments?business_id=b1&status=pending", nil)
	require.NoError(t, err)
	listResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer listResp.Body.Close()
	var items []appointmentView
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&items))
	require.Len(t, items, 1)
	require.Equal(t, movedID, items[0].AppointmentID)
}

func TestWalkInEndpoint(t *testing.T) {
	srv, _ := newServer(t)
	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/appointments/walk-in",
		map[string]string{"business_id": "b1", "staff_id": "A", "service_id": "cut"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "in_progress", body["status"])
	require.Equal(t, true, body["walk_in"])
}

type unavailableCommitter struct{ Committer }

func (unavailableCommitter) Reserve(context.Context, reservation.ReserveInput) (reservation.ReserveResult, error) {
	return reservation.ReserveResult{}, fmt.Errorf("lock wait: %w", model.ErrUpstreamUnavailable)
}

func TestUpstreamUnavailableIs503(t *testing.T) {
	s := memstore.New()
	h := NewBookingHandler(nil, unavailableCommitter{}, s, discard())
	rec := httptest.NewRecorder()
	raw, err := json.Marshal(book("2025-03-11T10:00:00Z"))
	require.NoError(t, err)
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", bytes.NewReader(raw)))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
}
