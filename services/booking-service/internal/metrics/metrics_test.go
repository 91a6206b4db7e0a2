package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestConflictsAreCountedTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveReservation("scheduled", OutcomeOK, time.Millisecond)
	m.ObserveReservation("scheduled", OutcomeConflict, time.Millisecond)
	m.ObserveReservation("walk_in", OutcomeConflict, time.Millisecond)

	require.Equal(t, 1.0, testutil.ToFloat64(m.ReservationsTotal.WithLabelValues("scheduled", OutcomeConflict)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.SlotConflictsTotal.WithLabelValues("walk_in")))
	require.Equal(t, 3, testutil.CollectAndCount(m.ReservationsTotal))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveReservation("scheduled", OutcomeOK, time.Second)
	m.ObserveAvailability(OutcomeOK, time.Second)
	m.ObserveTransition("confirmed", OutcomeOK)
	m.ObserveOutbox(3, true)
	m.ObserveConsumed("t", OutcomeOK)
}

func TestHandlerExposesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveAvailability(OutcomeOK, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "booking_availability_queries_total"))
}
