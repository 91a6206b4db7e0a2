package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/kafkax"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/inbox"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/reservation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// fakeReader serves msgs once, then cancels the run.
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []kafka.Message
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

type fakeTransitioner struct {
	mu    sync.Mutex
	calls []reservation.TransitionInput
	errs  []error
}

func (f *fakeTransitioner) Transition(_ context.Context, in reservation.TransitionInput) (model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, in)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return model.Appointment{}, err
		}
	}
	return model.Appointment{ID: in.AppointmentID, Status: in.To}, nil
}

func depositMsg(t *testing.T, eventID, apptID string) kafka.Message {
	t.Helper()
	body, err := json.Marshal(depositPaid{BusinessID: "b1", AppointmentID: apptID, PaymentID: "p-" + apptID})
	require.NoError(t, err)
	return kafka.Message{
		Topic:   TopicDepositPaid,
		Value:   body,
		Headers: kafkax.EventMeta{EventID: eventID, EventType: TopicDepositPaid}.Headers(),
	}
}

func run(t *testing.T, msgs []kafka.Message, tr *fakeTransitioner) (*fakeReader, *metrics.Metrics) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &fakeReader{msgs: msgs, cancel: cancel}
	m := metrics.New(prometheus.NewRegistry())
	c := New(discard(), r, inbox.NewMemory(), DepositPaidHandler(tr, discard()), m, Config{Attempts: 3, Backoff: time.Millisecond})

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
	return r, m
}

func TestDepositConfirmsOncePerEvent(t *testing.T) {
	tr := &fakeTransitioner{}
	r, m := run(t, []kafka.Message{
		depositMsg(t, "e1", "a1"),
		depositMsg(t, "e1", "a1"),
		depositMsg(t, "e2", "a2"),
	}, tr)

	require.Len(t, tr.calls, 2)
	require.Equal(t, model.StatusConfirmed, tr.calls[0].To)
	require.Len(t, r.committed, 3)
	require.Equal(t, float64(1), testutil.ToFloat64(m.ConsumedEventsTotal.WithLabelValues(TopicDepositPaid, metrics.OutcomeDuplicate)))
}

func TestInvalidPayloadIsCommitted(t *testing.T) {
	tr := &fakeTransitioner{}
	bad := kafka.Message{Topic: TopicDepositPaid, Value: []byte("{"), Headers: kafkax.EventMeta{EventID: "e1"}.Headers()}
	missing := kafka.Message{Topic: TopicDepositPaid, Value: []byte(`{"business_id":"b1"}`), Headers: kafkax.EventMeta{EventID: "e2"}.Headers()}
	r, m := run(t, []kafka.Message{bad, missing}, tr)

	require.Empty(t, tr.calls)
	require.Len(t, r.committed, 2)
	require.Equal(t, float64(2), testutil.ToFloat64(m.ConsumedEventsTotal.WithLabelValues(TopicDepositPaid, metrics.OutcomeInvalid)))
}

func TestTransientFailureIsRetried(t *testing.T) {
	tr := &fakeTransitioner{errs: []error{model.ErrUpstreamUnavailable, nil}}
	r, m := run(t, []kafka.Message{depositMsg(t, "e1", "a1")}, tr)

	require.Len(t, tr.calls, 2)
	require.Len(t, r.committed, 1)
	require.Equal(t, float64(1), testutil.ToFloat64(m.ConsumedEventsTotal.WithLabelValues(TopicDepositPaid, metrics.OutcomeOK)))
}

func TestGiveUpAfterAttempts(t *testing.T) {
	boom := errors.New("boom")
	tr := &fakeTransitioner{errs: []error{boom, boom, boom}}
	r, m := run(t, []kafka.Message{depositMsg(t, "e1", "a1")}, tr)

	require.Len(t, tr.calls, 3)
	require.Len(t, r.committed, 1)
	require.Equal(t, float64(1), testutil.ToFloat64(m.ConsumedEventsTotal.WithLabelValues(TopicDepositPaid, metrics.OutcomeError)))
}

func TestStaleDepositIsIgnored(t *testing.T) {
	tr := &fakeTransitioner{errs: []error{model.ErrInvalidTransition}}
	r, _ := run(t, []kafka.Message{depositMsg(t, "e1", "a1")}, tr)
	require.Len(t, tr.calls, 1)
	require.Len(t, r.committed, 1)
}

func TestDepositsWithoutEventIDOrKeyAreNotCollapsed(t *testing.T) {
	bare := func(apptID string, offset int64) kafka.Message {
		m := depositMsg(t, "", apptID)
		m.Headers = nil
		m.Offset = offset
		return m
	}
	tr := &fakeTransitioner{}
	redelivered := bare("a1", 7)
	r, m := run(t, []kafka.Message{bare("a1", 7), bare("a2", 8), redelivered}, tr)

	require.Len(t, tr.calls, 2)
	require.Equal(t, "a1", tr.calls[0].AppointmentID)
	require.Equal(t, "a2", tr.calls[1].AppointmentID)
	require.Len(t, r.committed, 3)
	require.Equal(t, float64(1), testutil.ToFloat64(m.ConsumedEventsTotal.WithLabelValues(TopicDepositPaid, metrics.OutcomeDuplicate)))
}
