package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// Topic names. The Kafka topic equals EventType.
const (
	TopicBooked    = "booking.appointment.booked.v1"
	TopicConfirmed = "booking.appointment.confirmed.v1"
	TopicStarted   = "booking.appointment.started.v1"
	TopicCompleted = "booking.appointment.completed.v1"
	TopicCancelled = "booking.appointment.cancelled.v1"
	TopicNoShow    = "booking.appointment.no_show.v1"
)

// TopicForStatus maps the status an appointment moved into to its event topic.
func TopicForStatus(s model.Status) string {
	switch s {
	case model.StatusPending:
		return TopicBooked
	case model.StatusConfirmed:
		return TopicConfirmed
	case model.StatusInProgress:
		return TopicStarted
	case model.StatusCompleted:
		return TopicCompleted
	case model.StatusCancelled:
		return TopicCancelled
	case model.StatusNoShow:
		return TopicNoShow
	}
	return ""
}

// Event is the envelope written to the outbox in the same transaction as the state change.
type Event struct {
	ID            string
	BusinessID    string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}

// AppointmentPayload is the JSON body of every booking.appointment.* event.
type AppointmentPayload struct {
	AppointmentID string    `json:"appointment_id"`
	BusinessID    string    `json:"business_id"`
	StaffID       string    `json:"staff_id"`
	ServiceID     string    `json:"service_id,omitempty"`
	Status        string    `json:"status"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	WalkIn        bool      `json:"walk_in"`
	CustomerName  string    `json:"customer_name,omitempty"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	CustomerPhone string    `json:"customer_phone,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewAppointmentEvent builds the event for an appointment entering a new state.
// A booked walk-in is reported on the booked topic even though it starts in_progress.
func NewAppointmentEvent(ctx context.Context, eventType string, a model.Appointment, at time.Time) (Event, error) {
	body, err := json.Marshal(AppointmentPayload{
		AppointmentID: a.ID,
		BusinessID:    a.BusinessID,
		StaffID:       a.StaffID,
		ServiceID:     a.ServiceID,
		Status:        string(a.Status),
		StartTime:     a.StartTime.UTC(),
		EndTime:       a.EndTime.UTC(),
		WalkIn:        a.WalkIn,
		CustomerName:  a.CustomerName,
		CustomerEmail: a.CustomerEmail,
		CustomerPhone: a.CustomerPhone,
		Reason:        a.CancelReason,
		OccurredAt:    at.UTC(),
	})
	if err != nil {
		return Event{}, err
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	return Event{
		ID:            uuid.NewString(),
		BusinessID:    a.BusinessID,
		AggregateType: "appointment",
		AggregateID:   a.ID,
		EventType:     eventType,
		Payload:       body,
		Traceparent:   traceparent,
		Tracestate:    tracestate,
		CreatedAt:     at,
	}, nil
}
