package domain

import "time"

type EventType string

const (
	EventRentalCreated    EventType = "rental_created"
	EventRentalReturned   EventType = "rental_returned"
	EventPaymentConfirmed EventType = "payment_confirmed"
	EventOverdueReport    EventType = "overdue_report"
)

// Event is a notification handed to the dispatcher after the triggering
// operation committed.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	RentalID   int64     `json:"rental_id,omitempty"`
	PaymentID  int64     `json:"payment_id,omitempty"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}
