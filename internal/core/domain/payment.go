package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentType string

const (
	PaymentTypePayment PaymentType = "PAYMENT"
	PaymentTypeFine    PaymentType = "FINE"
)

func (t PaymentType) Valid() bool {
	return t == PaymentTypePayment || t == PaymentTypeFine
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

type Payment struct {
	ID          int64           `db:"id" json:"id"`
	RentalID    int64           `db:"rental_id" json:"rental_id"`
	Type        PaymentType     `db:"type" json:"type"`
	Status      PaymentStatus   `db:"status" json:"status"`
	AmountToPay decimal.Decimal `db:"amount_to_pay" json:"amount_to_pay"`
	SessionID   string          `db:"session_id" json:"session_id,omitempty"`
	SessionURL  string          `db:"session_url" json:"session_url,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"-"`
	UpdatedAt   time.Time       `db:"updated_at" json:"-"`
}

// HasSession reports whether a provider checkout session was attached.
func (p Payment) HasSession() bool { return p.SessionID != "" }

// Statuses reported to callers of the reconciliation operations. Cancelled is
// never stored.
const (
	SessionStatusSuccess   = "SUCCESS"
	SessionStatusPending   = "PENDING"
	SessionStatusCancelled = "CANCELLED"
)

type PaymentSession struct {
	SessionID  string `json:"session_id"`
	SessionURL string `json:"session_url"`
	Status     string `json:"status"`
}

type PaymentStatusResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type PaymentFilter struct {
	UserID *int64
	Page   Page
}
