package port

import (
	"context"

	"github.com/shopspring/decimal"
)

type CheckoutRequest struct {
	Amount      decimal.Decimal
	ProductName string
	// SuccessURL and CancelURL carry the provider's session id placeholder.
	SuccessURL string
	CancelURL  string
}

type CheckoutSession struct {
	ID  string
	URL string
}

type PaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	// SessionPaid reports whether the provider considers the session paid, with its raw status.
	SessionPaid(ctx context.Context, sessionID string) (paid bool, status string, err error)
}
