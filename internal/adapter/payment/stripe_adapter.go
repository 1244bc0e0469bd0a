package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/rl1809/car-sharing/internal/core/domain"
	"github.com/rl1809/car-sharing/internal/core/fee"
	"github.com/rl1809/car-sharing/internal/port"
)

const (
	defaultTimeout  = 10 * time.Second
	retryDelay      = 200 * time.Millisecond
	providerRetries = 1
)

type StripeConfig struct {
	SecretKey string
	Currency  string
	Timeout   time.Duration
	// BackendURL overrides the Stripe API endpoint.
	BackendURL string
}

// StripeAdapter creates and inspects Stripe Checkout sessions.
type StripeAdapter struct {
	api      *client.API
	currency string
	timeout  time.Duration
	delay    time.Duration
}

func NewStripeAdapter(cfg StripeConfig) *StripeAdapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Currency == "" {
		cfg.Currency = string(stripe.CurrencyUSD)
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.BackendURL != "" {
		backendCfg.URL = stripe.String(cfg.BackendURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	return &StripeAdapter{
		api:      api,
		currency: cfg.Currency,
		timeout:  cfg.Timeout,
		delay:    retryDelay,
	}
}

func (s *StripeAdapter) CreateCheckoutSession(ctx context.Context, req port.CheckoutRequest) (*port.CheckoutSession, error) {
	var session *stripe.CheckoutSession
	err := s.do(ctx, func(ctx context.Context) error {
		params := &stripe.CheckoutSessionParams{
			Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
			SuccessURL: stripe.String(req.SuccessURL),
			CancelURL:  stripe.String(req.CancelURL),
			LineItems: []*stripe.CheckoutSessionLineItemParams{{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(s.currency),
					UnitAmount: stripe.Int64(fee.ToMinorUnits(req.Amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ProductName),
					},
				},
				Quantity: stripe.Int64(1),
			}},
		}
		params.Context = ctx

		var err error
		session, err = s.api.CheckoutSessions.New(params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &port.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

func (s *StripeAdapter) SessionPaid(ctx context.Context, sessionID string) (bool, string, error) {
	var session *stripe.CheckoutSession
	err := s.do(ctx, func(ctx context.Context) error {
		params := &stripe.CheckoutSessionParams{}
		params.Context = ctx

		var err error
		session, err = s.api.CheckoutSessions.Get(sessionID, params)
		return err
	})
	if err != nil {
		return false, "", fmt.Errorf("retrieve checkout session %s: %w", sessionID, err)
	}
	return session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid, string(session.PaymentStatus), nil
}

// do bounds each call by the timeout and retries once on transient failures.
// Whatever still fails is reported as the provider being unavailable.
func (s *StripeAdapter) do(ctx context.Context, call func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(providerRetries, retry.NewConstant(s.delay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		err := call(callCtx)
		if err == nil {
			return nil
		}
		if transient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPaymentProviderUnavailable, err)
	}
	return nil
}

// Client errors are not worth a retry; network errors and 5xx are.
func transient(err error) bool {
	var se *stripe.Error
	if errors.As(err, &se) {
		return se.HTTPStatusCode == 0 || se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= 500
	}
	return true
}
