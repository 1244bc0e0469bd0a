package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rl1809/car-sharing/internal/core/domain"
	"github.com/rl1809/car-sharing/internal/core/fee"
	"github.com/rl1809/car-sharing/internal/port"
)

const (
	// SessionIDPlaceholder is substituted by the provider in callback URLs.
	SessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

	defaultLockTTL = 30 * time.Second
	insertAttempts = 3
)

const (
	msgAlreadyProcessed = "This payment has already been successfully processed."
	msgPaid             = "Your payment was processed successfully!"
	msgNotConfirmed     = "Payment is not confirmed yet. Status: "
	msgCancelled        = "Payment was cancelled. You can try to pay again from your profile. The session is available for 24 hours."
)

type PaymentService struct {
	repo     port.Repository
	provider port.PaymentProvider
	locker   port.Locker
	events   port.EventQueue
	log      *slog.Logger
	metrics  port.Metrics

	successURL string
	cancelURL  string
	lockTTL    time.Duration
}

type PaymentConfig struct {
	// BaseURL prefixes the provider callbacks, for example
	// https://rent.example.com/payments/success?session_id={CHECKOUT_SESSION_ID}.
	BaseURL string
	// LockTTL bounds how long one (rental, type) pair stays locked.
	LockTTL time.Duration
}

func NewPaymentService(repo port.Repository, provider port.PaymentProvider, locker port.Locker, events port.EventQueue, cfg PaymentConfig, opts ...Option) *PaymentService {
	o := newOptions(opts)
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	return &PaymentService{
		repo:       repo,
		provider:   provider,
		locker:     locker,
		events:     events,
		log:        o.log,
		metrics:    o.metrics,
		successURL: callbackURL(cfg.BaseURL, "/payments/success"),
		cancelURL:  callbackURL(cfg.BaseURL, "/payments/cancel"),
		lockTTL:    cfg.LockTTL,
	}
}

// The placeholder stays unescaped so the provider can substitute it.
func callbackURL(base, path string) string {
	return strings.TrimRight(base, "/") + path + "?session_id=" + SessionIDPlaceholder
}

func paymentLockKey(rentalID int64, t domain.PaymentType) string {
	return fmt.Sprintf("lock:payment:%d:%s", rentalID, t)
}

func productName(t domain.PaymentType, car *domain.Car) string {
	if t == domain.PaymentTypeFine {
		return "Fine for overdue rental of " + car.Brand + " " + car.Model
	}
	return "Rental of " + car.Brand + " " + car.Model
}

// CreateSession returns the checkout session for the rental and payment type,
// creating the payment and the provider session when none exists yet.
func (s *PaymentService) CreateSession(ctx context.Context, caller domain.Caller, rentalID int64, t domain.PaymentType) (*domain.PaymentSession, error) {
	if !t.Valid() {
		var v domain.ValidationError
		v.Add("type", "must be PAYMENT or FINE")
		return nil, v.Err()
	}

	release, err := s.locker.Acquire(ctx, paymentLockKey(rentalID, t), s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("lock payment for rental %d/%s: %w", rentalID, t, err)
	}
	defer release()

	var (
		payment *domain.Payment
		product string
	)
	for attempt := 1; ; attempt++ {
		payment, product, err = s.findOrCreate(ctx, caller, rentalID, t)
		if errors.Is(err, port.ErrDuplicatePayment) && attempt < insertAttempts {
			s.log.Info("payment inserted concurrently, retrying lookup", "rental_id", rentalID, "type", t)
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	if payment.HasSession() {
		return &domain.PaymentSession{
			SessionID:  payment.SessionID,
			SessionURL: payment.SessionURL,
			Status:     string(payment.Status),
		}, nil
	}

	session, err := s.provider.CreateCheckoutSession(ctx, port.CheckoutRequest{
		Amount:      payment.AmountToPay,
		ProductName: product,
		SuccessURL:  s.successURL,
		CancelURL:   s.cancelURL,
	})
	if err != nil {
		s.log.Error("checkout session not created", "payment_id", payment.ID, "err", err)
		if errors.Is(err, domain.ErrPaymentProviderUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("create checkout session for payment %d: %w: %w", payment.ID, domain.ErrPaymentProviderUnavailable, err)
	}

	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		return tx.SetPaymentSession(ctx, payment.ID, session.ID, session.URL)
	})
	if err != nil {
		return nil, fmt.Errorf("store session of payment %d: %w", payment.ID, err)
	}

	s.metrics.PaymentSessionCreated()
	s.log.Info("checkout session created", "payment_id", payment.ID, "rental_id", rentalID, "type", t, "amount", payment.AmountToPay.String())

	return &domain.PaymentSession{
		SessionID:  session.ID,
		SessionURL: session.URL,
		Status:     string(domain.PaymentStatusPending),
	}, nil
}

// findOrCreate returns the existing payment for (rental, type) or persists a
// new PENDING one. A returned payment without a session still needs one.
func (s *PaymentService) findOrCreate(ctx context.Context, caller domain.Caller, rentalID int64, t domain.PaymentType) (*domain.Payment, string, error) {
	var (
		payment *domain.Payment
		product string
	)
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		existing, err := tx.FindPaymentForUpdate(ctx, rentalID, t)
		if err != nil {
			return fmt.Errorf("find payment: %w", err)
		}

		rental, err := tx.GetRental(ctx, rentalID)
		if err != nil {
			return fmt.Errorf("get rental %d: %w", rentalID, err)
		}
		if rental == nil {
			return fmt.Errorf("rental %d: %w", rentalID, domain.ErrNotFound)
		}
		if !caller.IsManager() && !caller.Owns(rental.UserID) {
			return fmt.Errorf("rental %d: %w", rentalID, domain.ErrForbidden)
		}

		car, err := tx.GetCar(ctx, rental.CarID)
		if err != nil {
			return fmt.Errorf("get car %d: %w", rental.CarID, err)
		}
		if car == nil {
			return fmt.Errorf("car %d: %w", rental.CarID, domain.ErrNotFound)
		}
		product = productName(t, car)

		if existing != nil {
			if existing.Status == domain.PaymentStatusPaid {
				return fmt.Errorf("%s for rental %d: %w", t, rentalID, domain.ErrAlreadyPaid)
			}
			payment = existing
			return nil
		}

		amount, err := fee.Amount(t, *car, *rental)
		if err != nil {
			return err
		}
		if t == domain.PaymentTypeFine && amount.IsZero() {
			return fmt.Errorf("rental %d returned on time: %w", rentalID, domain.ErrNoFineRequired)
		}

		p := &domain.Payment{
			RentalID:    rentalID,
			Type:        t,
			Status:      domain.PaymentStatusPending,
			AmountToPay: amount,
		}
		if err := tx.InsertPayment(ctx, p); err != nil {
			return err
		}
		payment = p
		return nil
	})
	return payment, product, err
}

// ConfirmSuccess reconciles the payment behind sessionID with the provider.
// Confirming an already paid session again reports success without changes.
func (s *PaymentService) ConfirmSuccess(ctx context.Context, sessionID string) (*domain.PaymentStatusResult, error) {
	payment, err := s.repo.GetPaymentBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get payment by session: %w", err)
	}
	if payment == nil {
		return nil, fmt.Errorf("payment for session %s: %w", sessionID, domain.ErrNotFound)
	}

	paid, status, err := s.provider.SessionPaid(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentProviderUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("retrieve session %s: %w: %w", sessionID, domain.ErrPaymentProviderUnavailable, err)
	}
	if !paid {
		return &domain.PaymentStatusResult{Status: domain.SessionStatusPending, Message: msgNotConfirmed + status}, nil
	}

	var transitioned bool
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		p, err := tx.GetPaymentBySessionForUpdate(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("lock payment: %w", err)
		}
		if p == nil {
			return fmt.Errorf("payment for session %s: %w", sessionID, domain.ErrNotFound)
		}
		if p.Status == domain.PaymentStatusPaid {
			return nil
		}
		transitioned, err = tx.MarkPaymentPaid(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("mark payment %d paid: %w", p.ID, err)
		}
		if transitioned {
			p.Status = domain.PaymentStatusPaid
			payment = p
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !transitioned {
		return &domain.PaymentStatusResult{Status: domain.SessionStatusSuccess, Message: msgAlreadyProcessed}, nil
	}

	s.metrics.PaymentConfirmed()
	s.log.Info("payment confirmed", "payment_id", payment.ID, "rental_id", payment.RentalID, "type", payment.Type)
	s.events.Enqueue(domain.Event{
		Type:      domain.EventPaymentConfirmed,
		RentalID:  payment.RentalID,
		PaymentID: payment.ID,
		Message:   paymentConfirmedMessage(*payment),
	})
	return &domain.PaymentStatusResult{Status: domain.SessionStatusSuccess, Message: msgPaid}, nil
}

// ConfirmCancel only reports the cancellation. The payment stays PENDING and
// CreateSession hands out the same session again.
func (s *PaymentService) ConfirmCancel(_ context.Context, sessionID string) *domain.PaymentStatusResult {
	s.log.Info("checkout cancelled", "session_id", sessionID)
	return &domain.PaymentStatusResult{Status: domain.SessionStatusCancelled, Message: msgCancelled}
}

func (s *PaymentService) ListMine(ctx context.Context, caller domain.Caller, page domain.Page) ([]domain.Payment, error) {
	return s.repo.ListPayments(ctx, domain.PaymentFilter{UserID: &caller.UserID, Page: page})
}

// ListAll is reserved to managers. A userID narrows the result to one renter.
func (s *PaymentService) ListAll(ctx context.Context, caller domain.Caller, userID *int64, page domain.Page) ([]domain.Payment, error) {
	if !caller.IsManager() {
		return nil, fmt.Errorf("list payments: %w", domain.ErrForbidden)
	}
	if userID != nil {
		u, err := s.repo.GetUser(ctx, *userID)
		if err != nil {
			return nil, fmt.Errorf("get user %d: %w", *userID, err)
		}
		if u == nil {
			return nil, fmt.Errorf("user %d: %w", *userID, domain.ErrNotFound)
		}
	}
	return s.repo.ListPayments(ctx, domain.PaymentFilter{UserID: userID, Page: page})
}
