package port

import (
	"context"
	"errors"
	"time"

	"github.com/rl1809/car-sharing/internal/core/domain"
)

// ErrDuplicatePayment is returned by Tx.InsertPayment when a payment for the
// same rental and type already exists.
var ErrDuplicatePayment = errors.New("duplicate payment for rental and type")

type Repository interface {
	// WithinTx runs fn in one unit of work. Returning an error rolls back every write made through tx.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetCar(ctx context.Context, id int64) (*domain.Car, error)
	ListCars(ctx context.Context, page domain.Page) ([]domain.Car, error)
	CreateCar(ctx context.Context, car *domain.Car) error
	DeleteCar(ctx context.Context, id int64) error

	GetUser(ctx context.Context, id int64) (*domain.User, error)

	GetRental(ctx context.Context, id int64) (*domain.Rental, error)
	ListRentals(ctx context.Context, filter domain.RentalFilter) ([]domain.Rental, error)
	// ListOverdueRentals returns open rentals whose return date is before today.
	ListOverdueRentals(ctx context.Context, today time.Time) ([]domain.Rental, error)

	GetPaymentBySession(ctx context.Context, sessionID string) (*domain.Payment, error)
	ListPayments(ctx context.Context, filter domain.PaymentFilter) ([]domain.Payment, error)
}

// Tx exposes the locking reads and writes used inside a unit of work.
// Lookups return (nil, nil) when the row does not exist.
type Tx interface {
	// GetCarForUpdate locks the car row until the unit of work ends.
	GetCarForUpdate(ctx context.Context, id int64) (*domain.Car, error)
	// AdjustInventory adds delta to the car inventory unless the result would be
	// negative, reporting whether the row changed.
	AdjustInventory(ctx context.Context, carID int64, delta int) (bool, error)

	GetRentalForUpdate(ctx context.Context, id int64) (*domain.Rental, error)
	InsertRental(ctx context.Context, rental *domain.Rental) error
	// MarkRentalReturned sets the actual return date only on open rentals.
	MarkRentalReturned(ctx context.Context, id int64, date time.Time) (bool, error)

	GetCar(ctx context.Context, id int64) (*domain.Car, error)
	UpdateCar(ctx context.Context, car domain.Car) error
	GetRental(ctx context.Context, id int64) (*domain.Rental, error)

	FindPaymentForUpdate(ctx context.Context, rentalID int64, t domain.PaymentType) (*domain.Payment, error)
	GetPaymentBySessionForUpdate(ctx context.Context, sessionID string) (*domain.Payment, error)
	InsertPayment(ctx context.Context, payment *domain.Payment) error
	SetPaymentSession(ctx context.Context, id int64, sessionID, sessionURL string) error
	// MarkPaymentPaid moves a PENDING payment to PAID, reporting whether it did.
	MarkPaymentPaid(ctx context.Context, id int64) (bool, error)
}
