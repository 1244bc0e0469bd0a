// Package fee computes rental charges and overdue fines.
package fee

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/car-sharing/internal/core/domain"
)

// FineMultiplier is applied to every overdue day.
var FineMultiplier = decimal.RequireFromString("1.5")

// RegularAmount bills every rented day, with a minimum of one day.
func RegularAmount(dailyFee decimal.Decimal, rentalDate, returnDate time.Time) decimal.Decimal {
	days := domain.DaysBetween(rentalDate, returnDate)
	if days < 1 {
		days = 1
	}
	return dailyFee.Mul(decimal.NewFromInt(days))
}

// FineAmount charges overdue days at the daily fee times FineMultiplier.
// On-time and early returns are not fined. An open rental has no fine yet.
func FineAmount(dailyFee decimal.Decimal, returnDate time.Time, actualReturnDate *time.Time) (decimal.Decimal, error) {
	if actualReturnDate == nil {
		return decimal.Zero, fmt.Errorf("fine for an active rental: car must be returned first: %w", domain.ErrInvalidState)
	}
	overdue := domain.DaysBetween(returnDate, *actualReturnDate)
	if overdue <= 0 {
		return decimal.Zero, nil
	}
	return dailyFee.Mul(decimal.NewFromInt(overdue)).Mul(FineMultiplier), nil
}

// Amount dispatches on the payment type.
func Amount(t domain.PaymentType, car domain.Car, rental domain.Rental) (decimal.Decimal, error) {
	switch t {
	case domain.PaymentTypePayment:
		return RegularAmount(car.DailyFee, rental.RentalDate, rental.ReturnDate), nil
	case domain.PaymentTypeFine:
		return FineAmount(car.DailyFee, rental.ReturnDate, rental.ActualReturnDate)
	}
	return decimal.Zero, fmt.Errorf("unsupported payment type %q: %w", t, domain.ErrInvalidInput)
}

// ToMinorUnits converts an amount to cents, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
