package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValidateReturnDate requires the expected return date to be strictly after today.
func ValidateReturnDate(returnDate, today time.Time) error {
	var v ValidationError
	if returnDate.IsZero() {
		v.Add("return_date", "must be set")
	} else if !Date(returnDate).After(Date(today)) {
		v.Add("return_date", "must be in the future")
	}
	return v.Err()
}

func ValidateCar(c Car) error {
	var v ValidationError
	if strings.TrimSpace(c.Brand) == "" {
		v.Add("brand", "must not be blank")
	}
	if strings.TrimSpace(c.Model) == "" {
		v.Add("model", "must not be blank")
	}
	if !c.Type.Valid() {
		v.Add("type", "must be one of SEDAN, SUV, HATCHBACK, UNIVERSAL")
	}
	if c.Inventory < 0 {
		v.Add("inventory", "must not be negative")
	}
	if !c.DailyFee.GreaterThan(decimal.Zero) {
		v.Add("daily_fee", "must be positive")
	}
	return v.Err()
}
