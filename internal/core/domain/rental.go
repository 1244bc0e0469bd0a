package domain

import "time"

type Rental struct {
	ID               int64      `db:"id" json:"id"`
	CarID            int64      `db:"car_id" json:"car_id"`
	UserID           int64      `db:"user_id" json:"user_id"`
	RentalDate       time.Time  `db:"rental_date" json:"rental_date"`
	ReturnDate       time.Time  `db:"return_date" json:"return_date"`
	ActualReturnDate *time.Time `db:"actual_return_date" json:"actual_return_date,omitempty"`
}

// Active reports whether the car has not been returned yet.
func (r Rental) Active() bool { return r.ActualReturnDate == nil }

// Overdue reports whether an open rental passed its expected return date.
func (r Rental) Overdue(today time.Time) bool {
	return r.Active() && r.ReturnDate.Before(Date(today))
}

// RentalFilter selects rentals. A nil UserID matches every renter and a nil
// Active matches both open and closed rentals.
type RentalFilter struct {
	UserID *int64
	Active *bool
	Page   Page
}

// Date truncates t to its calendar day in UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole calendar days from a to b.
func DaysBetween(a, b time.Time) int64 {
	return int64(Date(b).Sub(Date(a)) / (24 * time.Hour))
}
