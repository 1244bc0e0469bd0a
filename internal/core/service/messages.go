package service

import (
	"fmt"
	"strings"

	"github.com/rl1809/car-sharing/internal/core/domain"
)

const dateLayout = "2006-01-02"

func clientName(u *domain.User, userID int64) string {
	if u == nil {
		return fmt.Sprintf("user #%d", userID)
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func carName(c *domain.Car, carID int64) string {
	if c == nil {
		return fmt.Sprintf("car #%d", carID)
	}
	return c.Brand + " " + c.Model
}

func newRentalMessage(r domain.Rental, c *domain.Car, u *domain.User) string {
	return fmt.Sprintf("**New Rental!**\nRental ID: %d\nClient: %s\nCar: %s\nReturn date: %s",
		r.ID, clientName(u, r.UserID), carName(c, r.CarID), r.ReturnDate.Format(dateLayout))
}

func returnedRentalMessage(r domain.Rental, c *domain.Car, u *domain.User) string {
	return fmt.Sprintf("**Car Returned**\nRental ID: %d\nClient: %s\nCar: %s\nExpected: %s\nReturned: %s",
		r.ID, clientName(u, r.UserID), carName(c, r.CarID),
		r.ReturnDate.Format(dateLayout), r.ActualReturnDate.Format(dateLayout))
}

func paymentConfirmedMessage(p domain.Payment) string {
	return fmt.Sprintf("**Payment Confirmed**\nPayment ID: %d\nRental ID: %d\nType: %s\nAmount: %s",
		p.ID, p.RentalID, p.Type, p.AmountToPay.StringFixed(2))
}

const noOverdueMessage = "No overdue rentals for today!"

func overdueMessage(lines []overdueLine) string {
	if len(lines) == 0 {
		return noOverdueMessage
	}
	var b strings.Builder
	b.WriteString("**OVERDUE RENTALS ALERT!**")
	for _, l := range lines {
		fmt.Fprintf(&b, "\n\n  - Rental ID: %d\n    Client: %s (ID: %d)\n    Car: %s (ID: %d)\n    Return date was: %s",
			l.rental.ID, clientName(l.user, l.rental.UserID), l.rental.UserID,
			carName(l.car, l.rental.CarID), l.rental.CarID, l.rental.ReturnDate.Format(dateLayout))
	}
	return b.String()
}

type overdueLine struct {
	rental domain.Rental
	car    *domain.Car
	user   *domain.User
}
