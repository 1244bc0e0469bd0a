package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/car-sharing/internal/core/domain"
)

func TestOverdueSweep(t *testing.T) {
	f := newFixture(t)
	car := f.addCar(t, 3, "50")
	ctx := context.Background()

	late := f.addRental(t, domain.Rental{CarID: car.ID, UserID: customer.UserID, RentalDate: day(-6), ReturnDate: day(-2)})
	f.addRental(t, domain.Rental{CarID: car.ID, UserID: customer.UserID, RentalDate: day(-3), ReturnDate: day(0)})
	f.addRental(t, domain.Rental{
		CarID: car.ID, UserID: stranger.UserID,
		RentalDate: day(-9), ReturnDate: day(-4), ActualReturnDate: datePtr(day(-1)),
	})

	sweep := NewOverdueSweep(f.store, f.queue, WithLogger(quietLogger()))

	rentals, err := sweep.Overdue(ctx, today)
	require.NoError(t, err)
	require.Len(t, rentals, 1)
	assert.Equal(t, late.ID, rentals[0].ID)

	report, err := sweep.Run(ctx, today)
	require.NoError(t, err)
	want := "**OVERDUE RENTALS ALERT!**\n\n" +
		"  - Rental ID: 1\n" +
		"    Client: Jane Doe (ID: 1)\n" +
		"    Car: Toyota Corolla (ID: 1)\n" +
		"    Return date was: 2025-03-08"
	assert.Equal(t, want, report.Message)

	events := f.queue.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventOverdueReport, events[0].Type)
	assert.Equal(t, want, events[0].Message)
}

func TestOverdueSweep_NothingOverdue(t *testing.T) {
	f := newFixture(t)
	car := f.addCar(t, 1, "50")
	f.addRental(t, domain.Rental{CarID: car.ID, UserID: customer.UserID, RentalDate: day(-1), ReturnDate: day(0)})

	report, err := NewOverdueSweep(f.store, f.queue, WithLogger(quietLogger())).Report(context.Background(), today)
	require.NoError(t, err)
	assert.Empty(t, report.Rentals)
	assert.Equal(t, "No overdue rentals for today!", report.Message)
}
