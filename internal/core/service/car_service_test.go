package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/car-sharing/internal/adapter/storage"
	"github.com/rl1809/car-sharing/internal/core/domain"
)

func newCar() domain.Car {
	return domain.Car{
		Brand:     "Skoda",
		Model:     "Octavia",
		Type:      domain.CarTypeUniversal,
		Inventory: 2,
		DailyFee:  decimal.RequireFromString("35.50"),
	}
}

func TestCarService_ManagerLifecycle(t *testing.T) {
	svc := NewCarService(storage.NewMemoryAdapter())
	ctx := context.Background()

	created, err := svc.Create(ctx, manager, newCar())
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	update := newCar()
	update.Inventory = 5
	updated, err := svc.Update(ctx, manager, created.ID, update)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Inventory)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Inventory)
	assert.Equal(t, "Octavia", got.Model)

	cars, err := svc.List(ctx, domain.Page{})
	require.NoError(t, err)
	assert.Len(t, cars, 1)

	require.NoError(t, svc.Delete(ctx, manager, created.ID))
	_, err = svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCarService_Errors(t *testing.T) {
	svc := NewCarService(storage.NewMemoryAdapter())
	ctx := context.Background()

	_, err := svc.Create(ctx, customer, newCar())
	assert.ErrorIs(t, err, domain.ErrForbidden)

	bad := newCar()
	bad.Inventory = -1
	_, err = svc.Create(ctx, manager, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	created, err := svc.Create(ctx, manager, newCar())
	require.NoError(t, err)

	_, err = svc.Update(ctx, customer, created.ID, newCar())
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.Update(ctx, manager, created.ID+1, newCar())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, customer, created.ID), domain.ErrForbidden)
	assert.ErrorIs(t, svc.Delete(ctx, manager, created.ID+1), domain.ErrNotFound)
}

func TestCarService_DeleteRentedCar(t *testing.T) {
	f := newFixture(t)
	car := f.addCar(t, 1, "50")
	_, err := f.rentals.Create(context.Background(), customer, CreateRentalInput{CarID: car.ID, ReturnDate: day(1)})
	require.NoError(t, err)

	err = NewCarService(f.store).Delete(context.Background(), manager, car.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}
