package service

import (
	"context"
	"fmt"

	"github.com/rl1809/car-sharing/internal/core/domain"
	"github.com/rl1809/car-sharing/internal/port"
)

// InventoryLedger moves units of a car in and out of the available pool. Both
// operations run inside the caller's unit of work and hold the car row lock.
type InventoryLedger struct{}

func NewInventoryLedger() *InventoryLedger {
	return &InventoryLedger{}
}

func (l *InventoryLedger) Reserve(ctx context.Context, tx port.Tx, carID int64) (*domain.Car, error) {
	car, err := tx.GetCarForUpdate(ctx, carID)
	if err != nil {
		return nil, fmt.Errorf("lock car %d: %w", carID, err)
	}
	if car == nil {
		return nil, fmt.Errorf("car %d: %w", carID, domain.ErrNotFound)
	}
	if car.Inventory <= 0 {
		return nil, fmt.Errorf("car %d: %w", carID, domain.ErrNoAvailableUnits)
	}

	ok, err := tx.AdjustInventory(ctx, carID, -1)
	if err != nil {
		return nil, fmt.Errorf("decrement inventory of car %d: %w", carID, err)
	}
	if !ok {
		return nil, fmt.Errorf("car %d: %w", carID, domain.ErrNoAvailableUnits)
	}

	car.Inventory--
	return car, nil
}

func (l *InventoryLedger) Release(ctx context.Context, tx port.Tx, carID int64) error {
	car, err := tx.GetCarForUpdate(ctx, carID)
	if err != nil {
		return fmt.Errorf("lock car %d: %w", carID, err)
	}
	if car == nil {
		return fmt.Errorf("car %d: %w", carID, domain.ErrNotFound)
	}

	if _, err := tx.AdjustInventory(ctx, carID, 1); err != nil {
		return fmt.Errorf("increment inventory of car %d: %w", carID, err)
	}
	return nil
}
