package service

import (
	"context"
	"fmt"

	"github.com/rl1809/car-sharing/internal/core/domain"
	"github.com/rl1809/car-sharing/internal/port"
)

// CarService manages the catalogue. Writes are reserved to managers.
type CarService struct {
	repo port.Repository
}

func NewCarService(repo port.Repository) *CarService {
	return &CarService{repo: repo}
}

func (s *CarService) Create(ctx context.Context, caller domain.Caller, car domain.Car) (*domain.Car, error) {
	if !caller.IsManager() {
		return nil, fmt.Errorf("create car: %w", domain.ErrForbidden)
	}
	if err := domain.ValidateCar(car); err != nil {
		return nil, err
	}
	if err := s.repo.CreateCar(ctx, &car); err != nil {
		return nil, fmt.Errorf("create car: %w", err)
	}
	return &car, nil
}

func (s *CarService) Get(ctx context.Context, id int64) (*domain.Car, error) {
	car, err := s.repo.GetCar(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get car %d: %w", id, err)
	}
	if car == nil {
		return nil, fmt.Errorf("car %d: %w", id, domain.ErrNotFound)
	}
	return car, nil
}

func (s *CarService) List(ctx context.Context, page domain.Page) ([]domain.Car, error) {
	return s.repo.ListCars(ctx, page)
}

// Update replaces the car's attributes under the row lock used by reservations.
func (s *CarService) Update(ctx context.Context, caller domain.Caller, id int64, car domain.Car) (*domain.Car, error) {
	if !caller.IsManager() {
		return nil, fmt.Errorf("update car %d: %w", id, domain.ErrForbidden)
	}
	if err := domain.ValidateCar(car); err != nil {
		return nil, err
	}
	car.ID = id

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		current, err := tx.GetCarForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("lock car %d: %w", id, err)
		}
		if current == nil {
			return fmt.Errorf("car %d: %w", id, domain.ErrNotFound)
		}
		return tx.UpdateCar(ctx, car)
	})
	if err != nil {
		return nil, err
	}
	return &car, nil
}

func (s *CarService) Delete(ctx context.Context, caller domain.Caller, id int64) error {
	if !caller.IsManager() {
		return fmt.Errorf("delete car %d: %w", id, domain.ErrForbidden)
	}
	return s.repo.DeleteCar(ctx, id)
}
