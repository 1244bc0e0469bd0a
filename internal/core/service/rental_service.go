package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rl1809/car-sharing/internal/core/domain"
	"github.com/rl1809/car-sharing/internal/port"
)

type CreateRentalInput struct {
	CarID      int64
	ReturnDate time.Time
}

func (in CreateRentalInput) validate(today time.Time) error {
	var v domain.ValidationError
	if in.CarID <= 0 {
		v.Add("car_id", "must be positive")
	}
	if err := domain.ValidateReturnDate(in.ReturnDate, today); err != nil {
		var fields *domain.ValidationError
		if errors.As(err, &fields) {
			v.Fields = append(v.Fields, fields.Fields...)
		}
	}
	return v.Err()
}

type RentalService struct {
	repo    port.Repository
	ledger  *InventoryLedger
	events  port.EventQueue
	log     *slog.Logger
	metrics port.Metrics
	now     func() time.Time
}

func NewRentalService(repo port.Repository, ledger *InventoryLedger, events port.EventQueue, opts ...Option) *RentalService {
	o := newOptions(opts)
	return &RentalService{
		repo:    repo,
		ledger:  ledger,
		events:  events,
		log:     o.log,
		metrics: o.metrics,
		now:     o.now,
	}
}

func (s *RentalService) today() time.Time { return domain.Date(s.now()) }

// Create reserves one unit of the car and opens a rental for the caller.
func (s *RentalService) Create(ctx context.Context, caller domain.Caller, in CreateRentalInput) (*domain.Rental, error) {
	today := s.today()
	if err := in.validate(today); err != nil {
		return nil, err
	}

	rental := &domain.Rental{
		CarID:      in.CarID,
		UserID:     caller.UserID,
		RentalDate: today,
		ReturnDate: domain.Date(in.ReturnDate),
	}

	var car *domain.Car
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		reserved, err := s.ledger.Reserve(ctx, tx, in.CarID)
		if err != nil {
			return err
		}
		car = reserved
		if err := tx.InsertRental(ctx, rental); err != nil {
			return fmt.Errorf("insert rental: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNoAvailableUnits) {
			s.metrics.ReservationRejected()
		}
		return nil, err
	}

	s.metrics.RentalOpened()
	s.log.Info("rental created", "rental_id", rental.ID, "car_id", rental.CarID, "user_id", rental.UserID)

	s.events.Enqueue(domain.Event{
		Type:     domain.EventRentalCreated,
		RentalID: rental.ID,
		Message:  newRentalMessage(*rental, car, s.lookupUser(ctx, rental.UserID)),
	})
	return rental, nil
}

// Return closes an open rental and puts its unit back into inventory.
func (s *RentalService) Return(ctx context.Context, caller domain.Caller, rentalID int64) (*domain.Rental, error) {
	today := s.today()

	var rental *domain.Rental
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		r, err := tx.GetRentalForUpdate(ctx, rentalID)
		if err != nil {
			return fmt.Errorf("lock rental %d: %w", rentalID, err)
		}
		if r == nil {
			return fmt.Errorf("rental %d: %w", rentalID, domain.ErrNotFound)
		}
		if !caller.IsManager() && !caller.Owns(r.UserID) {
			return fmt.Errorf("rental %d: %w", rentalID, domain.ErrForbidden)
		}
		if !r.Active() {
			return fmt.Errorf("rental %d: %w", rentalID, domain.ErrAlreadyReturned)
		}

		ok, err := tx.MarkRentalReturned(ctx, rentalID, today)
		if err != nil {
			return fmt.Errorf("mark rental %d returned: %w", rentalID, err)
		}
		if !ok {
			return fmt.Errorf("rental %d: %w", rentalID, domain.ErrAlreadyReturned)
		}
		r.ActualReturnDate = &today

		if err := s.ledger.Release(ctx, tx, r.CarID); err != nil {
			return err
		}
		rental = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RentalReturned()
	s.log.Info("rental returned", "rental_id", rental.ID, "car_id", rental.CarID)

	car, err := s.repo.GetCar(ctx, rental.CarID)
	if err != nil {
		s.log.Warn("car lookup for notification failed", "car_id", rental.CarID, "err", err)
	}
	s.events.Enqueue(domain.Event{
		Type:     domain.EventRentalReturned,
		RentalID: rental.ID,
		Message:  returnedRentalMessage(*rental, car, s.lookupUser(ctx, rental.UserID)),
	})
	return rental, nil
}

// Get returns a rental visible to the caller: managers see every rental,
// customers only their own.
func (s *RentalService) Get(ctx context.Context, caller domain.Caller, id int64) (*domain.Rental, error) {
	r, err := s.repo.GetRental(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get rental %d: %w", id, err)
	}
	if r == nil {
		return nil, fmt.Errorf("rental %d: %w", id, domain.ErrNotFound)
	}
	if !caller.IsManager() && !caller.Owns(r.UserID) {
		return nil, fmt.Errorf("rental %d: %w", id, domain.ErrForbidden)
	}
	return r, nil
}

func (s *RentalService) ListByOwner(ctx context.Context, userID int64, active bool, page domain.Page) ([]domain.Rental, error) {
	return s.repo.ListRentals(ctx, domain.RentalFilter{UserID: &userID, Active: &active, Page: page})
}

func (s *RentalService) ListAll(ctx context.Context, active bool, page domain.Page) ([]domain.Rental, error) {
	return s.repo.ListRentals(ctx, domain.RentalFilter{Active: &active, Page: page})
}

// List decides between ListByOwner and ListAll for the caller. Managers may
// list any renter or everyone; customers may list only themselves.
func (s *RentalService) List(ctx context.Context, caller domain.Caller, userID *int64, active bool, page domain.Page) ([]domain.Rental, error) {
	if caller.IsManager() {
		if userID == nil {
			return s.ListAll(ctx, active, page)
		}
		return s.ListByOwner(ctx, *userID, active, page)
	}
	if userID != nil && !caller.Owns(*userID) {
		return nil, fmt.Errorf("rentals of user %d: %w", *userID, domain.ErrForbidden)
	}
	return s.ListByOwner(ctx, caller.UserID, active, page)
}

func (s *RentalService) lookupUser(ctx context.Context, id int64) *domain.User {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		s.log.Warn("user lookup for notification failed", "user_id", id, "err", err)
		return nil
	}
	return u
}
