package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rl1809/car-sharing/internal/core/domain"
	"github.com/rl1809/car-sharing/internal/port"
)

type OverdueReport struct {
	Date    time.Time
	Rentals []domain.Rental
	Message string
}

// OverdueSweep decides which rentals are overdue on a given day. Triggering
// it daily is left to an external scheduler.
type OverdueSweep struct {
	repo   port.Repository
	events port.EventQueue
	log    *slog.Logger
}

func NewOverdueSweep(repo port.Repository, events port.EventQueue, opts ...Option) *OverdueSweep {
	o := newOptions(opts)
	return &OverdueSweep{repo: repo, events: events, log: o.log}
}

// Overdue returns open rentals whose return date is before today.
func (s *OverdueSweep) Overdue(ctx context.Context, today time.Time) ([]domain.Rental, error) {
	rentals, err := s.repo.ListOverdueRentals(ctx, domain.Date(today))
	if err != nil {
		return nil, fmt.Errorf("list overdue rentals: %w", err)
	}
	out := rentals[:0]
	for _, r := range rentals {
		if r.Overdue(today) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *OverdueSweep) Report(ctx context.Context, today time.Time) (*OverdueReport, error) {
	rentals, err := s.Overdue(ctx, today)
	if err != nil {
		return nil, err
	}

	cars := make(map[int64]*domain.Car)
	users := make(map[int64]*domain.User)
	lines := make([]overdueLine, 0, len(rentals))
	for _, r := range rentals {
		if _, ok := cars[r.CarID]; !ok {
			c, err := s.repo.GetCar(ctx, r.CarID)
			if err != nil {
				return nil, fmt.Errorf("get car %d: %w", r.CarID, err)
			}
			cars[r.CarID] = c
		}
		if _, ok := users[r.UserID]; !ok {
			u, err := s.repo.GetUser(ctx, r.UserID)
			if err != nil {
				return nil, fmt.Errorf("get user %d: %w", r.UserID, err)
			}
			users[r.UserID] = u
		}
		lines = append(lines, overdueLine{rental: r, car: cars[r.CarID], user: users[r.UserID]})
	}

	return &OverdueReport{
		Date:    domain.Date(today),
		Rentals: rentals,
		Message: overdueMessage(lines),
	}, nil
}

// Run builds the report for today and hands it to the notification queue.
func (s *OverdueSweep) Run(ctx context.Context, today time.Time) (*OverdueReport, error) {
	report, err := s.Report(ctx, today)
	if err != nil {
		return nil, err
	}
	s.log.Info("overdue sweep finished", "date", report.Date.Format(dateLayout), "overdue", len(report.Rentals))
	s.events.Enqueue(domain.Event{Type: domain.EventOverdueReport, Message: report.Message})
	return report, nil
}
