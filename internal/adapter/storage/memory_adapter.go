package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/car-sharing/internal/core/domain"
	"github.com/rl1809/car-sharing/internal/port"
)

// MemoryAdapter keeps every entity in its own map keyed by id. Units of work
// are serialized by a single mutex and rolled back from a snapshot.
type MemoryAdapter struct {
	mu    sync.Mutex
	state memState
}

type memState struct {
	cars     map[int64]domain.Car
	users    map[int64]domain.User
	rentals  map[int64]domain.Rental
	payments map[int64]domain.Payment

	carSeq, rentalSeq, paymentSeq int64
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{state: memState{
		cars:     make(map[int64]domain.Car),
		users:    make(map[int64]domain.User),
		rentals:  make(map[int64]domain.Rental),
		payments: make(map[int64]domain.Payment),
	}}
}

func (s memState) clone() memState {
	c := s
	c.cars = make(map[int64]domain.Car, len(s.cars))
	for k, v := range s.cars {
		c.cars[k] = v
	}
	c.users = make(map[int64]domain.User, len(s.users))
	for k, v := range s.users {
		c.users[k] = v
	}
	c.rentals = make(map[int64]domain.Rental, len(s.rentals))
	for k, v := range s.rentals {
		c.rentals[k] = copyRental(v)
	}
	c.payments = make(map[int64]domain.Payment, len(s.payments))
	for k, v := range s.payments {
		c.payments[k] = v
	}
	return c
}

func copyRental(r domain.Rental) domain.Rental {
	if r.ActualReturnDate != nil {
		d := *r.ActualReturnDate
		r.ActualReturnDate = &d
	}
	return r
}

// AddUser registers a renter. Users are owned by the identity service; the
// store only needs them for lookups.
func (m *MemoryAdapter) AddUser(u domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.users[u.ID] = u
}

func (m *MemoryAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(ctx, &memoryTx{s: &m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *MemoryAdapter) GetCar(_ context.Context, id int64) (*domain.Car, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.car(id), nil
}

func (m *MemoryAdapter) ListCars(_ context.Context, page domain.Page) ([]domain.Car, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Car, 0, len(m.state.cars))
	for _, c := range m.state.cars {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return domain.Window(out, page), nil
}

func (m *MemoryAdapter) CreateCar(_ context.Context, car *domain.Car) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.carSeq++
	car.ID = m.state.carSeq
	now := time.Now().UTC()
	car.CreatedAt, car.UpdatedAt = now, now
	m.state.cars[car.ID] = *car
	return nil
}

func (m *MemoryAdapter) DeleteCar(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.cars[id]; !ok {
		return fmt.Errorf("car %d: %w", id, domain.ErrNotFound)
	}
	for _, r := range m.state.rentals {
		if r.CarID == id {
			return fmt.Errorf("car %d has rentals: %w", id, domain.ErrInvalidState)
		}
	}
	delete(m.state.cars, id)
	return nil
}

func (m *MemoryAdapter) GetUser(_ context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.state.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *MemoryAdapter) GetRental(_ context.Context, id int64) (*domain.Rental, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.rental(id), nil
}

func (m *MemoryAdapter) ListRentals(_ context.Context, f domain.RentalFilter) ([]domain.Rental, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rentals := m.state.filterRentals(func(r domain.Rental) bool {
		if f.UserID != nil && r.UserID != *f.UserID {
			return false
		}
		if f.Active != nil && r.Active() != *f.Active {
			return false
		}
		return true
	})
	return domain.Window(rentals, f.Page), nil
}

func (m *MemoryAdapter) ListOverdueRentals(_ context.Context, today time.Time) ([]domain.Rental, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.filterRentals(func(r domain.Rental) bool { return r.Overdue(today) }), nil
}

func (m *MemoryAdapter) GetPaymentBySession(_ context.Context, sessionID string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.paymentBySession(sessionID), nil
}

func (m *MemoryAdapter) ListPayments(_ context.Context, f domain.PaymentFilter) ([]domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Payment, 0)
	for _, p := range m.state.payments {
		if f.UserID != nil {
			r, ok := m.state.rentals[p.RentalID]
			if !ok || r.UserID != *f.UserID {
				continue
			}
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return domain.Window(out, f.Page), nil
}

func (s *memState) car(id int64) *domain.Car {
	c, ok := s.cars[id]
	if !ok {
		return nil
	}
	return &c
}

func (s *memState) rental(id int64) *domain.Rental {
	r, ok := s.rentals[id]
	if !ok {
		return nil
	}
	r = copyRental(r)
	return &r
}

func (s *memState) paymentBySession(sessionID string) *domain.Payment {
	if sessionID == "" {
		return nil
	}
	for _, p := range s.payments {
		if p.SessionID == sessionID {
			return &p
		}
	}
	return nil
}

func (s *memState) filterRentals(keep func(domain.Rental) bool) []domain.Rental {
	out := make([]domain.Rental, 0)
	for _, r := range s.rentals {
		if keep(r) {
			out = append(out, copyRental(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// memoryTx operates on the live state while the adapter mutex is held.
type memoryTx struct {
	s *memState
}

func (t *memoryTx) GetCarForUpdate(_ context.Context, id int64) (*domain.Car, error) {
	return t.s.car(id), nil
}

func (t *memoryTx) GetCar(_ context.Context, id int64) (*domain.Car, error) {
	return t.s.car(id), nil
}

func (t *memoryTx) AdjustInventory(_ context.Context, carID int64, delta int) (bool, error) {
	c, ok := t.s.cars[carID]
	if !ok || c.Inventory+delta < 0 {
		return false, nil
	}
	c.Inventory += delta
	c.UpdatedAt = time.Now().UTC()
	t.s.cars[carID] = c
	return true, nil
}

func (t *memoryTx) UpdateCar(_ context.Context, car domain.Car) error {
	current, ok := t.s.cars[car.ID]
	if !ok {
		return fmt.Errorf("car %d: %w", car.ID, domain.ErrNotFound)
	}
	car.CreatedAt = current.CreatedAt
	car.UpdatedAt = time.Now().UTC()
	t.s.cars[car.ID] = car
	return nil
}

func (t *memoryTx) GetRentalForUpdate(_ context.Context, id int64) (*domain.Rental, error) {
	return t.s.rental(id), nil
}

func (t *memoryTx) GetRental(_ context.Context, id int64) (*domain.Rental, error) {
	return t.s.rental(id), nil
}

func (t *memoryTx) InsertRental(_ context.Context, r *domain.Rental) error {
	t.s.rentalSeq++
	r.ID = t.s.rentalSeq
	t.s.rentals[r.ID] = copyRental(*r)
	return nil
}

func (t *memoryTx) MarkRentalReturned(_ context.Context, id int64, date time.Time) (bool, error) {
	r, ok := t.s.rentals[id]
	if !ok || !r.Active() {
		return false, nil
	}
	d := domain.Date(date)
	r.ActualReturnDate = &d
	t.s.rentals[id] = r
	return true, nil
}

func (t *memoryTx) FindPaymentForUpdate(_ context.Context, rentalID int64, pt domain.PaymentType) (*domain.Payment, error) {
	for _, p := range t.s.payments {
		if p.RentalID == rentalID && p.Type == pt {
			return &p, nil
		}
	}
	return nil, nil
}

func (t *memoryTx) GetPaymentBySessionForUpdate(_ context.Context, sessionID string) (*domain.Payment, error) {
	return t.s.paymentBySession(sessionID), nil
}

func (t *memoryTx) InsertPayment(_ context.Context, p *domain.Payment) error {
	for _, existing := range t.s.payments {
		if existing.RentalID == p.RentalID && existing.Type == p.Type {
			return port.ErrDuplicatePayment
		}
	}
	t.s.paymentSeq++
	p.ID = t.s.paymentSeq
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	t.s.payments[p.ID] = *p
	return nil
}

func (t *memoryTx) SetPaymentSession(_ context.Context, id int64, sessionID, sessionURL string) error {
	p, ok := t.s.payments[id]
	if !ok {
		return fmt.Errorf("payment %d: %w", id, domain.ErrNotFound)
	}
	p.SessionID, p.SessionURL = sessionID, sessionURL
	p.UpdatedAt = time.Now().UTC()
	t.s.payments[id] = p
	return nil
}

func (t *memoryTx) MarkPaymentPaid(_ context.Context, id int64) (bool, error) {
	p, ok := t.s.payments[id]
	if !ok || p.Status != domain.PaymentStatusPending {
		return false, nil
	}
	p.Status = domain.PaymentStatusPaid
	p.UpdatedAt = time.Now().UTC()
	t.s.payments[id] = p
	return true, nil
}
