package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/car-sharing/internal/adapter/storage"
	"github.com/rl1809/car-sharing/internal/core/domain"
	"github.com/rl1809/car-sharing/internal/port"
)

var today = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func day(offset int) time.Time {
	return domain.Date(today).AddDate(0, 0, offset)
}

var (
	customer = domain.Caller{UserID: 1, Roles: []domain.Role{domain.RoleCustomer}}
	stranger = domain.Caller{UserID: 2, Roles: []domain.Role{domain.RoleCustomer}}
	manager  = domain.Caller{UserID: 9, Roles: []domain.Role{domain.RoleManager}}
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions(m port.Metrics) []Option {
	return []Option{
		WithClock(func() time.Time { return today }),
		WithLogger(quietLogger()),
		WithMetrics(m),
	}
}

// Mock EventQueue
type recordingQueue struct {
	mu     sync.Mutex
	events []domain.Event
}

func (q *recordingQueue) Enqueue(e domain.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, e)
}

func (q *recordingQueue) Events() []domain.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.Event(nil), q.events...)
}

// Mock Metrics
type countingMetrics struct {
	opened, returned, rejected, sessions, confirmed atomic.Int32
	sent, failed, dropped                           atomic.Int32
}

func (m *countingMetrics) RentalOpened()          { m.opened.Add(1) }
func (m *countingMetrics) RentalReturned()        { m.returned.Add(1) }
func (m *countingMetrics) ReservationRejected()   { m.rejected.Add(1) }
func (m *countingMetrics) PaymentSessionCreated() { m.sessions.Add(1) }
func (m *countingMetrics) PaymentConfirmed()      { m.confirmed.Add(1) }
func (m *countingMetrics) NotificationSent()      { m.sent.Add(1) }
func (m *countingMetrics) NotificationFailed()    { m.failed.Add(1) }
func (m *countingMetrics) NotificationDropped()   { m.dropped.Add(1) }

var errProviderDown = errors.New("provider down")

// Mock PaymentProvider
type mockProvider struct {
	mu       sync.Mutex
	created  atomic.Int32
	failNext int
	failPaid int
	paid     map[string]bool
	requests []port.CheckoutRequest
}

func newMockProvider() *mockProvider {
	return &mockProvider{paid: make(map[string]bool)}
}

func (p *mockProvider) CreateCheckoutSession(_ context.Context, req port.CheckoutRequest) (*port.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failNext > 0 {
		p.failNext--
		return nil, errProviderDown
	}
	n := p.created.Add(1)
	p.requests = append(p.requests, req)
	id := fmt.Sprintf("cs_test_%d", n)
	return &port.CheckoutSession{ID: id, URL: "https://checkout.example.com/" + id}, nil
}

func (p *mockProvider) SessionPaid(_ context.Context, sessionID string) (bool, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failPaid > 0 {
		p.failPaid--
		return false, "", errProviderDown
	}
	if p.paid[sessionID] {
		return true, "paid", nil
	}
	return false, "unpaid", nil
}

func (p *mockProvider) markPaid(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paid[sessionID] = true
}

// duplicateTx reports the first n payment inserts as lost to a concurrent writer.
type duplicateTx struct {
	port.Tx
	repo *duplicateRepo
}

func (t duplicateTx) InsertPayment(ctx context.Context, p *domain.Payment) error {
	if t.repo.remaining.Add(-1) >= 0 {
		t.repo.rejected.Add(1)
		return port.ErrDuplicatePayment
	}
	return t.Tx.InsertPayment(ctx, p)
}

type duplicateRepo struct {
	*storage.MemoryAdapter
	remaining atomic.Int32
	rejected  atomic.Int32
}

func (r *duplicateRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	return r.MemoryAdapter.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		return fn(ctx, duplicateTx{Tx: tx, repo: r})
	})
}

type fixture struct {
	store    *storage.MemoryAdapter
	queue    *recordingQueue
	metrics  *countingMetrics
	provider *mockProvider
	rentals  *RentalService
	payments *PaymentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:    storage.NewMemoryAdapter(),
		queue:    &recordingQueue{},
		metrics:  &countingMetrics{},
		provider: newMockProvider(),
	}
	f.store.AddUser(domain.User{ID: customer.UserID, Email: "jane@example.com", FirstName: "Jane", LastName: "Doe"})
	f.store.AddUser(domain.User{ID: stranger.UserID, Email: "bob@example.com", FirstName: "Bob", LastName: "Roe"})

	opts := testOptions(f.metrics)
	f.rentals = NewRentalService(f.store, NewInventoryLedger(), f.queue, opts...)
	f.payments = NewPaymentService(f.store, f.provider, storage.NewMemoryLocker(), f.queue,
		PaymentConfig{BaseURL: "https://rent.example.com/"}, opts...)
	return f
}

func (f *fixture) addCar(t *testing.T, inventory int, fee string) domain.Car {
	t.Helper()
	car := domain.Car{
		Brand:     "Toyota",
		Model:     "Corolla",
		Type:      domain.CarTypeSedan,
		Inventory: inventory,
		DailyFee:  decimal.RequireFromString(fee),
	}
	require.NoError(t, f.store.CreateCar(context.Background(), &car))
	return car
}

// addRental stores a rental directly, bypassing inventory.
func (f *fixture) addRental(t *testing.T, r domain.Rental) domain.Rental {
	t.Helper()
	err := f.store.WithinTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		return tx.InsertRental(ctx, &r)
	})
	require.NoError(t, err)
	return r
}

func (f *fixture) inventory(t *testing.T, carID int64) int {
	t.Helper()
	car, err := f.store.GetCar(context.Background(), carID)
	require.NoError(t, err)
	require.NotNil(t, car)
	return car.Inventory
}

func datePtr(t time.Time) *time.Time { return &t }
