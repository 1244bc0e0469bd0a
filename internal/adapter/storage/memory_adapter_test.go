package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/car-sharing/internal/core/domain"
	"github.com/rl1809/car-sharing/internal/port"
)

func seedCar(t *testing.T, m *MemoryAdapter, inventory int) domain.Car {
	t.Helper()
	car := domain.Car{Brand: "Audi", Model: "A4", Type: domain.CarTypeSedan, Inventory: inventory, DailyFee: decimal.NewFromInt(60)}
	require.NoError(t, m.CreateCar(context.Background(), &car))
	return car
}

func TestMemoryAdapter_RollbackOnError(t *testing.T) {
	m := NewMemoryAdapter()
	car := seedCar(t, m, 2)
	ctx := context.Background()

	boom := errors.New("boom")
	err := m.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		ok, err := tx.AdjustInventory(ctx, car.ID, -1)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, tx.InsertRental(ctx, &domain.Rental{CarID: car.ID, UserID: 1}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := m.GetCar(ctx, car.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Inventory)

	rentals, err := m.ListRentals(ctx, domain.RentalFilter{})
	require.NoError(t, err)
	assert.Empty(t, rentals)
}

func TestMemoryAdapter_AdjustInventoryGuard(t *testing.T) {
	m := NewMemoryAdapter()
	car := seedCar(t, m, 1)

	err := m.WithinTx(context.Background(), func(ctx context.Context, tx port.Tx) error {
		ok, err := tx.AdjustInventory(ctx, car.ID, -2)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = tx.AdjustInventory(ctx, 99, 1)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryAdapter_DuplicatePayment(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()

	err := m.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		p := domain.Payment{RentalID: 1, Type: domain.PaymentTypePayment, Status: domain.PaymentStatusPending}
		require.NoError(t, tx.InsertPayment(ctx, &p))
		dup := p
		return tx.InsertPayment(ctx, &dup)
	})
	assert.ErrorIs(t, err, port.ErrDuplicatePayment)
}

func TestMemoryAdapter_MarkOnce(t *testing.T) {
	m := NewMemoryAdapter()
	car := seedCar(t, m, 1)
	ctx := context.Background()

	r := domain.Rental{CarID: car.ID, UserID: 1, RentalDate: time.Now(), ReturnDate: time.Now()}
	p := domain.Payment{RentalID: 1, Type: domain.PaymentTypeFine, Status: domain.PaymentStatusPending}
	err := m.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		require.NoError(t, tx.InsertRental(ctx, &r))
		require.NoError(t, tx.InsertPayment(ctx, &p))

		first, err := tx.MarkRentalReturned(ctx, r.ID, time.Now())
		require.NoError(t, err)
		second, err := tx.MarkRentalReturned(ctx, r.ID, time.Now())
		require.NoError(t, err)
		assert.True(t, first)
		assert.False(t, second)

		first, err = tx.MarkPaymentPaid(ctx, p.ID)
		require.NoError(t, err)
		second, err = tx.MarkPaymentPaid(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, first)
		assert.False(t, second)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryLocker_Exclusive(t *testing.T) {
	locker := NewMemoryLocker()
	var inside, violations atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(context.Background(), "k", time.Second)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if inside.Add(1) > 1 {
				violations.Add(1)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), violations.Load())
}

func TestMemoryLocker_ContextCancelled(t *testing.T) {
	locker := NewMemoryLocker()
	release, err := locker.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "k", time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := locker.Acquire(context.Background(), "other", time.Second)
	require.NoError(t, err)
	other()
}
