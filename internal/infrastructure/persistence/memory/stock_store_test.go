package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/xiebiao/stockledger/internal/domain/stock"
	apperrors "github.com/xiebiao/stockledger/pkg/errors"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var now = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *StockStore, sku string, quantity, reserved int) {
	t.Helper()
	r, err := stock.NewStockRecord(stock.NewRecordParams{SKUCode: sku, Quantity: quantity, ReservedQuantity: reserved}, now)
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), r))
}

func TestStockStore_GuardedUpdates(t *testing.T) {
	ctx := context.Background()
	s := NewStockStore(fixedClock{now})
	seed(t, s, "SKU-001", 100, 0)

	rows, err := s.ReserveQuantity(ctx, "SKU-001", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = s.ReserveQuantity(ctx, "SKU-001", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows, "可用为0时守卫不成立")

	rows, _ = s.AdjustQuantity(ctx, "SKU-001", -1)
	assert.Equal(t, int64(0), rows, "不能调整到低于已预留数量")

	rows, _ = s.ReleaseQuantity(ctx, "SKU-001", 101)
	assert.Equal(t, int64(0), rows)

	rows, _ = s.ConsumeReserved(ctx, "SKU-001", 40)
	assert.Equal(t, int64(1), rows)

	r, err := s.FindBySKU(ctx, "SKU-001")
	require.NoError(t, err)
	assert.Equal(t, 60, r.Quantity)
	assert.Equal(t, 60, r.ReservedQuantity)
	assert.Equal(t, 0, r.AvailableQuantity)
	assert.Equal(t, int64(2), r.Version)
	assert.NoError(t, r.CheckInvariants())

	rows, err = s.AdjustQuantity(ctx, "UNKNOWN", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
}

func TestStockStore_FindReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewStockStore(nil)
	seed(t, s, "SKU-001", 10, 0)

	r, _ := s.FindBySKU(ctx, "SKU-001")
	r.Quantity = 999

	again, _ := s.FindBySKU(ctx, "SKU-001")
	assert.Equal(t, 10, again.Quantity)

	_, err := s.FindBySKU(ctx, "missing")
	assert.ErrorIs(t, err, stock.ErrStockNotFound)
}

func TestStockStore_CreateDuplicate(t *testing.T) {
	s := NewStockStore(nil)
	seed(t, s, "SKU-001", 10, 0)

	r, _ := stock.NewStockRecord(stock.NewRecordParams{SKUCode: "SKU-001"}, now)
	assert.ErrorIs(t, s.Create(context.Background(), r), stock.ErrStockAlreadyExists)
}

func TestStockStore_SaveVersionCheck(t *testing.T) {
	ctx := context.Background()
	s := NewStockStore(nil)
	seed(t, s, "SKU-001", 10, 0)

	r, _ := s.FindBySKUForUpdate(ctx, "SKU-001")

	// 其他写入抢先
	_, _ = s.ReserveQuantity(ctx, "SKU-001", 1)

	r.ApplyRestock(5, now, 0)
	err := s.Save(ctx, r)
	assert.ErrorIs(t, err, stock.ErrConcurrentModification)
	assert.True(t, apperrors.IsRetryable(err))

	r, _ = s.FindBySKUForUpdate(ctx, "SKU-001")
	r.ApplyRestock(5, now, 0)
	require.NoError(t, s.Save(ctx, r))
	assert.Equal(t, int64(2), r.Version)

	saved, _ := s.FindBySKU(ctx, "SKU-001")
	assert.Equal(t, 15, saved.Quantity)
	assert.Equal(t, 14, saved.AvailableQuantity)
	require.NotNil(t, saved.NextRestockDate)
}

func TestStockStore_ConcurrentReserveNeverOversells(t *testing.T) {
	ctx := context.Background()
	s := NewStockStore(nil)
	seed(t, s, "SKU-HOT", 50, 0)

	var succeeded atomic.Int64
	var g errgroup.Group
	for i := 0; i < 200; i++ {
		g.Go(func() error {
			rows, err := s.ReserveQuantity(ctx, "SKU-HOT", 1)
			if err != nil {
				return err
			}
			succeeded.Add(rows)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	r, _ := s.FindBySKU(ctx, "SKU-HOT")
	assert.Equal(t, int64(50), succeeded.Load())
	assert.Equal(t, 50, r.ReservedQuantity)
	assert.Equal(t, 0, r.AvailableQuantity)
	assert.Equal(t, int64(50), r.Version)
}

func TestStockStore_Lists(t *testing.T) {
	ctx := context.Background()
	s := NewStockStore(nil)
	seed(t, s, "SKU-B", 5, 0)
	seed(t, s, "SKU-A", 5, 0)
	seed(t, s, "SKU-C", 15, 0)
	seed(t, s, "SKU-D", 100, 0)

	inactive, _ := stock.NewStockRecord(stock.NewRecordParams{SKUCode: "SKU-X", IsActive: new(bool)}, now)
	require.NoError(t, s.Create(ctx, inactive))

	low, err := s.ListLowStock(ctx)
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, "SKU-A", low[0].SKUCode)
	assert.Equal(t, "SKU-B", low[1].SKUCode)

	due, err := s.ListRestockDue(ctx)
	require.NoError(t, err)
	assert.Len(t, due, 3)
}

func TestStockStore_CancelledContext(t *testing.T) {
	s := NewStockStore(nil)
	seed(t, s, "SKU-001", 10, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ReserveQuantity(ctx, "SKU-001", 1)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestMovementStore_ListBySKU(t *testing.T) {
	ctx := context.Background()
	m := NewMovementStore()

	for i := 1; i <= 5; i++ {
		require.NoError(t, m.Create(ctx, &stock.Movement{SKUCode: "SKU-001", QuantityDelta: i}))
	}
	require.NoError(t, m.Create(ctx, &stock.Movement{SKUCode: "SKU-002"}))

	list, total, err := m.ListBySKU(ctx, "SKU-001", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, list, 2)
	assert.Equal(t, 5, list[0].QuantityDelta, "最新的在前")
	assert.Equal(t, 4, list[1].QuantityDelta)

	list, _, _ = m.ListBySKU(ctx, "SKU-001", 3, 2)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].QuantityDelta)
}

func TestTxManager_RunsHooksOnCommitOnly(t *testing.T) {
	tm := NewTxManager()
	ran := 0

	err := tm.Transaction(context.Background(), func(ctx context.Context) error {
		stock.AfterCommit(ctx, func() { ran++ })
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, ran)

	err = tm.Transaction(context.Background(), func(ctx context.Context) error {
		stock.AfterCommit(ctx, func() { ran++ })
		return stock.ErrInsufficientStock
	})
	assert.ErrorIs(t, err, stock.ErrInsufficientStock)
	assert.Equal(t, 1, ran)
}

func TestTxManager_RollbackDiscardsStagedWrites(t *testing.T) {
	s := NewStockStore(fixedClock{now})
	movements := NewMovementStore()
	seed(t, s, "SKU-001", 10, 0)
	tm := NewTxManager()

	err := tm.Transaction(context.Background(), func(ctx context.Context) error {
		rows, err := s.ReserveQuantity(ctx, "SKU-001", 4)
		require.NoError(t, err)
		require.Equal(t, int64(1), rows)

		inTx, _ := s.FindBySKU(ctx, "SKU-001")
		assert.Equal(t, 4, inTx.ReservedQuantity, "事务内可见")
		outside, _ := s.FindBySKU(context.Background(), "SKU-001")
		assert.Equal(t, 0, outside.ReservedQuantity, "提交前事务外不可见")

		require.NoError(t, movements.Create(ctx, &stock.Movement{SKUCode: "SKU-001"}))
		return stock.ErrInsufficientStock
	})
	assert.ErrorIs(t, err, stock.ErrInsufficientStock)

	r, _ := s.FindBySKU(context.Background(), "SKU-001")
	assert.Equal(t, 0, r.ReservedQuantity)
	assert.Equal(t, int64(0), r.Version)
	_, total, _ := movements.ListBySKU(context.Background(), "SKU-001", 1, 10)
	assert.Equal(t, int64(0), total)
}

func TestTxManager_CommitPublishesOnce(t *testing.T) {
	s := NewStockStore(fixedClock{now})
	movements := NewMovementStore()
	seed(t, s, "SKU-001", 10, 0)
	tm := NewTxManager()

	err := tm.Transaction(context.Background(), func(ctx context.Context) error {
		if _, err := s.ReserveQuantity(ctx, "SKU-001", 4); err != nil {
			return err
		}
		if _, err := s.ConsumeReserved(ctx, "SKU-001", 1); err != nil {
			return err
		}
		return movements.Create(ctx, &stock.Movement{SKUCode: "SKU-001"})
	})
	require.NoError(t, err)

	r, _ := s.FindBySKU(context.Background(), "SKU-001")
	assert.Equal(t, 9, r.Quantity)
	assert.Equal(t, 3, r.ReservedQuantity)
	assert.Equal(t, 6, r.AvailableQuantity)
	assert.Equal(t, int64(2), r.Version)
	_, total, _ := movements.ListBySKU(context.Background(), "SKU-001", 1, 10)
	assert.Equal(t, int64(1), total)
}

func TestTxManager_CreateInvisibleUntilCommit(t *testing.T) {
	s := NewStockStore(nil)
	tm := NewTxManager()
	r, _ := stock.NewStockRecord(stock.NewRecordParams{SKUCode: "SKU-NEW", Quantity: 3}, now)

	err := tm.Transaction(context.Background(), func(ctx context.Context) error {
		require.NoError(t, s.Create(ctx, r))

		exists, _ := s.ExistsBySKU(ctx, "SKU-NEW")
		assert.True(t, exists)
		exists, _ = s.ExistsBySKU(context.Background(), "SKU-NEW")
		assert.False(t, exists)

		low, _ := s.ListLowStock(context.Background())
		assert.Empty(t, low)
		return errors.New("boom")
	})
	require.Error(t, err)

	_, err = s.FindBySKU(context.Background(), "SKU-NEW")
	assert.ErrorIs(t, err, stock.ErrStockNotFound)
	require.NoError(t, s.Create(context.Background(), r), "回滚后SKU可以重新创建")
}

func TestTxManager_PanicRollsBack(t *testing.T) {
	s := NewStockStore(nil)
	seed(t, s, "SKU-001", 10, 0)
	tm := NewTxManager()

	assert.Panics(t, func() {
		_ = tm.Transaction(context.Background(), func(ctx context.Context) error {
			_, _ = s.AdjustQuantity(ctx, "SKU-001", 5)
			panic("boom")
		})
	})

	r, _ := s.FindBySKU(context.Background(), "SKU-001")
	assert.Equal(t, 10, r.Quantity)

	// 锁已释放
	rows, err := s.AdjustQuantity(context.Background(), "SKU-001", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	err = tm.Transaction(context.Background(), func(ctx context.Context) error {
		_, err := s.AdjustQuantity(ctx, "SKU-001", 1)
		return err
	})
	require.NoError(t, err)
}

func TestTxManager_ExpiredContextRollsBack(t *testing.T) {
	s := NewStockStore(nil)
	seed(t, s, "SKU-001", 10, 0)
	tm := NewTxManager()

	ctx, cancel := context.WithCancel(context.Background())
	err := tm.Transaction(ctx, func(txCtx context.Context) error {
		_, err := s.ReserveQuantity(txCtx, "SKU-001", 2)
		cancel()
		return err
	})
	assert.True(t, apperrors.IsRetryable(err))

	r, _ := s.FindBySKU(context.Background(), "SKU-001")
	assert.Equal(t, 0, r.ReservedQuantity)
}

func TestTxManager_LockWaitTimeout(t *testing.T) {
	s := NewStockStore(nil)
	seed(t, s, "SKU-001", 10, 0)
	tm := NewTxManager()

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- tm.Transaction(context.Background(), func(ctx context.Context) error {
			if _, err := s.FindBySKUForUpdate(ctx, "SKU-001"); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tm.Transaction(ctx, func(txCtx context.Context) error {
		_, err := s.ReserveQuantity(txCtx, "SKU-001", 1)
		return err
	})
	assert.True(t, apperrors.IsRetryable(err), "等锁超时为瞬时错误")

	close(release)
	require.NoError(t, <-done)

	r, _ := s.FindBySKU(context.Background(), "SKU-001")
	assert.Equal(t, 0, r.ReservedQuantity)
}

func TestTxManager_ConcurrentTransactionsNeverOversell(t *testing.T) {
	s := NewStockStore(nil)
	seed(t, s, "SKU-HOT", 20, 0)
	tm := NewTxManager()

	var succeeded atomic.Int64
	var g errgroup.Group
	for i := 0; i < 100; i++ {
		g.Go(func() error {
			return tm.Transaction(context.Background(), func(ctx context.Context) error {
				rows, err := s.ReserveQuantity(ctx, "SKU-HOT", 1)
				if err != nil {
					return err
				}
				if rows == 1 {
					r, err := s.FindBySKU(ctx, "SKU-HOT")
					if err != nil {
						return err
					}
					if err := r.CheckInvariants(); err != nil {
						return err
					}
					succeeded.Add(1)
				}
				return nil
			})
		})
	}
	require.NoError(t, g.Wait())

	r, _ := s.FindBySKU(context.Background(), "SKU-HOT")
	assert.Equal(t, int64(20), succeeded.Load())
	assert.Equal(t, 20, r.ReservedQuantity)
	assert.Equal(t, int64(20), r.Version)
}
