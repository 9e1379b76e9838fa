// Package memory 提供库存仓储的内存实现（本地开发、单元测试）
//
// 并发模型：
// 每个SKU一个atomic.Pointer指向不可变快照，事务外的变更走乐观CAS循环：
//
//	for {
//	    cur := slot.Load()
//	    if !guard(cur) { return 0 }     // 守卫不成立，不变更
//	    next := apply(clone(cur))
//	    if slot.CompareAndSwap(cur, next) { return 1 }
//	    // 被其他goroutine抢先，基于最新快照重试
//	}
//
// 守卫判断和写入针对同一个快照，CAS成功即保证守卫在写入时刻仍成立，
// 与数据库 "UPDATE ... WHERE 守卫" 的语义一致。map本身只在新建SKU时加写锁。
//
// 事务内的变更先对SKU加锁再暂存，提交时CAS发布，回滚时丢弃（见TxManager）。
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/xiebiao/stockledger/internal/domain/stock"
)

// slot 单个SKU的存储槽
// ptr为nil表示记录由未提交的事务新建；lock是事务使用的行锁
type slot struct {
	ptr  atomic.Pointer[stock.StockRecord]
	lock chan struct{}
}

func newSlot() *slot {
	return &slot{lock: make(chan struct{}, 1)}
}

// StockStore 内存库存仓储
type StockStore struct {
	mu      sync.RWMutex
	records map[string]*slot
	clock   stock.Clock
}

// NewStockStore 创建内存仓储
func NewStockStore(clock stock.Clock) *StockStore {
	if clock == nil {
		clock = stock.SystemClock{}
	}
	return &StockStore{
		records: make(map[string]*slot),
		clock:   clock,
	}
}

func (s *StockStore) slot(sku string) *slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[sku]
}

// read 当前可见的快照：事务内优先读暂存值，否则读已提交值
func (s *StockStore) read(ctx context.Context, sl *slot) *stock.StockRecord {
	if sl == nil {
		return nil
	}
	if t := txFrom(ctx); t != nil {
		if r, ok := t.pending(sl); ok {
			return r
		}
	}
	return sl.ptr.Load()
}

// FindBySKU 按SKU查询（返回副本）
func (s *StockStore) FindBySKU(ctx context.Context, sku string) (*stock.StockRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient(err)
	}
	r := s.read(ctx, s.slot(sku))
	if r == nil {
		return nil, stock.ErrStockNotFound
	}
	return r.Clone(), nil
}

// FindBySKUForUpdate 事务内先获取SKU锁再读取，语义同SELECT ... FOR UPDATE；
// 事务外等同FindBySKU，后续Save通过版本号检测并发修改
func (s *StockStore) FindBySKUForUpdate(ctx context.Context, sku string) (*stock.StockRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient(err)
	}
	sl := s.slot(sku)
	if t := txFrom(ctx); t != nil && sl != nil {
		if err := t.lock(ctx, sl); err != nil {
			return nil, err
		}
	}
	r := s.read(ctx, sl)
	if r == nil {
		return nil, stock.ErrStockNotFound
	}
	return r.Clone(), nil
}

// ExistsBySKU 判断SKU是否存在
func (s *StockStore) ExistsBySKU(ctx context.Context, sku string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, transient(err)
	}
	return s.read(ctx, s.slot(sku)) != nil, nil
}

// AdjustQuantity 守卫：quantity + delta >= 0 且 >= reserved
func (s *StockStore) AdjustQuantity(ctx context.Context, sku string, delta int) (int64, error) {
	return s.update(ctx, sku,
		func(r *stock.StockRecord) bool { return r.CanAdjust(delta) },
		func(r *stock.StockRecord) { r.ApplyAdjust(delta) },
	)
}

// ReserveQuantity 守卫：quantity - (reserved + amount) >= 0
func (s *StockStore) ReserveQuantity(ctx context.Context, sku string, amount int) (int64, error) {
	return s.update(ctx, sku,
		func(r *stock.StockRecord) bool { return r.CanReserve(amount) },
		func(r *stock.StockRecord) { r.ApplyReserve(amount) },
	)
}

// ReleaseQuantity 守卫：reserved >= amount
func (s *StockStore) ReleaseQuantity(ctx context.Context, sku string, amount int) (int64, error) {
	return s.update(ctx, sku,
		func(r *stock.StockRecord) bool { return r.CanRelease(amount) },
		func(r *stock.StockRecord) { r.ApplyRelease(amount) },
	)
}

// ConsumeReserved 守卫：quantity >= amount 且 reserved >= amount
func (s *StockStore) ConsumeReserved(ctx context.Context, sku string, amount int) (int64, error) {
	return s.update(ctx, sku,
		func(r *stock.StockRecord) bool { return r.CanConsume(amount) },
		func(r *stock.StockRecord) { r.ApplyConsume(amount) },
	)
}

// update 守卫不成立返回0，成功返回1
func (s *StockStore) update(ctx context.Context, sku string, guard func(*stock.StockRecord) bool, apply func(*stock.StockRecord)) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, transient(err)
	}
	sl := s.slot(sku)
	if sl == nil {
		return 0, nil
	}

	if t := txFrom(ctx); t != nil {
		if err := t.lock(ctx, sl); err != nil {
			return 0, err
		}
		cur := s.read(ctx, sl)
		if cur == nil || !guard(cur) {
			return 0, nil
		}
		t.stage(sl, s.advance(cur, apply))
		return 1, nil
	}

	for {
		cur := sl.ptr.Load()
		if cur == nil || !guard(cur) {
			return 0, nil
		}
		if sl.ptr.CompareAndSwap(cur, s.advance(cur, apply)) {
			return 1, nil
		}
		if err := ctx.Err(); err != nil {
			return 0, transient(err)
		}
	}
}

// advance 基于cur生成下一个版本的快照
func (s *StockStore) advance(cur *stock.StockRecord, apply func(*stock.StockRecord)) *stock.StockRecord {
	next := cur.Clone()
	apply(next)
	next.Version = cur.Version + 1
	next.UpdatedAt = s.clock.Now()
	return next
}

// Create 新建记录，SKU重复返回ErrStockAlreadyExists
// 事务内新建的记录在提交前对其他事务不可见，回滚时移除
func (s *StockStore) Create(ctx context.Context, record *stock.StockRecord) error {
	if err := ctx.Err(); err != nil {
		return transient(err)
	}

	s.mu.Lock()
	if _, ok := s.records[record.SKUCode]; ok {
		s.mu.Unlock()
		return stock.ErrStockAlreadyExists
	}
	sl := newSlot()
	s.records[record.SKUCode] = sl
	s.mu.Unlock()

	t := txFrom(ctx)
	if t == nil {
		sl.ptr.Store(record.Clone())
		return nil
	}

	sku := record.SKUCode
	t.afterRollback(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.records[sku] == sl && sl.ptr.Load() == nil {
			delete(s.records, sku)
		}
	})
	if err := t.lock(ctx, sl); err != nil {
		return err
	}
	t.stage(sl, record.Clone())
	return nil
}

// Save 按版本号整条保存
func (s *StockStore) Save(ctx context.Context, record *stock.StockRecord) error {
	if err := ctx.Err(); err != nil {
		return transient(err)
	}
	sl := s.slot(record.SKUCode)
	if sl == nil {
		return stock.ErrStockNotFound
	}

	t := txFrom(ctx)
	if t != nil {
		if err := t.lock(ctx, sl); err != nil {
			return err
		}
	}

	cur := s.read(ctx, sl)
	if cur == nil {
		return stock.ErrStockNotFound
	}
	if cur.Version != record.Version {
		return stock.ErrConcurrentModification
	}

	next := record.Clone()
	next.RecomputeAvailable()
	next.Version = cur.Version + 1
	if err := next.CheckInvariants(); err != nil {
		return err
	}

	if t != nil {
		t.stage(sl, next)
	} else if !sl.ptr.CompareAndSwap(cur, next) {
		return stock.ErrConcurrentModification
	}

	record.Version = next.Version
	record.AvailableQuantity = next.AvailableQuantity
	return nil
}

// ListLowStock 启用且 available <= low_stock_threshold
func (s *StockStore) ListLowStock(ctx context.Context) ([]*stock.StockRecord, error) {
	return s.list(ctx, func(r *stock.StockRecord) bool {
		return r.IsActive && r.AvailableQuantity <= r.LowStockThreshold
	})
}

// ListRestockDue 启用且 available <= restock_threshold
func (s *StockStore) ListRestockDue(ctx context.Context) ([]*stock.StockRecord, error) {
	return s.list(ctx, func(r *stock.StockRecord) bool {
		return r.IsActive && r.AvailableQuantity <= r.RestockThreshold
	})
}

func (s *StockStore) list(ctx context.Context, match func(*stock.StockRecord) bool) ([]*stock.StockRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, transient(err)
	}

	s.mu.RLock()
	result := make([]*stock.StockRecord, 0)
	for _, sl := range s.records {
		if r := sl.ptr.Load(); r != nil && match(r) {
			result = append(result, r.Clone())
		}
	}
	s.mu.RUnlock()

	// 与数据库实现保持一致：可用数量升序，SKU升序
	sort.Slice(result, func(i, j int) bool {
		if result[i].AvailableQuantity != result[j].AvailableQuantity {
			return result[i].AvailableQuantity < result[j].AvailableQuantity
		}
		return result[i].SKUCode < result[j].SKUCode
	})
	return result, nil
}
