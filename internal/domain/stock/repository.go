package stock

import (
	"context"
	"time"
)

// Store 库存记录仓储接口（依赖倒置原则）
// 设计说明：
// 1. 由domain层定义接口，infrastructure层实现（gorm/内存/Redis缓存装饰器）
// 2. 所有数量变更都是"一条带守卫的条件更新"，返回受影响行数：
//   - 1: 守卫成立，变更已生效（派生的可用数量同时更新，version+1）
//   - 0: SKU不存在或守卫不成立，没有任何变更（由调用方通过ExistsBySKU区分）
//
// 3. 在TxManager.Transaction的ctx中调用时，操作加入该事务
type Store interface {
	// FindBySKU 按SKU查询（普通读），不存在返回ErrStockNotFound
	FindBySKU(ctx context.Context, sku string) (*StockRecord, error)

	// FindBySKUForUpdate 悲观锁查询（SELECT ... FOR UPDATE），只在事务中有意义
	FindBySKUForUpdate(ctx context.Context, sku string) (*StockRecord, error)

	// ExistsBySKU 判断SKU是否存在
	ExistsBySKU(ctx context.Context, sku string) (bool, error)

	// AdjustQuantity quantity += delta
	// 守卫：quantity + delta >= 0 AND quantity + delta >= reserved_quantity
	AdjustQuantity(ctx context.Context, sku string, delta int) (int64, error)

	// ReserveQuantity reserved_quantity += amount
	// 守卫：quantity - (reserved_quantity + amount) >= 0
	ReserveQuantity(ctx context.Context, sku string, amount int) (int64, error)

	// ReleaseQuantity reserved_quantity -= amount
	// 守卫：reserved_quantity >= amount
	ReleaseQuantity(ctx context.Context, sku string, amount int) (int64, error)

	// ConsumeReserved quantity -= amount, reserved_quantity -= amount
	// 守卫：quantity >= amount AND reserved_quantity >= amount
	ConsumeReserved(ctx context.Context, sku string, amount int) (int64, error)

	// Create 新建记录，SKU重复返回ErrStockAlreadyExists
	Create(ctx context.Context, record *StockRecord) error

	// Save 整条记录保存（乐观锁：WHERE version = record.Version）
	// 版本不匹配返回ErrConcurrentModification；成功后record.Version+1
	Save(ctx context.Context, record *StockRecord) error

	// ListLowStock 启用状态且 available <= low_stock_threshold 的记录
	ListLowStock(ctx context.Context) ([]*StockRecord, error)

	// ListRestockDue 启用状态且 available <= restock_threshold 的记录
	ListRestockDue(ctx context.Context) ([]*StockRecord, error)
}

// MovementRepository 库存流水仓储（只追加）
type MovementRepository interface {
	// Create 追加一条流水（在库存变更的同一事务中调用）
	Create(ctx context.Context, movement *Movement) error

	// ListBySKU 分页查询某SKU的流水（按时间倒序）
	ListBySKU(ctx context.Context, sku string, page, pageSize int) ([]*Movement, int64, error)
}

// TxManager 事务管理器
// fn中的ctx携带事务，仓储通过该ctx加入同一事务
// fn返回nil则提交，返回错误或panic则回滚
type TxManager interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Clock 时间来源（测试中可替换）
type Clock interface {
	Now() time.Time
}

// SystemClock 系统时间
type SystemClock struct{}

// Now 当前时间（UTC）
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
