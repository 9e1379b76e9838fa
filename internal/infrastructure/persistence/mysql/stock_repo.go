package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xiebiao/stockledger/internal/domain/stock"
)

// stockRepository 库存仓储实现（GORM）
// 设计说明：
// 1. 实现domain/stock/repository.go定义的Store接口
// 2. 每个数量变更都是一条带守卫的UPDATE：
//
//	UPDATE stock_records
//	SET available_quantity = ..., reserved_quantity = reserved_quantity + ?, version = version + 1
//	WHERE sku_code = ? AND quantity - (reserved_quantity + ?) >= 0
//
// 3. 守卫写在WHERE中，数据库保证判断和修改是原子的，并发请求在行锁上排队
// 4. MySQL按从左到右的顺序求值SET，后面的赋值能看到前面的新值；
// SET子句显式排序，available_quantity在最前，所有表达式看到的都是旧值
type stockRepository struct {
	db    *gorm.DB
	clock stock.Clock
}

// NewStockRepository 创建库存仓储
func NewStockRepository(db *gorm.DB, clock stock.Clock) stock.Store {
	if clock == nil {
		clock = stock.SystemClock{}
	}
	return &stockRepository{db: db, clock: clock}
}

// FindBySKU 按SKU查询
func (r *stockRepository) FindBySKU(ctx context.Context, sku string) (*stock.StockRecord, error) {
	var model StockRecordModel
	err := getDB(ctx, r.db).Where("sku_code = ?", sku).First(&model).Error
	if err != nil {
		return nil, translateError(err, "查询库存记录失败")
	}
	return toStockEntity(&model), nil
}

// FindBySKUForUpdate 悲观锁查询（SELECT ... FOR UPDATE）
// 必须使用getDB(ctx)从context获取事务DB，否则锁在语句结束时就释放了
func (r *stockRepository) FindBySKUForUpdate(ctx context.Context, sku string) (*stock.StockRecord, error) {
	var model StockRecordModel
	err := getDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("sku_code = ?", sku).
		First(&model).Error
	if err != nil {
		return nil, translateError(err, "锁定库存记录失败")
	}
	return toStockEntity(&model), nil
}

// ExistsBySKU 判断SKU是否存在
func (r *stockRepository) ExistsBySKU(ctx context.Context, sku string) (bool, error) {
	var count int64
	err := getDB(ctx, r.db).Model(&StockRecordModel{}).Where("sku_code = ?", sku).Count(&count).Error
	if err != nil {
		return false, translateError(err, "查询库存记录失败")
	}
	return count > 0, nil
}

// AdjustQuantity 调整在库数量
// UPDATE ... SET available_quantity = quantity + ? - reserved_quantity, quantity = quantity + ?
// WHERE sku_code = ? AND quantity + ? >= 0 AND quantity + ? >= reserved_quantity AND quantity <= ?
func (r *stockRepository) AdjustQuantity(ctx context.Context, sku string, delta int) (int64, error) {
	// 超范围的变化量在SQL中会溢出（MySQL报1690，SQLite转成REAL），直接视为守卫不成立
	if !stock.QuantityInRange(delta) {
		return 0, nil
	}
	return r.guardedUpdate(ctx, sku,
		[]clause.Assignment{
			assign("available_quantity", "quantity + ? - reserved_quantity", delta),
			assign("quantity", "quantity + ?", delta),
		},
		clause.Expr{SQL: "quantity + ? >= 0", Vars: []interface{}{delta}},
		clause.Expr{SQL: "quantity + ? >= reserved_quantity", Vars: []interface{}{delta}},
		clause.Expr{SQL: "quantity <= ?", Vars: []interface{}{stock.MaxQuantity - delta}},
	)
}

// ReserveQuantity 预留
// 守卫：quantity - (reserved_quantity + ?) >= 0
func (r *stockRepository) ReserveQuantity(ctx context.Context, sku string, amount int) (int64, error) {
	if !stock.QuantityInRange(amount) {
		return 0, nil
	}
	return r.guardedUpdate(ctx, sku,
		[]clause.Assignment{
			assign("available_quantity", "quantity - reserved_quantity - ?", amount),
			assign("reserved_quantity", "reserved_quantity + ?", amount),
		},
		clause.Expr{SQL: "quantity - (reserved_quantity + ?) >= 0", Vars: []interface{}{amount}},
	)
}

// ReleaseQuantity 释放预留
// 守卫：reserved_quantity >= ?
func (r *stockRepository) ReleaseQuantity(ctx context.Context, sku string, amount int) (int64, error) {
	if !stock.QuantityInRange(amount) {
		return 0, nil
	}
	return r.guardedUpdate(ctx, sku,
		[]clause.Assignment{
			assign("available_quantity", "quantity - reserved_quantity + ?", amount),
			assign("reserved_quantity", "reserved_quantity - ?", amount),
		},
		clause.Expr{SQL: "reserved_quantity >= ?", Vars: []interface{}{amount}},
	)
}

// ConsumeReserved 消耗预留，在库和预留同时扣减（可用数量不变）
// 守卫：quantity >= ? AND reserved_quantity >= ?
func (r *stockRepository) ConsumeReserved(ctx context.Context, sku string, amount int) (int64, error) {
	if !stock.QuantityInRange(amount) {
		return 0, nil
	}
	return r.guardedUpdate(ctx, sku,
		[]clause.Assignment{
			assign("quantity", "quantity - ?", amount),
			assign("reserved_quantity", "reserved_quantity - ?", amount),
		},
		clause.Expr{SQL: "quantity >= ?", Vars: []interface{}{amount}},
		clause.Expr{SQL: "reserved_quantity >= ?", Vars: []interface{}{amount}},
	)
}

func assign(column, expr string, vars ...interface{}) clause.Assignment {
	return clause.Assignment{Column: clause.Column{Name: column}, Value: gorm.Expr(expr, vars...)}
}

// guardedUpdate 执行条件更新，返回受影响行数
// SET子句按set的顺序生成，不经过GORM的map排序
func (r *stockRepository) guardedUpdate(ctx context.Context, sku string, set []clause.Assignment, guards ...clause.Expr) (int64, error) {
	set = append(set,
		assign("version", "version + 1"),
		clause.Assignment{Column: clause.Column{Name: "updated_at"}, Value: r.clock.Now()},
	)

	query := getDB(ctx, r.db).Model(&StockRecordModel{}).Where("sku_code = ?", sku)
	for _, g := range guards {
		query = query.Where(g)
	}

	result := query.Clauses(clause.Set(set)).Updates(map[string]interface{}{})
	if result.Error != nil {
		return 0, translateError(result.Error, "更新库存失败")
	}
	return result.RowsAffected, nil
}

// Create 新建记录
// 唯一索引冲突 → ErrStockAlreadyExists
func (r *stockRepository) Create(ctx context.Context, record *stock.StockRecord) error {
	model := toStockModel(record)
	if err := getDB(ctx, r.db).Create(model).Error; err != nil {
		if isDuplicateError(err) {
			return stock.ErrStockAlreadyExists.WithErr(err)
		}
		return translateError(err, "创建库存记录失败")
	}
	return nil
}

// Save 整条保存（乐观锁）
// UPDATE ... SET ..., version = version + 1 WHERE id = ? AND version = ?
func (r *stockRepository) Save(ctx context.Context, record *stock.StockRecord) error {
	record.RecomputeAvailable()
	if err := record.CheckInvariants(); err != nil {
		return err
	}

	model := toStockModel(record)
	db := getDB(ctx, r.db)
	result := db.Model(&StockRecordModel{}).
		Where("id = ? AND version = ?", record.ID, record.Version).
		Updates(map[string]interface{}{
			"quantity":            model.Quantity,
			"reserved_quantity":   model.ReservedQuantity,
			"available_quantity":  model.AvailableQuantity,
			"low_stock_threshold": model.LowStockThreshold,
			"restock_threshold":   model.RestockThreshold,
			"unit_cost":           model.UnitCost,
			"location_code":       model.LocationCode,
			"bin_location":        model.BinLocation,
			"is_active":           model.IsActive,
			"last_restocked_date": model.LastRestockedDate,
			"next_restock_date":   model.NextRestockDate,
			"updated_at":          r.clock.Now(),
			"version":             gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return translateError(result.Error, "保存库存记录失败")
	}

	if result.RowsAffected == 0 {
		// 记录不存在，或者版本已变化
		var count int64
		if err := db.Model(&StockRecordModel{}).Where("id = ?", record.ID).Count(&count).Error; err != nil {
			return translateError(err, "查询库存记录失败")
		}
		if count == 0 {
			return stock.ErrStockNotFound
		}
		return stock.ErrConcurrentModification
	}

	record.Version++
	return nil
}

// ListLowStock 启用且 available_quantity <= low_stock_threshold
func (r *stockRepository) ListLowStock(ctx context.Context) ([]*stock.StockRecord, error) {
	return r.list(ctx, "available_quantity <= low_stock_threshold")
}

// ListRestockDue 启用且 available_quantity <= restock_threshold
func (r *stockRepository) ListRestockDue(ctx context.Context) ([]*stock.StockRecord, error) {
	return r.list(ctx, "available_quantity <= restock_threshold")
}

func (r *stockRepository) list(ctx context.Context, cond string) ([]*stock.StockRecord, error) {
	var models []StockRecordModel
	err := getDB(ctx, r.db).
		Where("is_active = ?", true).
		Where(cond).
		Order("available_quantity ASC").
		Order("sku_code ASC").
		Find(&models).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, translateError(err, "查询库存列表失败")
	}

	records := make([]*stock.StockRecord, len(models))
	for i := range models {
		records[i] = toStockEntity(&models[i])
	}
	return records, nil
}
