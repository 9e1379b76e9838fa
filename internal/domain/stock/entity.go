package stock

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// 默认值
const (
	DefaultLowStockThreshold = 10
	DefaultRestockThreshold  = 20
	DefaultRestockInterval   = 14 * 24 * time.Hour

	// MaxQuantity 单个SKU的数量上限（在库、预留、单次变更量）
	MaxQuantity = 1_000_000_000
)

// QuantityInRange |n| <= MaxQuantity
func QuantityInRange(n int) bool {
	return n >= -MaxQuantity && n <= MaxQuantity
}

// StockRecord 库存记录（聚合根，每个SKU一条）
// DDD设计说明：
// 1. SKUCode是业务唯一标识，ID（uuid）是技术主键
// 2. AvailableQuantity是派生值 = Quantity - ReservedQuantity，每次变更都重新计算
// 3. 数量变更只能通过仓储的原子守卫更新完成，实体方法只做校验和派生值计算
// 4. UnitCost使用decimal避免浮点误差
//
// 不变量（每次提交后成立）：
// - 0 <= Quantity <= MaxQuantity
// - ReservedQuantity >= 0
// - ReservedQuantity <= Quantity
// - AvailableQuantity == Quantity - ReservedQuantity
type StockRecord struct {
	ID                string
	ProductID         string
	SKUCode           string
	Quantity          int // 在库数量
	ReservedQuantity  int // 已预留数量
	AvailableQuantity int // 可用数量（派生）
	LowStockThreshold int
	RestockThreshold  int
	UnitCost          *decimal.Decimal // 可选
	LocationCode      string
	BinLocation       string
	IsActive          bool
	LastRestockedDate *time.Time
	NextRestockDate   *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Version           int64 // 乐观锁版本号，每次变更+1
}

// NewRecordParams 创建库存记录的参数
// 指针字段为nil时使用默认值
type NewRecordParams struct {
	ProductID         string
	SKUCode           string
	Quantity          int
	ReservedQuantity  int
	LowStockThreshold *int
	RestockThreshold  *int
	UnitCost          *decimal.Decimal
	LocationCode      string
	BinLocation       string
	IsActive          *bool
}

// NewStockRecord 创建库存记录（工厂方法）
// 业务规则：
// - SKU编码不能为空
// - 初始数量/预留数量不能为负，预留不能超过在库
// - 阈值不能为负
func NewStockRecord(p NewRecordParams, now time.Time) (*StockRecord, error) {
	sku := strings.TrimSpace(p.SKUCode)
	if sku == "" {
		return nil, ErrInvalidSKU
	}
	if p.UnitCost != nil && p.UnitCost.IsNegative() {
		return nil, ErrInvalidOperation.WithMessage("单位成本不能为负数")
	}

	r := &StockRecord{
		ID:                uuid.NewString(),
		ProductID:         p.ProductID,
		SKUCode:           sku,
		Quantity:          p.Quantity,
		ReservedQuantity:  p.ReservedQuantity,
		LowStockThreshold: DefaultLowStockThreshold,
		RestockThreshold:  DefaultRestockThreshold,
		UnitCost:          p.UnitCost,
		LocationCode:      p.LocationCode,
		BinLocation:       p.BinLocation,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if p.LowStockThreshold != nil {
		r.LowStockThreshold = *p.LowStockThreshold
	}
	if p.RestockThreshold != nil {
		r.RestockThreshold = *p.RestockThreshold
	}
	if p.IsActive != nil {
		r.IsActive = *p.IsActive
	}
	if r.LowStockThreshold < 0 || r.RestockThreshold < 0 {
		return nil, ErrInvalidOperation.WithMessage("库存阈值不能为负数")
	}

	r.RecomputeAvailable()
	if err := r.CheckInvariants(); err != nil {
		return nil, err
	}
	return r, nil
}

// RecomputeAvailable 重新计算可用数量
func (r *StockRecord) RecomputeAvailable() {
	r.AvailableQuantity = r.Quantity - r.ReservedQuantity
}

// CheckInvariants 返回第一个被违反的不变量
func (r *StockRecord) CheckInvariants() error {
	switch {
	case r.Quantity < 0:
		return ErrInvariantViolation.WithMessagef("库存数量为负: %d", r.Quantity)
	case r.Quantity > MaxQuantity:
		return ErrQuantityTooLarge
	case r.ReservedQuantity < 0:
		return ErrInvariantViolation.WithMessagef("预留数量为负: %d", r.ReservedQuantity)
	case r.ReservedQuantity > r.Quantity:
		return ErrInvariantViolation.WithMessagef("预留数量(%d)超过库存数量(%d)", r.ReservedQuantity, r.Quantity)
	case r.AvailableQuantity != r.Quantity-r.ReservedQuantity:
		return ErrInvariantViolation.WithMessagef("可用数量(%d)与库存(%d)-预留(%d)不一致",
			r.AvailableQuantity, r.Quantity, r.ReservedQuantity)
	}
	return nil
}

// ==================== 守卫谓词 ====================
// 与数据库条件更新的WHERE子句一一对应，内存实现和测试共用

// CanAdjust quantity + delta >= 0，不低于已预留数量，不超过上限
func (r *StockRecord) CanAdjust(delta int) bool {
	if !QuantityInRange(delta) {
		return false
	}
	next := r.Quantity + delta
	return next >= 0 && next >= r.ReservedQuantity && next <= MaxQuantity
}

// CanReserve quantity - (reserved + amount) >= 0
func (r *StockRecord) CanReserve(amount int) bool {
	return QuantityInRange(amount) && r.Quantity-(r.ReservedQuantity+amount) >= 0
}

// CanRelease reserved >= amount
func (r *StockRecord) CanRelease(amount int) bool {
	return r.ReservedQuantity >= amount
}

// CanConsume quantity >= amount 且 reserved >= amount
func (r *StockRecord) CanConsume(amount int) bool {
	return r.Quantity >= amount && r.ReservedQuantity >= amount
}

// ==================== 状态变更（供无条件更新能力的存储使用） ====================

// ApplyAdjust 调整在库数量
func (r *StockRecord) ApplyAdjust(delta int) {
	r.Quantity += delta
	r.RecomputeAvailable()
}

// ApplyReserve 预留
func (r *StockRecord) ApplyReserve(amount int) {
	r.ReservedQuantity += amount
	r.RecomputeAvailable()
}

// ApplyRelease 释放预留
func (r *StockRecord) ApplyRelease(amount int) {
	r.ReservedQuantity -= amount
	r.RecomputeAvailable()
}

// ApplyConsume 消耗预留（出库）
func (r *StockRecord) ApplyConsume(amount int) {
	r.Quantity -= amount
	r.ReservedQuantity -= amount
	r.RecomputeAvailable()
}

// ApplyRestock 补货入库，同时更新补货日期
func (r *StockRecord) ApplyRestock(amount int, now time.Time, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRestockInterval
	}
	r.Quantity += amount
	r.RecomputeAvailable()

	last := now
	next := now.Add(interval)
	r.LastRestockedDate = &last
	r.NextRestockDate = &next
	r.UpdatedAt = now
}

// InventoryValue 库存价值 = 单位成本 × 在库数量（未设置成本时为0）
func (r *StockRecord) InventoryValue() decimal.Decimal {
	if r.UnitCost == nil {
		return decimal.Zero
	}
	return r.UnitCost.Mul(decimal.NewFromInt(int64(r.Quantity)))
}

// Clone 深拷贝（指针字段独立）
func (r *StockRecord) Clone() *StockRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.UnitCost != nil {
		cost := *r.UnitCost
		c.UnitCost = &cost
	}
	if r.LastRestockedDate != nil {
		t := *r.LastRestockedDate
		c.LastRestockedDate = &t
	}
	if r.NextRestockDate != nil {
		t := *r.NextRestockDate
		c.NextRestockDate = &t
	}
	return &c
}
