package mysql

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xiebiao/stockledger/internal/domain/stock"
)

// StockRecordModel GORM库存记录模型
// 设计说明：
// 1. 这是infrastructure层的数据模型，包含GORM tag
// 2. domain/stock/entity.go是领域实体，不依赖GORM
// 3. sku_code唯一索引是"每个SKU一条记录"的最终保障
// 4. available_quantity冗余存储，便于低库存查询走索引
// 5. IsActive不设default:GORM会把false当作零值而使用数据库默认值
type StockRecordModel struct {
	ID                string              `gorm:"primaryKey;size:36;comment:记录ID(uuid)"`
	ProductID         string              `gorm:"index;size:64;comment:商品ID"`
	SKUCode           string              `gorm:"uniqueIndex;size:64;not null;comment:SKU编码"`
	Quantity          int                 `gorm:"not null;comment:在库数量"`
	ReservedQuantity  int                 `gorm:"not null;comment:已预留数量"`
	AvailableQuantity int                 `gorm:"index;not null;comment:可用数量"`
	LowStockThreshold int                 `gorm:"not null;comment:低库存阈值"`
	RestockThreshold  int                 `gorm:"not null;comment:补货阈值"`
	UnitCost          decimal.NullDecimal `gorm:"type:decimal(18,4);comment:单位成本"`
	LocationCode      string              `gorm:"size:64;comment:仓库编码"`
	BinLocation       string              `gorm:"size:64;comment:库位"`
	IsActive          bool                `gorm:"index;not null;comment:是否启用"`
	LastRestockedDate *time.Time          `gorm:"comment:最近补货时间"`
	NextRestockDate   *time.Time          `gorm:"comment:下次补货时间"`
	CreatedAt         time.Time           `gorm:"comment:创建时间"`
	UpdatedAt         time.Time           `gorm:"comment:更新时间"`
	Version           int64               `gorm:"not null;comment:乐观锁版本号"`
}

// TableName 指定表名
func (StockRecordModel) TableName() string {
	return "stock_records"
}

// StockMovementModel GORM库存流水模型（只追加）
type StockMovementModel struct {
	ID             uint      `gorm:"primaryKey"`
	SKUCode        string    `gorm:"index:idx_sku_created;size:64;not null;comment:SKU编码"`
	Type           string    `gorm:"size:16;not null;comment:流水类型"`
	QuantityDelta  int       `gorm:"not null;comment:在库数量变化"`
	ReservedDelta  int       `gorm:"not null;comment:预留数量变化"`
	BeforeQuantity int       `gorm:"not null"`
	AfterQuantity  int       `gorm:"not null"`
	BeforeReserved int       `gorm:"not null"`
	AfterReserved  int       `gorm:"not null"`
	ReferenceID    string    `gorm:"index;size:64;comment:关联单号"`
	Reason         string    `gorm:"size:255;comment:原因"`
	Operator       string    `gorm:"size:64;comment:操作员"`
	CreatedAt      time.Time `gorm:"index:idx_sku_created;comment:创建时间"`
}

// TableName 指定表名
func (StockMovementModel) TableName() string {
	return "stock_movements"
}

// =========================================
// 辅助函数：模型转换
// =========================================

// toStockModel 领域实体 → GORM模型
func toStockModel(r *stock.StockRecord) *StockRecordModel {
	m := &StockRecordModel{
		ID:                r.ID,
		ProductID:         r.ProductID,
		SKUCode:           r.SKUCode,
		Quantity:          r.Quantity,
		ReservedQuantity:  r.ReservedQuantity,
		AvailableQuantity: r.AvailableQuantity,
		LowStockThreshold: r.LowStockThreshold,
		RestockThreshold:  r.RestockThreshold,
		LocationCode:      r.LocationCode,
		BinLocation:       r.BinLocation,
		IsActive:          r.IsActive,
		LastRestockedDate: r.LastRestockedDate,
		NextRestockDate:   r.NextRestockDate,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		Version:           r.Version,
	}
	if r.UnitCost != nil {
		m.UnitCost = decimal.NewNullDecimal(*r.UnitCost)
	}
	return m
}

// toStockEntity GORM模型 → 领域实体
func toStockEntity(m *StockRecordModel) *stock.StockRecord {
	r := &stock.StockRecord{
		ID:                m.ID,
		ProductID:         m.ProductID,
		SKUCode:           m.SKUCode,
		Quantity:          m.Quantity,
		ReservedQuantity:  m.ReservedQuantity,
		AvailableQuantity: m.AvailableQuantity,
		LowStockThreshold: m.LowStockThreshold,
		RestockThreshold:  m.RestockThreshold,
		LocationCode:      m.LocationCode,
		BinLocation:       m.BinLocation,
		IsActive:          m.IsActive,
		LastRestockedDate: utcPtr(m.LastRestockedDate),
		NextRestockDate:   utcPtr(m.NextRestockDate),
		CreatedAt:         m.CreatedAt.UTC(),
		UpdatedAt:         m.UpdatedAt.UTC(),
		Version:           m.Version,
	}
	if m.UnitCost.Valid {
		cost := m.UnitCost.Decimal
		r.UnitCost = &cost
	}
	return r
}

func toMovementModel(m *stock.Movement) *StockMovementModel {
	return &StockMovementModel{
		ID:             m.ID,
		SKUCode:        m.SKUCode,
		Type:           string(m.Type),
		QuantityDelta:  m.QuantityDelta,
		ReservedDelta:  m.ReservedDelta,
		BeforeQuantity: m.BeforeQuantity,
		AfterQuantity:  m.AfterQuantity,
		BeforeReserved: m.BeforeReserved,
		AfterReserved:  m.AfterReserved,
		ReferenceID:    m.ReferenceID,
		Reason:         m.Reason,
		Operator:       m.Operator,
		CreatedAt:      m.CreatedAt,
	}
}

func toMovementEntity(m *StockMovementModel) *stock.Movement {
	return &stock.Movement{
		ID:             m.ID,
		SKUCode:        m.SKUCode,
		Type:           stock.MovementType(m.Type),
		QuantityDelta:  m.QuantityDelta,
		ReservedDelta:  m.ReservedDelta,
		BeforeQuantity: m.BeforeQuantity,
		AfterQuantity:  m.AfterQuantity,
		BeforeReserved: m.BeforeReserved,
		AfterReserved:  m.AfterReserved,
		ReferenceID:    m.ReferenceID,
		Reason:         m.Reason,
		Operator:       m.Operator,
		CreatedAt:      m.CreatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
