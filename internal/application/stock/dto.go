package stock

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xiebiao/stockledger/internal/domain/stock"
)

// CreateStockRequest 创建库存记录请求DTO
// 指针字段为nil时使用默认值（低库存阈值10，补货阈值20，启用）
type CreateStockRequest struct {
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

// StockResponse 库存记录视图（操作成功后返回，反映已提交的状态）
type StockResponse struct {
	ID                string     `json:"id"`
	ProductID         string     `json:"product_id"`
	SKUCode           string     `json:"sku_code"`
	Quantity          int        `json:"quantity"`
	ReservedQuantity  int        `json:"reserved_quantity"`
	AvailableQuantity int        `json:"available_quantity"`
	LowStockThreshold int        `json:"low_stock_threshold"`
	RestockThreshold  int        `json:"restock_threshold"`
	UnitCost          string     `json:"unit_cost,omitempty"`
	InventoryValue    string     `json:"inventory_value"`
	LocationCode      string     `json:"location_code,omitempty"`
	BinLocation       string     `json:"bin_location,omitempty"`
	IsActive          bool       `json:"is_active"`
	Status            string     `json:"status"`
	LastRestockedDate *time.Time `json:"last_restocked_date,omitempty"`
	NextRestockDate   *time.Time `json:"next_restock_date,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	Version           int64      `json:"version"`
}

// NewStockResponse 实体转视图
func NewStockResponse(r *stock.StockRecord) *StockResponse {
	resp := &StockResponse{
		ID:                r.ID,
		ProductID:         r.ProductID,
		SKUCode:           r.SKUCode,
		Quantity:          r.Quantity,
		ReservedQuantity:  r.ReservedQuantity,
		AvailableQuantity: r.AvailableQuantity,
		LowStockThreshold: r.LowStockThreshold,
		RestockThreshold:  r.RestockThreshold,
		InventoryValue:    r.InventoryValue().StringFixed(2),
		LocationCode:      r.LocationCode,
		BinLocation:       r.BinLocation,
		IsActive:          r.IsActive,
		Status:            string(r.Status()),
		LastRestockedDate: r.LastRestockedDate,
		NextRestockDate:   r.NextRestockDate,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		Version:           r.Version,
	}
	if r.UnitCost != nil {
		resp.UnitCost = r.UnitCost.String()
	}
	return resp
}

// InventoryStatus 库存状态视图
type InventoryStatus struct {
	SKUCode           string `json:"sku_code"`
	InStock           bool   `json:"in_stock"`
	AvailableQuantity int    `json:"available_quantity"`
	LowStock          bool   `json:"low_stock"`
	Status            string `json:"status"`
}

// LowStockItem 低库存/待补货列表项
type LowStockItem struct {
	SKUCode           string `json:"sku_code"`
	CurrentLevel      int    `json:"current_level"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	RestockThreshold  int    `json:"restock_threshold"`
	Status            string `json:"status"`
}

// MovementView 库存流水视图
type MovementView struct {
	ID             uint      `json:"id"`
	SKUCode        string    `json:"sku_code"`
	Type           string    `json:"type"`
	QuantityDelta  int       `json:"quantity_delta"`
	ReservedDelta  int       `json:"reserved_delta"`
	BeforeQuantity int       `json:"before_quantity"`
	AfterQuantity  int       `json:"after_quantity"`
	BeforeReserved int       `json:"before_reserved"`
	AfterReserved  int       `json:"after_reserved"`
	ReferenceID    string    `json:"reference_id,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Operator       string    `json:"operator,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func newMovementView(m *stock.Movement) *MovementView {
	return &MovementView{
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

// ReserveLine 批量预留的一行
type ReserveLine struct {
	SKUCode  string
	Quantity int
}

// BatchReserveResult 批量预留结果
type BatchReserveResult struct {
	ReservationID string           `json:"reservation_id"`
	Items         []*StockResponse `json:"items"`
}
