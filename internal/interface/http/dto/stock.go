package dto

import "github.com/shopspring/decimal"

// CreateStockRequest HTTP创建库存记录请求
// 阈值为空时使用默认值（低库存10，补货20）
type CreateStockRequest struct {
	ProductID         string           `json:"product_id" binding:"required,max=64" example:"P-1001"`
	SKUCode           string           `json:"sku_code" binding:"required,max=64" example:"SKU-1001-BLK"`
	Quantity          int              `json:"quantity" binding:"max=1000000000" example:"100"`
	ReservedQuantity  int              `json:"reserved_quantity" binding:"max=1000000000" example:"0"`
	LowStockThreshold *int             `json:"low_stock_threshold" binding:"omitempty,min=0" example:"10"`
	RestockThreshold  *int             `json:"restock_threshold" binding:"omitempty,min=0" example:"20"`
	UnitCost          *decimal.Decimal `json:"unit_cost" swaggertype:"string" example:"12.50"`
	LocationCode      string           `json:"location_code" binding:"max=32" example:"WH-SH-01"`
	BinLocation       string           `json:"bin_location" binding:"max=32" example:"A-03-2"`
	IsActive          *bool            `json:"is_active" example:"true"`
}

// AdjustStockRequest 库存调整（正数入库，负数出库）
// 数量由应用层校验，0或负数返回422；超过上限（stock.MaxQuantity）在绑定时返回400
type AdjustStockRequest struct {
	Quantity    int    `json:"quantity" binding:"min=-1000000000,max=1000000000" example:"-5"`
	Reason      string `json:"reason" binding:"required,max=255" example:"盘点差异"`
	ReferenceID string `json:"reference_id" binding:"max=64" example:"CHK-20240301"`
}

// ReserveStockRequest 预留库存
type ReserveStockRequest struct {
	Quantity      int    `json:"quantity" binding:"max=1000000000" example:"2"`
	ReservationID string `json:"reservation_id" binding:"required,max=64" example:"ORD-20240301-0001"`
	Notes         string `json:"notes" binding:"max=255" example:"购物车结算"`
}

// ReleaseStockRequest 释放预留
type ReleaseStockRequest struct {
	Quantity      int    `json:"quantity" binding:"max=1000000000" example:"2"`
	ReservationID string `json:"reservation_id" binding:"required,max=64" example:"ORD-20240301-0001"`
	Reason        string `json:"reason" binding:"max=255" example:"订单取消"`
}

// ConsumeStockRequest 消耗预留（发货）
type ConsumeStockRequest struct {
	Quantity      int    `json:"quantity" binding:"max=1000000000" example:"2"`
	ReservationID string `json:"reservation_id" binding:"required,max=64" example:"ORD-20240301-0001"`
}

// RestockRequest 补货入库
type RestockRequest struct {
	Quantity int `json:"quantity" binding:"max=1000000000" example:"200"`
}

// BatchReserveRequest 多SKU预留（尽力而为，失败时回滚已预留的行）
type BatchReserveRequest struct {
	ReservationID string             `json:"reservation_id" binding:"required,max=64" example:"ORD-20240301-0002"`
	Notes         string             `json:"notes" binding:"max=255"`
	Items         []BatchReserveItem `json:"items" binding:"required,min=1,max=100,dive"`
}

// BatchReserveItem 预留明细
type BatchReserveItem struct {
	SKUCode  string `json:"sku_code" binding:"required" example:"SKU-1001-BLK"`
	Quantity int    `json:"quantity" binding:"required,min=1,max=9999" example:"1"`
}

// ListMovementsRequest 库存流水分页查询
type ListMovementsRequest struct {
	Page     int `form:"page" binding:"omitempty,min=1" example:"1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100" example:"20"`
}
