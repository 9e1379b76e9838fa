package stock

// Status 库存状态
type Status string

const (
	StatusInStock      Status = "IN_STOCK"
	StatusLowStock     Status = "LOW_STOCK"
	StatusOutOfStock   Status = "OUT_OF_STOCK"
	StatusNeedsRestock Status = "NEEDS_RESTOCK"
)

// Classify 按可用数量分类
//
//	available <= 0                  → OUT_OF_STOCK
//	available <= lowStockThreshold  → LOW_STOCK
//	其他                            → IN_STOCK
func Classify(available, lowStockThreshold int) Status {
	switch {
	case available <= 0:
		return StatusOutOfStock
	case available <= lowStockThreshold:
		return StatusLowStock
	default:
		return StatusInStock
	}
}

// ClassifyLowStock 低库存列表使用的二分类（不区分缺货）
func ClassifyLowStock(available, lowStockThreshold int) Status {
	if available <= lowStockThreshold {
		return StatusLowStock
	}
	return StatusInStock
}

// Status 当前状态
func (r *StockRecord) Status() Status {
	return Classify(r.AvailableQuantity, r.LowStockThreshold)
}

// InStock 是否有可用库存
func (r *StockRecord) InStock() bool {
	return r.AvailableQuantity > 0
}

// IsLowStock 可用数量是否已到低库存阈值
func (r *StockRecord) IsLowStock() bool {
	return r.AvailableQuantity <= r.LowStockThreshold
}

// NeedsRestock 可用数量是否已到补货阈值
func (r *StockRecord) NeedsRestock() bool {
	return r.AvailableQuantity <= r.RestockThreshold
}
