package stock

import (
	"context"

	"github.com/xiebiao/stockledger/internal/domain/stock"
)

// QueryService 库存查询服务（只读，不加锁，允许读到略旧的数据）
type QueryService struct {
	store     stock.Store
	movements stock.MovementRepository
}

// NewQueryService 创建库存查询服务
func NewQueryService(store stock.Store, movements stock.MovementRepository) *QueryService {
	return &QueryService{
		store:     store,
		movements: movements,
	}
}

// GetStockRecord 查询库存记录
func (s *QueryService) GetStockRecord(ctx context.Context, sku string) (*StockResponse, error) {
	if sku == "" {
		return nil, stock.ErrInvalidSKU
	}
	record, err := s.store.FindBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	return NewStockResponse(record), nil
}

// CheckInventoryStatus 查询库存状态
func (s *QueryService) CheckInventoryStatus(ctx context.Context, sku string) (*InventoryStatus, error) {
	if sku == "" {
		return nil, stock.ErrInvalidSKU
	}
	record, err := s.store.FindBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	return &InventoryStatus{
		SKUCode:           record.SKUCode,
		InStock:           record.InStock(),
		AvailableQuantity: record.AvailableQuantity,
		LowStock:          record.IsLowStock(),
		Status:            string(record.Status()),
	}, nil
}

// GetLowStockItems 低库存列表
// 只分LOW_STOCK/IN_STOCK两类，缺货的记录同样标记为LOW_STOCK
func (s *QueryService) GetLowStockItems(ctx context.Context) ([]*LowStockItem, error) {
	records, err := s.store.ListLowStock(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]*LowStockItem, 0, len(records))
	for _, r := range records {
		items = append(items, &LowStockItem{
			SKUCode:           r.SKUCode,
			CurrentLevel:      r.AvailableQuantity,
			LowStockThreshold: r.LowStockThreshold,
			RestockThreshold:  r.RestockThreshold,
			Status:            string(stock.ClassifyLowStock(r.AvailableQuantity, r.LowStockThreshold)),
		})
	}
	return items, nil
}

// GetRestockDueItems 待补货列表
func (s *QueryService) GetRestockDueItems(ctx context.Context) ([]*LowStockItem, error) {
	records, err := s.store.ListRestockDue(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]*LowStockItem, 0, len(records))
	for _, r := range records {
		items = append(items, &LowStockItem{
			SKUCode:           r.SKUCode,
			CurrentLevel:      r.AvailableQuantity,
			LowStockThreshold: r.LowStockThreshold,
			RestockThreshold:  r.RestockThreshold,
			Status:            string(stock.StatusNeedsRestock),
		})
	}
	return items, nil
}

// ListMovements 分页查询库存流水（最新的在前）
func (s *QueryService) ListMovements(ctx context.Context, sku string, page, pageSize int) ([]*MovementView, int64, error) {
	if sku == "" {
		return nil, 0, stock.ErrInvalidSKU
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	exists, err := s.store.ExistsBySKU(ctx, sku)
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		return nil, 0, stock.ErrStockNotFound
	}

	list, total, err := s.movements.ListBySKU(ctx, sku, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	views := make([]*MovementView, 0, len(list))
	for _, m := range list {
		views = append(views, newMovementView(m))
	}
	return views, total, nil
}
