package mysql

import (
	"context"

	"gorm.io/gorm"

	"github.com/xiebiao/stockledger/internal/domain/stock"
)

// movementRepository 库存流水仓储实现（GORM）
type movementRepository struct {
	db *gorm.DB
}

// NewMovementRepository 创建库存流水仓储
func NewMovementRepository(db *gorm.DB) stock.MovementRepository {
	return &movementRepository{db: db}
}

// Create 追加流水
// 必须在库存变更的同一事务中调用（通过getDB从context获取事务DB）
func (r *movementRepository) Create(ctx context.Context, m *stock.Movement) error {
	model := toMovementModel(m)
	if err := getDB(ctx, r.db).Create(model).Error; err != nil {
		return translateError(err, "写入库存流水失败")
	}
	// 回填自增ID
	m.ID = model.ID
	return nil
}

// ListBySKU 分页查询（按时间倒序）
func (r *movementRepository) ListBySKU(ctx context.Context, sku string, page, pageSize int) ([]*stock.Movement, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var models []StockMovementModel
	var total int64

	// Session让Count和Find各自使用独立的Statement
	query := getDB(ctx, r.db).Model(&StockMovementModel{}).Where("sku_code = ?", sku).Session(&gorm.Session{})

	// 查询总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translateError(err, "查询库存流水总数失败")
	}

	// 同一时刻写入的流水按ID倒序
	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pageSize).
		Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, 0, translateError(err, "查询库存流水失败")
	}

	movements := make([]*stock.Movement, len(models))
	for i := range models {
		movements[i] = toMovementEntity(&models[i])
	}
	return movements, total, nil
}
