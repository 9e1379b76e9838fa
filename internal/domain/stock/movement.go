package stock

import "time"

// MovementType 库存流水类型
type MovementType string

const (
	MovementCreate  MovementType = "CREATE"
	MovementAdjust  MovementType = "ADJUST"
	MovementReserve MovementType = "RESERVE"
	MovementRelease MovementType = "RELEASE"
	MovementConsume MovementType = "CONSUME"
	MovementRestock MovementType = "RESTOCK"
)

// Movement 库存流水（审计日志，只追加不修改）
// 每次成功的库存变更在同一事务中写入一条，记录变更前后的在库/预留数量
type Movement struct {
	ID             uint
	SKUCode        string
	Type           MovementType
	QuantityDelta  int // 在库数量变化
	ReservedDelta  int // 预留数量变化
	BeforeQuantity int
	AfterQuantity  int
	BeforeReserved int
	AfterReserved  int
	ReferenceID    string // 预留单号/调整单号
	Reason         string
	Operator       string
	CreatedAt      time.Time
}

// NewMovement 根据变更后的记录和变化量构造流水
func NewMovement(t MovementType, after *StockRecord, quantityDelta, reservedDelta int, referenceID, reason, operator string, now time.Time) *Movement {
	return &Movement{
		SKUCode:        after.SKUCode,
		Type:           t,
		QuantityDelta:  quantityDelta,
		ReservedDelta:  reservedDelta,
		BeforeQuantity: after.Quantity - quantityDelta,
		AfterQuantity:  after.Quantity,
		BeforeReserved: after.ReservedQuantity - reservedDelta,
		AfterReserved:  after.ReservedQuantity,
		ReferenceID:    referenceID,
		Reason:         reason,
		Operator:       operator,
		CreatedAt:      now,
	}
}
