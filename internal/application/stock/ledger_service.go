package stock

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/xiebiao/stockledger/internal/domain/stock"
	apperrors "github.com/xiebiao/stockledger/pkg/errors"
	"github.com/xiebiao/stockledger/pkg/retry"
	"github.com/xiebiao/stockledger/pkg/tracing"
)

const tracerName = "stock-ledger"

// 操作名（用于指标标签、熔断器名称、Span名称）
const (
	OpCreate  = "create"
	OpAdjust  = "adjust"
	OpReserve = "reserve"
	OpRelease = "release"
	OpConsume = "consume"
	OpRestock = "restock"
)

// LedgerConfig 库存操作配置
type LedgerConfig struct {
	OperationTimeout    time.Duration // 单次操作（含重试）超时，0表示只受调用方ctx约束
	EventPublishTimeout time.Duration // 事件投递超时
	RestockInterval     time.Duration // 补货周期，默认14天
}

// LedgerService 库存账本服务
//
// 每个变更操作的流程：
//
//	参数校验 → [重试策略 → 事务{ 条件更新 → 0行则判断原因 → 重新读取 → 写流水 }] → 指标 → 事件
//
// 防超卖的关键在条件更新：守卫条件写在UPDATE的WHERE子句中，
// 数据库保证"判断"和"修改"是原子的，不需要先查询再修改。
// 事件在事务提交之后发送，投递失败只记录日志。
type LedgerService struct {
	store     stock.Store
	movements stock.MovementRepository
	txManager stock.TxManager
	sink      stock.EventSink
	reporter  stock.Reporter
	policy    *retry.Policy
	clock     stock.Clock
	cfg       LedgerConfig
	logger    *zap.Logger
}

// NewLedgerService 创建库存账本服务
func NewLedgerService(
	store stock.Store,
	movements stock.MovementRepository,
	txManager stock.TxManager,
	sink stock.EventSink,
	reporter stock.Reporter,
	policy *retry.Policy,
	clock stock.Clock,
	cfg LedgerConfig,
	logger *zap.Logger,
) *LedgerService {
	if sink == nil {
		sink = stock.NopEventSink{}
	}
	if reporter == nil {
		reporter = stock.NopReporter{}
	}
	if clock == nil {
		clock = stock.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == nil {
		policy = retry.NewPolicy(retry.Config{MaxAttempts: 1}, nil, logger)
	}
	if cfg.RestockInterval <= 0 {
		cfg.RestockInterval = stock.DefaultRestockInterval
	}
	return &LedgerService{
		store:     store,
		movements: movements,
		txManager: txManager,
		sink:      sink,
		reporter:  reporter,
		policy:    policy,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// CreateStockRecord 创建库存记录
// 业务规则：每个SKU只能有一条记录，重复创建返回ErrStockAlreadyExists
func (s *LedgerService) CreateStockRecord(ctx context.Context, req CreateStockRequest) (*StockResponse, error) {
	record, err := stock.NewStockRecord(stock.NewRecordParams{
		ProductID:         req.ProductID,
		SKUCode:           req.SKUCode,
		Quantity:          req.Quantity,
		ReservedQuantity:  req.ReservedQuantity,
		LowStockThreshold: req.LowStockThreshold,
		RestockThreshold:  req.RestockThreshold,
		UnitCost:          req.UnitCost,
		LocationCode:      req.LocationCode,
		BinLocation:       req.BinLocation,
		IsActive:          req.IsActive,
	}, s.clock.Now())
	if err != nil {
		return nil, err
	}

	var created *stock.StockRecord
	err = s.execute(ctx, OpCreate, record.SKUCode, func(txCtx context.Context) error {
		exists, err := s.store.ExistsBySKU(txCtx, record.SKUCode)
		if err != nil {
			return err
		}
		if exists {
			return stock.ErrStockAlreadyExists
		}

		// 唯一索引兜底：并发创建时后到者得到ErrStockAlreadyExists
		if err := s.store.Create(txCtx, record.Clone()); err != nil {
			return err
		}

		fresh, err := s.store.FindBySKU(txCtx, record.SKUCode)
		if err != nil {
			return err
		}
		created = fresh
		return s.appendMovement(txCtx, stock.MovementCreate, fresh, fresh.Quantity, fresh.ReservedQuantity, "", "创建库存记录")
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("库存记录已创建",
		zap.String("sku", created.SKUCode),
		zap.Int("quantity", created.Quantity),
	)
	s.afterCommit(ctx, stock.EventInventoryCreated, created, nil)
	return NewStockResponse(created), nil
}

// AdjustStock 调整在库数量（盘点、损耗、入库修正）
//
// 守卫：quantity + delta >= 0，调整后不低于已预留数量，不超过MaxQuantity
// 失败：ErrStockNotFound / ErrAdjustmentBelowZero / ErrQuantityTooLarge
func (s *LedgerService) AdjustStock(ctx context.Context, sku string, delta int, reason, referenceID string) (*StockResponse, error) {
	if sku == "" {
		return nil, stock.ErrInvalidSKU
	}
	if delta == 0 {
		return nil, stock.ErrZeroAdjustment
	}
	if !stock.QuantityInRange(delta) {
		return nil, stock.ErrQuantityTooLarge
	}

	var updated *stock.StockRecord
	err := s.execute(ctx, OpAdjust, sku, func(txCtx context.Context) error {
		// 快速失败：普通读取的预检查，真正的判断以条件更新为准
		current, err := s.store.FindBySKU(txCtx, sku)
		if err != nil {
			return err
		}
		if current.Quantity+delta > stock.MaxQuantity {
			return stock.ErrQuantityTooLarge
		}
		if !current.CanAdjust(delta) {
			return stock.ErrAdjustmentBelowZero
		}

		rows, err := s.store.AdjustQuantity(txCtx, sku, delta)
		if err != nil {
			return err
		}
		if rows == 0 {
			return s.guardFailure(txCtx, sku, stock.ErrAdjustmentBelowZero)
		}

		updated, err = s.store.FindBySKU(txCtx, sku)
		if err != nil {
			return err
		}
		return s.appendMovement(txCtx, stock.MovementAdjust, updated, delta, 0, referenceID, reason)
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, stock.EventStockAdjusted, updated, map[string]interface{}{
		"adjustment":  delta,
		"reason":      reason,
		"referenceId": referenceID,
	})
	return NewStockResponse(updated), nil
}

// ReserveStock 预留库存（下单锁库存）
//
// 守卫：available >= quantity
// 失败：ErrStockNotFound / ErrInsufficientStock
func (s *LedgerService) ReserveStock(ctx context.Context, sku string, quantity int, reservationID, notes string) (*StockResponse, error) {
	if err := validateArgs(sku, quantity); err != nil {
		return nil, err
	}

	var updated *stock.StockRecord
	err := s.execute(ctx, OpReserve, sku, func(txCtx context.Context) error {
		rows, err := s.store.ReserveQuantity(txCtx, sku, quantity)
		if err != nil {
			return err
		}
		if rows == 0 {
			return s.guardFailure(txCtx, sku, stock.ErrInsufficientStock)
		}

		updated, err = s.store.FindBySKU(txCtx, sku)
		if err != nil {
			return err
		}
		return s.appendMovement(txCtx, stock.MovementReserve, updated, 0, quantity, reservationID, notes)
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, stock.EventStockReserved, updated, map[string]interface{}{
		"reservationId":    reservationID,
		"quantityReserved": quantity,
		"notes":            notes,
	})
	return NewStockResponse(updated), nil
}

// ReleaseStock 释放预留（取消订单、超时未支付）
//
// 守卫：reserved >= quantity
// 失败：ErrStockNotFound / ErrReleaseExceedsReserved
func (s *LedgerService) ReleaseStock(ctx context.Context, sku string, quantity int, reservationID, reason string) (*StockResponse, error) {
	if err := validateArgs(sku, quantity); err != nil {
		return nil, err
	}

	var updated *stock.StockRecord
	err := s.execute(ctx, OpRelease, sku, func(txCtx context.Context) error {
		rows, err := s.store.ReleaseQuantity(txCtx, sku, quantity)
		if err != nil {
			return err
		}
		if rows == 0 {
			return s.guardFailure(txCtx, sku, stock.ErrReleaseExceedsReserved)
		}

		updated, err = s.store.FindBySKU(txCtx, sku)
		if err != nil {
			return err
		}
		return s.appendMovement(txCtx, stock.MovementRelease, updated, 0, -quantity, reservationID, reason)
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, stock.EventStockReleased, updated, map[string]interface{}{
		"reservationId":    reservationID,
		"quantityReleased": quantity,
		"reason":           reason,
	})
	return NewStockResponse(updated), nil
}

// ConsumeReservedStock 消耗预留（发货出库）
//
// 守卫：quantity >= n 且 reserved >= n
// 失败：ErrStockNotFound / ErrConsumeExceedsReserved
func (s *LedgerService) ConsumeReservedStock(ctx context.Context, sku string, quantity int, reservationID string) (*StockResponse, error) {
	if err := validateArgs(sku, quantity); err != nil {
		return nil, err
	}

	var updated *stock.StockRecord
	err := s.execute(ctx, OpConsume, sku, func(txCtx context.Context) error {
		rows, err := s.store.ConsumeReserved(txCtx, sku, quantity)
		if err != nil {
			return err
		}
		if rows == 0 {
			return s.guardFailure(txCtx, sku, stock.ErrConsumeExceedsReserved)
		}

		updated, err = s.store.FindBySKU(txCtx, sku)
		if err != nil {
			return err
		}
		return s.appendMovement(txCtx, stock.MovementConsume, updated, -quantity, -quantity, reservationID, "")
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, stock.EventReservedStockConsumed, updated, map[string]interface{}{
		"reservationId":    reservationID,
		"quantityConsumed": quantity,
	})
	return NewStockResponse(updated), nil
}

// ProcessRestock 补货入库
//
// 在事务中锁定记录（SELECT FOR UPDATE），同时更新数量和补货日期：
// LastRestockedDate = now, NextRestockDate = now + 补货周期
func (s *LedgerService) ProcessRestock(ctx context.Context, sku string, quantity int) (*StockResponse, error) {
	if err := validateArgs(sku, quantity); err != nil {
		return nil, err
	}

	var updated *stock.StockRecord
	err := s.execute(ctx, OpRestock, sku, func(txCtx context.Context) error {
		record, err := s.store.FindBySKUForUpdate(txCtx, sku)
		if err != nil {
			return err
		}

		if record.Quantity+quantity > stock.MaxQuantity {
			return stock.ErrQuantityTooLarge
		}
		record.ApplyRestock(quantity, s.clock.Now(), s.cfg.RestockInterval)
		if err := s.store.Save(txCtx, record); err != nil {
			return err
		}

		updated, err = s.store.FindBySKU(txCtx, sku)
		if err != nil {
			return err
		}
		return s.appendMovement(txCtx, stock.MovementRestock, updated, quantity, 0, "", "补货入库")
	})
	if err != nil {
		return nil, err
	}

	extra := map[string]interface{}{
		"quantityAdded": quantity,
		"newQuantity":   updated.Quantity,
	}
	if updated.NextRestockDate != nil {
		extra["nextRestockDate"] = updated.NextRestockDate.UTC().Format(time.RFC3339)
	}
	s.afterCommit(ctx, stock.EventStockRestocked, updated, extra)
	return NewStockResponse(updated), nil
}

// ==================== 内部流程 ====================

// execute 在追踪、超时、重试策略和事务中执行fn
func (s *LedgerService) execute(ctx context.Context, op, sku string, fn func(txCtx context.Context) error) (err error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, tracerName, "stock."+op,
		attribute.String("stock.sku", sku),
		attribute.String("stock.operation", op),
	)
	defer func() {
		tracing.EndSpan(span, err)
		s.reporter.ObserveOperation(op, resultLabel(err), time.Since(start))
	}()

	if s.cfg.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.OperationTimeout)
		defer cancel()
	}

	return s.policy.Do(ctx, op, func(ctx context.Context) error {
		return s.txManager.Transaction(ctx, fn)
	})
}

// guardFailure 条件更新影响0行时区分原因：SKU不存在，还是守卫不成立
func (s *LedgerService) guardFailure(ctx context.Context, sku string, guardErr error) error {
	exists, err := s.store.ExistsBySKU(ctx, sku)
	if err != nil {
		return err
	}
	if !exists {
		return stock.ErrStockNotFound
	}
	return guardErr
}

func (s *LedgerService) appendMovement(ctx context.Context, t stock.MovementType, after *stock.StockRecord, quantityDelta, reservedDelta int, referenceID, reason string) error {
	if s.movements == nil {
		return nil
	}
	m := stock.NewMovement(t, after, quantityDelta, reservedDelta, referenceID, reason, OperatorFrom(ctx), s.clock.Now())
	return s.movements.Create(ctx, m)
}

// afterCommit 提交后的副作用：指标、告警、事件
func (s *LedgerService) afterCommit(ctx context.Context, eventType string, record *stock.StockRecord, extra map[string]interface{}) {
	s.reporter.SetAvailable(record.SKUCode, record.AvailableQuantity)
	switch record.Status() {
	case stock.StatusOutOfStock:
		s.reporter.IncOutOfStockAlert(record.SKUCode)
	case stock.StatusLowStock:
		s.reporter.IncLowStockAlert(record.SKUCode)
	}

	s.publish(ctx, eventType, record, extra)
}

// publish 投递事件，任何失败（包括panic）都只记录日志
func (s *LedgerService) publish(ctx context.Context, eventType string, record *stock.StockRecord, extra map[string]interface{}) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("库存事件投递panic",
				zap.String("event_type", eventType),
				zap.String("sku", record.SKUCode),
				zap.Any("panic", r),
			)
			s.reporter.IncEventPublish(eventType, "failure")
		}
	}()

	// 请求ctx可能在操作返回后立即被取消，事件投递使用独立的超时
	pubCtx := context.WithoutCancel(ctx)
	if s.cfg.EventPublishTimeout > 0 {
		var cancel context.CancelFunc
		pubCtx, cancel = context.WithTimeout(pubCtx, s.cfg.EventPublishTimeout)
		defer cancel()
	}

	if err := s.sink.Publish(pubCtx, eventType, record.Clone(), extra); err != nil {
		s.logger.Warn("库存事件投递失败",
			zap.String("event_type", eventType),
			zap.String("sku", record.SKUCode),
			zap.Error(err),
		)
		s.reporter.IncEventPublish(eventType, "failure")
		return
	}
	s.reporter.IncEventPublish(eventType, "success")
}

func validateArgs(sku string, quantity int) error {
	if sku == "" {
		return stock.ErrInvalidSKU
	}
	if quantity <= 0 {
		return stock.ErrInvalidQuantity
	}
	if quantity > stock.MaxQuantity {
		return stock.ErrQuantityTooLarge
	}
	return nil
}

// resultLabel 错误分类，用于指标标签
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, stock.ErrStockNotFound):
		return "not_found"
	case errors.Is(err, stock.ErrInsufficientStock):
		return "insufficient"
	case errors.Is(err, stock.ErrStockAlreadyExists):
		return "duplicate"
	case errors.Is(err, stock.ErrInvalidOperation):
		return "invalid"
	case apperrors.IsRetryable(err):
		return "transient"
	default:
		return "error"
	}
}
