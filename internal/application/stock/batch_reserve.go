package stock

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xiebiao/stockledger/internal/domain/stock"
	apperrors "github.com/xiebiao/stockledger/pkg/errors"
	"github.com/xiebiao/stockledger/pkg/saga"
)

// SagaReporter 批量预留的指标（可选，由reporter实现）
type SagaReporter interface {
	ObserveSaga(result string, compensations int)
}

// ReserveBatch 批量预留多个SKU
//
// 使用Saga按顺序预留每一行：
//
//	预留SKU1 → 预留SKU2 → 预留SKU3
//	   ↓ 失败          ↓ 失败
//	（无补偿）    释放SKU1
//
// 不是原子操作：补偿执行前，其他请求可能看到部分预留的中间状态。
// 补偿失败只记录日志，返回的错误始终是触发补偿的那一行的错误。
func (s *LedgerService) ReserveBatch(ctx context.Context, reservationID string, lines []ReserveLine, notes string) (*BatchReserveResult, error) {
	if len(lines) == 0 {
		return nil, stock.ErrInvalidOperation.WithMessage("预留明细不能为空")
	}
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if err := validateArgs(line.SKUCode, line.Quantity); err != nil {
			return nil, err
		}
		if _, dup := seen[line.SKUCode]; dup {
			return nil, stock.ErrInvalidOperation.WithMessagef("SKU %s 在预留明细中重复", line.SKUCode)
		}
		seen[line.SKUCode] = struct{}{}
	}

	var timeout time.Duration
	if s.cfg.OperationTimeout > 0 {
		timeout = s.cfg.OperationTimeout * time.Duration(len(lines))
	}
	sg := saga.NewSaga(timeout, s.logger)

	result := &BatchReserveResult{
		ReservationID: reservationID,
		Items:         make([]*StockResponse, 0, len(lines)),
	}
	for _, line := range lines {
		line := line
		sg.AddStep("reserve:"+line.SKUCode,
			func(ctx context.Context) error {
				resp, err := s.ReserveStock(ctx, line.SKUCode, line.Quantity, reservationID, notes)
				if err != nil {
					return err
				}
				result.Items = append(result.Items, resp)
				return nil
			},
			func(ctx context.Context) error {
				_, err := s.ReleaseStock(ctx, line.SKUCode, line.Quantity, reservationID, "批量预留失败,回滚")
				return err
			},
		)
	}

	err := sg.Execute(ctx)
	if err == nil {
		if r, ok := s.reporter.(SagaReporter); ok {
			r.ObserveSaga("success", 0)
		}
		return result, nil
	}

	stepErr, ok := saga.IsStepError(err)
	if !ok {
		return nil, err
	}
	// 失败行之前的每一行都执行了一次补偿
	if r, ok := s.reporter.(SagaReporter); ok {
		r.ObserveSaga("compensated", stepErr.Index)
	}
	for _, cerr := range sg.CompensationErrors() {
		s.logger.Error("批量预留补偿失败",
			zap.String("reservation_id", reservationID),
			zap.Error(cerr),
		)
	}

	sku := lines[stepErr.Index].SKUCode
	if apperrors.IsAppError(stepErr.Err) {
		appErr := apperrors.GetAppError(stepErr.Err)
		return nil, appErr.WithMessagef("SKU %s 预留失败: %s", sku, appErr.Message)
	}
	return nil, fmt.Errorf("SKU %s 预留失败: %w", sku, stepErr.Err)
}
