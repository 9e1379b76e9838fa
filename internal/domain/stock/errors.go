package stock

import (
	apperrors "github.com/xiebiao/stockledger/pkg/errors"
)

// 库存领域错误
//
// 错误分类（与调用方约定）：
// - NotFound:          SKU不存在
// - AlreadyExists:     SKU已有库存记录
// - InsufficientStock: 可用库存不足以预留
// - InvalidOperation:  数量参数非法，或操作会破坏不变量
// - Transient:         锁等待超时/连接中断/操作超时，可以重试
//
// 同一类错误的不同提示通过WithMessage派生，errors.Is按错误码匹配。
var (
	ErrStockNotFound      = apperrors.New(apperrors.ErrCodeStockNotFound, "库存记录不存在")
	ErrStockAlreadyExists = apperrors.New(apperrors.ErrCodeDuplicateEntry, "该SKU的库存记录已存在")
	ErrInsufficientStock  = apperrors.New(apperrors.ErrCodeInsufficientStock, "可用库存不足")
	ErrInvalidOperation   = apperrors.New(apperrors.ErrCodeInvalidOperation, "库存操作不合法")
	ErrTransient          = apperrors.ErrTransient

	ErrInvalidSKU             = ErrInvalidOperation.WithMessage("SKU编码不能为空")
	ErrInvalidQuantity        = ErrInvalidOperation.WithMessage("数量必须大于0")
	ErrQuantityTooLarge       = ErrInvalidOperation.WithMessagef("数量不能超过%d", MaxQuantity)
	ErrZeroAdjustment         = ErrInvalidOperation.WithMessage("调整数量不能为0")
	ErrAdjustmentBelowZero    = ErrInvalidOperation.WithMessage("调整后库存不能为负数,也不能低于已预留数量")
	ErrReleaseExceedsReserved = ErrInvalidOperation.WithMessage("释放数量超过已预留数量")
	ErrConsumeExceedsReserved = ErrInvalidOperation.WithMessage("消耗数量超过已预留数量或在库数量")
	ErrInvariantViolation     = ErrInvalidOperation.WithMessage("库存不变量被破坏")

	ErrConcurrentModification = apperrors.New(apperrors.ErrCodeTransient, "库存记录已被并发修改,请重试")
)
