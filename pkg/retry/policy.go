// Package retry 提供显式的重试策略对象
//
// 设计说明：
// 1. 只重试瞬时错误（由Retryable判断），业务守卫失败立即返回
// 2. 退避节奏使用cenkalti/backoff的指数退避
// 3. 每类操作一个熔断器：存储持续故障时快速失败，避免重试风暴
package retry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xiebiao/stockledger/pkg/circuitbreaker"
	apperrors "github.com/xiebiao/stockledger/pkg/errors"
)

// Config 重试与熔断参数
type Config struct {
	MaxAttempts     int           // 总尝试次数（含第一次），<=1表示不重试
	InitialInterval time.Duration // 第一次重试前的等待
	MaxInterval     time.Duration // 单次等待上限
	Multiplier      float64       // 退避倍数

	BreakerFailures uint32        // 连续失败多少次打开熔断器，0表示不启用熔断
	BreakerInterval time.Duration // 关闭状态统计窗口
	BreakerTimeout  time.Duration // 打开状态持续时间
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
		Multiplier:      2,
		BreakerFailures: 10,
		BreakerInterval: 30 * time.Second,
		BreakerTimeout:  10 * time.Second,
	}
}

// StateChangeFunc 熔断器状态变化通知
type StateChangeFunc func(name string, from, to circuitbreaker.State)

// Policy 重试策略（并发安全，可在多个goroutine间共享）
type Policy struct {
	cfg       Config
	retryable func(error) bool
	logger    *zap.Logger

	mu            sync.Mutex
	breakers      map[string]*circuitbreaker.CircuitBreaker
	onStateChange StateChangeFunc
}

// NewPolicy 创建重试策略
//
// retryable为nil时使用apperrors.IsRetryable
func NewPolicy(cfg Config, retryable func(error) bool, logger *zap.Logger) *Policy {
	if retryable == nil {
		retryable = apperrors.IsRetryable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Policy{
		cfg:       cfg,
		retryable: retryable,
		logger:    logger,
		breakers:  make(map[string]*circuitbreaker.CircuitBreaker),
	}
}

// OnStateChange 注册熔断器状态变化回调（在第一次Do之前调用）
func (p *Policy) OnStateChange(fn StateChangeFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStateChange = fn
}

// Do 按策略执行fn
//
// 返回值：
//   - fn成功：nil
//   - 非瞬时错误：原样返回（不重试）
//   - 重试耗尽：最后一次的瞬时错误
//   - 熔断器打开或ctx结束：Transient错误
func (p *Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	cb := p.breaker(op)
	attempt := 0

	operation := func() error {
		attempt++
		var err error
		if cb != nil {
			err = cb.ExecuteContext(ctx, fn)
		} else {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return backoff.Permanent(apperrors.Transient(ctxErr, "操作已超时或被取消"))
			}
			err = fn(ctx)
		}
		if err == nil {
			return nil
		}
		if errors.Is(err, circuitbreaker.ErrOpenState) {
			return backoff.Permanent(apperrors.Transient(err, "存储暂时不可用（熔断中）"))
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if !apperrors.IsAppError(err) {
				return backoff.Permanent(apperrors.Transient(err, "操作已超时或被取消"))
			}
		}
		if !p.retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		p.logger.Debug("瞬时错误，准备重试",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(operation, p.schedule(ctx), notify)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !apperrors.IsAppError(err) {
		return apperrors.Transient(ctxErr, "操作已超时或被取消")
	}
	return err
}

func (p *Policy) schedule(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.cfg.InitialInterval > 0 {
		eb.InitialInterval = p.cfg.InitialInterval
	}
	if p.cfg.MaxInterval > 0 {
		eb.MaxInterval = p.cfg.MaxInterval
	}
	if p.cfg.Multiplier > 0 {
		eb.Multiplier = p.cfg.Multiplier
	}
	// 次数由MaxAttempts控制，总时长由ctx控制
	eb.MaxElapsedTime = 0
	eb.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.cfg.MaxAttempts-1)), ctx)
}

// breaker 懒加载每类操作的熔断器
func (p *Policy) breaker(op string) *circuitbreaker.CircuitBreaker {
	if p.cfg.BreakerFailures == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if cb, ok := p.breakers[op]; ok {
		return cb
	}

	threshold := p.cfg.BreakerFailures
	cb := circuitbreaker.NewCircuitBreaker(op, circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    p.cfg.BreakerInterval,
		Timeout:     p.cfg.BreakerTimeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// 只有瞬时错误代表存储故障
		IsSuccessful: func(err error) bool {
			return err == nil || !p.retryable(err)
		},
	})

	logger := p.logger
	notify := p.onStateChange
	cb.SetStateChangeCallback(func(name string, from, to circuitbreaker.State) {
		logger.Warn("熔断器状态变化",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		if notify != nil {
			notify(name, from, to)
		}
	})

	p.breakers[op] = cb
	return cb
}

// BreakerState 查询某类操作的熔断器状态（未创建时视为CLOSED）
func (p *Policy) BreakerState(op string) circuitbreaker.State {
	p.mu.Lock()
	cb, ok := p.breakers[op]
	p.mu.Unlock()
	if !ok {
		return circuitbreaker.StateClosed
	}
	return cb.State()
}
