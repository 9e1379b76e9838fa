package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errStoreDown   = errors.New("store unavailable")
	errGuardFailed = errors.New("insufficient stock")
)

func newTestBreaker(failures uint32, timeout time.Duration) *CircuitBreaker {
	return NewCircuitBreaker("test", Config{
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
	})
}

// TestCircuitBreaker_ClosedState 测试关闭状态（正常）
func TestCircuitBreaker_ClosedState(t *testing.T) {
	cb := newTestBreaker(5, 30*time.Second)

	for i := 0; i < 10; i++ {
		require.NoError(t, cb.Execute(func() error { return nil }))
	}

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(10), cb.Counts().TotalSuccesses)
}

// TestCircuitBreaker_OpenState 测试打开状态（熔断）
func TestCircuitBreaker_OpenState(t *testing.T) {
	cb := newTestBreaker(5, 30*time.Second)

	for i := 0; i < 5; i++ {
		_ = cb.Execute(func() error { return errStoreDown })
	}
	require.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, ErrOpenState)
	assert.False(t, called, "熔断器打开时不应该调用实际函数")
}

// TestCircuitBreaker_HalfOpenState 测试半开状态探测成功后恢复
func TestCircuitBreaker_HalfOpenState(t *testing.T) {
	cb := newTestBreaker(3, 100*time.Millisecond)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errStoreDown })
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})

	assert.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, StateClosed, cb.State())
}

// TestCircuitBreaker_HalfOpenToOpen 测试半开状态失败后转回打开
func TestCircuitBreaker_HalfOpenToOpen(t *testing.T) {
	cb := newTestBreaker(3, 100*time.Millisecond)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errStoreDown })
	}

	time.Sleep(150 * time.Millisecond)
	_ = cb.Execute(func() error { return errStoreDown })

	assert.Equal(t, StateOpen, cb.State())
}

// TestCircuitBreaker_StateChangeCallback 测试状态变化回调
func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	changes := make([]string, 0)

	cb := newTestBreaker(3, 100*time.Millisecond)
	cb.SetStateChangeCallback(func(name string, from State, to State) {
		changes = append(changes, from.String()+"->"+to.String())
	})

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errStoreDown })
	}

	time.Sleep(150 * time.Millisecond)
	_ = cb.Execute(func() error { return nil })

	assert.Equal(t, []string{"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->CLOSED"}, changes)
}

// TestCircuitBreaker_FailureRate 测试基于失败率的熔断
func TestCircuitBreaker_FailureRate(t *testing.T) {
	cb := NewCircuitBreaker("test", Config{
		MaxRequests: 3,
		Interval:    time.Hour,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts Counts) bool {
			return counts.Requests >= 10 && counts.FailureRate() > 0.5
		},
	})

	// 4次成功，6次失败（失败率60%）
	for i := 0; i < 10; i++ {
		index := i
		_ = cb.Execute(func() error {
			if index < 4 {
				return nil
			}
			return errStoreDown
		})
	}

	assert.Equal(t, StateOpen, cb.State())
}

// TestCircuitBreaker_IsSuccessful 业务守卫失败不计入故障
func TestCircuitBreaker_IsSuccessful(t *testing.T) {
	cb := NewCircuitBreaker("reserve", Config{
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errGuardFailed)
		},
	})

	for i := 0; i < 10; i++ {
		err := cb.Execute(func() error { return errGuardFailed })
		assert.ErrorIs(t, err, errGuardFailed, "业务错误应原样返回")
	}
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(10), cb.Counts().TotalSuccesses)

	_ = cb.Execute(func() error { return errStoreDown })
	_ = cb.Execute(func() error { return errStoreDown })
	assert.Equal(t, StateOpen, cb.State())
}

// TestCircuitBreaker_ExecuteContext 已取消的Context不会执行请求
func TestCircuitBreaker_ExecuteContext(t *testing.T) {
	cb := newTestBreaker(3, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := cb.ExecuteContext(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.Equal(t, uint32(0), cb.Counts().Requests)
}

// TestCircuitBreaker_Defaults 零值配置使用默认策略
func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("defaults", Config{})

	for i := 0; i < 5; i++ {
		_ = cb.Execute(func() error { return errStoreDown })
	}
	assert.Equal(t, StateClosed, cb.State(), "默认连续失败超过5次才熔断")

	_ = cb.Execute(func() error { return errStoreDown })
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, "defaults", cb.Name())
}

// stockStoreClient 模拟不稳定的库存存储
type stockStoreClient struct {
	failCount int
	callCount int
}

func (c *stockStoreClient) ReserveQuantity(sku string, quantity int) error {
	c.callCount++
	if c.callCount <= c.failCount {
		return errStoreDown
	}
	return nil
}

// TestCircuitBreaker_StoreOutage 存储故障期间快速失败，恢复后重新放行
func TestCircuitBreaker_StoreOutage(t *testing.T) {
	client := &stockStoreClient{failCount: 5}

	cb := NewCircuitBreaker("stock-store", Config{
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     200 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	cb.SetStateChangeCallback(func(name string, from State, to State) {
		t.Logf("[%s] 状态变化: %s -> %s", name, from, to)
	})

	for i := 1; i <= 10; i++ {
		_ = cb.Execute(func() error {
			return client.ReserveQuantity("SKU-001", 2)
		})
	}

	// 前5次失败触发熔断，后5次快速失败
	assert.Equal(t, 5, client.callCount)

	time.Sleep(250 * time.Millisecond)

	err := cb.Execute(func() error {
		return client.ReserveQuantity("SKU-001", 2)
	})
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

// BenchmarkCircuitBreaker 性能基准测试
func BenchmarkCircuitBreaker(b *testing.B) {
	cb := newTestBreaker(5, 30*time.Second)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cb.Execute(func() error {
			return nil
		})
	}
}
