package saga

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordStep(log *[]string, name string, err error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		*log = append(*log, name)
		return err
	}
}

// TestSaga_Execute_Success 测试所有步骤成功的场景
func TestSaga_Execute_Success(t *testing.T) {
	executed := make([]string, 0)

	s := NewSaga(5*time.Second, nil)
	s.AddStep("SKU-A", recordStep(&executed, "预留A", nil), recordStep(&executed, "释放A", nil))
	s.AddStep("SKU-B", recordStep(&executed, "预留B", nil), recordStep(&executed, "释放B", nil))

	require.NoError(t, s.Execute(context.Background()))

	assert.Equal(t, []string{"预留A", "预留B"}, executed)
	assert.Equal(t, []string{"SKU-A", "SKU-B"}, s.Executed())
}

// TestSaga_Execute_FailureAndCompensate 测试步骤失败触发逆序补偿
func TestSaga_Execute_FailureAndCompensate(t *testing.T) {
	executed := make([]string, 0)
	errShort := errors.New("可用库存不足")

	s := NewSaga(5*time.Second, nil)
	s.AddStep("SKU-A", recordStep(&executed, "预留A", nil), recordStep(&executed, "释放A", nil))
	s.AddStep("SKU-B", recordStep(&executed, "预留B", nil), recordStep(&executed, "释放B", nil))
	s.AddStep("SKU-C", recordStep(&executed, "预留C", errShort), recordStep(&executed, "释放C", nil))

	err := s.Execute(context.Background())
	require.Error(t, err)

	assert.Equal(t, []string{"预留A", "预留B", "预留C", "释放B", "释放A"}, executed)
	assert.ErrorIs(t, err, errShort)

	stepErr, ok := IsStepError(err)
	require.True(t, ok)
	assert.Equal(t, 2, stepErr.Index)
	assert.Equal(t, "SKU-C", stepErr.Name)
	assert.Empty(t, s.Executed())
}

// TestSaga_Execute_Timeout 测试超时触发补偿
func TestSaga_Execute_Timeout(t *testing.T) {
	executed := make([]string, 0)

	s := NewSaga(50*time.Millisecond, nil)
	s.AddStep("快速步骤", recordStep(&executed, "快速步骤", nil), recordStep(&executed, "补偿快速步骤", nil))
	s.AddStep("慢步骤",
		func(ctx context.Context) error {
			executed = append(executed, "慢步骤")
			select {
			case <-time.After(time.Second):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		recordStep(&executed, "补偿慢步骤", nil),
	)

	err := s.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"快速步骤", "慢步骤", "补偿快速步骤"}, executed)
}

// TestSaga_CompensationFailureContinues 单个补偿失败不影响其他补偿
func TestSaga_CompensationFailureContinues(t *testing.T) {
	executed := make([]string, 0)
	errRelease := errors.New("release failed")

	s := NewSaga(0, nil)
	s.AddStep("SKU-A", recordStep(&executed, "预留A", nil), recordStep(&executed, "释放A", nil))
	s.AddStep("SKU-B", recordStep(&executed, "预留B", nil), recordStep(&executed, "释放B", errRelease))
	s.AddStep("SKU-C", recordStep(&executed, "预留C", errors.New("boom")), nil)

	require.Error(t, s.Execute(context.Background()))

	assert.Equal(t, []string{"预留A", "预留B", "预留C", "释放B", "释放A"}, executed)
	require.Len(t, s.CompensationErrors(), 1)
	assert.ErrorIs(t, s.CompensationErrors()[0], errRelease)
}

// TestSaga_CompensateUsesDetachedContext 原请求被取消后补偿仍能执行
func TestSaga_CompensateUsesDetachedContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var compensateCtxErr error
	s := NewSaga(0, nil)
	s.AddStep("SKU-A",
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error {
			compensateCtxErr = ctx.Err()
			return nil
		},
	)
	s.AddStep("SKU-B",
		func(ctx context.Context) error {
			cancel()
			return ctx.Err()
		},
		nil,
	)

	require.Error(t, s.Execute(ctx))
	assert.NoError(t, compensateCtxErr)
}

// BenchmarkSaga_Execute 基准测试
func BenchmarkSaga_Execute(b *testing.B) {
	noop := func(ctx context.Context) error { return nil }
	for i := 0; i < b.N; i++ {
		s := NewSaga(time.Second, nil)
		s.AddStep("a", noop, noop)
		s.AddStep("b", noop, noop)
		_ = s.Execute(context.Background())
	}
}
