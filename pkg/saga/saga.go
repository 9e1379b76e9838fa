// Package saga 实现轻量的Saga编排：按顺序执行步骤，失败时逆序补偿
//
// Saga模式核心思想：
// 1. 将跨多个资源的操作拆分为多个本地短事务
// 2. 每个短事务有对应的补偿操作
// 3. 如果某步失败，按逆序执行已完成步骤的补偿操作
//
// 注意：Saga只提供"尽力而为"的最终一致性，补偿期间其他请求可以看到中间状态。
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Step 表示Saga中的一个步骤
//
// Action和Compensate都必须幂等（允许重试）
type Step struct {
	Name       string                          // 步骤名称（用于日志和调试）
	Action     func(ctx context.Context) error // 正向操作
	Compensate func(ctx context.Context) error // 补偿操作（可为nil）
}

// StepError 某个步骤的正向操作失败
type StepError struct {
	Index int
	Name  string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("步骤[%d:%s]执行失败: %v", e.Index, e.Name, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// CompensationError 补偿失败的步骤（需要人工介入）
type CompensationError struct {
	Name string
	Err  error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("补偿[%s]失败: %v", e.Name, e.Err)
}

func (e *CompensationError) Unwrap() error {
	return e.Err
}

// Saga 表示一个Saga事务（不可并发执行，每次编排新建一个）
type Saga struct {
	steps    []Step
	executed []Step
	timeout  time.Duration
	logger   *zap.Logger

	compensationErrors []error
}

// NewSaga 创建一个新的Saga事务
//
// 示例：
//
//	s := saga.NewSaga(5*time.Second, logger)
//	s.AddStep("SKU-001", reserveA, releaseA)
//	s.AddStep("SKU-002", reserveB, releaseB)
//	err := s.Execute(ctx)
func NewSaga(timeout time.Duration, logger *zap.Logger) *Saga {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saga{
		steps:   make([]Step, 0),
		timeout: timeout,
		logger:  logger,
	}
}

// AddStep 添加一个Saga步骤（按添加顺序执行，按逆序补偿）
func (s *Saga) AddStep(name string, action, compensate func(ctx context.Context) error) {
	s.steps = append(s.steps, Step{
		Name:       name,
		Action:     action,
		Compensate: compensate,
	})
}

// Execute 执行Saga事务
//
// 任一步骤失败（或整体超时）时，逆序补偿已完成的步骤并返回*StepError。
// 补偿使用独立的Context（不受原请求取消影响），补偿失败记录日志并通过
// CompensationErrors暴露。
func (s *Saga) Execute(ctx context.Context) error {
	s.executed = nil
	s.compensationErrors = nil

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	for i, step := range s.steps {
		if err := ctx.Err(); err != nil {
			s.compensate(context.WithoutCancel(ctx))
			return &StepError{Index: i, Name: step.Name, Err: fmt.Errorf("saga超时: %w", err)}
		}

		if step.Action != nil {
			if err := step.Action(ctx); err != nil {
				s.compensate(context.WithoutCancel(ctx))
				return &StepError{Index: i, Name: step.Name, Err: err}
			}
		}

		s.executed = append(s.executed, step)
	}

	return nil
}

// Executed 已成功执行（且未被补偿）的步骤名
func (s *Saga) Executed() []string {
	names := make([]string, 0, len(s.executed))
	for _, step := range s.executed {
		names = append(names, step.Name)
	}
	return names
}

// CompensationErrors 最近一次Execute中补偿失败的步骤
func (s *Saga) CompensationErrors() []error {
	return s.compensationErrors
}

// compensate 逆序执行已完成步骤的补偿，单个补偿失败不影响后续补偿
func (s *Saga) compensate(ctx context.Context) {
	for i := len(s.executed) - 1; i >= 0; i-- {
		step := s.executed[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			s.logger.Error("saga补偿失败，需人工介入",
				zap.String("step", step.Name),
				zap.Error(err),
			)
			s.compensationErrors = append(s.compensationErrors, &CompensationError{Name: step.Name, Err: err})
		}
	}

	s.executed = nil
}

// IsStepError 提取失败步骤
func IsStepError(err error) (*StepError, bool) {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr, true
	}
	return nil, false
}
