package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xiebiao/stockledger/internal/domain/stock"
)

// ErrSinkClosed AsyncSink已关闭
var ErrSinkClosed = errors.New("事件队列已关闭")

// QueueReporter 队列深度指标（可选）
type QueueReporter interface {
	SetEventQueueDepth(depth int)
	IncEventPublish(eventType, result string)
}

type queuedEvent struct {
	ctx       context.Context
	eventType string
	record    *stock.StockRecord
	extra     map[string]interface{}
}

// AsyncSink 异步事件出口
//
// 设计说明：
// 1. Publish只把事件放入有界队列，立即返回，慢速Broker不会拖慢库存操作
// 2. 队列满时丢弃事件并记录日志（事件是尽力而为的通知）
// 3. worker使用各自的超时调用下游Sink，下游失败只记录日志
// 4. Close停止接收新事件，等待队列中的事件投递完毕
type AsyncSink struct {
	next     stock.EventSink
	queue    chan queuedEvent
	timeout  time.Duration
	logger   *zap.Logger
	reporter QueueReporter

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncSink 启动workers个goroutine消费队列
func NewAsyncSink(next stock.EventSink, bufferSize, workers int, timeout time.Duration, logger *zap.Logger, reporter QueueReporter) *AsyncSink {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &AsyncSink{
		next:     next,
		queue:    make(chan queuedEvent, bufferSize),
		timeout:  timeout,
		logger:   logger,
		reporter: reporter,
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// Publish 入队，队列满返回错误（调用方记录日志后丢弃）
func (s *AsyncSink) Publish(ctx context.Context, eventType string, record *stock.StockRecord, extra map[string]interface{}) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrSinkClosed
	}

	ev := queuedEvent{
		ctx:       context.WithoutCancel(ctx),
		eventType: eventType,
		record:    record.Clone(),
		extra:     extra,
	}
	select {
	case s.queue <- ev:
		s.reportDepth()
		return nil
	default:
		s.logger.Warn("事件队列已满,丢弃事件",
			zap.String("event_type", eventType),
			zap.String("sku", record.SKUCode),
		)
		return errors.New("事件队列已满")
	}
}

// Close 停止接收并等待队列排空
func (s *AsyncSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
	if c, ok := s.next.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Len 队列中待投递的事件数
func (s *AsyncSink) Len() int {
	return len(s.queue)
}

func (s *AsyncSink) worker() {
	defer s.wg.Done()
	for ev := range s.queue {
		s.reportDepth()
		s.deliver(ev)
	}
}

func (s *AsyncSink) deliver(ev queuedEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("事件投递panic", zap.String("event_type", ev.eventType), zap.Any("panic", r))
			s.reportResult(ev.eventType, "failure")
		}
	}()

	ctx := ev.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.next.Publish(ctx, ev.eventType, ev.record, ev.extra); err != nil {
		s.logger.Warn("异步事件投递失败",
			zap.String("event_type", ev.eventType),
			zap.String("sku", ev.record.SKUCode),
			zap.Error(err),
		)
		s.reportResult(ev.eventType, "failure")
		return
	}
	s.reportResult(ev.eventType, "delivered")
}

func (s *AsyncSink) reportDepth() {
	if s.reporter != nil {
		s.reporter.SetEventQueueDepth(len(s.queue))
	}
}

func (s *AsyncSink) reportResult(eventType, result string) {
	if s.reporter != nil {
		s.reporter.IncEventPublish(eventType, result)
	}
}
