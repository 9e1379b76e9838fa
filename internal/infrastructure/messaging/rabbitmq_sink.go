package messaging

import (
	"context"
	"strings"

	"github.com/xiebiao/stockledger/internal/domain/stock"
	apperrors "github.com/xiebiao/stockledger/pkg/errors"
)

// AMQPPublisher RabbitMQ发布接口（*mq.Publisher实现）
type AMQPPublisher interface {
	Publish(ctx context.Context, routingKey string, message interface{}, headers map[string]interface{}) error
	Close() error
}

// RabbitMQSink 把库存事件发布到RabbitMQ
//
// 路由键：inventory.<小写事件类型>，如 inventory.stock_reserved
// 消费方可以绑定 inventory.# 接收全部事件，或只绑定关心的类型
type RabbitMQSink struct {
	publisher AMQPPublisher
	clock     stock.Clock
}

// NewRabbitMQSink 创建RabbitMQ事件出口
func NewRabbitMQSink(publisher AMQPPublisher, clock stock.Clock) *RabbitMQSink {
	if clock == nil {
		clock = stock.SystemClock{}
	}
	return &RabbitMQSink{publisher: publisher, clock: clock}
}

// RoutingKey 事件类型对应的路由键
func RoutingKey(eventType string) string {
	return "inventory." + strings.ToLower(eventType)
}

// Publish 发布事件
func (s *RabbitMQSink) Publish(ctx context.Context, eventType string, record *stock.StockRecord, extra map[string]interface{}) error {
	payload := stock.BuildEventPayload(eventType, record, extra, s.clock.Now())
	headers := map[string]interface{}{
		"event_type": eventType,
		"sku":        record.SKUCode,
	}
	if err := s.publisher.Publish(ctx, RoutingKey(eventType), payload, headers); err != nil {
		return apperrors.New(apperrors.ErrCodeEventPublish, "库存事件发布失败").WithErr(err)
	}
	return nil
}

// Close 关闭连接
func (s *RabbitMQSink) Close() error {
	return s.publisher.Close()
}
