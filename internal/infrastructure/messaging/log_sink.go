// Package messaging 库存事件出口的实现
//
//	LogSink       记录到日志（本地开发）
//	RabbitMQSink  发布到topic exchange，路由键 inventory.<事件类型>
//	KafkaSink     写入topic，消息key为SKU（同一SKU的事件落在同一分区，保持顺序）
//	AsyncSink     有界队列+worker，包装以上任意一种
package messaging

import (
	"context"

	"go.uber.org/zap"

	"github.com/xiebiao/stockledger/internal/domain/stock"
)

// LogSink 把事件写入日志
type LogSink struct {
	logger *zap.Logger
	clock  stock.Clock
}

// NewLogSink 创建日志事件出口
func NewLogSink(logger *zap.Logger, clock stock.Clock) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = stock.SystemClock{}
	}
	return &LogSink{logger: logger, clock: clock}
}

// Publish 记录事件
func (s *LogSink) Publish(_ context.Context, eventType string, record *stock.StockRecord, extra map[string]interface{}) error {
	payload := stock.BuildEventPayload(eventType, record, extra, s.clock.Now())
	s.logger.Info("库存事件",
		zap.String("event_type", eventType),
		zap.String("sku", record.SKUCode),
		zap.Any("payload", payload),
	)
	return nil
}
