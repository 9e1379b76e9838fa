package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"github.com/xiebiao/stockledger/internal/domain/stock"
	apperrors "github.com/xiebiao/stockledger/pkg/errors"
)

// MessageWriter Kafka写入接口（*kafka.Writer实现）
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter 创建Kafka Writer
func NewKafkaWriter(brokers []string, topic string, batchTimeout time.Duration) *kafka.Writer {
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // 按key分区，同一SKU的事件有序
		BatchTimeout: batchTimeout,
		BatchSize:    100,
		RequiredAcks: kafka.RequireAll,
	}
}

// KafkaSink 把库存事件写入Kafka
type KafkaSink struct {
	writer MessageWriter
	clock  stock.Clock
}

// NewKafkaSink 创建Kafka事件出口
func NewKafkaSink(writer MessageWriter, clock stock.Clock) *KafkaSink {
	if clock == nil {
		clock = stock.SystemClock{}
	}
	return &KafkaSink{writer: writer, clock: clock}
}

// Publish 写入事件
// key = SKU；消息头带event_type和链路追踪上下文（traceparent）
func (s *KafkaSink) Publish(ctx context.Context, eventType string, record *stock.StockRecord, extra map[string]interface{}) error {
	payload := stock.BuildEventPayload(eventType, record, extra, s.clock.Now())
	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.New(apperrors.ErrCodeEventPublish, "库存事件序列化失败").WithErr(err)
	}

	carrier := headerCarrier{{Key: "event_type", Value: []byte(eventType)}}
	otel.GetTextMapPropagator().Inject(ctx, &carrier)

	msg := kafka.Message{
		Key:     []byte(record.SKUCode),
		Value:   body,
		Headers: carrier,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return apperrors.New(apperrors.ErrCodeEventPublish, "库存事件发布失败").WithErr(err)
	}
	return nil
}

// Close 刷新缓冲并关闭
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// headerCarrier 把Kafka消息头适配为propagation.TextMapCarrier
type headerCarrier []kafka.Header

func (c *headerCarrier) Get(key string) string {
	for _, h := range *c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range *c {
		if h.Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c))
	for _, h := range *c {
		keys = append(keys, h.Key)
	}
	return keys
}
