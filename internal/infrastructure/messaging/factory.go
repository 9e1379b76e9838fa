package messaging

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xiebiao/stockledger/internal/domain/stock"
	"github.com/xiebiao/stockledger/internal/infrastructure/config"
	"github.com/xiebiao/stockledger/pkg/mq"
)

// Sink 可关闭的事件出口
type Sink interface {
	stock.EventSink
	Close() error
}

type nopCloser struct {
	stock.EventSink
}

func (nopCloser) Close() error { return nil }

// NewEventSink 按配置创建事件出口
//
//	events.driver: log | rabbitmq | kafka
//	events.async:  true时外面包一层AsyncSink
func NewEventSink(cfg *config.Config, logger *zap.Logger, reporter QueueReporter) (Sink, error) {
	var sink Sink
	switch cfg.Events.Driver {
	case "", "log":
		sink = nopCloser{NewLogSink(logger, nil)}
	case "rabbitmq":
		rc := cfg.Events.RabbitMQ
		publisher, err := mq.NewPublisher(rc.URL, rc.Exchange, rc.ExchangeType)
		if err != nil {
			return nil, err
		}
		sink = NewRabbitMQSink(publisher, nil)
	case "kafka":
		kc := cfg.Events.Kafka
		sink = NewKafkaSink(NewKafkaWriter(kc.Brokers, kc.Topic, kc.BatchTimeout), nil)
	default:
		return nil, fmt.Errorf("不支持的事件驱动: %s", cfg.Events.Driver)
	}

	if cfg.Events.Async {
		return NewAsyncSink(sink, cfg.Events.BufferSize, cfg.Events.Workers, cfg.Ledger.EventPublishTimeout, logger, reporter), nil
	}
	return sink, nil
}
