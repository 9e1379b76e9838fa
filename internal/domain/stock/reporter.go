package stock

import "time"

// Reporter 指标上报接口（fire-and-forget，不返回错误）
type Reporter interface {
	ObserveOperation(operation, result string, elapsed time.Duration)
	SetAvailable(sku string, available int)
	IncLowStockAlert(sku string)
	IncOutOfStockAlert(sku string)
	IncEventPublish(eventType, result string)
}

// NopReporter 空实现
type NopReporter struct{}

func (NopReporter) ObserveOperation(string, string, time.Duration) {}
func (NopReporter) SetAvailable(string, int)                       {}
func (NopReporter) IncLowStockAlert(string)                        {}
func (NopReporter) IncOutOfStockAlert(string)                      {}
func (NopReporter) IncEventPublish(string, string)                 {}
