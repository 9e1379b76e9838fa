package metrics

import "time"

// StockReporter 把库存操作结果写入Prometheus
//
// 所有方法都是fire-and-forget，不返回错误，也不会阻塞库存操作
type StockReporter struct{}

// NewStockReporter 创建Reporter（确保指标已注册）
func NewStockReporter() *StockReporter {
	InitMetrics()
	return &StockReporter{}
}

// ObserveOperation 记录一次库存操作的结果和耗时
func (r *StockReporter) ObserveOperation(operation, result string, elapsed time.Duration) {
	StockOperationsTotal.WithLabelValues(operation, result).Inc()
	StockOperationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// SetAvailable 更新SKU可用库存
func (r *StockReporter) SetAvailable(sku string, available int) {
	StockAvailable.WithLabelValues(sku).Set(float64(available))
}

// IncLowStockAlert 低库存告警
func (r *StockReporter) IncLowStockAlert(sku string) {
	LowStockAlertsTotal.Inc()
}

// IncOutOfStockAlert 缺货告警
func (r *StockReporter) IncOutOfStockAlert(sku string) {
	OutOfStockAlertsTotal.Inc()
}

// IncEventPublish 记录事件投递结果
func (r *StockReporter) IncEventPublish(eventType, result string) {
	EventsPublishedTotal.WithLabelValues(eventType, result).Inc()
}

// SetEventQueueDepth 异步事件队列深度
func (r *StockReporter) SetEventQueueDepth(depth int) {
	EventQueueDepth.Set(float64(depth))
}

// ObserveSaga 记录批量预留的执行结果和补偿次数
func (r *StockReporter) ObserveSaga(result string, compensations int) {
	SagaExecutionsTotal.WithLabelValues(result).Inc()
	if compensations > 0 {
		SagaCompensationsTotal.Add(float64(compensations))
	}
}

// SetCircuitState 熔断器状态（0=CLOSED, 1=OPEN, 2=HALF_OPEN）
func (r *StockReporter) SetCircuitState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
