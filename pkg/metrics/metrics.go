// Package metrics 定义库存服务的Prometheus指标
//
// 指标分类：
// 1. HTTP层：请求数、耗时、并发数
// 2. 库存操作：按操作类型统计结果和耗时，按SKU记录可用库存
// 3. 告警：低库存、缺货计数
// 4. 可靠性：熔断器状态、Saga执行与补偿、事件投递结果
//
// 标签基数：只有stock_available_quantity按SKU打标签（一个SKU一条时间序列），
// 其余指标的标签都是有限枚举值。
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	initOnce sync.Once

	// HTTP指标
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
	HTTPRequestsInProgress prometheus.Gauge

	// 库存操作指标
	StockOperationsTotal   *prometheus.CounterVec
	StockOperationDuration *prometheus.HistogramVec
	StockAvailable         *prometheus.GaugeVec
	LowStockAlertsTotal    prometheus.Counter
	OutOfStockAlertsTotal  prometheus.Counter

	// 可靠性指标
	CircuitBreakerState    *prometheus.GaugeVec
	SagaExecutionsTotal    *prometheus.CounterVec
	SagaCompensationsTotal prometheus.Counter
	EventsPublishedTotal   *prometheus.CounterVec
	EventQueueDepth        prometheus.Gauge
)

// InitMetrics 注册所有指标（幂等）
func InitMetrics() {
	initOnce.Do(register)
}

func register() {
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP请求总数",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP请求耗时（秒）",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_progress",
			Help: "正在处理的HTTP请求数",
		},
	)

	StockOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_operations_total",
			Help: "库存操作总数",
		},
		[]string{"operation", "result"}, // result: success/not_found/insufficient/invalid/transient/error
	)

	StockOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stock_operation_duration_seconds",
			Help:    "库存操作耗时（秒，含重试）",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"operation"},
	)

	StockAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stock_available_quantity",
			Help: "SKU当前可用库存",
		},
		[]string{"sku"},
	)

	LowStockAlertsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stock_low_stock_alerts_total",
			Help: "低库存告警次数",
		},
	)

	OutOfStockAlertsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stock_out_of_stock_alerts_total",
			Help: "缺货告警次数",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "熔断器状态（0=CLOSED, 1=OPEN, 2=HALF_OPEN）",
		},
		[]string{"name"},
	)

	SagaExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_executions_total",
			Help: "批量预留Saga执行总数",
		},
		[]string{"result"},
	)

	SagaCompensationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "saga_compensations_total",
			Help: "Saga补偿执行总数",
		},
	)

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_events_published_total",
			Help: "库存事件投递总数",
		},
		[]string{"event_type", "result"}, // result: success/failure/dropped
	)

	EventQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stock_event_queue_depth",
			Help: "异步事件队列中等待投递的事件数",
		},
	)
}

// ==================== 辅助函数 ====================

// IncCounterVec 递增带标签的Counter
func IncCounterVec(counter *prometheus.CounterVec, labels map[string]string) {
	counter.With(labels).Inc()
}

// SetGaugeVec 设置带标签的Gauge
func SetGaugeVec(gauge *prometheus.GaugeVec, labels map[string]string, value float64) {
	gauge.With(labels).Set(value)
}

// ObserveHistogramVec 记录带标签的Histogram观测值
func ObserveHistogramVec(histogram *prometheus.HistogramVec, labels map[string]string, value float64) {
	histogram.With(labels).Observe(value)
}
