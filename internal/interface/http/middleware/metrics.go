package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xiebiao/stockledger/pkg/metrics"
)

// Metrics HTTP指标中间件
//
// path标签使用路由模板（/api/v1/inventory/:sku），避免按SKU产生无限多的时间序列
func Metrics() gin.HandlerFunc {
	metrics.InitMetrics()
	return func(c *gin.Context) {
		metrics.HTTPRequestsInProgress.Inc()
		start := time.Now()

		c.Next()

		metrics.HTTPRequestsInProgress.Dec()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
