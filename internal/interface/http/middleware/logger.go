package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xiebiao/stockledger/pkg/tracing"
)

const (
	// HeaderRequestID 请求ID头，上游传入时沿用
	HeaderRequestID = "X-Request-ID"
	ctxRequestID    = "request_id"

	slowRequestThreshold = 3 * time.Second
)

// Logger 请求日志中间件
//
// 1. 生成（或沿用上游的）请求ID，写入响应头
// 2. 请求结束后输出一条结构化访问日志
// 3. response.Error挂到c.Errors上的内部错误在这里统一记录
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(ctxRequestID, requestID)
		c.Header(HeaderRequestID, requestID)

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		}
		if op := GetOperator(c); op != "" {
			fields = append(fields, zap.String("operator", op))
		}
		if traceID := tracing.ExtractTraceID(c.Request.Context()); traceID != "" {
			fields = append(fields, zap.String("trace_id", traceID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Error("HTTP请求", fields...)
		case status >= 400:
			logger.Warn("HTTP请求", fields...)
		default:
			logger.Info("HTTP请求", fields...)
		}

		if latency > slowRequestThreshold {
			logger.Warn("慢请求", zap.String("request_id", requestID), zap.String("path", c.Request.URL.Path), zap.Duration("latency", latency))
		}
	}
}

// GetRequestID 当前请求ID
func GetRequestID(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}
