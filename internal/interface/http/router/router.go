// Package router 注册HTTP路由
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/xiebiao/stockledger/internal/infrastructure/config"
	"github.com/xiebiao/stockledger/internal/interface/http/handler"
	"github.com/xiebiao/stockledger/internal/interface/http/middleware"
)

// New 创建Gin引擎并注册全部路由
//
//	GET  /ping
//	GET  /metrics
//	GET  /swagger/*any
//	     /api/v1/inventory/...   查询公开，变更需要Bearer Token
func New(cfg *config.Config, stockHandler *handler.StockHandler, auth *middleware.AuthMiddleware, logger *zap.Logger) *gin.Engine {
	switch cfg.Server.Mode {
	case gin.ReleaseMode, gin.TestMode:
		gin.SetMode(cfg.Server.Mode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(middleware.Logger(logger), gin.Recovery())
	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing(cfg.Tracing.ServiceName))
	}
	if cfg.Metrics.Enabled {
		r.Use(middleware.Metrics())
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.Handler()))
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"status":  "healthy",
		})
	})

	// 生产环境建议关闭或加访问控制
	if cfg.Server.Mode != gin.ReleaseMode {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	v1 := r.Group("/api/v1")
	inventory := v1.Group("/inventory")
	{
		// 查询
		inventory.GET("/low-stock", stockHandler.ListLowStock)
		inventory.GET("/restock-due", stockHandler.ListRestockDue)
		inventory.GET("/:sku", stockHandler.GetStock)
		inventory.GET("/:sku/status", stockHandler.GetStatus)
		inventory.GET("/:sku/movements", stockHandler.ListMovements)

		// 变更（需要操作员Token）
		writes := inventory.Group("")
		writes.Use(auth.RequireAuth())
		{
			writes.POST("", stockHandler.CreateStock)
			writes.POST("/reservations/batch", stockHandler.BatchReserve)
			writes.POST("/:sku/adjust", stockHandler.AdjustStock)
			writes.POST("/:sku/reserve", stockHandler.ReserveStock)
			writes.POST("/:sku/release", stockHandler.ReleaseStock)
			writes.POST("/:sku/consume", stockHandler.ConsumeStock)
			writes.POST("/:sku/restock", stockHandler.Restock)
		}
	}

	return r
}
