// @title           Stock Ledger API
// @version         1.0
// @description     库存账本服务：库存记录、预留/释放/消耗、补货与库存流水
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appstock "github.com/xiebiao/stockledger/internal/application/stock"
	"github.com/xiebiao/stockledger/internal/infrastructure/config"
	"github.com/xiebiao/stockledger/internal/interface/http/handler"
	"github.com/xiebiao/stockledger/internal/interface/http/middleware"
	"github.com/xiebiao/stockledger/internal/interface/http/router"
	"github.com/xiebiao/stockledger/pkg/tracing"
)

// main 主程序入口
// 配置文件路径：STOCKLEDGER_CONFIG，为空时按默认路径查找
func main() {
	cfg, err := config.Load(os.Getenv("STOCKLEDGER_CONFIG"))
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	engine, logger, cleanup, err := buildApp(cfg)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	defer cleanup()

	logger.Info("配置加载成功",
		zap.Int("port", cfg.Server.Port),
		zap.String("mode", cfg.Server.Mode),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Bool("redis_cache", cfg.Redis.Enabled),
		zap.String("events", cfg.Events.Driver),
	)

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.InitTracer(context.Background(), tracing.Options{
			ServiceName: cfg.Tracing.ServiceName,
			Endpoint:    cfg.Tracing.Endpoint,
			SampleRatio: cfg.Tracing.SampleRatio,
			Insecure:    cfg.Tracing.Insecure,
		})
		if err != nil {
			logger.Fatal("初始化链路追踪失败", zap.Error(err))
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("关闭链路追踪失败", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("服务启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("启动服务失败", zap.Error(err))
		}
	}()

	// 优雅关闭：停止接收新请求，等待进行中的库存操作完成
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("正在关闭服务...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("关闭服务超时", zap.Error(err))
	}
}

// buildApp 手动依赖注入（与wire.go中的InitializeApp等价）
//
//	Repository ← LedgerService/QueryService ← Handler ← Router
func buildApp(cfg *config.Config) (*gin.Engine, *zap.Logger, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*gin.Engine, *zap.Logger, func(), error) {
		cleanup()
		return nil, nil, nil, err
	}

	logger, logCleanup, err := provideLogger(cfg)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, logCleanup)

	// 基础设施层
	db, dbCleanup, err := provideDB(cfg, logger)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, dbCleanup)

	reporter := provideReporter()

	store, storeCleanup, err := provideStockStore(cfg, db, logger)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, storeCleanup)

	sink, sinkCleanup, err := provideEventSink(cfg, logger, reporter)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, sinkCleanup)

	movements := provideMovementRepository(db)
	txManager := provideTxManager(db)
	policy := provideRetryPolicy(cfg, logger, reporter)

	// 应用层
	ledger := provideLedgerService(cfg, store, movements, txManager, sink, reporter, policy, logger)
	query := appstock.NewQueryService(store, movements)

	// 接口层
	authMiddleware := middleware.NewAuthMiddleware(provideJWTManager(cfg))
	stockHandler := handler.NewStockHandler(ledger, query)

	return router.New(cfg, stockHandler, authMiddleware, logger), logger, cleanup, nil
}
