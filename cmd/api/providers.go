package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	appstock "github.com/xiebiao/stockledger/internal/application/stock"
	"github.com/xiebiao/stockledger/internal/domain/stock"
	"github.com/xiebiao/stockledger/internal/infrastructure/config"
	"github.com/xiebiao/stockledger/internal/infrastructure/messaging"
	"github.com/xiebiao/stockledger/internal/infrastructure/persistence/mysql"
	"github.com/xiebiao/stockledger/internal/infrastructure/persistence/redis"
	"github.com/xiebiao/stockledger/pkg/circuitbreaker"
	"github.com/xiebiao/stockledger/pkg/jwt"
	"github.com/xiebiao/stockledger/pkg/logger"
	"github.com/xiebiao/stockledger/pkg/metrics"
	"github.com/xiebiao/stockledger/pkg/retry"
)

// 自定义Provider
// 构造函数的参数不能直接从已有类型得到（需要从Config中提取，或者需要清理函数）时写在这里，
// main.go手动组装和wire.go注入器共用

func provideLogger(cfg *config.Config) (*zap.Logger, func(), error) {
	log, err := logger.New(logger.Options{
		Level:        cfg.Log.Level,
		Format:       cfg.Log.Format,
		Output:       cfg.Log.Output,
		EnableCaller: cfg.Log.EnableCaller,
	})
	if err != nil {
		return nil, nil, err
	}
	return log, func() { _ = log.Sync() }, nil
}

func provideDB(cfg *config.Config, log *zap.Logger) (*gorm.DB, func(), error) {
	db, err := mysql.NewDB(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return db, cleanup, nil
}

func provideReporter() *metrics.StockReporter {
	return metrics.NewStockReporter()
}

// provideStockStore 数据库仓储，redis.enabled时外面包一层缓存
func provideStockStore(cfg *config.Config, db *gorm.DB, log *zap.Logger) (stock.Store, func(), error) {
	repo := mysql.NewStockRepository(db, stock.SystemClock{})
	if !cfg.Redis.Enabled {
		return repo, func() {}, nil
	}

	client, err := redis.NewClient(context.Background(), cfg, log)
	if err != nil {
		return nil, nil, err
	}
	cache := redis.NewStockCache(repo, client, cfg.Redis.CacheTTL, cfg.Redis.KeyPrefix, log)
	return cache, func() { _ = client.Close() }, nil
}

func provideMovementRepository(db *gorm.DB) stock.MovementRepository {
	return mysql.NewMovementRepository(db)
}

func provideTxManager(db *gorm.DB) stock.TxManager {
	return mysql.NewTxManager(db)
}

func provideEventSink(cfg *config.Config, log *zap.Logger, reporter *metrics.StockReporter) (messaging.Sink, func(), error) {
	sink, err := messaging.NewEventSink(cfg, log, reporter)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化事件出口失败: %w", err)
	}
	cleanup := func() {
		if err := sink.Close(); err != nil {
			log.Warn("关闭事件出口失败", zap.Error(err))
		}
	}
	return sink, cleanup, nil
}

// provideRetryPolicy 熔断器状态变化同步到Prometheus
func provideRetryPolicy(cfg *config.Config, log *zap.Logger, reporter *metrics.StockReporter) *retry.Policy {
	rc := cfg.Retry
	policy := retry.NewPolicy(retry.Config{
		MaxAttempts:     rc.MaxAttempts,
		InitialInterval: rc.InitialInterval,
		MaxInterval:     rc.MaxInterval,
		Multiplier:      rc.Multiplier,
		BreakerFailures: rc.BreakerFailures,
		BreakerInterval: rc.BreakerInterval,
		BreakerTimeout:  rc.BreakerTimeout,
	}, nil, log)
	policy.OnStateChange(func(name string, from, to circuitbreaker.State) {
		log.Warn("熔断器状态变化",
			zap.String("name", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		reporter.SetCircuitState(name, int(to))
	})
	return policy
}

func provideLedgerService(
	cfg *config.Config,
	store stock.Store,
	movements stock.MovementRepository,
	txManager stock.TxManager,
	sink messaging.Sink,
	reporter *metrics.StockReporter,
	policy *retry.Policy,
	log *zap.Logger,
) *appstock.LedgerService {
	return appstock.NewLedgerService(store, movements, txManager, sink, reporter, policy, stock.SystemClock{}, appstock.LedgerConfig{
		OperationTimeout:    cfg.Ledger.OperationTimeout,
		EventPublishTimeout: cfg.Ledger.EventPublishTimeout,
		RestockInterval:     cfg.Ledger.RestockInterval(),
	}, log)
}

func provideJWTManager(cfg *config.Config) *jwt.Manager {
	return jwt.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenExpire)
}
