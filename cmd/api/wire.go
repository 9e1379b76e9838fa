//go:build wireinject
// +build wireinject

// Wire依赖注入配置
//
// 生成代码：wire gen ./cmd/api
// Provider按层分组，自定义Provider见providers.go

package main

import (
	"github.com/gin-gonic/gin"
	"github.com/google/wire"

	appstock "github.com/xiebiao/stockledger/internal/application/stock"
	"github.com/xiebiao/stockledger/internal/infrastructure/config"
	"github.com/xiebiao/stockledger/internal/interface/http/handler"
	"github.com/xiebiao/stockledger/internal/interface/http/middleware"
	"github.com/xiebiao/stockledger/internal/interface/http/router"
)

// infrastructureSet 基础设施：日志、数据库、指标、事件出口
var infrastructureSet = wire.NewSet(
	provideLogger,
	provideDB,
	provideReporter,
	provideEventSink,
	provideRetryPolicy,
)

// repositorySet 仓储与事务管理器
var repositorySet = wire.NewSet(
	provideStockStore,
	provideMovementRepository,
	provideTxManager,
)

// applicationSet 应用服务
var applicationSet = wire.NewSet(
	provideLedgerService,
	appstock.NewQueryService,
)

// interfaceSet HTTP层
var interfaceSet = wire.NewSet(
	provideJWTManager,
	middleware.NewAuthMiddleware,
	handler.NewStockHandler,
	router.New,
)

// InitializeApp 组装Gin引擎
// 返回的cleanup按构造的逆序关闭事件出口、Redis和数据库连接
func InitializeApp(cfg *config.Config) (*gin.Engine, func(), error) {
	wire.Build(
		infrastructureSet,
		repositorySet,
		applicationSet,
		interfaceSet,
	)
	return nil, nil, nil
}
