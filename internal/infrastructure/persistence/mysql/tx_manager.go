package mysql

import (
	"context"

	"gorm.io/gorm"

	"github.com/xiebiao/stockledger/internal/domain/stock"
)

type txKey struct{}

// TxManager 事务管理器
// 设计说明：
// 1. 封装GORM的Transaction方法
// 2. 通过context传递事务DB（避免全局变量）
// 3. 支持嵌套事务（GORM自动使用Savepoint）
// 4. 最外层事务提交后执行stock.AfterCommit注册的回调（缓存失效）
type TxManager struct {
	db *gorm.DB
}

// NewTxManager 创建事务管理器
func NewTxManager(db *gorm.DB) *TxManager {
	return &TxManager{db: db}
}

// Transaction 执行事务
// fn返回error时自动ROLLBACK，返回nil时自动COMMIT
//
// 使用示例：
//
//	err := txManager.Transaction(ctx, func(ctx context.Context) error {
//	    rows, err := store.ReserveQuantity(ctx, sku, n)
//	    if err != nil || rows == 0 {
//	        return ... // 自动回滚
//	    }
//	    return movements.Create(ctx, m) // nil则提交，非nil则回滚
//	})
func (m *TxManager) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	scopeCtx, scope, outer := stock.BeginTxScope(ctx)

	db := m.db
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		db = tx
	}

	err := db.WithContext(scopeCtx).Transaction(func(tx *gorm.DB) error {
		// Repository的getDB方法会从context提取事务DB
		txCtx := context.WithValue(scopeCtx, txKey{}, tx)
		return fn(txCtx)
	})
	if err != nil {
		return translateError(err, "事务执行失败")
	}

	if outer {
		scope.Committed()
	}
	return nil
}

// getDB 从context获取事务DB，如果没有则使用默认DB
func getDB(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}
