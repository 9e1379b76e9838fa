package stock

import (
	"context"
	"sync"
)

// TxScope 事务作用域
// TxManager在开启事务时创建，用于：
// 1. 让仓储装饰器（如缓存）判断当前是否处于事务中
// 2. 注册提交后回调（如缓存失效），回滚时回调被丢弃
type TxScope struct {
	mu    sync.Mutex
	hooks []func()
}

type txScopeKey struct{}

// BeginTxScope 在ctx上挂载新的事务作用域
// 嵌套调用时复用外层作用域（回调在最外层提交后执行）
func BeginTxScope(ctx context.Context) (context.Context, *TxScope, bool) {
	if scope, ok := ctx.Value(txScopeKey{}).(*TxScope); ok {
		return ctx, scope, false
	}
	scope := &TxScope{}
	return context.WithValue(ctx, txScopeKey{}, scope), scope, true
}

// InTransaction ctx是否处于事务中
func InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(txScopeKey{}).(*TxScope)
	return ok
}

// AfterCommit 注册提交后回调；不在事务中时立即执行
func AfterCommit(ctx context.Context, fn func()) {
	scope, ok := ctx.Value(txScopeKey{}).(*TxScope)
	if !ok {
		fn()
		return
	}
	scope.mu.Lock()
	scope.hooks = append(scope.hooks, fn)
	scope.mu.Unlock()
}

// Committed 事务提交后由TxManager调用，按注册顺序执行回调
func (s *TxScope) Committed() {
	s.mu.Lock()
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}
