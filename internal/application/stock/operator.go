package stock

import "context"

type operatorKey struct{}

// WithOperator 在ctx中记录操作员（由认证中间件注入，写入库存流水）
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, operatorKey{}, operator)
}

// OperatorFrom 取出操作员，未设置时返回"system"
func OperatorFrom(ctx context.Context) string {
	if op, ok := ctx.Value(operatorKey{}).(string); ok && op != "" {
		return op
	}
	return "system"
}
