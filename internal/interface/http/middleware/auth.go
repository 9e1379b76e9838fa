package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	appstock "github.com/xiebiao/stockledger/internal/application/stock"
	apperrors "github.com/xiebiao/stockledger/pkg/errors"
	"github.com/xiebiao/stockledger/pkg/jwt"
	"github.com/xiebiao/stockledger/pkg/response"
)

const (
	ctxOperator = "operator"
	ctxRole     = "role"
)

// AuthMiddleware JWT认证中间件
// 设计说明：
// 1. 从Header提取Bearer Token
// 2. 验证签名、签发者和有效期
// 3. 把操作员写入gin上下文和请求ctx（库存流水记录操作员）
type AuthMiddleware struct {
	jwtManager *jwt.Manager
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(jwtManager *jwt.Manager) *AuthMiddleware {
	return &AuthMiddleware{jwtManager: jwtManager}
}

// RequireAuth 要求携带有效Token
// 使用方式：
//
//	inventory := r.Group("/api/v1/inventory")
//	inventory.POST("/:sku/reserve", authMiddleware.RequireAuth(), h.ReserveStock)
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 格式：Authorization: Bearer <token>
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.AbortWithError(c, apperrors.ErrUnauthorized)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			response.AbortWithError(c, apperrors.ErrInvalidToken.WithMessage("Token格式错误"))
			return
		}

		claims, err := m.jwtManager.ParseToken(parts[1])
		if err != nil {
			response.AbortWithError(c, err) // ErrTokenExpired / ErrInvalidToken
			return
		}

		c.Set(ctxOperator, claims.Operator)
		c.Set(ctxRole, claims.Role)
		c.Request = c.Request.WithContext(appstock.WithOperator(c.Request.Context(), claims.Operator))

		c.Next()
	}
}

// RequireRole 要求指定角色之一（必须放在RequireAuth之后）
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		response.AbortWithError(c, apperrors.ErrForbidden)
	}
}

// GetOperator 当前操作员，未认证时返回空字符串
func GetOperator(c *gin.Context) string {
	return c.GetString(ctxOperator)
}

// GetRole 当前操作员角色
func GetRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}
