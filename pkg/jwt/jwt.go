package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/xiebiao/stockledger/pkg/errors"
)

// Manager 操作员Token管理
//
// 库存写操作（调整、预留、释放、消耗、补货）要求携带Bearer Token，
// Token中的操作员身份会写入库存流水，便于审计。
type Manager struct {
	secret string
	issuer string
	expire time.Duration
}

// NewManager 创建Token管理器
func NewManager(secret, issuer string, expire time.Duration) *Manager {
	if issuer == "" {
		issuer = "stock-ledger"
	}
	return &Manager{
		secret: secret,
		issuer: issuer,
		expire: expire,
	}
}

// Claims 操作员声明
type Claims struct {
	Operator string `json:"operator"` // 操作员标识（系统名或用户名）
	Role     string `json:"role"`     // 角色，如 warehouse/order-service/admin
	jwt.RegisteredClaims
}

// GenerateToken 为操作员签发Token
func (m *Manager) GenerateToken(operator, role string) (string, error) {
	if operator == "" {
		return "", apperrors.ErrInvalidParams.WithMessage("操作员标识不能为空")
	}

	now := time.Now()
	claims := Claims{
		Operator: operator,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expire)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   operator,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.secret))
	if err != nil {
		return "", apperrors.Wrap(err, "生成Token失败")
	}
	return signed, nil
}

// ParseToken 校验并解析Token
func (m *Manager) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(m.secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrInvalidToken.WithErr(err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, apperrors.ErrInvalidToken
}
