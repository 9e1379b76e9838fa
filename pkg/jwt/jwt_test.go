package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/xiebiao/stockledger/pkg/errors"
)

func TestManager_GenerateAndParse(t *testing.T) {
	m := NewManager("test-secret", "stock-ledger", time.Hour)

	token, err := m.GenerateToken("order-service", "service")
	require.NoError(t, err)

	claims, err := m.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "order-service", claims.Operator)
	assert.Equal(t, "service", claims.Role)
	assert.Equal(t, "order-service", claims.Subject)
}

func TestManager_ParseErrors(t *testing.T) {
	m := NewManager("test-secret", "stock-ledger", time.Hour)

	t.Run("过期Token", func(t *testing.T) {
		expired := NewManager("test-secret", "stock-ledger", -time.Minute)
		token, err := expired.GenerateToken("ops", "admin")
		require.NoError(t, err)

		_, err = m.ParseToken(token)
		assert.ErrorIs(t, err, apperrors.ErrTokenExpired)
	})

	t.Run("签名密钥不匹配", func(t *testing.T) {
		other := NewManager("other-secret", "stock-ledger", time.Hour)
		token, err := other.GenerateToken("ops", "admin")
		require.NoError(t, err)

		_, err = m.ParseToken(token)
		assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
	})

	t.Run("签发方不匹配", func(t *testing.T) {
		other := NewManager("test-secret", "someone-else", time.Hour)
		token, err := other.GenerateToken("ops", "admin")
		require.NoError(t, err)

		_, err = m.ParseToken(token)
		assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
	})

	t.Run("格式错误", func(t *testing.T) {
		_, err := m.ParseToken("not-a-token")
		assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
	})

	t.Run("操作员为空", func(t *testing.T) {
		_, err := m.GenerateToken("", "admin")
		assert.ErrorIs(t, err, apperrors.ErrInvalidParams)
	})
}
