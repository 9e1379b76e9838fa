package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	appstock "github.com/xiebiao/stockledger/internal/application/stock"
	"github.com/xiebiao/stockledger/pkg/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r http.Handler, path, token string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth_InjectsOperator(t *testing.T) {
	manager := jwt.NewManager("secret", "", time.Hour)
	auth := NewAuthMiddleware(manager)

	r := gin.New()
	r.GET("/op", auth.RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, "%s|%s|%s", GetOperator(c), GetRole(c), appstock.OperatorFrom(c.Request.Context()))
	})

	token, err := manager.GenerateToken("picker-7", "warehouse")
	require.NoError(t, err)

	w := perform(r, "/op", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "picker-7|warehouse|picker-7", w.Body.String())

	w = perform(r, "/op", "", map[string]string{"Authorization": "Basic abc"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired := jwt.NewManager("secret", "", -time.Minute)
	old, err := expired.GenerateToken("picker-7", "warehouse")
	require.NoError(t, err)
	w = perform(r, "/op", old, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "40102")
}

func TestRequireRole(t *testing.T) {
	manager := jwt.NewManager("secret", "", time.Hour)
	auth := NewAuthMiddleware(manager)

	r := gin.New()
	r.GET("/admin", auth.RequireAuth(), auth.RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	picker, _ := manager.GenerateToken("picker-7", "warehouse")
	admin, _ := manager.GenerateToken("ops", "admin")

	assert.Equal(t, http.StatusForbidden, perform(r, "/admin", picker, nil).Code)
	assert.Equal(t, http.StatusNoContent, perform(r, "/admin", admin, nil).Code)
}

func TestLogger_RequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(Logger(zap.New(core)))
	r.GET("/x", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})
	r.GET("/fail", func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})

	w := perform(r, "/x", "", map[string]string{HeaderRequestID: "req-123"})
	assert.Equal(t, "req-123", w.Header().Get(HeaderRequestID))
	assert.Equal(t, "req-123", w.Body.String())

	w = perform(r, "/x", "", nil)
	assert.Len(t, w.Header().Get(HeaderRequestID), 36)

	perform(r, "/fail", "", nil)
	entries := logs.FilterMessage("HTTP请求").All()
	require.Len(t, entries, 3)
	assert.Equal(t, zap.ErrorLevel, entries[2].Level)
	assert.Equal(t, "req-123", entries[0].ContextMap()["request_id"])
}
