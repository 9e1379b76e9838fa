package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiebiao/stockledger/internal/infrastructure/config"
)

// 端到端测试：真实的依赖组装 + SQLite + 异步日志事件出口

const testConfig = `
server:
  mode: test
database:
  driver: sqlite
  sqlite_path: %s
  auto_migrate: true
log:
  level: error
events:
  driver: log
  async: true
  buffer_size: 64
  workers: 1
metrics:
  enabled: true
jwt:
  secret: integration-secret
`

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setupApp(t *testing.T) (*gin.Engine, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(testConfig, filepath.Join(dir, "ledger.db"))), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	engine, _, cleanup, err := buildApp(cfg)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	token, err := provideJWTManager(cfg).GenerateToken("integration", "admin")
	require.NoError(t, err)
	return engine, token
}

func call(t *testing.T, engine http.Handler, method, path, token string, body interface{}) (int, apiResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var resp apiResponse
	if bytes.HasPrefix(w.Body.Bytes(), []byte("{")) {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

func TestApp_StockLifecycle(t *testing.T) {
	engine, token := setupApp(t)

	code, resp := call(t, engine, http.MethodPost, "/api/v1/inventory", token, map[string]interface{}{
		"product_id": "P-1", "sku_code": "SKU-E2E", "quantity": 30, "unit_cost": "1.25",
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)

	code, resp = call(t, engine, http.MethodPost, "/api/v1/inventory/SKU-E2E/reserve", token, map[string]interface{}{
		"quantity": 12, "reservation_id": "ORD-1",
	})
	require.Equal(t, http.StatusOK, code, resp.Message)

	code, resp = call(t, engine, http.MethodPost, "/api/v1/inventory/SKU-E2E/consume", token, map[string]interface{}{
		"quantity": 12, "reservation_id": "ORD-1",
	})
	require.Equal(t, http.StatusOK, code, resp.Message)

	code, resp = call(t, engine, http.MethodGet, "/api/v1/inventory/SKU-E2E", "", nil)
	require.Equal(t, http.StatusOK, code)
	var rec struct {
		Quantity          int    `json:"quantity"`
		ReservedQuantity  int    `json:"reserved_quantity"`
		AvailableQuantity int    `json:"available_quantity"`
		InventoryValue    string `json:"inventory_value"`
		Version           int64  `json:"version"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &rec))
	assert.Equal(t, 18, rec.Quantity)
	assert.Equal(t, 0, rec.ReservedQuantity)
	assert.Equal(t, 18, rec.AvailableQuantity)
	assert.Equal(t, "22.50", rec.InventoryValue)
	assert.Equal(t, int64(2), rec.Version) // 预留、消耗各+1

	code, resp = call(t, engine, http.MethodGet, "/api/v1/inventory/SKU-E2E/movements", "", nil)
	require.Equal(t, http.StatusOK, code)
	var page struct {
		Total int64 `json:"total"`
		List  []struct {
			Type     string `json:"type"`
			Operator string `json:"operator"`
		} `json:"list"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Equal(t, int64(3), page.Total)
	require.NotEmpty(t, page.List)
	assert.Equal(t, "CONSUME", page.List[0].Type)
	assert.Equal(t, "integration", page.List[0].Operator)

	code, _ = call(t, engine, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, code)
}

// 并发预留不超卖：20个请求抢10件库存
func TestApp_ConcurrentReserveNeverOversells(t *testing.T) {
	engine, token := setupApp(t)

	code, resp := call(t, engine, http.MethodPost, "/api/v1/inventory", token, map[string]interface{}{
		"product_id": "P-HOT", "sku_code": "SKU-HOT", "quantity": 10,
	})
	require.Equal(t, http.StatusCreated, code, resp.Message)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var buf bytes.Buffer
			_ = json.NewEncoder(&buf).Encode(map[string]interface{}{
				"quantity": 1, "reservation_id": fmt.Sprintf("ORD-%d", i),
			})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/inventory/SKU-HOT/reserve", &buf)
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)

			mu.Lock()
			defer mu.Unlock()
			switch w.Code {
			case http.StatusOK:
				succeeded++
			case http.StatusConflict:
				rejected++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 10, rejected)

	_, resp = call(t, engine, http.MethodGet, "/api/v1/inventory/SKU-HOT/status", "", nil)
	var status struct {
		InStock           bool `json:"in_stock"`
		AvailableQuantity int  `json:"available_quantity"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &status))
	assert.False(t, status.InStock)
	assert.Equal(t, 0, status.AvailableQuantity)
}
