package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/xiebiao/stockledger/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestError_MapsHTTPStatus(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, apperrors.New(apperrors.ErrCodeInsufficientStock, "可用库存不足"))

	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decode(t, w)
	assert.Equal(t, apperrors.ErrCodeInsufficientStock, resp.Code)
	assert.Equal(t, "可用库存不足", resp.Message)
}

func TestError_HidesInternalError(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, errors.New("dial tcp 10.0.0.1:3306: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.1")
	require.Len(t, c.Errors, 1, "内部错误应挂到gin上下文供日志记录")
}

func TestSuccessWithPage(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	SuccessWithPage(c, []int{1, 2, 3}, 21, 1, 10)

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data PageData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Data.TotalPages)
	assert.Equal(t, int64(21), body.Data.Total)
}
