package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/xiebiao/stockledger/pkg/errors"
)

// Response 统一响应结构
//
//	{"code": 0, "message": "success", "data": {...}}
//
// code为0表示成功，否则为业务错误码（见pkg/errors）
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功（201）
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
//
// HTTP状态码由业务错误码映射（apperrors.HTTPStatus）。
// 内部错误通过c.Error挂到gin上下文，由日志中间件统一记录，不返回给客户端。
func Error(c *gin.Context, err error) {
	appErr := apperrors.GetAppError(err)
	if appErr.Err != nil {
		_ = c.Error(appErr.Err)
	}

	c.JSON(apperrors.HTTPStatus(appErr.Code), Response{
		Code:    appErr.Code,
		Message: appErr.Message,
	})
}

// ErrorWithCode 直接指定错误码
func ErrorWithCode(c *gin.Context, code int, message string) {
	c.JSON(apperrors.HTTPStatus(code), Response{
		Code:    code,
		Message: message,
	})
}

// AbortWithError 中断后续处理器并返回错误（用于中间件）
func AbortWithError(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

// PageData 分页数据
type PageData struct {
	List       interface{} `json:"list"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

// NewPageData 创建分页数据
func NewPageData(list interface{}, total int64, page, pageSize int) *PageData {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int(total) / pageSize
		if int(total)%pageSize != 0 {
			totalPages++
		}
	}

	return &PageData{
		List:       list,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}

// SuccessWithPage 分页响应
func SuccessWithPage(c *gin.Context, list interface{}, total int64, page, pageSize int) {
	Success(c, NewPageData(list, total, page, pageSize))
}
