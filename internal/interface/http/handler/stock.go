package handler

import (
	"github.com/gin-gonic/gin"

	appstock "github.com/xiebiao/stockledger/internal/application/stock"
	"github.com/xiebiao/stockledger/internal/interface/http/dto"
	apperrors "github.com/xiebiao/stockledger/pkg/errors"
	"github.com/xiebiao/stockledger/pkg/response"
)

// StockHandler 库存HTTP处理器
// 只做参数绑定和结果转换，业务规则全部在应用层
type StockHandler struct {
	ledger *appstock.LedgerService
	query  *appstock.QueryService
}

// NewStockHandler 创建库存处理器
func NewStockHandler(ledger *appstock.LedgerService, query *appstock.QueryService) *StockHandler {
	return &StockHandler{
		ledger: ledger,
		query:  query,
	}
}

func bindError(c *gin.Context, err error) {
	response.Error(c, apperrors.ErrBindError.WithMessage("参数错误: "+err.Error()))
}

// CreateStock 创建库存记录
// @Summary      创建库存记录
// @Description  为SKU建立库存记录（每个SKU只能有一条）
// @Tags         库存
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body dto.CreateStockRequest true "库存信息"
// @Success      201 {object} response.Response{data=appstock.StockResponse}
// @Failure      400 {object} response.Response "参数格式错误"
// @Failure      401 {object} response.Response "未登录"
// @Failure      409 {object} response.Response "SKU已存在"
// @Failure      422 {object} response.Response "数量不合法"
// @Router       /api/v1/inventory [post]
func (h *StockHandler) CreateStock(c *gin.Context) {
	var req dto.CreateStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.ledger.CreateStockRecord(c.Request.Context(), appstock.CreateStockRequest{
		ProductID:         req.ProductID,
		SKUCode:           req.SKUCode,
		Quantity:          req.Quantity,
		ReservedQuantity:  req.ReservedQuantity,
		LowStockThreshold: req.LowStockThreshold,
		RestockThreshold:  req.RestockThreshold,
		UnitCost:          req.UnitCost,
		LocationCode:      req.LocationCode,
		BinLocation:       req.BinLocation,
		IsActive:          req.IsActive,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// GetStock 查询库存记录
// @Summary      查询库存记录
// @Tags         库存
// @Produce      json
// @Param        sku path string true "SKU编码"
// @Success      200 {object} response.Response{data=appstock.StockResponse}
// @Failure      404 {object} response.Response "库存记录不存在"
// @Router       /api/v1/inventory/{sku} [get]
func (h *StockHandler) GetStock(c *gin.Context) {
	result, err := h.query.GetStockRecord(c.Request.Context(), c.Param("sku"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// GetStatus 库存状态
// @Summary      库存状态
// @Description  是否有货、是否低库存、状态枚举（IN_STOCK/LOW_STOCK/OUT_OF_STOCK）
// @Tags         库存
// @Produce      json
// @Param        sku path string true "SKU编码"
// @Success      200 {object} response.Response{data=appstock.InventoryStatus}
// @Failure      404 {object} response.Response "库存记录不存在"
// @Router       /api/v1/inventory/{sku}/status [get]
func (h *StockHandler) GetStatus(c *gin.Context) {
	result, err := h.query.CheckInventoryStatus(c.Request.Context(), c.Param("sku"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// AdjustStock 库存调整
// @Summary      库存调整
// @Description  盘点、报损等直接调整在库数量，调整后在库数量不能低于0，也不能低于已预留数量
// @Tags         库存
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        sku path string true "SKU编码"
// @Param        request body dto.AdjustStockRequest true "调整数量（可为负）"
// @Success      200 {object} response.Response{data=appstock.StockResponse}
// @Failure      404 {object} response.Response "库存记录不存在"
// @Failure      422 {object} response.Response "调整后库存为负"
// @Failure      503 {object} response.Response "服务繁忙，可重试"
// @Router       /api/v1/inventory/{sku}/adjust [post]
func (h *StockHandler) AdjustStock(c *gin.Context) {
	var req dto.AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.ledger.AdjustStock(c.Request.Context(), c.Param("sku"), req.Quantity, req.Reason, req.ReferenceID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// ReserveStock 预留库存
// @Summary      预留库存
// @Description  下单时锁定可用库存，可用库存不足时返回409
// @Tags         库存
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        sku path string true "SKU编码"
// @Param        request body dto.ReserveStockRequest true "预留信息"
// @Success      200 {object} response.Response{data=appstock.StockResponse}
// @Failure      404 {object} response.Response "库存记录不存在"
// @Failure      409 {object} response.Response "可用库存不足"
// @Failure      503 {object} response.Response "服务繁忙，可重试"
// @Router       /api/v1/inventory/{sku}/reserve [post]
func (h *StockHandler) ReserveStock(c *gin.Context) {
	var req dto.ReserveStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.ledger.ReserveStock(c.Request.Context(), c.Param("sku"), req.Quantity, req.ReservationID, req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// ReleaseStock 释放预留
// @Summary      释放预留
// @Description  订单取消时归还预留的库存
// @Tags         库存
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        sku path string true "SKU编码"
// @Param        request body dto.ReleaseStockRequest true "释放信息"
// @Success      200 {object} response.Response{data=appstock.StockResponse}
// @Failure      404 {object} response.Response "库存记录不存在"
// @Failure      422 {object} response.Response "释放数量超过已预留数量"
// @Router       /api/v1/inventory/{sku}/release [post]
func (h *StockHandler) ReleaseStock(c *gin.Context) {
	var req dto.ReleaseStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.ledger.ReleaseStock(c.Request.Context(), c.Param("sku"), req.Quantity, req.ReservationID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// ConsumeStock 消耗预留
// @Summary      消耗预留（发货）
// @Description  发货时同时扣减在库数量和已预留数量
// @Tags         库存
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        sku path string true "SKU编码"
// @Param        request body dto.ConsumeStockRequest true "消耗信息"
// @Success      200 {object} response.Response{data=appstock.StockResponse}
// @Failure      404 {object} response.Response "库存记录不存在"
// @Failure      422 {object} response.Response "消耗数量超过已预留数量"
// @Router       /api/v1/inventory/{sku}/consume [post]
func (h *StockHandler) ConsumeStock(c *gin.Context) {
	var req dto.ConsumeStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.ledger.ConsumeReservedStock(c.Request.Context(), c.Param("sku"), req.Quantity, req.ReservationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Restock 补货入库
// @Summary      补货入库
// @Description  增加在库数量，记录补货时间并计算下次补货日期
// @Tags         库存
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        sku path string true "SKU编码"
// @Param        request body dto.RestockRequest true "补货数量"
// @Success      200 {object} response.Response{data=appstock.StockResponse}
// @Failure      404 {object} response.Response "库存记录不存在"
// @Failure      422 {object} response.Response "数量不合法"
// @Router       /api/v1/inventory/{sku}/restock [post]
func (h *StockHandler) Restock(c *gin.Context) {
	var req dto.RestockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.ledger.ProcessRestock(c.Request.Context(), c.Param("sku"), req.Quantity)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// BatchReserve 多SKU预留
// @Summary      多SKU预留
// @Description  依次预留每个SKU，任一失败时释放已预留的行（尽力而为，不保证原子性）
// @Tags         库存
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body dto.BatchReserveRequest true "预留明细"
// @Success      200 {object} response.Response{data=appstock.BatchReserveResult}
// @Failure      404 {object} response.Response "库存记录不存在"
// @Failure      409 {object} response.Response "可用库存不足"
// @Router       /api/v1/inventory/reservations/batch [post]
func (h *StockHandler) BatchReserve(c *gin.Context) {
	var req dto.BatchReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	lines := make([]appstock.ReserveLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, appstock.ReserveLine{SKUCode: item.SKUCode, Quantity: item.Quantity})
	}

	result, err := h.ledger.ReserveBatch(c.Request.Context(), req.ReservationID, lines, req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// ListLowStock 低库存列表
// @Summary      低库存列表
// @Tags         库存
// @Produce      json
// @Success      200 {object} response.Response{data=[]appstock.LowStockItem}
// @Router       /api/v1/inventory/low-stock [get]
func (h *StockHandler) ListLowStock(c *gin.Context) {
	items, err := h.query.GetLowStockItems(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, items)
}

// ListRestockDue 待补货列表
// @Summary      待补货列表
// @Description  可用库存不高于补货阈值的SKU
// @Tags         库存
// @Produce      json
// @Success      200 {object} response.Response{data=[]appstock.LowStockItem}
// @Router       /api/v1/inventory/restock-due [get]
func (h *StockHandler) ListRestockDue(c *gin.Context) {
	items, err := h.query.GetRestockDueItems(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, items)
}

// ListMovements 库存流水
// @Summary      库存流水
// @Description  按时间倒序分页返回SKU的变更记录
// @Tags         库存
// @Produce      json
// @Param        sku       path  string true  "SKU编码"
// @Param        page      query int    false "页码"   default(1)
// @Param        page_size query int    false "每页条数" default(20)
// @Success      200 {object} response.Response{data=response.PageData{list=[]appstock.MovementView}}
// @Failure      404 {object} response.Response "库存记录不存在"
// @Router       /api/v1/inventory/{sku}/movements [get]
func (h *StockHandler) ListMovements(c *gin.Context) {
	var req dto.ListMovementsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, err)
		return
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	list, total, err := h.query.ListMovements(c.Request.Context(), c.Param("sku"), req.Page, req.PageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithPage(c, list, total, req.Page, req.PageSize)
}
