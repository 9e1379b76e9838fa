package stock

import (
	"context"
	"time"
)

// 事件类型
const (
	EventInventoryCreated      = "INVENTORY_CREATED"
	EventStockAdjusted         = "STOCK_ADJUSTED"
	EventStockReserved         = "STOCK_RESERVED"
	EventStockReleased         = "STOCK_RELEASED"
	EventReservedStockConsumed = "RESERVED_STOCK_CONSUMED"
	EventStockRestocked        = "STOCK_RESTOCKED"
)

// EventSink 库存事件出口
// 设计说明：
// 1. 只在事务提交后调用，事件反映已提交的状态
// 2. 投递失败由调用方记录日志后丢弃，不影响库存操作的结果
// 3. 实现必须并发安全
type EventSink interface {
	Publish(ctx context.Context, eventType string, record *StockRecord, extra map[string]interface{}) error
}

// BuildEventPayload 构造事件载荷
//
// 基础字段：eventType, timestamp, inventoryId, productId, skuCode,
// quantity, availableQuantity, reservedQuantity;extra中的字段合并进来
// （与基础字段同名时以基础字段为准）
func BuildEventPayload(eventType string, record *StockRecord, extra map[string]interface{}, now time.Time) map[string]interface{} {
	payload := make(map[string]interface{}, len(extra)+8)
	for k, v := range extra {
		payload[k] = v
	}

	payload["eventType"] = eventType
	payload["timestamp"] = now.UTC().Format(time.RFC3339Nano)
	payload["inventoryId"] = record.ID
	payload["productId"] = record.ProductID
	payload["skuCode"] = record.SKUCode
	payload["quantity"] = record.Quantity
	payload["availableQuantity"] = record.AvailableQuantity
	payload["reservedQuantity"] = record.ReservedQuantity
	return payload
}

// NopEventSink 丢弃所有事件
type NopEventSink struct{}

// Publish 不做任何事
func (NopEventSink) Publish(context.Context, string, *StockRecord, map[string]interface{}) error {
	return nil
}
