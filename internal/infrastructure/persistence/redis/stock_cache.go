package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xiebiao/stockledger/internal/domain/stock"
	apperrors "github.com/xiebiao/stockledger/pkg/errors"
)

const (
	// loadTimeout 合并回源使用独立的超时，不受任一调用方取消的影响
	loadTimeout = 5 * time.Second
	// genTTL 失效代数的过期时间，远大于单次回源耗时
	genTTL = 24 * time.Hour
)

// setIfGenScript gen未变化时写入缓存
// KEYS[1]=数据key KEYS[2]=gen key ARGV[1]=回源前读到的gen ARGV[2]=数据 ARGV[3]=ttl毫秒
var setIfGenScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// StockCache 库存记录缓存（Store装饰器）
//
// 读路径（read-through）：
//
//	FindBySKU → GET stock:{sku} → 命中直接返回
//	                            → 未命中：GET stock:{sku}:gen → singleflight合并并发回源
//	                              → gen未变时才 SET stock:{sku} PX ttl（Lua脚本原子比较）
//
// 写路径（invalidate-on-write）：
//
//	变更成功（受影响行数>0） → 注册提交后回调 → 事务提交后 INCR stock:{sku}:gen + DEL stock:{sku}
//
// 约束：
// 1. 事务中的读（包括FOR UPDATE）直接回源，不读缓存，守卫判断永远基于数据库
// 2. 失效在提交之后执行，回滚的变更不会清掉有效缓存；提交前其他请求可能读到旧值，
// 直到提交后的DEL或TTL过期
// 3. 回源期间发生过失效的，回源结果不写缓存，避免旧值在DEL之后被写回
// 4. Redis故障只记录日志并回源，缓存不影响库存操作的成败
type StockCache struct {
	stock.Store

	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger
	group  singleflight.Group
}

// NewStockCache 用缓存包装库存仓储
func NewStockCache(inner stock.Store, client *redis.Client, ttl time.Duration, prefix string, logger *zap.Logger) *StockCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if prefix == "" {
		prefix = "stock:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockCache{
		Store:  inner,
		client: client,
		ttl:    ttl,
		prefix: prefix,
		logger: logger,
	}
}

func (c *StockCache) key(sku string) string {
	return c.prefix + sku
}

// FindBySKU 先读缓存，未命中回源
func (c *StockCache) FindBySKU(ctx context.Context, sku string) (*stock.StockRecord, error) {
	if stock.InTransaction(ctx) {
		return c.Store.FindBySKU(ctx, sku)
	}

	if record, ok := c.get(ctx, sku); ok {
		return record, nil
	}

	// 同一SKU的并发未命中只回源一次；调用方各自等待，取消只影响自己
	ch := c.group.DoChan(sku, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		gen, genOK := c.generation(loadCtx, sku)
		record, err := c.Store.FindBySKU(loadCtx, sku)
		if err != nil {
			return nil, err
		}
		if genOK {
			c.set(loadCtx, record, gen)
		}
		return record, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*stock.StockRecord).Clone(), nil
	case <-ctx.Done():
		return nil, apperrors.Transient(ctx.Err(), "查询库存记录已超时或被取消")
	}
}

// AdjustQuantity 变更成功后失效缓存
func (c *StockCache) AdjustQuantity(ctx context.Context, sku string, delta int) (int64, error) {
	rows, err := c.Store.AdjustQuantity(ctx, sku, delta)
	c.invalidateIfChanged(ctx, sku, rows, err)
	return rows, err
}

// ReserveQuantity 变更成功后失效缓存
func (c *StockCache) ReserveQuantity(ctx context.Context, sku string, amount int) (int64, error) {
	rows, err := c.Store.ReserveQuantity(ctx, sku, amount)
	c.invalidateIfChanged(ctx, sku, rows, err)
	return rows, err
}

// ReleaseQuantity 变更成功后失效缓存
func (c *StockCache) ReleaseQuantity(ctx context.Context, sku string, amount int) (int64, error) {
	rows, err := c.Store.ReleaseQuantity(ctx, sku, amount)
	c.invalidateIfChanged(ctx, sku, rows, err)
	return rows, err
}

// ConsumeReserved 变更成功后失效缓存
func (c *StockCache) ConsumeReserved(ctx context.Context, sku string, amount int) (int64, error) {
	rows, err := c.Store.ConsumeReserved(ctx, sku, amount)
	c.invalidateIfChanged(ctx, sku, rows, err)
	return rows, err
}

// Create 新建后失效（清掉可能存在的旧值）
func (c *StockCache) Create(ctx context.Context, record *stock.StockRecord) error {
	if err := c.Store.Create(ctx, record); err != nil {
		return err
	}
	c.invalidate(ctx, record.SKUCode)
	return nil
}

// Save 保存后失效
func (c *StockCache) Save(ctx context.Context, record *stock.StockRecord) error {
	if err := c.Store.Save(ctx, record); err != nil {
		return err
	}
	c.invalidate(ctx, record.SKUCode)
	return nil
}

func (c *StockCache) invalidateIfChanged(ctx context.Context, sku string, rows int64, err error) {
	if err == nil && rows > 0 {
		c.invalidate(ctx, sku)
	}
}

// invalidate 在事务中则提交后失效，否则立即失效
func (c *StockCache) invalidate(ctx context.Context, sku string) {
	delCtx := context.WithoutCancel(ctx)
	stock.AfterCommit(ctx, func() {
		pipe := c.client.TxPipeline()
		pipe.Incr(delCtx, c.genKey(sku))
		pipe.Expire(delCtx, c.genKey(sku), genTTL)
		pipe.Del(delCtx, c.key(sku))
		if _, err := pipe.Exec(delCtx); err != nil {
			c.logger.Warn("库存缓存失效失败", zap.String("sku", sku), zap.Error(err))
		}
	})
}

func (c *StockCache) genKey(sku string) string {
	return c.key(sku) + ":gen"
}

// generation 读取失效代数，不存在视为"0"；Redis故障时返回false，本次回源不写缓存
func (c *StockCache) generation(ctx context.Context, sku string) (string, bool) {
	gen, err := c.client.Get(ctx, c.genKey(sku)).Result()
	switch {
	case err == nil:
		return gen, true
	case errors.Is(err, redis.Nil):
		return "0", true
	default:
		c.logger.Warn("读取库存缓存代数失败", zap.String("sku", sku), zap.Error(err))
		return "", false
	}
}

func (c *StockCache) get(ctx context.Context, sku string) (*stock.StockRecord, bool) {
	data, err := c.client.Get(ctx, c.key(sku)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("读取库存缓存失败", zap.String("sku", sku), zap.Error(err))
		}
		return nil, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn("库存缓存数据损坏", zap.String("sku", sku), zap.Error(err))
		return nil, false
	}
	return entry.toRecord(), true
}

// set 回源前后gen一致才写入
func (c *StockCache) set(ctx context.Context, record *stock.StockRecord, gen string) {
	data, err := json.Marshal(newCacheEntry(record))
	if err != nil {
		return
	}
	keys := []string{c.key(record.SKUCode), c.genKey(record.SKUCode)}
	if err := setIfGenScript.Run(ctx, c.client, keys, gen, data, c.ttl.Milliseconds()).Err(); err != nil {
		c.logger.Warn("写入库存缓存失败", zap.String("sku", record.SKUCode), zap.Error(err))
	}
}

// cacheEntry 缓存中的库存记录（领域实体不带json tag）
type cacheEntry struct {
	ID                string           `json:"id"`
	ProductID         string           `json:"product_id"`
	SKUCode           string           `json:"sku_code"`
	Quantity          int              `json:"quantity"`
	ReservedQuantity  int              `json:"reserved_quantity"`
	AvailableQuantity int              `json:"available_quantity"`
	LowStockThreshold int              `json:"low_stock_threshold"`
	RestockThreshold  int              `json:"restock_threshold"`
	UnitCost          *decimal.Decimal `json:"unit_cost,omitempty"`
	LocationCode      string           `json:"location_code,omitempty"`
	BinLocation       string           `json:"bin_location,omitempty"`
	IsActive          bool             `json:"is_active"`
	LastRestockedDate *time.Time       `json:"last_restocked_date,omitempty"`
	NextRestockDate   *time.Time       `json:"next_restock_date,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	Version           int64            `json:"version"`
}

func newCacheEntry(r *stock.StockRecord) cacheEntry {
	return cacheEntry{
		ID:                r.ID,
		ProductID:         r.ProductID,
		SKUCode:           r.SKUCode,
		Quantity:          r.Quantity,
		ReservedQuantity:  r.ReservedQuantity,
		AvailableQuantity: r.AvailableQuantity,
		LowStockThreshold: r.LowStockThreshold,
		RestockThreshold:  r.RestockThreshold,
		UnitCost:          r.UnitCost,
		LocationCode:      r.LocationCode,
		BinLocation:       r.BinLocation,
		IsActive:          r.IsActive,
		LastRestockedDate: r.LastRestockedDate,
		NextRestockDate:   r.NextRestockDate,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		Version:           r.Version,
	}
}

func (e cacheEntry) toRecord() *stock.StockRecord {
	return &stock.StockRecord{
		ID:                e.ID,
		ProductID:         e.ProductID,
		SKUCode:           e.SKUCode,
		Quantity:          e.Quantity,
		ReservedQuantity:  e.ReservedQuantity,
		AvailableQuantity: e.AvailableQuantity,
		LowStockThreshold: e.LowStockThreshold,
		RestockThreshold:  e.RestockThreshold,
		UnitCost:          e.UnitCost,
		LocationCode:      e.LocationCode,
		BinLocation:       e.BinLocation,
		IsActive:          e.IsActive,
		LastRestockedDate: e.LastRestockedDate,
		NextRestockDate:   e.NextRestockDate,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
		Version:           e.Version,
	}
}
