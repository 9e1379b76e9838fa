package memory

import (
	"context"
	"sync"

	"github.com/xiebiao/stockledger/internal/domain/stock"
	apperrors "github.com/xiebiao/stockledger/pkg/errors"
)

// MovementStore 内存流水仓储
type MovementStore struct {
	mu     sync.RWMutex
	nextID uint
	bySKU  map[string][]*stock.Movement
}

// NewMovementStore 创建内存流水仓储
func NewMovementStore() *MovementStore {
	return &MovementStore{bySKU: make(map[string][]*stock.Movement)}
}

// Create 追加流水；事务内的流水在提交时才写入
func (s *MovementStore) Create(ctx context.Context, m *stock.Movement) error {
	if err := ctx.Err(); err != nil {
		return transient(err)
	}

	if t := txFrom(ctx); t != nil {
		stored := *m
		t.afterCommit(func() { s.append(&stored) })
		return nil
	}

	stored := *m
	s.append(&stored)
	m.ID = stored.ID
	return nil
}

func (s *MovementStore) append(m *stock.Movement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	m.ID = s.nextID
	s.bySKU[m.SKUCode] = append(s.bySKU[m.SKUCode], m)
}

// ListBySKU 按时间倒序分页
func (s *MovementStore) ListBySKU(ctx context.Context, sku string, page, pageSize int) ([]*stock.Movement, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, transient(err)
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.bySKU[sku]
	total := int64(len(all))

	result := make([]*stock.Movement, 0, pageSize)
	start := (page - 1) * pageSize
	for i := len(all) - 1 - start; i >= 0 && len(result) < pageSize; i-- {
		m := *all[i]
		result = append(result, &m)
	}
	return result, total, nil
}

// transient ctx取消/超时统一转换为可重试错误
func transient(err error) error {
	return apperrors.Transient(err, "操作已超时或被取消")
}
