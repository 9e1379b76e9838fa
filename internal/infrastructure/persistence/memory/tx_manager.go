package memory

import (
	"context"
	"sync"

	"github.com/xiebiao/stockledger/internal/domain/stock"
)

// TxManager 内存事务管理器
//
// 事务内的写入先暂存在事务对象中，同一事务内的读取能看到暂存值，
// 事务外只能看到已提交的快照。写入前对SKU加锁（等价于行锁），
// 锁持有到提交或回滚。提交时逐条CAS发布暂存快照，回滚时直接丢弃。
type TxManager struct{}

// NewTxManager 创建内存事务管理器
func NewTxManager() *TxManager {
	return &TxManager{}
}

// Transaction 执行fn，返回错误或panic时回滚，成功后提交并触发提交回调
func (m *TxManager) Transaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if txFrom(ctx) != nil {
		// 嵌套调用加入外层事务
		return fn(ctx)
	}

	t := newMemTx()
	txCtx, scope, _ := stock.BeginTxScope(context.WithValue(ctx, txKey{}, t))

	defer func() {
		if r := recover(); r != nil {
			t.rollback()
			panic(r)
		}
	}()

	if err := fn(txCtx); err != nil {
		t.rollback()
		return err
	}
	// 提交前ctx已超时或取消，与数据库事务一样整体回滚
	if err := ctx.Err(); err != nil {
		t.rollback()
		return transient(err)
	}
	if err := t.commit(); err != nil {
		return err
	}
	scope.Committed()
	return nil
}

type txKey struct{}

func txFrom(ctx context.Context) *memTx {
	t, _ := ctx.Value(txKey{}).(*memTx)
	return t
}

// pendingWrite 一个SKU在事务中的暂存写入；base为nil表示事务内新建
type pendingWrite struct {
	slot *slot
	base *stock.StockRecord
	next *stock.StockRecord
}

// memTx 内存事务状态
type memTx struct {
	mu         sync.Mutex
	held       map[*slot]struct{}
	writes     map[*slot]*pendingWrite
	order      []*pendingWrite
	onCommit   []func()
	onRollback []func()
	done       bool
}

func newMemTx() *memTx {
	return &memTx{
		held:   make(map[*slot]struct{}),
		writes: make(map[*slot]*pendingWrite),
	}
}

// lock 获取SKU锁，已持有则直接返回；等待受ctx约束，超时按锁等待超时处理
func (t *memTx) lock(ctx context.Context, sl *slot) error {
	t.mu.Lock()
	_, ok := t.held[sl]
	t.mu.Unlock()
	if ok {
		return nil
	}

	select {
	case sl.lock <- struct{}{}:
	default:
		select {
		case sl.lock <- struct{}{}:
		case <-ctx.Done():
			return transient(ctx.Err())
		}
	}

	t.mu.Lock()
	t.held[sl] = struct{}{}
	t.mu.Unlock()
	return nil
}

// pending 事务内暂存的最新快照
func (t *memTx) pending(sl *slot) (*stock.StockRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.writes[sl]
	if !ok {
		return nil, false
	}
	return w.next, true
}

// stage 暂存写入，调用方必须已持有sl的锁
func (t *memTx) stage(sl *slot, next *stock.StockRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.writes[sl]; ok {
		w.next = next
		return
	}
	w := &pendingWrite{slot: sl, base: sl.ptr.Load(), next: next}
	t.writes[sl] = w
	t.order = append(t.order, w)
}

func (t *memTx) afterCommit(fn func()) {
	t.mu.Lock()
	t.onCommit = append(t.onCommit, fn)
	t.mu.Unlock()
}

func (t *memTx) afterRollback(fn func()) {
	t.mu.Lock()
	t.onRollback = append(t.onRollback, fn)
	t.mu.Unlock()
}

// commit 发布暂存快照
// 事务外的无锁写入可能改动了base，此时撤销已发布的部分并返回ErrConcurrentModification
func (t *memTx) commit() error {
	t.mu.Lock()
	order := t.order
	t.mu.Unlock()

	published := make([]*pendingWrite, 0, len(order))
	for _, w := range order {
		if !w.slot.ptr.CompareAndSwap(w.base, w.next) {
			for i := len(published) - 1; i >= 0; i-- {
				p := published[i]
				p.slot.ptr.CompareAndSwap(p.next, p.base)
			}
			t.rollback()
			return stock.ErrConcurrentModification
		}
		published = append(published, w)
	}

	t.mu.Lock()
	hooks := t.onCommit
	t.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
	t.release()
	return nil
}

// rollback 丢弃暂存写入，逆序执行回滚回调
func (t *memTx) rollback() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	hooks := t.onRollback
	t.writes = make(map[*slot]*pendingWrite)
	t.order = nil
	t.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
	t.release()
}

func (t *memTx) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.done = true
	for sl := range t.held {
		<-sl.lock
	}
	t.held = nil
}
