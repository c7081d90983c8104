package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/qunqun-dev/date-poll/backend/internal/domain"
	"github.com/qunqun-dev/date-poll/backend/internal/metrics"
)

type RangeReader interface {
	GetDateRecordsInRange(ctx context.Context, dr domain.DateRange) ([]domain.DateRecord, error)
}

type ChangeListener interface {
	Listen(ctx context.Context) (<-chan domain.ChangeEvent, error)
}

// Hub 维护所有区间订阅，收到变更事件后让区间包含该日期的订阅重新查询
type Hub struct {
	reader RangeReader

	mu     sync.Mutex
	subs   map[uuid.UUID]*Subscription
	closed error
}

func NewHub(reader RangeReader) *Hub {
	return &Hub{
		reader: reader,
		subs:   make(map[uuid.UUID]*Subscription),
	}
}

// Run 消费变更事件直到 ctx 结束；变更通道意外关闭时所有订阅都会以 ErrStorageUnavailable 终止
func (h *Hub) Run(ctx context.Context, listener ChangeListener) error {
	events, err := listener.Listen(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
		h.shutdown(err)
		return err
	}

	for {
		select {
		case <-ctx.Done():
			h.Close()
			return nil
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					h.Close()
					return nil
				}
				err := fmt.Errorf("%w: 变更通道已关闭", domain.ErrStorageUnavailable)
				h.shutdown(err)
				return err
			}
			h.Notify(ev.Date)
		}
	}
}

// Notify 标记所有区间包含 date 的订阅需要刷新
func (h *Hub) Notify(date string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		if sub.rng.Contains(date) {
			sub.markDirty()
		}
	}
}

// Subscribe 建立区间订阅：fn 会先收到一次当前快照，之后每次区间内有变更都会收到完整的新快照。
// 同一个订阅的 fn 调用是串行的
func (h *Hub) Subscribe(ctx context.Context, dr domain.DateRange, fn func(Snapshot)) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		id:     uuid.New(),
		hub:    h,
		rng:    dr,
		fn:     fn,
		ctx:    subCtx,
		cancel: cancel,
		dirty:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	// 先登记再查询，查询期间发生的变更会让订阅随后再刷新一次
	h.mu.Lock()
	if h.closed != nil {
		err := h.closed
		h.mu.Unlock()
		cancel()
		return nil, err
	}
	h.subs[sub.id] = sub
	h.mu.Unlock()
	metrics.ActiveSubscriptions.Inc()

	records, err := h.reader.GetDateRecordsInRange(subCtx, dr)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			sub.terminate(nil)
			return nil, ctxErr
		}
		err = fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
		sub.terminate(err)
		return nil, err
	}

	go sub.loop(records)

	return sub, nil
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs)
}

// Close 结束所有订阅，之后的 Subscribe 会返回 ErrSubscriptionClosed
func (h *Hub) Close() {
	h.shutdown(domain.ErrSubscriptionClosed)
}

func (h *Hub) shutdown(reason error) {
	h.mu.Lock()
	if h.closed == nil {
		h.closed = reason
	}
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	if len(subs) > 0 {
		slog.Warn("正在终止所有订阅", "count", len(subs), "reason", reason)
	}
	for _, sub := range subs {
		sub.terminate(reason)
	}
}

func (h *Hub) remove(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[id]; ok {
		delete(h.subs, id)
		metrics.ActiveSubscriptions.Dec()
	}
}
