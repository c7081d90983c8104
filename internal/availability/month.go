package availability

import (
	"context"
	"fmt"
	"sync"

	"github.com/qunqun-dev/date-poll/backend/internal/domain"
	"github.com/qunqun-dev/date-poll/backend/internal/live"
)

// MonthRange 把 (year, month) 转成 [YYYY-MM-01, 下个月-01)，month 取 1-12
func MonthRange(year, month int) (domain.DateRange, error) {
	if month < 1 || month > 12 {
		return domain.DateRange{}, fmt.Errorf("%w: %d", domain.ErrInvalidMonth, month)
	}
	// 结束日期要落在 9999 年之内
	if year < 1 || year > 9998 {
		return domain.DateRange{}, fmt.Errorf("%w: 年份 %d 超出范围", domain.ErrInvalidMonth, year)
	}

	nextYear, nextMonth := year, month+1
	if nextMonth > 12 {
		nextMonth = 1
		nextYear++
	}

	return domain.DateRange{
		Start: fmt.Sprintf("%04d-%02d-01", year, month),
		End:   fmt.Sprintf("%04d-%02d-01", nextYear, nextMonth),
	}, nil
}

type Subscriber interface {
	QueryRange(ctx context.Context, dr domain.DateRange, fn func(live.Snapshot)) (*live.Subscription, error)
}

type MonthUpdate struct {
	Year  int
	Month int
	Range domain.DateRange
	View  domain.MonthView
	Seq   uint64
}

// MonthWatcher 同一时间只保留一个月份的订阅，切换月份前会先取消旧的订阅
type MonthWatcher struct {
	subscriber Subscriber

	mu      sync.Mutex
	current *live.Subscription

	// 回调在读锁内检查 gen 并执行，切换月份在写锁内递增 gen，
	// 因此 Watch 返回后旧月份的回调不会再执行。fn 中不能调用 Watch 或 Close
	deliverMu sync.RWMutex
	gen       uint64
}

func NewMonthWatcher(subscriber Subscriber) *MonthWatcher {
	return &MonthWatcher{subscriber: subscriber}
}

func (w *MonthWatcher) Watch(ctx context.Context, year, month int, fn func(MonthUpdate)) (*live.Subscription, error) {
	dr, err := MonthRange(year, month)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.cancelCurrent()
	gen := w.nextGen()

	sub, err := w.subscriber.QueryRange(ctx, dr, func(s live.Snapshot) {
		w.deliverMu.RLock()
		defer w.deliverMu.RUnlock()

		// 旧月份的订阅即使还有正在进行的推送也不再回调
		if w.gen != gen {
			return
		}
		fn(MonthUpdate{
			Year:  year,
			Month: month,
			Range: dr,
			View:  NewMonthView(s.Records),
			Seq:   s.Seq,
		})
	})
	if err != nil {
		return nil, err
	}
	w.current = sub

	return sub, nil
}

// Current 返回当前的订阅，没有时返回 nil
func (w *MonthWatcher) Current() *live.Subscription {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.current
}

func (w *MonthWatcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.cancelCurrent()
	w.nextGen()
}

// nextGen 会等待正在执行的回调结束
func (w *MonthWatcher) nextGen() uint64 {
	w.deliverMu.Lock()
	defer w.deliverMu.Unlock()

	w.gen++
	return w.gen
}

func (w *MonthWatcher) cancelCurrent() {
	if w.current != nil {
		w.current.Cancel()
		w.current = nil
	}
}
