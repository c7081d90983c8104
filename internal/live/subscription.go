package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/qunqun-dev/date-poll/backend/internal/domain"
	"github.com/qunqun-dev/date-poll/backend/internal/metrics"
)

// Snapshot 是某次推送时区间内的全部记录，每次推送都是独立的副本
type Snapshot struct {
	Range   domain.DateRange    `json:"range"`
	Records []domain.DateRecord `json:"records"`
	Seq     uint64              `json:"seq"`
}

type Subscription struct {
	id  uuid.UUID
	hub *Hub
	rng domain.DateRange
	fn  func(Snapshot)
	seq uint64

	ctx    context.Context
	cancel context.CancelFunc
	dirty  chan struct{}
	done   chan struct{}

	once sync.Once
	mu   sync.Mutex
	err  error
}

func (s *Subscription) ID() string {
	return s.id.String()
}

func (s *Subscription) Range() domain.DateRange {
	return s.rng
}

// Cancel 停止推送并释放订阅，可以重复调用
func (s *Subscription) Cancel() {
	s.terminate(nil)
}

// Done 在订阅结束（取消或失败）后关闭
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err 返回订阅失败的原因；由调用方取消时返回 nil
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

func (s *Subscription) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

func (s *Subscription) terminate(reason error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = reason
		s.mu.Unlock()

		if reason != nil && !errors.Is(reason, domain.ErrSubscriptionClosed) {
			metrics.SubscriptionFailures.Inc()
		}

		s.cancel()
		close(s.done)
		s.hub.remove(s.id)
	})
}

func (s *Subscription) loop(initial []domain.DateRecord) {
	s.deliver(initial)

	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			// 调用方的 ctx 结束等同于取消订阅
			s.terminate(nil)
			return
		case <-s.dirty:
			records, err := s.hub.reader.GetDateRecordsInRange(s.ctx, s.rng)
			if err != nil {
				if s.ctx.Err() != nil {
					s.terminate(nil)
					return
				}
				slog.Error("刷新订阅失败", "subscription", s.id, "error", err)
				s.terminate(fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err))
				return
			}
			s.deliver(records)
		}
	}
}

func (s *Subscription) deliver(records []domain.DateRecord) {
	select {
	case <-s.done:
		return
	default:
	}

	s.seq++
	snapshot := Snapshot{
		Range:   s.rng,
		Records: make([]domain.DateRecord, len(records)),
		Seq:     s.seq,
	}
	for i, r := range records {
		snapshot.Records[i] = r.Clone()
	}

	s.fn(snapshot)
	metrics.SnapshotsDelivered.Inc()
}
