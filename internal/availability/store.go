package availability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/qunqun-dev/date-poll/backend/internal/domain"
	"github.com/qunqun-dev/date-poll/backend/internal/live"
	"github.com/qunqun-dev/date-poll/backend/internal/metrics"
	"github.com/qunqun-dev/date-poll/backend/internal/utils"
)

type Repository interface {
	UpsertVote(ctx context.Context, date string, user string, vote domain.Vote, at time.Time) error
	GetDateRecordsInRange(ctx context.Context, dr domain.DateRange) ([]domain.DateRecord, error)
	GetAllDateRecords(ctx context.Context) ([]domain.DateRecord, error)
}

type Publisher interface {
	Publish(ctx context.Context, ev domain.ChangeEvent) error
}

type RangeCache interface {
	Get(ctx context.Context, dr domain.DateRange) ([]domain.DateRecord, bool, error)
	Set(ctx context.Context, dr domain.DateRange, records []domain.DateRecord) error
	InvalidateDate(ctx context.Context, date string) error
}

// Store 是投票记录存储对外的契约：写入、区间订阅和全量读取
type Store struct {
	repo      Repository
	hub       *live.Hub
	publisher Publisher
	cache     RangeCache
	now       func() time.Time

	// 每次写入成功后递增。区间读取只在期间没有写入时才回填缓存，
	// 检查和回填在读锁内完成，写入在写锁内递增
	cacheMu  sync.RWMutex
	writeGen uint64
}

// NewStore 中的 cache 可以为 nil，表示不使用缓存
func NewStore(repo Repository, hub *live.Hub, publisher Publisher, cache RangeCache) *Store {
	return &Store{
		repo:      repo,
		hub:       hub,
		publisher: publisher,
		cache:     cache,
		now:       time.Now,
	}
}

// Write 把 votes[userName] 设为 vote，不影响同一天其他用户的投票。失败时不会重试
func (s *Store) Write(ctx context.Context, date string, userName string, vote domain.Vote) error {
	if err := utils.ValidateDate(date); err != nil {
		return err
	}
	if err := utils.ValidateUserName(userName); err != nil {
		return err
	}
	if !vote.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidVote, string(vote))
	}

	at := s.now()
	start := time.Now()
	err := s.repo.UpsertVote(ctx, date, userName, vote, at)
	metrics.WriteDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.WriteFailures.Inc()
		return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	metrics.VotesWritten.WithLabelValues(string(vote)).Inc()

	if s.cache != nil {
		s.cacheMu.Lock()
		s.writeGen++
		s.cacheMu.Unlock()

		if err := s.cache.InvalidateDate(ctx, date); err != nil {
			slog.Warn("无法清除区间缓存", "date", date, "error", err)
		}
	}

	ev := domain.ChangeEvent{Date: date, User: userName, Vote: vote, UpdatedAt: at}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		// 至少让本副本上的订阅者看到这次写入
		slog.Warn("无法发布变更事件", "date", date, "error", err)
		s.hub.Notify(date)
	}

	return nil
}

// QueryRange 建立 [dr.Start, dr.End) 上的持续订阅，返回的订阅需要由调用方取消
func (s *Store) QueryRange(ctx context.Context, dr domain.DateRange, fn func(live.Snapshot)) (*live.Subscription, error) {
	if err := utils.ValidateDateRange(dr); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(ctx, dr, fn)
}

func (s *Store) ReadAll(ctx context.Context) ([]domain.DateRecord, error) {
	records, err := s.repo.GetAllDateRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	return records, nil
}

// ReadRange 是一次性的区间读取，配置了缓存时优先读缓存
func (s *Store) ReadRange(ctx context.Context, dr domain.DateRange) ([]domain.DateRecord, error) {
	if err := utils.ValidateDateRange(dr); err != nil {
		return nil, err
	}

	if s.cache != nil {
		records, ok, err := s.cache.Get(ctx, dr)
		if err != nil {
			slog.Warn("读取区间缓存失败", "start", dr.Start, "end", dr.End, "error", err)
		} else if ok {
			return records, nil
		}
	}

	s.cacheMu.RLock()
	gen := s.writeGen
	s.cacheMu.RUnlock()

	records, err := s.repo.GetDateRecordsInRange(ctx, dr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}

	if s.cache != nil {
		s.fillCache(ctx, dr, records, gen)
	}

	return records, nil
}

// fillCache 在读取期间发生过写入时放弃回填，避免把旧数据写回已经清除过的缓存
func (s *Store) fillCache(ctx context.Context, dr domain.DateRange, records []domain.DateRecord, gen uint64) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	if s.writeGen != gen {
		return
	}
	if err := s.cache.Set(ctx, dr, records); err != nil {
		slog.Warn("写入区间缓存失败", "start", dr.Start, "end", dr.End, "error", err)
	}
}
