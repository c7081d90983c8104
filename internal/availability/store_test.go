package availability

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/qunqun-dev/date-poll/backend/internal/config"
	"github.com/qunqun-dev/date-poll/backend/internal/domain"
	"github.com/qunqun-dev/date-poll/backend/internal/live"
	"github.com/qunqun-dev/date-poll/backend/internal/notify"
	"github.com/qunqun-dev/date-poll/backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupTestRepository(t *testing.T) *repository.Repository {
	t.Helper()

	dbpool, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	dbpool.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = dbpool.Close() })

	cfg := &config.Config{}
	cfg.Database.QueryTimeout = 5

	repo, err := repository.NewRepository(cfg, dbpool, repository.DialectSQLite)
	require.NoError(t, err)
	require.NoError(t, repo.CreateSchema(context.Background()))

	return repo
}

func setupTestStore(t *testing.T) (*Store, *live.Hub) {
	t.Helper()

	repo := setupTestRepository(t)
	hub := live.NewHub(repo)
	notifier := notify.NewLocal()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx, notifier)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// 等待 hub 开始监听，避免测试中的第一次写入错过通知
	require.Eventually(t, func() bool { return notifier.Listeners() == 1 }, time.Second, time.Millisecond)

	return NewStore(repo, hub, notifier, nil), hub
}

type failingRepository struct {
	Repository
	err error
}

func (f *failingRepository) UpsertVote(ctx context.Context, date string, user string, vote domain.Vote, at time.Time) error {
	return f.err
}

func (f *failingRepository) GetAllDateRecords(ctx context.Context) ([]domain.DateRecord, error) {
	return nil, f.err
}

func (f *failingRepository) GetDateRecordsInRange(ctx context.Context, dr domain.DateRange) ([]domain.DateRecord, error) {
	return nil, f.err
}

type memoryCache struct {
	mu          sync.Mutex
	entries     map[domain.DateRange][]domain.DateRecord
	invalidated []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[domain.DateRange][]domain.DateRecord{}}
}

func (c *memoryCache) Get(ctx context.Context, dr domain.DateRange) ([]domain.DateRecord, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	records, ok := c.entries[dr]
	return records, ok, nil
}

func (c *memoryCache) Set(ctx context.Context, dr domain.DateRange, records []domain.DateRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[dr] = records
	return nil
}

func (c *memoryCache) InvalidateDate(ctx context.Context, date string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, date)
	for dr := range c.entries {
		if dr.Contains(date) {
			delete(c.entries, dr)
		}
	}
	return nil
}

func TestWriteThenScoreAndRoster(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "2024-02-10", "Alice", domain.VoteAvailable))
	require.NoError(t, store.Write(ctx, "2024-02-10", "Bob", domain.VoteUnavailable))

	dr, err := MonthRange(2024, 2)
	require.NoError(t, err)
	records, err := store.ReadRange(ctx, dr)
	require.NoError(t, err)

	view := NewMonthView(records)
	votes := view["2024-02-10"]
	assert.Equal(t, 0, Score(votes))
	assert.Equal(t, Roster{
		domain.VoteAvailable:   {"Alice"},
		domain.VoteTentative:   {},
		domain.VoteUnavailable: {"Bob"},
	}, RosterByVote(votes))
}

func TestWriteRejectsInvalidInput(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.Write(ctx, "2024-02-10", "Alice", domain.Vote("Y")), domain.ErrInvalidVote)
	assert.ErrorIs(t, store.Write(ctx, "2024-02-30", "Alice", domain.VoteAvailable), domain.ErrInvalidDate)
	assert.ErrorIs(t, store.Write(ctx, "2024-02-10", "  ", domain.VoteAvailable), domain.ErrInvalidUser)

	records, err := store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestWriteStorageUnavailable(t *testing.T) {
	repo := &failingRepository{err: errors.New("dial tcp: connection refused")}
	store := NewStore(repo, live.NewHub(repo), notify.NewLocal(), nil)

	err := store.Write(context.Background(), "2024-02-10", "Alice", domain.VoteAvailable)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)

	_, err = store.ReadAll(context.Background())
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)

	_, err = store.QueryRange(context.Background(), domain.DateRange{Start: "2024-02-01", End: "2024-03-01"}, func(live.Snapshot) {})
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestQueryRangeReceivesWrites(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	snapshots := make(chan live.Snapshot, 16)
	sub, err := store.QueryRange(ctx, domain.DateRange{Start: "2024-02-01", End: "2024-03-01"}, func(s live.Snapshot) {
		snapshots <- s
	})
	require.NoError(t, err)
	defer sub.Cancel()

	first := <-snapshots
	assert.Empty(t, first.Records)

	require.NoError(t, store.Write(ctx, "2024-02-29", "Alice", domain.VoteTentative))
	require.NoError(t, store.Write(ctx, "2024-03-01", "Alice", domain.VoteTentative))

	select {
	case s := <-snapshots:
		require.Len(t, s.Records, 1)
		assert.Equal(t, "2024-02-29", s.Records[0].Date)
	case <-time.After(time.Second):
		t.Fatal("没有收到写入后的快照")
	}
}

func TestQueryRangeRejectsInvalidRange(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.QueryRange(context.Background(), domain.DateRange{Start: "2024-03-01", End: "2024-02-01"}, func(live.Snapshot) {})
	assert.ErrorIs(t, err, domain.ErrInvalidDate)
}

func TestReadRangeUsesCache(t *testing.T) {
	repo := setupTestRepository(t)
	cache := newMemoryCache()
	store := NewStore(repo, live.NewHub(repo), notify.NewLocal(), cache)
	ctx := context.Background()
	feb := domain.DateRange{Start: "2024-02-01", End: "2024-03-01"}

	require.NoError(t, store.Write(ctx, "2024-02-10", "Alice", domain.VoteAvailable))

	records, err := store.ReadRange(ctx, feb)
	require.NoError(t, err)
	require.Len(t, records, 1)

	cached, ok, _ := cache.Get(ctx, feb)
	require.True(t, ok)
	assert.Equal(t, records, cached)

	// 写入会清除包含该日期的缓存
	require.NoError(t, store.Write(ctx, "2024-02-11", "Bob", domain.VoteAvailable))
	_, ok, _ = cache.Get(ctx, feb)
	assert.False(t, ok)
	assert.Equal(t, []string{"2024-02-10", "2024-02-11"}, cache.invalidated)

	records, err = store.ReadRange(ctx, feb)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

// pausingRepository 在第一次区间查询读完数据后暂停，直到 resume 被关闭
type pausingRepository struct {
	Repository
	once   sync.Once
	read   chan struct{}
	resume chan struct{}
}

func (p *pausingRepository) GetDateRecordsInRange(ctx context.Context, dr domain.DateRange) ([]domain.DateRecord, error) {
	records, err := p.Repository.GetDateRecordsInRange(ctx, dr)
	p.once.Do(func() {
		close(p.read)
		<-p.resume
	})
	return records, err
}

func TestReadRangeDoesNotCacheSnapshotOlderThanWrite(t *testing.T) {
	repo := &pausingRepository{
		Repository: setupTestRepository(t),
		read:       make(chan struct{}),
		resume:     make(chan struct{}),
	}
	cache := newMemoryCache()
	store := NewStore(repo, live.NewHub(repo), notify.NewLocal(), cache)
	ctx := context.Background()
	feb := domain.DateRange{Start: "2024-02-01", End: "2024-03-01"}

	type readResult struct {
		records []domain.DateRecord
		err     error
	}
	done := make(chan readResult, 1)
	go func() {
		records, err := store.ReadRange(ctx, feb)
		done <- readResult{records, err}
	}()

	// 读取拿到空结果之后、回填缓存之前发生一次写入
	<-repo.read
	require.NoError(t, store.Write(ctx, "2024-02-10", "Alice", domain.VoteAvailable))
	close(repo.resume)

	stale := <-done
	require.NoError(t, stale.err)
	assert.Empty(t, stale.records)

	_, ok, _ := cache.Get(ctx, feb)
	assert.False(t, ok)

	records, err := store.ReadRange(ctx, feb)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.Votes{"Alice": domain.VoteAvailable}, records[0].Votes)
}
