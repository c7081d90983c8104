package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/qunqun-dev/date-poll/backend/internal/domain"
	"github.com/qunqun-dev/date-poll/backend/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu      sync.Mutex
	records map[string]domain.Votes
	fail    bool
}

func newFakeReader() *fakeReader {
	return &fakeReader{records: map[string]domain.Votes{}}
}

func (f *fakeReader) set(date, user string, vote domain.Vote) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.records[date] == nil {
		f.records[date] = domain.Votes{}
	}
	f.records[date][user] = vote
}

func (f *fakeReader) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fail = fail
}

func (f *fakeReader) GetDateRecordsInRange(ctx context.Context, dr domain.DateRange) ([]domain.DateRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		return nil, errors.New("connection refused")
	}
	records := make([]domain.DateRecord, 0)
	for date, votes := range f.records {
		if dr.Contains(date) {
			records = append(records, domain.DateRecord{Date: date, Votes: votes.Clone()})
		}
	}
	return records, nil
}

var february = domain.DateRange{Start: "2024-02-01", End: "2024-03-01"}

func collect() (func(Snapshot), chan Snapshot) {
	ch := make(chan Snapshot, 16)
	return func(s Snapshot) { ch <- s }, ch
}

func next(t *testing.T, ch chan Snapshot) Snapshot {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(time.Second):
		t.Fatal("等待快照超时")
	}
	return Snapshot{}
}

func none(t *testing.T, ch chan Snapshot) {
	t.Helper()
	select {
	case s := <-ch:
		t.Fatalf("不应收到快照: %+v", s)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeDeliversInitialSnapshot(t *testing.T) {
	reader := newFakeReader()
	hub := NewHub(reader)

	fn, ch := collect()
	sub, err := hub.Subscribe(context.Background(), february, fn)
	require.NoError(t, err)
	defer sub.Cancel()

	s := next(t, ch)
	assert.Empty(t, s.Records)
	assert.Equal(t, february, s.Range)
	assert.Equal(t, uint64(1), s.Seq)
	assert.Equal(t, 1, hub.Len())
}

func TestNotifyRefreshesOnlyMatchingSubscriptions(t *testing.T) {
	reader := newFakeReader()
	hub := NewHub(reader)

	fnFeb, feb := collect()
	subFeb, err := hub.Subscribe(context.Background(), february, fnFeb)
	require.NoError(t, err)
	defer subFeb.Cancel()

	fnMar, mar := collect()
	subMar, err := hub.Subscribe(context.Background(), domain.DateRange{Start: "2024-03-01", End: "2024-04-01"}, fnMar)
	require.NoError(t, err)
	defer subMar.Cancel()

	next(t, feb)
	next(t, mar)

	reader.set("2024-02-29", "Alice", domain.VoteAvailable)
	hub.Notify("2024-02-29")

	s := next(t, feb)
	require.Len(t, s.Records, 1)
	assert.Equal(t, "2024-02-29", s.Records[0].Date)
	none(t, mar)
}

func TestSnapshotsAreIndependentCopies(t *testing.T) {
	reader := newFakeReader()
	reader.set("2024-02-10", "Alice", domain.VoteAvailable)
	hub := NewHub(reader)

	fn, ch := collect()
	sub, err := hub.Subscribe(context.Background(), february, fn)
	require.NoError(t, err)
	defer sub.Cancel()

	s := next(t, ch)
	s.Records[0].Votes["Mallory"] = domain.VoteUnavailable

	hub.Notify("2024-02-10")
	s = next(t, ch)
	assert.Equal(t, domain.Votes{"Alice": domain.VoteAvailable}, s.Records[0].Votes)
}

func TestCancelIsIdempotent(t *testing.T) {
	hub := NewHub(newFakeReader())

	fn, ch := collect()
	sub, err := hub.Subscribe(context.Background(), february, fn)
	require.NoError(t, err)
	next(t, ch)

	sub.Cancel()
	sub.Cancel()

	<-sub.Done()
	assert.NoError(t, sub.Err())
	assert.Equal(t, 0, hub.Len())

	hub.Notify("2024-02-10")
	none(t, ch)
}

func TestContextCancelEndsSubscription(t *testing.T) {
	hub := NewHub(newFakeReader())
	ctx, cancel := context.WithCancel(context.Background())

	fn, ch := collect()
	sub, err := hub.Subscribe(ctx, february, fn)
	require.NoError(t, err)
	next(t, ch)

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("订阅没有随 ctx 结束")
	}
	assert.NoError(t, sub.Err())
	assert.Equal(t, 0, hub.Len())
}

func TestRefreshFailureIsTerminal(t *testing.T) {
	reader := newFakeReader()
	hub := NewHub(reader)

	fn, ch := collect()
	sub, err := hub.Subscribe(context.Background(), february, fn)
	require.NoError(t, err)
	next(t, ch)

	reader.setFail(true)
	hub.Notify("2024-02-10")

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("订阅没有终止")
	}
	assert.ErrorIs(t, sub.Err(), domain.ErrStorageUnavailable)
	assert.Equal(t, 0, hub.Len())

	// 存储恢复后可以重新订阅
	reader.setFail(false)
	sub, err = hub.Subscribe(context.Background(), february, fn)
	require.NoError(t, err)
	sub.Cancel()
}

func TestSubscribeFailsWhenStorageUnavailable(t *testing.T) {
	reader := newFakeReader()
	reader.setFail(true)
	hub := NewHub(reader)

	fn, _ := collect()
	_, err := hub.Subscribe(context.Background(), february, fn)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.Equal(t, 0, hub.Len())
}

func TestRunPropagatesChangeEvents(t *testing.T) {
	reader := newFakeReader()
	hub := NewHub(reader)
	notifier := notify.NewLocal()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx, notifier) }()

	fn, ch := collect()
	sub, err := hub.Subscribe(context.Background(), february, fn)
	require.NoError(t, err)
	defer sub.Cancel()
	next(t, ch)

	reader.set("2024-02-10", "Bob", domain.VoteUnavailable)
	require.Eventually(t, func() bool {
		_ = notifier.Publish(context.Background(), domain.ChangeEvent{Date: "2024-02-10"})
		select {
		case s := <-ch:
			return len(s.Records) == 1
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestBrokenChangeFeedTerminatesSubscriptions(t *testing.T) {
	hub := NewHub(newFakeReader())
	notifier := notify.NewLocal()

	fn, ch := collect()
	sub, err := hub.Subscribe(context.Background(), february, fn)
	require.NoError(t, err)
	next(t, ch)

	errCh := make(chan error, 1)
	go func() { errCh <- hub.Run(context.Background(), notifier) }()

	// 无论 Run 是否已开始监听，关闭的通知器都会让它返回
	notifier.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	case <-time.After(time.Second):
		t.Fatal("Run 没有返回")
	}

	<-sub.Done()
	assert.ErrorIs(t, sub.Err(), domain.ErrStorageUnavailable)

	_, err = hub.Subscribe(context.Background(), february, fn)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}
