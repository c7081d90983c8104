package repository

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/qunqun-dev/date-poll/backend/internal/config"
	"github.com/qunqun-dev/date-poll/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupTestRepository(t *testing.T) (*Repository, *sql.DB) {
	t.Helper()

	dbpool, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// 内存数据库只在单个连接内可见
	dbpool.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = dbpool.Close() })

	cfg := &config.Config{}
	cfg.Database.QueryTimeout = 5

	repo, err := NewRepository(cfg, dbpool, DialectSQLite)
	require.NoError(t, err)
	require.NoError(t, repo.CreateSchema(context.Background()))

	return repo, dbpool
}

func recordsByDate(records []domain.DateRecord) map[string]domain.Votes {
	m := make(map[string]domain.Votes, len(records))
	for _, r := range records {
		m[r.Date] = r.Votes
	}
	return m
}

func TestNewRepositoryRejectsUnknownDialect(t *testing.T) {
	_, err := NewRepository(&config.Config{}, nil, Dialect("oracle"))
	assert.Error(t, err)
}

func TestUpsertVoteLastWriteWinsPerCell(t *testing.T) {
	repo, _ := setupTestRepository(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.UpsertVote(ctx, "2024-02-10", "Alice", domain.VoteAvailable, now))
	require.NoError(t, repo.UpsertVote(ctx, "2024-02-10", "Alice", domain.VoteUnavailable, now.Add(time.Second)))

	records, err := repo.GetAllDateRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2024-02-10", records[0].Date)
	assert.Equal(t, domain.Votes{"Alice": domain.VoteUnavailable}, records[0].Votes)
}

func TestUpsertVoteMergeIsolation(t *testing.T) {
	repo, _ := setupTestRepository(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.UpsertVote(ctx, "2024-02-10", "Bob", domain.VoteTentative, now))
	require.NoError(t, repo.UpsertVote(ctx, "2024-02-11", "Alice", domain.VoteAvailable, now))
	require.NoError(t, repo.UpsertVote(ctx, "2024-02-10", "Alice", domain.VoteUnavailable, now))

	records, err := repo.GetAllDateRecords(ctx)
	require.NoError(t, err)

	byDate := recordsByDate(records)
	assert.Equal(t, domain.Votes{"Alice": domain.VoteUnavailable, "Bob": domain.VoteTentative}, byDate["2024-02-10"])
	assert.Equal(t, domain.Votes{"Alice": domain.VoteAvailable}, byDate["2024-02-11"])
}

func TestUpsertVoteKeepsNamesCaseSensitive(t *testing.T) {
	repo, _ := setupTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertVote(ctx, "2024-02-10", "alice", domain.VoteAvailable, time.Now()))
	require.NoError(t, repo.UpsertVote(ctx, "2024-02-10", "Alice", domain.VoteUnavailable, time.Now()))
	require.NoError(t, repo.UpsertVote(ctx, "2024-02-10", `a."b"$c`, domain.VoteTentative, time.Now()))

	records, err := repo.GetAllDateRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.Votes{
		"alice":   domain.VoteAvailable,
		"Alice":   domain.VoteUnavailable,
		`a."b"$c`: domain.VoteTentative,
	}, records[0].Votes)
}

func TestGetDateRecordsInRangeLeapYearWindow(t *testing.T) {
	repo, _ := setupTestRepository(t)
	ctx := context.Background()

	for _, date := range []string{"2024-01-31", "2024-02-01", "2024-02-29", "2024-03-01"} {
		require.NoError(t, repo.UpsertVote(ctx, date, "Alice", domain.VoteAvailable, time.Now()))
	}

	records, err := repo.GetDateRecordsInRange(ctx, domain.DateRange{Start: "2024-02-01", End: "2024-03-01"})
	require.NoError(t, err)

	dates := make([]string, 0, len(records))
	for _, r := range records {
		dates = append(dates, r.Date)
	}
	assert.Equal(t, []string{"2024-02-01", "2024-02-29"}, dates)
}

func TestGetDateRecordsInRangeEmpty(t *testing.T) {
	repo, _ := setupTestRepository(t)

	records, err := repo.GetDateRecordsInRange(context.Background(), domain.DateRange{Start: "2024-02-01", End: "2024-03-01"})
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestMalformedRecordsAreSkipped(t *testing.T) {
	repo, dbpool := setupTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertVote(ctx, "2024-02-10", "Alice", domain.VoteAvailable, time.Now()))

	rows := []struct {
		date  any
		votes any
	}{
		{"2024-02-11", nil},           // 缺少 votes
		{"2024-02-12", `"oops"`},      // votes 不是对象
		{"2024-02-13", `{"Bob":"Q"}`}, // 没有合法的投票
		{"not-a-date", `{"Bob":"O"}`}, // 日期不合法
	}
	for _, row := range rows {
		_, err := dbpool.ExecContext(ctx, `INSERT INTO date_records (date, votes) VALUES (?, ?)`, row.date, row.votes)
		require.NoError(t, err)
	}

	records, err := repo.GetDateRecordsInRange(ctx, domain.DateRange{Start: "2024-02-01", End: "2024-03-01"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2024-02-10", records[0].Date)

	all, err := repo.GetAllDateRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestNonStringCellIsDroppedNotTheRecord(t *testing.T) {
	repo, dbpool := setupTestRepository(t)
	ctx := context.Background()

	_, err := dbpool.ExecContext(ctx, `INSERT INTO date_records (date, votes) VALUES (?, ?)`, "2024-02-14", `{"Bob":"O","Eve":1}`)
	require.NoError(t, err)

	records, err := repo.GetAllDateRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.Votes{"Bob": domain.VoteAvailable}, records[0].Votes)

	// 坏格子会随合并保留下来，之后的写入仍然要能读到
	require.NoError(t, repo.UpsertVote(ctx, "2024-02-14", "Alice", domain.VoteTentative, time.Now()))
	require.NoError(t, repo.UpsertVote(ctx, "2024-02-14", "Carol", domain.VoteUnavailable, time.Now()))

	records, err = repo.GetAllDateRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.Votes{
		"Bob":   domain.VoteAvailable,
		"Alice": domain.VoteTentative,
		"Carol": domain.VoteUnavailable,
	}, records[0].Votes)
}

func TestDecodeVotes(t *testing.T) {
	assert.Nil(t, decodeVotes(nil))
	assert.Nil(t, decodeVotes([]byte(`"oops"`)))
	assert.Nil(t, decodeVotes([]byte(`[1,2]`)))
	assert.Nil(t, decodeVotes([]byte(`{not json`)))
	assert.Equal(t, map[string]any{"Bob": "O", "Eve": float64(1)}, decodeVotes([]byte(`{"Bob":"O","Eve":1}`)))
}

func TestMalformedRecordRepairedByNextWrite(t *testing.T) {
	repo, dbpool := setupTestRepository(t)
	ctx := context.Background()

	_, err := dbpool.ExecContext(ctx, `INSERT INTO date_records (date, votes) VALUES (?, ?)`, "2024-02-12", `"oops"`)
	require.NoError(t, err)

	require.NoError(t, repo.UpsertVote(ctx, "2024-02-12", "Alice", domain.VoteTentative, time.Now()))

	records, err := repo.GetAllDateRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.Votes{"Alice": domain.VoteTentative}, records[0].Votes)
}

func TestUpsertVoteConcurrentUsers(t *testing.T) {
	repo, _ := setupTestRepository(t)
	ctx := context.Background()

	users := []string{"Alice", "Bob", "Carol", "Dave", "Erin", "Frank"}
	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			assert.NoError(t, repo.UpsertVote(ctx, "2024-02-10", user, domain.VoteAvailable, time.Now()))
		}(u)
	}
	wg.Wait()

	records, err := repo.GetAllDateRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Len(t, records[0].Votes, len(users))
}

func TestOpenSQLite(t *testing.T) {
	cfg := &config.Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Database.DSN = ":memory:"
	cfg.Database.ConnectTimeout = 5
	cfg.Database.QueryTimeout = 5
	cfg.Database.MaxOpenConns = 10

	repo, closeFn, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer closeFn()

	require.NoError(t, repo.Ping(context.Background()))
	require.NoError(t, repo.UpsertVote(context.Background(), "2024-02-10", "Alice", domain.VoteAvailable, time.Now()))

	records, err := repo.GetAllDateRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.Votes{"Alice": domain.VoteAvailable}, records[0].Votes)
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := &config.Config{}
	cfg.Store.Driver = "cassandra"

	_, _, err := Open(context.Background(), cfg)
	assert.ErrorIs(t, err, config.ErrUnknownStoreDriver)
}
