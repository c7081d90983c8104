package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/qunqun-dev/date-poll/backend/internal/config"
	"github.com/qunqun-dev/date-poll/backend/internal/domain"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// VoteRepository 是 SQL 和 MongoDB 两种实现共同的能力
type VoteRepository interface {
	UpsertVote(ctx context.Context, date string, user string, vote domain.Vote, at time.Time) error
	GetDateRecordsInRange(ctx context.Context, dr domain.DateRange) ([]domain.DateRecord, error)
	GetAllDateRecords(ctx context.Context) ([]domain.DateRecord, error)
	CreateSchema(ctx context.Context) error
	Ping(ctx context.Context) error
}

var (
	_ VoteRepository = (*Repository)(nil)
	_ VoteRepository = (*MongoRepository)(nil)
)

// Open 根据 STORE_DRIVER 连接对应的存储并确保表结构存在，返回的 close 用于释放连接
func Open(ctx context.Context, cfg *config.Config) (VoteRepository, func(), error) {
	switch cfg.Store.Driver {
	case "mongo":
		return openMongo(ctx, cfg)
	case "postgres":
		return openSQL(ctx, cfg, DialectPostgres)
	case "sqlite":
		return openSQL(ctx, cfg, DialectSQLite)
	default:
		return nil, nil, config.ErrUnknownStoreDriver
	}
}

func openSQL(ctx context.Context, cfg *config.Config, dialect Dialect) (VoteRepository, func(), error) {
	dbpool, err := sql.Open(dialect.DriverName(), cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}

	dbpool.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	dbpool.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	dbpool.SetConnMaxIdleTime(time.Duration(cfg.Database.MaxIdleTime) * time.Second)
	if dialect == DialectSQLite {
		// SQLite 同一时间只允许一个写入者
		dbpool.SetMaxOpenConns(1)
	}

	connectCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Database.ConnectTimeout)*time.Second)
	defer cancel()

	// sql.Open 只是创建数据库连接池对象，并不会立即连接到数据库，因此需要显式地 ping 一下
	if err := dbpool.PingContext(connectCtx); err != nil {
		_ = dbpool.Close()
		return nil, nil, err
	}

	repo, err := NewRepository(cfg, dbpool, dialect)
	if err != nil {
		_ = dbpool.Close()
		return nil, nil, err
	}
	if err := repo.CreateSchema(connectCtx); err != nil {
		_ = dbpool.Close()
		return nil, nil, err
	}

	return repo, func() { _ = dbpool.Close() }, nil
}

func openMongo(ctx context.Context, cfg *config.Config) (VoteRepository, func(), error) {
	client, err := ConnectMongo(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Mongo.ConnectTimeout)*time.Second)
		defer cancel()
		_ = client.Disconnect(ctx)
	}

	repo := NewMongoRepository(cfg, client)
	if err := repo.CreateSchema(ctx); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("无法创建索引: %w", err)
	}

	return repo, closeFn, nil
}
