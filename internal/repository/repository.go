package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/qunqun-dev/date-poll/backend/internal/config"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DriverName 返回 database/sql 中注册的驱动名
func (d Dialect) DriverName() string {
	switch d {
	case DialectSQLite:
		return "sqlite"
	default:
		return "pgx"
	}
}

type Repository struct {
	cfg     *config.Config
	dbpool  *sql.DB
	dialect Dialect
	queries queries
}

func NewRepository(cfg *config.Config, dbpool *sql.DB, dialect Dialect) (*Repository, error) {
	q, ok := dialectQueries[dialect]
	if !ok {
		return nil, fmt.Errorf("不支持的数据库方言: %s", dialect)
	}

	return &Repository{
		cfg:     cfg,
		dbpool:  dbpool,
		dialect: dialect,
		queries: q,
	}, nil
}

func (r *Repository) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
}

func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	return r.dbpool.PingContext(ctx)
}
