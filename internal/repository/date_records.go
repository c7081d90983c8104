package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/qunqun-dev/date-poll/backend/internal/domain"
)

// UpsertVote 只合并 votes 中该用户的这一项，其他用户的投票保持不变
func (r *Repository) UpsertVote(ctx context.Context, date string, user string, vote domain.Vote, at time.Time) error {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	if _, err := r.dbpool.ExecContext(ctx, r.queries.upsertVote, date, user, string(vote), at); err != nil {
		return err
	}

	return nil
}

func (r *Repository) GetDateRecordsInRange(ctx context.Context, dr domain.DateRange) ([]domain.DateRecord, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, r.queries.selectRange, dr.Start, dr.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDateRecords(rows)
}

func (r *Repository) GetAllDateRecords(ctx context.Context) ([]domain.DateRecord, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, r.queries.selectAll)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDateRecords(rows)
}

func scanDateRecords(rows *sql.Rows) ([]domain.DateRecord, error) {
	records := make([]domain.DateRecord, 0)
	for rows.Next() {
		var row struct {
			date      sql.NullString
			votes     []byte
			updatedAt timestamp
		}

		if err := rows.Scan(&row.date, &row.votes, &row.updatedAt); err != nil {
			return nil, err
		}

		record, err := buildRecord(row.date.String, decodeVotes(row.votes), row.updatedAt.Time)
		if err != nil {
			skipMalformed(err)
			continue
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
