package repository

import "context"

type queries struct {
	schema      string
	upsertVote  string
	selectRange string
	selectAll   string
}

// votes 列允许为空：文档存储中缺少 votes 的记录也可能出现，读取时会被当作格式错误的记录跳过
var dialectQueries = map[Dialect]queries{
	DialectPostgres: {
		schema: `
			CREATE TABLE IF NOT EXISTS date_records (
				date       TEXT PRIMARY KEY,
				votes      JSONB,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)
		`,
		upsertVote: `
			INSERT INTO date_records (date, votes, updated_at)
			VALUES ($1, jsonb_build_object($2::text, $3::text), $4)
			ON CONFLICT (date) DO UPDATE
			SET
				votes = (
					CASE WHEN jsonb_typeof(date_records.votes) = 'object'
					THEN date_records.votes
					ELSE '{}'::jsonb END
				) || EXCLUDED.votes,
				updated_at = EXCLUDED.updated_at
		`,
		selectRange: `
			SELECT date, votes, updated_at
			FROM date_records
			WHERE date >= $1 AND date < $2
			ORDER BY date
		`,
		selectAll: `
			SELECT date, votes, updated_at FROM date_records ORDER BY date
		`,
	},
	DialectSQLite: {
		schema: `
			CREATE TABLE IF NOT EXISTS date_records (
				date       TEXT PRIMARY KEY,
				votes      TEXT,
				updated_at TIMESTAMP
			)
		`,
		upsertVote: `
			INSERT INTO date_records (date, votes, updated_at)
			VALUES (?, json_object(?, ?), ?)
			ON CONFLICT (date) DO UPDATE
			SET
				votes = json_patch(
					CASE WHEN json_valid(date_records.votes) THEN
						CASE WHEN json_type(date_records.votes) = 'object' THEN date_records.votes ELSE '{}' END
					ELSE '{}' END,
					excluded.votes
				),
				updated_at = excluded.updated_at
		`,
		selectRange: `
			SELECT date, votes, updated_at
			FROM date_records
			WHERE date >= ? AND date < ?
			ORDER BY date
		`,
		selectAll: `
			SELECT date, votes, updated_at FROM date_records ORDER BY date
		`,
	},
}

// CreateSchema 在启动时创建所需的表
func (r *Repository) CreateSchema(ctx context.Context) error {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	_, err := r.dbpool.ExecContext(ctx, r.queries.schema)
	return err
}
