package repository

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/qunqun-dev/date-poll/backend/internal/domain"
	"github.com/qunqun-dev/date-poll/backend/internal/metrics"
	"github.com/qunqun-dev/date-poll/backend/internal/utils"
)

// buildRecord 校验从存储中读出的原始字段，格式错误的记录返回 ErrMalformedRecord。
// votes 为 nil 表示字段缺失或者不是对象；单个格子的值不是字符串时只跳过这一格
func buildRecord(date string, votes map[string]any, updatedAt time.Time) (domain.DateRecord, error) {
	if err := utils.ValidateDate(date); err != nil {
		return domain.DateRecord{}, fmt.Errorf("%w: 日期 %q 不合法", domain.ErrMalformedRecord, date)
	}
	if votes == nil {
		return domain.DateRecord{}, fmt.Errorf("%w: %s 的 votes 缺失或不是对象", domain.ErrMalformedRecord, date)
	}

	record := domain.DateRecord{
		Date:      date,
		Votes:     make(domain.Votes, len(votes)),
		UpdatedAt: updatedAt,
	}
	for user, cell := range votes {
		code, ok := cell.(string)
		if !ok {
			slog.Warn("跳过无法识别的投票", "date", date, "user", user, "vote", cell)
			continue
		}
		vote, err := domain.ParseVote(code)
		if err != nil {
			slog.Warn("跳过无法识别的投票", "date", date, "user", user, "vote", code)
			continue
		}
		record.Votes[user] = vote
	}

	// 没有任何有效投票的记录等同于不存在
	if len(record.Votes) == 0 {
		return domain.DateRecord{}, fmt.Errorf("%w: %s 没有有效的投票", domain.ErrMalformedRecord, date)
	}

	return record, nil
}

// decodeVotes 只要求 votes 是 JSON 对象，各个格子的值留给 buildRecord 逐个检查
func decodeVotes(raw []byte) map[string]any {
	if raw == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	votes, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return votes
}

func skipMalformed(err error) {
	metrics.MalformedRecords.Inc()
	slog.Warn("跳过格式错误的记录", "error", err)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
}

// timestamp 兼容不同驱动对时间列的返回类型，无法识别时保持零值
type timestamp struct {
	time.Time
}

func (ts *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		ts.Time = v
	case string:
		ts.Time = parseTimestamp(v)
	case []byte:
		ts.Time = parseTimestamp(string(v))
	case int64:
		ts.Time = time.UnixMilli(v)
	default:
		ts.Time = time.Time{}
	}
	return nil
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
