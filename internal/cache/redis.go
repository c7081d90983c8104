package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/qunqun-dev/date-poll/backend/internal/domain"
	"github.com/qunqun-dev/date-poll/backend/internal/metrics"
)

const rangeKeyPrefix = "date_poll:range:"

// RangeCache 缓存一次性区间查询的结果，写入某天后删除所有包含该日期的区间
type RangeCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRangeCache(rdb *redis.Client, ttl time.Duration) *RangeCache {
	return &RangeCache{client: rdb, ttl: ttl}
}

func RangeKey(dr domain.DateRange) string {
	return rangeKeyPrefix + dr.Start + ":" + dr.End
}

// ParseRangeKey 是 RangeKey 的逆操作
func ParseRangeKey(key string) (domain.DateRange, bool) {
	rest, ok := strings.CutPrefix(key, rangeKeyPrefix)
	if !ok {
		return domain.DateRange{}, false
	}
	start, end, ok := strings.Cut(rest, ":")
	if !ok || start == "" || end == "" {
		return domain.DateRange{}, false
	}
	return domain.DateRange{Start: start, End: end}, true
}

// Get 未命中时返回 nil, false
func (c *RangeCache) Get(ctx context.Context, dr domain.DateRange) ([]domain.DateRecord, bool, error) {
	val, err := c.client.Get(ctx, RangeKey(dr)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	records := make([]domain.DateRecord, 0)
	if err := json.Unmarshal(val, &records); err != nil {
		metrics.CacheMisses.Inc()
		return nil, false, nil
	}

	metrics.CacheHits.Inc()
	return records, true, nil
}

func (c *RangeCache) Set(ctx context.Context, dr domain.DateRange, records []domain.DateRecord) error {
	val, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, RangeKey(dr), val, c.ttl).Err()
}

// InvalidateDate 删除所有包含 date 的区间缓存
func (c *RangeCache) InvalidateDate(ctx context.Context, date string) error {
	var cursor uint64
	stale := make([]string, 0)

	for {
		var keys []string
		var err error

		keys, cursor, err = c.client.Scan(ctx, cursor, rangeKeyPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("扫描区间缓存失败: %w", err)
		}
		for _, key := range keys {
			if dr, ok := ParseRangeKey(key); ok && dr.Contains(date) {
				stale = append(stale, key)
			}
		}

		if cursor == 0 {
			break
		}
	}

	if len(stale) == 0 {
		return nil
	}
	return c.client.Del(ctx, stale...).Err()
}
