package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	VotesWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "date_poll_votes_written_total",
		Help: "成功写入的投票数量",
	}, []string{"vote"})
	WriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "date_poll_write_failures_total",
		Help: "写入失败的次数",
	})
	WriteDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "date_poll_write_duration_seconds",
		Help: "单次投票写入的耗时",
	})
	MalformedRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "date_poll_malformed_records_total",
		Help: "读取时被跳过的格式错误记录数量",
	})
	ActiveSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "date_poll_active_subscriptions",
		Help: "当前活跃的区间订阅数量",
	})
	SnapshotsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "date_poll_snapshots_delivered_total",
		Help: "推送给订阅者的快照数量",
	})
	SubscriptionFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "date_poll_subscription_failures_total",
		Help: "因存储或变更通道故障而终止的订阅数量",
	})
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "date_poll_cache_hits_total",
		Help: "区间缓存命中次数",
	})
	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "date_poll_cache_misses_total",
		Help: "区间缓存未命中次数",
	})
)

func init() {
	prometheus.MustRegister(
		VotesWritten,
		WriteFailures,
		WriteDuration,
		MalformedRecords,
		ActiveSubscriptions,
		SnapshotsDelivered,
		SubscriptionFailures,
		CacheHits,
		CacheMisses,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
