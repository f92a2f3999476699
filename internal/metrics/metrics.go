// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はidentity解決とスナップショット同期のメトリクスを収集する。
type Collector struct {
	snapshotHits   prometheus.Counter
	cacheHits      prometheus.Counter
	storeQueries   prometheus.Counter
	sentinels      prometheus.Counter
	repairEnqueued prometheus.Counter
	syncSuccess    *prometheus.CounterVec
	syncFail       *prometheus.CounterVec
	resolveLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		snapshotHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskman_resolver_snapshot_hits_total",
			Help: "埋め込みSnapshotで解決できた参照の合計数",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskman_resolver_cache_hits_total",
			Help: "キャッシュで解決できたユーザーIDの合計数",
		}),
		storeQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskman_resolver_store_queries_total",
			Help: "identityストアへのバッチクエリ発行回数",
		}),
		sentinels: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskman_resolver_sentinels_total",
			Help: "センチネルDTOに縮退した参照の合計数",
		}),
		repairEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskman_repair_enqueued_total",
			Help: "投入されたsnapshot repairタスクの合計数",
		}),
		syncSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskman_sync_success_total",
			Help: "同期タスク成功の合計数",
		}, []string{"task_type"}),
		syncFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskman_sync_fail_total",
			Help: "同期タスク失敗の合計数",
		}, []string{"task_type"}),
		resolveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskman_resolve_latency_seconds",
			Help:    "identity解決のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.snapshotHits,
		c.cacheHits,
		c.storeQueries,
		c.sentinels,
		c.repairEnqueued,
		c.syncSuccess,
		c.syncFail,
		c.resolveLatency,
	)

	return c
}

// RecordSnapshotHits はSnapshotヒット数を記録する。
func (c *Collector) RecordSnapshotHits(n int) {
	c.snapshotHits.Add(float64(n))
}

// RecordCacheHits はキャッシュヒット数を記録する。
func (c *Collector) RecordCacheHits(n int) {
	c.cacheHits.Add(float64(n))
}

// RecordStoreQueries はストアクエリ発行回数を記録する。
func (c *Collector) RecordStoreQueries(n int) {
	c.storeQueries.Add(float64(n))
}

// RecordSentinels はセンチネル縮退数を記録する。
func (c *Collector) RecordSentinels(n int) {
	c.sentinels.Add(float64(n))
}

// RecordRepairEnqueued はrepairタスク投入数を記録する。
func (c *Collector) RecordRepairEnqueued(n int) {
	c.repairEnqueued.Add(float64(n))
}

// RecordSyncSuccess は同期タスク成功を記録する。
func (c *Collector) RecordSyncSuccess(taskType string) {
	c.syncSuccess.WithLabelValues(taskType).Inc()
}

// RecordSyncFailure は同期タスク失敗を記録する。
func (c *Collector) RecordSyncFailure(taskType string) {
	c.syncFail.WithLabelValues(taskType).Inc()
}

// RecordResolveLatency は解決のレイテンシを記録する。
func (c *Collector) RecordResolveLatency(d time.Duration) {
	c.resolveLatency.Observe(d.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
