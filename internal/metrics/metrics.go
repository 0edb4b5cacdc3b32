// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ジェネレータやキューから利用する。
type MetricsCollector interface {
	RecordGenerateSuccess(feedID string)
	RecordGenerateFailure(feedID string, reason string)
	RecordGenerateDuration(duration time.Duration)
	RecordItemsPublished(count int)
	RecordEnqueue(mode string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	generateSuccess  prometheus.Counter
	generateFail     prometheus.Counter
	generateDuration prometheus.Histogram
	itemsPublished   prometheus.Counter
	enqueues         *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		generateSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shopfeed_generate_success_total",
			Help: "フィード生成成功の合計数",
		}),
		generateFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shopfeed_generate_fail_total",
			Help: "フィード生成失敗の合計数",
		}),
		generateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shopfeed_generate_duration_seconds",
			Help:    "フィード生成処理の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		itemsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shopfeed_items_published_total",
			Help: "フィードに出力されたアイテムの合計数",
		}),
		enqueues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopfeed_enqueue_total",
			Help: "ジョブ投入の合計数（実行モード別）",
		}, []string{"mode"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopfeed_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.generateSuccess,
		c.generateFail,
		c.generateDuration,
		c.itemsPublished,
		c.enqueues,
		c.httpStatus,
	)

	return c
}

// RecordGenerateSuccess は生成成功を記録する。
func (c *Collector) RecordGenerateSuccess(feedID string) {
	c.generateSuccess.Inc()
}

// RecordGenerateFailure は生成失敗を記録する。
func (c *Collector) RecordGenerateFailure(feedID string, reason string) {
	c.generateFail.Inc()
}

// RecordGenerateDuration は生成処理の所要時間を記録する。
func (c *Collector) RecordGenerateDuration(duration time.Duration) {
	c.generateDuration.Observe(duration.Seconds())
}

// RecordItemsPublished はフィードに出力されたアイテム数を記録する。
func (c *Collector) RecordItemsPublished(count int) {
	c.itemsPublished.Add(float64(count))
}

// RecordEnqueue はジョブ投入を実行モード別に記録する。
func (c *Collector) RecordEnqueue(mode string) {
	c.enqueues.WithLabelValues(mode).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
