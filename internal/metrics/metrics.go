// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector は記録パイプラインとHTTP層のメトリクスを収集する。
// tracking.Observerを実装し、Recorderからの通知を受け取る。
type Collector struct {
	eventsRecorded *prometheus.CounterVec
	dedupDiscarded prometheus.Counter
	unmatched      prometheus.Counter
	classifierMiss prometheus.Counter
	geoFailures    prometheus.Counter
	recordLatency  prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		eventsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "podstats_events_recorded_total",
			Help: "保存されたアクセスイベントのプラットフォーム別合計数",
		}, []string{"platform"}),
		dedupDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "podstats_dedup_discarded_total",
			Help: "重複排除ウィンドウ内で破棄されたアクセスの合計数",
		}),
		unmatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "podstats_unmatched_total",
			Help: "登録フィードに一致しなかったリクエストの合計数",
		}),
		classifierMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "podstats_classifier_other_total",
			Help: "どの分類規則にも一致しなかったUser-Agentの合計数",
		}),
		geoFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "podstats_geo_failures_total",
			Help: "位置情報解決の失敗の合計数",
		}),
		recordLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "podstats_record_latency_seconds",
			Help:    "記録パイプラインのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.eventsRecorded,
		c.dedupDiscarded,
		c.unmatched,
		c.classifierMiss,
		c.geoFailures,
		c.recordLatency,
	)

	return c
}

// EventRecorded はアクセスイベントの保存を記録する。
func (c *Collector) EventRecorded(platform string) {
	c.eventsRecorded.WithLabelValues(platform).Inc()
}

// DuplicateDiscarded は重複アクセスの破棄を記録する。
func (c *Collector) DuplicateDiscarded() {
	c.dedupDiscarded.Inc()
}

// UnmatchedRequest はフィード不一致リクエストを記録する。
func (c *Collector) UnmatchedRequest() {
	c.unmatched.Inc()
}

// ClassifierMiss は分類規則に一致しなかったUser-Agentを記録する。
func (c *Collector) ClassifierMiss() {
	c.classifierMiss.Inc()
}

// GeoLookupFailed は位置情報解決の失敗を記録する。
func (c *Collector) GeoLookupFailed() {
	c.geoFailures.Inc()
}

// RecordLatency は記録パイプライン1回分の所要時間を記録する。
func (c *Collector) RecordLatency(duration time.Duration) {
	c.recordLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
