// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// コンテンツ解決の結果ソース
const (
	SourceLocal    = "local"    // ローカルストアの部分一致でヒット
	SourceExternal = "external" // 新規登録した
	SourceExisting = "existing" // 外部IDが既に登録済みだった
	SourceMiss     = "miss"     // どこにも見つからなかった
)

// 外部プロバイダ呼び出しの結果
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
	OutcomeDisabled = "disabled"
)

// MetricsCollector はメトリクス収集のインターフェース。
// リゾルバ、プロバイダクライアント、ワーカー、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordResolution(source string)
	RecordProviderRequest(outcome string, duration time.Duration)
	RecordRefresh(checked, updated, failed int)
	RecordDialogueTransition(from, to string)
	RecordHTTPRequest(method string, statusCode int, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	resolutions      *prometheus.CounterVec
	providerRequests *prometheus.CounterVec
	providerLatency  prometheus.Histogram
	refreshChecked   prometheus.Counter
	refreshUpdated   prometheus.Counter
	refreshFailed    prometheus.Counter
	dialogueMoves    *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpLatency      prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchlog_content_resolutions_total",
			Help: "コンテンツ解決の結果ソース別の件数",
		}, []string{"source"}),
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchlog_provider_requests_total",
			Help: "外部メタデータプロバイダ呼び出しの結果別の件数",
		}, []string{"outcome"}),
		providerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "watchlog_provider_latency_seconds",
			Help:    "外部メタデータプロバイダ呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		refreshChecked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchlog_rating_refresh_checked_total",
			Help: "評価更新ジョブで確認したコンテンツ数",
		}),
		refreshUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchlog_rating_refresh_updated_total",
			Help: "評価更新ジョブで評価が更新されたコンテンツ数",
		}),
		refreshFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watchlog_rating_refresh_failed_total",
			Help: "評価更新ジョブで失敗したコンテンツ数",
		}),
		dialogueMoves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchlog_dialogue_transitions_total",
			Help: "チャット対話の状態遷移数",
		}, []string{"from", "to"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watchlog_http_requests_total",
			Help: "HTTPメソッド・ステータスコード別のリクエスト数",
		}, []string{"method", "status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "watchlog_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.resolutions,
		c.providerRequests,
		c.providerLatency,
		c.refreshChecked,
		c.refreshUpdated,
		c.refreshFailed,
		c.dialogueMoves,
		c.httpRequests,
		c.httpLatency,
	)

	return c
}

// RecordResolution はコンテンツ解決の結果ソースを記録する。
func (c *Collector) RecordResolution(source string) {
	c.resolutions.WithLabelValues(source).Inc()
}

// RecordProviderRequest は外部プロバイダ呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordProviderRequest(outcome string, duration time.Duration) {
	c.providerRequests.WithLabelValues(outcome).Inc()
	if outcome != OutcomeDisabled {
		c.providerLatency.Observe(duration.Seconds())
	}
}

// RecordRefresh は評価更新ジョブ1回分の結果を記録する。
func (c *Collector) RecordRefresh(checked, updated, failed int) {
	c.refreshChecked.Add(float64(checked))
	c.refreshUpdated.Add(float64(updated))
	c.refreshFailed.Add(float64(failed))
}

// RecordDialogueTransition はチャット対話の状態遷移を記録する。
func (c *Collector) RecordDialogueTransition(from, to string) {
	c.dialogueMoves.WithLabelValues(from, to).Inc()
}

// RecordHTTPRequest はHTTPリクエストの結果を記録する。
func (c *Collector) RecordHTTPRequest(method string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordResolution(string)                      {}
func (Nop) RecordProviderRequest(string, time.Duration)  {}
func (Nop) RecordRefresh(int, int, int)                  {}
func (Nop) RecordDialogueTransition(string, string)      {}
func (Nop) RecordHTTPRequest(string, int, time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
