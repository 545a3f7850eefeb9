// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証結果のラベル値
const (
	AuthResultSuccess      = "success"
	AuthResultNoToken      = "no_token"
	AuthResultInvalidToken = "invalid_token"
	AuthResultError        = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやハンドラーから利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
	RecordAuthResult(result string)
	RecordPantryOperation(operation string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	authResults  *prometheus.CounterVec
	pantryOps    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pantryman_http_requests_total",
			Help: "ルート・ステータスコード別のHTTPリクエスト数",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pantryman_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		authResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pantryman_auth_results_total",
			Help: "結果別のトークン認証数",
		}, []string{"result"}),
		pantryOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pantryman_pantry_operations_total",
			Help: "成功した食材操作の合計数",
		}, []string{"operation"}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.authResults,
		c.pantryOps,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの件数と処理時間を記録する。
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordAuthResult は認証結果を記録する。
func (c *Collector) RecordAuthResult(result string) {
	c.authResults.WithLabelValues(result).Inc()
}

// RecordPantryOperation は食材操作（create, update, delete）を記録する。
func (c *Collector) RecordPantryOperation(operation string) {
	c.pantryOps.WithLabelValues(operation).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
