// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/sentilens/internal/model"
)

// ログイン試行の結果ラベル。
const (
	LoginSucceeded = "success"
	LoginFailed    = "failure"
)

// Collector はPrometheusメトリクスを収集する実装。
// analysis.Recorder、reaper.Recorder、youtube.Recorderを満たす。
type Collector struct {
	httpRequests        *prometheus.CounterVec
	httpLatency         *prometheus.HistogramVec
	analysesCreated     *prometheus.CounterVec
	predictionsIngested *prometheus.CounterVec
	logins              *prometheus.CounterVec
	analysesReaped      *prometheus.CounterVec
	videoDetails        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentilens_http_requests_total",
			Help: "ルートとステータスコード別のHTTPリクエスト数",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentilens_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		analysesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentilens_analyses_created_total",
			Help: "作成された分析の合計数",
		}, []string{"source"}),
		predictionsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentilens_predictions_ingested_total",
			Help: "取り込まれた予測の合計数",
		}, []string{"source", "sentiment"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentilens_login_attempts_total",
			Help: "結果別のログイン試行数",
		}, []string{"result"}),
		analysesReaped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentilens_analyses_reaped_total",
			Help: "放置によりfailedにした分析の合計数",
		}, []string{"source"}),
		videoDetails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentilens_video_details_total",
			Help: "結果別の動画詳細補完数",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.analysesCreated,
		c.predictionsIngested,
		c.logins,
		c.analysesReaped,
		c.videoDetails,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの件数と処理時間を記録する。
// routeにはchiのルートパターンを渡す（IDごとにラベルを増やさないため）。
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// AnalysisCreated は分析の作成を記録する。
func (c *Collector) AnalysisCreated(source model.Source) {
	c.analysesCreated.WithLabelValues(string(source)).Inc()
}

// PredictionIngested は予測の取り込みを記録する。
func (c *Collector) PredictionIngested(source model.Source, sentiment model.Sentiment) {
	c.predictionsIngested.WithLabelValues(string(source), string(sentiment)).Inc()
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// AnalysesReaped はfailedにした分析数を記録する。
func (c *Collector) AnalysesReaped(source model.Source, count int) {
	c.analysesReaped.WithLabelValues(string(source)).Add(float64(count))
}

// VideoDetailsFetched は動画詳細の補完結果を記録する。
func (c *Collector) VideoDetailsFetched(result string, count int) {
	c.videoDetails.WithLabelValues(result).Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
