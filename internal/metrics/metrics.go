// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// HTTP層、リアルタイム配信、変更記録、認可ガードから共有される。
type Collector struct {
	httpRequests      *prometheus.CounterVec
	httpLatency       prometheus.Histogram
	wsConnections     prometheus.Gauge
	handshakeRejected *prometheus.CounterVec
	delivered         prometheus.Counter
	dropped           prometheus.Counter
	changesRecorded   *prometheus.CounterVec
	broadcastFail     *prometheus.CounterVec
	accessDenied      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracko_http_requests_total",
			Help: "HTTPリクエスト数（メソッド・ステータスコード別）",
		}, []string{"method", "status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracko_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracko_ws_connections",
			Help: "確立中のWebSocket接続数",
		}),
		handshakeRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracko_ws_handshake_rejected_total",
			Help: "拒否された接続試行の数（理由別）",
		}, []string{"reason"}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracko_ws_messages_delivered_total",
			Help: "購読者の送信キューに投入されたメッセージ数",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracko_ws_messages_dropped_total",
			Help: "送信キューの溢れにより破棄されたメッセージ数",
		}),
		changesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracko_changes_recorded_total",
			Help: "記録された変更履歴の数（種別ごと）",
		}, []string{"change_type"}),
		broadcastFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracko_broadcast_failures_total",
			Help: "配信に失敗した通知の数",
		}, []string{"kind"}),
		accessDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracko_access_denied_total",
			Help: "プロジェクトへのアクセス拒否数（not_found / forbidden）",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.wsConnections,
		c.handshakeRejected,
		c.delivered,
		c.dropped,
		c.changesRecorded,
		c.broadcastFail,
		c.accessDenied,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの結果と処理時間を記録する。
func (c *Collector) RecordHTTPRequest(method string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

// ConnectionOpened はWebSocket接続の確立を記録する。
func (c *Collector) ConnectionOpened() {
	c.wsConnections.Inc()
}

// ConnectionClosed はWebSocket接続の終了を記録する。
func (c *Collector) ConnectionClosed() {
	c.wsConnections.Dec()
}

// RecordHandshakeRejected は接続試行の拒否を記録する。
func (c *Collector) RecordHandshakeRejected(reason string) {
	c.handshakeRejected.WithLabelValues(reason).Inc()
}

// RecordPublish は1回の配信で投入・破棄されたメッセージ数を記録する。
func (c *Collector) RecordPublish(delivered, dropped int) {
	c.delivered.Add(float64(delivered))
	c.dropped.Add(float64(dropped))
}

// RecordChange は変更履歴の記録を種別ごとに数える。
func (c *Collector) RecordChange(changeType string) {
	c.changesRecorded.WithLabelValues(changeType).Inc()
}

// RecordBroadcastFailure は配信失敗を記録する。
func (c *Collector) RecordBroadcastFailure(kind string) {
	c.broadcastFail.WithLabelValues(kind).Inc()
}

// RecordAccessDenied は認可拒否を種別ごとに記録する。
func (c *Collector) RecordAccessDenied(kind string) {
	c.accessDenied.WithLabelValues(kind).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
