package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// Metrics exposes the server's Prometheus registry. Grounded in the
// htn-stratum-bridge example's use of client_golang rather than the
// teacher's own bespoke, accounting-coupled metrics store: this module has
// no pool accounting to persist, only counters and gauges to export.
type Metrics struct {
	Registry *prometheus.Registry

	SharesTotal       *prometheus.CounterVec
	JobsPublished     prometheus.Counter
	ConnectedMiners   prometheus.Gauge
	VarDiffAdjustments *prometheus.CounterVec
	RPCErrorsTotal    *prometheus.CounterVec
	RPCCallDuration   *prometheus.HistogramVec
	BlocksFound       prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		SharesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "kawpow_stratum_shares_total",
			Help: "Submitted shares by result (accepted, stale, duplicate, low_difficulty, invalid, unauthorized).",
		}, []string{"result"}),
		JobsPublished: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kawpow_stratum_jobs_published_total",
			Help: "Jobs broadcast to subscribed miners.",
		}),
		ConnectedMiners: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "kawpow_stratum_connected_miners",
			Help: "Currently connected Stratum clients.",
		}),
		VarDiffAdjustments: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "kawpow_stratum_vardiff_adjustments_total",
			Help: "VarDiff difficulty changes, by direction (up, down).",
		}, []string{"direction"}),
		RPCErrorsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "kawpow_stratum_rpc_errors_total",
			Help: "Upstream RPC call errors, by method.",
		}, []string{"method"}),
		RPCCallDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kawpow_stratum_rpc_call_duration_seconds",
			Help:    "Upstream RPC call latency, by method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		BlocksFound: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kawpow_stratum_blocks_found_total",
			Help: "Shares that met the network target and were submitted as blocks.",
		}),
	}
	return m
}

// Handler returns an http.Handler serving the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
