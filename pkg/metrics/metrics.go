// Package metrics 提供 Prometheus 指标集合与 HTTP 暴露
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/optionsvault/pkg/logger"
)

// Metrics 指标集合
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration *prometheus.HistogramVec

	// gRPC 请求计数
	GRPCRequestsTotal *prometheus.CounterVec

	// 业务指标
	OptionsWritten   *prometheus.CounterVec
	OptionsBought    prometheus.Counter
	OptionsExercised *prometheus.CounterVec
	CollateralLocked prometheus.Counter
	PayoutTotal      prometheus.Counter
	Rejections       *prometheus.CounterVec
	PriceUpdates     *prometheus.CounterVec
}

// New 创建指标实例，使用独立 registry
func New(serviceName string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		GRPCRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "grpc_requests_total",
			Help:      "Total gRPC requests",
		}, []string{"method", "code"}),
		OptionsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "options_written_total",
			Help:      "Options written, by option type",
		}, []string{"type"}),
		OptionsBought: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "options_bought_total",
			Help:      "Options bought",
		}),
		OptionsExercised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "options_exercised_total",
			Help:      "Options exercised, by option type",
		}, []string{"type"}),
		CollateralLocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "collateral_locked_total",
			Help:      "Collateral moved into custody by writes, in asset base units",
		}),
		PayoutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "payout_total",
			Help:      "Payout paid to holders on exercise, in asset base units",
		}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "rejections_total",
			Help:      "Rejected operations, by operation and error kind",
		}, []string{"operation", "kind"}),
		PriceUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: serviceName,
			Name:      "price_updates_total",
			Help:      "Price feed updates, by symbol",
		}, []string{"symbol"}),
	}
	return m
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GRPCRequestsTotal,
		m.OptionsWritten,
		m.OptionsBought,
		m.OptionsExercised,
		m.CollateralLocked,
		m.PayoutTotal,
		m.Rejections,
		m.PriceUpdates,
	}

	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}
	return nil
}

// Registry 返回底层 registry
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// StartHTTPServer 启动 Prometheus HTTP 服务器，返回的 server 由调用方关闭
func (m *Metrics) StartHTTPServer(port int, path string) *http.Server {
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info(context.Background(), "Starting Prometheus HTTP server", "addr", srv.Addr, "path", path)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "Prometheus HTTP server stopped", "error", err)
		}
	}()
	return srv
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, fmt.Sprintf("%d", statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordGRPCRequest 记录 gRPC 请求
func (m *Metrics) RecordGRPCRequest(method, code string) {
	m.GRPCRequestsTotal.WithLabelValues(method, code).Inc()
}

// RecordWrite 记录期权创建
func (m *Metrics) RecordWrite(optionType string, collateral uint64) {
	m.OptionsWritten.WithLabelValues(optionType).Inc()
	m.CollateralLocked.Add(float64(collateral))
}

// RecordBuy 记录期权购买
func (m *Metrics) RecordBuy() {
	m.OptionsBought.Inc()
}

// RecordExercise 记录行权
func (m *Metrics) RecordExercise(optionType string, payout uint64) {
	m.OptionsExercised.WithLabelValues(optionType).Inc()
	m.PayoutTotal.Add(float64(payout))
}

// RecordRejection 记录被拒绝的操作
func (m *Metrics) RecordRejection(operation, kind string) {
	m.Rejections.WithLabelValues(operation, kind).Inc()
}

// RecordPriceUpdate 记录价格更新
func (m *Metrics) RecordPriceUpdate(symbol string) {
	m.PriceUpdates.WithLabelValues(symbol).Inc()
}
