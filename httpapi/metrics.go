package httpapi

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type httpMetrics struct {
	// ---------------------------
	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	// ---------------------------
}

func setupAndListenMetrics(cfg HttpApiConfig, reg *prometheus.Registry) *httpMetrics {
	// ---------------------------
	metrics := &httpMetrics{
		requestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_request_count",
				Help: "Total number of HTTP requests made.",
			},
			[]string{"code", "method", "handler"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"code", "method", "handler"},
		),
	}
	reg.MustRegister(metrics.requestCount)
	reg.MustRegister(metrics.requestDuration)
	// ---------------------------
	// The metrics listener is separate so it never sits behind the API's
	// middleware chain.
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsAddr := cfg.MetricsHttpHost + ":" + strconv.Itoa(cfg.MetricsHttpPort)
	go func() {
		if err := http.ListenAndServe(metricsAddr, metricsMux); err != nil {
			log.Error().Err(err).Msg("MetricsListenAndServe")
		}
	}()
	log.Info().Str("metricsAddr", metricsAddr).Msg("Metrics.Serve")
	// ---------------------------
	return metrics
}
