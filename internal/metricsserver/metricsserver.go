// Package metricsserver exposes an optional Prometheus /metrics endpoint
// for long-running callers of this module (batch scanners, ingest
// pipelines), grounded on ManuGH-xg2g's internal/api metrics wiring:
// promauto-registered collectors plus a promhttp.Handler mounted on a
// plain net/http server. The collectors are registered when the package is
// imported and videometa.ParseVideoMetadata updates them on every call;
// the HTTP server runs only when the caller starts it explicitly.
package metricsserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	parseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "videometa_parse_duration_seconds",
		Help:    "Duration of ParseVideoMetadata calls in seconds, by container format.",
		Buckets: prometheus.DefBuckets,
	}, []string{"container"})

	parseTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "videometa_parse_total",
		Help: "Total ParseVideoMetadata calls by container format and outcome.",
	}, []string{"container", "outcome"})

	hdrTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "videometa_hdr_total",
		Help: "Total parsed files by HDR classification.",
	}, []string{"is_hdr"})
)

// RecordParse records one ParseVideoMetadata call's duration and outcome.
// container and outcome are short labels ("mp4", "webm", "ts", "avi",
// "unknown"; "ok", "error").
func RecordParse(containerTag string, duration time.Duration, outcome string) {
	parseDuration.WithLabelValues(containerTag).Observe(duration.Seconds())
	parseTotal.WithLabelValues(containerTag, outcome).Inc()
}

// RecordHDR records one file's tri-state HDR classification outcome.
func RecordHDR(known, isHDR bool) {
	label := "unknown"
	if known {
		label = "sdr"
		if isHDR {
			label = "hdr"
		}
	}
	hdrTotal.WithLabelValues(label).Inc()
}

// Server wraps a net/http.Server serving only /metrics, matching the
// teacher's bootstrap pattern of mounting promhttp.Handler() on a
// dedicated mux rather than the main request router.
type Server struct {
	httpServer *http.Server
}

// New builds a metrics server listening on addr (e.g. ":9090"). It does
// not start listening until Start is called.
func New(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start runs the metrics server until the listener fails or the process
// is shut down via Shutdown. It returns nil on a clean shutdown.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
