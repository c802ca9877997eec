package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "gridextract"

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	// ExtractionsTotal counts finished runs by strategy and outcome.
	ExtractionsTotal *prometheus.CounterVec

	// ExtractionDuration observes run wall time by strategy.
	ExtractionDuration *prometheus.HistogramVec

	// RowsExtracted counts detail rows of successful runs by strategy.
	RowsExtracted *prometheus.CounterVec

	// CaptchaAttemptsTotal counts recognition attempts by engine and outcome.
	CaptchaAttemptsTotal *prometheus.CounterVec

	// InFlight is the number of runs currently executing.
	InFlight prometheus.Gauge
}

// New creates a Metrics value with a fresh registry. Go runtime and
// process collectors are registered alongside the application metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ExtractionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "extractions_total",
			Help:      "Total number of grid extraction runs.",
		}, []string{"strategy", "outcome"}),
		ExtractionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Duration of grid extraction runs.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"strategy"}),
		RowsExtracted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rows_extracted_total",
			Help:      "Total number of detail rows extracted.",
		}, []string{"strategy"}),
		CaptchaAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "captcha_attempts_total",
			Help:      "Total number of captcha recognition attempts.",
		}, []string{"engine", "outcome"}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "extractions_in_flight",
			Help:      "Number of extraction runs currently executing.",
		}),
	}
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveExtraction records a finished run.
func (m *Metrics) ObserveExtraction(strategy, outcome string, rows int, d time.Duration) {
	m.ExtractionsTotal.WithLabelValues(strategy, outcome).Inc()
	m.ExtractionDuration.WithLabelValues(strategy).Observe(d.Seconds())
	if rows > 0 {
		m.RowsExtracted.WithLabelValues(strategy).Add(float64(rows))
	}
}

// ObserveCaptchaAttempt records one recognition attempt.
func (m *Metrics) ObserveCaptchaAttempt(engine, outcome string) {
	if engine == "" {
		engine = "unknown"
	}
	m.CaptchaAttemptsTotal.WithLabelValues(engine, outcome).Inc()
}

// Handler returns an HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is canceled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	logger.Info("serving metrics", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
