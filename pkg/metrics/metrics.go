// Package metrics exposes run progress as Prometheus collectors on a
// dedicated registry. Everything is nil-receiver-safe so callers can wire
// metrics conditionally and never guard the calls.
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tierup/pkg/logger"
	"tierup/pkg/run"
)

// Metrics bundles the Prometheus collectors for a run.
type Metrics struct {
	Registry         *prometheus.Registry
	ImagesFound      prometheus.Counter
	Downloads        *prometheus.CounterVec
	Uploads          *prometheus.CounterVec
	ScrollIterations prometheus.Counter
	RunPhase         prometheus.Gauge
}

// New constructs and registers all collectors on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	imagesFound := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tierup_images_found_total",
		Help: "Total cover images discovered on the library page.",
	})
	downloads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tierup_downloads_total",
		Help: "Total download attempts that reached a final status.",
	}, []string{"status"})
	uploads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tierup_uploads_total",
		Help: "Total upload attempts that reached a final status.",
	}, []string{"status"})
	scrollIterations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tierup_scroll_iterations_total",
		Help: "Total scroll passes over the library page.",
	})
	runPhase := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tierup_run_phase",
		Help: "Current run phase: 0 idle, 1 scraping, 2 waiting_login, 3 uploading, 4 done, 5 failed, 6 cancelled.",
	})

	registry.MustRegister(imagesFound, downloads, uploads, scrollIterations, runPhase)

	return &Metrics{
		Registry:         registry,
		ImagesFound:      imagesFound,
		Downloads:        downloads,
		Uploads:          uploads,
		ScrollIterations: scrollIterations,
		RunPhase:         runPhase,
	}
}

var phaseValues = map[run.Phase]float64{
	run.PhaseIdle:         0,
	run.PhaseScraping:     1,
	run.PhaseWaitingLogin: 2,
	run.PhaseUploading:    3,
	run.PhaseDone:         4,
	run.PhaseFailed:       5,
	run.PhaseCancelled:    6,
}

// AddFound adds to the discovered images counter.
func (m *Metrics) AddFound(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ImagesFound.Add(float64(n))
}

// AddDownloads adds finished downloads for a status label.
func (m *Metrics) AddDownloads(status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Downloads.WithLabelValues(status).Add(float64(n))
}

// AddUploads adds finished uploads for a status label.
func (m *Metrics) AddUploads(status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Uploads.WithLabelValues(status).Add(float64(n))
}

// AddScrolls adds scroll passes.
func (m *Metrics) AddScrolls(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ScrollIterations.Add(float64(n))
}

// SetPhase records the current run phase on the gauge.
func (m *Metrics) SetPhase(phase run.Phase) {
	if m == nil {
		return
	}
	m.RunPhase.Set(phaseValues[phase])
}

// Serve exposes the registry on addr under /metrics. The returned function
// shuts the server down gracefully.
func (m *Metrics) Serve(addr string, log logger.Logger) func(context.Context) error {
	if m == nil {
		return func(context.Context) error { return nil }
	}
	if log == nil {
		log = logger.GetLogger()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.LogComponentStart(log, "metrics server", map[string]interface{}{
			"addr": addr,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ErrorWithFields("Metrics server failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return func(ctx context.Context) error {
		err := server.Shutdown(ctx)
		logger.LogComponentStop(log, "metrics server", "run finished")
		return err
	}
}
