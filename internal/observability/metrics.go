package observability

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	PagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parts2woo_pages_total",
			Help: "Pobrane strony katalogów wg wyniku",
		},
		[]string{"catalog", "status"},
	)
	ProductsScraped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parts2woo_products_scraped_total",
			Help: "Znormalizowane produkty",
		},
		[]string{"catalog"},
	)
	EnrichDegraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parts2woo_enrich_degraded_total",
			Help: "Rekordy z wartością zastępczą po wzbogaceniu",
		},
		[]string{"reason"},
	)
	MediaUploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parts2woo_media_uploads_total",
			Help: "Próby uploadu zdjęć",
		},
		[]string{"status"},
	)
	ProductsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parts2woo_products_published_total",
			Help: "Publikacje produktów wg wyniku",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

func register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(PagesTotal, ProductsScraped, EnrichDegraded, MediaUploads, ProductsPublished)
	})
}

// Start wystawia /metrics na podanym porcie; pusty port = wyłączone.
func Start(port string, log zerolog.Logger) *http.Server {
	register()
	if port == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("port", port).Msg("metrics server stopped")
		}
	}()
	log.Info().Str("port", port).Msg("metrics listening")
	return srv
}
