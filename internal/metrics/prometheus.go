package metrics

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askql/backend/internal/models"
)

var (
	ResolutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askql_resolution_duration_seconds",
			Help:    "Question resolution duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"source"},
	)

	ResolutionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askql_resolution_total",
			Help: "Total number of questions resolved",
		},
		[]string{"source", "status"},
	)

	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askql_cache_hits_total",
			Help: "Total result cache hits",
		},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askql_cache_misses_total",
			Help: "Total result cache misses",
		},
	)

	CorrectionsApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askql_sql_corrections_total",
			Help: "Total SQL corrections applied",
		},
	)

	FailuresLogged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askql_failures_logged_total",
			Help: "Total failures written to the error log",
		},
		[]string{"kind"},
	)
)

func Init() {
	prometheus.MustRegister(ResolutionDuration)
	prometheus.MustRegister(ResolutionTotal)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(CorrectionsApplied)
	prometheus.MustRegister(FailuresLogged)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// Recorder satisfies the resolver's metrics hook.
type Recorder struct{}

func (Recorder) ObserveResolution(source models.Source, succeeded bool, duration time.Duration) {
	status := "success"
	if !succeeded {
		status = "failure"
	}
	ResolutionTotal.WithLabelValues(string(source), status).Inc()
	ResolutionDuration.WithLabelValues(string(source)).Observe(duration.Seconds())
}

func (Recorder) ObserveCache(hit bool) {
	if hit {
		CacheHits.Inc()
	} else {
		CacheMisses.Inc()
	}
}
