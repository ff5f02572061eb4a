package metrics

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utakatalp/league-ratings/internal/rating"
)

// Metrics holds the collectors for the search and the HTTP surface.
type Metrics struct {
	registry *prometheus.Registry

	GenerationsTotal prometheus.Counter
	BestScore        prometheus.Gauge
	MeanScore        prometheus.Gauge
	EvaluationsTotal prometheus.Counter

	RequestsTotal *prometheus.CounterVec

	seenEvaluations int
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		GenerationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratings_generations_total",
			Help: "Total number of completed generations",
		}),
		BestScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ratings_best_score",
			Help: "Score of the best candidate after the last generation",
		}),
		MeanScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ratings_mean_score",
			Help: "Mean population score after the last generation",
		}),
		EvaluationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratings_score_evaluations_total",
			Help: "Total number of rating vectors scored against the game list",
		}),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratings_http_requests_total",
				Help: "Total number of HTTP requests served",
			},
			[]string{"route", "code"},
		),
	}
	m.registry.MustRegister(
		m.GenerationsTotal,
		m.BestScore,
		m.MeanScore,
		m.EvaluationsTotal,
		m.RequestsTotal,
	)
	return m
}

// ObserveGeneration implements rating.Observer.
func (m *Metrics) ObserveGeneration(s rating.GenerationStats) {
	m.GenerationsTotal.Inc()
	m.BestScore.Set(s.Best)
	m.MeanScore.Set(s.Mean)
	// Evaluations is cumulative per population; a smaller value means a new one
	if s.Evaluations < m.seenEvaluations {
		m.seenEvaluations = 0
	}
	m.EvaluationsTotal.Add(float64(s.Evaluations - m.seenEvaluations))
	m.seenEvaluations = s.Evaluations
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware counts requests by route template and status code.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		m.RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}
