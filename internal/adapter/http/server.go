package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/aqi-prediction-service/internal/config"
	"github.com/couchcryptid/aqi-prediction-service/internal/domain"
	"github.com/couchcryptid/aqi-prediction-service/internal/observability"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 1 << 20

// PredictionService is the request-path contract the prediction routes depend on.
type PredictionService interface {
	Available() bool
	Predict(ctx context.Context, raw map[string]any) (domain.PredictionResult, error)
	TestPredict(ctx context.Context, raw map[string]any) (domain.RawPrediction, error)
	PredictVariant() domain.Variant
	TestPredictVariant() domain.Variant
}

// Server exposes the prediction API alongside health, readiness, and metrics endpoints.
type Server struct {
	httpServer  *http.Server
	svc         PredictionService
	readings    domain.ReadingsProvider
	logger      *slog.Logger
	metrics     *observability.Metrics
	rateLimiter *rate.Limiter
	rateLimit   float64
	burst       int
	routes      []string
}

// NewServer wires the API routes. A nil readings provider leaves /readings
// unregistered, as does TestPredictEnabled=false for /test-predict.
func NewServer(
	cfg *config.Config,
	svc PredictionService,
	ready sharedobs.ReadinessChecker,
	readings domain.ReadingsProvider,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Server {
	mux := http.NewServeMux()

	s := &Server{
		svc:       svc,
		readings:  readings,
		logger:    logger,
		metrics:   metrics,
		rateLimit: cfg.RateLimit,
		burst:     cfg.RateLimitBurst,
	}
	if cfg.RateLimit > 0 {
		s.rateLimiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)
	}

	s.handle(mux, "GET /{$}", s.handleRoot)
	s.handle(mux, "POST /predict", s.handlePredict)
	if cfg.TestPredictEnabled {
		s.handle(mux, "POST /test-predict", s.handleTestPredict)
	}
	if readings != nil {
		s.handle(mux, "GET /readings", s.handleReadings)
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
			http.MethodDelete, http.MethodHead, http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: true,
	})

	s.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           c.Handler(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, s.withMiddleware(h))
	s.routes = append(s.routes, strings.TrimSuffix(pattern, "{$}"))
}

// Routes lists the registered API patterns.
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr, "routes", s.routes)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
