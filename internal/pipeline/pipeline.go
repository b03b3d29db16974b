package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/couchcryptid/aqi-prediction-service/internal/domain"
	"github.com/couchcryptid/aqi-prediction-service/internal/observability"
	"github.com/google/uuid"
)

// Predictor scores positional feature vectors.
type Predictor interface {
	Predict(ctx context.Context, vec domain.FeatureVector) (float64, error)
	Available() bool
}

type readinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// EventPublisher receives a record of every successful prediction.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.PredictionEvent) error
}

// Service runs the validate-assemble-score flow behind both prediction endpoints.
type Service struct {
	predictor      Predictor
	publisher      EventPublisher
	logger         *slog.Logger
	metrics        *observability.Metrics
	predictVariant domain.Variant
	testVariant    domain.Variant
}

// New creates a Service. Pass a nil publisher to disable prediction events.
func New(p Predictor, pub EventPublisher, logger *slog.Logger, metrics *observability.Metrics, predictVariant, testVariant domain.Variant) *Service {
	ready := 0.0
	if p.Available() {
		ready = 1
	}
	metrics.ModelReady.Set(ready)

	return &Service{
		predictor:      p,
		publisher:      pub,
		logger:         logger,
		metrics:        metrics,
		predictVariant: predictVariant,
		testVariant:    testVariant,
	}
}

// Available reports whether the model can score requests.
func (s *Service) Available() bool {
	return s.predictor.Available()
}

// CheckReadiness fails while the model is unavailable.
// Predictors that report their own readiness, such as *model.Handle, are
// asked directly so the probe carries the load failure.
func (s *Service) CheckReadiness(ctx context.Context) error {
	if rc, ok := s.predictor.(readinessChecker); ok {
		return rc.CheckReadiness(ctx)
	}
	if !s.predictor.Available() {
		return errors.New("model not loaded")
	}
	return nil
}

// PredictVariant is the feature layout /predict accepts.
func (s *Service) PredictVariant() domain.Variant { return s.predictVariant }

// TestPredictVariant is the feature layout /test-predict accepts.
func (s *Service) TestPredictVariant() domain.Variant { return s.testVariant }

// Predict scores raw with the predict variant and returns the rounded AQI
// and its category.
func (s *Service) Predict(ctx context.Context, raw map[string]any) (domain.PredictionResult, error) {
	score, readings, err := s.score(ctx, domain.EndpointPredict, s.predictVariant, raw)
	if err != nil {
		return domain.PredictionResult{}, err
	}

	result := domain.PredictionResult{
		AQI:      domain.RoundAQI(score),
		Category: domain.Categorize(score),
	}
	s.metrics.PredictedAQI.WithLabelValues(string(domain.EndpointPredict)).Observe(result.AQI)
	s.metrics.Categories.WithLabelValues(result.Category).Inc()

	s.publish(ctx, domain.EndpointPredict, s.predictVariant, readings, result.AQI, result.Category)
	return result, nil
}

// TestPredict scores raw with the test variant and returns the model's
// unrounded output without categorizing it.
func (s *Service) TestPredict(ctx context.Context, raw map[string]any) (domain.RawPrediction, error) {
	score, readings, err := s.score(ctx, domain.EndpointTestPredict, s.testVariant, raw)
	if err != nil {
		return domain.RawPrediction{}, err
	}

	s.metrics.PredictedAQI.WithLabelValues(string(domain.EndpointTestPredict)).Observe(score)
	s.publish(ctx, domain.EndpointTestPredict, s.testVariant, readings, score, "")
	return domain.RawPrediction{AQI: score}, nil
}

// score checks availability first, then validates and assembles the
// readings and invokes the predictor exactly once.
func (s *Service) score(ctx context.Context, ep domain.Endpoint, v domain.Variant, raw map[string]any) (float64, domain.Readings, error) {
	start := time.Now()
	endpoint := string(ep)
	defer func() {
		s.metrics.PredictionDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	if !s.predictor.Available() {
		s.metrics.Predictions.WithLabelValues(endpoint, "unavailable").Inc()
		return 0, nil, domain.ErrModelUnavailable
	}

	readings, err := domain.ValidateReadings(v, raw)
	if err != nil {
		s.metrics.Predictions.WithLabelValues(endpoint, "validation_error").Inc()
		return 0, nil, err
	}
	vec, err := domain.Assemble(v, readings)
	if err != nil {
		s.metrics.Predictions.WithLabelValues(endpoint, "validation_error").Inc()
		return 0, nil, err
	}

	score, err := s.predictor.Predict(ctx, vec)
	if err == nil && (math.IsNaN(score) || math.IsInf(score, 0)) {
		err = domain.NewPredictionError(errors.New("model returned non-finite score"))
	}
	if err != nil {
		if errors.Is(err, domain.ErrModelUnavailable) {
			s.metrics.Predictions.WithLabelValues(endpoint, "unavailable").Inc()
			return 0, nil, err
		}
		if _, ok := domain.KindOf(err); !ok {
			err = domain.NewPredictionError(err)
		}
		s.metrics.Predictions.WithLabelValues(endpoint, "prediction_error").Inc()
		s.logger.Warn("prediction failed",
			"endpoint", endpoint,
			"variant", v,
			"request_id", domain.RequestIDFrom(ctx),
			"error", err,
		)
		return 0, nil, err
	}

	s.metrics.Predictions.WithLabelValues(endpoint, "success").Inc()
	return score, readings, nil
}

// publish hands a prediction event to the publisher. Failures are logged
// and never affect the response.
func (s *Service) publish(ctx context.Context, ep domain.Endpoint, v domain.Variant, r domain.Readings, aqi float64, category string) {
	if s.publisher == nil {
		return
	}
	event := domain.PredictionEvent{
		ID:          uuid.NewString(),
		RequestID:   domain.RequestIDFrom(ctx),
		Endpoint:    ep,
		Variant:     v,
		Readings:    r,
		AQI:         aqi,
		Category:    category,
		PredictedAt: domain.Now(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish prediction event failed",
			"event_id", event.ID,
			"endpoint", ep,
			"error", err,
		)
	}
}
