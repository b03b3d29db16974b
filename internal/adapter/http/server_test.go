package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	httpadapter "github.com/couchcryptid/aqi-prediction-service/internal/adapter/http"
	"github.com/couchcryptid/aqi-prediction-service/internal/config"
	"github.com/couchcryptid/aqi-prediction-service/internal/domain"
	"github.com/couchcryptid/aqi-prediction-service/internal/model"
	"github.com/couchcryptid/aqi-prediction-service/internal/observability"
	"github.com/couchcryptid/aqi-prediction-service/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	predictBody     = `{"pm2_5":35.5,"pm10":60.2,"no":1.5,"no2":20.1,"co":0.7,"so2":3.3,"o3":44.0}`
	testPredictBody = `{"pm2_5":35.5,"pm10":60.2,"so2":3.3,"no2":20.1,"co":0.7,"o3":44.0,"temperature":28.4,"humidity":61}`
	frontendOrigin  = "http://localhost:3000"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockReadings struct {
	readings domain.CityReadings
	err      error
	city     string
}

func (m *mockReadings) CityReadings(_ context.Context, city string) (domain.CityReadings, error) {
	m.city = city
	return m.readings, m.err
}

// panicService fails every prediction with a panic.
type panicService struct{}

func (panicService) Available() bool { return true }
func (panicService) Predict(context.Context, map[string]any) (domain.PredictionResult, error) {
	panic("nil map write")
}
func (panicService) TestPredict(context.Context, map[string]any) (domain.RawPrediction, error) {
	panic("nil map write")
}
func (panicService) PredictVariant() domain.Variant { return domain.VariantPollutants }
func (panicService) TestPredictVariant() domain.Variant { return domain.VariantPollutantsWeather }

func testConfig() *config.Config {
	return &config.Config{
		HTTPAddr:           ":0",
		TestPredictEnabled: true,
		CORSAllowedOrigins: []string{frontendOrigin, "http://127.0.0.1:3000"},
	}
}

// firstFeature scores a vector as its first element, pm2_5 in both layouts.
func firstFeature() model.Scorer {
	return model.ScorerFunc(func(f []float64) (float64, error) { return f[0], nil })
}

func fixedScore(score float64) model.Scorer {
	return model.ScorerFunc(func([]float64) (float64, error) { return score, nil })
}

func newService(scorer model.Scorer) *pipeline.Service {
	return pipeline.New(model.NewHandle(scorer), nil, discardLogger(), observability.NewMetricsForTesting(),
		domain.VariantPollutants, domain.VariantPollutantsWeather)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(cfg *config.Config, svc httpadapter.PredictionService, readings domain.ReadingsProvider) *httpadapter.Server {
	return httpadapter.NewServer(cfg, svc, &mockReadiness{}, readings, discardLogger(), observability.NewMetricsForTesting())
}

func do(srv http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httpadapter.ErrorResponse {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body httpadapter.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// --- probes ---

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(testConfig(), newService(fixedScore(1)), nil)
	rec := do(srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzFollowsReadinessChecker(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	svc := newService(fixedScore(1))

	ready := httpadapter.NewServer(testConfig(), svc, &mockReadiness{}, nil, discardLogger(), metrics)
	assert.Equal(t, http.StatusOK, do(ready, http.MethodGet, "/readyz", "").Code)

	notReady := httpadapter.NewServer(testConfig(), svc, &mockReadiness{err: fmt.Errorf("model not loaded")}, nil, discardLogger(), metrics)
	assert.Equal(t, http.StatusServiceUnavailable, do(notReady, http.MethodGet, "/readyz", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(testConfig(), newService(fixedScore(1)), nil)
	rec := do(srv, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

// --- root ---

func TestRootReportsModelState(t *testing.T) {
	tests := []struct {
		name   string
		scorer model.Scorer
		want   string
	}{
		{"ready", fixedScore(1), "ready"},
		{"unavailable", nil, "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(testConfig(), newService(tt.scorer), nil)
			rec := do(srv, http.MethodGet, "/", "")
			require.Equal(t, http.StatusOK, rec.Code)

			var body struct {
				Message string            `json:"message"`
				Model   string            `json:"model"`
				Layouts map[string]string `json:"layouts"`
				Routes  []string          `json:"routes"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "AQI API running", body.Message)
			assert.Equal(t, tt.want, body.Model)
			assert.Equal(t, map[string]string{
				"predict":      "pollutants",
				"test-predict": "pollutants-weather",
			}, body.Layouts)
			assert.Equal(t, []string{"GET /", "POST /predict", "POST /test-predict"}, body.Routes)
		})
	}
}

func TestUnknownPathIs404(t *testing.T) {
	srv := newTestServer(testConfig(), newService(fixedScore(1)), nil)
	assert.Equal(t, http.StatusNotFound, do(srv, http.MethodGet, "/nope", "").Code)
}

// --- /predict ---

func TestPredict_RoundsAndCategorizes(t *testing.T) {
	srv := newTestServer(testConfig(), newService(fixedScore(77.345)), nil)
	rec := do(srv, http.MethodPost, "/predict", predictBody)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"aqi":77.35,"category":"Moderate"}`, rec.Body.String())
}

func TestPredict_Hazardous(t *testing.T) {
	srv := newTestServer(testConfig(), newService(fixedScore(412.0)), nil)
	rec := do(srv, http.MethodPost, "/predict", predictBody)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"aqi":412,"category":"Hazardous"}`, rec.Body.String())
}

func TestPredict_HugeFiniteScoreStaysJSON(t *testing.T) {
	srv := newTestServer(testConfig(), newService(firstFeature()), nil)
	rec := do(srv, http.MethodPost, "/predict",
		`{"pm2_5":1e307,"pm10":1,"no":1,"no2":1,"co":1,"so2":1,"o3":1}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var got domain.PredictionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1e307, got.AQI)
	assert.Equal(t, domain.CategoryHazardous, got.Category)
}

func TestPredict_ModelUnavailable(t *testing.T) {
	srv := newTestServer(testConfig(), newService(nil), nil)

	// The availability check wins over a malformed body.
	for _, body := range []string{predictBody, `not json`} {
		rec := do(srv, http.MethodPost, "/predict", body)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		resp := decodeError(t, rec)
		assert.Equal(t, "MODEL_UNAVAILABLE", resp.Code)
		assert.Equal(t, "Model not loaded", resp.Detail)
		assert.False(t, resp.Retryable)
		assert.NotEmpty(t, resp.RequestID)
		assert.False(t, resp.Timestamp.IsZero())
	}
}

func TestPredict_ValidationErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantFields []domain.FieldError
	}{
		{
			name:       "not an object",
			body:       `[1, 2, 3]`,
			wantFields: []domain.FieldError{{Field: "body", Reason: "must be a JSON object"}},
		},
		{
			name:       "null body",
			body:       `null`,
			wantFields: []domain.FieldError{{Field: "body", Reason: "must be a JSON object"}},
		},
		{
			name:       "truncated json",
			body:       `{"pm2_5": 1`,
			wantFields: []domain.FieldError{{Field: "body", Reason: "must be a JSON object"}},
		},
		{
			name:       "missing field",
			body:       `{"pm2_5":35.5,"pm10":60.2,"no":1.5,"no2":20.1,"co":0.7,"so2":3.3}`,
			wantFields: []domain.FieldError{{Field: "o3", Reason: "is required"}},
		},
		{
			name: "wrong types",
			body: `{"pm2_5":"high","pm10":60.2,"no":1.5,"no2":[1],"co":0.7,"so2":3.3,"o3":null}`,
			wantFields: []domain.FieldError{
				{Field: "pm2_5", Reason: "must be a number"},
				{Field: "no2", Reason: "must be a number"},
				{Field: "o3", Reason: "is required"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(testConfig(), newService(fixedScore(10)), nil)
			rec := do(srv, http.MethodPost, "/predict", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			resp := decodeError(t, rec)
			assert.Equal(t, "VALIDATION_ERROR", resp.Code)
			assert.True(t, strings.HasPrefix(resp.Detail, "Invalid request"), resp.Detail)
			assert.Equal(t, tt.wantFields, resp.Fields)
		})
	}
}

func TestPredict_ScorerFailure(t *testing.T) {
	scorer := model.ScorerFunc(func([]float64) (float64, error) {
		return 0, errors.New("X has 7 features, but model is expecting 8 features as input")
	})
	srv := newTestServer(testConfig(), newService(scorer), nil)
	rec := do(srv, http.MethodPost, "/predict", predictBody)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "PREDICTION_ERROR", resp.Code)
	assert.Equal(t, "Prediction failed: X has 7 features, but model is expecting 8 features as input", resp.Detail)
}

func TestPredict_WrongMethod(t *testing.T) {
	srv := newTestServer(testConfig(), newService(fixedScore(1)), nil)
	assert.Equal(t, http.StatusMethodNotAllowed, do(srv, http.MethodGet, "/predict", "").Code)
}

// --- /test-predict ---

func TestTestPredict_ReturnsRawScore(t *testing.T) {
	srv := newTestServer(testConfig(), newService(fixedScore(77.345)), nil)
	rec := do(srv, http.MethodPost, "/test-predict", testPredictBody)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"aqi":77.345}`, rec.Body.String())
}

func TestTestPredict_ErrorContract(t *testing.T) {
	failing := model.ScorerFunc(func([]float64) (float64, error) { return 0, errors.New("boom") })

	rec := do(newTestServer(testConfig(), newService(failing), nil), http.MethodPost, "/test-predict", testPredictBody)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Prediction error: boom", decodeError(t, rec).Detail)

	rec = do(newTestServer(testConfig(), newService(nil), nil), http.MethodPost, "/test-predict", testPredictBody)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Model not loaded", decodeError(t, rec).Detail)

	// The predict layout lacks temperature and humidity.
	rec = do(newTestServer(testConfig(), newService(fixedScore(1)), nil), http.MethodPost, "/test-predict", predictBody)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, decodeError(t, rec).Fields, 2)
}

func TestTestPredict_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.TestPredictEnabled = false
	srv := newTestServer(cfg, newService(fixedScore(1)), nil)

	assert.Equal(t, http.StatusNotFound, do(srv, http.MethodPost, "/test-predict", testPredictBody).Code)
	assert.Equal(t, []string{"GET /", "POST /predict"}, srv.Routes())
}

// --- /readings ---

func TestReadings(t *testing.T) {
	provider := &mockReadings{readings: domain.CityReadings{
		City:       "Delhi",
		Pollutants: domain.Readings{"pm2_5": 180, "pm10": 260, "no": 10, "no2": 45, "co": 2.1, "so2": 12, "o3": 60},
	}}
	srv := newTestServer(testConfig(), newService(fixedScore(1)), provider)

	rec := do(srv, http.MethodGet, "/readings?city=%20Delhi%20", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Delhi", provider.city)

	var got domain.CityReadings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, provider.readings, got)
	assert.Contains(t, srv.Routes(), "GET /readings")
}

func TestReadings_ResponseFeedsPredict(t *testing.T) {
	provider := &mockReadings{readings: domain.CityReadings{
		City:       "Delhi",
		Pollutants: domain.Readings{"pm2_5": 180.456, "pm10": 260, "no": 10, "no2": 45, "co": 2.1, "so2": 12, "o3": 60},
	}}
	srv := newTestServer(testConfig(), newService(firstFeature()), provider)

	readings := do(srv, http.MethodGet, "/readings?city=Delhi", "")
	require.Equal(t, http.StatusOK, readings.Code)

	rec := do(srv, http.MethodPost, "/predict", readings.Body.String())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"aqi":180.46,"category":"Unhealthy"}`, rec.Body.String())
}

func TestPredict_TopLevelFieldsWinOverPollutants(t *testing.T) {
	srv := newTestServer(testConfig(), newService(firstFeature()), nil)

	body := `{"pm2_5":40,"pm10":1,"no":1,"no2":1,"co":1,"so2":1,"o3":1,"pollutants":{"pm2_5":400}}`
	rec := do(srv, http.MethodPost, "/predict", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"aqi":40,"category":"Good"}`, rec.Body.String())

	// A partial top level is not silently replaced by the nested object.
	rec = do(srv, http.MethodPost, "/predict", `{"pm2_5":40,"pollutants":{"pm2_5":1,"pm10":1,"no":1,"no2":1,"co":1,"so2":1,"o3":1}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadings_Errors(t *testing.T) {
	provider := &mockReadings{err: errors.New("upstream returned 500")}
	srv := newTestServer(testConfig(), newService(fixedScore(1)), provider)

	rec := do(srv, http.MethodGet, "/readings", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []domain.FieldError{{Field: "city", Reason: "is required"}}, decodeError(t, rec).Fields)

	rec = do(srv, http.MethodGet, "/readings?city=Paris", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "UPSTREAM_ERROR", resp.Code)
	assert.Equal(t, "Failed to fetch readings: upstream returned 500", resp.Detail)
	assert.True(t, resp.Retryable)
}

func TestReadings_NotRegisteredWithoutProvider(t *testing.T) {
	srv := newTestServer(testConfig(), newService(fixedScore(1)), nil)
	assert.Equal(t, http.StatusNotFound, do(srv, http.MethodGet, "/readings?city=Paris", "").Code)
}

// --- middleware ---

func TestRequestID(t *testing.T) {
	srv := newTestServer(testConfig(), newService(nil), nil)

	const supplied = "6f1c1a4e-8a42-4c43-9d0f-3b7c1f2b9e10"
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(predictBody))
	req.Header.Set("X-Request-Id", supplied)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, supplied, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, supplied, decodeError(t, rec).RequestID)

	req = httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(predictBody))
	req.Header.Set("X-Request-Id", "not-a-uuid")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	minted := rec.Header().Get("X-Request-Id")
	assert.NotEqual(t, "not-a-uuid", minted)
	assert.Len(t, minted, 36)
	assert.Equal(t, minted, decodeError(t, rec).RequestID)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 0.001
	cfg.RateLimitBurst = 1
	srv := newTestServer(cfg, newService(fixedScore(10)), nil)

	first := do(srv, http.MethodPost, "/predict", predictBody)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Burst"))

	second := do(srv, http.MethodPost, "/predict", predictBody)
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
	resp := decodeError(t, second)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", resp.Code)
	assert.True(t, resp.Retryable)

	// Probes bypass the limiter.
	assert.Equal(t, http.StatusOK, do(srv, http.MethodGet, "/healthz", "").Code)
}

func TestPanicRecovery(t *testing.T) {
	srv := newTestServer(testConfig(), panicService{}, nil)
	rec := do(srv, http.MethodPost, "/predict", predictBody)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", resp.Code)
	assert.Equal(t, "Internal server error", resp.Detail)
}

func TestCORS(t *testing.T) {
	srv := newTestServer(testConfig(), newService(fixedScore(10)), nil)

	preflight := httptest.NewRequest(http.MethodOptions, "/predict", nil)
	preflight.Header.Set("Origin", frontendOrigin)
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	preflight.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, preflight)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, frontendOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(predictBody))
	req.Header.Set("Origin", "http://evil.example.com")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
