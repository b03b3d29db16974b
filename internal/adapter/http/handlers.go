package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/couchcryptid/aqi-prediction-service/internal/domain"
)

type rootResponse struct {
	Message string            `json:"message"`
	Model   string            `json:"model"`
	Layouts map[string]string `json:"layouts"`
	Routes  []string          `json:"routes"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	state := "ready"
	if !s.svc.Available() {
		state = "unavailable"
	}
	s.respondJSON(w, http.StatusOK, rootResponse{
		Message: "AQI API running",
		Model:   state,
		Layouts: map[string]string{
			string(domain.EndpointPredict):     string(s.svc.PredictVariant()),
			string(domain.EndpointTestPredict): string(s.svc.TestPredictVariant()),
		},
		Routes: s.Routes(),
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if !s.svc.Available() {
		s.writeDomainError(w, r, domain.ErrModelUnavailable, "")
		return
	}

	raw, err := decodeObject(w, r)
	if err != nil {
		s.writeDomainError(w, r, err, "")
		return
	}

	result, err := s.svc.Predict(r.Context(), unwrapPollutants(raw, s.svc.PredictVariant()))
	if err != nil {
		s.writeDomainError(w, r, err, "Prediction failed: ")
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleTestPredict(w http.ResponseWriter, r *http.Request) {
	if !s.svc.Available() {
		s.writeDomainError(w, r, domain.ErrModelUnavailable, "")
		return
	}

	raw, err := decodeObject(w, r)
	if err != nil {
		s.writeDomainError(w, r, err, "")
		return
	}

	result, err := s.svc.TestPredict(r.Context(), unwrapPollutants(raw, s.svc.TestPredictVariant()))
	if err != nil {
		s.writeDomainError(w, r, err, "Prediction error: ")
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(r.URL.Query().Get("city"))
	if city == "" {
		s.writeDomainError(w, r, domain.NewValidationError([]domain.FieldError{
			{Field: "city", Reason: "is required"},
		}), "")
		return
	}

	readings, err := s.readings.CityReadings(r.Context(), city)
	if err != nil {
		s.logger.Warn("readings lookup failed",
			"request_id", domain.RequestIDFrom(r.Context()),
			"city", city,
			"error", err,
		)
		s.writeError(w, r, http.StatusBadGateway, errCodeUpstream,
			"Failed to fetch readings: "+err.Error(), true, nil)
		return
	}
	s.respondJSON(w, http.StatusOK, readings)
}

// decodeObject reads a JSON object body, keeping numbers as json.Number.
func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return nil, domain.NewValidationError([]domain.FieldError{
			{Field: "body", Reason: "must be a JSON object"},
		})
	}
	return raw, nil
}

// unwrapPollutants accepts a /readings response body as prediction input:
// when raw has a "pollutants" object and none of v's fields at the top
// level, the nested object is used instead.
func unwrapPollutants(raw map[string]any, v domain.Variant) map[string]any {
	nested, ok := raw["pollutants"].(map[string]any)
	if !ok {
		return raw
	}
	for _, f := range v.Fields() {
		if _, present := raw[f]; present {
			return raw
		}
	}
	return nested
}
