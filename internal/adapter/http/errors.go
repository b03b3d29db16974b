package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/couchcryptid/aqi-prediction-service/internal/domain"
	"github.com/google/uuid"
)

// Error codes outside the domain error kinds.
const (
	errCodeInternal    = "INTERNAL_ERROR"
	errCodeRateLimited = "RATE_LIMIT_EXCEEDED"
	errCodeUpstream    = "UPSTREAM_ERROR"
)

// ErrorResponse is the JSON error envelope. Detail keeps the key the
// existing frontend reads.
type ErrorResponse struct {
	Code      string              `json:"code"`
	Detail    string              `json:"detail"`
	Fields    []domain.FieldError `json:"fields,omitempty"`
	RequestID string              `json:"requestId"`
	Timestamp time.Time           `json:"timestamp"`
	Retryable bool                `json:"retryable"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int,
	code, detail string, retryable bool, fields []domain.FieldError) {

	requestID := domain.RequestIDFrom(r.Context())
	if requestID == "" {
		requestID = uuid.NewString()
	}

	s.respondJSON(w, status, ErrorResponse{
		Code:      code,
		Detail:    detail,
		Fields:    fields,
		RequestID: requestID,
		Timestamp: domain.Now(),
		Retryable: retryable,
	})
}

// writeDomainError maps the closed error kinds to status codes. failurePrefix
// is prepended to the cause of a prediction failure.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error, failurePrefix string) {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		s.logger.Error("unclassified request error",
			"request_id", domain.RequestIDFrom(r.Context()),
			"error", err,
		)
		s.writeError(w, r, http.StatusInternalServerError, errCodeInternal, "Internal server error", false, nil)
		return
	}

	switch derr.Kind {
	case domain.KindModelUnavailable:
		s.writeError(w, r, http.StatusServiceUnavailable, string(derr.Kind), derr.Message, false, nil)
	case domain.KindValidation:
		s.writeError(w, r, http.StatusBadRequest, string(derr.Kind), derr.Message, false, derr.Fields)
	case domain.KindPrediction:
		cause := derr.Message
		if derr.Cause != nil {
			cause = derr.Cause.Error()
		}
		s.writeError(w, r, http.StatusBadRequest, string(derr.Kind), failurePrefix+cause, false, nil)
	default:
		s.writeError(w, r, http.StatusInternalServerError, errCodeInternal, "Internal server error", false, nil)
	}
}

// respondJSON encodes into a buffer first so an encoding failure never
// produces a partial response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		s.logger.Error("json encoding failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Warn("response write failed", "error", err)
	}
}
