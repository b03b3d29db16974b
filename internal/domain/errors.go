package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies request-path failures. The set is closed.
type ErrorKind string

const (
	// KindModelUnavailable means the predictor failed to load. Not recoverable within the process.
	KindModelUnavailable ErrorKind = "MODEL_UNAVAILABLE"
	// KindValidation means the request body is missing or mistypes a required field.
	KindValidation ErrorKind = "VALIDATION_ERROR"
	// KindPrediction means the predictor failed or returned an unusable score.
	KindPrediction ErrorKind = "PREDICTION_ERROR"
)

// FieldError describes one invalid request field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Error is the structured error returned by every request-path operation.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
	Fields  []FieldError
}

// ErrModelUnavailable is returned for every prediction while the model is not loaded.
var ErrModelUnavailable = &Error{Kind: KindModelUnavailable, Message: "Model not loaded"}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for errors.Is and errors.As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrModelUnavailable)
// holds for wrapped copies too.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Cause == nil && len(t.Fields) == 0
}

// NewValidationError builds a KindValidation error from the collected field problems.
func NewValidationError(fields []FieldError) *Error {
	msg := "Invalid request"
	if len(fields) == 1 {
		msg = fmt.Sprintf("Invalid request: %s %s", fields[0].Field, fields[0].Reason)
	} else if len(fields) > 1 {
		msg = fmt.Sprintf("Invalid request: %d invalid fields", len(fields))
	}
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

// NewPredictionError wraps a predictor failure.
func NewPredictionError(cause error) *Error {
	return &Error{Kind: KindPrediction, Message: "prediction failed", Cause: cause}
}

// KindOf reports the kind of err, if err carries one.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
