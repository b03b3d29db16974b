package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/couchcryptid/aqi-prediction-service/internal/domain"
)

// State is the load lifecycle of a Handle.
type State int

const (
	StateLoading State = iota
	StateReady
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Handle owns a loaded scorer and its availability. It is immutable once
// returned by Load or NewHandle and safe for concurrent use.
type Handle struct {
	state    State
	scorer   Scorer
	path     string
	kind     string
	inputLen int
	loadErr  error
}

// Load reads the artifact at path. It never fails: on any error the
// returned handle is Unavailable and every Predict call reports
// domain.ErrModelUnavailable. Unavailable is terminal.
func Load(path string, logger *slog.Logger) *Handle {
	h := &Handle{state: StateLoading, path: path}

	a, err := ReadArtifact(path)
	if err == nil {
		h.scorer, err = NewScorer(a)
	}
	if err != nil {
		h.state = StateUnavailable
		h.loadErr = err
		logger.Error("failed to load model", "path", path, "error", err)
		return h
	}

	h.state = StateReady
	h.kind = a.Kind
	h.inputLen = a.InputLen()
	logger.Info("model loaded",
		"path", path,
		"kind", a.Kind,
		"n_features", h.inputLen,
		"features", a.Features,
	)
	return h
}

// NewHandle wraps an already-built scorer in a Ready handle.
func NewHandle(s Scorer) *Handle {
	if s == nil {
		return &Handle{state: StateUnavailable, loadErr: errors.New("no scorer provided")}
	}
	return &Handle{state: StateReady, scorer: s}
}

// State reports the handle's lifecycle state.
func (h *Handle) State() State { return h.state }

// Available reports whether Predict can score.
func (h *Handle) Available() bool { return h.state == StateReady }

// Err returns the load failure, or nil when Ready.
func (h *Handle) Err() error { return h.loadErr }

// Path is the artifact location the handle was loaded from.
func (h *Handle) Path() string { return h.path }

// Kind is the artifact kind, empty for injected scorers.
func (h *Handle) Kind() string { return h.kind }

// CheckReadiness implements the readiness probe contract.
func (h *Handle) CheckReadiness(_ context.Context) error {
	if h.state == StateReady {
		return nil
	}
	if h.loadErr != nil {
		return fmt.Errorf("model not loaded: %w", h.loadErr)
	}
	return errors.New("model not loaded")
}

// Predict scores one feature vector. Scorer errors, panics, and
// non-finite scores are reported as domain.KindPrediction errors with the
// cause attached.
func (h *Handle) Predict(_ context.Context, vec domain.FeatureVector) (score float64, err error) {
	if h.state != StateReady {
		return 0, domain.ErrModelUnavailable
	}

	defer func() {
		if r := recover(); r != nil {
			score = 0
			err = domain.NewPredictionError(fmt.Errorf("model panicked: %v", r))
		}
	}()

	score, err = h.scorer.Score(vec)
	if err != nil {
		return 0, domain.NewPredictionError(err)
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, domain.NewPredictionError(fmt.Errorf("model returned non-finite score %v", score))
	}
	return score, nil
}
