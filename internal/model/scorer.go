package model

import (
	"fmt"
)

// Scorer evaluates a trained model on one positional feature vector.
type Scorer interface {
	Score(features []float64) (float64, error)
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(features []float64) (float64, error)

// Score calls f.
func (f ScorerFunc) Score(features []float64) (float64, error) {
	return f(features)
}

// NewScorer builds the scorer described by a validated artifact.
func NewScorer(a *Artifact) (Scorer, error) {
	switch a.Kind {
	case KindLinear:
		return &linearScorer{
			intercept:    a.Intercept,
			coefficients: append([]float64(nil), a.Coefficients...),
		}, nil
	case KindTreeEnsemble:
		lr := a.LearningRate
		if lr == 0 {
			lr = 1
		}
		return &ensembleScorer{
			nFeatures:    a.NFeatures,
			baseScore:    a.BaseScore,
			learningRate: lr,
			mean:         a.Aggregation == AggregationMean,
			trees:        a.Trees,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported kind %q", a.Kind)
	}
}

func checkLen(features []float64, want int) error {
	if len(features) != want {
		return fmt.Errorf("X has %d features, but model is expecting %d features as input", len(features), want)
	}
	return nil
}

type linearScorer struct {
	intercept    float64
	coefficients []float64
}

func (s *linearScorer) Score(features []float64) (float64, error) {
	if err := checkLen(features, len(s.coefficients)); err != nil {
		return 0, err
	}
	score := s.intercept
	for i, c := range s.coefficients {
		score += c * features[i]
	}
	return score, nil
}

type ensembleScorer struct {
	nFeatures    int
	baseScore    float64
	learningRate float64
	mean         bool
	trees        []Tree
}

func (s *ensembleScorer) Score(features []float64) (float64, error) {
	if err := checkLen(features, s.nFeatures); err != nil {
		return 0, err
	}

	var sum float64
	for _, t := range s.trees {
		sum += t.eval(features)
	}
	if s.mean {
		return s.baseScore + sum/float64(len(s.trees)), nil
	}
	return s.baseScore + s.learningRate*sum, nil
}

// eval walks a validated tree. Validation guarantees children point
// forward, so the loop terminates.
func (t Tree) eval(features []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if features[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}
