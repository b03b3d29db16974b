package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Artifact kinds.
const (
	KindLinear       = "linear"
	KindTreeEnsemble = "tree_ensemble"
)

// Ensemble aggregation modes.
const (
	AggregationSum  = "sum"  // gradient boosting: base_score + lr * Σ tree
	AggregationMean = "mean" // random forest: mean of trees
)

// Artifact is the serialized form of a trained regressor.
type Artifact struct {
	Kind     string   `json:"kind" yaml:"kind"`
	Features []string `json:"features,omitempty" yaml:"features,omitempty"`

	// Linear model.
	Intercept    float64   `json:"intercept,omitempty" yaml:"intercept,omitempty"`
	Coefficients []float64 `json:"coefficients,omitempty" yaml:"coefficients,omitempty"`

	// Tree ensemble.
	NFeatures    int     `json:"n_features,omitempty" yaml:"n_features,omitempty"`
	BaseScore    float64 `json:"base_score,omitempty" yaml:"base_score,omitempty"`
	Aggregation  string  `json:"aggregation,omitempty" yaml:"aggregation,omitempty"`
	LearningRate float64 `json:"learning_rate,omitempty" yaml:"learning_rate,omitempty"`
	Trees        []Tree  `json:"trees,omitempty" yaml:"trees,omitempty"`
}

// Tree is a flattened regression tree; node 0 is the root.
type Tree struct {
	Nodes []TreeNode `json:"nodes" yaml:"nodes"`
}

// TreeNode is either a split (feature <= threshold goes left) or a leaf.
type TreeNode struct {
	Feature   int     `json:"feature,omitempty" yaml:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Left      int     `json:"left,omitempty" yaml:"left,omitempty"`
	Right     int     `json:"right,omitempty" yaml:"right,omitempty"`
	Leaf      bool    `json:"leaf,omitempty" yaml:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty" yaml:"value,omitempty"`
}

// ReadArtifact reads and validates an artifact file. YAML is used for
// .yaml and .yml files, JSON otherwise.
func ReadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	return DecodeArtifact(data, isYAML(path))
}

// DecodeArtifact parses and validates an artifact payload.
func DecodeArtifact(data []byte, asYAML bool) (*Artifact, error) {
	var a Artifact
	if asYAML {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&a); err != nil {
			return nil, fmt.Errorf("decode yaml model artifact: %w", err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&a); err != nil {
			return nil, fmt.Errorf("decode json model artifact: %w", err)
		}
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model artifact: %w", err)
	}
	return &a, nil
}

// WriteArtifact validates a and writes it to path in the format implied by
// the extension.
func WriteArtifact(path string, a *Artifact) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid model artifact: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(a)
	} else {
		data, err = json.MarshalIndent(a, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode model artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write model artifact: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// InputLen is the feature count the model was trained on.
func (a *Artifact) InputLen() int {
	if a.Kind == KindLinear {
		return len(a.Coefficients)
	}
	return a.NFeatures
}

// Validate checks structural soundness so that scoring never indexes out of range.
func (a *Artifact) Validate() error {
	switch a.Kind {
	case KindLinear:
		return a.validateLinear()
	case KindTreeEnsemble:
		return a.validateEnsemble()
	case "":
		return errors.New("kind is required")
	default:
		return fmt.Errorf("unsupported kind %q", a.Kind)
	}
}

func (a *Artifact) validateLinear() error {
	if len(a.Coefficients) == 0 {
		return errors.New("linear model has no coefficients")
	}
	if !finite(a.Intercept) {
		return errors.New("intercept is not finite")
	}
	for i, c := range a.Coefficients {
		if !finite(c) {
			return fmt.Errorf("coefficient %d is not finite", i)
		}
	}
	return a.validateFeatureNames(len(a.Coefficients))
}

func (a *Artifact) validateEnsemble() error {
	if a.NFeatures <= 0 {
		return errors.New("tree ensemble requires n_features > 0")
	}
	if len(a.Trees) == 0 {
		return errors.New("tree ensemble has no trees")
	}
	switch a.Aggregation {
	case "", AggregationSum, AggregationMean:
	default:
		return fmt.Errorf("unsupported aggregation %q", a.Aggregation)
	}
	if !finite(a.BaseScore) || !finite(a.LearningRate) {
		return errors.New("base_score and learning_rate must be finite")
	}
	for ti, tree := range a.Trees {
		if err := tree.validate(a.NFeatures); err != nil {
			return fmt.Errorf("tree %d: %w", ti, err)
		}
	}
	return a.validateFeatureNames(a.NFeatures)
}

func (a *Artifact) validateFeatureNames(n int) error {
	if len(a.Features) > 0 && len(a.Features) != n {
		return fmt.Errorf("features lists %d names but model takes %d inputs", len(a.Features), n)
	}
	return nil
}

func (t Tree) validate(nFeatures int) error {
	if len(t.Nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	for i, n := range t.Nodes {
		if n.Leaf {
			if !finite(n.Value) {
				return fmt.Errorf("node %d: leaf value is not finite", i)
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= nFeatures {
			return fmt.Errorf("node %d: feature index %d out of range", i, n.Feature)
		}
		if !finite(n.Threshold) {
			return fmt.Errorf("node %d: threshold is not finite", i)
		}
		// Children must point forward so traversal always terminates.
		if n.Left <= i || n.Left >= len(t.Nodes) || n.Right <= i || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: child index out of range", i)
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
