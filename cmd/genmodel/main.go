// Command genmodel writes a deterministic sample model artifact so the
// service, the validate tool and local demos have something to load without a
// training step. The output format follows the file extension (.json, .yaml,
// .yml).
//
// Usage:
//
//	go run ./cmd/genmodel -out models/aqi_model.json
//	go run ./cmd/genmodel -kind tree_ensemble -variant pollutants-weather -out models/aqi_weather.yaml
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/couchcryptid/aqi-prediction-service/internal/domain"
	"github.com/couchcryptid/aqi-prediction-service/internal/model"
)

// Rough per-pollutant weights for the sample linear model.
var linearWeights = map[string]float64{
	"pm2_5":       1.6,
	"pm10":        0.4,
	"no":          0.1,
	"no2":         0.3,
	"co":          5,
	"so2":         0.2,
	"o3":          0.5,
	"temperature": 0.1,
	"humidity":    -0.05,
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	kind := flag.String("kind", model.KindLinear, "artifact kind: linear or tree_ensemble")
	variantName := flag.String("variant", string(domain.VariantPollutants), "feature layout: pollutants or pollutants-weather")
	out := flag.String("out", "", "output path for the artifact")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	variant, err := domain.ParseVariant(*variantName)
	if err != nil {
		return err
	}

	var a *model.Artifact
	switch *kind {
	case model.KindLinear:
		a = linearArtifact(variant)
	case model.KindTreeEnsemble:
		a = ensembleArtifact(variant)
	default:
		return fmt.Errorf("unsupported kind %q", *kind)
	}

	if dir := filepath.Dir(*out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := model.WriteArtifact(*out, a); err != nil {
		return err
	}

	fmt.Printf("Wrote %s model (%d features, layout %s) to %s\n", a.Kind, a.InputLen(), variant, *out)
	return nil
}

func linearArtifact(v domain.Variant) *model.Artifact {
	fields := v.Fields()
	coefs := make([]float64, len(fields))
	for i, f := range fields {
		coefs[i] = linearWeights[f]
	}
	return &model.Artifact{
		Kind:         model.KindLinear,
		Features:     fields,
		Intercept:    5,
		Coefficients: coefs,
	}
}

// ensembleArtifact builds one stump per particulate and ozone column, summed
// on top of a base score.
func ensembleArtifact(v domain.Variant) *model.Artifact {
	fields := v.Fields()
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		index[f] = i
	}

	trees := []model.Tree{
		twoLevel(index["pm2_5"], 12, 35.4, 0, 30, 90),
		stump(index["pm10"], 54, 0, 25),
		stump(index["o3"], 70, 0, 40),
	}
	if v == domain.VariantPollutantsWeather {
		trees = append(trees, stump(index["temperature"], 30, 0, 8))
	}

	return &model.Artifact{
		Kind:         model.KindTreeEnsemble,
		Features:     fields,
		NFeatures:    len(fields),
		BaseScore:    20,
		Aggregation:  model.AggregationSum,
		LearningRate: 1,
		Trees:        trees,
	}
}

func stump(feature int, threshold, lo, hi float64) model.Tree {
	return model.Tree{Nodes: []model.TreeNode{
		{Feature: feature, Threshold: threshold, Left: 1, Right: 2},
		{Leaf: true, Value: lo},
		{Leaf: true, Value: hi},
	}}
}

// twoLevel splits at t1, then splits the right branch again at t2.
func twoLevel(feature int, t1, t2, lo, mid, hi float64) model.Tree {
	return model.Tree{Nodes: []model.TreeNode{
		{Feature: feature, Threshold: t1, Left: 1, Right: 2},
		{Leaf: true, Value: lo},
		{Feature: feature, Threshold: t2, Left: 3, Right: 4},
		{Leaf: true, Value: mid},
		{Leaf: true, Value: hi},
	}}
}
