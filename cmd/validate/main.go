// Command validate runs end-to-end sanity checks against a model artifact
// before it is deployed: the file loads and matches the configured feature
// layout, the category ladder holds at every boundary, fixture requests score
// to finite, correctly rounded and categorized results, malformed requests
// are rejected, and the score does not fall as PM2.5 rises.
//
// Usage:
//
//	go run ./cmd/validate -model models/aqi_model.json
//	go run ./cmd/validate -model models/aqi_model.json -requests internal/pipeline/testdata/predict_requests.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/aqi-prediction-service/internal/domain"
	"github.com/couchcryptid/aqi-prediction-service/internal/model"
	"github.com/couchcryptid/aqi-prediction-service/internal/observability"
	"github.com/couchcryptid/aqi-prediction-service/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

var fixedTime = time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC)

// baseline is a moderate Variant A reading used when no fixtures are given.
var baseline = map[string]any{
	"pm2_5": 35.0, "pm10": 50.0, "no": 2.0, "no2": 20.0, "co": 0.7, "so2": 4.0, "o3": 45.0,
	"temperature": 22.0, "humidity": 55.0,
}

// fixture is one request body with optional expected output.
type fixture struct {
	Name     string         `json:"name"`
	Body     map[string]any `json:"body"`
	AQI      *float64       `json:"aqi,omitempty"`
	Category string         `json:"category,omitempty"`
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// recorder captures published events in memory.
type recorder struct {
	mu     sync.Mutex
	events []domain.PredictionEvent
}

func (r *recorder) Publish(_ context.Context, e domain.PredictionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func main() {
	modelPath := flag.String("model", "", "path to the model artifact")
	variantName := flag.String("variant", string(domain.VariantPollutants), "feature layout the model was trained on")
	requests := flag.String("requests", "", "optional JSON file of fixture requests")
	flag.Parse()

	if *modelPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*modelPath, *variantName, *requests); code != 0 {
		os.Exit(code)
	}
}

func run(modelPath, variantName, requestsPath string) int {
	domain.SetClock(clockwork.NewFakeClockAt(fixedTime))
	defer domain.SetClock(nil)

	fmt.Println("=== AQI Model Validation ===")
	fmt.Println()

	variant, err := domain.ParseVariant(variantName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	fixtures := []fixture{{Name: "baseline", Body: baseline}}
	if requestsPath != "" {
		fixtures, err = loadFixtures(requestsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load fixtures: %v\n", err)
			return 1
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handle := model.Load(modelPath, logger)
	events := &recorder{}
	svc := pipeline.New(handle, events, logger, observability.NewMetricsForTesting(), variant, variant)

	load := validateArtifact(modelPath, handle, variant)
	phases := []*phase{load, validateLadder()}
	if load.passed() {
		phases = append(phases,
			validateFixtures(svc, fixtures),
			validateEvents(events, len(fixtures)),
			validateRejections(svc, variant),
			validateMonotonic(svc),
		)
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Model: %s (%s), layout %s, %d fixtures\n", modelPath, handle.Kind(), variant, len(fixtures))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadFixtures(path string) ([]fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []fixture
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s has no fixtures", path)
	}
	return out, nil
}

func validateArtifact(path string, h *model.Handle, v domain.Variant) *phase {
	p := &phase{name: "Artifact loads and matches layout"}
	if !h.Available() {
		p.errorf("model unavailable: %v", h.Err())
		return p
	}
	a, err := model.ReadArtifact(path)
	if err != nil {
		p.errorf("re-read artifact: %v", err)
		return p
	}
	if a.InputLen() != v.Len() {
		p.errorf("model takes %d inputs, layout %s has %d", a.InputLen(), v, v.Len())
	}
	if len(a.Features) > 0 && !slices.Equal(a.Features, v.Fields()) {
		p.errorf("feature order %v does not match layout %v", a.Features, v.Fields())
	}
	return p
}

func validateLadder() *phase {
	p := &phase{name: "Category ladder boundaries"}
	cases := []struct {
		aqi  float64
		want string
	}{
		{-5, domain.CategoryGood},
		{0, domain.CategoryGood},
		{50, domain.CategoryGood},
		{50.01, domain.CategoryModerate},
		{100, domain.CategoryModerate},
		{100.01, domain.CategorySensitiveUnhealthy},
		{150, domain.CategorySensitiveUnhealthy},
		{150.01, domain.CategoryUnhealthy},
		{200, domain.CategoryUnhealthy},
		{200.01, domain.CategoryVeryUnhealthy},
		{300, domain.CategoryVeryUnhealthy},
		{300.01, domain.CategoryHazardous},
		{1e6, domain.CategoryHazardous},
	}
	for _, c := range cases {
		if got := domain.Categorize(c.aqi); got != c.want {
			p.errorf("Categorize(%g) = %q, want %q", c.aqi, got, c.want)
		}
	}
	return p
}

func validateFixtures(svc *pipeline.Service, fixtures []fixture) *phase {
	p := &phase{name: "Fixture predictions"}
	ctx := context.Background()
	for _, f := range fixtures {
		res, err := svc.Predict(ctx, f.Body)
		if err != nil {
			p.errorf("%s: %v", f.Name, err)
			continue
		}
		if math.IsNaN(res.AQI) || math.IsInf(res.AQI, 0) {
			p.errorf("%s: non-finite AQI %v", f.Name, res.AQI)
		}
		if domain.RoundAQI(res.AQI) != res.AQI {
			p.errorf("%s: AQI %v is not rounded to two decimals", f.Name, res.AQI)
		}
		if !slices.Contains(domain.Categories(), res.Category) {
			p.errorf("%s: unknown category %q", f.Name, res.Category)
		}
		if f.AQI != nil && res.AQI != *f.AQI {
			p.errorf("%s: AQI %v, want %v", f.Name, res.AQI, *f.AQI)
		}
		if f.Category != "" && res.Category != f.Category {
			p.errorf("%s: category %q, want %q", f.Name, res.Category, f.Category)
		}
	}
	return p
}

func validateEvents(r *recorder, want int) *phase {
	p := &phase{name: "Prediction events"}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) != want {
		p.errorf("expected %d events, got %d", want, len(r.events))
	}
	for i, e := range r.events {
		if e.ID == "" {
			p.errorf("event %d: missing ID", i)
		}
		if !e.PredictedAt.Equal(fixedTime) {
			p.errorf("event %d: predicted_at %s, want %s", i, e.PredictedAt, fixedTime)
		}
		if !slices.Contains(domain.Categories(), e.Category) {
			p.errorf("event %d: unknown category %q", i, e.Category)
		}
	}
	return p
}

func validateRejections(svc *pipeline.Service, v domain.Variant) *phase {
	p := &phase{name: "Malformed requests rejected"}
	ctx := context.Background()

	missing := make(map[string]any, len(baseline))
	for k, val := range baseline {
		missing[k] = val
	}
	delete(missing, v.Fields()[0])

	nonNumeric := make(map[string]any, len(baseline))
	for k, val := range baseline {
		nonNumeric[k] = val
	}
	nonNumeric[v.Fields()[1]] = "high"

	cases := map[string]map[string]any{
		"empty body":      {},
		"missing field":   missing,
		"non-numeric":     nonNumeric,
		"null everywhere": nullBody(v),
	}
	for name, body := range cases {
		_, err := svc.Predict(ctx, body)
		if kind, _ := domain.KindOf(err); kind != domain.KindValidation {
			p.errorf("%s: expected validation error, got %v", name, err)
		}
	}
	return p
}

func nullBody(v domain.Variant) map[string]any {
	out := make(map[string]any, v.Len())
	for _, f := range v.Fields() {
		out[f] = nil
	}
	return out
}

func validateMonotonic(svc *pipeline.Service) *phase {
	p := &phase{name: "Score non-decreasing in PM2.5"}
	ctx := context.Background()
	prev := math.Inf(-1)
	for pm := 0.0; pm <= 500; pm += 25 {
		body := make(map[string]any, len(baseline))
		for k, val := range baseline {
			body[k] = val
		}
		body[domain.FieldPM25] = pm

		res, err := svc.TestPredict(ctx, body)
		if err != nil {
			p.errorf("pm2_5=%g: %v", pm, err)
			continue
		}
		if res.AQI < prev {
			p.errorf("pm2_5=%g: score %v fell below %v", pm, res.AQI, prev)
		}
		prev = res.AQI
	}
	return p
}
