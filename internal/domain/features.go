package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Variant names one positional feature layout a model may be trained on.
type Variant string

const (
	// VariantPollutants is the seven-pollutant layout used by /predict.
	VariantPollutants Variant = "pollutants"
	// VariantPollutantsWeather swaps NO for temperature and humidity.
	VariantPollutantsWeather Variant = "pollutants-weather"
)

// Field names shared by the variants.
const (
	FieldPM25        = "pm2_5"
	FieldPM10        = "pm10"
	FieldNO          = "no"
	FieldNO2         = "no2"
	FieldCO          = "co"
	FieldSO2         = "so2"
	FieldO3          = "o3"
	FieldTemperature = "temperature"
	FieldHumidity    = "humidity"
)

var variantFields = map[Variant][]string{
	VariantPollutants:        {FieldPM25, FieldPM10, FieldNO, FieldNO2, FieldCO, FieldSO2, FieldO3},
	VariantPollutantsWeather: {FieldPM25, FieldPM10, FieldSO2, FieldNO2, FieldCO, FieldO3, FieldTemperature, FieldHumidity},
}

// ParseVariant validates a variant name.
func ParseVariant(s string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := variantFields[v]; !ok {
		return "", fmt.Errorf("unknown feature variant %q (want one of %s)", s, strings.Join(variantNames(), ", "))
	}
	return v, nil
}

func variantNames() []string {
	names := make([]string, 0, len(variantFields))
	for v := range variantFields {
		names = append(names, string(v))
	}
	sort.Strings(names)
	return names
}

// Fields returns the variant's field names in model input order. The
// returned slice is a copy.
func (v Variant) Fields() []string {
	return append([]string(nil), variantFields[v]...)
}

// Len is the vector length the variant produces.
func (v Variant) Len() int {
	return len(variantFields[v])
}

// Readings holds validated, finite readings keyed by field name.
type Readings map[string]float64

// FeatureVector is the positional model input.
type FeatureVector []float64

// ValidateReadings checks that raw carries every field of v as a finite
// number and returns the parsed values. raw is a decoded JSON object;
// numbers may arrive as json.Number, float64, or numeric strings. Fields
// outside the variant are ignored. All problems are reported together in
// variant order.
func ValidateReadings(v Variant, raw map[string]any) (Readings, error) {
	fields, ok := variantFields[v]
	if !ok {
		return nil, fmt.Errorf("unknown feature variant %q", v)
	}

	out := make(Readings, len(fields))
	var problems []FieldError
	for _, name := range fields {
		val, present := raw[name]
		if !present || val == nil {
			problems = append(problems, FieldError{Field: name, Reason: "is required"})
			continue
		}
		f, err := toFloat(val)
		if err != nil {
			problems = append(problems, FieldError{Field: name, Reason: err.Error()})
			continue
		}
		out[name] = f
	}

	if len(problems) > 0 {
		return nil, NewValidationError(problems)
	}
	return out, nil
}

var (
	errNotNumber = errors.New("must be a number")
	errNotFinite = errors.New("must be finite")
)

func toFloat(val any) (float64, error) {
	var f float64
	switch t := val.(type) {
	case json.Number:
		parsed, err := parseNumber(t.String())
		if err != nil {
			return 0, err
		}
		f = parsed
	case float64:
		f = t
	case string:
		parsed, err := parseNumber(strings.TrimSpace(t))
		if err != nil {
			return 0, err
		}
		f = parsed
	default:
		return 0, errNotNumber
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	return f, nil
}

// parseNumber reports well-formed literals beyond float64 range, like
// 1e400, as not finite rather than not a number.
func parseNumber(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) && math.IsInf(f, 0) {
			return 0, errNotFinite
		}
		return 0, errNotNumber
	}
	return f, nil
}

// Assemble arranges readings into the positional order of v.
func Assemble(v Variant, r Readings) (FeatureVector, error) {
	fields, ok := variantFields[v]
	if !ok {
		return nil, fmt.Errorf("unknown feature variant %q", v)
	}
	vec := make(FeatureVector, len(fields))
	for i, name := range fields {
		val, ok := r[name]
		if !ok {
			return nil, NewValidationError([]FieldError{{Field: name, Reason: "is required"}})
		}
		vec[i] = val
	}
	return vec, nil
}
