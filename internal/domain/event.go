package domain

import "time"

// Endpoint identifies which prediction surface produced a result.
type Endpoint string

const (
	EndpointPredict     Endpoint = "predict"
	EndpointTestPredict Endpoint = "test-predict"
)

// PredictionResult is the canonical response: a rounded score and its category.
type PredictionResult struct {
	AQI      float64 `json:"aqi"`
	Category string  `json:"category"`
}

// RawPrediction is the model's native, unrounded output.
type RawPrediction struct {
	AQI float64 `json:"aqi"`
}

// PredictionEvent records one successful prediction for downstream consumers.
type PredictionEvent struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"request_id,omitempty"`
	Endpoint    Endpoint  `json:"endpoint"`
	Variant     Variant   `json:"variant"`
	Readings    Readings  `json:"readings"`
	AQI         float64   `json:"aqi"`
	Category    string    `json:"category,omitempty"`
	PredictedAt time.Time `json:"predicted_at"`
}

// CityReadings is a pollutant snapshot for a named city from an upstream provider.
type CityReadings struct {
	City       string   `json:"city"`
	Pollutants Readings `json:"pollutants"`
}
