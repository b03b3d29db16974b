package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/aqi-prediction-service/internal/config"
	"github.com/couchcryptid/aqi-prediction-service/internal/domain"
	"github.com/couchcryptid/aqi-prediction-service/internal/observability"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Client implements domain.ReadingsProvider using the Gemini generateContent API.
type Client struct {
	apiKey     string
	model      string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Gemini readings client from the READINGS_* settings.
func NewClient(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		apiKey: cfg.ReadingsAPIKey,
		model:  cfg.ReadingsModel,
		httpClient: &http.Client{
			Timeout: cfg.ReadingsTimeout,
		},
		baseURL: defaultBaseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// CityReadings asks the model for the seven pollutant readings of city and
// validates them like a /predict body.
func (c *Client) CityReadings(ctx context.Context, city string) (domain.CityReadings, error) {
	start := time.Now()
	readings, err := c.fetch(ctx, city)
	c.metrics.ReadingsDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.ReadingsRequests.WithLabelValues("error").Inc()
		return domain.CityReadings{}, err
	}
	c.metrics.ReadingsRequests.WithLabelValues("success").Inc()
	c.logger.Debug("city readings fetched", "city", city, "model", c.model)
	return domain.CityReadings{City: city, Pollutants: readings}, nil
}

func (c *Client) fetch(ctx context.Context, city string) (domain.Readings, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: buildPrompt(city)}}}},
		GenerationConfig: generationConfig{
			Temperature:      0.2,
			MaxOutputTokens:  150,
			ResponseMIMEType: "application/json",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	u := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("readings request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("gemini API error: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	text := gr.text()
	if text == "" {
		return nil, errors.New("gemini returned no content")
	}
	return parseReadings(text)
}

func buildPrompt(city string) string {
	return fmt.Sprintf(`Estimate current air pollutant concentrations for the city %q.
Return only this JSON object with numeric values and no commentary:
{"pm2_5": number, "pm10": number, "no": number, "no2": number, "co": number, "so2": number, "o3": number}`, city)
}

// parseReadings strips markdown code fences from model output and validates
// the JSON object inside.
func parseReadings(text string) (domain.Readings, error) {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return nil, fmt.Errorf("parse model output %q: not a JSON object", truncate(text, 120))
	}

	readings, err := domain.ValidateReadings(domain.VariantPollutants, raw)
	if err != nil {
		return nil, fmt.Errorf("model output: %w", err)
	}
	return readings, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Gemini API request and response types.

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

func (r generateResponse) text() string {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	return r.Candidates[0].Content.Parts[0].Text
}
