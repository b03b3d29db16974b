package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/aqi-prediction-service/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Model configuration.
	ModelPath          string
	PredictVariant     domain.Variant
	TestPredictVariant domain.Variant
	TestPredictEnabled bool

	// HTTP surface.
	CORSAllowedOrigins []string
	RateLimit          float64
	RateLimitBurst     int

	// Prediction event publishing.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	// City readings lookup.
	ReadingsEnabled   bool
	ReadingsAPIKey    string
	ReadingsModel     string
	ReadingsTimeout   time.Duration
	ReadingsCacheSize int
	ReadingsCacheTTL  time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	predictVariant, err := domain.ParseVariant(sharedcfg.EnvOrDefault("PREDICT_VARIANT", string(domain.VariantPollutants)))
	if err != nil {
		return nil, fmt.Errorf("invalid PREDICT_VARIANT: %w", err)
	}
	testVariant, err := domain.ParseVariant(sharedcfg.EnvOrDefault("TEST_PREDICT_VARIANT", string(domain.VariantPollutantsWeather)))
	if err != nil {
		return nil, fmt.Errorf("invalid TEST_PREDICT_VARIANT: %w", err)
	}

	rateLimit, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("RATE_LIMIT", "100"), 64)
	if err != nil || rateLimit < 0 {
		return nil, errors.New("invalid RATE_LIMIT: must be a non-negative number")
	}
	burst, err := strconv.Atoi(sharedcfg.EnvOrDefault("RATE_LIMIT_BURST", "200"))
	if err != nil || burst < 0 {
		return nil, errors.New("invalid RATE_LIMIT_BURST: must be a non-negative integer")
	}

	readingsTimeout, err := parsePositiveDuration("READINGS_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	readingsTTL, err := parsePositiveDuration("READINGS_CACHE_TTL", "10m")
	if err != nil {
		return nil, err
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = sharedcfg.ParseBrokers(raw)
	}
	apiKey := os.Getenv("READINGS_API_KEY")

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		ModelPath:          sharedcfg.EnvOrDefault("MODEL_PATH", "aqi_model.json"),
		PredictVariant:     predictVariant,
		TestPredictVariant: testVariant,
		TestPredictEnabled: parseFlag("TEST_PREDICT_ENABLED", true),

		CORSAllowedOrigins: parseList(sharedcfg.EnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")),
		RateLimit:          rateLimit,
		RateLimitBurst:     burst,

		KafkaEnabled: parseFlag("KAFKA_ENABLED", len(brokers) > 0),
		KafkaBrokers: brokers,
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "aqi-predictions"),

		ReadingsEnabled:   parseFlag("READINGS_ENABLED", apiKey != ""),
		ReadingsAPIKey:    apiKey,
		ReadingsModel:     sharedcfg.EnvOrDefault("READINGS_MODEL", "gemini-2.5-flash-lite"),
		ReadingsTimeout:   readingsTimeout,
		ReadingsCacheSize: parseCacheSize(),
		ReadingsCacheTTL:  readingsTTL,
	}

	if cfg.ModelPath == "" {
		return nil, errors.New("MODEL_PATH is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required")
	}
	if cfg.ReadingsEnabled && cfg.ReadingsAPIKey == "" {
		return nil, errors.New("READINGS_ENABLED is true but READINGS_API_KEY is not set")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

// parseFlag reads a boolean toggle. Only "true" enables an explicitly set flag.
func parseFlag(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true")
	}
	return def
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseCacheSize() int {
	if s := os.Getenv("READINGS_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 256
}
