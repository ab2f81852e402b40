package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
// The three services (collector, processor, predictor) share one config so
// deployments stay consistent; each reads only the fields it needs.
type Config struct {
	KafkaBrokers     []string
	RawTopic         string
	ProcessedTopic   string
	ProcessorGroupID string
	PredictorGroupID string

	DatabaseURL string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Collector settings.
	OpenWeatherAPIKey string
	OpenAQAPIKey      string
	FetchTimeout      time.Duration
	CycleInterval     time.Duration
	LocationDelay     time.Duration
	IdleBackoff       time.Duration

	// Join processor settings. A StaleStateTTL of zero disables the sweep.
	StaleStateTTL time.Duration

	// Model lifecycle settings.
	ModelsDir          string
	RemoteModelURL     string
	RemoteModelKey     string
	RemoteTimeout      time.Duration
	TrainWindowDays    int
	TrainInterval      time.Duration
	TrainTimeout       time.Duration
	MinTrainingSamples int
	PredictionHorizon  time.Duration
}

// Load reads configuration from the environment, applying defaults where
// unset. A .env file in the working directory is honored if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		KafkaBrokers:     parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		RawTopic:         envOrDefault("KAFKA_RAW_TOPIC", "raw_pollution_weather_data"),
		ProcessedTopic:   envOrDefault("KAFKA_PROCESSED_TOPIC", "processed_pollution_weather_data"),
		ProcessorGroupID: envOrDefault("KAFKA_PROCESSOR_GROUP_ID", "join-processor"),
		PredictorGroupID: envOrDefault("KAFKA_PREDICTOR_GROUP_ID", "model-consumer"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		HTTPAddr:  envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:  envOrDefault("LOG_LEVEL", "info"),
		LogFormat: envOrDefault("LOG_FORMAT", "json"),

		OpenWeatherAPIKey: os.Getenv("OPENWEATHER_API_KEY"),
		OpenAQAPIKey:      os.Getenv("OPENAQ_API_KEY"),

		ModelsDir:      envOrDefault("MODELS_DIR", "models"),
		RemoteModelURL: os.Getenv("REMOTE_MODEL_URL"),
		RemoteModelKey: os.Getenv("REMOTE_MODEL_KEY"),
	}

	var err error
	if cfg.ShutdownTimeout, err = parseDuration("SHUTDOWN_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = parseDuration("FETCH_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.CycleInterval, err = parseDuration("CYCLE_INTERVAL", "30s"); err != nil {
		return nil, err
	}
	if cfg.LocationDelay, err = parseDuration("LOCATION_DELAY", "1s"); err != nil {
		return nil, err
	}
	if cfg.IdleBackoff, err = parseDuration("IDLE_BACKOFF", "60s"); err != nil {
		return nil, err
	}
	if cfg.StaleStateTTL, err = parseDuration("STALE_STATE_TTL", "24h"); err != nil {
		return nil, err
	}
	if cfg.RemoteTimeout, err = parseDuration("REMOTE_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if cfg.TrainInterval, err = parseDuration("TRAIN_INTERVAL", "24h"); err != nil {
		return nil, err
	}
	if cfg.TrainTimeout, err = parseDuration("TRAIN_TIMEOUT", "10m"); err != nil {
		return nil, err
	}
	if cfg.PredictionHorizon, err = parseDuration("PREDICTION_HORIZON", "24h"); err != nil {
		return nil, err
	}
	if cfg.TrainWindowDays, err = parseInt("TRAIN_WINDOW_DAYS", 30); err != nil {
		return nil, err
	}
	if cfg.MinTrainingSamples, err = parseInt("MIN_TRAINING_SAMPLES", 100); err != nil {
		return nil, err
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.RawTopic == "" {
		return nil, errors.New("KAFKA_RAW_TOPIC is required")
	}
	if cfg.ProcessedTopic == "" {
		return nil, errors.New("KAFKA_PROCESSED_TOPIC is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.TrainWindowDays <= 0 {
		return nil, errors.New("TRAIN_WINDOW_DAYS must be positive")
	}
	if cfg.MinTrainingSamples <= 0 {
		return nil, errors.New("MIN_TRAINING_SAMPLES must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBrokers(s string) []string {
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
