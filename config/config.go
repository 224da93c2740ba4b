// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port          string
	Env           string
	StoreBackend  string
	MongoURI      string
	MongoDB       string
	RedisAddr     string
	KafkaBrokers  []string
	KafkaLogTopic string
	OrderTopic    string
	ESIndex       string
	ESAddresses   []string
	UploadDir     string
	MetricsAddr   string
	OTLPEndpoint  string
	LogLevel      string
	LogFormat     string

	JWTSecret        []byte
	CustomerTokenTTL time.Duration
	AdminTokenTTL    time.Duration

	IdempotencyWindow time.Duration
	MenuCacheTTL      time.Duration
	TotalTolerance    float64
	RequestTimeout    time.Duration
}

// Load reads the environment, applying defaults for everything except the
// token secret.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadLogPusher reads the settings the Kafka to Elasticsearch pusher needs.
// Brokers are mandatory; the token secret is not.
func LoadLogPusher() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	return cfg, nil
}

func load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "5000"),
		Env:           getEnv("APP_ENV", "development"),
		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", "mongo")),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:       getEnv("MONGO_DB", "quickeats"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		KafkaBrokers:  splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaLogTopic: getEnv("KAFKA_LOG_TOPIC", "logs"),
		OrderTopic:    getEnv("KAFKA_ORDER_TOPIC", "order-events"),
		ESIndex:       getEnv("ELASTICSEARCH_INDEX", "logs"),
		ESAddresses:   splitList(getEnv("ELASTICSEARCH_URL", "http://localhost:9200")),
		UploadDir:     getEnv("UPLOAD_DIR", "uploads"),
		MetricsAddr:   os.Getenv("METRICS_ADDR"),
		OTLPEndpoint:  os.Getenv("OTLP_ENDPOINT"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		JWTSecret:     []byte(os.Getenv("JWT_SECRET")),
	}

	var err error
	if cfg.CustomerTokenTTL, err = getDuration("CUSTOMER_TOKEN_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.AdminTokenTTL, err = getDuration("ADMIN_TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.IdempotencyWindow, err = getDuration("IDEMPOTENCY_WINDOW", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MenuCacheTTL, err = getDuration("MENU_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.TotalTolerance, err = getFloat("TOTAL_TOLERANCE", 0.01); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.JWTSecret) == 0 {
		return errors.New("JWT_SECRET is required")
	}
	switch c.StoreBackend {
	case "mongo", "memory":
	default:
		return fmt.Errorf("STORE_BACKEND must be mongo or memory, got %q", c.StoreBackend)
	}
	if c.TotalTolerance < 0 {
		return errors.New("TOTAL_TOLERANCE must not be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
