package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env    string
	Server ServerConfig
	Store  StoreConfig
	Redis  RedisConfig
	Queue  QueueConfig
	JWT    JWTConfig
	Log    LogConfig
	Kafka  KafkaConfig
}

type ServerConfig struct {
	HTTPPort     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StoreConfig selects the entry store backend. "redis" is the durable
// production backend; "memory" runs the engine fully in-process.
type StoreConfig struct {
	Backend string
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
}

type QueueConfig struct {
	// WalkInGracePeriod is added to a walk-in's check-in time to form its
	// anchor time, letting scheduled slot holders keep a head start.
	WalkInGracePeriod time.Duration
	// DefaultServiceDuration is the ETA estimate used when neither a
	// rolling average nor a catalog default exists for a service.
	DefaultServiceDuration time.Duration
	// DurationWindow is how many completed services feed the rolling
	// average per (provider, service).
	DurationWindow int
	// NoShowTimeout is how long a Called entry may sit before the
	// no-show watcher marks it NoShow.
	NoShowTimeout time.Duration
	// WatchInterval is the no-show watcher scan interval.
	WatchInterval time.Duration
}

type KafkaConfig struct {
	Brokers              []string
	ProducerRetryMax     int
	ProducerRequiredAcks int
	Enabled              bool
	ConsumerGroupID      string
}

type JWTConfig struct {
	Secret string
	Expiry time.Duration
}

type LogConfig struct {
	Level    string
	Mode     string
	Encoding string
}

func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := &Config{
		Env: getEnv("ENV", "development"),
		Server: ServerConfig{
			HTTPPort:     getEnvAsInt("SERVER_HTTP_PORT", 5000),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Store: StoreConfig{
			Backend: getEnv("STORE_BACKEND", "redis"),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			MaxRetries:   getEnvAsInt("REDIS_MAX_RETRIES", 3),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		Queue: QueueConfig{
			WalkInGracePeriod:      getEnvAsDuration("QUEUE_WALKIN_GRACE_PERIOD", 0),
			DefaultServiceDuration: getEnvAsDuration("QUEUE_DEFAULT_SERVICE_DURATION", 15*time.Minute),
			DurationWindow:         getEnvAsInt("QUEUE_DURATION_WINDOW", 20),
			NoShowTimeout:          getEnvAsDuration("QUEUE_NO_SHOW_TIMEOUT", 5*time.Minute),
			WatchInterval:          getEnvAsDuration("QUEUE_WATCH_INTERVAL", 30*time.Second),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "jwt-secret"),
			Expiry: getEnvAsDuration("JWT_EXPIRY", 15*time.Minute),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Mode:     getEnv("LOG_MODE", "development"),
			Encoding: getEnv("LOG_ENCODING", "console"),
		},
		Kafka: KafkaConfig{
			Brokers:              getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			ProducerRetryMax:     getEnvAsInt("KAFKA_PRODUCER_RETRY_MAX", 3),
			ProducerRequiredAcks: getEnvAsInt("KAFKA_PRODUCER_REQUIRED_ACKS", 1),
			Enabled:              getEnvAsBool("KAFKA_ENABLED", true),
			ConsumerGroupID:      getEnv("KAFKA_CONSUMER_GROUP_ID", "hybrid-queue-service"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.HTTPPort)
	}

	if c.Store.Backend != "redis" && c.Store.Backend != "memory" {
		return fmt.Errorf("invalid store backend: %s", c.Store.Backend)
	}

	if c.Store.Backend == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.Queue.DurationWindow <= 0 {
		return fmt.Errorf("invalid duration window: %d", c.Queue.DurationWindow)
	}

	if c.Env == "production" && (c.JWT.Secret == "" || c.JWT.Secret == "jwt-secret") {
		return fmt.Errorf("JWT secret must be set in production")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
