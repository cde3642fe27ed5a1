package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	LogLevel  string
	LogFormat string

	// storage node
	NodeAddr          string
	ShardIndex        int
	DBDriver          string
	DBHost            string
	DBPort            string
	DBUser            string
	DBPass            string
	DBName            string
	BlobBackend       string
	BlobRoot          string
	NodeLayout        string
	NodeWorkers       int
	NodeQueue         int
	NodeShutdownGrace time.Duration
	StageCacheTTL     time.Duration
	ReadCacheTTL      time.Duration

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	MinioHost     string
	MinioPort     string
	MinioUsername string
	MinioPassword string
	MinioUseSSL   bool
	BucketName    string

	// routing proxy
	ProxyAddr           string
	ProxyURL            string
	ShardRPCTimeout     time.Duration
	DiscardTimeout      time.Duration
	MaxUploadBytes      int64
	InternalTokenSecret string

	// reclamation worker
	RabbitMQURL              string
	RabbitMQHost             string
	RabbitMQPort             string
	RabbitMQUser             string
	RabbitMQPass             string
	RabbitMQVhost            string
	RabbitMQPrefetch         int
	ReclaimWorkerConcurrency int
	ReclaimRate              float64
	ReclaimBurst             int
	ReclaimRetryMax          int
	ReclaimRetryDelays       []time.Duration
	ReclaimLockTTL           time.Duration
	ReclaimTimeout           time.Duration
}

var AppConfig Config

// getEnv returns the environment value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return defaultValue
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvDurationList(key string, defaultValue []time.Duration) []time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parts := strings.Split(raw, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		parsed, err := time.ParseDuration(part)
		if err != nil {
			return defaultValue
		}
		out = append(out, parsed)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// LoadConfig reads the environment into a fresh Config.
func LoadConfig() Config {
	rabbitHost := getEnv("RABBITMQ_HOST", "localhost")
	rabbitPort := getEnv("RABBITMQ_PORT", "5672")
	rabbitUser := getEnv("RABBITMQ_USER", "guest")
	rabbitPass := getEnv("RABBITMQ_PASSWORD", "guest")
	rabbitVhost := getEnv("RABBITMQ_VHOST", "/")
	rabbitURL := getEnv("RABBITMQ_URL", "")
	if rabbitURL == "" {
		rabbitURL = fmt.Sprintf(
			"amqp://%s:%s@%s:%s/%s",
			url.PathEscape(rabbitUser),
			url.PathEscape(rabbitPass),
			rabbitHost,
			rabbitPort,
			url.PathEscape(rabbitVhost),
		)
	}
	retryDelays := getEnvDurationList(
		"RECLAIM_RETRY_DELAYS",
		[]time.Duration{5 * time.Second, 30 * time.Second, 2 * time.Minute, 10 * time.Minute},
	)
	stageTTL := getEnvDuration("CACHE_STAGE_TTL", 10*time.Minute)

	return Config{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		NodeAddr:          getEnv("NODE_ADDR", ":8081"),
		ShardIndex:        getEnvInt("SHARD_INDEX", 0),
		DBDriver:          getEnv("DB_DRIVER", "mysql"),
		DBHost:            getEnv("DB_HOST", "localhost"),
		DBPort:            getEnv("DB_PORT", "3306"),
		DBUser:            getEnv("DB_USER", "root"),
		DBPass:            getEnv("DB_PASS", "root"),
		DBName:            getEnv("DB_NAME", "docuvault"),
		BlobBackend:       getEnv("BLOB_BACKEND", "disk"),
		BlobRoot:          getEnv("BLOB_ROOT", "./data"),
		NodeLayout:        getEnv("NODE_LAYOUT", "generic"),
		NodeWorkers:       getEnvInt("NODE_WORKERS", 8),
		NodeQueue:         getEnvInt("NODE_QUEUE", 256),
		NodeShutdownGrace: getEnvDuration("NODE_SHUTDOWN_GRACE", 15*time.Second),
		StageCacheTTL:     stageTTL,
		ReadCacheTTL:      getEnvDuration("CACHE_READ_TTL", stageTTL),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioHost:     getEnv("MINIO_HOST", "localhost"),
		MinioPort:     getEnv("MINIO_PORT", "9000"),
		MinioUsername: getEnv("MINIO_USERNAME", "minioadmin"),
		MinioPassword: getEnv("MINIO_PASSWORD", "minioadmin"),
		MinioUseSSL:   getEnvBool("MINIO_USE_SSL", false),
		BucketName:    getEnv("BUCKET_NAME", "docuvault"),

		ProxyAddr:           getEnv("PROXY_ADDR", ":8080"),
		ProxyURL:            getEnv("PROXY_URL", "http://localhost:8080"),
		ShardRPCTimeout:     getEnvDuration("SHARD_RPC_TIMEOUT", 30*time.Second),
		DiscardTimeout:      getEnvDuration("DISCARD_TIMEOUT", 5*time.Second),
		MaxUploadBytes:      getEnvInt64("MAX_UPLOAD_BYTES", 64<<20),
		InternalTokenSecret: getEnv("INTERNAL_TOKEN_SECRET", ""),

		RabbitMQURL:              rabbitURL,
		RabbitMQHost:             rabbitHost,
		RabbitMQPort:             rabbitPort,
		RabbitMQUser:             rabbitUser,
		RabbitMQPass:             rabbitPass,
		RabbitMQVhost:            rabbitVhost,
		RabbitMQPrefetch:         getEnvInt("RABBITMQ_PREFETCH", 8),
		ReclaimWorkerConcurrency: getEnvInt("RECLAIM_WORKER_CONCURRENCY", 4),
		ReclaimRate:              getEnvFloat("RECLAIM_RATE", 5),
		ReclaimBurst:             getEnvInt("RECLAIM_BURST", 10),
		ReclaimRetryMax:          getEnvInt("RECLAIM_RETRY_MAX", 4),
		ReclaimRetryDelays:       retryDelays,
		ReclaimLockTTL:           getEnvDuration("RECLAIM_LOCK_TTL", 30*time.Second),
		ReclaimTimeout:           getEnvDuration("RECLAIM_TIMEOUT", 20*time.Second),
	}
}

// InitConfig loads configuration and initializes sub-configs.
func InitConfig() error {
	AppConfig = LoadConfig()
	return InitTopologyConfig()
}
