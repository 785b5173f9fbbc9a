package config

import (
	"errors"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/docflow/internal/auth"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
)

type Config struct {
	Gateway    GatewayConfig
	Auth       AuthConfig
	DevGateway DevGatewayConfig
	Queue      QueueConfig
	Worker     WorkerConfig
	Storage    StorageConfig
	Database   DatabaseConfig
	Telemetry  TelemetryConfig
	Webhook    WebhookConfig
}

// GatewayConfig configures the client side of the analysis gateway.
type GatewayConfig struct {
	BaseURL       string
	Timeout       time.Duration
	Fallback      bool
	MockBucketURL string
	UploadFolder  string
}

type AuthConfig struct {
	IDToken     string
	IDTokenFile string
}

// SessionProvider prefers an explicit token over the token file.
func (a AuthConfig) SessionProvider() auth.SessionProvider {
	var chain auth.Chain
	if strings.TrimSpace(a.IDToken) != "" {
		chain = append(chain, auth.Static{Token: a.IDToken})
	}
	if strings.TrimSpace(a.IDTokenFile) != "" {
		chain = append(chain, auth.File{Path: a.IDTokenFile})
	}
	if len(chain) == 0 {
		return nil
	}
	return chain
}

type DevGatewayConfig struct {
	Addr        string
	UploadMode  string
	PresignTTL  time.Duration
	RateLimit   int
	RateWindow  time.Duration
	RequireAuth bool
	EmbedWorker bool
}

type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
	MaxRetry      int
	TaskTimeout   time.Duration
	Retention     time.Duration
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency   int
	MaxActiveJobs int
	MetricsAddr   string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type DatabaseConfig struct {
	DSN string
}

type TelemetryConfig struct {
	ServiceName  string
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

type WebhookConfig struct {
	URL           string
	SigningSecret string
	MaxAttempts   int
	Timeout       time.Duration
}

// Load reads the environment, after loading a .env file (or DOCFLOW_ENV_FILE)
// when one exists. Variables already set in the process win.
func Load() Config {
	_ = loadDotEnv()

	return Config{
		Gateway: GatewayConfig{
			BaseURL:       env("DOCFLOW_API_BASE_URL", ""),
			Timeout:       envDuration("DOCFLOW_HTTP_TIMEOUT", 30*time.Second),
			Fallback:      envBool("DOCFLOW_FALLBACK", true),
			MockBucketURL: env("DOCFLOW_MOCK_BUCKET_URL", "https://mock-bucket.s3.amazonaws.com"),
			UploadFolder:  env("DOCFLOW_UPLOAD_FOLDER", "documents"),
		},
		Auth: AuthConfig{
			IDToken:     env("DOCFLOW_ID_TOKEN", ""),
			IDTokenFile: env("DOCFLOW_ID_TOKEN_FILE", ""),
		},
		DevGateway: DevGatewayConfig{
			Addr:        env("DEVGATEWAY_ADDR", ":8080"),
			UploadMode:  strings.ToLower(env("DEVGATEWAY_UPLOAD_MODE", "post")),
			PresignTTL:  envDuration("DEVGATEWAY_PRESIGN_TTL", 15*time.Minute),
			RateLimit:   envInt("DEVGATEWAY_RATE_LIMIT", 60),
			RateWindow:  envDuration("DEVGATEWAY_RATE_WINDOW", time.Minute),
			RequireAuth: envBool("DEVGATEWAY_REQUIRE_AUTH", false),
			EmbedWorker: envBool("DEVGATEWAY_EMBED_WORKER", true),
		},
		Queue: QueueConfig{
			RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
			RedisPassword: env("REDIS_PASSWORD", ""),
			RedisDB:       envInt("REDIS_DB", 0),
			Name:          env("ASYNC_QUEUE", "default"),
			MaxRetry:      envInt("QUEUE_MAX_RETRY", 3),
			TaskTimeout:   envDuration("QUEUE_TASK_TIMEOUT", 5*time.Minute),
			Retention:     envDuration("QUEUE_RETENTION", 24*time.Hour),
		},
		Worker: WorkerConfig{
			Concurrency:   envInt("WORKER_CONCURRENCY", max(2, runtime.NumCPU())),
			MaxActiveJobs: envInt("WORKER_MAX_ACTIVE_JOBS", max(1, runtime.NumCPU()/2)),
			MetricsAddr:   env("WORKER_METRICS_ADDR", ":9091"),
		},
		Storage: StorageConfig{
			Endpoint:  env("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    env("MINIO_BUCKET", "docflow-documents"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
		},
		Database: DatabaseConfig{
			DSN: env("POSTGRES_DSN", ""),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  env("OTEL_SERVICE_NAME", "docflow"),
			Exporter:     env("OTEL_TRACES_EXPORTER", "none"),
			OTLPEndpoint: env("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTLPInsecure: envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		},
		Webhook: WebhookConfig{
			URL:           env("WEBHOOK_URL", ""),
			SigningSecret: env("WEBHOOK_SIGNING_SECRET", ""),
			MaxAttempts:   envInt("WEBHOOK_MAX_ATTEMPTS", 3),
			Timeout:       envDuration("WEBHOOK_TIMEOUT", 5*time.Second),
		},
	}
}

func loadDotEnv() error {
	path := env("DOCFLOW_ENV_FILE", ".env")
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
