package config

import (
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AI client types
const (
	AIClientOpenAI = "openai"
	AIClientOllama = "ollama"
)

// Config содержит конфигурацию scenario-server (HTTP API и воркер).
type Config struct {
	// Сервер
	ServerPort         string   `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel           string   `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding        string   `envconfig:"LOG_ENCODING" default:"json"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	// Хранилище: redis | postgres | memory
	StorageBackend    string        `envconfig:"STORAGE_BACKEND" default:"redis"`
	ConnectMaxRetries int           `envconfig:"CONNECT_MAX_RETRIES" default:"10"`
	ConnectRetryDelay time.Duration `envconfig:"CONNECT_RETRY_DELAY" default:"3s"`

	// Redis
	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB   int    `envconfig:"REDIS_DB" default:"0"`
	// Секрет БЕЗ envconfig тега
	RedisPassword string `ignored:"true"`

	// PostgreSQL
	DBHost          string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort          string        `envconfig:"DB_PORT" default:"5432"`
	DBUser          string        `envconfig:"DB_USER" default:"postgres"`
	DBName          string        `envconfig:"DB_NAME" default:"scenarios"`
	DBSSLMode       string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns      int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout   time.Duration `envconfig:"DB_MAX_IDLE_MINUTES" default:"5m"`
	DBRunMigrations bool          `envconfig:"DB_RUN_MIGRATIONS" default:"true"`
	DBPassword      string        `ignored:"true"`

	// Генерация
	SlotClaimTTL              time.Duration `envconfig:"SLOT_CLAIM_TTL" default:"30m"`
	BatchMaxParallel          int           `envconfig:"BATCH_MAX_PARALLEL" default:"4"`
	GenerationTimeout         time.Duration `envconfig:"GENERATION_TIMEOUT" default:"10m"`
	VideoDurationSeconds      int           `envconfig:"VIDEO_DURATION_SECONDS" default:"6"`
	VideoCameraFixed          bool          `envconfig:"VIDEO_CAMERA_FIXED" default:"false"`
	SelectorFallbackOnInvalid bool          `envconfig:"SELECTOR_FALLBACK_ON_INVALID" default:"false"`

	// AI (оракул выбора пути и генерация графа)
	AIClientType string        `envconfig:"AI_CLIENT_TYPE" default:"openai"`
	AIBaseURL    string        `envconfig:"AI_BASE_URL" default:""`
	AIModel      string        `envconfig:"AI_MODEL" default:"gpt-4o-mini"`
	AIGraphModel string        `envconfig:"AI_GRAPH_MODEL" default:""`
	AITimeout    time.Duration `envconfig:"AI_TIMEOUT" default:"60s"`
	AIAPIKey     string        `ignored:"true"`

	// Провайдер видео и хранилище ассетов
	VideoProviderURL   string        `envconfig:"VIDEO_PROVIDER_URL" default:"http://localhost:8090"`
	VideoProviderModel string        `envconfig:"VIDEO_PROVIDER_MODEL" default:"seedance-1-lite"`
	VideoPollInterval  time.Duration `envconfig:"VIDEO_POLL_INTERVAL" default:"5s"`
	VideoProviderToken string        `ignored:"true"`
	BlobStorageDir     string        `envconfig:"BLOB_STORAGE_DIR" default:"./data/blobs"`
	BlobPublicBaseURL  string        `envconfig:"BLOB_PUBLIC_BASE_URL" default:"http://localhost:8080/assets"`

	// RabbitMQ. Пустой URL отключает асинхронные батчи и события клиентам.
	RabbitMQURL            string `envconfig:"RABBITMQ_URL" default:""`
	BatchTaskQueue         string `envconfig:"BATCH_TASK_QUEUE" default:"scenario_batch_tasks"`
	ClientUpdatesQueueName string `envconfig:"CLIENT_UPDATES_QUEUE_NAME" default:"client_updates"`
	WorkerConcurrency      int    `envconfig:"WORKER_CONCURRENCY" default:"2"`

	// Межсервисный JWT. Пустой секрет отключает /internal.
	InterServiceSecret string `ignored:"true"`
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// LoadConfig загружает конфигурацию из переменных окружения и секретов
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации scenario-server: %w", err)
	}

	var err error
	if cfg.StorageBackend == "postgres" {
		if cfg.DBPassword, err = ReadSecret("db_password"); err != nil {
			return nil, err
		}
	}
	cfg.RedisPassword = ReadOptionalSecret("redis_password", "REDIS_PASSWORD")
	cfg.AIAPIKey = ReadOptionalSecret("ai_api_key", "AI_API_KEY")
	cfg.VideoProviderToken = ReadOptionalSecret("video_provider_token", "VIDEO_PROVIDER_TOKEN")
	cfg.InterServiceSecret = ReadOptionalSecret("inter_service_secret", "INTER_SERVICE_SECRET")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.logSummary()
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case "redis", "postgres", "memory":
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q (expected redis, postgres or memory)", c.StorageBackend)
	}
	switch c.AIClientType {
	case AIClientOpenAI, AIClientOllama:
	default:
		return fmt.Errorf("unsupported AI_CLIENT_TYPE %q (expected %s or %s)", c.AIClientType, AIClientOpenAI, AIClientOllama)
	}
	if c.AIClientType == AIClientOpenAI && c.AIAPIKey == "" {
		return fmt.Errorf("AI_API_KEY (or secret ai_api_key) is required for AI_CLIENT_TYPE=%s", AIClientOpenAI)
	}
	if c.BatchMaxParallel < 1 {
		return fmt.Errorf("BATCH_MAX_PARALLEL must be >= 1, got %d", c.BatchMaxParallel)
	}
	if c.VideoDurationSeconds < 1 {
		return fmt.Errorf("VIDEO_DURATION_SECONDS must be >= 1, got %d", c.VideoDurationSeconds)
	}
	// Иначе claim идущей генерации может быть перехвачен как брошенный.
	if c.SlotClaimTTL > 0 && c.SlotClaimTTL <= c.GenerationTimeout {
		return fmt.Errorf("SLOT_CLAIM_TTL (%v) must be greater than GENERATION_TIMEOUT (%v)", c.SlotClaimTTL, c.GenerationTimeout)
	}
	return nil
}

// GraphModel - модель для генерации графа (по умолчанию та же, что и для оракула).
func (c *Config) GraphModel() string {
	if c.AIGraphModel != "" {
		return c.AIGraphModel
	}
	return c.AIModel
}

func loaded(secret string) string {
	if secret == "" {
		return "[НЕ ЗАДАН]"
	}
	return "[ЗАГРУЖЕН]"
}

func (c *Config) logSummary() {
	log.Printf("Конфигурация scenario-server загружена:")
	log.Printf("  Port: %s", c.ServerPort)
	log.Printf("  LogLevel: %s (%s)", c.LogLevel, c.LogEncoding)
	log.Printf("  Storage Backend: %s", c.StorageBackend)
	switch c.StorageBackend {
	case "redis":
		log.Printf("  Redis: %s db=%d password=%s", c.RedisAddr, c.RedisDB, loaded(c.RedisPassword))
	case "postgres":
		log.Printf("  DB DSN: postgres://%s:***@%s:%s/%s?sslmode=%s", c.DBUser, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
		log.Printf("  DB Max Conns: %d, Idle Timeout: %v, Migrations: %t", c.DBMaxConns, c.DBIdleTimeout, c.DBRunMigrations)
	}
	log.Printf("  Slot Claim TTL: %v", c.SlotClaimTTL)
	log.Printf("  Batch Max Parallel: %d, Generation Timeout: %v", c.BatchMaxParallel, c.GenerationTimeout)
	log.Printf("  Selector Fallback On Invalid: %t", c.SelectorFallbackOnInvalid)
	log.Printf("  AI: %s model=%s graphModel=%s baseURL=%q key=%s", c.AIClientType, c.AIModel, c.GraphModel(), c.AIBaseURL, loaded(c.AIAPIKey))
	log.Printf("  Video Provider: %s model=%s token=%s", c.VideoProviderURL, c.VideoProviderModel, loaded(c.VideoProviderToken))
	log.Printf("  Blob Storage: %s -> %s", c.BlobStorageDir, c.BlobPublicBaseURL)
	if c.RabbitMQURL != "" {
		log.Printf("  RabbitMQ: batch queue=%s, client updates queue=%s", c.BatchTaskQueue, c.ClientUpdatesQueueName)
	} else {
		log.Println("  RabbitMQ: [ОТКЛЮЧЕН]")
	}
	log.Printf("  Inter-Service Secret: %s", loaded(c.InterServiceSecret))
}
