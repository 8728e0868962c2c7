package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Matching  MatchingConfig  `mapstructure:"matching"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port      string `mapstructure:"port"`
	Env       string `mapstructure:"env"`
	BodyLimit int    `mapstructure:"body_limit"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
}

type QdrantConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	APIKey     string `mapstructure:"api_key"`
	Collection string `mapstructure:"collection"`
	Shortlist  int    `mapstructure:"shortlist"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	EmbedModel string `mapstructure:"embed_model"`
}

// OpenAIConfig also covers Ollama and other servers speaking the OpenAI wire format.
type OpenAIConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	EmbedModel string `mapstructure:"embed_model"`
}

type LLMConfig struct {
	Provider        string        `mapstructure:"provider"`
	ResponseMode    string        `mapstructure:"response_mode"`
	Scale           int           `mapstructure:"scale"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Temperature     float32       `mapstructure:"temperature"`
	MaxJDChars      int           `mapstructure:"max_jd_chars"`
	MaxCVChars      int           `mapstructure:"max_cv_chars"`
	IncludeKeywords bool          `mapstructure:"include_keywords"`
	RatePerSecond   float64       `mapstructure:"rate_per_second"`
	Burst           int           `mapstructure:"burst"`
}

type EmbeddingConfig struct {
	Provider string `mapstructure:"provider"`
}

type MatchingConfig struct {
	Threshold    float64 `mapstructure:"threshold"`
	IncludeVerbs bool    `mapstructure:"include_verbs"`
	Concurrency  int     `mapstructure:"concurrency"`
}

type StorageConfig struct {
	UploadPath  string `mapstructure:"upload_path"`
	MatchedPath string `mapstructure:"matched_path"`
	MaxFileSize int64  `mapstructure:"max_file_size"`
}

type ArchiveConfig struct {
	Backend     string `mapstructure:"backend"`
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Region    string `mapstructure:"s3_region"`
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`
}

type CacheConfig struct {
	Type     string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type WorkerConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type LogConfig struct {
	JSON  bool `mapstructure:"json"`
	Debug bool `mapstructure:"debug"`
}

// envBindings maps config keys to the environment variables that feed them.
var envBindings = map[string]string{
	"server.port":       "PORT",
	"server.env":        "ENV",
	"server.body_limit": "BODY_LIMIT",

	"database.enabled":  "DB_ENABLED",
	"database.host":     "DB_HOST",
	"database.port":     "DB_PORT",
	"database.user":     "DB_USER",
	"database.password": "DB_PASSWORD",
	"database.name":     "DB_NAME",

	"qdrant.enabled":    "QDRANT_ENABLED",
	"qdrant.url":        "QDRANT_URL",
	"qdrant.api_key":    "QDRANT_API_KEY",
	"qdrant.collection": "QDRANT_COLLECTION",
	"qdrant.shortlist":  "QDRANT_SHORTLIST",

	"gemini.api_key":     "GEMINI_API_KEY",
	"gemini.model":       "GEMINI_MODEL",
	"gemini.embed_model": "GEMINI_EMBED_MODEL",

	"openai.api_key":     "OPENAI_API_KEY",
	"openai.base_url":    "OPENAI_BASE_URL",
	"openai.model":       "OPENAI_MODEL",
	"openai.embed_model": "OPENAI_EMBED_MODEL",

	"llm.provider":         "LLM_PROVIDER",
	"llm.response_mode":    "LLM_RESPONSE_MODE",
	"llm.scale":            "LLM_SCALE",
	"llm.timeout":          "LLM_TIMEOUT",
	"llm.temperature":      "LLM_TEMPERATURE",
	"llm.max_jd_chars":     "LLM_MAX_JD_CHARS",
	"llm.max_cv_chars":     "LLM_MAX_CV_CHARS",
	"llm.include_keywords": "LLM_INCLUDE_KEYWORDS",
	"llm.rate_per_second":  "LLM_RATE_PER_SECOND",
	"llm.burst":            "LLM_BURST",

	"embedding.provider": "EMBEDDING_PROVIDER",

	"matching.threshold":     "MATCH_THRESHOLD",
	"matching.include_verbs": "MATCH_INCLUDE_VERBS",
	"matching.concurrency":   "MATCH_CONCURRENCY",

	"storage.upload_path":   "UPLOAD_PATH",
	"storage.matched_path":  "MATCHED_PATH",
	"storage.max_file_size": "MAX_FILE_SIZE",

	"archive.backend":       "ARCHIVE_BACKEND",
	"archive.s3_bucket":     "S3_BUCKET",
	"archive.s3_region":     "S3_REGION",
	"archive.s3_endpoint":   "S3_ENDPOINT",
	"archive.s3_access_key": "S3_ACCESS_KEY",
	"archive.s3_secret_key": "S3_SECRET_KEY",

	"cache.type":      "CACHE_TYPE",
	"cache.redis_url": "REDIS_URL",
	"cache.ttl":       "CACHE_TTL",

	"worker.concurrency":   "WORKER_CONCURRENCY",
	"worker.poll_interval": "WORKER_POLL_INTERVAL",

	"log.json":  "LOG_JSON",
	"log.debug": "LOG_DEBUG",
}

// Load reads an optional .env file, then the process environment, over the defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found. Using environment and default values.")
	}

	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = cfg.LLM.Provider
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.body_limit", 50*1024*1024)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "cv_matcher")

	v.SetDefault("qdrant.enabled", false)
	v.SetDefault("qdrant.url", "http://localhost:6334")
	v.SetDefault("qdrant.collection", "cv_library")
	v.SetDefault("qdrant.shortlist", 20)

	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.embed_model", "text-embedding-004")

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.embed_model", "text-embedding-3-small")

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.response_mode", "structured")
	v.SetDefault("llm.scale", 100)
	v.SetDefault("llm.timeout", "120s")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_jd_chars", 15000)
	v.SetDefault("llm.max_cv_chars", 15000)
	v.SetDefault("llm.include_keywords", true)
	v.SetDefault("llm.rate_per_second", 2.0)
	v.SetDefault("llm.burst", 4)

	v.SetDefault("embedding.provider", "")

	v.SetDefault("matching.threshold", 0.4)
	v.SetDefault("matching.include_verbs", false)
	v.SetDefault("matching.concurrency", 4)

	v.SetDefault("storage.upload_path", "./uploads")
	v.SetDefault("storage.matched_path", "./matched_cvs")
	v.SetDefault("storage.max_file_size", 10485760)

	v.SetDefault("archive.backend", "local")
	v.SetDefault("archive.s3_region", "us-east-1")

	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", "24h")

	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.poll_interval", "10s")

	v.SetDefault("log.json", false)
	v.SetDefault("log.debug", false)
}

func validate(cfg *Config) error {
	var errs []error

	if !oneOf(cfg.LLM.Provider, "gemini", "openai", "static") {
		errs = append(errs, fmt.Errorf("llm provider must be gemini, openai or static, got: %q", cfg.LLM.Provider))
	}
	if !oneOf(cfg.Embedding.Provider, "gemini", "openai", "static") {
		errs = append(errs, fmt.Errorf("embedding provider must be gemini, openai or static, got: %q", cfg.Embedding.Provider))
	}
	if !oneOf(cfg.LLM.ResponseMode, "structured", "free_text") {
		errs = append(errs, fmt.Errorf("llm response mode must be structured or free_text, got: %q", cfg.LLM.ResponseMode))
	}
	if cfg.LLM.Scale != 100 && cfg.LLM.Scale != 10 {
		errs = append(errs, fmt.Errorf("llm scale must be 100 or 10, got: %d", cfg.LLM.Scale))
	}
	if cfg.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm timeout must be positive"))
	}
	if cfg.LLM.MaxJDChars <= 0 || cfg.LLM.MaxCVChars <= 0 {
		errs = append(errs, errors.New("llm max character limits must be positive"))
	}
	if cfg.Matching.Threshold < 0 || cfg.Matching.Threshold > 1 {
		errs = append(errs, fmt.Errorf("matching threshold must be within [0,1], got: %v", cfg.Matching.Threshold))
	}
	if cfg.Matching.Concurrency < 1 {
		errs = append(errs, errors.New("matching concurrency must be at least 1"))
	}
	if cfg.Worker.Concurrency < 1 {
		errs = append(errs, errors.New("worker concurrency must be at least 1"))
	}
	if cfg.Storage.MaxFileSize <= 0 {
		errs = append(errs, errors.New("max file size must be positive"))
	}
	if !oneOf(cfg.Cache.Type, "memory", "redis") {
		errs = append(errs, fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", cfg.Cache.Type))
	}
	if cfg.Cache.Type == "redis" && cfg.Cache.RedisURL == "" {
		errs = append(errs, errors.New("redis URL is required when cache type is 'redis'"))
	}
	if !oneOf(cfg.Archive.Backend, "local", "s3") {
		errs = append(errs, fmt.Errorf("archive backend must be 'local' or 's3', got: %s", cfg.Archive.Backend))
	}
	if cfg.Archive.Backend == "s3" && cfg.Archive.S3Bucket == "" {
		errs = append(errs, errors.New("S3 bucket is required when archive backend is 's3'"))
	}

	return errors.Join(errs...)
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}
