package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location relative to the working dir.
const ConfigPath = "config.yaml"

// Store driver names accepted by storeDriver.
const (
	StorePostgres = "postgres"
	StoreSupabase = "supabase"
	StoreMemory   = "memory"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	StoreDriver        string `yaml:"storeDriver"`
	DatabaseURL        string `yaml:"databaseURL"`
	SupabaseURL        string `yaml:"supabaseURL"`
	SupabaseServiceKey string `yaml:"supabaseServiceKey"`

	OpenRouterBaseURL string `yaml:"openRouterBaseURL"`
	OpenRouterAPIKey  string `yaml:"openRouterAPIKey"`
	ChatModel         string `yaml:"chatModel"`
	TitleModel        string `yaml:"titleModel"`
	SummaryModel      string `yaml:"summaryModel"`
	HistoryLimit      int    `yaml:"historyLimit"`

	RedisAddr        string `yaml:"redisAddr"`
	RedisPassword    string `yaml:"redisPassword"`
	QueueStream      string `yaml:"queueStream"`
	QueueGroup       string `yaml:"queueGroup"`
	QueueConcurrency int    `yaml:"queueConcurrency"`

	ChatRequestsPerMinute int `yaml:"chatRequestsPerMinute"`
	APIRequestsPerMinute  int `yaml:"apiRequestsPerMinute"`

	MaxUploadBytes    int64    `yaml:"maxUploadBytes"`
	AllowedExtensions []string `yaml:"allowedExtensions"`
	MinioEndpoint     string   `yaml:"minioEndpoint"`
	MinioAccessKey    string   `yaml:"minioAccessKey"`
	MinioSecretKey    string   `yaml:"minioSecretKey"`
	MinioBucket       string   `yaml:"minioBucket"`
	MinioUseSSL       bool     `yaml:"minioUseSSL"`

	AuthJWKSURL       string   `yaml:"authJwksURL"`
	AuthIssuer        string   `yaml:"authIssuer"`
	AuthAudience      string   `yaml:"authAudience"`
	AuthLeewaySeconds int      `yaml:"authLeewaySeconds"`
	TrustedProxies    []string `yaml:"trustedProxies"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		cfg.SupabaseURL = v
	}
	if v := os.Getenv("SUPABASE_SERVICE_KEY"); v != "" {
		cfg.SupabaseServiceKey = v
	}
	if v := os.Getenv("OPENROUTER_BASE_URL"); v != "" {
		cfg.OpenRouterBaseURL = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.OpenRouterAPIKey = v
	}
	if v := os.Getenv("DUCK_CHAT_MODEL"); v != "" {
		cfg.ChatModel = v
	}
	if v := os.Getenv("DUCK_TITLE_MODEL"); v != "" {
		cfg.TitleModel = v
	}
	if v := os.Getenv("DUCK_SUMMARY_MODEL"); v != "" {
		cfg.SummaryModel = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("DUCK_QUEUE_STREAM"); v != "" {
		cfg.QueueStream = v
	}
	if v := os.Getenv("DUCK_QUEUE_GROUP"); v != "" {
		cfg.QueueGroup = v
	}
	if v := os.Getenv("DUCK_QUEUE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueueConcurrency = n
		}
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if useSSL, err := strconv.ParseBool(v); err == nil {
			cfg.MinioUseSSL = useSSL
		}
	}
	if v := os.Getenv("DUCK_AUTH_JWKS_URL"); v != "" {
		cfg.AuthJWKSURL = v
	}
	if v := os.Getenv("DUCK_AUTH_ISSUER"); v != "" {
		cfg.AuthIssuer = v
	}
	if v := os.Getenv("DUCK_AUTH_AUDIENCE"); v != "" {
		cfg.AuthAudience = v
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	switch strings.TrimSpace(cfg.StoreDriver) {
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required for storeDriver=postgres (set in config.yaml or DATABASE_URL)")
		}
	case StoreSupabase:
		if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
			return errors.New("config: supabaseURL and supabaseServiceKey are required for storeDriver=supabase (set in config.yaml or SUPABASE_URL/SUPABASE_SERVICE_KEY)")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("config: unknown storeDriver %q (expected postgres, supabase or memory)", cfg.StoreDriver)
	}
	if cfg.ChatModel == "" {
		return errors.New("config: chatModel is required (set in config.yaml or DUCK_CHAT_MODEL)")
	}
	if cfg.HistoryLimit < 0 {
		return errors.New("config: historyLimit must be >= 0")
	}
	if cfg.QueueConcurrency < 0 {
		return errors.New("config: queueConcurrency must be >= 0")
	}
	if cfg.ChatRequestsPerMinute < 0 || cfg.APIRequestsPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if cfg.MaxUploadBytes < 0 {
		return errors.New("config: maxUploadBytes must be >= 0")
	}
	if cfg.AuthJWKSURL != "" && cfg.AuthIssuer == "" {
		return errors.New("config: authIssuer is required when authJwksURL is set")
	}
	return nil
}
