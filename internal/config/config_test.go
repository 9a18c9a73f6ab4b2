package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "sk-or-test")
	t.Setenv("REDIS_ADDR", "localhost:7000")
	t.Setenv("DUCK_CHAT_MODEL", "openai/gpt-4o-mini")
	t.Setenv("DUCK_QUEUE_CONCURRENCY", "4")

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: "8080"
logLevel: "info"
storeDriver: "memory"
chatModel: "meta-llama/llama-3.1-8b-instruct"
redisAddr: "localhost:6379"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.OpenRouterAPIKey != "sk-or-test" {
		t.Fatalf("openRouterAPIKey = %q, want env override", cfg.OpenRouterAPIKey)
	}
	if cfg.RedisAddr != "localhost:7000" {
		t.Fatalf("redisAddr = %q, want env override", cfg.RedisAddr)
	}
	if cfg.ChatModel != "openai/gpt-4o-mini" {
		t.Fatalf("chatModel = %q, want env override", cfg.ChatModel)
	}
	if cfg.QueueConcurrency != 4 {
		t.Fatalf("queueConcurrency = %d, want 4", cfg.QueueConcurrency)
	}
}

func TestValidateConfigRequiresDriverSettings(t *testing.T) {
	cfg := FileConfig{
		Port:        "8080",
		StoreDriver: StorePostgres,
		ChatModel:   "meta-llama/llama-3.1-8b-instruct",
	}
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("validateConfig() expected error for postgres driver without databaseURL")
	}

	cfg.StoreDriver = StoreSupabase
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("validateConfig() expected error for supabase driver without credentials")
	}

	cfg.StoreDriver = "dynamo"
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("validateConfig() expected error for unknown driver")
	}
}

func TestValidateConfigRequiresIssuerWithJWKS(t *testing.T) {
	cfg := FileConfig{
		Port:        "8080",
		StoreDriver: StoreMemory,
		ChatModel:   "meta-llama/llama-3.1-8b-instruct",
		AuthJWKSURL: "https://proj.supabase.co/auth/v1/.well-known/jwks.json",
	}
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("validateConfig() expected error for jwks url without issuer")
	}
}
