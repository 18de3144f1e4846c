package config

import (
	"os"
	"strings"
	"testing"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

const minimalConfig = `predictflow:
  name: "TestApp"
  version: "1.0"
stream:
  url: "wss://example.com/ws"
rest:
  base_url: "https://example.com"
discovery:
  base_url: "https://example.com/meta"
  categories: ["Finance", "Crypto"]
`

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Predictflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Predictflow.Name)
	}
	if cfg.Rest.MaxRequestsPerMinute != 200 {
		t.Errorf("unexpected rate limit default: %d", cfg.Rest.MaxRequestsPerMinute)
	}
	if cfg.Stream.MaxReconnectAttempts != 5 {
		t.Errorf("unexpected reconnect attempts default: %d", cfg.Stream.MaxReconnectAttempts)
	}
	if cfg.Rest.BatchConcurrency != 10 {
		t.Errorf("unexpected batch concurrency default: %d", cfg.Rest.BatchConcurrency)
	}
	if got := cfg.Stream.HeartbeatInterval().Milliseconds(); got != 30000 {
		t.Errorf("unexpected heartbeat interval: %dms", got)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("PREDICTFLOW_KEY_ID", "key-from-env")
	t.Setenv("PREDICTFLOW_SECRET_KEY", "secret-from-env")

	path := writeTempConfig(t, minimalConfig)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Rest.KeyID != "key-from-env" {
		t.Errorf("key id not overridden: %s", cfg.Rest.KeyID)
	}
	if cfg.Rest.SecretKey != "secret-from-env" {
		t.Errorf("secret key not overridden: %s", cfg.Rest.SecretKey)
	}
}

func TestLoadConfigMissingStreamURL(t *testing.T) {
	content := strings.Replace(minimalConfig, `  url: "wss://example.com/ws"`, `  url: ""`, 1)
	path := writeTempConfig(t, content)
	defer os.Remove(path)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error for missing stream url")
	}
}

func TestEnvironmentNormalization(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	if Environment() != EnvironmentProduction {
		t.Errorf("alias prod not normalized: %s", Environment())
	}
	t.Setenv("APP_ENV", "bogus")
	if Environment() != EnvironmentDevelopment {
		t.Errorf("unknown env should fall back to development: %s", Environment())
	}
}
