package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DOCFLOW_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("DOCFLOW_API_BASE_URL", "")

	cfg := Load()
	if cfg.Gateway.BaseURL != "" {
		t.Fatalf("expected empty base url, got %q", cfg.Gateway.BaseURL)
	}
	if !cfg.Gateway.Fallback {
		t.Fatal("fallback must default to enabled")
	}
	if cfg.Gateway.UploadFolder != "documents" {
		t.Fatalf("unexpected upload folder %q", cfg.Gateway.UploadFolder)
	}
	if cfg.Gateway.Timeout != 30*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.Gateway.Timeout)
	}
	if cfg.Auth.SessionProvider() != nil {
		t.Fatal("expected no session provider without token inputs")
	}
	if !cfg.DevGateway.EmbedWorker {
		t.Fatal("development gateway must embed a worker by default")
	}
	if cfg.Queue.MaxRetry != 3 || cfg.Queue.TaskTimeout != 5*time.Minute {
		t.Fatalf("unexpected queue policy: %+v", cfg.Queue)
	}
}

func TestLoadOverridesAndInvalidValues(t *testing.T) {
	t.Setenv("DOCFLOW_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("DOCFLOW_API_BASE_URL", "https://api.example.com/prod")
	t.Setenv("DOCFLOW_HTTP_TIMEOUT", "soon")
	t.Setenv("DOCFLOW_FALLBACK", "false")
	t.Setenv("REDIS_DB", "two")
	t.Setenv("DEVGATEWAY_UPLOAD_MODE", "PUT")
	t.Setenv("DOCFLOW_ID_TOKEN", "tok")

	cfg := Load()
	if cfg.Gateway.BaseURL != "https://api.example.com/prod" {
		t.Fatalf("unexpected base url %q", cfg.Gateway.BaseURL)
	}
	if cfg.Gateway.Timeout != 30*time.Second {
		t.Fatalf("invalid duration must fall back to default, got %s", cfg.Gateway.Timeout)
	}
	if cfg.Gateway.Fallback {
		t.Fatal("expected fallback disabled")
	}
	if cfg.Queue.RedisDB != 0 {
		t.Fatalf("invalid int must fall back to default, got %d", cfg.Queue.RedisDB)
	}
	if cfg.DevGateway.UploadMode != "put" {
		t.Fatalf("unexpected upload mode %q", cfg.DevGateway.UploadMode)
	}
	if cfg.Auth.SessionProvider() == nil {
		t.Fatal("expected session provider from DOCFLOW_ID_TOKEN")
	}
}

func TestLoadReadsDotEnvWithoutOverriding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "DOCFLOW_UPLOAD_FOLDER=incoming\nDOCFLOW_MOCK_BUCKET_URL=http://from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("DOCFLOW_ENV_FILE", path)
	t.Setenv("DOCFLOW_MOCK_BUCKET_URL", "http://from-process")
	t.Cleanup(func() { _ = os.Unsetenv("DOCFLOW_UPLOAD_FOLDER") })

	cfg := Load()
	if cfg.Gateway.UploadFolder != "incoming" {
		t.Fatalf("expected folder from env file, got %q", cfg.Gateway.UploadFolder)
	}
	if cfg.Gateway.MockBucketURL != "http://from-process" {
		t.Fatalf("process env must win over env file, got %q", cfg.Gateway.MockBucketURL)
	}
}
