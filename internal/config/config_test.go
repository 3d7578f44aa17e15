package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	cfg := Load()

	if cfg.Addr != ":8787" {
		t.Fatalf("Addr = %q, want :8787", cfg.Addr)
	}
	if cfg.AnalysisCooldown != 24*time.Hour {
		t.Fatalf("AnalysisCooldown = %v, want 24h", cfg.AnalysisCooldown)
	}
	if cfg.AIRateLimit != 10 {
		t.Fatalf("AIRateLimit = %d, want 10", cfg.AIRateLimit)
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Fatalf("MaxUploadBytes = %d, want %d", cfg.MaxUploadBytes, 10<<20)
	}
}

func TestLoadReadsEnvFileWithoutOverriding(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	contents := "API_ADDR=:9999\nAPP_BASE_URL=https://cryptorafts.example/\nMINIO_USE_SSL=true\n"
	if err := os.WriteFile(envFile, []byte(contents), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ENV_FILE", envFile)
	t.Setenv("API_ADDR", ":7000")
	// godotenv sets variables it loads; make sure they do not leak into other tests
	t.Setenv("APP_BASE_URL", "")
	t.Setenv("MINIO_USE_SSL", "")
	os.Unsetenv("APP_BASE_URL")
	os.Unsetenv("MINIO_USE_SSL")

	cfg := Load()

	if cfg.Addr != ":7000" {
		t.Fatalf("Addr = %q, want process env to win", cfg.Addr)
	}
	if cfg.BaseURL != "https://cryptorafts.example" {
		t.Fatalf("BaseURL = %q, want trailing slash trimmed", cfg.BaseURL)
	}
	if !cfg.MinioUseSSL {
		t.Fatal("expected MinioUseSSL from env file")
	}
}

func TestGetenvIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("CRYPTORAFTS_TEST_INT", "abc")
	if got := getenvInt("CRYPTORAFTS_TEST_INT", 7); got != 7 {
		t.Fatalf("getenvInt() = %d, want 7", got)
	}
}

func TestTrustedProxiesList(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("TRUSTED_PROXIES", "")
	if got := Load().TrustedProxies; len(got) != 0 {
		t.Fatalf("TrustedProxies = %v, want none by default", got)
	}

	t.Setenv("TRUSTED_PROXIES", " 10.0.0.0/8, ,127.0.0.1 ,")
	got := Load().TrustedProxies
	if len(got) != 2 || got[0] != "10.0.0.0/8" || got[1] != "127.0.0.1" {
		t.Fatalf("TrustedProxies = %q", got)
	}
}
