package infra

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV", "PORT", "LOG_LEVEL", "GEMINI_API_KEY", "GEMINI_API_KEY_FILE", "GEMINI_BASE_URL",
		"GEMINI_IMAGE_MODEL", "IMAGEN_MODEL", "SCHEDULE_INTERVAL_MS", "SCHEDULE_AUTOSTART",
		"SKIP_IF_UNCHANGED", "PROVIDER_MODE", "OUTPUT_DIR", "JOURNAL_PATH", "PROVIDER_TIMEOUT_SECONDS",
		"HTTP_READ_TIMEOUT_SECONDS", "HTTP_WRITE_TIMEOUT_SECONDS", "HTTP_IDLE_TIMEOUT_SECONDS",
		"RATE_LIMIT_PER_MINUTE", "REFERENCE_MAX_DIMENSION", "CORS_ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.ScheduleInterval() != time.Minute {
		t.Fatalf("ScheduleInterval = %v, want 1m", cfg.ScheduleInterval())
	}
	if !cfg.SkipIfUnchanged || !cfg.ScheduleAutoStart {
		t.Fatalf("expected skip-if-unchanged and autostart to default on: %+v", cfg)
	}
	if cfg.ProviderMode != "auto" {
		t.Fatalf("ProviderMode = %q, want auto", cfg.ProviderMode)
	}
	if cfg.GeminiImageModel != "gemini-2.5-flash-image-preview" {
		t.Fatalf("GeminiImageModel = %q", cfg.GeminiImageModel)
	}
	if cfg.HasCredential() {
		t.Fatal("HasCredential should be false without GEMINI_API_KEY")
	}
}

func TestLoadConfigRejectsUnsupportedInterval(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SCHEDULE_INTERVAL_MS", "45000")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("expected an error for an interval outside the supported set")
	}
	if !strings.Contains(err.Error(), "ScheduleIntervalMs") {
		t.Fatalf("error should name the offending field: %v", err)
	}
}

func TestLoadConfigRejectsUnknownProviderMode(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("PROVIDER_MODE", "dalle")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected an error for an unknown provider mode")
	}
}

func TestLoadConfigNormalizesProviderMode(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("PROVIDER_MODE", "Imagen")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ProviderMode != "imagen" {
		t.Fatalf("ProviderMode = %q, want imagen", cfg.ProviderMode)
	}
}

func TestLoadConfigReadsAPIKeyFile(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "gemini_key")
	if err := os.WriteFile(path, []byte("  secret-from-file\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	t.Setenv("GEMINI_API_KEY_FILE", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.GeminiAPIKey != "secret-from-file" {
		t.Fatalf("GeminiAPIKey = %q, want secret-from-file", cfg.GeminiAPIKey)
	}
	if !cfg.HasCredential() {
		t.Fatal("HasCredential should be true when the key file is present")
	}
}

func TestLoadConfigPrefersDirectAPIKey(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("GEMINI_API_KEY", "direct")
	t.Setenv("GEMINI_API_KEY_FILE", filepath.Join(t.TempDir(), "missing"))

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.GeminiAPIKey != "direct" {
		t.Fatalf("GeminiAPIKey = %q, want direct", cfg.GeminiAPIKey)
	}
}

func TestLoadConfigSplitsAllowedOrigins(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.test, ,https://b.test ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[0] != "https://a.test" || cfg.CORSAllowedOrigins[1] != "https://b.test" {
		t.Fatalf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
}
