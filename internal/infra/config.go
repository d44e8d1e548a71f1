package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv                string        `validate:"required"`
	Port                  string        `validate:"required,numeric"`
	LogLevel              string        `validate:"omitempty,oneof=trace debug info warn error"`
	GeminiAPIKey          string        `validate:"-"`
	GeminiBaseURL         string        `validate:"required,url"`
	GeminiImageModel      string        `validate:"required"`
	ImagenModel           string        `validate:"required"`
	HTTPReadTimeout       time.Duration `validate:"gt=0"`
	HTTPWriteTimeout      time.Duration `validate:"gt=0"`
	HTTPIdleTimeout       time.Duration `validate:"gt=0"`
	ProviderTimeout       time.Duration `validate:"gt=0"`
	RateLimitPerMin       int           `validate:"gte=0"`
	ScheduleIntervalMs    int           `validate:"oneof=30000 60000 120000"`
	ScheduleAutoStart     bool
	SkipIfUnchanged       bool
	ProviderMode          string `validate:"oneof=auto gemini imagen"`
	OutputDir             string
	JournalPath           string
	ReferenceMaxDimension int `validate:"gte=0"`
	CORSAllowedOrigins    []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	apiKey, err := getSecret("GEMINI_API_KEY")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppEnv:                getEnv("APP_ENV", "development"),
		Port:                  getEnv("PORT", "8080"),
		LogLevel:              strings.ToLower(os.Getenv("LOG_LEVEL")),
		GeminiAPIKey:          apiKey,
		GeminiBaseURL:         getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiImageModel:      getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image-preview"),
		ImagenModel:           getEnv("IMAGEN_MODEL", "imagen-3.0-generate-002"),
		HTTPReadTimeout:       time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:      time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 150)),
		HTTPIdleTimeout:       time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		ProviderTimeout:       time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:       getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		ScheduleIntervalMs:    getEnvInt("SCHEDULE_INTERVAL_MS", 60000),
		ScheduleAutoStart:     getEnvBool("SCHEDULE_AUTOSTART", true),
		SkipIfUnchanged:       getEnvBool("SKIP_IF_UNCHANGED", true),
		ProviderMode:          strings.ToLower(getEnv("PROVIDER_MODE", "auto")),
		OutputDir:             os.Getenv("OUTPUT_DIR"),
		JournalPath:           os.Getenv("JOURNAL_PATH"),
		ReferenceMaxDimension: getEnvInt("REFERENCE_MAX_DIMENSION", 1536),
		CORSAllowedOrigins:    getEnvList("CORS_ALLOWED_ORIGINS"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HasCredential reports whether a Gemini API key is configured.
func (c *Config) HasCredential() bool {
	return c != nil && strings.TrimSpace(c.GeminiAPIKey) != ""
}

// ScheduleInterval returns the configured tick interval.
func (c *Config) ScheduleInterval() time.Duration {
	return time.Duration(c.ScheduleIntervalMs) * time.Millisecond
}

var configValidator = validator.New()

func validateConfig(cfg *Config) error {
	err := configValidator.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fmt.Sprintf("%s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getSecret reads key from the environment, or from the file named by
// key_FILE when key itself is unset (Docker secrets).
func getSecret(key string) (string, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v, nil
	}
	path := strings.TrimSpace(os.Getenv(key + "_FILE"))
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s_FILE: %w", key, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
