package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Env         string
	Version     string
	Port        string
	ServiceName string

	OtelTracesExporter string
	OtelOTLPEndpoint   string
	OtelOTLPHeadersRaw string

	ErrorReportingProvider string
	SentryDSN              string
	SentryEnvironment      string

	AnalyticsProvider         string
	MixpanelProjectToken      string
	MixpanelAPIHost           string
	SharedContainerIdentifier string
	DefaultProperties         map[string]any

	IdentityStore     string
	IdentityDir       string
	DatabaseURL       string
	RedisURL          string
	S3Bucket          string
	S3Prefix          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3ForcePathStyle  bool
}

func Load() (Config, error) {
	cfg := Config{
		Env:         getEnv("APP_ENV", "development"),
		Version:     getEnv("APP_VERSION", "dev"),
		Port:        getEnv("PORT", "8080"),
		ServiceName: getEnv("OTEL_SERVICE_NAME", "mixpanel-logger"),

		OtelTracesExporter: getEnv("OTEL_TRACES_EXPORTER", "none"),
		OtelOTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
		OtelOTLPHeadersRaw: getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),

		ErrorReportingProvider: getEnv("ERROR_REPORTING_PROVIDER", "console"),
		SentryDSN:              os.Getenv("SENTRY_DSN"),
		SentryEnvironment:      getEnv("SENTRY_ENVIRONMENT", ""),

		AnalyticsProvider:         getEnv("ANALYTICS_PROVIDER", "console"),
		MixpanelProjectToken:      os.Getenv("MIXPANEL_PROJECT_TOKEN"),
		MixpanelAPIHost:           getEnv("MIXPANEL_API_HOST", "https://api.mixpanel.com"),
		SharedContainerIdentifier: os.Getenv("MIXPANEL_SHARED_CONTAINER_ID"),

		IdentityStore:     strings.ToLower(getEnv("IDENTITY_STORE", "memory")),
		IdentityDir:       getEnv("IDENTITY_DIR", defaultIdentityDir()),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3Prefix:          getEnv("S3_PREFIX", "distinct-ids/"),
		S3Region:          getEnv("S3_REGION", "auto"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
	}

	forcePathStyle, err := getBool("S3_FORCE_PATH_STYLE", false)
	if err != nil {
		return Config{}, err
	}
	cfg.S3ForcePathStyle = forcePathStyle

	defaults, err := ParseDefaultProperties(os.Getenv("ANALYTICS_DEFAULT_PROPERTIES"))
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultProperties = defaults

	switch cfg.IdentityStore {
	case "redis":
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL is required when IDENTITY_STORE=redis")
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required when IDENTITY_STORE=postgres")
		}
	case "s3":
		if cfg.S3Bucket == "" {
			return Config{}, fmt.Errorf("S3_BUCKET is required when IDENTITY_STORE=s3")
		}
	}

	return cfg, nil
}

// ParseDefaultProperties decodes a JSON object. An empty value means no defaults.
func ParseDefaultProperties(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if raw == "null" {
		return nil, fmt.Errorf("ANALYTICS_DEFAULT_PROPERTIES must be a JSON object, got null")
	}

	var props map[string]any
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return nil, fmt.Errorf("ANALYTICS_DEFAULT_PROPERTIES must be a JSON object: %w", err)
	}
	return props, nil
}

func defaultIdentityDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".mixpanel"
	}
	return filepath.Join(dir, "mixpanel-logger")
}

func getEnv(key string, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	return value
}

func getBool(key string, fallback bool) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return parsed, nil
}
