package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Environment   string
	AWS           AWSConfig
	API           APIConfig
	Upload        UploadConfig
	Managed       ManagedConfig
	Plan          PlanConfig
	Observability ObservabilityConfig
	CORS          CORSConfig
}

// AWSConfig holds AWS-specific configuration.
type AWSConfig struct {
	Region        string
	MediaBucket   string
	SQSQueueURL   string
	DynamoDBTable string
	CDNDomain     string
}

// APIConfig holds API server configuration.
type APIConfig struct {
	Port        string
	JWTSecret   string
	TokenSecret string
	PublicURL   string
}

// UploadConfig holds upload and playback-token lifetimes.
type UploadConfig struct {
	URLTTL      time.Duration
	PartURLTTL  time.Duration
	TokenTTL    time.Duration
	MaxTagCount int
}

// ManagedConfig holds credentials for the external managed encoding service.
// Empty TokenID/TokenSecret means the organization pool has no managed
// provider configured and the factory must fall back to the internal pipeline.
type ManagedConfig struct {
	APIURL        string
	TokenID       string
	TokenSecret   string
	WebhookSecret string
	StreamDomain  string
	ImageDomain   string
	Default       bool
}

// PlanConfig holds the default organization plan limits.
type PlanConfig struct {
	MaxStorageBytes    int64
	MaxDurationMinutes int64
}

// ObservabilityConfig holds observability configuration.
type ObservabilityConfig struct {
	OTLPEndpoint string
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string
}

// Default values
const (
	DefaultPort               = "8080"
	DefaultOTLPEndpoint       = "localhost:4317"
	DefaultRegion             = "us-west-2"
	DefaultUploadURLTTL       = 15 * time.Minute
	DefaultPartURLTTL         = 1 * time.Hour
	DefaultTokenTTL           = 10 * time.Minute
	DefaultMaxTagCount        = 20
	DefaultMaxStorageGB       = 500
	DefaultMaxDurationMinutes = 5000
	DefaultManagedStreamHost  = "stream.managed.example.com"
	DefaultManagedImageHost   = "image.managed.example.com"
)

// Load reads configuration from environment variables and returns a Config.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENV", "dev"),
		AWS: AWSConfig{
			Region:        getEnv("AWS_REGION", DefaultRegion),
			MediaBucket:   os.Getenv("MEDIA_BUCKET"),
			SQSQueueURL:   os.Getenv("SQS_QUEUE_URL"),
			DynamoDBTable: os.Getenv("DYNAMODB_TABLE"),
			CDNDomain:     os.Getenv("CDN_DOMAIN"),
		},
		API: APIConfig{
			Port:        getEnv("PORT", DefaultPort),
			JWTSecret:   os.Getenv("JWT_SECRET"),
			TokenSecret: os.Getenv("PLAYBACK_TOKEN_SECRET"),
			PublicURL:   strings.TrimSuffix(os.Getenv("PUBLIC_URL"), "/"),
		},
		Upload: UploadConfig{
			URLTTL:      getEnvDuration("UPLOAD_URL_TTL", DefaultUploadURLTTL),
			PartURLTTL:  getEnvDuration("PART_URL_TTL", DefaultPartURLTTL),
			TokenTTL:    getEnvDuration("PLAYBACK_TOKEN_TTL", DefaultTokenTTL),
			MaxTagCount: getEnvInt("MAX_TAG_COUNT", DefaultMaxTagCount),
		},
		Managed: ManagedConfig{
			APIURL:        strings.TrimSuffix(os.Getenv("MANAGED_API_URL"), "/"),
			TokenID:       os.Getenv("MANAGED_TOKEN_ID"),
			TokenSecret:   os.Getenv("MANAGED_TOKEN_SECRET"),
			WebhookSecret: os.Getenv("MANAGED_WEBHOOK_SECRET"),
			StreamDomain:  getEnv("MANAGED_STREAM_DOMAIN", DefaultManagedStreamHost),
			ImageDomain:   getEnv("MANAGED_IMAGE_DOMAIN", DefaultManagedImageHost),
			Default:       getEnvBool("MANAGED_DEFAULT", false),
		},
		Plan: PlanConfig{
			MaxStorageBytes:    int64(getEnvInt("PLAN_MAX_STORAGE_GB", DefaultMaxStorageGB)) << 30,
			MaxDurationMinutes: int64(getEnvInt("PLAN_MAX_DURATION_MINUTES", DefaultMaxDurationMinutes)),
		},
		Observability: ObservabilityConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", DefaultOTLPEndpoint),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", nil),
		},
	}

	return cfg, nil
}

// LoadAPI loads and validates configuration required for the API service.
func LoadAPI() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.ValidateAPI(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidateAPI validates configuration required for the API service.
func (c *Config) ValidateAPI() error {
	var errs []string

	if c.AWS.MediaBucket == "" {
		errs = append(errs, "MEDIA_BUCKET is required")
	}
	if c.AWS.SQSQueueURL == "" {
		errs = append(errs, "SQS_QUEUE_URL is required")
	}
	if c.AWS.DynamoDBTable == "" {
		errs = append(errs, "DYNAMODB_TABLE is required")
	}
	if c.ManagedConfigured() && c.Managed.APIURL == "" {
		errs = append(errs, "MANAGED_API_URL is required when managed credentials are set")
	}

	if c.IsProduction() {
		if c.API.JWTSecret == "" {
			errs = append(errs, "JWT_SECRET is required in production")
		}
		if len(c.API.JWTSecret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
		}
		if c.API.TokenSecret == "" {
			errs = append(errs, "PLAYBACK_TOKEN_SECRET is required in production")
		}
		if c.ManagedConfigured() && c.Managed.WebhookSecret == "" {
			errs = append(errs, "MANAGED_WEBHOOK_SECRET is required in production")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "prod" || env == "production"
}

// ManagedConfigured reports whether managed-provider credentials are present.
func (c *Config) ManagedConfigured() bool {
	return c.Managed.TokenID != "" && c.Managed.TokenSecret != ""
}

// GetJWTSecret returns the API JWT secret.
func (c *Config) GetJWTSecret() ([]byte, error) {
	if c.API.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required (set it even for development)")
	}
	if len(c.API.JWTSecret) < 32 && c.IsProduction() {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	return []byte(c.API.JWTSecret), nil
}

// GetTokenSecret returns the playback-token signing secret, falling back to
// the API JWT secret when unset.
func (c *Config) GetTokenSecret() ([]byte, error) {
	if c.API.TokenSecret != "" {
		return []byte(c.API.TokenSecret), nil
	}
	return c.GetJWTSecret()
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil && intVal > 0 {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
