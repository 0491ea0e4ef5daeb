package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MEDIA_BUCKET", "media-bucket")
	t.Setenv("SQS_QUEUE_URL", "https://sqs.us-west-2.amazonaws.com/123/transcode")
	t.Setenv("DYNAMODB_TABLE", "videos")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadAPI()
	if err != nil {
		t.Fatalf("LoadAPI: %v", err)
	}

	if cfg.API.Port != DefaultPort {
		t.Errorf("port = %q", cfg.API.Port)
	}
	if cfg.Upload.URLTTL != DefaultUploadURLTTL {
		t.Errorf("upload url ttl = %v", cfg.Upload.URLTTL)
	}
	if cfg.Upload.TokenTTL != DefaultTokenTTL {
		t.Errorf("token ttl = %v", cfg.Upload.TokenTTL)
	}
	if cfg.Plan.MaxStorageBytes != int64(DefaultMaxStorageGB)<<30 {
		t.Errorf("storage limit = %d", cfg.Plan.MaxStorageBytes)
	}
	if cfg.ManagedConfigured() {
		t.Error("managed configured without credentials")
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("PLAYBACK_TOKEN_TTL", "5m")
	t.Setenv("PUBLIC_URL", "https://vod.example.com/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := LoadAPI()
	if err != nil {
		t.Fatalf("LoadAPI: %v", err)
	}

	if cfg.API.Port != "9000" {
		t.Errorf("port = %q", cfg.API.Port)
	}
	if cfg.Upload.TokenTTL != 5*time.Minute {
		t.Errorf("token ttl = %v", cfg.Upload.TokenTTL)
	}
	if cfg.API.PublicURL != "https://vod.example.com" {
		t.Errorf("public url not trimmed: %q", cfg.API.PublicURL)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("cors origins = %v", cfg.CORS.AllowedOrigins)
	}
}

func TestValidateAPIMissingRequired(t *testing.T) {
	t.Setenv("MEDIA_BUCKET", "")
	t.Setenv("SQS_QUEUE_URL", "")
	t.Setenv("DYNAMODB_TABLE", "")

	_, err := LoadAPI()
	if err == nil {
		t.Fatal("missing required config accepted")
	}
	for _, want := range []string{"MEDIA_BUCKET", "SQS_QUEUE_URL", "DYNAMODB_TABLE"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %s: %v", want, err)
		}
	}
}

func TestManagedCredentialsRequireURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MANAGED_TOKEN_ID", "id")
	t.Setenv("MANAGED_TOKEN_SECRET", "secret")

	if _, err := LoadAPI(); err == nil {
		t.Fatal("managed credentials without API URL accepted")
	}

	t.Setenv("MANAGED_API_URL", "https://api.managed.example.com")
	cfg, err := LoadAPI()
	if err != nil {
		t.Fatalf("LoadAPI: %v", err)
	}
	if !cfg.ManagedConfigured() {
		t.Error("managed not configured with full credentials")
	}
}

func TestProductionRequiresSecrets(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENV", "production")

	if _, err := LoadAPI(); err == nil {
		t.Fatal("production without JWT secret accepted")
	}

	t.Setenv("JWT_SECRET", strings.Repeat("s", 32))
	t.Setenv("PLAYBACK_TOKEN_SECRET", strings.Repeat("p", 32))
	cfg, err := LoadAPI()
	if err != nil {
		t.Fatalf("LoadAPI: %v", err)
	}
	if !cfg.IsProduction() {
		t.Error("production env not detected")
	}
}

func TestGetTokenSecretFallsBackToJWTSecret(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_SECRET", "jwt-secret-0123456789abcdef")

	cfg, err := LoadAPI()
	if err != nil {
		t.Fatalf("LoadAPI: %v", err)
	}

	secret, err := cfg.GetTokenSecret()
	if err != nil {
		t.Fatalf("GetTokenSecret: %v", err)
	}
	if string(secret) != "jwt-secret-0123456789abcdef" {
		t.Errorf("token secret did not fall back to JWT secret")
	}
}
