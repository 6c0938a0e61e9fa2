package config

import (
	"testing"
	"time"
)

// TestLoadDefaults is not t.Parallel because it mutates process-wide environment variables.
func TestLoadDefaults(t *testing.T) {
	keys := []string{
		"SERVER_PORT", "SERVER_ENV", "LOG_HEALTH_REQUESTS", "MACHINE_ID",
		"DATABASE_URL", "DATABASE_MAX_CONNS", "DATABASE_MIN_CONNS",
		"VALKEY_URL",
		"ARGON2_MEMORY", "ARGON2_ITERATIONS", "ARGON2_PARALLELISM", "ARGON2_SALT_LENGTH", "ARGON2_KEY_LENGTH",
		"JWT_SECRET", "JWT_ISSUER", "JWT_ACCESS_TTL",
		"LOGIN_ATTEMPT_LIMIT", "LOGIN_ATTEMPT_WINDOW", "LOCKOUT_DURATION",
		"RATE_LIMIT_BURST", "RATE_LIMIT_REPLENISH_PERIOD", "MAINTENANCE_MODE",
		"UPLOAD_CHUNK_SIZE_BYTES", "MAX_UPLOAD_SIZE_BYTES", "DEFAULT_QUOTA_BYTES", "UPLOAD_SESSION_TTL",
		"MESSAGE_FETCH_PAGE_SIZE", "ROOM_KEY_ROTATION_TTL", "STORAGE_ROOT", "CORS_ALLOW_ORIGINS",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}

	t.Setenv("JWT_SECRET", "test-secret-for-defaults-minimum-32")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.ServerPort != 8080 {
		t.Errorf("ServerPort = %d, want 8080", cfg.ServerPort)
	}
	if cfg.ServerEnv != "production" {
		t.Errorf("ServerEnv = %q, want production", cfg.ServerEnv)
	}
	if cfg.JWTAccessTTL != 5*24*time.Hour {
		t.Errorf("JWTAccessTTL = %v, want 120h", cfg.JWTAccessTTL)
	}
	if cfg.MessageFetchPageSize != 2000 {
		t.Errorf("MessageFetchPageSize = %d, want 2000", cfg.MessageFetchPageSize)
	}
	if cfg.UploadChunkSizeBytes != 1<<20 {
		t.Errorf("UploadChunkSizeBytes = %d, want 1MiB", cfg.UploadChunkSizeBytes)
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load() with empty JWT_SECRET should fail")
	}
}

func TestLoadRejectsShortJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "too-short")
	if _, err := Load(); err == nil {
		t.Fatal("Load() with short JWT_SECRET should fail")
	}
}

func TestLoadRejectsBadMachineID(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-for-defaults-minimum-32")
	t.Setenv("MACHINE_ID", "2000")
	if _, err := Load(); err == nil {
		t.Fatal("Load() with out-of-range MACHINE_ID should fail")
	}
}

func TestIsDevelopment(t *testing.T) {
	cfg := &Config{ServerEnv: "development"}
	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment() = false, want true")
	}
	cfg.ServerEnv = "production"
	if cfg.IsDevelopment() {
		t.Error("IsDevelopment() = true, want false")
	}
}
