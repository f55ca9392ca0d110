package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, key := range []string{"PORT", "SERVER_PORT", "CAMP_API_TIMEOUT_SECONDS", "PARTICIPANT_COUNT_QUEUE", "REDIS_LOCK_PREFIX", "SUBMISSION_LOCK_SECONDS", "OUTBOX_FLUSH_SCHEDULE", "ALLOWED_ORIGINS"} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.CampAPITimeout() != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %v", cfg.CampAPITimeout())
	}
	if cfg.SubmissionLockTTL() != 15*time.Second {
		t.Fatalf("expected 15s lock ttl, got %v", cfg.SubmissionLockTTL())
	}
	if cfg.ParticipantCountQueue != "camp_portal.participant_counts" {
		t.Fatalf("unexpected queue %q", cfg.ParticipantCountQueue)
	}
	if cfg.OutboxFlushSchedule != "@every 5s" {
		t.Fatalf("unexpected schedule %q", cfg.OutboxFlushSchedule)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "9000")
	setEnvWithCleanup(t, "PORT", " 7000 ")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "7000" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_TrimsBaseURLAndClampsValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "CAMP_API_BASE_URL", " https://camps.example.com/ ")
	setEnvWithCleanup(t, "CAMP_API_TIMEOUT_SECONDS", "-5")
	setEnvWithCleanup(t, "SUBMISSION_LOCK_SECONDS", "0")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.CampAPIBaseURL != "https://camps.example.com" {
		t.Fatalf("expected trimmed base url, got %q", cfg.CampAPIBaseURL)
	}
	if cfg.CampAPITimeout() != 0 {
		t.Fatalf("expected a negative timeout to disable the timeout, got %v", cfg.CampAPITimeout())
	}
	if cfg.SubmissionLockSeconds != 15 {
		t.Fatalf("expected lock seconds reset to default, got %d", cfg.SubmissionLockSeconds)
	}
}

func TestLoadConfig_BaseURLAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "CAMP_API_BASE_URL")
	setEnvWithCleanup(t, "VITE_API_URL", "http://localhost:5000")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.CampAPIBaseURL != "http://localhost:5000" {
		t.Fatalf("expected base url from alias, got %q", cfg.CampAPIBaseURL)
	}
}

func TestLoadConfig_ReadsEnvFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "JWKS_URL")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("JWKS_URL=https://auth.example.com/.well-known/jwks.json\n"), 0o600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.JWKSURL != "https://auth.example.com/.well-known/jwks.json" {
		t.Fatalf("expected JWKS url from .env, got %q", cfg.JWKSURL)
	}
}

func TestOrigins(t *testing.T) {
	cfg := Config{AllowedOrigins: " https://a.example.com, ,https://b.example.com "}
	origins := cfg.Origins()
	if len(origins) != 2 || origins[0] != "https://a.example.com" || origins[1] != "https://b.example.com" {
		t.Fatalf("unexpected origins %v", origins)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
		}
	})
}
