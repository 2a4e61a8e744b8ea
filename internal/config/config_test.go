package config

import (
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("SNAPSHOT_TTL", "48h")
	t.Setenv("CONFIG_FILE", "/etc/ledger/jobs.yaml")
	t.Setenv("SECRETS_KEYRING", "/etc/ledger/secring.asc")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}
	if cfg.Database.Redis.Host != "redis.internal" {
		t.Errorf("Database.Redis.Host = %v, want %v", cfg.Database.Redis.Host, "redis.internal")
	}
	if cfg.Snapshot.TTL != 48*time.Hour {
		t.Errorf("Snapshot.TTL = %v, want %v", cfg.Snapshot.TTL, 48*time.Hour)
	}
	if cfg.JobsFile != "/etc/ledger/jobs.yaml" {
		t.Errorf("JobsFile = %v, want %v", cfg.JobsFile, "/etc/ledger/jobs.yaml")
	}
	if cfg.Secrets.KeyringFile != "/etc/ledger/secring.asc" {
		t.Errorf("Secrets.KeyringFile = %v, want %v", cfg.Secrets.KeyringFile, "/etc/ledger/secring.asc")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Snapshot.TTL != 24*time.Hour {
		t.Errorf("Snapshot.TTL = %v, want 24h", cfg.Snapshot.TTL)
	}
	if cfg.Notify.WebhookURL != "" {
		t.Errorf("Notify.WebhookURL = %q, want empty", cfg.Notify.WebhookURL)
	}
	if cfg.HTTP.RetryAttempts != 4 {
		t.Errorf("HTTP.RetryAttempts = %d, want 4", cfg.HTTP.RetryAttempts)
	}
}

func TestLoadConfig_RejectsNonPositiveTTL(t *testing.T) {
	t.Setenv("SNAPSHOT_TTL", "-1h")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() expected error for negative SNAPSHOT_TTL")
	}
}

func TestPostgresURL(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: "5432", Database: "ledger", User: "u", Password: "p"}
	want := "postgres://u:p@db:5432/ledger?sslmode=disable"
	if got := cfg.URL(); got != want {
		t.Errorf("URL() = %v, want %v", got, want)
	}

	cfg.Password = "p@ss/word"
	want = "postgres://u:p%40ss%2Fword@db:5432/ledger?sslmode=disable"
	if got := cfg.URL(); got != want {
		t.Errorf("URL() = %v, want %v", got, want)
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns environment variable when set",
			key:          "TEST_KEY",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when environment variable not set",
			key:          "NONEXISTENT_KEY",
			defaultValue: "default",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			if got := getEnv(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsNumbers(t *testing.T) {
	t.Setenv("TEST_INT", "200")
	t.Setenv("TEST_INT_INVALID", "invalid")
	t.Setenv("TEST_FLOAT", "0.5")
	t.Setenv("TEST_DURATION", "30s")
	t.Setenv("TEST_DURATION_INVALID", "soon")

	if got := getEnvAsInt("TEST_INT", 100); got != 200 {
		t.Errorf("getEnvAsInt() = %v, want 200", got)
	}
	if got := getEnvAsInt("TEST_INT_INVALID", 100); got != 100 {
		t.Errorf("getEnvAsInt() = %v, want 100", got)
	}
	if got := getEnvAsFloat("TEST_FLOAT", 2); got != 0.5 {
		t.Errorf("getEnvAsFloat() = %v, want 0.5", got)
	}
	if got := getEnvAsDuration("TEST_DURATION", time.Second); got != 30*time.Second {
		t.Errorf("getEnvAsDuration() = %v, want 30s", got)
	}
	if got := getEnvAsDuration("TEST_DURATION_INVALID", time.Second); got != time.Second {
		t.Errorf("getEnvAsDuration() = %v, want 1s", got)
	}
}
