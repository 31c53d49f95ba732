package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnvOr(t *testing.T) {
	// Unset key returns fallback
	os.Unsetenv("TEST_ENVOR_KEY")
	if got := envOr("TEST_ENVOR_KEY", "default"); got != "default" {
		t.Errorf("envOr unset key = %q, want %q", got, "default")
	}

	// Set key returns value
	t.Setenv("TEST_ENVOR_KEY", "custom")
	if got := envOr("TEST_ENVOR_KEY", "default"); got != "custom" {
		t.Errorf("envOr set key = %q, want %q", got, "custom")
	}

	// Empty string returns fallback
	t.Setenv("TEST_ENVOR_KEY", "")
	if got := envOr("TEST_ENVOR_KEY", "fallback"); got != "fallback" {
		t.Errorf("envOr empty key = %q, want %q", got, "fallback")
	}
}

func TestDurationOr(t *testing.T) {
	t.Setenv("TEST_DURATION", "90s")
	if got := durationOr("TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("durationOr = %v, want 90s", got)
	}
	t.Setenv("TEST_DURATION", "soon")
	if got := durationOr("TEST_DURATION", time.Second); got != time.Second {
		t.Errorf("durationOr invalid = %v, want fallback", got)
	}
	t.Setenv("TEST_DURATION", "-5s")
	if got := durationOr("TEST_DURATION", time.Second); got != time.Second {
		t.Errorf("durationOr negative = %v, want fallback", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "DATABASE_URL", "TELEGRAM_BOT_TOKEN", "FRONTEND_ORIGIN", "REDIS_URL",
		"REDIS_PASSWORD", "INFISICAL_CLIENT_ID", "INFISICAL_CLIENT_SECRET", "DUNE_API_URL", "DUNE_POLL_INTERVAL",
		"POLL_INTERVAL", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "TELEGRAM_ALERT_CHAT_ID"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.FrontendOrigin != "*" {
		t.Errorf("FrontendOrigin = %q, want %q", cfg.FrontendOrigin, "*")
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.DuneAPIURL != "https://api.dune.com/api/v1" {
		t.Errorf("DuneAPIURL = %q", cfg.DuneAPIURL)
	}
	if cfg.DunePollInterval != 5*time.Second {
		t.Errorf("DunePollInterval = %v, want 5s", cfg.DunePollInterval)
	}
	if cfg.PollInterval != 5*time.Minute {
		t.Errorf("PollInterval = %v, want 5m", cfg.PollInterval)
	}
	if cfg.RateLimitRPS != 20 || cfg.RateLimitBurst != 40 {
		t.Errorf("rate limit = %v/%d, want 20/40", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.TelegramAlertChatID != 0 {
		t.Errorf("TelegramAlertChatID = %d, want 0", cfg.TelegramAlertChatID)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://test")
	t.Setenv("TELEGRAM_BOT_TOKEN", "test-token")
	t.Setenv("TELEGRAM_ALERT_CHAT_ID", "-100123")
	t.Setenv("FRONTEND_ORIGIN", "http://localhost:3000")
	t.Setenv("DUNE_MAX_WAIT", "2m")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want %q", cfg.Port, "9090")
	}
	if cfg.DatabaseURL != "postgres://test" {
		t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, "postgres://test")
	}
	if cfg.TelegramToken != "test-token" {
		t.Errorf("TelegramToken = %q, want %q", cfg.TelegramToken, "test-token")
	}
	if cfg.TelegramAlertChatID != -100123 {
		t.Errorf("TelegramAlertChatID = %d, want -100123", cfg.TelegramAlertChatID)
	}
	if cfg.FrontendOrigin != "http://localhost:3000" {
		t.Errorf("FrontendOrigin = %q, want %q", cfg.FrontendOrigin, "http://localhost:3000")
	}
	if cfg.DuneMaxWait != 2*time.Minute {
		t.Errorf("DuneMaxWait = %v, want 2m", cfg.DuneMaxWait)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Errorf("RateLimitRPS = %v, want 2.5", cfg.RateLimitRPS)
	}
}

func TestLoadQueriesDefault(t *testing.T) {
	q, err := LoadQueries("")
	if err != nil {
		t.Fatalf("LoadQueries: %v", err)
	}
	rev, ok := q.Lookup("revenue")
	if !ok {
		t.Fatal("default catalogue has no revenue query")
	}
	if rev.QueryID <= 0 || rev.Schedule == "" {
		t.Errorf("revenue = %+v", rev)
	}
}

func TestLoadQueriesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.yaml")
	content := `queries:
  - name: revenue
    query_id: 42
    schedule: "@hourly"
    parameters:
      - name: token
        value: OETH
      - name: token
        value: OUSD
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	q, err := LoadQueries(path)
	if err != nil {
		t.Fatalf("LoadQueries: %v", err)
	}
	rev, ok := q.Lookup("revenue")
	if !ok {
		t.Fatal("revenue not found")
	}
	if rev.QueryID != 42 || rev.Schedule != "@hourly" || len(rev.Parameters) != 2 {
		t.Errorf("revenue = %+v", rev)
	}
	if rev.Parameters[1].Value != "OUSD" {
		t.Errorf("parameter order not preserved: %+v", rev.Parameters)
	}
}

func TestLoadQueriesRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing name", "queries:\n  - query_id: 1\n"},
		{"zero id", "queries:\n  - name: a\n"},
		{"duplicate", "queries:\n  - name: a\n    query_id: 1\n  - name: a\n    query_id: 2\n"},
		{"bad schedule", "queries:\n  - name: a\n    query_id: 1\n    schedule: every tuesday\n"},
		{"bad yaml", "queries: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "q.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadQueries(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}
