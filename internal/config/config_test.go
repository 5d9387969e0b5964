package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("SEED_ADMIN_PASSWORD", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.SeedAdminPassword != "" {
		t.Fatalf("expected empty SEED_ADMIN_PASSWORD when unset, got %q", cfg.SeedAdminPassword)
	}
}

func TestLoadParsesValuesAndFallsBack(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CLIENT_ORIGINS", " http://a.test , ,http://b.test")
	t.Setenv("AUTO_MIGRATE", "false")
	t.Setenv("LOW_STOCK_THRESHOLD", "3")
	t.Setenv("RESERVE_MAX_ATTEMPTS", "0")
	t.Setenv("RATE_LIMIT_PER_15M", "not-a-number")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()
	if cfg.Address() != ":9090" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
	if !slices.Equal(cfg.ClientOrigins, []string{"http://a.test", "http://b.test"}) {
		t.Fatalf("unexpected origins %v", cfg.ClientOrigins)
	}
	if cfg.AutoMigrate {
		t.Fatalf("expected AUTO_MIGRATE=false to be honoured")
	}
	if cfg.LowStockThreshold != 3 {
		t.Fatalf("expected threshold 3, got %d", cfg.LowStockThreshold)
	}
	if cfg.ReserveMaxAttempts != 3 {
		t.Fatalf("expected attempts below the minimum to fall back to 3, got %d", cfg.ReserveMaxAttempts)
	}
	if cfg.RateLimitPer15 != 100 {
		t.Fatalf("expected malformed rate limit to fall back to 100, got %d", cfg.RateLimitPer15)
	}
	if cfg.Logger.Level != "debug" || cfg.Logger.Encoding != "json" {
		t.Fatalf("unexpected logger config %+v", cfg.Logger)
	}
}

func TestLoadRejectsZeroLowStockThreshold(t *testing.T) {
	t.Setenv("LOW_STOCK_THRESHOLD", "0")
	if cfg := Load(); cfg.LowStockThreshold != 10 {
		t.Fatalf("expected a zero threshold to fall back to 10, got %d", cfg.LowStockThreshold)
	}

	t.Setenv("LOW_STOCK_THRESHOLD", "1")
	if cfg := Load(); cfg.LowStockThreshold != 1 {
		t.Fatalf("expected threshold 1, got %d", cfg.LowStockThreshold)
	}
}

func TestLoadDotEnvKeepsExistingVariables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("MONGO_DB=from-file\nREPORT_TIMEZONE=Asia/Jakarta\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("MONGO_DB", "from-env")
	t.Setenv("REPORT_TIMEZONE", "")
	os.Unsetenv("REPORT_TIMEZONE")

	if err := loadDotEnv(path); err != nil {
		t.Fatalf("load .env: %v", err)
	}
	if got := os.Getenv("MONGO_DB"); got != "from-env" {
		t.Fatalf("expected environment to win, got %q", got)
	}
	if got := os.Getenv("REPORT_TIMEZONE"); got != "Asia/Jakarta" {
		t.Fatalf("expected value from file, got %q", got)
	}

	if err := loadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing file must be ignored, got %v", err)
	}
}
