package main

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"salesdesk/backend/internal/config"
	"salesdesk/backend/internal/store/memory"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := map[string]config.Config{
		"short secret":  {AuthSecret: "short", AccessTokenTTLMinutes: 60},
		"zero ttl":      {AuthSecret: strongSecret},
		"weak seed pwd": {AuthSecret: strongSecret, AccessTokenTTLMinutes: 60, SeedAdminEmail: "a@b.co", SeedAdminPassword: "123"},
	}
	for name, cfg := range cases {
		if err := validateSecurityConfig(cfg); err == nil {
			t.Fatalf("%s: expected weak security config to be rejected", name)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:            strongSecret,
		AccessTokenTTLMinutes: 480,
		SeedAdminEmail:        "owner@shop.test",
		SeedAdminPassword:     "changeme-now",
	})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestOpenRepositoryFallsBackToMemory(t *testing.T) {
	repo, closers, err := openRepository(context.Background(), config.Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	if _, ok := repo.(*memory.Store); !ok {
		t.Fatalf("expected in-memory store, got %T", repo)
	}
	if len(closers) != 0 {
		t.Fatalf("expected no closers for memory store")
	}
	if n, _ := repo.CountProducts(context.Background()); n == 0 {
		t.Fatalf("expected the memory store to be seeded")
	}
}

func TestRateLimitsFromConfig(t *testing.T) {
	global, login := rateLimits(config.Config{RateLimitPer15: 100, LoginPerMinute: 5})
	if global.Limit != 100 || global.Period != 15*time.Minute {
		t.Fatalf("unexpected global rate %+v", global)
	}
	if login.Limit != 5 || login.Period != time.Minute {
		t.Fatalf("unexpected login rate %+v", login)
	}
}
