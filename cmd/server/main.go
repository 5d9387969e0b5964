package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"

	"salesdesk/backend/internal/config"
	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/httpapi"
	"salesdesk/backend/internal/logger"
	"salesdesk/backend/internal/service"
	"salesdesk/backend/internal/stock"
	"salesdesk/backend/internal/store"
	"salesdesk/backend/internal/store/memory"
	"salesdesk/backend/internal/store/mongodb"
	pgstore "salesdesk/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	zlog, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("invalid logger configuration: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		zlog.Fatal("invalid security configuration", zap.Error(err))
	}
	loc, err := time.LoadLocation(cfg.ReportTimezone)
	if err != nil {
		zlog.Fatal("invalid REPORT_TIMEZONE", zap.String("timezone", cfg.ReportTimezone), zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	repo, closers, err := openRepository(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("repository unavailable", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			zlog.Warn("redis unavailable, using in-memory rate limits", zap.Error(err))
			_ = client.Close()
		} else {
			redisClient = client
			closers = append(closers, client.Close)
			zlog.Info("rate limit store: redis", zap.String("addr", cfg.RedisAddr))
		}
	}
	limiterStore, err := httpapi.NewLimiterStore(redisClient)
	if err != nil {
		zlog.Fatal("rate limit store", zap.Error(err))
	}

	engine := stock.NewEngine(repo, zlog, stock.WithMaxAttempts(cfg.ReserveMaxAttempts))
	svc := service.New(repo, engine, zlog, service.Options{
		LowStockThreshold: cfg.LowStockThreshold,
		Location:          loc,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	if cfg.SeedAdminEmail != "" && cfg.SeedAdminPassword != "" {
		created, err := auth.EnsureUser(ctx, cfg.SeedAdminEmail, cfg.SeedAdminPassword, domain.RoleAdmin)
		if err != nil {
			zlog.Fatal("seed admin", zap.Error(err))
		}
		if created {
			zlog.Info("seeded admin user", zap.String("email", cfg.SeedAdminEmail))
		}
	}

	global, login := rateLimits(cfg)
	api, err := httpapi.New(svc, auth, zlog, httpapi.Options{
		AllowedOrigins: cfg.ClientOrigins,
		LimiterStore:   limiterStore,
		GlobalRate:     global,
		LoginRate:      login,
		TrustProxy:     cfg.TrustProxy,
	})
	if err != nil {
		zlog.Fatal("build http api", zap.Error(err))
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		zlog.Info("sales backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("shutdown error", zap.Error(err))
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			zlog.Error("close error", zap.Error(err))
		}
	}
	zlog.Info("server stopped")
}

// openRepository picks postgres, then mongodb, then the seeded in-memory store.
// A configured database that cannot be reached is fatal rather than silently
// replaced by memory.
func openRepository(ctx context.Context, cfg config.Config, zlog *zap.Logger) (store.Repository, []func() error, error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				_ = pg.Close()
				return nil, nil, fmt.Errorf("postgres migrate: %w", err)
			}
		}
		zlog.Info("repository: postgres", zap.Bool("auto_migrate", cfg.AutoMigrate))
		return pg, []func() error{pg.Close}, nil
	case cfg.MongoURI != "":
		mg, err := mongodb.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, fmt.Errorf("mongodb: %w", err)
		}
		if err := mg.EnsureIndexes(ctx); err != nil {
			_ = mg.Close()
			return nil, nil, fmt.Errorf("mongodb indexes: %w", err)
		}
		zlog.Info("repository: mongodb", zap.String("database", cfg.MongoDB))
		return mg, []func() error{mg.Close}, nil
	default:
		zlog.Info("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}
}

func rateLimits(cfg config.Config) (global, login limiter.Rate) {
	global = limiter.Rate{Period: 15 * time.Minute, Limit: int64(cfg.RateLimitPer15)}
	login = limiter.Rate{Period: time.Minute, Limit: int64(cfg.LoginPerMinute)}
	return global, login
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AccessTokenTTLMinutes <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL_MINUTES must be positive")
	}
	if cfg.SeedAdminEmail != "" && len(cfg.SeedAdminPassword) < 6 {
		return fmt.Errorf("SEED_ADMIN_PASSWORD must be at least 6 characters when SEED_ADMIN_EMAIL is set")
	}
	return nil
}
