// seed loads the sample stationery catalog and the initial users into the
// configured database.
//
// Usage:
//
//	DATABASE_URL=postgres://... go run ./cmd/seed -agent-email till@shop.test -agent-password secret123
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"slices"
	"time"

	"go.uber.org/zap"

	"salesdesk/backend/internal/config"
	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/httpapi"
	"salesdesk/backend/internal/logger"
	"salesdesk/backend/internal/store"
	"salesdesk/backend/internal/store/mongodb"
	pgstore "salesdesk/backend/internal/store/postgres"
)

type seedUser struct {
	email    string
	password string
	role     string
}

type result struct {
	usersCreated    int
	productsCreated int
	productsSkipped int
}

func main() {
	adminEmail := flag.String("admin-email", "", "admin email (defaults to SEED_ADMIN_EMAIL)")
	adminPassword := flag.String("admin-password", "", "admin password (defaults to SEED_ADMIN_PASSWORD)")
	agentEmail := flag.String("agent-email", "agent@salesdesk.local", "agent email, empty to skip")
	agentPassword := flag.String("agent-password", "", "agent password, empty to skip")
	flag.Parse()

	cfg := config.Load()
	zlog, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("invalid logger configuration: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	repo, closeFn, err := openRepository(ctx, cfg)
	if err != nil {
		zlog.Fatal("open repository", zap.Error(err))
	}
	defer func() {
		if err := closeFn(); err != nil {
			zlog.Error("close repository", zap.Error(err))
		}
	}()

	users := []seedUser{
		{email: firstNonEmpty(*adminEmail, cfg.SeedAdminEmail), password: firstNonEmpty(*adminPassword, cfg.SeedAdminPassword), role: domain.RoleAdmin},
		{email: *agentEmail, password: *agentPassword, role: domain.RoleAgent},
	}
	res, err := seed(ctx, repo, users, time.Now().UTC(), zlog)
	if err != nil {
		zlog.Fatal("seed failed", zap.Error(err))
	}
	zlog.Info("seed complete",
		zap.Int("users_created", res.usersCreated),
		zap.Int("products_created", res.productsCreated),
		zap.Int("products_skipped", res.productsSkipped),
	)
}

func openRepository(ctx context.Context, cfg config.Config) (store.Repository, func() error, error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("postgres migrate: %w", err)
		}
		return pg, pg.Close, nil
	case cfg.MongoURI != "":
		mg, err := mongodb.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, fmt.Errorf("mongodb: %w", err)
		}
		if err := mg.EnsureIndexes(ctx); err != nil {
			_ = mg.Close()
			return nil, nil, fmt.Errorf("mongodb indexes: %w", err)
		}
		return mg, mg.Close, nil
	default:
		return nil, nil, errors.New("set DATABASE_URL or MONGO_URI; the in-memory store has nothing to seed")
	}
}

// seed is safe to run repeatedly: existing users and SKUs are left alone.
func seed(ctx context.Context, repo store.Repository, users []seedUser, now time.Time, zlog *zap.Logger) (result, error) {
	var res result

	// Only password hashing is used here, so the signing secret is irrelevant.
	auth := httpapi.NewAuthManager("", time.Hour, repo)
	for _, u := range users {
		if u.email == "" || u.password == "" {
			continue
		}
		created, err := auth.EnsureUser(ctx, u.email, u.password, u.role)
		if err != nil {
			return res, fmt.Errorf("user %s: %w", u.email, err)
		}
		if created {
			res.usersCreated++
			zlog.Info("created user", zap.String("email", u.email), zap.String("role", u.role))
		}
	}

	for _, p := range store.SampleCatalog(now) {
		existing, err := repo.ListSKUsWithPrefix(ctx, p.SKU)
		if err != nil {
			return res, fmt.Errorf("check sku %s: %w", p.SKU, err)
		}
		if slices.Contains(existing, p.SKU) {
			res.productsSkipped++
			continue
		}
		if _, err := repo.CreateProduct(ctx, p); err != nil {
			if errors.Is(err, store.ErrConflict) {
				res.productsSkipped++
				continue
			}
			return res, fmt.Errorf("create %s: %w", p.SKU, err)
		}
		res.productsCreated++
	}
	return res, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
