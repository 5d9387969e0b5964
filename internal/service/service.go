package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/stock"
	"salesdesk/backend/internal/store"
)

const (
	defaultLowStockThreshold = 10
	// maxQuantity bounds any single quantity, pack size or restock so that
	// base-unit products fit the stores' integer columns and never wrap.
	maxQuantity = math.MaxInt32
)

var (
	ErrProductNotFound = fmt.Errorf("product %w", store.ErrNotFound)
	ErrVariantNotFound = fmt.Errorf("variant %w", store.ErrNotFound)
	ErrSaleNotFound    = fmt.Errorf("sale %w", store.ErrNotFound)
	ErrDebtNotFound    = fmt.Errorf("debt %w", store.ErrNotFound)

	errActorRequired = fmt.Errorf("%w: authenticated user required", store.ErrForbidden)
	errAdminRequired = fmt.Errorf("%w: admin role required", store.ErrForbidden)
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	LowStockThreshold int
	// Location sets day and month boundaries for reports. Defaults to UTC.
	Location *time.Location
	Now      func() time.Time
}

type Service struct {
	repo     store.Repository
	stock    *stock.Engine
	log      *zap.Logger
	now      func() time.Time
	location *time.Location
	lowStock int
}

func New(repo store.Repository, engine *stock.Engine, log *zap.Logger, opts Options) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if engine == nil {
		engine = stock.NewEngine(repo, log)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.LowStockThreshold <= 0 {
		opts.LowStockThreshold = defaultLowStockThreshold
	}

	return &Service{
		repo:     repo,
		stock:    engine,
		log:      log,
		now:      opts.Now,
		location: opts.Location,
		lowStock: opts.LowStockThreshold,
	}
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserView, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.UserView, 0, len(users))
	for _, u := range users {
		views = append(views, u.View())
	}
	return views, nil
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.ID == "" {
		return domain.Actor{}, errActorRequired
	}
	return actor, nil
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if actor.Role != domain.RoleAdmin {
		return domain.Actor{}, errAdminRequired
	}
	return actor, nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidInput, msg)
}

// audit records who changed what. It never fails the calling operation.
func (s *Service) audit(ctx context.Context, action, entityID string, fields ...zap.Field) {
	actor, _ := ActorFromContext(ctx)
	s.log.Info(action, append([]zap.Field{
		zap.String("actor_id", actor.ID),
		zap.String("actor_role", actor.Role),
		zap.String("entity_id", entityID),
	}, fields...)...)
}

func notFoundAs(err, sentinel error) error {
	if errors.Is(err, store.ErrNotFound) {
		return sentinel
	}
	return err
}
