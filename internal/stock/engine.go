package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"salesdesk/backend/internal/store"
)

const (
	DefaultMaxAttempts = 3
	defaultBaseDelay   = 20 * time.Millisecond
)

// Reservation is a quantity already taken out of a variant. It stays applied
// until released.
type Reservation struct {
	ProductID string
	VariantID string
	Units     int
}

type Engine struct {
	inventory   store.StockRepository
	log         *zap.Logger
	maxAttempts int
	baseDelay   time.Duration
}

type Option func(*Engine)

func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.baseDelay = d
		}
	}
}

func NewEngine(inventory store.StockRepository, log *zap.Logger, opts ...Option) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		inventory:   inventory,
		log:         log,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reserve takes units base units out of the variant using the store's atomic
// conditional decrement. ErrInsufficientStock and ErrNotFound are returned as
// is; only ErrUnavailable is retried.
func (e *Engine) Reserve(ctx context.Context, productID, variantID string, units int) (Reservation, error) {
	if units <= 0 {
		return Reservation{}, fmt.Errorf("%w: units must be positive", store.ErrInvalidInput)
	}
	if productID == "" || variantID == "" {
		return Reservation{}, fmt.Errorf("%w: product and variant are required", store.ErrInvalidInput)
	}

	err := e.retry(ctx, "reserve", func(ctx context.Context) error {
		return e.inventory.DecrementVariantStock(ctx, productID, variantID, units)
	})
	if err != nil {
		return Reservation{}, err
	}
	return Reservation{ProductID: productID, VariantID: variantID, Units: units}, nil
}

// Release puts a reservation back.
func (e *Engine) Release(ctx context.Context, r Reservation) error {
	if r.Units <= 0 {
		return nil
	}
	return e.retry(ctx, "release", func(ctx context.Context) error {
		return e.inventory.IncrementVariantStock(ctx, r.ProductID, r.VariantID, r.Units)
	})
}

// ReleaseAll releases every reservation, newest first, and keeps going past
// individual failures.
func (e *Engine) ReleaseAll(ctx context.Context, reservations []Reservation) error {
	var errs []error
	for i := len(reservations) - 1; i >= 0; i-- {
		r := reservations[i]
		if err := e.Release(ctx, r); err != nil {
			e.log.Error("release reservation failed",
				zap.String("product_id", r.ProductID),
				zap.String("variant_id", r.VariantID),
				zap.Int("units", r.Units),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("release %s/%s: %w", r.ProductID, r.VariantID, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	delay := e.baseDelay
	var err error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if err = fn(ctx); err == nil || !errors.Is(err, store.ErrUnavailable) {
			return err
		}
		if attempt == e.maxAttempts {
			break
		}
		e.log.Warn("stock store unavailable, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
		delay *= 2
	}
	return err
}
