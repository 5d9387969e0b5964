package store

import (
	"context"
	"errors"
	"time"

	"salesdesk/backend/internal/domain"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
	ErrForbidden         = errors.New("forbidden")
	// ErrUnavailable marks a transport failure where the store guarantees the
	// write was not applied, so the same call may be issued again.
	ErrUnavailable = errors.New("store unavailable")
)

type ProductRepository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListLowStockProducts(ctx context.Context, threshold int) ([]domain.Product, error)
	CountProducts(ctx context.Context) (int, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	ListSKUsWithPrefix(ctx context.Context, prefix string) ([]string, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	// UpdateProduct replaces name, sku and category. Variants are untouched.
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	AddVariant(ctx context.Context, productID string, variant domain.Variant) (*domain.Product, error)
	// UpdateVariant replaces every variant field except Quantity.
	UpdateVariant(ctx context.Context, productID string, variant domain.Variant) (*domain.Product, error)
	DeleteVariant(ctx context.Context, productID, variantID string) (*domain.Product, error)
}

// StockRepository holds the only two operations allowed to change a
// variant's quantity.
type StockRepository interface {
	// DecrementVariantStock subtracts units in one atomic step only when the
	// variant currently holds at least that many. It returns ErrNotFound when
	// the product or variant does not exist and ErrInsufficientStock when the
	// guard fails.
	DecrementVariantStock(ctx context.Context, productID, variantID string, units int) error
	IncrementVariantStock(ctx context.Context, productID, variantID string, units int) error
}

type SaleRepository interface {
	// CreateSale returns ErrConflict when the idempotency key is already used.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	FindSaleByIdempotencyKey(ctx context.Context, key string) (*domain.Sale, error)
	ListSales(ctx context.Context, limit int) ([]domain.Sale, error)
	ListSalesBetween(ctx context.Context, from, to time.Time) ([]domain.Sale, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
}

type DebtRepository interface {
	CreateDebt(ctx context.Context, debt domain.Debt) (*domain.Debt, error)
	GetDebt(ctx context.Context, id string) (*domain.Debt, error)
	// ListDebts returns every debt when issuerID is empty.
	ListDebts(ctx context.Context, issuerID string) ([]domain.Debt, error)
	UpdateDebtStatus(ctx context.Context, id, status string, at time.Time) (*domain.Debt, error)
}

type Repository interface {
	ProductRepository
	StockRepository
	SaleRepository
	UserRepository
	DebtRepository
}
