package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("SALES_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set SALES_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func seedDozenProduct(t *testing.T, s *Store, quantity int) domain.Product {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	product, err := s.CreateProduct(ctx, domain.Product{
		ID:        uuid.NewString(),
		Name:      "A4 Book IT",
		SKU:       fmt.Sprintf("IT-A4-%d", now.UnixNano()),
		Category:  "Books",
		CreatedAt: now,
		UpdatedAt: now,
		Variants:  []domain.Variant{{Title: "Dozen", PackSize: 12, CostPrice: 1500, Price: 22000, Quantity: quantity}},
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	t.Cleanup(func() {
		_ = s.DeleteProduct(context.Background(), product.ID)
	})
	return *product
}

func TestDecrementVariantStockGuardsQuantity(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	product := seedDozenProduct(t, s, 120)
	variant := product.Variants[0]

	if err := s.DecrementVariantStock(ctx, product.ID, variant.ID, 24); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if err := s.DecrementVariantStock(ctx, product.ID, variant.ID, 120); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if err := s.DecrementVariantStock(ctx, product.ID, "missing", 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	got, err := s.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.Variants[0].Quantity != 96 {
		t.Fatalf("expected 96 units, got %d", got.Variants[0].Quantity)
	}
}

func TestDecrementVariantStockConcurrentCallers(t *testing.T) {
	s := newIntegrationStore(t)
	product := seedDozenProduct(t, s, 12)
	variant := product.Variants[0]

	var wg sync.WaitGroup
	var ok atomic.Int32
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.DecrementVariantStock(context.Background(), product.ID, variant.ID, 12); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 1 {
		t.Fatalf("expected exactly one decrement to win, got %d", ok.Load())
	}
}

func TestCreateSaleRejectsReusedIdempotencyKey(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	product := seedDozenProduct(t, s, 120)
	key := "it-" + uuid.NewString()

	sale := domain.Sale{
		IdempotencyKey: key,
		Items: []domain.SaleItem{{
			ProductID: product.ID, ProductName: product.Name, VariantID: product.Variants[0].ID,
			VariantTitle: "Dozen", Quantity: 1, UnitsSold: 12, UnitPrice: 22000, Subtotal: 22000, CostAtSale: 1500,
		}},
		Total:       22000,
		TotalProfit: 4000,
		UserID:      "it-user",
		CreatedAt:   time.Now().UTC(),
	}
	first, err := s.CreateSale(ctx, sale)
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(context.Background(), `DELETE FROM sales WHERE id = $1`, first.ID)
	})

	sale.ID = ""
	if _, err := s.CreateSale(ctx, sale); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	found, err := s.FindSaleByIdempotencyKey(ctx, key)
	if err != nil {
		t.Fatalf("find by key: %v", err)
	}
	if found.ID != first.ID || len(found.Items) != 1 || found.Items[0].UnitsSold != 12 {
		t.Fatalf("unexpected sale %+v", found)
	}
}

func TestStockAboveInt32Range(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	product := seedDozenProduct(t, s, math.MaxInt32)
	dozen := product.Variants[0]

	if err := s.IncrementVariantStock(ctx, product.ID, dozen.ID, 10); err != nil {
		t.Fatalf("restock past the int32 range: %v", err)
	}
	got, err := s.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if want := math.MaxInt32 + 10; got.Variants[0].Quantity != want {
		t.Fatalf("expected %d, got %d", want, got.Variants[0].Quantity)
	}
}
