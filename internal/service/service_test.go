package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/stock"
	"salesdesk/backend/internal/store"
	"salesdesk/backend/internal/store/memory"
)

var (
	adminActor = domain.Actor{ID: "u-admin", Email: "admin@example.com", Role: domain.RoleAdmin}
	agentActor = domain.Actor{ID: "u-agent", Email: "agent@example.com", Role: domain.RoleAgent}
)

type fixedClock struct{ at time.Time }

func (c *fixedClock) Now() time.Time { return c.at }

func newTestService(t *testing.T) (*Service, *memory.Store, *fixedClock) {
	t.Helper()
	repo := memory.New()
	clock := &fixedClock{at: time.Date(2024, time.May, 15, 10, 0, 0, 0, time.UTC)}
	svc := New(repo, stock.NewEngine(repo, nil), nil, Options{Now: clock.Now})
	return svc, repo, clock
}

func asAdmin() context.Context { return WithActor(context.Background(), adminActor) }
func asAgent() context.Context { return WithActor(context.Background(), agentActor) }

func createA4(t *testing.T, svc *Service, quantity int) domain.Product {
	t.Helper()
	p, err := svc.CreateProduct(asAdmin(), domain.ProductCreateRequest{
		Name:     "A4",
		Category: "Books",
		Variants: []domain.VariantInput{{Title: "Dozen", PackSize: 12, CostPrice: 1500, Price: 22000, Quantity: quantity}},
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}

func variantQuantity(t *testing.T, svc *Service, productID string) int {
	t.Helper()
	p, err := svc.GetProduct(context.Background(), productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	return p.Variants[0].Quantity
}

func TestCreateSaleSnapshotsPricingAndDecrementsStock(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := createA4(t, svc, 120)

	sale, dup, err := svc.CreateSale(asAgent(), domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{Product: p.ID, VariantID: p.Variants[0].ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("CreateSale() error: %v", err)
	}
	if dup {
		t.Fatalf("fresh sale reported as duplicate")
	}
	if got := variantQuantity(t, svc, p.ID); got != 96 {
		t.Fatalf("expected quantity 96, got %d", got)
	}
	if len(sale.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(sale.Items))
	}
	item := sale.Items[0]
	if item.UnitsSold != 24 || item.UnitPrice != 22000 || item.Subtotal != 44000 || item.CostAtSale != 1500 {
		t.Fatalf("unexpected item %+v", item)
	}
	if item.Profit() != 8000 {
		t.Fatalf("expected item profit 8000, got %d", item.Profit())
	}
	if sale.Total != 44000 || sale.TotalProfit != 8000 {
		t.Fatalf("unexpected totals total=%d profit=%d", sale.Total, sale.TotalProfit)
	}
	if sale.UserID != agentActor.ID {
		t.Fatalf("expected sale user %s, got %s", agentActor.ID, sale.UserID)
	}
	if item.ProductName != "A4" || item.VariantTitle != "Dozen" {
		t.Fatalf("expected name snapshot, got %+v", item)
	}
}

func TestCreateSaleDefaultsToFirstVariant(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := createA4(t, svc, 120)

	sale, _, err := svc.CreateSale(asAgent(), domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{Product: p.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("CreateSale() error: %v", err)
	}
	if sale.Items[0].VariantID != p.Variants[0].ID {
		t.Fatalf("expected first variant to be used")
	}
}

func TestCreateSaleInsufficientStockLeavesQuantity(t *testing.T) {
	svc, repo, _ := newTestService(t)
	p := createA4(t, svc, 10)

	_, _, err := svc.CreateSale(asAgent(), domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{Product: p.ID, Quantity: 1}},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if !strings.Contains(err.Error(), "A4") || !strings.Contains(err.Error(), "Dozen") {
		t.Fatalf("expected message to name product and variant, got %q", err.Error())
	}
	if got := variantQuantity(t, svc, p.ID); got != 10 {
		t.Fatalf("expected quantity 10, got %d", got)
	}
	if sales, _ := repo.ListSales(context.Background(), 0); len(sales) != 0 {
		t.Fatalf("expected no sale recorded, got %d", len(sales))
	}
}

func TestCreateSaleReleasesEarlierItemsOnFailure(t *testing.T) {
	svc, repo, _ := newTestService(t)
	first := createA4(t, svc, 120)
	second, err := svc.CreateProduct(asAdmin(), domain.ProductCreateRequest{
		Name:     "Pen",
		Category: "Stationery",
		Variants: []domain.VariantInput{{Title: "Single", PackSize: 1, Price: 500, Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("create pen: %v", err)
	}

	cases := []struct {
		name  string
		items []domain.SaleItemRequest
		want  error
	}{
		{"insufficient", []domain.SaleItemRequest{{Product: first.ID, Quantity: 2}, {Product: second.ID, Quantity: 4}}, store.ErrInsufficientStock},
		{"missing product", []domain.SaleItemRequest{{Product: first.ID, Quantity: 2}, {Product: "nope", Quantity: 1}}, ErrProductNotFound},
		{"missing variant", []domain.SaleItemRequest{{Product: first.ID, Quantity: 2}, {Product: second.ID, VariantID: "nope", Quantity: 1}}, ErrVariantNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.CreateSale(asAgent(), domain.SaleCreateRequest{Items: tc.items})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if got := variantQuantity(t, svc, first.ID); got != 120 {
				t.Fatalf("first item stock leaked: %d", got)
			}
			if got := variantQuantity(t, svc, second.ID); got != 3 {
				t.Fatalf("second item stock changed: %d", got)
			}
			if sales, _ := repo.ListSales(context.Background(), 0); len(sales) != 0 {
				t.Fatalf("expected no sale recorded")
			}
		})
	}
}

func TestCreateSaleValidatesBeforeMutation(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := createA4(t, svc, 120)

	cases := []domain.SaleCreateRequest{
		{},
		{Items: []domain.SaleItemRequest{{Product: p.ID, Quantity: 1}, {Product: p.ID, Quantity: 0}}},
		{Items: []domain.SaleItemRequest{{Product: p.ID, Quantity: 1}, {Product: "", Quantity: 1}}},
		{Items: []domain.SaleItemRequest{{Product: p.ID, Quantity: -2}}},
	}
	for i, req := range cases {
		_, _, err := svc.CreateSale(asAgent(), req)
		if !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
	if got := variantQuantity(t, svc, p.ID); got != 120 {
		t.Fatalf("validation failure mutated stock: %d", got)
	}
}

func TestCreateSaleRequiresActor(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := createA4(t, svc, 120)

	_, _, err := svc.CreateSale(context.Background(), domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{Product: p.ID, Quantity: 1}},
	})
	if !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCreateSaleIdempotentReplay(t *testing.T) {
	svc, repo, _ := newTestService(t)
	p := createA4(t, svc, 120)
	req := domain.SaleCreateRequest{
		IdempotencyKey: "till-1-0001",
		Items:          []domain.SaleItemRequest{{Product: p.ID, Quantity: 1}},
	}

	first, dup, err := svc.CreateSale(asAgent(), req)
	if err != nil || dup {
		t.Fatalf("first sale: dup=%v err=%v", dup, err)
	}
	second, dup, err := svc.CreateSale(asAgent(), req)
	if err != nil {
		t.Fatalf("replay error: %v", err)
	}
	if !dup || second.ID != first.ID {
		t.Fatalf("expected replay of %s, got %s dup=%v", first.ID, second.ID, dup)
	}
	if got := variantQuantity(t, svc, p.ID); got != 108 {
		t.Fatalf("replay decremented stock again: %d", got)
	}
	if sales, _ := repo.ListSales(context.Background(), 0); len(sales) != 1 {
		t.Fatalf("expected exactly one sale, got %d", len(sales))
	}
}

type racingSaleRepo struct {
	*memory.Store
	once sync.Once
}

// FindSaleByIdempotencyKey misses on the first call to mimic a concurrent
// request that commits between the lookup and the insert.
func (r *racingSaleRepo) FindSaleByIdempotencyKey(ctx context.Context, key string) (*domain.Sale, error) {
	missed := false
	r.once.Do(func() { missed = true })
	if missed {
		return nil, store.ErrNotFound
	}
	return r.Store.FindSaleByIdempotencyKey(ctx, key)
}

func TestCreateSaleKeyConflictReleasesAndReturnsExisting(t *testing.T) {
	base := memory.New()
	repo := &racingSaleRepo{Store: base}
	clock := &fixedClock{at: time.Date(2024, time.May, 15, 10, 0, 0, 0, time.UTC)}
	svc := New(repo, nil, nil, Options{Now: clock.Now})
	p := createA4(t, svc, 120)

	winner, err := base.CreateSale(context.Background(), domain.Sale{ID: "winner", IdempotencyKey: "k1", CreatedAt: clock.at})
	if err != nil {
		t.Fatalf("seed sale: %v", err)
	}

	got, dup, err := svc.CreateSale(asAgent(), domain.SaleCreateRequest{
		IdempotencyKey: "k1",
		Items:          []domain.SaleItemRequest{{Product: p.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("CreateSale() error: %v", err)
	}
	if !dup || got.ID != winner.ID {
		t.Fatalf("expected existing sale %s, got %s dup=%v", winner.ID, got.ID, dup)
	}
	if q := variantQuantity(t, svc, p.ID); q != 120 {
		t.Fatalf("reservation not released: %d", q)
	}
}

func TestConcurrentSalesSellLastDozenOnce(t *testing.T) {
	svc, repo, _ := newTestService(t)
	p := createA4(t, svc, 12)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.CreateSale(asAgent(), domain.SaleCreateRequest{
				Items: []domain.SaleItemRequest{{Product: p.ID, Quantity: 1}},
			})
		}(i)
	}
	wg.Wait()

	ok, insufficient := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, store.ErrInsufficientStock):
			insufficient++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 || insufficient != 1 {
		t.Fatalf("expected one success and one rejection, got %d/%d", ok, insufficient)
	}
	if got := variantQuantity(t, svc, p.ID); got != 0 {
		t.Fatalf("expected quantity 0, got %d", got)
	}
	if sales, _ := repo.ListSales(context.Background(), 0); len(sales) != 1 {
		t.Fatalf("expected one sale, got %d", len(sales))
	}
}

func TestListSalesUsesLiveNameWithSnapshotFallback(t *testing.T) {
	svc, _, clock := newTestService(t)
	kept := createA4(t, svc, 120)
	gone, err := svc.CreateProduct(asAdmin(), domain.ProductCreateRequest{Name: "Eraser", Category: "Stationery",
		Variants: []domain.VariantInput{{Title: "Single", Price: 300, Quantity: 10}}})
	if err != nil {
		t.Fatalf("create eraser: %v", err)
	}

	if _, _, err := svc.CreateSale(asAgent(), domain.SaleCreateRequest{Items: []domain.SaleItemRequest{
		{Product: kept.ID, Quantity: 1},
		{Product: gone.ID, Quantity: 1},
	}}); err != nil {
		t.Fatalf("create sale: %v", err)
	}
	clock.at = clock.at.Add(time.Minute)

	rename := "A4 Notebook"
	if _, err := svc.UpdateProduct(asAdmin(), kept.ID, domain.ProductUpdateRequest{Name: &rename}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := svc.DeleteProduct(asAdmin(), gone.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	views, err := svc.ListSales(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListSales() error: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected one sale, got %d", len(views))
	}
	items := views[0].Items
	if items[0].Product.Name != "A4 Notebook" || items[0].ProductName != "A4" {
		t.Fatalf("expected live name with stored snapshot, got %+v", items[0])
	}
	if items[1].Product.Name != "Eraser" {
		t.Fatalf("expected snapshot fallback, got %+v", items[1].Product)
	}

	if _, err := svc.GetSale(context.Background(), "missing"); !errors.Is(err, ErrSaleNotFound) {
		t.Fatalf("expected ErrSaleNotFound, got %v", err)
	}
}

func TestCreateProductGeneratesSKUAndDefaultVariant(t *testing.T) {
	svc, _, _ := newTestService(t)

	first, err := svc.CreateProduct(asAdmin(), domain.ProductCreateRequest{Name: "Blue pen", Category: "stationery"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.SKU != "STAT-BLUE-001" {
		t.Fatalf("expected STAT-BLUE-001, got %s", first.SKU)
	}
	if len(first.Variants) != 1 || first.Variants[0].Title != "Default" || first.Variants[0].PackSize != 1 || first.Variants[0].Price != 0 {
		t.Fatalf("expected synthesized default variant, got %+v", first.Variants)
	}

	second, err := svc.CreateProduct(asAdmin(), domain.ProductCreateRequest{Name: "Blue pencil", Category: "Stationery"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if second.SKU != "STAT-BLUE-002" {
		t.Fatalf("expected STAT-BLUE-002, got %s", second.SKU)
	}

	dupSKU := "stat-blue-001"
	if _, err := svc.CreateProduct(asAdmin(), domain.ProductCreateRequest{Name: "x", Category: "y", SKU: dupSKU}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate sku, got %v", err)
	}
}

type takenSKURepo struct {
	*memory.Store
	hidden map[string]bool
}

// ListSKUsWithPrefix hides some skus so the generator collides with them.
func (r *takenSKURepo) ListSKUsWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	all, err := r.Store.ListSKUsWithPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	visible := all[:0]
	for _, sku := range all {
		if !r.hidden[sku] {
			visible = append(visible, sku)
		}
	}
	return visible, nil
}

func TestCreateProductRetriesSKUConflicts(t *testing.T) {
	repo := &takenSKURepo{Store: memory.New(), hidden: map[string]bool{"BOOK-NOTE-001": true, "BOOK-NOTE-002": true}}
	for _, sku := range []string{"BOOK-NOTE-001", "BOOK-NOTE-002"} {
		if _, err := repo.CreateProduct(context.Background(), domain.Product{Name: "n", SKU: sku, Variants: []domain.Variant{{Title: "d", PackSize: 1}}}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	svc := New(repo, nil, nil, Options{})

	p, err := svc.CreateProduct(asAdmin(), domain.ProductCreateRequest{Name: "Notebook", Category: "Books"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.SKU != "BOOK-NOTE-003" {
		t.Fatalf("expected BOOK-NOTE-003, got %s", p.SKU)
	}
}

func TestProductMutationsRequireAdmin(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := createA4(t, svc, 12)

	if _, err := svc.CreateProduct(asAgent(), domain.ProductCreateRequest{Name: "x", Category: "y"}); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("create: expected ErrForbidden, got %v", err)
	}
	if err := svc.DeleteProduct(asAgent(), p.ID); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("delete: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Restock(asAgent(), p.ID, p.Variants[0].ID, 5); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("restock: expected ErrForbidden, got %v", err)
	}
}

func TestVariantLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := createA4(t, svc, 120)
	ctx := asAdmin()

	withSingle, err := svc.AddVariant(ctx, p.ID, domain.VariantInput{Title: "Single", Price: 2500, CostPrice: 1500, Quantity: 7})
	if err != nil {
		t.Fatalf("add variant: %v", err)
	}
	if len(withSingle.Variants) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(withSingle.Variants))
	}
	single := withSingle.Variants[1]
	if single.PackSize != 1 || single.SKU != p.SKU+"-V2" {
		t.Fatalf("unexpected variant defaults %+v", single)
	}

	price := int64(2600)
	pack := 0
	updated, err := svc.UpdateVariant(ctx, p.ID, single.ID, domain.VariantUpdateRequest{Price: &price, PackSize: &pack})
	if err != nil {
		t.Fatalf("update variant: %v", err)
	}
	v, _ := updated.Variant(single.ID)
	if v.Price != 2600 || v.PackSize != 1 || v.Quantity != 7 {
		t.Fatalf("unexpected updated variant %+v", v)
	}

	restocked, err := svc.Restock(ctx, p.ID, single.ID, 5)
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if v, _ := restocked.Variant(single.ID); v.Quantity != 12 {
		t.Fatalf("expected 12 after restock, got %d", v.Quantity)
	}

	if _, err := svc.DeleteVariant(ctx, p.ID, single.ID); err != nil {
		t.Fatalf("delete variant: %v", err)
	}
	if _, err := svc.DeleteVariant(ctx, p.ID, p.Variants[0].ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict deleting last variant, got %v", err)
	}
	if _, err := svc.UpdateVariant(ctx, p.ID, "missing", domain.VariantUpdateRequest{}); !errors.Is(err, ErrVariantNotFound) {
		t.Fatalf("expected ErrVariantNotFound, got %v", err)
	}
}

func TestLowStockProducts(t *testing.T) {
	svc, _, _ := newTestService(t)
	createA4(t, svc, 120)
	low := createA4(t, svc, 10)

	products, err := svc.ListLowStockProducts(context.Background())
	if err != nil {
		t.Fatalf("ListLowStockProducts() error: %v", err)
	}
	if len(products) != 1 || products[0].ID != low.ID {
		t.Fatalf("expected only the low product, got %+v", products)
	}
}

func TestDebtVisibilityAndStatusRules(t *testing.T) {
	svc, _, _ := newTestService(t)
	otherAgent := WithActor(context.Background(), domain.Actor{ID: "u-other", Role: domain.RoleAgent})

	mine, err := svc.CreateDebt(asAgent(), domain.DebtCreateRequest{Title: "Float", Amount: 5000, Reason: "change"})
	if err != nil {
		t.Fatalf("create debt: %v", err)
	}
	if mine.Status != domain.DebtStatusPending || mine.IssuerID != agentActor.ID {
		t.Fatalf("unexpected debt %+v", mine)
	}
	if _, err := svc.CreateDebt(otherAgent, domain.DebtCreateRequest{Title: "Lunch", Amount: 100, Reason: "food"}); err != nil {
		t.Fatalf("create debt: %v", err)
	}
	if _, err := svc.CreateDebt(asAgent(), domain.DebtCreateRequest{Title: "x", Amount: -1, Reason: "y"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative amount, got %v", err)
	}

	own, _ := svc.ListDebts(asAgent())
	all, _ := svc.ListDebts(asAdmin())
	if len(own) != 1 || len(all) != 2 {
		t.Fatalf("expected 1 own and 2 total debts, got %d/%d", len(own), len(all))
	}

	if _, err := svc.UpdateDebtStatus(otherAgent, mine.ID, domain.DebtStatusRequest{Status: "Paid"}); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-issuer, got %v", err)
	}
	if _, err := svc.UpdateDebtStatus(asAgent(), mine.ID, domain.DebtStatusRequest{Status: "Rejected"}); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for agent rejecting, got %v", err)
	}
	if _, err := svc.UpdateDebtStatus(asAgent(), mine.ID, domain.DebtStatusRequest{Status: "Lost"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	paid, err := svc.UpdateDebtStatus(asAgent(), mine.ID, domain.DebtStatusRequest{Status: "paid"})
	if err != nil || paid.Status != domain.DebtStatusPaid {
		t.Fatalf("issuer pay: %+v %v", paid, err)
	}
	rejected, err := svc.UpdateDebtStatus(asAdmin(), mine.ID, domain.DebtStatusRequest{Status: "Rejected"})
	if err != nil || rejected.Status != domain.DebtStatusRejected {
		t.Fatalf("admin reject: %+v %v", rejected, err)
	}
	if _, err := svc.UpdateDebtStatus(asAdmin(), "missing", domain.DebtStatusRequest{Status: "Paid"}); !errors.Is(err, ErrDebtNotFound) {
		t.Fatalf("expected ErrDebtNotFound, got %v", err)
	}
}

func TestAnalyticsReportAndDashboard(t *testing.T) {
	svc, _, clock := newTestService(t)
	p := createA4(t, svc, 120)

	clock.at = time.Date(2024, time.April, 20, 9, 0, 0, 0, time.UTC)
	if _, _, err := svc.CreateSale(asAgent(), domain.SaleCreateRequest{Items: []domain.SaleItemRequest{{Product: p.ID, Quantity: 1}}}); err != nil {
		t.Fatalf("april sale: %v", err)
	}
	clock.at = time.Date(2024, time.May, 15, 9, 0, 0, 0, time.UTC)
	if _, _, err := svc.CreateSale(asAgent(), domain.SaleCreateRequest{Items: []domain.SaleItemRequest{{Product: p.ID, Quantity: 2}}}); err != nil {
		t.Fatalf("may sale: %v", err)
	}
	clock.at = time.Date(2024, time.May, 15, 18, 0, 0, 0, time.UTC)

	rep, err := svc.AnalyticsReport(context.Background(), "month")
	if err != nil {
		t.Fatalf("AnalyticsReport() error: %v", err)
	}
	stats := rep.MonthlyStats
	if stats.TotalSales != 44000 || stats.TotalOrders != 1 || stats.TotalProfit != 8000 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.GrowthRate != 100 {
		t.Fatalf("expected growth 100, got %v", stats.GrowthRate)
	}
	if len(rep.SalesData) != 6 || rep.SalesData[4].Sales != 22000 || rep.SalesData[5].Sales != 44000 {
		t.Fatalf("unexpected trend %+v", rep.SalesData)
	}
	if len(rep.TopProducts) != 1 || rep.TopProducts[0].Sales != 2 {
		t.Fatalf("unexpected top products %+v", rep.TopProducts)
	}

	dash, err := svc.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard() error: %v", err)
	}
	if dash.TotalSales != 2 || dash.TodaySales != 1 || dash.TotalRevenue != 66000 || dash.TotalProducts != 1 {
		t.Fatalf("unexpected dashboard %+v", dash)
	}
}

func TestCreateSaleRejectsQuantitiesThatWouldOverflow(t *testing.T) {
	svc, repo, _ := newTestService(t)
	p := createA4(t, svc, 120)

	for _, quantity := range []int{math.MaxInt, math.MaxInt/12 + 2, maxQuantity/12 + 1} {
		_, _, err := svc.CreateSale(asAgent(), domain.SaleCreateRequest{
			Items: []domain.SaleItemRequest{{Product: p.ID, Quantity: quantity}},
		})
		if !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("quantity %d: expected invalid input, got %v", quantity, err)
		}
	}
	if q := variantQuantity(t, svc, p.ID); q != 120 {
		t.Fatalf("rejected sales must not touch stock, got %d", q)
	}
	if sales, _ := repo.ListSales(context.Background(), 0); len(sales) != 0 {
		t.Fatalf("expected no sales, got %d", len(sales))
	}
}

func TestCreateSaleRejectsSubtotalOverflowAndReleases(t *testing.T) {
	svc, repo, _ := newTestService(t)
	cheap := createA4(t, svc, 120)
	pricey, err := svc.CreateProduct(asAdmin(), domain.ProductCreateRequest{
		Name:     "Fountain Pen",
		Category: "Stationery",
		Variants: []domain.VariantInput{{Title: "Single", PackSize: 1, Price: math.MaxInt64 / 2, Quantity: 10}},
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	_, _, err = svc.CreateSale(asAgent(), domain.SaleCreateRequest{Items: []domain.SaleItemRequest{
		{Product: cheap.ID, Quantity: 1},
		{Product: pricey.ID, Quantity: 3},
	}})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	// Each line fits, the sum does not.
	_, _, err = svc.CreateSale(asAgent(), domain.SaleCreateRequest{Items: []domain.SaleItemRequest{
		{Product: pricey.ID, Quantity: 2},
		{Product: cheap.ID, Quantity: 1},
	}})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for the total, got %v", err)
	}

	if q := variantQuantity(t, svc, cheap.ID); q != 120 {
		t.Fatalf("earlier reservation not released: %d", q)
	}
	if q := variantQuantity(t, svc, pricey.ID); q != 10 {
		t.Fatalf("reservation not released: %d", q)
	}
	if sales, _ := repo.ListSales(context.Background(), 0); len(sales) != 0 {
		t.Fatalf("expected no sales, got %d", len(sales))
	}
}

func TestQuantityInputsAreBounded(t *testing.T) {
	svc, _, _ := newTestService(t)
	p := createA4(t, svc, 120)

	if _, err := svc.Restock(asAdmin(), p.ID, p.Variants[0].ID, maxQuantity+1); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid restock, got %v", err)
	}
	if _, err := svc.AddVariant(asAdmin(), p.ID, domain.VariantInput{Title: "Crate", PackSize: maxQuantity + 1}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid pack size, got %v", err)
	}
	if _, err := svc.AddVariant(asAdmin(), p.ID, domain.VariantInput{Title: "Crate", Quantity: maxQuantity + 1}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
	if q := variantQuantity(t, svc, p.ID); q != 120 {
		t.Fatalf("unexpected quantity %d", q)
	}
}

// lostAckRepo stores the sale and then reports a failure, as when a commit
// succeeds on the server but the acknowledgement never arrives.
type lostAckRepo struct {
	*memory.Store
	persist bool
	getErr  error
}

func (r *lostAckRepo) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if r.persist {
		if _, err := r.Store.CreateSale(ctx, sale); err != nil {
			return nil, err
		}
	}
	return nil, errors.New("read tcp: connection reset by peer")
}

func (r *lostAckRepo) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.Store.GetSale(ctx, id)
}

func TestCreateSaleKeepsStockWhenWriteErrorHidesCommit(t *testing.T) {
	cases := []struct {
		name      string
		repo      *lostAckRepo
		wantErr   bool
		wantStock int
		wantSales int
	}{
		{name: "sale was committed", repo: &lostAckRepo{persist: true}, wantStock: 108, wantSales: 1},
		{name: "sale was not committed", repo: &lostAckRepo{}, wantErr: true, wantStock: 120},
		{name: "outcome unknown", repo: &lostAckRepo{getErr: errors.New("timeout")}, wantErr: true, wantStock: 108},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.repo.Store = memory.New()
			clock := &fixedClock{at: time.Date(2024, time.May, 15, 10, 0, 0, 0, time.UTC)}
			svc := New(tc.repo, nil, nil, Options{Now: clock.Now})
			p := createA4(t, svc, 120)

			sale, dup, err := svc.CreateSale(asAgent(), domain.SaleCreateRequest{
				Items: []domain.SaleItemRequest{{Product: p.ID, Quantity: 1}},
			})
			if tc.wantErr != (err != nil) {
				t.Fatalf("CreateSale() error = %v, wantErr %v", err, tc.wantErr)
			}
			if !tc.wantErr && (dup || sale.Total != 22000) {
				t.Fatalf("expected the committed sale, got %+v dup=%v", sale, dup)
			}
			if q := variantQuantity(t, svc, p.ID); q != tc.wantStock {
				t.Fatalf("expected stock %d, got %d", tc.wantStock, q)
			}
			if sales, _ := tc.repo.Store.ListSales(context.Background(), 0); len(sales) != tc.wantSales {
				t.Fatalf("expected %d sales, got %d", tc.wantSales, len(sales))
			}
		})
	}
}
