package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/store"
)

type Store struct {
	mu          sync.RWMutex
	products    map[string]domain.Product
	skus        map[string]string
	salesByID   map[string]domain.Sale
	salesByIdem map[string]string
	usersByID   map[string]domain.User
	emails      map[string]string
	debtsByID   map[string]domain.Debt
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		products:    make(map[string]domain.Product),
		skus:        make(map[string]string),
		salesByID:   make(map[string]domain.Sale),
		salesByIdem: make(map[string]string),
		usersByID:   make(map[string]domain.User),
		emails:      make(map[string]string),
		debtsByID:   make(map[string]domain.Debt),
	}
}

// NewSeeded returns a store preloaded with the sample catalog.
func NewSeeded() *Store {
	s := New()
	for _, p := range store.SampleCatalog(time.Now().UTC()) {
		s.products[p.ID] = p
		s.skus[p.SKU] = p.ID
	}
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, cloneProduct(p))
	}
	sortNewestFirst(products)
	return products, nil
}

func (s *Store) ListLowStockProducts(_ context.Context, threshold int) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0)
	for _, p := range s.products {
		if len(p.Variants) > 0 && p.MinQuantity() <= threshold {
			products = append(products, cloneProduct(p))
		}
	}
	sortNewestFirst(products)
	return products, nil
}

func (s *Store) CountProducts(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products), nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneProduct(p)
	return &dup, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = cloneProduct(p)
		}
	}
	return result, nil
}

func (s *Store) ListSKUsWithPrefix(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	skus := make([]string, 0)
	for sku := range s.skus {
		if strings.HasPrefix(sku, prefix) {
			skus = append(skus, sku)
		}
	}
	slices.Sort(skus)
	return skus, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.SKU == "" || len(product.Variants) == 0 {
		return nil, store.ErrInvalidInput
	}
	if _, taken := s.skus[product.SKU]; taken {
		return nil, store.ErrConflict
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	product = cloneProduct(product)
	for i := range product.Variants {
		if product.Variants[i].ID == "" {
			product.Variants[i].ID = uuid.NewString()
		}
	}

	s.products[product.ID] = product
	s.skus[product.SKU] = product.ID
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if product.SKU != current.SKU {
		if _, taken := s.skus[product.SKU]; taken {
			return nil, store.ErrConflict
		}
		delete(s.skus, current.SKU)
		s.skus[product.SKU] = current.ID
	}
	current.Name = product.Name
	current.SKU = product.SKU
	current.Category = product.Category
	current.UpdatedAt = product.UpdatedAt
	s.products[current.ID] = current

	updated := cloneProduct(current)
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.skus, p.SKU)
	delete(s.products, id)
	return nil
}

func (s *Store) AddVariant(_ context.Context, productID string, variant domain.Variant) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if variant.ID == "" {
		variant.ID = uuid.NewString()
	}
	p = cloneProduct(p)
	p.Variants = append(p.Variants, variant)
	p.UpdatedAt = time.Now().UTC()
	s.products[productID] = p

	updated := cloneProduct(p)
	return &updated, nil
}

func (s *Store) UpdateVariant(_ context.Context, productID string, variant domain.Variant) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	idx := variantIndex(p, variant.ID)
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	p = cloneProduct(p)
	variant.Quantity = p.Variants[idx].Quantity
	p.Variants[idx] = variant
	p.UpdatedAt = time.Now().UTC()
	s.products[productID] = p

	updated := cloneProduct(p)
	return &updated, nil
}

func (s *Store) DeleteVariant(_ context.Context, productID, variantID string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	idx := variantIndex(p, variantID)
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	if len(p.Variants) == 1 {
		return nil, store.ErrConflict
	}
	p = cloneProduct(p)
	p.Variants = slices.Delete(p.Variants, idx, idx+1)
	p.UpdatedAt = time.Now().UTC()
	s.products[productID] = p

	updated := cloneProduct(p)
	return &updated, nil
}

func (s *Store) DecrementVariantStock(_ context.Context, productID, variantID string, units int) error {
	if units <= 0 {
		return store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	idx := variantIndex(p, variantID)
	if idx < 0 {
		return store.ErrNotFound
	}
	if p.Variants[idx].Quantity < units {
		return store.ErrInsufficientStock
	}
	p.Variants[idx].Quantity -= units
	return nil
}

func (s *Store) IncrementVariantStock(_ context.Context, productID, variantID string, units int) error {
	if units <= 0 {
		return store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	idx := variantIndex(p, variantID)
	if idx < 0 {
		return store.ErrNotFound
	}
	p.Variants[idx].Quantity += units
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if _, exists := s.salesByID[sale.ID]; exists {
		return nil, store.ErrConflict
	}
	if sale.IdempotencyKey != "" {
		if _, exists := s.salesByIdem[sale.IdempotencyKey]; exists {
			return nil, store.ErrConflict
		}
		s.salesByIdem[sale.IdempotencyKey] = sale.ID
	}
	sale = cloneSale(sale)
	s.salesByID[sale.ID] = sale

	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneSale(sale)
	return &dup, nil
}

func (s *Store) FindSaleByIdempotencyKey(_ context.Context, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.salesByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneSale(s.salesByID[id])
	return &dup, nil
}

func (s *Store) ListSales(_ context.Context, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		sales = append(sales, cloneSale(sale))
	}
	sortSalesNewestFirst(sales)
	if limit > 0 && len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (s *Store) ListSalesBetween(_ context.Context, from, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0)
	for _, sale := range s.salesByID {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		sales = append(sales, cloneSale(sale))
	}
	sortSalesNewestFirst(sales)
	return sales, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Email == "" || user.PasswordHash == "" {
		return nil, store.ErrInvalidInput
	}
	if _, taken := s.emails[user.Email]; taken {
		return nil, store.ErrConflict
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	s.usersByID[user.ID] = user
	s.emails[user.Email] = user.ID
	created := user
	return &created, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	user := s.usersByID[id]
	return &user, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, 0, len(s.usersByID))
	for _, u := range s.usersByID {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.User) int {
		return strings.Compare(a.Email, b.Email)
	})
	return users, nil
}

func (s *Store) CreateDebt(_ context.Context, debt domain.Debt) (*domain.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if debt.ID == "" {
		debt.ID = uuid.NewString()
	}
	if _, exists := s.debtsByID[debt.ID]; exists {
		return nil, store.ErrConflict
	}
	s.debtsByID[debt.ID] = debt
	created := debt
	return &created, nil
}

func (s *Store) GetDebt(_ context.Context, id string) (*domain.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	debt, ok := s.debtsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &debt, nil
}

func (s *Store) ListDebts(_ context.Context, issuerID string) ([]domain.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	debts := make([]domain.Debt, 0)
	for _, d := range s.debtsByID {
		if issuerID != "" && d.IssuerID != issuerID {
			continue
		}
		debts = append(debts, d)
	}
	slices.SortFunc(debts, func(a, b domain.Debt) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return debts, nil
}

func (s *Store) UpdateDebtStatus(_ context.Context, id, status string, at time.Time) (*domain.Debt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	debt, ok := s.debtsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	debt.Status = status
	debt.UpdatedAt = at
	s.debtsByID[id] = debt
	updated := debt
	return &updated, nil
}

func variantIndex(p domain.Product, variantID string) int {
	return slices.IndexFunc(p.Variants, func(v domain.Variant) bool {
		return v.ID == variantID
	})
}

func sortNewestFirst(products []domain.Product) {
	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
}

func sortSalesNewestFirst(sales []domain.Sale) {
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	dup.Variants = slices.Clone(src.Variants)
	return dup
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	dup.Items = slices.Clone(src.Items)
	if src.Customer != nil {
		customer := *src.Customer
		dup.Customer = &customer
	}
	return dup
}
