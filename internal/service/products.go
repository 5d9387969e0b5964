package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/store"
)

const skuAttempts = 5

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListLowStockProducts(ctx, s.lowStock)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, notFoundAs(err, ErrProductNotFound)
	}
	return *p, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	name := strings.TrimSpace(req.Name)
	category := strings.TrimSpace(req.Category)
	if name == "" || category == "" {
		return domain.Product{}, invalid("name and category are required")
	}

	variants := make([]domain.Variant, 0, len(req.Variants))
	for _, in := range req.Variants {
		v, err := buildVariant(in)
		if err != nil {
			return domain.Product{}, err
		}
		variants = append(variants, v)
	}
	if len(variants) == 0 {
		variants = append(variants, domain.Variant{ID: uuid.NewString(), Title: "Default", PackSize: 1})
	}

	now := s.now().UTC()
	product := domain.Product{
		ID:        uuid.NewString(),
		Name:      name,
		Category:  category,
		Variants:  variants,
		CreatedAt: now,
		UpdatedAt: now,
	}

	sku := strings.ToUpper(strings.TrimSpace(req.SKU))
	if sku != "" {
		product.SKU = sku
		created, err := s.repo.CreateProduct(ctx, product)
		if err != nil {
			return domain.Product{}, skuConflict(err, sku)
		}
		s.audit(ctx, "product_create", created.ID, zap.String("sku", created.SKU))
		return *created, nil
	}

	// Another writer can take the generated sequence between the lookup and
	// the insert, so the unique index decides and we try the next number.
	for attempt := 0; attempt < skuAttempts; attempt++ {
		next, err := s.nextSKU(ctx, category, name, attempt)
		if err != nil {
			return domain.Product{}, err
		}
		product.SKU = next
		created, err := s.repo.CreateProduct(ctx, product)
		if errors.Is(err, store.ErrConflict) {
			continue
		}
		if err != nil {
			return domain.Product{}, err
		}
		s.audit(ctx, "product_create", created.ID, zap.String("sku", created.SKU))
		return *created, nil
	}
	return domain.Product{}, fmt.Errorf("%w: could not allocate sku for %s", store.ErrConflict, name)
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, notFoundAs(err, ErrProductNotFound)
	}

	updated := *existing
	if req.Name != nil {
		if updated.Name = strings.TrimSpace(*req.Name); updated.Name == "" {
			return domain.Product{}, invalid("name must not be empty")
		}
	}
	if req.Category != nil {
		if updated.Category = strings.TrimSpace(*req.Category); updated.Category == "" {
			return domain.Product{}, invalid("category must not be empty")
		}
	}
	if req.SKU != nil {
		if updated.SKU = strings.ToUpper(strings.TrimSpace(*req.SKU)); updated.SKU == "" {
			return domain.Product{}, invalid("sku must not be empty")
		}
	}
	updated.UpdatedAt = s.now().UTC()

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, skuConflict(notFoundAs(err, ErrProductNotFound), updated.SKU)
	}
	s.audit(ctx, "product_update", saved.ID, zap.String("sku", saved.SKU))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return notFoundAs(err, ErrProductNotFound)
	}
	s.audit(ctx, "product_delete", id)
	return nil
}

func (s *Service) AddVariant(ctx context.Context, productID string, in domain.VariantInput) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, notFoundAs(err, ErrProductNotFound)
	}
	v, err := buildVariant(in)
	if err != nil {
		return domain.Product{}, err
	}
	if v.SKU == "" {
		v.SKU = fmt.Sprintf("%s-V%d", product.SKU, len(product.Variants)+1)
	}

	updated, err := s.repo.AddVariant(ctx, productID, v)
	if err != nil {
		return domain.Product{}, notFoundAs(err, ErrProductNotFound)
	}
	s.audit(ctx, "variant_add", v.ID, zap.String("product_id", productID), zap.Int("quantity", v.Quantity))
	return *updated, nil
}

// UpdateVariant edits descriptive and pricing fields. Quantity can only move
// through sales and restocks.
func (s *Service) UpdateVariant(ctx context.Context, productID, variantID string, req domain.VariantUpdateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, notFoundAs(err, ErrProductNotFound)
	}
	v, ok := product.Variant(variantID)
	if !ok || variantID == "" {
		return domain.Product{}, ErrVariantNotFound
	}

	if req.Title != nil {
		if v.Title = strings.TrimSpace(*req.Title); v.Title == "" {
			return domain.Product{}, invalid("variant title must not be empty")
		}
	}
	if req.SKU != nil {
		v.SKU = strings.ToUpper(strings.TrimSpace(*req.SKU))
	}
	if req.PackSize != nil {
		if *req.PackSize < 0 || *req.PackSize > maxQuantity {
			return domain.Product{}, invalid(fmt.Sprintf("packSize must be between 1 and %d", maxQuantity))
		}
		v.PackSize = max(*req.PackSize, 1)
	}
	if req.CostPrice != nil {
		if *req.CostPrice < 0 {
			return domain.Product{}, invalid("costPrice must not be negative")
		}
		v.CostPrice = *req.CostPrice
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return domain.Product{}, invalid("price must not be negative")
		}
		v.Price = *req.Price
	}

	updated, err := s.repo.UpdateVariant(ctx, productID, v)
	if err != nil {
		return domain.Product{}, notFoundAs(err, ErrVariantNotFound)
	}
	s.audit(ctx, "variant_update", v.ID, zap.String("product_id", productID))
	return *updated, nil
}

func (s *Service) DeleteVariant(ctx context.Context, productID, variantID string) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, notFoundAs(err, ErrProductNotFound)
	}
	if _, ok := product.Variant(variantID); !ok || variantID == "" {
		return domain.Product{}, ErrVariantNotFound
	}
	if len(product.Variants) == 1 {
		return domain.Product{}, fmt.Errorf("%w: a product must keep at least one variant", store.ErrConflict)
	}

	updated, err := s.repo.DeleteVariant(ctx, productID, variantID)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Product{}, fmt.Errorf("%w: a product must keep at least one variant", store.ErrConflict)
		}
		return domain.Product{}, notFoundAs(err, ErrVariantNotFound)
	}
	s.audit(ctx, "variant_delete", variantID, zap.String("product_id", productID))
	return *updated, nil
}

// Restock adds base units to a variant.
func (s *Service) Restock(ctx context.Context, productID, variantID string, units int) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if units <= 0 || units > maxQuantity {
		return domain.Product{}, invalid(fmt.Sprintf("quantity must be between 1 and %d", maxQuantity))
	}
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return domain.Product{}, notFoundAs(err, ErrProductNotFound)
	}
	if err := s.repo.IncrementVariantStock(ctx, productID, variantID, units); err != nil {
		return domain.Product{}, notFoundAs(err, ErrVariantNotFound)
	}
	s.audit(ctx, "variant_restock", variantID, zap.String("product_id", productID), zap.Int("units", units))
	return s.GetProduct(ctx, productID)
}

func buildVariant(in domain.VariantInput) (domain.Variant, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Variant{}, invalid("variant title is required")
	}
	if in.PackSize < 0 || in.PackSize > maxQuantity {
		return domain.Variant{}, invalid(fmt.Sprintf("packSize must be between 1 and %d", maxQuantity))
	}
	if in.CostPrice < 0 || in.Price < 0 {
		return domain.Variant{}, invalid("prices must not be negative")
	}
	if in.Quantity < 0 || in.Quantity > maxQuantity {
		return domain.Variant{}, invalid(fmt.Sprintf("quantity must be between 0 and %d", maxQuantity))
	}
	return domain.Variant{
		ID:        uuid.NewString(),
		Title:     title,
		SKU:       strings.ToUpper(strings.TrimSpace(in.SKU)),
		PackSize:  max(in.PackSize, 1),
		CostPrice: in.CostPrice,
		Price:     in.Price,
		Quantity:  in.Quantity,
	}, nil
}

// SKUPrefix builds the CATE-NAME- part of a generated sku.
func SKUPrefix(category, name string) string {
	return skuPart(category) + "-" + skuPart(name) + "-"
}

func skuPart(s string) string {
	var b strings.Builder
	n := 0
	for _, r := range strings.ToUpper(s) {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
		if n++; n == 4 {
			break
		}
	}
	if n == 0 {
		return "XXXX"
	}
	return b.String()
}

func (s *Service) nextSKU(ctx context.Context, category, name string, skip int) (string, error) {
	prefix := SKUPrefix(category, name)
	existing, err := s.repo.ListSKUsWithPrefix(ctx, prefix)
	if err != nil {
		return "", err
	}
	highest := 0
	for _, sku := range existing {
		n, err := strconv.Atoi(strings.TrimPrefix(sku, prefix))
		if err == nil && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s%03d", prefix, highest+1+skip), nil
}

func skuConflict(err error, sku string) error {
	if errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("%w: sku %s already exists", store.ErrConflict, sku)
	}
	return err
}
