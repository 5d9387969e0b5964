package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/stock"
	"salesdesk/backend/internal/store"
)

const (
	defaultSalesLimit = 50
	maxSalesLimit     = 500
)

// CreateSale reserves stock for every item in submission order and records
// one ledger entry. When any item fails, stock already reserved for earlier
// items is released and nothing is recorded. The bool reports an idempotent
// replay of an earlier request.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, bool, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Sale{}, false, err
	}
	if err := validateSaleRequest(req); err != nil {
		return domain.Sale{}, false, err
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		existing, err := s.repo.FindSaleByIdempotencyKey(ctx, key)
		if err == nil {
			return *existing, true, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.Sale{}, false, err
		}
	}

	reserved := make([]stock.Reservation, 0, len(req.Items))
	items := make([]domain.SaleItem, 0, len(req.Items))
	for _, line := range req.Items {
		item, res, err := s.reserveLine(ctx, line)
		if err != nil {
			s.releaseAll(ctx, reserved)
			return domain.Sale{}, false, err
		}
		reserved = append(reserved, res)
		items = append(items, item)
	}

	sale := domain.Sale{
		ID:             uuid.NewString(),
		IdempotencyKey: key,
		Items:          items,
		Customer:       normalizeCustomer(req.Customer),
		UserID:         actor.ID,
		CreatedAt:      s.now().UTC(),
	}
	for _, item := range items {
		total, okTotal := addInt64(sale.Total, item.Subtotal)
		profit, okProfit := addInt64(sale.TotalProfit, item.Profit())
		if !okTotal || !okProfit {
			s.releaseAll(ctx, reserved)
			return domain.Sale{}, false, invalid("sale total is too large")
		}
		sale.Total, sale.TotalProfit = total, profit
	}

	created, replay, err := s.recordSale(ctx, sale, reserved)
	if err != nil {
		return domain.Sale{}, false, err
	}
	if replay {
		return created, true, nil
	}

	s.audit(ctx, "sale_create", created.ID,
		zap.Int("items", len(created.Items)),
		zap.Int64("total", created.Total),
		zap.Int64("profit", created.TotalProfit),
	)
	return created, false, nil
}

// recordSale persists the sale and settles the reservations when the write
// fails. Errors that prove nothing was written release at once. Any other
// error may hide a commit that reached the server, so the sale is read back
// first: if it exists the stock stays taken and the sale is returned.
func (s *Service) recordSale(ctx context.Context, sale domain.Sale, reserved []stock.Reservation) (domain.Sale, bool, error) {
	created, err := s.repo.CreateSale(ctx, sale)
	if err == nil {
		return *created, false, nil
	}

	switch {
	case errors.Is(err, store.ErrConflict):
		s.releaseAll(ctx, reserved)
		if sale.IdempotencyKey == "" {
			return domain.Sale{}, false, err
		}
		existing, findErr := s.repo.FindSaleByIdempotencyKey(ctx, sale.IdempotencyKey)
		if findErr != nil {
			return domain.Sale{}, false, errors.Join(err, findErr)
		}
		return *existing, true, nil
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, store.ErrInvalidInput):
		s.releaseAll(ctx, reserved)
		return domain.Sale{}, false, err
	}

	stored, getErr := s.repo.GetSale(context.WithoutCancel(ctx), sale.ID)
	switch {
	case getErr == nil:
		s.log.Warn("sale recorded despite write error", zap.String("sale_id", sale.ID), zap.Error(err))
		return *stored, false, nil
	case errors.Is(getErr, store.ErrNotFound):
		s.releaseAll(ctx, reserved)
		return domain.Sale{}, false, err
	default:
		s.log.Error("sale outcome unknown, keeping reservations",
			zap.String("sale_id", sale.ID),
			zap.Any("reservations", reserved),
			zap.Error(errors.Join(err, getErr)),
		)
		return domain.Sale{}, false, err
	}
}

func (s *Service) reserveLine(ctx context.Context, line domain.SaleItemRequest) (domain.SaleItem, stock.Reservation, error) {
	productID := strings.TrimSpace(line.Product)
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.SaleItem{}, stock.Reservation{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		return domain.SaleItem{}, stock.Reservation{}, err
	}

	variant, ok := product.Variant(strings.TrimSpace(line.VariantID))
	if !ok {
		return domain.SaleItem{}, stock.Reservation{}, fmt.Errorf("%w: %s has no variant %q", ErrVariantNotFound, product.Name, line.VariantID)
	}

	packSize := max(variant.PackSize, 1)
	if line.Quantity > maxQuantity/packSize {
		return domain.SaleItem{}, stock.Reservation{}, invalid(fmt.Sprintf("quantity %d of %s (%s) exceeds %d base units", line.Quantity, product.Name, variant.Title, maxQuantity))
	}
	units := line.Quantity * packSize
	if variant.Price > 0 && int64(line.Quantity) > math.MaxInt64/variant.Price {
		return domain.SaleItem{}, stock.Reservation{}, invalid(fmt.Sprintf("subtotal for %s (%s) is too large", product.Name, variant.Title))
	}
	if variant.CostPrice > 0 && int64(units) > math.MaxInt64/variant.CostPrice {
		return domain.SaleItem{}, stock.Reservation{}, invalid(fmt.Sprintf("cost for %s (%s) is too large", product.Name, variant.Title))
	}
	res, err := s.stock.Reserve(ctx, product.ID, variant.ID, units)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInsufficientStock):
			return domain.SaleItem{}, stock.Reservation{}, fmt.Errorf("%w for %s (%s)", store.ErrInsufficientStock, product.Name, variant.Title)
		case errors.Is(err, store.ErrNotFound):
			// Deleted between the read and the reservation.
			return domain.SaleItem{}, stock.Reservation{}, fmt.Errorf("%w: %s (%s)", ErrVariantNotFound, product.Name, variant.Title)
		}
		return domain.SaleItem{}, stock.Reservation{}, err
	}

	return domain.SaleItem{
		ProductID:    product.ID,
		ProductName:  product.Name,
		VariantID:    variant.ID,
		VariantTitle: variant.Title,
		Quantity:     line.Quantity,
		UnitsSold:    units,
		UnitPrice:    variant.Price,
		Subtotal:     variant.Price * int64(line.Quantity),
		CostAtSale:   variant.CostPrice,
	}, res, nil
}

// releaseAll runs even when the request context is already cancelled.
func (s *Service) releaseAll(ctx context.Context, reserved []stock.Reservation) {
	if len(reserved) == 0 {
		return
	}
	if err := s.stock.ReleaseAll(context.WithoutCancel(ctx), reserved); err != nil {
		s.log.Error("sale compensation incomplete", zap.Int("reservations", len(reserved)), zap.Error(err))
	}
}

func validateSaleRequest(req domain.SaleCreateRequest) error {
	if len(req.Items) == 0 {
		return invalid("no items")
	}
	for i, item := range req.Items {
		if strings.TrimSpace(item.Product) == "" {
			return invalid(fmt.Sprintf("item %d: product is required", i+1))
		}
		if item.Quantity <= 0 {
			return invalid(fmt.Sprintf("item %d: quantity must be positive", i+1))
		}
		if item.Quantity > maxQuantity {
			return invalid(fmt.Sprintf("item %d: quantity must be at most %d", i+1, maxQuantity))
		}
	}
	return nil
}

// addInt64 reports false when a+b overflows.
func addInt64(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

func normalizeCustomer(c *domain.Customer) *domain.Customer {
	if c == nil {
		return nil
	}
	out := domain.Customer{Name: strings.TrimSpace(c.Name), Phone: strings.TrimSpace(c.Phone)}
	if out.Name == "" && out.Phone == "" {
		return nil
	}
	return &out
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.SaleView, error) {
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.SaleView{}, notFoundAs(err, ErrSaleNotFound)
	}
	views, err := s.ViewSales(ctx, []domain.Sale{*sale})
	if err != nil {
		return domain.SaleView{}, err
	}
	return views[0], nil
}

func (s *Service) ListSales(ctx context.Context, limit int) ([]domain.SaleView, error) {
	if limit <= 0 {
		limit = defaultSalesLimit
	}
	limit = min(limit, maxSalesLimit)
	sales, err := s.repo.ListSales(ctx, limit)
	if err != nil {
		return nil, err
	}
	return s.ViewSales(ctx, sales)
}

// ViewSales attaches a display reference to every item. The live product
// name wins when the product still exists; otherwise the snapshot is used.
func (s *Service) ViewSales(ctx context.Context, sales []domain.Sale) ([]domain.SaleView, error) {
	ids := make([]string, 0)
	seen := make(map[string]struct{})
	for _, sale := range sales {
		for _, item := range sale.Items {
			if _, ok := seen[item.ProductID]; !ok {
				seen[item.ProductID] = struct{}{}
				ids = append(ids, item.ProductID)
			}
		}
	}
	live, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]domain.SaleView, 0, len(sales))
	for _, sale := range sales {
		view := domain.SaleView{
			ID:             sale.ID,
			IdempotencyKey: sale.IdempotencyKey,
			Items:          make([]domain.SaleItemView, 0, len(sale.Items)),
			Total:          sale.Total,
			TotalProfit:    sale.TotalProfit,
			Customer:       sale.Customer,
			UserID:         sale.UserID,
			CreatedAt:      sale.CreatedAt,
		}
		for _, item := range sale.Items {
			name := item.ProductName
			if p, ok := live[item.ProductID]; ok {
				name = p.Name
			}
			view.Items = append(view.Items, domain.SaleItemView{
				SaleItem: item,
				Product:  domain.ProductRef{ID: item.ProductID, Name: name},
			})
		}
		views = append(views, view)
	}
	return views, nil
}
