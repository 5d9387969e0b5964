package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/store"
)

const saleColumns = `id, idempotency_key, total, total_profit, customer_name, customer_phone, user_id, created_at`

type saleRow struct {
	ID             string         `db:"id"`
	IdempotencyKey sql.NullString `db:"idempotency_key"`
	Total          int64          `db:"total"`
	TotalProfit    int64          `db:"total_profit"`
	CustomerName   sql.NullString `db:"customer_name"`
	CustomerPhone  sql.NullString `db:"customer_phone"`
	UserID         string         `db:"user_id"`
	CreatedAt      time.Time      `db:"created_at"`
}

type saleItemRow struct {
	SaleID       string `db:"sale_id"`
	Position     int    `db:"position"`
	ProductID    string `db:"product_id"`
	ProductName  string `db:"product_name"`
	VariantID    string `db:"variant_id"`
	VariantTitle string `db:"variant_title"`
	Quantity     int    `db:"quantity"`
	UnitsSold    int    `db:"units_sold"`
	UnitPrice    int64  `db:"unit_price"`
	Subtotal     int64  `db:"subtotal"`
	CostAtSale   int64  `db:"cost_at_sale"`
}

// CreateSale writes the header and items in one transaction. A reused
// idempotency key surfaces as ErrConflict from the unique index.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	var customerName, customerPhone string
	if sale.Customer != nil {
		customerName, customerPhone = sale.Customer.Name, sale.Customer.Phone
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, sale.ID, nullIfEmpty(sale.IdempotencyKey), sale.Total, sale.TotalProfit,
		nullIfEmpty(customerName), nullIfEmpty(customerPhone), sale.UserID, sale.CreatedAt)
	if err != nil {
		return nil, classify(err)
	}

	for i, item := range sale.Items {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO sale_items (
				sale_id, position, product_id, product_name, variant_id, variant_title,
				quantity, units_sold, unit_price, subtotal, cost_at_sale
			) VALUES (
				:sale_id, :position, :product_id, :product_name, :variant_id, :variant_title,
				:quantity, :units_sold, :unit_price, :subtotal, :cost_at_sale
			)
		`, saleItemRow{
			SaleID:       sale.ID,
			Position:     i,
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			VariantID:    item.VariantID,
			VariantTitle: item.VariantTitle,
			Quantity:     item.Quantity,
			UnitsSold:    item.UnitsSold,
			UnitPrice:    item.UnitPrice,
			Subtotal:     item.Subtotal,
			CostAtSale:   item.CostAtSale,
		})
		if err != nil {
			return nil, classify(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}

	created := sale
	created.Items = append([]domain.SaleItem(nil), sale.Items...)
	return &created, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return s.getSale(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
}

func (s *Store) FindSaleByIdempotencyKey(ctx context.Context, key string) (*domain.Sale, error) {
	return s.getSale(ctx, `SELECT `+saleColumns+` FROM sales WHERE idempotency_key = $1`, key)
}

func (s *Store) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit <= 0 {
		return s.selectSales(ctx, `SELECT `+saleColumns+` FROM sales ORDER BY created_at DESC, id`)
	}
	return s.selectSales(ctx, `SELECT `+saleColumns+` FROM sales ORDER BY created_at DESC, id LIMIT $1`, limit)
}

func (s *Store) ListSalesBetween(ctx context.Context, from, to time.Time) ([]domain.Sale, error) {
	return s.selectSales(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id
	`, from, to)
}

func (s *Store) getSale(ctx context.Context, query string, arg string) (*domain.Sale, error) {
	sales, err := s.selectSales(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, store.ErrNotFound
	}
	return &sales[0], nil
}

func (s *Store) selectSales(ctx context.Context, query string, args ...any) ([]domain.Sale, error) {
	var rows []saleRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, classify(err)
	}
	sales := make([]domain.Sale, 0, len(rows))
	if len(rows) == 0 {
		return sales, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	iquery, iargs, err := sqlx.In(`
		SELECT sale_id, position, product_id, product_name, variant_id, variant_title,
			quantity, units_sold, unit_price, subtotal, cost_at_sale
		FROM sale_items
		WHERE sale_id IN (?)
		ORDER BY sale_id, position
	`, ids)
	if err != nil {
		return nil, err
	}
	var items []saleItemRow
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(iquery), iargs...); err != nil {
		return nil, classify(err)
	}
	bySale := make(map[string][]domain.SaleItem, len(rows))
	for _, it := range items {
		bySale[it.SaleID] = append(bySale[it.SaleID], domain.SaleItem{
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			VariantID:    it.VariantID,
			VariantTitle: it.VariantTitle,
			Quantity:     it.Quantity,
			UnitsSold:    it.UnitsSold,
			UnitPrice:    it.UnitPrice,
			Subtotal:     it.Subtotal,
			CostAtSale:   it.CostAtSale,
		})
	}

	for _, r := range rows {
		sale := domain.Sale{
			ID:             r.ID,
			IdempotencyKey: r.IdempotencyKey.String,
			Items:          bySale[r.ID],
			Total:          r.Total,
			TotalProfit:    r.TotalProfit,
			UserID:         r.UserID,
			CreatedAt:      r.CreatedAt.UTC(),
		}
		if r.CustomerName.Valid || r.CustomerPhone.Valid {
			sale.Customer = &domain.Customer{Name: r.CustomerName.String, Phone: r.CustomerPhone.String}
		}
		sales = append(sales, sale)
	}
	return sales, nil
}
