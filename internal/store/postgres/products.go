package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/store"
)

const productColumns = `id, name, sku, category, created_at, updated_at`

type productRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	SKU       string    `db:"sku"`
	Category  string    `db:"category"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type variantRow struct {
	ID        string `db:"id"`
	ProductID string `db:"product_id"`
	Position  int    `db:"position"`
	Title     string `db:"title"`
	SKU       string `db:"sku"`
	PackSize  int    `db:"pack_size"`
	CostPrice int64  `db:"cost_price"`
	Price     int64  `db:"price"`
	Quantity  int    `db:"quantity"`
}

func (r variantRow) toDomain() domain.Variant {
	return domain.Variant{
		ID:        r.ID,
		Title:     r.Title,
		SKU:       r.SKU,
		PackSize:  r.PackSize,
		CostPrice: r.CostPrice,
		Price:     r.Price,
		Quantity:  r.Quantity,
	}
}

func newVariantRow(productID string, position int, v domain.Variant) variantRow {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return variantRow{
		ID:        v.ID,
		ProductID: productID,
		Position:  position,
		Title:     v.Title,
		SKU:       v.SKU,
		PackSize:  max(v.PackSize, 1),
		CostPrice: v.CostPrice,
		Price:     v.Price,
		Quantity:  v.Quantity,
	}
}

const insertVariant = `
	INSERT INTO variants (id, product_id, position, title, sku, pack_size, cost_price, price, quantity)
	VALUES (:id, :product_id, :position, :title, :sku, :pack_size, :cost_price, :price, :quantity)
`

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.selectProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at DESC`)
}

func (s *Store) ListLowStockProducts(ctx context.Context, threshold int) ([]domain.Product, error) {
	return s.selectProducts(ctx, `
		SELECT `+productColumns+`
		FROM products p
		WHERE EXISTS (SELECT 1 FROM variants v WHERE v.product_id = p.id AND v.quantity <= $1)
		ORDER BY created_at DESC
	`, threshold)
}

func (s *Store) CountProducts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM products`); err != nil {
		return 0, classify(err)
	}
	return n, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	products, err := s.selectProducts(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, store.ErrNotFound
	}
	return &products[0], nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`SELECT `+productColumns+` FROM products WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	products, err := s.selectProducts(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

func (s *Store) ListSKUsWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	skus := make([]string, 0)
	err := s.db.SelectContext(ctx, &skus, `
		SELECT sku FROM products
		WHERE left(sku, length($1)) = $1
		ORDER BY sku
	`, prefix)
	if err != nil {
		return nil, classify(err)
	}
	return skus, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.SKU == "" || len(product.Variants) == 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO products (id, name, sku, category, created_at, updated_at)
		VALUES (:id, :name, :sku, :category, :created_at, :updated_at)
	`, productRow{
		ID:        product.ID,
		Name:      product.Name,
		SKU:       product.SKU,
		Category:  product.Category,
		CreatedAt: product.CreatedAt,
		UpdatedAt: product.UpdatedAt,
	})
	if err != nil {
		return nil, classify(err)
	}
	for i, v := range product.Variants {
		if _, err := tx.NamedExecContext(ctx, insertVariant, newVariantRow(product.ID, i, v)); err != nil {
			return nil, classify(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}

	return s.GetProduct(ctx, product.ID)
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, sku = $3, category = $4, updated_at = $5
		WHERE id = $1
	`, product.ID, product.Name, product.SKU, product.Category, product.UpdatedAt)
	if err != nil {
		return nil, classify(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return classify(err)
	}
	return requireAffected(res)
}

func (s *Store) AddVariant(ctx context.Context, productID string, variant domain.Variant) (*domain.Product, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockProduct(ctx, tx, productID); err != nil {
		return nil, err
	}
	var position int
	if err := tx.GetContext(ctx, &position, `
		SELECT COALESCE(MAX(position), -1) + 1 FROM variants WHERE product_id = $1
	`, productID); err != nil {
		return nil, classify(err)
	}
	if _, err := tx.NamedExecContext(ctx, insertVariant, newVariantRow(productID, position, variant)); err != nil {
		return nil, classify(err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE products SET updated_at = now() WHERE id = $1`, productID); err != nil {
		return nil, classify(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}
	return s.GetProduct(ctx, productID)
}

// UpdateVariant leaves quantity alone; stock only moves through the
// increment and decrement primitives.
func (s *Store) UpdateVariant(ctx context.Context, productID string, variant domain.Variant) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE variants
		SET title = $3, sku = $4, pack_size = $5, cost_price = $6, price = $7
		WHERE id = $2 AND product_id = $1
	`, productID, variant.ID, variant.Title, variant.SKU, max(variant.PackSize, 1), variant.CostPrice, variant.Price)
	if err != nil {
		return nil, classify(err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE products SET updated_at = now() WHERE id = $1`, productID); err != nil {
		return nil, classify(err)
	}
	return s.GetProduct(ctx, productID)
}

func (s *Store) DeleteVariant(ctx context.Context, productID, variantID string) (*domain.Product, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockProduct(ctx, tx, productID); err != nil {
		return nil, err
	}
	var ids []string
	if err := tx.SelectContext(ctx, &ids, `SELECT id FROM variants WHERE product_id = $1`, productID); err != nil {
		return nil, classify(err)
	}
	found := false
	for _, id := range ids {
		found = found || id == variantID
	}
	if !found {
		return nil, store.ErrNotFound
	}
	if len(ids) == 1 {
		return nil, store.ErrConflict
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM variants WHERE id = $1 AND product_id = $2`, variantID, productID); err != nil {
		return nil, classify(err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE products SET updated_at = now() WHERE id = $1`, productID); err != nil {
		return nil, classify(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}
	return s.GetProduct(ctx, productID)
}

// DecrementVariantStock relies on the guarded UPDATE being a single atomic
// statement. When no row matches, a follow-up read only decides which error
// to report.
func (s *Store) DecrementVariantStock(ctx context.Context, productID, variantID string, units int) error {
	if units <= 0 {
		return store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE variants
		SET quantity = quantity - $3
		WHERE id = $2 AND product_id = $1 AND quantity >= $3
	`, productID, variantID, units)
	if err != nil {
		return classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if affected == 1 {
		return nil
	}

	var quantity int
	err = s.db.GetContext(ctx, &quantity, `SELECT quantity FROM variants WHERE id = $2 AND product_id = $1`, productID, variantID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return classify(err)
	}
	return store.ErrInsufficientStock
}

func (s *Store) IncrementVariantStock(ctx context.Context, productID, variantID string, units int) error {
	if units <= 0 {
		return store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE variants SET quantity = quantity + $3
		WHERE id = $2 AND product_id = $1
	`, productID, variantID, units)
	if err != nil {
		return classify(err)
	}
	return requireAffected(res)
}

func (s *Store) selectProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	var rows []productRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, classify(err)
	}
	products := make([]domain.Product, 0, len(rows))
	if len(rows) == 0 {
		return products, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	vquery, vargs, err := sqlx.In(`
		SELECT id, product_id, position, title, sku, pack_size, cost_price, price, quantity
		FROM variants
		WHERE product_id IN (?)
		ORDER BY product_id, position
	`, ids)
	if err != nil {
		return nil, err
	}
	var variants []variantRow
	if err := s.db.SelectContext(ctx, &variants, s.db.Rebind(vquery), vargs...); err != nil {
		return nil, classify(err)
	}
	byProduct := make(map[string][]domain.Variant, len(rows))
	for _, v := range variants {
		byProduct[v.ProductID] = append(byProduct[v.ProductID], v.toDomain())
	}

	for _, r := range rows {
		products = append(products, domain.Product{
			ID:        r.ID,
			Name:      r.Name,
			SKU:       r.SKU,
			Category:  r.Category,
			Variants:  byProduct[r.ID],
			CreatedAt: r.CreatedAt.UTC(),
			UpdatedAt: r.UpdatedAt.UTC(),
		})
	}
	return products, nil
}

func lockProduct(ctx context.Context, tx *sqlx.Tx, productID string) error {
	var id string
	err := tx.GetContext(ctx, &id, `SELECT id FROM products WHERE id = $1 FOR UPDATE`, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return classify(err)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
