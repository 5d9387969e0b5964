package mongodb

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/store"
)

type variantDoc struct {
	ID        string `bson:"_id"`
	Title     string `bson:"title"`
	SKU       string `bson:"sku,omitempty"`
	PackSize  int    `bson:"packSize"`
	CostPrice int64  `bson:"costPrice"`
	Price     int64  `bson:"price"`
	Quantity  int    `bson:"quantity"`
}

type productDoc struct {
	ID        string       `bson:"_id"`
	Name      string       `bson:"name"`
	SKU       string       `bson:"sku"`
	Category  string       `bson:"category"`
	Variants  []variantDoc `bson:"variants"`
	CreatedAt time.Time    `bson:"createdAt"`
	UpdatedAt time.Time    `bson:"updatedAt"`
}

func newVariantDoc(v domain.Variant) variantDoc {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return variantDoc{
		ID:        v.ID,
		Title:     v.Title,
		SKU:       v.SKU,
		PackSize:  max(v.PackSize, 1),
		CostPrice: v.CostPrice,
		Price:     v.Price,
		Quantity:  v.Quantity,
	}
}

func (d productDoc) toDomain() domain.Product {
	p := domain.Product{
		ID:        d.ID,
		Name:      d.Name,
		SKU:       d.SKU,
		Category:  d.Category,
		Variants:  make([]domain.Variant, 0, len(d.Variants)),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	for _, v := range d.Variants {
		p.Variants = append(p.Variants, domain.Variant{
			ID:        v.ID,
			Title:     v.Title,
			SKU:       v.SKU,
			PackSize:  v.PackSize,
			CostPrice: v.CostPrice,
			Price:     v.Price,
			Quantity:  v.Quantity,
		})
	}
	return p
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.findProducts(ctx, bson.M{})
}

func (s *Store) ListLowStockProducts(ctx context.Context, threshold int) ([]domain.Product, error) {
	return s.findProducts(ctx, bson.M{"variants.quantity": bson.M{"$lte": threshold}})
}

func (s *Store) CountProducts(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	n, err := s.products.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, classify(err)
	}
	return int(n), nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc productDoc
	if err := s.products.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, notFoundOr(err)
	}
	p := doc.toDomain()
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	products, err := s.findProducts(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

func (s *Store) ListSKUsWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := s.products.Find(ctx,
		bson.M{"sku": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}},
		options.Find().SetProjection(bson.M{"sku": 1}).SetSort(bson.D{{Key: "sku", Value: 1}}),
	)
	if err != nil {
		return nil, classify(err)
	}
	var docs []struct {
		SKU string `bson:"sku"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classify(err)
	}
	skus := make([]string, 0, len(docs))
	for _, d := range docs {
		skus = append(skus, d.SKU)
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
	doc := productDoc{
		ID:        product.ID,
		Name:      product.Name,
		SKU:       product.SKU,
		Category:  product.Category,
		Variants:  make([]variantDoc, 0, len(product.Variants)),
		CreatedAt: product.CreatedAt,
		UpdatedAt: product.UpdatedAt,
	}
	for _, v := range product.Variants {
		doc.Variants = append(doc.Variants, newVariantDoc(v))
	}

	insertCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if _, err := s.products.InsertOne(insertCtx, doc); err != nil {
		return nil, classify(err)
	}
	created := doc.toDomain()
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	err := s.updateProduct(ctx, bson.M{"_id": product.ID}, bson.M{"$set": bson.M{
		"name":      product.Name,
		"sku":       product.SKU,
		"category":  product.Category,
		"updatedAt": product.UpdatedAt,
	}})
	if err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := s.products.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return classify(err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AddVariant(ctx context.Context, productID string, variant domain.Variant) (*domain.Product, error) {
	err := s.updateProduct(ctx, bson.M{"_id": productID}, bson.M{
		"$push": bson.M{"variants": newVariantDoc(variant)},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, productID)
}

// UpdateVariant sets each field through an array filter so quantity is
// never part of the write.
func (s *Store) UpdateVariant(ctx context.Context, productID string, variant domain.Variant) (*domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.products.UpdateOne(ctx,
		bson.M{"_id": productID, "variants._id": variant.ID},
		bson.M{"$set": bson.M{
			"variants.$[v].title":     variant.Title,
			"variants.$[v].sku":       variant.SKU,
			"variants.$[v].packSize":  max(variant.PackSize, 1),
			"variants.$[v].costPrice": variant.CostPrice,
			"variants.$[v].price":     variant.Price,
			"updatedAt":               time.Now().UTC(),
		}},
		options.Update().SetArrayFilters(options.ArrayFilters{
			Filters: []interface{}{bson.M{"v._id": variant.ID}},
		}),
	)
	if err != nil {
		return nil, classify(err)
	}
	if res.MatchedCount == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProduct(ctx, productID)
}

// DeleteVariant only matches while a second variant exists, so the last
// one can never be pulled.
func (s *Store) DeleteVariant(ctx context.Context, productID, variantID string) (*domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.products.UpdateOne(ctx,
		bson.M{"_id": productID, "variants._id": variantID, "variants.1": bson.M{"$exists": true}},
		bson.M{
			"$pull": bson.M{"variants": bson.M{"_id": variantID}},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return nil, classify(err)
	}
	if res.MatchedCount == 0 {
		n, err := s.products.CountDocuments(ctx, bson.M{"_id": productID, "variants._id": variantID})
		if err != nil {
			return nil, classify(err)
		}
		if n == 0 {
			return nil, store.ErrNotFound
		}
		return nil, store.ErrConflict
	}
	return s.GetProduct(ctx, productID)
}

// DecrementVariantStock uses $elemMatch so the id and quantity guard apply to
// the same array element, then $inc through the positional operator.
func (s *Store) DecrementVariantStock(ctx context.Context, productID, variantID string, units int) error {
	if units <= 0 {
		return store.ErrInvalidInput
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.products.UpdateOne(ctx,
		bson.M{
			"_id": productID,
			"variants": bson.M{"$elemMatch": bson.M{
				"_id":      variantID,
				"quantity": bson.M{"$gte": units},
			}},
		},
		bson.M{"$inc": bson.M{"variants.$.quantity": -units}},
	)
	if err != nil {
		return classify(err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := s.products.CountDocuments(ctx, bson.M{"_id": productID, "variants._id": variantID})
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return store.ErrInsufficientStock
}

func (s *Store) IncrementVariantStock(ctx context.Context, productID, variantID string, units int) error {
	if units <= 0 {
		return store.ErrInvalidInput
	}
	return s.updateProduct(ctx,
		bson.M{"_id": productID, "variants._id": variantID},
		bson.M{"$inc": bson.M{"variants.$.quantity": units}},
	)
}

func (s *Store) updateProduct(ctx context.Context, filter, update bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.products.UpdateOne(ctx, filter, update)
	if err != nil {
		return classify(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) findProducts(ctx context.Context, filter bson.M) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cur, err := s.products.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, classify(err)
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classify(err)
	}
	products := make([]domain.Product, 0, len(docs))
	for _, d := range docs {
		products = append(products, d.toDomain())
	}
	return products, nil
}
