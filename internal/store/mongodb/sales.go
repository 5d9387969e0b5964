package mongodb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/store"
)

type saleItemDoc struct {
	ProductID    string `bson:"productId"`
	ProductName  string `bson:"productName"`
	VariantID    string `bson:"variantId"`
	VariantTitle string `bson:"variantTitle"`
	Quantity     int    `bson:"quantity"`
	UnitsSold    int    `bson:"unitsSold"`
	UnitPrice    int64  `bson:"unitPrice"`
	Subtotal     int64  `bson:"subtotal"`
	CostAtSale   int64  `bson:"costAtSale"`
}

type customerDoc struct {
	Name  string `bson:"name,omitempty"`
	Phone string `bson:"phone,omitempty"`
}

// IdempotencyKey is omitted when empty so the partial unique index ignores
// sales recorded without one.
type saleDoc struct {
	ID             string        `bson:"_id"`
	IdempotencyKey string        `bson:"idempotencyKey,omitempty"`
	Items          []saleItemDoc `bson:"items"`
	Total          int64         `bson:"total"`
	TotalProfit    int64         `bson:"totalProfit"`
	Customer       *customerDoc  `bson:"customer,omitempty"`
	UserID         string        `bson:"user"`
	CreatedAt      time.Time     `bson:"createdAt"`
}

func newSaleDoc(sale domain.Sale) saleDoc {
	doc := saleDoc{
		ID:             sale.ID,
		IdempotencyKey: sale.IdempotencyKey,
		Items:          make([]saleItemDoc, 0, len(sale.Items)),
		Total:          sale.Total,
		TotalProfit:    sale.TotalProfit,
		UserID:         sale.UserID,
		CreatedAt:      sale.CreatedAt,
	}
	if sale.Customer != nil {
		doc.Customer = &customerDoc{Name: sale.Customer.Name, Phone: sale.Customer.Phone}
	}
	for _, it := range sale.Items {
		doc.Items = append(doc.Items, saleItemDoc(it))
	}
	return doc
}

func (d saleDoc) toDomain() domain.Sale {
	sale := domain.Sale{
		ID:             d.ID,
		IdempotencyKey: d.IdempotencyKey,
		Items:          make([]domain.SaleItem, 0, len(d.Items)),
		Total:          d.Total,
		TotalProfit:    d.TotalProfit,
		UserID:         d.UserID,
		CreatedAt:      d.CreatedAt.UTC(),
	}
	if d.Customer != nil {
		sale.Customer = &domain.Customer{Name: d.Customer.Name, Phone: d.Customer.Phone}
	}
	for _, it := range d.Items {
		sale.Items = append(sale.Items, domain.SaleItem(it))
	}
	return sale
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	doc := newSaleDoc(sale)

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if _, err := s.sales.InsertOne(ctx, doc); err != nil {
		return nil, classify(err)
	}
	created := doc.toDomain()
	return &created, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return s.findSale(ctx, bson.M{"_id": id})
}

func (s *Store) FindSaleByIdempotencyKey(ctx context.Context, key string) (*domain.Sale, error) {
	if key == "" {
		return nil, store.ErrNotFound
	}
	return s.findSale(ctx, bson.M{"idempotencyKey": key})
}

func (s *Store) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.findSales(ctx, bson.M{}, opts)
}

func (s *Store) ListSalesBetween(ctx context.Context, from, to time.Time) ([]domain.Sale, error) {
	return s.findSales(ctx,
		bson.M{"createdAt": bson.M{"$gte": from, "$lt": to}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}),
	)
}

func (s *Store) findSale(ctx context.Context, filter bson.M) (*domain.Sale, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc saleDoc
	if err := s.sales.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, notFoundOr(err)
	}
	sale := doc.toDomain()
	return &sale, nil
}

func (s *Store) findSales(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Sale, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cur, err := s.sales.Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err)
	}
	var docs []saleDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classify(err)
	}
	sales := make([]domain.Sale, 0, len(docs))
	for _, d := range docs {
		sales = append(sales, d.toDomain())
	}
	return sales, nil
}
