package store

import (
	"time"

	"github.com/google/uuid"

	"salesdesk/backend/internal/domain"
)

// SampleCatalog returns the stationery catalog used for demo mode and by the
// seed command. Every call produces fresh ids.
func SampleCatalog(now time.Time) []domain.Product {
	type v struct {
		title    string
		pack     int
		cost     int64
		price    int64
		quantity int
	}
	rows := []struct {
		name     string
		sku      string
		category string
		variants []v
	}{
		{"Ballpoint Pen Blue", "STAT-BALL-001", "Stationery", []v{
			{"Single", 1, 1200, 2500, 240},
			{"Box of 12", 12, 1200, 27000, 48},
		}},
		{"Ballpoint Pen Black", "STAT-BALL-002", "Stationery", []v{
			{"Single", 1, 1200, 2500, 180},
		}},
		{"A4 Book", "BOOK-A4BO-001", "Books", []v{
			{"Single", 1, 1500, 2500, 120},
			{"Dozen", 12, 1500, 22000, 120},
		}},
		{"Exercise Book 38 Pages", "BOOK-EXER-001", "Books", []v{
			{"Single", 1, 2000, 3500, 60},
		}},
		{"Brown Envelope Large", "ENVE-BROW-001", "Envelopes", []v{
			{"Single", 1, 800, 1500, 8},
			{"Pack of 50", 50, 800, 65000, 100},
		}},
		{"White Envelope Small", "ENVE-WHIT-001", "Envelopes", []v{
			{"Single", 1, 300, 700, 400},
		}},
		{"Pencil HB", "STAT-PENC-001", "Stationery", []v{
			{"Single", 1, 700, 1500, 5},
		}},
	}

	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		p := domain.Product{
			ID:        uuid.NewString(),
			Name:      row.name,
			SKU:       row.sku,
			Category:  row.category,
			CreatedAt: now,
			UpdatedAt: now,
		}
		for _, variant := range row.variants {
			p.Variants = append(p.Variants, domain.Variant{
				ID:        uuid.NewString(),
				Title:     variant.title,
				PackSize:  variant.pack,
				CostPrice: variant.cost,
				Price:     variant.price,
				Quantity:  variant.quantity,
			})
		}
		products = append(products, p)
	}
	return products
}
