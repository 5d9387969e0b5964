package domain

import "time"

const (
	RoleAdmin = "admin"
	RoleAgent = "agent"
)

const (
	DebtStatusPending  = "Pending"
	DebtStatusPaid     = "Paid"
	DebtStatusRejected = "Rejected"
)

// Variant is one purchasable configuration of a product. Quantity is counted
// in base units; Price is per sale-unit and CostPrice per base unit.
type Variant struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	SKU       string `json:"sku,omitempty"`
	PackSize  int    `json:"packSize"`
	CostPrice int64  `json:"costPrice"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SKU       string    `json:"sku"`
	Category  string    `json:"category"`
	Variants  []Variant `json:"variants"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Variant returns the variant with the given id. An empty id selects the
// first variant.
func (p Product) Variant(id string) (Variant, bool) {
	if len(p.Variants) == 0 {
		return Variant{}, false
	}
	if id == "" {
		return p.Variants[0], true
	}
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// MinQuantity is the lowest stock level across all variants.
func (p Product) MinQuantity() int {
	if len(p.Variants) == 0 {
		return 0
	}
	low := p.Variants[0].Quantity
	for _, v := range p.Variants[1:] {
		if v.Quantity < low {
			low = v.Quantity
		}
	}
	return low
}

type VariantInput struct {
	Title     string `json:"title"`
	SKU       string `json:"sku,omitempty"`
	PackSize  int    `json:"packSize"`
	CostPrice int64  `json:"costPrice"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

type ProductCreateRequest struct {
	Name     string         `json:"name"`
	SKU      string         `json:"sku,omitempty"`
	Category string         `json:"category"`
	Variants []VariantInput `json:"variants,omitempty"`
}

type ProductUpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	SKU      *string `json:"sku,omitempty"`
	Category *string `json:"category,omitempty"`
}

type VariantUpdateRequest struct {
	Title     *string `json:"title,omitempty"`
	SKU       *string `json:"sku,omitempty"`
	PackSize  *int    `json:"packSize,omitempty"`
	CostPrice *int64  `json:"costPrice,omitempty"`
	Price     *int64  `json:"price,omitempty"`
}

type RestockRequest struct {
	Quantity int `json:"quantity"`
}

type Customer struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// SaleItem is a frozen copy of what was sold. Prices, cost and names are
// never re-derived from the current catalog.
type SaleItem struct {
	ProductID    string `json:"productId"`
	ProductName  string `json:"productName"`
	VariantID    string `json:"variantId"`
	VariantTitle string `json:"variantTitle"`
	Quantity     int    `json:"quantity"`
	UnitsSold    int    `json:"unitsSold"`
	UnitPrice    int64  `json:"unitPrice"`
	Subtotal     int64  `json:"subtotal"`
	CostAtSale   int64  `json:"costAtSale"`
}

func (i SaleItem) Profit() int64 {
	return i.Subtotal - int64(i.UnitsSold)*i.CostAtSale
}

type Sale struct {
	ID             string     `json:"id"`
	IdempotencyKey string     `json:"idempotencyKey,omitempty"`
	Items          []SaleItem `json:"items"`
	Total          int64      `json:"total"`
	TotalProfit    int64      `json:"totalProfit"`
	Customer       *Customer  `json:"customer,omitempty"`
	UserID         string     `json:"user"`
	CreatedAt      time.Time  `json:"createdAt"`
}

type SaleItemRequest struct {
	Product   string `json:"product"`
	VariantID string `json:"variantId,omitempty"`
	Quantity  int    `json:"quantity"`
	// Client-side figures; the server always reprices from the catalog.
	PriceAtSale *int64 `json:"priceAtSale,omitempty"`
	Subtotal    *int64 `json:"subtotal,omitempty"`
}

type SaleCreateRequest struct {
	Items          []SaleItemRequest `json:"items"`
	Customer       *Customer         `json:"customer,omitempty"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
	Total          *int64            `json:"total,omitempty"`
}

type ProductRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type SaleItemView struct {
	SaleItem
	Product ProductRef `json:"product"`
}

type SaleView struct {
	ID             string         `json:"id"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
	Items          []SaleItemView `json:"items"`
	Total          int64          `json:"total"`
	TotalProfit    int64          `json:"totalProfit"`
	Customer       *Customer      `json:"customer,omitempty"`
	UserID         string         `json:"user"`
	CreatedAt      time.Time      `json:"createdAt"`
	Duplicate      bool           `json:"duplicate,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UserView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type LoginResponse struct {
	Token     string   `json:"token"`
	ExpiresAt string   `json:"expiresAt"`
	User      UserView `json:"user"`
}

type Actor struct {
	ID    string
	Email string
	Role  string
}

// User is the persistence model for credentials.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

func (u User) View() UserView {
	return UserView{ID: u.ID, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
}

type Debt struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	IssuerID  string    `json:"issuer"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type DebtCreateRequest struct {
	Title  string `json:"title"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

type DebtStatusRequest struct {
	Status string `json:"status"`
}

type DashboardSummary struct {
	TotalSales       int   `json:"totalSales"`
	ProductsLowStock int   `json:"productsLowStock"`
	TotalProducts    int   `json:"totalProducts"`
	TotalRevenue     int64 `json:"totalRevenue"`
	TodaySales       int   `json:"todaySales"`
	TotalProfit      int64 `json:"totalProfit"`
}

type PeriodStats struct {
	TotalSales    int64   `json:"totalSales"`
	TotalProfit   int64   `json:"totalProfit"`
	TotalOrders   int     `json:"totalOrders"`
	AvgOrderValue float64 `json:"avgOrderValue"`
	ProfitMargin  float64 `json:"profitMargin"`
	GrowthRate    float64 `json:"growthRate"`
}

type TrendPoint struct {
	Year   int    `json:"year"`
	Month  string `json:"month"`
	Sales  int64  `json:"sales"`
	Profit int64  `json:"profit"`
}

type TopProduct struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Sales     int    `json:"sales"`
	Revenue   int64  `json:"revenue"`
	Profit    int64  `json:"profit"`
}

type AnalyticsReport struct {
	Period       string       `json:"period"`
	From         time.Time    `json:"from"`
	To           time.Time    `json:"to"`
	MonthlyStats PeriodStats  `json:"monthlyStats"`
	SalesData    []TrendPoint `json:"salesData"`
	TopProducts  []TopProduct `json:"topProducts"`
}
