// Package report computes sales rollups from ledger entries. Every function is
// pure: callers supply the sales, the window and the current time.
package report

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"salesdesk/backend/internal/domain"
)

const (
	PeriodDay     = "day"
	PeriodWeek    = "week"
	PeriodMonth   = "month"
	PeriodQuarter = "quarter"
	PeriodYear    = "year"
)

// Window is the half-open range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

type Totals struct {
	Revenue int64
	Orders  int
	Profit  int64
}

// NormalizePeriod maps unknown or empty periods to month.
func NormalizePeriod(period string) string {
	switch p := strings.ToLower(strings.TrimSpace(period)); p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodQuarter, PeriodYear:
		return p
	default:
		return PeriodMonth
	}
}

// PeriodWindows returns the window containing now for the given period and
// the equal-length window right before it. Boundaries use now's location.
func PeriodWindows(period string, now time.Time) (current, previous Window) {
	y, m, d := now.Date()
	loc := now.Location()
	today := time.Date(y, m, d, 0, 0, 0, 0, loc)

	switch NormalizePeriod(period) {
	case PeriodDay:
		current = Window{Start: today, End: today.AddDate(0, 0, 1)}
		previous = Window{Start: today.AddDate(0, 0, -1), End: today}
	case PeriodWeek:
		start := today.AddDate(0, 0, -6)
		current = Window{Start: start, End: today.AddDate(0, 0, 1)}
		previous = Window{Start: start.AddDate(0, 0, -7), End: start}
	case PeriodQuarter:
		qm := time.Month((int(m)-1)/3*3 + 1)
		start := time.Date(y, qm, 1, 0, 0, 0, 0, loc)
		current = Window{Start: start, End: start.AddDate(0, 3, 0)}
		previous = Window{Start: start.AddDate(0, -3, 0), End: start}
	case PeriodYear:
		start := time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
		current = Window{Start: start, End: start.AddDate(1, 0, 0)}
		previous = Window{Start: start.AddDate(-1, 0, 0), End: start}
	default:
		start := time.Date(y, m, 1, 0, 0, 0, 0, loc)
		current = Window{Start: start, End: start.AddDate(0, 1, 0)}
		previous = Window{Start: start.AddDate(0, -1, 0), End: start}
	}
	return current, previous
}

// Summarize totals the sales whose creation time falls inside w.
func Summarize(sales []domain.Sale, w Window) Totals {
	var t Totals
	for _, sale := range sales {
		if !w.Contains(sale.CreatedAt) {
			continue
		}
		t.Revenue += sale.Total
		t.Orders++
		for _, item := range sale.Items {
			t.Profit += item.Profit()
		}
	}
	return t
}

// BuildRollup derives the ratio figures. Any zero denominator yields 0.
func BuildRollup(current, previous Totals) domain.PeriodStats {
	stats := domain.PeriodStats{
		TotalSales:  current.Revenue,
		TotalProfit: current.Profit,
		TotalOrders: current.Orders,
	}
	revenue := decimal.NewFromInt(current.Revenue)
	hundred := decimal.NewFromInt(100)

	if current.Orders > 0 {
		stats.AvgOrderValue = revenue.Div(decimal.NewFromInt(int64(current.Orders))).Round(2).InexactFloat64()
	}
	if current.Revenue != 0 {
		stats.ProfitMargin = decimal.NewFromInt(current.Profit).Mul(hundred).Div(revenue).Round(1).InexactFloat64()
	}
	if previous.Revenue != 0 {
		prev := decimal.NewFromInt(previous.Revenue)
		stats.GrowthRate = revenue.Sub(prev).Mul(hundred).Div(prev).Round(1).InexactFloat64()
	}
	return stats
}

// TrendStart is the first instant of the oldest month in a trend of the given
// length ending with now's month.
func TrendStart(now time.Time, months int) time.Time {
	y, m, _ := now.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, now.Location()).AddDate(0, -(months - 1), 0)
}

// MonthlyTrend buckets sales into the last months calendar months, oldest
// first. Months without sales are present with zero values.
func MonthlyTrend(sales []domain.Sale, now time.Time, months int) []domain.TrendPoint {
	if months <= 0 {
		return []domain.TrendPoint{}
	}
	start := TrendStart(now, months)
	points := make([]domain.TrendPoint, months)
	index := make(map[[2]int]int, months)
	for i := range points {
		at := start.AddDate(0, i, 0)
		points[i] = domain.TrendPoint{Year: at.Year(), Month: at.Month().String()[:3]}
		index[[2]int{at.Year(), int(at.Month())}] = i
	}

	for _, sale := range sales {
		at := sale.CreatedAt.In(now.Location())
		i, ok := index[[2]int{at.Year(), int(at.Month())}]
		if !ok {
			continue
		}
		points[i].Sales += sale.Total
		for _, item := range sale.Items {
			points[i].Profit += item.Profit()
		}
	}
	return points
}

// TopProducts ranks products sold inside w by sale-unit quantity, then
// revenue, then name. The name is the most recent snapshot seen.
func TopProducts(sales []domain.Sale, w Window, limit int) []domain.TopProduct {
	type agg struct {
		domain.TopProduct
		seen time.Time
	}
	byProduct := make(map[string]*agg)
	for _, sale := range sales {
		if !w.Contains(sale.CreatedAt) {
			continue
		}
		for _, item := range sale.Items {
			a, ok := byProduct[item.ProductID]
			if !ok {
				a = &agg{TopProduct: domain.TopProduct{ProductID: item.ProductID}}
				byProduct[item.ProductID] = a
			}
			a.Sales += item.Quantity
			a.Revenue += item.Subtotal
			a.Profit += item.Profit()
			if a.Name == "" || !sale.CreatedAt.Before(a.seen) {
				a.Name = item.ProductName
				a.seen = sale.CreatedAt
			}
		}
	}

	ranked := make([]domain.TopProduct, 0, len(byProduct))
	for _, a := range byProduct {
		ranked = append(ranked, a.TopProduct)
	}
	slices.SortFunc(ranked, func(a, b domain.TopProduct) int {
		if c := cmp.Compare(b.Sales, a.Sales); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Revenue, a.Revenue); c != 0 {
			return c
		}
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ProductID, b.ProductID)
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// Dashboard computes the headline counters. todayStart marks the beginning
// of the current day in the reporting time zone.
func Dashboard(sales []domain.Sale, todayStart time.Time, totalProducts, lowStock int) domain.DashboardSummary {
	summary := domain.DashboardSummary{
		TotalSales:       len(sales),
		TotalProducts:    totalProducts,
		ProductsLowStock: lowStock,
	}
	for _, sale := range sales {
		summary.TotalRevenue += sale.Total
		for _, item := range sale.Items {
			summary.TotalProfit += item.Profit()
		}
		if !sale.CreatedAt.Before(todayStart) {
			summary.TodaySales++
		}
	}
	return summary
}
