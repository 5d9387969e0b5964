package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"salesdesk/backend/internal/domain"
	"salesdesk/backend/internal/report"
)

const (
	trendMonths     = 6
	topProductLimit = 5
)

// Dashboard returns the headline counters over the whole ledger.
func (s *Service) Dashboard(ctx context.Context) (domain.DashboardSummary, error) {
	now := s.now().In(s.location)
	y, m, d := now.Date()
	todayStart := time.Date(y, m, d, 0, 0, 0, 0, s.location)

	var (
		sales    []domain.Sale
		products int
		lowStock []domain.Product
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sales, err = s.repo.ListSalesBetween(gctx, time.Time{}, now.Add(time.Nanosecond))
		return err
	})
	g.Go(func() error {
		var err error
		products, err = s.repo.CountProducts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		lowStock, err = s.repo.ListLowStockProducts(gctx, s.lowStock)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.DashboardSummary{}, err
	}
	return report.Dashboard(sales, todayStart, products, len(lowStock)), nil
}

// AnalyticsReport compares the window containing now with the one before it
// and adds a six month trend and the top products of the current window.
func (s *Service) AnalyticsReport(ctx context.Context, period string) (domain.AnalyticsReport, error) {
	period = report.NormalizePeriod(period)
	now := s.now().In(s.location)
	current, previous := report.PeriodWindows(period, now)
	trendStart := report.TrendStart(now, trendMonths)

	var curSales, prevSales, trendSales []domain.Sale
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		curSales, err = s.repo.ListSalesBetween(gctx, current.Start, current.End)
		return err
	})
	g.Go(func() error {
		var err error
		prevSales, err = s.repo.ListSalesBetween(gctx, previous.Start, previous.End)
		return err
	})
	g.Go(func() error {
		var err error
		trendSales, err = s.repo.ListSalesBetween(gctx, trendStart, trendStart.AddDate(0, trendMonths, 0))
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.AnalyticsReport{}, err
	}

	return domain.AnalyticsReport{
		Period:       period,
		From:         current.Start,
		To:           current.End,
		MonthlyStats: report.BuildRollup(report.Summarize(curSales, current), report.Summarize(prevSales, previous)),
		SalesData:    report.MonthlyTrend(trendSales, now, trendMonths),
		TopProducts:  report.TopProducts(curSales, current, topProductLimit),
	}, nil
}
