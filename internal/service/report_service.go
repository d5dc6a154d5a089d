package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxReportDays bounds the range of a single report query.
const maxReportDays = 731

// labelLayout formats comparison labels, e.g. "Mar 10, 2025".
const labelLayout = "Jan 2, 2006"

// ComparisonType selects the period a date is compared against.
type ComparisonType string

const (
	PreviousDay   ComparisonType = "previous_day"
	PreviousWeek  ComparisonType = "previous_week"
	PreviousMonth ComparisonType = "previous_month"
)

// PeriodStats is one side of a comparison.
type PeriodStats struct {
	Date           string          `json:"date"`
	Label          string          `json:"label"`
	TotalSales     int             `json:"total_sales"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	UniqueProducts int             `json:"unique_products"`
}

// Data returns the chart triple [sales, revenue, unique products].
func (p PeriodStats) Data() []float64 {
	return []float64{float64(p.TotalSales), p.TotalRevenue.InexactFloat64(), float64(p.UniqueProducts)}
}

// Comparison is a period-over-period view.
type Comparison struct {
	Type           ComparisonType `json:"comparison_type"`
	Current        PeriodStats    `json:"current"`
	Previous       PeriodStats    `json:"comparison"`
	Labels         []string       `json:"labels"`
	CurrentData    []float64      `json:"current_data"`
	ComparisonData []float64      `json:"comparison_data"`
}

// ReportService computes aggregates over the sales ledger.
type ReportService struct {
	repo   SalesRepository
	logger *zap.Logger
}

// NewReportService creates a new report service
func NewReportService(repo SalesRepository) *ReportService {
	return &ReportService{
		repo:   repo,
		logger: util.GetLogger(),
	}
}

// GetDailySales returns date -> product -> aggregate for [start, end].
func (s *ReportService) GetDailySales(ctx context.Context, start, end time.Time) (models.DailySales, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.GetDailySales")
	defer span.End()

	if err := validateRange(start, end); err != nil {
		return nil, err
	}

	counts, err := s.repo.ListDailyCounts(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily counts: %w", err)
	}
	sales, err := s.repo.ListSales(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}

	out := make(models.DailySales)
	cell := func(date string, productID int64) *models.DailySalesAggregate {
		byProduct, ok := out[date]
		if !ok {
			byProduct = make(map[int64]*models.DailySalesAggregate)
			out[date] = byProduct
		}
		agg, ok := byProduct[productID]
		if !ok {
			agg = &models.DailySalesAggregate{
				Date:      date,
				ProductID: productID,
				BySource:  make(map[models.Platform]int),
				Orders:    []models.OrderRef{},
			}
			byProduct[productID] = agg
		}
		return agg
	}

	for _, c := range counts {
		agg := cell(c.SaleDate.Format(models.DateLayout), c.ProductID)
		agg.Quantity += c.Quantity
		agg.BySource[c.Platform] += c.Quantity
	}
	for _, rec := range sales {
		agg := cell(rec.SaleDate.Format(models.DateLayout), rec.ProductID)
		agg.Orders = append(agg.Orders, models.OrderRef{
			Source:         rec.Source,
			SourceRecordID: rec.SourceRecordID,
			Quantity:       rec.Quantity,
			GrossAmount:    rec.GrossAmount,
			Currency:       rec.Currency,
			CustomerName:   rec.CustomerName,
			EventTime:      rec.EventTime,
		})
	}
	return out, nil
}

// GetSummaryByPeriod totals the range, split by source.
func (s *ReportService) GetSummaryByPeriod(ctx context.Context, start, end time.Time) (*models.PeriodSummary, error) {
	daily, err := s.GetDailySales(ctx, start, end)
	if err != nil {
		return nil, err
	}

	summary := &models.PeriodSummary{
		StartDate:    start.Format(models.DateLayout),
		EndDate:      end.Format(models.DateLayout),
		BySource:     make(map[models.Platform]int),
		TotalRevenue: decimal.Zero,
	}
	for _, byProduct := range daily {
		for _, agg := range byProduct {
			summary.TotalSales += agg.Quantity
			summary.TotalRevenue = summary.TotalRevenue.Add(agg.Revenue())
			for p, qty := range agg.BySource {
				summary.BySource[p] += qty
			}
		}
	}
	return summary, nil
}

// GetProductSummary returns one series per product with a point for every
// date in the range, zero-filled.
func (s *ReportService) GetProductSummary(ctx context.Context, start, end time.Time) ([]models.ProductSeries, error) {
	daily, err := s.GetDailySales(ctx, start, end)
	if err != nil {
		return nil, err
	}

	totals := make(map[int64]map[string]int)
	for date, byProduct := range daily {
		for productID, agg := range byProduct {
			if totals[productID] == nil {
				totals[productID] = make(map[string]int)
			}
			totals[productID][date] += agg.Quantity
		}
	}

	var dates []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(models.DateLayout))
	}

	out := make([]models.ProductSeries, 0, len(totals))
	for productID, byDate := range totals {
		series := models.ProductSeries{ProductID: productID, Points: make([]models.DatePoint, 0, len(dates))}
		for _, d := range dates {
			series.Points = append(series.Points, models.DatePoint{Date: d, Quantity: byDate[d]})
			series.Total += byDate[d]
		}
		out = append(out, series)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out, nil
}

// ComparisonDate shifts date back by the comparison period.
func ComparisonDate(date time.Time, kind ComparisonType) (time.Time, error) {
	switch kind {
	case PreviousDay:
		return date.AddDate(0, 0, -1), nil
	case PreviousWeek:
		return date.AddDate(0, 0, -7), nil
	case PreviousMonth:
		return date.AddDate(0, -1, 0), nil
	default:
		return time.Time{}, models.Validationf("unknown comparison type %q", kind)
	}
}

// ComparePeriods compares the sales of date with the shifted date.
func (s *ReportService) ComparePeriods(ctx context.Context, date time.Time, kind ComparisonType) (*Comparison, error) {
	prevDate, err := ComparisonDate(date, kind)
	if err != nil {
		return nil, err
	}

	current, err := s.periodStats(ctx, date)
	if err != nil {
		return nil, err
	}
	previous, err := s.periodStats(ctx, prevDate)
	if err != nil {
		return nil, err
	}

	return &Comparison{
		Type:           kind,
		Current:        current,
		Previous:       previous,
		Labels:         []string{current.Label, previous.Label},
		CurrentData:    current.Data(),
		ComparisonData: previous.Data(),
	}, nil
}

func (s *ReportService) periodStats(ctx context.Context, date time.Time) (PeriodStats, error) {
	daily, err := s.GetDailySales(ctx, date, date)
	if err != nil {
		return PeriodStats{}, err
	}

	stats := PeriodStats{
		Date:         date.Format(models.DateLayout),
		Label:        date.Format(labelLayout),
		TotalRevenue: decimal.Zero,
	}
	products := make(map[int64]struct{})
	for _, byProduct := range daily {
		for productID, agg := range byProduct {
			stats.TotalSales += agg.Quantity
			stats.TotalRevenue = stats.TotalRevenue.Add(agg.Revenue())
			if agg.Quantity > 0 {
				products[productID] = struct{}{}
			}
		}
	}
	stats.UniqueProducts = len(products)
	return stats, nil
}

func validateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return models.Validationf("start and end dates are required")
	}
	if end.Before(start) {
		return models.Validationf("end date %s before start date %s", end.Format(models.DateLayout), start.Format(models.DateLayout))
	}
	if end.Sub(start) > maxReportDays*24*time.Hour {
		return models.Validationf("range exceeds %d days", maxReportDays)
	}
	return nil
}
