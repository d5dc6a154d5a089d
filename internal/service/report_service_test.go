package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedSale records one sale of quantity units worth amount on day.
func seedSale(t *testing.T, r *Recorder, p models.Platform, id string, productID int64, day string, quantity int, amount int64) {
	t.Helper()
	_, err := r.RecordSale(context.Background(), models.SaleRecord{
		ProductID:      productID,
		Quantity:       quantity,
		Source:         models.LiveSource(p),
		SourceRecordID: id,
		GrossAmount:    decimal.NewFromInt(amount),
		Currency:       "USD",
		EventDate:      datePtr(day),
	})
	require.NoError(t, err)
}

func TestGetDailySales(t *testing.T) {
	mem := store.NewMemoryStore()
	r := NewRecorder(mem, nil, time.UTC)
	seedSale(t, r, models.PlatformWooCommerce, "w1", 1, "2025-03-10", 2, 40)
	seedSale(t, r, models.PlatformEventbrite, "e1", 1, "2025-03-10", 1, 20)
	seedSale(t, r, models.PlatformSquare, "s1", 2, "2025-03-11", 3, 30)

	daily, err := NewReportService(mem).GetDailySales(context.Background(), date("2025-03-10"), date("2025-03-11"))
	require.NoError(t, err)

	agg := daily["2025-03-10"][1]
	require.NotNil(t, agg)
	assert.Equal(t, 3, agg.Quantity)
	assert.Equal(t, 2, agg.BySource[models.PlatformWooCommerce])
	assert.Equal(t, 1, agg.BySource[models.PlatformEventbrite])
	assert.Len(t, agg.Orders, 2)
	assert.True(t, agg.Revenue().Equal(decimal.NewFromInt(60)))

	assert.Equal(t, 3, daily["2025-03-11"][2].Quantity)
}

func TestGetSummaryByPeriod(t *testing.T) {
	mem := store.NewMemoryStore()
	r := NewRecorder(mem, nil, time.UTC)
	seedSale(t, r, models.PlatformWooCommerce, "w1", 1, "2025-03-10", 2, 40)
	seedSale(t, r, models.PlatformSquare, "s1", 2, "2025-03-11", 3, 30)
	seedSale(t, r, models.PlatformSquare, "s2", 2, "2025-04-01", 1, 10)

	summary, err := NewReportService(mem).GetSummaryByPeriod(context.Background(), date("2025-03-01"), date("2025-03-31"))
	require.NoError(t, err)
	assert.Equal(t, 5, summary.TotalSales)
	assert.Equal(t, 2, summary.BySource[models.PlatformWooCommerce])
	assert.Equal(t, 3, summary.BySource[models.PlatformSquare])
	assert.True(t, summary.TotalRevenue.Equal(decimal.NewFromInt(70)))

	_, err = NewReportService(mem).GetSummaryByPeriod(context.Background(), date("2025-03-31"), date("2025-03-01"))
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestGetProductSummary_ZeroFills(t *testing.T) {
	mem := store.NewMemoryStore()
	r := NewRecorder(mem, nil, time.UTC)
	seedSale(t, r, models.PlatformWooCommerce, "w1", 1, "2025-03-10", 2, 40)
	seedSale(t, r, models.PlatformWooCommerce, "w2", 1, "2025-03-12", 1, 20)
	seedSale(t, r, models.PlatformSquare, "s1", 2, "2025-03-11", 5, 50)

	series, err := NewReportService(mem).GetProductSummary(context.Background(), date("2025-03-10"), date("2025-03-12"))
	require.NoError(t, err)
	require.Len(t, series, 2)

	assert.Equal(t, int64(2), series[0].ProductID, "largest total first")
	assert.Equal(t, 5, series[0].Total)
	assert.Equal(t, []models.DatePoint{
		{Date: "2025-03-10", Quantity: 2},
		{Date: "2025-03-11", Quantity: 0},
		{Date: "2025-03-12", Quantity: 1},
	}, series[1].Points)
}

func TestComparisonDate(t *testing.T) {
	d := date("2025-03-10")

	prev, err := ComparisonDate(d, PreviousDay)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-09", prev.Format(models.DateLayout))

	prev, err = ComparisonDate(d, PreviousWeek)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-03", prev.Format(models.DateLayout))

	prev, err = ComparisonDate(d, PreviousMonth)
	require.NoError(t, err)
	assert.Equal(t, "2025-02-10", prev.Format(models.DateLayout))

	_, err = ComparisonDate(d, "previous_year")
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestComparePeriods(t *testing.T) {
	mem := store.NewMemoryStore()
	r := NewRecorder(mem, nil, time.UTC)
	seedSale(t, r, models.PlatformWooCommerce, "c1", 1, "2025-03-10", 3, 60)
	seedSale(t, r, models.PlatformSquare, "c2", 2, "2025-03-10", 2, 40)
	seedSale(t, r, models.PlatformWooCommerce, "p1", 1, "2025-03-03", 2, 40)

	cmp, err := NewReportService(mem).ComparePeriods(context.Background(), date("2025-03-10"), PreviousWeek)
	require.NoError(t, err)

	assert.Equal(t, "2025-03-03", cmp.Previous.Date)
	assert.Equal(t, []float64{5, 100, 2}, cmp.CurrentData)
	assert.Equal(t, []float64{2, 40, 1}, cmp.ComparisonData)
	assert.Equal(t, []string{"Mar 10, 2025", "Mar 3, 2025"}, cmp.Labels)
}
