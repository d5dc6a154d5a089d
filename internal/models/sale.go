package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the layout of every date key in the system.
const DateLayout = "2006-01-02"

// SaleRecord is a normalized, source-agnostic sale. Records are immutable
// once stored.
type SaleRecord struct {
	ID             int64           `db:"id" json:"id"`
	ProductID      int64           `db:"product_id" json:"product_id"`
	Quantity       int             `db:"quantity" json:"quantity"`
	Source         Source          `db:"source" json:"source"`
	Platform       Platform        `db:"platform" json:"-"`
	SourceRecordID string          `db:"source_record_id" json:"source_record_id"`
	CustomerName   string          `db:"customer_name" json:"customer_name"`
	CustomerEmail  string          `db:"customer_email" json:"customer_email"`
	GrossAmount    decimal.Decimal `db:"gross_amount" json:"gross_amount"`
	Currency       string          `db:"currency" json:"currency"`
	EventDate      *time.Time      `db:"event_date" json:"event_date,omitempty"`
	EventTime      string          `db:"event_time" json:"event_time,omitempty"`
	SaleDate       time.Time       `db:"sale_date" json:"sale_date"`
	Status         string          `db:"status" json:"status,omitempty"`
	RecordedAt     time.Time       `db:"recorded_at" json:"recorded_at"`
}

// DedupKey returns the at-most-once key of the record. Live and import tags
// of one platform share a key so a backfill never re-counts a live sale.
func (r *SaleRecord) DedupKey() string {
	return string(r.Source.Platform()) + ":" + r.SourceRecordID
}

// EventDateKey returns the occurrence date as a date key, or "".
func (r *SaleRecord) EventDateKey() string {
	if r.EventDate == nil {
		return ""
	}
	return r.EventDate.Format(DateLayout)
}

// RecordResult is the outcome of recording one sale.
type RecordResult string

const (
	RecordResultRecorded RecordResult = "recorded"
	RecordResultSkipped  RecordResult = "skipped"
)

// DailyCount is one row of the daily_sales aggregate table.
type DailyCount struct {
	SaleDate  time.Time `db:"sale_date" json:"sale_date"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Platform  Platform  `db:"platform" json:"platform"`
	Quantity  int       `db:"quantity" json:"quantity"`
}

// OrderRef attributes part of a daily aggregate to one recorded sale.
type OrderRef struct {
	Source         Source          `json:"source"`
	SourceRecordID string          `json:"source_record_id"`
	Quantity       int             `json:"quantity"`
	GrossAmount    decimal.Decimal `json:"gross_amount"`
	Currency       string          `json:"currency"`
	CustomerName   string          `json:"customer_name"`
	EventTime      string          `json:"event_time,omitempty"`
}

// DailySalesAggregate holds the counters of one (date, product) cell.
type DailySalesAggregate struct {
	Date      string           `json:"date"`
	ProductID int64            `json:"product_id"`
	Quantity  int              `json:"quantity"`
	BySource  map[Platform]int `json:"by_source"`
	Orders    []OrderRef       `json:"orders"`
}

// Revenue sums the gross amount of the constituent orders.
func (a *DailySalesAggregate) Revenue() decimal.Decimal {
	total := decimal.Zero
	for _, o := range a.Orders {
		total = total.Add(o.GrossAmount)
	}
	return total
}

// DailySales maps date -> product id -> aggregate.
type DailySales map[string]map[int64]*DailySalesAggregate

// PeriodSummary is the headline total for a date range.
type PeriodSummary struct {
	StartDate    string           `json:"start_date"`
	EndDate      string           `json:"end_date"`
	TotalSales   int              `json:"total_sales"`
	BySource     map[Platform]int `json:"by_source"`
	TotalRevenue decimal.Decimal  `json:"total_revenue"`
}

// DatePoint is one point of a per-product chart series.
type DatePoint struct {
	Date     string `json:"date"`
	Quantity int    `json:"quantity"`
}

// ProductSeries is the chart series of one product.
type ProductSeries struct {
	ProductID int64       `json:"product_id"`
	Total     int         `json:"total"`
	Points    []DatePoint `json:"points"`
}

// Attendee is one person expected at an occurrence.
type Attendee struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Status    string `json:"status"`
	Quantity  int    `json:"quantity"`
	ProductID int64  `json:"product_id,omitempty"`
	EventTime string `json:"event_time,omitempty"`
	Source    string `json:"source"`
	OrderRef  string `json:"order_ref"`
}

// EventSummary is a normalized ticketing event listing entry.
type EventSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	StartDate string `json:"start_date"`
	StartTime string `json:"start_time"`
	URL       string `json:"url,omitempty"`
}
