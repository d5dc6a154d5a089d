// Package woocommerce adapts the WooCommerce REST API (wc/v3) to the
// platform.Adapter contract. Orders are paginated by numeric offset and each
// line item becomes one sale record.
package woocommerce

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/platform"
	"sales-reconciler/internal/timeparse"
	"sales-reconciler/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const apiPrefix = "/wp-json/wc/v3"

// Config holds the WooCommerce credentials and item meta conventions.
type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	// Statuses filters listed orders; empty means completed+processing.
	Statuses []string
	// DateMetaKeys and TimeMetaKeys name the item meta carrying the
	// occurrence date/time, in lookup order.
	DateMetaKeys []string
	TimeMetaKeys []string
	Location     *time.Location
	Timeout      time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
}

// Adapter is the WooCommerce platform adapter.
type Adapter struct {
	cfg       Config
	transport *platform.Transport
	logger    *zap.Logger
}

// NewAdapter creates a WooCommerce adapter.
func NewAdapter(cfg Config) *Adapter {
	if len(cfg.Statuses) == 0 {
		cfg.Statuses = []string{"completed", "processing"}
	}
	if len(cfg.DateMetaKeys) == 0 {
		cfg.DateMetaKeys = []string{"_event_date", "event_date", "Event Date", "Date"}
	}
	if len(cfg.TimeMetaKeys) == 0 {
		cfg.TimeMetaKeys = []string{"_event_time", "event_time", "Event Time", "Time"}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	a := &Adapter{cfg: cfg, logger: util.GetLogger()}
	a.transport = platform.NewTransport(platform.TransportConfig{
		Platform:   models.PlatformWooCommerce,
		BaseURL:    strings.TrimRight(cfg.BaseURL, "/") + apiPrefix,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Authorize: func(r *http.Request) {
			r.SetBasicAuth(cfg.ConsumerKey, cfg.ConsumerSecret)
		},
	})
	return a
}

// Platform implements platform.Adapter
func (a *Adapter) Platform() models.Platform { return models.PlatformWooCommerce }

// CursorKind implements platform.Adapter
func (a *Adapter) CursorKind() models.CursorKind { return models.CursorOffset }

// Configured implements platform.Adapter
func (a *Adapter) Configured() bool {
	return a.cfg.BaseURL != "" && a.cfg.ConsumerKey != "" && a.cfg.ConsumerSecret != ""
}

// ListSales lists orders created in [start, end] (local days) from the
// cursor offset, oldest first.
func (a *Adapter) ListSales(ctx context.Context, start, end time.Time, cursor models.Cursor, pageSize int) (*platform.Page, error) {
	if err := cursor.Validate(models.CursorOffset); err != nil {
		return nil, err
	}
	if pageSize <= 0 || pageSize > 100 {
		return nil, models.Validationf("woocommerce page size %d out of range", pageSize)
	}

	after, before := a.dayBounds(start, end)
	query := url.Values{}
	query.Set("after", after.Format(time.RFC3339))
	query.Set("before", before.Format(time.RFC3339))
	query.Set("per_page", strconv.Itoa(pageSize))
	query.Set("offset", strconv.Itoa(cursor.Offset))
	query.Set("status", strings.Join(a.cfg.Statuses, ","))
	query.Set("orderby", "date")
	query.Set("order", "asc")

	var orders []Order
	header, err := a.transport.Do(ctx, "list_orders", http.MethodGet, "/orders", query, nil, &orders)
	if err != nil {
		return nil, err
	}

	total, _ := strconv.Atoi(header.Get("X-WP-Total"))
	page := &platform.Page{Total: total, Fetched: len(orders)}
	for i := range orders {
		page.Records = append(page.Records, a.normalizeOrder(&orders[i])...)
	}

	nextOffset := cursor.Offset + len(orders)
	page.HasMore = len(orders) >= pageSize && (total == 0 || nextOffset < total)
	if page.HasMore {
		page.Next = &models.Cursor{Kind: models.CursorOffset, Offset: nextOffset}
	}
	return page, nil
}

// dayBounds converts date-only bounds to local midnight instants.
func (a *Adapter) dayBounds(start, end time.Time) (time.Time, time.Time) {
	loc := a.cfg.Location
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	to := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1).Add(-time.Second)
	return from, to
}

// normalizeOrder turns every line item into a sale record. The occurrence
// date comes from the item's meta, never from the order header.
func (a *Adapter) normalizeOrder(o *Order) []models.SaleRecord {
	saleDate := a.purchaseDate(o.DateCreated)
	records := make([]models.SaleRecord, 0, len(o.LineItems))
	for _, item := range o.LineItems {
		if item.Quantity <= 0 {
			continue
		}
		gross, err := decimal.NewFromString(item.Total)
		if err != nil {
			gross = decimal.Zero
		}

		rec := models.SaleRecord{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			Source:         models.LiveSource(models.PlatformWooCommerce),
			Platform:       models.PlatformWooCommerce,
			SourceRecordID: fmt.Sprintf("%d-%d", o.ID, item.ID),
			CustomerName:   o.Billing.FullName(),
			CustomerEmail:  strings.ToLower(o.Billing.Email),
			GrossAmount:    gross,
			Currency:       o.Currency,
			SaleDate:       saleDate,
			Status:         o.Status,
		}

		date, clock := a.itemOccurrence(item)
		if !date.IsZero() {
			rec.EventDate = &date
			rec.EventTime = clock
		} else {
			a.logger.Debug("Line item has no occurrence date",
				zap.Int64("order_id", o.ID),
				zap.Int64("item_id", item.ID))
		}
		records = append(records, rec)
	}
	return records
}

// purchaseDate parses date_created, which WooCommerce reports in the store's
// local time without an offset.
func (a *Adapter) purchaseDate(created string) time.Time {
	t, err := time.ParseInLocation("2006-01-02T15:04:05", created, a.cfg.Location)
	if err != nil {
		t = time.Now().In(a.cfg.Location)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// itemOccurrence reads the occurrence date and time from item meta. A date
// value carrying a time ("June 1, 2025 7:00 PM") supplies both.
func (a *Adapter) itemOccurrence(item LineItem) (time.Time, string) {
	dateValue := metaValue(item.MetaData, a.cfg.DateMetaKeys)
	if dateValue == "" {
		return time.Time{}, ""
	}

	date, err := timeparse.ParseDate(dateValue)
	if err != nil {
		// the value may carry a trailing time token
		if clock, ok := timeparse.ParseTimeToken(dateValue); ok {
			if d, err2 := timeparse.ParseDate(stripTime(dateValue)); err2 == nil {
				return d, clock
			}
		}
		a.logger.Warn("Unparseable occurrence date in item meta",
			zap.Int64("item_id", item.ID),
			zap.String("value", dateValue))
		return time.Time{}, ""
	}

	clock := ""
	if raw := metaValue(item.MetaData, a.cfg.TimeMetaKeys); raw != "" {
		if t, err := timeparse.NormalizeTime(raw); err == nil {
			clock = t
		}
	}
	return date, clock
}

// stripTime drops everything from the first time-looking token onwards.
func stripTime(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		if strings.Contains(f, ":") || strings.HasSuffix(strings.ToLower(f), "am") || strings.HasSuffix(strings.ToLower(f), "pm") {
			return strings.Join(fields[:i], " ")
		}
	}
	return s
}

func metaValue(meta []MetaData, keys []string) string {
	for _, key := range keys {
		for _, m := range meta {
			if strings.EqualFold(m.Key, key) || strings.EqualFold(m.DisplayKey, key) {
				if v := m.StringValue(); v != "" {
					return v
				}
				if v := rawString(m.DisplayValue); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

// GetEntity looks up a product by id.
func (a *Adapter) GetEntity(ctx context.Context, id string) (*platform.Entity, error) {
	productID, err := strconv.ParseInt(id, 10, 64)
	if err != nil || productID <= 0 {
		return nil, models.Validationf("invalid woocommerce product id %q", id)
	}

	var product Product
	if _, err := a.transport.Do(ctx, "get_product", http.MethodGet, fmt.Sprintf("/products/%d", productID), nil, nil, &product); err != nil {
		return nil, err
	}

	return &platform.Entity{
		ID:     strconv.FormatInt(product.ID, 10),
		Kind:   "product",
		Name:   product.Name,
		Status: product.Status,
		Attributes: map[string]string{
			"type":  product.Type,
			"sku":   product.SKU,
			"price": product.Price,
		},
	}, nil
}

// TestConnection lists a single product to verify the credentials.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if !a.Configured() {
		return models.ErrConfigIncomplete
	}
	query := url.Values{"per_page": []string{"1"}}
	_, err := a.transport.Do(ctx, "test_connection", http.MethodGet, "/products", query, nil, nil)
	return err
}
