// Package square adapts the Square Orders and Catalog APIs to the
// platform.Adapter contract. Orders are paginated with Square's opaque
// cursor; occurrence times are parsed from line-item titles.
package square

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/platform"
	"sales-reconciler/internal/timeparse"
	"sales-reconciler/internal/util"

	"go.uber.org/zap"
)

const (
	productionURL     = "https://connect.squareup.com"
	sandboxURL        = "https://connect.squareupsandbox.com"
	defaultAPIVersion = "2024-01-18"
	walkUpCustomer    = "Walk-up"
)

// Config holds the Square credentials.
type Config struct {
	// Environment is "production" or "sandbox"; BaseURL overrides it.
	Environment string
	BaseURL     string
	AccessToken string
	LocationID  string
	APIVersion  string
	Location    *time.Location
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
}

// Adapter is the Square platform adapter.
type Adapter struct {
	cfg       Config
	transport *platform.Transport
	resolver  platform.ProductResolver
	logger    *zap.Logger
}

// NewAdapter creates a Square adapter. The resolver maps catalog objects to
// local products.
func NewAdapter(cfg Config, resolver platform.ProductResolver) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = productionURL
		if strings.EqualFold(cfg.Environment, "sandbox") {
			cfg.BaseURL = sandboxURL
		}
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	return &Adapter{
		cfg:      cfg,
		resolver: resolver,
		logger:   util.GetLogger(),
		transport: platform.NewTransport(platform.TransportConfig{
			Platform:   models.PlatformSquare,
			BaseURL:    cfg.BaseURL,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
			HTTPClient: platform.BearerClient(cfg.AccessToken, cfg.Timeout),
			Headers:    map[string]string{"Square-Version": cfg.APIVersion},
		}),
	}
}

// Platform implements platform.Adapter
func (a *Adapter) Platform() models.Platform { return models.PlatformSquare }

// CursorKind implements platform.Adapter
func (a *Adapter) CursorKind() models.CursorKind { return models.CursorToken }

// Configured implements platform.Adapter
func (a *Adapter) Configured() bool {
	return a.cfg.AccessToken != "" && a.cfg.LocationID != ""
}

// ListSales searches completed orders closed in [start, end], oldest first.
func (a *Adapter) ListSales(ctx context.Context, start, end time.Time, cursor models.Cursor, pageSize int) (*platform.Page, error) {
	if err := cursor.Validate(models.CursorToken); err != nil {
		return nil, err
	}
	if pageSize <= 0 || pageSize > 1000 {
		return nil, models.Validationf("square page size %d out of range", pageSize)
	}

	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, a.cfg.Location)
	to := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, a.cfg.Location).AddDate(0, 0, 1)

	req := searchOrdersRequest{
		LocationIDs: []string{a.cfg.LocationID},
		Cursor:      cursor.Token,
		Limit:       pageSize,
		Query: &orderQuery{
			Filter: orderFilter{
				StateFilter: stateFilter{States: []string{"COMPLETED"}},
				DateTimeFilter: dateTimeFilter{ClosedAt: timeRange{
					StartAt: from.Format(time.RFC3339),
					EndAt:   to.Format(time.RFC3339),
				}},
			},
			Sort: orderSort{SortField: "CLOSED_AT", SortOrder: "ASC"},
		},
	}

	var resp searchOrdersResponse
	if _, err := a.transport.Do(ctx, "search_orders", http.MethodPost, "/v2/orders/search", nil, req, &resp); err != nil {
		return nil, err
	}

	page := &platform.Page{Fetched: len(resp.Orders), HasMore: resp.Cursor != ""}
	if page.HasMore {
		page.Next = &models.Cursor{Kind: models.CursorToken, Token: resp.Cursor}
	}
	for i := range resp.Orders {
		page.Records = append(page.Records, a.normalizeOrder(ctx, &resp.Orders[i])...)
	}
	return page, nil
}

func (a *Adapter) normalizeOrder(ctx context.Context, o *Order) []models.SaleRecord {
	closed, err := time.Parse(time.RFC3339Nano, o.ClosedAt)
	if err != nil {
		closed, err = time.Parse(time.RFC3339Nano, o.CreatedAt)
	}
	if err != nil {
		a.logger.Warn("Order has no usable timestamp", zap.String("order_id", o.ID))
		return nil
	}
	local := closed.In(a.cfg.Location)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	dateKey := day.Format(models.DateLayout)
	name, email := recipient(o)

	records := make([]models.SaleRecord, 0, len(o.LineItems))
	for _, item := range o.LineItems {
		units := item.Units()
		if units == 0 {
			continue
		}

		clock, ok := timeparse.ParseTimeToken(item.Name)
		if !ok {
			clock, _ = timeparse.ParseTimeToken(item.VariationName)
		}

		eventDate := day
		rec := models.SaleRecord{
			Quantity:       units,
			Source:         models.LiveSource(models.PlatformSquare),
			Platform:       models.PlatformSquare,
			SourceRecordID: o.ID + "-" + item.UID,
			CustomerName:   name,
			CustomerEmail:  email,
			GrossAmount:    item.GrossSalesMoney.Decimal(),
			Currency:       item.GrossSalesMoney.Currency,
			EventDate:      &eventDate,
			EventTime:      clock,
			SaleDate:       day,
			Status:         o.State,
		}
		if a.resolver != nil && item.CatalogObjectID != "" {
			if productID, found := a.resolver.FindProductIDForCatalogItem(ctx, item.CatalogObjectID, dateKey, clock); found {
				rec.ProductID = productID
			}
		}
		records = append(records, rec)
	}
	return records
}

func recipient(o *Order) (string, string) {
	for _, f := range o.Fulfillments {
		if f.PickupDetails == nil {
			continue
		}
		r := f.PickupDetails.Recipient
		if r.DisplayName != "" || r.EmailAddress != "" {
			return r.DisplayName, strings.ToLower(r.EmailAddress)
		}
	}
	return walkUpCustomer, ""
}

// GetEntity retrieves a catalog item or variation.
func (a *Adapter) GetEntity(ctx context.Context, id string) (*platform.Entity, error) {
	id = strings.TrimPrefix(id, "/")
	if id == "" || strings.Contains(id, "/") {
		return nil, models.Validationf("invalid square catalog id %q", id)
	}

	var resp catalogObjectResponse
	path := fmt.Sprintf("/v2/catalog/object/%s", url.PathEscape(id))
	if _, err := a.transport.Do(ctx, "get_catalog_object", http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Object.IsDeleted {
		return nil, fmt.Errorf("square catalog object %s deleted: %w", id, models.ErrNotFound)
	}
	entity := catalogEntity(resp.Object)
	return &entity, nil
}

func catalogEntity(obj CatalogObject) platform.Entity {
	entity := platform.Entity{
		ID:         obj.ID,
		Kind:       strings.ToLower(obj.Type),
		Attributes: map[string]string{},
	}
	switch {
	case obj.ItemData != nil:
		entity.Name = obj.ItemData.Name
		for _, v := range obj.ItemData.Variations {
			entity.Children = append(entity.Children, catalogEntity(v))
		}
	case obj.ItemVariationData != nil:
		entity.Name = obj.ItemVariationData.Name
		entity.Attributes["item_id"] = obj.ItemVariationData.ItemID
		if p := obj.ItemVariationData.PriceMoney; p != nil {
			entity.Attributes["price"] = p.Decimal().StringFixed(2)
			entity.Attributes["currency"] = p.Currency
		}
	}
	if clock, ok := timeparse.ParseTimeToken(entity.Name); ok {
		entity.Attributes["time"] = clock
	}
	return entity
}

// TestConnection retrieves the configured location.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if !a.Configured() {
		return models.ErrConfigIncomplete
	}
	var resp locationResponse
	path := fmt.Sprintf("/v2/locations/%s", url.PathEscape(a.cfg.LocationID))
	if _, err := a.transport.Do(ctx, "test_connection", http.MethodGet, path, nil, nil, &resp); err != nil {
		return err
	}
	if resp.Location.Status != "" && resp.Location.Status != "ACTIVE" {
		return &models.UpstreamError{
			Platform: models.PlatformSquare,
			Op:       "test_connection",
			Err:      fmt.Errorf("location %s is %s", resp.Location.ID, resp.Location.Status),
		}
	}
	return nil
}
