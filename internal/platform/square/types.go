package square

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in the smallest currency unit.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Decimal converts the amount to major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -2)
}

type searchOrdersRequest struct {
	LocationIDs   []string    `json:"location_ids"`
	Cursor        string      `json:"cursor,omitempty"`
	Limit         int         `json:"limit,omitempty"`
	Query         *orderQuery `json:"query,omitempty"`
	ReturnEntries bool        `json:"return_entries"`
}

type orderQuery struct {
	Filter orderFilter `json:"filter"`
	Sort   orderSort   `json:"sort"`
}

type orderFilter struct {
	StateFilter    stateFilter    `json:"state_filter"`
	DateTimeFilter dateTimeFilter `json:"date_time_filter"`
}

type stateFilter struct {
	States []string `json:"states"`
}

type dateTimeFilter struct {
	ClosedAt timeRange `json:"closed_at"`
}

type timeRange struct {
	StartAt string `json:"start_at"`
	EndAt   string `json:"end_at"`
}

type orderSort struct {
	SortField string `json:"sort_field"`
	SortOrder string `json:"sort_order"`
}

type searchOrdersResponse struct {
	Orders []Order `json:"orders"`
	Cursor string  `json:"cursor"`
}

// Order is the subset of a Square order we read.
type Order struct {
	ID           string        `json:"id"`
	LocationID   string        `json:"location_id"`
	State        string        `json:"state"`
	CreatedAt    string        `json:"created_at"`
	ClosedAt     string        `json:"closed_at"`
	LineItems    []LineItem    `json:"line_items"`
	Fulfillments []Fulfillment `json:"fulfillments"`
}

// LineItem is one catalog line of an order.
type LineItem struct {
	UID             string `json:"uid"`
	Name            string `json:"name"`
	VariationName   string `json:"variation_name"`
	Quantity        string `json:"quantity"`
	CatalogObjectID string `json:"catalog_object_id"`
	GrossSalesMoney Money  `json:"gross_sales_money"`
	TotalMoney      Money  `json:"total_money"`
}

// Units parses Square's decimal-string quantity, rounding to whole units.
func (l LineItem) Units() int {
	q, err := strconv.ParseFloat(strings.TrimSpace(l.Quantity), 64)
	if err != nil || q <= 0 {
		return 0
	}
	return int(q + 0.5)
}

// Fulfillment carries the pickup recipient, when one was captured.
type Fulfillment struct {
	Type          string         `json:"type"`
	PickupDetails *PickupDetails `json:"pickup_details,omitempty"`
}

// PickupDetails wraps the recipient.
type PickupDetails struct {
	Recipient Recipient `json:"recipient"`
}

// Recipient is the customer named on a fulfillment.
type Recipient struct {
	DisplayName  string `json:"display_name"`
	EmailAddress string `json:"email_address"`
}

// CatalogObject is an item or item variation.
type CatalogObject struct {
	Type              string             `json:"type"`
	ID                string             `json:"id"`
	IsDeleted         bool               `json:"is_deleted"`
	ItemData          *ItemData          `json:"item_data,omitempty"`
	ItemVariationData *ItemVariationData `json:"item_variation_data,omitempty"`
}

// ItemData is the payload of an ITEM object.
type ItemData struct {
	Name       string          `json:"name"`
	Variations []CatalogObject `json:"variations"`
}

// ItemVariationData is the payload of an ITEM_VARIATION object.
type ItemVariationData struct {
	ItemID     string `json:"item_id"`
	Name       string `json:"name"`
	PriceMoney *Money `json:"price_money,omitempty"`
}

type catalogObjectResponse struct {
	Object CatalogObject `json:"object"`
}

// Location is a Square business location.
type Location struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Timezone string `json:"timezone"`
}

type locationResponse struct {
	Location Location `json:"location"`
}
