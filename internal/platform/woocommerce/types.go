package woocommerce

import (
	"encoding/json"
	"strings"
)

// Order is the subset of a WooCommerce REST order we read.
type Order struct {
	ID          int64      `json:"id"`
	Status      string     `json:"status"`
	Currency    string     `json:"currency"`
	DateCreated string     `json:"date_created"`
	Billing     Billing    `json:"billing"`
	LineItems   []LineItem `json:"line_items"`
}

// Billing is the order's billing identity.
type Billing struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// FullName joins first and last name.
func (b Billing) FullName() string {
	return strings.TrimSpace(b.FirstName + " " + b.LastName)
}

// LineItem is one product line of an order.
type LineItem struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	ProductID   int64      `json:"product_id"`
	VariationID int64      `json:"variation_id"`
	Quantity    int        `json:"quantity"`
	Total       string     `json:"total"`
	MetaData    []MetaData `json:"meta_data"`
}

// MetaData is a custom field attached to a line item. Values may be any
// JSON type.
type MetaData struct {
	ID           int64           `json:"id"`
	Key          string          `json:"key"`
	Value        json.RawMessage `json:"value"`
	DisplayKey   string          `json:"display_key"`
	DisplayValue json.RawMessage `json:"display_value"`
}

// StringValue returns the value as text; non-string JSON is returned raw.
func (m MetaData) StringValue() string {
	return rawString(m.Value)
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

// Product is the subset of a WooCommerce product we read.
type Product struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Type   string `json:"type"`
	SKU    string `json:"sku"`
	Price  string `json:"price"`
}
