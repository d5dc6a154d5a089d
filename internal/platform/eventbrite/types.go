package eventbrite

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Pagination is the envelope Eventbrite attaches to every list response.
type Pagination struct {
	ObjectCount  int  `json:"object_count"`
	PageNumber   int  `json:"page_number"`
	PageSize     int  `json:"page_size"`
	PageCount    int  `json:"page_count"`
	HasMoreItems bool `json:"has_more_items"`
}

// Text is Eventbrite's multi-part text field.
type Text struct {
	Text string `json:"text"`
	HTML string `json:"html"`
}

// DateTime is an event boundary in local and UTC time.
type DateTime struct {
	Timezone string `json:"timezone"`
	Local    string `json:"local"`
	UTC      string `json:"utc"`
}

// LocalParts splits the local start into a date key and "15:04" time.
func (d DateTime) LocalParts() (string, string, bool) {
	t, err := time.Parse("2006-01-02T15:04:05", d.Local)
	if err != nil {
		return "", "", false
	}
	return t.Format("2006-01-02"), t.Format("15:04"), true
}

// Event is an Eventbrite event.
type Event struct {
	ID            string        `json:"id"`
	Name          Text          `json:"name"`
	Status        string        `json:"status"`
	URL           string        `json:"url"`
	Start         DateTime      `json:"start"`
	End           DateTime      `json:"end"`
	TicketClasses []TicketClass `json:"ticket_classes,omitempty"`
}

// TicketClass is a ticket type nested under an event.
type TicketClass struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Free          bool   `json:"free"`
	QuantityTotal int    `json:"quantity_total"`
	QuantitySold  int    `json:"quantity_sold"`
	Cost          *Money `json:"cost,omitempty"`
	OnSaleStatus  string `json:"on_sale_status"`
}

// Money is an Eventbrite currency amount.
type Money struct {
	Currency   string `json:"currency"`
	Value      int64  `json:"value"`
	MajorValue string `json:"major_value"`
	Display    string `json:"display"`
}

// Amount returns the amount in major units.
func (m Money) Amount() decimal.Decimal {
	if m.MajorValue != "" {
		if d, err := decimal.NewFromString(m.MajorValue); err == nil {
			return d
		}
	}
	return decimal.New(m.Value, -2)
}

// Profile is the attendee identity.
type Profile struct {
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// DisplayName prefers the full name field.
func (p Profile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Costs groups attendee price components.
type Costs struct {
	Gross Money `json:"gross"`
}

// Attendee is one ticket holder. With expand=event the event is inlined.
type Attendee struct {
	ID              string  `json:"id"`
	Created         string  `json:"created"`
	Changed         string  `json:"changed"`
	Quantity        int     `json:"quantity"`
	Status          string  `json:"status"`
	Cancelled       bool    `json:"cancelled"`
	Refunded        bool    `json:"refunded"`
	EventID         string  `json:"event_id"`
	OrderID         string  `json:"order_id"`
	TicketClassID   string  `json:"ticket_class_id"`
	TicketClassName string  `json:"ticket_class_name"`
	Profile         Profile `json:"profile"`
	Costs           Costs   `json:"costs"`
	Event           *Event  `json:"event,omitempty"`
}

type attendeesResponse struct {
	Pagination Pagination `json:"pagination"`
	Attendees  []Attendee `json:"attendees"`
}

type eventsResponse struct {
	Pagination Pagination `json:"pagination"`
	Events     []Event    `json:"events"`
}

// User is the authenticated account returned by /users/me/.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
