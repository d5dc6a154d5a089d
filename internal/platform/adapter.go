// Package platform defines the contract every external platform adapter
// implements and the shared HTTP transport they are built on.
package platform

import (
	"context"
	"time"

	"sales-reconciler/internal/models"
)

// Adapter normalizes one platform's API into sale records.
type Adapter interface {
	Platform() models.Platform
	// CursorKind is the resume-token shape ListSales expects.
	CursorKind() models.CursorKind
	// Configured reports whether the credentials needed for API calls are set.
	Configured() bool
	// ListSales returns one page of normalized sales purchased in
	// [start, end], resuming at cursor. On exhaustion HasMore is false and
	// Next is nil.
	ListSales(ctx context.Context, start, end time.Time, cursor models.Cursor, pageSize int) (*Page, error)
	// GetEntity looks up one platform entity; a missing one yields
	// models.ErrNotFound.
	GetEntity(ctx context.Context, id string) (*Entity, error)
	// TestConnection performs a lightweight authenticated call.
	TestConnection(ctx context.Context) error
}

// Page is one slice of a paginated listing.
type Page struct {
	Records []models.SaleRecord
	Next    *models.Cursor
	HasMore bool
	// Total is the platform's estimate of upstream rows, 0 when unknown.
	Total int
	// Fetched counts upstream rows read for this page (orders, attendees).
	Fetched int
}

// Entity is a single platform object returned by GetEntity.
type Entity struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Name       string            `json:"name"`
	Status     string            `json:"status,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Children   []Entity          `json:"children,omitempty"`
}

// ProductResolver maps external identifiers back to local products. Lookups
// that find nothing return false.
type ProductResolver interface {
	FindProductIDForEvent(ctx context.Context, eventID, date, clock string) (int64, bool)
	FindProductIDForCatalogItem(ctx context.Context, catalogID, date, clock string) (int64, bool)
}

// EventQuery scopes an event listing.
type EventQuery struct {
	// Date limits results to events starting on that local date.
	Date   string
	Status string
}

// CacheKey derives the cache key for the query shape.
func (q EventQuery) CacheKey(p models.Platform) string {
	status := q.Status
	if status == "" {
		status = "live"
	}
	if q.Date != "" {
		return string(p) + ":events:date:" + q.Date + ":" + status
	}
	return string(p) + ":events:org:" + status
}

// EventLister is implemented by ticketing adapters.
type EventLister interface {
	ListEvents(ctx context.Context, q EventQuery) ([]models.EventSummary, error)
}

// AttendeeLister is implemented by adapters that expose per-event attendees.
type AttendeeLister interface {
	ListEventAttendees(ctx context.Context, eventID string) ([]models.Attendee, error)
}

// EventSalesLister lists the sales of one event, used when a single product
// occurrence is re-synced.
type EventSalesLister interface {
	ListEventSales(ctx context.Context, eventID string, cursor models.Cursor) (*Page, error)
}
