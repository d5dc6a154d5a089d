// Package eventbrite adapts the Eventbrite v3 API to the platform.Adapter
// contract. Listings are paginated by page number; every attendee becomes
// one sale record keyed on the attendee id.
package eventbrite

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/platform"
	"sales-reconciler/internal/util"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://www.eventbriteapi.com/v3"

// Config holds the Eventbrite credentials.
type Config struct {
	BaseURL        string
	Token          string
	OrganizationID string
	Location       *time.Location
	Timeout        time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	// MaxPages bounds the listings that are read to exhaustion in one call
	// (events, per-event attendees).
	MaxPages int
}

// Adapter is the Eventbrite platform adapter.
type Adapter struct {
	cfg       Config
	transport *platform.Transport
	resolver  platform.ProductResolver
	logger    *zap.Logger
}

// NewAdapter creates an Eventbrite adapter. The resolver maps events back to
// local products; with a nil resolver records carry product id 0.
func NewAdapter(cfg Config, resolver platform.ProductResolver) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}

	return &Adapter{
		cfg:      cfg,
		resolver: resolver,
		logger:   util.GetLogger(),
		transport: platform.NewTransport(platform.TransportConfig{
			Platform:   models.PlatformEventbrite,
			BaseURL:    cfg.BaseURL,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay,
			HTTPClient: platform.BearerClient(cfg.Token, cfg.Timeout),
		}),
	}
}

// Platform implements platform.Adapter
func (a *Adapter) Platform() models.Platform { return models.PlatformEventbrite }

// CursorKind implements platform.Adapter
func (a *Adapter) CursorKind() models.CursorKind { return models.CursorPage }

// Configured implements platform.Adapter
func (a *Adapter) Configured() bool {
	return a.cfg.Token != "" && a.cfg.OrganizationID != ""
}

// ListSales reads the organization's attendees changed since start and
// keeps those purchased in [start, end]. Eventbrite fixes the page size at
// 50, so pageSize is ignored.
func (a *Adapter) ListSales(ctx context.Context, start, end time.Time, cursor models.Cursor, _ int) (*platform.Page, error) {
	if err := cursor.Validate(models.CursorPage); err != nil {
		return nil, err
	}

	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, a.cfg.Location)
	to := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, a.cfg.Location).AddDate(0, 0, 1)

	query := url.Values{}
	query.Set("changed_since", from.UTC().Format("2006-01-02T15:04:05Z"))
	query.Set("page", strconv.Itoa(cursor.Page))
	query.Set("expand", "event")

	var resp attendeesResponse
	path := fmt.Sprintf("/organizations/%s/attendees/", url.PathEscape(a.cfg.OrganizationID))
	if _, err := a.transport.Do(ctx, "list_org_attendees", http.MethodGet, path, query, nil, &resp); err != nil {
		return nil, err
	}

	return a.toPage(ctx, resp, cursor, func(created time.Time) bool {
		return !created.Before(from) && created.Before(to)
	})
}

// ListEventSales lists one page of a single event's attendees as sale
// records.
func (a *Adapter) ListEventSales(ctx context.Context, eventID string, cursor models.Cursor) (*platform.Page, error) {
	if eventID == "" {
		return nil, models.Validationf("event id is required")
	}
	if err := cursor.Validate(models.CursorPage); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(cursor.Page))
	query.Set("expand", "event")

	var resp attendeesResponse
	path := fmt.Sprintf("/events/%s/attendees/", url.PathEscape(eventID))
	if _, err := a.transport.Do(ctx, "list_event_attendees", http.MethodGet, path, query, nil, &resp); err != nil {
		return nil, err
	}
	return a.toPage(ctx, resp, cursor, nil)
}

// toPage normalizes one attendee page. A failed event lookup fails the whole
// page so the caller retries it instead of losing the attendee.
func (a *Adapter) toPage(ctx context.Context, resp attendeesResponse, cursor models.Cursor, keep func(time.Time) bool) (*platform.Page, error) {
	page := &platform.Page{
		Total:   resp.Pagination.ObjectCount,
		Fetched: len(resp.Attendees),
		HasMore: resp.Pagination.HasMoreItems,
	}
	if page.HasMore {
		page.Next = &models.Cursor{Kind: models.CursorPage, Page: cursor.Page + 1}
	}

	events := make(map[string]*Event)
	for i := range resp.Attendees {
		att := &resp.Attendees[i]
		if att.Cancelled || att.Refunded {
			continue
		}
		created, err := time.Parse(time.RFC3339, att.Created)
		if err != nil {
			a.logger.Warn("Attendee has unparseable created time",
				zap.String("attendee_id", att.ID),
				zap.String("created", att.Created))
			continue
		}
		if keep != nil && !keep(created) {
			continue
		}
		rec, err := a.normalizeAttendee(ctx, att, created, events)
		if err != nil {
			return nil, err
		}
		page.Records = append(page.Records, rec)
	}
	return page, nil
}

func (a *Adapter) normalizeAttendee(ctx context.Context, att *Attendee, created time.Time, events map[string]*Event) (models.SaleRecord, error) {
	quantity := att.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	local := created.In(a.cfg.Location)

	rec := models.SaleRecord{
		Quantity:       quantity,
		Source:         models.LiveSource(models.PlatformEventbrite),
		Platform:       models.PlatformEventbrite,
		SourceRecordID: att.ID,
		CustomerName:   att.Profile.DisplayName(),
		CustomerEmail:  strings.ToLower(att.Profile.Email),
		GrossAmount:    att.Costs.Gross.Amount(),
		Currency:       att.Costs.Gross.Currency,
		SaleDate:       time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC),
		Status:         att.Status,
	}

	event := att.Event
	if event == nil {
		var err error
		if event, err = a.lookupEvent(ctx, att.EventID, events); err != nil {
			return rec, err
		}
	}
	if event == nil {
		return rec, nil
	}

	date, clock, ok := event.Start.LocalParts()
	if !ok {
		return rec, nil
	}
	eventDate, _ := time.Parse(models.DateLayout, date)
	rec.EventDate = &eventDate
	rec.EventTime = clock

	if a.resolver != nil {
		if productID, found := a.resolver.FindProductIDForEvent(ctx, event.ID, date, clock); found {
			rec.ProductID = productID
		}
	}
	return rec, nil
}

// lookupEvent fetches an event not inlined in the attendee, memoised per
// page. A deleted event yields nil; any other failure is returned and not
// memoised.
func (a *Adapter) lookupEvent(ctx context.Context, eventID string, seen map[string]*Event) (*Event, error) {
	if eventID == "" {
		return nil, nil
	}
	if ev, ok := seen[eventID]; ok {
		return ev, nil
	}
	ev, err := a.getEvent(ctx, eventID, false)
	switch {
	case errors.Is(err, models.ErrNotFound):
		a.logger.Warn("Attendee references a missing event", zap.String("event_id", eventID))
		ev = nil
	case err != nil:
		return nil, fmt.Errorf("failed to fetch event %s for attendee: %w", eventID, err)
	}
	seen[eventID] = ev
	return ev, nil
}

func (a *Adapter) getEvent(ctx context.Context, eventID string, withTicketClasses bool) (*Event, error) {
	var query url.Values
	if withTicketClasses {
		query = url.Values{"expand": []string{"ticket_classes"}}
	}
	var event Event
	path := fmt.Sprintf("/events/%s/", url.PathEscape(eventID))
	if _, err := a.transport.Do(ctx, "get_event", http.MethodGet, path, query, nil, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// ListEvents reads the organization's events, optionally limited to those
// starting on q.Date.
func (a *Adapter) ListEvents(ctx context.Context, q platform.EventQuery) ([]models.EventSummary, error) {
	status := q.Status
	if status == "" {
		status = "live"
	}
	path := fmt.Sprintf("/organizations/%s/events/", url.PathEscape(a.cfg.OrganizationID))

	var out []models.EventSummary
	for pageNum := 1; pageNum <= a.cfg.MaxPages; pageNum++ {
		query := url.Values{}
		query.Set("status", status)
		query.Set("order_by", "start_asc")
		query.Set("page", strconv.Itoa(pageNum))

		var resp eventsResponse
		if _, err := a.transport.Do(ctx, "list_events", http.MethodGet, path, query, nil, &resp); err != nil {
			return nil, err
		}
		for _, ev := range resp.Events {
			date, clock, _ := ev.Start.LocalParts()
			if q.Date != "" && date != q.Date {
				continue
			}
			out = append(out, models.EventSummary{
				ID:        ev.ID,
				Name:      ev.Name.Text,
				Status:    ev.Status,
				StartDate: date,
				StartTime: clock,
				URL:       ev.URL,
			})
		}
		if !resp.Pagination.HasMoreItems {
			break
		}
	}
	return out, nil
}

// ListEventAttendees returns every attendee of an event.
func (a *Adapter) ListEventAttendees(ctx context.Context, eventID string) ([]models.Attendee, error) {
	if eventID == "" {
		return nil, models.Validationf("event id is required")
	}
	path := fmt.Sprintf("/events/%s/attendees/", url.PathEscape(eventID))

	var out []models.Attendee
	for pageNum := 1; pageNum <= a.cfg.MaxPages; pageNum++ {
		query := url.Values{"page": []string{strconv.Itoa(pageNum)}}
		var resp attendeesResponse
		if _, err := a.transport.Do(ctx, "list_event_attendees", http.MethodGet, path, query, nil, &resp); err != nil {
			return nil, err
		}
		for _, att := range resp.Attendees {
			if att.Cancelled || att.Refunded {
				continue
			}
			quantity := att.Quantity
			if quantity <= 0 {
				quantity = 1
			}
			out = append(out, models.Attendee{
				Name:     att.Profile.DisplayName(),
				Email:    strings.ToLower(att.Profile.Email),
				Status:   att.Status,
				Quantity: quantity,
				Source:   models.PlatformEventbrite.DisplayName(),
				OrderRef: att.OrderID,
			})
		}
		if !resp.Pagination.HasMoreItems {
			break
		}
	}
	return out, nil
}

// GetEntity looks up an event ("123") with its ticket classes, or a single
// ticket class ("123/456").
func (a *Adapter) GetEntity(ctx context.Context, id string) (*platform.Entity, error) {
	eventID, ticketClassID, nested := strings.Cut(strings.TrimPrefix(id, "/"), "/")
	if eventID == "" || (nested && ticketClassID == "") {
		return nil, models.Validationf("invalid eventbrite entity id %q", id)
	}

	if nested {
		var tc TicketClass
		path := fmt.Sprintf("/events/%s/ticket_classes/%s/", url.PathEscape(eventID), url.PathEscape(ticketClassID))
		if _, err := a.transport.Do(ctx, "get_ticket_class", http.MethodGet, path, nil, nil, &tc); err != nil {
			return nil, err
		}
		entity := ticketClassEntity(tc)
		entity.Attributes["event_id"] = eventID
		return &entity, nil
	}

	event, err := a.getEvent(ctx, eventID, true)
	if err != nil {
		return nil, err
	}
	date, clock, _ := event.Start.LocalParts()
	entity := &platform.Entity{
		ID:     event.ID,
		Kind:   "event",
		Name:   event.Name.Text,
		Status: event.Status,
		Attributes: map[string]string{
			"start_date": date,
			"start_time": clock,
			"url":        event.URL,
		},
	}
	for _, tc := range event.TicketClasses {
		entity.Children = append(entity.Children, ticketClassEntity(tc))
	}
	return entity, nil
}

func ticketClassEntity(tc TicketClass) platform.Entity {
	attrs := map[string]string{
		"quantity_total": strconv.Itoa(tc.QuantityTotal),
		"quantity_sold":  strconv.Itoa(tc.QuantitySold),
		"free":           strconv.FormatBool(tc.Free),
	}
	if tc.Cost != nil {
		attrs["cost"] = tc.Cost.Display
	}
	return platform.Entity{
		ID:         tc.ID,
		Kind:       "ticket_class",
		Name:       tc.Name,
		Status:     tc.OnSaleStatus,
		Attributes: attrs,
	}
}

// TestConnection reads the authenticated user.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if !a.Configured() {
		return models.ErrConfigIncomplete
	}
	var user User
	_, err := a.transport.Do(ctx, "test_connection", http.MethodGet, "/users/me/", nil, nil, &user)
	return err
}
