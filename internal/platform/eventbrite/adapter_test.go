package eventbrite

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/platform"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	calls []string
}

func (f *fakeResolver) FindProductIDForEvent(_ context.Context, eventID, date, clock string) (int64, bool) {
	f.calls = append(f.calls, eventID+"|"+date+"|"+clock)
	if eventID == "111" {
		return 42, true
	}
	return 0, false
}

func (f *fakeResolver) FindProductIDForCatalogItem(context.Context, string, string, string) (int64, bool) {
	return 0, false
}

const orgAttendees = `{
  "pagination": {"object_count": 4, "page_number": 1, "page_size": 50, "page_count": 2, "has_more_items": true},
  "attendees": [
    {"id": "A1", "created": "2025-05-20T15:00:00Z", "quantity": 1, "status": "Attending", "event_id": "111", "order_id": "O1",
     "profile": {"name": "Ada Lovelace", "email": "ADA@example.com"},
     "costs": {"gross": {"currency": "USD", "value": 2500, "major_value": "25.00"}},
     "event": {"id": "111", "name": {"text": "Ghost Tour"}, "start": {"local": "2025-06-01T19:00:00", "utc": "2025-06-01T23:00:00Z"}}},
    {"id": "A2", "created": "2025-05-20T16:00:00Z", "quantity": 1, "status": "Not Attending", "refunded": true, "event_id": "111",
     "profile": {"name": "Refunded Person", "email": "r@example.com"},
     "costs": {"gross": {"currency": "USD", "value": 2500}}},
    {"id": "A3", "created": "2025-06-15T12:00:00Z", "quantity": 1, "status": "Attending", "event_id": "111",
     "profile": {"name": "Too Late", "email": "late@example.com"},
     "costs": {"gross": {"currency": "USD", "value": 2500}}},
    {"id": "A4", "created": "2025-05-21T12:00:00Z", "quantity": 2, "status": "Attending", "event_id": "222",
     "profile": {"first_name": "Grace", "last_name": "Hopper", "email": "grace@example.com"},
     "costs": {"gross": {"currency": "USD", "value": 4000}}}
  ]
}`

func newTestAdapter(url string, resolver platform.ProductResolver) *Adapter {
	return NewAdapter(Config{
		BaseURL:        url,
		Token:          "eb-token",
		OrganizationID: "org1",
		MaxRetries:     1,
		RetryDelay:     time.Millisecond,
	}, resolver)
}

func TestListSales_OrgAttendees(t *testing.T) {
	var eventFetches int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer eb-token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/organizations/org1/attendees/":
			assert.Equal(t, "1", r.URL.Query().Get("page"))
			assert.Equal(t, "2025-05-01T00:00:00Z", r.URL.Query().Get("changed_since"))
			fmt.Fprint(w, orgAttendees)
		case "/events/222/":
			eventFetches++
			fmt.Fprint(w, `{"id": "222", "name": {"text": "Harbor Cruise"}, "start": {"local": "2025-06-03T10:30:00"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	resolver := &fakeResolver{}
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC)
	page, err := newTestAdapter(server.URL, resolver).ListSales(context.Background(), start, end, models.InitialCursor(models.CursorPage), 25)
	require.NoError(t, err)

	assert.Equal(t, 4, page.Fetched)
	assert.Equal(t, 4, page.Total)
	assert.True(t, page.HasMore)
	require.NotNil(t, page.Next)
	assert.Equal(t, 2, page.Next.Page)

	require.Len(t, page.Records, 2, "refunded and out-of-range attendees are dropped")

	first := page.Records[0]
	assert.Equal(t, "A1", first.SourceRecordID)
	assert.Equal(t, int64(42), first.ProductID)
	assert.Equal(t, "ada@example.com", first.CustomerEmail)
	assert.Equal(t, "25", first.GrossAmount.String())
	assert.Equal(t, "2025-06-01", first.EventDateKey())
	assert.Equal(t, "19:00", first.EventTime)
	assert.Equal(t, "2025-05-20", first.SaleDate.Format(models.DateLayout))

	second := page.Records[1]
	assert.Equal(t, int64(0), second.ProductID, "unmapped events leave the product unset")
	assert.Equal(t, "Grace Hopper", second.CustomerName)
	assert.Equal(t, "40", second.GrossAmount.String())
	assert.Equal(t, "2025-06-03", second.EventDateKey())
	assert.Equal(t, 1, eventFetches)

	assert.Equal(t, []string{"111|2025-06-01|19:00", "222|2025-06-03|10:30"}, resolver.calls)
}

func TestListEvents_FiltersByDate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `{"pagination": {"has_more_items": true}, "events": [
				{"id": "1", "name": {"text": "Ghost Tour"}, "status": "live", "start": {"local": "2025-06-01T19:00:00"}},
				{"id": "2", "name": {"text": "Day Trip"}, "status": "live", "start": {"local": "2025-06-02T09:00:00"}}]}`)
		default:
			fmt.Fprint(w, `{"pagination": {"has_more_items": false}, "events": [
				{"id": "3", "name": {"text": "Late Tour"}, "status": "live", "start": {"local": "2025-06-01T21:00:00"}}]}`)
		}
	}))
	defer server.Close()

	events, err := newTestAdapter(server.URL, nil).ListEvents(context.Background(), platform.EventQuery{Date: "2025-06-01"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "1", events[0].ID)
	assert.Equal(t, "19:00", events[0].StartTime)
	assert.Equal(t, "3", events[1].ID)
}

func TestListEventAttendees(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events/111/attendees/", r.URL.Path)
		fmt.Fprint(w, `{"pagination": {"has_more_items": false}, "attendees": [
			{"id": "A1", "status": "Attending", "order_id": "O1", "profile": {"name": "Ada", "email": "Ada@Example.com"}},
			{"id": "A2", "status": "Not Attending", "cancelled": true, "profile": {"name": "Gone", "email": "gone@example.com"}}]}`)
	}))
	defer server.Close()

	attendees, err := newTestAdapter(server.URL, nil).ListEventAttendees(context.Background(), "111")
	require.NoError(t, err)
	require.Len(t, attendees, 1)
	assert.Equal(t, "ada@example.com", attendees[0].Email)
	assert.Equal(t, "Eventbrite", attendees[0].Source)
	assert.Equal(t, 1, attendees[0].Quantity)
	assert.Equal(t, "O1", attendees[0].OrderRef)
}

func TestGetEntity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/events/111/":
			assert.Equal(t, "ticket_classes", r.URL.Query().Get("expand"))
			fmt.Fprint(w, `{"id": "111", "name": {"text": "Ghost Tour"}, "status": "live",
				"start": {"local": "2025-06-01T19:00:00"},
				"ticket_classes": [{"id": "900", "name": "General", "quantity_total": 30, "quantity_sold": 12}]}`)
		case "/events/111/ticket_classes/900/":
			fmt.Fprint(w, `{"id": "900", "name": "General", "quantity_total": 30}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	a := newTestAdapter(server.URL, nil)

	event, err := a.GetEntity(context.Background(), "111")
	require.NoError(t, err)
	assert.Equal(t, "event", event.Kind)
	assert.Equal(t, "2025-06-01", event.Attributes["start_date"])
	require.Len(t, event.Children, 1)
	assert.Equal(t, "12", event.Children[0].Attributes["quantity_sold"])

	tc, err := a.GetEntity(context.Background(), "111/900")
	require.NoError(t, err)
	assert.Equal(t, "ticket_class", tc.Kind)
	assert.Equal(t, "111", tc.Attributes["event_id"])

	_, err = a.GetEntity(context.Background(), "111/901")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = a.GetEntity(context.Background(), "111/")
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestConfigured(t *testing.T) {
	assert.False(t, NewAdapter(Config{Token: "t"}, nil).Configured())
	err := NewAdapter(Config{}, nil).TestConnection(context.Background())
	assert.True(t, errors.Is(err, models.ErrConfigIncomplete))
}

func TestListSales_EventLookupFailureFailsPage(t *testing.T) {
	const page = `{"pagination": {"object_count": 1, "has_more_items": false}, "attendees": [
		{"id": "A9", "created": "2025-05-20T15:00:00Z", "quantity": 1, "event_id": "111",
		 "profile": {"name": "Ada Lovelace", "email": "ada@example.com"},
		 "costs": {"gross": {"currency": "USD", "value": 2500}}}]}`

	var eventStatus int
	var eventFetches int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/organizations/org1/attendees/":
			fmt.Fprint(w, page)
		case "/events/111/":
			eventFetches++
			if eventStatus != http.StatusOK {
				w.WriteHeader(eventStatus)
				return
			}
			fmt.Fprint(w, `{"id": "111", "start": {"local": "2025-06-01T19:00:00"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC)
	cursor := models.InitialCursor(models.CursorPage)

	eventStatus = http.StatusServiceUnavailable
	got, err := newTestAdapter(server.URL, &fakeResolver{}).ListSales(context.Background(), start, end, cursor, 50)
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, models.IsUpstream(err), "got %v", err)

	// a deleted event is not fatal; the attendee is kept without a product
	eventStatus = http.StatusNotFound
	got, err = newTestAdapter(server.URL, &fakeResolver{}).ListSales(context.Background(), start, end, cursor, 50)
	require.NoError(t, err)
	require.Len(t, got.Records, 1)
	assert.Equal(t, int64(0), got.Records[0].ProductID)
	assert.Nil(t, got.Records[0].EventDate)

	// recovery: the retried page resolves the attendee
	eventStatus = http.StatusOK
	eventFetches = 0
	got, err = newTestAdapter(server.URL, &fakeResolver{}).ListSales(context.Background(), start, end, cursor, 50)
	require.NoError(t, err)
	require.Len(t, got.Records, 1)
	assert.Equal(t, int64(42), got.Records[0].ProductID)
	assert.Equal(t, "2025-06-01", got.Records[0].EventDateKey())
	assert.Equal(t, 1, eventFetches)
}
