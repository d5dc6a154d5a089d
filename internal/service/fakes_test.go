package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/platform"

	"github.com/shopspring/decimal"
)

// fakeAdapter serves a synthetic listing of total records, paginated by
// offset, and optional event/attendee data.
type fakeAdapter struct {
	mu         sync.Mutex
	platform   models.Platform
	configured bool
	total      int
	productID  int64
	eventDate  time.Time
	failAt     int // offset that fails, -1 for never
	calls      int

	events     []models.EventSummary
	eventsErr  error
	eventCalls int
	attendees  map[string][]models.Attendee
	eventSales map[string][]models.SaleRecord
}

func newFakeAdapter(p models.Platform, total int) *fakeAdapter {
	return &fakeAdapter{
		platform:   p,
		configured: true,
		total:      total,
		productID:  1,
		eventDate:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		failAt:     -1,
	}
}

func (f *fakeAdapter) Platform() models.Platform     { return f.platform }
func (f *fakeAdapter) CursorKind() models.CursorKind { return models.CursorOffset }
func (f *fakeAdapter) Configured() bool              { return f.configured }

func (f *fakeAdapter) ListSales(_ context.Context, _, _ time.Time, cursor models.Cursor, pageSize int) (*platform.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if err := cursor.Validate(models.CursorOffset); err != nil {
		return nil, err
	}
	if cursor.Offset == f.failAt {
		return nil, &models.UpstreamError{Platform: f.platform, Op: "list", StatusCode: 503, Err: fmt.Errorf("unavailable")}
	}

	n := f.total - cursor.Offset
	if n > pageSize {
		n = pageSize
	}
	page := &platform.Page{Fetched: n, Total: f.total}
	for i := 0; i < n; i++ {
		page.Records = append(page.Records, f.record(fmt.Sprintf("r-%d", cursor.Offset+i)))
	}
	if cursor.Offset+n < f.total {
		page.HasMore = true
		page.Next = &models.Cursor{Kind: models.CursorOffset, Offset: cursor.Offset + n}
	}
	return page, nil
}

func (f *fakeAdapter) record(id string) models.SaleRecord {
	eventDate := f.eventDate
	return models.SaleRecord{
		ProductID:      f.productID,
		Quantity:       1,
		Source:         models.LiveSource(f.platform),
		SourceRecordID: id,
		CustomerName:   "Customer " + id,
		CustomerEmail:  id + "@example.com",
		GrossAmount:    decimal.NewFromInt(10),
		Currency:       "USD",
		EventDate:      &eventDate,
		SaleDate:       eventDate,
	}
}

func (f *fakeAdapter) GetEntity(context.Context, string) (*platform.Entity, error) {
	return nil, models.ErrNotFound
}

func (f *fakeAdapter) TestConnection(context.Context) error { return nil }

func (f *fakeAdapter) ListEvents(context.Context, platform.EventQuery) ([]models.EventSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventCalls++
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	return f.events, nil
}

func (f *fakeAdapter) ListEventAttendees(_ context.Context, eventID string) ([]models.Attendee, error) {
	return f.attendees[eventID], nil
}

// ticketingAdapter adds per-event sale listing to fakeAdapter.
type ticketingAdapter struct {
	*fakeAdapter
}

func (t ticketingAdapter) ListEventSales(_ context.Context, eventID string, _ models.Cursor) (*platform.Page, error) {
	recs := t.eventSales[eventID]
	return &platform.Page{Records: recs, Fetched: len(recs)}, nil
}

type recordingPublisher struct {
	mu    sync.Mutex
	sales []*models.SaleRecordedEvent
	steps []*models.ImportStepEvent
}

func (p *recordingPublisher) PublishSaleRecorded(_ context.Context, e *models.SaleRecordedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sales = append(p.sales, e)
	return nil
}

func (p *recordingPublisher) PublishImportStep(_ context.Context, e *models.ImportStepEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, e)
	return nil
}

func date(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func datePtr(s string) *time.Time {
	t := date(s)
	return &t
}
