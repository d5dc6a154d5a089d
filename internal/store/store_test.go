package store

import (
	"context"
	"testing"
	"time"

	"sales-reconciler/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(sqlx.NewDb(db, "postgres")), mock
}

func testSale(id string) *models.SaleRecord {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return &models.SaleRecord{
		ProductID:      42,
		Quantity:       2,
		Source:         models.LiveSource(models.PlatformWooCommerce),
		Platform:       models.PlatformWooCommerce,
		SourceRecordID: id,
		CustomerName:   "Ada Lovelace",
		CustomerEmail:  "ada@example.com",
		GrossAmount:    decimal.RequireFromString("40.00"),
		Currency:       "USD",
		EventDate:      &day,
		EventTime:      "19:00",
		SaleDate:       day,
		RecordedAt:     day.Add(9 * time.Hour),
	}
}

func TestInsertSale_Recorded(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO sale_records").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec("INSERT INTO daily_sales").
		WithArgs(sqlmock.AnyArg(), int64(42), models.PlatformWooCommerce, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := testSale("1001-1")
	inserted, err := s.InsertSale(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, int64(7), rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSale_DuplicateIsSkipped(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO sale_records").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	inserted, err := s.InsertSale(context.Background(), testSale("1001-1"))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMappingRows(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM product_mappings WHERE product_id").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "date_key", "attributes", "updated_at"}).
			AddRow(42, "", []byte(`{"eventbrite_event_id":"E1","eventbrite_ticket_id":"T1"}`), now).
			AddRow(42, "2025-06-01", []byte(`{"eventbrite_event_id":"E2"}`), now))

	rows, err := s.GetMappingRows(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "E1", rows[0].IDs().TicketingEventID)
	assert.Equal(t, "T1", rows[0].IDs().TicketingTicketClassID, "legacy key is read")
	assert.Equal(t, "2025-06-01", rows[1].DateKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceDateOverrides(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM product_mappings WHERE product_id = \\$1 AND date_key <> ''").
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO product_mappings").
		WithArgs(int64(42), "2025-06-01", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.ReplaceDateOverrides(context.Background(), 42, map[string]models.Attributes{
		"2025-06-01": models.AttributesFor(models.MappingIDs{TicketingEventID: "E2"}),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSalesRecordedBetween(t *testing.T) {
	s, mock := newMockStore(t)
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("DELETE FROM sale_records").
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "quantity", "source", "platform", "source_record_id", "sale_date"}).
			AddRow(1, 42, 3, "square", "square", "O1-a", day))
	mock.ExpectExec("UPDATE daily_sales SET quantity = quantity - \\$1").
		WithArgs(3, sqlmock.AnyArg(), int64(42), models.PlatformSquare).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM daily_sales WHERE quantity <= 0").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	removed, err := s.DeleteSalesRecordedBetween(context.Background(), day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryStore_Dedup(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	inserted, err := m.InsertSale(ctx, testSale("1001-1"))
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := testSale("1001-1")
	dup.Source = models.ImportSource(models.PlatformWooCommerce)
	inserted, err = m.InsertSale(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted, "import tag shares the live dedup key")

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	counts, err := m.ListDailyCounts(ctx, day, day)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, 2, counts[0].Quantity)

	exists, err := m.SaleExists(ctx, models.PlatformWooCommerce, "1001-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemoryStore_DeleteRollsBackCounts(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	early := testSale("1")
	early.RecordedAt = day.Add(-time.Hour)
	_, _ = m.InsertSale(ctx, early)
	_, _ = m.InsertSale(ctx, testSale("2"))

	removed, err := m.DeleteSalesRecordedBetween(ctx, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	counts, err := m.ListDailyCounts(ctx, day, day)
	require.NoError(t, err)
	require.Len(t, counts, 1)
	assert.Equal(t, 2, counts[0].Quantity)

	sales, err := m.ListSales(ctx, day, day)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, "1", sales[0].SourceRecordID)
}

func TestMemoryStore_ReplaceOverridesKeepsBase(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.UpsertBaseMapping(ctx, 42, models.AttributesFor(models.MappingIDs{TicketingEventID: "E1"})))
	require.NoError(t, m.ReplaceDateOverrides(ctx, 42, map[string]models.Attributes{
		"2025-06-01": models.AttributesFor(models.MappingIDs{TicketingEventID: "E2"}),
		"2025-06-02": models.AttributesFor(models.MappingIDs{TicketingEventID: "E3"}),
	}))
	require.NoError(t, m.ReplaceDateOverrides(ctx, 42, map[string]models.Attributes{
		"2025-06-03": models.AttributesFor(models.MappingIDs{TicketingEventID: "E4"}),
	}))

	rows, err := m.GetMappingRows(ctx, 42)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "", rows[0].DateKey)
	assert.Equal(t, "2025-06-03", rows[1].DateKey)

	require.NoError(t, m.ReplaceDateOverrides(ctx, 42, nil))
	rows, err = m.GetMappingRows(ctx, 42)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
