package service

import (
	"context"
	"testing"
	"time"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/platform"
	"sales-reconciler/internal/redisclient"
	"sales-reconciler/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSyncFixture(t *testing.T, locker Locker, adapters ...platform.Adapter) (*SyncService, *MappingService, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	mappings := NewMappingService(mem)
	recorder := NewRecorder(mem, nil, time.UTC)
	svc := NewSyncService(platform.NewRegistry(adapters...), recorder, mappings, locker, SyncConfig{
		Interval:  15 * time.Minute,
		BatchSize: 10,
	})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return svc, mappings, mem
}

func TestSyncToday_RecordsLiveSales(t *testing.T) {
	woo := newFakeAdapter(models.PlatformWooCommerce, 25)
	sq := newFakeAdapter(models.PlatformSquare, 5)
	sq.productID = 0
	unconfigured := newFakeAdapter(models.PlatformEventbrite, 5)
	unconfigured.configured = false

	svc, _, mem := newSyncFixture(t, nil, woo, sq, unconfigured)

	res, err := svc.SyncToday(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, res.Throttled)
	require.Len(t, res.Platforms, 2)
	assert.Equal(t, 25, res.Stats.Recorded)
	assert.Equal(t, 5, res.Stats.Unmapped)
	assert.Equal(t, 3, woo.calls, "listing is drained page by page")
	assert.Equal(t, 0, unconfigured.calls)

	sales, err := mem.ListSales(context.Background(), date("2025-06-01"), date("2025-06-01"))
	require.NoError(t, err)
	require.Len(t, sales, 25)
	assert.Equal(t, models.LiveSource(models.PlatformWooCommerce), sales[0].Source)
}

func TestSyncToday_IntervalAndForce(t *testing.T) {
	woo := newFakeAdapter(models.PlatformWooCommerce, 5)
	svc, _, _ := newSyncFixture(t, nil, woo)
	ctx := context.Background()

	_, err := svc.SyncToday(ctx, false)
	require.NoError(t, err)

	res, err := svc.SyncToday(ctx, false)
	require.NoError(t, err)
	assert.True(t, res.Throttled)
	assert.Equal(t, 1, woo.calls)

	res, err = svc.SyncToday(ctx, true)
	require.NoError(t, err)
	assert.False(t, res.Throttled)
	assert.Equal(t, 5, res.Stats.Skipped, "a forced re-run only finds duplicates")
	assert.Equal(t, 2, woo.calls)
}

func TestSyncToday_LockPreventsOverlap(t *testing.T) {
	mr := miniredis.RunT(t)
	locks := redisclient.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	woo := newFakeAdapter(models.PlatformWooCommerce, 5)
	svc, _, _ := newSyncFixture(t, locks, woo)
	ctx := context.Background()

	token, ok, err := locks.AcquireLock(ctx, "live-sync:today", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.SyncToday(ctx, true)
	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.Equal(t, 0, woo.calls)

	require.NoError(t, locks.ReleaseLock(ctx, "live-sync:today", token))
	_, err = svc.SyncToday(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, woo.calls)

	_, ok, err = locks.AcquireLock(ctx, "live-sync:today", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "the sync releases its lock")
}

func TestSyncProductDate(t *testing.T) {
	woo := newFakeAdapter(models.PlatformWooCommerce, 4)
	woo.productID = 42

	ebBase := newFakeAdapter(models.PlatformEventbrite, 0)
	eb := ticketingAdapter{ebBase}
	ebBase.eventSales = map[string][]models.SaleRecord{
		"ev-0601": {
			{Quantity: 1, SourceRecordID: "A1", Currency: "USD", EventDate: datePtr("2025-06-01")},
			{Quantity: 1, SourceRecordID: "A2", Currency: "USD", EventDate: datePtr("2025-06-02")},
		},
	}

	svc, mappings, mem := newSyncFixture(t, nil, woo, eb)
	ctx := context.Background()
	require.NoError(t, mappings.SaveBaseMapping(ctx, 42, models.MappingIDs{TicketingEventID: "ev-base"}))
	require.NoError(t, mappings.SaveDateOverrides(ctx, 42, []models.DateOverride{
		{Date: "2025-06-01", Time: "19:00", MappingIDs: models.MappingIDs{TicketingEventID: "ev-0601"}},
	}))

	res, err := svc.SyncProductDate(ctx, 42, date("2025-06-01"), false)
	require.NoError(t, err)
	assert.Equal(t, "product:42:2025-06-01", res.Scope)
	assert.Equal(t, 5, res.Stats.Recorded)

	sales, err := mem.ListSales(ctx, date("2025-06-01"), date("2025-06-01"))
	require.NoError(t, err)
	require.Len(t, sales, 5)
	for _, s := range sales {
		assert.Equal(t, int64(42), s.ProductID)
	}

	_, err = svc.SyncProductDate(ctx, 0, date("2025-06-01"), false)
	assert.True(t, IsValidation(err))
}

func TestSyncProductDate_UnresolvedWindowSalesStayUnmapped(t *testing.T) {
	sq := newFakeAdapter(models.PlatformSquare, 5)
	sq.productID = 0
	other := newFakeAdapter(models.PlatformWooCommerce, 3)
	other.productID = 7

	svc, _, mem := newSyncFixture(t, nil, sq, other)
	ctx := context.Background()

	res, err := svc.SyncProductDate(ctx, 42, date("2025-06-01"), true)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Stats.Recorded)
	assert.Equal(t, 5, res.Stats.Unmapped)

	sales, err := mem.ListSales(ctx, date("2025-06-01"), date("2025-06-01"))
	require.NoError(t, err)
	assert.Empty(t, sales, "POS items with no mapping must not be attributed to the synced product")

	// once the catalog item is mapped, a later sync can still record it
	sq.productID = 42
	res, err = svc.SyncProductDate(ctx, 42, date("2025-06-01"), true)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Stats.Recorded)
}
