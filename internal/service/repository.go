package service

import (
	"context"
	"time"

	"sales-reconciler/internal/models"
)

// MappingRepository persists product mapping rows. Both store.Store and
// store.MemoryStore satisfy it.
type MappingRepository interface {
	GetMappingRows(ctx context.Context, productID int64) ([]models.MappingRow, error)
	ListMappingRows(ctx context.Context) ([]models.MappingRow, error)
	UpsertBaseMapping(ctx context.Context, productID int64, attrs models.Attributes) error
	ReplaceDateOverrides(ctx context.Context, productID int64, overrides map[string]models.Attributes) error
}

// SalesRepository persists the sales ledger and its daily counters.
type SalesRepository interface {
	InsertSale(ctx context.Context, rec *models.SaleRecord) (bool, error)
	SaleExists(ctx context.Context, platform models.Platform, sourceRecordID string) (bool, error)
	ListSales(ctx context.Context, start, end time.Time) ([]models.SaleRecord, error)
	ListDailyCounts(ctx context.Context, start, end time.Time) ([]models.DailyCount, error)
	DeleteSalesRecordedBetween(ctx context.Context, from, to time.Time) (int, error)
}

// SalePublisher emits domain events for newly recorded sales.
type SalePublisher interface {
	PublishSaleRecorded(ctx context.Context, event *models.SaleRecordedEvent) error
}

// ImportPublisher emits a progress event per backfill step.
type ImportPublisher interface {
	PublishImportStep(ctx context.Context, event *models.ImportStepEvent) error
}

// JSONCache is a TTL key/value cache.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Locker provides mutual exclusion across processes.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}
