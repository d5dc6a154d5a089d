package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"sales-reconciler/internal/models"
)

type dailyKey struct {
	date      string
	productID int64
	platform  models.Platform
}

// MemoryStore is an in-process implementation of the mapping table and the
// sales ledger. It backs local development without Postgres and the
// service tests.
type MemoryStore struct {
	mu       sync.RWMutex
	mappings map[int64]map[string]models.MappingRow
	sales    []models.SaleRecord
	keys     map[string]struct{}
	daily    map[dailyKey]int
	nextID   int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mappings: make(map[int64]map[string]models.MappingRow),
		keys:     make(map[string]struct{}),
		daily:    make(map[dailyKey]int),
	}
}

// GetMappingRows returns the rows of one product ordered by date key.
func (m *MemoryStore) GetMappingRows(_ context.Context, productID int64) ([]models.MappingRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedRows(m.mappings[productID]), nil
}

// ListMappingRows returns every row ordered by product and date key.
func (m *MemoryStore) ListMappingRows(_ context.Context) ([]models.MappingRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.mappings))
	for id := range m.mappings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var rows []models.MappingRow
	for _, id := range ids {
		rows = append(rows, sortedRows(m.mappings[id])...)
	}
	return rows, nil
}

func sortedRows(byKey map[string]models.MappingRow) []models.MappingRow {
	rows := make([]models.MappingRow, 0, len(byKey))
	for _, row := range byKey {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].DateKey < rows[j].DateKey })
	return rows
}

// UpsertBaseMapping writes the base row of a product.
func (m *MemoryStore) UpsertBaseMapping(_ context.Context, productID int64, attrs models.Attributes) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.productRows(productID)
	rows[""] = models.MappingRow{ProductID: productID, Attributes: copyAttrs(attrs), UpdatedAt: time.Now()}
	return nil
}

// ReplaceDateOverrides swaps the override set of a product.
func (m *MemoryStore) ReplaceDateOverrides(_ context.Context, productID int64, overrides map[string]models.Attributes) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.productRows(productID)
	for key := range rows {
		if key != "" {
			delete(rows, key)
		}
	}
	now := time.Now()
	for key, attrs := range overrides {
		if key == "" {
			continue
		}
		rows[key] = models.MappingRow{ProductID: productID, DateKey: key, Attributes: copyAttrs(attrs), UpdatedAt: now}
	}
	if len(rows) == 0 {
		delete(m.mappings, productID)
	}
	return nil
}

func (m *MemoryStore) productRows(productID int64) map[string]models.MappingRow {
	rows, ok := m.mappings[productID]
	if !ok {
		rows = make(map[string]models.MappingRow)
		m.mappings[productID] = rows
	}
	return rows
}

func copyAttrs(attrs models.Attributes) models.Attributes {
	out := make(models.Attributes, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// InsertSale stores rec unless its dedup key exists.
func (m *MemoryStore) InsertSale(_ context.Context, rec *models.SaleRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rec.DedupKey()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}

	m.nextID++
	rec.ID = m.nextID
	m.keys[key] = struct{}{}
	m.sales = append(m.sales, *rec)
	m.daily[dailyKey{rec.SaleDate.Format(models.DateLayout), rec.ProductID, rec.Platform}] += rec.Quantity
	return true, nil
}

// SaleExists checks the dedup key.
func (m *MemoryStore) SaleExists(_ context.Context, platform models.Platform, sourceRecordID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.keys[string(platform)+":"+sourceRecordID]
	return ok, nil
}

// ListSales returns the records whose sale date falls in [start, end].
func (m *MemoryStore) ListSales(_ context.Context, start, end time.Time) ([]models.SaleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	from, to := start.Format(models.DateLayout), end.Format(models.DateLayout)
	var out []models.SaleRecord
	for _, rec := range m.sales {
		d := rec.SaleDate.Format(models.DateLayout)
		if d >= from && d <= to {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].SaleDate.Equal(out[j].SaleDate) {
			return out[i].SaleDate.Before(out[j].SaleDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListDailyCounts returns the aggregate rows for [start, end].
func (m *MemoryStore) ListDailyCounts(_ context.Context, start, end time.Time) ([]models.DailyCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	from, to := start.Format(models.DateLayout), end.Format(models.DateLayout)
	var out []models.DailyCount
	for k, qty := range m.daily {
		if k.date < from || k.date > to || qty <= 0 {
			continue
		}
		date, _ := time.Parse(models.DateLayout, k.date)
		out = append(out, models.DailyCount{SaleDate: date, ProductID: k.productID, Platform: k.platform, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SaleDate.Equal(out[j].SaleDate) {
			return out[i].SaleDate.Before(out[j].SaleDate)
		}
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].Platform < out[j].Platform
	})
	return out, nil
}

// DeleteSalesRecordedBetween removes records with recorded_at in [from, to).
func (m *MemoryStore) DeleteSalesRecordedBetween(_ context.Context, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.sales[:0]
	removed := 0
	for _, rec := range m.sales {
		if !rec.RecordedAt.Before(from) && rec.RecordedAt.Before(to) {
			removed++
			delete(m.keys, rec.DedupKey())
			k := dailyKey{rec.SaleDate.Format(models.DateLayout), rec.ProductID, rec.Platform}
			m.daily[k] -= rec.Quantity
			if m.daily[k] <= 0 {
				delete(m.daily, k)
			}
			continue
		}
		kept = append(kept, rec)
	}
	m.sales = kept
	return removed, nil
}
