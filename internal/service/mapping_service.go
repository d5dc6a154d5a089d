package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/timeparse"
	"sales-reconciler/internal/util"

	"go.uber.org/zap"
)

// MappingService resolves local products to external platform identifiers
// and back. Reads never fail: a missing or unreadable mapping resolves to
// "none".
type MappingService struct {
	repo   MappingRepository
	logger *zap.Logger
}

// NewMappingService creates a new mapping service
func NewMappingService(repo MappingRepository) *MappingService {
	return &MappingService{
		repo:   repo,
		logger: util.GetLogger(),
	}
}

// GetMapping resolves productID for an optional occurrence. The date+time
// override wins over the date override, which wins over the base mapping.
func (s *MappingService) GetMapping(ctx context.Context, productID int64, date, clock string) models.ResolvedMapping {
	none := models.ResolvedMapping{ProductID: productID, Scope: models.MappingScopeNone}

	rows, err := s.repo.GetMappingRows(ctx, productID)
	if err != nil {
		s.logger.Warn("Failed to read product mapping",
			zap.Int64("product_id", productID),
			zap.Error(err))
		return none
	}

	byKey := make(map[string]models.MappingRow, len(rows))
	for _, row := range rows {
		byKey[row.DateKey] = row
	}

	if date != "" {
		if clock, err := timeparse.NormalizeTime(clock); err == nil && clock != "" {
			key := timeparse.DateKey(date, clock)
			if row, ok := byKey[key]; ok {
				return models.ResolvedMapping{ProductID: productID, Scope: models.MappingScopeDateTime, DateKey: key, MappingIDs: row.IDs()}
			}
		}
		if row, ok := byKey[date]; ok {
			return models.ResolvedMapping{ProductID: productID, Scope: models.MappingScopeDate, DateKey: date, MappingIDs: row.IDs()}
		}
	}
	if row, ok := byKey[""]; ok {
		return models.ResolvedMapping{ProductID: productID, Scope: models.MappingScopeBase, MappingIDs: row.IDs()}
	}
	return none
}

// GetAllMappings returns every product's base mapping and overrides,
// ordered by product id.
func (s *MappingService) GetAllMappings(ctx context.Context) []models.ProductMapping {
	rows, err := s.repo.ListMappingRows(ctx)
	if err != nil {
		s.logger.Warn("Failed to list product mappings", zap.Error(err))
		return nil
	}

	byProduct := make(map[int64]*models.ProductMapping)
	for _, row := range rows {
		m, ok := byProduct[row.ProductID]
		if !ok {
			m = &models.ProductMapping{ProductID: row.ProductID}
			byProduct[row.ProductID] = m
		}
		if row.DateKey == "" {
			m.Base = row.IDs()
			continue
		}
		if m.DateOverrides == nil {
			m.DateOverrides = make(map[string]models.MappingIDs)
		}
		m.DateOverrides[row.DateKey] = row.IDs()
	}

	out := make([]models.ProductMapping, 0, len(byProduct))
	for _, m := range byProduct {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// SaveBaseMapping stores the base identifiers of a product. Overrides are
// left untouched.
func (s *MappingService) SaveBaseMapping(ctx context.Context, productID int64, ids models.MappingIDs) error {
	if productID <= 0 {
		return models.Validationf("product id is required")
	}
	if err := s.repo.UpsertBaseMapping(ctx, productID, models.AttributesFor(ids)); err != nil {
		return fmt.Errorf("failed to save base mapping: %w", err)
	}
	s.logger.Info("Base mapping saved", zap.Int64("product_id", productID))
	return nil
}

// SaveDateOverrides replaces the product's override set with overrides. An
// empty set clears all overrides; the base mapping is never removed.
func (s *MappingService) SaveDateOverrides(ctx context.Context, productID int64, overrides []models.DateOverride) error {
	if productID <= 0 {
		return models.Validationf("product id is required")
	}

	byKey := make(map[string]models.Attributes, len(overrides))
	for _, o := range overrides {
		date, err := time.Parse(models.DateLayout, o.Date)
		if err != nil {
			return models.Validationf("invalid override date %q", o.Date)
		}
		clock, err := timeparse.NormalizeTime(o.Time)
		if err != nil {
			return models.Validationf("invalid override time %q", o.Time)
		}
		if o.MappingIDs.IsEmpty() {
			continue
		}
		key := timeparse.DateKey(date.Format(models.DateLayout), clock)
		if _, dup := byKey[key]; dup {
			return models.Validationf("duplicate override for %s", key)
		}
		byKey[key] = models.AttributesFor(o.MappingIDs)
	}

	if err := s.repo.ReplaceDateOverrides(ctx, productID, byKey); err != nil {
		return fmt.Errorf("failed to save date overrides: %w", err)
	}
	s.logger.Info("Date overrides replaced",
		zap.Int64("product_id", productID),
		zap.Int("count", len(byKey)))
	return nil
}

// FindProductIDForEvent maps a ticketing event back to a local product.
func (s *MappingService) FindProductIDForEvent(ctx context.Context, eventID, date, clock string) (int64, bool) {
	if eventID == "" {
		return 0, false
	}
	return s.findProduct(ctx, date, clock, func(ids models.MappingIDs) bool {
		return ids.TicketingEventID == eventID
	})
}

// FindProductIDForCatalogItem maps a POS catalog object back to a local
// product.
func (s *MappingService) FindProductIDForCatalogItem(ctx context.Context, catalogID, date, clock string) (int64, bool) {
	if catalogID == "" {
		return 0, false
	}
	return s.findProduct(ctx, date, clock, func(ids models.MappingIDs) bool {
		return ids.POSCatalogID == catalogID
	})
}

// findProduct scans every mapping row. An override for the exact occurrence
// beats one for the date, which beats a base mapping, which beats an
// override for some other date. Ties go to the lowest product id.
func (s *MappingService) findProduct(ctx context.Context, date, clock string, match func(models.MappingIDs) bool) (int64, bool) {
	rows, err := s.repo.ListMappingRows(ctx)
	if err != nil {
		s.logger.Warn("Failed to scan product mappings", zap.Error(err))
		return 0, false
	}
	clock, _ = timeparse.NormalizeTime(clock)

	var best int64
	bestRank := 0
	for _, row := range rows {
		if !match(row.IDs()) {
			continue
		}
		rank := matchRank(row.DateKey, date, clock)
		if rank > bestRank || (rank == bestRank && row.ProductID < best) {
			best, bestRank = row.ProductID, rank
		}
	}
	return best, bestRank > 0
}

func matchRank(key, date, clock string) int {
	if key == "" {
		return 2
	}
	keyDate, keyClock := timeparse.SplitDateKey(key)
	switch {
	case date == "" || keyDate != date:
		return 1
	case keyClock == "":
		return 3
	case keyClock == clock:
		return 4
	case clock == "":
		return 3
	default:
		return 1
	}
}
