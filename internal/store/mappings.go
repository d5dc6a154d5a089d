package store

import (
	"context"
	"fmt"

	"sales-reconciler/internal/models"
)

// GetMappingRows returns the base row and every override row of a product.
func (s *Store) GetMappingRows(ctx context.Context, productID int64) ([]models.MappingRow, error) {
	var rows []models.MappingRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT product_id, date_key, attributes, updated_at FROM product_mappings WHERE product_id = $1 ORDER BY date_key",
		productID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mappings for product %d: %w", productID, err)
	}
	return rows, nil
}

// ListMappingRows returns every mapping row.
func (s *Store) ListMappingRows(ctx context.Context) ([]models.MappingRow, error) {
	var rows []models.MappingRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT product_id, date_key, attributes, updated_at FROM product_mappings ORDER BY product_id, date_key")
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	return rows, nil
}

// UpsertBaseMapping writes the base row of a product.
func (s *Store) UpsertBaseMapping(ctx context.Context, productID int64, attrs models.Attributes) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_mappings (product_id, date_key, attributes, updated_at)
		VALUES ($1, '', $2, NOW())
		ON CONFLICT (product_id, date_key)
		DO UPDATE SET attributes = EXCLUDED.attributes, updated_at = NOW()`,
		productID, attrs)
	if err != nil {
		return fmt.Errorf("failed to save base mapping for product %d: %w", productID, err)
	}
	return nil
}

// ReplaceDateOverrides swaps the complete override set of a product. The
// base row is never touched; an empty set clears all overrides.
func (s *Store) ReplaceDateOverrides(ctx context.Context, productID int64, overrides map[string]models.Attributes) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM product_mappings WHERE product_id = $1 AND date_key <> ''", productID); err != nil {
		return fmt.Errorf("failed to clear overrides for product %d: %w", productID, err)
	}

	for key, attrs := range overrides {
		if key == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO product_mappings (product_id, date_key, attributes, updated_at) VALUES ($1, $2, $3, NOW())",
			productID, key, attrs); err != nil {
			return fmt.Errorf("failed to insert override %s for product %d: %w", key, productID, err)
		}
	}

	return tx.Commit()
}
