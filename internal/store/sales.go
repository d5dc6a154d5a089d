package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sales-reconciler/internal/models"
)

// InsertSale stores rec and bumps its daily counter in one transaction.
// It returns false without changes when the dedup key already exists.
func (s *Store) InsertSale(ctx context.Context, rec *models.SaleRecord) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO sale_records (product_id, quantity, source, platform, source_record_id,
			customer_name, customer_email, gross_amount, currency, event_date, event_time,
			sale_date, status, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (platform, source_record_id) DO NOTHING
		RETURNING id`

	var id int64
	err = tx.GetContext(ctx, &id, query,
		rec.ProductID, rec.Quantity, rec.Source, rec.Platform, rec.SourceRecordID,
		rec.CustomerName, rec.CustomerEmail, rec.GrossAmount, rec.Currency, rec.EventDate, rec.EventTime,
		rec.SaleDate, rec.Status, rec.RecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert sale %s: %w", rec.DedupKey(), err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO daily_sales (sale_date, product_id, platform, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (sale_date, product_id, platform)
		DO UPDATE SET quantity = daily_sales.quantity + EXCLUDED.quantity`,
		rec.SaleDate, rec.ProductID, rec.Platform, rec.Quantity)
	if err != nil {
		return false, fmt.Errorf("failed to update daily sales: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	rec.ID = id
	return true, nil
}

// SaleExists checks the dedup key.
func (s *Store) SaleExists(ctx context.Context, platform models.Platform, sourceRecordID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM sale_records WHERE platform = $1 AND source_record_id = $2)",
		platform, sourceRecordID)
	return exists, err
}

// ListSales returns the records whose sale date falls in [start, end].
func (s *Store) ListSales(ctx context.Context, start, end time.Time) ([]models.SaleRecord, error) {
	var records []models.SaleRecord
	err := s.db.SelectContext(ctx, &records,
		"SELECT * FROM sale_records WHERE sale_date BETWEEN $1 AND $2 ORDER BY sale_date, id",
		start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	return records, nil
}

// ListDailyCounts returns the aggregate rows for [start, end].
func (s *Store) ListDailyCounts(ctx context.Context, start, end time.Time) ([]models.DailyCount, error) {
	var counts []models.DailyCount
	err := s.db.SelectContext(ctx, &counts,
		"SELECT sale_date, product_id, platform, quantity FROM daily_sales WHERE sale_date BETWEEN $1 AND $2 ORDER BY sale_date, product_id, platform",
		start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily sales: %w", err)
	}
	return counts, nil
}

// DeleteSalesRecordedBetween removes records with recorded_at in [from, to)
// and rolls their quantities back out of daily_sales.
func (s *Store) DeleteSalesRecordedBetween(ctx context.Context, from, to time.Time) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var removed []models.SaleRecord
	err = tx.SelectContext(ctx, &removed,
		"DELETE FROM sale_records WHERE recorded_at >= $1 AND recorded_at < $2 RETURNING *",
		from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sales: %w", err)
	}

	for _, rec := range removed {
		if _, err := tx.ExecContext(ctx,
			"UPDATE daily_sales SET quantity = quantity - $1 WHERE sale_date = $2 AND product_id = $3 AND platform = $4",
			rec.Quantity, rec.SaleDate, rec.ProductID, rec.Platform); err != nil {
			return 0, fmt.Errorf("failed to roll back daily sales: %w", err)
		}
	}

	if len(removed) > 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM daily_sales WHERE quantity <= 0"); err != nil {
			return 0, fmt.Errorf("failed to prune daily sales: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(removed), nil
}
