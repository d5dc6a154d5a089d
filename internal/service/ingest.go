package service

import (
	"context"
	"errors"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/util"

	"go.uber.org/zap"
)

// IngestStats counts the outcome of feeding a batch to the recorder.
type IngestStats struct {
	Recorded int `json:"recorded"`
	Skipped  int `json:"skipped"`
	Unmapped int `json:"unmapped"`
	Invalid  int `json:"invalid"`
}

// Add accumulates other into s.
func (s *IngestStats) Add(other IngestStats) {
	s.Recorded += other.Recorded
	s.Skipped += other.Skipped
	s.Unmapped += other.Unmapped
	s.Invalid += other.Invalid
}

// ingest tags every record with source and records it. Records that match
// no local product or fail validation are counted and dropped; only a
// storage failure aborts the batch.
func ingest(ctx context.Context, recorder *Recorder, logger *zap.Logger, source models.Source, records []models.SaleRecord) (IngestStats, error) {
	var stats IngestStats
	for _, rec := range records {
		rec.Source = source
		if rec.ProductID == 0 {
			stats.Unmapped++
			util.SalesSkippedTotal.WithLabelValues(string(source), "unmapped").Inc()
			logger.Debug("Sale has no local product",
				zap.String("source", string(source)),
				zap.String("source_record_id", rec.SourceRecordID))
			continue
		}

		result, err := recorder.RecordSale(ctx, rec)
		switch {
		case errors.Is(err, models.ErrValidation):
			stats.Invalid++
			util.SalesSkippedTotal.WithLabelValues(string(source), "invalid").Inc()
			logger.Warn("Invalid sale dropped",
				zap.String("source", string(source)),
				zap.String("source_record_id", rec.SourceRecordID),
				zap.Error(err))
		case err != nil:
			return stats, err
		case result == models.RecordResultRecorded:
			stats.Recorded++
		default:
			stats.Skipped++
		}
	}
	return stats, nil
}
