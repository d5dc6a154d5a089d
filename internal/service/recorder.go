package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder is the sales ledger. Each (platform, source record id) is stored
// at most once; replays return models.RecordResultSkipped. The key ignores
// the live/import tag, so a backfilled record never re-counts a sale the
// live sync already stored, and vice versa.
type Recorder struct {
	repo      SalesRepository
	publisher SalePublisher
	location  *time.Location
	now       func() time.Time
	logger    *zap.Logger
}

// NewRecorder creates a new recorder. publisher may be nil; loc is the
// venue's local timezone.
func NewRecorder(repo SalesRepository, publisher SalePublisher, loc *time.Location) *Recorder {
	if loc == nil {
		loc = time.UTC
	}
	return &Recorder{
		repo:      repo,
		publisher: publisher,
		location:  loc,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

// RecordSale validates and stores rec. The daily aggregate is keyed on the
// occurrence date, falling back to the purchase date and then to the local
// day of recording.
func (r *Recorder) RecordSale(ctx context.Context, rec models.SaleRecord) (models.RecordResult, error) {
	ctx, span := util.StartSpan(ctx, "Recorder.RecordSale")
	defer span.End()

	if err := validateSale(&rec); err != nil {
		return "", err
	}

	now := r.now()
	rec.ID = 0
	rec.Platform = rec.Source.Platform()
	rec.RecordedAt = now.UTC()
	switch {
	case rec.EventDate != nil:
		rec.SaleDate = *rec.EventDate
	case rec.SaleDate.IsZero():
		local := now.In(r.location)
		rec.SaleDate = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	}

	exists, err := r.repo.SaleExists(ctx, rec.Platform, rec.SourceRecordID)
	if err != nil {
		util.RecordError(span, err)
		return "", fmt.Errorf("failed to check sale %s: %w", rec.DedupKey(), err)
	}
	if exists {
		return r.skipped(&rec), nil
	}

	inserted, err := r.repo.InsertSale(ctx, &rec)
	if err != nil {
		util.RecordError(span, err)
		return "", fmt.Errorf("failed to record sale: %w", err)
	}
	if !inserted {
		// lost a race with a concurrent writer of the same key
		return r.skipped(&rec), nil
	}

	util.SalesRecordedTotal.WithLabelValues(string(rec.Source)).Inc()
	r.logger.Info("Sale recorded",
		zap.String("source", string(rec.Source)),
		zap.String("source_record_id", rec.SourceRecordID),
		zap.Int64("product_id", rec.ProductID),
		zap.Int("quantity", rec.Quantity),
		util.Email("customer_email", rec.CustomerEmail))

	r.publish(ctx, &rec)
	return models.RecordResultRecorded, nil
}

func (r *Recorder) skipped(rec *models.SaleRecord) models.RecordResult {
	util.SalesSkippedTotal.WithLabelValues(string(rec.Source), "duplicate").Inc()
	r.logger.Debug("Duplicate sale skipped",
		zap.String("source", string(rec.Source)),
		zap.String("source_record_id", rec.SourceRecordID))
	return models.RecordResultSkipped
}

func (r *Recorder) publish(ctx context.Context, rec *models.SaleRecord) {
	if r.publisher == nil {
		return
	}
	event := &models.SaleRecordedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSaleRecorded,
			Timestamp: r.now(),
		},
		ProductID:      rec.ProductID,
		Quantity:       rec.Quantity,
		Source:         rec.Source,
		SourceRecordID: rec.SourceRecordID,
		EventDate:      rec.EventDateKey(),
		EventTime:      rec.EventTime,
		GrossAmount:    rec.GrossAmount.String(),
		Currency:       rec.Currency,
	}
	if err := r.publisher.PublishSaleRecorded(ctx, event); err != nil {
		r.logger.Error("Failed to publish SaleRecorded event",
			zap.String("source_record_id", rec.SourceRecordID),
			zap.Error(err))
	}
}

func validateSale(rec *models.SaleRecord) error {
	switch {
	case rec.ProductID <= 0:
		return models.Validationf("product id is required")
	case rec.Quantity <= 0:
		return models.Validationf("quantity must be positive, got %d", rec.Quantity)
	case !rec.Source.Valid():
		return models.Validationf("unknown source %q", rec.Source)
	case rec.SourceRecordID == "":
		return models.Validationf("source record id is required")
	case rec.GrossAmount.IsNegative():
		return models.Validationf("gross amount must not be negative")
	case rec.Currency != "" && len(rec.Currency) != 3:
		return models.Validationf("invalid currency %q", rec.Currency)
	}
	return nil
}

// ResetTodaysSalesData removes every record stored during the current local
// day and rolls back the daily counters. It reports whether anything was
// removed.
func (r *Recorder) ResetTodaysSalesData(ctx context.Context) (bool, error) {
	local := r.now().In(r.location)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.location)
	to := from.AddDate(0, 0, 1)

	removed, err := r.repo.DeleteSalesRecordedBetween(ctx, from.UTC(), to.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to reset today's sales: %w", err)
	}

	util.SalesResetTotal.Add(float64(removed))
	r.logger.Warn("Today's sales data reset",
		zap.String("date", from.Format(models.DateLayout)),
		zap.Int("removed", removed))
	return removed > 0, nil
}

// IsValidation reports whether err was caused by bad input.
func IsValidation(err error) bool {
	return errors.Is(err, models.ErrValidation)
}
