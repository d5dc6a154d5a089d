package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/platform"
	"sales-reconciler/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of records requested per import step.
const DefaultBatchSize = 25

// ImportOrchestrator drives resumable multi-source backfills. It keeps no
// state between calls: the caller threads the returned ImportState into the
// next Step.
type ImportOrchestrator struct {
	registry  *platform.Registry
	recorder  *Recorder
	publisher ImportPublisher
	batchSize int
	now       func() time.Time
	logger    *zap.Logger
}

// NewImportOrchestrator creates a new import orchestrator. publisher may be
// nil.
func NewImportOrchestrator(registry *platform.Registry, recorder *Recorder, publisher ImportPublisher, batchSize int) *ImportOrchestrator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ImportOrchestrator{
		registry:  registry,
		recorder:  recorder,
		publisher: publisher,
		batchSize: batchSize,
		now:       time.Now,
		logger:    util.GetLogger(),
	}
}

// StepResult is the outcome of one import step.
type StepResult struct {
	State          *models.ImportState `json:"state"`
	Source         string              `json:"source,omitempty"`
	Processed      int                 `json:"processed"`
	Stats          IngestStats         `json:"stats"`
	SourceComplete bool                `json:"source_complete"`
	Complete       bool                `json:"complete"`
	Progress       float64             `json:"progress"`
	Log            []models.LogEntry   `json:"log"`
}

// Start validates the request and returns the initial state of a new run.
func (o *ImportOrchestrator) Start(startDate, endDate string, sources []string) (*models.ImportState, error) {
	state := models.NewImportState(uuid.New().String(), startDate, endDate, sources)
	if err := state.Validate(); err != nil {
		return nil, err
	}
	o.logger.Info("Import started",
		zap.String("run_id", state.RunID),
		zap.String("start_date", startDate),
		zap.String("end_date", endDate),
		zap.Strings("sources", sources))
	return state, nil
}

// Step processes one page of the active source.
//
// A source whose listing is exhausted is marked complete in the call that
// drains it; the index moves past it at the start of the next call. Unknown
// or unconfigured sources are skipped within the same call. On error the
// result carries the untouched input state and the log, so retrying with the
// same state is safe.
func (o *ImportOrchestrator) Step(ctx context.Context, state *models.ImportState) (*StepResult, error) {
	ctx, span := util.StartSpan(ctx, "ImportOrchestrator.Step")
	defer span.End()

	if state == nil {
		return nil, models.Validationf("import state is required")
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}
	start, end, _ := state.Range()

	next := state.Clone()
	res := &StepResult{}

	for !next.Complete() {
		src := &next.Sources[next.SourceIndex]
		if src.Status == models.SourceComplete {
			o.advance(next, res)
			continue
		}

		adapter, err := o.registry.Get(src.Name)
		if err != nil {
			reason := "unknown source"
			if errors.Is(err, models.ErrConfigIncomplete) {
				reason = "platform not configured"
			}
			src.Status = models.SourceComplete
			o.log(res, src.Name, "skip", "skipped", reason)
			util.ImportStepsTotal.WithLabelValues(src.Name, "skipped").Inc()
			o.logger.Warn("Import source skipped",
				zap.String("run_id", next.RunID),
				zap.String("source", src.Name),
				zap.String("reason", reason))
			o.advance(next, res)
			continue
		}

		if src.Status == models.SourcePending {
			src.Status = models.SourceActive
			src.Cursor = models.InitialCursor(adapter.CursorKind())
		}

		if err := o.processPage(ctx, next, src, adapter, start, end, res); err != nil {
			util.RecordError(span, err)
			util.ImportStepsTotal.WithLabelValues(src.Name, "error").Inc()
			o.log(res, src.Name, "fetch", "error", err.Error())
			o.logger.Error("Import step failed",
				zap.String("run_id", next.RunID),
				zap.String("source", src.Name),
				zap.Error(err))
			res.State = state
			res.Progress = state.Progress()
			return res, fmt.Errorf("import step for %s failed: %w", src.Name, err)
		}
		break
	}

	res.State = next
	res.Complete = next.Complete()
	res.Progress = next.Progress()
	if res.Complete {
		o.log(res, "", "import", "complete", fmt.Sprintf("%d records processed", next.TotalProcessed))
	}
	o.publish(ctx, res)
	return res, nil
}

func (o *ImportOrchestrator) processPage(ctx context.Context, state *models.ImportState, src *models.SourceProgress, adapter platform.Adapter, start, end time.Time, res *StepResult) error {
	page, err := adapter.ListSales(ctx, start, end, src.Cursor, o.batchSize)
	if err != nil {
		return err
	}

	stats, err := ingest(ctx, o.recorder, o.logger, models.ImportSource(adapter.Platform()), page.Records)
	if err != nil {
		return err
	}

	processed := page.Fetched
	if processed == 0 {
		processed = len(page.Records)
	}

	src.Processed += processed
	if page.Total > 0 {
		src.Total = page.Total
	}
	state.TotalProcessed += processed

	res.Source = src.Name
	res.Processed = processed
	res.Stats = stats
	util.ImportRecordsTotal.WithLabelValues(src.Name).Add(float64(processed))
	o.log(res, src.Name, "fetch", "ok", fmt.Sprintf("%d processed, %d recorded, %d skipped, %d unmapped",
		processed, stats.Recorded, stats.Skipped, stats.Unmapped))

	if page.HasMore && page.Next != nil {
		src.Cursor = *page.Next
		util.ImportStepsTotal.WithLabelValues(src.Name, "page").Inc()
		return nil
	}

	src.Status = models.SourceComplete
	res.SourceComplete = true
	util.ImportStepsTotal.WithLabelValues(src.Name, "complete").Inc()
	o.log(res, src.Name, "source", "complete", fmt.Sprintf("%d processed in total", src.Processed))
	o.logger.Info("Import source complete",
		zap.String("run_id", state.RunID),
		zap.String("source", src.Name),
		zap.Int("processed", src.Processed))
	return nil
}

// advance moves past the current source and resets every later source to
// its initial, pending state.
func (o *ImportOrchestrator) advance(state *models.ImportState, res *StepResult) {
	state.SourceIndex++
	for i := state.SourceIndex; i < len(state.Sources); i++ {
		state.Sources[i].Status = models.SourcePending
		state.Sources[i].Cursor = models.Cursor{}
		state.Sources[i].Processed = 0
		state.Sources[i].Total = 0
	}
	if !state.Complete() {
		o.log(res, state.Sources[state.SourceIndex].Name, "advance", "ok", "source activated")
	}
}

func (o *ImportOrchestrator) log(res *StepResult, source, action, outcome, message string) {
	res.Log = append(res.Log, models.LogEntry{
		Time:    o.now(),
		Source:  source,
		Action:  action,
		Outcome: outcome,
		Message: message,
	})
}

func (o *ImportOrchestrator) publish(ctx context.Context, res *StepResult) {
	if o.publisher == nil {
		return
	}
	event := &models.ImportStepEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeImportStep,
			Timestamp: o.now(),
		},
		RunID:          res.State.RunID,
		Source:         res.Source,
		Processed:      res.Processed,
		TotalProcessed: res.State.TotalProcessed,
		Progress:       res.Progress,
		Complete:       res.Complete,
	}
	if err := o.publisher.PublishImportStep(ctx, event); err != nil {
		o.logger.Error("Failed to publish ImportStep event", zap.Error(err))
	}
}
