package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/platform"
	"sales-reconciler/internal/timeparse"
	"sales-reconciler/internal/util"

	"go.uber.org/zap"
)

// ErrSyncInProgress is returned when another live sync holds the lock.
var ErrSyncInProgress = errors.New("live sync already in progress")

const (
	syncLockTTL  = 10 * time.Minute
	syncMaxPages = 200
)

// SyncConfig tunes live syncs.
type SyncConfig struct {
	// Interval is the minimum time between unforced syncs of one scope.
	Interval time.Duration
	// LookbackDays is the purchase window scanned when re-syncing a single
	// occurrence from order and POS platforms.
	LookbackDays int
	BatchSize    int
	Location     *time.Location
}

// PlatformSyncResult is the outcome of one platform within a sync.
type PlatformSyncResult struct {
	Platform models.Platform `json:"platform"`
	Fetched  int             `json:"fetched"`
	Stats    IngestStats     `json:"stats"`
	Error    string          `json:"error,omitempty"`
}

// SyncResult is the outcome of a live sync.
type SyncResult struct {
	Scope     string               `json:"scope"`
	Throttled bool                 `json:"throttled"`
	Platforms []PlatformSyncResult `json:"platforms"`
	Stats     IngestStats          `json:"stats"`
}

// SyncService pulls recent sales from every configured platform and records
// them with live source tags.
type SyncService struct {
	registry *platform.Registry
	recorder *Recorder
	mappings *MappingService
	locker   Locker
	cfg      SyncConfig
	now      func() time.Time
	logger   *zap.Logger

	mu       sync.Mutex
	lastRuns map[string]time.Time
}

// NewSyncService creates a new sync service. locker may be nil.
func NewSyncService(registry *platform.Registry, recorder *Recorder, mappings *MappingService, locker Locker, cfg SyncConfig) *SyncService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 30
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &SyncService{
		registry: registry,
		recorder: recorder,
		mappings: mappings,
		locker:   locker,
		cfg:      cfg,
		now:      time.Now,
		logger:   util.GetLogger(),
		lastRuns: make(map[string]time.Time),
	}
}

// SyncToday records every sale purchased on the current local day. Unless
// force is set, a run within the configured interval of the previous one is
// throttled.
func (s *SyncService) SyncToday(ctx context.Context, force bool) (*SyncResult, error) {
	ctx, span := util.StartSpan(ctx, "SyncService.SyncToday")
	defer span.End()

	today := s.today()
	scope := "today"
	return s.run(ctx, scope, force, func(ctx context.Context, res *SyncResult) error {
		for _, adapter := range s.registry.Configured() {
			pr := s.drain(ctx, adapter, func(ctx context.Context, cursor models.Cursor) (*platform.Page, error) {
				return adapter.ListSales(ctx, today, today, cursor, s.cfg.BatchSize)
			}, nil)
			res.Platforms = append(res.Platforms, pr)
			res.Stats.Add(pr.Stats)
		}
		return nil
	})
}

// SyncProductDate re-reads the sales of one product occurrence from every
// configured platform.
func (s *SyncService) SyncProductDate(ctx context.Context, productID int64, date time.Time, force bool) (*SyncResult, error) {
	ctx, span := util.StartSpan(ctx, "SyncService.SyncProductDate")
	defer span.End()

	if productID <= 0 {
		return nil, models.Validationf("product id is required")
	}
	if date.IsZero() {
		return nil, models.Validationf("date is required")
	}
	dateKey := date.Format(models.DateLayout)
	scope := fmt.Sprintf("product:%d:%s", productID, dateKey)

	// Event listings only hold sales of events mapped to the product, so an
	// unresolved record there belongs to it.
	keepEvent := func(rec *models.SaleRecord) bool {
		if rec.EventDateKey() != dateKey {
			return false
		}
		if rec.ProductID == 0 {
			rec.ProductID = productID
		}
		return rec.ProductID == productID
	}
	// Window listings mix every product; unresolved records pass through to
	// be counted as unmapped, never attributed.
	keepWindow := func(rec *models.SaleRecord) bool {
		if rec.EventDateKey() != dateKey {
			return false
		}
		return rec.ProductID == productID || rec.ProductID == 0
	}

	return s.run(ctx, scope, force, func(ctx context.Context, res *SyncResult) error {
		for _, adapter := range s.registry.Configured() {
			var pr PlatformSyncResult
			if lister, ok := adapter.(platform.EventSalesLister); ok {
				pr = s.syncEvents(ctx, adapter, lister, productID, dateKey, keepEvent)
			} else {
				pr = s.syncWindow(ctx, adapter, keepWindow)
			}
			res.Platforms = append(res.Platforms, pr)
			res.Stats.Add(pr.Stats)
		}
		return nil
	})
}

// syncEvents reads the attendees of every event the product maps to on
// dateKey.
func (s *SyncService) syncEvents(ctx context.Context, adapter platform.Adapter, lister platform.EventSalesLister, productID int64, dateKey string, keep func(*models.SaleRecord) bool) PlatformSyncResult {
	eventIDs := s.productEvents(ctx, productID, dateKey)
	total := PlatformSyncResult{Platform: adapter.Platform()}
	for _, eventID := range eventIDs {
		eventID := eventID
		pr := s.drain(ctx, adapter, func(ctx context.Context, cursor models.Cursor) (*platform.Page, error) {
			return lister.ListEventSales(ctx, eventID, cursor)
		}, keep)
		total.Fetched += pr.Fetched
		total.Stats.Add(pr.Stats)
		if pr.Error != "" {
			total.Error = pr.Error
		}
	}
	return total
}

// productEvents lists the ticketing events of a product on dateKey: every
// override of that date, else the resolved mapping.
func (s *SyncService) productEvents(ctx context.Context, productID int64, dateKey string) []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, m := range s.mappings.GetAllMappings(ctx) {
		if m.ProductID != productID {
			continue
		}
		for _, key := range sortedOverrideKeys(m.DateOverrides) {
			if d, _ := timeparse.SplitDateKey(key); d == dateKey {
				add(m.DateOverrides[key].TicketingEventID)
			}
		}
	}
	if len(ids) == 0 {
		add(s.mappings.GetMapping(ctx, productID, dateKey, "").TicketingEventID)
	}
	return ids
}

// syncWindow scans the lookback purchase window of a platform.
func (s *SyncService) syncWindow(ctx context.Context, adapter platform.Adapter, keep func(*models.SaleRecord) bool) PlatformSyncResult {
	end := s.today()
	start := end.AddDate(0, 0, -s.cfg.LookbackDays)
	return s.drain(ctx, adapter, func(ctx context.Context, cursor models.Cursor) (*platform.Page, error) {
		return adapter.ListSales(ctx, start, end, cursor, s.cfg.BatchSize)
	}, keep)
}

type pageFunc func(ctx context.Context, cursor models.Cursor) (*platform.Page, error)

// drain pages through a listing until exhaustion, recording every kept
// record. Failures are reported in the result; records already recorded
// stay recorded.
func (s *SyncService) drain(ctx context.Context, adapter platform.Adapter, fetch pageFunc, keep func(*models.SaleRecord) bool) PlatformSyncResult {
	res := PlatformSyncResult{Platform: adapter.Platform()}
	source := models.LiveSource(adapter.Platform())
	cursor := models.InitialCursor(adapter.CursorKind())

	for pageNum := 0; pageNum < syncMaxPages; pageNum++ {
		page, err := fetch(ctx, cursor)
		if err != nil {
			res.Error = err.Error()
			s.logger.Error("Live sync page failed",
				zap.String("platform", string(adapter.Platform())),
				zap.Error(err))
			return res
		}
		res.Fetched += page.Fetched

		records := page.Records
		if keep != nil {
			records = nil
			for _, rec := range page.Records {
				if keep(&rec) {
					records = append(records, rec)
				}
			}
		}

		stats, err := ingest(ctx, s.recorder, s.logger, source, records)
		res.Stats.Add(stats)
		if err != nil {
			res.Error = err.Error()
			return res
		}
		if !page.HasMore || page.Next == nil {
			return res
		}
		cursor = *page.Next
	}
	s.logger.Warn("Live sync stopped at page limit",
		zap.String("platform", string(adapter.Platform())),
		zap.Int("pages", syncMaxPages))
	return res
}

// run applies the interval throttle and the cross-process lock around fn.
func (s *SyncService) run(ctx context.Context, scope string, force bool, fn func(context.Context, *SyncResult) error) (*SyncResult, error) {
	res := &SyncResult{Scope: scope}

	if !force && s.recentlyRun(scope) {
		util.LiveSyncRunsTotal.WithLabelValues(scopeLabel(scope), "throttled").Inc()
		res.Throttled = true
		return res, nil
	}

	if s.locker != nil {
		lockKey := "live-sync:" + scope
		token, ok, err := s.locker.AcquireLock(ctx, lockKey, syncLockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire sync lock: %w", err)
		}
		if !ok {
			util.LiveSyncRunsTotal.WithLabelValues(scopeLabel(scope), "locked").Inc()
			return nil, ErrSyncInProgress
		}
		defer func() {
			if err := s.locker.ReleaseLock(context.Background(), lockKey, token); err != nil {
				s.logger.Warn("Failed to release sync lock", zap.String("scope", scope), zap.Error(err))
			}
		}()
	}

	if err := fn(ctx, res); err != nil {
		util.LiveSyncRunsTotal.WithLabelValues(scopeLabel(scope), "error").Inc()
		return nil, err
	}

	s.mu.Lock()
	s.lastRuns[scope] = s.now()
	s.mu.Unlock()

	outcome := "ok"
	for _, p := range res.Platforms {
		if p.Error != "" {
			outcome = "partial"
		}
	}
	util.LiveSyncRunsTotal.WithLabelValues(scopeLabel(scope), outcome).Inc()
	s.logger.Info("Live sync finished",
		zap.String("scope", scope),
		zap.Int("recorded", res.Stats.Recorded),
		zap.Int("skipped", res.Stats.Skipped),
		zap.Int("unmapped", res.Stats.Unmapped))
	return res, nil
}

func (s *SyncService) recentlyRun(scope string) bool {
	if s.cfg.Interval <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastRuns[scope]
	return ok && s.now().Sub(last) < s.cfg.Interval
}

func (s *SyncService) today() time.Time {
	local := s.now().In(s.cfg.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func scopeLabel(scope string) string {
	if scope == "today" {
		return scope
	}
	return "product"
}
