package service

import (
	"context"
	"errors"
	"time"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/platform"
	"sales-reconciler/internal/util"

	"go.uber.org/zap"
)

// Default event cache TTLs.
const (
	DefaultEventCacheTTL      = time.Hour
	DefaultEventCacheErrorTTL = 5 * time.Minute
)

// cachedEvents is the stored cache value. A non-empty Error records a failed
// upstream call.
type cachedEvents struct {
	Events []models.EventSummary `json:"events"`
	Error  string                `json:"error,omitempty"`
}

// EventCache serves ticketing event listings through a TTL cache. Failed
// listings are cached for a shorter TTL. The cache only affects latency: a
// missing or failing backend falls through to the platform.
type EventCache struct {
	backend    JSONCache
	registry   *platform.Registry
	platform   models.Platform
	successTTL time.Duration
	errorTTL   time.Duration
	logger     *zap.Logger
}

// NewEventCache creates an event cache over the Eventbrite adapter of
// registry. backend may be nil.
func NewEventCache(backend JSONCache, registry *platform.Registry, successTTL, errorTTL time.Duration) *EventCache {
	if successTTL <= 0 {
		successTTL = DefaultEventCacheTTL
	}
	if errorTTL <= 0 {
		errorTTL = DefaultEventCacheErrorTTL
	}
	return &EventCache{
		backend:    backend,
		registry:   registry,
		platform:   models.PlatformEventbrite,
		successTTL: successTTL,
		errorTTL:   errorTTL,
		logger:     util.GetLogger(),
	}
}

// ListEvents returns the events matching q.
func (c *EventCache) ListEvents(ctx context.Context, q platform.EventQuery) ([]models.EventSummary, error) {
	adapter, err := c.registry.Get(string(c.platform))
	if err != nil {
		return nil, err
	}
	lister, ok := adapter.(platform.EventLister)
	if !ok {
		return nil, models.Validationf("%s does not list events", c.platform)
	}

	key := q.CacheKey(c.platform)
	if entry, ok := c.lookup(ctx, key); ok {
		if entry.Error != "" {
			util.EventCacheLookupsTotal.WithLabelValues("error_hit").Inc()
			return nil, &models.UpstreamError{Platform: c.platform, Op: "list_events", Err: errors.New(entry.Error)}
		}
		util.EventCacheLookupsTotal.WithLabelValues("hit").Inc()
		return entry.Events, nil
	}
	util.EventCacheLookupsTotal.WithLabelValues("miss").Inc()

	events, err := lister.ListEvents(ctx, q)
	if err != nil {
		if models.IsUpstream(err) {
			c.store(ctx, key, cachedEvents{Error: err.Error()}, c.errorTTL)
		}
		return nil, err
	}
	if events == nil {
		events = []models.EventSummary{}
	}
	c.store(ctx, key, cachedEvents{Events: events}, c.successTTL)
	return events, nil
}

func (c *EventCache) lookup(ctx context.Context, key string) (cachedEvents, bool) {
	var entry cachedEvents
	if c.backend == nil {
		return entry, false
	}
	found, err := c.backend.GetJSON(ctx, key, &entry)
	if err != nil {
		c.logger.Warn("Event cache read failed", zap.String("key", key), zap.Error(err))
		return entry, false
	}
	return entry, found
}

func (c *EventCache) store(ctx context.Context, key string, entry cachedEvents, ttl time.Duration) {
	if c.backend == nil {
		return
	}
	if err := c.backend.SetJSON(ctx, key, entry, ttl); err != nil {
		c.logger.Warn("Event cache write failed", zap.String("key", key), zap.Error(err))
	}
}
