package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"sales-reconciler/internal/models"
	"sales-reconciler/internal/platform"
	"sales-reconciler/internal/redisclient"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCacheFixture(t *testing.T) (*EventCache, *fakeAdapter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	backend := redisclient.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	eb := newFakeAdapter(models.PlatformEventbrite, 0)
	eb.events = []models.EventSummary{{ID: "111", Name: "Ghost Tour", StartDate: "2025-06-01", StartTime: "19:00"}}
	return NewEventCache(backend, platform.NewRegistry(eb), time.Hour, 5*time.Minute), eb, mr
}

func TestEventCache_ServesHitsWithinTTL(t *testing.T) {
	cache, eb, mr := newCacheFixture(t)
	ctx := context.Background()
	q := platform.EventQuery{Date: "2025-06-01"}

	events, err := cache.ListEvents(ctx, q)
	require.NoError(t, err)
	require.Len(t, events, 1)

	events, err = cache.ListEvents(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, "Ghost Tour", events[0].Name)
	assert.Equal(t, 1, eb.eventCalls, "second call is served from cache")

	_, err = cache.ListEvents(ctx, platform.EventQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, eb.eventCalls, "a different query shape misses")

	mr.FastForward(61 * time.Minute)
	_, err = cache.ListEvents(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 3, eb.eventCalls)
}

func TestEventCache_ErrorsUseShortTTL(t *testing.T) {
	cache, eb, mr := newCacheFixture(t)
	ctx := context.Background()
	q := platform.EventQuery{Date: "2025-06-01"}

	eb.eventsErr = &models.UpstreamError{Platform: models.PlatformEventbrite, Op: "list_events", StatusCode: 500, Err: fmt.Errorf("boom")}
	_, err := cache.ListEvents(ctx, q)
	require.Error(t, err)

	_, err = cache.ListEvents(ctx, q)
	require.Error(t, err)
	assert.True(t, models.IsUpstream(err))
	assert.Equal(t, 1, eb.eventCalls, "cached error is not retried within its TTL")

	eb.eventsErr = nil
	mr.FastForward(6 * time.Minute)
	events, err := cache.ListEvents(ctx, q)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, 2, eb.eventCalls, "adapter is invoked again once the error TTL expires")
}

func TestEventCache_WorksWithoutBackend(t *testing.T) {
	eb := newFakeAdapter(models.PlatformEventbrite, 0)
	eb.events = []models.EventSummary{{ID: "1"}}
	cache := NewEventCache(nil, platform.NewRegistry(eb), 0, 0)

	for i := 0; i < 2; i++ {
		events, err := cache.ListEvents(context.Background(), platform.EventQuery{})
		require.NoError(t, err)
		assert.Len(t, events, 1)
	}
	assert.Equal(t, 2, eb.eventCalls)
}

func TestEventCache_RedisDownFallsThrough(t *testing.T) {
	cache, eb, mr := newCacheFixture(t)
	mr.Close()

	events, err := cache.ListEvents(context.Background(), platform.EventQuery{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, 1, eb.eventCalls)
}
