// Package collection keeps a local, ordered cache of remote records that is
// replaced wholesale on every successful refresh.
package collection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/whole-tale/girder-wt-data-manager/internal/events"
)

// Record is anything with a stable identity.
type Record interface {
	RecordID() string
}

// Fetcher retrieves the complete current listing of a resource.
type Fetcher[T Record] func(ctx context.Context) ([]T, error)

// Collection caches the records returned by the last successful fetch.
// It is safe for concurrent use.
type Collection[T Record] struct {
	name  string
	fetch Fetcher[T]
	bus   *events.EventBus
	now   func() time.Time

	mu          sync.RWMutex
	order       []string
	byID        map[string]T
	generation  uint64
	lastRefresh time.Time
}

// New creates an empty collection. bus may be nil.
func New[T Record](name string, fetch Fetcher[T], bus *events.EventBus) *Collection[T] {
	return &Collection[T]{
		name:  name,
		fetch: fetch,
		bus:   bus,
		now:   time.Now,
		byID:  make(map[string]T),
	}
}

// Name returns the collection's name, e.g. "containers".
func (c *Collection[T]) Name() string { return c.name }

// Refresh fetches the listing once. On success the cache is replaced in
// full and a collection_changed event is published. On failure the cache is
// left untouched.
func (c *Collection[T]) Refresh(ctx context.Context) error {
	recs, err := c.fetch(ctx)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", c.name, err)
	}

	order := make([]string, 0, len(recs))
	byID := make(map[string]T, len(recs))
	for _, rec := range recs {
		id := rec.RecordID()
		if _, seen := byID[id]; !seen {
			order = append(order, id)
		}
		byID[id] = rec
	}

	c.mu.Lock()
	c.order = order
	c.byID = byID
	c.generation++
	c.lastRefresh = c.now()
	gen := c.generation
	at := c.lastRefresh
	c.mu.Unlock()

	c.bus.Publish(&events.CollectionChangedEvent{
		BaseEvent:  events.BaseEvent{EventType: events.EventCollectionChanged, Time: at},
		Collection: c.name,
		Count:      len(order),
		Generation: gen,
	})
	return nil
}

// All returns a copy of the cached records in listing order.
func (c *Collection[T]) All() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]T, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// Get returns the cached record with the given id.
func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.byID[id]
	return rec, ok
}

// Len returns the number of cached records.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Generation counts successful refreshes.
func (c *Collection[T]) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// LastRefresh returns when the cache was last replaced, or the zero time.
func (c *Collection[T]) LastRefresh() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefresh
}
