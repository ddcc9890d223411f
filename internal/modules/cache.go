package modules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// LoadFunc reads, compiles and evaluates a freshly registered record. It
// returns once the record has run to completion or failed.
type LoadFunc func(ctx context.Context, rec *Record) error

// chain is one logical import sequence: a top-level load and every static
// import it pulls in on the same goroutine. Records remember the chain that
// created them so re-entrance can be told apart from concurrency.
type chain struct {
	waiting *Record // guarded by Cache.mu
}

type chainKey struct{}

// Detached returns ctx without any import chain, for loads that start a new
// logical sequence such as a dynamic import issued from a running module.
func Detached(ctx context.Context) context.Context {
	return context.WithValue(ctx, chainKey{}, (*chain)(nil))
}

func chainFrom(ctx context.Context) (*chain, context.Context) {
	if ch, _ := ctx.Value(chainKey{}).(*chain); ch != nil {
		return ch, ctx
	}
	ch := &chain{}
	return ch, context.WithValue(ctx, chainKey{}, ch)
}

// CacheStats are cumulative cache counters.
type CacheStats struct {
	Loads     int64 // records created
	Hits      int64 // lookups answered by an existing record without waiting
	Coalesced int64 // lookups that waited for another in-flight load
	Dropped   int64 // records removed after failing before evaluation
}

// Cache maps canonical paths to module records. It holds at most one record
// per path and funnels every insertion through GetOrLoad.
type Cache struct {
	mu      sync.Mutex
	records map[string]*Record

	loads, hits, coalesced, dropped atomic.Int64

	observe func(event string)
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return NewObservedCache(nil)
}

// NewObservedCache creates an empty cache that reports "load", "hit",
// "coalesced" and "dropped" events to observe.
func NewObservedCache(observe func(event string)) *Cache {
	if observe == nil {
		observe = func(string) {}
	}
	return &Cache{records: make(map[string]*Record), observe: observe}
}

// GetOrLoad returns the record for path, creating it with load when absent.
//
// A terminal record is returned as is, together with its failure if it
// failed. A record that is still loading on another chain is waited for, so
// concurrent callers share one load. A record that is still loading on the
// caller's own chain, or on a chain that is itself waiting on the caller, is
// a cycle: it is returned immediately in its partially initialised state.
func (c *Cache) GetOrLoad(ctx context.Context, path string, load LoadFunc) (*Record, error) {
	ch, ctx := chainFrom(ctx)

	c.mu.Lock()
	if rec, ok := c.records[path]; ok {
		if rec.Status().Terminal() {
			c.mu.Unlock()
			c.hit()
			return rec, rec.Err()
		}
		if c.reentrant(rec, ch) {
			c.mu.Unlock()
			c.hit()
			return rec, nil
		}
		ch.waiting = rec
		c.mu.Unlock()
		c.coalesced.Add(1)
		c.observe("coalesced")
		return c.wait(ctx, ch, rec)
	}

	rec := newRecord(path, ch)
	c.records[path] = rec
	c.mu.Unlock()
	c.loads.Add(1)
	c.observe("load")

	err := c.run(ctx, rec, load)
	return rec, err
}

// hit counts a lookup answered without waiting. Lookups that wait count as
// coalesced instead, never as both.
func (c *Cache) hit() {
	c.hits.Add(1)
	c.observe("hit")
}

func (c *Cache) wait(ctx context.Context, ch *chain, rec *Record) (*Record, error) {
	select {
	case <-rec.done:
	case <-ctx.Done():
	}

	c.mu.Lock()
	ch.waiting = nil
	c.mu.Unlock()

	select {
	case <-rec.done:
		return rec, rec.Err()
	default:
		return nil, ctx.Err()
	}
}

func (c *Cache) run(ctx context.Context, rec *Record, load LoadFunc) (err error) {
	defer func() {
		if p := recover(); p != nil {
			c.complete(rec, fmt.Errorf("module loader panic: %v", p))
			panic(p)
		}
	}()

	err = load(ctx, rec)
	c.complete(rec, err)
	return err
}

// complete settles rec. Records that fail before evaluation starts ran no
// module code and are dropped so a later import retries them.
func (c *Cache) complete(rec *Record, err error) {
	c.mu.Lock()
	if err != nil && rec.Status() == StatusPending {
		if c.records[rec.Path] == rec {
			delete(c.records, rec.Path)
		}
		c.dropped.Add(1)
		c.observe("dropped")
	}
	rec.owner = nil
	c.mu.Unlock()

	rec.finish(err)
}

// reentrant follows the wait-for graph from rec's owner. Reaching me means
// waiting would deadlock.
func (c *Cache) reentrant(rec *Record, me *chain) bool {
	seen := make(map[*chain]bool)
	for o := rec.owner; o != nil && !seen[o]; {
		if o == me {
			return true
		}
		seen[o] = true
		if o.waiting == nil {
			return false
		}
		o = o.waiting.owner
	}
	return false
}

// Get returns the record for path without loading it.
func (c *Cache) Get(path string) (*Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[path]
	return rec, ok
}

// Len returns the number of records.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Paths returns the cached paths in sorted order.
func (c *Cache) Paths() []string {
	c.mu.Lock()
	paths := make([]string, 0, len(c.records))
	for p := range c.records {
		paths = append(paths, p)
	}
	c.mu.Unlock()

	sort.Strings(paths)
	return paths
}

// Stats returns the cumulative counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Loads:     c.loads.Load(),
		Hits:      c.hits.Load(),
		Coalesced: c.coalesced.Load(),
		Dropped:   c.dropped.Load(),
	}
}
