package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

var ErrTypeMismatch = errors.New("query: cached value has a different type")

type Options struct {
	// StaleTime is how long a successful result is served without refetching.
	// Zero means results are stale immediately.
	StaleTime time.Duration
	Logger    *slog.Logger
	Now       func() time.Time
}

// Client is the query cache shared by every Query and Mutation bound to it.
// Failed fetches are never retried.
type Client struct {
	mu      sync.Mutex
	entries map[string]*entry
	nextID  int

	flights   singleflight.Group
	staleTime time.Duration
	log       *slog.Logger
	now       func() time.Time
}

type entry struct {
	key         Key
	data        any
	hasData     bool
	err         error
	status      Status
	fetching    int
	updatedAt   time.Time
	invalidated bool
	observers   map[int]*observer
}

type observer struct {
	refetch func(ctx context.Context) error
	notify  func()
}

type snapshot struct {
	data        any
	hasData     bool
	err         error
	status      Status
	fetching    bool
	updatedAt   time.Time
	invalidated bool
}

func NewClient(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		entries:   make(map[string]*entry),
		staleTime: opts.StaleTime,
		log:       log.With("component", "query"),
		now:       now,
	}
}

func (c *Client) entryLocked(key Key) *entry {
	k := key.String()
	e, ok := c.entries[k]
	if !ok {
		e = &entry{key: append(Key(nil), key...), status: StatusIdle, observers: make(map[int]*observer)}
		c.entries[k] = e
	}
	return e
}

func (c *Client) observe(key Key, o *observer) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.entryLocked(key).observers[c.nextID] = o
	return c.nextID
}

func (c *Client) unobserve(key Key, id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key.String()]; ok {
		delete(e.observers, id)
	}
}

func (c *Client) snapshot(key Key) snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return snapshot{status: StatusIdle}
	}
	return snapshot{
		data:        e.data,
		hasData:     e.hasData,
		err:         e.err,
		status:      e.status,
		fetching:    e.fetching > 0,
		updatedAt:   e.updatedAt,
		invalidated: e.invalidated,
	}
}

func (c *Client) isStale(s snapshot) bool {
	if !s.hasData || s.invalidated {
		return true
	}
	return c.now().Sub(s.updatedAt) >= c.staleTime
}

// run executes fn for key. Concurrent runs of one key share a single call,
// which is detached from any one caller's cancellation; a caller whose ctx
// ends stops waiting while the shared call completes for the others.
func (c *Client) run(ctx context.Context, key Key, fn func(ctx context.Context) (any, error)) (any, error) {
	k := key.String()
	ch := c.flights.DoChan(k, func() (any, error) {
		c.update(key, func(e *entry) {
			e.fetching++
			e.status = StatusLoading
		})
		v, err := fn(context.WithoutCancel(ctx))
		c.update(key, func(e *entry) {
			e.fetching--
			if err != nil {
				e.err = err
				e.status = StatusError
				return
			}
			e.data, e.hasData, e.err = v, true, nil
			e.status = StatusSuccess
			e.updatedAt = c.now()
			e.invalidated = false
		})
		if err != nil {
			c.log.Debug("query_failed", "key", k, "error", err)
		}
		return v, err
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) update(key Key, fn func(e *entry)) {
	c.mu.Lock()
	e := c.entryLocked(key)
	fn(e)
	notify := make([]func(), 0, len(e.observers))
	for _, o := range e.observers {
		notify = append(notify, o.notify)
	}
	c.mu.Unlock()

	for _, n := range notify {
		n()
	}
}

// SetData replaces the cached value for key, as after an optimistic update.
func (c *Client) SetData(key Key, v any) {
	c.update(key, func(e *entry) {
		e.data, e.hasData, e.err = v, true, nil
		e.status = StatusSuccess
		e.updatedAt = c.now()
		e.invalidated = false
	})
}

// Remove drops cached data for every key under prefix. Active queries keep
// observing and refetch on their next Fetch.
func (c *Client) Remove(prefix Key) {
	c.mu.Lock()
	for k, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		if len(e.observers) == 0 {
			delete(c.entries, k)
			continue
		}
		e.data, e.hasData, e.err = nil, false, nil
		e.status = StatusIdle
	}
	c.mu.Unlock()
}

// Invalidate marks every entry under the given prefixes stale and refetches
// the ones that have an active query, waiting for those refetches to finish.
func (c *Client) Invalidate(ctx context.Context, prefixes ...Key) error {
	c.mu.Lock()
	var refetches []func(ctx context.Context) error
	var keys []string
	for k, e := range c.entries {
		if !matchesAny(e.key, prefixes) {
			continue
		}
		e.invalidated = true
		for _, o := range e.observers {
			refetches = append(refetches, o.refetch)
			keys = append(keys, k)
			break
		}
	}
	c.mu.Unlock()

	errs := make([]error, len(refetches))
	var wg sync.WaitGroup
	for i, refetch := range refetches {
		wg.Add(1)
		go func(i int, refetch func(ctx context.Context) error) {
			defer wg.Done()
			if err := refetch(ctx); err != nil {
				errs[i] = fmt.Errorf("refetch %s: %w", keys[i], err)
			}
		}(i, refetch)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func matchesAny(key Key, prefixes []Key) bool {
	for _, p := range prefixes {
		if key.HasPrefix(p) {
			return true
		}
	}
	return false
}
