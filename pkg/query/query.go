package query

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type Fetcher[T any] func(ctx context.Context, key Key) (T, error)

type State[T any] struct {
	Data      T
	HasData   bool
	Err       error
	Status    Status
	IsLoading bool
	IsStale   bool
	UpdatedAt time.Time
}

// Query is an active, observed view of one cache entry.
type Query[T any] struct {
	c     *Client
	fetch Fetcher[T]

	mu     sync.Mutex
	key    Key
	obsID  int
	subs   map[int]func(State[T])
	nextID int
	closed bool
}

func NewQuery[T any](c *Client, key Key, fetch Fetcher[T]) *Query[T] {
	q := &Query[T]{c: c, fetch: fetch, key: key, subs: make(map[int]func(State[T]))}
	q.obsID = c.observe(key, q.observer(key))
	return q
}

func (q *Query[T]) observer(key Key) *observer {
	return &observer{
		refetch: func(ctx context.Context) error {
			_, err := q.load(ctx, key)
			return err
		},
		notify: q.publish,
	}
}

func (q *Query[T]) Key() Key {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.key
}

// Fetch returns the cached result while it is fresh and runs the fetcher
// otherwise.
func (q *Query[T]) Fetch(ctx context.Context) (T, error) {
	key := q.Key()
	s := q.c.snapshot(key)
	if s.status == StatusSuccess && !q.c.isStale(s) {
		return cast[T](s.data)
	}
	return q.load(ctx, key)
}

// Refetch always runs the fetcher.
func (q *Query[T]) Refetch(ctx context.Context) (T, error) {
	return q.load(ctx, q.Key())
}

func (q *Query[T]) load(ctx context.Context, key Key) (T, error) {
	v, err := q.c.run(ctx, key, func(ctx context.Context) (any, error) {
		return q.fetch(ctx, key)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return cast[T](v)
}

// SetKey moves the query to another key and fetches it. Setting the current
// key again is a no-op that returns the cached state.
func (q *Query[T]) SetKey(ctx context.Context, key Key) (T, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		var zero T
		return zero, fmt.Errorf("query %s is closed", key)
	}
	if q.key.Equal(key) {
		q.mu.Unlock()
		st := q.State()
		return st.Data, st.Err
	}
	old, oldID := q.key, q.obsID
	q.key = append(Key(nil), key...)
	q.mu.Unlock()

	q.c.unobserve(old, oldID)
	id := q.c.observe(key, q.observer(key))
	q.mu.Lock()
	q.obsID = id
	q.mu.Unlock()

	return q.Fetch(ctx)
}

func (q *Query[T]) State() State[T] {
	s := q.c.snapshot(q.Key())
	st := State[T]{
		HasData:   s.hasData,
		Err:       s.err,
		Status:    s.status,
		IsLoading: s.fetching,
		IsStale:   q.c.isStale(s),
		UpdatedAt: s.updatedAt,
	}
	if s.hasData {
		if data, err := cast[T](s.data); err == nil {
			st.Data = data
		} else {
			st.Err = err
		}
	}
	return st
}

// Subscribe registers fn for every state transition of the query's entry.
func (q *Query[T]) Subscribe(fn func(State[T])) (unsubscribe func()) {
	q.mu.Lock()
	q.nextID++
	id := q.nextID
	q.subs[id] = fn
	q.mu.Unlock()
	return func() {
		q.mu.Lock()
		delete(q.subs, id)
		q.mu.Unlock()
	}
}

func (q *Query[T]) publish() {
	q.mu.Lock()
	subs := make([]func(State[T]), 0, len(q.subs))
	for _, fn := range q.subs {
		subs = append(subs, fn)
	}
	q.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	st := q.State()
	for _, fn := range subs {
		fn(st)
	}
}

// Close detaches the query; its cache entry stays until removed.
func (q *Query[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	key, id := q.key, q.obsID
	q.subs = map[int]func(State[T]){}
	q.mu.Unlock()
	q.c.unobserve(key, id)
}

func cast[T any](v any) (T, error) {
	if v == nil {
		var zero T
		return zero, nil
	}
	data, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %T", ErrTypeMismatch, v)
	}
	return data, nil
}
