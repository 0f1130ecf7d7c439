package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func countingFetcher(calls *atomic.Int32, result string) Fetcher[string] {
	return func(ctx context.Context, key Key) (string, error) {
		calls.Add(1)
		return result + ":" + key.String(), nil
	}
}

func TestKey_HasPrefix(t *testing.T) {
	t.Parallel()

	assert.True(t, Key{"tracks", "1"}.HasPrefix(Key{"tracks"}))
	assert.True(t, Key{"tracks"}.HasPrefix(Key{}))
	assert.False(t, Key{"tracks"}.HasPrefix(Key{"tracks", "1"}))
	assert.False(t, Key{"track-stats"}.HasPrefix(Key{"tracks"}))
	assert.NotEqual(t, Key{"a,b"}.String(), Key{"a", "b"}.String())
}

func TestQuery_FetchCachesWhileFresh(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := NewClient(Options{StaleTime: time.Minute, Now: clock.Now})
	var calls atomic.Int32
	q := NewQuery(c, Key{"feed"}, countingFetcher(&calls, "v"))
	defer q.Close()

	ctx := context.Background()
	first, err := q.Fetch(ctx)
	require.NoError(t, err)
	second, err := q.Fetch(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, calls.Load())
	assert.False(t, q.State().IsStale)

	clock.Advance(2 * time.Minute)
	assert.True(t, q.State().IsStale)
	_, err = q.Fetch(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestQuery_StateTransitions(t *testing.T) {
	t.Parallel()

	c := NewClient(Options{})
	release := make(chan struct{})
	q := NewQuery(c, Key{"profile"}, func(ctx context.Context, key Key) (string, error) {
		<-release
		return "ada", nil
	})
	defer q.Close()

	assert.Equal(t, StatusIdle, q.State().Status)

	var mu sync.Mutex
	var seen []Status
	unsubscribe := q.Subscribe(func(s State[string]) {
		mu.Lock()
		seen = append(seen, s.Status)
		mu.Unlock()
	})
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = q.Fetch(context.Background())
	}()

	require.Eventually(t, func() bool { return q.State().IsLoading }, time.Second, time.Millisecond)
	close(release)
	<-done

	st := q.State()
	assert.False(t, st.IsLoading)
	assert.Equal(t, StatusSuccess, st.Status)
	assert.Equal(t, "ada", st.Data)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusLoading, StatusSuccess}, seen)
}

func TestQuery_ErrorsAreNotRetried(t *testing.T) {
	t.Parallel()

	c := NewClient(Options{})
	var calls atomic.Int32
	boom := errors.New("boom")
	q := NewQuery(c, Key{"invoices"}, func(ctx context.Context, key Key) ([]int, error) {
		calls.Add(1)
		return nil, boom
	})
	defer q.Close()

	_, err := q.Fetch(context.Background())
	require.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, StatusError, q.State().Status)
	assert.ErrorIs(t, q.State().Err, boom)
}

func TestQuery_ConcurrentFetchesShareOneCall(t *testing.T) {
	t.Parallel()

	c := NewClient(Options{})
	var calls atomic.Int32
	q := NewQuery(c, Key{"analytics"}, func(ctx context.Context, key Key) (int, error) {
		calls.Add(1)
		time.Sleep(100 * time.Millisecond)
		return 7, nil
	})
	defer q.Close()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := q.Refetch(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, 7, v)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, calls.Load())
}

func TestQuery_CancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	t.Parallel()

	c := NewClient(Options{})
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(ctx context.Context, key Key) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return "tracks", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	a := NewQuery(c, Key{"tracks"}, fetch)
	defer a.Close()
	b := NewQuery(c, Key{"tracks"}, fetch)
	defer b.Close()

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := a.Refetch(ctxA)
		errA <- err
	}()
	<-started

	type result struct {
		v   string
		err error
	}
	resB := make(chan result, 1)
	go func() {
		v, err := b.Refetch(context.Background())
		resB <- result{v, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(release)
	r := <-resB
	require.NoError(t, r.err)
	assert.Equal(t, "tracks", r.v)
	assert.EqualValues(t, 1, calls.Load())

	st := b.State()
	assert.Equal(t, StatusSuccess, st.Status)
	assert.NoError(t, st.Err)
	assert.Equal(t, "tracks", st.Data)
}

func TestQuery_SetKeyRefetches(t *testing.T) {
	t.Parallel()

	c := NewClient(Options{StaleTime: time.Hour})
	var calls atomic.Int32
	q := NewQuery(c, Key{"tracks", "1"}, countingFetcher(&calls, "track"))
	defer q.Close()

	ctx := context.Background()
	_, err := q.Fetch(ctx)
	require.NoError(t, err)

	v, err := q.SetKey(ctx, Key{"tracks", "1"})
	require.NoError(t, err)
	assert.Equal(t, `track:["tracks","1"]`, v)
	assert.EqualValues(t, 1, calls.Load())

	v, err = q.SetKey(ctx, Key{"tracks", "2"})
	require.NoError(t, err)
	assert.Equal(t, `track:["tracks","2"]`, v)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, Key{"tracks", "2"}, q.Key())
}

func TestQuery_TypeMismatch(t *testing.T) {
	t.Parallel()

	c := NewClient(Options{StaleTime: time.Hour})
	c.SetData(Key{"settings"}, 42)

	q := NewQuery(c, Key{"settings"}, func(ctx context.Context, key Key) (string, error) {
		return "x", nil
	})
	defer q.Close()

	_, err := q.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestClient_InvalidateRefetchesActiveOnly(t *testing.T) {
	t.Parallel()

	c := NewClient(Options{StaleTime: time.Hour})
	var active, closed atomic.Int32
	ctx := context.Background()

	qa := NewQuery(c, Key{"posts", "a"}, countingFetcher(&active, "a"))
	defer qa.Close()
	qb := NewQuery(c, Key{"posts", "b"}, countingFetcher(&closed, "b"))

	_, err := qa.Fetch(ctx)
	require.NoError(t, err)
	_, err = qb.Fetch(ctx)
	require.NoError(t, err)
	qb.Close()

	require.NoError(t, c.Invalidate(ctx, Key{"posts"}))

	assert.EqualValues(t, 2, active.Load())
	assert.EqualValues(t, 1, closed.Load())
	assert.False(t, qa.State().IsStale)

	qb2 := NewQuery(c, Key{"posts", "b"}, countingFetcher(&closed, "b"))
	defer qb2.Close()
	assert.True(t, qb2.State().IsStale)
	_, err = qb2.Fetch(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, closed.Load())
}

func TestClient_Remove(t *testing.T) {
	t.Parallel()

	c := NewClient(Options{StaleTime: time.Hour})
	var calls atomic.Int32
	q := NewQuery(c, Key{"notifications"}, countingFetcher(&calls, "n"))
	defer q.Close()

	_, err := q.Fetch(context.Background())
	require.NoError(t, err)
	c.Remove(Key{"notifications"})

	assert.False(t, q.State().HasData)
	_, err = q.Fetch(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}
