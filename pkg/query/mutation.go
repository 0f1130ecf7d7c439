package query

import (
	"context"
	"sync"
)

type MutateFunc[In, Out any] func(ctx context.Context, in In) (Out, error)

type MutationState[Out any] struct {
	Data      Out
	Err       error
	Status    Status
	IsLoading bool
}

// Mutation runs only when Mutate is called. A successful run invalidates the
// configured keys; a failed one invalidates nothing and is not retried.
type Mutation[In, Out any] struct {
	c           *Client
	fn          MutateFunc[In, Out]
	invalidates []Key

	mu    sync.Mutex
	state MutationState[Out]
}

func NewMutation[In, Out any](c *Client, fn MutateFunc[In, Out], invalidates ...Key) *Mutation[In, Out] {
	return &Mutation[In, Out]{
		c:           c,
		fn:          fn,
		invalidates: invalidates,
		state:       MutationState[Out]{Status: StatusIdle},
	}
}

func (m *Mutation[In, Out]) Mutate(ctx context.Context, in In) (Out, error) {
	m.set(func(s *MutationState[Out]) {
		s.IsLoading = true
		s.Status = StatusLoading
	})

	out, err := m.fn(ctx, in)
	if err != nil {
		m.set(func(s *MutationState[Out]) {
			s.IsLoading = false
			s.Err = err
			s.Status = StatusError
		})
		return out, err
	}

	if len(m.invalidates) > 0 {
		if ierr := m.c.Invalidate(ctx, m.invalidates...); ierr != nil {
			m.c.log.Warn("invalidate_failed", "error", ierr)
		}
	}
	m.set(func(s *MutationState[Out]) {
		s.IsLoading = false
		s.Data, s.Err = out, nil
		s.Status = StatusSuccess
	})
	return out, nil
}

func (m *Mutation[In, Out]) State() MutationState[Out] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Mutation[In, Out]) Reset() {
	m.set(func(s *MutationState[Out]) {
		*s = MutationState[Out]{Status: StatusIdle}
	})
}

func (m *Mutation[In, Out]) set(fn func(s *MutationState[Out])) {
	m.mu.Lock()
	fn(&m.state)
	m.mu.Unlock()
}
