package query

import (
	"context"
	"net/http"
)

// Doer is the subset of apiclient.Client the bindings need.
type Doer interface {
	Do(ctx context.Context, method, path string, body, out any) error
}

// GetJSON fetches a fixed path regardless of the key.
func GetJSON[T any](api Doer, path string) Fetcher[T] {
	return PathJSON[T](api, func(Key) string { return path })
}

// PathJSON derives the request path from the key, so SetKey changes what is
// fetched.
func PathJSON[T any](api Doer, path func(Key) string) Fetcher[T] {
	return func(ctx context.Context, key Key) (T, error) {
		var out T
		err := api.Do(ctx, http.MethodGet, path(key), nil, &out)
		return out, err
	}
}

func SendJSON[In, Out any](api Doer, method, path string) MutateFunc[In, Out] {
	return func(ctx context.Context, in In) (Out, error) {
		var out Out
		err := api.Do(ctx, method, path, in, &out)
		return out, err
	}
}
