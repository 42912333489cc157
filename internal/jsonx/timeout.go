package jsonx

import (
	"context"
	"time"

	"github.com/dmitrijs2005/matakeeper/internal/common"
)

// WithTimeout runs op and waits at most d for it. When the deadline or ctx
// wins, fallback is returned with common.ErrTimeout (or ctx.Err()). The
// operation keeps running in the background and its result is dropped; any
// side effects it has still happen.
func WithTimeout[T any](ctx context.Context, d time.Duration, fallback T, op func(ctx context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}

	ch := make(chan result, 1)
	go func() {
		v, err := op(ctx)
		ch <- result{v, err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err != nil {
			return fallback, r.err
		}
		return r.v, nil
	case <-timer.C:
		return fallback, common.ErrTimeout
	case <-ctx.Done():
		return fallback, ctx.Err()
	}
}
