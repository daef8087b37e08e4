package dispatch

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by Race when the timeout fires first.
var ErrTimeout = errors.New("timed out waiting for completion")

// Race runs fn and waits for it, the timeout, or ctx, whichever comes first.
// A losing fn is not cancelled: it keeps running and its result is dropped.
func Race[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}

	// Buffered so an abandoned fn can always deliver and exit.
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{val: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case r := <-ch:
		return r.val, r.err
	case <-timer.C:
		return zero, ErrTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
