// Package fanout runs independent fetches concurrently and joins them in
// request order.
package fanout

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Func produces one value of a fan-out.
type Func[T any] func(ctx context.Context) (T, error)

// All runs fns concurrently and returns their values in the order of fns.
// The first error cancels the shared context and is returned; no partial
// results are returned.
func All[T any](ctx context.Context, fns ...Func[T]) ([]T, error) {
	out := make([]T, len(fns))
	g, gctx := errgroup.WithContext(ctx)
	for i, fn := range fns {
		g.Go(func() error {
			v, err := fn(gctx)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Run is All for heterogeneous work whose results are written by the
// closures themselves.
func Run(ctx context.Context, fns ...func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		g.Go(func() error { return fn(gctx) })
	}
	return g.Wait()
}

// Result is one outcome of Settle.
type Result[T any] struct {
	Value T
	Err   error
}

// Settle runs fns concurrently with at most limit in flight (0 means
// unbounded) and waits for all of them. Failures do not affect siblings.
func Settle[T any](ctx context.Context, limit int, fns ...Func[T]) []Result[T] {
	out := make([]Result[T], len(fns))
	var sem chan struct{}
	if limit > 0 {
		sem = make(chan struct{}, limit)
	}

	var wg sync.WaitGroup
	for i, fn := range fns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					out[i].Err = ctx.Err()
					return
				}
			}
			out[i].Value, out[i].Err = fn(ctx)
		}()
	}
	wg.Wait()
	return out
}

// Values splits settled results into successes (in order) and the errors.
func Values[T any](results []Result[T]) ([]T, []error) {
	var vals []T
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		vals = append(vals, r.Value)
	}
	return vals, errs
}
