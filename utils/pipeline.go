/*
Context-aware channel helpers for all or nothing pipelines. If an error
occurs at any stage the whole operation is assumed cancelled, and the
context is checked on every channel read and write so nothing blocks on a
dead pipeline.

Based on: https://go.dev/blog/pipelines
*/
package utils

import (
	"context"
	"sync"
)

func ProduceWithContext[T any](ctx context.Context, in []T) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for _, t := range in {
			select {
			case out <- t:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func TransformWithContext[A, B any](ctx context.Context, in <-chan A, transformFn func(A) (out B, skip bool, err error)) (<-chan B, <-chan error) {
	out := make(chan B)
	errC := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errC)
		for {
			select {
			case <-ctx.Done():
				errC <- ctx.Err()
				return
			case a, ok := <-in:
				if !ok {
					errC <- nil
					return
				}
				b, skip, err := transformFn(a)
				if skip {
					continue
				}
				if err != nil {
					errC <- err
					return
				}
				// The context may be cancelled with no receivers left.
				select {
				case out <- b:
				case <-ctx.Done():
					errC <- ctx.Err()
					return
				}
			}
		}
	}()
	return out, errC
}

func SinkWithContext[T any](ctx context.Context, in <-chan T, sinkFn func(T) error) <-chan error {
	errC := make(chan error, 1)
	go func() {
		defer close(errC)
		for {
			select {
			case <-ctx.Done():
				errC <- ctx.Err()
				return
			case t, ok := <-in:
				if !ok {
					errC <- nil
					return
				}
				if err := sinkFn(t); err != nil {
					errC <- err
					return
				}
			}
		}
	}()
	return errC
}

func MergeErrorsWithContext(ctx context.Context, cs ...<-chan error) <-chan error {
	errC := make(chan error, 1)
	var wg sync.WaitGroup
	ctx, cancel := context.WithCancelCause(ctx)
	wg.Add(len(cs))
	for _, c := range cs {
		go func(c <-chan error) {
			select {
			case <-ctx.Done():
				cancel(ctx.Err())
			case err := <-c:
				if err != nil {
					cancel(err)
				}
			}
			wg.Done()
		}(c)
	}
	go func() {
		wg.Wait()
		errC <- context.Cause(ctx)
		close(errC)
	}()
	return errC
}
