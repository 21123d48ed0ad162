package coder

import "context"

// Promise is a value computed on demand by whoever holds the function.
type Promise[T any] = Fn0[T]

func PromiseOf[T any](c Coder[T]) Coder[Promise[T]] { return Func0(c) }

// Lazy defers f until the promise is first awaited. Each await runs f again.
func Lazy[T any](f func(context.Context) (T, error)) Promise[T] { return Lambda0(f) }

// Resolved is a promise of an already known value.
func Resolved[T any](v T) Promise[T] {
	return Lambda0(func(context.Context) (T, error) { return v, nil })
}

func Await[T any](ctx context.Context, p Promise[T]) (T, error) { return p.Call(ctx) }
