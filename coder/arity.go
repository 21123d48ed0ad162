package coder

import (
	"context"

	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/rpcerr"
	"github.com/pme-sh/lrpc/wire"
)

// Typed handles over *fn.Function for arities 0 through 5. FnN is the value,
// LambdaN wraps a Go closure into one and FuncN builds the coder for it.

// Value is implemented by every typed function handle.
type Value interface {
	Function() *fn.Function
}

type funcCoder[F Value] struct {
	fc   FunctionCoder
	wrap func(*fn.Function) F
}

func newFunc[F Value, R any](wrap func(*fn.Function) F, cr Coder[R], args ...Coder[any]) funcCoder[F] {
	return funcCoder[F]{fc: Function(NewSignature(Erase(cr), args...)), wrap: wrap}
}

func (c funcCoder[F]) Signature() *Signature { return c.fc.Sig }

// SignatureOf returns the signature of a function coder built by Func0..Func5 or
// Function, nil for data coders.
func SignatureOf[F any](c Coder[F]) *Signature {
	switch c := any(c).(type) {
	case interface{ Signature() *Signature }:
		return c.Signature()
	case FunctionCoder:
		return c.Sig
	}
	return nil
}
func (c funcCoder[F]) Encode(v F, cc *Context) (wire.Entity, error) {
	return c.fc.Encode(v.Function(), cc)
}
func (c funcCoder[F]) Decode(e wire.Entity, cc *Context) (v F, err error) {
	f, err := c.fc.Decode(e, cc)
	if err != nil {
		return
	}
	return c.wrap(f), nil
}

func invoke[R any](ctx context.Context, f *fn.Function, args ...any) (r R, err error) {
	if f == nil {
		err = rpcerr.New(rpcerr.UnknownType, "call of nil function")
		return
	}
	v, err := f.Invoke(ctx, args...)
	if err != nil {
		return
	}
	return cast[R](v)
}

type unpacker struct {
	args []any
	err  error
}

func get[T any](u *unpacker, i int) (t T) {
	if u.err == nil {
		t, u.err = cast[T](u.args[i])
	}
	return
}

func local(n int, body func(ctx context.Context, u *unpacker) (any, error)) *fn.Function {
	return fn.Local(fn.InvokerFunc(func(ctx context.Context, args []any) (any, error) {
		if len(args) != n {
			return nil, rpcerr.Errorf(rpcerr.MalformedEntity, "expected %d arguments, got %d", n, len(args))
		}
		return body(ctx, &unpacker{args: args})
	}))
}

type Fn0[R any] struct{ F *fn.Function }

func (f Fn0[R]) Function() *fn.Function { return f.F }
func (f Fn0[R]) Call(ctx context.Context) (R, error) {
	return invoke[R](ctx, f.F)
}
func Lambda0[R any](impl func(context.Context) (R, error)) Fn0[R] {
	return Fn0[R]{local(0, func(ctx context.Context, _ *unpacker) (any, error) {
		return impl(ctx)
	})}
}
func Func0[R any](cr Coder[R]) Coder[Fn0[R]] {
	return newFunc(func(f *fn.Function) Fn0[R] { return Fn0[R]{f} }, cr)
}

type Fn1[A, R any] struct{ F *fn.Function }

func (f Fn1[A, R]) Function() *fn.Function { return f.F }
func (f Fn1[A, R]) Call(ctx context.Context, a A) (R, error) {
	return invoke[R](ctx, f.F, a)
}
func Lambda1[A, R any](impl func(context.Context, A) (R, error)) Fn1[A, R] {
	return Fn1[A, R]{local(1, func(ctx context.Context, u *unpacker) (any, error) {
		a := get[A](u, 0)
		if u.err != nil {
			return nil, u.err
		}
		return impl(ctx, a)
	})}
}
func Func1[A, R any](ca Coder[A], cr Coder[R]) Coder[Fn1[A, R]] {
	return newFunc(func(f *fn.Function) Fn1[A, R] { return Fn1[A, R]{f} }, cr, Erase(ca))
}

type Fn2[A, B, R any] struct{ F *fn.Function }

func (f Fn2[A, B, R]) Function() *fn.Function { return f.F }
func (f Fn2[A, B, R]) Call(ctx context.Context, a A, b B) (R, error) {
	return invoke[R](ctx, f.F, a, b)
}
func Lambda2[A, B, R any](impl func(context.Context, A, B) (R, error)) Fn2[A, B, R] {
	return Fn2[A, B, R]{local(2, func(ctx context.Context, u *unpacker) (any, error) {
		a, b := get[A](u, 0), get[B](u, 1)
		if u.err != nil {
			return nil, u.err
		}
		return impl(ctx, a, b)
	})}
}
func Func2[A, B, R any](ca Coder[A], cb Coder[B], cr Coder[R]) Coder[Fn2[A, B, R]] {
	return newFunc(func(f *fn.Function) Fn2[A, B, R] { return Fn2[A, B, R]{f} }, cr, Erase(ca), Erase(cb))
}

type Fn3[A, B, C, R any] struct{ F *fn.Function }

func (f Fn3[A, B, C, R]) Function() *fn.Function { return f.F }
func (f Fn3[A, B, C, R]) Call(ctx context.Context, a A, b B, c C) (R, error) {
	return invoke[R](ctx, f.F, a, b, c)
}
func Lambda3[A, B, C, R any](impl func(context.Context, A, B, C) (R, error)) Fn3[A, B, C, R] {
	return Fn3[A, B, C, R]{local(3, func(ctx context.Context, u *unpacker) (any, error) {
		a, b, c := get[A](u, 0), get[B](u, 1), get[C](u, 2)
		if u.err != nil {
			return nil, u.err
		}
		return impl(ctx, a, b, c)
	})}
}
func Func3[A, B, C, R any](ca Coder[A], cb Coder[B], cc Coder[C], cr Coder[R]) Coder[Fn3[A, B, C, R]] {
	return newFunc(func(f *fn.Function) Fn3[A, B, C, R] { return Fn3[A, B, C, R]{f} }, cr, Erase(ca), Erase(cb), Erase(cc))
}

type Fn4[A, B, C, D, R any] struct{ F *fn.Function }

func (f Fn4[A, B, C, D, R]) Function() *fn.Function { return f.F }
func (f Fn4[A, B, C, D, R]) Call(ctx context.Context, a A, b B, c C, d D) (R, error) {
	return invoke[R](ctx, f.F, a, b, c, d)
}
func Lambda4[A, B, C, D, R any](impl func(context.Context, A, B, C, D) (R, error)) Fn4[A, B, C, D, R] {
	return Fn4[A, B, C, D, R]{local(4, func(ctx context.Context, u *unpacker) (any, error) {
		a, b, c, d := get[A](u, 0), get[B](u, 1), get[C](u, 2), get[D](u, 3)
		if u.err != nil {
			return nil, u.err
		}
		return impl(ctx, a, b, c, d)
	})}
}
func Func4[A, B, C, D, R any](ca Coder[A], cb Coder[B], cc Coder[C], cd Coder[D], cr Coder[R]) Coder[Fn4[A, B, C, D, R]] {
	return newFunc(func(f *fn.Function) Fn4[A, B, C, D, R] { return Fn4[A, B, C, D, R]{f} }, cr,
		Erase(ca), Erase(cb), Erase(cc), Erase(cd))
}

type Fn5[A, B, C, D, E, R any] struct{ F *fn.Function }

func (f Fn5[A, B, C, D, E, R]) Function() *fn.Function { return f.F }
func (f Fn5[A, B, C, D, E, R]) Call(ctx context.Context, a A, b B, c C, d D, e E) (R, error) {
	return invoke[R](ctx, f.F, a, b, c, d, e)
}
func Lambda5[A, B, C, D, E, R any](impl func(context.Context, A, B, C, D, E) (R, error)) Fn5[A, B, C, D, E, R] {
	return Fn5[A, B, C, D, E, R]{local(5, func(ctx context.Context, u *unpacker) (any, error) {
		a, b, c, d, e := get[A](u, 0), get[B](u, 1), get[C](u, 2), get[D](u, 3), get[E](u, 4)
		if u.err != nil {
			return nil, u.err
		}
		return impl(ctx, a, b, c, d, e)
	})}
}
func Func5[A, B, C, D, E, R any](ca Coder[A], cb Coder[B], cc Coder[C], cd Coder[D], ce Coder[E], cr Coder[R]) Coder[Fn5[A, B, C, D, E, R]] {
	return newFunc(func(f *fn.Function) Fn5[A, B, C, D, E, R] { return Fn5[A, B, C, D, E, R]{f} }, cr,
		Erase(ca), Erase(cb), Erase(cc), Erase(cd), Erase(ce))
}
