package dsl

import (
	"context"

	"github.com/pme-sh/lrpc/coder"
	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/service"
)

type Def0[R any] struct {
	Declaration
	rc coder.Coder[R]
}

func Declare0[R any](sid fn.ServiceId, name fn.AccessName, rc coder.Coder[R]) Def0[R] {
	return Def0[R]{Declaration{name, sid, coder.SignatureOf(coder.Func0(rc))}, rc}
}
func (d Def0[R]) Coder() coder.Coder[coder.Fn0[R]] { return coder.Func0(d.rc) }
func (d Def0[R]) Ref(c coder.Connector) coder.Fn0[R] {
	return coder.Fn0[R]{F: d.Declaration.Ref(c)}
}
func (d Def0[R]) Call(ctx context.Context) (r R, err error) {
	c, err := connectorOf(ctx)
	if err != nil {
		return
	}
	return d.Ref(c).Call(ctx)
}
func (d Def0[R]) Expose(s *service.Service, impl func(context.Context) (R, error)) error {
	return d.expose(s, coder.Lambda0(func(ctx context.Context) (R, error) {
		return impl(withService(ctx, s))
	}).Function())
}

type Def1[A, R any] struct {
	Declaration
	ca coder.Coder[A]
	rc coder.Coder[R]
}

func Declare1[A, R any](sid fn.ServiceId, name fn.AccessName, ca coder.Coder[A], rc coder.Coder[R]) Def1[A, R] {
	return Def1[A, R]{Declaration{name, sid, coder.SignatureOf(coder.Func1(ca, rc))}, ca, rc}
}
func (d Def1[A, R]) Coder() coder.Coder[coder.Fn1[A, R]] { return coder.Func1(d.ca, d.rc) }
func (d Def1[A, R]) Ref(c coder.Connector) coder.Fn1[A, R] {
	return coder.Fn1[A, R]{F: d.Declaration.Ref(c)}
}
func (d Def1[A, R]) Call(ctx context.Context, a A) (r R, err error) {
	c, err := connectorOf(ctx)
	if err != nil {
		return
	}
	return d.Ref(c).Call(ctx, a)
}
func (d Def1[A, R]) Expose(s *service.Service, impl func(context.Context, A) (R, error)) error {
	return d.expose(s, coder.Lambda1(func(ctx context.Context, a A) (R, error) {
		return impl(withService(ctx, s), a)
	}).Function())
}

type Def2[A, B, R any] struct {
	Declaration
	ca coder.Coder[A]
	cb coder.Coder[B]
	rc coder.Coder[R]
}

func Declare2[A, B, R any](sid fn.ServiceId, name fn.AccessName, ca coder.Coder[A], cb coder.Coder[B], rc coder.Coder[R]) Def2[A, B, R] {
	return Def2[A, B, R]{Declaration{name, sid, coder.SignatureOf(coder.Func2(ca, cb, rc))}, ca, cb, rc}
}
func (d Def2[A, B, R]) Coder() coder.Coder[coder.Fn2[A, B, R]] { return coder.Func2(d.ca, d.cb, d.rc) }
func (d Def2[A, B, R]) Ref(c coder.Connector) coder.Fn2[A, B, R] {
	return coder.Fn2[A, B, R]{F: d.Declaration.Ref(c)}
}
func (d Def2[A, B, R]) Call(ctx context.Context, a A, b B) (r R, err error) {
	c, err := connectorOf(ctx)
	if err != nil {
		return
	}
	return d.Ref(c).Call(ctx, a, b)
}
func (d Def2[A, B, R]) Expose(s *service.Service, impl func(context.Context, A, B) (R, error)) error {
	return d.expose(s, coder.Lambda2(func(ctx context.Context, a A, b B) (R, error) {
		return impl(withService(ctx, s), a, b)
	}).Function())
}

type Def3[A, B, C, R any] struct {
	Declaration
	ca coder.Coder[A]
	cb coder.Coder[B]
	cc coder.Coder[C]
	rc coder.Coder[R]
}

func Declare3[A, B, C, R any](sid fn.ServiceId, name fn.AccessName, ca coder.Coder[A], cb coder.Coder[B], cc coder.Coder[C], rc coder.Coder[R]) Def3[A, B, C, R] {
	return Def3[A, B, C, R]{Declaration{name, sid, coder.SignatureOf(coder.Func3(ca, cb, cc, rc))}, ca, cb, cc, rc}
}
func (d Def3[A, B, C, R]) Coder() coder.Coder[coder.Fn3[A, B, C, R]] {
	return coder.Func3(d.ca, d.cb, d.cc, d.rc)
}
func (d Def3[A, B, C, R]) Ref(c coder.Connector) coder.Fn3[A, B, C, R] {
	return coder.Fn3[A, B, C, R]{F: d.Declaration.Ref(c)}
}
func (d Def3[A, B, C, R]) Call(ctx context.Context, a A, b B, c C) (r R, err error) {
	conn, err := connectorOf(ctx)
	if err != nil {
		return
	}
	return d.Ref(conn).Call(ctx, a, b, c)
}
func (d Def3[A, B, C, R]) Expose(s *service.Service, impl func(context.Context, A, B, C) (R, error)) error {
	return d.expose(s, coder.Lambda3(func(ctx context.Context, a A, b B, c C) (R, error) {
		return impl(withService(ctx, s), a, b, c)
	}).Function())
}

type Def4[A, B, C, D, R any] struct {
	Declaration
	ca coder.Coder[A]
	cb coder.Coder[B]
	cc coder.Coder[C]
	cd coder.Coder[D]
	rc coder.Coder[R]
}

func Declare4[A, B, C, D, R any](sid fn.ServiceId, name fn.AccessName, ca coder.Coder[A], cb coder.Coder[B], cc coder.Coder[C], cd coder.Coder[D], rc coder.Coder[R]) Def4[A, B, C, D, R] {
	return Def4[A, B, C, D, R]{Declaration{name, sid, coder.SignatureOf(coder.Func4(ca, cb, cc, cd, rc))}, ca, cb, cc, cd, rc}
}
func (d Def4[A, B, C, D, R]) Coder() coder.Coder[coder.Fn4[A, B, C, D, R]] {
	return coder.Func4(d.ca, d.cb, d.cc, d.cd, d.rc)
}
func (d Def4[A, B, C, D, R]) Ref(c coder.Connector) coder.Fn4[A, B, C, D, R] {
	return coder.Fn4[A, B, C, D, R]{F: d.Declaration.Ref(c)}
}
func (d Def4[A, B, C, D, R]) Call(ctx context.Context, a A, b B, c C, dd D) (r R, err error) {
	conn, err := connectorOf(ctx)
	if err != nil {
		return
	}
	return d.Ref(conn).Call(ctx, a, b, c, dd)
}
func (d Def4[A, B, C, D, R]) Expose(s *service.Service, impl func(context.Context, A, B, C, D) (R, error)) error {
	return d.expose(s, coder.Lambda4(func(ctx context.Context, a A, b B, c C, dd D) (R, error) {
		return impl(withService(ctx, s), a, b, c, dd)
	}).Function())
}

type Def5[A, B, C, D, E, R any] struct {
	Declaration
	ca coder.Coder[A]
	cb coder.Coder[B]
	cc coder.Coder[C]
	cd coder.Coder[D]
	ce coder.Coder[E]
	rc coder.Coder[R]
}

func Declare5[A, B, C, D, E, R any](sid fn.ServiceId, name fn.AccessName, ca coder.Coder[A], cb coder.Coder[B], cc coder.Coder[C], cd coder.Coder[D], ce coder.Coder[E], rc coder.Coder[R]) Def5[A, B, C, D, E, R] {
	return Def5[A, B, C, D, E, R]{Declaration{name, sid, coder.SignatureOf(coder.Func5(ca, cb, cc, cd, ce, rc))}, ca, cb, cc, cd, ce, rc}
}
func (d Def5[A, B, C, D, E, R]) Coder() coder.Coder[coder.Fn5[A, B, C, D, E, R]] {
	return coder.Func5(d.ca, d.cb, d.cc, d.cd, d.ce, d.rc)
}
func (d Def5[A, B, C, D, E, R]) Ref(c coder.Connector) coder.Fn5[A, B, C, D, E, R] {
	return coder.Fn5[A, B, C, D, E, R]{F: d.Declaration.Ref(c)}
}
func (d Def5[A, B, C, D, E, R]) Call(ctx context.Context, a A, b B, c C, dd D, e E) (r R, err error) {
	conn, err := connectorOf(ctx)
	if err != nil {
		return
	}
	return d.Ref(conn).Call(ctx, a, b, c, dd, e)
}
func (d Def5[A, B, C, D, E, R]) Expose(s *service.Service, impl func(context.Context, A, B, C, D, E) (R, error)) error {
	return d.expose(s, coder.Lambda5(func(ctx context.Context, a A, b B, c C, dd D, e E) (R, error) {
		return impl(withService(ctx, s), a, b, c, dd, e)
	}).Function())
}
