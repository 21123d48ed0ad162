// Package coder converts typed values to wire entities and back. Function values are
// classified by their fn.Kind and either published through the current registry or
// sent as Free/Bound prototypes.
package coder

import (
	"context"
	"fmt"

	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/rpcerr"
	"github.com/pme-sh/lrpc/wire"
)

// Coder is a stateless codec between T and a wire entity.
type Coder[T any] interface {
	Encode(v T, cc *Context) (wire.Entity, error)
	Decode(e wire.Entity, cc *Context) (T, error)
}

// Handler is the server side form of a callable: it decodes its own arguments and
// encodes its own result against the context of the call it serves.
type Handler interface {
	Handle(ctx context.Context, args []wire.Entity, cc *Context) (wire.Entity, error)
}

type HandlerFunc func(ctx context.Context, args []wire.Entity, cc *Context) (wire.Entity, error)

func (f HandlerFunc) Handle(ctx context.Context, args []wire.Entity, cc *Context) (wire.Entity, error) {
	return f(ctx, args, cc)
}

// Registrar names local closures so the peer can call them back.
type Registrar interface {
	Register(h Handler) (fn.AccessName, error)
}

// Remote is the channel entities are exchanged over.
type Remote interface {
	ChannelFunction(name fn.AccessName, sig *Signature) fn.Invoker
}

// Connector reaches functions that live on a service instance.
type Connector interface {
	Free(p fn.Prototype, sig *Signature) fn.Invoker
	Bound(p fn.Prototype, sig *Signature) fn.Invoker
}

// Publisher pins a local closure to a service instance, yielding a Bound prototype.
type Publisher interface {
	Publish(h Handler) (fn.Prototype, error)
}

// Context is the ambient state a coder needs to resolve function values.
type Context struct {
	Registry  Registrar
	Remote    Remote
	Connector Connector
	Publisher Publisher
}

func (cc *Context) WithPublisher(p Publisher) *Context {
	cp := *cc
	cp.Publisher = p
	return &cp
}

// Erase turns a typed coder into one over any.
func Erase[T any](c Coder[T]) Coder[any] {
	if e, ok := any(c).(Coder[any]); ok {
		return e
	}
	return erased[T]{c}
}

// Adapt is the inverse of Erase.
func Adapt[T any](c Coder[any]) Coder[T] {
	if e, ok := c.(erased[T]); ok {
		return e.c
	}
	return adapted[T]{c}
}

type adapted[T any] struct{ c Coder[any] }

func (a adapted[T]) Encode(v T, cc *Context) (wire.Entity, error) { return a.c.Encode(v, cc) }
func (a adapted[T]) Decode(e wire.Entity, cc *Context) (T, error) {
	v, err := a.c.Decode(e, cc)
	if err != nil {
		var zero T
		return zero, err
	}
	return cast[T](v)
}

type erased[T any] struct{ c Coder[T] }

func (e erased[T]) Encode(v any, cc *Context) (wire.Entity, error) {
	t, err := cast[T](v)
	if err != nil {
		return wire.Entity{}, err
	}
	return e.c.Encode(t, cc)
}
func (e erased[T]) Decode(en wire.Entity, cc *Context) (any, error) {
	return e.c.Decode(en, cc)
}

func cast[T any](v any) (t T, err error) {
	if v == nil {
		return
	}
	t, ok := v.(T)
	if !ok {
		err = rpcerr.Errorf(rpcerr.UnknownType, "expected %T, got %T", t, v)
	}
	return
}

func malformed(format string, args ...any) error {
	return rpcerr.New(rpcerr.MalformedEntity, fmt.Sprintf(format, args...))
}
