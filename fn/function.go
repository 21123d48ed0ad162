package fn

import (
	"context"
)

// Invoker runs a function on already typed arguments. Remote kinds encode the
// arguments themselves against the channel the call goes out on.
type Invoker interface {
	Invoke(ctx context.Context, args []any) (any, error)
}

type InvokerFunc func(ctx context.Context, args []any) (any, error)

func (f InvokerFunc) Invoke(ctx context.Context, args []any) (any, error) {
	return f(ctx, args)
}

// Function is a function value that may cross the wire. Its kind is fixed at
// construction, so encoding never has to guess what a value is.
type Function struct {
	proto   Prototype
	invoker Invoker
	origin  any
}

// Local wraps a closure owned by this process.
func Local(inv Invoker) *Function {
	return &Function{proto: Prototype{Kind: KindLocal}, invoker: inv}
}

// ChannelRef is a callback received on the channel origin under name.
func ChannelRef(name AccessName, origin any, inv Invoker) *Function {
	return &Function{proto: ChannelPrototype(name), invoker: inv, origin: origin}
}

// FreeRef is a declared service function; inv resolves an endpoint per call.
func FreeRef(name AccessName, sid ServiceId, inv Invoker) *Function {
	return &Function{proto: FreePrototype(name, sid), invoker: inv}
}

// BoundRef is a function living on the instance at ep.
func BoundRef(name AccessName, sid ServiceId, ep Endpoint, inv Invoker) *Function {
	return &Function{proto: BoundPrototype(name, sid, ep), invoker: inv}
}

func (f *Function) Kind() Kind           { return f.proto.Kind }
func (f *Function) Prototype() Prototype { return f.proto }

// Origin is the channel a KindChannel function arrived on, nil otherwise.
func (f *Function) Origin() any { return f.origin }

func (f *Function) Invoke(ctx context.Context, args ...any) (any, error) {
	return f.invoker.Invoke(ctx, args)
}

// Invoker exposes f as an Invoker taking its arguments as a slice.
func (f *Function) Invoker() Invoker { return f.invoker }

func (f *Function) String() string {
	switch f.proto.Kind {
	case KindLocal:
		return "local function"
	case KindBound:
		return "bound function " + string(f.proto.Name) + "@" + f.proto.Endpoint.String()
	default:
		return f.proto.Kind.String() + " function " + string(f.proto.Name)
	}
}
