package conn

import (
	"context"

	"github.com/pme-sh/lrpc/coder"
	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/wire"
)

// Connector calls free and bound functions over leases from a pool. Every call
// takes its own lease and releases it on return; nothing is retried.
type Connector struct {
	pool     *Pool
	resolver Resolver
}

// NewConnector ties pool and resolver together and makes channels leased from
// pool decode remote functions through the result.
func NewConnector(pool *Pool, resolver Resolver) *Connector {
	c := &Connector{pool: pool, resolver: resolver}
	pool.SetConnector(c)
	return c
}

func (c *Connector) Pool() *Pool         { return c.pool }
func (c *Connector) Resolver() Resolver { return c.resolver }

// Call invokes the service function name at ep.
func (c *Connector) Call(ctx context.Context, ep fn.Endpoint, name fn.AccessName, sig *coder.Signature, args []any) (any, error) {
	lease, err := c.pool.Acquire(ctx, ep)
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	return lease.Call(ctx, wire.ServiceTarget(name), sig, args)
}

// Free returns an invoker resolving an instance of the service on every call.
func (c *Connector) Free(p fn.Prototype, sig *coder.Signature) fn.Invoker {
	return fn.InvokerFunc(func(ctx context.Context, args []any) (any, error) {
		ep, err := c.resolver.Resolve(ctx, p.Service)
		if err != nil {
			return nil, err
		}
		return c.Call(ctx, ep, p.Name, sig, args)
	})
}

// Bound returns an invoker calling the instance the prototype is pinned to.
func (c *Connector) Bound(p fn.Prototype, sig *coder.Signature) fn.Invoker {
	return fn.InvokerFunc(func(ctx context.Context, args []any) (any, error) {
		return c.Call(ctx, p.Endpoint, p.Name, sig, args)
	})
}

// Ref returns the declared function name of service sid as a free function.
func (c *Connector) Ref(sid fn.ServiceId, name fn.AccessName, sig *coder.Signature) *fn.Function {
	p := fn.FreePrototype(name, sid)
	return fn.FreeRef(name, sid, c.Free(p, sig))
}

func (c *Connector) Close() error {
	return c.pool.Close()
}
