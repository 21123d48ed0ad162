// Package dsl declares service functions once and uses the declaration on both
// ends: callers get typed function values, services expose implementations.
//
//	var Add5 = dsl.Declare1(ID, "add5", coder.Int, coder.Int)
//
//	Add5.Expose(svc, func(ctx context.Context, x int) (int, error) { return x + 5, nil })
//	y, err := Add5.Call(dsl.WithConnector(ctx, c), 2)
package dsl

import (
	"context"
	"fmt"

	"github.com/pme-sh/lrpc/coder"
	"github.com/pme-sh/lrpc/conn"
	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/rpcerr"
	"github.com/pme-sh/lrpc/service"
)

// Declaration names a function of a service and the signature it is called with.
type Declaration struct {
	Name    fn.AccessName
	Service fn.ServiceId
	Sig     *coder.Signature
}

func (d Declaration) String() string { return d.Service.String() + "/" + d.Name.String() }

// Ref returns the declared function as a free function reached through c.
func (d Declaration) Ref(c coder.Connector) *fn.Function {
	p := fn.FreePrototype(d.Name, d.Service)
	return fn.FreeRef(d.Name, d.Service, c.Free(p, d.Sig))
}

// Invoke calls the declared function with untyped arguments, through the
// connector carried by ctx.
func (d Declaration) Invoke(ctx context.Context, args ...any) (any, error) {
	c, err := connectorOf(ctx)
	if err != nil {
		return nil, err
	}
	return d.Ref(c).Invoke(ctx, args...)
}

func (d Declaration) expose(s *service.Service, f *fn.Function) error {
	if s.ID() != d.Service {
		return fmt.Errorf("%s cannot be exposed by service %s", d, s.ID())
	}
	return s.ExposeFunc(d.Name, d.Sig, f)
}

type connectorKey struct{}

// WithConnector makes declared functions called with ctx go through c.
func WithConnector(ctx context.Context, c coder.Connector) context.Context {
	return context.WithValue(ctx, connectorKey{}, c)
}

// ConnectorFrom returns the connector set by WithConnector.
func ConnectorFrom(ctx context.Context) (coder.Connector, bool) {
	c, ok := ctx.Value(connectorKey{}).(coder.Connector)
	return c, ok
}

func connectorOf(ctx context.Context) (coder.Connector, error) {
	if c, ok := ConnectorFrom(ctx); ok && c != nil {
		return c, nil
	}
	return nil, rpcerr.New(rpcerr.ConnectionUnavailable, "no connector in context")
}

// withService lets implementations call other declared functions through the
// connector of the service running them.
func withService(ctx context.Context, s *service.Service) context.Context {
	if _, ok := ConnectorFrom(ctx); !ok && s.Connector() != nil {
		ctx = WithConnector(ctx, s.Connector())
	}
	return ctx
}

// ServiceContext is a static table of service endpoints and the pool serving
// calls to them.
type ServiceContext struct {
	*conn.Connector
	Table *conn.Static
}

func NewServiceContext(services map[fn.ServiceId][]fn.Endpoint, opts conn.PoolOptions) *ServiceContext {
	table := conn.NewStatic(conn.StrategyRandom)
	for sid, eps := range services {
		table.Add(sid, eps...)
	}
	return &ServiceContext{
		Connector: conn.NewConnector(conn.NewPool(opts), table),
		Table:     table,
	}
}

// Bind attaches the service context to ctx.
func (sc *ServiceContext) Bind(ctx context.Context) context.Context {
	return WithConnector(ctx, sc.Connector)
}
