package coder

import (
	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/rpcerr"
	"github.com/pme-sh/lrpc/wire"
)

// FunctionCoder codes *fn.Function values of one signature.
//
// Local closures are registered in the current channel, or published as Bound
// functions when the context carries a Publisher. Channel references from another
// channel are proxied through the current one. Free and Bound prototypes are sent
// as they are.
type FunctionCoder struct {
	Sig *Signature
}

func Function(sig *Signature) FunctionCoder { return FunctionCoder{Sig: sig} }

func (c FunctionCoder) register(f *fn.Function, cc *Context) (fn.Prototype, error) {
	if cc == nil || cc.Registry == nil {
		return fn.Prototype{}, rpcerr.Errorf(rpcerr.UnknownType, "cannot encode %s without a channel", f)
	}
	name, err := cc.Registry.Register(Backend(c.Sig, f))
	if err != nil {
		return fn.Prototype{}, err
	}
	return fn.ChannelPrototype(name), nil
}

func (c FunctionCoder) Encode(f *fn.Function, cc *Context) (wire.Entity, error) {
	if f == nil {
		return wire.Entity{}, rpcerr.New(rpcerr.UnknownType, "nil function")
	}
	var (
		proto fn.Prototype
		err   error
	)
	switch f.Kind() {
	case fn.KindLocal:
		if cc != nil && cc.Publisher != nil {
			proto, err = cc.Publisher.Publish(Backend(c.Sig, f))
		} else {
			proto, err = c.register(f, cc)
		}
	case fn.KindChannel:
		proto, err = c.register(f, cc)
	case fn.KindFree, fn.KindBound:
		proto = f.Prototype()
	default:
		err = rpcerr.Errorf(rpcerr.UnknownType, "function of kind %s", f.Kind())
	}
	if err != nil {
		return wire.Entity{}, err
	}
	return wire.FunctionEntity(proto), nil
}

func (c FunctionCoder) Decode(e wire.Entity, cc *Context) (*fn.Function, error) {
	if e.Function == nil {
		return nil, malformed("expected function, got data")
	}
	p := *e.Function
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch p.Kind {
	case fn.KindChannel:
		if cc == nil || cc.Remote == nil {
			return nil, rpcerr.New(rpcerr.UnknownType, "channel function outside of a channel")
		}
		return fn.ChannelRef(p.Name, cc.Remote, cc.Remote.ChannelFunction(p.Name, c.Sig)), nil
	case fn.KindFree:
		if cc == nil || cc.Connector == nil {
			return nil, rpcerr.New(rpcerr.UnknownType, "free function without a connector")
		}
		return fn.FreeRef(p.Name, p.Service, cc.Connector.Free(p, c.Sig)), nil
	case fn.KindBound:
		if cc == nil || cc.Connector == nil {
			return nil, rpcerr.New(rpcerr.UnknownType, "bound function without a connector")
		}
		return fn.BoundRef(p.Name, p.Service, p.Endpoint, cc.Connector.Bound(p, c.Sig)), nil
	}
	return nil, malformed("function of kind %s cannot be received", p.Kind)
}
