package fn

import (
	"encoding/json"

	"github.com/pme-sh/lrpc/rpcerr"
)

type Kind uint8

const (
	KindLocal   Kind = iota // A closure never seen over the wire.
	KindChannel             // Reachable only through the channel that carried it.
	KindFree                // Declared service function, resolved at call time.
	KindBound               // Function pinned to one endpoint.
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindChannel:
		return "channel"
	case KindFree:
		return "free"
	case KindBound:
		return "bound"
	default:
		return "invalid"
	}
}

// Prototype is the wire representation of a function reference.
type Prototype struct {
	Kind     Kind
	Name     AccessName
	Service  ServiceId
	Endpoint Endpoint
}

func ChannelPrototype(name AccessName) Prototype {
	return Prototype{Kind: KindChannel, Name: name}
}
func FreePrototype(name AccessName, sid ServiceId) Prototype {
	return Prototype{Kind: KindFree, Name: name, Service: sid}
}
func BoundPrototype(name AccessName, sid ServiceId, ep Endpoint) Prototype {
	return Prototype{Kind: KindBound, Name: name, Service: sid, Endpoint: ep}
}

// Validate checks that the prototype carries the fields its kind requires.
func (p Prototype) Validate() error {
	if p.Name == "" {
		return rpcerr.Errorf(rpcerr.MalformedEntity, "%s function prototype without access name", p.Kind)
	}
	switch p.Kind {
	case KindChannel:
	case KindFree:
		if p.Service == "" {
			return rpcerr.New(rpcerr.MalformedEntity, "free function prototype without service id")
		}
	case KindBound:
		if p.Service == "" {
			return rpcerr.New(rpcerr.MalformedEntity, "bound function prototype without service id")
		}
		if p.Endpoint.IsZero() {
			return rpcerr.New(rpcerr.MalformedEntity, "bound function prototype without endpoint")
		}
	default:
		return rpcerr.Errorf(rpcerr.MalformedEntity, "%s function cannot be sent as a prototype", p.Kind)
	}
	return nil
}

// JSON shape, a union with exactly one member set:
//
//	{"channel":{"name":..}}
//	{"free":{"name":..,"service":..}}
//	{"bound":{"name":..,"service":..,"endpoint":"host:port"}}
type protoRef struct {
	Name     AccessName `json:"name"`
	Service  ServiceId  `json:"service,omitempty"`
	Endpoint *Endpoint  `json:"endpoint,omitempty"`
}
type protoJSON struct {
	Channel *protoRef `json:"channel,omitempty"`
	Free    *protoRef `json:"free,omitempty"`
	Bound   *protoRef `json:"bound,omitempty"`
}

func (p Prototype) MarshalJSON() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	ref := &protoRef{Name: p.Name}
	var out protoJSON
	switch p.Kind {
	case KindChannel:
		out.Channel = ref
	case KindFree:
		ref.Service = p.Service
		out.Free = ref
	case KindBound:
		ref.Service = p.Service
		ref.Endpoint = &p.Endpoint
		out.Bound = ref
	}
	return json.Marshal(out)
}

func (p *Prototype) UnmarshalJSON(data []byte) error {
	var in protoJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return rpcerr.Wrap(rpcerr.MalformedEntity, err)
	}
	n := 0
	var ref *protoRef
	if in.Channel != nil {
		n, ref, p.Kind = n+1, in.Channel, KindChannel
	}
	if in.Free != nil {
		n, ref, p.Kind = n+1, in.Free, KindFree
	}
	if in.Bound != nil {
		n, ref, p.Kind = n+1, in.Bound, KindBound
	}
	if n != 1 {
		return rpcerr.Errorf(rpcerr.MalformedEntity, "function prototype must have exactly one variant, got %d", n)
	}
	p.Name = ref.Name
	p.Service = ""
	p.Endpoint = Endpoint{}
	if p.Kind != KindChannel {
		p.Service = ref.Service
	}
	if p.Kind == KindBound && ref.Endpoint != nil {
		p.Endpoint = *ref.Endpoint
	}
	return p.Validate()
}
