package wire

import (
	"encoding/json"

	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/rpcerr"
)

// Entity is a tagged union of a raw data payload and a function prototype.
// Type optionally names the coder that produced a data payload.
type Entity struct {
	Type     string          `json:"type,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Function *fn.Prototype   `json:"fn,omitempty"`
}

func DataEntity(data json.RawMessage) Entity {
	return Entity{Data: data}
}
func FunctionEntity(p fn.Prototype) Entity {
	return Entity{Function: &p}
}

func (e Entity) IsFunction() bool { return e.Function != nil }

// Validate reports MalformedEntity unless exactly one payload is present.
func (e Entity) Validate() error {
	switch {
	case e.Function != nil && len(e.Data) != 0:
		return rpcerr.New(rpcerr.MalformedEntity, "entity carries both data and function")
	case e.Function != nil:
		if e.Type != "" {
			return rpcerr.New(rpcerr.MalformedEntity, "function entity cannot carry a type tag")
		}
		return e.Function.Validate()
	case len(e.Data) == 0:
		return rpcerr.New(rpcerr.MalformedEntity, "entity carries no payload")
	}
	return nil
}
