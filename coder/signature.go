package coder

import (
	"context"

	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/rpcerr"
	"github.com/pme-sh/lrpc/wire"
)

// Signature is the coder list of a function: one per argument plus the result.
type Signature struct {
	Args   []Coder[any]
	Result Coder[any]
}

func NewSignature(result Coder[any], args ...Coder[any]) *Signature {
	return &Signature{Args: args, Result: result}
}

func (s *Signature) Arity() int { return len(s.Args) }

func (s *Signature) EncodeArgs(args []any, cc *Context) ([]wire.Entity, error) {
	if len(args) != len(s.Args) {
		return nil, rpcerr.Errorf(rpcerr.MalformedEntity, "expected %d arguments, got %d", len(s.Args), len(args))
	}
	out := make([]wire.Entity, len(args))
	for i, c := range s.Args {
		e, err := c.Encode(args[i], cc)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (s *Signature) DecodeArgs(args []wire.Entity, cc *Context) ([]any, error) {
	if len(args) != len(s.Args) {
		return nil, rpcerr.Errorf(rpcerr.MalformedEntity, "expected %d arguments, got %d", len(s.Args), len(args))
	}
	out := make([]any, len(args))
	for i, c := range s.Args {
		v, err := c.Decode(args[i], cc)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *Signature) EncodeResult(v any, cc *Context) (wire.Entity, error) {
	return s.Result.Encode(v, cc)
}
func (s *Signature) DecodeResult(e wire.Entity, cc *Context) (any, error) {
	return s.Result.Decode(e, cc)
}

// Backend serves f over the wire: arguments are decoded with the signature, the
// function runs, and its result is encoded against the same context.
func Backend(sig *Signature, f *fn.Function) Handler {
	return HandlerFunc(func(ctx context.Context, args []wire.Entity, cc *Context) (wire.Entity, error) {
		vals, err := sig.DecodeArgs(args, cc)
		if err != nil {
			return wire.Entity{}, err
		}
		res, err := f.Invoke(ctx, vals...)
		if err != nil {
			return wire.Entity{}, err
		}
		return sig.EncodeResult(res, cc)
	})
}
