package wire

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/rpcerr"
)

var packetPool = sync.Pool{
	New: func() any {
		return &Packet{}
	},
}

// Packet is one framed message: a header and its JSON body.
type Packet struct {
	Header
	Body json.RawMessage
}

func NewPacket() *Packet {
	return packetPool.Get().(*Packet)
}

func (p *Packet) Release() {
	p.Header = Header{}
	p.Body = p.Body[:0]
	packetPool.Put(p)
}

func (p *Packet) Encode(h Header, body any) error {
	p.Header = h
	buf := bytes.NewBuffer(p.Body[:0])
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(body)
	p.Body = buf.Bytes()
	return err
}

func (p *Packet) EncodeInvoke(m *Invoke) error {
	return p.Encode(Header{Type: TypeInvoke, ID: m.ID, Head: m.Head}, m)
}
func (p *Packet) EncodeResult(id fn.ExecutionId, v Entity) error {
	return p.Encode(Header{Type: TypeResult, ID: id}, v)
}
func (p *Packet) EncodeError(id fn.ExecutionId, e *rpcerr.Error) error {
	return p.Encode(Header{Type: TypeError, ID: id}, e)
}

func (p *Packet) DecodeInvoke() (*Invoke, error) {
	m := &Invoke{ID: p.ID, Head: p.Head}
	if err := json.Unmarshal(p.Body, m); err != nil {
		return m, rpcerr.Wrap(rpcerr.MalformedEntity, err)
	}
	return m, m.Validate()
}
func (p *Packet) DecodeResult() (Result, error) {
	r := Result{ID: p.ID}
	if err := json.Unmarshal(p.Body, &r.Value); err != nil {
		return r, rpcerr.Wrap(rpcerr.MalformedEntity, err)
	}
	return r, r.Value.Validate()
}
func (p *Packet) DecodeError() Error {
	e := &rpcerr.Error{}
	if err := json.Unmarshal(p.Body, e); err != nil || e.Kind == "" {
		e = rpcerr.Errorf(rpcerr.MalformedEntity, "undecodable error reply: %s", bytes.TrimSpace(p.Body))
	}
	return Error{ID: p.ID, Err: e}
}
