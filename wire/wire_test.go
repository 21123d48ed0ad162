package wire

import (
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/rpcerr"
)

func pipe(t *testing.T) (*Stream, *Stream) {
	a, b := net.Pipe()
	sa, sb := NewStream(a), NewStream(b)
	t.Cleanup(func() {
		sa.Close()
		sb.Close()
	})
	return sa, sb
}

func TestStreamInvokeResultError(t *testing.T) {
	sa, sb := pipe(t)

	big := strings.Repeat("x", 10*1024)
	data, _ := json.Marshal(big)
	inv := &Invoke{
		ID:     3,
		Head:   1,
		Target: ChannelTarget("ch-1"),
		Args: []Entity{
			DataEntity(data),
			FunctionEntity(fn.FreePrototype("add5", "arith")),
		},
	}
	go func() {
		p := NewPacket()
		defer p.Release()
		p.EncodeInvoke(inv)
		sa.Write(p)
		p.EncodeResult(7, DataEntity(json.RawMessage(`[2,4,6]`)))
		sa.Write(p)
		p.EncodeError(9, rpcerr.New(rpcerr.UnknownFunction, "ch-9"))
		sa.Write(p)
	}()

	p := NewPacket()
	defer p.Release()
	if err := sb.Read(p); err != nil {
		t.Fatal(err)
	}
	got, err := p.DecodeInvoke()
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != 3 || got.Head != 1 || !got.Nested() || got.Target != inv.Target || len(got.Args) != 2 {
		t.Fatalf("unexpected invoke %+v", got)
	}
	var s string
	if err := json.Unmarshal(got.Args[0].Data, &s); err != nil || s != big {
		t.Fatalf("large argument was not preserved (%v)", err)
	}
	if got.Args[1].Function == nil || got.Args[1].Function.Kind != fn.KindFree {
		t.Fatalf("expected free function argument, got %+v", got.Args[1])
	}

	if err := sb.Read(p); err != nil {
		t.Fatal(err)
	}
	res, err := p.DecodeResult()
	if err != nil || res.ID != 7 || string(res.Value.Data) != "[2,4,6]" {
		t.Fatalf("unexpected result %+v (%v)", res, err)
	}

	if err := sb.Read(p); err != nil {
		t.Fatal(err)
	}
	e := p.DecodeError()
	if e.ID != 9 || !errors.Is(e.Err, rpcerr.UnknownFunction) || e.Err.Message != "ch-9" {
		t.Fatalf("unexpected error %+v", e)
	}
}

func TestStreamRejectsUnknownType(t *testing.T) {
	sa, sb := pipe(t)
	go func() {
		p := NewPacket()
		p.Encode(Header{Type: 'Z', ID: 1}, nil)
		sa.Write(p)
	}()
	p := NewPacket()
	if err := sb.Read(p); !errors.Is(err, rpcerr.ProtocolViolation) {
		t.Fatalf("expected ProtocolViolation, got %v", err)
	}
}

func TestEntityValidate(t *testing.T) {
	proto := fn.ChannelPrototype("ch-1")
	cases := []struct {
		e  Entity
		ok bool
	}{
		{DataEntity(json.RawMessage(`1`)), true},
		{DataEntity(json.RawMessage(`null`)), true},
		{FunctionEntity(proto), true},
		{Entity{}, false},
		{Entity{Data: json.RawMessage(`1`), Function: &proto}, false},
		{Entity{Type: "int", Function: &proto}, false},
	}
	for i, c := range cases {
		err := c.e.Validate()
		if c.ok && err != nil {
			t.Fatalf("case %d: unexpected error %v", i, err)
		}
		if !c.ok && !errors.Is(err, rpcerr.MalformedEntity) {
			t.Fatalf("case %d: expected MalformedEntity, got %v", i, err)
		}
	}
}

func TestInvokeValidate(t *testing.T) {
	p := NewPacket()
	p.Encode(Header{Type: TypeInvoke, ID: 1, Head: 1}, map[string]any{
		"target": map[string]any{"name": "f"},
		"args":   []any{map[string]any{}},
	})
	if _, err := p.DecodeInvoke(); !errors.Is(err, rpcerr.MalformedEntity) {
		t.Fatalf("expected MalformedEntity for empty argument, got %v", err)
	}
	p.Encode(Header{Type: TypeInvoke}, &Invoke{Target: ServiceTarget("f")})
	if _, err := p.DecodeInvoke(); !errors.Is(err, rpcerr.ProtocolViolation) {
		t.Fatalf("expected ProtocolViolation for missing id, got %v", err)
	}
}
