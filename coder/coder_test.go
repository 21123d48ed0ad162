package coder

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/rpcerr"
	"github.com/pme-sh/lrpc/wire"
)

// loopback is a registry and a remote at once: calls to channel functions are
// encoded, dispatched to the registered handler and decoded again.
type loopback struct {
	mu       sync.Mutex
	handlers map[fn.AccessName]Handler
}

func newLoopback() *loopback {
	return &loopback{handlers: map[fn.AccessName]Handler{}}
}

func (l *loopback) Register(h Handler) (fn.AccessName, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	name := fn.AccessName("c-" + strconv.Itoa(len(l.handlers)+1))
	l.handlers[name] = h
	return name, nil
}

func (l *loopback) ChannelFunction(name fn.AccessName, sig *Signature) fn.Invoker {
	return fn.InvokerFunc(func(ctx context.Context, args []any) (any, error) {
		cc := l.context()
		es, err := sig.EncodeArgs(args, cc)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		h := l.handlers[name]
		l.mu.Unlock()
		if h == nil {
			return nil, rpcerr.New(rpcerr.UnknownFunction, string(name))
		}
		res, err := h.Handle(ctx, es, cc)
		if err != nil {
			return nil, err
		}
		return sig.DecodeResult(res, cc)
	})
}

func (l *loopback) context() *Context { return &Context{Registry: l, Remote: l} }

type publisher struct{ n int }

func (p *publisher) Publish(Handler) (fn.Prototype, error) {
	p.n++
	return fn.BoundPrototype("b-1", "svc", fn.Endpoint{Host: "127.0.0.1", Port: 9000}), nil
}

func roundTrip[T any](t *testing.T, c Coder[T], v T, cc *Context) T {
	t.Helper()
	e, err := c.Encode(v, cc)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	var back wire.Entity
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	out, err := c.Decode(back, cc)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestDataCoders(t *testing.T) {
	cc := newLoopback().context()
	if v := roundTrip(t, Ints, []int{1, 2, 3}, cc); len(v) != 3 || v[2] != 3 {
		t.Fatalf("unexpected %v", v)
	}
	if v := roundTrip(t, String, "hello", cc); v != "hello" {
		t.Fatalf("unexpected %q", v)
	}
	if v := roundTrip(t, Raw(), json.RawMessage(`{"a":1}`), cc); string(v) != `{"a":1}` {
		t.Fatalf("unexpected %s", v)
	}

	if _, err := Int.Decode(wire.DataEntity(json.RawMessage(`{nope`)), cc); !errors.Is(err, rpcerr.MalformedEntity) {
		t.Fatalf("expected MalformedEntity for invalid json, got %v", err)
	}
	if _, err := Int.Decode(wire.FunctionEntity(fn.ChannelPrototype("c-1")), cc); !errors.Is(err, rpcerr.MalformedEntity) {
		t.Fatalf("expected MalformedEntity for function entity, got %v", err)
	}
	if _, err := Int.Decode(wire.DataEntity(json.RawMessage(`"x"`)), cc); !errors.Is(err, rpcerr.MalformedEntity) {
		t.Fatalf("expected MalformedEntity for mismatched payload, got %v", err)
	}
	if _, err := Erase(Int).Encode("x", cc); !errors.Is(err, rpcerr.UnknownType) {
		t.Fatalf("expected UnknownType for wrong go type, got %v", err)
	}

	null := wire.DataEntity(json.RawMessage(` null `))
	if _, err := Int.Decode(null, cc); !errors.Is(err, rpcerr.MalformedEntity) || !strings.Contains(err.Error(), "got null") {
		t.Fatalf("expected MalformedEntity for null int, got %v", err)
	}
	if _, err := JSON[struct{ X int }]().Decode(null, cc); !errors.Is(err, rpcerr.MalformedEntity) {
		t.Fatalf("expected MalformedEntity for null struct, got %v", err)
	}
	if v, err := Ints.Decode(null, cc); err != nil || v != nil {
		t.Fatalf("null slice decoded to %v (%v)", v, err)
	}
	if v, err := JSON[*int]().Decode(null, cc); err != nil || v != nil {
		t.Fatalf("null pointer decoded to %v (%v)", v, err)
	}
}

func TestNamedAndUnion(t *testing.T) {
	cc := newLoopback().context()
	point := Named("point", JSON[[2]int]())
	e, err := point.Encode([2]int{1, 2}, cc)
	if err != nil || e.Type != "point" {
		t.Fatalf("expected tagged entity, got %+v (%v)", e, err)
	}
	e.Type = "vector"
	if _, err := point.Decode(e, cc); !errors.Is(err, rpcerr.UnknownType) {
		t.Fatalf("expected UnknownType, got %v", err)
	}

	u := NewUnion()
	Register(u, "int", Int)
	Register(u, "str", String)
	if v := roundTrip[Tagged](t, u, Tagged{Type: "str", Value: "s"}, cc); v.Value != "s" {
		t.Fatalf("unexpected %+v", v)
	}
	if _, err := u.Decode(wire.Entity{Type: "float", Data: json.RawMessage(`1.5`)}, cc); !errors.Is(err, rpcerr.UnknownType) {
		t.Fatalf("expected UnknownType, got %v", err)
	}
}

func TestArities(t *testing.T) {
	ctx := context.Background()
	cc := newLoopback().context()
	add := func(xs ...int) (s int) {
		for _, x := range xs {
			s += x
		}
		return
	}

	f0 := roundTrip(t, Func0(Int), Lambda0(func(context.Context) (int, error) { return 7, nil }), cc)
	f1 := roundTrip(t, Func1(Int, Int), Lambda1(func(_ context.Context, a int) (int, error) { return add(a, 5), nil }), cc)
	f2 := roundTrip(t, Func2(Int, Int, Int), Lambda2(func(_ context.Context, a, b int) (int, error) { return add(a, b), nil }), cc)
	f3 := roundTrip(t, Func3(Int, Int, Int, Int), Lambda3(func(_ context.Context, a, b, c int) (int, error) {
		return add(a, b, c), nil
	}), cc)
	f4 := roundTrip(t, Func4(Int, Int, Int, Int, Int), Lambda4(func(_ context.Context, a, b, c, d int) (int, error) {
		return add(a, b, c, d), nil
	}), cc)
	f5 := roundTrip(t, Func5(Int, Int, Int, Int, Int, Int), Lambda5(func(_ context.Context, a, b, c, d, e int) (int, error) {
		return add(a, b, c, d, e), nil
	}), cc)

	for i, f := range []*fn.Function{f0.F, f1.F, f2.F, f3.F, f4.F, f5.F} {
		if f.Kind() != fn.KindChannel {
			t.Fatalf("arity %d: expected channel function after round trip, got %s", i, f.Kind())
		}
	}

	check := func(arity, got int, err error, want int) {
		t.Helper()
		if err != nil || got != want {
			t.Fatalf("arity %d: got %d (%v), want %d", arity, got, err, want)
		}
	}
	v, err := f0.Call(ctx)
	check(0, v, err, 7)
	v, err = f1.Call(ctx, 1)
	check(1, v, err, 6)
	v, err = f2.Call(ctx, 1, 2)
	check(2, v, err, 3)
	v, err = f3.Call(ctx, 1, 2, 3)
	check(3, v, err, 6)
	v, err = f4.Call(ctx, 1, 2, 3, 4)
	check(4, v, err, 10)
	v, err = f5.Call(ctx, 1, 2, 3, 4, 5)
	check(5, v, err, 15)
}

func TestHigherOrder(t *testing.T) {
	ctx := context.Background()
	cc := newLoopback().context()

	unary := Func1(Int, Int)
	mapper := Func2(Ints, unary, Ints)
	mapInts := Lambda2(func(ctx context.Context, xs []int, f Fn1[int, int]) ([]int, error) {
		out := make([]int, len(xs))
		for i, x := range xs {
			y, err := f.Call(ctx, x)
			if err != nil {
				return nil, err
			}
			out[i] = y
		}
		return out, nil
	})
	remote := roundTrip(t, mapper, mapInts, cc)
	double := Lambda1(func(_ context.Context, x int) (int, error) { return x * 2, nil })
	got, err := remote.Call(ctx, []int{1, 2, 3}, double)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0] != 2 || got[1] != 4 || got[2] != 6 {
		t.Fatalf("unexpected %v", got)
	}

	specialize := Func1(Int, unary)
	addN := Lambda1(func(_ context.Context, n int) (Fn1[int, int], error) {
		return Lambda1(func(_ context.Context, x int) (int, error) { return x + n, nil }), nil
	})
	add10, err := roundTrip(t, specialize, addN, cc).Call(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if v, err := add10.Call(ctx, 5); err != nil || v != 15 {
		t.Fatalf("specialized function returned %d (%v)", v, err)
	}
}

func TestPromise(t *testing.T) {
	ctx := context.Background()
	cc := newLoopback().context()
	calls := 0
	p := Lazy(func(context.Context) (string, error) {
		calls++
		return "done", nil
	})
	remote := roundTrip(t, PromiseOf(String), p, cc)
	if calls != 0 {
		t.Fatal("promise was evaluated while being encoded")
	}
	if v, err := Await(ctx, remote); err != nil || v != "done" || calls != 1 {
		t.Fatalf("await returned %q (%v) after %d calls", v, err, calls)
	}
	if v, _ := Await(ctx, Resolved(3)); v != 3 {
		t.Fatalf("unexpected %d", v)
	}
}

func TestFunctionKinds(t *testing.T) {
	l := newLoopback()
	sig := NewSignature(Erase(Int))
	c := Function(sig)

	pub := &publisher{}
	e, err := c.Encode(Lambda0(func(context.Context) (int, error) { return 1, nil }).F, l.context().WithPublisher(pub))
	if err != nil || e.Function.Kind != fn.KindBound || pub.n != 1 {
		t.Fatalf("expected publication as bound function, got %+v (%v)", e, err)
	}

	free := fn.FreeRef("add5", "arith", nil)
	e, err = c.Encode(free, l.context())
	if err != nil || e.Function.Kind != fn.KindFree || e.Function.Name != "add5" {
		t.Fatalf("expected free prototype to pass through, got %+v (%v)", e, err)
	}
	if _, err := c.Decode(e, l.context()); !errors.Is(err, rpcerr.UnknownType) {
		t.Fatalf("expected UnknownType without a connector, got %v", err)
	}

	fwd := fn.ChannelRef("c-remote", nil, fn.InvokerFunc(func(context.Context, []any) (any, error) { return 9, nil }))
	e, err = c.Encode(fwd, l.context())
	if err != nil || e.Function.Kind != fn.KindChannel || e.Function.Name == "c-remote" {
		t.Fatalf("expected forwarded channel function to be proxied, got %+v (%v)", e, err)
	}
	back, err := Func0(Int).Decode(e, l.context())
	if err != nil {
		t.Fatal(err)
	}
	if v, err := back.Call(context.Background()); err != nil || v != 9 {
		t.Fatalf("proxy returned %d (%v)", v, err)
	}

	if _, err := c.Encode(nil, l.context()); !errors.Is(err, rpcerr.UnknownType) {
		t.Fatalf("expected UnknownType for nil function, got %v", err)
	}
	if _, err := c.Encode(Lambda0(func(context.Context) (int, error) { return 0, nil }).F, &Context{}); !errors.Is(err, rpcerr.UnknownType) {
		t.Fatalf("expected UnknownType without a registry, got %v", err)
	}
	if _, err := c.Decode(wire.DataEntity(json.RawMessage(`1`)), l.context()); !errors.Is(err, rpcerr.MalformedEntity) {
		t.Fatalf("expected MalformedEntity for data entity, got %v", err)
	}
}
