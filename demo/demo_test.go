package demo

import (
	"context"
	"errors"
	"io"
	"net"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pme-sh/lrpc/channel"
	"github.com/pme-sh/lrpc/coder"
	"github.com/pme-sh/lrpc/conn"
	"github.com/pme-sh/lrpc/dsl"
	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/rpcerr"
	"github.com/pme-sh/lrpc/service"
	"github.com/pme-sh/lrpc/xlog"
)

var quiet = xlog.NewDomain("test", io.Discard)

type fixture struct {
	svc      *service.Service
	counters *Counters
	ctx      context.Context
}

func start(t *testing.T, transport string) *fixture {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ep, _ := fn.ParseEndpoint(l.Addr().String())
	opts := conn.PoolOptions{
		Dialer:  &conn.Dialer{Transport: transport},
		Channel: channel.Options{Logger: quiet},
	}

	// The service calls the bound functions it receives, its own included.
	table := conn.NewStatic(conn.StrategyRandom)
	table.Add(ID, ep)
	inner := conn.NewConnector(conn.NewPool(opts), table)
	svc := service.New(service.Options{ID: ID, Endpoint: ep, Connector: inner, Logger: quiet})
	counters, err := Expose(svc)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if transport == conn.TransportWebsocket {
			l.Close()
			svc.ListenAndServe(ctx, ep.String(), transport)
		} else {
			svc.Serve(ctx, l)
		}
	}()

	sc := dsl.NewServiceContext(map[fn.ServiceId][]fn.Endpoint{ID: {ep}}, opts)
	t.Cleanup(func() {
		sc.Close()
		inner.Close()
		cancel()
		svc.Close()
		<-done
	})

	cctx, ccancel := context.WithTimeout(sc.Bind(context.Background()), 10*time.Second)
	t.Cleanup(ccancel)
	f := &fixture{svc: svc, counters: counters, ctx: cctx}
	if transport == conn.TransportWebsocket {
		waitReady(t, f)
	}
	return f
}

func waitReady(t *testing.T, f *fixture) {
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := Add5.Call(f.ctx, 0); err == nil {
			return
		} else if time.Now().After(deadline) {
			t.Fatalf("service not ready: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestBasic(t *testing.T) {
	f := start(t, conn.TransportTCP)

	if v, err := Add5.Call(f.ctx, 2); err != nil || v != 7 {
		t.Fatalf("add5(2) = %v, %v", v, err)
	}

	m := 3
	if v, err := Eval5.Call(f.ctx, coder.Lambda1(func(_ context.Context, x int) (int, error) { return x + m, nil })); err != nil || v != 8 {
		t.Fatalf("eval5(x+m) = %v, %v", v, err)
	}

	add, err := SpecializeAdd.Call(f.ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if add.Function().Kind() != fn.KindBound {
		t.Fatalf("specializeAdd returned a %s function", add.Function().Kind())
	}
	if v, err := add.Call(f.ctx, 37); err != nil || v != 42 {
		t.Fatalf("specializeAdd(5)(37) = %v, %v", v, err)
	}

	g, err := ExecuteAndAdd.Call(f.ctx, coder.Lambda1(func(_ context.Context, x int) (int, error) { return x + 12, nil }))
	if err != nil {
		t.Fatal(err)
	}
	if v, err := g.Call(f.ctx, 100); err != nil || v != 117 {
		t.Fatalf("executeAndAdd(x+12)(100) = %v, %v", v, err)
	}
	if f.svc.Stats().Bound != 2 {
		t.Fatalf("bound functions = %d", f.svc.Stats().Bound)
	}

	if v, err := Version.Call(f.ctx); err != nil || v == "" {
		t.Fatalf("version = %q, %v", v, err)
	}
	if v, err := Poly.Call(f.ctx, 2, 1, 2, 3, 4); err != nil || v != 26 {
		t.Fatalf("poly = %v, %v", v, err)
	}
}

func TestCallbacksRunInCaller(t *testing.T) {
	f := start(t, conn.TransportTCP)

	var calls atomic.Int32
	double := coder.Lambda1(func(_ context.Context, x int) (int, error) {
		calls.Add(1)
		return 2 * x, nil
	})
	got, err := MapInts.Call(f.ctx, []int{1, 2, 3}, double)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []int{2, 4, 6}) || calls.Load() != 3 {
		t.Fatalf("mapInts = %v after %d calls", got, calls.Load())
	}

	plus := coder.Lambda2(func(_ context.Context, a, b int) (int, error) { return a + b, nil })
	if v, err := FoldInts.Call(f.ctx, []int{1, 2, 3, 4}, 0, plus); err != nil || v != 10 {
		t.Fatalf("foldInts = %v, %v", v, err)
	}

	failing := coder.Lambda1(func(context.Context, int) (int, error) { return 0, errors.New("nope") })
	_, err = MapInts.Call(f.ctx, []int{1}, failing)
	if rpcerr.KindOf(err) != rpcerr.ExecutionFailed {
		t.Fatalf("failing callback: %v", err)
	}

	// Free functions travel as references and are resolved by the service.
	c, _ := dsl.ConnectorFrom(f.ctx)
	if v, err := Eval5.Call(f.ctx, Add5.Ref(c)); err != nil || v != 10 {
		t.Fatalf("eval5(add5) = %v, %v", v, err)
	}
}

func TestPoints(t *testing.T) {
	f := start(t, conn.TransportTCP)

	if v, err := Distance.Call(f.ctx, Point{0, 0}, Point{3, 4}); err != nil || v != 5 {
		t.Fatalf("distance = %v, %v", v, err)
	}
	mirror := coder.Lambda1(func(_ context.Context, p Point) (Point, error) { return Point{p.Y, p.X}, nil })
	got, err := MapPoints.Call(f.ctx, []Point{{1, 2}, {3, 4}}, mirror)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, []Point{{2, 1}, {4, 3}}) {
		t.Fatalf("mapPoints = %v", got)
	}
}

func TestLazy(t *testing.T) {
	f := start(t, conn.TransportTCP)

	p, err := LazyConst.Call(f.ctx, 6)
	if err != nil {
		t.Fatal(err)
	}
	q, err := LazyMul.Call(f.ctx, p, 7)
	if err != nil {
		t.Fatal(err)
	}
	r, err := LazyAdd.Call(f.ctx, q, p)
	if err != nil {
		t.Fatal(err)
	}
	if n := f.counters.Evaluations.Load(); n != 0 {
		t.Fatalf("%d evaluations before await", n)
	}

	if v, err := coder.Await(f.ctx, q); err != nil || v != 42 {
		t.Fatalf("await q = %v, %v", v, err)
	}
	if n := f.counters.Evaluations.Load(); n != 2 {
		t.Fatalf("evaluations after q = %d", n)
	}
	if v, err := coder.Await(f.ctx, r); err != nil || v != 48 {
		t.Fatalf("await r = %v, %v", v, err)
	}
	if n := f.counters.Evaluations.Load(); n != 6 {
		t.Fatalf("evaluations after r = %d", n)
	}
}

func TestWebsocket(t *testing.T) {
	f := start(t, conn.TransportWebsocket)

	add, err := SpecializeAdd.Call(f.ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if v, err := add.Call(f.ctx, 1); err != nil || v != 2 {
		t.Fatalf("specializeAdd(1)(1) = %v, %v", v, err)
	}
	got, err := MapInts.Call(f.ctx, []int{5}, coder.Lambda1(func(_ context.Context, x int) (int, error) { return -x, nil }))
	if err != nil || !slices.Equal(got, []int{-5}) {
		t.Fatalf("mapInts = %v, %v", got, err)
	}
}

func TestNoConnector(t *testing.T) {
	if _, err := Add5.Call(context.Background(), 1); !errors.Is(err, rpcerr.ConnectionUnavailable) {
		t.Fatalf("call without connector: %v", err)
	}
}
