package service

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pme-sh/lrpc/channel"
	"github.com/pme-sh/lrpc/coder"
	"github.com/pme-sh/lrpc/conn"
	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/rate"
	"github.com/pme-sh/lrpc/rpcerr"
	"github.com/pme-sh/lrpc/wire"
	"github.com/pme-sh/lrpc/xlog"
)

var quiet = xlog.NewDomain("test", io.Discard)

var (
	intFn    = coder.Func1(coder.Int, coder.Int)
	adderSig = coder.SignatureOf(coder.Func1(coder.Int, intFn))
	incSig   = coder.SignatureOf(intFn)
)

func adder() *fn.Function {
	return coder.Lambda1(func(_ context.Context, n int) (coder.Fn1[int, int], error) {
		return coder.Lambda1(func(_ context.Context, x int) (int, error) { return x + n, nil }), nil
	}).Function()
}

func serve(t *testing.T, opts Options) (*Service, *conn.Connector) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	opts.Logger = quiet
	s := New(opts)
	if err := s.ExposeFunc("adder", adderSig, adder()); err != nil {
		t.Fatal(err)
	}

	ep, _ := fn.ParseEndpoint(l.Addr().String())
	s.SetEndpoint(ep)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, l) }()

	table := conn.NewStatic(conn.StrategyRandom)
	table.Add(s.ID(), ep)
	c := conn.NewConnector(conn.NewPool(conn.PoolOptions{Channel: channel.Options{Logger: quiet}}), table)
	t.Cleanup(func() {
		c.Close()
		cancel()
		if err := <-done; err != nil {
			t.Errorf("serve: %v", err)
		}
		s.Close()
	})
	return s, c
}

func TestPublishBindsToEndpoint(t *testing.T) {
	s, c := serve(t, Options{})
	ctx := context.Background()

	v, err := s.Ref("adder", c, adderSig).Invoke(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	add := v.(coder.Fn1[int, int])
	p := add.Function().Prototype()
	if p.Kind != fn.KindBound || p.Service != s.ID() || p.Endpoint != s.Endpoint() {
		t.Fatalf("returned prototype %+v", p)
	}
	if got, err := add.Call(ctx, 37); err != nil || got != 42 {
		t.Fatalf("add(37) = %v, %v", got, err)
	}
	if _, err := s.Lookup(p.Name); err != nil {
		t.Fatalf("lookup of bound name: %v", err)
	}
	if st := s.Stats(); st.Exposed != 1 || st.Bound != 1 {
		t.Fatalf("stats %+v", st)
	}
}

func TestBoundExpiry(t *testing.T) {
	s, c := serve(t, Options{BoundTTL: 50 * time.Millisecond})
	ctx := context.Background()

	v, err := s.Ref("adder", c, adderSig).Invoke(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	add := v.(coder.Fn1[int, int])
	time.Sleep(100 * time.Millisecond)
	s.bound.Cleanup()
	if _, err := add.Call(ctx, 1); !errors.Is(err, rpcerr.UnknownFunction) {
		t.Fatalf("call of expired bound function: %v", err)
	}
}

func TestPublishWithoutEndpoint(t *testing.T) {
	s := New(Options{Logger: quiet})
	h := coder.Backend(incSig, coder.Lambda1(func(_ context.Context, x int) (int, error) { return x, nil }).Function())
	if _, err := s.Publish(h); !errors.Is(err, rpcerr.ConnectionUnavailable) {
		t.Fatalf("publish without endpoint: %v", err)
	}
	s.SetEndpoint(fn.Endpoint{Host: "127.0.0.1", Port: 1})
	p, err := s.Publish(h)
	if err != nil || p.Kind != fn.KindBound {
		t.Fatalf("publish = %+v, %v", p, err)
	}
	s.Close()
	if _, err := s.Publish(h); !errors.Is(err, rpcerr.RegistryClosed) {
		t.Fatalf("publish after close: %v", err)
	}
}

func TestExposeTwice(t *testing.T) {
	s := New(Options{Logger: quiet})
	if err := s.ExposeFunc("adder", adderSig, adder()); err != nil {
		t.Fatal(err)
	}
	if err := s.ExposeFunc("adder", adderSig, adder()); err == nil {
		t.Fatalf("duplicate expose accepted")
	}
	if _, err := s.Lookup("missing"); !errors.Is(err, rpcerr.UnknownFunction) {
		t.Fatalf("lookup of missing name: %v", err)
	}
}

func TestRateLimit(t *testing.T) {
	s, c := serve(t, Options{Rate: rate.Rate{Count: 5, Period: 100 * time.Millisecond}, Burst: 1})
	ep := s.Endpoint()

	lease, err := c.Pool().Acquire(context.Background(), ep)
	if err != nil {
		t.Fatal(err)
	}
	defer lease.Release()

	start := time.Now()
	for i := range 4 {
		if _, err := lease.Call(context.Background(), wire.ServiceTarget("adder"), adderSig, []any{i}); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("4 calls at 50/s took only %s", elapsed)
	}
}

func TestCloseDropsChannels(t *testing.T) {
	s, c := serve(t, Options{})
	lease, err := c.Pool().Acquire(context.Background(), s.Endpoint())
	if err != nil {
		t.Fatal(err)
	}
	defer lease.Release()
	if _, err := lease.Call(context.Background(), wire.ServiceTarget("adder"), adderSig, []any{1}); err != nil {
		t.Fatal(err)
	}

	s.Close()
	select {
	case <-lease.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("lease survived service close")
	}
	if _, err := lease.Call(context.Background(), wire.ServiceTarget("adder"), adderSig, []any{1}); !errors.Is(err, rpcerr.ChannelClosed) {
		t.Fatalf("call after close: %v", err)
	}
}

func TestListenerStopKeepsOtherConns(t *testing.T) {
	s := New(Options{Logger: quiet})
	if err := s.ExposeFunc("adder", adderSig, adder()); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	listen := func() (fn.Endpoint, context.CancelFunc, chan error) {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		ep, _ := fn.ParseEndpoint(l.Addr().String())
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Serve(ctx, l) }()
		return ep, cancel, done
	}
	epA, stopA, doneA := listen()
	epB, stopB, doneB := listen()
	defer stopB()

	c := conn.NewConnector(conn.NewPool(conn.PoolOptions{Channel: channel.Options{Logger: quiet}}), conn.NewStatic(conn.StrategyRandom))
	defer c.Close()
	pool := c.Pool()
	call := func(l *conn.Lease) error {
		_, err := l.Call(context.Background(), wire.ServiceTarget("adder"), adderSig, []any{1})
		return err
	}
	leaseA, err := pool.Acquire(context.Background(), epA)
	if err != nil {
		t.Fatal(err)
	}
	defer leaseA.Release()
	leaseB, err := pool.Acquire(context.Background(), epB)
	if err != nil {
		t.Fatal(err)
	}
	defer leaseB.Release()
	for _, l := range []*conn.Lease{leaseA, leaseB} {
		if err := call(l); err != nil {
			t.Fatal(err)
		}
	}

	stopA()
	if err := <-doneA; err != nil {
		t.Fatalf("serve: %v", err)
	}
	select {
	case <-leaseA.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("connection of the stopped listener survived")
	}
	if leaseB.Closed() {
		t.Fatalf("stopping one listener dropped another listener's connection")
	}
	if err := call(leaseB); err != nil {
		t.Fatalf("call over the remaining listener: %v", err)
	}
	if n := s.Stats().Conns; n != 1 {
		t.Fatalf("service holds %d connections", n)
	}

	stopB()
	if err := <-doneB; err != nil {
		t.Fatalf("serve: %v", err)
	}
}

func TestWebsocketHandler(t *testing.T) {
	s := New(Options{Logger: quiet})
	if err := s.ExposeFunc("adder", adderSig, adder()); err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	mux := http.NewServeMux()
	mux.Handle(conn.WebsocketPath, s.Handler())
	hs := httptest.NewServer(mux)
	defer hs.Close()
	ep, err := fn.ParseEndpoint(strings.TrimPrefix(hs.URL, "http://"))
	if err != nil {
		t.Fatal(err)
	}
	s.SetEndpoint(ep)

	pool := conn.NewPool(conn.PoolOptions{Dialer: &conn.Dialer{Transport: conn.TransportWebsocket}, Channel: channel.Options{Logger: quiet}})
	c := conn.NewConnector(pool, conn.NewStatic(conn.StrategyRandom))
	defer c.Close()
	lease, err := pool.Acquire(context.Background(), ep)
	if err != nil {
		t.Fatal(err)
	}
	defer lease.Release()
	if _, err := lease.Call(context.Background(), wire.ServiceTarget("adder"), adderSig, []any{1}); err != nil {
		t.Fatal(err)
	}
	if n := s.Stats().Conns; n != 1 {
		t.Fatalf("service holds %d connections", n)
	}
}
