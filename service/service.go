// Package service exposes functions to remote callers. A Service accepts yamux
// sessions over TCP or websockets, runs one execution channel per stream, and
// publishes the closures its functions return as bound functions.
package service

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pme-sh/lrpc/channel"
	"github.com/pme-sh/lrpc/coder"
	"github.com/pme-sh/lrpc/concurrent"
	"github.com/pme-sh/lrpc/conn"
	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/lru"
	"github.com/pme-sh/lrpc/rate"
	"github.com/pme-sh/lrpc/registry"
	"github.com/pme-sh/lrpc/rpcerr"
	"github.com/pme-sh/lrpc/snowflake"
	"github.com/pme-sh/lrpc/xlog"

	"golang.org/x/sync/errgroup"
)

type Options struct {
	ID        fn.ServiceId
	Endpoint  fn.Endpoint     // Advertised in bound functions; set from the listener when empty.
	Connector coder.Connector // Decodes free and bound functions passed in.
	BoundTTL  time.Duration   // Idle time before a bound function is dropped, default 10m.
	Rate      rate.Rate       // Inbound invocations per channel.
	Burst     int
	Logger    *xlog.Logger
}

type Service struct {
	id        fn.ServiceId
	endpoint  atomic.Pointer[fn.Endpoint]
	connector coder.Connector
	rate      rate.Rate
	burst     int
	logger    *xlog.Logger

	exposed   *registry.Registry[coder.Handler]
	bound     lru.Cache[fn.AccessName, coder.Handler]
	conns     concurrent.Map[net.Conn, net.Listener] // Accepting listener, nil when handed in.
	listeners concurrent.Map[net.Listener, struct{}]
	channels  concurrent.Map[*channel.Channel, struct{}]
	closed    atomic.Bool
}

func New(opts Options) *Service {
	if opts.ID == "" {
		opts.ID = fn.NewServiceId()
	}
	if opts.BoundTTL <= 0 {
		opts.BoundTTL = 10 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = xlog.Sub("service")
	}
	l := logger.With().Str("service", opts.ID.String()).Logger()

	s := &Service{
		id:        opts.ID,
		connector: opts.Connector,
		rate:      opts.Rate,
		burst:     opts.Burst,
		logger:    &l,
		exposed:   registry.New[coder.Handler]("s"),
		bound: lru.Cache[fn.AccessName, coder.Handler]{
			Expiry:          opts.BoundTTL,
			CleanupInterval: opts.BoundTTL / 2,
		},
	}
	if !opts.Endpoint.IsZero() {
		s.SetEndpoint(opts.Endpoint)
	}
	return s
}

func (s *Service) ID() fn.ServiceId { return s.id }
func (s *Service) Endpoint() fn.Endpoint {
	if ep := s.endpoint.Load(); ep != nil {
		return *ep
	}
	return fn.Endpoint{}
}
func (s *Service) SetEndpoint(ep fn.Endpoint) { s.endpoint.Store(&ep) }

// Connector is what functions received by the service are called through.
func (s *Service) Connector() coder.Connector { return s.connector }

// Expose makes h callable under name.
func (s *Service) Expose(name fn.AccessName, h coder.Handler) error {
	return s.exposed.Define(name, h)
}

// ExposeFunc exposes f with the given signature.
func (s *Service) ExposeFunc(name fn.AccessName, sig *coder.Signature, f *fn.Function) error {
	return s.Expose(name, coder.Backend(sig, f))
}

// Names lists the exposed functions.
func (s *Service) Names() []fn.AccessName { return s.exposed.Names() }

// Ref returns the exposed function name as a free function of this service.
func (s *Service) Ref(name fn.AccessName, c coder.Connector, sig *coder.Signature) *fn.Function {
	p := fn.FreePrototype(name, s.id)
	return fn.FreeRef(name, s.id, c.Free(p, sig))
}

// Lookup resolves exposed functions first, then bound ones.
func (s *Service) Lookup(name fn.AccessName) (coder.Handler, error) {
	h, err := s.exposed.Lookup(name)
	if err == nil {
		return h, nil
	}
	if h, ok := s.bound.GetIf(name); ok {
		return h, nil
	}
	return nil, err
}

// Publish keeps h callable by anyone who can reach this instance, until it has
// been idle for the bound TTL.
func (s *Service) Publish(h coder.Handler) (fn.Prototype, error) {
	ep := s.Endpoint()
	if ep.IsZero() {
		return fn.Prototype{}, rpcerr.New(rpcerr.ConnectionUnavailable, "service has no endpoint to bind functions to")
	}
	if s.closed.Load() {
		return fn.Prototype{}, rpcerr.New(rpcerr.RegistryClosed, "service closed")
	}
	name := fn.AccessName("b" + snowflake.New().String())
	s.bound.Set(name, h)
	return fn.BoundPrototype(name, s.id, ep), nil
}

type Stats struct {
	Exposed  int
	Bound    int
	Channels int
	Conns    int
}

func (s *Service) Stats() Stats {
	return Stats{
		Exposed:  s.exposed.Len(),
		Bound:    s.bound.Len(),
		Channels: len(s.channels.Keys()),
		Conns:    len(s.conns.Keys()),
	}
}

func (s *Service) serveStream(stream net.Conn) {
	ch := channel.New(stream, channel.Acceptor, channel.Options{
		Exposure:  s,
		Connector: s.connector,
		Limiter:   s.rate.Limiter(s.burst),
		Logger:    s.logger,
	})
	s.channels.Store(ch, struct{}{})
	defer s.channels.Delete(ch)
	<-ch.Done()
}

// ServeConn runs a yamux session over c until either side closes it.
func (s *Service) ServeConn(c net.Conn) { s.serveConn(c, nil) }

func (s *Service) serveConn(c net.Conn, from net.Listener) {
	if s.closed.Load() {
		c.Close()
		return
	}
	s.conns.Store(c, from)
	defer s.conns.Delete(c)
	if err := conn.ServeSession(c, s.serveStream); err != nil {
		s.logger.Debug().Err(err).Stringer("remote", c.RemoteAddr()).Msg("session ended")
	}
}

// Handler accepts websocket sessions.
func (s *Service) Handler() http.Handler {
	return conn.Handler(s.ServeConn)
}

func (s *Service) useListener(l net.Listener) {
	s.listeners.Store(l, struct{}{})
	if !s.Endpoint().IsZero() {
		return
	}
	if ep, err := fn.ParseEndpoint(l.Addr().String()); err == nil {
		s.SetEndpoint(ep)
	}
}

// Serve accepts connections on l until ctx ends or the service is closed. The
// connections accepted on l are dropped when it returns; those of other
// listeners are not.
func (s *Service) Serve(ctx context.Context, l net.Listener) error {
	s.useListener(l)
	defer s.listeners.Delete(l)
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	s.logger.Info().Stringer("addr", l.Addr()).Msg("serving")
	g := &errgroup.Group{}
	for {
		c, err := l.Accept()
		if err != nil {
			l.Close()
			s.closeConns(l)
			g.Wait()
			if ctx.Err() != nil || s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		g.Go(func() error {
			s.serveConn(c, l)
			return nil
		})
	}
}

// ListenAndServe listens on addr with the given transport, conn.TransportTCP or
// conn.TransportWebsocket.
func (s *Service) ListenAndServe(ctx context.Context, addr, transport string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if transport != conn.TransportWebsocket {
		return s.Serve(ctx, l)
	}

	s.useListener(l)
	defer s.listeners.Delete(l)
	mux := http.NewServeMux()
	mux.Handle(conn.WebsocketPath, conn.Handler(func(c net.Conn) { s.serveConn(c, l) }))
	srv := &http.Server{
		Handler:  mux,
		ErrorLog: slog.NewLogLogger(xlog.ToSlog(s.logger).Handler(), slog.LevelWarn),
	}
	stop := context.AfterFunc(ctx, func() {
		s.closeConns(l)
		srv.Close()
	})
	defer stop()
	s.logger.Info().Stringer("addr", l.Addr()).Msg("serving websockets")
	err = srv.Serve(l)
	s.closeConns(l)
	if errors.Is(err, http.ErrServerClosed) || s.closed.Load() || ctx.Err() != nil {
		return nil
	}
	return err
}

// closeConns drops the connections accepted on l. Their sessions end with
// them, and so do the channels running over them.
func (s *Service) closeConns(l net.Listener) {
	s.conns.Range(func(c net.Conn, from net.Listener) bool {
		if from == l {
			c.Close()
		}
		return true
	})
}

func (s *Service) closeAll() {
	s.conns.Range(func(c net.Conn, _ net.Listener) bool {
		c.Close()
		return true
	})
	s.channels.Range(func(ch *channel.Channel, _ struct{}) bool {
		ch.Close()
		return true
	})
}

// Close drops every connection and bound function. Exposed functions stay
// defined but nothing can reach them any more.
func (s *Service) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.listeners.Range(func(l net.Listener, _ struct{}) bool {
		l.Close()
		return true
	})
	s.closeAll()
	s.bound.Close()
	return nil
}
