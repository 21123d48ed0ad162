package conn

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pme-sh/lrpc/channel"
	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/lru"
	"github.com/pme-sh/lrpc/rpcerr"
	"github.com/pme-sh/lrpc/xlog"

	"github.com/hashicorp/yamux"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const defaultDialTimeout = 10 * time.Second

// Pool keeps one yamux session per endpoint and hands out channels over fresh
// streams of it. Sessions nobody holds are closed after Expiry.
type Pool struct {
	dialer   *Dialer
	channel  channel.Options
	sessions lru.Cache[fn.Endpoint, *yamux.Session]
	closed   atomic.Bool
	logger   *xlog.Logger
}

type PoolOptions struct {
	Dialer  *Dialer
	Expiry  time.Duration   // Idle time before a session is closed, default 2m.
	Channel channel.Options // Options of every leased channel.
}

func NewPool(opts PoolOptions) *Pool {
	p := &Pool{
		dialer:  opts.Dialer,
		channel: opts.Channel,
		logger:  xlog.Sub("pool"),
	}
	if p.dialer == nil {
		p.dialer = &Dialer{}
	}
	if p.dialer.Timeout == 0 {
		p.dialer.Timeout = defaultDialTimeout
	}
	if p.channel.Logger == nil {
		p.channel.Logger = p.logger
	}
	expiry := opts.Expiry
	if expiry <= 0 {
		expiry = 2 * time.Minute
	}
	p.sessions = lru.Cache[fn.Endpoint, *yamux.Session]{
		Expiry:          expiry,
		CleanupInterval: expiry / 2,
		Evict: func(ep fn.Endpoint, s *yamux.Session) {
			p.logger.Debug().Stringer("endpoint", ep).Msg("session closed")
			closeGraceful(s)
		},
	}
	return p
}

// SetConnector sets the connector leased channels decode free and bound
// functions with. It must be called before the pool is used.
func (p *Pool) SetConnector(c *Connector) {
	p.channel.Connector = c
}

// Lease is a channel borrowed from the pool. Functions received over it stay
// callable until Release.
type Lease struct {
	*channel.Channel
	Endpoint fn.Endpoint
	entry    *lru.Entry[*yamux.Session]
	once     sync.Once
}

// Release closes the channel and returns the session to the pool.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.Channel.Close()
		l.entry.Release()
	})
}

// Acquire opens a channel to ep, dialing a session first if none is pooled. A
// session found dead is dropped and dialed again once.
func (p *Pool) Acquire(ctx context.Context, ep fn.Endpoint) (*Lease, error) {
	for retried := false; ; retried = true {
		if p.closed.Load() {
			return nil, rpcerr.New(rpcerr.ConnectionUnavailable, "pool closed")
		}
		if err := ctx.Err(); err != nil {
			return nil, rpcerr.Wrap(rpcerr.ConnectionUnavailable, err)
		}
		e, err := p.session(ctx, ep)
		if err != nil {
			return nil, err
		}

		stream, err := e.Value.OpenStream()
		if err != nil {
			e.Release()
			p.sessions.Remove(ep, e)
			if !retried {
				continue
			}
			return nil, rpcerr.Wrap(rpcerr.ConnectionUnavailable, errors.Wrapf(err, "open stream to %s", ep))
		}
		return &Lease{
			Channel:  channel.New(stream, channel.Dialer, p.channel),
			Endpoint: ep,
			entry:    e,
		}, nil
	}
}

// session returns a held session to ep, dialing one under ctx if none is
// pooled. Concurrent misses may dial twice; the loser is closed.
func (p *Pool) session(ctx context.Context, ep fn.Endpoint) (*lru.Entry[*yamux.Session], error) {
	for {
		if e, ok := p.sessions.GetEntryIf(ep); ok {
			if e.TryAcquire() {
				return e, nil
			}
			p.sessions.Remove(ep, e)
			continue
		}
		s, err := p.dialer.Session(ctx, ep)
		if err != nil {
			return nil, err
		}
		e, stored := p.sessions.SetEntry(ep, &lru.Entry[*yamux.Session]{Value: s})
		if stored {
			p.logger.Debug().Stringer("endpoint", ep).Msg("session opened")
		} else {
			s.Close()
		}
		if e.TryAcquire() {
			return e, nil
		}
		p.sessions.Remove(ep, e)
	}
}

// Warm dials sessions to every endpoint concurrently. The first failure
// cancels the dials still in flight.
func (p *Pool) Warm(ctx context.Context, eps ...fn.Endpoint) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, ep := range eps {
		g.Go(func() error {
			e, err := p.session(gctx, ep)
			if err != nil {
				return err
			}
			e.Release()
			return nil
		})
	}
	return g.Wait()
}

// Len returns the number of pooled sessions.
func (p *Pool) Len() int { return p.sessions.Len() }

// Close drops every session. Sessions refuse new streams at once and close
// when the streams in flight are done.
func (p *Pool) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.sessions.Close()
	return nil
}
