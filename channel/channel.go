// Package channel multiplexes invocations in both directions over one ordered
// stream. Each side may call functions of the other while serving a call, and
// every nested call carries the id of the top-level execution it belongs to.
package channel

import (
	"cmp"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pme-sh/lrpc/coder"
	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/registry"
	"github.com/pme-sh/lrpc/rpcerr"
	"github.com/pme-sh/lrpc/wire"
	"github.com/pme-sh/lrpc/xlog"

	"golang.org/x/time/rate"
)

// Side decides the parity of the ids a channel mints so both directions share one
// id space: dialers use odd ids, acceptors even ones.
type Side uint8

const (
	Dialer Side = iota
	Acceptor
)

func (s Side) String() string {
	if s == Dialer {
		return "dialer"
	}
	return "acceptor"
}

// Exposure resolves service targets. An Exposure that is also a coder.Publisher
// publishes closures returned from its functions as bound functions.
type Exposure interface {
	Lookup(name fn.AccessName) (coder.Handler, error)
}

type Options struct {
	Exposure  Exposure
	Connector coder.Connector
	Limiter   *rate.Limiter // Inbound invocations, nil for unlimited.
	Logger    *xlog.Logger
}

type reply struct {
	value wire.Entity
	err   *rpcerr.Error
}

var errClosed = rpcerr.New(rpcerr.ChannelClosed, "")

type Channel struct {
	stream    *wire.Stream
	side      Side
	seq       atomic.Uint64
	registry  *registry.Registry[coder.Handler]
	exposure  Exposure
	connector coder.Connector
	limiter   *rate.Limiter
	logger    xlog.Logger
	cc        *coder.Context

	mu      sync.Mutex
	pending map[fn.ExecutionId]chan reply
	heads   map[fn.HeadExecutionId]int
	running map[fn.ExecutionId]struct{}  // Inbound executions not yet replied to.
	callers map[fn.HeadExecutionId]chain // Executions that started a head of ours.
	err     error
	closed  atomic.Bool
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc

	served     atomic.Int64
	violations atomic.Int64
}

// New starts a channel over rwc. The read loop runs until the stream fails or
// the channel is closed.
func New(rwc io.ReadWriteCloser, side Side, opts Options) *Channel {
	logger := opts.Logger
	if logger == nil {
		logger = xlog.Default()
	}
	lctx := logger.With().Str(xlog.SideFieldName, side.String())
	if nc, ok := rwc.(net.Conn); ok && nc.RemoteAddr() != nil {
		lctx = lctx.Str("remote", nc.RemoteAddr().String())
	}

	c := &Channel{
		stream:    wire.NewStream(rwc),
		side:      side,
		registry:  registry.New[coder.Handler]("c" + side.String()[:1]),
		exposure:  opts.Exposure,
		connector: opts.Connector,
		limiter:   opts.Limiter,
		logger:    lctx.Logger(),
		pending:   make(map[fn.ExecutionId]chan reply),
		heads:     make(map[fn.HeadExecutionId]int),
		running:   make(map[fn.ExecutionId]struct{}),
		callers:   make(map[fn.HeadExecutionId]chain),
		done:      make(chan struct{}),
	}
	c.ctx, c.cancel = context.WithCancel(c.logger.WithContext(context.Background()))
	c.cc = &coder.Context{Registry: c, Remote: c, Connector: c.connector}
	go c.input()
	return c
}

func (c *Channel) Side() Side { return c.side }

// Context is the coding context of values sent and received on this channel.
func (c *Channel) Context() *coder.Context { return c.cc }

// Done is closed once the channel has shut down.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Err returns why the channel shut down, nil while it is open.
func (c *Channel) Err() error {
	if !c.closed.Load() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Channel) Closed() bool { return c.closed.Load() }

// Shutdown fails every pending invocation with ChannelClosed, drops all
// registered callbacks and closes the stream. Only the first call has an effect.
func (c *Channel) Shutdown(cause error) error {
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return nil
	}
	c.err = cmp.Or(cause, error(errClosed))
	c.closed.Store(true)
	c.pending = nil
	c.heads = nil
	c.running = nil
	c.callers = nil
	c.mu.Unlock()

	close(c.done)
	c.cancel()
	c.registry.Invalidate()
	err := c.stream.Close()

	if cause != nil && !errors.Is(cause, io.EOF) && !errors.Is(cause, net.ErrClosed) && !errors.Is(cause, io.ErrClosedPipe) {
		c.logger.Warn().Err(cause).Msg("channel closed")
	} else {
		c.logger.Debug().Msg("channel closed")
	}
	return err
}

func (c *Channel) Close() error {
	return c.Shutdown(nil)
}

// closedError is what invocations fail with once the channel is down.
func (c *Channel) closedError() error {
	err := c.Err()
	if err == nil || err == error(errClosed) {
		return errClosed
	}
	if errors.Is(err, rpcerr.ChannelClosed) {
		return err
	}
	return rpcerr.Wrap(rpcerr.ChannelClosed, err)
}

func (c *Channel) nextID() fn.ExecutionId {
	n := c.seq.Add(1) * 2
	if c.side == Dialer {
		n--
	}
	return fn.ExecutionId(n)
}

// peerID reports whether id has the parity of ids minted by the other side.
func (c *Channel) peerID(id fn.ExecutionId) bool {
	odd := id&1 == 1
	return odd == (c.side == Acceptor)
}

// begin marks an inbound execution as running and returns the executions its
// head was started on behalf of.
func (c *Channel) begin(inv *wire.Invoke) (chain, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.heads == nil {
		return nil, false
	}
	nested := inv.Nested()
	if nested && c.heads[inv.Head] == 0 {
		return nil, false
	}
	c.heads[inv.Head]++
	c.running[inv.ID] = struct{}{}
	if nested {
		return c.callers[inv.Head], true
	}
	return nil, true
}

func (c *Channel) finish(inv *wire.Invoke) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.heads == nil {
		return
	}
	delete(c.running, inv.ID)
	c.releaseHeadLocked(inv.Head)
}

func (c *Channel) releaseHeadLocked(h fn.HeadExecutionId) {
	if n := c.heads[h] - 1; n > 0 {
		c.heads[h] = n
	} else {
		delete(c.heads, h)
		delete(c.callers, h)
	}
}

// Register makes h callable by the peer under a fresh channel-scoped name.
func (c *Channel) Register(h coder.Handler) (fn.AccessName, error) {
	return c.registry.Register(h)
}

// Invoke sends an invocation and waits for its reply. When ctx belongs to an
// execution this channel is still serving, the invocation is nested under its
// head; otherwise it starts a head of its own. Cancelling ctx abandons the
// wait; the peer is not told.
func (c *Channel) Invoke(ctx context.Context, target wire.Target, args []wire.Entity) (wire.Entity, error) {
	if c.closed.Load() {
		return wire.Entity{}, c.closedError()
	}
	id := c.nextID()
	head := fn.HeadExecutionId(id)
	callers := chainOf(ctx)

	wait := make(chan reply, 1)
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return wire.Entity{}, c.closedError()
	}
	if ex, ok := callers.on(c); ok {
		if _, running := c.running[ex.ID]; running {
			head = ex.Head
		}
	}
	if head == fn.HeadExecutionId(id) && len(callers) != 0 {
		c.callers[head] = callers
	}
	c.pending[id] = wait
	c.heads[head]++
	c.mu.Unlock()
	defer c.abandon(id, head)

	p := wire.NewPacket()
	err := p.EncodeInvoke(&wire.Invoke{ID: id, Head: head, Target: target, Args: args})
	if err == nil {
		if err = c.stream.Write(p); err != nil {
			p.Release()
			c.Shutdown(err)
			return wire.Entity{}, c.closedError()
		}
	}
	p.Release()
	if err != nil {
		return wire.Entity{}, rpcerr.Wrap(rpcerr.MalformedEntity, err)
	}

	select {
	case r := <-wait:
		return r.result()
	case <-c.done:
		select {
		case r := <-wait:
			return r.result()
		default:
			return wire.Entity{}, c.closedError()
		}
	case <-ctx.Done():
		return wire.Entity{}, ctx.Err()
	}
}

func (r reply) result() (wire.Entity, error) {
	if r.err != nil {
		return wire.Entity{}, r.err
	}
	return r.value, nil
}

func (c *Channel) abandon(id fn.ExecutionId, head fn.HeadExecutionId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return
	}
	delete(c.pending, id)
	c.releaseHeadLocked(head)
}

// Call codes args and the result with sig against this channel's context.
func (c *Channel) Call(ctx context.Context, target wire.Target, sig *coder.Signature, args []any) (any, error) {
	es, err := sig.EncodeArgs(args, c.cc)
	if err != nil {
		return nil, err
	}
	res, err := c.Invoke(ctx, target, es)
	if err != nil {
		return nil, err
	}
	return sig.DecodeResult(res, c.cc)
}

// ChannelFunction returns an invoker for the peer's callback name.
func (c *Channel) ChannelFunction(name fn.AccessName, sig *coder.Signature) fn.Invoker {
	target := wire.ChannelTarget(name)
	return fn.InvokerFunc(func(ctx context.Context, args []any) (any, error) {
		return c.Call(ctx, target, sig, args)
	})
}

// Function returns the peer's service function name as a function value.
func (c *Channel) Function(name fn.AccessName, sig *coder.Signature) *fn.Function {
	target := wire.ServiceTarget(name)
	return fn.ChannelRef(name, c, fn.InvokerFunc(func(ctx context.Context, args []any) (any, error) {
		return c.Call(ctx, target, sig, args)
	}))
}

type Stats struct {
	Pending    int
	Heads      int
	Registered int
	Served     int64
	Violations int64
}

func (c *Channel) Stats() Stats {
	c.mu.Lock()
	s := Stats{Pending: len(c.pending), Heads: len(c.heads)}
	c.mu.Unlock()
	s.Registered = c.registry.Len()
	s.Served = c.served.Load()
	s.Violations = c.violations.Load()
	return s
}
