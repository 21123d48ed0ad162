package channel

import (
	"context"
	"fmt"

	"github.com/pme-sh/lrpc/coder"
	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/rpcerr"
	"github.com/pme-sh/lrpc/wire"
	"github.com/pme-sh/lrpc/xlog"
)

// Input loop.
func (c *Channel) input() {
	var err error
	defer func() {
		c.Shutdown(err)
	}()

	for {
		p := wire.NewPacket()
		if err = c.stream.Read(p); err != nil {
			p.Release()
			if rpcerr.KindOf(err) == rpcerr.ProtocolViolation {
				c.violations.Add(1)
			}
			return
		}
		switch p.Type {
		case wire.TypeInvoke:
			inv, derr := p.DecodeInvoke()
			p.Release()
			c.accept(inv, derr)
		case wire.TypeResult:
			res, derr := p.DecodeResult()
			p.Release()
			if derr != nil {
				c.resolve(res.ID, reply{err: rpcerr.From(derr)})
			} else {
				c.resolve(res.ID, reply{value: res.Value})
			}
		case wire.TypeError:
			e := p.DecodeError()
			p.Release()
			c.resolve(e.ID, reply{err: e.Err})
		}
	}
}

func (c *Channel) violation(id fn.ExecutionId, err error) {
	c.violations.Add(1)
	c.logger.Warn().Err(err).Stringer(xlog.IDFieldName, id).Msg("protocol violation")
}

func (c *Channel) resolve(id fn.ExecutionId, r reply) {
	c.mu.Lock()
	wait, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		c.violation(id, rpcerr.New(rpcerr.ProtocolViolation, "reply to an unknown execution"))
		return
	}
	wait <- r
}

// accept runs on the read loop; the head is claimed there so that a nested call
// arriving right after this one already sees it active.
func (c *Channel) accept(inv *wire.Invoke, err error) {
	if err == nil && !c.peerID(inv.ID) {
		err = rpcerr.Errorf(rpcerr.ProtocolViolation, "execution id %d has the wrong parity", inv.ID)
	}
	var callers chain
	if err == nil {
		var ok bool
		if callers, ok = c.begin(inv); !ok {
			err = rpcerr.Errorf(rpcerr.ProtocolViolation, "head %d is not active", inv.Head)
		}
	}
	if err != nil {
		if rpcerr.KindOf(err) == rpcerr.ProtocolViolation {
			c.violation(inv.ID, err)
		}
		if inv.ID != 0 {
			go c.reply(inv.ID, wire.Entity{}, err)
		}
		return
	}
	go c.serve(inv, callers)
}

func (c *Channel) lookup(target wire.Target) (coder.Handler, *coder.Context, error) {
	if target.Channel {
		h, err := c.registry.Lookup(target.Name)
		return h, c.cc, err
	}
	if c.exposure == nil {
		return nil, nil, rpcerr.New(rpcerr.UnknownFunction, string(target.Name))
	}
	h, err := c.exposure.Lookup(target.Name)
	cc := c.cc
	if pub, ok := c.exposure.(coder.Publisher); ok {
		cc = cc.WithPublisher(pub)
	}
	return h, cc, err
}

// serve runs inv under the executions that started its head, so a handler
// relaying onto another channel nests there too.
func (c *Channel) serve(inv *wire.Invoke, callers chain) {
	ctx := withChain(c.ctx, callers, Execution{Channel: c, ID: inv.ID, Head: inv.Head})

	var (
		res wire.Entity
		err error
	)
	if c.limiter != nil {
		if werr := c.limiter.Wait(ctx); werr != nil {
			err = c.closedError()
		}
	}
	if err == nil {
		res, err = c.handle(ctx, inv)
		if err != nil {
			c.logger.Debug().Err(err).
				Stringer(xlog.IDFieldName, inv.ID).
				Stringer(xlog.HeadFieldName, inv.Head).
				Stringer(xlog.TargetFieldName, inv.Target).
				Msg("invocation failed")
		}
		c.served.Add(1)
	}

	// The execution is over once its reply is on the wire; release first so the
	// peer never observes the head still held.
	c.finish(inv)
	c.reply(inv.ID, res, err)
}

func (c *Channel) handle(ctx context.Context, inv *wire.Invoke) (res wire.Entity, err error) {
	defer func() {
		if r := recover(); r != nil {
			xlog.ErrStack(r).Stringer(xlog.IDFieldName, inv.ID).Stringer(xlog.TargetFieldName, inv.Target).Msg("handler panicked")
			err = rpcerr.New(rpcerr.ExecutionFailed, fmt.Sprint(r))
		}
	}()
	h, cc, err := c.lookup(inv.Target)
	if err != nil {
		return
	}
	return h.Handle(ctx, inv.Args, cc)
}

func (c *Channel) reply(id fn.ExecutionId, res wire.Entity, err error) {
	p := wire.NewPacket()
	defer p.Release()
	if err == nil {
		err = p.EncodeResult(id, res)
	}
	if err != nil {
		p.EncodeError(id, rpcerr.From(err))
	}
	if werr := c.stream.Write(p); werr != nil {
		c.Shutdown(werr)
	}
}
