package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/pme-sh/lrpc/channel"
	"github.com/pme-sh/lrpc/config"
	"github.com/pme-sh/lrpc/conn"
	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/xlog"

	"github.com/nats-io/nats.go"
	"github.com/samber/lo"
)

const (
	natsEmbedded     = "embedded"
	natsEmbeddedPort = 4222
	natsTTL          = 30 * time.Second
	warmTimeout      = 5 * time.Second
)

// node is the discovery and connection state built from the configuration.
type node struct {
	cfg       *config.Config
	static    *conn.Static
	etcd      *conn.Etcd
	nats      *conn.Nats
	natsd     *conn.NatsServer
	connector *conn.Connector
	closers   []func() error
}

// openNode sets up every resolver the configuration enables. When embed is
// set and the NATS URL is "embedded" the server is started in this process,
// otherwise the embedded server is dialed on its default port.
func openNode(ctx context.Context, cfg *config.Config, embed bool) (n *node, err error) {
	n = &node{cfg: cfg}
	defer func() {
		if err != nil {
			n.Close()
		}
	}()

	if n.static, err = conn.ParseStatic(conn.StrategyRandom, cfg.Services); err != nil {
		return
	}
	resolvers := conn.Chain{n.static}

	if len(cfg.Etcd.Endpoints) != 0 {
		if n.etcd, err = conn.NewEtcd(cfg.Etcd.Endpoints, cfg.Etcd.Prefix, conn.StrategyRandom); err != nil {
			return
		}
		n.closers = append(n.closers, n.etcd.Close)
		resolvers = append(resolvers, n.etcd)
	}

	switch url := cfg.Nats.URL; {
	case url == "":
	case url == natsEmbedded && embed:
		if n.natsd, err = conn.StartNatsServer(filepath.Join(config.Home(), "nats"), natsEmbeddedPort); err != nil {
			return
		}
		n.closers = append(n.closers, n.natsd.Close)
		var nc *nats.Conn
		if nc, err = n.natsd.Connect(nats.Name("lrpc")); err != nil {
			return
		}
		n.closers = append(n.closers, func() error { nc.Close(); return nil })
		if n.nats, err = conn.NewNats(ctx, nc, cfg.Nats.Bucket, natsTTL, conn.StrategyRandom); err != nil {
			return
		}
		n.closers = append(n.closers, n.nats.Close)
		resolvers = append(resolvers, n.nats)
	default:
		if url == natsEmbedded {
			url = fmt.Sprintf("nats://127.0.0.1:%d", natsEmbeddedPort)
		}
		if n.nats, err = conn.DialNats(ctx, url, cfg.Nats.Bucket, natsTTL, conn.StrategyRandom); err != nil {
			return
		}
		n.closers = append(n.closers, n.nats.Close)
		resolvers = append(resolvers, n.nats)
	}

	pool := conn.NewPool(conn.PoolOptions{
		Dialer:  &conn.Dialer{Transport: cfg.Transport},
		Expiry:  cfg.PoolExpiry.Duration(),
		Channel: channel.Options{Logger: xlog.Sub("channel")},
	})
	n.connector = conn.NewConnector(pool, resolvers)
	return n, nil
}

// Announce publishes ep as an instance of sid to every discovery backend and
// lists it in the static table. The returned function withdraws it.
func (n *node) Announce(ctx context.Context, sid fn.ServiceId, ep fn.Endpoint) (func() error, error) {
	n.static.Add(sid, ep)
	withdraw := []func() error{func() error { n.static.Remove(sid, ep); return nil }}
	undo := func() error {
		var errs []error
		for i := len(withdraw) - 1; i >= 0; i-- {
			errs = append(errs, withdraw[i]())
		}
		return errors.Join(errs...)
	}

	if n.etcd != nil {
		w, err := n.etcd.Announce(ctx, sid, ep, n.cfg.Etcd.TTL)
		if err != nil {
			undo()
			return nil, err
		}
		withdraw = append(withdraw, w)
	}
	if n.nats != nil {
		w, err := n.nats.Announce(ctx, sid, ep)
		if err != nil {
			undo()
			return nil, err
		}
		withdraw = append(withdraw, w)
	}
	return undo, nil
}

// warm dials a session to every endpoint of the static table ahead of the
// first call. Failures are logged and returned; calls dial again on demand.
func (n *node) warm(ctx context.Context) error {
	var eps []fn.Endpoint
	for _, sid := range n.static.Services() {
		eps = append(eps, n.static.Endpoints(sid)...)
	}
	if len(eps) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, warmTimeout)
	defer cancel()
	err := n.connector.Pool().Warm(ctx, lo.Uniq(eps)...)
	if err != nil {
		xlog.Warn().Err(err).Int("endpoints", len(eps)).Msg("could not warm every session")
	}
	return err
}

func (n *node) Close() error {
	var errs []error
	if n.connector != nil {
		errs = append(errs, n.connector.Close())
	}
	for i := len(n.closers) - 1; i >= 0; i-- {
		errs = append(errs, n.closers[i]())
	}
	return errors.Join(errs...)
}
