package conn

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/rpcerr"
	"github.com/pme-sh/lrpc/xlog"

	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Instance is what a running service announces about itself.
type Instance struct {
	Service  fn.ServiceId `json:"service"`
	Endpoint fn.Endpoint  `json:"endpoint"`
	Started  time.Time    `json:"started"`
}

// Etcd discovers services under a key prefix:
//
//	{prefix}{service}/{host:port} = Instance
//
// Announcements are bound to a lease, so instances that stop renewing it
// disappear once the TTL runs out.
type Etcd struct {
	picker
	client *clientv3.Client
	prefix string
}

func NewEtcd(endpoints []string, prefix string, strategy Strategy) (*Etcd, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "/lrpc/services/"
	} else if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	e := &Etcd{client: c, prefix: prefix}
	e.strategy = strategy
	return e, nil
}

func (e *Etcd) key(sid fn.ServiceId) string { return e.prefix + sid.String() + "/" }

// Discover lists the instances of sid currently registered.
func (e *Etcd) Discover(ctx context.Context, sid fn.ServiceId) ([]Instance, error) {
	resp, err := e.client.Get(ctx, e.key(sid), clientv3.WithPrefix())
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.ConnectionUnavailable, errors.Wrap(err, "etcd"))
	}
	instances := make([]Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var inst Instance
		if err := json.Unmarshal(kv.Value, &inst); err != nil {
			xlog.Warn().Err(err).Bytes("key", kv.Key).Msg("skipping malformed announcement")
			continue
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

func (e *Etcd) Resolve(ctx context.Context, sid fn.ServiceId) (fn.Endpoint, error) {
	instances, err := e.Discover(ctx, sid)
	if err != nil {
		return fn.Endpoint{}, err
	}
	eps := make([]fn.Endpoint, len(instances))
	for i, inst := range instances {
		eps[i] = inst.Endpoint
	}
	return e.pick(sid, eps)
}

// Watch sends the instance list of sid every time it changes, until ctx ends.
func (e *Etcd) Watch(ctx context.Context, sid fn.ServiceId) <-chan []Instance {
	ch := make(chan []Instance, 1)
	go func() {
		defer close(ch)
		for range e.client.Watch(ctx, e.key(sid), clientv3.WithPrefix()) {
			instances, err := e.Discover(ctx, sid)
			if err != nil {
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// Announce registers ep as an instance of sid under a lease of ttl seconds and
// keeps the lease alive. The returned function withdraws the announcement.
func (e *Etcd) Announce(ctx context.Context, sid fn.ServiceId, ep fn.Endpoint, ttl int64) (func() error, error) {
	lease, err := e.client.Grant(ctx, ttl)
	if err != nil {
		return nil, errors.Wrap(err, "etcd grant")
	}
	val, err := json.Marshal(Instance{Service: sid, Endpoint: ep, Started: time.Now()})
	if err != nil {
		return nil, err
	}
	if _, err = e.client.Put(ctx, e.key(sid)+ep.String(), string(val), clientv3.WithLease(lease.ID)); err != nil {
		return nil, errors.Wrap(err, "etcd put")
	}

	kctx, cancel := context.WithCancel(context.Background())
	alive, err := e.client.KeepAlive(kctx, lease.ID)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "etcd keepalive")
	}
	go func() {
		for range alive {
		}
	}()
	return func() error {
		cancel()
		rctx, rcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer rcancel()
		_, err := e.client.Revoke(rctx, lease.ID)
		return err
	}, nil
}

func (e *Etcd) Close() error { return e.client.Close() }
