package conn

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/rpcerr"
	"github.com/pme-sh/lrpc/xlog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/pkg/errors"
)

// Nats discovers services through a JetStream key-value bucket. Keys are
// "{service}.{base64url(host:port)}" and values are Instance records. The
// bucket is watched, so Resolve never leaves the process.
type Nats struct {
	conn   *nats.Conn
	owned  bool
	kv     jetstream.KeyValue
	table  *Static
	ttl    time.Duration
	ready  chan struct{}
	cancel context.CancelFunc
	once   sync.Once
	logger *xlog.Logger
}

// NewNats opens (or creates) bucket on conn and starts watching it. Entries
// that are not refreshed within ttl expire; 0 keeps them until withdrawn.
func NewNats(ctx context.Context, conn *nats.Conn, bucket string, ttl time.Duration, strategy Strategy) (*Nats, error) {
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, errors.Wrap(err, "jetstream")
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:       bucket,
		Description:  "lrpc service discovery",
		MaxValueSize: -1,
		TTL:          ttl,
		Storage:      jetstream.MemoryStorage,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "bucket %s", bucket)
	}
	watcher, err := kv.WatchAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "watch")
	}

	wctx, cancel := context.WithCancel(context.Background())
	n := &Nats{
		conn:   conn,
		kv:     kv,
		table:  NewStatic(strategy),
		ttl:    ttl,
		ready:  make(chan struct{}),
		cancel: cancel,
		logger: xlog.Sub("nats"),
	}
	go n.watch(wctx, watcher)
	return n, nil
}

// DialNats connects to url and calls NewNats; the connection is closed with
// the resolver.
func DialNats(ctx context.Context, url, bucket string, ttl time.Duration, strategy Strategy) (*Nats, error) {
	conn, err := nats.Connect(url, nats.Name("lrpc"))
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.ConnectionUnavailable, errors.Wrapf(err, "nats %s", url))
	}
	n, err := NewNats(ctx, conn, bucket, ttl, strategy)
	if err != nil {
		conn.Close()
		return nil, err
	}
	n.owned = true
	return n, nil
}

func natsKey(sid fn.ServiceId, ep fn.Endpoint) string {
	return sid.String() + "." + base64.RawURLEncoding.EncodeToString([]byte(ep.String()))
}
func parseNatsKey(key string) (sid fn.ServiceId, ep fn.Endpoint, err error) {
	i := strings.LastIndexByte(key, '.')
	if i <= 0 {
		return "", ep, errors.Errorf("malformed key %q", key)
	}
	addr, err := base64.RawURLEncoding.DecodeString(key[i+1:])
	if err != nil {
		return
	}
	ep, err = fn.ParseEndpoint(string(addr))
	return fn.ServiceId(key[:i]), ep, err
}

func (n *Nats) watch(ctx context.Context, w jetstream.KeyWatcher) {
	defer w.Stop()
	defer n.once.Do(func() { close(n.ready) })
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-w.Updates():
			if !ok {
				return
			}
			if entry == nil {
				n.once.Do(func() { close(n.ready) })
				continue
			}
			sid, ep, err := parseNatsKey(entry.Key())
			if err != nil {
				n.logger.Warn().Err(err).Msg("ignoring malformed entry")
				continue
			}
			switch entry.Operation() {
			case jetstream.KeyValuePut:
				n.table.Add(sid, ep)
			default:
				n.table.Remove(sid, ep)
			}
		}
	}
}

func (n *Nats) Resolve(ctx context.Context, sid fn.ServiceId) (fn.Endpoint, error) {
	select {
	case <-n.ready:
	case <-ctx.Done():
		return fn.Endpoint{}, rpcerr.Wrap(rpcerr.ConnectionUnavailable, ctx.Err())
	}
	return n.table.Resolve(ctx, sid)
}

// Announce puts ep as an instance of sid and refreshes it at half the bucket
// TTL. The returned function withdraws it.
func (n *Nats) Announce(ctx context.Context, sid fn.ServiceId, ep fn.Endpoint) (func() error, error) {
	key := natsKey(sid, ep)
	val, err := json.Marshal(Instance{Service: sid, Endpoint: ep, Started: time.Now()})
	if err != nil {
		return nil, err
	}
	if _, err := n.kv.Put(ctx, key, val); err != nil {
		return nil, errors.Wrap(err, "nats put")
	}

	actx, cancel := context.WithCancel(context.Background())
	if n.ttl > 0 {
		go func() {
			ticker := time.NewTicker(n.ttl / 2)
			defer ticker.Stop()
			for {
				select {
				case <-actx.Done():
					return
				case <-ticker.C:
					if _, err := n.kv.Put(actx, key, val); err != nil && actx.Err() == nil {
						n.logger.Warn().Err(err).Str("service", sid.String()).Msg("refresh failed")
					}
				}
			}
		}()
	}
	return func() error {
		cancel()
		dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dcancel()
		return n.kv.Delete(dctx, key)
	}, nil
}

func (n *Nats) Close() error {
	n.cancel()
	if n.owned {
		n.conn.Close()
	}
	return nil
}
