// Package conn manages connections to service endpoints: dialing over TCP or
// websockets, multiplexing channels over pooled yamux sessions, and resolving
// service ids to endpoints.
package conn

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/pme-sh/lrpc/fn"
	"github.com/pme-sh/lrpc/rpcerr"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/yamux"
	"github.com/pkg/errors"
)

const (
	TransportTCP       = "tcp"
	TransportWebsocket = "ws"
)

// Dialer opens yamux client sessions to endpoints.
type Dialer struct {
	Transport      string        // TransportTCP (default) or TransportWebsocket.
	Timeout        time.Duration // Applied when the context has no deadline, 0 for none.
	NetDialContext func(ctx context.Context, network, address string) (net.Conn, error)
}

func (d *Dialer) netDialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if d.NetDialContext != nil {
		return d.NetDialContext(ctx, network, address)
	}
	var dialer net.Dialer
	return dialer.DialContext(ctx, network, address)
}

func (d *Dialer) dialWebsocket(ctx context.Context, ep fn.Endpoint) (net.Conn, error) {
	wsd := websocket.Dialer{
		Subprotocols:    []string{Subprotocol},
		ReadBufferSize:  32 * 1024,
		WriteBufferSize: 32 * 1024,
		NetDialContext:  d.netDialContext,
	}
	u := url.URL{Scheme: "ws", Host: ep.String(), Path: WebsocketPath}
	wc, resp, err := wsd.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "websocket handshake failed with status %d", resp.StatusCode)
		}
		return nil, err
	}
	if wc.Subprotocol() != Subprotocol {
		wc.Close()
		return nil, errors.Errorf("unexpected subprotocol %q", wc.Subprotocol())
	}
	return &wsConn{conn: wc}, nil
}

// DialContext connects to ep with the configured transport.
func (d *Dialer) DialContext(ctx context.Context, ep fn.Endpoint) (c net.Conn, err error) {
	if ep.IsZero() {
		return nil, rpcerr.New(rpcerr.ConnectionUnavailable, "empty endpoint")
	}
	if _, ok := ctx.Deadline(); !ok && d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	switch d.Transport {
	case "", TransportTCP:
		c, err = d.netDialContext(ctx, "tcp", ep.String())
	case TransportWebsocket:
		c, err = d.dialWebsocket(ctx, ep)
	default:
		return nil, rpcerr.Errorf(rpcerr.ConnectionUnavailable, "unsupported transport %q", d.Transport)
	}
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.ConnectionUnavailable, errors.Wrapf(err, "dial %s", ep))
	}
	return c, nil
}

// Session dials ep and starts a yamux client session over the connection.
func (d *Dialer) Session(ctx context.Context, ep fn.Endpoint) (*yamux.Session, error) {
	c, err := d.DialContext(ctx, ep)
	if err != nil {
		return nil, err
	}
	session, err := clientSession(c)
	if err != nil {
		c.Close()
		return nil, rpcerr.Wrap(rpcerr.ConnectionUnavailable, errors.Wrap(err, "yamux"))
	}
	return session, nil
}

// Handler serves websocket sessions, passing every accepted connection to serve.
func Handler(serve func(c net.Conn)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := Upgrade(w, r)
		if err != nil {
			return
		}
		serve(c)
	})
}
