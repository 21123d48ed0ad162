package conn

import (
	"bytes"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// WebsocketPath is where services accept websocket sessions.
	WebsocketPath = "/lrpc"
	// Subprotocol is the websocket subprotocol negotiated by both sides.
	Subprotocol = "lrpc+yamux"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	Subprotocols:    []string{Subprotocol},
}

// Upgrade accepts a websocket session on an HTTP request and returns it as a
// byte stream.
func Upgrade(w http.ResponseWriter, r *http.Request) (net.Conn, error) {
	wc, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	if wc.Subprotocol() != Subprotocol {
		wc.SetReadDeadline(time.Now().Add(5 * time.Second))
		wc.CloseHandler()(websocket.CloseProtocolError, "unsupported subprotocol")
		wc.Close()
		return nil, websocket.ErrBadHandshake
	}
	return &wsConn{conn: wc}, nil
}

// wsConn adapts a websocket to net.Conn; every write is one binary message.
type wsConn struct {
	conn   *websocket.Conn
	closed atomic.Bool
	buf    bytes.Buffer
	wmu    sync.Mutex
}

func (w *wsConn) LocalAddr() net.Addr  { return w.conn.LocalAddr() }
func (w *wsConn) RemoteAddr() net.Addr { return w.conn.RemoteAddr() }
func (w *wsConn) SetDeadline(t time.Time) error {
	return w.conn.NetConn().SetDeadline(t)
}
func (w *wsConn) SetReadDeadline(t time.Time) error {
	return w.conn.SetReadDeadline(t)
}
func (w *wsConn) SetWriteDeadline(t time.Time) error {
	return w.conn.SetWriteDeadline(t)
}

func (w *wsConn) Write(in []byte) (n int, err error) {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	if err = w.conn.WriteMessage(websocket.BinaryMessage, in); err != nil {
		return 0, err
	}
	return len(in), nil
}
func (w *wsConn) Read(out []byte) (n int, err error) {
	n, _ = w.buf.Read(out)
	if n > 0 || len(out) == 0 {
		return n, nil
	}
	for {
		ty, in, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = net.ErrClosed
			}
			return 0, err
		}
		if (ty != websocket.BinaryMessage && ty != websocket.TextMessage) || len(in) == 0 {
			continue
		}
		n = copy(out, in)
		if len(in) > n {
			w.buf.Write(in[n:])
		}
		return n, nil
	}
}
func (w *wsConn) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	w.wmu.Lock()
	w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	w.wmu.Unlock()
	return w.conn.Close()
}
