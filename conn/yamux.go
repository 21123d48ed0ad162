package conn

import (
	"net"
	"sync"
	"time"

	"github.com/pme-sh/lrpc/xlog"

	"github.com/hashicorp/yamux"
)

var yamuxConfig = &yamux.Config{
	AcceptBacklog:          256,
	EnableKeepAlive:        true,
	KeepAliveInterval:      30 * time.Second,
	ConnectionWriteTimeout: 10 * time.Second,
	MaxStreamWindowSize:    512 * 1024,
	StreamCloseTimeout:     5 * time.Minute,
	StreamOpenTimeout:      75 * time.Second,
	LogOutput:              xlog.ToLineWriter(xlog.Sub("yamux"), xlog.LevelWarn),
}

func clientSession(c net.Conn) (*yamux.Session, error) {
	return yamux.Client(c, yamuxConfig)
}

// closeGraceful refuses new streams and closes the session once the streams in
// flight are done or the close timeout passes.
func closeGraceful(session *yamux.Session) {
	session.GoAway()
	go func() {
		select {
		case <-time.After(yamuxConfig.StreamCloseTimeout):
		case <-session.CloseChan():
		}
		session.Close()
	}()
}

// ServeSession runs a yamux server over c and calls serve for every stream the
// peer opens. It returns when the session ends and every serve call returned.
func ServeSession(c net.Conn, serve func(stream net.Conn)) error {
	session, err := yamux.Server(c, yamuxConfig)
	if err != nil {
		c.Close()
		return err
	}
	defer closeGraceful(session)

	wg := &sync.WaitGroup{}
	defer wg.Wait()
	for {
		stream, err := session.Accept()
		if err != nil {
			if session.IsClosed() {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			serve(stream)
		}()
	}
}
