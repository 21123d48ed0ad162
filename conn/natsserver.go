package conn

import (
	"context"
	"time"

	"github.com/pme-sh/lrpc/xlog"

	natssrv "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// natsLogger routes the embedded server's log through xlog.
type natsLogger struct {
	*xlog.Logger
}

func (l natsLogger) Debugf(format string, v ...any) { l.Logger.Debug().Msgf(format, v...) }
func (l natsLogger) Tracef(format string, v ...any) { l.Logger.Trace().Msgf(format, v...) }
func (l natsLogger) Errorf(format string, v ...any) { l.Logger.Error().Msgf(format, v...) }
func (l natsLogger) Fatalf(format string, v ...any) { l.Logger.Fatal().Msgf(format, v...) }
func (l natsLogger) Warnf(format string, v ...any)  { l.Logger.Warn().Msgf(format, v...) }
func (l natsLogger) Noticef(format string, v ...any) {
	l.Logger.Info().Msgf(format, v...)
}

// NatsServer is a single-node NATS server with JetStream running in process,
// for deployments without a discovery cluster and for tests.
type NatsServer struct {
	srv *natssrv.Server
}

// StartNatsServer starts the server storing JetStream data under dir. A port
// of 0 accepts in-process connections only, -1 picks a random port.
func StartNatsServer(dir string, port int) (*NatsServer, error) {
	opts := &natssrv.Options{
		ServerName: "lrpc",
		Port:       port,
		DontListen: port == 0,
		JetStream:  true,
		StoreDir:   dir,
		NoSigs:     true,
	}
	srv, err := natssrv.NewServer(opts)
	if err != nil {
		return nil, errors.Wrap(err, "nats server")
	}
	srv.SetLoggerV2(natsLogger{xlog.Sub("natsd")}, false, false, false)
	srv.Start()
	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		return nil, errors.New("nats server did not become ready")
	}
	return &NatsServer{srv: srv}, nil
}

// Connect opens an in-process client connection.
func (s *NatsServer) Connect(opts ...nats.Option) (*nats.Conn, error) {
	opts = append(opts, nats.InProcessServer(s.srv))
	return nats.Connect("", opts...)
}

// ClientURL is empty when the server does not listen.
func (s *NatsServer) ClientURL() string {
	if s.srv.Addr() == nil {
		return ""
	}
	return s.srv.ClientURL()
}

func (s *NatsServer) Shutdown(ctx context.Context) error {
	s.srv.Shutdown()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-lo.Async0(s.srv.WaitForShutdown):
		return nil
	}
}
func (s *NatsServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}
