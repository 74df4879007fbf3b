package transport

import (
	"context"
	"errors"
	"net"

	"github.com/AtDexters-Lab/sim-protocol/internal/iface"
	"github.com/rs/zerolog"
)

// Listener serves protocol sessions over raw TCP connections, one at a time.
// A connection accepted while a session is open waits in the accept backlog.
type Listener struct {
	ln   net.Listener
	host iface.Host
	log  zerolog.Logger
}

func NewListener(ln net.Listener, host iface.Host, logger zerolog.Logger) *Listener {
	return &Listener{
		ln:   ln,
		host: host,
		log:  logger.With().Str("listener", ln.Addr().String()).Logger(),
	}
}

// Run accepts connections until ctx is done or the listener is closed.
func (l *Listener) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = l.ln.Close() })
	defer stop()

	l.log.Info().Msg("tcp listener started")
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				l.log.Info().Msg("tcp listener stopped")
				return nil
			}
			l.log.Error().Err(err).Msg("accept failed")
			return err
		}
		remote := conn.RemoteAddr().String()
		l.log.Info().Str("remote", remote).Msg("frontend connected")
		if err := l.host.Serve(ctx, conn, iface.Peer{Name: remote}); err != nil {
			l.log.Debug().Err(err).Str("remote", remote).Msg("session ended")
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Addr returns the listening address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}
