// Package hub exposes the bridge to frontends over HTTP: authenticated
// WebSocket sessions, health and metrics.
package hub

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AtDexters-Lab/sim-protocol/internal/auth"
	"github.com/AtDexters-Lab/sim-protocol/internal/config"
	"github.com/AtDexters-Lab/sim-protocol/internal/iface"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const authTimeout = 10 * time.Second

// Hub accepts frontend connections and hands each one to the session host.
// At most one session is open at a time.
type Hub struct {
	config    *config.Config
	server    *http.Server
	tlsConfig *tls.Config
	upgrader  websocket.Upgrader
	validator auth.Validator
	host      iface.Host
	gatherer  prometheus.Gatherer
	log       zerolog.Logger
	started   time.Time

	active   atomic.Bool
	sessions sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a Hub. tlsConfig may be nil when cfg.Insecure is set; gatherer
// may be nil to disable /metrics.
func New(cfg *config.Config, tlsConfig *tls.Config, validator auth.Validator, host iface.Host, gatherer prometheus.Gatherer, logger zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		config:    cfg,
		tlsConfig: tlsConfig,
		validator: validator,
		host:      host,
		gatherer:  gatherer,
		log:       logger.With().Str("component", "hub").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		started: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
	}
	h.server = &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           h.Routes(),
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: authTimeout,
	}
	return h
}

// Run serves until Stop is called. It returns nil after a graceful stop.
func (h *Hub) Run() error {
	ln, err := net.Listen("tcp", h.config.ListenAddress)
	if err != nil {
		return err
	}
	return h.Serve(ln)
}

// Serve accepts connections on ln until Stop is called.
func (h *Hub) Serve(ln net.Listener) error {
	var err error
	if h.tlsConfig == nil {
		h.log.Warn().Str("addr", ln.Addr().String()).Msg("hub listening without TLS")
		err = h.server.Serve(ln)
	} else {
		h.log.Info().Str("addr", ln.Addr().String()).Msg("hub listening")
		err = h.server.ServeTLS(ln, "", "")
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the HTTP server, then ends the open session and
// waits for it to finish closing.
func (h *Hub) Stop() {
	h.log.Info().Msg("shutting down hub")
	ctx, cancel := context.WithTimeout(context.Background(), h.config.ShutdownTimeout())
	defer cancel()

	if err := h.server.Shutdown(ctx); err != nil {
		h.log.Warn().Err(err).Msg("hub graceful shutdown failed")
	}

	// Hijacked WebSocket connections outlive Shutdown.
	h.cancel()
	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		h.log.Info().Msg("hub shut down gracefully")
	case <-ctx.Done():
		h.log.Warn().Msg("session did not close before the shutdown deadline")
	}
}

// Active reports whether a frontend session is open.
func (h *Hub) Active() bool {
	return h.active.Load()
}
