package dispatch

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/AtDexters-Lab/sim-protocol/internal/iface"
	"github.com/rs/zerolog"
)

// ErrBusy is returned by Host.Serve while another session is open.
var ErrBusy = errors.New("dispatch: a session is already active")

// ModelFactory builds the model backing one session.
type ModelFactory func(logger zerolog.Logger) iface.Model

var _ iface.Host = (*Host)(nil)

// Host serves sessions one at a time, each against a fresh model.
type Host struct {
	opts      Options
	newModel  ModelFactory
	handshake bool
	active    atomic.Bool
}

// NewHost returns a Host. When handshake is set every session opens with a
// backend handshake Event announcing opts.Extensions.
func NewHost(newModel ModelFactory, opts Options, handshake bool) *Host {
	return &Host{opts: opts, newModel: newModel, handshake: handshake}
}

// Active reports whether a session is currently open.
func (h *Host) Active() bool {
	return h.active.Load()
}

// Serve runs one session over stream until it closes and returns the cause.
// The stream is closed on return.
func (h *Host) Serve(ctx context.Context, stream iface.Stream, peer iface.Peer) error {
	if !h.active.CompareAndSwap(false, true) {
		_ = stream.Close()
		return ErrBusy
	}
	defer h.active.Store(false)

	opts := h.opts
	logger := opts.Logger
	if peer.Name != "" {
		logger = logger.With().Str("frontend", peer.Name).Logger()
	}
	opts.Logger = logger
	if peer.AllowExtensions != nil {
		opts.Extensions = peer.AllowExtensions(opts.Extensions)
	}

	model := h.newModel(logger)
	if c, ok := model.(interface{ Close() }); ok {
		defer c.Close()
	}

	d := New(stream, model, opts)
	if h.handshake {
		if err := d.SendHandshake(); err != nil {
			logger.Warn().Err(err).Msg("handshake not queued")
		}
	}
	return d.Run(ctx)
}
