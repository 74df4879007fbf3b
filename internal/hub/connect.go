package hub

import (
	"context"
	"net/http"

	"github.com/AtDexters-Lab/sim-protocol/internal/auth"
	"github.com/AtDexters-Lab/sim-protocol/internal/iface"
	"github.com/AtDexters-Lab/sim-protocol/internal/transport"
)

// handleConnect authenticates a frontend and runs its session over the
// upgraded WebSocket until the session closes.
func (h *Hub) handleConnect(w http.ResponseWriter, r *http.Request) {
	remote := r.RemoteAddr

	token, err := auth.TokenFromRequest(r)
	if err != nil {
		h.log.Warn().Str("remote", remote).Err(err).Msg("frontend presented no token")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), authTimeout)
	claims, err := h.validator.Validate(ctx, token)
	cancel()
	if err != nil {
		h.log.Warn().Str("remote", remote).Err(err).Msg("frontend authentication failed")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if !h.active.CompareAndSwap(false, true) {
		h.log.Warn().Str("remote", remote).Str("frontend", claims.Name()).Msg("rejecting frontend: session already active")
		http.Error(w, "Session already active", http.StatusConflict)
		return
	}
	h.sessions.Add(1)
	defer func() {
		h.active.Store(false)
		h.sessions.Done()
	}()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Str("remote", remote).Err(err).Msg("failed to upgrade frontend connection")
		return
	}

	name := claims.Name()
	if name == "" {
		name = remote
	}
	h.log.Info().Str("remote", remote).Str("frontend", name).Msg("frontend authenticated")

	stream := transport.NewWSStream(conn, int64(h.config.MaxFrameBytes), h.log)
	err = h.host.Serve(h.ctx, stream, iface.Peer{
		Name:            name,
		AllowExtensions: claims.AllowedExtensions,
	})
	h.log.Info().Str("frontend", name).AnErr("cause", err).Msg("frontend session ended")
}
