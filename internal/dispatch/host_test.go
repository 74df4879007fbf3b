package dispatch

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AtDexters-Lab/sim-protocol/internal/iface"
	"github.com/AtDexters-Lab/sim-protocol/internal/model"
	"github.com/AtDexters-Lab/sim-protocol/internal/protocol"
	"github.com/AtDexters-Lab/sim-protocol/internal/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closingModel struct {
	*fakeModel
	closed atomic.Bool
}

func (m *closingModel) Close() { m.closed.Store(true) }

func TestHostServesSessionAndClosesModel(t *testing.T) {
	model := &closingModel{fakeModel: newFakeModel()}
	host := NewHost(func(zerolog.Logger) iface.Model { return model }, Options{Extensions: []string{"a", "b"}}, true)

	stream := newFakeStream()
	done := make(chan error, 1)
	go func() {
		done <- host.Serve(context.Background(), stream, iface.Peer{
			Name:            "field-view",
			AllowExtensions: func([]string) []string { return []string{"b"} },
		})
	}()

	var hs map[string]any
	require.NoError(t, json.Unmarshal(stream.nextFrame(t), &hs))
	assert.Equal(t, "handshake", hs["type"])
	assert.Equal(t, []any{"b"}, hs["extensions"])

	require.NoError(t, stream.send(`{"type":"start-program"}`))
	assert.Equal(t, protocol.StartProgramCommand{}, model.nextApplied(t))
	require.Eventually(t, host.Active, waitTimeout, 5*time.Millisecond)

	stream.hangUp()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, session.ErrStreamClosed)
	case <-time.After(waitTimeout):
		t.Fatal("Serve did not return")
	}
	assert.True(t, model.closed.Load())
	assert.False(t, host.Active())
}

func TestHostRejectsConcurrentSession(t *testing.T) {
	host := NewHost(func(zerolog.Logger) iface.Model { return newFakeModel() }, Options{}, false)

	first := newFakeStream()
	done := make(chan error, 1)
	go func() { done <- host.Serve(context.Background(), first, iface.Peer{}) }()
	require.Eventually(t, host.Active, waitTimeout, 5*time.Millisecond)

	second := newFakeStream()
	err := host.Serve(context.Background(), second, iface.Peer{})
	assert.ErrorIs(t, err, ErrBusy)
	assert.True(t, second.isClosed())

	first.hangUp()
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("first session did not end")
	}
}

func TestHostSessionAnnouncesReadyAfterHandshake(t *testing.T) {
	host := NewHost(func(l zerolog.Logger) iface.Model { return model.New(l) }, Options{}, true)
	stream := newFakeStream()
	done := make(chan error, 1)
	go func() { done <- host.Serve(context.Background(), stream, iface.Peer{}) }()

	require.NoError(t, stream.send(`{"type":"handshake","version":1,"extensions":[]}`))

	var first, second map[string]any
	require.NoError(t, json.Unmarshal(stream.nextFrame(t), &first))
	require.NoError(t, json.Unmarshal(stream.nextFrame(t), &second))
	assert.Equal(t, "handshake", first["type"])
	assert.Equal(t, "ready", second["type"])

	stream.hangUp()
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("Serve did not return")
	}
}
