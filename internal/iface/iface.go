package iface

import (
	"context"
	"errors"
	"io"

	"github.com/AtDexters-Lab/sim-protocol/internal/protocol"
)

// ErrModelClosed is returned by Model.NextEvent once the model will produce
// no further Events.
var ErrModelClosed = errors.New("iface: model closed")

// Model is the simulation-model collaborator a session drives.
type Model interface {
	// Apply hands one validated Command to the model. It must not block
	// indefinitely. A *protocol.ValidationError drops the Command and keeps
	// the session open; any other error closes it.
	Apply(cmd protocol.Command) error
	// NextEvent blocks until the model produces an Event or ctx is done.
	NextEvent(ctx context.Context) (protocol.Event, error)
}

// Stream is the transport collaborator: an ordered, reliable byte channel.
// Close must unblock a pending Read.
type Stream interface {
	io.ReadWriteCloser
}

// Peer describes the frontend on the far end of a Stream.
type Peer struct {
	// Name identifies the frontend in logs.
	Name string
	// AllowExtensions narrows the extensions offered in the handshake.
	// Nil offers all of them.
	AllowExtensions func(offered []string) []string
}

// Host runs one protocol session over an established Stream and returns the
// closing cause.
type Host interface {
	Serve(ctx context.Context, stream Stream, peer Peer) error
}
