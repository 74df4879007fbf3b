package dispatch

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/AtDexters-Lab/sim-protocol/internal/iface"
	"github.com/AtDexters-Lab/sim-protocol/internal/protocol"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// fakeStream feeds Commands through an in-memory pipe and captures every
// Write as one frame. When gated, Write blocks until the gate opens or the
// stream closes.
type fakeStream struct {
	r  *io.PipeReader
	in *io.PipeWriter

	gate   chan struct{}
	closed chan struct{}
	once   sync.Once
	frames chan []byte
}

func newFakeStream() *fakeStream {
	r, w := io.Pipe()
	return &fakeStream{
		r:      r,
		in:     w,
		closed: make(chan struct{}),
		frames: make(chan []byte, 1024),
	}
}

func newGatedStream() *fakeStream {
	s := newFakeStream()
	s.gate = make(chan struct{})
	return s
}

func (s *fakeStream) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

func (s *fakeStream) Write(p []byte) (int, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-s.closed:
			return 0, io.ErrClosedPipe
		}
	}
	select {
	case <-s.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	frame := append([]byte(nil), p...)
	s.frames <- frame
	return len(p), nil
}

func (s *fakeStream) Close() error {
	s.once.Do(func() {
		close(s.closed)
		_ = s.r.Close()
	})
	return nil
}

// send writes one line to the backend. It fails once the backend has
// stopped reading.
func (s *fakeStream) send(line string) error {
	_, err := s.in.Write([]byte(line + "\n"))
	return err
}

// hangUp ends the inbound direction cleanly.
func (s *fakeStream) hangUp() {
	_ = s.in.Close()
}

func (s *fakeStream) nextFrame(t *testing.T) []byte {
	t.Helper()
	select {
	case f := <-s.frames:
		return f
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for an outbound frame")
		return nil
	}
}

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// fakeModel records applied Commands and serves Events from a channel.
type fakeModel struct {
	mu       sync.Mutex
	applied  []protocol.Command
	applyErr func(protocol.Command) error

	appliedCh chan protocol.Command
	events    chan protocol.Event
}

func newFakeModel() *fakeModel {
	return &fakeModel{
		appliedCh: make(chan protocol.Command, 256),
		events:    make(chan protocol.Event, 1024),
	}
}

func (m *fakeModel) Apply(cmd protocol.Command) error {
	if m.applyErr != nil {
		if err := m.applyErr(cmd); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.applied = append(m.applied, cmd)
	m.mu.Unlock()
	m.appliedCh <- cmd
	return nil
}

func (m *fakeModel) NextEvent(ctx context.Context) (protocol.Event, error) {
	select {
	case ev, ok := <-m.events:
		if !ok {
			return nil, iface.ErrModelClosed
		}
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *fakeModel) Applied() []protocol.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.Command(nil), m.applied...)
}

func (m *fakeModel) nextApplied(t *testing.T) protocol.Command {
	t.Helper()
	select {
	case cmd := <-m.appliedCh:
		return cmd
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for an applied command")
		return nil
	}
}

type runResult struct {
	err      error
	closures []Closure
}

// start runs d in the background. The returned func waits for Run to return.
func start(t *testing.T, d *Dispatcher, ctx context.Context) func() runResult {
	t.Helper()
	var (
		mu       sync.Mutex
		closures []Closure
	)
	d.onClose = func(c Closure) {
		mu.Lock()
		closures = append(closures, c)
		mu.Unlock()
	}
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	return func() runResult {
		t.Helper()
		select {
		case err := <-done:
			mu.Lock()
			defer mu.Unlock()
			return runResult{err: err, closures: append([]Closure(nil), closures...)}
		case <-time.After(waitTimeout):
			require.FailNow(t, "dispatcher did not stop")
			return runResult{}
		}
	}
}
