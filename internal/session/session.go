// Package session tracks the lifecycle and competition state of one
// protocol connection.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AtDexters-Lab/sim-protocol/internal/protocol"
	"github.com/google/uuid"
)

var (
	// ErrClosed is returned by operations attempted after the session closed.
	ErrClosed = errors.New("session: closed")
	// ErrStreamClosed is the cause recorded when the peer ends the stream cleanly.
	ErrStreamClosed = errors.New("session: stream closed by peer")
	// ErrTerminated is the cause recorded for a terminate Command.
	ErrTerminated = errors.New("session: terminated by frontend")
	// ErrLocalClose is the cause recorded when the hosting process closes the session.
	ErrLocalClose = errors.New("session: closed locally")
)

// State is the connection lifecycle state.
type State int

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ProgramState is the last known lifecycle of the user program.
type ProgramState string

const (
	ProgramIdle     ProgramState = "idle"
	ProgramRunning  ProgramState = "running"
	ProgramStopped  ProgramState = "stopped"
	ProgramExited   ProgramState = "exited"
	ProgramPanicked ProgramState = "panicked"
)

// InitialPhase matches a brain with no field controller attached: enabled
// in driver control.
const InitialPhase = protocol.PhaseOperatorControl

// Snapshot is a point-in-time copy of the session aggregate.
type Snapshot struct {
	ID            string
	State         State
	Phase         protocol.Phase
	IsCompetition bool
	Program       ProgramState
	ExitCode      *int
	// Seq is the sequence marker of the last Command the session accepted,
	// 0 if none. It is assigned before the model applies the Command, so a
	// Command the model later rejects still advances it.
	Seq         uint64
	OpenedAt    time.Time
	ActivatedAt time.Time
	ClosedAt    time.Time
	Cause       error
}

// Session is the single mutable aggregate of a connection. All methods are
// safe for concurrent use.
type Session struct {
	id string

	mu          sync.RWMutex
	state       State
	phase       protocol.Phase
	competition bool
	program     ProgramState
	exitCode    *int
	seq         uint64
	openedAt    time.Time
	activatedAt time.Time
	closedAt    time.Time
	cause       error

	done chan struct{}
	now  func() time.Time
}

func New() *Session {
	s := &Session{
		id:      uuid.New().String(),
		state:   StateConnecting,
		phase:   InitialPhase,
		program: ProgramIdle,
		done:    make(chan struct{}),
		now:     time.Now,
	}
	s.openedAt = s.now()
	return s
}

func (s *Session) ID() string {
	return s.id
}

// MarkReceived records that a frame decoded successfully. The first call
// moves Connecting to Active.
func (s *Session) MarkReceived() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed:
		return ErrClosed
	case StateConnecting:
		s.state = StateActive
		s.activatedAt = s.now()
	}
	return nil
}

// Accept records a validated Command and returns its sequence marker.
// Phase changes are recorded unconditionally. A terminate Command closes
// the session with ErrTerminated after it is sequenced.
func (s *Session) Accept(cmd protocol.Command) (uint64, error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	if s.state == StateConnecting {
		s.state = StateActive
		s.activatedAt = s.now()
	}
	s.seq++
	seq := s.seq

	terminate := false
	switch c := cmd.(type) {
	case protocol.PhaseChangedCommand:
		s.phase = c.Phase
		s.competition = c.IsCompetition
	case protocol.StartProgramCommand, protocol.RestartProgramCommand:
		s.program = ProgramRunning
		s.exitCode = nil
	case protocol.StopProgramCommand:
		s.program = ProgramStopped
	case protocol.TerminateCommand:
		terminate = true
	}
	s.mu.Unlock()

	if terminate {
		s.Close(ErrTerminated)
	}
	return seq, nil
}

// Observe records lifecycle Events reported by the simulation model.
// Other Events leave the session untouched.
func (s *Session) Observe(ev protocol.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	switch e := ev.(type) {
	case protocol.ProgramStartedEvent:
		s.program = ProgramRunning
		s.exitCode = nil
	case protocol.ProgramExitedEvent:
		code := e.Code
		s.program = ProgramExited
		s.exitCode = &code
	case protocol.ProgramPanickedEvent:
		s.program = ProgramPanicked
	}
}

// Close moves the session to Closed. Only the first cause is kept; later
// calls are no-ops and return false.
func (s *Session) Close(cause error) bool {
	if cause == nil {
		cause = ErrLocalClose
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.state = StateClosed
	s.cause = cause
	s.closedAt = s.now()
	close(s.done)
	return true
}

// Done is closed once the session reaches Closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Cause returns the closing cause, or nil while the session is open.
func (s *Session) Cause() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cause
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Phase() protocol.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		ID:            s.id,
		State:         s.state,
		Phase:         s.phase,
		IsCompetition: s.competition,
		Program:       s.program,
		Seq:           s.seq,
		OpenedAt:      s.openedAt,
		ActivatedAt:   s.activatedAt,
		ClosedAt:      s.closedAt,
		Cause:         s.cause,
	}
	if s.exitCode != nil {
		code := *s.exitCode
		snap.ExitCode = &code
	}
	return snap
}
