// Package dispatch runs the inbound and outbound pumps of one session.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AtDexters-Lab/sim-protocol/internal/codec"
	"github.com/AtDexters-Lab/sim-protocol/internal/iface"
	"github.com/AtDexters-Lab/sim-protocol/internal/metrics"
	"github.com/AtDexters-Lab/sim-protocol/internal/protocol"
	"github.com/AtDexters-Lab/sim-protocol/internal/session"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var errAlreadyRunning = errors.New("dispatch: already running")

// Closure is delivered exactly once when a session ends.
type Closure struct {
	SessionID       string
	Cause           error
	Snapshot        session.Snapshot
	CommandsApplied uint64
	CommandsDropped uint64
	EventsWritten   uint64
	EventsDiscarded uint64
}

// Options configures a Dispatcher. The zero value is usable.
type Options struct {
	// Limits bound Command payloads. Zero means protocol.DefaultLimits.
	Limits        protocol.Limits
	MaxFrameBytes int
	Logger        zerolog.Logger
	Metrics       *metrics.Metrics
	// Extensions are announced by SendHandshake.
	Extensions []string
	OnClose    func(Closure)
}

// Dispatcher owns one session: it decodes Commands, routes them through the
// session and into the model, and drains model Events onto the stream.
type Dispatcher struct {
	stream  iface.Stream
	model   iface.Model
	session *session.Session
	decoder *codec.Decoder[protocol.Command]
	encoder *codec.Encoder
	outbox  *Outbox

	limits     protocol.Limits
	extensions []string
	log        zerolog.Logger
	metrics    *metrics.Metrics
	onClose    func(Closure)

	running   atomic.Bool
	closeOnce sync.Once
	closed    atomic.Bool

	applied   atomic.Uint64
	dropped   atomic.Uint64
	written   atomic.Uint64
	discarded atomic.Uint64
}

func New(stream iface.Stream, model iface.Model, opts Options) *Dispatcher {
	limits := opts.Limits
	if limits == (protocol.Limits{}) {
		limits = protocol.DefaultLimits()
	}
	var decOpts []codec.Option
	if opts.MaxFrameBytes > 0 {
		decOpts = append(decOpts, codec.WithMaxFrameBytes(opts.MaxFrameBytes))
	}

	sess := session.New()
	return &Dispatcher{
		stream:     stream,
		model:      model,
		session:    sess,
		decoder:    codec.NewCommandDecoder(stream, decOpts...),
		encoder:    codec.NewEncoder(stream),
		outbox:     NewOutbox(),
		limits:     limits,
		extensions: opts.Extensions,
		log:        opts.Logger.With().Str("session", sess.ID()).Logger(),
		metrics:    opts.Metrics,
		onClose:    opts.OnClose,
	}
}

func (d *Dispatcher) Session() *session.Session {
	return d.session
}

// Emit queues ev behind every Event emitted before it. It fails with
// session.ErrClosed once the session has closed.
func (d *Dispatcher) Emit(ev protocol.Event) error {
	if ev == nil {
		return &protocol.EncodingError{Type: "<nil>", Err: errors.New("nil event")}
	}
	if !d.outbox.Push(ev) {
		return session.ErrClosed
	}
	return nil
}

// SendHandshake queues the backend handshake Event. The frontend is not
// required to answer it.
func (d *Dispatcher) SendHandshake() error {
	ext := d.extensions
	if ext == nil {
		ext = []string{}
	}
	return d.Emit(protocol.HandshakeEvent{Version: protocol.Version, Extensions: ext})
}

// Close ends the session with cause. Pending Events are discarded and the
// stream is closed so blocked pumps return. Safe to call from any goroutine.
func (d *Dispatcher) Close(cause error) {
	if d.session.Close(cause) {
		d.log.Debug().Err(d.session.Cause()).Msg("session closing")
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		n := d.outbox.Close()
		d.discarded.Add(uint64(n))
		if err := d.stream.Close(); err != nil {
			d.log.Debug().Err(err).Msg("stream close")
		}
	})
}

// Run starts both pumps and the event feeder and blocks until all of them
// have stopped. It returns the closing cause.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errAlreadyRunning
	}
	d.metrics.SessionOpened()
	d.log.Info().Msg("session started")

	g, gctx := errgroup.WithContext(ctx)
	feedCtx, stopFeed := context.WithCancel(gctx)

	g.Go(d.readPump)
	g.Go(d.writePump)
	g.Go(func() error { return d.feedEvents(feedCtx) })
	g.Go(func() error {
		defer stopFeed()
		select {
		case <-gctx.Done():
			d.Close(fmt.Errorf("%w: %w", session.ErrLocalClose, context.Cause(gctx)))
		case <-d.session.Done():
			d.Close(nil)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		d.log.Debug().Err(err).Msg("pumps stopped")
	}

	cause := d.session.Cause()
	d.metrics.EventsDiscarded(int(d.discarded.Load()))
	d.metrics.SessionClosed(cause)
	d.logClosure(cause)

	if d.onClose != nil {
		d.onClose(Closure{
			SessionID:       d.session.ID(),
			Cause:           cause,
			Snapshot:        d.session.Snapshot(),
			CommandsApplied: d.applied.Load(),
			CommandsDropped: d.dropped.Load(),
			EventsWritten:   d.written.Load(),
			EventsDiscarded: d.discarded.Load(),
		})
	}
	return cause
}

func (d *Dispatcher) readPump() error {
	defer d.log.Debug().Msg("read pump stopped")
	for {
		if d.closed.Load() {
			return nil
		}
		cmd, err := d.decoder.Next()
		if err != nil {
			if d.closed.Load() {
				return nil
			}
			if errors.Is(err, io.EOF) {
				d.Close(session.ErrStreamClosed)
				return nil
			}
			if !protocol.IsFatal(err) {
				if err := d.session.MarkReceived(); err != nil {
					return nil
				}
				var valErr *protocol.ValidationError
				typ := protocol.CommandType("")
				if errors.As(err, &valErr) {
					typ = protocol.CommandType(valErr.Type)
				}
				d.drop(typ, err)
				continue
			}
			d.Close(err)
			return err
		}
		if err := d.session.MarkReceived(); err != nil {
			return nil
		}

		err = d.handle(cmd)
		switch {
		case err == nil:
		case !protocol.IsFatal(err):
			d.drop(cmd.CommandType(), err)
		case errors.Is(err, session.ErrClosed):
			return nil
		default:
			d.Close(err)
			return err
		}
	}
}

func (d *Dispatcher) drop(typ protocol.CommandType, err error) {
	d.dropped.Add(1)
	d.metrics.CommandDropped(typ)
	d.log.Warn().Err(err).Str("type", string(typ)).Msg("command dropped")
}

// handle validates, sequences and applies one Command. It returns only once
// the model has finished with it.
func (d *Dispatcher) handle(cmd protocol.Command) error {
	if err := cmd.Validate(d.limits); err != nil {
		return err
	}
	seq, err := d.session.Accept(cmd)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := d.model.Apply(cmd); err != nil {
		if protocol.IsFatal(err) {
			return fmt.Errorf("dispatch: apply %s: %w", cmd.MessageType(), err)
		}
		return err
	}
	d.applied.Add(1)
	d.metrics.CommandApplied(cmd.CommandType(), time.Since(start).Seconds())
	d.log.Trace().Uint64("seq", seq).Str("type", cmd.MessageType()).Msg("command applied")

	switch c := cmd.(type) {
	case protocol.PhaseChangedCommand:
		d.log.Info().Str("phase", string(c.Phase)).Bool("competition", c.IsCompetition).Msg("competition phase changed")
	case protocol.TerminateCommand:
		d.log.Info().Str("reason", c.Reason).Msg("terminate requested")
		d.Close(session.ErrTerminated)
	}
	return nil
}

func (d *Dispatcher) writePump() error {
	defer d.log.Debug().Msg("write pump stopped")
	for {
		ev, ok := d.outbox.Pop()
		if !ok {
			return nil
		}
		if d.closed.Load() || d.session.State() == session.StateClosed {
			d.discarded.Add(1)
			return nil
		}
		d.session.Observe(ev)
		if err := d.encoder.Write(ev); err != nil {
			if d.closed.Load() {
				return nil
			}
			d.Close(err)
			return err
		}
		d.written.Add(1)
		d.metrics.EventWritten(ev.EventType())
		d.log.Trace().Str("type", ev.MessageType()).Msg("event written")
	}
}

func (d *Dispatcher) feedEvents(ctx context.Context) error {
	for {
		ev, err := d.model.NextEvent(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, iface.ErrModelClosed) {
				return nil
			}
			err = fmt.Errorf("dispatch: next event: %w", err)
			d.Close(err)
			return err
		}
		if err := d.Emit(ev); err != nil {
			return nil
		}
	}
}

func (d *Dispatcher) logClosure(cause error) {
	evt := d.log.Info()
	if protocol.IsFatal(cause) && !isOrderlyClose(cause) {
		evt = d.log.Error()
	}
	evt.Err(cause).
		Uint64("applied", d.applied.Load()).
		Uint64("dropped", d.dropped.Load()).
		Uint64("written", d.written.Load()).
		Uint64("discarded", d.discarded.Load()).
		Msg("session closed")
}

func isOrderlyClose(cause error) bool {
	return errors.Is(cause, session.ErrStreamClosed) ||
		errors.Is(cause, session.ErrTerminated) ||
		errors.Is(cause, session.ErrLocalClose)
}
