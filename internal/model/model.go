// Package model is an in-memory V5 hardware model. It records every
// stimulus a frontend injects and reports lifecycle and device changes as
// Events. It performs no physics.
package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AtDexters-Lab/sim-protocol/internal/iface"
	"github.com/AtDexters-Lab/sim-protocol/internal/protocol"
	"github.com/rs/zerolog"
)

var _ iface.Model = (*Model)(nil)

// StoppedExitCode is reported when a program is stopped by the frontend.
const StoppedExitCode = 0

const (
	nominalBatteryVoltage = 12.8
	idleBatteryCurrent    = 0.0
)

// Controller is the last state reported for one controller.
type Controller struct {
	Connected bool
	State     protocol.ControllerState
	UUID      string
}

// Snapshot is a copy of the model state for inspection.
type Snapshot struct {
	Phase           protocol.Phase
	IsCompetition   bool
	Running         bool
	Controllers     map[protocol.ControllerID]Controller
	LastTouch       *protocol.TouchEventCommand
	Motors          map[int]protocol.DeviceConfig
	AdiVoltages     map[int]float64
	BatteryCapacity float64
	USDRoot         *string
	Links           map[int]protocol.LinkMode
	TextMetrics     map[protocol.Text]protocol.TextMetrics
}

// Model implements iface.Model. All methods are safe for concurrent use.
type Model struct {
	log zerolog.Logger
	now func() time.Time

	mu              sync.Mutex
	phase           protocol.Phase
	competition     bool
	running         bool
	controllers     map[protocol.ControllerID]Controller
	lastTouch       *protocol.TouchEventCommand
	motors          map[int]protocol.DeviceConfig
	adi             map[int]float64
	batteryCapacity float64
	usdRoot         *string
	links           map[int]protocol.LinkMode
	textMetrics     map[protocol.Text]protocol.TextMetrics
	serial          map[int][]byte

	pending []protocol.Event
	closed  bool
	ready   chan struct{}
	done    chan struct{}
}

// New returns a model whose first Event is ready, announcing that it accepts
// Commands.
func New(logger zerolog.Logger) *Model {
	m := &Model{
		log:             logger.With().Str("component", "model").Logger(),
		now:             time.Now,
		phase:           protocol.PhaseOperatorControl,
		controllers:     make(map[protocol.ControllerID]Controller),
		motors:          make(map[int]protocol.DeviceConfig),
		adi:             make(map[int]float64),
		batteryCapacity: protocol.MaxBatteryLevel,
		links:           make(map[int]protocol.LinkMode),
		textMetrics:     make(map[protocol.Text]protocol.TextMetrics),
		serial:          make(map[int][]byte),
		ready:           make(chan struct{}, 1),
		done:            make(chan struct{}),
	}
	m.pushLocked(protocol.ReadyEvent{})
	return m
}

// Apply records cmd and queues the Events it causes.
func (m *Model) Apply(cmd protocol.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return iface.ErrModelClosed
	}

	switch c := cmd.(type) {
	case protocol.HandshakeCommand:
		m.log.Debug().Int("version", c.Version).Strs("extensions", c.Extensions).Msg("frontend handshake")
	case protocol.ControllerStateCommand:
		ctrl := Controller{Connected: c.Connected, UUID: c.UUID}
		if c.State != nil {
			ctrl.State = *c.State
		}
		m.controllers[c.Controller] = ctrl
	case protocol.TouchEventCommand:
		touch := c
		m.lastTouch = &touch
	case protocol.PhaseChangedCommand:
		m.phase = c.Phase
		m.competition = c.IsCompetition
		m.logLocked(protocol.LogInfo, fmt.Sprintf("competition phase: %s", c.Phase))
	case protocol.StartProgramCommand:
		m.startLocked()
	case protocol.StopProgramCommand:
		m.stopLocked()
	case protocol.RestartProgramCommand:
		m.stopLocked()
		m.startLocked()
	case protocol.TerminateCommand:
		m.stopLocked()
	case protocol.USDMountedCommand:
		m.usdRoot = c.Root
		if c.Root == nil {
			m.logLocked(protocol.LogInfo, "sd card removed")
		} else {
			m.logLocked(protocol.LogInfo, "sd card inserted")
		}
	case protocol.VEXLinkOpenedCommand:
		if _, ok := m.motors[c.Port]; ok {
			return &protocol.ValidationError{Type: c.MessageType(), Field: "port", Reason: fmt.Sprintf("smart port %d has a motor configured", c.Port)}
		}
		m.links[c.Port] = c.Mode
	case protocol.VEXLinkClosedCommand:
		if _, ok := m.links[c.Port]; !ok {
			return &protocol.ValidationError{Type: c.MessageType(), Field: "port", Reason: fmt.Sprintf("no link open on smart port %d", c.Port)}
		}
		delete(m.links, c.Port)
	case protocol.ConfigureDeviceCommand:
		return m.configureLocked(c)
	case protocol.AdiInputCommand:
		m.adi[c.Port] = c.Voltage
		m.pushLocked(protocol.PortValueChangedEvent{Port: protocol.AdiPort(c.Port), Kind: "voltage", Value: c.Voltage})
	case protocol.SetBatteryCapacityCommand:
		m.batteryCapacity = c.Capacity
		m.pushLocked(protocol.BatteryEvent{Voltage: nominalBatteryVoltage, Current: idleBatteryCurrent, Capacity: c.Capacity})
	case protocol.SetTextMetricsCommand:
		m.textMetrics[c.Text] = c.Metrics
	case protocol.SerialCommand:
		data, err := protocol.DecodeBytes(c.Data)
		if err != nil {
			return &protocol.ValidationError{Type: c.MessageType(), Field: "data", Reason: err.Error()}
		}
		m.serial[c.Channel] = append(m.serial[c.Channel], data...)
	default:
		return fmt.Errorf("model: unhandled command %T", cmd)
	}
	return nil
}

func (m *Model) configureLocked(c protocol.ConfigureDeviceCommand) error {
	if c.Port.Kind != protocol.PortSmart {
		return &protocol.ValidationError{Type: c.MessageType(), Field: "port.kind", Reason: "motors attach to smart ports"}
	}
	if _, ok := m.links[c.Port.Number]; ok {
		return &protocol.ValidationError{Type: c.MessageType(), Field: "port", Reason: fmt.Sprintf("smart port %d is a radio link", c.Port.Number)}
	}
	m.motors[c.Port.Number] = c.Device
	m.pushLocked(protocol.DeviceUpdatedEvent{
		Port: c.Port,
		Status: protocol.MotorStatus{
			Gearset:   c.Device.Gearset,
			BrakeMode: protocol.BrakeCoast,
		},
	})
	return nil
}

func (m *Model) startLocked() {
	if m.running {
		return
	}
	m.running = true
	m.pushLocked(protocol.ProgramStartedEvent{})
}

func (m *Model) stopLocked() {
	if !m.running {
		return
	}
	m.running = false
	m.pushLocked(protocol.ProgramExitedEvent{Code: StoppedExitCode})
}

func (m *Model) logLocked(level protocol.LogLevel, msg string) {
	m.pushLocked(protocol.LogEvent{Level: level, Message: msg})
}

func (m *Model) pushLocked(ev protocol.Event) {
	m.pending = append(m.pending, ev)
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Emit queues an Event produced outside of Apply, for example by a program
// runner writing to stdout.
func (m *Model) Emit(ev protocol.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return iface.ErrModelClosed
	}
	switch e := ev.(type) {
	case protocol.ProgramStartedEvent:
		m.running = true
	case protocol.ProgramExitedEvent, protocol.ProgramPanickedEvent:
		m.running = false
	case protocol.TextPrintedEvent:
		if e.Timestamp.IsZero() {
			e.Timestamp = m.now().UTC()
			ev = e
		}
	}
	m.pushLocked(ev)
	return nil
}

// NextEvent returns queued Events in the order they were produced.
func (m *Model) NextEvent(ctx context.Context) (protocol.Event, error) {
	for {
		m.mu.Lock()
		if len(m.pending) > 0 {
			ev := m.pending[0]
			m.pending[0] = nil
			m.pending = m.pending[1:]
			m.mu.Unlock()
			return ev, nil
		}
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return nil, iface.ErrModelClosed
		}

		select {
		case <-m.ready:
		case <-m.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close stops the model. Queued Events are still delivered before
// NextEvent reports iface.ErrModelClosed.
func (m *Model) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.done)
}

// MeasureText returns the metrics the frontend reported for text. On a miss
// it asks the frontend to measure it; the answer arrives later as a
// set-text-metrics Command.
func (m *Model) MeasureText(text protocol.Text) (protocol.TextMetrics, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if metrics, ok := m.textMetrics[text]; ok {
		return metrics, true
	}
	if !m.closed {
		m.pushLocked(protocol.TextMetricsRequestEvent{Text: text})
	}
	return protocol.TextMetrics{}, false
}

// SerialInput drains the bytes the frontend wrote to channel.
func (m *Model) SerialInput(channel int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	data := m.serial[channel]
	delete(m.serial, channel)
	return data
}

func (m *Model) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		Phase:           m.phase,
		IsCompetition:   m.competition,
		Running:         m.running,
		Controllers:     make(map[protocol.ControllerID]Controller, len(m.controllers)),
		Motors:          make(map[int]protocol.DeviceConfig, len(m.motors)),
		AdiVoltages:     make(map[int]float64, len(m.adi)),
		BatteryCapacity: m.batteryCapacity,
		Links:           make(map[int]protocol.LinkMode, len(m.links)),
		TextMetrics:     make(map[protocol.Text]protocol.TextMetrics, len(m.textMetrics)),
	}
	for k, v := range m.controllers {
		snap.Controllers[k] = v
	}
	for k, v := range m.motors {
		snap.Motors[k] = v
	}
	for k, v := range m.adi {
		snap.AdiVoltages[k] = v
	}
	for k, v := range m.links {
		snap.Links[k] = v
	}
	for k, v := range m.textMetrics {
		snap.TextMetrics[k] = v
	}
	if m.lastTouch != nil {
		touch := *m.lastTouch
		snap.LastTouch = &touch
	}
	if m.usdRoot != nil {
		root := *m.usdRoot
		snap.USDRoot = &root
	}
	return snap
}
