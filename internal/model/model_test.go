package model

import (
	"context"
	"testing"
	"time"

	"github.com/AtDexters-Lab/sim-protocol/internal/iface"
	"github.com/AtDexters-Lab/sim-protocol/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func next(t *testing.T, m *Model) protocol.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := m.NextEvent(ctx)
	require.NoError(t, err)
	return ev
}

func requireNoEvent(t *testing.T, m *Model) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ev, err := m.NextEvent(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded, "unexpected event %#v", ev)
}

// newReady returns a model whose ready announcement has been consumed.
func newReady(t *testing.T) *Model {
	t.Helper()
	m := New(zerolog.Nop())
	require.Equal(t, protocol.ReadyEvent{}, next(t, m))
	return m
}

func TestNewAnnouncesReadyFirst(t *testing.T) {
	m := New(zerolog.Nop())
	require.NoError(t, m.Apply(protocol.StartProgramCommand{}))

	assert.Equal(t, protocol.ReadyEvent{}, next(t, m))
	assert.Equal(t, protocol.ProgramStartedEvent{}, next(t, m))
	requireNoEvent(t, m)
}

func TestLifecycleCommandsEmitEvents(t *testing.T) {
	m := newReady(t)

	require.NoError(t, m.Apply(protocol.StartProgramCommand{}))
	assert.Equal(t, protocol.ProgramStartedEvent{}, next(t, m))
	assert.True(t, m.Snapshot().Running)

	// Starting a running program changes nothing.
	require.NoError(t, m.Apply(protocol.StartProgramCommand{}))
	requireNoEvent(t, m)

	require.NoError(t, m.Apply(protocol.RestartProgramCommand{}))
	assert.Equal(t, protocol.ProgramExitedEvent{Code: StoppedExitCode}, next(t, m))
	assert.Equal(t, protocol.ProgramStartedEvent{}, next(t, m))

	require.NoError(t, m.Apply(protocol.StopProgramCommand{}))
	assert.Equal(t, protocol.ProgramExitedEvent{Code: StoppedExitCode}, next(t, m))
	assert.False(t, m.Snapshot().Running)

	require.NoError(t, m.Apply(protocol.StopProgramCommand{}))
	requireNoEvent(t, m)
}

func TestPhaseChangeIsRecordedAndLogged(t *testing.T) {
	m := newReady(t)
	require.NoError(t, m.Apply(protocol.PhaseChangedCommand{Phase: protocol.PhaseAutonomous, IsCompetition: true}))

	snap := m.Snapshot()
	assert.Equal(t, protocol.PhaseAutonomous, snap.Phase)
	assert.True(t, snap.IsCompetition)
	assert.Equal(t, protocol.LogEvent{Level: protocol.LogInfo, Message: "competition phase: autonomous"}, next(t, m))
}

func TestStimuliAreRecorded(t *testing.T) {
	m := newReady(t)
	root := "/media/sd"

	require.NoError(t, m.Apply(protocol.ControllerStateCommand{
		Controller: protocol.ControllerPrimary,
		Connected:  true,
		State:      &protocol.ControllerState{Axis1: 50, Buttons: protocol.ControllerButtons{A: true}},
	}))
	require.NoError(t, m.Apply(protocol.TouchEventCommand{X: 1, Y: 2, Phase: protocol.TouchPressed}))
	require.NoError(t, m.Apply(protocol.USDMountedCommand{Root: &root}))
	require.NoError(t, m.Apply(protocol.VEXLinkOpenedCommand{Port: 12, Mode: protocol.LinkWorker}))
	text := protocol.Text{Data: "x", FontFamily: protocol.FontUserMono, FontSize: protocol.FontSmall}
	require.NoError(t, m.Apply(protocol.SetTextMetricsCommand{Text: text, Metrics: protocol.TextMetrics{Width: 8, Height: 12}}))

	snap := m.Snapshot()
	assert.Equal(t, 50, snap.Controllers[protocol.ControllerPrimary].State.Axis1)
	assert.True(t, snap.Controllers[protocol.ControllerPrimary].State.Buttons.A)
	require.NotNil(t, snap.LastTouch)
	assert.Equal(t, protocol.TouchPressed, snap.LastTouch.Phase)
	require.NotNil(t, snap.USDRoot)
	assert.Equal(t, root, *snap.USDRoot)
	assert.Equal(t, protocol.LinkWorker, snap.Links[12])

	metrics, ok := m.MeasureText(text)
	assert.True(t, ok)
	assert.Equal(t, protocol.TextMetrics{Width: 8, Height: 12}, metrics)

	assert.Equal(t, protocol.LogEvent{Level: protocol.LogInfo, Message: "sd card inserted"}, next(t, m))
	requireNoEvent(t, m)
}

func TestConfigureDevice(t *testing.T) {
	m := newReady(t)

	err := m.Apply(protocol.ConfigureDeviceCommand{
		Port:   protocol.AdiPort(1),
		Device: protocol.DeviceConfig{Kind: protocol.DeviceMotor, Gearset: protocol.GearsetRed, MomentOfInertia: 1},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, protocol.ErrValidation)

	cfg := protocol.DeviceConfig{Kind: protocol.DeviceMotor, Gearset: protocol.GearsetBlue, MomentOfInertia: 0.2}
	require.NoError(t, m.Apply(protocol.ConfigureDeviceCommand{Port: protocol.SmartPort(3), Device: cfg}))
	assert.Equal(t, cfg, m.Snapshot().Motors[3])
	assert.Equal(t, protocol.DeviceUpdatedEvent{
		Port:   protocol.SmartPort(3),
		Status: protocol.MotorStatus{Gearset: protocol.GearsetBlue, BrakeMode: protocol.BrakeCoast},
	}, next(t, m))

	err = m.Apply(protocol.VEXLinkOpenedCommand{Port: 3, Mode: protocol.LinkManager})
	assert.ErrorIs(t, err, protocol.ErrValidation)
}

func TestVEXLinkClosedRequiresOpenLink(t *testing.T) {
	m := newReady(t)
	assert.ErrorIs(t, m.Apply(protocol.VEXLinkClosedCommand{Port: 4}), protocol.ErrValidation)

	require.NoError(t, m.Apply(protocol.VEXLinkOpenedCommand{Port: 4, Mode: protocol.LinkManager}))
	require.NoError(t, m.Apply(protocol.VEXLinkClosedCommand{Port: 4}))
	assert.Empty(t, m.Snapshot().Links)
}

func TestAdiAndBatteryEmitTelemetry(t *testing.T) {
	m := newReady(t)
	require.NoError(t, m.Apply(protocol.AdiInputCommand{Port: 2, Voltage: 3.3}))
	require.NoError(t, m.Apply(protocol.SetBatteryCapacityCommand{Capacity: 40}))

	assert.Equal(t, protocol.PortValueChangedEvent{Port: protocol.AdiPort(2), Kind: "voltage", Value: 3.3}, next(t, m))
	ev := next(t, m)
	battery, ok := ev.(protocol.BatteryEvent)
	require.True(t, ok)
	assert.Equal(t, 40.0, battery.Capacity)
	assert.Equal(t, 40.0, m.Snapshot().BatteryCapacity)
	assert.Equal(t, 3.3, m.Snapshot().AdiVoltages[2])
}

func TestSerialInputAccumulates(t *testing.T) {
	m := newReady(t)
	require.NoError(t, m.Apply(protocol.SerialCommand{Channel: 1, Data: protocol.EncodeBytes([]byte("he"))}))
	require.NoError(t, m.Apply(protocol.SerialCommand{Channel: 1, Data: protocol.EncodeBytes([]byte("llo"))}))

	assert.Equal(t, []byte("hello"), m.SerialInput(1))
	assert.Empty(t, m.SerialInput(1))
}

func TestMeasureTextMissRequestsMetrics(t *testing.T) {
	m := newReady(t)
	text := protocol.Text{Data: "hello", FontFamily: protocol.FontUserMono, FontSize: protocol.FontNormal}

	_, ok := m.MeasureText(text)
	assert.False(t, ok)
	assert.Equal(t, protocol.TextMetricsRequestEvent{Text: text}, next(t, m))
}

func TestEmitStampsTextAndTracksLifecycle(t *testing.T) {
	m := newReady(t)
	fixed := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	require.NoError(t, m.Emit(protocol.ProgramStartedEvent{}))
	require.NoError(t, m.Emit(protocol.TextPrintedEvent{Stream: protocol.StreamStdout, Text: "hi"}))
	require.NoError(t, m.Emit(protocol.ProgramPanickedEvent{Message: "overflow"}))

	assert.Equal(t, protocol.ProgramStartedEvent{}, next(t, m))
	assert.Equal(t, protocol.TextPrintedEvent{Stream: protocol.StreamStdout, Text: "hi", Timestamp: fixed}, next(t, m))
	assert.Equal(t, protocol.ProgramPanickedEvent{Message: "overflow"}, next(t, m))
	assert.False(t, m.Snapshot().Running)
}

func TestCloseDrainsThenReportsClosed(t *testing.T) {
	m := newReady(t)
	require.NoError(t, m.Apply(protocol.StartProgramCommand{}))
	m.Close()
	m.Close()

	assert.Equal(t, protocol.ProgramStartedEvent{}, next(t, m))
	_, err := m.NextEvent(context.Background())
	assert.ErrorIs(t, err, iface.ErrModelClosed)
	assert.ErrorIs(t, m.Apply(protocol.StopProgramCommand{}), iface.ErrModelClosed)
	assert.ErrorIs(t, m.Emit(protocol.ReadyEvent{}), iface.ErrModelClosed)
}

func TestNextEventUnblocksOnPush(t *testing.T) {
	m := newReady(t)
	got := make(chan protocol.Event, 1)
	go func() {
		ev, _ := m.NextEvent(context.Background())
		got <- ev
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, m.Emit(protocol.ReadyEvent{}))
	select {
	case ev := <-got:
		assert.Equal(t, protocol.ReadyEvent{}, ev)
	case <-time.After(time.Second):
		t.Fatal("NextEvent did not wake")
	}
}
