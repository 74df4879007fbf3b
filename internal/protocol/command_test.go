package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandValidation(t *testing.T) {
	limits := DefaultLimits()
	empty := ""

	cases := []struct {
		name    string
		cmd     Command
		wantErr bool
		field   string
	}{
		{"touch in bounds", TouchEventCommand{X: 0, Y: 271, Phase: TouchReleased}, false, ""},
		{"touch x past right edge", TouchEventCommand{X: 480, Y: 10, Phase: TouchPressed}, true, "x"},
		{"touch negative y", TouchEventCommand{X: 10, Y: -1, Phase: TouchPressed}, true, "y"},
		{"touch unknown phase", TouchEventCommand{X: 10, Y: 10, Phase: "held"}, true, "phase"},
		{"axis at limit", ControllerStateCommand{Controller: ControllerPrimary, Connected: true, State: &ControllerState{Axis3: 127}}, false, ""},
		{"axis past limit", ControllerStateCommand{Controller: ControllerPrimary, Connected: true, State: &ControllerState{Axis2: -128}}, true, "state.axis2"},
		{"battery over 100", ControllerStateCommand{Controller: ControllerPrimary, State: &ControllerState{BatteryLevel: 101}}, true, "state.battery_level"},
		{"unknown controller", ControllerStateCommand{Controller: "third"}, true, "controller"},
		{"state and uuid", ControllerStateCommand{Controller: ControllerPrimary, State: &ControllerState{}, UUID: "abc"}, true, ""},
		{"disconnected controller without state", ControllerStateCommand{Controller: ControllerPartner}, false, ""},
		{"known phase", PhaseChangedCommand{Phase: PhaseDisconnected}, false, ""},
		{"unknown phase", PhaseChangedCommand{Phase: "overtime"}, true, "phase"},
		{"handshake version zero", HandshakeCommand{}, true, "version"},
		{"smart port 22", VEXLinkOpenedCommand{Port: 22, Mode: LinkWorker}, true, "port"},
		{"link mode", VEXLinkOpenedCommand{Port: 1, Mode: "relay"}, true, "mode"},
		{"link closed port 0", VEXLinkClosedCommand{Port: 0}, true, "port"},
		{"adi voltage", AdiInputCommand{Port: 1, Voltage: 5.1}, true, "voltage"},
		{"adi port", AdiInputCommand{Port: 9, Voltage: 1}, true, "port"},
		{"motor on adi port number out of range", ConfigureDeviceCommand{Port: AdiPort(9), Device: DeviceConfig{Kind: DeviceMotor, Gearset: GearsetRed, MomentOfInertia: 1}}, true, "port"},
		{"motor inertia", ConfigureDeviceCommand{Port: SmartPort(2), Device: DeviceConfig{Kind: DeviceMotor, Gearset: GearsetRed}}, true, "device.moment_of_inertia"},
		{"motor gearset", ConfigureDeviceCommand{Port: SmartPort(2), Device: DeviceConfig{Kind: DeviceMotor, Gearset: "gold", MomentOfInertia: 1}}, true, "device.gearset"},
		{"battery capacity", SetBatteryCapacityCommand{Capacity: -1}, true, "capacity"},
		{"text metrics", SetTextMetricsCommand{Metrics: TextMetrics{Width: -1}}, true, "metrics"},
		{"serial base64", SerialCommand{Channel: 1, Data: "%%%"}, true, "data"},
		{"usd empty root", USDMountedCommand{Root: &empty}, true, "root"},
		{"usd removed", USDMountedCommand{}, false, ""},
		{"start", StartProgramCommand{}, false, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cmd.Validate(limits)
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.False(t, IsFatal(err))
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tc.field, vErr.Field)
			assert.Equal(t, tc.cmd.MessageType(), vErr.Type)
		})
	}
}

func TestValidationUsesDeclaredLimits(t *testing.T) {
	small := Limits{ScreenWidth: 100, ScreenHeight: 50, AxisMin: -100, AxisMax: 100}
	assert.Error(t, TouchEventCommand{X: 100, Y: 0, Phase: TouchPressed}.Validate(small))
	assert.NoError(t, TouchEventCommand{X: 99, Y: 49, Phase: TouchPressed}.Validate(small))
	assert.Error(t, ControllerStateCommand{Controller: ControllerPrimary, State: &ControllerState{Axis1: 101}}.Validate(small))
}

func TestColorChannels(t *testing.T) {
	c := RGB(0x12, 0x34, 0x56)
	assert.Equal(t, Color(0x123456), c)
	r, g, b := c.RGB()
	assert.Equal(t, []uint8{0x12, 0x34, 0x56}, []uint8{r, g, b})
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.True(t, IsFatal(&FramingError{Reason: "x"}))
	assert.True(t, IsFatal(&TransportError{Op: "read"}))
	assert.True(t, IsFatal(&EncodingError{Type: "log"}))
	assert.False(t, IsFatal(&ValidationError{Type: "touch-event"}))
}
