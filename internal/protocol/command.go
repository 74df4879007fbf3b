package protocol

import "strings"

// CommandType is the "type" discriminator of a frontend to backend message.
type CommandType string

const (
	CmdHandshake          CommandType = "handshake"
	CmdControllerState    CommandType = "controller-state"
	CmdTouchEvent         CommandType = "touch-event"
	CmdPhaseChanged       CommandType = "phase-changed"
	CmdStartProgram       CommandType = "start-program"
	CmdStopProgram        CommandType = "stop-program"
	CmdRestartProgram     CommandType = "restart-program"
	CmdTerminate          CommandType = "terminate"
	CmdUSDMounted         CommandType = "usd-mounted"
	CmdVEXLinkOpened      CommandType = "vexlink-opened"
	CmdVEXLinkClosed      CommandType = "vexlink-closed"
	CmdConfigureDevice    CommandType = "configure-device"
	CmdAdiInput           CommandType = "adi-input"
	CmdSetBatteryCapacity CommandType = "set-battery-capacity"
	CmdSetTextMetrics     CommandType = "set-text-metrics"
	CmdSerial             CommandType = "serial"
)

// Command is an externally injected stimulus or control directive. The set of
// implementations is closed to this package.
type Command interface {
	Message
	CommandType() CommandType
	// Validate range-checks the payload. Failures are *ValidationError.
	Validate(Limits) error
	isCommand()
}

type HandshakeCommand struct {
	Version    int      `json:"version"`
	Extensions []string `json:"extensions"`
}

type ControllerID string

const (
	ControllerPrimary ControllerID = "primary"
	ControllerPartner ControllerID = "partner"
)

// ControllerButtons holds the digital channels of a V5 controller.
type ControllerButtons struct {
	L1    bool `json:"l1"`
	L2    bool `json:"l2"`
	R1    bool `json:"r1"`
	R2    bool `json:"r2"`
	Up    bool `json:"up"`
	Down  bool `json:"down"`
	Left  bool `json:"left"`
	Right bool `json:"right"`
	X     bool `json:"x"`
	B     bool `json:"b"`
	Y     bool `json:"y"`
	A     bool `json:"a"`
	Sel   bool `json:"sel"`
	All   bool `json:"all"`
}

// ControllerState is the raw channel snapshot of one controller.
type ControllerState struct {
	Axis1           int               `json:"axis1"`
	Axis2           int               `json:"axis2"`
	Axis3           int               `json:"axis3"`
	Axis4           int               `json:"axis4"`
	Buttons         ControllerButtons `json:"buttons"`
	BatteryLevel    int               `json:"battery_level"`
	BatteryCapacity int               `json:"battery_capacity"`
	Flags           int               `json:"flags"`
}

// ControllerStateCommand updates one controller either from raw channel
// values or by naming a physical controller UUID the backend maps itself.
type ControllerStateCommand struct {
	Controller ControllerID     `json:"controller"`
	Connected  bool             `json:"connected"`
	State      *ControllerState `json:"state,omitempty"`
	UUID       string           `json:"uuid,omitempty"`
}

type TouchPhase string

const (
	TouchPressed  TouchPhase = "pressed"
	TouchReleased TouchPhase = "released"
	TouchMoved    TouchPhase = "moved"
)

type TouchEventCommand struct {
	X     int        `json:"x"`
	Y     int        `json:"y"`
	Phase TouchPhase `json:"phase"`
}

type PhaseChangedCommand struct {
	Phase         Phase `json:"phase"`
	IsCompetition bool  `json:"is_competition,omitempty"`
}

type StartProgramCommand struct{}

type StopProgramCommand struct{}

type RestartProgramCommand struct{}

// TerminateCommand asks the backend process to shut down; it ends the session.
type TerminateCommand struct {
	Reason string `json:"reason,omitempty"`
}

// USDMountedCommand inserts (Root set) or removes (Root nil) the SD card.
type USDMountedCommand struct {
	Root *string `json:"root"`
}

type VEXLinkOpenedCommand struct {
	Port int      `json:"port"`
	Mode LinkMode `json:"mode"`
}

type VEXLinkClosedCommand struct {
	Port int `json:"port"`
}

type DeviceKind string

const DeviceMotor DeviceKind = "motor"

type DeviceConfig struct {
	Kind            DeviceKind   `json:"kind"`
	Gearset         MotorGearset `json:"gearset"`
	MomentOfInertia float64      `json:"moment_of_inertia"`
}

type ConfigureDeviceCommand struct {
	Port   Port         `json:"port"`
	Device DeviceConfig `json:"device"`
}

type AdiInputCommand struct {
	Port    int     `json:"port"`
	Voltage float64 `json:"voltage"`
}

type SetBatteryCapacityCommand struct {
	Capacity float64 `json:"capacity"`
}

type SetTextMetricsCommand struct {
	Text    Text        `json:"text"`
	Metrics TextMetrics `json:"metrics"`
}

// SerialCommand carries base64 bytes written to a program serial channel.
type SerialCommand struct {
	Channel int    `json:"channel"`
	Data    string `json:"data"`
}

func (HandshakeCommand) CommandType() CommandType          { return CmdHandshake }
func (ControllerStateCommand) CommandType() CommandType    { return CmdControllerState }
func (TouchEventCommand) CommandType() CommandType         { return CmdTouchEvent }
func (PhaseChangedCommand) CommandType() CommandType       { return CmdPhaseChanged }
func (StartProgramCommand) CommandType() CommandType       { return CmdStartProgram }
func (StopProgramCommand) CommandType() CommandType        { return CmdStopProgram }
func (RestartProgramCommand) CommandType() CommandType     { return CmdRestartProgram }
func (TerminateCommand) CommandType() CommandType          { return CmdTerminate }
func (USDMountedCommand) CommandType() CommandType         { return CmdUSDMounted }
func (VEXLinkOpenedCommand) CommandType() CommandType      { return CmdVEXLinkOpened }
func (VEXLinkClosedCommand) CommandType() CommandType      { return CmdVEXLinkClosed }
func (ConfigureDeviceCommand) CommandType() CommandType    { return CmdConfigureDevice }
func (AdiInputCommand) CommandType() CommandType           { return CmdAdiInput }
func (SetBatteryCapacityCommand) CommandType() CommandType { return CmdSetBatteryCapacity }
func (SetTextMetricsCommand) CommandType() CommandType     { return CmdSetTextMetrics }
func (SerialCommand) CommandType() CommandType             { return CmdSerial }

func (c HandshakeCommand) MessageType() string          { return string(c.CommandType()) }
func (c ControllerStateCommand) MessageType() string    { return string(c.CommandType()) }
func (c TouchEventCommand) MessageType() string         { return string(c.CommandType()) }
func (c PhaseChangedCommand) MessageType() string       { return string(c.CommandType()) }
func (c StartProgramCommand) MessageType() string       { return string(c.CommandType()) }
func (c StopProgramCommand) MessageType() string        { return string(c.CommandType()) }
func (c RestartProgramCommand) MessageType() string     { return string(c.CommandType()) }
func (c TerminateCommand) MessageType() string          { return string(c.CommandType()) }
func (c USDMountedCommand) MessageType() string         { return string(c.CommandType()) }
func (c VEXLinkOpenedCommand) MessageType() string      { return string(c.CommandType()) }
func (c VEXLinkClosedCommand) MessageType() string      { return string(c.CommandType()) }
func (c ConfigureDeviceCommand) MessageType() string    { return string(c.CommandType()) }
func (c AdiInputCommand) MessageType() string           { return string(c.CommandType()) }
func (c SetBatteryCapacityCommand) MessageType() string { return string(c.CommandType()) }
func (c SetTextMetricsCommand) MessageType() string     { return string(c.CommandType()) }
func (c SerialCommand) MessageType() string             { return string(c.CommandType()) }

func (HandshakeCommand) isCommand()          {}
func (ControllerStateCommand) isCommand()    {}
func (TouchEventCommand) isCommand()         {}
func (PhaseChangedCommand) isCommand()       {}
func (StartProgramCommand) isCommand()       {}
func (StopProgramCommand) isCommand()        {}
func (RestartProgramCommand) isCommand()     {}
func (TerminateCommand) isCommand()          {}
func (USDMountedCommand) isCommand()         {}
func (VEXLinkOpenedCommand) isCommand()      {}
func (VEXLinkClosedCommand) isCommand()      {}
func (ConfigureDeviceCommand) isCommand()    {}
func (AdiInputCommand) isCommand()           {}
func (SetBatteryCapacityCommand) isCommand() {}
func (SetTextMetricsCommand) isCommand()     {}
func (SerialCommand) isCommand()             {}

func (c HandshakeCommand) Validate(Limits) error {
	if c.Version < 1 {
		return invalid(c.MessageType(), "version", "must be >= 1, got %d", c.Version)
	}
	return nil
}

func (c ControllerStateCommand) Validate(l Limits) error {
	typ := c.MessageType()
	switch c.Controller {
	case ControllerPrimary, ControllerPartner:
	default:
		return invalid(typ, "controller", "unknown controller %q", c.Controller)
	}
	if c.State != nil && strings.TrimSpace(c.UUID) != "" {
		return invalid(typ, "", "state and uuid are mutually exclusive")
	}
	if c.State == nil {
		return nil
	}
	axes := []struct {
		name  string
		value int
	}{
		{"state.axis1", c.State.Axis1},
		{"state.axis2", c.State.Axis2},
		{"state.axis3", c.State.Axis3},
		{"state.axis4", c.State.Axis4},
	}
	for _, a := range axes {
		if a.value < l.AxisMin || a.value > l.AxisMax {
			return invalid(typ, a.name, "%d outside %d..%d", a.value, l.AxisMin, l.AxisMax)
		}
	}
	if c.State.BatteryLevel < 0 || c.State.BatteryLevel > MaxBatteryLevel {
		return invalid(typ, "state.battery_level", "%d outside 0..%d", c.State.BatteryLevel, MaxBatteryLevel)
	}
	if c.State.BatteryCapacity < 0 {
		return invalid(typ, "state.battery_capacity", "negative capacity %d", c.State.BatteryCapacity)
	}
	return nil
}

func (c TouchEventCommand) Validate(l Limits) error {
	typ := c.MessageType()
	if c.X < 0 || c.X >= l.ScreenWidth {
		return invalid(typ, "x", "%d outside 0..%d", c.X, l.ScreenWidth-1)
	}
	if c.Y < 0 || c.Y >= l.ScreenHeight {
		return invalid(typ, "y", "%d outside 0..%d", c.Y, l.ScreenHeight-1)
	}
	switch c.Phase {
	case TouchPressed, TouchReleased, TouchMoved:
		return nil
	default:
		return invalid(typ, "phase", "unknown touch phase %q", c.Phase)
	}
}

func (c PhaseChangedCommand) Validate(Limits) error {
	if !c.Phase.Valid() {
		return invalid(c.MessageType(), "phase", "unknown competition phase %q", c.Phase)
	}
	return nil
}

func (StartProgramCommand) Validate(Limits) error   { return nil }
func (StopProgramCommand) Validate(Limits) error    { return nil }
func (RestartProgramCommand) Validate(Limits) error { return nil }
func (TerminateCommand) Validate(Limits) error      { return nil }

func (c USDMountedCommand) Validate(Limits) error {
	if c.Root != nil && strings.TrimSpace(*c.Root) == "" {
		return invalid(c.MessageType(), "root", "must be null or a non-empty path")
	}
	return nil
}

func (c VEXLinkOpenedCommand) Validate(Limits) error {
	if err := checkSmartPort(c.MessageType(), "port", c.Port); err != nil {
		return err
	}
	switch c.Mode {
	case LinkManager, LinkWorker:
		return nil
	default:
		return invalid(c.MessageType(), "mode", "unknown link mode %q", c.Mode)
	}
}

func (c VEXLinkClosedCommand) Validate(Limits) error {
	return checkSmartPort(c.MessageType(), "port", c.Port)
}

func (c ConfigureDeviceCommand) Validate(Limits) error {
	typ := c.MessageType()
	if err := c.Port.validate(typ, "port"); err != nil {
		return err
	}
	if c.Device.Kind != DeviceMotor {
		return invalid(typ, "device.kind", "unsupported device kind %q", c.Device.Kind)
	}
	if !c.Device.Gearset.valid() {
		return invalid(typ, "device.gearset", "unknown gearset %q", c.Device.Gearset)
	}
	if c.Device.MomentOfInertia <= 0 {
		return invalid(typ, "device.moment_of_inertia", "must be positive, got %g", c.Device.MomentOfInertia)
	}
	return nil
}

func (c AdiInputCommand) Validate(Limits) error {
	if err := checkAdiPort(c.MessageType(), "port", c.Port); err != nil {
		return err
	}
	if c.Voltage < 0 || c.Voltage > AdiMaxVoltage {
		return invalid(c.MessageType(), "voltage", "%g outside 0..%g", c.Voltage, AdiMaxVoltage)
	}
	return nil
}

func (c SetBatteryCapacityCommand) Validate(Limits) error {
	if c.Capacity < 0 || c.Capacity > MaxBatteryLevel {
		return invalid(c.MessageType(), "capacity", "%g outside 0..%d", c.Capacity, MaxBatteryLevel)
	}
	return nil
}

func (c SetTextMetricsCommand) Validate(Limits) error {
	if c.Metrics.Width < 0 || c.Metrics.Height < 0 {
		return invalid(c.MessageType(), "metrics", "dimensions must be non-negative")
	}
	return nil
}

func (c SerialCommand) Validate(Limits) error {
	if c.Channel < 0 {
		return invalid(c.MessageType(), "channel", "negative channel %d", c.Channel)
	}
	if _, err := DecodeBytes(c.Data); err != nil {
		return invalid(c.MessageType(), "data", "not base64: %v", err)
	}
	return nil
}
