package protocol

import "time"

// EventType is the "type" discriminator of a backend to frontend message.
type EventType string

const (
	EvtHandshake           EventType = "handshake"
	EvtReady               EventType = "ready"
	EvtProgramStarted      EventType = "program-started"
	EvtProgramExited       EventType = "program-exited"
	EvtProgramPanicked     EventType = "program-panicked"
	EvtScreenRegionUpdated EventType = "screen-region-updated"
	EvtScreenDraw          EventType = "screen-draw"
	EvtScreenText          EventType = "screen-text"
	EvtScreenClear         EventType = "screen-clear"
	EvtScreenScroll        EventType = "screen-scroll"
	EvtScreenDoubleBuffer  EventType = "screen-double-buffer"
	EvtScreenRender        EventType = "screen-render"
	EvtTextPrinted         EventType = "text-printed"
	EvtLog                 EventType = "log"
	EvtSerial              EventType = "serial"
	EvtPortValueChanged    EventType = "port-value-changed"
	EvtDeviceUpdated       EventType = "device-updated"
	EvtBattery             EventType = "battery"
	EvtRobotPose           EventType = "robot-pose"
	EvtVEXLinkConnect      EventType = "vexlink-connect"
	EvtVEXLinkDisconnect   EventType = "vexlink-disconnect"
	EvtTextMetricsRequest  EventType = "text-metrics-request"
)

// Event is an immutable fact about simulated state. The set of
// implementations is closed to this package.
type Event interface {
	Message
	EventType() EventType
	isEvent()
}

type HandshakeEvent struct {
	Version    int      `json:"version"`
	Extensions []string `json:"extensions"`
}

// ReadyEvent signals the simulated brain accepts Commands.
type ReadyEvent struct{}

type ProgramStartedEvent struct {
	// Signature is the base64 program metadata block, when known.
	Signature string `json:"signature,omitempty"`
}

type ProgramExitedEvent struct {
	Code int `json:"code"`
}

type ProgramPanickedEvent struct {
	Message string `json:"message"`
}

// ScreenRegionUpdatedEvent copies a pixel buffer into Bounds.
type ScreenRegionUpdatedEvent struct {
	Bounds Rect   `json:"bounds"`
	Stride int    `json:"stride"`
	Pixels string `json:"pixels"`
}

type ShapeKind string

const (
	ShapeRectangle ShapeKind = "rectangle"
	ShapeCircle    ShapeKind = "circle"
	ShapePixel     ShapeKind = "pixel"
	ShapeLine      ShapeKind = "line"
)

// Shape is a flat union: Kind selects which geometry fields are meaningful.
type Shape struct {
	Kind        ShapeKind `json:"kind"`
	TopLeft     *Point    `json:"top_left,omitempty"`
	BottomRight *Point    `json:"bottom_right,omitempty"`
	Center      *Point    `json:"center,omitempty"`
	Radius      int       `json:"radius,omitempty"`
	Start       *Point    `json:"start,omitempty"`
	End         *Point    `json:"end,omitempty"`
	Pos         *Point    `json:"pos,omitempty"`
}

type ScreenDrawEvent struct {
	Shape      Shape `json:"shape"`
	Fill       bool  `json:"fill"`
	Color      Color `json:"color"`
	ClipRegion Rect  `json:"clip_region"`
}

// TextLocation is either a pixel coordinate or a text line.
type TextLocation struct {
	Point *Point `json:"point,omitempty"`
	Line  *int   `json:"line,omitempty"`
}

type ScreenTextEvent struct {
	Text       Text         `json:"text"`
	Location   TextLocation `json:"location"`
	Opaque     bool         `json:"opaque"`
	Color      Color        `json:"color"`
	Background Color        `json:"background"`
	ClipRegion Rect         `json:"clip_region"`
}

type ScreenClearEvent struct {
	Color      Color `json:"color"`
	ClipRegion Rect  `json:"clip_region"`
}

type ScreenScrollEvent struct {
	Lines       int   `json:"lines"`
	TopLeft     Point `json:"top_left"`
	BottomRight Point `json:"bottom_right"`
	Background  Color `json:"background"`
	ClipRegion  Rect  `json:"clip_region"`
}

type ScreenDoubleBufferEvent struct {
	Enable bool `json:"enable"`
}

type ScreenRenderEvent struct{}

type OutputStream string

const (
	StreamStdout OutputStream = "stdout"
	StreamStderr OutputStream = "stderr"
	StreamLog    OutputStream = "log"
)

type TextPrintedEvent struct {
	Stream    OutputStream `json:"stream"`
	Text      string       `json:"text"`
	Timestamp time.Time    `json:"timestamp"`
}

type LogEvent struct {
	Level   LogLevel `json:"level"`
	Message string   `json:"message"`
}

// SerialEvent carries base64 bytes the program wrote to a serial channel.
type SerialEvent struct {
	Channel int    `json:"channel"`
	Data    string `json:"data"`
}

type PortValueChangedEvent struct {
	Port  Port    `json:"port"`
	Kind  string  `json:"kind"`
	Value float64 `json:"value"`
}

type MotorStatus struct {
	Velocity       float64        `json:"velocity"`
	Reversed       bool           `json:"reversed"`
	PowerDraw      float64        `json:"power_draw"`
	TorqueOutput   float64        `json:"torque_output"`
	Flags          int            `json:"flags"`
	Position       float64        `json:"position"`
	TargetPosition float64        `json:"target_position"`
	Voltage        float64        `json:"voltage"`
	Gearset        MotorGearset   `json:"gearset"`
	BrakeMode      MotorBrakeMode `json:"brake_mode"`
}

type DeviceUpdatedEvent struct {
	Port   Port        `json:"port"`
	Status MotorStatus `json:"status"`
}

type BatteryEvent struct {
	Voltage  float64 `json:"voltage"`
	Current  float64 `json:"current"`
	Capacity float64 `json:"capacity"`
}

type RobotPoseEvent struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type VEXLinkConnectEvent struct {
	Port     int      `json:"port"`
	ID       string   `json:"id"`
	Mode     LinkMode `json:"mode"`
	Override bool     `json:"override"`
}

type VEXLinkDisconnectEvent struct {
	Port int `json:"port"`
}

// TextMetricsRequestEvent asks the frontend to measure Text; the answer
// arrives later as an independent set-text-metrics Command.
type TextMetricsRequestEvent struct {
	Text Text `json:"text"`
}

func (HandshakeEvent) EventType() EventType           { return EvtHandshake }
func (ReadyEvent) EventType() EventType               { return EvtReady }
func (ProgramStartedEvent) EventType() EventType      { return EvtProgramStarted }
func (ProgramExitedEvent) EventType() EventType       { return EvtProgramExited }
func (ProgramPanickedEvent) EventType() EventType     { return EvtProgramPanicked }
func (ScreenRegionUpdatedEvent) EventType() EventType { return EvtScreenRegionUpdated }
func (ScreenDrawEvent) EventType() EventType          { return EvtScreenDraw }
func (ScreenTextEvent) EventType() EventType          { return EvtScreenText }
func (ScreenClearEvent) EventType() EventType         { return EvtScreenClear }
func (ScreenScrollEvent) EventType() EventType        { return EvtScreenScroll }
func (ScreenDoubleBufferEvent) EventType() EventType  { return EvtScreenDoubleBuffer }
func (ScreenRenderEvent) EventType() EventType        { return EvtScreenRender }
func (TextPrintedEvent) EventType() EventType         { return EvtTextPrinted }
func (LogEvent) EventType() EventType                 { return EvtLog }
func (SerialEvent) EventType() EventType              { return EvtSerial }
func (PortValueChangedEvent) EventType() EventType    { return EvtPortValueChanged }
func (DeviceUpdatedEvent) EventType() EventType       { return EvtDeviceUpdated }
func (BatteryEvent) EventType() EventType             { return EvtBattery }
func (RobotPoseEvent) EventType() EventType           { return EvtRobotPose }
func (VEXLinkConnectEvent) EventType() EventType      { return EvtVEXLinkConnect }
func (VEXLinkDisconnectEvent) EventType() EventType   { return EvtVEXLinkDisconnect }
func (TextMetricsRequestEvent) EventType() EventType  { return EvtTextMetricsRequest }

func (e HandshakeEvent) MessageType() string           { return string(e.EventType()) }
func (e ReadyEvent) MessageType() string               { return string(e.EventType()) }
func (e ProgramStartedEvent) MessageType() string      { return string(e.EventType()) }
func (e ProgramExitedEvent) MessageType() string       { return string(e.EventType()) }
func (e ProgramPanickedEvent) MessageType() string     { return string(e.EventType()) }
func (e ScreenRegionUpdatedEvent) MessageType() string { return string(e.EventType()) }
func (e ScreenDrawEvent) MessageType() string          { return string(e.EventType()) }
func (e ScreenTextEvent) MessageType() string          { return string(e.EventType()) }
func (e ScreenClearEvent) MessageType() string         { return string(e.EventType()) }
func (e ScreenScrollEvent) MessageType() string        { return string(e.EventType()) }
func (e ScreenDoubleBufferEvent) MessageType() string  { return string(e.EventType()) }
func (e ScreenRenderEvent) MessageType() string        { return string(e.EventType()) }
func (e TextPrintedEvent) MessageType() string         { return string(e.EventType()) }
func (e LogEvent) MessageType() string                 { return string(e.EventType()) }
func (e SerialEvent) MessageType() string              { return string(e.EventType()) }
func (e PortValueChangedEvent) MessageType() string    { return string(e.EventType()) }
func (e DeviceUpdatedEvent) MessageType() string       { return string(e.EventType()) }
func (e BatteryEvent) MessageType() string             { return string(e.EventType()) }
func (e RobotPoseEvent) MessageType() string           { return string(e.EventType()) }
func (e VEXLinkConnectEvent) MessageType() string      { return string(e.EventType()) }
func (e VEXLinkDisconnectEvent) MessageType() string   { return string(e.EventType()) }
func (e TextMetricsRequestEvent) MessageType() string  { return string(e.EventType()) }

func (HandshakeEvent) isEvent()           {}
func (ReadyEvent) isEvent()               {}
func (ProgramStartedEvent) isEvent()      {}
func (ProgramExitedEvent) isEvent()       {}
func (ProgramPanickedEvent) isEvent()     {}
func (ScreenRegionUpdatedEvent) isEvent() {}
func (ScreenDrawEvent) isEvent()          {}
func (ScreenTextEvent) isEvent()          {}
func (ScreenClearEvent) isEvent()         {}
func (ScreenScrollEvent) isEvent()        {}
func (ScreenDoubleBufferEvent) isEvent()  {}
func (ScreenRenderEvent) isEvent()        {}
func (TextPrintedEvent) isEvent()         {}
func (LogEvent) isEvent()                 {}
func (SerialEvent) isEvent()              {}
func (PortValueChangedEvent) isEvent()    {}
func (DeviceUpdatedEvent) isEvent()       {}
func (BatteryEvent) isEvent()             {}
func (RobotPoseEvent) isEvent()           {}
func (VEXLinkConnectEvent) isEvent()      {}
func (VEXLinkDisconnectEvent) isEvent()   {}
func (TextMetricsRequestEvent) isEvent()  {}
