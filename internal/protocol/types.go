package protocol

import (
	"encoding/base64"
	"fmt"
)

// Protocol version announced in handshake messages.
const Version = 1

// V5 hardware geometry.
const (
	ScreenWidth     = 480
	ScreenHeight    = 272
	SmartPortCount  = 21
	AdiPortCount    = 8
	AxisMin         = -127
	AxisMax         = 127
	AdiMaxVoltage   = 5.0
	MaxBatteryLevel = 100
)

// Limits are the declared ranges Command payloads are checked against.
type Limits struct {
	ScreenWidth  int
	ScreenHeight int
	AxisMin      int
	AxisMax      int
}

// DefaultLimits returns the limits of a stock V5 brain and controller.
func DefaultLimits() Limits {
	return Limits{
		ScreenWidth:  ScreenWidth,
		ScreenHeight: ScreenHeight,
		AxisMin:      AxisMin,
		AxisMax:      AxisMax,
	}
}

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Rect struct {
	TopLeft     Point `json:"top_left"`
	BottomRight Point `json:"bottom_right"`
}

// Color is a 0x00RRGGBB value.
type Color uint32

// RGB returns the color channels.
func (c Color) RGB() (r, g, b uint8) {
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}

// RGB packs three channels into a Color.
func RGB(r, g, b uint8) Color {
	return Color(uint32(r)<<16 | uint32(g)<<8 | uint32(b))
}

type PortKind string

const (
	PortSmart PortKind = "smart"
	PortAdi   PortKind = "adi"
)

// Port addresses a Smart or ADI port on the brain. Numbers are 1-based.
type Port struct {
	Kind   PortKind `json:"kind"`
	Number int      `json:"number"`
}

func SmartPort(n int) Port { return Port{Kind: PortSmart, Number: n} }
func AdiPort(n int) Port   { return Port{Kind: PortAdi, Number: n} }

func (p Port) String() string {
	return fmt.Sprintf("%s-%d", p.Kind, p.Number)
}

func (p Port) validate(typ, field string) error {
	switch p.Kind {
	case PortSmart:
		return checkSmartPort(typ, field, p.Number)
	case PortAdi:
		return checkAdiPort(typ, field, p.Number)
	default:
		return invalid(typ, field+".kind", "unknown port kind %q", p.Kind)
	}
}

func checkSmartPort(typ, field string, n int) error {
	if n < 1 || n > SmartPortCount {
		return invalid(typ, field, "smart port %d outside 1..%d", n, SmartPortCount)
	}
	return nil
}

func checkAdiPort(typ, field string, n int) error {
	if n < 1 || n > AdiPortCount {
		return invalid(typ, field, "adi port %d outside 1..%d", n, AdiPortCount)
	}
	return nil
}

type FontFamily string

const (
	FontUserMono  FontFamily = "user-mono"
	FontTimerMono FontFamily = "timer-mono"
)

type FontSize string

const (
	FontSmall  FontSize = "small"
	FontNormal FontSize = "normal"
	FontLarge  FontSize = "large"
)

// Text is a string rendered with one of the brain's fonts.
type Text struct {
	Data       string     `json:"data"`
	FontFamily FontFamily `json:"font_family"`
	FontSize   FontSize   `json:"font_size"`
}

type TextMetrics struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type LinkMode string

const (
	LinkManager LinkMode = "manager"
	LinkWorker  LinkMode = "worker"
)

type MotorGearset string

const (
	GearsetRed   MotorGearset = "red"
	GearsetGreen MotorGearset = "green"
	GearsetBlue  MotorGearset = "blue"
)

func (g MotorGearset) valid() bool {
	switch g {
	case GearsetRed, GearsetGreen, GearsetBlue:
		return true
	}
	return false
}

type MotorBrakeMode string

const (
	BrakeCoast MotorBrakeMode = "coast"
	BrakeBrake MotorBrakeMode = "brake"
	BrakeHold  MotorBrakeMode = "hold"
)

type LogLevel string

const (
	LogTrace LogLevel = "trace"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// Phase is the competition phase of the simulated field controller.
type Phase string

const (
	PhaseDisabled        Phase = "disabled"
	PhaseAutonomous      Phase = "autonomous"
	PhaseOperatorControl Phase = "operator-control"
	PhaseDisconnected    Phase = "disconnected"
)

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseDisabled, PhaseAutonomous, PhaseOperatorControl, PhaseDisconnected:
		return true
	}
	return false
}

// EncodeBytes returns the wire form of binary data.
func EncodeBytes(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBytes parses the wire form of binary data.
func DecodeBytes(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
