package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// TypeField is the discriminator key present in every frame.
const TypeField = "type"

// Message is either a Command or an Event.
type Message interface {
	MessageType() string
}

type variant[T Message] struct {
	required []string
	decode   func([]byte) (T, error)
}

func as[V Command](data []byte) (Command, error) {
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func asEvent[V Event](data []byte) (Event, error) {
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

var commandVariants = map[CommandType]variant[Command]{
	CmdHandshake:          {[]string{"version"}, as[HandshakeCommand]},
	CmdControllerState:    {[]string{"controller", "connected"}, as[ControllerStateCommand]},
	CmdTouchEvent:         {[]string{"x", "y", "phase"}, as[TouchEventCommand]},
	CmdPhaseChanged:       {[]string{"phase"}, as[PhaseChangedCommand]},
	CmdStartProgram:       {nil, as[StartProgramCommand]},
	CmdStopProgram:        {nil, as[StopProgramCommand]},
	CmdRestartProgram:     {nil, as[RestartProgramCommand]},
	CmdTerminate:          {nil, as[TerminateCommand]},
	CmdUSDMounted:         {nil, as[USDMountedCommand]},
	CmdVEXLinkOpened:      {[]string{"port", "mode"}, as[VEXLinkOpenedCommand]},
	CmdVEXLinkClosed:      {[]string{"port"}, as[VEXLinkClosedCommand]},
	CmdConfigureDevice:    {[]string{"port", "device"}, as[ConfigureDeviceCommand]},
	CmdAdiInput:           {[]string{"port", "voltage"}, as[AdiInputCommand]},
	CmdSetBatteryCapacity: {[]string{"capacity"}, as[SetBatteryCapacityCommand]},
	CmdSetTextMetrics:     {[]string{"text", "metrics"}, as[SetTextMetricsCommand]},
	CmdSerial:             {[]string{"channel", "data"}, as[SerialCommand]},
}

var eventVariants = map[EventType]variant[Event]{
	EvtHandshake:           {[]string{"version"}, asEvent[HandshakeEvent]},
	EvtReady:               {nil, asEvent[ReadyEvent]},
	EvtProgramStarted:      {nil, asEvent[ProgramStartedEvent]},
	EvtProgramExited:       {[]string{"code"}, asEvent[ProgramExitedEvent]},
	EvtProgramPanicked:     {[]string{"message"}, asEvent[ProgramPanickedEvent]},
	EvtScreenRegionUpdated: {[]string{"bounds", "pixels"}, asEvent[ScreenRegionUpdatedEvent]},
	EvtScreenDraw:          {[]string{"shape", "color", "clip_region"}, asEvent[ScreenDrawEvent]},
	EvtScreenText:          {[]string{"text", "location", "clip_region"}, asEvent[ScreenTextEvent]},
	EvtScreenClear:         {[]string{"color", "clip_region"}, asEvent[ScreenClearEvent]},
	EvtScreenScroll:        {[]string{"lines", "clip_region"}, asEvent[ScreenScrollEvent]},
	EvtScreenDoubleBuffer:  {[]string{"enable"}, asEvent[ScreenDoubleBufferEvent]},
	EvtScreenRender:        {nil, asEvent[ScreenRenderEvent]},
	EvtTextPrinted:         {[]string{"stream", "text"}, asEvent[TextPrintedEvent]},
	EvtLog:                 {[]string{"level", "message"}, asEvent[LogEvent]},
	EvtSerial:              {[]string{"channel", "data"}, asEvent[SerialEvent]},
	EvtPortValueChanged:    {[]string{"port", "kind", "value"}, asEvent[PortValueChangedEvent]},
	EvtDeviceUpdated:       {[]string{"port", "status"}, asEvent[DeviceUpdatedEvent]},
	EvtBattery:             {[]string{"voltage", "current", "capacity"}, asEvent[BatteryEvent]},
	EvtRobotPose:           {[]string{"x", "y"}, asEvent[RobotPoseEvent]},
	EvtVEXLinkConnect:      {[]string{"port", "id", "mode"}, asEvent[VEXLinkConnectEvent]},
	EvtVEXLinkDisconnect:   {[]string{"port"}, asEvent[VEXLinkDisconnectEvent]},
	EvtTextMetricsRequest:  {[]string{"text"}, asEvent[TextMetricsRequestEvent]},
}

// Marshal serializes msg as a single JSON object with its discriminator
// first. It does not append the line terminator.
func Marshal(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, &EncodingError{Type: "<nil>", Err: errors.New("nil message")}
	}
	typ := msg.MessageType()
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, &EncodingError{Type: typ, Err: err}
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, &EncodingError{Type: typ, Err: fmt.Errorf("payload is not a JSON object")}
	}
	tag, err := json.Marshal(typ)
	if err != nil {
		return nil, &EncodingError{Type: typ, Err: err}
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(tag) + 10)
	buf.WriteString(`{"` + TypeField + `":`)
	buf.Write(tag)
	if !bytes.Equal(body, []byte("{}")) {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// UnmarshalCommand maps one JSON object onto its Command variant.
func UnmarshalCommand(data []byte) (Command, error) {
	typ, fields, err := peek(data)
	if err != nil {
		return nil, err
	}
	v, ok := commandVariants[CommandType(typ)]
	if !ok {
		return nil, &SchemaError{Type: typ, Field: TypeField, Reason: "unknown command type"}
	}
	return decodeVariant(typ, data, fields, v)
}

// UnmarshalEvent maps one JSON object onto its Event variant.
func UnmarshalEvent(data []byte) (Event, error) {
	typ, fields, err := peek(data)
	if err != nil {
		return nil, err
	}
	v, ok := eventVariants[EventType(typ)]
	if !ok {
		return nil, &SchemaError{Type: typ, Field: TypeField, Reason: "unknown event type"}
	}
	return decodeVariant(typ, data, fields, v)
}

// CommandTypes lists every registered Command tag.
func CommandTypes() []CommandType {
	out := make([]CommandType, 0, len(commandVariants))
	for t := range commandVariants {
		out = append(out, t)
	}
	return out
}

// EventTypes lists every registered Event tag.
func EventTypes() []EventType {
	out := make([]EventType, 0, len(eventVariants))
	for t := range eventVariants {
		out = append(out, t)
	}
	return out
}

func peek(data []byte) (string, map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", nil, &SchemaError{Reason: "frame is not a JSON object", Err: err}
	}
	raw, ok := fields[TypeField]
	if !ok {
		return "", nil, &SchemaError{Field: TypeField, Reason: "missing discriminator"}
	}
	var typ string
	if err := json.Unmarshal(raw, &typ); err != nil {
		return "", nil, &SchemaError{Field: TypeField, Reason: "discriminator is not a string", Err: err}
	}
	return typ, fields, nil
}

func decodeVariant[T Message](typ string, data []byte, fields map[string]json.RawMessage, v variant[T]) (T, error) {
	var zero T
	for _, name := range v.required {
		raw, ok := fields[name]
		if !ok || bytes.Equal(raw, []byte("null")) {
			return zero, &SchemaError{Type: typ, Field: name, Reason: "missing required field"}
		}
	}
	msg, err := v.decode(data)
	if err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return zero, &SchemaError{Type: typ, Reason: "payload shape mismatch", Err: err}
		}
		// A number that does not fit an integer field has the right shape.
		if strings.HasPrefix(typeErr.Value, "number") && isIntegerKind(typeErr.Type) {
			return zero, &ValidationError{
				Type:   typ,
				Field:  typeErr.Field,
				Reason: fmt.Sprintf("%s is not representable as %s", typeErr.Value, typeErr.Type),
			}
		}
		return zero, &SchemaError{Type: typ, Field: typeErr.Field, Reason: "payload shape mismatch", Err: err}
	}
	return msg, nil
}

func isIntegerKind(t reflect.Type) bool {
	if t == nil {
		return false
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}
