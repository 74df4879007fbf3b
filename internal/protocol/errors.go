package protocol

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is against the typed errors below.
var (
	ErrFraming    = errors.New("protocol: framing error")
	ErrSchema     = errors.New("protocol: schema error")
	ErrValidation = errors.New("protocol: validation error")
	ErrEncoding   = errors.New("protocol: encoding error")
	ErrTransport  = errors.New("protocol: transport error")
)

// FramingError reports a line that is not a single JSON object.
type FramingError struct {
	Line   []byte
	Reason string
	Err    error
}

func (e *FramingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: malformed frame: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol: malformed frame: %s", e.Reason)
}

func (e *FramingError) Unwrap() error { return e.Err }

func (e *FramingError) Is(target error) bool { return target == ErrFraming }

// SchemaError reports valid JSON that does not match any known variant shape.
type SchemaError struct {
	Type   string
	Field  string
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	msg := "protocol: schema"
	if e.Type != "" {
		msg += fmt.Sprintf(" type=%q", e.Type)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" field=%q", e.Field)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaError) Unwrap() error { return e.Err }

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// ValidationError reports a known shape carrying an out-of-range payload.
// It is recoverable: the offending Command is dropped and the session continues.
type ValidationError struct {
	Type   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("protocol: invalid %s: %s", e.Type, e.Reason)
	}
	return fmt.Sprintf("protocol: invalid %s field=%s: %s", e.Type, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// EncodingError reports a message that could not be serialized.
type EncodingError struct {
	Type string
	Err  error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("protocol: encode %s: %v", e.Type, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

func (e *EncodingError) Is(target error) bool { return target == ErrEncoding }

// TransportError reports a failed read or write on the underlying stream.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("protocol: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

func invalid(typ, field, format string, args ...any) *ValidationError {
	return &ValidationError{Type: typ, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsFatal reports whether err must close the session. Only validation
// failures are recoverable.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrValidation)
}
