// Package codec frames protocol messages as newline-delimited JSON over an
// arbitrary byte stream.
package codec

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/AtDexters-Lab/sim-protocol/internal/protocol"
)

// MaxFrameBytes is the default upper bound of one frame, terminator excluded.
const MaxFrameBytes = 1 << 20

const lineTerminator = '\n'

// Encode serializes msg into one frame including its line terminator.
func Encode(msg protocol.Message) ([]byte, error) {
	body, err := protocol.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return append(body, lineTerminator), nil
}

// Encoder writes frames to w. It is not safe for concurrent use; the
// Dispatcher owns exactly one writer.
type Encoder struct {
	w      io.Writer
	frames uint64
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Write encodes msg and hands the whole frame to the underlying writer in a
// single Write call.
func (e *Encoder) Write(msg protocol.Message) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}
	n, err := e.w.Write(frame)
	if err == nil && n != len(frame) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return &protocol.TransportError{Op: "write", Err: err}
	}
	e.frames++
	return nil
}

// Frames returns the number of frames written successfully.
func (e *Encoder) Frames() uint64 { return e.frames }

type options struct {
	maxFrameBytes int
}

// Option tunes a Decoder.
type Option func(*options)

// WithMaxFrameBytes overrides MaxFrameBytes. Non-positive values are ignored.
func WithMaxFrameBytes(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxFrameBytes = n
		}
	}
}

// Decoder reads frames from a stream and maps them onto T. After the first
// fatal error every call to Next returns that same error: there is no resync.
// A frame rejected with a ValidationError is skipped and decoding continues.
type Decoder[T protocol.Message] struct {
	r         *bufio.Reader
	unmarshal func([]byte) (T, error)
	max       int
	frames    uint64
	err       error
}

// NewDecoder returns a Decoder that maps each frame through unmarshal.
func NewDecoder[T protocol.Message](r io.Reader, unmarshal func([]byte) (T, error), opts ...Option) *Decoder[T] {
	o := options{maxFrameBytes: MaxFrameBytes}
	for _, opt := range opts {
		opt(&o)
	}
	return &Decoder[T]{
		r:         bufio.NewReader(r),
		unmarshal: unmarshal,
		max:       o.maxFrameBytes,
	}
}

// NewCommandDecoder reads frontend to backend frames.
func NewCommandDecoder(r io.Reader, opts ...Option) *Decoder[protocol.Command] {
	return NewDecoder(r, protocol.UnmarshalCommand, opts...)
}

// NewEventDecoder reads backend to frontend frames.
func NewEventDecoder(r io.Reader, opts ...Option) *Decoder[protocol.Event] {
	return NewDecoder(r, protocol.UnmarshalEvent, opts...)
}

// Next blocks until a complete frame is available and returns its message.
// A clean end of stream between frames yields io.EOF.
func (d *Decoder[T]) Next() (T, error) {
	var zero T
	if d.err != nil {
		return zero, d.err
	}
	for {
		line, err := d.readLine()
		if err != nil {
			d.err = err
			return zero, err
		}
		frame := bytes.TrimSpace(line)
		if len(frame) == 0 {
			continue
		}
		if err := checkFrame(frame); err != nil {
			d.err = err
			return zero, err
		}
		msg, err := d.unmarshal(frame)
		if err != nil {
			// An out-of-range value consumes only its own frame.
			if protocol.IsFatal(err) {
				d.err = err
			}
			return zero, err
		}
		d.frames++
		return msg, nil
	}
}

// Frames returns the number of frames decoded successfully.
func (d *Decoder[T]) Frames() uint64 { return d.frames }

func (d *Decoder[T]) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := d.r.ReadSlice(lineTerminator)
		line = append(line, chunk...)
		if size := len(bytes.TrimSuffix(line, []byte{lineTerminator})); size > d.max {
			return nil, &protocol.FramingError{Reason: fmt.Sprintf("frame exceeds %d bytes", d.max)}
		}
		switch {
		case err == nil:
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(bytes.TrimSpace(line)) == 0 {
				return nil, io.EOF
			}
			return nil, &protocol.FramingError{Line: line, Reason: "stream ended inside a frame"}
		default:
			return nil, &protocol.TransportError{Op: "read", Err: err}
		}
	}
}

func checkFrame(frame []byte) error {
	if !utf8.Valid(frame) {
		return &protocol.FramingError{Line: frame, Reason: "invalid UTF-8"}
	}
	if !json.Valid(frame) {
		return &protocol.FramingError{Line: frame, Reason: "not a single JSON value"}
	}
	if frame[0] != '{' {
		return &protocol.FramingError{Line: frame, Reason: "not a JSON object"}
	}
	return nil
}
