// Package transport adapts concrete byte channels to iface.Stream.
package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/AtDexters-Lab/sim-protocol/internal/iface"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var _ iface.Stream = (*WSStream)(nil)

// ErrBinaryMessage is returned by WSStream.Read for a binary WebSocket message.
var ErrBinaryMessage = errors.New("transport: binary websocket message")

// WSStream carries one frame per WebSocket text message. Reads yield each
// message followed by a line terminator; writes are split on line
// terminators and sent as one text message per line.
type WSStream struct {
	conn *websocket.Conn
	log  zerolog.Logger

	readBuf []byte

	writeMu  sync.Mutex
	writeBuf bytes.Buffer

	quit      chan struct{}
	closeOnce sync.Once
}

// NewWSStream takes ownership of conn and starts its keepalive pings.
// maxMessageBytes bounds a single inbound message; zero leaves it unlimited.
func NewWSStream(conn *websocket.Conn, maxMessageBytes int64, logger zerolog.Logger) *WSStream {
	s := &WSStream{
		conn: conn,
		log:  logger.With().Str("remote", conn.RemoteAddr().String()).Logger(),
		quit: make(chan struct{}),
	}
	if maxMessageBytes > 0 {
		conn.SetReadLimit(maxMessageBytes)
	}
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go s.pingLoop()
	return s
}

func (s *WSStream) Read(p []byte) (int, error) {
	for len(s.readBuf) == 0 {
		messageType, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			return 0, err
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		if messageType != websocket.TextMessage {
			return 0, fmt.Errorf("%w: type %d", ErrBinaryMessage, messageType)
		}
		s.readBuf = append(message, '\n')
	}
	n := copy(p, s.readBuf)
	s.readBuf = s.readBuf[n:]
	return n, nil
}

func (s *WSStream) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.writeBuf.Write(p)
	for {
		line, err := s.writeBuf.ReadBytes('\n')
		if err != nil {
			// Incomplete line: keep it for the next Write.
			s.writeBuf.Reset()
			s.writeBuf.Write(line)
			return len(p), nil
		}
		if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return 0, err
		}
		if err := s.conn.WriteMessage(websocket.TextMessage, line[:len(line)-1]); err != nil {
			return 0, err
		}
	}
}

// Close sends a normal closure and closes the connection. It unblocks a
// pending Read.
func (s *WSStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.quit)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		err = s.conn.Close()
	})
	return err
}

func (s *WSStream) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.log.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}
