package gladia

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"speech-translate-relay/internal/service/stt"
)

const writeWait = 5 * time.Second

var stopRecording = []byte(`{"type":"stop_recording"}`)

// stream is one live session connection.
type stream struct {
	conn *websocket.Conn
	log  zerolog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newStream(conn *websocket.Conn, log zerolog.Logger) *stream {
	return &stream{conn: conn, log: log}
}

// Send writes one PCM frame as a binary message.
func (s *stream) Send(pcm []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.BinaryMessage, pcm)
}

// Recv reads until a message yields an event or the connection fails.
func (s *stream) Recv() (stt.Event, error) {
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return nil, &stt.CloseError{Code: ce.Code, Reason: ce.Text}
			}
			return nil, err
		}
		if kind != websocket.TextMessage {
			continue
		}

		ev, err := parseMessage(data)
		if err != nil {
			s.log.Warn().Err(err).Msg("Skipping unreadable Gladia message")
			continue
		}
		if ev != nil {
			return ev, nil
		}
	}
}

// Close asks Gladia to finish the session, then closes the connection.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		deadline := time.Now().Add(writeWait)
		s.conn.SetWriteDeadline(deadline)
		if err := s.conn.WriteMessage(websocket.TextMessage, stopRecording); err != nil {
			s.log.Debug().Err(err).Msg("stop_recording not delivered")
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := s.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			s.log.Debug().Err(err).Msg("Close frame not delivered")
		}
		s.writeMu.Unlock()

		if err := s.conn.Close(); err != nil {
			s.closeErr = fmt.Errorf("close gladia connection: %w", err)
		}
	})
	return s.closeErr
}
