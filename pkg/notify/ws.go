package notify

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultWriteTimeout = 10 * time.Second

// WSSubscriber pushes messages over a websocket connection.
//
// gorilla/websocket allows one concurrent writer, so every write on the
// connection, including replies written by the connection's own handler,
// goes through the subscriber.
type WSSubscriber struct {
	id           string
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

// NewWSSubscriber wraps conn. A zero writeTimeout uses 10s.
func NewWSSubscriber(id string, conn *websocket.Conn, writeTimeout time.Duration) *WSSubscriber {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &WSSubscriber{
		id:           id,
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// ID implements Subscriber.
func (s *WSSubscriber) ID() string {
	return s.id
}

// Send implements Subscriber.
func (s *WSSubscriber) Send(msg Message) error {
	return s.WriteJSON(msg)
}

// WriteJSON writes v as a JSON text frame.
func (s *WSSubscriber) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSubscriberClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

// WriteText writes a plain text frame.
func (s *WSSubscriber) WriteText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSubscriberClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close marks the subscriber closed and closes the connection. Further
// writes return ErrSubscriberClosed.
func (s *WSSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
