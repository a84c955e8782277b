package channel

import (
	"context"
	"encoding/json"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Envelope is the wire frame for both directions of a session.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Session wraps one websocket connection as a delivery channel. Writes are
// serialized; Emit is safe to call from multiple goroutines.
type Session struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func NewSession(conn *websocket.Conn) *Session {
	return &Session{
		conn:         conn,
		writeTimeout: 10 * time.Second,
	}
}

func (s *Session) Emit(event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	return wsjson.Write(ctx, s.conn, Envelope{
		Event:   event,
		Payload: body,
	})
}

// ReadRequest blocks for the next client request frame.
func (s *Session) ReadRequest(ctx context.Context) (*Envelope, error) {
	var env Envelope
	if err := wsjson.Read(ctx, s.conn, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (s *Session) Close(code websocket.StatusCode, reason string) {
	_ = s.conn.Close(code, reason)
}
