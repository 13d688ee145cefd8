package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// readWait must exceed the client heartbeat interval.
	readWait = 2 * time.Minute
	// MaxMessageSize caps one inbound frame; a full submit fits comfortably.
	MaxMessageSize = 256 << 10
)

// Prepare applies the read limit and deadline to a fresh connection.
func Prepare(conn *websocket.Conn) {
	conn.SetReadLimit(MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteEvent sends a successful Reply.
func WriteEvent(conn *websocket.Conn, event Event, reqID string, data any) error {
	return WriteTyped(conn, Reply{Event: event, ReqID: reqID, Data: data})
}

// WriteError sends an error Reply carrying an API error code.
func WriteError(conn *websocket.Conn, reqID, code, errMsg string) error {
	return WriteTyped(conn, Reply{Event: EventError, ReqID: reqID, Code: code, Error: errMsg})
}

// ReadMessage reads one text frame and extends the read deadline.
func ReadMessage(conn *websocket.Conn) ([]byte, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	return data, nil
}
