package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// readWait must exceed the client's ping interval.
	readWait = 5 * time.Minute
)

// WriteTyped sends a strongly-typed response payload over the WebSocket.
// Callers must not write concurrently.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// ErrorFor builds an ErrorResponse.
func ErrorFor(code, msg string) ErrorResponse {
	return ErrorResponse{Event: EventError, Code: code, Error: msg}
}

// ReadRequest reads one client message, extending the read deadline.
func ReadRequest(conn *websocket.Conn) (Request, error) {
	var req Request
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	err := conn.ReadJSON(&req)
	return req, err
}
