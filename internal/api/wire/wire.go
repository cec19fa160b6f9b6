// Package wire defines the JSON frames exchanged on the /stream websocket
// and the REST payloads shared by the server and the remote host client.
package wire

import (
	"time"

	"github.com/bytedance/sonic"
)

// Frame types.
const (
	TypeWrite  = "write"
	TypeResize = "resize"
	TypePing   = "ping"
	TypeOutput = "output"
	TypeExit   = "exit"
	TypePong   = "pong"
	TypeError  = "error"
)

// Frame is one websocket message. Data is raw terminal bytes and travels
// base64 encoded.
type Frame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Data      []byte `json:"data,omitempty"`
	Rows      int    `json:"rows,omitempty"`
	Cols      int    `json:"cols,omitempty"`
	Code      *int   `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Encode marshals f.
func Encode(f Frame) ([]byte, error) {
	return sonic.Marshal(&f)
}

// Decode unmarshals one frame.
func Decode(b []byte) (Frame, error) {
	var f Frame
	err := sonic.Unmarshal(b, &f)
	return f, err
}

// CreateRequest is the body of POST /sessions.
type CreateRequest struct {
	Cwd   string `json:"cwd"`
	Rows  int    `json:"rows" binding:"min=0,max=65535"`
	Cols  int    `json:"cols" binding:"min=0,max=65535"`
	Shell string `json:"shell"`
}

// CreateResponse is returned by POST /sessions.
type CreateResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// ActiveResponse is returned by GET /sessions/:id/active.
type ActiveResponse struct {
	Active bool `json:"active"`
}

// InputRequest is the body of POST /sessions/:id/input.
type InputRequest struct {
	Data []byte `json:"data"`
}

// ResizeRequest is the body of POST /sessions/:id/resize.
type ResizeRequest struct {
	Rows int `json:"rows" binding:"required,min=1,max=65535"`
	Cols int `json:"cols" binding:"required,min=1,max=65535"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}
