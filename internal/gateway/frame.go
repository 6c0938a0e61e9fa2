package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/ourchat/ourchat-server/internal/message"
)

// Opcode identifies the kind of frame exchanged over the gateway
// WebSocket connection.
type Opcode int

const (
	OpcodeHello        Opcode = 0 // server -> client, sent on connect
	OpcodeIdentify     Opcode = 1 // client -> server, JWT bearer token
	OpcodeHeartbeat    Opcode = 2 // client -> server
	OpcodeHeartbeatACK Opcode = 3 // server -> client
	OpcodeFetchMsgs    Opcode = 4 // client -> server, starts/resumes the fetch_msgs stream
	OpcodeDispatch     Opcode = 5 // server -> client, one delivered message
	OpcodeError        Opcode = 6 // server -> client, fatal protocol error
)

// Frame is the wire-format structure for every WebSocket message the
// gateway exchanges. Dispatch frames carry the message id they deliver so
// the client can advance its fetch_msgs cursor; identify/fetch_msgs frames
// carry their request payload in Data.
type Frame struct {
	Op    Opcode                   `json:"op"`
	MsgID *int64                   `json:"msg_id,omitempty"`
	Type  *message.RespondEventType `json:"t,omitempty"`
	Data  json.RawMessage          `json:"d,omitempty"`
}

// helloData is the payload of the Hello frame.
type helloData struct {
	HeartbeatIntervalMS int `json:"heartbeat_interval_ms"`
}

// NewHelloFrame returns a serialised Hello frame advertising the expected
// heartbeat interval in milliseconds.
func NewHelloFrame(heartbeatIntervalMS int) ([]byte, error) {
	data, err := json.Marshal(helloData{HeartbeatIntervalMS: heartbeatIntervalMS})
	if err != nil {
		return nil, fmt.Errorf("marshal hello data: %w", err)
	}
	return json.Marshal(Frame{Op: OpcodeHello, Data: data})
}

// NewHeartbeatACKFrame returns a serialised HeartbeatACK frame.
func NewHeartbeatACKFrame() ([]byte, error) {
	return json.Marshal(Frame{Op: OpcodeHeartbeatACK})
}

// NewDispatchFrame returns a serialised Dispatch frame carrying one
// delivered message.
func NewDispatchFrame(msgID int64, eventType message.RespondEventType, data json.RawMessage) ([]byte, error) {
	return json.Marshal(Frame{Op: OpcodeDispatch, MsgID: &msgID, Type: &eventType, Data: data})
}

// NewDispatchFrameNoID returns a serialised Dispatch frame for an envelope
// with no durable message id (e.g. a recall notice republished verbatim).
func NewDispatchFrameNoID(eventType message.RespondEventType, data json.RawMessage) ([]byte, error) {
	return json.Marshal(Frame{Op: OpcodeDispatch, Type: &eventType, Data: data})
}

// errorData is the payload of an Error frame.
type errorData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewErrorFrame returns a serialised Error frame describing a fatal
// protocol-level failure.
func NewErrorFrame(code int, message string) ([]byte, error) {
	data, err := json.Marshal(errorData{Code: code, Message: message})
	if err != nil {
		return nil, fmt.Errorf("marshal error data: %w", err)
	}
	return json.Marshal(Frame{Op: OpcodeError, Data: data})
}

// identifyData is the payload of a client's Identify frame.
type identifyData struct {
	Token string `json:"token"`
}

// fetchMsgsData is the payload of a client's FetchMsgs frame.
type fetchMsgsData struct {
	SinceID int64 `json:"since_id"`
}
