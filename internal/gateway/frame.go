// ABOUTME: Gateway frame envelope and opcode definitions.
// ABOUTME: One Frame is one JSON envelope on the persistent connection.

package gateway

import "encoding/json"

// Opcodes on the gateway connection.
const (
	OpDispatch         = 0  // server: an event, carries t and s
	OpHeartbeat        = 1  // both: liveness ping carrying the last seen sequence
	OpIdentify         = 2  // client: authentication payload
	OpReconnect        = 7  // server: close and re-dial immediately
	OpInvalidSession   = 9  // server: re-identify after a short delay
	OpHello            = 10 // server: first frame, carries heartbeat interval
	OpHeartbeatACK     = 11 // server: heartbeat acknowledged
)

// Frame is the wire envelope: {op, d, s, t}.
type Frame struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// helloData is the payload of an OpHello frame.
type helloData struct {
	HeartbeatIntervalMS int64 `json:"heartbeat_interval"`
}

// Identify is the authentication payload sent in an OpIdentify frame.
type Identify struct {
	Token      string              `json:"token"`
	Intents    int                 `json:"intents"`
	Properties IdentifyProperties  `json:"properties"`
}

// IdentifyProperties describe the connecting client.
type IdentifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}
