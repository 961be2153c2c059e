package streaming

import (
	"encoding/json"

	"github.com/cornerculling/extension/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeMapLoad      = "map_load"
	TypePerfSample   = "perf_sample"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload announces the extension instance.
type StartSessionPayload struct {
	Session *core.Session `json:"session"`
}

// MapLoadPayload carries one map load with its GeoJSON footprint.
type MapLoadPayload struct {
	MapLoad   *core.MapLoad   `json:"mapLoad"`
	Footprint json.RawMessage `json:"footprint,omitempty"`
}
