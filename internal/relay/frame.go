package relay

import (
	"bytes"
	"encoding/json"
)

// Agent event names.
const (
	EventAuth  = "auth"
	EventLogs  = "logs"
	EventStats = "stats"
)

// Envelope is the agent wire format: {"event": "...", "payload": ...}.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type authPayload struct {
	Key string `json:"key"`
}

type subscribePayload struct {
	ContainerID string `json:"containerId"`
}

func encodeEnvelope(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Payload: raw})
}

// decodeEvent reads the event name and payload of an agent frame. Keys
// match exactly; encoding/json's case-insensitive field matching would let
// "EVENT" or "Event" stand in for "event".
func decodeEvent(data []byte) (string, json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", nil, false
	}
	raw, ok := fields["event"]
	if !ok {
		return "", nil, false
	}
	var event string
	if err := json.Unmarshal(raw, &event); err != nil {
		return "", nil, false
	}
	return event, fields["payload"], true
}

// FilterStats extracts the payload of a stats event. It reports false for
// anything else, including frames that are not JSON objects and stats
// events without a payload. The payload is returned in compact form.
func FilterStats(data []byte) ([]byte, bool) {
	event, payload, ok := decodeEvent(data)
	if !ok || event != EventStats || len(payload) == 0 {
		return nil, false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}
