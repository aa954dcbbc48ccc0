package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Built-in event names understood by the connection layer.
const (
	EventConnectionEstablished = "connection:established"
	EventConnectionPing        = "connection:ping"
	EventConnectionPong        = "connection:pong"
	EventConnectionError       = "connection:error"
	EventChannelSubscribe      = "channel:subscribe"
	EventChannelUnsubscribe    = "channel:unsubscribe"
)

// Envelope is a single unit of wire communication.
// It is treated as immutable once decoded.
type Envelope struct {
	// Event is the event name, always present
	Event string `json:"event"`

	// Data is the opaque payload (may be empty)
	Data json.RawMessage `json:"data,omitempty"`

	// Channel scopes the event to a channel; empty means connection-level
	Channel string `json:"channel,omitempty"`
}

// New creates an Envelope for event, marshalling data into the payload.
// A nil data value produces an envelope without a data field.
func New(event string, data interface{}) (Envelope, error) {
	env := Envelope{Event: event}
	if data == nil {
		return env, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	env.Data = raw
	return env, nil
}

// HasChannel reports whether the envelope is scoped to a channel.
func (e Envelope) HasChannel() bool {
	return e.Channel != ""
}

// DecodeData unmarshals the payload into v. String-encoded JSON payloads
// (`"data":"{\"a\":1}"`) are unwrapped first.
func (e Envelope) DecodeData(v interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.Event)
	}

	payload := bytes.TrimSpace(e.Data)
	if len(payload) > 0 && payload[0] == '"' {
		var inner string
		if err := json.Unmarshal(payload, &inner); err != nil {
			return fmt.Errorf("failed to unwrap %s data: %w", e.Event, err)
		}
		payload = []byte(inner)
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", e.Event, err)
	}
	return nil
}

// SubscriptionData is the payload of channel:subscribe and channel:unsubscribe.
type SubscriptionData struct {
	Channel     string `json:"channel"`
	Auth        string `json:"auth,omitempty"`
	ChannelData string `json:"channel_data,omitempty"`
}

// EstablishedData is the payload of connection:established.
type EstablishedData struct {
	SocketID        string `json:"socket_id"`
	ActivityTimeout int    `json:"activity_timeout,omitempty"`
}
