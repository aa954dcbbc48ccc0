package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingEvent is returned when a frame decodes but has no event name.
var ErrMissingEvent = errors.New("envelope has no event name")

// DecodeError describes a frame that could not be turned into an Envelope.
type DecodeError struct {
	Frame []byte
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed envelope (%d bytes): %v", len(e.Frame), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Encode serializes an envelope into a text frame.
func Encode(env Envelope) ([]byte, error) {
	if env.Event == "" {
		return nil, ErrMissingEvent
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses a text frame into an Envelope.
// Any failure is reported as a *DecodeError.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, &DecodeError{Frame: copyFrame(frame), Err: err}
	}
	if env.Event == "" {
		return Envelope{}, &DecodeError{Frame: copyFrame(frame), Err: ErrMissingEvent}
	}

	// Copy payload so the envelope does not alias the transport's read buffer
	if env.Data != nil {
		env.Data = append(json.RawMessage(nil), env.Data...)
	}
	return env, nil
}

func copyFrame(frame []byte) []byte {
	out := make([]byte, len(frame))
	copy(out, frame)
	return out
}
