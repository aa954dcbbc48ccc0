// Package envelope defines the wire envelope exchanged with the broker and the
// codec that maps it to and from transport text frames.
//
// Every frame is a single JSON object:
//
//	{ "event": "<string>", "data": <any>, "channel": "<string, optional>" }
//
// The data payload is kept opaque (json.RawMessage) so the router never has to
// understand application payloads. Brokers commonly double-encode data as a
// JSON string; DecodeData unwraps that form transparently.
//
// Example usage:
//
//	env, err := envelope.Decode(frame)
//	if err != nil {
//		// malformed frame, drop it
//		return
//	}
//	if env.HasChannel() {
//		routeToChannel(env.Channel, env)
//	}
package envelope
