package connection

import (
	"context"
	"time"
)

// Transport opens handles to the broker.
type Transport interface {
	// Open performs the transport handshake against url.
	Open(ctx context.Context, url string) (Handle, error)
}

// Handle is a single live transport connection.
type Handle interface {
	// NextFrame blocks until the next text frame arrives. It returns
	// ErrTimeout if nothing arrives within timeout (timeout <= 0 waits
	// forever), ErrClosed after a clean close, and any other error for I/O
	// failures.
	NextFrame(timeout time.Duration) ([]byte, error)

	// SendText writes one text frame. Callers serialize writes.
	SendText(data []byte) error

	// Close releases the handle. It must be safe to call more than once and
	// concurrently with NextFrame, which it unblocks.
	Close() error
}

// Authorization is the result of authorizing a protected channel.
type Authorization struct {
	Auth        string `json:"auth"`
	ChannelData string `json:"channel_data,omitempty"`
}

// Authorizer grants access to private and presence channels.
type Authorizer interface {
	Authorize(ctx context.Context, channel, socketID string) (Authorization, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, channel, socketID string) (Authorization, error)

// Authorize calls f.
func (f AuthorizerFunc) Authorize(ctx context.Context, channel, socketID string) (Authorization, error) {
	return f(ctx, channel, socketID)
}

// Clock supplies the reconnect delay timer.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// After waits for the duration to elapse.
func (SystemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Observer receives lifecycle notifications. Implementations must be fast and
// must not call back into the Connection.
type Observer interface {
	StateChanged(from, to State)
	FrameReceived(event string)
	DecodeFailed()
	ReconnectScheduled(delay time.Duration)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) StateChanged(from, to State)            {}
func (NopObserver) FrameReceived(event string)             {}
func (NopObserver) DecodeFailed()                          {}
func (NopObserver) ReconnectScheduled(delay time.Duration) {}
