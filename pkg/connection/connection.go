package connection

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rmacdonaldsmith/pusher-go/pkg/callback"
	"github.com/rmacdonaldsmith/pusher-go/pkg/envelope"
	"github.com/rs/zerolog"
)

// Connection maintains one long-lived broker connection and dispatches the
// envelopes it receives.
type Connection struct {
	cfg    Config
	log    zerolog.Logger
	events *callback.Registry

	mu             sync.RWMutex
	state          State
	handle         Handle
	socketID       string
	receiveTimeout time.Duration
	needsReconnect bool
	disconnecting  bool
	running        bool
	attempts       int
	channels       map[string]*Channel

	// Transitions queued under mu and delivered in order under notifyMu
	pending  []transition
	notifyMu sync.Mutex

	// Write serialization
	writeMu sync.Mutex

	done chan struct{}
}

type transition struct {
	from, to State
}

// New creates a Connection in the Initialized state.
func New(cfg Config) (*Connection, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger.With().Str("component", "connection").Logger()
	return &Connection{
		cfg:      cfg,
		log:      logger,
		events:   callback.NewRegistry(cfg.Spawner, logger),
		state:    Initialized,
		channels: make(map[string]*Channel),
		done:     make(chan struct{}),
	}, nil
}

// Connect opens the transport and runs the receive loop, reconnecting after
// failures until Disconnect is called or ctx is cancelled. Transport and
// timeout failures are absorbed into the state machine, so Connect returns
// nil after Disconnect or a clean broker close, and ctx.Err() after
// cancellation. Cancelling ctx disconnects the Connection.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.disconnecting {
		c.mu.Unlock()
		return ErrDisconnected
	}
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, c.Disconnect)
	defer stop()

	for {
		cause := c.session(ctx)

		if c.disconnectRequested() {
			return ctx.Err()
		}
		if errors.Is(cause, ErrClosed) {
			c.log.Info().Err(cause).Msg("Connection closed by broker, not reconnecting")
			c.Disconnect()
			return nil
		}
		if !c.cfg.Policy.ShouldRetry(cause, false) {
			c.log.Info().Err(cause).Msg("Reconnect policy gave up")
			c.Disconnect()
			return nil
		}

		c.mu.Lock()
		attempt := c.attempts
		c.attempts++
		c.mu.Unlock()

		delay := c.cfg.Policy.Delay(attempt)
		c.log.Info().
			Err(cause).
			Dur("delay", delay).
			Int("attempt", attempt+1).
			Msg("Reconnecting after delay")
		c.cfg.Observer.ReconnectScheduled(delay)

		select {
		case <-c.cfg.Clock.After(delay):
		case <-c.done:
			return ctx.Err()
		}
	}
}

// Disconnect closes the live handle and stops any further reconnects. It is
// idempotent and the resulting Disconnected state is terminal.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	if c.disconnecting {
		c.mu.Unlock()
		return
	}
	c.disconnecting = true
	handle := c.handle
	c.enqueueTransition(c.state, Disconnected)
	c.state = Disconnected
	c.mu.Unlock()

	close(c.done)
	c.flushTransitions()

	if handle != nil {
		if err := handle.Close(); err != nil {
			c.log.Debug().Err(err).Msg("Failed to close transport handle")
		}
	}
	c.log.Info().Msg("Disconnected")
}

// Send encodes env and writes it as one frame. It fails with ErrNotConnected
// when there is no live handle; write failures are returned as *TransportError
// and are not retried.
func (c *Connection) Send(env envelope.Envelope) error {
	c.mu.RLock()
	handle := c.handle
	c.mu.RUnlock()

	if handle == nil {
		return ErrNotConnected
	}

	frame, err := envelope.Encode(env)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := handle.SendText(frame); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// SendPing sends a connection:ping keepalive. A failed write is logged and not
// returned; only a missing handle is reported.
func (c *Connection) SendPing() error {
	return c.sendBestEffort(envelope.EventConnectionPing)
}

// Bind registers a callback for a connection-level event.
func (c *Connection) Bind(event string, cb callback.Callback) {
	c.events.Bind(event, cb)
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the state is Connected.
func (c *Connection) IsConnected() bool {
	return c.State() == Connected
}

// SocketID returns the id assigned by the broker, or "" before
// connection:established has been received on the current handle.
func (c *Connection) SocketID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.socketID
}

// Channel returns the named channel, creating it on first use. Channels live
// as long as the Connection.
func (c *Connection) Channel(name string) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.channels[name]
	if !ok {
		ch = newChannel(name, c, c.cfg.Spawner, c.log)
		c.channels[name] = ch
	}
	return ch
}

// LookupChannel returns the named channel if it was created before.
func (c *Connection) LookupChannel(name string) (*Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.channels[name]
	return ch, ok
}

// Channels returns all known channels sorted by name.
func (c *Connection) Channels() []*Channel {
	c.mu.RLock()
	channels := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		channels = append(channels, ch)
	}
	c.mu.RUnlock()

	sort.Slice(channels, func(i, j int) bool {
		return channels[i].Name() < channels[j].Name()
	})
	return channels
}

// Subscribe creates the channel if needed and subscribes to it.
func (c *Connection) Subscribe(ctx context.Context, name string) (*Channel, error) {
	ch := c.Channel(name)
	if err := ch.Subscribe(ctx); err != nil {
		return ch, err
	}
	return ch, nil
}

// Unsubscribe sends the unsubscribe envelope for name.
func (c *Connection) Unsubscribe(name string) error {
	return c.Channel(name).Unsubscribe()
}

// session runs one transport handle from open to termination and returns the
// termination cause.
func (c *Connection) session(ctx context.Context) error {
	if !c.setState(Connecting) {
		return ErrDisconnected
	}

	handle, err := c.open(ctx)
	if err != nil {
		cause := &TransportError{Op: "open", Err: err}
		c.fail(Failed, cause)
		return cause
	}

	if !c.attach(handle) {
		handle.Close()
		return ErrDisconnected
	}
	defer c.detach(handle)

	c.setState(Connected)

	stopKeepalive := c.startKeepalive()
	defer stopKeepalive()

	if err := c.SendPing(); err != nil {
		c.log.Debug().Err(err).Msg("Initial ping not sent")
	}

	return c.receive(handle)
}

// open dials the transport. Disconnect aborts a pending handshake.
func (c *Connection) open(ctx context.Context) (Handle, error) {
	openCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-c.done:
			cancel()
		case <-openCtx.Done():
		}
	}()

	return c.cfg.Transport.Open(openCtx, c.cfg.URL)
}

// receive consumes frames until the handle closes or fails.
func (c *Connection) receive(handle Handle) error {
	for {
		frame, err := handle.NextFrame(c.activityTimeout())
		if err != nil {
			switch {
			case c.disconnectRequested():
				return ErrDisconnected
			case errors.Is(err, ErrTimeout):
				c.fail(Unavailable, err)
				return err
			case errors.Is(err, ErrClosed):
				// Clean close; terminal regardless of earlier failures
				return err
			default:
				cause := &TransportError{Op: "read", Err: err}
				c.fail(Failed, cause)
				return cause
			}
		}

		c.handleFrame(frame)
	}
}

// handleFrame decodes one frame and routes it. Malformed frames are dropped.
func (c *Connection) handleFrame(frame []byte) {
	env, err := envelope.Decode(frame)
	if err != nil {
		c.log.Warn().Err(err).Msg("Dropping malformed frame")
		c.cfg.Observer.DecodeFailed()
		return
	}
	c.cfg.Observer.FrameReceived(env.Event)

	if env.HasChannel() {
		ch, ok := c.LookupChannel(env.Channel)
		if !ok {
			c.log.Debug().
				Str("channel", env.Channel).
				Str("event", env.Event).
				Msg("Event for unknown channel")
			return
		}
		ch.dispatch(env.Event, env.Data)
		return
	}

	switch env.Event {
	case envelope.EventConnectionEstablished:
		c.handleEstablished(env)
	case envelope.EventConnectionPing:
		if err := c.sendBestEffort(envelope.EventConnectionPong); err != nil {
			c.log.Debug().Err(err).Msg("Pong not sent")
		}
	}

	c.events.Dispatch(env.Event, env.Data)
}

// handleEstablished captures the socket id and completes a pending reconnect.
func (c *Connection) handleEstablished(env envelope.Envelope) {
	var data envelope.EstablishedData
	if err := env.DecodeData(&data); err != nil {
		c.log.Warn().Err(err).Msg("Invalid connection:established payload")
		return
	}

	c.mu.Lock()
	c.socketID = data.SocketID
	// The broker may ask for a shorter activity timeout, never a longer one
	if broker := time.Duration(data.ActivityTimeout) * time.Second; broker > 0 && broker < c.cfg.ActivityTimeout {
		c.receiveTimeout = broker
	}
	reconnected := c.needsReconnect
	c.needsReconnect = false
	c.attempts = 0
	c.mu.Unlock()

	c.log.Info().Str("socket_id", data.SocketID).Bool("reconnect", reconnected).Msg("Connection established")

	if reconnected && c.cfg.ReconnectHandler != nil {
		c.cfg.Spawner.Spawn(c.isolate("reconnect handler", c.cfg.ReconnectHandler))
	}
}

// startKeepalive sends periodic pings until the returned stop func is called.
func (c *Connection) startKeepalive() func() {
	if c.cfg.PingInterval < 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.SendPing(); err != nil {
					return
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

func (c *Connection) sendBestEffort(event string) error {
	err := c.Send(envelope.Envelope{Event: event})
	if errors.Is(err, ErrNotConnected) {
		return err
	}
	if err != nil {
		c.log.Warn().Err(err).Str("event", event).Msg("Keepalive write failed")
	}
	return nil
}

// setState moves to state unless the connection is already disconnected.
// It reports whether the transition was applied.
func (c *Connection) setState(state State) bool {
	c.mu.Lock()
	from := c.state
	if from == Disconnected {
		c.mu.Unlock()
		return state == Disconnected
	}
	c.enqueueTransition(from, state)
	c.state = state
	c.mu.Unlock()

	c.flushTransitions()
	return true
}

// enqueueTransition must be called with c.mu held.
func (c *Connection) enqueueTransition(from, to State) {
	if from != to {
		c.pending = append(c.pending, transition{from: from, to: to})
	}
}

// flushTransitions delivers queued transitions to the observer in the order
// they were applied, whichever goroutine applied them.
func (c *Connection) flushTransitions() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.mu.Unlock()
			return
		}
		next := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()

		c.log.Info().Stringer("from", next.from).Stringer("to", next.to).Msg("State changed")
		c.cfg.Observer.StateChanged(next.from, next.to)
	}
}

// fail records a failure that should trigger the reconnect path.
func (c *Connection) fail(state State, cause error) {
	c.mu.Lock()
	if !c.disconnecting {
		c.needsReconnect = true
	}
	c.mu.Unlock()

	c.log.Warn().Err(cause).Stringer("state", state).Msg("Connection failure")
	c.setState(state)
}

// attach installs a freshly opened handle. It refuses if a disconnect was
// requested while the handle was opening.
func (c *Connection) attach(handle Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disconnecting {
		return false
	}
	if c.handle != nil {
		// Previous handle must be detached before a new one is assigned
		panic("connection: attaching a handle while another is live")
	}
	c.handle = handle
	c.receiveTimeout = c.cfg.ActivityTimeout
	return true
}

// detach drops and closes handle.
func (c *Connection) detach(handle Handle) {
	c.mu.Lock()
	if c.handle == handle {
		c.handle = nil
		c.socketID = ""
	}
	c.mu.Unlock()

	if err := handle.Close(); err != nil {
		c.log.Debug().Err(err).Msg("Failed to close transport handle")
	}
}

func (c *Connection) disconnectRequested() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.disconnecting
}

func (c *Connection) activityTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.receiveTimeout
}

func (c *Connection) authorizer() Authorizer {
	return c.cfg.Authorizer
}

// isolate wraps fn so a panic is logged rather than propagated.
func (c *Connection) isolate(name string, fn func()) func() {
	return func() {
		defer func() {
			if rec := recover(); rec != nil {
				c.log.Error().Str("task", name).Interface("panic", rec).Msg("Task panicked")
			}
		}()
		fn()
	}
}
