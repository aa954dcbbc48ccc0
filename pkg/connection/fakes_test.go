package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rmacdonaldsmith/pusher-go/pkg/callback"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

type frameResult struct {
	data []byte
	err  error
}

// fakeHandle is a scripted transport handle.
type fakeHandle struct {
	frames    chan frameResult
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	sent     []string
	sendErr  error
	sentCh   chan string
	timeouts []time.Duration

	inFlight    atomic.Int32
	overlapping atomic.Bool
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{
		frames: make(chan frameResult, 16),
		closed: make(chan struct{}),
		sentCh: make(chan string, 64),
	}
}

func (h *fakeHandle) NextFrame(timeout time.Duration) ([]byte, error) {
	h.mu.Lock()
	h.timeouts = append(h.timeouts, timeout)
	h.mu.Unlock()

	select {
	case r := <-h.frames:
		return r.data, r.err
	case <-h.closed:
		return nil, ErrClosed
	}
}

func (h *fakeHandle) SendText(data []byte) error {
	if h.inFlight.Add(1) > 1 {
		h.overlapping.Store(true)
	}
	defer h.inFlight.Add(-1)

	select {
	case <-h.closed:
		return errors.New("write on closed handle")
	default:
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sendErr != nil {
		return h.sendErr
	}
	h.sent = append(h.sent, string(data))
	select {
	case h.sentCh <- string(data):
	default:
	}
	return nil
}

func (h *fakeHandle) Close() error {
	h.closeOnce.Do(func() { close(h.closed) })
	return nil
}

func (h *fakeHandle) push(frame string) {
	h.frames <- frameResult{data: []byte(frame)}
}

func (h *fakeHandle) fail(err error) {
	h.frames <- frameResult{err: err}
}

func (h *fakeHandle) setSendErr(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendErr = err
}

// lastTimeout is the receive timeout of the most recent NextFrame call.
func (h *fakeHandle) lastTimeout() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.timeouts) == 0 {
		return 0
	}
	return h.timeouts[len(h.timeouts)-1]
}

func (h *fakeHandle) isClosed() bool {
	select {
	case <-h.closed:
		return true
	default:
		return false
	}
}

func (h *fakeHandle) waitSent(t *testing.T) string {
	t.Helper()
	select {
	case frame := <-h.sentCh:
		return frame
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a sent frame")
		return ""
	}
}

// fakeTransport hands out fakeHandles and can be told to fail opens.
type fakeTransport struct {
	mu        sync.Mutex
	opens     int
	failNext  int
	openErr   error
	lastURL   string
	attempted chan *fakeHandle // nil handle for failed opens
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{attempted: make(chan *fakeHandle, 16)}
}

func (t *fakeTransport) Open(ctx context.Context, url string) (Handle, error) {
	t.mu.Lock()
	t.opens++
	t.lastURL = url
	if t.failNext > 0 {
		t.failNext--
		err := t.openErr
		t.mu.Unlock()
		t.attempted <- nil
		return nil, err
	}
	t.mu.Unlock()

	h := newFakeHandle()
	t.attempted <- h
	return h, nil
}

func (t *fakeTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

func (t *fakeTransport) waitOpen(tb *testing.T) *fakeHandle {
	tb.Helper()
	select {
	case h := <-t.attempted:
		return h
	case <-time.After(waitTimeout):
		tb.Fatal("timed out waiting for transport open")
		return nil
	}
}

// manualClock records requested delays and fires only when told to.
type manualClock struct {
	requests chan clockRequest
}

type clockRequest struct {
	delay time.Duration
	fire  chan time.Time
}

func newManualClock() *manualClock {
	return &manualClock{requests: make(chan clockRequest, 16)}
}

func (c *manualClock) After(d time.Duration) <-chan time.Time {
	fire := make(chan time.Time, 1)
	c.requests <- clockRequest{delay: d, fire: fire}
	return fire
}

func (c *manualClock) wait(t *testing.T) clockRequest {
	t.Helper()
	select {
	case req := <-c.requests:
		return req
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for reconnect delay")
		return clockRequest{}
	}
}

func (c *manualClock) pending() int {
	return len(c.requests)
}

// recordingObserver counts notifications.
type recordingObserver struct {
	mu             sync.Mutex
	transitions    []State
	frames         []string
	decodeFailures int
	delays         []time.Duration
}

func (o *recordingObserver) StateChanged(from, to State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, to)
}

func (o *recordingObserver) FrameReceived(event string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames = append(o.frames, event)
}

func (o *recordingObserver) DecodeFailed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.decodeFailures++
}

func (o *recordingObserver) ReconnectScheduled(delay time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delays = append(o.delays, delay)
}

func (o *recordingObserver) decodeFailureCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.decodeFailures
}

func (o *recordingObserver) states() []State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]State(nil), o.transitions...)
}

// blockingTransport never completes a handshake; Open returns when ctx ends.
type blockingTransport struct {
	entered chan struct{}
}

func (t *blockingTransport) Open(ctx context.Context, url string) (Handle, error) {
	close(t.entered)
	<-ctx.Done()
	return nil, ctx.Err()
}

// gatedObserver holds the Connected notification until release is closed.
type gatedObserver struct {
	recordingObserver
	entered chan struct{}
	release chan struct{}
}

func (o *gatedObserver) StateChanged(from, to State) {
	if to == Connected {
		close(o.entered)
		<-o.release
	}
	o.recordingObserver.StateChanged(from, to)
}

type harness struct {
	conn      *Connection
	transport *fakeTransport
	clock     *manualClock
	observer  *recordingObserver
	result    chan error
}

// newHarness builds a Connection over fakes. Callbacks run inline on the
// receive goroutine unless the config override swaps the spawner.
func newHarness(t *testing.T, override func(*Config)) *harness {
	t.Helper()

	h := &harness{
		transport: newFakeTransport(),
		clock:     newManualClock(),
		observer:  &recordingObserver{},
	}
	cfg := Config{
		URL:               "ws://broker.test/app/key",
		Transport:         h.transport,
		ReconnectInterval: 10 * time.Second,
		PingInterval:      -1,
		Clock:             h.clock,
		Spawner:           callback.InlineSpawner{},
		Observer:          h.observer,
		Logger:            zerolog.Nop(),
	}
	if override != nil {
		override(&cfg)
	}

	conn, err := New(cfg)
	require.NoError(t, err)
	h.conn = conn
	return h
}

func (h *harness) start(ctx context.Context) {
	h.result = make(chan error, 1)
	go func() {
		h.result <- h.conn.Connect(ctx)
	}()
}

// connect starts Connect and returns the first handle once the initial ping
// has been written.
func (h *harness) connect(t *testing.T) *fakeHandle {
	t.Helper()
	h.start(context.Background())
	handle := h.transport.waitOpen(t)
	require.NotNil(t, handle)
	require.JSONEq(t, `{"event":"connection:ping"}`, handle.waitSent(t))
	return handle
}

func (h *harness) waitResult(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.result:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("Connect did not return")
		return nil
	}
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.conn.Disconnect()
	h.waitResult(t)
}

func (h *harness) waitState(t *testing.T, state State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.conn.State() == state
	}, waitTimeout, 5*time.Millisecond, "expected state %s, have %s", state, h.conn.State())
}
