// Package brokertest runs an in-process websocket broker that speaks the
// envelope protocol, for tests of the client, CLI and examples.
package brokertest

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rmacdonaldsmith/pusher-go/pkg/envelope"
)

// WaitTimeout bounds every blocking helper.
const WaitTimeout = 3 * time.Second

// Broker accepts websocket connections, greets each one with
// connection:established and records what clients send.
type Broker struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*Conn
	nextID   int
	accepted chan *Conn

	closeOnce sync.Once
}

// New starts a broker and registers its shutdown with t.Cleanup.
func New(t testing.TB) *Broker {
	b := &Broker{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		accepted: make(chan *Conn, 16),
	}
	b.server = httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.Close)
	return b
}

// URL returns the ws:// base URL of the broker.
func (b *Broker) URL() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http")
}

// Host returns the broker host without port.
func (b *Broker) Host() string {
	host, _, _ := net.SplitHostPort(b.server.Listener.Addr().String())
	return host
}

// Port returns the broker port.
func (b *Broker) Port() int {
	_, port, _ := net.SplitHostPort(b.server.Listener.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

// Accept waits for the next client connection.
func (b *Broker) Accept(t testing.TB) *Conn {
	t.Helper()
	select {
	case c := <-b.accepted:
		return c
	case <-time.After(WaitTimeout):
		t.Fatal("brokertest: no client connected")
		return nil
	}
}

// Connections returns how many clients have connected so far.
func (b *Broker) Connections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Publish sends event on channel to every live connection.
func (b *Broker) Publish(channel, event string, data interface{}) error {
	b.mu.Lock()
	conns := append([]*Conn(nil), b.conns...)
	b.mu.Unlock()

	for _, c := range conns {
		if c.isClosed() {
			continue
		}
		if err := c.Send(channel, event, data); err != nil {
			return err
		}
	}
	return nil
}

// Close drops every connection and stops the server.
func (b *Broker) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		conns := append([]*Conn(nil), b.conns...)
		b.mu.Unlock()

		for _, c := range conns {
			c.Drop()
		}
		b.server.Close()
	})
}

func (b *Broker) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	b.mu.Lock()
	b.nextID++
	c := &Conn{
		ws:       ws,
		SocketID: fmt.Sprintf("%d.%d", b.nextID, 1000+b.nextID),
		Request:  r.URL,
		received: make(chan envelope.Envelope, 64),
		closed:   make(chan struct{}),
	}
	b.conns = append(b.conns, c)
	b.mu.Unlock()

	established, _ := json.Marshal(envelope.EstablishedData{SocketID: c.SocketID, ActivityTimeout: 120})
	if err := c.Send("", envelope.EventConnectionEstablished, string(established)); err != nil {
		c.Drop()
		return
	}

	b.accepted <- c
	c.readLoop()
}

// Conn is the broker side of one client connection.
type Conn struct {
	ws       *websocket.Conn
	writeMu  sync.Mutex
	received chan envelope.Envelope

	closeOnce sync.Once
	closed    chan struct{}

	// SocketID is the id announced in connection:established
	SocketID string

	// Request is the URL the client connected to
	Request *url.URL
}

// Send writes an envelope to the client. A non-nil data is JSON encoded.
func (c *Conn) Send(channel, event string, data interface{}) error {
	env, err := envelope.New(event, data)
	if err != nil {
		return err
	}
	env.Channel = channel

	frame, err := envelope.Encode(env)
	if err != nil {
		return err
	}
	return c.SendRaw(string(frame))
}

// SendRaw writes an arbitrary text frame.
func (c *Conn) SendRaw(frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(frame))
}

// Expect waits for the next envelope named event, skipping others.
func (c *Conn) Expect(t testing.TB, event string) envelope.Envelope {
	t.Helper()
	deadline := time.After(WaitTimeout)
	for {
		select {
		case env := <-c.received:
			if env.Event == event {
				return env
			}
		case <-deadline:
			t.Fatalf("brokertest: no %s envelope received", event)
			return envelope.Envelope{}
		}
	}
}

// ExpectSubscribe waits for a channel:subscribe envelope and returns its data.
func (c *Conn) ExpectSubscribe(t testing.TB) envelope.SubscriptionData {
	t.Helper()
	env := c.Expect(t, envelope.EventChannelSubscribe)

	var data envelope.SubscriptionData
	if err := env.DecodeData(&data); err != nil {
		t.Fatalf("brokertest: bad subscribe payload: %v", err)
	}
	return data
}

// CloseWith sends a close frame with code and closes the connection.
func (c *Conn) CloseWith(code int, text string) {
	c.writeMu.Lock()
	c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.Drop()
}

// Drop closes the underlying connection without a close frame.
func (c *Conn) Drop() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ws.Close()
	})
}

// Done is closed when the connection ends.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Conn) readLoop() {
	defer c.Drop()

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		env, err := envelope.Decode(frame)
		if err != nil {
			continue
		}
		if env.Event == envelope.EventConnectionPing {
			c.Send("", envelope.EventConnectionPong, nil)
		}

		select {
		case c.received <- env:
		default:
		}
	}
}
