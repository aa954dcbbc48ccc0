// Package transport implements connection.Transport over gorilla/websocket.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rmacdonaldsmith/pusher-go/pkg/connection"
	"github.com/rs/zerolog"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
)

// Config configures the websocket dialer.
type Config struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// ProxyURL routes the handshake through an HTTP proxy. Empty means the
	// environment proxy settings apply.
	ProxyURL string

	// Header is sent with the upgrade request
	Header http.Header

	TLSConfig *tls.Config
	Logger    zerolog.Logger
}

// SetDefaults fills unset timeouts.
func (c *Config) SetDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
}

// WebSocket dials broker connections.
type WebSocket struct {
	dialer       *websocket.Dialer
	header       http.Header
	writeTimeout time.Duration
	log          zerolog.Logger
}

var _ connection.Transport = (*WebSocket)(nil)

// New creates a WebSocket transport.
func New(cfg Config) (*WebSocket, error) {
	cfg.SetDefaults()

	dialer := &websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
		TLSClientConfig:  cfg.TLSConfig,
		Proxy:            http.ProxyFromEnvironment,
	}
	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		if proxy.Scheme == "" || proxy.Host == "" {
			return nil, fmt.Errorf("invalid proxy URL: %q", cfg.ProxyURL)
		}
		dialer.Proxy = http.ProxyURL(proxy)
	}

	return &WebSocket{
		dialer:       dialer,
		header:       cfg.Header,
		writeTimeout: cfg.WriteTimeout,
		log:          cfg.Logger.With().Str("component", "transport").Logger(),
	}, nil
}

// Open performs the websocket handshake.
func (w *WebSocket) Open(ctx context.Context, rawURL string) (connection.Handle, error) {
	conn, resp, err := w.dialer.DialContext(ctx, rawURL, w.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed (%d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	w.log.Debug().Str("url", rawURL).Msg("Websocket connected")
	return &handle{conn: conn, writeTimeout: w.writeTimeout}, nil
}

type handle struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (h *handle) NextFrame(timeout time.Duration) ([]byte, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := h.conn.SetReadDeadline(deadline); err != nil {
		return nil, h.classify(err)
	}

	_, data, err := h.conn.ReadMessage()
	if err != nil {
		return nil, h.classify(err)
	}
	return data, nil
}

func (h *handle) SendText(data []byte) error {
	if h.closed.Load() {
		return connection.ErrClosed
	}
	if err := h.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
		return err
	}
	return h.conn.WriteMessage(websocket.TextMessage, data)
}

func (h *handle) Close() error {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		// Best effort; the peer may already be gone.
		_ = h.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		h.closeErr = h.conn.Close()
	})
	return h.closeErr
}

// classify maps read errors onto the connection package's sentinels.
func (h *handle) classify(err error) error {
	if h.closed.Load() {
		return connection.ErrClosed
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if IsCleanClose(closeErr.Code) {
			return fmt.Errorf("%w: code %d %s", connection.ErrClosed, closeErr.Code, closeErr.Text)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return connection.ErrTimeout
	}
	return err
}

// IsCleanClose reports whether a close code means the broker ended the
// session on purpose and a reconnect would be refused. 1000 is a normal
// closure; 4000-4099 are protocol errors the client cannot recover from.
func IsCleanClose(code int) bool {
	return code == websocket.CloseNormalClosure || (code >= 4000 && code <= 4099)
}
