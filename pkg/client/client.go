// Package client is the application-facing facade: it turns Options into a
// broker URL, a websocket transport and a channel authorizer, and drives a
// connection.Connection.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rmacdonaldsmith/pusher-go/pkg/auth"
	"github.com/rmacdonaldsmith/pusher-go/pkg/callback"
	"github.com/rmacdonaldsmith/pusher-go/pkg/connection"
	"github.com/rmacdonaldsmith/pusher-go/pkg/transport"
	"github.com/rs/zerolog"
)

const resubscribeTimeout = 30 * time.Second

// Client connects to one application on the broker.
type Client struct {
	appKey  string
	url     string
	options Options
	log     zerolog.Logger
	conn    *connection.Connection
}

// New creates a Client for appKey. It does not connect.
func New(appKey string, opts Options) (*Client, error) {
	if appKey == "" {
		return nil, fmt.Errorf("%w: app key is required", ErrInvalidOptions)
	}
	opts.SetDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		appKey:  appKey,
		url:     BuildURL(appKey, opts),
		options: opts,
		log:     opts.Logger.With().Str("component", "client").Str("app_key", appKey).Logger(),
	}

	tr := opts.Transport
	if tr == nil {
		ws, err := transport.New(transport.Config{ProxyURL: opts.ProxyURL, Logger: opts.Logger})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
		}
		tr = ws
	}

	authorizer, err := c.selectAuthorizer()
	if err != nil {
		return nil, err
	}

	cfg := connection.Config{
		URL:               c.url,
		Transport:         tr,
		Authorizer:        authorizer,
		Policy:            opts.Policy,
		ReconnectInterval: opts.ReconnectInterval,
		ActivityTimeout:   opts.ActivityTimeout,
		PingInterval:      opts.PingInterval,
		Observer:          opts.Observer,
		Logger:            opts.Logger,
	}
	if opts.AutoSubscribe {
		cfg.ReconnectHandler = c.resubscribe
	}

	conn, err := connection.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	c.conn = conn
	return c, nil
}

// selectAuthorizer picks, in order: an explicit Authorizer, the auth
// endpoint, local signing with the secret. No authorizer is not an error;
// protected subscriptions will fail instead.
func (c *Client) selectAuthorizer() (connection.Authorizer, error) {
	opts := c.options
	switch {
	case opts.Authorizer != nil:
		return opts.Authorizer, nil
	case opts.AuthEndpoint != "":
		a, err := auth.NewHTTPAuthorizer(auth.Config{
			Endpoint: opts.AuthEndpoint,
			Headers:  opts.AuthEndpointHeaders,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
		}
		return a, nil
	case opts.Secret != "":
		return &auth.Signer{Key: c.appKey, Secret: opts.Secret, UserData: opts.UserData}, nil
	default:
		return nil, nil
	}
}

// Connect blocks running the connection until Disconnect is called, ctx is
// cancelled or the broker closes the session cleanly.
func (c *Client) Connect(ctx context.Context) error {
	c.log.Info().Str("url", c.url).Msg("Connecting")
	return c.conn.Connect(ctx)
}

// Disconnect stops the client permanently.
func (c *Client) Disconnect() {
	c.conn.Disconnect()
}

// Subscribe subscribes to name, authorizing private and presence channels.
func (c *Client) Subscribe(ctx context.Context, name string) (*connection.Channel, error) {
	return c.conn.Subscribe(ctx, name)
}

// Unsubscribe unsubscribes from name.
func (c *Client) Unsubscribe(name string) error {
	return c.conn.Unsubscribe(name)
}

// Channel returns the named channel without subscribing.
func (c *Client) Channel(name string) *connection.Channel {
	return c.conn.Channel(name)
}

// Bind registers a connection-level callback.
func (c *Client) Bind(event string, cb callback.Callback) {
	c.conn.Bind(event, cb)
}

func (c *Client) State() connection.State { return c.conn.State() }
func (c *Client) SocketID() string        { return c.conn.SocketID() }
func (c *Client) URL() string             { return c.url }
func (c *Client) AppKey() string          { return c.appKey }

// resubscribe re-sends subscriptions after a reconnect.
func (c *Client) resubscribe() {
	ctx, cancel := context.WithTimeout(context.Background(), resubscribeTimeout)
	defer cancel()

	for _, ch := range c.conn.Channels() {
		if !ch.IsSubscribed() {
			continue
		}
		err := ch.Subscribe(ctx)
		switch {
		case err == nil:
			c.log.Info().Str("channel", ch.Name()).Msg("Resubscribed")
		case errors.Is(err, connection.ErrNotConnected):
			// Dropped again before we got here; the next reconnect retries.
			c.log.Debug().Str("channel", ch.Name()).Msg("Resubscribe skipped, not connected")
			return
		default:
			c.log.Warn().Err(err).Str("channel", ch.Name()).Msg("Resubscribe failed")
		}
	}
}
