package connection

import (
	"errors"
	"time"

	"github.com/rmacdonaldsmith/pusher-go/pkg/callback"
	"github.com/rs/zerolog"
)

// Default timings.
const (
	DefaultReconnectInterval = 10 * time.Second
	DefaultActivityTimeout   = 120 * time.Second
	DefaultPingInterval      = 30 * time.Second
)

// Config holds the collaborators and timings of a Connection.
type Config struct {
	// URL is the fully built broker URL
	URL string

	// Transport opens handles (required)
	Transport Transport

	// Authorizer is consulted before subscribing to protected channels (optional)
	Authorizer Authorizer

	// Policy decides whether and when to reconnect.
	// Default: FixedIntervalPolicy with ReconnectInterval
	Policy ReconnectPolicy

	// ReconnectInterval is the constant delay between attempts
	ReconnectInterval time.Duration

	// ActivityTimeout is the receive timeout; no inbound data for this long
	// marks the connection unavailable
	ActivityTimeout time.Duration

	// PingInterval is the keepalive period. Negative disables periodic pings;
	// one ping is still sent right after the transport opens.
	PingInterval time.Duration

	// ReconnectHandler runs after connection:established completes a reconnect
	ReconnectHandler func()

	Clock    Clock
	Spawner  callback.Spawner
	Observer Observer
	Logger   zerolog.Logger
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
	if c.ActivityTimeout <= 0 {
		c.ActivityTimeout = DefaultActivityTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.Policy == nil {
		c.Policy = NewFixedIntervalPolicy(c.ReconnectInterval)
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Spawner == nil {
		c.Spawner = callback.GoSpawner{}
	}
	if c.Observer == nil {
		c.Observer = NopObserver{}
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("URL is required")
	}
	if c.Transport == nil {
		return errors.New("transport is required")
	}
	return nil
}
