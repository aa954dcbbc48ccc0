package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultReconnectInterval = 10 * time.Second
	DefaultActivityTimeout   = 120 * time.Second
	DefaultPingInterval      = 30 * time.Second
	DefaultAuthdListen       = ":8082"
	DefaultTokenTTL          = 24 * time.Hour
	DefaultLogLevel          = "info"
	DefaultMetricsPath       = "/metrics"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Connection.ReconnectInterval == 0 {
		c.Connection.ReconnectInterval = DefaultReconnectInterval
	}
	if c.Connection.ActivityTimeout == 0 {
		c.Connection.ActivityTimeout = DefaultActivityTimeout
	}
	if c.Connection.PingInterval == 0 {
		c.Connection.PingInterval = DefaultPingInterval
	}
	if c.Authd.Listen == "" {
		c.Authd.Listen = DefaultAuthdListen
	}
	if c.Authd.TokenTTL == 0 {
		c.Authd.TokenTTL = DefaultTokenTTL
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
