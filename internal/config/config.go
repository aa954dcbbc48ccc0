// Package config loads the YAML configuration shared by pusher-cli and
// pusher-authd.
package config

import (
	"time"

	"github.com/rmacdonaldsmith/pusher-go/pkg/client"
	"github.com/rs/zerolog"
)

// Config is the root of the configuration file.
type Config struct {
	App        AppConfig        `yaml:"app"`
	Connection ConnectionConfig `yaml:"connection"`
	Auth       AuthConfig       `yaml:"auth"`
	Authd      AuthdConfig      `yaml:"authd"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// AppConfig identifies the application on the broker.
type AppConfig struct {
	Key     string `yaml:"key"`
	Secret  string `yaml:"secret"`
	Cluster string `yaml:"cluster"`
}

// ConnectionConfig tunes the broker connection.
type ConnectionConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	Insecure          bool          `yaml:"insecure"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	ActivityTimeout   time.Duration `yaml:"activity_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	AutoSubscribe     bool          `yaml:"auto_subscribe"`
	ProxyURL          string        `yaml:"proxy_url"`
}

// AuthConfig configures channel authorization on the client side.
type AuthConfig struct {
	Endpoint string                 `yaml:"endpoint"`
	Headers  map[string]string      `yaml:"headers"`
	UserData map[string]interface{} `yaml:"user_data"`
}

// AuthdConfig configures the authorization daemon.
type AuthdConfig struct {
	Listen    string        `yaml:"listen"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	NoAuth    bool          `yaml:"no_auth"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig exposes Prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// ClientOptions converts the file settings into client options.
func (c *Config) ClientOptions(logger zerolog.Logger) client.Options {
	return client.Options{
		Cluster:             c.App.Cluster,
		Insecure:            c.Connection.Insecure,
		CustomHost:          c.Connection.Host,
		Port:                c.Connection.Port,
		Secret:              c.App.Secret,
		AuthEndpoint:        c.Auth.Endpoint,
		AuthEndpointHeaders: c.Auth.Headers,
		UserData:            c.Auth.UserData,
		ReconnectInterval:   c.Connection.ReconnectInterval,
		ActivityTimeout:     c.Connection.ActivityTimeout,
		PingInterval:        c.Connection.PingInterval,
		AutoSubscribe:       c.Connection.AutoSubscribe,
		ProxyURL:            c.Connection.ProxyURL,
		Logger:              logger,
	}
}
