package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Validate checks that required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.App.Key == "" {
		return errors.New("app.key is required")
	}
	if c.Connection.Port < 0 || c.Connection.Port > 65535 {
		return fmt.Errorf("connection.port must be between 0 and 65535, got %d", c.Connection.Port)
	}
	if c.Connection.ReconnectInterval < 0 {
		return errors.New("connection.reconnect_interval must not be negative")
	}
	if c.Connection.ActivityTimeout < 0 {
		return errors.New("connection.activity_timeout must not be negative")
	}
	if c.Auth.UserData != nil {
		if _, ok := c.Auth.UserData["user_id"]; !ok {
			return errors.New("auth.user_data.user_id is required when user_data is set")
		}
	}
	if c.Auth.Endpoint != "" && !strings.HasPrefix(c.Auth.Endpoint, "http://") && !strings.HasPrefix(c.Auth.Endpoint, "https://") {
		return fmt.Errorf("auth.endpoint must be an http(s) URL, got %q", c.Auth.Endpoint)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// ValidateAuthd checks the settings pusher-authd needs.
func (c *Config) ValidateAuthd() error {
	if c.App.Key == "" {
		return errors.New("app.key is required")
	}
	if c.App.Secret == "" {
		return errors.New("app.secret is required")
	}
	if !c.Authd.NoAuth && c.Authd.JWTSecret == "" {
		return errors.New("authd.jwt_secret is required unless authd.no_auth is set")
	}
	if c.Authd.TokenTTL < 0 {
		return errors.New("authd.token_ttl must not be negative")
	}
	return nil
}
