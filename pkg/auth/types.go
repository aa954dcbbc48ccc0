package auth

import "time"

// Config holds HTTPAuthorizer configuration
type Config struct {
	// Endpoint is the URL channel authorization requests are POSTed to
	Endpoint string

	// Headers are added to every authorization request (e.g. a bearer token)
	Headers map[string]string

	// Timeout for HTTP requests
	Timeout time.Duration
}

// SetDefaults sets reasonable default values for the config
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// AuthResponse is the body returned by a channel authorization endpoint
type AuthResponse struct {
	Auth        string `json:"auth"`
	ChannelData string `json:"channel_data,omitempty"`
}

// LoginRequest asks an auth server for a bearer token
type LoginRequest struct {
	UserID string `json:"userId"`
}

// LoginResponse carries a bearer token for the auth endpoint
type LoginResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ErrorResponse is the JSON error body returned by the auth server
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}
