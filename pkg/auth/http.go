package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rmacdonaldsmith/pusher-go/pkg/connection"
)

// APIError is returned when an auth server answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// HTTPAuthorizer authorizes channels by POSTing socket_id and channel_name
// to an application endpoint.
type HTTPAuthorizer struct {
	config     Config
	httpClient *http.Client
	endpoint   *url.URL
}

var _ connection.Authorizer = (*HTTPAuthorizer)(nil)

// NewHTTPAuthorizer creates an authorizer for the configured endpoint
func NewHTTPAuthorizer(config Config) (*HTTPAuthorizer, error) {
	config.SetDefaults()

	if config.Endpoint == "" {
		return nil, fmt.Errorf("Endpoint is required")
	}
	endpoint, err := url.Parse(config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid Endpoint: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("invalid Endpoint: unsupported scheme %q", endpoint.Scheme)
	}

	return &HTTPAuthorizer{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		endpoint:   endpoint,
	}, nil
}

// Authorize requests a signature for channel on behalf of socketID
func (a *HTTPAuthorizer) Authorize(ctx context.Context, channel, socketID string) (connection.Authorization, error) {
	form := url.Values{}
	form.Set("socket_id", socketID)
	form.Set("channel_name", channel)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return connection.Authorization{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}

	var resp AuthResponse
	if err := do(a.httpClient, req, &resp); err != nil {
		return connection.Authorization{}, fmt.Errorf("channel authorization failed: %w", err)
	}
	if resp.Auth == "" {
		return connection.Authorization{}, fmt.Errorf("channel authorization failed: response has no auth field")
	}

	return connection.Authorization{Auth: resp.Auth, ChannelData: resp.ChannelData}, nil
}

// RequestToken logs in to an auth server and returns a bearer token for its
// authorization endpoint.
func RequestToken(ctx context.Context, serverURL, userID string) (*LoginResponse, error) {
	base, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	loginURL := base.ResolveReference(&url.URL{Path: "/auth/login"})

	body, err := json.Marshal(LoginRequest{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp LoginResponse
	if err := do(http.DefaultClient, req, &resp); err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	return &resp, nil
}

// do executes req and decodes a JSON response into respBody
func do(client *http.Client, req *http.Request, respBody interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil || errResp.Error == "" {
			return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(bodyBytes))}
		}
		msg := errResp.Error
		if errResp.Message != "" {
			msg += " - " + errResp.Message
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if respBody != nil {
		if err := json.Unmarshal(bodyBytes, respBody); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
