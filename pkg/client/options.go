package client

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rmacdonaldsmith/pusher-go/pkg/connection"
	"github.com/rs/zerolog"
)

// Identification sent in the connection URL query.
const (
	ClientName = "pusher-go"
	Version    = "0.1.0"
	Protocol   = 7
)

// DefaultHost is used when neither a cluster nor a custom host is given.
const DefaultHost = "ws.pusherapp.com"

// ErrInvalidOptions is wrapped by every option validation failure.
var ErrInvalidOptions = errors.New("invalid client options")

// Options configures a Client. The zero value connects securely to
// DefaultHost with a fixed 10s reconnect interval.
type Options struct {
	// Cluster selects ws-<cluster>.pusher.com
	Cluster string

	// Insecure uses ws:// instead of wss://
	Insecure bool

	// CustomHost overrides the cluster-derived host
	CustomHost string

	// Port defaults to 443 (secure) or 80
	Port int

	// Secret enables local signing of private and presence channels
	Secret string

	// AuthEndpoint is POSTed to for channel authorization and takes
	// precedence over Secret
	AuthEndpoint        string
	AuthEndpointHeaders map[string]string

	// UserData is sent as channel_data for presence channels when signing
	// locally. Must contain "user_id".
	UserData map[string]interface{}

	ReconnectInterval time.Duration
	ActivityTimeout   time.Duration
	PingInterval      time.Duration

	// AutoSubscribe re-subscribes every subscribed channel after a reconnect
	AutoSubscribe bool

	// ProxyURL routes the websocket handshake through an HTTP proxy
	ProxyURL string

	// Authorizer overrides AuthEndpoint and Secret
	Authorizer connection.Authorizer

	// Policy overrides the fixed-interval reconnect policy
	Policy connection.ReconnectPolicy

	// Transport overrides the websocket transport
	Transport connection.Transport

	Observer connection.Observer
	Logger   zerolog.Logger
}

// Host returns the broker host the options resolve to.
func (o *Options) Host() string {
	switch {
	case o.CustomHost != "":
		return o.CustomHost
	case o.Cluster != "":
		return fmt.Sprintf("ws-%s.pusher.com", o.Cluster)
	default:
		return DefaultHost
	}
}

// SetDefaults fills the port from the scheme.
func (o *Options) SetDefaults() {
	if o.Port == 0 {
		if o.Insecure {
			o.Port = 80
		} else {
			o.Port = 443
		}
	}
}

// Validate checks option consistency.
func (o *Options) Validate() error {
	if o.Port < 0 || o.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidOptions, o.Port)
	}
	if o.ReconnectInterval < 0 {
		return fmt.Errorf("%w: negative reconnect interval", ErrInvalidOptions)
	}
	if o.ActivityTimeout < 0 {
		return fmt.Errorf("%w: negative activity timeout", ErrInvalidOptions)
	}
	if o.UserData != nil {
		if _, ok := o.UserData["user_id"]; !ok {
			return fmt.Errorf("%w: user data must contain user_id", ErrInvalidOptions)
		}
	}
	return nil
}

// BuildURL returns the broker URL for appKey.
func BuildURL(appKey string, opts Options) string {
	opts.SetDefaults()

	scheme := "wss"
	if opts.Insecure {
		scheme = "ws"
	}
	return fmt.Sprintf("%s://%s/app/%s?client=%s&version=%s&protocol=%d",
		scheme,
		net.JoinHostPort(opts.Host(), strconv.Itoa(opts.Port)),
		appKey,
		ClientName,
		Version,
		Protocol,
	)
}

// OptionsFromMap builds Options from snake_case keys, as found in loosely
// typed configuration sources. Unknown keys and mistyped values are errors.
// reconnect_interval is in seconds.
func OptionsFromMap(m map[string]interface{}) (Options, error) {
	var opts Options
	var proxyHost string
	var proxyPort int

	for key, value := range m {
		var err error
		switch key {
		case "cluster":
			opts.Cluster, err = asString(key, value)
		case "secure":
			var secure bool
			secure, err = asBool(key, value)
			opts.Insecure = !secure
		case "secret":
			opts.Secret, err = asString(key, value)
		case "auth_endpoint":
			opts.AuthEndpoint, err = asString(key, value)
		case "auth_endpoint_headers":
			opts.AuthEndpointHeaders, err = asStringMap(key, value)
		case "user_data":
			var data map[string]string
			data, err = asStringMap(key, value)
			if err == nil && data != nil {
				opts.UserData = make(map[string]interface{}, len(data))
				for k, v := range data {
					opts.UserData[k] = v
				}
			}
		case "reconnect_interval":
			var seconds int
			seconds, err = asInt(key, value)
			opts.ReconnectInterval = time.Duration(seconds) * time.Second
		case "custom_host":
			opts.CustomHost, err = asString(key, value)
		case "port":
			opts.Port, err = asInt(key, value)
		case "auto_sub":
			opts.AutoSubscribe, err = asBool(key, value)
		case "http_proxy_host":
			proxyHost, err = asString(key, value)
		case "http_proxy_port":
			proxyPort, err = asInt(key, value)
		default:
			err = fmt.Errorf("%w: unknown option %q", ErrInvalidOptions, key)
		}
		if err != nil {
			return Options{}, err
		}
	}

	if proxyHost != "" {
		if proxyPort == 0 {
			proxyPort = 80
		}
		opts.ProxyURL = "http://" + net.JoinHostPort(proxyHost, strconv.Itoa(proxyPort))
	}
	return opts, nil
}

func asString(key string, v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidOptions, key)
	}
	return s, nil
}

func asBool(key string, v interface{}) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a bool", ErrInvalidOptions, key)
	}
	return b, nil
}

func asInt(key string, v interface{}) (int, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%w: %s must be a whole number", ErrInvalidOptions, key)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidOptions, key)
	}
}

func asStringMap(key string, v interface{}) (map[string]string, error) {
	switch m := v.(type) {
	case nil:
		return nil, nil
	case map[string]string:
		return m, nil
	case map[string]interface{}:
		out := make(map[string]string, len(m))
		for k, val := range m {
			s, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s must be a string", ErrInvalidOptions, key, k)
			}
			out[k] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s must be a map of strings", ErrInvalidOptions, key)
	}
}
