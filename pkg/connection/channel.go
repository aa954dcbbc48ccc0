package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rmacdonaldsmith/pusher-go/pkg/callback"
	"github.com/rmacdonaldsmith/pusher-go/pkg/envelope"
	"github.com/rs/zerolog"
)

// Channel name prefixes that require authorization.
const (
	PrivatePrefix  = "private-"
	PresencePrefix = "presence-"
)

// RequiresAuthorization reports whether subscribing to name needs an Authorizer.
func RequiresAuthorization(name string) bool {
	return strings.HasPrefix(name, PrivatePrefix) || strings.HasPrefix(name, PresencePrefix)
}

// channelHost is the non-owning view of the Connection a Channel sends through.
type channelHost interface {
	Send(env envelope.Envelope) error
	SocketID() string
	authorizer() Authorizer
}

// Channel is a named subscription scope with its own callback registry.
//
// The subscribed flag records local intent only: it is set once the
// subscribe envelope was written and cleared when an unsubscribe is issued.
// Broker acknowledgement is not tracked.
type Channel struct {
	name   string
	host   channelHost
	events *callback.Registry

	mu         sync.Mutex
	subscribed bool
}

func newChannel(name string, host channelHost, spawner callback.Spawner, logger zerolog.Logger) *Channel {
	return &Channel{
		name:   name,
		host:   host,
		events: callback.NewRegistry(spawner, logger.With().Str("channel", name).Logger()),
	}
}

// Name returns the channel name.
func (ch *Channel) Name() string {
	return ch.name
}

// IsSubscribed reports the local subscription intent.
func (ch *Channel) IsSubscribed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.subscribed
}

// Bind registers a callback for an event on this channel.
func (ch *Channel) Bind(event string, cb callback.Callback) {
	ch.events.Bind(event, cb)
}

// Subscribe sends channel:subscribe, authorizing protected channels first.
// The channel is marked subscribed only after the send succeeds; any failure
// is returned and leaves the flag unchanged.
func (ch *Channel) Subscribe(ctx context.Context) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	data := envelope.SubscriptionData{Channel: ch.name}
	if RequiresAuthorization(ch.name) {
		authz, err := ch.authorize(ctx)
		if err != nil {
			return err
		}
		data.Auth = authz.Auth
		data.ChannelData = authz.ChannelData
	}

	env, err := envelope.New(envelope.EventChannelSubscribe, data)
	if err != nil {
		return err
	}
	if err := ch.host.Send(env); err != nil {
		return err
	}

	ch.subscribed = true
	return nil
}

// Unsubscribe sends channel:unsubscribe and clears the subscribed flag
// whether or not the send succeeded. The send error is returned.
func (ch *Channel) Unsubscribe() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	env, err := envelope.New(envelope.EventChannelUnsubscribe, envelope.SubscriptionData{Channel: ch.name})
	if err != nil {
		return err
	}

	err = ch.host.Send(env)
	ch.subscribed = false
	return err
}

func (ch *Channel) authorize(ctx context.Context) (Authorization, error) {
	authorizer := ch.host.authorizer()
	if authorizer == nil {
		return Authorization{}, fmt.Errorf("%w: %s: %w", ErrSubscriptionFailed, ch.name, ErrAuthorizerRequired)
	}

	socketID := ch.host.SocketID()
	if socketID == "" {
		return Authorization{}, fmt.Errorf("%w: %s: %w", ErrSubscriptionFailed, ch.name, ErrNotConnected)
	}

	authz, err := authorizer.Authorize(ctx, ch.name, socketID)
	if err != nil {
		return Authorization{}, fmt.Errorf("%w: %s: %w", ErrSubscriptionFailed, ch.name, err)
	}
	return authz, nil
}

func (ch *Channel) dispatch(event string, data json.RawMessage) int {
	return ch.events.Dispatch(event, data)
}
