package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rmacdonaldsmith/pusher-go/pkg/connection"
)

// ErrUserDataRequired is returned when a presence channel is signed without
// user data.
var ErrUserDataRequired = errors.New("presence channels require user data")

// Sign returns the "key:signature" auth string for a channel subscription.
// The signature is the hex HMAC-SHA256 of "socketID:channel", with
// ":channelData" appended when channelData is non-empty.
func Sign(key, secret, socketID, channel, channelData string) string {
	payload := socketID + ":" + channel
	if channelData != "" {
		payload += ":" + channelData
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return key + ":" + hex.EncodeToString(mac.Sum(nil))
}

// Signer authorizes channels locally with the application secret. It is
// meant for trusted environments; browsers and shipped binaries should use
// HTTPAuthorizer instead.
type Signer struct {
	Key    string
	Secret string

	// UserData is serialized as channel_data for presence channels and must
	// carry a user_id.
	UserData map[string]interface{}
}

var _ connection.Authorizer = (*Signer)(nil)

// Authorize signs the subscription for channel.
func (s *Signer) Authorize(ctx context.Context, channel, socketID string) (connection.Authorization, error) {
	if s.Key == "" || s.Secret == "" {
		return connection.Authorization{}, errors.New("signer requires key and secret")
	}

	var channelData string
	if strings.HasPrefix(channel, connection.PresencePrefix) {
		if _, ok := s.UserData["user_id"]; !ok {
			return connection.Authorization{}, ErrUserDataRequired
		}
		data, err := json.Marshal(s.UserData)
		if err != nil {
			return connection.Authorization{}, fmt.Errorf("failed to encode user data: %w", err)
		}
		channelData = string(data)
	}

	return connection.Authorization{
		Auth:        Sign(s.Key, s.Secret, socketID, channel, channelData),
		ChannelData: channelData,
	}, nil
}
