package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rmacdonaldsmith/pusher-go/internal/brokertest"
	"github.com/rmacdonaldsmith/pusher-go/pkg/auth"
	"github.com/rmacdonaldsmith/pusher-go/pkg/connection"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "app-key"

func brokerOptions(b *brokertest.Broker) Options {
	return Options{
		Insecure:          true,
		CustomHost:        b.Host(),
		Port:              b.Port(),
		PingInterval:      -1,
		ReconnectInterval: 20 * time.Millisecond,
		Logger:            zerolog.Nop(),
	}
}

// start runs Connect in the background and waits for connection:established.
func start(t *testing.T, c *Client, b *brokertest.Broker) (*brokertest.Conn, <-chan error) {
	t.Helper()

	result := make(chan error, 1)
	go func() {
		result <- c.Connect(context.Background())
	}()

	conn := b.Accept(t)
	waitSocketID(t, c, conn.SocketID)
	return conn, result
}

func waitSocketID(t *testing.T, c *Client, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.SocketID() == id
	}, brokertest.WaitTimeout, 5*time.Millisecond)
}

func stop(t *testing.T, c *Client, result <-chan error) {
	t.Helper()
	c.Disconnect()
	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(brokertest.WaitTimeout):
		t.Fatal("Connect did not return after Disconnect")
	}
}

func TestNew(t *testing.T) {
	c, err := New(testKey, Options{Cluster: "eu"})
	require.NoError(t, err)

	assert.Equal(t, testKey, c.AppKey())
	assert.Equal(t, BuildURL(testKey, Options{Cluster: "eu"}), c.URL())
	assert.Equal(t, connection.Initialized, c.State())
	assert.Empty(t, c.SocketID())
}

func TestNew_Invalid(t *testing.T) {
	_, err := New("", Options{})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = New(testKey, Options{AuthEndpoint: "ftp://nope"})
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = New(testKey, Options{ProxyURL: "nope"})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestClient_PublicChannel(t *testing.T) {
	b := brokertest.New(t)
	c, err := New(testKey, brokerOptions(b))
	require.NoError(t, err)

	established := make(chan struct{}, 1)
	c.Bind("connection:established", func(json.RawMessage) { established <- struct{}{} })

	conn, result := start(t, c, b)
	assert.Equal(t, "/app/"+testKey, conn.Request.Path)
	assert.Equal(t, ClientName, conn.Request.Query().Get("client"))
	assert.Equal(t, connection.Connected, c.State())

	select {
	case <-established:
	case <-time.After(brokertest.WaitTimeout):
		t.Fatal("connection:established not dispatched")
	}

	ch, err := c.Subscribe(context.Background(), "orders")
	require.NoError(t, err)
	assert.True(t, ch.IsSubscribed())

	sub := conn.ExpectSubscribe(t)
	assert.Equal(t, "orders", sub.Channel)
	assert.Empty(t, sub.Auth)

	created := make(chan json.RawMessage, 1)
	ch.Bind("created", func(data json.RawMessage) { created <- data })

	require.NoError(t, b.Publish("orders", "created", map[string]int{"id": 7}))
	select {
	case data := <-created:
		assert.JSONEq(t, `{"id":7}`, string(data))
	case <-time.After(brokertest.WaitTimeout):
		t.Fatal("channel event not dispatched")
	}

	require.NoError(t, c.Unsubscribe("orders"))
	assert.False(t, ch.IsSubscribed())
	conn.Expect(t, "channel:unsubscribe")

	stop(t, c, result)
	assert.Equal(t, connection.Disconnected, c.State())
}

func TestClient_InitialPing(t *testing.T) {
	b := brokertest.New(t)
	c, err := New(testKey, brokerOptions(b))
	require.NoError(t, err)

	conn, result := start(t, c, b)
	conn.Expect(t, "connection:ping")

	stop(t, c, result)
}

func TestClient_PrivateChannelWithSecret(t *testing.T) {
	b := brokertest.New(t)
	opts := brokerOptions(b)
	opts.Secret = "app-secret"

	c, err := New(testKey, opts)
	require.NoError(t, err)
	conn, result := start(t, c, b)

	_, err = c.Subscribe(context.Background(), "private-orders")
	require.NoError(t, err)

	sub := conn.ExpectSubscribe(t)
	assert.Equal(t, "private-orders", sub.Channel)
	assert.Equal(t, auth.Sign(testKey, "app-secret", conn.SocketID, "private-orders", ""), sub.Auth)

	stop(t, c, result)
}

func TestClient_PresenceChannelWithSecret(t *testing.T) {
	b := brokertest.New(t)
	opts := brokerOptions(b)
	opts.Secret = "app-secret"
	opts.UserData = map[string]interface{}{"user_id": "u1"}

	c, err := New(testKey, opts)
	require.NoError(t, err)
	conn, result := start(t, c, b)

	_, err = c.Subscribe(context.Background(), "presence-room")
	require.NoError(t, err)

	sub := conn.ExpectSubscribe(t)
	assert.JSONEq(t, `{"user_id":"u1"}`, sub.ChannelData)
	assert.Equal(t, auth.Sign(testKey, "app-secret", conn.SocketID, "presence-room", sub.ChannelData), sub.Auth)

	stop(t, c, result)
}

func TestClient_PrivateChannelWithAuthEndpoint(t *testing.T) {
	authServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		r.ParseForm()
		json.NewEncoder(w).Encode(auth.AuthResponse{Auth: "remote:" + r.PostForm.Get("socket_id")})
	}))
	defer authServer.Close()

	b := brokertest.New(t)
	opts := brokerOptions(b)
	opts.Secret = "ignored"
	opts.AuthEndpoint = authServer.URL
	opts.AuthEndpointHeaders = map[string]string{"Authorization": "Bearer token"}

	c, err := New(testKey, opts)
	require.NoError(t, err)
	conn, result := start(t, c, b)

	_, err = c.Subscribe(context.Background(), "private-orders")
	require.NoError(t, err)
	assert.Equal(t, "remote:"+conn.SocketID, conn.ExpectSubscribe(t).Auth)

	stop(t, c, result)
}

func TestClient_PrivateChannelWithoutAuthorizer(t *testing.T) {
	b := brokertest.New(t)
	c, err := New(testKey, brokerOptions(b))
	require.NoError(t, err)
	_, result := start(t, c, b)

	ch, err := c.Subscribe(context.Background(), "private-orders")
	assert.ErrorIs(t, err, connection.ErrSubscriptionFailed)
	assert.ErrorIs(t, err, connection.ErrAuthorizerRequired)
	assert.False(t, ch.IsSubscribed())

	stop(t, c, result)
}

func TestClient_AutoSubscribeAfterReconnect(t *testing.T) {
	b := brokertest.New(t)
	opts := brokerOptions(b)
	opts.Secret = "app-secret"
	opts.AutoSubscribe = true

	c, err := New(testKey, opts)
	require.NoError(t, err)
	first, result := start(t, c, b)

	_, err = c.Subscribe(context.Background(), "orders")
	require.NoError(t, err)
	_, err = c.Subscribe(context.Background(), "private-orders")
	require.NoError(t, err)
	_, err = c.Subscribe(context.Background(), "dropped")
	require.NoError(t, err)
	require.NoError(t, c.Unsubscribe("dropped"))

	first.Drop()

	second := b.Accept(t)
	waitSocketID(t, c, second.SocketID)

	got := map[string]string{}
	for i := 0; i < 2; i++ {
		sub := second.ExpectSubscribe(t)
		got[sub.Channel] = sub.Auth
	}
	assert.Equal(t, map[string]string{
		"orders":         "",
		"private-orders": auth.Sign(testKey, "app-secret", second.SocketID, "private-orders", ""),
	}, got)

	stop(t, c, result)
	assert.Equal(t, 2, b.Connections())
}

func TestClient_CleanBrokerClose(t *testing.T) {
	b := brokertest.New(t)
	c, err := New(testKey, brokerOptions(b))
	require.NoError(t, err)
	conn, result := start(t, c, b)

	conn.CloseWith(4001, "application does not exist")

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(brokertest.WaitTimeout):
		t.Fatal("Connect did not return after clean close")
	}
	assert.Equal(t, connection.Disconnected, c.State())
	assert.Equal(t, 1, b.Connections())
}

func TestClient_ReconnectAfterAbnormalClose(t *testing.T) {
	b := brokertest.New(t)
	c, err := New(testKey, brokerOptions(b))
	require.NoError(t, err)
	first, result := start(t, c, b)

	first.CloseWith(websocket.CloseGoingAway, "restarting")

	second := b.Accept(t)
	waitSocketID(t, c, second.SocketID)
	assert.Equal(t, connection.Connected, c.State())

	stop(t, c, result)
}

func TestClient_ContextCancel(t *testing.T) {
	b := brokertest.New(t)
	c, err := New(testKey, brokerOptions(b))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- c.Connect(ctx) }()

	conn := b.Accept(t)
	waitSocketID(t, c, conn.SocketID)
	cancel()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(brokertest.WaitTimeout):
		t.Fatal("Connect did not return after cancel")
	}
	assert.Equal(t, connection.Disconnected, c.State())
}
