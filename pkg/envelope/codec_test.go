package envelope

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("connection_level_event", func(t *testing.T) {
		env, err := Decode([]byte(`{"event":"connection:established","data":{"socket_id":"123.456"}}`))
		require.NoError(t, err)
		assert.Equal(t, EventConnectionEstablished, env.Event)
		assert.False(t, env.HasChannel())
		assert.JSONEq(t, `{"socket_id":"123.456"}`, string(env.Data))
	})

	t.Run("channel_event", func(t *testing.T) {
		env, err := Decode([]byte(`{"event":"my-event","channel":"demo","data":"hello"}`))
		require.NoError(t, err)
		assert.Equal(t, "my-event", env.Event)
		assert.True(t, env.HasChannel())
		assert.Equal(t, "demo", env.Channel)
	})

	t.Run("event_without_data", func(t *testing.T) {
		env, err := Decode([]byte(`{"event":"connection:pong"}`))
		require.NoError(t, err)
		assert.Equal(t, EventConnectionPong, env.Event)
		assert.Empty(t, env.Data)
	})

	t.Run("non_json_frame", func(t *testing.T) {
		_, err := Decode([]byte("not json at all"))
		require.Error(t, err)

		var decodeErr *DecodeError
		require.True(t, errors.As(err, &decodeErr))
		assert.Equal(t, []byte("not json at all"), decodeErr.Frame)
	})

	t.Run("missing_event_name", func(t *testing.T) {
		_, err := Decode([]byte(`{"data":{}}`))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMissingEvent))
	})

	t.Run("channel_of_wrong_type", func(t *testing.T) {
		_, err := Decode([]byte(`{"event":"x","channel":42}`))
		assert.Error(t, err)
	})

	t.Run("payload_does_not_alias_frame", func(t *testing.T) {
		frame := []byte(`{"event":"x","data":{"a":1}}`)
		env, err := Decode(frame)
		require.NoError(t, err)

		for i := range frame {
			frame[i] = ' '
		}
		assert.JSONEq(t, `{"a":1}`, string(env.Data))
	})
}

func TestEncode(t *testing.T) {
	t.Run("subscribe_envelope", func(t *testing.T) {
		env, err := New(EventChannelSubscribe, SubscriptionData{Channel: "demo"})
		require.NoError(t, err)

		frame, err := Encode(env)
		require.NoError(t, err)
		assert.JSONEq(t, `{"event":"channel:subscribe","data":{"channel":"demo"}}`, string(frame))
	})

	t.Run("ping_has_no_data_or_channel", func(t *testing.T) {
		frame, err := Encode(Envelope{Event: EventConnectionPing})
		require.NoError(t, err)
		assert.JSONEq(t, `{"event":"connection:ping"}`, string(frame))
	})

	t.Run("missing_event_name", func(t *testing.T) {
		_, err := Encode(Envelope{Channel: "demo"})
		assert.True(t, errors.Is(err, ErrMissingEvent))
	})

	t.Run("unmarshalable_payload", func(t *testing.T) {
		_, err := New("bad", make(chan int))
		assert.Error(t, err)
	})
}

func TestDecodeData(t *testing.T) {
	t.Run("object_payload", func(t *testing.T) {
		env := Envelope{Event: EventConnectionEstablished, Data: json.RawMessage(`{"socket_id":"1.2"}`)}

		var data EstablishedData
		require.NoError(t, env.DecodeData(&data))
		assert.Equal(t, "1.2", data.SocketID)
	})

	t.Run("string_encoded_payload", func(t *testing.T) {
		env := Envelope{
			Event: EventConnectionEstablished,
			Data:  json.RawMessage(`"{\"socket_id\":\"9.8\",\"activity_timeout\":120}"`),
		}

		var data EstablishedData
		require.NoError(t, env.DecodeData(&data))
		assert.Equal(t, "9.8", data.SocketID)
		assert.Equal(t, 120, data.ActivityTimeout)
	})

	t.Run("empty_payload", func(t *testing.T) {
		var data EstablishedData
		assert.Error(t, Envelope{Event: "x"}.DecodeData(&data))
	})
}
