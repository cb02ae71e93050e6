package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	m := NewMessage("UPDATE_STATS", map[string]int{"points": 10})
	assert.NotEmpty(t, m.ID)
	assert.False(t, m.RequiresResponse)
	assert.False(t, m.Timestamp.IsZero())

	r := NewRequest("GET_STATS", nil)
	assert.True(t, r.RequiresResponse)
	assert.NotEqual(t, m.ID, r.ID)

	s := r.WithSender("/user/Coach/c1")
	assert.Equal(t, "/user/Coach/c1", s.SenderPath)
	assert.Empty(t, r.SenderPath)
}

func TestMessageWireNames(t *testing.T) {
	m := NewRequest("GET_STATS", "x")
	m.ReceiverPath = "/user/Player/p1"

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"messageId", "receiverPath", "messageType", "payload", "timestamp", "requiresResponse"} {
		assert.Contains(t, raw, key)
	}
}

func TestDecodePayload(t *testing.T) {
	type points struct {
		Points int `json:"points"`
	}

	t.Run("same type", func(t *testing.T) {
		got, err := DecodePayload[points](NewMessage("T", points{Points: 3}))
		require.NoError(t, err)
		assert.Equal(t, 3, got.Points)
	})

	t.Run("wire map", func(t *testing.T) {
		var m Message
		require.NoError(t, json.Unmarshal([]byte(`{"messageType":"T","payload":{"points":10}}`), &m))
		got, err := DecodePayload[points](m)
		require.NoError(t, err)
		assert.Equal(t, 10, got.Points)
	})

	t.Run("wire number", func(t *testing.T) {
		got, err := DecodePayload[int](NewMessage("T", float64(7)))
		require.NoError(t, err)
		assert.Equal(t, 7, got)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := DecodePayload[points](NewMessage("T", nil))
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("mismatch", func(t *testing.T) {
		_, err := DecodePayload[points](NewMessage("T", "not an object"))
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestParseDispatchMode(t *testing.T) {
	m, err := ParseDispatchMode("")
	require.NoError(t, err)
	assert.Equal(t, DispatchMailbox, m)

	m, err = ParseDispatchMode("Unordered")
	require.NoError(t, err)
	assert.Equal(t, DispatchUnordered, m)

	_, err = ParseDispatchMode("random")
	assert.Error(t, err)
}
