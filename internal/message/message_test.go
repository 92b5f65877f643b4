package message

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStampsConstructionTime(t *testing.T) {
	before := time.Now().Unix()
	m := New(TypePing, "ping")
	after := time.Now().Unix()

	assert.Equal(t, TypePing, m.Type)
	assert.Equal(t, `"ping"`, string(m.Payload))
	assert.GreaterOrEqual(t, m.Timestamp, before)
	assert.LessOrEqual(t, m.Timestamp, after)
	assert.False(t, m.HasClientID())
}

func TestWithClientIDCopies(t *testing.T) {
	base := New(TypePong, "pong")
	addressed := base.WithClientID(7)

	require.True(t, addressed.HasClientID())
	assert.Equal(t, uint64(7), *addressed.ClientID)
	assert.False(t, base.HasClientID(), "original message must not change")
}

func TestEncodeWireShape(t *testing.T) {
	frame, err := Encode(NewForClient(TypePong, "pong", 3))
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(frame), "\n"))
	assert.Equal(t, 1, strings.Count(string(frame), "\n"))

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(frame, &fields))
	assert.Equal(t, "pong", fields["type"])
	assert.Equal(t, "pong", fields["payload"])
	assert.Equal(t, float64(3), fields["client_id"])
	assert.Contains(t, fields, "timestamp")
}

func TestEncodeNullClientID(t *testing.T) {
	frame, err := Encode(New(TypeText, "hi"))
	require.NoError(t, err)
	assert.Contains(t, string(frame), `"client_id":null`)
}

func TestEncodeNil(t *testing.T) {
	_, err := Encode(nil)
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		msg     *Message
		payload string
	}{
		{"string payload", New(TypeEcho, "hello world"), `"hello world"`},
		{"structured payload", New(TypeEcho, map[string]interface{}{"a": []int{1, 2}, "b": "x"}), `{"a":[1,2],"b":"x"}`},
		{"unicode payload", NewForClient(TypeChat, "grüße ✓", 42), `"grüße ✓"`},
		{"nil payload", New(TypeDisconnect, nil), `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Encode(tt.msg)
			require.NoError(t, err)

			decoded, err := Decode(frame)
			require.NoError(t, err)

			assert.Equal(t, tt.msg.Type, decoded.Type)
			assert.Equal(t, tt.payload, string(decoded.Payload))
			assert.Equal(t, tt.msg.ClientID, decoded.ClientID)
		})
	}
}

func TestDecodeKeepsPayloadBytes(t *testing.T) {
	m, err := Decode([]byte(`{"type":"echo","payload":{"n":1.50,"s":"x"},"client_id":9}`))
	require.NoError(t, err)
	assert.Equal(t, `{"n":1.50,"s":"x"}`, string(m.Payload))
	require.NotNil(t, m.ClientID)
	assert.Equal(t, uint64(9), *m.ClientID)
}

func TestDecodeIgnoresWireTimestamp(t *testing.T) {
	m, err := Decode([]byte(`{"type":"ping","payload":"ping","timestamp":1}`))
	require.NoError(t, err)
	assert.Greater(t, m.Timestamp, int64(1))
}

func TestDecodeErrors(t *testing.T) {
	inputs := []string{
		"hello there",
		`["not","an","object"]`,
		`"just a string"`,
		`{"type":"ping"`,
		`{"type":5}`,
		`{"type":"ping"} trailing`,
		"",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := Decode([]byte(in))
			require.Error(t, err)

			var decodeErr *DecodeError
			assert.True(t, errors.As(err, &decodeErr))
		})
	}
}

func TestParseFallsBackToText(t *testing.T) {
	inputs := map[string]string{
		"hello there":        "hello there",
		"  padded line \r\n": "padded line",
		"{broken json":       "{broken json",
		"[1,2,3]":            "[1,2,3]",
	}

	for in, want := range inputs {
		m := Parse([]byte(in))
		require.NotNil(t, m)
		assert.Equal(t, TypeText, m.Type)
		assert.Equal(t, want, m.PayloadString())
		assert.False(t, m.HasClientID())
	}
}

func TestParseJSON(t *testing.T) {
	m := Parse([]byte(`{"type":"ping","payload":"ping"}` + "\n"))
	assert.Equal(t, TypePing, m.Type)
	assert.Equal(t, "ping", m.PayloadString())
}

func TestPayloadString(t *testing.T) {
	assert.Equal(t, "", (&Message{}).PayloadString())
	assert.Equal(t, "", (&Message{Payload: json.RawMessage("null")}).PayloadString())
	assert.Equal(t, "42", (&Message{Payload: json.RawMessage("42")}).PayloadString())
	assert.Equal(t, `{"a":1}`, (&Message{Payload: json.RawMessage(`{"a":1}`)}).PayloadString())
	assert.Equal(t, "[echo] hi", New(TypeEcho, "hi").String())
}

func TestNewRawCarriesPayloadVerbatim(t *testing.T) {
	raw := json.RawMessage(`{"nested":[1,"two"]}`)
	m := NewRaw(TypeEchoResp, raw)
	raw[2] = 'X'

	assert.Equal(t, `{"nested":[1,"two"]}`, string(m.Payload))

	frame, err := Encode(NewRaw(TypeEchoResp, nil))
	require.NoError(t, err)
	assert.Contains(t, string(frame), `"payload":null`)
}
