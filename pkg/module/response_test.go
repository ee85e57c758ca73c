package module

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult_NilDataHasNoDataField(t *testing.T) {
	res, err := NewResponse().AddAttribute("k", "v").Result()
	require.NoError(t, err)

	encoded, err := EncodeResult(res)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(encoded, &fields))
	assert.NotContains(t, fields, "data")
	assert.Contains(t, fields, "events")
}

func TestResult_TypedNilDataIsNoData(t *testing.T) {
	var p *struct{ A int }
	res, err := NewResponse().SetData(p).Result()
	require.NoError(t, err)
	assert.Nil(t, res.Data)
}

func TestResult_DataRoundTrip(t *testing.T) {
	msg, err := NewMessage("bank", map[string]int{"amount": 10})
	require.NoError(t, err)

	res, err := NewResponse().
		AddEvent(NewEvent("transfer").AddAttribute("to", "bob")).
		AddMessage(msg).
		SetData(map[string]any{"balance": 90, "tags": []string{"a"}}).
		Result()
	require.NoError(t, err)

	encoded, err := EncodeResult(res)
	require.NoError(t, err)
	decoded, err := DecodeResult(encoded)
	require.NoError(t, err)

	assert.JSONEq(t, string(res.Data), string(decoded.Data))
	assert.Equal(t, res.Events, decoded.Events)
	require.Len(t, decoded.Messages, 1)
	assert.Equal(t, "bank", decoded.Messages[0].Target)
	assert.JSONEq(t, `{"amount":10}`, string(decoded.Messages[0].Payload))
}

func TestDecodeResult_NullDataNormalised(t *testing.T) {
	decoded, err := DecodeResult([]byte(`{"events":[],"attributes":[],"messages":[],"data":null}`))
	require.NoError(t, err)
	assert.Nil(t, decoded.Data)

	_, err = DecodeResult([]byte(`not json`))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestNewMessage_EncodeFailure(t *testing.T) {
	_, err := NewMessage("x", make(chan int))
	assert.ErrorIs(t, err, ErrEncode)
}
