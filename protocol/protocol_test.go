package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	data, err := Encode(TypeNextCall, NextCall{Item: "42"})
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypeNextCall, env.Type)

	var call NextCall
	require.NoError(t, env.Bind(&call))
	assert.Equal(t, "42", call.Item)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"payload":{}}`))
	assert.Error(t, err, "missing type tag")
}

func TestBind_EmptyPayload(t *testing.T) {
	env, err := Decode([]byte(`{"type":"CLAIM_BINGO"}`))
	require.NoError(t, err)

	var claim ClaimBingo
	assert.Error(t, env.Bind(&claim))
}

func TestEncode_NoPayload(t *testing.T) {
	data, err := Encode(TypeGameReset, nil)
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypeGameReset, env.Type)
	assert.Empty(t, env.Payload)
}
