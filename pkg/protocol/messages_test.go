package protocol_test

import (
	"testing"

	"github.com/aretw0/toolbroker/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	frame, err := protocol.Encode(protocol.EventPing, protocol.Ping{Timestamp: 42})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"ping","data":{"timestamp":42}}`, string(frame))

	env, err := protocol.Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, protocol.EventPing, env.Event)

	var ping protocol.Ping
	require.NoError(t, protocol.Unmarshal(env.Event, env.Data, &ping))
	assert.Equal(t, int64(42), ping.Timestamp)
}

func TestEncode_NilPayload(t *testing.T) {
	frame, err := protocol.Encode(protocol.EventToolsCleared, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"tools:cleared"}`, string(frame))
}

func TestDecode_Malformed(t *testing.T) {
	_, err := protocol.Decode([]byte(`{not json`))
	assert.Error(t, err)

	_, err = protocol.Decode([]byte(`{"data":{}}`))
	assert.ErrorContains(t, err, "missing event")
}

func TestUnmarshal_EmptyData(t *testing.T) {
	var reg protocol.RegisterProvider
	require.NoError(t, protocol.Unmarshal(protocol.EventProjectRegister, nil, &reg))
	assert.Empty(t, reg.ProjectID)

	err := protocol.Unmarshal(protocol.EventPong, []byte(`{"toolNames":"nope"}`), &protocol.Pong{})
	assert.ErrorContains(t, err, "invalid pong payload")
}

func TestRegisterTool_WireShape(t *testing.T) {
	var msg protocol.RegisterTool
	data := []byte(`{"projectId":"p1","tool":{"name":"echo","description":"d","inputSchema":{"type":"object"}}}`)
	require.NoError(t, protocol.Unmarshal(protocol.EventToolRegister, data, &msg))
	assert.Equal(t, "p1", msg.ProjectID)
	assert.Equal(t, "echo", msg.Tool.Name)
	assert.Equal(t, "object", msg.Tool.InputSchema["type"])
}
