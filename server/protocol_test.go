package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientMessageEvent(t *testing.T) {
	raw := []byte(`["EVENT",{"id":"` + zeros64 + `","pubkey":"` + zeros64 + `","created_at":1,"kind":1,"tags":[],"content":"hi","sig":"` + zeros128 + `"}]`)
	msg, err := parseClientMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, msgEvent, msg.Kind)
	assert.NotNil(t, msg.Event)
}

func TestParseClientMessageReq(t *testing.T) {
	raw := []byte(`["REQ","sub1",{"kinds":[1]}]`)
	msg, err := parseClientMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, msgReq, msg.Kind)
	assert.Equal(t, "sub1", msg.SubID)
	assert.Len(t, msg.Filters, 1)
}

func TestParseClientMessageReqDefaultsToEmptyFilter(t *testing.T) {
	raw := []byte(`["REQ","sub1"]`)
	msg, err := parseClientMessage(raw)
	require.NoError(t, err)
	assert.Len(t, msg.Filters, 1)
}

func TestParseClientMessageClose(t *testing.T) {
	raw := []byte(`["CLOSE","sub1"]`)
	msg, err := parseClientMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, msgClose, msg.Kind)
	assert.Equal(t, "sub1", msg.SubID)
}

func TestParseClientMessageRejectsUnknownCommand(t *testing.T) {
	_, err := parseClientMessage([]byte(`["BOGUS"]`))
	assert.Error(t, err)
}

func TestNoticeMessageWireShape(t *testing.T) {
	msg, err := noticeMessage("hello")
	require.NoError(t, err)
	assert.Equal(t, `["NOTICE","hello"]`, string(msg))
}

const zeros64 = "0000000000000000000000000000000000000000000000000000000000000000"[:64]
const zeros128 = "00000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000"[:128]
