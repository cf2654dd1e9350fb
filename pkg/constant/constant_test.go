package constant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedisKeys(t *testing.T) {
	assert.Equal(t, "parley:online:alice", OnlineKey("alice"))
	assert.Equal(t, "parley:session:alice:5", SessionKey("alice", 5))
	assert.Equal(t, "parley:session:alice:*", SessionPattern("alice"))

	topic, ok := TopicFromChannel(TopicChannel("conv:si_a:b"))
	assert.True(t, ok)
	assert.Equal(t, "conv:si_a:b", topic)

	_, ok = TopicFromChannel(TopicChannel(""))
	assert.False(t, ok)
	_, ok = TopicFromChannel("other:topic:x")
	assert.False(t, ok)
}

func TestIsValidMsgType(t *testing.T) {
	assert.True(t, IsValidMsgType(MsgTypeFile))
	assert.False(t, IsValidMsgType(MsgTypeSystem))
}
