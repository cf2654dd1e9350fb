package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/parley/pkg/event"
)

func TestGenDirectConversationId(t *testing.T) {
	assert.Equal(t, "si_alice:bob", GenDirectConversationId("bob", "alice"))
	assert.Equal(t, GenDirectConversationId("x_1", "y_2"), GenDirectConversationId("y_2", "x_1"))

	a, b, ok := DirectPeers("si_u___1:u___2")
	require.True(t, ok)
	assert.Equal(t, "u___1", a)
	assert.Equal(t, "u___2", b)

	_, _, ok = DirectPeers("sg_123")
	assert.False(t, ok)
	_, _, ok = DirectPeers("si_alone")
	assert.False(t, ok)
}

func TestToConversationInfo_PeerUserId(t *testing.T) {
	conv := &Conversation{Id: GenDirectConversationId("a", "b"), Kind: 1}
	assert.Equal(t, "b", conv.ToConversationInfo("a", 0).PeerUserId)
	assert.Equal(t, "a", conv.ToConversationInfo("b", 3).PeerUserId)
	assert.Equal(t, int64(3), conv.ToConversationInfo("b", 3).UnreadCount)

	group := &Conversation{Id: GenGroupConversationId("9"), Kind: 2}
	assert.Empty(t, group.ToConversationInfo("a", 0).PeerUserId)
}

func TestAggregateReactions(t *testing.T) {
	rows := []*Reaction{
		{UserId: "carol", Emoji: "👍", CreatedAt: 10},
		{UserId: "alice", Emoji: "👍", CreatedAt: 30},
		{UserId: "bob", Emoji: "🎉", CreatedAt: 20},
	}
	aggs := AggregateReactions(rows, "alice")
	require.Len(t, aggs, 2)

	assert.Equal(t, "👍", aggs[0].Emoji)
	assert.Equal(t, 2, aggs[0].Count)
	assert.Equal(t, []string{"alice", "carol"}, aggs[0].ReactorIds)
	assert.True(t, aggs[0].ViewerHasReacted)

	assert.Equal(t, "🎉", aggs[1].Emoji)
	assert.Equal(t, 1, aggs[1].Count)
	assert.False(t, aggs[1].ViewerHasReacted)

	assert.Empty(t, AggregateReactions(nil, "alice"))
}

func TestToMessageInfo_HidesAttachmentOnDeleted(t *testing.T) {
	att := &Attachment{Handle: "h1", FileName: "f.png"}
	msg := &Message{Id: "1", ConversationId: "c", SenderId: "a", CreatedAt: 5}

	info := msg.ToMessageInfo(&User{Nickname: "Alice", Avatar: "a.png"}, att, nil)
	require.NotNil(t, info.Attachment)
	assert.Equal(t, "Alice", info.SenderDisplayName)
	assert.Equal(t, "a.png", info.AvatarUrl)
	assert.NotNil(t, info.Reactions)

	msg.IsDeleted = true
	deleted := msg.ToMessageInfo(nil, att, []event.Reaction{{Emoji: "👍", Count: 1, ReactorIds: []string{"b"}}})
	assert.Nil(t, deleted.Attachment)
	assert.Empty(t, deleted.Reactions)
}
