package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/event"
)

func TestSend_DirectOpensConversation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "alice", "bob")

	msg := env.send(t, "alice", "bob", "hi")
	convId := entity.GenDirectConversationId("alice", "bob")
	assert.Equal(t, convId, msg.ConversationId)
	assert.Equal(t, "nick-alice", msg.SenderDisplayName)
	assert.NotEmpty(t, msg.ClientMsgId)

	conv := env.conversation(t, convId)
	require.NotNil(t, conv)
	assert.Equal(t, int64(1), conv.MessageCount)
	require.NotNil(t, conv.LastMessageId)
	assert.Equal(t, msg.Id, *conv.LastMessageId)
	assert.Equal(t, "hi", *conv.LastMessageContent)

	parts, err := env.repos.Participant.List(ctx, nil, convId)
	require.NoError(t, err)
	assert.Len(t, parts, 2)

	list, err := env.convs.GetUserConversations(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].UnreadCount)
	assert.Equal(t, "alice", list[0].PeerUserId)

	unread, err := env.convs.GetUnreadCount(ctx, "alice", convId)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread)

	assert.ElementsMatch(t, []event.Kind{
		event.KindMessageCreated, event.KindConversationTouched, event.KindConversationAdded,
	}, env.events.kinds())
	touched := env.events.ofKind(event.KindConversationTouched)
	require.Len(t, touched, 1)
	assert.Equal(t, []string{event.GlobalTopic}, touched[0].Topics)
	assert.ElementsMatch(t, []string{"alice", "bob"}, touched[0].Audience)

	require.NoError(t, env.convs.MarkRead(ctx, "bob", convId, msg.Id))
	unread, err = env.convs.GetUnreadCount(ctx, "bob", convId)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread)

	infos, err := env.convs.GetParticipants(ctx, "alice", convId)
	require.NoError(t, err)
	for _, p := range infos {
		if p.UserId == "bob" {
			require.NotNil(t, p.LastReadAt)
			assert.Equal(t, env.clock.Now().UnixMilli(), *p.LastReadAt)
			assert.Equal(t, msg.Id, *p.LastReadMessageId)
		}
	}
	assert.Len(t, env.events.ofKind(event.KindReadReceipt), 1)
}

func TestSend_IdempotentByClientMsgId(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "alice", "bob")

	req := func() *SendMessageRequest {
		return &SendMessageRequest{RecvId: "bob", ClientMsgId: "tok-1", Content: "once"}
	}
	first, err := env.messages.Send(ctx, "alice", req())
	require.NoError(t, err)
	second, err := env.messages.Send(ctx, "alice", req())
	require.NoError(t, err)

	assert.Equal(t, first.Id, second.Id)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, int64(1), env.conversation(t, first.ConversationId).MessageCount)
	assert.Len(t, env.events.ofKind(event.KindMessageCreated), 1)
}

func TestSend_CreatedAtStrictlyIncreases(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")

	// the clock does not move between sends
	a := env.send(t, "alice", "bob", "1")
	b := env.send(t, "bob", "alice", "2")
	c := env.send(t, "alice", "bob", "3")
	assert.Less(t, a.CreatedAt, b.CreatedAt)
	assert.Less(t, b.CreatedAt, c.CreatedAt)
}

func TestSend_Rejections(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "alice", "bob", "carol")
	msg := env.send(t, "alice", "bob", "hi")

	_, err := env.messages.Send(ctx, "alice", &SendMessageRequest{RecvId: "bob"})
	assert.True(t, errcode.Is(err, errcode.ErrEmptyMessage))

	_, err = env.messages.Send(ctx, "alice", &SendMessageRequest{RecvId: "bob", ConversationId: msg.ConversationId, Content: "x"})
	assert.True(t, errcode.Is(err, errcode.ErrInvalidParam))

	_, err = env.messages.Send(ctx, "alice", &SendMessageRequest{RecvId: "ghost", Content: "x"})
	assert.True(t, errcode.Is(err, errcode.ErrUserNotFound))

	_, err = env.messages.Send(ctx, "carol", &SendMessageRequest{ConversationId: msg.ConversationId, Content: "x"})
	assert.Equal(t, errcode.ClassForbidden, errcode.ClassOf(err))

	_, err = env.messages.Send(ctx, "alice", &SendMessageRequest{ConversationId: "sg_nope", Content: "x"})
	assert.Equal(t, errcode.ClassNotFound, errcode.ClassOf(err))

	_, err = env.messages.Send(ctx, "alice", &SendMessageRequest{RecvId: "bob", Content: "x", MsgType: 99})
	assert.True(t, errcode.Is(err, errcode.ErrInvalidParam))
}

func TestSend_BlockedEitherWay(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "alice", "bob")
	msg := env.send(t, "alice", "bob", "hi")

	require.NoError(t, env.blocks.Block(ctx, "bob", "alice"))

	_, err := env.messages.Send(ctx, "alice", &SendMessageRequest{RecvId: "bob", Content: "still there?"})
	assert.True(t, errcode.Is(err, errcode.ErrBlocked))
	_, err = env.messages.Send(ctx, "bob", &SendMessageRequest{ConversationId: msg.ConversationId, Content: "go away"})
	assert.True(t, errcode.Is(err, errcode.ErrBlocked))

	require.NoError(t, env.blocks.Unblock(ctx, "bob", "alice"))
	env.send(t, "alice", "bob", "sorry")
}

func TestEdit_Window(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "alice", "bob")
	msg := env.send(t, "alice", "bob", "draft")

	env.clock.Advance(29*time.Minute + 59*time.Second)
	edited, err := env.messages.Edit(ctx, "alice", msg.Id, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Content)
	require.NotNil(t, edited.EditedAt)
	assert.Equal(t, env.clock.Now().UnixMilli(), *edited.EditedAt)
	assert.Equal(t, msg.CreatedAt, edited.CreatedAt)
	assert.Equal(t, "final", *env.conversation(t, msg.ConversationId).LastMessageContent)
	assert.Len(t, env.events.ofKind(event.KindMessageEdited), 1)

	env.clock.Advance(2 * time.Second)
	_, err = env.messages.Edit(ctx, "alice", msg.Id, "too late")
	assert.True(t, errcode.Is(err, errcode.ErrEditWindowExpired))
	assert.Equal(t, errcode.ClassConflict, errcode.ClassOf(err))

	_, err = env.messages.Delete(ctx, "alice", msg.Id)
	assert.True(t, errcode.Is(err, errcode.ErrEditWindowExpired))
}

func TestEdit_OnlySender(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "alice", "bob")
	msg := env.send(t, "alice", "bob", "mine")

	_, err := env.messages.Edit(ctx, "bob", msg.Id, "hijack")
	assert.True(t, errcode.Is(err, errcode.ErrMessageNotFound))
	_, err = env.messages.Delete(ctx, "bob", msg.Id)
	assert.True(t, errcode.Is(err, errcode.ErrMessageNotFound))
	_, err = env.messages.Edit(ctx, "alice", "no-such-id", "x")
	assert.True(t, errcode.Is(err, errcode.ErrMessageNotFound))
}

func TestEdit_OlderMessageKeepsProjection(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "alice", "bob")
	m0 := env.send(t, "alice", "bob", "first")
	m1 := env.send(t, "bob", "alice", "second")

	_, err := env.messages.Edit(ctx, "alice", m0.Id, "first, edited")
	require.NoError(t, err)

	conv := env.conversation(t, m0.ConversationId)
	assert.Equal(t, m1.Id, *conv.LastMessageId)
	assert.Equal(t, "second", *conv.LastMessageContent)
}

func TestDelete_MovesProjectionBack(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "alice", "bob")
	m0 := env.send(t, "alice", "bob", "first")
	m1 := env.send(t, "alice", "bob", "second")

	_, err := env.reactions.Toggle(ctx, "bob", m1.Id, "👍")
	require.NoError(t, err)

	deleted, err := env.messages.Delete(ctx, "alice", m1.Id)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, "This message was deleted", deleted.Content)
	assert.Empty(t, deleted.Reactions)

	conv := env.conversation(t, m0.ConversationId)
	require.NotNil(t, conv.LastMessageId)
	assert.Equal(t, m0.Id, *conv.LastMessageId)
	assert.Equal(t, "first", *conv.LastMessageContent)
	assert.Equal(t, int64(2), conv.MessageCount)

	_, err = env.messages.Delete(ctx, "alice", m0.Id)
	require.NoError(t, err)
	conv = env.conversation(t, m0.ConversationId)
	assert.Nil(t, conv.LastMessageId)
	assert.Nil(t, conv.LastMessageAt)

	env.events.reset()
	again, err := env.messages.Delete(ctx, "alice", m0.Id)
	require.NoError(t, err)
	assert.True(t, again.IsDeleted)
	assert.Empty(t, env.events.kinds())

	unread, err := env.convs.GetUnreadCount(ctx, "bob", m0.ConversationId)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread)
}

func TestDelete_RemovesAttachmentBlob(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "alice", "bob")

	meta, err := env.files.Upload(ctx, "alice", "cat.png", "image/png", []byte("meow"))
	require.NoError(t, err)

	_, err = env.messages.Send(ctx, "bob", &SendMessageRequest{RecvId: "alice", AttachmentHandle: meta.Handle, MsgType: 2})
	assert.True(t, errcode.Is(err, errcode.ErrAttachmentMissing))

	msg, err := env.messages.Send(ctx, "alice", &SendMessageRequest{RecvId: "bob", AttachmentHandle: meta.Handle, MsgType: 2})
	require.NoError(t, err)
	require.NotNil(t, msg.Attachment)
	assert.Equal(t, "cat.png", msg.Attachment.FileName)

	_, data, err := env.files.Download(ctx, "bob", meta.Handle)
	require.NoError(t, err)
	assert.Equal(t, []byte("meow"), data)

	_, err = env.messages.Delete(ctx, "alice", msg.Id)
	require.NoError(t, err)
	env.messages.Wait()

	_, err = env.blobs.Stat(ctx, meta.Handle)
	assert.True(t, errcode.Is(err, errcode.ErrAttachmentMissing))
}

func TestPage_NewestFirstWindowsOldestFirst(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "alice", "bob", "carol")

	var sent []*entity.MessageInfo
	for _, c := range []string{"1", "2", "3", "4", "5"} {
		sent = append(sent, env.send(t, "alice", "bob", c))
		env.clock.Advance(time.Second)
	}
	convId := sent[0].ConversationId

	page, err := env.messages.Page(ctx, "bob", convId, 2, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "4", page.Messages[0].Content)
	assert.Equal(t, "5", page.Messages[1].Content)
	assert.True(t, page.HasMore)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, sent[3].CreatedAt, *page.NextCursor)

	page, err = env.messages.Page(ctx, "bob", convId, 2, *page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, "2", page.Messages[0].Content)
	assert.Equal(t, "3", page.Messages[1].Content)
	assert.True(t, page.HasMore)

	page, err = env.messages.Page(ctx, "bob", convId, 2, *page.NextCursor)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "1", page.Messages[0].Content)
	assert.False(t, page.HasMore)
	assert.Nil(t, page.NextCursor)

	_, err = env.messages.Page(ctx, "carol", convId, 2, 0)
	assert.True(t, errcode.Is(err, errcode.ErrNotParticipant))
}

func TestPage_ShowsTombstonesAndReactions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "alice", "bob")
	m0 := env.send(t, "alice", "bob", "keep")
	m1 := env.send(t, "alice", "bob", "drop")

	_, err := env.reactions.Toggle(ctx, "bob", m0.Id, "🎉")
	require.NoError(t, err)
	_, err = env.messages.Delete(ctx, "alice", m1.Id)
	require.NoError(t, err)

	page, err := env.messages.Page(ctx, "bob", m0.ConversationId, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	require.Len(t, page.Messages[0].Reactions, 1)
	assert.True(t, page.Messages[0].Reactions[0].ViewerHasReacted)
	assert.True(t, page.Messages[1].IsDeleted)
}

func TestMarkRead_Rules(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "alice", "bob", "carol")
	m0 := env.send(t, "alice", "bob", "one")
	m1 := env.send(t, "alice", "bob", "two")
	other := env.send(t, "alice", "carol", "elsewhere")

	err := env.convs.MarkRead(ctx, "carol", m0.ConversationId, m0.Id)
	assert.True(t, errcode.Is(err, errcode.ErrNotParticipant))

	err = env.convs.MarkRead(ctx, "bob", m0.ConversationId, other.Id)
	assert.True(t, errcode.Is(err, errcode.ErrMessageNotFound))

	require.NoError(t, env.convs.MarkRead(ctx, "bob", m0.ConversationId, m0.Id))
	unread, err := env.convs.GetUnreadCount(ctx, "bob", m0.ConversationId)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	require.NoError(t, env.convs.MarkRead(ctx, "bob", m0.ConversationId, m1.Id))
	// moving the cursor backwards is allowed unless the monotonic guard is on
	require.NoError(t, env.convs.MarkRead(ctx, "bob", m0.ConversationId, m0.Id))
	unread, err = env.convs.GetUnreadCount(ctx, "bob", m0.ConversationId)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	env.projection.monotonic = true
	require.NoError(t, env.convs.MarkRead(ctx, "bob", m0.ConversationId, m1.Id))
	require.NoError(t, env.convs.MarkRead(ctx, "bob", m0.ConversationId, m0.Id))
	unread, err = env.convs.GetUnreadCount(ctx, "bob", m0.ConversationId)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unread)
}
