package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/event"
)

func TestToggle_TwiceRestoresAggregate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "alice", "bob")
	msg := env.send(t, "alice", "bob", "party")

	before, err := env.reactions.Toggle(ctx, "bob", msg.Id, "🎉")
	require.NoError(t, err)
	require.NotNil(t, before)
	assert.Equal(t, 1, before.Count)
	assert.True(t, before.ViewerHasReacted)

	added, err := env.reactions.Toggle(ctx, "alice", msg.Id, "🎉")
	require.NoError(t, err)
	assert.Equal(t, 2, added.Count)
	assert.Equal(t, []string{"alice", "bob"}, added.ReactorIds)

	removed, err := env.reactions.Toggle(ctx, "alice", msg.Id, "🎉")
	require.NoError(t, err)
	assert.Equal(t, before.Count, removed.Count)
	assert.Equal(t, before.ReactorIds, removed.ReactorIds)
	assert.False(t, removed.ViewerHasReacted)

	gone, err := env.reactions.Toggle(ctx, "bob", msg.Id, "🎉")
	require.NoError(t, err)
	assert.Nil(t, gone)

	changes := env.events.ofKind(event.KindReactionChanged)
	require.Len(t, changes, 4)
	last := changes[3].Payload.(*event.ReactionChanged)
	assert.Equal(t, event.ReactionRemoved, last.Action)
	assert.Nil(t, last.Aggregate)
	first := changes[0].Payload.(*event.ReactionChanged)
	assert.Equal(t, event.ReactionAdded, first.Action)
	assert.False(t, first.Aggregate.ViewerHasReacted)
}

func TestToggle_Rejections(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "alice", "bob", "carol")
	msg := env.send(t, "alice", "bob", "hi")

	_, err := env.reactions.Toggle(ctx, "carol", msg.Id, "👍")
	assert.True(t, errcode.Is(err, errcode.ErrNotParticipant))

	_, err = env.reactions.Toggle(ctx, "bob", "missing", "👍")
	assert.True(t, errcode.Is(err, errcode.ErrMessageNotFound))

	_, err = env.reactions.Toggle(ctx, "bob", msg.Id, "")
	assert.True(t, errcode.Is(err, errcode.ErrInvalidParam))

	_, err = env.messages.Delete(ctx, "alice", msg.Id)
	require.NoError(t, err)
	_, err = env.reactions.Toggle(ctx, "bob", msg.Id, "👍")
	assert.True(t, errcode.Is(err, errcode.ErrMessageNotFound))
}

func TestToggle_StrayReactionOnDeletedMessageIsHidden(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, "alice", "bob")
	msg := env.send(t, "alice", "bob", "soon gone")

	_, err := env.messages.Delete(ctx, "alice", msg.Id)
	require.NoError(t, err)
	// a toggle that slipped past the delete without the conversation lock
	require.NoError(t, env.repos.Reaction.Insert(ctx, env.repos.DB, &entity.Reaction{
		MessageId: msg.Id, UserId: "bob", Emoji: "👍", ConversationId: msg.ConversationId,
	}))

	page, err := env.messages.Page(ctx, "bob", msg.ConversationId, 10, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.True(t, page.Messages[0].IsDeleted)
	assert.Empty(t, page.Messages[0].Reactions)
}
