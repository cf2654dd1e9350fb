package sdk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/parley/pkg/event"
)

func msg(id string, createdAt int64, content string) *Message {
	return &Message{
		Id:             id,
		ConversationId: "c1",
		SenderId:       "bob",
		Content:        content,
		Type:           MsgTypeText,
		CreatedAt:      createdAt,
	}
}

func ids(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.key())
	}
	return out
}

func loadedTimeline(t *testing.T, page *PageResult) *Timeline {
	t.Helper()
	tl := NewTimeline("c1", "alice")
	tl.ApplySnapshot(page)
	return tl
}

func TestTimeline_CreatedEventIsIdempotent(t *testing.T) {
	tl := loadedTimeline(t, &PageResult{Messages: []*Message{msg("m1", 100, "hi")}})

	created := &event.MessageCreated{Message: *msg("m2", 200, "again")}
	assert.True(t, tl.Apply(created))
	first := tl.Messages()
	tl.Apply(created)

	assert.Equal(t, first, tl.Messages())
	assert.Equal(t, []string{"m1", "m2"}, ids(tl.Messages()))
}

func TestTimeline_OrderIndependentOfArrival(t *testing.T) {
	tl := loadedTimeline(t, &PageResult{})

	tl.Apply(&event.MessageCreated{Message: *msg("c", 300, "third")})
	tl.Apply(&event.MessageCreated{Message: *msg("a", 100, "first")})
	tl.Apply(&event.MessageCreated{Message: *msg("b", 200, "second")})
	tl.Apply(&event.MessageCreated{Message: *msg("b2", 200, "tie")})

	assert.Equal(t, []string{"a", "b", "b2", "c"}, ids(tl.Messages()))
}

func TestTimeline_EventsBeforeSnapshotAreReplayed(t *testing.T) {
	tl := NewTimeline("c1", "alice")
	assert.False(t, tl.Apply(&event.MessageCreated{Message: *msg("m3", 300, "live")}))
	assert.Empty(t, tl.Messages())

	tl.ApplySnapshot(&PageResult{Messages: []*Message{msg("m1", 100, "a"), msg("m2", 200, "b")}})
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(tl.Messages()))
}

func TestTimeline_IgnoresEventsBelowLoadedPage(t *testing.T) {
	cursor := int64(500)
	tl := loadedTimeline(t, &PageResult{
		Messages:   []*Message{msg("m5", 500, "e"), msg("m6", 600, "f")},
		HasMore:    true,
		NextCursor: &cursor,
	})

	assert.False(t, tl.Apply(&event.MessageEdited{Message: *msg("m1", 100, "old edit")}))
	assert.True(t, tl.Apply(&event.MessageCreated{Message: *msg("m7", 700, "g")}))
	assert.Equal(t, []string{"m5", "m6", "m7"}, ids(tl.Messages()))

	before, hasMore := tl.Cursor()
	assert.Equal(t, int64(500), before)
	assert.True(t, hasMore)

	tl.ApplyOlder(&PageResult{Messages: []*Message{msg("m1", 100, "a"), msg("m2", 200, "b")}})
	_, hasMore = tl.Cursor()
	assert.False(t, hasMore)
	assert.Equal(t, []string{"m1", "m2", "m5", "m6", "m7"}, ids(tl.Messages()))

	assert.True(t, tl.Apply(&event.MessageCreated{Message: *msg("m0", 50, "backfilled")}))
}

func TestTimeline_OptimisticSendConfirmedByEcho(t *testing.T) {
	tl := loadedTimeline(t, &PageResult{Messages: []*Message{msg("m1", 100, "hi")}})

	pending := tl.AddPending("cm-1", MsgTypeText, "yo", "", 150)
	assert.Equal(t, StatePending, pending.State)
	assert.Equal(t, []string{"m1", "local:cm-1"}, ids(tl.Messages()))

	echo := msg("m2", 160, "yo")
	echo.SenderId = "alice"
	echo.ClientMsgId = "cm-1"
	tl.Apply(&event.MessageCreated{Message: *echo})
	tl.Confirm("cm-1", echo)

	entries := tl.Messages()
	assert.Equal(t, []string{"m1", "m2"}, ids(entries))
	assert.Equal(t, StateConfirmed, entries[1].State)
}

func TestTimeline_FailedSendStaysRetryable(t *testing.T) {
	tl := loadedTimeline(t, &PageResult{})
	tl.AddPending("cm-1", MsgTypeText, "draft", "blob-1", 100)

	boom := errors.New("boom")
	tl.Fail("cm-1", boom)
	entries := tl.Messages()
	require.Len(t, entries, 1)
	assert.Equal(t, StateFailed, entries[0].State)
	assert.Equal(t, "draft", entries[0].Content)
	assert.ErrorIs(t, entries[0].Err, boom)

	tl.ApplySnapshot(&PageResult{})
	require.Len(t, tl.Messages(), 1)

	e, ok := tl.Retry("cm-1")
	require.True(t, ok)
	assert.Equal(t, StatePending, e.State)
	assert.Equal(t, "blob-1", e.AttachmentHandle)

	tl.Discard("cm-1")
	assert.Empty(t, tl.Messages())
}

func TestTimeline_EditAndDeleteTransitions(t *testing.T) {
	tl := loadedTimeline(t, &PageResult{Messages: []*Message{msg("m1", 100, "v1")}})

	at2, at3 := int64(300), int64(200)
	v2 := msg("m1", 100, "v2")
	v2.EditedAt = &at2
	stale := msg("m1", 100, "stale")
	stale.EditedAt = &at3

	tl.Apply(&event.MessageEdited{Message: *v2})
	assert.False(t, tl.Apply(&event.MessageEdited{Message: *stale}))
	assert.False(t, tl.Apply(&event.MessageCreated{Message: *msg("m1", 100, "v1")}))

	e, _ := tl.Get("m1")
	assert.Equal(t, "v2", e.Content)
	assert.Equal(t, StateEdited, e.State)

	gone := msg("m1", 100, "")
	gone.IsDeleted = true
	tl.Apply(&event.MessageDeleted{Message: *gone})
	assert.False(t, tl.Apply(&event.MessageEdited{Message: *v2}))

	e, _ = tl.Get("m1")
	assert.Equal(t, StateDeleted, e.State)
	_, err := tl.stage("m1", func(*Entry) {})
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestTimeline_ReactionChangesTrackViewer(t *testing.T) {
	tl := loadedTimeline(t, &PageResult{Messages: []*Message{msg("m1", 100, "hi")}})

	tl.Apply(&event.ReactionChanged{
		MessageId: "m1", ConversationId: "c1", UserId: "alice", Emoji: "👍",
		Action: event.ReactionAdded, Aggregate: &event.Reaction{Emoji: "👍", Count: 2, ReactorIds: []string{"alice", "bob"}},
	})
	e, _ := tl.Get("m1")
	require.Len(t, e.Reactions, 1)
	assert.True(t, e.Reactions[0].ViewerHasReacted)

	tl.Apply(&event.ReactionChanged{
		MessageId: "m1", ConversationId: "c1", UserId: "bob", Emoji: "👍",
		Action: event.ReactionRemoved, Aggregate: nil,
	})
	e, _ = tl.Get("m1")
	assert.Empty(t, e.Reactions)
}

func TestTimeline_RedeliveredCreateKeepsReactions(t *testing.T) {
	tl := loadedTimeline(t, &PageResult{})
	created := &event.MessageCreated{Message: *msg("m1", 100, "hi")}

	tl.Apply(created)
	tl.Apply(&event.ReactionChanged{
		MessageId: "m1", ConversationId: "c1", UserId: "bob", Emoji: "👍",
		Action: event.ReactionAdded, Aggregate: &event.Reaction{Emoji: "👍", Count: 1, ReactorIds: []string{"bob"}},
	})
	tl.Apply(created)

	e, _ := tl.Get("m1")
	require.Len(t, e.Reactions, 1)
	assert.Equal(t, 1, e.Reactions[0].Count)

	tl.ApplySnapshot(&PageResult{Messages: []*Message{msg("m1", 100, "hi")}})
	e, _ = tl.Get("m1")
	assert.Empty(t, e.Reactions)
}

func TestToggled_FlipsViewer(t *testing.T) {
	start := []Reaction{{Emoji: "👍", Count: 1, ReactorIds: []string{"bob"}}}

	added := toggled(start, "👍", "alice")
	require.NotNil(t, added)
	assert.Equal(t, []string{"alice", "bob"}, added.ReactorIds)
	assert.Equal(t, 2, added.Count)

	assert.Nil(t, toggled([]Reaction{*toggled(nil, "🎉", "alice")}, "🎉", "alice"))
	assert.Equal(t, []string{"bob"}, start[0].ReactorIds)
}
