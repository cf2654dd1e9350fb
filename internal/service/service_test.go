package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mbeoliero/parley/internal/config"
	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/fanout"
	"github.com/mbeoliero/parley/internal/repository"
	"github.com/mbeoliero/parley/pkg/blob"
	"github.com/mbeoliero/parley/pkg/event"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []fanout.Event
}

func (d *recordingDispatcher) Dispatch(_ context.Context, ev fanout.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
}

func (d *recordingDispatcher) kinds() []event.Kind {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]event.Kind, 0, len(d.events))
	for _, ev := range d.events {
		out = append(out, ev.Payload.Kind())
	}
	return out
}

func (d *recordingDispatcher) ofKind(kind event.Kind) []fanout.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []fanout.Event
	for _, ev := range d.events {
		if ev.Payload.Kind() == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (d *recordingDispatcher) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	repos      *repository.Repositories
	blobs      *blob.PebbleStore
	events     *recordingDispatcher
	clock      *testClock
	projection *Projection
	messages   *MessageService
	convs      *ConversationService
	groups     *GroupService
	reactions  *ReactionService
	blocks     *BlockService
	presence   *PresenceService
	files      *AttachmentService
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg
}

func newTestEnv(t *testing.T, users ...string) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repository.AutoMigrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })

	blobs, err := blob.Open("blobs", blob.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = blobs.Close() })

	cfg := testConfig()
	repos := repository.NewRepositoriesWithDB(db, nil)
	events := &recordingDispatcher{}
	clock := &testClock{now: time.UnixMilli(1_700_000_000_000)}

	env := &testEnv{repos: repos, blobs: blobs, events: events, clock: clock}
	env.projection = NewProjection(repos, cfg.Messaging, events)
	env.projection.SetClock(clock.Now)
	env.messages = NewMessageService(repos, env.projection, blobs, cfg.Messaging, events)
	env.messages.SetClock(clock.Now)
	env.convs = NewConversationService(repos, env.projection)
	env.groups = NewGroupService(repos, blobs, events)
	env.reactions = NewReactionService(repos, events)
	env.blocks = NewBlockService(repos, events)
	env.presence = NewPresenceService(repos, cfg.Presence, events)
	env.presence.SetClock(clock.Now)
	env.files = NewAttachmentService(repos, blobs)

	for _, id := range users {
		require.NoError(t, repos.User.Create(context.Background(), &entity.User{Id: id, Nickname: "nick-" + id}))
	}
	return env
}

func (e *testEnv) send(t *testing.T, from, to, content string) *entity.MessageInfo {
	t.Helper()
	info, err := e.messages.Send(context.Background(), from, &SendMessageRequest{RecvId: to, Content: content})
	require.NoError(t, err)
	return info
}

func (e *testEnv) sendTo(t *testing.T, from, conversationId, content string) *entity.MessageInfo {
	t.Helper()
	info, err := e.messages.Send(context.Background(), from, &SendMessageRequest{ConversationId: conversationId, Content: content})
	require.NoError(t, err)
	return info
}

func (e *testEnv) conversation(t *testing.T, id string) *entity.Conversation {
	t.Helper()
	conv, err := e.repos.Conversation.GetById(context.Background(), nil, id)
	require.NoError(t, err)
	return conv
}
