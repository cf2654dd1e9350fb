package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/cloudwego/hertz/pkg/app"
	hzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mbeoliero/parley/internal/config"
	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/middleware"
	"github.com/mbeoliero/parley/internal/repository"
	"github.com/mbeoliero/parley/internal/service"
	"github.com/mbeoliero/parley/pkg/blob"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/response"
)

const testUserHeader = "X-Test-User"

// asUser stands in for JWTAuth
func asUser(ctx context.Context, c *app.RequestContext) {
	if id := string(c.GetHeader(testUserHeader)); id != "" {
		c.Set(middleware.UserIdKey, id)
		c.Set(middleware.PlatformIdKey, 1)
	}
	c.Next(ctx)
}

func newEngine(t *testing.T, users ...string) *route.Engine {
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

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	repos := repository.NewRepositoriesWithDB(db, nil)
	for _, id := range users {
		require.NoError(t, repos.User.Create(context.Background(), &entity.User{Id: id, Nickname: "nick-" + id}))
	}

	projection := service.NewProjection(repos, cfg.Messaging, nil)
	messages := NewMessageHandler(service.NewMessageService(repos, projection, blobs, cfg.Messaging, nil))
	reactions := NewReactionHandler(service.NewReactionService(repos, nil))
	convs := NewConversationHandler(service.NewConversationService(repos, projection))
	blocks := NewBlockHandler(service.NewBlockService(repos, nil))
	userHandler := NewUserHandler(service.NewUserService(repos), nil)

	engine := route.NewEngine(hzconfig.NewOptions([]hzconfig.Option{}))
	engine.Use(asUser)
	engine.POST("/msg/send", messages.SendMessage)
	engine.POST("/msg/edit", messages.EditMessage)
	engine.POST("/msg/delete", messages.DeleteMessage)
	engine.GET("/msg/page", messages.PageMessages)
	engine.POST("/reaction/toggle", reactions.Toggle)
	engine.GET("/conversation/list", convs.GetConversationList)
	engine.GET("/conversation/unread_count", convs.GetUnreadCount)
	engine.POST("/conversation/mark_read", convs.MarkRead)
	engine.POST("/block/add", blocks.Block)
	engine.GET("/user/info", userHandler.GetUserInfo)
	engine.GET("/user/info/:user_id", userHandler.GetUserInfoById)
	engine.PUT("/user/update", userHandler.UpdateUserInfo)
	return engine
}

func perform(t *testing.T, engine *route.Engine, method, url, user string, body any, out any) response.Response {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	headers := []ut.Header{{Key: "Content-Type", Value: "application/json"}}
	if user != "" {
		headers = append(headers, ut.Header{Key: testUserHeader, Value: user})
	}
	w := ut.PerformRequest(engine, method, url, &ut.Body{Body: bytes.NewReader(raw), Len: len(raw)}, headers...)

	var envelope struct {
		Code int             `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Result().Body(), &envelope))
	if out != nil && envelope.Code == 0 {
		require.NoError(t, json.Unmarshal(envelope.Data, out))
	}
	return response.Response{Code: envelope.Code, Msg: envelope.Msg}
}

func TestMessageLifecycleOverHTTP(t *testing.T) {
	engine := newEngine(t, "alice", "bob")

	resp := perform(t, engine, "POST", "/msg/send", "", map[string]any{"recv_id": "bob", "content": "hi"}, nil)
	assert.Equal(t, errcode.ErrUnauthorized.Code, resp.Code)

	var sent entity.MessageInfo
	resp = perform(t, engine, "POST", "/msg/send", "alice", map[string]any{"recv_id": "bob", "content": "hi", "client_msg_id": "c-1"}, &sent)
	require.Zero(t, resp.Code, resp.Msg)
	assert.Equal(t, "c-1", sent.ClientMsgId)

	var unread map[string]int64
	resp = perform(t, engine, "GET", "/conversation/unread_count?conversation_id="+sent.ConversationId, "bob", nil, &unread)
	require.Zero(t, resp.Code, resp.Msg)
	assert.Equal(t, int64(1), unread["unread_count"])

	resp = perform(t, engine, "POST", "/conversation/mark_read", "bob", MarkReadRequest{ConversationId: sent.ConversationId, MessageId: sent.Id}, nil)
	require.Zero(t, resp.Code, resp.Msg)

	var edited entity.MessageInfo
	resp = perform(t, engine, "POST", "/msg/edit", "alice", EditMessageRequest{MessageId: sent.Id, Content: "hello"}, &edited)
	require.Zero(t, resp.Code, resp.Msg)
	assert.Equal(t, "hello", edited.Content)
	assert.NotNil(t, edited.EditedAt)

	resp = perform(t, engine, "POST", "/msg/edit", "bob", EditMessageRequest{MessageId: sent.Id, Content: "mine now"}, nil)
	assert.Equal(t, errcode.ClassNotFound, errcode.ClassOf(errcode.New(resp.Code, resp.Msg)))

	var toggled ToggleReactionResponse
	resp = perform(t, engine, "POST", "/reaction/toggle", "bob", ToggleReactionRequest{MessageId: sent.Id, Emoji: "👍"}, &toggled)
	require.Zero(t, resp.Code, resp.Msg)
	require.NotNil(t, toggled.Aggregate)
	assert.Equal(t, 1, toggled.Aggregate.Count)

	var page service.PageResult
	resp = perform(t, engine, "GET", "/msg/page?conversation_id="+sent.ConversationId, "bob", nil, &page)
	require.Zero(t, resp.Code, resp.Msg)
	require.Len(t, page.Messages, 1)
	assert.True(t, page.Messages[0].Reactions[0].ViewerHasReacted)

	resp = perform(t, engine, "GET", "/msg/page?conversation_id="+sent.ConversationId+"&before=abc", "bob", nil, nil)
	assert.Equal(t, errcode.ErrInvalidParam.Code, resp.Code)

	var deleted entity.MessageInfo
	resp = perform(t, engine, "POST", "/msg/delete", "alice", DeleteMessageRequest{MessageId: sent.Id}, &deleted)
	require.Zero(t, resp.Code, resp.Msg)
	assert.True(t, deleted.IsDeleted)
	assert.Empty(t, deleted.Reactions)
}

func TestBlockedSendOverHTTP(t *testing.T) {
	engine := newEngine(t, "alice", "bob")

	resp := perform(t, engine, "POST", "/block/add", "bob", BlockRequest{UserId: "alice"}, nil)
	require.Zero(t, resp.Code, resp.Msg)

	resp = perform(t, engine, "POST", "/msg/send", "alice", map[string]any{"recv_id": "bob", "content": "hi"}, nil)
	assert.Equal(t, errcode.ErrBlocked.Code, resp.Code)

	var list []*entity.ConversationInfo
	resp = perform(t, engine, "GET", "/conversation/list", "alice", nil, &list)
	require.Zero(t, resp.Code, resp.Msg)
	assert.Empty(t, list)
}

func TestProfileOverHTTP(t *testing.T) {
	engine := newEngine(t, "alice", "bob")

	var sent entity.MessageInfo
	resp := perform(t, engine, "POST", "/msg/send", "alice", map[string]any{"recv_id": "bob", "content": "hi", "client_msg_id": "c-1"}, &sent)
	require.Zero(t, resp.Code, resp.Msg)
	assert.Equal(t, "nick-alice", sent.SenderDisplayName)

	var info entity.UserInfo
	resp = perform(t, engine, "PUT", "/user/update", "alice", service.UpdateUserRequest{Nickname: "  Alice  "}, &info)
	require.Zero(t, resp.Code, resp.Msg)
	assert.Equal(t, "Alice", info.Nickname)

	info = entity.UserInfo{}
	resp = perform(t, engine, "GET", "/user/info/alice", "bob", nil, &info)
	require.Zero(t, resp.Code, resp.Msg)
	assert.Equal(t, "Alice", info.Nickname)
	require.NotNil(t, info.Online)
	assert.False(t, *info.Online)

	resp = perform(t, engine, "GET", "/user/info/carol", "bob", nil, nil)
	assert.Equal(t, errcode.ErrUserNotFound.Code, resp.Code)

	var page service.PageResult
	resp = perform(t, engine, "GET", "/msg/page?conversation_id="+sent.ConversationId, "bob", nil, &page)
	require.Zero(t, resp.Code, resp.Msg)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "Alice", page.Messages[0].SenderDisplayName)
}
