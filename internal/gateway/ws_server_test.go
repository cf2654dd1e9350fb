package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/parley/internal/config"
	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/fanout"
	"github.com/mbeoliero/parley/internal/service"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/event"
	"github.com/mbeoliero/parley/pkg/jwt"
)

const testSecret = "gateway-test-secret"

type fakeServices struct {
	mu      sync.Mutex
	members map[string][]string
	online  []string
	offline []string
	sent    []*service.SendMessageRequest
	reads   []string
	typing  int
}

func (f *fakeServices) IsParticipant(_ context.Context, conversationId, userId string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.members[conversationId] {
		if id == userId {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeServices) Send(_ context.Context, senderId string, req *service.SendMessageRequest) (*entity.MessageInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.Content == "" {
		return nil, errcode.ErrEmptyMessage
	}
	f.sent = append(f.sent, req)
	return &entity.MessageInfo{Id: "m1", ConversationId: req.ConversationId, ClientMsgId: req.ClientMsgId, SenderId: senderId, Content: req.Content, CreatedAt: 1}, nil
}

func (f *fakeServices) MarkRead(_ context.Context, userId, conversationId, messageId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, userId+"/"+conversationId+"/"+messageId)
	return nil
}

func (f *fakeServices) Online(_ context.Context, userId string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = append(f.online, userId)
}

func (f *fakeServices) Heartbeat(context.Context, string) {}

func (f *fakeServices) Offline(_ context.Context, userId string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = append(f.offline, userId)
}

func (f *fakeServices) Typing(context.Context, string, string, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing++
	return nil
}

func (f *fakeServices) offlineUsers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.offline...)
}

type harness struct {
	srv       *WsServer
	http      *httptest.Server
	transport *fanout.MemoryTransport
	publisher *fanout.Publisher
	fakes     *fakeServices
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	// one worker keeps delivery order observable
	cfg.WebSocket.PushWorkerNum = 1

	fakes := &fakeServices{members: map[string][]string{"c1": {"alice", "bob"}}}
	transport := fanout.NewMemoryTransport()
	auth := func(token string) (*jwt.Claims, error) { return jwt.ParseToken(token, testSecret) }
	srv := NewWsServer(cfg.WebSocket, auth, transport, Services{
		Messages: fakes,
		Reads:    fakes,
		Presence: fakes,
		Members:  fakes,
	})

	ctx, cancel := context.WithCancel(context.Background())
	srv.Run(ctx)
	require.Eventually(t, func() bool { return transport.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.HandleConnection(r.Context(), w, r)
	}))
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})

	return &harness{srv: srv, http: ts, transport: transport, publisher: fanout.NewPublisher(transport, time.Second), fakes: fakes}
}

func (h *harness) dial(t *testing.T, userId string) *websocket.Conn {
	t.Helper()
	token, err := jwt.GenerateToken(userId, 1, testSecret, 1)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func request(t *testing.T, conn *websocket.Conn, id int32, incr string, data any) WSResponse {
	t.Helper()
	body, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(WSRequest{ReqIdentifier: id, MsgIncr: incr, Data: body}))
	return read(t, conn)
}

func read(t *testing.T, conn *websocket.Conn) WSResponse {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var resp WSResponse
	require.NoError(t, conn.ReadJSON(&resp))
	return resp
}

func readEvent(t *testing.T, conn *websocket.Conn) (*event.Envelope, event.Payload) {
	t.Helper()
	resp := read(t, conn)
	require.Equal(t, int32(WSPushEvent), resp.ReqIdentifier)
	env, payload, err := event.Decode(resp.Data)
	require.NoError(t, err)
	return env, payload
}

func TestHandshake_RejectsBadToken(t *testing.T) {
	h := newHarness(t)
	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSubscribe_RequiresMembership(t *testing.T) {
	h := newHarness(t)
	alice := h.dial(t, "alice")

	resp := request(t, alice, WSSubscribe, "1", SubscribeReq{ConversationId: "c1"})
	require.Zero(t, resp.ErrCode)
	assert.Equal(t, "1", resp.MsgIncr)
	var subs SubscribeResp
	require.NoError(t, json.Unmarshal(resp.Data, &subs))
	assert.Equal(t, []string{"conv:c1", event.GlobalTopic, "user:alice"}, subs.Topics)

	resp = request(t, alice, WSSubscribe, "2", SubscribeReq{ConversationId: "c2"})
	assert.Equal(t, errcode.ErrNotParticipant.Code, resp.ErrCode)

	resp = request(t, alice, 9999, "3", nil)
	assert.Equal(t, 1, resp.ErrCode)
}

func TestPush_FollowsSubscriptionsAndAudience(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	alice := h.dial(t, "alice")
	resp := request(t, alice, WSSubscribe, "1", SubscribeReq{ConversationId: "c1"})
	require.Zero(t, resp.ErrCode)

	require.NoError(t, h.publisher.Publish(ctx, fanout.Event{
		Topics:  []string{event.ConversationTopic("c1")},
		Payload: &event.Typing{ConversationId: "c1", UserId: "bob", Active: true},
	}))
	env, payload := readEvent(t, alice)
	assert.Equal(t, event.ConversationTopic("c1"), env.Topic)
	assert.Equal(t, "bob", payload.(*event.Typing).UserId)

	// not for alice, then for alice
	require.NoError(t, h.publisher.Publish(ctx, fanout.Event{
		Topics:   []string{event.GlobalTopic},
		Audience: []string{"bob"},
		Payload:  &event.Presence{UserId: "bob", Online: true},
	}))
	require.NoError(t, h.publisher.Publish(ctx, fanout.Event{
		Topics:   []string{event.GlobalTopic},
		Audience: []string{"alice"},
		Payload:  &event.Presence{UserId: "carol", Online: true},
	}))
	_, payload = readEvent(t, alice)
	assert.Equal(t, "carol", payload.(*event.Presence).UserId)

	resp = request(t, alice, WSUnsubscribe, "2", SubscribeReq{ConversationId: "c1"})
	require.Zero(t, resp.ErrCode)
	require.NoError(t, h.publisher.Publish(ctx, fanout.Event{
		Topics:  []string{event.ConversationTopic("c1")},
		Payload: &event.Typing{ConversationId: "c1", UserId: "bob"},
	}))
	require.NoError(t, h.publisher.Publish(ctx, fanout.Event{
		Topics:  []string{event.UserTopic("alice")},
		Payload: &event.UserBlocked{BlockNotice: event.BlockNotice{BlockerId: "bob", BlockedId: "alice"}},
	}))
	_, payload = readEvent(t, alice)
	assert.Equal(t, event.KindUserBlocked, payload.Kind())
}

func TestRemovalNotice_DropsConversationTopic(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	bob := h.dial(t, "bob")
	require.Eventually(t, func() bool { return h.srv.GetOnlineConnCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	resp := request(t, bob, WSSubscribe, "1", SubscribeReq{ConversationId: "c1"})
	require.Zero(t, resp.ErrCode)

	require.NoError(t, h.publisher.Publish(ctx, fanout.Event{
		Topics:  []string{event.UserTopic("bob")},
		Payload: &event.ConversationRemoved{Membership: event.Membership{ConversationId: "c1"}},
	}))
	_, payload := readEvent(t, bob)
	assert.Equal(t, event.KindConversationRemoved, payload.Kind())

	resp = request(t, bob, WSHeartbeat, "2", nil)
	require.Zero(t, resp.ErrCode)
	var subs SubscribeResp
	resp = request(t, bob, WSUnsubscribe, "3", SubscribeReq{ConversationId: "none"})
	require.NoError(t, json.Unmarshal(resp.Data, &subs))
	assert.Equal(t, []string{event.GlobalTopic, "user:bob"}, subs.Topics)
}

func TestRequests_ReachServices(t *testing.T) {
	h := newHarness(t)
	alice := h.dial(t, "alice")

	resp := request(t, alice, WSSendMsg, "1", SendMsgReq{ClientMsgId: "local-1", ConversationId: "c1", Content: "hi"})
	require.Zero(t, resp.ErrCode)
	var sent SendMsgResp
	require.NoError(t, json.Unmarshal(resp.Data, &sent))
	assert.Equal(t, "local-1", sent.Message.ClientMsgId)
	assert.Equal(t, "alice", sent.Message.SenderId)

	resp = request(t, alice, WSSendMsg, "2", SendMsgReq{ConversationId: "c1"})
	assert.Equal(t, errcode.ErrEmptyMessage.Code, resp.ErrCode)

	resp = request(t, alice, WSMarkRead, "3", MarkReadReq{ConversationId: "c1", MessageId: "m1"})
	require.Zero(t, resp.ErrCode)
	resp = request(t, alice, WSMarkRead, "4", MarkReadReq{ConversationId: "c1"})
	assert.Equal(t, errcode.ErrInvalidParam.Code, resp.ErrCode)

	resp = request(t, alice, WSTyping, "5", TypingReq{ConversationId: "c1", Active: true})
	require.Zero(t, resp.ErrCode)

	h.fakes.mu.Lock()
	defer h.fakes.mu.Unlock()
	assert.Equal(t, []string{"alice/c1/m1"}, h.fakes.reads)
	assert.Equal(t, 1, h.fakes.typing)
}

func TestPresence_FirstAndLastConnection(t *testing.T) {
	h := newHarness(t)
	first := h.dial(t, "alice")
	second := h.dial(t, "alice")
	require.Eventually(t, func() bool { return h.srv.GetOnlineConnCount() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), h.srv.GetOnlineUserCount())

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return h.srv.GetOnlineConnCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, h.fakes.offlineUsers())

	assert.Equal(t, 1, h.srv.KickUser(context.Background(), "alice", 0))
	resp := read(t, second)
	assert.Equal(t, int32(WSKickOnlineMsg), resp.ReqIdentifier)
	require.Eventually(t, func() bool { return len(h.fakes.offlineUsers()) == 1 }, 2*time.Second, 10*time.Millisecond)

	h.fakes.mu.Lock()
	defer h.fakes.mu.Unlock()
	assert.Equal(t, []string{"alice"}, h.fakes.online)
}

func TestLifecycle_UnregisterNeverOvertakesRegister(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	fakes := &fakeServices{}
	srv := NewWsServer(cfg.WebSocket, nil, fanout.NewMemoryTransport(), Services{Presence: fakes})

	client := NewClient(nil, "alice", 1, "", "", "conn-1", srv)
	srv.accept(client)
	srv.UnregisterClient(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.eventLoop(ctx)

	require.Eventually(t, func() bool { return len(fakes.offlineUsers()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, srv.GetOnlineConnCount())
	assert.Zero(t, srv.GetOnlineUserCount())
	_, ok := srv.userMap.GetAll("alice")
	assert.False(t, ok)

	// an unknown connection leaves the counters alone
	srv.unregisterClient(ctx, NewClient(nil, "bob", 1, "", "", "conn-2", srv))
	assert.Zero(t, srv.GetOnlineConnCount())
	assert.Equal(t, []string{"alice"}, fakes.offlineUsers())
}
