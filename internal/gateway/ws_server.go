package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/parley/internal/config"
	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/fanout"
	"github.com/mbeoliero/parley/internal/service"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/event"
	"github.com/mbeoliero/parley/pkg/jwt"
)

// MessageSender commits messages on behalf of a connection
type MessageSender interface {
	Send(ctx context.Context, senderId string, req *service.SendMessageRequest) (*entity.MessageInfo, error)
}

// ReadMarker advances read cursors
type ReadMarker interface {
	MarkRead(ctx context.Context, userId, conversationId, messageId string) error
}

// PresenceTracker receives connection lifecycle and typing signals
type PresenceTracker interface {
	Online(ctx context.Context, userId string)
	Heartbeat(ctx context.Context, userId string)
	Offline(ctx context.Context, userId string)
	Typing(ctx context.Context, userId, conversationId string, active bool) error
}

// MembershipChecker authorizes conversation topic subscriptions
type MembershipChecker interface {
	IsParticipant(ctx context.Context, conversationId, userId string) (bool, error)
}

// Services are the operations reachable over the socket
type Services struct {
	Messages MessageSender
	Reads    ReadMarker
	Presence PresenceTracker
	Members  MembershipChecker
}

// Authenticator turns a handshake token into claims
type Authenticator func(token string) (*jwt.Claims, error)

const (
	sourceRetryMin = 500 * time.Millisecond
	sourceRetryMax = 30 * time.Second
)

// WsServer is the WebSocket server
type WsServer struct {
	upgrader      *websocket.Upgrader
	cfg           config.WebSocketConfig
	auth          Authenticator
	source        fanout.Source
	svc           Services
	userMap       *UserMap
	topics        *TopicMap
	lifecycle     chan lifecycleEvent
	pushChan      chan *PushTask
	onlineUserNum atomic.Int64
	onlineConnNum atomic.Int64
	maxConnNum    int64
}

// lifecycleEvent registers or unregisters a client. Both go through one
// channel so a connection is never unregistered ahead of its registration.
type lifecycleEvent struct {
	client   *Client
	register bool
}

// PushTask is one frame received from the fanout source
type PushTask struct {
	Topic string
	Frame []byte
}

// NewWsServer creates a new WebSocket server
func NewWsServer(cfg config.WebSocketConfig, auth Authenticator, source fanout.Source, svc Services) *WsServer {
	upgrader := &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	return &WsServer{
		upgrader:   upgrader,
		cfg:        cfg,
		auth:       auth,
		source:     source,
		svc:        svc,
		userMap:    NewUserMap(),
		topics:     NewTopicMap(),
		lifecycle:  make(chan lifecycleEvent, 2000),
		pushChan:   make(chan *PushTask, cfg.PushChannelSize),
		maxConnNum: cfg.MaxConnNum,
	}
}

// Run starts the event loop, the push workers and the fanout subscriber
func (s *WsServer) Run(ctx context.Context) {
	go s.eventLoop(ctx)
	workerNum := s.cfg.PushWorkerNum
	if workerNum <= 0 {
		workerNum = 10
	}
	for i := 0; i < workerNum; i++ {
		go s.pushLoop(ctx)
	}
	go s.consume(ctx)
	log.Info("started %d push workers", workerNum)
}

// consume feeds the push workers from the fanout source, restarting it on failure
func (s *WsServer) consume(ctx context.Context) {
	backoff := sourceRetryMin
	for {
		err := s.source.Run(ctx, s.enqueue)
		if ctx.Err() != nil {
			return
		}
		log.CtxWarn(ctx, "event source stopped, reconnecting in %s: error=%v", backoff, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, sourceRetryMax)
	}
}

func (s *WsServer) enqueue(topic string, frame []byte) {
	select {
	case s.pushChan <- &PushTask{Topic: topic, Frame: frame}:
	default:
		pushTotal.WithLabelValues(pushDropped).Inc()
		log.Warn("push channel full, event dropped: topic=%s", topic)
	}
}

// eventLoop handles client registration and unregistration
func (s *WsServer) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.lifecycle:
			if ev.register {
				s.registerClient(ctx, ev.client)
			} else {
				s.unregisterClient(ctx, ev.client)
			}
		}
	}
}

// pushLoop delivers queued frames
func (s *WsServer) pushLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-s.pushChan:
			s.processPushTask(ctx, task)
		}
	}
}

// processPushTask validates a frame and writes it to every subscriber in its audience
func (s *WsServer) processPushTask(ctx context.Context, task *PushTask) {
	env, payload, err := event.Decode(task.Frame)
	if err != nil {
		pushTotal.WithLabelValues(pushFailed).Inc()
		log.CtxWarn(ctx, "drop invalid event frame: topic=%s, error=%v", task.Topic, err)
		return
	}

	if removed, ok := payload.(*event.ConversationRemoved); ok {
		if kind, userId, err := event.ParseTopic(task.Topic); err == nil && kind == event.TopicUser {
			s.dropConversation(userId, removed.ConversationId)
		}
	}

	for _, client := range s.topics.Clients(task.Topic) {
		if !env.Delivers(client.UserId) {
			pushTotal.WithLabelValues(pushFiltered).Inc()
			continue
		}
		if err := client.PushEvent(task.Frame); err != nil {
			pushTotal.WithLabelValues(pushFailed).Inc()
			log.CtxDebug(ctx, "push to client failed: user_id=%s, conn_id=%s, error=%v", client.UserId, client.ConnId, err)
			continue
		}
		pushTotal.WithLabelValues(pushDelivered).Inc()
	}
}

// dropConversation unsubscribes a removed member's local connections
func (s *WsServer) dropConversation(userId, conversationId string) {
	clients, ok := s.userMap.GetAll(userId)
	if !ok {
		return
	}
	topic := event.ConversationTopic(conversationId)
	for _, c := range clients {
		s.topics.Unsubscribe(c, topic)
	}
}

// accept subscribes the personal topics and queues registration
func (s *WsServer) accept(client *Client) {
	s.topics.Subscribe(client, event.UserTopic(client.UserId))
	s.topics.Subscribe(client, event.GlobalTopic)
	s.lifecycle <- lifecycleEvent{client: client, register: true}
}

// registerClient registers a client
func (s *WsServer) registerClient(ctx context.Context, client *Client) {
	first := s.userMap.Register(client)
	if first {
		s.onlineUserNum.Add(1)
		onlineUsers.Inc()
		s.svc.Presence.Online(ctx, client.UserId)
	}
	s.onlineConnNum.Add(1)
	onlineConns.Inc()

	log.CtxInfo(ctx, "client registered: user_id=%s, platform_id=%d, conn_id=%s, first_conn=%v, online_users=%d, online_conns=%d",
		client.UserId, client.PlatformId, client.ConnId, first, s.onlineUserNum.Load(), s.onlineConnNum.Load())
}

// unregisterClient unregisters a client
func (s *WsServer) unregisterClient(ctx context.Context, client *Client) {
	s.topics.UnsubscribeAll(client)
	found, isUserOffline := s.userMap.Unregister(client)
	if !found {
		return
	}
	s.onlineConnNum.Add(-1)
	onlineConns.Dec()

	if isUserOffline {
		s.onlineUserNum.Add(-1)
		onlineUsers.Dec()
		s.svc.Presence.Offline(ctx, client.UserId)
	}

	log.CtxInfo(ctx, "client unregistered: user_id=%s, platform_id=%d, conn_id=%s, user_offline=%v, online_users=%d, online_conns=%d",
		client.UserId, client.PlatformId, client.ConnId, isUserOffline, s.onlineUserNum.Load(), s.onlineConnNum.Load())
}

// UnregisterClient queues client for unregistration
func (s *WsServer) UnregisterClient(client *Client) {
	select {
	case s.lifecycle <- lifecycleEvent{client: client}:
	default:
		log.Warn("lifecycle channel full, unregister dropped: user_id=%s, conn_id=%s", client.UserId, client.ConnId)
	}
}

// KickUser closes the user's local connections on platformId, or all of them when platformId is 0
func (s *WsServer) KickUser(ctx context.Context, userId string, platformId int) int {
	var clients []*Client
	if platformId == 0 {
		clients, _ = s.userMap.GetAll(userId)
	} else {
		clients, _ = s.userMap.GetByPlatform(userId, platformId)
	}
	for _, c := range clients {
		_ = c.KickOnline()
	}
	if len(clients) > 0 {
		log.CtxInfo(ctx, "kicked connections: user_id=%s, platform_id=%d, count=%d", userId, platformId, len(clients))
	}
	return len(clients)
}

// authenticate validates the handshake token against the optional send_id and platform_id
func (s *WsServer) authenticate(token, sendId, platformIdStr string) (*jwt.Claims, error) {
	claims, err := s.auth(token)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if sendId != "" && sendId != claims.UserId {
		return nil, ErrUserIdMismatch
	}
	if platformIdStr != "" {
		if platformId, err := strconv.Atoi(platformIdStr); err != nil || platformId != claims.PlatformId {
			return nil, ErrTokenInvalid
		}
	}
	return claims, nil
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimPrefix(header, prefix)
	}
	return ""
}

// HandleConnection serves a WebSocket connection over net/http
func (s *WsServer) HandleConnection(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if s.onlineConnNum.Load() >= s.maxConnNum {
		http.Error(w, "connection limit exceeded", http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query()
	token := query.Get(QueryToken)
	if token == "" {
		token = bearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		http.Error(w, "missing token", http.StatusBadRequest)
		return
	}

	claims, err := s.authenticate(token, query.Get(QuerySendId), query.Get(QueryPlatformId))
	if err != nil {
		log.CtxDebug(ctx, "token validation failed: send_id=%s, error=%v", query.Get(QuerySendId), err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
		return
	}

	wsConn := newQueuedConn(conn, timingsFrom(s.cfg))
	client := NewClient(wsConn, claims.UserId, claims.PlatformId, query.Get(QuerySDKType), token, uuid.NewString(), s)
	s.accept(client)
	client.Start()
}

// GetOnlineUserCount returns online user count
func (s *WsServer) GetOnlineUserCount() int64 {
	return s.onlineUserNum.Load()
}

// GetOnlineConnCount returns online connection count
func (s *WsServer) GetOnlineConnCount() int64 {
	return s.onlineConnNum.Load()
}

// ========== Request Handlers ==========

// HandleSubscribe subscribes the connection to a conversation it participates in
func (s *WsServer) HandleSubscribe(ctx context.Context, client *Client, req *WSRequest) ([]byte, error) {
	var subReq SubscribeReq
	if err := json.Unmarshal(req.Data, &subReq); err != nil || subReq.ConversationId == "" {
		return nil, errcode.ErrInvalidParam
	}

	ok, err := s.svc.Members.IsParticipant(ctx, subReq.ConversationId, client.UserId)
	if err != nil {
		log.CtxError(ctx, "membership check failed: conversation_id=%s, user_id=%s, error=%v", subReq.ConversationId, client.UserId, err)
		return nil, errcode.ErrTransientIO
	}
	if !ok {
		return nil, errcode.ErrNotParticipant
	}

	s.topics.Subscribe(client, event.ConversationTopic(subReq.ConversationId))
	return s.subscriptions(client)
}

// HandleUnsubscribe drops a conversation topic; personal topics stay
func (s *WsServer) HandleUnsubscribe(ctx context.Context, client *Client, req *WSRequest) ([]byte, error) {
	var subReq SubscribeReq
	if err := json.Unmarshal(req.Data, &subReq); err != nil || subReq.ConversationId == "" {
		return nil, errcode.ErrInvalidParam
	}

	s.topics.Unsubscribe(client, event.ConversationTopic(subReq.ConversationId))
	return s.subscriptions(client)
}

func (s *WsServer) subscriptions(client *Client) ([]byte, error) {
	topics := s.topics.Topics(client)
	sort.Strings(topics)
	return json.Marshal(SubscribeResp{Topics: topics})
}

// HandleSendMsg handles send message request
func (s *WsServer) HandleSendMsg(ctx context.Context, client *Client, req *WSRequest) ([]byte, error) {
	var sendReq SendMsgReq
	if err := json.Unmarshal(req.Data, &sendReq); err != nil {
		return nil, errcode.ErrInvalidParam
	}

	msg, err := s.svc.Messages.Send(ctx, client.UserId, &service.SendMessageRequest{
		ClientMsgId:      sendReq.ClientMsgId,
		ConversationId:   sendReq.ConversationId,
		RecvId:           sendReq.RecvId,
		MsgType:          sendReq.MsgType,
		Content:          sendReq.Content,
		AttachmentHandle: sendReq.AttachmentHandle,
	})
	if err != nil {
		return nil, err
	}

	return json.Marshal(SendMsgResp{Message: msg})
}

// HandleTyping handles typing indicator request
func (s *WsServer) HandleTyping(ctx context.Context, client *Client, req *WSRequest) ([]byte, error) {
	var typingReq TypingReq
	if err := json.Unmarshal(req.Data, &typingReq); err != nil || typingReq.ConversationId == "" {
		return nil, errcode.ErrInvalidParam
	}
	return nil, s.svc.Presence.Typing(ctx, client.UserId, typingReq.ConversationId, typingReq.Active)
}

// HandleMarkRead handles read cursor request
func (s *WsServer) HandleMarkRead(ctx context.Context, client *Client, req *WSRequest) ([]byte, error) {
	var readReq MarkReadReq
	if err := json.Unmarshal(req.Data, &readReq); err != nil || readReq.ConversationId == "" || readReq.MessageId == "" {
		return nil, errcode.ErrInvalidParam
	}
	return nil, s.svc.Reads.MarkRead(ctx, client.UserId, readReq.ConversationId, readReq.MessageId)
}

// HandleHeartbeat refreshes the user's presence
func (s *WsServer) HandleHeartbeat(ctx context.Context, client *Client, _ *WSRequest) ([]byte, error) {
	s.svc.Presence.Heartbeat(ctx, client.UserId)
	return nil, nil
}
