package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/parley/pkg/event"
)

// EventHandler receives every validated push
type EventHandler func(env *event.Envelope, payload event.Payload)

// StreamConfig configures a Stream
type StreamConfig struct {
	// URL is the gateway endpoint, e.g. ws://localhost:8080/ws
	URL        string
	Token      string
	UserId     string
	PlatformId int

	RequestTimeout    time.Duration
	HeartbeatInterval time.Duration
	MinBackoff        time.Duration
	MaxBackoff        time.Duration
	Dialer            *websocket.Dialer

	OnEvent EventHandler
	// OnReconnect runs after a reconnect has re-subscribed; events sent during the gap are lost
	OnReconnect func()
	// OnKicked runs when the server kicks the connection; the stream stops reconnecting
	OnKicked func()
}

func (c *StreamConfig) applyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
}

// Stream is a live gateway connection that reconnects with backoff and
// re-subscribes the conversations it was following.
// Requests are correlated with replies by msg_incr.
type Stream struct {
	cfg StreamConfig

	incr       atomic.Uint64
	generation atomic.Uint64

	mu      sync.Mutex
	conn    *websocket.Conn
	ready   chan struct{}
	pending map[string]chan *WSResponse
	topics  map[string]struct{}

	writeMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// NewStream creates a stream; call Start to connect
func NewStream(cfg StreamConfig) *Stream {
	cfg.applyDefaults()
	return &Stream{
		cfg:     cfg,
		ready:   make(chan struct{}),
		pending: make(map[string]chan *WSResponse),
		topics:  make(map[string]struct{}),
		done:    make(chan struct{}),
	}
}

// StreamURL builds a gateway URL from the HTTP base URL of an API server
func StreamURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://") + "/ws"
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://") + "/ws"
	}
	return baseURL + "/ws"
}

// Start connects in the background until ctx ends or Close is called
func (s *Stream) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
}

// Close stops the stream and fails in-flight requests
func (s *Stream) Close() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	<-s.done
}

// Generation counts successful connects; it moves on every reconnect
func (s *Stream) Generation() uint64 {
	return s.generation.Load()
}

// WaitReady blocks until the stream is connected
func (s *Stream) WaitReady(ctx context.Context) error {
	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-s.done:
		return ErrStreamClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Stream) run(ctx context.Context) {
	defer close(s.done)
	defer s.failPending()

	backoff := s.cfg.MinBackoff
	for ctx.Err() == nil {
		conn, err := s.dial(ctx)
		if err != nil {
			log.CtxWarn(ctx, "stream dial failed: user_id=%s, retry_in=%s, error=%v", s.cfg.UserId, backoff, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, s.cfg.MaxBackoff)
			continue
		}
		backoff = s.cfg.MinBackoff

		gen := s.generation.Add(1)
		s.mu.Lock()
		s.conn = conn
		close(s.ready)
		s.mu.Unlock()
		log.CtxInfo(ctx, "stream connected: user_id=%s, generation=%d", s.cfg.UserId, gen)

		if gen > 1 {
			go s.resubscribe(ctx)
		}
		kicked := s.serve(ctx, conn)

		s.mu.Lock()
		s.conn = nil
		s.ready = make(chan struct{})
		s.mu.Unlock()
		s.failPending()

		if kicked {
			log.CtxInfo(ctx, "stream kicked by server: user_id=%s", s.cfg.UserId)
			if s.cfg.OnKicked != nil {
				s.cfg.OnKicked()
			}
			return
		}
	}
}

func (s *Stream) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse stream url: %w", err)
	}
	q := u.Query()
	q.Set("token", s.cfg.Token)
	q.Set("send_id", s.cfg.UserId)
	q.Set("platform_id", strconv.Itoa(s.cfg.PlatformId))
	q.Set("sdk_type", SDKType)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.cfg.Token)
	conn, resp, err := s.cfg.Dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return nil, err
	}
	return conn, nil
}

// serve reads frames until the connection breaks; it reports whether the server kicked us
func (s *Stream) serve(ctx context.Context, conn *websocket.Conn) bool {
	stop := make(chan struct{})
	defer close(stop)
	go s.heartbeat(ctx, stop)

	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-closed:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.CtxWarn(ctx, "stream read failed: user_id=%s, error=%v", s.cfg.UserId, err)
			}
			_ = conn.Close()
			return false
		}

		var resp WSResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			log.CtxWarn(ctx, "stream frame dropped: error=%v", err)
			continue
		}

		switch resp.ReqIdentifier {
		case WSPushEvent:
			s.handlePush(ctx, resp.Data)
		case WSKickOnlineMsg:
			_ = conn.Close()
			return true
		default:
			s.resolve(&resp)
		}
	}
}

func (s *Stream) handlePush(ctx context.Context, frame []byte) {
	env, payload, err := event.Decode(frame)
	if err != nil {
		log.CtxWarn(ctx, "invalid event dropped: error=%v", err)
		return
	}
	if s.cfg.OnEvent != nil {
		s.cfg.OnEvent(env, payload)
	}
}

func (s *Stream) heartbeat(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.call(ctx, WSHeartbeat, nil, nil); err != nil {
				log.CtxDebug(ctx, "heartbeat failed: error=%v", err)
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Stream) resubscribe(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.topics))
	for id := range s.topics {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		var resp SubscribeResp
		if err := s.call(ctx, WSSubscribe, &SubscribeReq{ConversationId: id}, &resp); err != nil {
			log.CtxWarn(ctx, "resubscribe failed: conversation_id=%s, error=%v", id, err)
		}
	}
	if s.cfg.OnReconnect != nil {
		s.cfg.OnReconnect()
	}
}

// Subscribe follows a conversation topic; it is re-subscribed after every reconnect
func (s *Stream) Subscribe(ctx context.Context, conversationId string) ([]string, error) {
	s.mu.Lock()
	s.topics[conversationId] = struct{}{}
	s.mu.Unlock()

	var resp SubscribeResp
	err := s.call(ctx, WSSubscribe, &SubscribeReq{ConversationId: conversationId}, &resp)
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) {
			s.mu.Lock()
			delete(s.topics, conversationId)
			s.mu.Unlock()
		}
		return nil, err
	}
	return resp.Topics, nil
}

// Unsubscribe stops following a conversation; user and global topics stay
func (s *Stream) Unsubscribe(ctx context.Context, conversationId string) error {
	s.mu.Lock()
	delete(s.topics, conversationId)
	s.mu.Unlock()

	err := s.call(ctx, WSUnsubscribe, &SubscribeReq{ConversationId: conversationId}, nil)
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

// Forget drops a conversation from the re-subscribe set without a round trip
func (s *Stream) Forget(conversationId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.topics, conversationId)
}

// SendMessage sends over the stream instead of HTTP
func (s *Stream) SendMessage(ctx context.Context, req *SendMessageRequest) (*Message, error) {
	var resp SendMsgResp
	if err := s.call(ctx, WSSendMsg, req, &resp); err != nil {
		return nil, err
	}
	return resp.Message, nil
}

// Typing announces or clears the typing indicator
func (s *Stream) Typing(ctx context.Context, conversationId string, active bool) error {
	return s.call(ctx, WSTyping, &TypingRequest{ConversationId: conversationId, Active: active}, nil)
}

// MarkRead moves the read cursor
func (s *Stream) MarkRead(ctx context.Context, conversationId, messageId string) error {
	return s.call(ctx, WSMarkRead, &MarkReadRequest{ConversationId: conversationId, MessageId: messageId}, nil)
}

// call sends one request frame and waits for the reply with the same msg_incr
func (s *Stream) call(ctx context.Context, reqId int32, payload interface{}, result interface{}) error {
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}
	msgIncr := strconv.FormatUint(s.incr.Add(1), 10)
	frame, err := json.Marshal(&WSRequest{
		ReqIdentifier: reqId,
		MsgIncr:       msgIncr,
		OperationId:   msgIncr,
		SendId:        s.cfg.UserId,
		Data:          data,
	})
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	replyCh := make(chan *WSResponse, 1)
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.pending[msgIncr] = replyCh
	s.mu.Unlock()
	defer s.dropPending(msgIncr)

	s.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.RequestTimeout))
	err = conn.WriteMessage(websocket.TextMessage, frame)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	timer := time.NewTimer(s.cfg.RequestTimeout)
	defer timer.Stop()
	select {
	case resp, ok := <-replyCh:
		if !ok || resp == nil {
			return ErrNotConnected
		}
		if resp.ReqIdentifier != reqId {
			return ErrUnexpectedReplyId
		}
		if resp.ErrCode != 0 {
			return &Error{Code: resp.ErrCode, Msg: resp.ErrMsg}
		}
		if result != nil && len(resp.Data) > 0 {
			if err := json.Unmarshal(resp.Data, result); err != nil {
				return fmt.Errorf("decode reply: %w", err)
			}
		}
		return nil
	case <-timer.C:
		return context.DeadlineExceeded
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Stream) resolve(resp *WSResponse) {
	s.mu.Lock()
	ch, ok := s.pending[resp.MsgIncr]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

func (s *Stream) dropPending(msgIncr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, msgIncr)
}

// failPending wakes every waiter; their replies will never arrive
func (s *Stream) failPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, ch := range s.pending {
		select {
		case ch <- nil:
		default:
		}
		delete(s.pending, k)
	}
}
