package sdk

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/parley/pkg/event"
)

// Session ties the HTTP client and the live stream to one Timeline per open
// conversation. Mutations are applied locally first and rolled back when the
// server rejects them.
type Session struct {
	client   *Client
	stream   *Stream
	viewerId string
	pageSize int
	now      func() time.Time
	newId    func() string

	Presence *PresenceView

	mu        sync.Mutex
	timelines map[string]*Timeline
	onNotice  func(event.Payload)
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithPageSize sets how many messages Open and LoadOlder fetch
func WithPageSize(n int) SessionOption {
	return func(s *Session) {
		s.pageSize = n
	}
}

// WithNoticeHandler receives user-topic and list-refresh events
func WithNoticeHandler(fn func(event.Payload)) SessionOption {
	return func(s *Session) {
		s.onNotice = fn
	}
}

// WithSessionClock replaces the time source for optimistic timestamps
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}

// NewSession builds a session for viewerId. The stream is created from cfg
// with its event and reconnect hooks bound to the session.
func NewSession(client *Client, viewerId string, cfg StreamConfig, opts ...SessionOption) *Session {
	s := &Session{
		client:    client,
		viewerId:  viewerId,
		pageSize:  50,
		now:       time.Now,
		newId:     uuid.NewString,
		Presence:  NewPresenceView(),
		timelines: make(map[string]*Timeline),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.UserId == "" {
		cfg.UserId = viewerId
	}
	if cfg.Token == "" {
		cfg.Token = client.GetToken()
	}
	if cfg.URL == "" {
		cfg.URL = StreamURL(client.BaseURL())
	}
	cfg.OnEvent = s.dispatch
	cfg.OnReconnect = s.markStale
	s.stream = NewStream(cfg)
	return s
}

// Start connects the stream
func (s *Session) Start(ctx context.Context) {
	s.stream.Start(ctx)
}

// Stream exposes the underlying stream
func (s *Session) Stream() *Stream {
	return s.stream
}

// Shutdown closes the stream
func (s *Session) Shutdown() {
	s.stream.Close()
}

// Open subscribes to a conversation and loads its newest page. Reopening a
// conversation whose timeline went stale after a reconnect refreshes it.
func (s *Session) Open(ctx context.Context, conversationId string) (*Timeline, error) {
	s.mu.Lock()
	tl, ok := s.timelines[conversationId]
	if !ok {
		tl = NewTimeline(conversationId, s.viewerId)
		s.timelines[conversationId] = tl
	}
	s.mu.Unlock()

	if ok && tl.Loaded() && !tl.Stale() {
		return tl, nil
	}

	if !ok {
		if _, err := s.stream.Subscribe(ctx, conversationId); err != nil {
			s.drop(conversationId)
			s.stream.Forget(conversationId)
			return nil, err
		}
	}

	page, err := s.client.PageMessages(ctx, conversationId, s.pageSize, 0)
	if err != nil {
		if !ok {
			s.drop(conversationId)
			_ = s.stream.Unsubscribe(ctx, conversationId)
		}
		return nil, err
	}
	tl.ApplySnapshot(page)
	return tl, nil
}

// Timeline returns the timeline of an open conversation
func (s *Session) Timeline(conversationId string) (*Timeline, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tl, ok := s.timelines[conversationId]
	return tl, ok
}

// LoadOlder pages in history before the oldest loaded message.
// It reports whether more history remains.
func (s *Session) LoadOlder(ctx context.Context, conversationId string) (bool, error) {
	tl, ok := s.Timeline(conversationId)
	if !ok {
		return false, ErrConversationShut
	}
	before, hasMore := tl.Cursor()
	if !hasMore {
		return false, nil
	}
	page, err := s.client.PageMessages(ctx, conversationId, s.pageSize, before)
	if err != nil {
		return true, err
	}
	tl.ApplyOlder(page)
	return page.HasMore, nil
}

// Close unsubscribes from the conversation topic; user and global topics stay
func (s *Session) Close(ctx context.Context, conversationId string) error {
	if !s.drop(conversationId) {
		return nil
	}
	s.Presence.Forget(conversationId)
	return s.stream.Unsubscribe(ctx, conversationId)
}

func (s *Session) drop(conversationId string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timelines[conversationId]; !ok {
		return false
	}
	delete(s.timelines, conversationId)
	return true
}

// Send adds a pending entry and submits it. On failure the entry stays as
// StateFailed so it can be retried or discarded.
func (s *Session) Send(ctx context.Context, conversationId string, msgType int32, content, attachmentHandle string) (Entry, error) {
	tl, ok := s.Timeline(conversationId)
	if !ok {
		return Entry{}, ErrConversationShut
	}
	clientMsgId := s.newId()
	tl.AddPending(clientMsgId, msgType, content, attachmentHandle, s.now().UnixMilli())
	return s.submit(ctx, tl, &SendMessageRequest{
		ClientMsgId:      clientMsgId,
		ConversationId:   conversationId,
		MsgType:          msgType,
		Content:          content,
		AttachmentHandle: attachmentHandle,
	})
}

// Retry resubmits a failed send with its original client message id
func (s *Session) Retry(ctx context.Context, conversationId, clientMsgId string) (Entry, error) {
	tl, ok := s.Timeline(conversationId)
	if !ok {
		return Entry{}, ErrConversationShut
	}
	e, ok := tl.Retry(clientMsgId)
	if !ok {
		return Entry{}, ErrUnknownMessage
	}
	return s.submit(ctx, tl, &SendMessageRequest{
		ClientMsgId:      clientMsgId,
		ConversationId:   conversationId,
		MsgType:          e.Type,
		Content:          e.Content,
		AttachmentHandle: e.AttachmentHandle,
	})
}

func (s *Session) submit(ctx context.Context, tl *Timeline, req *SendMessageRequest) (Entry, error) {
	msg, err := s.client.SendMessage(ctx, req)
	if err != nil {
		tl.Fail(req.ClientMsgId, err)
		log.CtxWarn(ctx, "send failed: conversation_id=%s, client_msg_id=%s, error=%v", req.ConversationId, req.ClientMsgId, err)
		return Entry{}, err
	}
	tl.Confirm(req.ClientMsgId, msg)
	e, _ := tl.Get(msg.Id)
	return e, nil
}

// Edit shows the new content at once and reverts it if the server refuses
func (s *Session) Edit(ctx context.Context, conversationId, messageId, content string) (Entry, error) {
	tl, ok := s.Timeline(conversationId)
	if !ok {
		return Entry{}, ErrConversationShut
	}
	prev, err := tl.stage(messageId, func(e *Entry) {
		e.Content = content
		e.State = StateEdited
	})
	if err != nil {
		return Entry{}, err
	}

	msg, err := s.client.EditMessage(ctx, messageId, content)
	if err != nil {
		tl.restore(messageId, func(cur *Entry) {
			if cur.State == StateEdited && cur.Content == content && editedAt(&cur.Message) == editedAt(&prev.Message) {
				cur.Content = prev.Content
				cur.State = prev.State
			}
		})
		return Entry{}, err
	}
	tl.Apply(&event.MessageEdited{Message: *msg})
	e, _ := tl.Get(messageId)
	return e, nil
}

// Delete tombstones the message at once and restores it if the server refuses
func (s *Session) Delete(ctx context.Context, conversationId, messageId string) (Entry, error) {
	tl, ok := s.Timeline(conversationId)
	if !ok {
		return Entry{}, ErrConversationShut
	}
	prev, err := tl.stage(messageId, func(e *Entry) {
		e.IsDeleted = true
		e.State = StateDeleted
	})
	if err != nil {
		return Entry{}, err
	}

	msg, err := s.client.DeleteMessage(ctx, messageId)
	if err != nil {
		tl.restore(messageId, func(cur *Entry) {
			if cur.State == StateDeleted && !prev.IsDeleted {
				cur.IsDeleted = false
				cur.State = prev.State
			}
		})
		return Entry{}, err
	}
	tl.Apply(&event.MessageDeleted{Message: *msg})
	e, _ := tl.Get(messageId)
	return e, nil
}

// React toggles the viewer's emoji locally, then adopts the server's aggregate
func (s *Session) React(ctx context.Context, conversationId, messageId, emoji string) (Entry, error) {
	tl, ok := s.Timeline(conversationId)
	if !ok {
		return Entry{}, ErrConversationShut
	}
	prev, err := tl.stage(messageId, func(e *Entry) {
		e.Reactions = tl.setReaction(e.Reactions, emoji, toggled(e.Reactions, emoji, s.viewerId))
	})
	if err != nil {
		return Entry{}, err
	}

	resp, err := s.client.ToggleReaction(ctx, messageId, emoji)
	if err != nil {
		tl.restore(messageId, func(cur *Entry) {
			cur.Reactions = prev.Reactions
		})
		return Entry{}, err
	}
	action := event.ReactionAdded
	if resp.Aggregate == nil || !slices.Contains(resp.Aggregate.ReactorIds, s.viewerId) {
		action = event.ReactionRemoved
	}
	tl.Apply(&event.ReactionChanged{
		MessageId:      messageId,
		ConversationId: conversationId,
		UserId:         s.viewerId,
		Emoji:          emoji,
		Action:         action,
		Aggregate:      resp.Aggregate,
	})
	e, _ := tl.Get(messageId)
	return e, nil
}

// toggled is the aggregate for emoji after the viewer flips their reaction
func toggled(reactions []Reaction, emoji, viewerId string) *Reaction {
	agg := Reaction{Emoji: emoji}
	for _, r := range reactions {
		if r.Emoji == emoji {
			agg = r
			agg.ReactorIds = slices.Clone(r.ReactorIds)
		}
	}
	if i := slices.Index(agg.ReactorIds, viewerId); i >= 0 {
		agg.ReactorIds = slices.Delete(agg.ReactorIds, i, i+1)
	} else {
		agg.ReactorIds = append(agg.ReactorIds, viewerId)
		slices.Sort(agg.ReactorIds)
	}
	agg.Count = len(agg.ReactorIds)
	if agg.Count == 0 {
		return nil
	}
	return &agg
}

// dispatch routes a push to the timeline, the presence view or the notice handler
func (s *Session) dispatch(env *event.Envelope, payload event.Payload) {
	if s.Presence.Apply(payload) {
		return
	}

	var conversationId string
	switch ev := payload.(type) {
	case *event.MessageCreated:
		conversationId = ev.ConversationId
	case *event.MessageEdited:
		conversationId = ev.ConversationId
	case *event.MessageDeleted:
		conversationId = ev.ConversationId
	case *event.ReactionChanged:
		conversationId = ev.ConversationId
	case *event.ConversationRemoved:
		if s.drop(ev.ConversationId) {
			s.stream.Forget(ev.ConversationId)
			s.Presence.Forget(ev.ConversationId)
		}
	}

	if conversationId != "" {
		if tl, ok := s.Timeline(conversationId); ok {
			tl.Apply(payload)
		}
		return
	}
	if s.onNotice != nil {
		s.onNotice(payload)
	}
}

// markStale flags every open timeline; each refreshes on its next Open
func (s *Session) markStale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tl := range s.timelines {
		tl.MarkStale()
	}
}
