package service

import (
	"context"
	"time"

	"github.com/mbeoliero/kit/log"
	"gorm.io/gorm"

	"github.com/mbeoliero/parley/internal/config"
	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/fanout"
	"github.com/mbeoliero/parley/internal/repository"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/event"
)

// Projection keeps each conversation's last-message summary and every
// participant's read cursor consistent with the message log.
// The On* hooks run inside the mutating transaction.
type Projection struct {
	repos      *repository.Repositories
	dispatcher EventDispatcher
	monotonic  bool
	now        Clock
}

// NewProjection creates a new Projection
func NewProjection(repos *repository.Repositories, cfg config.MessagingConfig, dispatcher EventDispatcher) *Projection {
	return &Projection{
		repos:      repos,
		dispatcher: orNop(dispatcher),
		monotonic:  cfg.MonotonicReadCursor,
		now:        time.Now,
	}
}

// SetClock replaces the time source
func (p *Projection) SetClock(now Clock) {
	p.now = now
}

// OnCreate points the projection at a freshly inserted message
func (p *Projection) OnCreate(ctx context.Context, tx *gorm.DB, msg *entity.Message, senderName string) error {
	return p.repos.Conversation.ApplyCreated(ctx, tx, msg, senderName)
}

// OnEdit refreshes the projected content if msg is still the last message
func (p *Projection) OnEdit(ctx context.Context, tx *gorm.DB, msg *entity.Message) error {
	return p.repos.Conversation.SetLastContent(ctx, tx, msg.ConversationId, msg.Id, msg.Content)
}

// OnDelete moves the projection back to the newest visible message when msg was the last one.
// It returns the new last message (nil when none is left) and whether the projection moved.
func (p *Projection) OnDelete(ctx context.Context, tx *gorm.DB, conv *entity.Conversation, msg *entity.Message) (*entity.Message, bool, error) {
	if conv.LastMessageId == nil || *conv.LastMessageId != msg.Id {
		return nil, false, nil
	}
	latest, err := p.repos.Message.GetLatestVisible(ctx, tx, conv.Id)
	if err != nil {
		return nil, false, err
	}
	senderName := ""
	if latest != nil {
		u, err := p.repos.User.GetByIdWithTx(ctx, tx, latest.SenderId)
		if err != nil {
			u = &entity.User{Id: latest.SenderId}
		}
		senderName = u.DisplayName()
	}
	if err := p.repos.Conversation.SetLast(ctx, tx, conv.Id, latest, senderName); err != nil {
		return nil, false, err
	}
	return latest, true, nil
}

// MarkRead moves userId's read cursor in conversationId to messageId
func (p *Projection) MarkRead(ctx context.Context, conversationId, userId, messageId string) error {
	part, err := p.repos.Participant.Get(ctx, nil, conversationId, userId)
	if err != nil {
		return bizErr(ctx, "get participant", err)
	}
	if part == nil {
		return errcode.ErrNotParticipant
	}

	msg, err := p.repos.Message.GetById(ctx, nil, messageId)
	if err != nil {
		return bizErr(ctx, "get message", err)
	}
	if msg == nil || msg.ConversationId != conversationId {
		return errcode.ErrMessageNotFound
	}

	if p.monotonic && part.LastReadMessageId != nil {
		cur, err := p.repos.Message.GetById(ctx, nil, *part.LastReadMessageId)
		if err != nil {
			return bizErr(ctx, "get read cursor", err)
		}
		if cur != nil && (cur.CreatedAt > msg.CreatedAt || (cur.CreatedAt == msg.CreatedAt && cur.Id > msg.Id)) {
			log.CtxDebug(ctx, "read cursor kept: conversation_id=%s, user_id=%s, cursor=%s", conversationId, userId, cur.Id)
			return nil
		}
	}

	readAt := p.now().UnixMilli()
	if err := p.repos.Participant.UpdateReadCursor(ctx, nil, conversationId, userId, messageId, readAt); err != nil {
		return bizErr(ctx, "update read cursor", err)
	}

	p.dispatcher.Dispatch(ctx, fanout.Event{
		Topics: []string{event.ConversationTopic(conversationId)},
		Payload: &event.ReadReceipt{
			ConversationId: conversationId,
			UserId:         userId,
			MessageId:      messageId,
			ReadAt:         readAt,
		},
	})
	return nil
}

// UnreadCount counts visible messages after userId's read cursor
func (p *Projection) UnreadCount(ctx context.Context, conversationId, userId string) (int64, error) {
	part, err := p.repos.Participant.Get(ctx, nil, conversationId, userId)
	if err != nil {
		return 0, bizErr(ctx, "get participant", err)
	}
	if part == nil {
		return 0, errcode.ErrNotParticipant
	}
	return p.unreadFor(ctx, part)
}

func (p *Projection) unreadFor(ctx context.Context, part *entity.Participant) (int64, error) {
	var after int64
	if part.LastReadMessageId != nil {
		cur, err := p.repos.Message.GetById(ctx, nil, *part.LastReadMessageId)
		if err != nil {
			return 0, bizErr(ctx, "get read cursor", err)
		}
		switch {
		case cur != nil:
			after = cur.CreatedAt
		case part.LastReadAt != nil:
			after = *part.LastReadAt
		}
	}
	n, err := p.repos.Message.CountVisibleAfter(ctx, part.ConversationId, after)
	if err != nil {
		return 0, bizErr(ctx, "count unread", err)
	}
	return n, nil
}
