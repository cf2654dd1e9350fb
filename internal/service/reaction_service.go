package service

import (
	"context"
	"errors"

	"github.com/mbeoliero/kit/log"
	"gorm.io/gorm"

	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/fanout"
	"github.com/mbeoliero/parley/internal/repository"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/event"
)

const maxEmojiBytes = 64

// ReactionService toggles emoji reactions
type ReactionService struct {
	repos      *repository.Repositories
	dispatcher EventDispatcher
}

// NewReactionService creates a new ReactionService
func NewReactionService(repos *repository.Repositories, dispatcher EventDispatcher) *ReactionService {
	return &ReactionService{repos: repos, dispatcher: orNop(dispatcher)}
}

// Toggle adds userId's emoji reaction to messageId, or removes it when present.
// It returns the recomputed aggregate for the emoji, nil when nobody reacts with it anymore.
func (s *ReactionService) Toggle(ctx context.Context, userId, messageId, emoji string) (*event.Reaction, error) {
	if emoji == "" || len(emoji) > maxEmojiBytes {
		return nil, errcode.ErrInvalidParam.Wrap(errors.New("emoji must be 1 to 64 bytes"))
	}

	var (
		msg    *entity.Message
		rows   []*entity.Reaction
		action = event.ReactionRemoved
	)
	err := s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		if msg, err = s.repos.Message.GetById(ctx, tx, messageId); err != nil {
			return err
		}
		if msg == nil {
			return errcode.ErrMessageNotFound
		}
		// serializes against Delete, which purges reactions under the same lock
		conv, err := s.repos.Conversation.GetByIdForUpdate(ctx, tx, msg.ConversationId)
		if err != nil {
			return err
		}
		if conv == nil {
			return errcode.ErrMessageNotFound
		}
		if msg, err = s.repos.Message.GetById(ctx, tx, messageId); err != nil {
			return err
		}
		if msg == nil || msg.IsDeleted {
			return errcode.ErrMessageNotFound
		}
		part, err := s.repos.Participant.Get(ctx, tx, msg.ConversationId, userId)
		if err != nil {
			return err
		}
		if part == nil {
			return errcode.ErrNotParticipant
		}

		removed, err := s.repos.Reaction.Delete(ctx, tx, messageId, userId, emoji)
		if err != nil {
			return err
		}
		if !removed {
			action = event.ReactionAdded
			if err := s.repos.Reaction.Insert(ctx, tx, &entity.Reaction{
				MessageId:      messageId,
				UserId:         userId,
				Emoji:          emoji,
				ConversationId: msg.ConversationId,
			}); err != nil {
				return err
			}
		}
		rows, err = s.repos.Reaction.ListByMessageEmoji(ctx, tx, messageId, emoji)
		return err
	})
	if err != nil {
		return nil, bizErr(ctx, "toggle reaction", err)
	}

	var agg, broadcast *event.Reaction
	if aggs := entity.AggregateReactions(rows, userId); len(aggs) > 0 {
		agg = &aggs[0]
		b := *agg
		b.ViewerHasReacted = false
		broadcast = &b
	}

	s.dispatcher.Dispatch(ctx, fanout.Event{
		Topics: []string{event.ConversationTopic(msg.ConversationId)},
		Payload: &event.ReactionChanged{
			MessageId:      messageId,
			ConversationId: msg.ConversationId,
			UserId:         userId,
			Emoji:          emoji,
			Action:         action,
			Aggregate:      broadcast,
		},
	})
	log.CtxDebug(ctx, "reaction toggled: message_id=%s, user_id=%s, emoji=%s, action=%s", messageId, userId, emoji, action)
	return agg, nil
}
