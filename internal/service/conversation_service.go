package service

import (
	"context"

	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/repository"
	"github.com/mbeoliero/parley/pkg/errcode"
)

// ConversationService serves conversation list and detail views
type ConversationService struct {
	repos      *repository.Repositories
	projection *Projection
}

// NewConversationService creates a new ConversationService
func NewConversationService(repos *repository.Repositories, projection *Projection) *ConversationService {
	return &ConversationService{repos: repos, projection: projection}
}

// GetUserConversations lists userId's conversations, most recently active first
func (s *ConversationService) GetUserConversations(ctx context.Context, userId string) ([]*entity.ConversationInfo, error) {
	convs, err := s.repos.Conversation.GetUserConversations(ctx, userId)
	if err != nil {
		return nil, bizErr(ctx, "list conversations", err)
	}
	parts, err := s.repos.Participant.ListByUser(ctx, userId)
	if err != nil {
		return nil, bizErr(ctx, "list memberships", err)
	}
	byConv := make(map[string]*entity.Participant, len(parts))
	for _, p := range parts {
		byConv[p.ConversationId] = p
	}

	result := make([]*entity.ConversationInfo, 0, len(convs))
	for _, conv := range convs {
		var unread int64
		if p, ok := byConv[conv.Id]; ok {
			if unread, err = s.projection.unreadFor(ctx, p); err != nil {
				return nil, err
			}
		}
		result = append(result, conv.ToConversationInfo(userId, unread))
	}
	return result, nil
}

// GetConversation gets one conversation as seen by userId
func (s *ConversationService) GetConversation(ctx context.Context, userId, conversationId string) (*entity.ConversationInfo, error) {
	conv, part, err := s.load(ctx, userId, conversationId)
	if err != nil {
		return nil, err
	}
	unread, err := s.projection.unreadFor(ctx, part)
	if err != nil {
		return nil, err
	}
	return conv.ToConversationInfo(userId, unread), nil
}

// GetParticipants lists the participants of a conversation with their read cursors
func (s *ConversationService) GetParticipants(ctx context.Context, userId, conversationId string) ([]*entity.ParticipantInfo, error) {
	if _, _, err := s.load(ctx, userId, conversationId); err != nil {
		return nil, err
	}
	parts, err := s.repos.Participant.List(ctx, nil, conversationId)
	if err != nil {
		return nil, bizErr(ctx, "list participants", err)
	}
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		ids = append(ids, p.UserId)
	}
	users, err := s.repos.User.GetMapByIds(ctx, ids)
	if err != nil {
		return nil, bizErr(ctx, "load users", err)
	}

	result := make([]*entity.ParticipantInfo, 0, len(parts))
	for _, p := range parts {
		info := &entity.ParticipantInfo{
			UserId:            p.UserId,
			Nickname:          p.UserId,
			RoleLevel:         p.RoleLevel,
			JoinedAt:          p.JoinedAt,
			LastReadMessageId: p.LastReadMessageId,
			LastReadAt:        p.LastReadAt,
		}
		if u, ok := users[p.UserId]; ok {
			info.Nickname = u.Nickname
			info.Avatar = u.Avatar
		}
		result = append(result, info)
	}
	return result, nil
}

// MarkRead moves userId's read cursor
func (s *ConversationService) MarkRead(ctx context.Context, userId, conversationId, messageId string) error {
	return s.projection.MarkRead(ctx, conversationId, userId, messageId)
}

// GetUnreadCount counts messages userId has not read yet
func (s *ConversationService) GetUnreadCount(ctx context.Context, userId, conversationId string) (int64, error) {
	return s.projection.UnreadCount(ctx, conversationId, userId)
}

func (s *ConversationService) load(ctx context.Context, userId, conversationId string) (*entity.Conversation, *entity.Participant, error) {
	conv, err := s.repos.Conversation.GetById(ctx, nil, conversationId)
	if err != nil {
		return nil, nil, bizErr(ctx, "get conversation", err)
	}
	if conv == nil {
		return nil, nil, errcode.ErrConvNotFound
	}
	part, err := s.repos.Participant.Get(ctx, nil, conversationId, userId)
	if err != nil {
		return nil, nil, bizErr(ctx, "get participant", err)
	}
	if part == nil {
		return nil, nil, errcode.ErrNotParticipant
	}
	return conv, part, nil
}
