package service

import (
	"context"
	"errors"
	"strings"

	"github.com/mbeoliero/kit/log"
	"gorm.io/gorm"

	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/fanout"
	"github.com/mbeoliero/parley/internal/repository"
	"github.com/mbeoliero/parley/pkg/blob"
	"github.com/mbeoliero/parley/pkg/constant"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/event"
	"github.com/mbeoliero/parley/pkg/idgen"
)

// GroupService handles group membership and lifecycle
type GroupService struct {
	repos      *repository.Repositories
	reaper     *blobReaper
	dispatcher EventDispatcher
}

// NewGroupService creates a new GroupService
func NewGroupService(repos *repository.Repositories, blobs blob.Store, dispatcher EventDispatcher) *GroupService {
	return &GroupService{
		repos:      repos,
		reaper:     &blobReaper{store: blobs},
		dispatcher: orNop(dispatcher),
	}
}

// Wait blocks until background blob cleanups finish
func (s *GroupService) Wait() {
	s.reaper.wait()
}

// CreateGroupRequest represents group creation request
type CreateGroupRequest struct {
	Name      string   `json:"name"`
	Avatar    string   `json:"avatar,omitempty"`
	MemberIds []string `json:"member_ids,omitempty"`
}

// CreateGroup creates a group owned by creatorId with the initial members
func (s *GroupService) CreateGroup(ctx context.Context, creatorId string, req *CreateGroupRequest) (*entity.ConversationInfo, error) {
	if req.Name == "" {
		return nil, errcode.ErrInvalidParam.Wrap(errors.New("group name is required"))
	}
	members := dedupe(req.MemberIds, creatorId)
	if err := s.checkUsers(ctx, members); err != nil {
		return nil, err
	}

	groupId, err := idgen.NextID()
	if err != nil {
		log.CtxError(ctx, "generate group id failed: %v", err)
		return nil, errcode.ErrInternalServer
	}
	conv := &entity.Conversation{
		Id:            entity.GenGroupConversationId(groupId),
		Kind:          constant.ConversationKindGroup,
		Name:          req.Name,
		Avatar:        req.Avatar,
		CreatorUserId: creatorId,
	}

	err = s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.repos.Conversation.Create(ctx, tx, conv); err != nil {
			return err
		}
		if err := s.repos.Participant.Add(ctx, tx, &entity.Participant{
			ConversationId: conv.Id,
			UserId:         creatorId,
			RoleLevel:      constant.RoleLevelOwner,
		}); err != nil {
			return err
		}
		for _, uid := range members {
			if err := s.repos.Participant.Add(ctx, tx, &entity.Participant{
				ConversationId: conv.Id,
				UserId:         uid,
				RoleLevel:      constant.RoleLevelMember,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, bizErr(ctx, "create group", err)
	}

	s.notifyMembership(ctx, conv, creatorId, append([]string{creatorId}, members...), true)
	log.CtxInfo(ctx, "group created: conversation_id=%s, creator_id=%s, members=%d", conv.Id, creatorId, len(members)+1)
	return conv.ToConversationInfo(creatorId, 0), nil
}

// AddMembers adds userIds to a group; actorId must be an admin
func (s *GroupService) AddMembers(ctx context.Context, actorId, conversationId string, userIds []string) error {
	userIds = dedupe(userIds, "")
	if len(userIds) == 0 {
		return errcode.ErrInvalidParam.Wrap(errors.New("no members to add"))
	}
	if err := s.checkUsers(ctx, userIds); err != nil {
		return err
	}

	var conv *entity.Conversation
	err := s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		if conv, err = s.lockGroup(ctx, tx, conversationId); err != nil {
			return err
		}
		if err := s.requireAdmin(ctx, tx, conversationId, actorId); err != nil {
			return err
		}
		for _, uid := range userIds {
			existing, err := s.repos.Participant.Get(ctx, tx, conversationId, uid)
			if err != nil {
				return err
			}
			if existing != nil {
				return errcode.ErrAlreadyParticipant
			}
			if err := s.repos.Participant.Add(ctx, tx, &entity.Participant{
				ConversationId: conversationId,
				UserId:         uid,
				RoleLevel:      constant.RoleLevelMember,
			}); err != nil {
				return err
			}
		}
		return s.repos.Conversation.Touch(ctx, tx, conversationId)
	})
	if err != nil {
		return bizErr(ctx, "add members", err)
	}

	s.repos.Participant.InvalidateMembers(ctx, conversationId)
	s.notifyMembership(ctx, conv, actorId, userIds, true)
	log.CtxInfo(ctx, "members added: conversation_id=%s, actor_id=%s, user_ids=%v", conversationId, actorId, userIds)
	return nil
}

// RemoveMember removes userId from a group; actorId must be an admin and
// only the owner may remove another admin
func (s *GroupService) RemoveMember(ctx context.Context, actorId, conversationId, userId string) error {
	if actorId == userId {
		return errcode.ErrInvalidParam.Wrap(errors.New("use leave to remove yourself"))
	}

	var conv *entity.Conversation
	err := s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		if conv, err = s.lockGroup(ctx, tx, conversationId); err != nil {
			return err
		}
		actor, err := s.repos.Participant.Get(ctx, tx, conversationId, actorId)
		if err != nil {
			return err
		}
		if actor == nil {
			return errcode.ErrNotParticipant
		}
		if !actor.IsAdmin() {
			return errcode.ErrNotGroupAdmin
		}
		target, err := s.repos.Participant.Get(ctx, tx, conversationId, userId)
		if err != nil {
			return err
		}
		if target == nil {
			return errcode.ErrNotFound.Wrap(errors.New("user is not a participant"))
		}
		if target.IsOwner() {
			return errcode.ErrCannotRemoveOwner
		}
		if target.IsAdmin() && !actor.IsOwner() {
			return errcode.ErrNotGroupAdmin
		}
		if err := s.repos.Participant.Remove(ctx, tx, conversationId, userId); err != nil {
			return err
		}
		return s.repos.Conversation.Touch(ctx, tx, conversationId)
	})
	if err != nil {
		return bizErr(ctx, "remove member", err)
	}

	s.repos.Participant.InvalidateMembers(ctx, conversationId)
	s.notifyMembership(ctx, conv, actorId, []string{userId}, false)
	log.CtxInfo(ctx, "member removed: conversation_id=%s, actor_id=%s, user_id=%s", conversationId, actorId, userId)
	return nil
}

// Leave removes userId from a group. When the owner leaves and no admin is
// left, the most senior member becomes admin. The last member leaving deletes
// the group with all its messages.
func (s *GroupService) Leave(ctx context.Context, conversationId, userId string) error {
	var (
		conv     *entity.Conversation
		deleted  bool
		promoted string
		handles  []string
	)
	err := s.repos.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		if conv, err = s.lockGroup(ctx, tx, conversationId); err != nil {
			return err
		}
		part, err := s.repos.Participant.Get(ctx, tx, conversationId, userId)
		if err != nil {
			return err
		}
		if part == nil {
			return errcode.ErrNotParticipant
		}
		if err := s.repos.Participant.Remove(ctx, tx, conversationId, userId); err != nil {
			return err
		}

		remaining, err := s.repos.Participant.List(ctx, tx, conversationId)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			deleted = true
			handles, err = s.purge(ctx, tx, conversationId)
			return err
		}

		if part.IsOwner() {
			hasAdmin := false
			for _, p := range remaining {
				if p.IsAdmin() {
					hasAdmin = true
					break
				}
			}
			if !hasAdmin {
				promoted = remaining[0].UserId
				if err := s.repos.Participant.UpdateRole(ctx, tx, conversationId, promoted, constant.RoleLevelAdmin); err != nil {
					return err
				}
			}
		}
		return s.repos.Conversation.Touch(ctx, tx, conversationId)
	})
	if err != nil {
		return bizErr(ctx, "leave group", err)
	}

	s.repos.Participant.InvalidateMembers(ctx, conversationId)
	s.reaper.reap(ctx, handles)
	s.notifyMembership(ctx, conv, userId, []string{userId}, false)
	if promoted != "" {
		log.CtxInfo(ctx, "admin promoted: conversation_id=%s, user_id=%s", conversationId, promoted)
	}
	if !deleted {
		s.dispatcher.Dispatch(ctx, fanout.Event{
			Topics:  []string{event.ConversationTopic(conversationId)},
			Payload: &event.ConversationTouched{ConversationId: conversationId},
		})
	}
	log.CtxInfo(ctx, "member left: conversation_id=%s, user_id=%s, deleted=%t", conversationId, userId, deleted)
	return nil
}

// purge hard-deletes a conversation and everything in it, returning the blob handles to drop
func (s *GroupService) purge(ctx context.Context, tx *gorm.DB, conversationId string) ([]string, error) {
	ids, err := s.repos.Message.GetIdsByConversation(ctx, tx, conversationId)
	if err != nil {
		return nil, err
	}
	handles, err := s.repos.Attachment.DeleteByMessageIds(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Reaction.DeleteByConversation(ctx, tx, conversationId); err != nil {
		return nil, err
	}
	if err := s.repos.Message.DeleteByConversation(ctx, tx, conversationId); err != nil {
		return nil, err
	}
	if err := s.repos.Participant.DeleteByConversation(ctx, tx, conversationId); err != nil {
		return nil, err
	}
	if err := s.repos.Conversation.Delete(ctx, tx, conversationId); err != nil {
		return nil, err
	}
	return handles, nil
}

func (s *GroupService) lockGroup(ctx context.Context, tx *gorm.DB, conversationId string) (*entity.Conversation, error) {
	conv, err := s.repos.Conversation.GetByIdForUpdate(ctx, tx, conversationId)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, errcode.ErrConvNotFound
	}
	if !conv.IsGroup() {
		return nil, errcode.ErrNotGroupConversation
	}
	return conv, nil
}

func (s *GroupService) requireAdmin(ctx context.Context, tx *gorm.DB, conversationId, userId string) error {
	p, err := s.repos.Participant.Get(ctx, tx, conversationId, userId)
	if err != nil {
		return err
	}
	if p == nil {
		return errcode.ErrNotParticipant
	}
	if !p.IsAdmin() {
		return errcode.ErrNotGroupAdmin
	}
	return nil
}

func (s *GroupService) checkUsers(ctx context.Context, userIds []string) error {
	if len(userIds) == 0 {
		return nil
	}
	missing, err := s.repos.User.Missing(ctx, userIds)
	if err != nil {
		return bizErr(ctx, "load users", err)
	}
	if len(missing) > 0 {
		return errcode.ErrUserNotFound.Wrap(errors.New(strings.Join(missing, ",")))
	}
	return nil
}

// notifyMembership sends a conversation.added or conversation.removed notice to each user's topic
func (s *GroupService) notifyMembership(ctx context.Context, conv *entity.Conversation, actorId string, userIds []string, added bool) {
	m := event.Membership{
		ConversationId: conv.Id,
		ConvKind:       conv.Kind,
		Name:           conv.Name,
		ActorId:        actorId,
	}
	topics := make([]string, 0, len(userIds))
	for _, uid := range userIds {
		topics = append(topics, event.UserTopic(uid))
	}
	var payload event.Payload = &event.ConversationRemoved{Membership: m}
	if added {
		payload = &event.ConversationAdded{Membership: m}
	}
	s.dispatcher.Dispatch(ctx, fanout.Event{Topics: topics, Payload: payload})
}

// dedupe drops empty ids, duplicates and skip, keeping first-seen order
func dedupe(ids []string, skip string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || id == skip {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
