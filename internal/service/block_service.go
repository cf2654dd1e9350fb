package service

import (
	"context"
	"errors"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/fanout"
	"github.com/mbeoliero/parley/internal/repository"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/event"
)

// BlockService manages user-to-user blocks
type BlockService struct {
	repos      *repository.Repositories
	dispatcher EventDispatcher
}

// NewBlockService creates a new BlockService
func NewBlockService(repos *repository.Repositories, dispatcher EventDispatcher) *BlockService {
	return &BlockService{repos: repos, dispatcher: orNop(dispatcher)}
}

// BlockInfo is one entry of a user's block list
type BlockInfo struct {
	UserId    string `json:"user_id"`
	Nickname  string `json:"nickname"`
	Avatar    string `json:"avatar,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// Block stops blockedId and blockerId from messaging each other directly
func (s *BlockService) Block(ctx context.Context, blockerId, blockedId string) error {
	if blockerId == blockedId {
		return errcode.ErrInvalidParam.Wrap(errors.New("cannot block yourself"))
	}
	exists, err := s.repos.User.Exists(ctx, blockedId)
	if err != nil {
		return bizErr(ctx, "check user", err)
	}
	if !exists {
		return errcode.ErrUserNotFound
	}

	created, err := s.repos.Block.Create(ctx, blockerId, blockedId)
	if err != nil {
		return bizErr(ctx, "create block", err)
	}
	if !created {
		return nil
	}

	s.dispatcher.Dispatch(ctx, fanout.Event{
		Topics:  []string{event.UserTopic(blockedId)},
		Payload: &event.UserBlocked{BlockNotice: event.BlockNotice{BlockerId: blockerId, BlockedId: blockedId}},
	})
	log.CtxInfo(ctx, "user blocked: blocker_id=%s, blocked_id=%s", blockerId, blockedId)
	return nil
}

// Unblock lifts a block; lifting a missing block is a no-op
func (s *BlockService) Unblock(ctx context.Context, blockerId, blockedId string) error {
	removed, err := s.repos.Block.Delete(ctx, blockerId, blockedId)
	if err != nil {
		return bizErr(ctx, "delete block", err)
	}
	if !removed {
		return nil
	}

	s.dispatcher.Dispatch(ctx, fanout.Event{
		Topics:  []string{event.UserTopic(blockedId)},
		Payload: &event.UserUnblocked{BlockNotice: event.BlockNotice{BlockerId: blockerId, BlockedId: blockedId}},
	})
	log.CtxInfo(ctx, "user unblocked: blocker_id=%s, blocked_id=%s", blockerId, blockedId)
	return nil
}

// List returns the users blockerId has blocked, newest first
func (s *BlockService) List(ctx context.Context, blockerId string) ([]*BlockInfo, error) {
	blocks, err := s.repos.Block.ListByBlocker(ctx, blockerId)
	if err != nil {
		return nil, bizErr(ctx, "list blocks", err)
	}
	ids := make([]string, 0, len(blocks))
	for _, b := range blocks {
		ids = append(ids, b.BlockedId)
	}
	users, err := s.repos.User.GetMapByIds(ctx, ids)
	if err != nil {
		return nil, bizErr(ctx, "load users", err)
	}

	result := make([]*BlockInfo, 0, len(blocks))
	for _, b := range blocks {
		u, ok := users[b.BlockedId]
		if !ok {
			u = &entity.User{Id: b.BlockedId}
		}
		info := &BlockInfo{UserId: b.BlockedId, Nickname: u.DisplayName(), Avatar: u.Avatar, CreatedAt: b.CreatedAt}
		result = append(result, info)
	}
	return result, nil
}
