package service

import (
	"context"
	"strings"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/internal/repository"
	"github.com/mbeoliero/parley/pkg/errcode"
)

// UserService serves profiles. Pages resolve sender names from the current
// profile; events already delivered keep the name they carried.
type UserService struct {
	repos *repository.Repositories
}

func NewUserService(repos *repository.Repositories) *UserService {
	return &UserService{repos: repos}
}

// GetUserInfo returns one profile with its presence
func (s *UserService) GetUserInfo(ctx context.Context, userId string) (*entity.UserInfo, error) {
	infos, err := s.GetUserInfos(ctx, []string{userId})
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, errcode.ErrUserNotFound
	}
	return infos[0], nil
}

// GetUserInfos returns the profiles that exist among userIds. Presence is
// omitted when Redis cannot be read.
func (s *UserService) GetUserInfos(ctx context.Context, userIds []string) ([]*entity.UserInfo, error) {
	users, err := s.repos.User.GetByIds(ctx, userIds)
	if err != nil {
		return nil, bizErr(ctx, "load users", err)
	}

	online, err := s.repos.Presence.AreOnline(ctx, userIds)
	if err != nil {
		log.CtxWarn(ctx, "read presence failed: count=%d, error=%v", len(userIds), err)
	}

	infos := make([]*entity.UserInfo, 0, len(users))
	for _, u := range users {
		info := u.ToUserInfo()
		if online != nil {
			info.WithOnline(online[u.Id])
		}
		infos = append(infos, info)
	}
	return infos, nil
}

type UpdateUserRequest struct {
	Nickname string `json:"nickname,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Extra    string `json:"extra,omitempty"`
}

func (r *UpdateUserRequest) columns() map[string]any {
	cols := make(map[string]any)
	if name := strings.TrimSpace(r.Nickname); name != "" {
		cols["nickname"] = name
	}
	if r.Avatar != "" {
		cols["avatar"] = r.Avatar
	}
	if r.Extra != "" {
		cols["extra"] = r.Extra
	}
	return cols
}

// UpdateUserInfo applies the non-empty fields of req
func (s *UserService) UpdateUserInfo(ctx context.Context, userId string, req *UpdateUserRequest) (*entity.UserInfo, error) {
	exists, err := s.repos.User.Exists(ctx, userId)
	if err != nil {
		return nil, bizErr(ctx, "check user", err)
	}
	if !exists {
		return nil, errcode.ErrUserNotFound
	}

	if cols := req.columns(); len(cols) > 0 {
		if err := s.repos.User.Update(ctx, userId, cols); err != nil {
			return nil, bizErr(ctx, "update user", err)
		}
		log.CtxInfo(ctx, "profile updated: user_id=%s, fields=%d", userId, len(cols))
	}
	return s.GetUserInfo(ctx, userId)
}
