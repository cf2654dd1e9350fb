package handler

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/parley/internal/service"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/response"
)

// UserHandler handles user-related requests
type UserHandler struct {
	userService     *service.UserService
	presenceService *service.PresenceService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(userService *service.UserService, presenceService *service.PresenceService) *UserHandler {
	return &UserHandler{userService: userService, presenceService: presenceService}
}

// GetUserInfo handles get user info request
func (h *UserHandler) GetUserInfo(ctx context.Context, c *app.RequestContext) {
	userId, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	userInfo, err := h.userService.GetUserInfo(ctx, userId)
	reply(ctx, c, userInfo, err)
}

// GetUserInfoById handles get user info by Id request
func (h *UserHandler) GetUserInfoById(ctx context.Context, c *app.RequestContext) {
	userId := c.Param("user_id")
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	userInfo, err := h.userService.GetUserInfo(ctx, userId)
	reply(ctx, c, userInfo, err)
}

// UpdateUserInfo handles update user info request
func (h *UserHandler) UpdateUserInfo(ctx context.Context, c *app.RequestContext) {
	userId, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var req service.UpdateUserRequest
	if !bind(ctx, c, &req) {
		return
	}

	userInfo, err := h.userService.UpdateUserInfo(ctx, userId, &req)
	reply(ctx, c, userInfo, err)
}

// GetOnlineStatus handles ?user_ids=a,b
func (h *UserHandler) GetOnlineStatus(ctx context.Context, c *app.RequestContext) {
	if _, ok := currentUser(ctx, c); !ok {
		return
	}

	var userIds []string
	for _, id := range strings.Split(c.Query("user_ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			userIds = append(userIds, id)
		}
	}
	if len(userIds) == 0 {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	status, err := h.presenceService.OnlineStatus(ctx, userIds)
	reply(ctx, c, status, err)
}
