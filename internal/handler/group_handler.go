package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/parley/internal/service"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/response"
)

// GroupHandler handles group-related requests
type GroupHandler struct {
	groupService *service.GroupService
}

// NewGroupHandler creates a new GroupHandler
func NewGroupHandler(groupService *service.GroupService) *GroupHandler {
	return &GroupHandler{groupService: groupService}
}

// AddMembersRequest represents add members request
type AddMembersRequest struct {
	ConversationId string   `json:"conversation_id"`
	UserIds        []string `json:"user_ids"`
}

// RemoveMemberRequest represents remove member request
type RemoveMemberRequest struct {
	ConversationId string `json:"conversation_id"`
	UserId         string `json:"user_id"`
}

// LeaveGroupRequest represents leave group request
type LeaveGroupRequest struct {
	ConversationId string `json:"conversation_id"`
}

// CreateGroup handles create group request
func (h *GroupHandler) CreateGroup(ctx context.Context, c *app.RequestContext) {
	userId, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var req service.CreateGroupRequest
	if !bind(ctx, c, &req) {
		return
	}

	group, err := h.groupService.CreateGroup(ctx, userId, &req)
	reply(ctx, c, group, err)
}

// AddMembers handles add members request
func (h *GroupHandler) AddMembers(ctx context.Context, c *app.RequestContext) {
	userId, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var req AddMembersRequest
	if !bind(ctx, c, &req) {
		return
	}
	if req.ConversationId == "" || len(req.UserIds) == 0 {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	err := h.groupService.AddMembers(ctx, userId, req.ConversationId, req.UserIds)
	reply(ctx, c, nil, err)
}

// RemoveMember handles remove member request
func (h *GroupHandler) RemoveMember(ctx context.Context, c *app.RequestContext) {
	userId, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var req RemoveMemberRequest
	if !bind(ctx, c, &req) {
		return
	}
	if req.ConversationId == "" || req.UserId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	err := h.groupService.RemoveMember(ctx, userId, req.ConversationId, req.UserId)
	reply(ctx, c, nil, err)
}

// Leave handles leave group request
func (h *GroupHandler) Leave(ctx context.Context, c *app.RequestContext) {
	userId, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var req LeaveGroupRequest
	if !bind(ctx, c, &req) {
		return
	}
	if req.ConversationId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	err := h.groupService.Leave(ctx, req.ConversationId, userId)
	reply(ctx, c, nil, err)
}
