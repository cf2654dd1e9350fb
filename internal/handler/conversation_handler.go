package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/parley/internal/service"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/response"
)

// ConversationHandler handles conversation-related requests
type ConversationHandler struct {
	convService *service.ConversationService
}

// NewConversationHandler creates a new ConversationHandler
func NewConversationHandler(convService *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{convService: convService}
}

// MarkReadRequest moves the caller's read cursor
type MarkReadRequest struct {
	ConversationId string `json:"conversation_id"`
	MessageId      string `json:"message_id"`
}

// GetConversationList handles get conversation list request
func (h *ConversationHandler) GetConversationList(ctx context.Context, c *app.RequestContext) {
	userId, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	convs, err := h.convService.GetUserConversations(ctx, userId)
	reply(ctx, c, convs, err)
}

// GetConversation handles get single conversation request
func (h *ConversationHandler) GetConversation(ctx context.Context, c *app.RequestContext) {
	userId, conversationId, ok := h.target(ctx, c)
	if !ok {
		return
	}

	conv, err := h.convService.GetConversation(ctx, userId, conversationId)
	reply(ctx, c, conv, err)
}

// GetParticipants handles participant list request
func (h *ConversationHandler) GetParticipants(ctx context.Context, c *app.RequestContext) {
	userId, conversationId, ok := h.target(ctx, c)
	if !ok {
		return
	}

	parts, err := h.convService.GetParticipants(ctx, userId, conversationId)
	reply(ctx, c, parts, err)
}

// MarkRead handles mark read request
func (h *ConversationHandler) MarkRead(ctx context.Context, c *app.RequestContext) {
	userId, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var req MarkReadRequest
	if !bind(ctx, c, &req) {
		return
	}
	if req.ConversationId == "" || req.MessageId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	err := h.convService.MarkRead(ctx, userId, req.ConversationId, req.MessageId)
	reply(ctx, c, nil, err)
}

// GetUnreadCount handles unread count request
func (h *ConversationHandler) GetUnreadCount(ctx context.Context, c *app.RequestContext) {
	userId, conversationId, ok := h.target(ctx, c)
	if !ok {
		return
	}

	count, err := h.convService.GetUnreadCount(ctx, userId, conversationId)
	reply(ctx, c, map[string]int64{"unread_count": count}, err)
}

func (h *ConversationHandler) target(ctx context.Context, c *app.RequestContext) (string, string, bool) {
	userId, ok := currentUser(ctx, c)
	if !ok {
		return "", "", false
	}
	conversationId := c.Query("conversation_id")
	if conversationId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return "", "", false
	}
	return userId, conversationId, true
}
