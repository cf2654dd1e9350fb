package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/parley/internal/service"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/response"
)

// PresenceHandler handles typing signals sent over HTTP
type PresenceHandler struct {
	presenceService *service.PresenceService
}

// NewPresenceHandler creates a new PresenceHandler
func NewPresenceHandler(presenceService *service.PresenceService) *PresenceHandler {
	return &PresenceHandler{presenceService: presenceService}
}

// TypingRequest represents typing indicator request
type TypingRequest struct {
	ConversationId string `json:"conversation_id"`
	Active         bool   `json:"active"`
}

// Typing handles typing indicator request
func (h *PresenceHandler) Typing(ctx context.Context, c *app.RequestContext) {
	userId, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var req TypingRequest
	if !bind(ctx, c, &req) {
		return
	}
	if req.ConversationId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	reply(ctx, c, nil, h.presenceService.Typing(ctx, userId, req.ConversationId, req.Active))
}
