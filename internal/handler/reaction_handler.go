package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/parley/internal/service"
	"github.com/mbeoliero/parley/pkg/event"
)

// ReactionHandler handles reaction requests
type ReactionHandler struct {
	reactionService *service.ReactionService
}

// NewReactionHandler creates a new ReactionHandler
func NewReactionHandler(reactionService *service.ReactionService) *ReactionHandler {
	return &ReactionHandler{reactionService: reactionService}
}

// ToggleReactionRequest flips one user's emoji on one message
type ToggleReactionRequest struct {
	MessageId string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// ToggleReactionResponse is the emoji's aggregate after the toggle, nil when nobody is left
type ToggleReactionResponse struct {
	MessageId string          `json:"message_id"`
	Emoji     string          `json:"emoji"`
	Aggregate *event.Reaction `json:"aggregate"`
}

// Toggle handles toggle reaction request
func (h *ReactionHandler) Toggle(ctx context.Context, c *app.RequestContext) {
	userId, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var req ToggleReactionRequest
	if !bind(ctx, c, &req) {
		return
	}

	agg, err := h.reactionService.Toggle(ctx, userId, req.MessageId, req.Emoji)
	reply(ctx, c, &ToggleReactionResponse{MessageId: req.MessageId, Emoji: req.Emoji, Aggregate: agg}, err)
}
