package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/parley/internal/service"
)

// BlockHandler handles block list requests
type BlockHandler struct {
	blockService *service.BlockService
}

// NewBlockHandler creates a new BlockHandler
func NewBlockHandler(blockService *service.BlockService) *BlockHandler {
	return &BlockHandler{blockService: blockService}
}

// BlockRequest names the other user
type BlockRequest struct {
	UserId string `json:"user_id"`
}

// Block handles block request
func (h *BlockHandler) Block(ctx context.Context, c *app.RequestContext) {
	userId, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var req BlockRequest
	if !bind(ctx, c, &req) {
		return
	}

	reply(ctx, c, nil, h.blockService.Block(ctx, userId, req.UserId))
}

// Unblock handles unblock request
func (h *BlockHandler) Unblock(ctx context.Context, c *app.RequestContext) {
	userId, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var req BlockRequest
	if !bind(ctx, c, &req) {
		return
	}

	reply(ctx, c, nil, h.blockService.Unblock(ctx, userId, req.UserId))
}

// List handles block list request
func (h *BlockHandler) List(ctx context.Context, c *app.RequestContext) {
	userId, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	list, err := h.blockService.List(ctx, userId)
	reply(ctx, c, list, err)
}
