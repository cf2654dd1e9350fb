package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/parley/internal/service"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/response"
)

// MessageHandler handles message-related requests
type MessageHandler struct {
	msgService *service.MessageService
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(msgService *service.MessageService) *MessageHandler {
	return &MessageHandler{msgService: msgService}
}

// EditMessageRequest replaces a message's content
type EditMessageRequest struct {
	MessageId string `json:"message_id"`
	Content   string `json:"content"`
}

// DeleteMessageRequest soft-deletes a message
type DeleteMessageRequest struct {
	MessageId string `json:"message_id"`
}

// SendMessage handles send message request
func (h *MessageHandler) SendMessage(ctx context.Context, c *app.RequestContext) {
	userId, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var req service.SendMessageRequest
	if !bind(ctx, c, &req) {
		return
	}

	msg, err := h.msgService.Send(ctx, userId, &req)
	reply(ctx, c, msg, err)
}

// EditMessage handles edit request
func (h *MessageHandler) EditMessage(ctx context.Context, c *app.RequestContext) {
	userId, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var req EditMessageRequest
	if !bind(ctx, c, &req) {
		return
	}
	if req.MessageId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	msg, err := h.msgService.Edit(ctx, userId, req.MessageId, req.Content)
	reply(ctx, c, msg, err)
}

// DeleteMessage handles delete request
func (h *MessageHandler) DeleteMessage(ctx context.Context, c *app.RequestContext) {
	userId, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	var req DeleteMessageRequest
	if !bind(ctx, c, &req) {
		return
	}
	if req.MessageId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	msg, err := h.msgService.Delete(ctx, userId, req.MessageId)
	reply(ctx, c, msg, err)
}

// PageMessages handles ?conversation_id&limit&before
func (h *MessageHandler) PageMessages(ctx context.Context, c *app.RequestContext) {
	userId, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	conversationId := c.Query("conversation_id")
	if conversationId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	var before int64
	if v := c.Query("before"); v != "" {
		var err error
		if before, err = strconv.ParseInt(v, 10, 64); err != nil || before <= 0 {
			response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
			return
		}
	}

	page, err := h.msgService.Page(ctx, userId, conversationId, limit, before)
	reply(ctx, c, page, err)
}
