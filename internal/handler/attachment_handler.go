package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/parley/internal/service"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/response"
)

// AttachmentHandler handles attachment upload and download
type AttachmentHandler struct {
	attachmentService *service.AttachmentService
	maxSize           int64
}

// NewAttachmentHandler creates a new AttachmentHandler
func NewAttachmentHandler(attachmentService *service.AttachmentService, maxSize int64) *AttachmentHandler {
	return &AttachmentHandler{attachmentService: attachmentService, maxSize: maxSize}
}

// Upload handles a multipart upload in form field "file"
func (h *AttachmentHandler) Upload(ctx context.Context, c *app.RequestContext) {
	userId, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}
	if h.maxSize > 0 && fh.Size > h.maxSize {
		response.Error(ctx, c, errcode.ErrInvalidParam.Wrap(fmt.Errorf("file exceeds %d bytes", h.maxSize)))
		return
	}

	f, err := fh.Open()
	if err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	meta, err := h.attachmentService.Upload(ctx, userId, fh.Filename, mimeType, data)
	reply(ctx, c, meta, err)
}

// Download streams the blob named by :handle
func (h *AttachmentHandler) Download(ctx context.Context, c *app.RequestContext) {
	userId, ok := currentUser(ctx, c)
	if !ok {
		return
	}

	handle := c.Param("handle")
	if handle == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	meta, data, err := h.attachmentService.Download(ctx, userId, handle)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", meta.FileName))
	c.Data(http.StatusOK, meta.MimeType, data)
}
