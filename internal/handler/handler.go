package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/parley/internal/middleware"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/response"
)

// currentUser returns the authenticated user or writes an unauthorized response
func currentUser(ctx context.Context, c *app.RequestContext) (string, bool) {
	userId := middleware.GetUserId(c)
	if userId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrUnauthorized)
		return "", false
	}
	return userId, true
}

// bind decodes the request body or writes an invalid-param response
func bind(ctx context.Context, c *app.RequestContext, req any) bool {
	if err := c.BindAndValidate(req); err != nil {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return false
	}
	return true
}

// reply writes data or the error
func reply(ctx context.Context, c *app.RequestContext, data any, err error) {
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, data)
}
