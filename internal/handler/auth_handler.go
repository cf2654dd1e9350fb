package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/parley/internal/middleware"
	"github.com/mbeoliero/parley/internal/service"
	"github.com/mbeoliero/parley/pkg/response"
)

// Kicker closes live connections of a user
type Kicker interface {
	KickUser(ctx context.Context, userId string, platformId int) int
}

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService *service.AuthService
	kicker      Kicker
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *service.AuthService, kicker Kicker) *AuthHandler {
	return &AuthHandler{authService: authService, kicker: kicker}
}

// Register handles user registration
func (h *AuthHandler) Register(ctx context.Context, c *app.RequestContext) {
	var req service.RegisterRequest
	if !bind(ctx, c, &req) {
		return
	}

	userInfo, err := h.authService.Register(ctx, &req)
	reply(ctx, c, userInfo, err)
}

// Login handles user login
func (h *AuthHandler) Login(ctx context.Context, c *app.RequestContext) {
	var req service.LoginRequest
	if !bind(ctx, c, &req) {
		return
	}

	resp, err := h.authService.Login(ctx, &req)
	if err == nil && resp.Displaced > 0 && h.kicker != nil {
		h.kicker.KickUser(ctx, resp.UserInfo.Id, req.PlatformId)
	}
	reply(ctx, c, resp, err)
}

// Logout ends the current session and closes the platform's sockets.
// With all=true every session and socket of the user is closed.
func (h *AuthHandler) Logout(ctx context.Context, c *app.RequestContext) {
	userId, ok := currentUser(ctx, c)
	if !ok {
		return
	}
	all := c.Query("all") == "true"
	if err := h.authService.Logout(ctx, userId, middleware.GetToken(c), all); err != nil {
		response.Error(ctx, c, err)
		return
	}

	if h.kicker != nil {
		platformId := middleware.GetPlatformId(c)
		if all {
			platformId = 0
		}
		h.kicker.KickUser(ctx, userId, platformId)
	}
	response.Success(ctx, c, nil)
}
