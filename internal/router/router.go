package router

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/adaptor"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mbeoliero/parley/internal/config"
	"github.com/mbeoliero/parley/internal/gateway"
	"github.com/mbeoliero/parley/internal/handler"
	"github.com/mbeoliero/parley/internal/middleware"
)

// Handlers holds all HTTP handlers
type Handlers struct {
	Auth         *handler.AuthHandler
	User         *handler.UserHandler
	Message      *handler.MessageHandler
	Reaction     *handler.ReactionHandler
	Conversation *handler.ConversationHandler
	Group        *handler.GroupHandler
	Block        *handler.BlockHandler
	Presence     *handler.PresenceHandler
	Attachment   *handler.AttachmentHandler
}

// SetupRouter sets up all routes
func SetupRouter(h *server.Hertz, cfg *config.Config, handlers *Handlers, auth app.HandlerFunc, wsServer *gateway.WsServer) {
	h.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	h.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, map[string]string{"status": "ok"})
	})
	h.GET("/metrics", adaptor.HertzHandler(promhttp.Handler()))

	authGroup := h.Group("/auth")
	{
		authGroup.POST("/register", handlers.Auth.Register)
		authGroup.POST("/login", handlers.Auth.Login)
		authGroup.POST("/logout", auth, handlers.Auth.Logout)
	}

	userGroup := h.Group("/user", auth)
	{
		userGroup.GET("/info", handlers.User.GetUserInfo)
		userGroup.GET("/info/:user_id", handlers.User.GetUserInfoById)
		userGroup.PUT("/update", handlers.User.UpdateUserInfo)
		userGroup.GET("/online", handlers.User.GetOnlineStatus)
	}

	msgGroup := h.Group("/msg", auth)
	{
		msgGroup.POST("/send", handlers.Message.SendMessage)
		msgGroup.POST("/edit", handlers.Message.EditMessage)
		msgGroup.POST("/delete", handlers.Message.DeleteMessage)
		msgGroup.GET("/page", handlers.Message.PageMessages)
	}

	h.POST("/reaction/toggle", auth, handlers.Reaction.Toggle)

	convGroup := h.Group("/conversation", auth)
	{
		convGroup.GET("/list", handlers.Conversation.GetConversationList)
		convGroup.GET("/info", handlers.Conversation.GetConversation)
		convGroup.GET("/participants", handlers.Conversation.GetParticipants)
		convGroup.POST("/mark_read", handlers.Conversation.MarkRead)
		convGroup.GET("/unread_count", handlers.Conversation.GetUnreadCount)
	}

	groupGroup := h.Group("/group", auth)
	{
		groupGroup.POST("/create", handlers.Group.CreateGroup)
		groupGroup.POST("/add_members", handlers.Group.AddMembers)
		groupGroup.POST("/remove_member", handlers.Group.RemoveMember)
		groupGroup.POST("/leave", handlers.Group.Leave)
	}

	blockGroup := h.Group("/block", auth)
	{
		blockGroup.POST("/add", handlers.Block.Block)
		blockGroup.POST("/remove", handlers.Block.Unblock)
		blockGroup.GET("/list", handlers.Block.List)
	}

	h.POST("/presence/typing", auth, handlers.Presence.Typing)

	attachGroup := h.Group("/attachment", auth)
	{
		attachGroup.POST("/upload", handlers.Attachment.Upload)
		attachGroup.GET("/:handle", handlers.Attachment.Download)
	}

	allowedOrigins := cfg.Server.AllowedOrigins
	upgrader := &websocket.HertzUpgrader{
		CheckOrigin: func(ctx *app.RequestContext) bool {
			return checkOrigin(ctx, allowedOrigins)
		},
	}

	h.GET("/ws", func(ctx context.Context, c *app.RequestContext) {
		wsServer.HandleHertzConnection(ctx, c, upgrader)
	})
}

// checkOrigin validates the Origin header against allowed origins
func checkOrigin(ctx *app.RequestContext, allowedOrigins []string) bool {
	origin := string(ctx.Request.Header.Peek("Origin"))

	// same-origin or non-browser client
	if origin == "" {
		return true
	}

	if len(allowedOrigins) == 0 {
		return false
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" || strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}
