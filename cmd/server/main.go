package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/parley/internal/config"
	"github.com/mbeoliero/parley/internal/fanout"
	"github.com/mbeoliero/parley/internal/gateway"
	"github.com/mbeoliero/parley/internal/handler"
	"github.com/mbeoliero/parley/internal/middleware"
	"github.com/mbeoliero/parley/internal/repository"
	"github.com/mbeoliero/parley/internal/router"
	"github.com/mbeoliero/parley/internal/service"
	"github.com/mbeoliero/parley/pkg/blob"
	"github.com/mbeoliero/parley/pkg/constant"
	"github.com/mbeoliero/parley/pkg/idgen"
	"github.com/mbeoliero/parley/pkg/jwt"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(config.ResolvePath("config/config.yaml"))
	if err != nil {
		log.CtxError(ctx, "failed to load config: %v", err)
		panic(err)
	}
	log.CtxInfo(ctx, "config loaded: mode=%s", cfg.Server.Mode)

	constant.InitRedisKeyPrefix(cfg.Redis.KeyPrefix)
	log.CtxInfo(ctx, "redis key prefix: %s", constant.GetRedisKeyPrefix())

	gen, err := idgen.NewSonyflake(cfg.Server.MachineId)
	if err != nil {
		log.CtxError(ctx, "failed to initialize id generator: %v", err)
		panic(err)
	}
	idgen.SetDefault(gen)

	repos, err := repository.NewRepositories(cfg)
	if err != nil {
		log.CtxError(ctx, "failed to initialize repositories: %v", err)
		panic(err)
	}
	defer repos.Close()

	if err := repos.CheckConnection(ctx); err != nil {
		log.CtxError(ctx, "database connection check failed: %v", err)
		panic(err)
	}
	log.CtxInfo(ctx, "database connection established")

	blobs, err := blob.Open(cfg.Blob.Path, blob.Options{MaxSize: cfg.Blob.MaxSize})
	if err != nil {
		log.CtxError(ctx, "failed to open blob store: %v", err)
		panic(err)
	}
	defer blobs.Close()

	transport := fanout.NewRedisTransport(repos.Redis)
	publisher := fanout.NewPublisher(transport, cfg.Messaging.PublishTimeout)

	authService := service.NewAuthService(repos.User, cfg, repos.Redis)
	userService := service.NewUserService(repos)
	projection := service.NewProjection(repos, cfg.Messaging, publisher)
	msgService := service.NewMessageService(repos, projection, blobs, cfg.Messaging, publisher)
	convService := service.NewConversationService(repos, projection)
	groupService := service.NewGroupService(repos, blobs, publisher)
	reactionService := service.NewReactionService(repos, publisher)
	blockService := service.NewBlockService(repos, publisher)
	presenceService := service.NewPresenceService(repos, cfg.Presence, publisher)
	attachmentService := service.NewAttachmentService(repos, blobs)

	// native tokens must also be live in the token store; external ones are never stored
	validate := func(ctx context.Context, token string) (*jwt.Claims, error) {
		if _, err := jwt.ParseToken(token, cfg.JWT.Secret); err == nil {
			return authService.ValidateToken(ctx, token)
		}
		return middleware.ParseTokenWithFallback(token, cfg)
	}

	wsServer := gateway.NewWsServer(cfg.WebSocket, func(token string) (*jwt.Claims, error) {
		return validate(ctx, token)
	}, transport, gateway.Services{
		Messages: msgService,
		Reads:    convService,
		Presence: presenceService,
		Members:  repos.Participant,
	})
	wsServer.Run(ctx)
	log.CtxInfo(ctx, "websocket server started")

	auth := middleware.JWTAuth(cfg, func(ctx context.Context, _ *jwt.Claims, token string) bool {
		_, err := validate(ctx, token)
		return err == nil
	})

	handlers := &router.Handlers{
		Auth:         handler.NewAuthHandler(authService, wsServer),
		User:         handler.NewUserHandler(userService, presenceService),
		Message:      handler.NewMessageHandler(msgService),
		Reaction:     handler.NewReactionHandler(reactionService),
		Conversation: handler.NewConversationHandler(convService),
		Group:        handler.NewGroupHandler(groupService),
		Block:        handler.NewBlockHandler(blockService),
		Presence:     handler.NewPresenceHandler(presenceService),
		Attachment:   handler.NewAttachmentHandler(attachmentService, cfg.Blob.MaxSize),
	}

	h := server.Default(
		server.WithHostPorts(fmt.Sprintf(":%d", cfg.Server.HTTPPort)),
		server.WithMaxRequestBodySize(int(cfg.Blob.MaxSize)+1<<20),
	)
	router.SetupRouter(h, cfg, handlers, auth, wsServer)

	log.CtxInfo(ctx, "server starting on port %d", cfg.Server.HTTPPort)
	go func() {
		h.Spin()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.CtxInfo(ctx, "shutting down server...")

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := h.Shutdown(shutdownCtx); err != nil {
		log.CtxError(ctx, "server shutdown error: %v", err)
	}
	cancel()

	// let detached publishes and blob cleanup finish before closing stores
	msgService.Wait()
	groupService.Wait()
	publisher.Wait()

	log.CtxInfo(ctx, "server stopped")
}
