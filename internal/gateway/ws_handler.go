package gateway

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"
	"github.com/hertz-contrib/websocket"
	"github.com/mbeoliero/kit/log"
)

// HandleHertzConnection handles a WebSocket connection from Hertz using hertz-contrib/websocket
func (s *WsServer) HandleHertzConnection(ctx context.Context, c *app.RequestContext, upgrader *websocket.HertzUpgrader) {
	if s.onlineConnNum.Load() >= s.maxConnNum {
		c.String(503, "connection limit exceeded")
		return
	}

	token := string(c.Query(QueryToken))
	if token == "" {
		token = bearerToken(string(c.GetHeader("Authorization")))
	}
	sendId := string(c.Query(QuerySendId))
	sdkType := string(c.Query(QuerySDKType))

	if token == "" {
		c.String(400, "missing token")
		return
	}

	claims, err := s.authenticate(token, sendId, string(c.Query(QueryPlatformId)))
	if err != nil {
		log.CtxDebug(ctx, "token validation failed: send_id=%s, error=%v", sendId, err)
		c.String(401, "unauthorized")
		return
	}

	err = upgrader.Upgrade(c, func(conn *websocket.Conn) {
		wsConn := newQueuedConn(conn, timingsFrom(s.cfg))
		client := NewClient(wsConn, claims.UserId, claims.PlatformId, sdkType, token, uuid.NewString(), s)
		s.accept(client)

		// blocks for the life of the connection
		client.readLoop()
	})
	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
	}
}
