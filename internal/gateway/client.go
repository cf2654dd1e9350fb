package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/parley/pkg/errcode"
)

// requestHandler serves one request identifier and returns the reply payload
type requestHandler func(s *WsServer, ctx context.Context, c *Client, req *WSRequest) ([]byte, error)

var requestHandlers = map[int32]requestHandler{
	WSSubscribe:   (*WsServer).HandleSubscribe,
	WSUnsubscribe: (*WsServer).HandleUnsubscribe,
	WSSendMsg:     (*WsServer).HandleSendMsg,
	WSTyping:      (*WsServer).HandleTyping,
	WSMarkRead:    (*WsServer).HandleMarkRead,
	WSHeartbeat:   (*WsServer).HandleHeartbeat,
}

// Client is one authenticated socket. Writes are serialized by mu; the read
// loop owns the connection's lifetime and unregisters it on exit.
type Client struct {
	UserId     string
	PlatformId int
	SDKType    string
	Token      string
	ConnId     string

	conn   ClientConn
	server *WsServer
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed atomic.Bool
}

func NewClient(conn ClientConn, userId string, platformId int, sdkType, token, connId string, server *WsServer) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		UserId:     userId,
		PlatformId: platformId,
		SDKType:    sdkType,
		Token:      token,
		ConnId:     connId,
		conn:       conn,
		server:     server,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start runs the read loop in its own goroutine
func (c *Client) Start() {
	go c.readLoop()
}

func (c *Client) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			log.CtxError(c.ctx, "read loop panic: user_id=%s, conn_id=%s, error=%v", c.UserId, c.ConnId, r)
		}
		_ = c.Close()
		c.server.UnregisterClient(c)
	}()

	for !c.closed.Load() {
		frame, err := c.conn.ReadMessage()
		if err != nil {
			log.CtxDebug(c.ctx, "socket read ended: user_id=%s, conn_id=%s, error=%v", c.UserId, c.ConnId, err)
			return
		}
		if err := c.serve(frame); err != nil {
			log.CtxWarn(c.ctx, "socket write failed: user_id=%s, conn_id=%s, error=%v", c.UserId, c.ConnId, err)
			return
		}
	}
}

// serve answers one request frame. Only a failed write ends the connection.
func (c *Client) serve(frame []byte) error {
	var req WSRequest
	if err := json.Unmarshal(frame, &req); err != nil {
		return c.write(WSResponse{ReqIdentifier: WSDataError, ErrCode: 1, ErrMsg: ErrInvalidProtocol.Error()})
	}
	if req.SendId != "" && req.SendId != c.UserId {
		return c.reply(&req, nil, ErrUserIdMismatch)
	}

	handle, ok := requestHandlers[req.ReqIdentifier]
	if !ok {
		return c.reply(&req, nil, ErrInvalidProtocol)
	}
	log.CtxDebug(c.ctx, "socket request: req_identifier=%d, user_id=%s, conn_id=%s", req.ReqIdentifier, c.UserId, c.ConnId)
	data, err := handle(c.server, c.ctx, c, &req)
	return c.reply(&req, data, err)
}

// reply echoes the request's identifier and msg_incr. Business errors keep
// their code; anything else is reported as code 1.
func (c *Client) reply(req *WSRequest, data []byte, err error) error {
	resp := WSResponse{
		ReqIdentifier: req.ReqIdentifier,
		MsgIncr:       req.MsgIncr,
		OperationId:   req.OperationId,
		Data:          data,
	}
	if err != nil {
		resp.Data = nil
		resp.ErrCode, resp.ErrMsg = 1, err.Error()
		var e *errcode.Error
		if errors.As(err, &e) {
			resp.ErrCode, resp.ErrMsg = e.Code, e.Msg
		}
	}
	return c.write(resp)
}

func (c *Client) write(resp WSResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return nil
	}
	return c.conn.WriteMessage(data)
}

// PushEvent forwards a serialized event envelope
func (c *Client) PushEvent(frame []byte) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	return c.write(WSResponse{ReqIdentifier: WSPushEvent, Data: frame})
}

// KickOnline tells the client it was logged out, then closes the socket
func (c *Client) KickOnline() error {
	_ = c.write(WSResponse{ReqIdentifier: WSKickOnlineMsg})
	return c.Close()
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()
	return c.conn.Close()
}

func (c *Client) IsClosed() bool {
	return c.closed.Load()
}
