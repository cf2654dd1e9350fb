package gateway

import "github.com/mbeoliero/parley/internal/entity"

// WSRequest represents a WebSocket request message
type WSRequest struct {
	ReqIdentifier int32  `json:"req_identifier"` // Request type
	MsgIncr       string `json:"msg_incr"`       // Client message counter/trace Id
	OperationId   string `json:"operation_id"`   // Operation Id
	Token         string `json:"token"`          // JWT token (optional, used in handshake)
	SendId        string `json:"send_id"`        // Sender user Id
	Data          []byte `json:"data"`           // Business data
}

// WSResponse represents a WebSocket response or push.
// For WSPushEvent, Data is a serialized event envelope.
type WSResponse struct {
	ReqIdentifier int32  `json:"req_identifier"` // Request type (echo back)
	MsgIncr       string `json:"msg_incr"`       // Message counter (echo back)
	OperationId   string `json:"operation_id"`   // Operation Id (echo back)
	ErrCode       int    `json:"err_code"`       // Error code, 0 = success
	ErrMsg        string `json:"err_msg"`        // Error message
	Data          []byte `json:"data"`           // Response data
}

// SubscribeReq names a conversation topic
type SubscribeReq struct {
	ConversationId string `json:"conversation_id"`
}

// SubscribeResp lists the topics the connection now receives
type SubscribeResp struct {
	Topics []string `json:"topics"`
}

// SendMsgReq represents send message request data
type SendMsgReq struct {
	ClientMsgId      string `json:"client_msg_id"`
	ConversationId   string `json:"conversation_id,omitempty"`
	RecvId           string `json:"recv_id,omitempty"`
	MsgType          int32  `json:"msg_type"`
	Content          string `json:"content"`
	AttachmentHandle string `json:"attachment_handle,omitempty"`
}

// SendMsgResp carries the committed message
type SendMsgResp struct {
	Message *entity.MessageInfo `json:"message"`
}

// TypingReq represents a typing indicator request
type TypingReq struct {
	ConversationId string `json:"conversation_id"`
	Active         bool   `json:"active"`
}

// MarkReadReq represents a read cursor update
type MarkReadReq struct {
	ConversationId string `json:"conversation_id"`
	MessageId      string `json:"message_id"`
}
