package sdk

import (
	"encoding/json"

	"github.com/mbeoliero/parley/pkg/event"
)

// Response represents the standard API response
type Response struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Wire types shared with the server's event stream
type (
	Message    = event.Message
	Reaction   = event.Reaction
	Attachment = event.Attachment
)

// UserInfo represents public user info
type UserInfo struct {
	Id        string  `json:"id"`
	Nickname  string  `json:"nickname"`
	Avatar    string  `json:"avatar"`
	Extra     *string `json:"extra,omitempty"`
	Online    *bool   `json:"online,omitempty"`
	CreatedAt int64   `json:"created_at"`
}

// ConversationInfo is one row of the conversation list
type ConversationInfo struct {
	Id                  string  `json:"id"`
	Kind                int32   `json:"kind"`
	Name                string  `json:"name,omitempty"`
	Avatar              string  `json:"avatar,omitempty"`
	PeerUserId          string  `json:"peer_user_id,omitempty"`
	LastMessageId       *string `json:"last_message_id"`
	LastMessageAt       *int64  `json:"last_message_at"`
	LastMessageContent  *string `json:"last_message_content"`
	LastMessageSenderId *string `json:"last_message_sender_id"`
	LastMessageSender   *string `json:"last_message_sender_name"`
	MessageCount        int64   `json:"message_count"`
	UnreadCount         int64   `json:"unread_count"`
	UpdatedAt           int64   `json:"updated_at"`
}

// ParticipantInfo is a conversation member with their read cursor
type ParticipantInfo struct {
	UserId            string  `json:"user_id"`
	Nickname          string  `json:"nickname"`
	Avatar            string  `json:"avatar"`
	RoleLevel         int32   `json:"role_level"`
	JoinedAt          int64   `json:"joined_at"`
	LastReadMessageId *string `json:"last_read_message_id"`
	LastReadAt        *int64  `json:"last_read_at"`
}

// RegisterRequest represents user registration request
type RegisterRequest struct {
	UserId   string `json:"user_id"`
	Nickname string `json:"nickname"`
	Password string `json:"password"`
	Avatar   string `json:"avatar,omitempty"`
}

// LoginRequest represents user login request
type LoginRequest struct {
	UserId     string `json:"user_id"`
	Password   string `json:"password"`
	PlatformId int    `json:"platform_id"`
}

// LoginResponse represents user login response
type LoginResponse struct {
	Token    string    `json:"token"`
	UserInfo *UserInfo `json:"user_info"`
}

// UpdateUserRequest represents update user info request
type UpdateUserRequest struct {
	Nickname string `json:"nickname,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Extra    string `json:"extra,omitempty"`
}

// SendMessageRequest targets either a conversation or, for direct chats, a recipient
type SendMessageRequest struct {
	ClientMsgId      string `json:"client_msg_id"`
	ConversationId   string `json:"conversation_id,omitempty"`
	RecvId           string `json:"recv_id,omitempty"`
	MsgType          int32  `json:"msg_type"`
	Content          string `json:"content"`
	AttachmentHandle string `json:"attachment_handle,omitempty"`
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

// PageResult is one page of history in chronological order.
// NextCursor, when set, is the before value for the next older page.
type PageResult struct {
	Messages   []*Message `json:"messages"`
	HasMore    bool       `json:"has_more"`
	NextCursor *int64     `json:"next_cursor"`
}

// ToggleReactionRequest represents toggle reaction request
type ToggleReactionRequest struct {
	MessageId string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// ToggleReactionResponse carries the emoji's aggregate, nil when nobody is left
type ToggleReactionResponse struct {
	MessageId string    `json:"message_id"`
	Emoji     string    `json:"emoji"`
	Aggregate *Reaction `json:"aggregate"`
}

// MarkReadRequest moves the caller's read cursor
type MarkReadRequest struct {
	ConversationId string `json:"conversation_id"`
	MessageId      string `json:"message_id"`
}

// UnreadCountResponse represents unread count response
type UnreadCountResponse struct {
	UnreadCount int64 `json:"unread_count"`
}

// CreateGroupRequest represents create group request
type CreateGroupRequest struct {
	Name      string   `json:"name"`
	Avatar    string   `json:"avatar,omitempty"`
	MemberIds []string `json:"member_ids,omitempty"`
}

// AddMembersRequest represents add members request
type AddMembersRequest struct {
	ConversationId string   `json:"conversation_id"`
	UserIds        []string `json:"user_ids"`
}

// RemoveMemberRequest represents remove member request
type RemoveMemberRequest struct {
	ConversationId string `json:"conversation_id"`
	UserId         string `json:"user_id"`
}

// LeaveGroupRequest represents leave group request
type LeaveGroupRequest struct {
	ConversationId string `json:"conversation_id"`
}

// BlockRequest names the user to block or unblock
type BlockRequest struct {
	UserId string `json:"user_id"`
}

// BlockInfo is one entry of the caller's block list
type BlockInfo struct {
	UserId    string `json:"user_id"`
	Nickname  string `json:"nickname"`
	Avatar    string `json:"avatar,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// TypingRequest represents typing indicator request
type TypingRequest struct {
	ConversationId string `json:"conversation_id"`
	Active         bool   `json:"active"`
}

// AttachmentMeta describes an uploaded blob
type AttachmentMeta struct {
	Handle    string `json:"handle"`
	Owner     string `json:"owner"`
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	Size      int64  `json:"size"`
	CreatedAt int64  `json:"created_at"`
}

// WSRequest is a request frame sent over the stream
type WSRequest struct {
	ReqIdentifier int32  `json:"req_identifier"`
	MsgIncr       string `json:"msg_incr"`
	OperationId   string `json:"operation_id"`
	Token         string `json:"token"`
	SendId        string `json:"send_id"`
	Data          []byte `json:"data"`
}

// WSResponse is a reply or push frame received over the stream
type WSResponse struct {
	ReqIdentifier int32  `json:"req_identifier"`
	MsgIncr       string `json:"msg_incr"`
	OperationId   string `json:"operation_id"`
	ErrCode       int    `json:"err_code"`
	ErrMsg        string `json:"err_msg"`
	Data          []byte `json:"data"`
}

// SubscribeReq names a conversation topic
type SubscribeReq struct {
	ConversationId string `json:"conversation_id"`
}

// SubscribeResp lists the topics the connection now receives
type SubscribeResp struct {
	Topics []string `json:"topics"`
}

// SendMsgResp carries the committed message
type SendMsgResp struct {
	Message *Message `json:"message"`
}
