package entity

import "github.com/mbeoliero/parley/pkg/constant"

// Conversation represents a direct or group conversation with its
// denormalized last-message projection
type Conversation struct {
	Id                  string  `json:"id" gorm:"column:id;primaryKey;size:191"`
	Kind                int32   `json:"kind" gorm:"column:kind"`
	Name                string  `json:"name" gorm:"column:name"`
	Avatar              string  `json:"avatar" gorm:"column:avatar"`
	CreatorUserId       string  `json:"creator_user_id" gorm:"column:creator_user_id"`
	LastMessageId       *string `json:"last_message_id" gorm:"column:last_message_id"`
	LastMessageAt       *int64  `json:"last_message_at" gorm:"column:last_message_at;index"`
	LastMessageContent  *string `json:"last_message_content" gorm:"column:last_message_content;type:text"`
	LastMessageSenderId *string `json:"last_message_sender_id" gorm:"column:last_message_sender_id"`
	LastMessageSender   *string `json:"last_message_sender_name" gorm:"column:last_message_sender_name"`
	MessageCount        int64   `json:"message_count" gorm:"column:message_count"`
	CreatedAt           int64   `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt           int64   `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName returns the table name for Conversation
func (Conversation) TableName() string {
	return "conversations"
}

// IsGroup checks if the conversation is a group chat
func (c *Conversation) IsGroup() bool {
	return c.Kind == constant.ConversationKindGroup
}

// IsDirect checks if the conversation is a direct chat
func (c *Conversation) IsDirect() bool {
	return c.Kind == constant.ConversationKindDirect
}

// Participant is a user's membership in a conversation
type Participant struct {
	Id                int64   `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ConversationId    string  `json:"conversation_id" gorm:"column:conversation_id;size:191;uniqueIndex:uk_participant"`
	UserId            string  `json:"user_id" gorm:"column:user_id;size:191;uniqueIndex:uk_participant;index"`
	RoleLevel         int32   `json:"role_level" gorm:"column:role_level"`
	JoinedAt          int64   `json:"joined_at" gorm:"column:joined_at"`
	LastReadMessageId *string `json:"last_read_message_id" gorm:"column:last_read_message_id"`
	LastReadAt        *int64  `json:"last_read_at" gorm:"column:last_read_at"`
	CreatedAt         int64   `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt         int64   `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName returns the table name for Participant
func (Participant) TableName() string {
	return "participants"
}

// IsOwner checks if the participant owns the conversation
func (p *Participant) IsOwner() bool {
	return p.RoleLevel == constant.RoleLevelOwner
}

// IsAdmin checks if the participant is an admin or the owner
func (p *Participant) IsAdmin() bool {
	return p.RoleLevel >= constant.RoleLevelAdmin
}

// ConversationInfo represents a conversation in list and detail responses
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

// ToConversationInfo converts Conversation to ConversationInfo as seen by viewerId
func (c *Conversation) ToConversationInfo(viewerId string, unread int64) *ConversationInfo {
	info := &ConversationInfo{
		Id:                  c.Id,
		Kind:                c.Kind,
		Name:                c.Name,
		Avatar:              c.Avatar,
		LastMessageId:       c.LastMessageId,
		LastMessageAt:       c.LastMessageAt,
		LastMessageContent:  c.LastMessageContent,
		LastMessageSenderId: c.LastMessageSenderId,
		LastMessageSender:   c.LastMessageSender,
		MessageCount:        c.MessageCount,
		UnreadCount:         unread,
		UpdatedAt:           c.UpdatedAt,
	}
	if a, b, ok := DirectPeers(c.Id); ok {
		if a == viewerId {
			info.PeerUserId = b
		} else {
			info.PeerUserId = a
		}
	}
	return info
}

// ParticipantInfo represents a participant with its user profile
type ParticipantInfo struct {
	UserId            string  `json:"user_id"`
	Nickname          string  `json:"nickname"`
	Avatar            string  `json:"avatar"`
	RoleLevel         int32   `json:"role_level"`
	JoinedAt          int64   `json:"joined_at"`
	LastReadMessageId *string `json:"last_read_message_id"`
	LastReadAt        *int64  `json:"last_read_at"`
}
