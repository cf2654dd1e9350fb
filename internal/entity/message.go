package entity

import (
	"github.com/mbeoliero/parley/pkg/event"
)

// Message is one entry of a conversation's log.
// CreatedAt is assigned at commit and is the ordering key, ties broken by Id.
type Message struct {
	Id             string `json:"id" gorm:"column:id;primaryKey;size:64"`
	ConversationId string `json:"conversation_id" gorm:"column:conversation_id;size:191;index:idx_conv_created,priority:1"`
	SenderId       string `json:"sender_id" gorm:"column:sender_id;size:191;uniqueIndex:uk_sender_client_msg,priority:1"`
	ClientMsgId    string `json:"client_msg_id" gorm:"column:client_msg_id;size:191;uniqueIndex:uk_sender_client_msg,priority:2"`
	MsgType        int32  `json:"msg_type" gorm:"column:msg_type"`
	Content        string `json:"content" gorm:"column:content;type:text"`
	CreatedAt      int64  `json:"created_at" gorm:"column:created_at;index:idx_conv_created,priority:2"`
	EditedAt       *int64 `json:"edited_at" gorm:"column:edited_at"`
	IsDeleted      bool   `json:"is_deleted" gorm:"column:is_deleted"`
	UpdatedAt      int64  `json:"updated_at" gorm:"column:updated_at"`
}

// TableName returns the table name for Message
func (Message) TableName() string {
	return "messages"
}

// Attachment belongs to exactly one message and points at a blob handle
type Attachment struct {
	Id        int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	MessageId string `json:"message_id" gorm:"column:message_id;size:64;index"`
	Handle    string `json:"handle" gorm:"column:handle;size:64"`
	FileName  string `json:"file_name" gorm:"column:file_name"`
	MimeType  string `json:"mime_type" gorm:"column:mime_type"`
	Size      int64  `json:"size" gorm:"column:size"`
	CreatedAt int64  `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
}

// TableName returns the table name for Attachment
func (Attachment) TableName() string {
	return "attachments"
}

// MessageInfo is the wire form of a message
type MessageInfo = event.Message

// ToMessageInfo converts Message to its wire form.
// sender and attachment may be nil.
func (m *Message) ToMessageInfo(sender *User, att *Attachment, reactions []event.Reaction) *MessageInfo {
	info := &MessageInfo{
		Id:             m.Id,
		ConversationId: m.ConversationId,
		ClientMsgId:    m.ClientMsgId,
		SenderId:       m.SenderId,
		Content:        m.Content,
		Type:           m.MsgType,
		CreatedAt:      m.CreatedAt,
		EditedAt:       m.EditedAt,
		IsDeleted:      m.IsDeleted,
		Reactions:      reactions,
	}
	if info.Reactions == nil || m.IsDeleted {
		info.Reactions = []event.Reaction{}
	}
	if sender != nil {
		info.SenderDisplayName = sender.DisplayName()
		info.AvatarUrl = sender.Avatar
	}
	if att != nil && !m.IsDeleted {
		info.Attachment = &event.Attachment{
			Handle:   att.Handle,
			FileName: att.FileName,
			MimeType: att.MimeType,
			Size:     att.Size,
		}
	}
	return info
}
