package sdk

import (
	"context"
	"net/url"
)

func byConversation(conversationId string) url.Values {
	return url.Values{"conversation_id": {conversationId}}
}

// GetConversationList returns the caller's conversations, most recently active first
func (c *Client) GetConversationList(ctx context.Context) ([]*ConversationInfo, error) {
	return get[[]*ConversationInfo](ctx, c, "/conversation/list", nil)
}

func (c *Client) GetConversation(ctx context.Context, conversationId string) (*ConversationInfo, error) {
	return get[*ConversationInfo](ctx, c, "/conversation/info", byConversation(conversationId))
}

// GetParticipants lists members with their roles and read cursors
func (c *Client) GetParticipants(ctx context.Context, conversationId string) ([]*ParticipantInfo, error) {
	return get[[]*ParticipantInfo](ctx, c, "/conversation/participants", byConversation(conversationId))
}

// MarkRead moves the caller's read cursor to messageId
func (c *Client) MarkRead(ctx context.Context, conversationId, messageId string) error {
	return c.exec(ctx, "/conversation/mark_read", &MarkReadRequest{ConversationId: conversationId, MessageId: messageId})
}

// GetUnreadCount counts messages after the caller's read cursor
func (c *Client) GetUnreadCount(ctx context.Context, conversationId string) (int64, error) {
	resp, err := get[UnreadCountResponse](ctx, c, "/conversation/unread_count", byConversation(conversationId))
	return resp.UnreadCount, err
}
