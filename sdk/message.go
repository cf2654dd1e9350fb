package sdk

import (
	"context"
	"net/url"
	"strconv"
)

// SendMessage commits a message. Resending with the same ClientMsgId returns
// the already committed message.
func (c *Client) SendMessage(ctx context.Context, req *SendMessageRequest) (*Message, error) {
	return post[*Message](ctx, c, "/msg/send", req)
}

// SendTextMessage sends text to a direct peer, opening the conversation if needed
func (c *Client) SendTextMessage(ctx context.Context, clientMsgId, recvId, text string) (*Message, error) {
	return c.SendMessage(ctx, &SendMessageRequest{
		ClientMsgId: clientMsgId,
		RecvId:      recvId,
		MsgType:     MsgTypeText,
		Content:     text,
	})
}

// EditMessage replaces the content of the caller's own message within the edit window
func (c *Client) EditMessage(ctx context.Context, messageId, content string) (*Message, error) {
	return post[*Message](ctx, c, "/msg/edit", &EditMessageRequest{MessageId: messageId, Content: content})
}

// DeleteMessage tombstones the caller's own message
func (c *Client) DeleteMessage(ctx context.Context, messageId string) (*Message, error) {
	return post[*Message](ctx, c, "/msg/delete", &DeleteMessageRequest{MessageId: messageId})
}

// PageMessages returns up to limit messages created before the cursor, oldest
// first. A zero before starts from the latest message.
func (c *Client) PageMessages(ctx context.Context, conversationId string, limit int, before int64) (*PageResult, error) {
	query := url.Values{"conversation_id": {conversationId}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if before > 0 {
		query.Set("before", strconv.FormatInt(before, 10))
	}
	return get[*PageResult](ctx, c, "/msg/page", query)
}

// ToggleReaction flips the caller's emoji on a message and returns its new aggregate
func (c *Client) ToggleReaction(ctx context.Context, messageId, emoji string) (*ToggleReactionResponse, error) {
	return post[*ToggleReactionResponse](ctx, c, "/reaction/toggle", &ToggleReactionRequest{MessageId: messageId, Emoji: emoji})
}
