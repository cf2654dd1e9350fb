package sdk

import "context"

// CreateGroup creates a group owned by the caller
func (c *Client) CreateGroup(ctx context.Context, req *CreateGroupRequest) (*ConversationInfo, error) {
	return post[*ConversationInfo](ctx, c, "/group/create", req)
}

// AddMembers requires the caller to be an admin
func (c *Client) AddMembers(ctx context.Context, conversationId string, userIds []string) error {
	return c.exec(ctx, "/group/add_members", &AddMembersRequest{ConversationId: conversationId, UserIds: userIds})
}

// RemoveMember requires the caller to be an admin; only the owner removes admins
func (c *Client) RemoveMember(ctx context.Context, conversationId, userId string) error {
	return c.exec(ctx, "/group/remove_member", &RemoveMemberRequest{ConversationId: conversationId, UserId: userId})
}

func (c *Client) LeaveGroup(ctx context.Context, conversationId string) error {
	return c.exec(ctx, "/group/leave", &LeaveGroupRequest{ConversationId: conversationId})
}

// Block stops direct messages in both directions between the caller and userId
func (c *Client) Block(ctx context.Context, userId string) error {
	return c.exec(ctx, "/block/add", &BlockRequest{UserId: userId})
}

func (c *Client) Unblock(ctx context.Context, userId string) error {
	return c.exec(ctx, "/block/remove", &BlockRequest{UserId: userId})
}

func (c *Client) ListBlocked(ctx context.Context) ([]*BlockInfo, error) {
	return get[[]*BlockInfo](ctx, c, "/block/list", nil)
}

// Typing announces or clears the caller's typing indicator over HTTP
func (c *Client) Typing(ctx context.Context, conversationId string, active bool) error {
	return c.exec(ctx, "/presence/typing", &TypingRequest{ConversationId: conversationId, Active: active})
}
