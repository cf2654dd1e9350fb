package sdk

import (
	"context"
	"net/url"
	"strings"

	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// GetUserInfo is the caller's own profile
func (c *Client) GetUserInfo(ctx context.Context) (*UserInfo, error) {
	return get[*UserInfo](ctx, c, "/user/info", nil)
}

func (c *Client) GetUserInfoById(ctx context.Context, userId string) (*UserInfo, error) {
	return get[*UserInfo](ctx, c, "/user/info/"+url.PathEscape(userId), nil)
}

// UpdateUserInfo changes the non-empty fields; past messages keep the old name
func (c *Client) UpdateUserInfo(ctx context.Context, req *UpdateUserRequest) (*UserInfo, error) {
	return fetch[*UserInfo](ctx, c, consts.MethodPut, "/user/update", nil, req)
}

// GetOnlineStatus reports which of userIds are online
func (c *Client) GetOnlineStatus(ctx context.Context, userIds []string) (map[string]bool, error) {
	return get[map[string]bool](ctx, c, "/user/online", url.Values{"user_ids": {strings.Join(userIds, ",")}})
}
