package sdk

import "context"

func (c *Client) Register(ctx context.Context, req *RegisterRequest) (*UserInfo, error) {
	return post[*UserInfo](ctx, c, "/auth/register", req)
}

// Login opens a session on req.PlatformId; the client keeps the returned token.
// Any older session on that platform is ended by the server.
func (c *Client) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	resp, err := post[*LoginResponse](ctx, c, "/auth/login", req)
	if err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return resp, nil
}

func (c *Client) LoginWithUserId(ctx context.Context, userId, password string, platformId int) (*LoginResponse, error) {
	return c.Login(ctx, &LoginRequest{UserId: userId, Password: password, PlatformId: platformId})
}

// Logout ends the current session and forgets the token
func (c *Client) Logout(ctx context.Context) error {
	return c.logout(ctx, "/auth/logout")
}

// LogoutAll ends every session of the user on all platforms
func (c *Client) LogoutAll(ctx context.Context) error {
	return c.logout(ctx, "/auth/logout?all=true")
}

func (c *Client) logout(ctx context.Context, path string) error {
	if err := c.exec(ctx, path, nil); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}
