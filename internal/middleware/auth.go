package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/parley/internal/config"
	"github.com/mbeoliero/parley/pkg/errcode"
	"github.com/mbeoliero/parley/pkg/jwt"
	"github.com/mbeoliero/parley/pkg/response"
)

const (
	AuthorizationHeader = "Authorization"
	BearerPrefix        = "Bearer "

	// request context keys
	UserIdKey     = "user_id"
	PlatformIdKey = "platform_id"
	TokenKey      = "token"
)

// TokenChecker reports whether a parsed token's session is still live
type TokenChecker func(ctx context.Context, claims *jwt.Claims, token string) bool

// JWTAuth resolves the caller from the bearer token and aborts with a token
// error otherwise. check may be nil.
func JWTAuth(cfg *config.Config, check TokenChecker) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		claims, token, err := authenticate(ctx, c, cfg, check)
		if err != nil {
			var e *errcode.Error
			if !errors.As(err, &e) {
				e = errcode.ErrTokenInvalid
			}
			response.ErrorWithCode(ctx, c, e)
			c.Abort()
			return
		}

		c.Set(UserIdKey, claims.UserId)
		c.Set(PlatformIdKey, claims.PlatformId)
		c.Set(TokenKey, token)
		c.Next(ctx)
	}
}

func authenticate(ctx context.Context, c *app.RequestContext, cfg *config.Config, check TokenChecker) (*jwt.Claims, string, error) {
	header := string(c.GetHeader(AuthorizationHeader))
	if header == "" {
		return nil, "", errcode.ErrTokenMissing
	}
	token, ok := strings.CutPrefix(header, BearerPrefix)
	if !ok || token == "" {
		return nil, "", errcode.ErrTokenInvalid
	}

	claims, err := ParseTokenWithFallback(token, cfg)
	if err != nil {
		return nil, "", err
	}
	if check != nil && !check(ctx, claims, token) {
		return nil, "", errcode.ErrTokenInvalid
	}
	return claims, token, nil
}

// ParseTokenWithFallback accepts a native token, then an external one when enabled
func ParseTokenWithFallback(token string, cfg *config.Config) (*jwt.Claims, error) {
	claims, err := jwt.ParseToken(token, cfg.JWT.Secret)
	if err == nil || !cfg.ExternalJWT.Enabled {
		return claims, err
	}
	ext := cfg.ExternalJWT
	return jwt.ParseExternalToken(token, ext.Secret, ext.DefaultRole, ext.DefaultPlatformId)
}

func value[T any](c *app.RequestContext, key string) T {
	v, _ := c.Get(key)
	t, _ := v.(T)
	return t
}

// GetUserId is the authenticated user, empty outside JWTAuth
func GetUserId(c *app.RequestContext) string {
	return value[string](c, UserIdKey)
}

func GetPlatformId(c *app.RequestContext) int {
	return value[int](c, PlatformIdKey)
}

// GetToken is the raw bearer token
func GetToken(c *app.RequestContext) string {
	return value[string](c, TokenKey)
}
