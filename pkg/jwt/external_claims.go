package jwt

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mbeoliero/parley/pkg/errcode"
)

// ExternalClaims come from an identity provider that numbers its users.
// Role is optional; the configured default applies when it is absent.
type ExternalClaims struct {
	UserId int64  `json:"user_id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// ParseExternalToken verifies a provider token and maps it onto local claims
// for platformId. The result has no session id and is never revocable here.
func ParseExternalToken(tokenString, secret, defaultRole string, platformId int) (*Claims, error) {
	ext := &ExternalClaims{}
	_, err := jwt.ParseWithClaims(tokenString, ext,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, errcode.ErrTokenExpired.Wrap(err)
	case err != nil:
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	}

	role := RoleType(ext.Role)
	if role == "" {
		role = RoleType(defaultRole)
	}
	userId, err := (&Actor{Id: ext.UserId, Role: role}).ToUserId()
	if err != nil {
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	}

	registered := ext.RegisteredClaims
	registered.ID = ""
	return &Claims{UserId: userId, PlatformId: platformId, RegisteredClaims: registered}, nil
}
