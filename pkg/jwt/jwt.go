package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mbeoliero/parley/pkg/errcode"
)

const issuer = "parley"

var signingMethod = jwt.SigningMethodHS256

// Claims identify a user on one platform. RegisteredClaims.ID names the
// session in the token store.
type Claims struct {
	UserId     string `json:"user_id"`
	PlatformId int    `json:"platform_id"`
	jwt.RegisteredClaims
}

// SessionId is the token id, empty for external tokens
func (c *Claims) SessionId() string {
	return c.ID
}

// IssueToken signs a native token and returns it with its claims
func IssueToken(userId string, platformId int, secret string, expireHours int) (string, *Claims, error) {
	now := time.Now()
	claims := &Claims{
		UserId:     userId,
		PlatformId: platformId,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   userId,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expireHours) * time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(secret))
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// GenerateToken signs a native token
func GenerateToken(userId string, platformId int, secret string, expireHours int) (string, error) {
	signed, _, err := IssueToken(userId, platformId, secret, expireHours)
	return signed, err
}

// ParseToken verifies a native token's signature, issuer and lifetime
func ParseToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(issuer),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, errcode.ErrTokenExpired.Wrap(err)
	case err != nil:
		return nil, errcode.ErrTokenInvalid.Wrap(err)
	case claims.UserId == "":
		return nil, errcode.ErrTokenInvalid
	}
	return claims, nil
}

// ValidateToken parses a native token and requires it to belong to userId on platformId
func ValidateToken(tokenString, secret, userId string, platformId int) (*Claims, error) {
	claims, err := ParseToken(tokenString, secret)
	if err != nil {
		return nil, err
	}
	if claims.UserId != userId || claims.PlatformId != platformId {
		return nil, errcode.ErrTokenMismatch
	}
	return claims, nil
}
