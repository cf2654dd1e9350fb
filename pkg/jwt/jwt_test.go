package jwt

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/parley/pkg/errcode"
)

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken("alice", 5, "secret", 1)
	require.NoError(t, err)

	claims, err := ParseToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserId)
	assert.Equal(t, 5, claims.PlatformId)

	_, err = ParseToken(token, "other")
	assert.True(t, errcode.Is(err, errcode.ErrTokenInvalid))
}

func TestValidateToken_Mismatch(t *testing.T) {
	token, err := GenerateToken("alice", 5, "secret", 1)
	require.NoError(t, err)

	_, err = ValidateToken(token, "secret", "bob", 5)
	assert.Equal(t, errcode.ErrTokenMismatch, err)
	_, err = ValidateToken(token, "secret", "alice", 1)
	assert.Equal(t, errcode.ErrTokenMismatch, err)
}

func TestParseExternalToken(t *testing.T) {
	raw := gojwt.NewWithClaims(gojwt.SigningMethodHS256, ExternalClaims{
		UserId: 42,
		RegisteredClaims: gojwt.RegisteredClaims{
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := raw.SignedString([]byte("ext"))
	require.NoError(t, err)

	claims, err := ParseExternalToken(signed, "ext", string(RoleAgent), 3)
	require.NoError(t, err)
	assert.Equal(t, "ag__42", claims.UserId)
	assert.Equal(t, 3, claims.PlatformId)
}

func TestActorRoundTrip(t *testing.T) {
	a := Actor{Id: 42, Role: RoleUser}
	id, err := a.ToUserId()
	require.NoError(t, err)
	assert.Equal(t, "u___42", id)

	var back Actor
	require.NoError(t, back.FromUserId(id))
	assert.Equal(t, a, back)

	assert.Error(t, back.FromUserId("zz__1"))
	assert.Error(t, back.FromUserId("u__"))
	_, err = (&Actor{Id: 1, Role: "bot"}).ToUserId()
	assert.Error(t, err)
}

func TestParseToken_Expired(t *testing.T) {
	token, err := GenerateToken("alice", 1, "secret", -1)
	require.NoError(t, err)

	_, err = ParseToken(token, "secret")
	assert.True(t, errcode.Is(err, errcode.ErrTokenExpired))
}

func TestIssueToken_DistinctSessions(t *testing.T) {
	_, first, err := IssueToken("alice", 1, "secret", 1)
	require.NoError(t, err)
	_, second, err := IssueToken("alice", 1, "secret", 1)
	require.NoError(t, err)

	assert.NotEmpty(t, first.SessionId())
	assert.NotEqual(t, first.SessionId(), second.SessionId())
}
