package jwt

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/parley/pkg/constant"
)

// SessionStatus is the state of an issued token
type SessionStatus int

const (
	SessionUnknown SessionStatus = iota
	SessionActive
	// SessionKicked means a newer login on the same platform replaced it
	SessionKicked
	SessionRevoked
)

// revokeScript flips a session's status only if the session is still recorded
var revokeScript = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 1 then
	redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
	return 1
end
return 0`)

// TokenStore records sessions per user and platform in a Redis hash of
// session id to status. Native tokens are honoured only while active here.
type TokenStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTokenStore creates a TokenStore whose keys live as long as a token
func NewTokenStore(rdb *redis.Client, expireHours int) *TokenStore {
	return &TokenStore{rdb: rdb, ttl: time.Duration(expireHours) * time.Hour}
}

// Open records claims as the only active session on its platform and returns
// the session ids it displaced
func (s *TokenStore) Open(ctx context.Context, claims *Claims) ([]string, error) {
	key := constant.SessionKey(claims.UserId, claims.PlatformId)
	sessions, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	var kicked []string
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for id, raw := range sessions {
			if status, _ := strconv.Atoi(raw); SessionStatus(status) == SessionActive {
				pipe.HSet(ctx, key, id, int(SessionKicked))
				kicked = append(kicked, id)
			}
		}
		pipe.HSet(ctx, key, claims.SessionId(), int(SessionActive))
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return kicked, nil
}

// Status reports the recorded state of the session behind claims
func (s *TokenStore) Status(ctx context.Context, claims *Claims) (SessionStatus, error) {
	raw, err := s.rdb.HGet(ctx, constant.SessionKey(claims.UserId, claims.PlatformId), claims.SessionId()).Result()
	if err == redis.Nil {
		return SessionUnknown, nil
	}
	if err != nil {
		return SessionUnknown, fmt.Errorf("load session: %w", err)
	}
	status, err := strconv.Atoi(raw)
	if err != nil {
		return SessionUnknown, fmt.Errorf("session status %q: %w", raw, err)
	}
	return SessionStatus(status), nil
}

// Revoke ends one session; unknown sessions are ignored
func (s *TokenStore) Revoke(ctx context.Context, claims *Claims) error {
	key := constant.SessionKey(claims.UserId, claims.PlatformId)
	if err := revokeScript.Run(ctx, s.rdb, []string{key}, claims.SessionId(), int(SessionRevoked)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeUser drops every session of userId on all platforms
func (s *TokenStore) RevokeUser(ctx context.Context, userId string) error {
	iter := s.rdb.Scan(ctx, 0, constant.SessionPattern(userId), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan sessions: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}
