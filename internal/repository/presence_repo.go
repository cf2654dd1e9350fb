package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/parley/pkg/constant"
)

// PresenceRepo keeps per-user online keys in Redis.
// A key expires on its own when its TTL is not refreshed, so a crashed
// gateway never leaves users online forever.
type PresenceRepo struct {
	rdb *redis.Client
}

// NewPresenceRepo creates a new PresenceRepo; rdb may be nil
func NewPresenceRepo(rdb *redis.Client) *PresenceRepo {
	return &PresenceRepo{rdb: rdb}
}

func onlineKey(userId string) string {
	return constant.OnlineKey(userId)
}

// SetOnline marks userId online for ttl
func (r *PresenceRepo) SetOnline(ctx context.Context, userId string, ttl time.Duration) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Set(ctx, onlineKey(userId), "1", ttl).Err()
}

// Refresh extends the online TTL of userId
func (r *PresenceRepo) Refresh(ctx context.Context, userId string, ttl time.Duration) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Expire(ctx, onlineKey(userId), ttl).Err()
}

// SetOffline clears the online key of userId
func (r *PresenceRepo) SetOffline(ctx context.Context, userId string) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Del(ctx, onlineKey(userId)).Err()
}

// AreOnline reports the online state of each user id
func (r *PresenceRepo) AreOnline(ctx context.Context, userIds []string) (map[string]bool, error) {
	out := make(map[string]bool, len(userIds))
	if r.rdb == nil || len(userIds) == 0 {
		for _, id := range userIds {
			out[id] = false
		}
		return out, nil
	}

	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(userIds))
	for i, id := range userIds {
		cmds[i] = pipe.Exists(ctx, onlineKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}
	for i, id := range userIds {
		out[id] = cmds[i].Val() > 0
	}
	return out, nil
}
