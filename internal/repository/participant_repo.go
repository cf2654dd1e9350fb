package repository

import (
	"context"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mbeoliero/parley/internal/entity"
	"github.com/mbeoliero/parley/pkg/constant"
)

const memberCacheTTL = 10 * time.Minute

// ParticipantRepo is the repository for conversation membership
type ParticipantRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewParticipantRepo creates a new ParticipantRepo
func NewParticipantRepo(db *gorm.DB, rdb *redis.Client) *ParticipantRepo {
	return &ParticipantRepo{db: db, rdb: rdb}
}

// Add inserts a membership row; a duplicate violates the unique index
func (r *ParticipantRepo) Add(ctx context.Context, tx *gorm.DB, p *entity.Participant) error {
	if p.JoinedAt == 0 {
		p.JoinedAt = entity.NowUnixMilli()
	}
	return pick(r.db, tx).WithContext(ctx).Create(p).Error
}

// AddIfAbsent inserts a membership row unless one exists
func (r *ParticipantRepo) AddIfAbsent(ctx context.Context, tx *gorm.DB, p *entity.Participant) error {
	if p.JoinedAt == 0 {
		p.JoinedAt = entity.NowUnixMilli()
	}
	return pick(r.db, tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(p).Error
}

// Get gets a membership row, nil when absent
func (r *ParticipantRepo) Get(ctx context.Context, tx *gorm.DB, conversationId, userId string) (*entity.Participant, error) {
	var p entity.Participant
	err := pick(r.db, tx).WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationId, userId).
		First(&p).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &p, nil
}

// List gets all participants, most senior first
func (r *ParticipantRepo) List(ctx context.Context, tx *gorm.DB, conversationId string) ([]*entity.Participant, error) {
	var ps []*entity.Participant
	err := pick(r.db, tx).WithContext(ctx).
		Where("conversation_id = ?", conversationId).
		Order("joined_at ASC").
		Order("id ASC").
		Find(&ps).Error
	if err != nil {
		return nil, err
	}
	return ps, nil
}

// ListByUser gets every membership row of userId
func (r *ParticipantRepo) ListByUser(ctx context.Context, userId string) ([]*entity.Participant, error) {
	var ps []*entity.Participant
	err := r.db.WithContext(ctx).Where("user_id = ?", userId).Find(&ps).Error
	if err != nil {
		return nil, err
	}
	return ps, nil
}

// Count counts participants
func (r *ParticipantRepo) Count(ctx context.Context, tx *gorm.DB, conversationId string) (int64, error) {
	var n int64
	err := pick(r.db, tx).WithContext(ctx).
		Model(&entity.Participant{}).
		Where("conversation_id = ?", conversationId).
		Count(&n).Error
	return n, err
}

// Remove deletes one membership row
func (r *ParticipantRepo) Remove(ctx context.Context, tx *gorm.DB, conversationId, userId string) error {
	return tx.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationId, userId).
		Delete(&entity.Participant{}).Error
}

// DeleteByConversation deletes every membership row of a conversation
func (r *ParticipantRepo) DeleteByConversation(ctx context.Context, tx *gorm.DB, conversationId string) error {
	return tx.WithContext(ctx).
		Where("conversation_id = ?", conversationId).
		Delete(&entity.Participant{}).Error
}

// UpdateRole changes a participant's role level
func (r *ParticipantRepo) UpdateRole(ctx context.Context, tx *gorm.DB, conversationId, userId string, role int32) error {
	return tx.WithContext(ctx).
		Model(&entity.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationId, userId).
		Updates(map[string]interface{}{
			"role_level": role,
			"updated_at": entity.NowUnixMilli(),
		}).Error
}

// UpdateReadCursor overwrites the read cursor
func (r *ParticipantRepo) UpdateReadCursor(ctx context.Context, tx *gorm.DB, conversationId, userId, messageId string, readAt int64) error {
	return pick(r.db, tx).WithContext(ctx).
		Model(&entity.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationId, userId).
		Updates(map[string]interface{}{
			"last_read_message_id": messageId,
			"last_read_at":         readAt,
			"updated_at":           entity.NowUnixMilli(),
		}).Error
}

// GetUserIds gets participant user ids, served from the Redis member cache when warm
func (r *ParticipantRepo) GetUserIds(ctx context.Context, conversationId string) ([]string, error) {
	key := constant.MembersKey(conversationId)
	if r.rdb != nil {
		ids, err := r.rdb.SMembers(ctx, key).Result()
		if err == nil && len(ids) > 0 {
			return ids, nil
		}
		if err != nil {
			log.CtxWarn(ctx, "read member cache failed: conversation_id=%s, error=%v", conversationId, err)
		}
	}

	var ids []string
	err := r.db.WithContext(ctx).
		Model(&entity.Participant{}).
		Where("conversation_id = ?", conversationId).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}

	if r.rdb != nil && len(ids) > 0 {
		members := make([]interface{}, len(ids))
		for i, id := range ids {
			members[i] = id
		}
		pipe := r.rdb.TxPipeline()
		pipe.Del(ctx, key)
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, memberCacheTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			log.CtxWarn(ctx, "fill member cache failed: conversation_id=%s, error=%v", conversationId, err)
		}
	}
	return ids, nil
}

// IsParticipant checks membership through the member cache
func (r *ParticipantRepo) IsParticipant(ctx context.Context, conversationId, userId string) (bool, error) {
	ids, err := r.GetUserIds(ctx, conversationId)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == userId {
			return true, nil
		}
	}
	return false, nil
}

// InvalidateMembers drops the member cache; call after the membership change commits
func (r *ParticipantRepo) InvalidateMembers(ctx context.Context, conversationId string) {
	if r.rdb == nil {
		return
	}
	key := constant.MembersKey(conversationId)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		log.CtxWarn(ctx, "invalidate member cache failed: conversation_id=%s, error=%v", conversationId, err)
	}
}
