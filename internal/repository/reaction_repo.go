package repository

import (
	"context"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mbeoliero/parley/internal/entity"
)

// ReactionRepo is the repository for message reactions
type ReactionRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewReactionRepo creates a new ReactionRepo
func NewReactionRepo(db *gorm.DB, rdb *redis.Client) *ReactionRepo {
	return &ReactionRepo{db: db, rdb: rdb}
}

// Delete removes one triple and reports whether it existed
func (r *ReactionRepo) Delete(ctx context.Context, tx *gorm.DB, messageId, userId, emoji string) (bool, error) {
	res := tx.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageId, userId, emoji).
		Delete(&entity.Reaction{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Insert adds one triple, ignoring a concurrent duplicate
func (r *ReactionRepo) Insert(ctx context.Context, tx *gorm.DB, reaction *entity.Reaction) error {
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}, {Name: "emoji"}},
			DoNothing: true,
		}).
		Create(reaction).Error
}

// ListByMessageEmoji gets the rows of one (message, emoji)
func (r *ReactionRepo) ListByMessageEmoji(ctx context.Context, tx *gorm.DB, messageId, emoji string) ([]*entity.Reaction, error) {
	var rows []*entity.Reaction
	err := pick(r.db, tx).WithContext(ctx).
		Where("message_id = ? AND emoji = ?", messageId, emoji).
		Find(&rows).Error
	return rows, err
}

// GetGroupedByMessageIds gets rows keyed by message id
func (r *ReactionRepo) GetGroupedByMessageIds(ctx context.Context, messageIds []string) (map[string][]*entity.Reaction, error) {
	m := make(map[string][]*entity.Reaction)
	if len(messageIds) == 0 {
		return m, nil
	}
	var rows []*entity.Reaction
	err := r.db.WithContext(ctx).
		Where("message_id IN ?", messageIds).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		m[row.MessageId] = append(m[row.MessageId], row)
	}
	return m, nil
}

// DeleteByMessageId purges all reactions of a message
func (r *ReactionRepo) DeleteByMessageId(ctx context.Context, tx *gorm.DB, messageId string) error {
	return tx.WithContext(ctx).Where("message_id = ?", messageId).Delete(&entity.Reaction{}).Error
}

// DeleteByConversation purges all reactions in a conversation
func (r *ReactionRepo) DeleteByConversation(ctx context.Context, tx *gorm.DB, conversationId string) error {
	return tx.WithContext(ctx).Where("conversation_id = ?", conversationId).Delete(&entity.Reaction{}).Error
}
