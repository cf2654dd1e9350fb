package repository

import (
	"context"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/mbeoliero/parley/internal/entity"
)

// MessageRepo is the repository for message operations
type MessageRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewMessageRepo creates a new MessageRepo
func NewMessageRepo(db *gorm.DB, rdb *redis.Client) *MessageRepo {
	return &MessageRepo{db: db, rdb: rdb}
}

// Create inserts msg; CreatedAt must already be assigned
func (r *MessageRepo) Create(ctx context.Context, tx *gorm.DB, msg *entity.Message) error {
	msg.UpdatedAt = msg.CreatedAt
	return tx.WithContext(ctx).Create(msg).Error
}

// GetById gets a message, nil when absent
func (r *MessageRepo) GetById(ctx context.Context, tx *gorm.DB, id string) (*entity.Message, error) {
	var msg entity.Message
	err := pick(r.db, tx).WithContext(ctx).Where("id = ?", id).First(&msg).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &msg, nil
}

// GetByClientMsgId gets message by sender_id and client_msg_id (for idempotency check)
func (r *MessageRepo) GetByClientMsgId(ctx context.Context, tx *gorm.DB, senderId, clientMsgId string) (*entity.Message, error) {
	var msg entity.Message
	err := pick(r.db, tx).WithContext(ctx).
		Where("sender_id = ? AND client_msg_id = ?", senderId, clientMsgId).
		First(&msg).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &msg, nil
}

// PageNewestFirst returns up to limit messages older than before (0 = no bound),
// newest first
func (r *MessageRepo) PageNewestFirst(ctx context.Context, conversationId string, before int64, limit int) ([]*entity.Message, error) {
	q := r.db.WithContext(ctx).Where("conversation_id = ?", conversationId)
	if before > 0 {
		q = q.Where("created_at < ?", before)
	}
	var messages []*entity.Message
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// GetLatestVisible gets the most recent non-deleted message, nil when none
func (r *MessageRepo) GetLatestVisible(ctx context.Context, tx *gorm.DB, conversationId string) (*entity.Message, error) {
	var msg entity.Message
	err := pick(r.db, tx).WithContext(ctx).
		Where("conversation_id = ? AND is_deleted = ?", conversationId, false).
		Order("created_at DESC").
		Order("id DESC").
		First(&msg).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &msg, nil
}

// GetLatestCreatedAt returns the newest created_at of the conversation,
// deleted messages included, 0 when empty
func (r *MessageRepo) GetLatestCreatedAt(ctx context.Context, tx *gorm.DB, conversationId string) (int64, error) {
	var msg entity.Message
	err := pick(r.db, tx).WithContext(ctx).
		Select("created_at").
		Where("conversation_id = ?", conversationId).
		Order("created_at DESC").
		Limit(1).
		Find(&msg).Error
	if err != nil {
		return 0, err
	}
	return msg.CreatedAt, nil
}

// Update applies updates to one message
func (r *MessageRepo) Update(ctx context.Context, tx *gorm.DB, id string, updates map[string]interface{}) error {
	return tx.WithContext(ctx).Model(&entity.Message{}).Where("id = ?", id).Updates(updates).Error
}

// CountVisibleAfter counts non-deleted messages created strictly after after
func (r *MessageRepo) CountVisibleAfter(ctx context.Context, conversationId string, after int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.Message{}).
		Where("conversation_id = ? AND is_deleted = ? AND created_at > ?", conversationId, false, after).
		Count(&count).Error
	return count, err
}

// GetIdsByConversation gets every message id of a conversation
func (r *MessageRepo) GetIdsByConversation(ctx context.Context, tx *gorm.DB, conversationId string) ([]string, error) {
	var ids []string
	err := pick(r.db, tx).WithContext(ctx).
		Model(&entity.Message{}).
		Where("conversation_id = ?", conversationId).
		Pluck("id", &ids).Error
	return ids, err
}

// DeleteByConversation hard-deletes every message of a conversation
func (r *MessageRepo) DeleteByConversation(ctx context.Context, tx *gorm.DB, conversationId string) error {
	return tx.WithContext(ctx).Where("conversation_id = ?", conversationId).Delete(&entity.Message{}).Error
}
