package repository

import (
	"context"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mbeoliero/parley/internal/entity"
)

// ConversationRepo is the repository for conversation operations
type ConversationRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewConversationRepo creates a new ConversationRepo
func NewConversationRepo(db *gorm.DB, rdb *redis.Client) *ConversationRepo {
	return &ConversationRepo{db: db, rdb: rdb}
}

// Create creates a new conversation
func (r *ConversationRepo) Create(ctx context.Context, tx *gorm.DB, conv *entity.Conversation) error {
	now := entity.NowUnixMilli()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	return pick(r.db, tx).WithContext(ctx).Create(conv).Error
}

// CreateIfAbsent inserts conv unless a row with the same id exists.
// Reports whether this call created it.
func (r *ConversationRepo) CreateIfAbsent(ctx context.Context, tx *gorm.DB, conv *entity.Conversation) (bool, error) {
	now := entity.NowUnixMilli()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	res := pick(r.db, tx).WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(conv)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// GetById gets a conversation, nil when absent
func (r *ConversationRepo) GetById(ctx context.Context, tx *gorm.DB, id string) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := pick(r.db, tx).WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &conv, nil
}

// GetByIdForUpdate locks the conversation row for the rest of tx, nil when absent.
// Every mutation of one conversation's log serializes on this lock.
func (r *ConversationRepo) GetByIdForUpdate(ctx context.Context, tx *gorm.DB, id string) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&conv).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &conv, nil
}

// GetUserConversations gets the conversations userId participates in,
// most recently active first
func (r *ConversationRepo) GetUserConversations(ctx context.Context, userId string) ([]*entity.Conversation, error) {
	var convs []*entity.Conversation
	err := r.db.WithContext(ctx).
		Joins("JOIN participants p ON p.conversation_id = conversations.id").
		Where("p.user_id = ?", userId).
		Order("conversations.last_message_at IS NULL").
		Order("conversations.last_message_at DESC").
		Order("conversations.updated_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// ApplyCreated points the projection at msg and bumps message_count
func (r *ConversationRepo) ApplyCreated(ctx context.Context, tx *gorm.DB, msg *entity.Message, senderName string) error {
	return tx.WithContext(ctx).
		Model(&entity.Conversation{}).
		Where("id = ?", msg.ConversationId).
		Updates(map[string]interface{}{
			"last_message_id":          msg.Id,
			"last_message_at":          msg.CreatedAt,
			"last_message_content":     msg.Content,
			"last_message_sender_id":   msg.SenderId,
			"last_message_sender_name": senderName,
			"message_count":            gorm.Expr("message_count + ?", 1),
			"updated_at":               entity.NowUnixMilli(),
		}).Error
}

// SetLastContent refreshes the projected content when msgId is still the last message
func (r *ConversationRepo) SetLastContent(ctx context.Context, tx *gorm.DB, conversationId, msgId, content string) error {
	return tx.WithContext(ctx).
		Model(&entity.Conversation{}).
		Where("id = ? AND last_message_id = ?", conversationId, msgId).
		Updates(map[string]interface{}{
			"last_message_content": content,
			"updated_at":           entity.NowUnixMilli(),
		}).Error
}

// SetLast points the projection at msg, or clears it when msg is nil
func (r *ConversationRepo) SetLast(ctx context.Context, tx *gorm.DB, conversationId string, msg *entity.Message, senderName string) error {
	updates := map[string]interface{}{
		"last_message_id":          nil,
		"last_message_at":          nil,
		"last_message_content":     nil,
		"last_message_sender_id":   nil,
		"last_message_sender_name": nil,
		"updated_at":               entity.NowUnixMilli(),
	}
	if msg != nil {
		updates["last_message_id"] = msg.Id
		updates["last_message_at"] = msg.CreatedAt
		updates["last_message_content"] = msg.Content
		updates["last_message_sender_id"] = msg.SenderId
		updates["last_message_sender_name"] = senderName
	}
	return tx.WithContext(ctx).
		Model(&entity.Conversation{}).
		Where("id = ?", conversationId).
		Updates(updates).Error
}

// Touch updates the updated_at timestamp
func (r *ConversationRepo) Touch(ctx context.Context, tx *gorm.DB, conversationId string) error {
	return pick(r.db, tx).WithContext(ctx).
		Model(&entity.Conversation{}).
		Where("id = ?", conversationId).
		Update("updated_at", entity.NowUnixMilli()).Error
}

// Delete removes the conversation row
func (r *ConversationRepo) Delete(ctx context.Context, tx *gorm.DB, conversationId string) error {
	return tx.WithContext(ctx).Where("id = ?", conversationId).Delete(&entity.Conversation{}).Error
}
