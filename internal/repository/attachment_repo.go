package repository

import (
	"context"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/mbeoliero/parley/internal/entity"
)

// AttachmentRepo is the repository for message attachments
type AttachmentRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewAttachmentRepo creates a new AttachmentRepo
func NewAttachmentRepo(db *gorm.DB, rdb *redis.Client) *AttachmentRepo {
	return &AttachmentRepo{db: db, rdb: rdb}
}

// Create inserts an attachment
func (r *AttachmentRepo) Create(ctx context.Context, tx *gorm.DB, att *entity.Attachment) error {
	return tx.WithContext(ctx).Create(att).Error
}

// GetByMessageId gets the attachment of a message, nil when none
func (r *AttachmentRepo) GetByMessageId(ctx context.Context, tx *gorm.DB, messageId string) (*entity.Attachment, error) {
	var att entity.Attachment
	err := pick(r.db, tx).WithContext(ctx).Where("message_id = ?", messageId).First(&att).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &att, nil
}

// GetByHandle gets the attachment pointing at handle, nil when none
func (r *AttachmentRepo) GetByHandle(ctx context.Context, handle string) (*entity.Attachment, error) {
	var att entity.Attachment
	err := r.db.WithContext(ctx).Where("handle = ?", handle).First(&att).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &att, nil
}

// GetMapByMessageIds gets attachments keyed by message id
func (r *AttachmentRepo) GetMapByMessageIds(ctx context.Context, messageIds []string) (map[string]*entity.Attachment, error) {
	m := make(map[string]*entity.Attachment)
	if len(messageIds) == 0 {
		return m, nil
	}
	var atts []*entity.Attachment
	if err := r.db.WithContext(ctx).Where("message_id IN ?", messageIds).Find(&atts).Error; err != nil {
		return nil, err
	}
	for _, a := range atts {
		m[a.MessageId] = a
	}
	return m, nil
}

// DeleteByMessageIds deletes attachment rows and returns their blob handles
func (r *AttachmentRepo) DeleteByMessageIds(ctx context.Context, tx *gorm.DB, messageIds []string) ([]string, error) {
	if len(messageIds) == 0 {
		return nil, nil
	}
	var handles []string
	err := tx.WithContext(ctx).
		Model(&entity.Attachment{}).
		Where("message_id IN ?", messageIds).
		Pluck("handle", &handles).Error
	if err != nil {
		return nil, err
	}
	if err := tx.WithContext(ctx).Where("message_id IN ?", messageIds).Delete(&entity.Attachment{}).Error; err != nil {
		return nil, err
	}
	return handles, nil
}
