package repository

import (
	"context"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mbeoliero/parley/internal/entity"
)

// BlockRepo is the repository for user blocks
type BlockRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewBlockRepo creates a new BlockRepo
func NewBlockRepo(db *gorm.DB, rdb *redis.Client) *BlockRepo {
	return &BlockRepo{db: db, rdb: rdb}
}

// Create records a block; repeating it is a no-op.
// Reports whether a new row was written.
func (r *BlockRepo) Create(ctx context.Context, blockerId, blockedId string) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "blocker_id"}, {Name: "blocked_id"}},
			DoNothing: true,
		}).
		Create(&entity.Block{BlockerId: blockerId, BlockedId: blockedId})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Delete lifts a block and reports whether one existed
func (r *BlockRepo) Delete(ctx context.Context, blockerId, blockedId string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerId, blockedId).
		Delete(&entity.Block{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ExistsEitherWay checks whether a blocked b or b blocked a
func (r *BlockRepo) ExistsEitherWay(ctx context.Context, tx *gorm.DB, a, b string) (bool, error) {
	var count int64
	err := pick(r.db, tx).WithContext(ctx).
		Model(&entity.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByBlocker gets the blocks created by blockerId, newest first
func (r *BlockRepo) ListByBlocker(ctx context.Context, blockerId string) ([]*entity.Block, error) {
	var blocks []*entity.Block
	err := r.db.WithContext(ctx).
		Where("blocker_id = ?", blockerId).
		Order("created_at DESC").
		Find(&blocks).Error
	return blocks, err
}
