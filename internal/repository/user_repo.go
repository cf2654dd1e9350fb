package repository

import (
	"context"
	"slices"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/mbeoliero/parley/internal/entity"
)

// UserRepo reads and writes accounts
type UserRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

func NewUserRepo(db *gorm.DB, rdb *redis.Client) *UserRepo {
	return &UserRepo{db: db, rdb: rdb}
}

func (r *UserRepo) Create(ctx context.Context, user *entity.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *UserRepo) GetById(ctx context.Context, id string) (*entity.User, error) {
	return r.GetByIdWithTx(ctx, nil, id)
}

// GetByIdWithTx reads inside tx when it is set, so display names resolved
// during a projection update see the same snapshot
func (r *UserRepo) GetByIdWithTx(ctx context.Context, tx *gorm.DB, id string) (*entity.User, error) {
	user := &entity.User{}
	if err := pick(r.db, tx).WithContext(ctx).Where("id = ?", id).Take(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// GetByIds returns the users that exist among ids, in no particular order
func (r *UserRepo) GetByIds(ctx context.Context, ids []string) ([]*entity.User, error) {
	var users []*entity.User
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	return users, err
}

func (r *UserRepo) GetMapByIds(ctx context.Context, ids []string) (map[string]*entity.User, error) {
	users, err := r.GetByIds(ctx, ids)
	if err != nil {
		return nil, err
	}
	byId := make(map[string]*entity.User, len(users))
	for _, u := range users {
		byId[u.Id] = u
	}
	return byId, nil
}

// Missing returns the ids that name no user, in input order
func (r *UserRepo) Missing(ctx context.Context, ids []string) ([]string, error) {
	var found []string
	if len(ids) > 0 {
		if err := r.db.WithContext(ctx).Model(&entity.User{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
			return nil, err
		}
	}
	var missing []string
	for _, id := range ids {
		if !slices.Contains(found, id) {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (r *UserRepo) Exists(ctx context.Context, id string) (bool, error) {
	missing, err := r.Missing(ctx, []string{id})
	return err == nil && len(missing) == 0, err
}

// Update writes the given columns
func (r *UserRepo) Update(ctx context.Context, id string, columns map[string]any) error {
	return r.db.WithContext(ctx).Model(&entity.User{}).Where("id = ?", id).Updates(columns).Error
}
